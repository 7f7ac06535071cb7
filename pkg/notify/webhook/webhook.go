// Package webhook provides a sink that POSTs change events to HTTP endpoints.
package webhook

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/edgeflare/sandman/pkg/httputil"
	"github.com/edgeflare/sandman/pkg/notify"
	"go.uber.org/zap"
)

// AuthType represents supported authentication methods
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeAPIKey AuthType = "apikey"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeBasic  AuthType = "basic"
)

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Type       AuthType `json:"type"`
	APIKey     string   `json:"apiKey,omitempty"`
	APIKeyName string   `json:"apiKeyName,omitempty"` // header, defaults to X-API-Key
	Username   string   `json:"username,omitempty"`
	Password   string   `json:"password,omitempty"`
	Token      string   `json:"token,omitempty"`
}

// RetryConfig holds retry settings for failed deliveries. Waits are Go
// duration strings.
type RetryConfig struct {
	MaxRetries  *uint64 `json:"maxRetries,omitempty"`
	InitialWait string  `json:"initialWait,omitempty"`
	MaxWait     string  `json:"maxWait,omitempty"`
}

// EndpointConfig represents configuration for a single endpoint
type EndpointConfig struct {
	Headers map[string]string `json:"headers,omitempty"`
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
}

// Config is the webhook sink configuration.
type Config struct {
	Auth      AuthConfig       `json:"auth"`
	Timeout   string           `json:"timeout,omitempty"`
	Endpoints []EndpointConfig `json:"endpoints"`
	Retry     RetryConfig      `json:"retry"`
}

// Sink delivers each event as a JSON body to every configured endpoint.
type Sink struct {
	logger    *zap.Logger
	auth      AuthConfig
	endpoints []EndpointConfig
	request   httputil.RequestConfig
	connected bool
}

func New(logger *zap.Logger) notify.Sink {
	return &Sink{logger: logger}
}

func (s *Sink) Connect(config json.RawMessage) error {
	var cfg Config
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("unmarshal webhook config: %w", err)
	}
	if len(cfg.Endpoints) == 0 {
		return errors.New("no endpoints configured")
	}

	req := httputil.DefaultRequestConfig(http.MethodPost, "")
	req.Logger = s.logger
	var err error
	if req.Timeout, err = duration(cfg.Timeout, 30*time.Second); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if req.InitialBackoff, err = duration(cfg.Retry.InitialWait, time.Second); err != nil {
		return fmt.Errorf("invalid retry.initialWait: %w", err)
	}
	if req.MaxBackoff, err = duration(cfg.Retry.MaxWait, 30*time.Second); err != nil {
		return fmt.Errorf("invalid retry.maxWait: %w", err)
	}
	if cfg.Retry.MaxRetries != nil {
		req.MaxRetries = *cfg.Retry.MaxRetries
		req.RetryEnabled = req.MaxRetries > 0
	}

	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].URL == "" {
			return fmt.Errorf("endpoint %d has no url", i)
		}
		if cfg.Endpoints[i].Method == "" {
			cfg.Endpoints[i].Method = http.MethodPost
		}
	}

	if cfg.Auth.Type == "" {
		cfg.Auth.Type = AuthTypeNone
	}
	switch cfg.Auth.Type {
	case AuthTypeNone:
	case AuthTypeAPIKey:
		if cfg.Auth.APIKey == "" {
			return errors.New("apikey authentication requires an apiKey")
		}
		if cfg.Auth.APIKeyName == "" {
			cfg.Auth.APIKeyName = "X-API-Key"
		}
	case AuthTypeBasic:
		if cfg.Auth.Username == "" || cfg.Auth.Password == "" {
			return errors.New("basic authentication requires both username and password")
		}
	case AuthTypeBearer:
		if cfg.Auth.Token == "" {
			return errors.New("bearer authentication requires a token")
		}
	default:
		return fmt.Errorf("unsupported auth type %q", cfg.Auth.Type)
	}

	s.request = req
	s.endpoints = cfg.Endpoints
	s.auth = cfg.Auth
	s.connected = true

	s.logger.Info("webhook sink initialized",
		zap.Int("num_endpoints", len(cfg.Endpoints)),
		zap.String("auth_type", string(cfg.Auth.Type)),
		zap.Duration("timeout", req.Timeout))
	return nil
}

// Publish sends e to every endpoint. A failing endpoint does not stop
// delivery to the others.
func (s *Sink) Publish(ctx context.Context, e notify.Event) error {
	if !s.connected {
		return notify.ErrNotConnected
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var errs []error
	for _, endpoint := range s.endpoints {
		req := s.request
		req.Method = endpoint.Method
		req.URL = endpoint.URL
		req.Headers = s.headers(endpoint)

		if _, err := httputil.Request(ctx, req, payload); err != nil {
			s.logger.Error("failed to send webhook", zap.String("endpoint", endpoint.URL), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", endpoint.URL, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Sink) Close() error {
	s.connected = false
	return nil
}

func (s *Sink) headers(endpoint EndpointConfig) map[string][]string {
	headers := make(map[string][]string, len(endpoint.Headers)+1)
	for key, value := range endpoint.Headers {
		headers[key] = []string{value}
	}

	switch s.auth.Type {
	case AuthTypeAPIKey:
		headers[s.auth.APIKeyName] = []string{s.auth.APIKey}
	case AuthTypeBasic:
		headers["Authorization"] = []string{"Basic " + basicAuth(s.auth.Username, s.auth.Password)}
	case AuthTypeBearer:
		headers["Authorization"] = []string{"Bearer " + s.auth.Token}
	}
	return headers
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

func duration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

func init() {
	notify.Register(notify.SinkHTTP, New)
}
