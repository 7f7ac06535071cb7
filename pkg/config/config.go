package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edgeflare/sandman/pkg/httputil/middleware"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// EnvPrefix prefixes environment overrides, eg SANDMAN_REST_LISTENADDR.
const EnvPrefix = "SANDMAN"

var (
	ErrNoConnString  = errors.New("config: rest.pg.connString is required")
	ErrSinkType      = errors.New("config: sink type is required")
	ErrDuplicateSink = errors.New("config: duplicate sink name")
)

// Config holds application-wide configuration
type Config struct {
	REST    RESTConfig    `mapstructure:"rest"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type RESTConfig struct {
	PG            PGConfig               `mapstructure:"pg"`
	ListenAddr    string                 `mapstructure:"listenAddr"`
	BaseURL       string                 `mapstructure:"baseURL"`
	Schema        string                 `mapstructure:"schema"`
	Inflect       bool                   `mapstructure:"inflect"`
	CollectionKey string                 `mapstructure:"collectionKey"`
	CORS          middleware.CORSOptions `mapstructure:"cors"`
}

type PGConfig struct {
	ConnString string `mapstructure:"connString"`
}

// NotifyConfig lists the sinks every change event is published to.
type NotifyConfig struct {
	Sinks []SinkConfig `mapstructure:"sinks"`
}

// SinkConfig configures one sink. Config is handed to the sink as JSON.
type SinkConfig struct {
	Name   string         `mapstructure:"name"`
	Type   string         `mapstructure:"type"`
	Config map[string]any `mapstructure:"config"`
}

// RawConfig encodes Config for notify.Open.
func (s SinkConfig) RawConfig() (json.RawMessage, error) {
	if len(s.Config) == 0 {
		return nil, nil
	}
	return json.Marshal(s.Config)
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

func DefaultRESTConfig() RESTConfig {
	cors := middleware.DefaultCORSOptions()
	return RESTConfig{
		ListenAddr: ":8080",
		Schema:     "public",
		CORS:       *cors,
	}
}

func setDefaults(v *viper.Viper) {
	rest := DefaultRESTConfig()
	v.SetDefault("rest.pg.connString", "")
	v.SetDefault("rest.listenAddr", rest.ListenAddr)
	v.SetDefault("rest.baseURL", "")
	v.SetDefault("rest.schema", rest.Schema)
	v.SetDefault("rest.inflect", false)
	v.SetDefault("rest.collectionKey", "")
	v.SetDefault("rest.cors.allowed_origins", rest.CORS.AllowedOrigins)
	v.SetDefault("rest.cors.allowed_methods", rest.CORS.AllowedMethods)
	v.SetDefault("rest.cors.allowed_headers", rest.CORS.AllowedHeaders)
	v.SetDefault("rest.cors.exposed_headers", rest.CORS.ExposedHeaders)
	v.SetDefault("rest.cors.allow_credentials", false)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9100")
}

// Load reads config from file or environment into v. Flags bound to v take
// precedence over both. A nil v uses a fresh viper instance.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("sandman")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	for i := range cfg.Notify.Sinks {
		if cfg.Notify.Sinks[i].Name == "" {
			cfg.Notify.Sinks[i].Name = cfg.Notify.Sinks[i].Type
		}
	}

	return &cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if c.REST.PG.ConnString == "" {
		return ErrNoConnString
	}
	seen := make(map[string]bool, len(c.Notify.Sinks))
	for i, s := range c.Notify.Sinks {
		if s.Type == "" {
			return fmt.Errorf("%w: sinks[%d]", ErrSinkType, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateSink, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
