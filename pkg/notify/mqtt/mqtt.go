// Package mqtt provides a sink that publishes change events to an MQTT
// broker on topics prefix/endpoint/op.
package mqtt

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/edgeflare/sandman/pkg/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTopicPrefix is used when the configuration names none.
const DefaultTopicPrefix = "sandman"

// Config is the MQTT sink configuration.
type Config struct {
	Servers     []string         `json:"servers"`
	ClientID    string           `json:"clientId,omitempty"`
	Username    string           `json:"username,omitempty"`
	Password    string           `json:"password,omitempty"`
	TopicPrefix string           `json:"topicPrefix"`
	QoS         byte             `json:"qos"`
	Retained    bool             `json:"retained"`
	TLS         notify.TLSConfig `json:"tls,omitempty"`
}

func (c *Config) setDefaults() {
	if len(c.Servers) == 0 {
		c.Servers = []string{"tcp://127.0.0.1:1883"}
	}
	c.TopicPrefix = cmp.Or(c.TopicPrefix, DefaultTopicPrefix)
	c.ClientID = cmp.Or(c.ClientID, "sandman-"+uuid.NewString()[:8])
}

// Sink publishes events with a paho client.
type Sink struct {
	client mqtt.Client
	logger *zap.Logger
	config Config
}

func New(logger *zap.Logger) notify.Sink {
	return &Sink{logger: logger}
}

func (s *Sink) Connect(config json.RawMessage) error {
	if len(config) > 0 {
		if err := json.Unmarshal(config, &s.config); err != nil {
			return fmt.Errorf("unmarshal MQTT config: %w", err)
		}
	}
	s.config.setDefaults()
	if s.config.QoS > 2 {
		return fmt.Errorf("invalid qos %d", s.config.QoS)
	}

	opts, err := s.clientOptions()
	if err != nil {
		return err
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("broker connection error: %w", token.Error())
	}
	s.client = client
	return nil
}

// Topic returns the topic e is published on.
func (s *Sink) Topic(e notify.Event) string {
	return e.Subject(s.config.TopicPrefix, "/")
}

func (s *Sink) Publish(ctx context.Context, e notify.Event) error {
	if s.client == nil {
		return notify.ErrNotConnected
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := s.Topic(e)
	token := s.client.Publish(topic, s.config.QoS, s.config.Retained, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish error: %w", err)
	}
	s.logger.Debug("message published", zap.String("topic", topic))
	return nil
}

func (s *Sink) Close() error {
	if s.client == nil {
		return nil
	}
	s.client.Disconnect(250)
	s.client = nil
	s.logger.Info("disconnected from MQTT broker")
	return nil
}

func (s *Sink) clientOptions() (*mqtt.ClientOptions, error) {
	if len(s.config.Servers) == 0 {
		return nil, errors.New("no servers configured")
	}
	opts := mqtt.NewClientOptions()
	for _, server := range s.config.Servers {
		opts.AddBroker(server)
	}
	opts.SetClientID(s.config.ClientID)
	if s.config.Username != "" {
		opts.SetUsername(s.config.Username)
		opts.SetPassword(s.config.Password)
	}

	tlsConfig, err := s.config.TLS.Load()
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("MQTT connection lost", zap.Error(err))
	})
	return opts, nil
}

func init() {
	notify.Register(notify.SinkMQTT, New)
}
