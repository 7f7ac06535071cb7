// Package nats provides a sink that publishes change events to a NATS
// JetStream stream.
//
// Subjects follow prefix.endpoint.op, eg sandman.books.create, and the
// stream captures prefix.>.
package nats

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/edgeflare/sandman/pkg/notify"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Config represents NATS configuration
type Config struct {
	Servers       []string         `json:"servers"`
	Stream        string           `json:"stream"`
	SubjectPrefix string           `json:"subjectPrefix"`
	Username      string           `json:"username,omitempty"`
	Password      string           `json:"password,omitempty"`
	TLS           notify.TLSConfig `json:"tls,omitempty"`
}

// DefaultSubjectPrefix is used when the configuration names none.
const DefaultSubjectPrefix = "sandman"

// Sink publishes events to JetStream.
type Sink struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
	config Config
}

func New(logger *zap.Logger) notify.Sink {
	return &Sink{logger: logger}
}

func (c *Config) setDefaults() {
	if len(c.Servers) == 0 {
		c.Servers = []string{nats.DefaultURL}
	}
	c.SubjectPrefix = cmp.Or(c.SubjectPrefix, DefaultSubjectPrefix)
	c.Stream = cmp.Or(c.Stream, strings.ReplaceAll(c.SubjectPrefix, ".", "_")+"-events")
}

// Connect establishes a connection to the NATS server and ensures the stream exists.
func (s *Sink) Connect(config json.RawMessage) error {
	if len(config) > 0 {
		if err := json.Unmarshal(config, &s.config); err != nil {
			return fmt.Errorf("unmarshal NATS config: %w", err)
		}
	}
	s.config.setDefaults()

	opts, err := s.options()
	if err != nil {
		return err
	}

	nc, err := nats.Connect(strings.Join(s.config.Servers, ","), opts...)
	if err != nil {
		return fmt.Errorf("connect to NATS server: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("create JetStream context: %w", err)
	}
	s.nc, s.js = nc, js

	if err := s.ensureStream(); err != nil {
		s.Close()
		return fmt.Errorf("ensure stream: %w", err)
	}
	return nil
}

// Subject returns the subject e is published on.
func (s *Sink) Subject(e notify.Event) string {
	return e.Subject(s.config.SubjectPrefix, ".")
}

func (s *Sink) Publish(ctx context.Context, e notify.Event) error {
	if s.js == nil {
		return notify.ErrNotConnected
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := nats.NewMsg(s.Subject(e))
	msg.Data = data
	msg.Header.Set("Sandman-Uri", e.URI)
	if _, err := s.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (s *Sink) Close() error {
	if s.nc == nil {
		return nil
	}
	err := s.nc.Drain()
	s.nc, s.js = nil, nil
	return err
}

func (s *Sink) ensureStream() error {
	config := &nats.StreamConfig{
		Name:     s.config.Stream,
		Subjects: []string{s.config.SubjectPrefix + ".>"},
		Storage:  nats.FileStorage,
		Replicas: 1,
	}

	info, err := s.js.StreamInfo(config.Name)
	if err == nil {
		if !slices.Equal(info.Config.Subjects, config.Subjects) {
			if _, err = s.js.UpdateStream(config); err != nil {
				return fmt.Errorf("update stream: %w", err)
			}
			s.logger.Info("updated stream", zap.String("stream", config.Name))
		}
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("get stream info: %w", err)
	}

	if _, err := s.js.AddStream(config); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	s.logger.Info("created stream", zap.String("stream", config.Name))
	return nil
}

func (s *Sink) options() ([]nats.Option, error) {
	opts := []nats.Option{
		nats.Name("sandman"),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.Info("reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if s.config.Username != "" {
		opts = append(opts, nats.UserInfo(s.config.Username, s.config.Password))
	}

	tlsConfig, err := s.config.TLS.Load()
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		opts = append(opts, nats.Secure(tlsConfig))
	}
	return opts, nil
}

func init() {
	notify.Register(notify.SinkNATS, New)
}
