// Package debug provides a sink that logs change events.
package debug

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/edgeflare/sandman/pkg/notify"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level events are logged at. Defaults to info.
type Config struct {
	Level string `json:"level"`
}

// Sink logs every event it receives.
type Sink struct {
	logger *zap.Logger
	level  zapcore.Level
}

func New(logger *zap.Logger) notify.Sink {
	return &Sink{logger: logger, level: zapcore.InfoLevel}
}

func (s *Sink) Connect(config json.RawMessage) error {
	if len(config) == 0 {
		return nil
	}
	var cfg Config
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("unmarshal debug config: %w", err)
	}
	if cfg.Level == "" {
		return nil
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	s.level = level
	return nil
}

func (s *Sink) Publish(_ context.Context, e notify.Event) error {
	s.logger.Log(s.level, "resource changed",
		zap.String("op", string(e.Op)),
		zap.String("endpoint", e.Endpoint),
		zap.String("uri", e.URI),
		zap.Any("resource", e.Resource),
		zap.Time("time", e.Time),
	)
	return nil
}

func (s *Sink) Close() error {
	_ = s.logger.Sync()
	return nil
}

func init() {
	notify.Register(notify.SinkDebug, New)
}
