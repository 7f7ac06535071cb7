package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Publisher accepts change events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// A Sink is a Publisher with a connection lifecycle.
type Sink interface {
	Publisher
	// Connect initializes the sink with its JSON configuration.
	Connect(config json.RawMessage) error
	Close() error
}

// Factory creates an unconnected sink.
type Factory func(logger *zap.Logger) Sink

// Predefined sinks
const (
	SinkDebug = "debug"
	SinkHTTP  = "http"
	SinkKafka = "kafka"
	SinkMQTT  = "mqtt"
	SinkNATS  = "nats"
)

var (
	ErrUnknownSink  = errors.New("notify: unknown sink")
	ErrNotConnected = errors.New("notify: sink not connected")

	factories = make(map[string]Factory)
	mu        sync.RWMutex
)

// Register makes a sink available to Open under name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Sinks returns the registered sink names, sorted.
func Sinks() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open creates the sink registered under name and connects it.
func Open(name string, logger *zap.Logger, config json.RawMessage) (Sink, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSink, name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sink := f(logger.With(zap.String("sink", name)))
	if err := sink.Connect(config); err != nil {
		return nil, fmt.Errorf("notify: connect %s: %w", name, err)
	}
	return sink, nil
}
