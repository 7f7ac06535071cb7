package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/edgeflare/sandman/pkg/metrics"
)

type namedSink struct {
	name string
	sink Sink
}

// Multi publishes every event to each of its sinks in turn.
type Multi struct {
	sinks []namedSink
	mu    sync.RWMutex
}

// NewMulti returns an empty fan-out.
func NewMulti() *Multi {
	return &Multi{}
}

// Add appends a sink. name labels its metrics and errors.
func (m *Multi) Add(name string, sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, namedSink{name: name, sink: sink})
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks)
}

// Publish delivers e to every sink, even after one fails.
func (m *Multi) Publish(ctx context.Context, e Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for _, s := range m.sinks {
		if err := s.sink.Publish(ctx, e); err != nil {
			metrics.PublishErrors.WithLabelValues(s.name).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		metrics.PublishedEvents.WithLabelValues(s.name).Inc()
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m *Multi) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, s := range m.sinks {
		if err := s.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	m.sinks = nil
	return errors.Join(errs...)
}
