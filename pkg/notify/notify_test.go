package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/edgeflare/sandman/pkg/metrics"
	"github.com/edgeflare/sandman/pkg/resource"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	events     []Event
	config     json.RawMessage
	publishErr error
	closed     bool
}

func (s *recordingSink) Connect(config json.RawMessage) error {
	if string(config) == `"fail"` {
		return errors.New("refused")
	}
	s.config = config
	return nil
}

func (s *recordingSink) Publish(_ context.Context, e Event) error {
	if s.publishErr != nil {
		return s.publishErr
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestEventSubject(t *testing.T) {
	e := NewEvent(OpCreate, "books", "/books/1", resource.Representation{"id": 1})
	assert.False(t, e.Time.IsZero())
	assert.Equal(t, "sandman.books.create", e.Subject("sandman", "."))
	assert.Equal(t, "books/create", e.Subject("", "/"))

	e.Endpoint = "shop/books"
	assert.Equal(t, "x/shop_books/create", e.Subject("x", "/"))
}

func TestEventJSON(t *testing.T) {
	e := NewEvent(OpDelete, "books", "/books/1", nil)
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "delete", m["op"])
	assert.NotContains(t, m, "resource")
}

func TestOpen(t *testing.T) {
	sink := &recordingSink{}
	Register("recording", func(*zap.Logger) Sink { return sink })
	assert.Contains(t, Sinks(), "recording")

	opened, err := Open("recording", nil, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Same(t, sink, opened)
	assert.JSONEq(t, `{"a":1}`, string(sink.config))

	_, err = Open("recording", nil, json.RawMessage(`"fail"`))
	assert.ErrorContains(t, err, "refused")

	_, err = Open("carrier-pigeon", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownSink)
}

func TestMulti(t *testing.T) {
	good, bad := &recordingSink{}, &recordingSink{publishErr: errors.New("down")}
	m := NewMulti()
	m.Add("multi-bad", bad)
	m.Add("multi-good", good)
	assert.Equal(t, 2, m.Len())

	published := testutil.ToFloat64(metrics.PublishedEvents.WithLabelValues("multi-good"))
	failed := testutil.ToFloat64(metrics.PublishErrors.WithLabelValues("multi-bad"))

	err := m.Publish(context.Background(), NewEvent(OpUpdate, "books", "/books/1", nil))
	require.Error(t, err)
	assert.ErrorContains(t, err, "multi-bad: down")
	assert.Len(t, good.events, 1)

	assert.Equal(t, published+1, testutil.ToFloat64(metrics.PublishedEvents.WithLabelValues("multi-good")))
	assert.Equal(t, failed+1, testutil.ToFloat64(metrics.PublishErrors.WithLabelValues("multi-bad")))

	require.NoError(t, m.Close())
	assert.True(t, good.closed)
	assert.True(t, bad.closed)
	assert.Equal(t, 0, m.Len())
}

func TestTLSConfigLoad(t *testing.T) {
	cfg, err := TLSConfig{}.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg)

	cfg, err = TLSConfig{Enable: true, SkipVerify: true}.Load()
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)

	_, err = TLSConfig{Enable: true, KeyFile: "key.pem"}.Load()
	assert.Error(t, err)

	_, err = TLSConfig{Enable: true, CAFile: "/does/not/exist"}.Load()
	assert.Error(t, err)
}
