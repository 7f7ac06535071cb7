package metrics

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandman_http_requests_total",
			Help: "Total number of HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sandman_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	ResourceOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandman_resource_operations_total",
			Help: "Total number of successful resource operations by endpoint and operation",
		},
		[]string{"endpoint", "op"},
	)

	PublishedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandman_published_events_total",
			Help: "Total number of change events published by sink",
		},
		[]string{"sink"},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandman_publish_errors_total",
			Help: "Total number of publish errors by sink",
		},
		[]string{"sink"},
	)

	SchemaReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandman_schema_reloads_total",
			Help: "Total number of schema cache reloads by result",
		},
		[]string{"result"},
	)
)

type PromServerOpts struct {
	Logger            *zap.Logger
	Addr              string
	Path              string        // Path for metrics endpoint, defaults to "/metrics"
	ShutdownTimeout   time.Duration // Timeout for server shutdown, defaults to 5 seconds
	ReadHeaderTimeout time.Duration // Timeout for reading request headers, defaults to 3 seconds
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Logger:            zap.NewNop(),
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// StartPrometheusServer serves the default registry until ctx is canceled.
// wg is done once the server has shut down.
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) {
	o := defaultPrometheusServerOptions()
	if opts != nil {
		o.Addr = cmp.Or(opts.Addr, o.Addr)
		o.Path = cmp.Or(opts.Path, o.Path)
		o.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, o.ShutdownTimeout)
		o.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, o.ReadHeaderTimeout)
		if opts.Logger != nil {
			o.Logger = opts.Logger
		}
	}
	log := o.Logger.With(zap.String("addr", o.Addr))

	mux := http.NewServeMux()
	mux.Handle(o.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              o.Addr,
		Handler:           mux,
		ReadHeaderTimeout: o.ReadHeaderTimeout,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("starting metrics server")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown", zap.Error(err))
			return
		}
		log.Info("metrics server stopped")
	}()
}
