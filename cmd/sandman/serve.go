package sandman

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edgeflare/sandman/pkg/config"
	"github.com/edgeflare/sandman/pkg/httputil"
	mw "github.com/edgeflare/sandman/pkg/httputil/middleware"
	"github.com/edgeflare/sandman/pkg/metrics"
	"github.com/edgeflare/sandman/pkg/notify"
	pg "github.com/edgeflare/sandman/pkg/pgx"
	"github.com/edgeflare/sandman/pkg/pgx/schema"
	"github.com/edgeflare/sandman/pkg/resource"
	"github.com/edgeflare/sandman/pkg/rest"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	// Register built-in sinks
	_ "github.com/edgeflare/sandman/pkg/notify/debug"
	_ "github.com/edgeflare/sandman/pkg/notify/kafka"
	_ "github.com/edgeflare/sandman/pkg/notify/mqtt"
	_ "github.com/edgeflare/sandman/pkg/notify/nats"
	_ "github.com/edgeflare/sandman/pkg/notify/webhook"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"rest"},
	Short:   "Start the REST API server",
	Long: `Starts a REST API server exposing every table with a primary key as a
resource. Tables are reloaded when the schema changes.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("listen-addr", "l", "", "REST server listen address")
	f.String("base-url", "", "public base URL of the API, used in the OpenAPI document")
	f.String("collection-key", "", "top-level key of collection responses")
	f.Bool("metrics", true, "serve Prometheus metrics")
	f.String("metrics-addr", "", "Prometheus metrics listen address")

	viper.BindPFlag("rest.listenAddr", f.Lookup("listen-addr"))
	viper.BindPFlag("rest.baseURL", f.Lookup("base-url"))
	viper.BindPFlag("rest.collectionKey", f.Lookup("collection-key"))
	viper.BindPFlag("metrics.enabled", f.Lookup("metrics"))
	viper.BindPFlag("metrics.addr", f.Lookup("metrics-addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{Logger: logger, Addr: cfg.Metrics.Addr})
	}

	pools := pg.NewPoolManager(pg.WithPoolLogger(logger))
	defer pools.Close()
	if err := pools.Add(ctx, pg.Pool{Name: "default", ConnString: cfg.REST.PG.ConnString, Schema: cfg.REST.Schema}); err != nil {
		return err
	}
	store, err := pools.Active()
	if err != nil {
		return err
	}

	pool, err := pools.Get("default")
	if err != nil {
		return err
	}
	cache := schema.NewCacheFromPool(pool,
		schema.WithLogger(logger),
		schema.WithSchemas(cfg.REST.Schema),
	)
	if err := cache.Init(ctx); err != nil {
		cache.Close()
		return err
	}
	defer cache.Close()

	sinks, err := openSinks(cfg.Notify.Sinks)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Error("close sinks", zap.Error(err))
		}
	}()

	opts := resourceOptions(cfg.REST)
	server := rest.NewServer(store,
		rest.WithLogger(logger),
		rest.WithPublisher(sinks),
		rest.WithOpenAPI(openAPI(cache, cfg.REST)),
	)
	register := func(tables []schema.Table) {
		endpoints := server.RegisterTables(tables, opts...)
		logger.Info("resources registered", zap.String("schema", cfg.REST.Schema), zap.Strings("endpoints", endpoints))
	}
	register(cache.Tables(cfg.REST.Schema))

	wg.Add(1)
	go func() {
		defer wg.Done()
		for snap := range cache.Watch() {
			register(schema.TablesOf(snap, cfg.REST.Schema))
		}
	}()

	r := httputil.NewRouter(httputil.WithLogger(logger), httputil.WithServerOptions(func(s *http.Server) {
		s.ReadHeaderTimeout = 5 * time.Second
	}))
	r.Use(
		mw.RequestID,
		mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}),
		mw.CORSWithOptions(&cfg.REST.CORS),
		mw.Metrics,
	)
	server.Mount(r)

	errCh := make(chan error, 1)
	go func() {
		if err := r.ListenAndServe(cfg.REST.ListenAddr); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received termination signal, shutting down")
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// openSinks connects every configured sink. Sinks already opened are closed
// when a later one fails.
func openSinks(sinks []config.SinkConfig) (*notify.Multi, error) {
	multi := notify.NewMulti()
	for _, s := range sinks {
		raw, err := s.RawConfig()
		if err == nil {
			var sink notify.Sink
			if sink, err = notify.Open(s.Type, logger, raw); err == nil {
				multi.Add(s.Name, sink)
				logger.Info("sink connected", zap.String("name", s.Name), zap.String("type", s.Type))
				continue
			}
		}
		return nil, errors.Join(fmt.Errorf("sink %s: %w", s.Name, err), multi.Close())
	}
	return multi, nil
}

func openAPI(cache *schema.Cache, rc config.RESTConfig) *schema.OpenAPIGenerator {
	g := schema.NewOpenAPIGenerator(cache, rc.Schema, rc.BaseURL, schema.OpenAPIInfo{
		Title:       "sandman",
		Description: fmt.Sprintf("Resources of PostgreSQL schema %s", rc.Schema),
		Version:     config.Version,
	})
	if rc.Inflect {
		g.WithEndpoint(resource.InflectedEndpoint)
	}
	if rc.CollectionKey != "" {
		g.WithCollectionKey(rc.CollectionKey)
	}
	return g
}
