package httputil

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Middleware wraps an http.Handler to modify or enhance its behavior.
type Middleware func(http.Handler) http.Handler

// RouterOptions configures a Router.
type RouterOptions func(*Router)

// Router registers handlers on a Go 1.22 ServeMux with a middleware stack
// and owns the http.Server that serves them.
type Router struct {
	mux        *http.ServeMux
	server     *http.Server
	logger     *zap.Logger
	prefix     string
	middleware []Middleware
	mu         sync.RWMutex
}

// NewRouter creates a new instance of Router with the given options.
func NewRouter(opts ...RouterOptions) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		server: &http.Server{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithServerOptions applies custom http.Server options.
func WithServerOptions(opts ...func(*http.Server)) RouterOptions {
	return func(r *Router) {
		for _, opt := range opts {
			opt(r.server)
		}
	}
}

// WithLogger sets the logger for server lifecycle messages.
func WithLogger(logger *zap.Logger) RouterOptions {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Use adds middleware to the router. Middleware applies, in the order it was
// added, to handlers registered after the call.
func (r *Router) Use(mw Middleware, additional ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
	r.middleware = append(r.middleware, additional...)
}

// Group creates a sub-router with a path prefix. It inherits the middleware
// of its parent; middleware added to the group stays in the group.
func (r *Router) Group(prefix string) *Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Router{
		mux:        r.mux,
		server:     r.server,
		logger:     r.logger,
		middleware: slices.Clone(r.middleware),
		prefix:     r.prefix + prefix,
	}
}

// Handle registers handler for "METHOD /pattern" or, matching every method,
// "/pattern". On a group with prefix /p, "GET /x" resolves to "GET /p/x".
func (r *Router) Handle(pattern string, handler http.Handler) {
	method, path, found := strings.Cut(pattern, " ")
	if !found {
		method, path = "", pattern
	}
	if !strings.HasPrefix(path, "/") {
		panic(fmt.Sprintf("httputil: invalid pattern %q", pattern))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	final := handler
	for i := len(r.middleware) - 1; i >= 0; i-- {
		final = r.middleware[i](final)
	}

	full := r.prefix + path
	if method != "" {
		full = method + " " + full
	}
	r.mux.Handle(full, final)
}

// HandleFunc is Handle for a handler function.
func (r *Router) HandleFunc(pattern string, fn http.HandlerFunc) {
	r.Handle(pattern, fn)
}

// Handler returns the mux every route is registered on.
func (r *Router) Handler() http.Handler {
	return r.mux
}

// ListenAndServe serves the registered routes on addr until Shutdown.
func (r *Router) ListenAndServe(addr string) error {
	fmt.Print(colorGreen + sandmanASCIIArt + colorReset)
	r.logger.Info("starting server", zap.String("addr", addr))

	r.server.Addr = addr
	r.server.Handler = r.mux
	return r.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (r *Router) Shutdown(ctx context.Context) error {
	r.logger.Info("shutting down server")
	return r.server.Shutdown(ctx)
}

const (
	colorGreen      = "\033[32m"
	colorReset      = "\033[0m"
	sandmanASCIIArt = `
                     _
 ___  __ _ _ __   __| |_ __ ___   __ _ _ __
/ __|/ _' | '_ \ / _' | '_ ' _ \ / _' | '_ \
\__ \ (_| | | | | (_| | | | | | | (_| | | | |
|___/\__,_|_| |_|\__,_|_| |_| |_|\__,_|_| |_|

`
)
