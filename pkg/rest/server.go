package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/edgeflare/sandman/pkg/httputil"
	"github.com/edgeflare/sandman/pkg/httputil/middleware"
	"github.com/edgeflare/sandman/pkg/metrics"
	"github.com/edgeflare/sandman/pkg/notify"
	pg "github.com/edgeflare/sandman/pkg/pgx"
	"github.com/edgeflare/sandman/pkg/pgx/schema"
	"github.com/edgeflare/sandman/pkg/resource"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

var (
	ErrDuplicateEndpoint = errors.New("rest: endpoint already registered")
	ErrInvalidEndpoint   = errors.New("rest: endpoint must be a single non-empty path segment")
)

// Store persists rows. *pgx.Store is the production implementation.
type Store interface {
	List(ctx context.Context, table resource.Table, q pg.Query) ([]resource.Row, error)
	Get(ctx context.Context, table resource.Table, keys map[string]any) (resource.Row, error)
	Insert(ctx context.Context, table resource.Table, row resource.Row) (resource.Row, error)
	Update(ctx context.Context, table resource.Table, keys map[string]any, row resource.Row) (resource.Row, error)
	Upsert(ctx context.Context, table resource.Table, row resource.Row) (resource.Row, bool, error)
	Delete(ctx context.Context, table resource.Table, keys map[string]any) error
}

// Server exposes registered resources over HTTP.
type Server struct {
	store     Store
	logger    *zap.Logger
	publisher notify.Publisher
	openapi   http.Handler
	typed     map[string]binding
	dynamic   map[string]binding
	mu        sync.RWMutex
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPublisher announces every successful mutation to p.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Server) {
		s.publisher = p
	}
}

// WithOpenAPI serves h at GET /openapi.json.
func WithOpenAPI(h http.Handler) Option {
	return func(s *Server) {
		s.openapi = h
	}
}

func NewServer(store Store, opts ...Option) *Server {
	s := &Server{
		store:   store,
		logger:  zap.NewNop(),
		typed:   make(map[string]binding),
		dynamic: make(map[string]binding),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register serves the resources of m. Endpoints registered this way take
// precedence over tables registered with RegisterTables.
func Register[T any](s *Server, m *resource.Mapper[T]) error {
	endpoint := m.Endpoint()
	if endpoint == "" || strings.Contains(endpoint, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.typed[endpoint]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEndpoint, endpoint)
	}
	s.typed[endpoint] = mapped[T]{m}
	return nil
}

// RegisterTables replaces the tables served as resource.Row resources.
// Tables without a primary key cannot be addressed and are skipped. It
// returns the endpoints now served for tables.
func (s *Server) RegisterTables(tables []schema.Table, opts ...resource.Option) []string {
	next := make(map[string]binding, len(tables))
	for _, t := range tables {
		if len(t.PrimaryKeys) == 0 {
			s.logger.Debug("skipping table without primary key", zap.String("table", t.FullName()))
			continue
		}
		m, err := resource.NewRowMapper(t.Descriptor(), opts...)
		if err != nil {
			s.logger.Warn("skipping table", zap.String("table", t.FullName()), zap.Error(err))
			continue
		}
		endpoint := m.Endpoint()
		if endpoint == "" || strings.Contains(endpoint, "/") {
			s.logger.Warn("skipping table", zap.String("table", t.FullName()), zap.Error(ErrInvalidEndpoint))
			continue
		}
		if prev, ok := next[endpoint]; ok {
			s.logger.Warn("endpoint already taken",
				zap.String("endpoint", endpoint),
				zap.String("table", t.FullName()),
				zap.String("taken_by", prev.Name()))
			continue
		}
		next[endpoint] = mapped[resource.Row]{m}
	}

	s.mu.Lock()
	s.dynamic = next
	s.mu.Unlock()

	return slices.Sorted(maps.Keys(next))
}

// Endpoints returns every endpoint served, sorted.
func (s *Server) Endpoints() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := maps.Clone(s.dynamic)
	maps.Copy(all, s.typed)
	return slices.Sorted(maps.Keys(all))
}

func (s *Server) lookup(endpoint string) (binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.typed[endpoint]; ok {
		return b, true
	}
	b, ok := s.dynamic[endpoint]
	return b, ok
}

// Mount registers the resource routes on r.
func (s *Server) Mount(r *httputil.Router) {
	r.HandleFunc("GET /{$}", s.index)
	if s.openapi != nil {
		r.Handle("GET /openapi.json", s.openapi)
	}
	r.HandleFunc("/{endpoint}", s.collection)
	r.HandleFunc("/{endpoint}/{keys...}", s.record)
}

// Handler returns the resource routes without any middleware.
func (s *Server) Handler() http.Handler {
	r := httputil.NewRouter()
	s.Mount(r)
	return r.Handler()
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	index := make(map[string]map[string]string)
	for _, endpoint := range s.Endpoints() {
		index[endpoint] = map[string]string{
			"link": "/" + endpoint,
			"meta": "/" + endpoint + "/meta",
		}
	}
	httputil.JSON(w, http.StatusOK, index)
}

var (
	collectionMethods = []string{http.MethodGet, http.MethodPost}
	recordMethods     = []string{http.MethodGet, http.MethodPatch, http.MethodPut, http.MethodDelete}
)

// allowed intersects the methods a route implements with those b permits.
func allowed(b binding, route []string) []string {
	var methods []string
	for _, m := range route {
		if b.Allows(m) {
			methods = append(methods, m)
		}
	}
	return methods
}

// keySegments splits the key part of the escaped request path and unescapes
// each segment, so an escaped "/" stays inside its key value.
func keySegments(r *http.Request) ([]string, error) {
	escaped := r.URL.EscapedPath()
	prefix := "/" + url.PathEscape(r.PathValue("endpoint")) + "/"
	i := strings.Index(escaped, prefix)
	if i < 0 {
		return strings.Split(strings.TrimSuffix(r.PathValue("keys"), "/"), "/"), nil
	}
	parts := strings.Split(strings.TrimSuffix(escaped[i+len(prefix):], "/"), "/")
	for j, p := range parts {
		v, err := url.PathUnescape(p)
		if err != nil {
			return nil, fmt.Errorf("invalid key segment %q: %w", p, err)
		}
		parts[j] = v
	}
	return parts, nil
}

func requestMethod(r *http.Request) string {
	if r.Method == http.MethodHead {
		return http.MethodGet
	}
	return r.Method
}

func methodNotAllowed(w http.ResponseWriter, methods []string) {
	w.Header().Set("Allow", strings.Join(methods, ", "))
	httputil.Error(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
}

func (s *Server) collection(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookup(r.PathValue("endpoint"))
	if !ok {
		httputil.Error(w, http.StatusNotFound, "unknown endpoint")
		return
	}

	methods := allowed(b, collectionMethods)
	method := requestMethod(r)
	if !slices.Contains(methods, method) {
		methodNotAllowed(w, methods)
		return
	}

	switch method {
	case http.MethodGet:
		s.list(w, r, b)
	case http.MethodPost:
		s.create(w, r, b)
	}
}

func (s *Server) record(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.PathValue("keys"), "/")
	if path == "" {
		s.collection(w, r)
		return
	}

	b, ok := s.lookup(r.PathValue("endpoint"))
	if !ok {
		httputil.Error(w, http.StatusNotFound, "unknown endpoint")
		return
	}

	method := requestMethod(r)
	if path == "meta" && method == http.MethodGet {
		httputil.JSON(w, http.StatusOK, b.Meta())
		return
	}

	methods := allowed(b, recordMethods)
	if !slices.Contains(methods, method) {
		methodNotAllowed(w, methods)
		return
	}

	segments, err := keySegments(r)
	if err != nil {
		s.fail(w, r, badRequest(err))
		return
	}
	keys, byName, err := pathKeys(b.Table(), segments)
	if err != nil {
		s.fail(w, r, badRequest(err))
		return
	}

	switch method {
	case http.MethodGet:
		s.get(w, r, b, byName)
	case http.MethodPatch:
		s.patch(w, r, b, byName)
	case http.MethodPut:
		s.put(w, r, b, keys)
	case http.MethodDelete:
		s.delete(w, r, b, byName)
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, b binding) {
	table := b.Table()
	q, err := parseQuery(r.URL.Query(), table)
	if err != nil {
		s.fail(w, r, badRequest(err))
		return
	}

	rows, err := s.store.List(r.Context(), table, q)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	reps := make([]resource.Representation, 0, len(rows))
	for _, row := range rows {
		rep, err := b.represent(row)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		reps = append(reps, project(rep, q.Select))
	}

	s.count(b, "list")
	httputil.JSON(w, http.StatusOK, map[string]any{b.CollectionKey(): reps})
}

// project keeps only the selected columns and the links.
func project(rep resource.Representation, selected []string) resource.Representation {
	if len(selected) == 0 {
		return rep
	}
	out := make(resource.Representation, len(selected)+1)
	for _, col := range selected {
		out[col] = rep[col]
	}
	out[resource.LinksKey] = rep[resource.LinksKey]
	return out
}

func (s *Server) get(w http.ResponseWriter, r *http.Request, b binding, keys map[string]any) {
	row, err := s.store.Get(r.Context(), b.Table(), keys)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := b.represent(row)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.count(b, "read")
	httputil.JSON(w, http.StatusOK, rep)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, b binding) {
	body, err := decodeBody(w, r, b.Table())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	row, err := b.create(body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stored, err := s.store.Insert(r.Context(), b.Table(), row)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := b.represent(stored)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Location", selfURI(rep))
	s.changed(r, b, notify.OpCreate, rep)
	s.respond(w, r, http.StatusCreated, rep)
}

// patch is a partial update: columns the body leaves out keep their values.
func (s *Server) patch(w http.ResponseWriter, r *http.Request, b binding, keys map[string]any) {
	body, err := decodeBody(w, r, b.Table())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stored, err := s.store.Get(r.Context(), b.Table(), keys)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	row, err := b.patch(stored, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	updated := stored
	if len(row) > 0 {
		if updated, err = s.store.Update(r.Context(), b.Table(), keys, row); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	rep, err := b.represent(updated)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if len(row) > 0 {
		s.changed(r, b, notify.OpUpdate, rep)
	}
	s.respond(w, r, http.StatusOK, rep)
}

// put replaces the whole resource: columns the body leaves out are reset.
// The keys in the path win over keys in the body.
func (s *Server) put(w http.ResponseWriter, r *http.Request, b binding, keys []any) {
	body, err := decodeBody(w, r, b.Table())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	row, err := b.replace(keys, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stored, created, err := s.store.Upsert(r.Context(), b.Table(), row)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := b.represent(stored)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	status, op := http.StatusOK, notify.OpReplace
	if created {
		status, op = http.StatusCreated, notify.OpCreate
		w.Header().Set("Location", selfURI(rep))
	}
	s.changed(r, b, op, rep)
	s.respond(w, r, status, rep)
}

// delete announces the last stored state of the resource.
func (s *Server) delete(w http.ResponseWriter, r *http.Request, b binding, keys map[string]any) {
	stored, err := s.store.Get(r.Context(), b.Table(), keys)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := b.represent(stored)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.Delete(r.Context(), b.Table(), keys); err != nil {
		s.fail(w, r, err)
		return
	}

	s.changed(r, b, notify.OpDelete, rep)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, rep resource.Representation) {
	if parsePrefer(r).Minimal() {
		w.Header().Set("Preference-Applied", "return=minimal")
		w.WriteHeader(status)
		return
	}
	httputil.JSON(w, status, rep)
}

func (s *Server) count(b binding, op string) {
	metrics.ResourceOperations.WithLabelValues(b.Endpoint(), op).Inc()
}

// changed counts a mutation and publishes it. Publish failures are logged
// and never reach the client.
func (s *Server) changed(r *http.Request, b binding, op notify.Op, rep resource.Representation) {
	s.count(b, string(op))
	if s.publisher == nil {
		return
	}
	ctx := context.WithoutCancel(r.Context())
	e := notify.NewEvent(op, b.Endpoint(), selfURI(rep), rep)
	if err := s.publisher.Publish(ctx, e); err != nil {
		middleware.LogEntry(r.Context(), s.logger).Warn("failed to publish event",
			zap.String("endpoint", e.Endpoint),
			zap.String("op", string(op)),
			zap.Error(err))
	}
}

func selfURI(rep resource.Representation) string {
	for _, l := range rep.Links() {
		if l.Rel == resource.RelSelf {
			return l.URI
		}
	}
	return ""
}

// decodeBody reads a JSON object. Numbers are converted to the Go type the
// target column expects; an empty body is an empty object.
func decodeBody(w http.ResponseWriter, r *http.Request, table resource.Table) (map[string]any, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.UseNumber()

	body := make(map[string]any)
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, badRequest(fmt.Errorf("invalid JSON body: %w", err))
	}
	if err := normalizeNumbers(table, body); err != nil {
		return nil, badRequest(err)
	}
	return body, nil
}

// requestError marks an error caused by the request rather than the server.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{err: err}
}

// statusOf maps an error to the HTTP status it is reported with.
func statusOf(err error) int {
	var (
		reqErr   *requestError
		fieldErr *resource.FieldError
		pgErr    *pgconn.PgError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pg.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &reqErr), errors.As(err, &fieldErr),
		errors.Is(err, resource.ErrKeyCount), errors.Is(err, pg.ErrMissingKey), errors.Is(err, pg.ErrNoColumns):
		return http.StatusBadRequest
	case errors.As(err, &pgErr):
		switch pgErr.Code {
		case "23505", "23503": // unique_violation, foreign_key_violation
			return http.StatusConflict
		case "23502", "23514", "22P02", "22001", "22003": // not null, check, invalid text, too long, out of range
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status < http.StatusInternalServerError {
		msg := err.Error()
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			msg = pgErr.Message
		}
		httputil.Error(w, status, msg)
		return
	}

	middleware.LogEntry(r.Context(), s.logger).Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	httputil.Error(w, status, http.StatusText(status))
}
