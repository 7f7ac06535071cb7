// Package schema caches the table descriptors of a PostgreSQL database.
// The cache reloads when a "reload schema" payload is sent on the sandman
// channel, eg
//
//	NOTIFY sandman, 'reload schema';
package schema

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/edgeflare/sandman/pkg/metrics"
	pg "github.com/edgeflare/sandman/pkg/pgx"
	"github.com/edgeflare/sandman/pkg/resource"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	ReloadChannel = "sandman"
	ReloadPayload = "reload schema"

	defaultInitRetries = 5
)

type TableType string

const (
	TypeTable            TableType = "TABLE"
	TypeView             TableType = "VIEW"
	TypeMaterializedView TableType = "MATERIALIZED VIEW"
)

type Table struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	Type        TableType    `json:"type"`
	Columns     []Column     `json:"columns"`
	PrimaryKeys []string     `json:"primary_keys"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	ViewQuery   string       `json:"view_query,omitempty"`
}

type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	IsNullable bool   `json:"is_nullable"`
}

type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// FullName returns "schema.name".
func (t Table) FullName() string {
	return t.Schema + "." + t.Name
}

// Descriptor converts t into the descriptor a resource mapper is built from.
func (t Table) Descriptor() resource.Table {
	d := resource.Table{
		Name:        t.Name,
		Columns:     make([]resource.Column, len(t.Columns)),
		PrimaryKeys: slices.Clone(t.PrimaryKeys),
	}
	for i, c := range t.Columns {
		d.Columns[i] = resource.Column{Name: c.Name, Type: c.DataType}
	}
	for _, fk := range t.ForeignKeys {
		d.ForeignKeys = append(d.ForeignKeys, resource.ForeignKey{
			Column:    fk.Column,
			RefTable:  fk.ReferencedTable,
			RefColumn: fk.ReferencedColumn,
		})
	}
	return d
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for reload errors. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSchemas restricts the cache to the named schemas. By default every
// non-system schema is loaded.
func WithSchemas(schemas ...string) Option {
	return func(c *Cache) {
		c.schemas = slices.Clone(schemas)
	}
}

// WithInitRetries sets how many times Init retries the initial load.
func WithInitRetries(n uint64) Option {
	return func(c *Cache) {
		c.retries = n
	}
}

// Cache holds the tables of a database, keyed by Table.FullName.
type Cache struct {
	pool    *pgxpool.Pool
	owned   bool      // pool was opened by NewCache and is closed by Close
	conn    *pgx.Conn // hijacked from pool, dedicated to LISTEN
	tables  map[string]Table
	watch   chan map[string]Table
	schemas []string
	retries uint64
	logger  *zap.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
}

// NewCache creates a cache for the database at connString. No connection is
// made until Init.
func NewCache(connString string, opts ...Option) (*Cache, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, fmt.Errorf("schema: create pool: %w", err)
	}
	c := NewCacheFromPool(pool, opts...)
	c.owned = true
	return c, nil
}

// NewCacheFromPool creates a cache that loads through an existing pool. The
// LISTEN connection is taken from pool; Close leaves pool open.
func NewCacheFromPool(pool *pgxpool.Pool, opts ...Option) *Cache {
	c := &Cache{
		pool:    pool,
		tables:  make(map[string]Table),
		watch:   make(chan map[string]Table, 1),
		retries: defaultInitRetries,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init loads the schema, retrying with exponential backoff, then listens for
// reload notifications until ctx is done or Close is called.
func (c *Cache) Init(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.retries), ctx)
	err := backoff.RetryNotify(func() error {
		return c.reload(ctx)
	}, b, func(err error, next time.Duration) {
		c.logger.Warn("schema load failed, retrying", zap.Error(err), zap.Duration("backoff", next))
	})
	if err != nil {
		cancel()
		return fmt.Errorf("schema: initial load: %w", err)
	}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("schema: acquire listen conn: %w", err)
	}
	c.conn = conn.Hijack()

	if _, err := c.conn.Exec(ctx, "LISTEN "+pgx.Identifier{ReloadChannel}.Sanitize()); err != nil {
		cancel()
		return fmt.Errorf("schema: listen: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.handleUpdates(ctx)
	}()
	return nil
}

// Close stops listening and releases the LISTEN connection. The pool is
// closed only when the cache opened it.
func (c *Cache) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if c.conn != nil {
		c.conn.Close(context.Background())
	}
	if c.owned {
		c.pool.Close()
	}
	close(c.watch)
}

// Watch delivers a snapshot after every reload. Only the latest snapshot is
// kept for slow receivers.
func (c *Cache) Watch() <-chan map[string]Table {
	return c.watch
}

// Snapshot returns a copy of the cached tables.
func (c *Cache) Snapshot() map[string]Table {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := make(map[string]Table, len(c.tables))
	maps.Copy(snap, c.tables)
	return snap
}

// Tables returns the cached tables of schema ordered by name.
func (c *Cache) Tables(schema string) []Table {
	return TablesOf(c.Snapshot(), schema)
}

// Table looks up schema.name.
func (c *Cache) Table(schema, name string) (Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tables[schema+"."+name]
	return t, ok
}

// TablesOf filters a snapshot to one schema, ordered by name.
func TablesOf(snap map[string]Table, schema string) []Table {
	var out []Table
	for _, t := range snap {
		if t.Schema == schema {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b Table) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

func (c *Cache) handleUpdates(ctx context.Context) {
	for {
		notification, err := c.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("schema notification", zap.Error(err))
			if c.conn.IsClosed() {
				return
			}
			continue
		}

		if notification.Payload != ReloadPayload {
			continue
		}
		if err := c.reload(ctx); err != nil {
			c.logger.Error("schema reload", zap.Error(err))
			continue
		}
		c.logger.Info("schema reloaded", zap.Int("tables", len(c.Snapshot())))
	}
}

func (c *Cache) reload(ctx context.Context) error {
	tables, err := Load(ctx, c.pool, c.schemas...)
	if err != nil {
		metrics.SchemaReloads.WithLabelValues("error").Inc()
		return err
	}
	metrics.SchemaReloads.WithLabelValues("ok").Inc()

	c.mu.Lock()
	c.tables = tables
	c.mu.Unlock()

	c.publish(c.Snapshot())
	return nil
}

// publish replaces any undelivered snapshot with snap.
func (c *Cache) publish(snap map[string]Table) {
	select {
	case <-c.watch:
	default:
	}
	select {
	case c.watch <- snap:
	default:
	}
}

// Load reads the tables of the given schemas, or of every non-system schema
// when none are named.
func Load(ctx context.Context, conn pg.Conn, schemas ...string) (map[string]Table, error) {
	if len(schemas) == 0 {
		var err error
		if schemas, err = querySchemas(ctx, conn); err != nil {
			return nil, fmt.Errorf("schema: query schemas: %w", err)
		}
	}

	tables := make(map[string]Table)
	for _, schema := range schemas {
		if isSystem(schema) {
			continue
		}
		schemaTables, err := loadSchema(ctx, conn, schema)
		if err != nil {
			return nil, fmt.Errorf("schema: load %s: %w", schema, err)
		}
		maps.Copy(tables, schemaTables)
	}
	return tables, nil
}

type relation struct {
	oid   uint32
	table Table
}

func loadSchema(ctx context.Context, conn pg.Conn, schema string) (map[string]Table, error) {
	rows, err := conn.Query(ctx, `
		SELECT c.oid, n.nspname, c.relname,
			CASE c.relkind
				WHEN 'v' THEN 'VIEW'
				WHEN 'm' THEN 'MATERIALIZED VIEW'
				ELSE 'TABLE'
			END,
			CASE WHEN c.relkind IN ('v', 'm') THEN pg_get_viewdef(c.oid) ELSE '' END
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind IN ('r', 'p', 'v', 'm')
		ORDER BY c.relname`, schema)
	if err != nil {
		return nil, err
	}
	rels, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (relation, error) {
		var r relation
		var typ string
		err := row.Scan(&r.oid, &r.table.Schema, &r.table.Name, &typ, &r.table.ViewQuery)
		r.table.Type = TableType(typ)
		r.table.ViewQuery = strings.TrimSpace(r.table.ViewQuery)
		return r, err
	})
	if err != nil {
		return nil, err
	}

	tables := make(map[string]Table, len(rels))
	for _, r := range rels {
		t := r.table
		if t.Columns, err = queryColumns(ctx, conn, r.oid); err != nil {
			return nil, fmt.Errorf("columns of %s: %w", t.FullName(), err)
		}
		// views have no constraints of their own
		if t.Type == TypeTable {
			if t.PrimaryKeys, err = queryPrimaryKeys(ctx, conn, r.oid); err != nil {
				return nil, fmt.Errorf("primary keys of %s: %w", t.FullName(), err)
			}
			if t.ForeignKeys, err = queryForeignKeys(ctx, conn, r.oid); err != nil {
				return nil, fmt.Errorf("foreign keys of %s: %w", t.FullName(), err)
			}
		}
		tables[t.FullName()] = t
	}
	return tables, nil
}

func queryColumns(ctx context.Context, conn pg.Conn, oid uint32) ([]Column, error) {
	rows, err := conn.Query(ctx, `
		SELECT a.attname, format_type(a.atttypid, a.atttypmod), NOT a.attnotnull
		FROM pg_attribute a
		WHERE a.attrelid = $1 AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum`, oid)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Column, error) {
		var col Column
		err := row.Scan(&col.Name, &col.DataType, &col.IsNullable)
		return col, err
	})
}

func queryPrimaryKeys(ctx context.Context, conn pg.Conn, oid uint32) ([]string, error) {
	rows, err := conn.Query(ctx, `
		SELECT a.attname
		FROM pg_constraint con
		CROSS JOIN LATERAL unnest(con.conkey) WITH ORDINALITY AS k(attnum, pos)
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		WHERE con.conrelid = $1 AND con.contype = 'p'
		ORDER BY k.pos`, oid)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func queryForeignKeys(ctx context.Context, conn pg.Conn, oid uint32) ([]ForeignKey, error) {
	rows, err := conn.Query(ctx, `
		SELECT a.attname, rc.relname, ra.attname
		FROM pg_constraint con
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, refattnum, pos)
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		JOIN pg_class rc ON rc.oid = con.confrelid
		JOIN pg_attribute ra ON ra.attrelid = con.confrelid AND ra.attnum = k.refattnum
		WHERE con.conrelid = $1 AND con.contype = 'f'
		ORDER BY con.conname, k.pos`, oid)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ForeignKey, error) {
		var fk ForeignKey
		err := row.Scan(&fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn)
		return fk, err
	})
}

func querySchemas(ctx context.Context, conn pg.Conn) ([]string, error) {
	rows, err := conn.Query(ctx, `SELECT nspname FROM pg_namespace ORDER BY nspname`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func isSystem(schema string) bool {
	switch {
	case schema == "information_schema", schema == "pg_catalog":
		return true
	case strings.HasPrefix(schema, "pg_toast"), strings.HasPrefix(schema, "pg_temp"):
		return true
	}
	return false
}
