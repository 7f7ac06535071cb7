package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/sandman/pkg/resource"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const insertedColumn = "_sandman_inserted"

var (
	ErrNotFound   = errors.New("pgx: row not found")
	ErrMissingKey = errors.New("pgx: missing primary key value")
	ErrNoColumns  = errors.New("pgx: no writable columns")
)

// Store reads and writes rows of described tables within one schema.
type Store struct {
	conn   Conn
	schema string
}

// NewStore returns a Store over conn. An empty schema means "public".
func NewStore(conn Conn, schema string) *Store {
	if schema == "" {
		schema = "public"
	}
	return &Store{conn: conn, schema: schema}
}

// Schema returns the schema the store operates in.
func (s *Store) Schema() string { return s.schema }

// List returns the rows of table matching q.
func (s *Store) List(ctx context.Context, table resource.Table, q Query) ([]resource.Row, error) {
	sql, args, err := selectQuery(s.schema, table, q).ToSql()
	if err != nil {
		return nil, fmt.Errorf("pgx: build select: %w", err)
	}
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgx: list %s: %w", table.Name, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("pgx: list %s: %w", table.Name, err)
	}
	out := make([]resource.Row, len(maps))
	for i, m := range maps {
		out[i] = toRow(m)
	}
	return out, nil
}

// Get returns the row identified by keys.
func (s *Store) Get(ctx context.Context, table resource.Table, keys map[string]any) (resource.Row, error) {
	sql, args, err := getQuery(s.schema, table, keys)
	if err != nil {
		return nil, err
	}
	return s.one(ctx, table, sql, args)
}

// Insert creates a row from the declared columns of row and returns it as stored.
func (s *Store) Insert(ctx context.Context, table resource.Table, row resource.Row) (resource.Row, error) {
	sql, args, err := insertQuery(s.schema, table, row)
	if err != nil {
		return nil, fmt.Errorf("pgx: build insert: %w", err)
	}
	return s.one(ctx, table, sql, args)
}

// Update sets the declared columns of row on the row identified by keys.
func (s *Store) Update(ctx context.Context, table resource.Table, keys map[string]any, row resource.Row) (resource.Row, error) {
	sql, args, err := updateQuery(s.schema, table, keys, row)
	if err != nil {
		return nil, err
	}
	return s.one(ctx, table, sql, args)
}

// Upsert inserts row, or overwrites the existing row with the same primary
// key. It reports whether a new row was created.
func (s *Store) Upsert(ctx context.Context, table resource.Table, row resource.Row) (resource.Row, bool, error) {
	sql, args, err := upsertQuery(s.schema, table, row)
	if err != nil {
		return nil, false, err
	}
	out, err := s.one(ctx, table, sql, args)
	if err != nil {
		return nil, false, err
	}
	created, _ := out[insertedColumn].(bool)
	delete(out, insertedColumn)
	return out, created, nil
}

// Delete removes the row identified by keys.
func (s *Store) Delete(ctx context.Context, table resource.Table, keys map[string]any) error {
	sql, args, err := deleteQuery(s.schema, table, keys)
	if err != nil {
		return err
	}
	tag, err := s.conn.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("pgx: delete %s: %w", table.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) one(ctx context.Context, table resource.Table, sql string, args []any) (resource.Row, error) {
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgx: %s: %w", table.Name, err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgx: %s: %w", table.Name, err)
	}
	return toRow(m), nil
}

// toRow converts driver values that do not encode well as JSON.
func toRow(m map[string]any) resource.Row {
	row := make(resource.Row, len(m))
	for k, v := range m {
		if b, ok := v.([16]byte); ok {
			v = uuid.UUID(b).String()
		}
		row[k] = v
	}
	return row
}
