// Package pgx stores resource rows in PostgreSQL.
//
// Store builds statements with squirrel and runs them over any Conn, so the
// same code serves a single *pgx.Conn, a *pgxpool.Pool or a transaction.
// PoolManager keeps the named pools a server connects to.
package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the subset of *pgx.Conn, *pgxpool.Pool and pgx.Tx used by Store
// and the schema cache.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// Begin starts a transaction. The context only affects the begin command.
	Begin(ctx context.Context) (pgx.Tx, error)
}
