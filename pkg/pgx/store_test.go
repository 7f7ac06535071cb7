package pgx

import (
	"context"
	"testing"

	"github.com/edgeflare/sandman/internal/testutil/pgtest"
	"github.com/edgeflare/sandman/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var books = resource.Table{
	Name: "books",
	Columns: []resource.Column{
		{Name: "id", Type: "integer"},
		{Name: "title", Type: "text"},
		{Name: "author_id", Type: "integer"},
	},
	PrimaryKeys: []string{"id"},
}

var orderLines = resource.Table{
	Name: "order_lines",
	Columns: []resource.Column{
		{Name: "order_id", Type: "integer"},
		{Name: "line_no", Type: "integer"},
		{Name: "qty", Type: "integer"},
	},
	PrimaryKeys: []string{"order_id", "line_no"},
}

func TestSelectQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    Query
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "defaults",
			wantSQL: `SELECT * FROM "public"."books" LIMIT 100`,
		},
		{
			name:    "select unknown columns dropped",
			query:   Query{Select: []string{"title", "nope"}, Limit: 5, Offset: 10},
			wantSQL: `SELECT "title" FROM "public"."books" LIMIT 5 OFFSET 10`,
		},
		{
			name:     "eq filter",
			query:    Query{Filters: map[string][]Filter{"author_id": {{Operator: OpEq, Value: 3}}}},
			wantSQL:  `SELECT * FROM "public"."books" WHERE "author_id" = $1 LIMIT 100`,
			wantArgs: []any{3},
		},
		{
			name: "filters on same column are ORed",
			query: Query{Filters: map[string][]Filter{
				"id": {{Operator: OpLt, Value: 2}, {Operator: OpGt, Value: 8}},
			}},
			wantSQL:  `SELECT * FROM "public"."books" WHERE ("id" < $1 OR "id" > $2) LIMIT 100`,
			wantArgs: []any{2, 8},
		},
		{
			name: "filters across columns are ANDed",
			query: Query{Filters: map[string][]Filter{
				"title": {{Operator: OpILike, Value: "%go%"}},
				"id":    {{Operator: OpGte, Value: 1}},
			}},
			wantSQL:  `SELECT * FROM "public"."books" WHERE "id" >= $1 AND "title" ILIKE $2 LIMIT 100`,
			wantArgs: []any{1, "%go%"},
		},
		{
			name:     "in",
			query:    Query{Filters: map[string][]Filter{"id": {{Operator: OpIn, Value: []any{1, 2}}}}},
			wantSQL:  `SELECT * FROM "public"."books" WHERE "id" IN ($1,$2) LIMIT 100`,
			wantArgs: []any{1, 2},
		},
		{
			name:    "is null",
			query:   Query{Filters: map[string][]Filter{"author_id": {{Operator: OpIs}}}},
			wantSQL: `SELECT * FROM "public"."books" WHERE "author_id" IS NULL LIMIT 100`,
		},
		{
			name:    "is true",
			query:   Query{Filters: map[string][]Filter{"author_id": {{Operator: OpIs, Value: "true"}}}},
			wantSQL: `SELECT * FROM "public"."books" WHERE "author_id" IS TRUE LIMIT 100`,
		},
		{
			name:    "unknown filter column ignored",
			query:   Query{Filters: map[string][]Filter{"x; drop": {{Operator: OpEq, Value: 1}}}},
			wantSQL: `SELECT * FROM "public"."books" LIMIT 100`,
		},
		{
			name:    "order",
			query:   Query{Order: []Order{{Column: "title", Desc: true}, {Column: "id", NullsFirst: true}, {Column: "bogus"}}},
			wantSQL: `SELECT * FROM "public"."books" ORDER BY "title" DESC NULLS LAST, "id" ASC NULLS FIRST LIMIT 100`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := selectQuery("public", books, tt.query).ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, nilIfEmpty(args))
		})
	}
}

func nilIfEmpty(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	return args
}

func TestGetQuery(t *testing.T) {
	sql, args, err := getQuery("app", orderLines, map[string]any{"order_id": 7, "line_no": 2})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "app"."order_lines" WHERE "line_no" = $1 AND "order_id" = $2 LIMIT 1`, sql)
	assert.Equal(t, []any{2, 7}, args)

	_, _, err = getQuery("app", orderLines, map[string]any{"order_id": 7})
	assert.ErrorIs(t, err, ErrMissingKey)

	_, _, err = getQuery("app", orderLines, map[string]any{"order_id": 7, "line_no": nil})
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestInsertQuery(t *testing.T) {
	sql, args, err := insertQuery("public", books, resource.Row{"title": "Dune", "id": 1, "extra": true})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "public"."books" ("id","title") VALUES ($1,$2) RETURNING *`, sql)
	assert.Equal(t, []any{1, "Dune"}, args)

	sql, args, err = insertQuery("public", books, resource.Row{})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "public"."books" DEFAULT VALUES RETURNING *`, sql)
	assert.Empty(t, args)
}

func TestUpdateQuery(t *testing.T) {
	sql, args, err := updateQuery("public", books, map[string]any{"id": 4}, resource.Row{"title": "Emma", "author_id": nil})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "public"."books" SET "title" = $1, "author_id" = $2 WHERE "id" = $3 RETURNING *`, sql)
	assert.Equal(t, []any{"Emma", nil, 4}, args)

	_, _, err = updateQuery("public", books, map[string]any{"id": 4}, resource.Row{"nope": 1})
	assert.ErrorIs(t, err, ErrNoColumns)

	_, _, err = updateQuery("public", books, map[string]any{}, resource.Row{"title": "x"})
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestUpsertQuery(t *testing.T) {
	sql, args, err := upsertQuery("public", orderLines, resource.Row{"order_id": 7, "line_no": 2, "qty": 3})
	require.NoError(t, err)
	assert.Contains(t, sql, `INSERT INTO "public"."order_lines" ("order_id","line_no","qty") VALUES ($1,$2,$3)`)
	assert.Contains(t, sql, `ON CONFLICT ("order_id", "line_no") DO UPDATE SET`)
	assert.Contains(t, sql, `"qty" = EXCLUDED."qty"`)
	assert.Contains(t, sql, "RETURNING *, (xmax = 0) AS "+insertedColumn)
	assert.Equal(t, []any{7, 2, 3}, args)

	_, _, err = upsertQuery("public", orderLines, resource.Row{"order_id": 7})
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestDeleteQuery(t *testing.T) {
	sql, args, err := deleteQuery("public", books, map[string]any{"id": 9})
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "public"."books" WHERE "id" = $1`, sql)
	assert.Equal(t, []any{9}, args)
}

func TestToRow(t *testing.T) {
	id := [16]byte{0x6b, 0xa7, 0xb8, 0x10, 0x9d, 0xad, 0x11, 0xd1, 0x80, 0xb4, 0x00, 0xc0, 0x4f, 0xd4, 0x30, 0xc8}
	row := toRow(map[string]any{"id": id, "n": int32(1)})
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", row["id"])
	assert.Equal(t, int32(1), row["n"])
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	conn := pgtest.Connect(ctx, t)

	_, err := conn.Exec(ctx, `
		CREATE TEMP TABLE order_lines (
			order_id integer NOT NULL,
			line_no integer NOT NULL,
			qty integer,
			PRIMARY KEY (order_id, line_no)
		)`)
	require.NoError(t, err)

	// temp tables live in the session's pg_temp schema
	store := NewStore(conn, "pg_temp")
	assert.Equal(t, "pg_temp", store.Schema())

	row, err := store.Insert(ctx, orderLines, resource.Row{"order_id": 1, "line_no": 1, "qty": 5})
	require.NoError(t, err)
	assert.EqualValues(t, 5, row["qty"])

	row, created, err := store.Upsert(ctx, orderLines, resource.Row{"order_id": 1, "line_no": 1, "qty": 6})
	require.NoError(t, err)
	assert.False(t, created)
	assert.EqualValues(t, 6, row["qty"])
	assert.NotContains(t, row, insertedColumn)

	_, created, err = store.Upsert(ctx, orderLines, resource.Row{"order_id": 1, "line_no": 2, "qty": 1})
	require.NoError(t, err)
	assert.True(t, created)

	rows, err := store.List(ctx, orderLines, Query{Order: []Order{{Column: "line_no", Desc: true}}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 2, rows[0]["line_no"])

	keys := map[string]any{"order_id": 1, "line_no": 2}
	row, err = store.Update(ctx, orderLines, keys, resource.Row{"qty": 9})
	require.NoError(t, err)
	assert.EqualValues(t, 9, row["qty"])

	require.NoError(t, store.Delete(ctx, orderLines, keys))
	_, err = store.Get(ctx, orderLines, keys)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, orderLines, keys), ErrNotFound)
}
