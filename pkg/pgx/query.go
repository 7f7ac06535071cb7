package pgx

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/edgeflare/sandman/pkg/resource"
	"github.com/jackc/pgx/v5"
)

// DefaultLimit caps List results when a Query sets no limit.
const DefaultLimit = 100

// Filter operators, named as in PostgREST.
const (
	OpEq    = "eq"
	OpNeq   = "neq"
	OpGt    = "gt"
	OpGte   = "gte"
	OpLt    = "lt"
	OpLte   = "lte"
	OpLike  = "like"
	OpILike = "ilike"
	OpIn    = "in"
	OpIs    = "is"
)

// Filter is a single column condition. Value is nil for "is null".
type Filter struct {
	Operator string
	Value    any
}

// Order sorts by a column.
type Order struct {
	Column     string
	Desc       bool
	NullsFirst bool
}

// Query narrows a List call. Filters on the same column are ORed, filters
// on different columns are ANDed. Columns unknown to the table are ignored.
type Query struct {
	Select  []string
	Filters map[string][]Filter
	Order   []Order
	Limit   uint64
	Offset  uint64
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

func ident(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

func hasColumn(table resource.Table, name string) bool {
	_, ok := table.Column(name)
	return ok
}

// selectQuery builds the SELECT for List.
func selectQuery(schema string, table resource.Table, q Query) squirrel.SelectBuilder {
	columns := make([]string, 0, len(q.Select))
	for _, col := range q.Select {
		if hasColumn(table, col) {
			columns = append(columns, ident(col))
		}
	}
	if len(columns) == 0 {
		columns = append(columns, "*")
	}

	sb := psql.Select(columns...).From(ident(schema, table.Name))

	// iterate in column order so the generated SQL is stable
	for _, col := range table.ColumnNames() {
		filters, ok := q.Filters[col]
		if !ok || len(filters) == 0 {
			continue
		}
		or := squirrel.Or{}
		for _, f := range filters {
			if cond := condition(ident(col), f); cond != nil {
				or = append(or, cond)
			}
		}
		switch len(or) {
		case 0:
		case 1:
			sb = sb.Where(or[0])
		default:
			sb = sb.Where(or)
		}
	}

	for _, o := range q.Order {
		if !hasColumn(table, o.Column) {
			continue
		}
		dir, nulls := "ASC", "LAST"
		if o.Desc {
			dir = "DESC"
		}
		if o.NullsFirst {
			nulls = "FIRST"
		}
		sb = sb.OrderBy(fmt.Sprintf("%s %s NULLS %s", ident(o.Column), dir, nulls))
	}

	limit := q.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	sb = sb.Limit(limit)
	if q.Offset > 0 {
		sb = sb.Offset(q.Offset)
	}
	return sb
}

func condition(col string, f Filter) squirrel.Sqlizer {
	switch strings.ToLower(f.Operator) {
	case OpEq, "":
		return squirrel.Eq{col: f.Value}
	case OpNeq:
		return squirrel.NotEq{col: f.Value}
	case OpGt:
		return squirrel.Gt{col: f.Value}
	case OpGte:
		return squirrel.GtOrEq{col: f.Value}
	case OpLt:
		return squirrel.Lt{col: f.Value}
	case OpLte:
		return squirrel.LtOrEq{col: f.Value}
	case OpLike:
		return squirrel.Like{col: f.Value}
	case OpILike:
		return squirrel.ILike{col: f.Value}
	case OpIn:
		return squirrel.Eq{col: f.Value}
	case OpIs:
		if f.Value == nil {
			return squirrel.Eq{col: nil}
		}
		return squirrel.Expr(fmt.Sprintf("%s IS %s", col, isLiteral(f.Value)))
	}
	return nil
}

// isLiteral maps the right-hand side of "is" to SQL; anything unexpected
// becomes NULL rather than being interpolated.
func isLiteral(v any) string {
	switch strings.ToLower(fmt.Sprint(v)) {
	case "true":
		return "TRUE"
	case "false":
		return "FALSE"
	case "unknown":
		return "UNKNOWN"
	case "not null":
		return "NOT NULL"
	}
	return "NULL"
}

// keyCondition matches the row identified by keys on every primary key.
func keyCondition(table resource.Table, keys map[string]any) (squirrel.Eq, error) {
	eq := squirrel.Eq{}
	for _, pk := range table.PrimaryKeys {
		v, ok := keys[pk]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingKey, table.Name, pk)
		}
		eq[ident(pk)] = v
	}
	return eq, nil
}

// declared returns the columns of row the table declares, in column order.
func declared(table resource.Table, row resource.Row) ([]string, []any) {
	var columns []string
	var values []any
	for _, col := range table.ColumnNames() {
		if v, ok := row[col]; ok {
			columns = append(columns, ident(col))
			values = append(values, v)
		}
	}
	return columns, values
}

func insertQuery(schema string, table resource.Table, row resource.Row) (string, []any, error) {
	columns, values := declared(table, row)
	if len(columns) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", ident(schema, table.Name)), nil, nil
	}
	return psql.Insert(ident(schema, table.Name)).
		Columns(columns...).
		Values(values...).
		Suffix("RETURNING *").
		ToSql()
}

func updateQuery(schema string, table resource.Table, keys map[string]any, row resource.Row) (string, []any, error) {
	where, err := keyCondition(table, keys)
	if err != nil {
		return "", nil, err
	}
	columns, values := declared(table, row)
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrNoColumns, table.Name)
	}
	ub := psql.Update(ident(schema, table.Name))
	for i, col := range columns {
		ub = ub.Set(col, values[i])
	}
	return ub.Where(where).Suffix("RETURNING *").ToSql()
}

// upsertQuery inserts row or, on a primary-key conflict, overwrites every
// declared column. The extra insertedColumn reports which happened.
func upsertQuery(schema string, table resource.Table, row resource.Row) (string, []any, error) {
	if _, err := keyCondition(table, row); err != nil {
		return "", nil, err
	}
	columns, values := declared(table, row)

	pks := make([]string, len(table.PrimaryKeys))
	for i, pk := range table.PrimaryKeys {
		pks[i] = ident(pk)
	}
	sets := make([]string, 0, len(columns))
	for _, col := range columns {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	conflict := fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", strings.Join(pks, ", "))
	if len(sets) > 0 {
		conflict = fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(pks, ", "), strings.Join(sets, ", "))
	}

	return psql.Insert(ident(schema, table.Name)).
		Columns(columns...).
		Values(values...).
		Suffix(conflict).
		Suffix(fmt.Sprintf("RETURNING *, (xmax = 0) AS %s", insertedColumn)).
		ToSql()
}

func deleteQuery(schema string, table resource.Table, keys map[string]any) (string, []any, error) {
	where, err := keyCondition(table, keys)
	if err != nil {
		return "", nil, err
	}
	return psql.Delete(ident(schema, table.Name)).Where(where).ToSql()
}

func getQuery(schema string, table resource.Table, keys map[string]any) (string, []any, error) {
	where, err := keyCondition(table, keys)
	if err != nil {
		return "", nil, err
	}
	return psql.Select("*").From(ident(schema, table.Name)).Where(where).Limit(1).ToSql()
}
