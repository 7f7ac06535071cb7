package rest

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	pg "github.com/edgeflare/sandman/pkg/pgx"
	"github.com/edgeflare/sandman/pkg/pgx/schema"
	"github.com/edgeflare/sandman/pkg/resource"
	"github.com/shopspring/decimal"
)

var reservedParams = map[string]bool{
	"select": true,
	"order":  true,
	"limit":  true,
	"offset": true,
}

var operators = []string{
	pg.OpEq, pg.OpNeq, pg.OpGte, pg.OpGt, pg.OpLte, pg.OpLt,
	pg.OpILike, pg.OpLike, pg.OpIn, pg.OpIs,
}

// parseQuery reads PostgREST style list parameters. Filters on columns the
// table does not declare are rejected.
func parseQuery(values url.Values, table resource.Table) (pg.Query, error) {
	q := pg.Query{Filters: make(map[string][]pg.Filter)}

	if sel := values.Get("select"); sel != "" {
		for col := range strings.SplitSeq(sel, ",") {
			if col = strings.TrimSpace(col); col == "" {
				continue
			}
			if _, ok := table.Column(col); !ok {
				return q, fmt.Errorf("unknown column %q in select", col)
			}
			q.Select = append(q.Select, col)
		}
	}
	if order := values.Get("order"); order != "" {
		q.Order = parseOrder(order)
		for _, o := range q.Order {
			if _, ok := table.Column(o.Column); !ok {
				return q, fmt.Errorf("unknown column %q in order", o.Column)
			}
		}
	}

	var err error
	if q.Limit, err = parseUint(values, "limit"); err != nil {
		return q, err
	}
	if q.Offset, err = parseUint(values, "offset"); err != nil {
		return q, err
	}

	for key, vals := range values {
		if reservedParams[key] {
			continue
		}
		col, ok := table.Column(key)
		if !ok {
			return q, fmt.Errorf("unknown column %q", key)
		}
		for _, v := range vals {
			f, err := parseFilter(col, v)
			if err != nil {
				return q, err
			}
			q.Filters[key] = append(q.Filters[key], f)
		}
	}
	return q, nil
}

func parseUint(values url.Values, key string) (uint64, error) {
	s := values.Get(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return n, nil
}

// parseOrder parses "col[.asc|.desc][.nullsfirst|.nullslast],...".
func parseOrder(order string) []pg.Order {
	var result []pg.Order
	for part := range strings.SplitSeq(order, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		o := pg.Order{}
		if rest, ok := strings.CutSuffix(part, ".nullsfirst"); ok {
			part, o.NullsFirst = rest, true
		} else if rest, ok := strings.CutSuffix(part, ".nullslast"); ok {
			part = rest
		}
		if rest, ok := strings.CutSuffix(part, ".desc"); ok {
			part, o.Desc = rest, true
		} else if rest, ok := strings.CutSuffix(part, ".asc"); ok {
			part = rest
		}
		o.Column = part
		result = append(result, o)
	}
	return result
}

// parseFilter parses "op.value". A value without a known operator is an
// equality test.
func parseFilter(col resource.Column, raw string) (pg.Filter, error) {
	op, value := pg.OpEq, raw
	for _, candidate := range operators {
		if rest, ok := strings.CutPrefix(raw, candidate+"."); ok {
			op, value = candidate, rest
			break
		}
	}

	switch op {
	case pg.OpIs:
		if strings.EqualFold(value, "null") {
			return pg.Filter{Operator: op}, nil
		}
		return pg.Filter{Operator: op, Value: value}, nil
	case pg.OpLike, pg.OpILike:
		// PostgREST accepts * for %
		return pg.Filter{Operator: op, Value: strings.ReplaceAll(value, "*", "%")}, nil
	case pg.OpIn:
		list := strings.TrimSuffix(strings.TrimPrefix(value, "("), ")")
		var items []any
		for item := range strings.SplitSeq(list, ",") {
			v, err := coerce(col, strings.TrimSpace(item))
			if err != nil {
				return pg.Filter{}, err
			}
			items = append(items, v)
		}
		return pg.Filter{Operator: op, Value: items}, nil
	}

	if value == "null" && (op == pg.OpEq || op == pg.OpNeq) {
		return pg.Filter{Operator: op}, nil
	}
	v, err := coerce(col, value)
	if err != nil {
		return pg.Filter{}, err
	}
	return pg.Filter{Operator: op, Value: v}, nil
}

// coerce converts a string from a URL into the Go value the column's type
// expects.
func coerce(col resource.Column, s string) (any, error) {
	switch schema.KindOf(col.Type) {
	case schema.KindInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not an integer", col.Name, s)
		}
		return n, nil
	case schema.KindNumeric:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a decimal", col.Name, s)
		}
		return d, nil
	case schema.KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a number", col.Name, s)
		}
		return f, nil
	case schema.KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a boolean", col.Name, s)
		}
		return b, nil
	}
	return s, nil
}

// pathKeys maps the primary-key segments of a record URL to typed values.
func pathKeys(table resource.Table, segments []string) ([]any, map[string]any, error) {
	if len(segments) != len(table.PrimaryKeys) {
		return nil, nil, fmt.Errorf("%w: want %d key segments, got %d", resource.ErrKeyCount, len(table.PrimaryKeys), len(segments))
	}
	keys := make([]any, len(segments))
	byName := make(map[string]any, len(segments))
	for i, pk := range table.PrimaryKeys {
		col, _ := table.Column(pk)
		v, err := coerce(col, segments[i])
		if err != nil {
			return nil, nil, err
		}
		keys[i] = v
		byName[pk] = v
	}
	return keys, byName, nil
}
