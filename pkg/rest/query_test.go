package rest

import (
	"encoding/json"
	"net/url"
	"testing"

	pg "github.com/edgeflare/sandman/pkg/pgx"
	"github.com/edgeflare/sandman/pkg/resource"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var queryTable = resource.Table{
	Name: "line_item",
	Columns: []resource.Column{
		{Name: "order_id", Type: "bigint"},
		{Name: "line", Type: "integer"},
		{Name: "sku", Type: "text"},
		{Name: "price", Type: "numeric(10,2)"},
		{Name: "weight", Type: "double precision"},
		{Name: "gift", Type: "boolean"},
	},
	PrimaryKeys: []string{"order_id", "line"},
}

func TestParseQuery(t *testing.T) {
	values, err := url.ParseQuery("select=sku,price&order=price.desc.nullslast,sku&limit=10&offset=20" +
		"&price=gte.9.99&sku=like.AB*&sku=is.null&gift=is.true&line=in.(1,2)&weight=0.5")
	require.NoError(t, err)

	q, err := parseQuery(values, queryTable)
	require.NoError(t, err)

	assert.Equal(t, []string{"sku", "price"}, q.Select)
	assert.Equal(t, []pg.Order{{Column: "price", Desc: true}, {Column: "sku"}}, q.Order)
	assert.EqualValues(t, 10, q.Limit)
	assert.EqualValues(t, 20, q.Offset)

	require.Len(t, q.Filters["price"], 1)
	assert.Equal(t, pg.OpGte, q.Filters["price"][0].Operator)
	assert.True(t, decimal.RequireFromString("9.99").Equal(q.Filters["price"][0].Value.(decimal.Decimal)))

	assert.Equal(t, []pg.Filter{
		{Operator: pg.OpLike, Value: "AB%"},
		{Operator: pg.OpIs},
	}, q.Filters["sku"])
	assert.Equal(t, []pg.Filter{{Operator: pg.OpIs, Value: "true"}}, q.Filters["gift"])
	assert.Equal(t, []pg.Filter{{Operator: pg.OpIn, Value: []any{int64(1), int64(2)}}}, q.Filters["line"])
	assert.Equal(t, []pg.Filter{{Operator: pg.OpEq, Value: 0.5}}, q.Filters["weight"])
}

func TestParseQueryErrors(t *testing.T) {
	for _, raw := range []string{
		"colour=eq.red",
		"select=sku,colour",
		"order=colour",
		"limit=ten",
		"offset=-1",
		"line=eq.one",
		"gift=eq.maybe",
		"price=lt.cheap",
		"line=in.(1,x)",
	} {
		values, err := url.ParseQuery(raw)
		require.NoError(t, err)
		_, err = parseQuery(values, queryTable)
		assert.Error(t, err, raw)
	}
}

func TestParseOrder(t *testing.T) {
	assert.Equal(t, []pg.Order{
		{Column: "a"},
		{Column: "b", Desc: true, NullsFirst: true},
		{Column: "c", NullsFirst: true},
	}, parseOrder("a.asc, b.desc.nullsfirst,,c.nullsfirst"))
}

func TestParseFilterNull(t *testing.T) {
	col := queryTable.Columns[2]
	for raw, want := range map[string]pg.Filter{
		"null":     {Operator: pg.OpEq},
		"eq.null":  {Operator: pg.OpEq},
		"neq.null": {Operator: pg.OpNeq},
		"is.NULL":  {Operator: pg.OpIs},
		"plain":    {Operator: pg.OpEq, Value: "plain"},
	} {
		f, err := parseFilter(col, raw)
		require.NoError(t, err)
		assert.Equal(t, want, f, raw)
	}
}

func TestPathKeys(t *testing.T) {
	keys, byName, err := pathKeys(queryTable, []string{"40", "2"})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(40), int64(2)}, keys)
	assert.Equal(t, map[string]any{"order_id": int64(40), "line": int64(2)}, byName)

	_, _, err = pathKeys(queryTable, []string{"40"})
	assert.ErrorIs(t, err, resource.ErrKeyCount)

	_, _, err = pathKeys(queryTable, []string{"40", "two"})
	assert.Error(t, err)
}

func TestNormalizeNumbers(t *testing.T) {
	body := map[string]any{
		"line":   json.Number("3"),
		"price":  json.Number("12.50"),
		"weight": json.Number("1.25"),
		"sku":    json.Number("1e3"),
		"extra":  json.Number("7"),
	}
	require.NoError(t, normalizeNumbers(queryTable, body))

	assert.Equal(t, int64(3), body["line"])
	assert.Equal(t, "12.5", body["price"].(decimal.Decimal).String())
	assert.Equal(t, 1.25, body["weight"])
	assert.Equal(t, "1000", body["sku"].(decimal.Decimal).String())
	assert.Equal(t, json.Number("7"), body["extra"])

	assert.Error(t, normalizeNumbers(queryTable, map[string]any{"line": json.Number("3.5")}))
}
