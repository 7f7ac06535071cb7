package rest

import (
	"encoding/json"
	"fmt"

	"github.com/edgeflare/sandman/pkg/pgx/schema"
	"github.com/edgeflare/sandman/pkg/resource"
	"github.com/shopspring/decimal"
)

// normalizeNumbers replaces the json.Number values of declared columns with
// int64, float64 or decimal.Decimal according to the column type. Numbers
// for columns of other types become int64 when integral, else decimals, so
// no precision is lost on the way to the store.
func normalizeNumbers(table resource.Table, body map[string]any) error {
	for key, v := range body {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		col, ok := table.Column(key)
		if !ok {
			continue
		}
		converted, err := number(col, n)
		if err != nil {
			return err
		}
		body[key] = converted
	}
	return nil
}

func number(col resource.Column, n json.Number) (any, error) {
	switch schema.KindOf(col.Type) {
	case schema.KindInteger:
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("%s: %s is not an integer", col.Name, n)
		}
		return i, nil
	case schema.KindFloat:
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%s: %s is not a number", col.Name, n)
		}
		return f, nil
	case schema.KindNumeric:
		return decimal.NewFromString(n.String())
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	return decimal.NewFromString(n.String())
}
