package resource

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
)

// Field is one entry of an entity's field-descriptor table: the column it
// maps and how to read and write that column on an instance.
type Field[T any] struct {
	Name string
	Get  func(*T) any
	Set  func(*T, any) error
}

// Col returns a Field for the value ptr points at. Reads dereference
// pointers, except to types such as big.Rat that marshal through a pointer;
// writes convert the incoming value with Assign.
func Col[T, V any](name string, ptr func(*T) *V) Field[T] {
	return Field[T]{
		Name: name,
		Get: func(t *T) any {
			return indirect(*ptr(t))
		},
		Set: func(t *T, v any) error {
			return Assign(ptr(t), v)
		},
	}
}

// Assign stores src into dst. nil resets dst to its zero value. Values of a
// different type are converted weakly, so JSON numbers fill integer fields
// and strings fill decimal.Decimal or time.Time fields.
func Assign[V any](dst *V, src any) error {
	if src == nil {
		var zero V
		*dst = zero
		return nil
	}
	if v, ok := src.(V); ok {
		*dst = v
		return nil
	}

	var out V
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			decimalHook,
			ratHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(src); err != nil {
		return err
	}
	*dst = out
	return nil
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func decimalHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}
	switch x := data.(type) {
	case decimal.Decimal:
		return x, nil
	case pgtype.Numeric:
		s, ok := Normalize(x).(string)
		if !ok {
			return decimal.Decimal{}, nil
		}
		return decimal.NewFromString(s)
	case string:
		return decimal.NewFromString(x)
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case interface{ String() string }:
		return decimal.NewFromString(x.String())
	}
	return data, nil
}

var ratType = reflect.TypeOf(big.Rat{})

func ratHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != ratType {
		return data, nil
	}
	switch x := data.(type) {
	case *big.Rat:
		return x, nil
	case decimal.Decimal:
		return x.Rat(), nil
	case float64:
		r := new(big.Rat)
		if r.SetFloat64(x) == nil {
			return nil, fmt.Errorf("cannot convert %v to big.Rat", x)
		}
		return r, nil
	case int:
		return big.NewRat(int64(x), 1), nil
	case int64:
		return big.NewRat(x, 1), nil
	case json.Number:
		return parseRat(x.String())
	case string:
		return parseRat(x)
	case pgtype.Numeric:
		s, ok := Normalize(x).(string)
		if !ok {
			return nil, fmt.Errorf("cannot convert %v to big.Rat", x)
		}
		return parseRat(s)
	}
	return data, nil
}

func parseRat(s string) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("cannot convert %q to big.Rat", s)
	}
	return r, nil
}
