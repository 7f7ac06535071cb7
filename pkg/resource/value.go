package resource

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"reflect"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// nullSegment is written into a URI in place of an unset key value.
const nullSegment = "null"

// Truthy reports whether v counts as a present value: nil, false, numeric
// zero, zero decimals, "" and empty slices or maps do not.
func Truthy(v any) bool {
	v = indirect(v)
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case []byte:
		return len(x) > 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	case *big.Rat:
		return x.Sign() != 0
	case big.Rat:
		return x.Sign() != 0
	case *big.Int:
		return x.Sign() != 0
	case *big.Float:
		return x.Sign() != 0
	case decimal.Decimal:
		return !x.IsZero()
	case decimal.NullDecimal:
		return x.Valid && !x.Decimal.IsZero()
	case pgtype.Numeric:
		if !x.Valid {
			return false
		}
		return x.NaN || x.InfinityModifier != pgtype.Finite || (x.Int != nil && x.Int.Sign() != 0)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.Chan:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return !rv.IsZero()
	}
	return true
}

// NotNil reports whether v is neither nil nor a nil pointer.
func NotNil(v any) bool {
	return indirect(v) != nil
}

// Normalize converts exact-decimal and arbitrary-precision values to their
// string form so they survive JSON encoding without precision loss. Other
// values pass through.
func Normalize(v any) any {
	switch x := indirect(v).(type) {
	case *big.Rat:
		return ratString(x)
	case big.Rat:
		return ratString(&x)
	case *big.Int:
		return x.String()
	case big.Int:
		return x.String()
	case *big.Float:
		return x.Text('f', -1)
	case big.Float:
		return x.Text('f', -1)
	case decimal.Decimal:
		return x.String()
	case decimal.NullDecimal:
		if !x.Valid {
			return nil
		}
		return x.Decimal.String()
	case pgtype.Numeric:
		s, err := x.Value()
		if err != nil || s == nil {
			return nil
		}
		return s
	}
	return v
}

// Segment renders v as an escaped URI path segment.
func Segment(v any) string {
	switch x := Normalize(v).(type) {
	case nil:
		return nullSegment
	case string:
		return url.PathEscape(x)
	case []byte:
		return url.PathEscape(string(x))
	case fmt.Stringer:
		return url.PathEscape(x.String())
	default:
		return url.PathEscape(fmt.Sprint(indirect(x)))
	}
}

// ratString renders r exactly: as an integer or a terminating decimal when
// possible, otherwise as a fraction.
func ratString(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	if prec, exact := r.FloatPrec(); exact {
		return r.FloatString(prec)
	}
	return r.RatString()
}

var (
	jsonMarshaler = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshaler = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// pointerOnly reports whether t encodes itself only through its pointer,
// as big.Rat, big.Int and big.Float do.
func pointerOnly(t reflect.Type) bool {
	pt := reflect.PointerTo(t)
	return (pt.Implements(jsonMarshaler) && !t.Implements(jsonMarshaler)) ||
		(pt.Implements(textMarshaler) && !t.Implements(textMarshaler))
}

// indirect dereferences pointers; a nil pointer becomes nil. Pointers to
// types that marshal only through a pointer receiver are kept.
func indirect(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer {
		return v
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		if pointerOnly(rv.Type().Elem()) {
			break
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}
