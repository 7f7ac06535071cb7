package resource

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	var nilInt *int

	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"nil", nil, false},
		{"nil pointer", nilInt, false},
		{"false", false, false},
		{"true", true, true},
		{"zero int", 0, false},
		{"int", 3, true},
		{"zero uint8", uint8(0), false},
		{"zero float", 0.0, false},
		{"negative float", -1.5, true},
		{"empty string", "", false},
		{"string", "0", true},
		{"json zero", json.Number("0"), false},
		{"json number", json.Number("0.5"), true},
		{"json not a number", json.Number("abc"), false},
		{"big rat zero", new(big.Rat), false},
		{"big rat", big.NewRat(1, 3), true},
		{"big int", big.NewInt(-2), true},
		{"big float zero", new(big.Float), false},
		{"zero decimal", decimal.Zero, false},
		{"decimal", decimal.NewFromFloat(0.01), true},
		{"invalid null decimal", decimal.NullDecimal{}, false},
		{"pointer to zero", ptr(0), false},
		{"pointer to value", ptr("x"), true},
		{"empty slice", []any{}, false},
		{"slice", []int{0}, true},
		{"empty map", map[string]any{}, false},
		{"time", time.Time{}, true},
		{"uuid", uuid.Nil, true},
		{"null numeric", pgtype.Numeric{}, false},
		{"zero numeric", pgtype.Numeric{Int: big.NewInt(0), Valid: true}, false},
		{"numeric", pgtype.Numeric{Int: big.NewInt(125), Exp: -2, Valid: true}, true},
		{"nan numeric", pgtype.Numeric{NaN: true, Valid: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truthy(tt.value))
		})
	}
}

func TestNotNil(t *testing.T) {
	var nilDecimal *decimal.Decimal
	assert.False(t, NotNil(nil))
	assert.False(t, NotNil(nilDecimal))
	assert.True(t, NotNil(0))
	assert.True(t, NotNil(""))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "1.25", Normalize(decimal.RequireFromString("1.25")))
	assert.Equal(t, "1.25", Normalize(ptr(decimal.RequireFromString("1.25"))))
	assert.Equal(t, "3", Normalize(decimal.NullDecimal{Decimal: decimal.NewFromInt(3), Valid: true}))
	assert.Nil(t, Normalize(decimal.NullDecimal{}))
	assert.Equal(t, "1.25", Normalize(pgtype.Numeric{Int: big.NewInt(125), Exp: -2, Valid: true}))
	assert.Nil(t, Normalize(pgtype.Numeric{}))
	assert.Equal(t, 1.25, Normalize(1.25))
	assert.Equal(t, "1/3", Normalize(big.NewRat(1, 3)))
	assert.Equal(t, "0.25", Normalize(big.NewRat(1, 4)))
	assert.Equal(t, "-7", Normalize(big.NewRat(-14, 2)))
	assert.Equal(t, "0.25", Normalize(*big.NewRat(1, 4)))
	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	assert.Equal(t, "123456789012345678901234567890", Normalize(huge))
	assert.Equal(t, "0.1", Normalize(big.NewFloat(0.1)))
	assert.Equal(t, "x", Normalize("x"))
	assert.Nil(t, Normalize(nil))
}

func TestSegment(t *testing.T) {
	id := uuid.MustParse("2b1c6a2e-8f5e-4d8e-9a51-1f6c0f1d7c11")

	assert.Equal(t, "null", Segment(nil))
	assert.Equal(t, "5", Segment(5))
	assert.Equal(t, "5", Segment(ptr(int64(5))))
	assert.Equal(t, "dune", Segment("dune"))
	assert.Equal(t, "abc", Segment([]byte("abc")))
	assert.Equal(t, "2.5", Segment(decimal.RequireFromString("2.50")))
	assert.Equal(t, id.String(), Segment(id))
	assert.Equal(t, "true", Segment(true))
	assert.Equal(t, "a%20b%2Fc", Segment("a b/c"))
	assert.Equal(t, "%3F%23", Segment([]byte("?#")))
	assert.Equal(t, "1%2F3", Segment(big.NewRat(1, 3)))
}

func TestAssign(t *testing.T) {
	t.Run("nil resets", func(t *testing.T) {
		s := "x"
		require.NoError(t, Assign(&s, nil))
		assert.Empty(t, s)
	})

	t.Run("same type", func(t *testing.T) {
		var n int
		require.NoError(t, Assign(&n, 7))
		assert.Equal(t, 7, n)
	})

	t.Run("weak conversion", func(t *testing.T) {
		var n int32
		require.NoError(t, Assign(&n, "42"))
		assert.Equal(t, int32(42), n)

		var b bool
		require.NoError(t, Assign(&b, "true"))
		assert.True(t, b)
	})

	t.Run("pointer target", func(t *testing.T) {
		var p *string
		require.NoError(t, Assign(&p, "x"))
		require.NotNil(t, p)
		assert.Equal(t, "x", *p)
		require.NoError(t, Assign(&p, nil))
		assert.Nil(t, p)
	})

	t.Run("decimal", func(t *testing.T) {
		var d decimal.Decimal
		require.NoError(t, Assign(&d, json.Number("10.05")))
		assert.Equal(t, "10.05", d.String())
		require.NoError(t, Assign(&d, 3))
		assert.Equal(t, "3", d.String())
		assert.Error(t, Assign(&d, "ten"))
	})

	t.Run("big rat", func(t *testing.T) {
		var r *big.Rat
		require.NoError(t, Assign(&r, "1/3"))
		require.NotNil(t, r)
		assert.Equal(t, 0, r.Cmp(big.NewRat(1, 3)))
		require.NoError(t, Assign(&r, json.Number("0.25")))
		assert.Equal(t, 0, r.Cmp(big.NewRat(1, 4)))
		assert.Error(t, Assign(&r, "a third"))
	})

	t.Run("time", func(t *testing.T) {
		var ts time.Time
		require.NoError(t, Assign(&ts, "2024-05-01T10:00:00Z"))
		assert.Equal(t, 2024, ts.Year())
	})
}
