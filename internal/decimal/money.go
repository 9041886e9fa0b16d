package decimal

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is decimal zero
var Zero = decimal.Zero

var hundred = decimal.NewFromInt(100)

// FromFloat creates decimal from float with rounding to cents
func FromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// FromString parses decimal from string
func FromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

// MustFromString parses decimal from string, panics on error
func MustFromString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Round2 rounds half away from zero to 2 decimal places (EUR cents)
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ToDecimal converts a loosely typed value (JSON number, Go numeric, numeric
// string) into a decimal. The second return is false when v is nil or not numeric.
func ToDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return Zero, false
	case decimal.Decimal:
		return n, true
	case *decimal.Decimal:
		if n == nil {
			return Zero, false
		}
		return *n, true
	case decimal.NullDecimal:
		return n.Decimal, n.Valid
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return Zero, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
			return Zero, false
		}
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint64:
		return decimal.RequireFromString(strconv.FormatUint(n, 10)), true
	case bool:
		if n {
			return decimal.NewFromInt(1), true
		}
		return Zero, true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return Zero, false
		}
		if d, err := decimal.NewFromString(s); err == nil {
			return d, true
		}
		// Accept exponent and special forms the decimal parser rejects
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Zero, false
		}
		return decimal.NewFromFloat(f), true
	default:
		return Zero, false
	}
}

// Format2 renders v with exactly two decimals and a dot separator.
// Nil or non-numeric input renders as "0.00".
func Format2(v any) string {
	d, ok := ToDecimal(v)
	if !ok {
		return "0.00"
	}
	return d.StringFixed(2)
}

// WithinTolerance reports whether |a-b| <= tol
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

// CalculateVAT computes VAT amount: net * (rate/100), rounded to cents
func CalculateVAT(net, ratePercent decimal.Decimal) decimal.Decimal {
	if ratePercent.IsZero() {
		return Zero
	}
	return net.Mul(ratePercent).Div(hundred).Round(2)
}

// Sum sums a slice of decimals
func Sum(values []decimal.Decimal) decimal.Decimal {
	result := Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

// IsPositive returns true if decimal is greater than zero
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(Zero)
}

// IsNonNegative returns true if decimal is >= zero
func IsNonNegative(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(Zero)
}
