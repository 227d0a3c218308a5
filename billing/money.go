package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Yen amounts are whole numbers; rates may carry fractions
// =============================================================================

var (
	sixty = decimal.NewFromInt(60)

	// DefaultMarkup is applied to auto-markup expense categories.
	DefaultMarkup = decimal.RequireFromString("1.2")
)

// RoundYen rounds half away from zero to a whole amount.
func RoundYen(d decimal.Decimal) decimal.Decimal { return d.Round(0) }

// CeilYen rounds up to a whole amount.
func CeilYen(d decimal.Decimal) decimal.Decimal { return d.Ceil() }

// MarkedUp returns ceil(cost × markup).
func MarkedUp(cost, markup decimal.Decimal) decimal.Decimal {
	return CeilYen(cost.Mul(markup))
}

// AmountFor computes round(hours × rate) from exact minutes so sums of
// fractional hours do not drift.
func AmountFor(m Minutes, rate decimal.Decimal) decimal.Decimal {
	return RoundYen(decimal.NewFromInt(int64(m)).Mul(rate).Div(sixty))
}

// FormatYen renders an amount with thousands separators, e.g. 11000 -> "11,000".
// Fractional digits are kept when present.
func FormatYen(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().String()
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteByte(',')
		b.WriteString(intPart[i : i+3])
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
