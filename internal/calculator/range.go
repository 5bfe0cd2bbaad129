package calculator

import "github.com/shopspring/decimal"

// maxOf returns the larger valid value; a null side yields the other.
func maxOf(a, b decimal.NullDecimal) decimal.NullDecimal {
	switch {
	case !a.Valid:
		return b
	case !b.Valid:
		return a
	case b.Decimal.GreaterThan(a.Decimal):
		return b
	default:
		return a
	}
}

// minOf returns the smaller valid value; a null side yields the other.
func minOf(a, b decimal.NullDecimal) decimal.NullDecimal {
	switch {
	case !a.Valid:
		return b
	case !b.Valid:
		return a
	case b.Decimal.LessThan(a.Decimal):
		return b
	default:
		return a
	}
}

// distance returns |a - b|.
func distance(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b).Abs()
}
