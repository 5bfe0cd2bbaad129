package model

import (
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// PriceRow represents a single OHLCV observation plus the columns derived from it.
type PriceRow struct {
	Symbol string // US instruments
	Code   string // KR instruments
	ID     string // provider-internal id, passed through untouched

	Date     time.Time // calendar date, midnight UTC
	Datetime null.Time // set only for intraday rows

	Open     decimal.NullDecimal
	High     decimal.NullDecimal
	Low      decimal.NullDecimal
	Close    decimal.NullDecimal
	AdjClose decimal.NullDecimal
	Volume   null.Int

	PreviousClose decimal.NullDecimal
	Gap           decimal.NullDecimal
	HighPct       decimal.NullDecimal
	LowPct        decimal.NullDecimal
	Change        decimal.NullDecimal
	MaxPrice      decimal.NullDecimal
	DrawDown      decimal.NullDecimal
}

// Key returns the instrument identifier, preferring Symbol over Code.
func (r PriceRow) Key() string {
	if r.Symbol != "" {
		return r.Symbol
	}
	return r.Code
}

// IsIntraday reports whether the row carries a wall-clock timestamp.
func (r PriceRow) IsIntraday() bool { return r.Datetime.Valid }

// TimeKey is the ordering key of the row: Datetime when present, else Date.
func (r PriceRow) TimeKey() time.Time {
	if r.Datetime.Valid {
		return r.Datetime.Time
	}
	return r.Date
}

// Series is an ordered run of rows sharing one instrument.
type Series []PriceRow

// Table is an unordered, possibly mixed-instrument collection of rows.
type Table []PriceRow

// Clone returns a shallow copy so callers can derive columns without touching the input.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// Intraday reports whether any row of the series carries a Datetime.
func (s Series) Intraday() bool {
	for _, r := range s {
		if r.Datetime.Valid {
			return true
		}
	}
	return false
}

// Between returns the rows whose Date falls within [start, end]. Zero bounds are open.
func (s Series) Between(start, end time.Time) Series {
	out := make(Series, 0, len(s))
	for _, r := range s {
		if !start.IsZero() && r.Date.Before(start) {
			continue
		}
		if !end.IsZero() && r.Date.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// DateOf truncates t to its calendar date in loc and returns it as midnight UTC.
// A nil loc keeps t's own location.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDate builds a midnight-UTC date.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Dec wraps a float into a valid NullDecimal.
func Dec(f float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(f))
}
