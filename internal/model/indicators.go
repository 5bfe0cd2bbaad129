package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ExtendedHours holds the pre-market and post-market aggregates of one trading date.
type ExtendedHours struct {
	Date time.Time

	PreHigh    decimal.NullDecimal
	PreHighPct decimal.NullDecimal
	PreLow     decimal.NullDecimal
	PreLowPct  decimal.NullDecimal
	PreChange  decimal.NullDecimal

	PostHigh    decimal.NullDecimal
	PostHighPct decimal.NullDecimal
	PostLow     decimal.NullDecimal
	PostLowPct  decimal.NullDecimal
	PostChange  decimal.NullDecimal
}

// TopMover is the largest constituent attached to a market's daily report.
type TopMover struct {
	Symbol string
	Close  decimal.NullDecimal
	Change decimal.NullDecimal
}

// DailyReport is one session of a daily market pipeline: the index row with its
// derived columns, joined with extended hours, auxiliary indicators and the top mover.
type DailyReport struct {
	Market     string
	Index      PriceRow
	Extended   *ExtendedHours
	Indicators map[string]decimal.NullDecimal
	Top        *TopMover
}

// Date returns the session date of the report.
func (r DailyReport) Date() time.Time { return r.Index.Date }

// IndicatorNames returns the indicator columns in a stable order.
func (r DailyReport) IndicatorNames() []string {
	names := make([]string, 0, len(r.Indicators))
	for k := range r.Indicators {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
