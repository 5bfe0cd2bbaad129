package calculator

import (
	"fmt"
	"sort"
	"time"

	"MarketSpider/internal/model"

	"github.com/shopspring/decimal"
)

// ResolvePreviousClose fills PreviousClose on every row of a single-instrument series.
//
// Daily series shift Close by one row. Intraday series use the prior date's
// regular-session close: the Close of the last row of that date with positive
// volume. Every row of a date shares the same reference, and rows whose date has
// no earlier closing date get null.
func ResolvePreviousClose(series model.Series, opts Options) (model.Series, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	out := series.Clone()
	if len(out) == 0 {
		return out, nil
	}
	if !out.Intraday() {
		out[0].PreviousClose = decimal.NullDecimal{}
		for i := 1; i < len(out); i++ {
			out[i].PreviousClose = out[i-1].Close
		}
		return out, nil
	}
	return resolveIntraday(out, opts.Location)
}

func resolveIntraday(out model.Series, loc *time.Location) (model.Series, error) {
	hasVolume := false
	for _, r := range out {
		if r.Volume.Valid {
			hasVolume = true
			break
		}
	}
	if !hasVolume {
		return nil, fmt.Errorf("intraday series %q has no volume: %w", out[0].Key(), model.ErrInvalidArgument)
	}

	dates := make([]time.Time, len(out))
	closes := make(map[time.Time]decimal.Decimal)
	for i, r := range out {
		d := rowDate(r, loc)
		dates[i] = d
		if out[i].Date.IsZero() {
			out[i].Date = d
		}
		if r.Volume.Valid && r.Volume.Int64 > 0 && r.Close.Valid {
			closes[d] = r.Close.Decimal
		}
	}

	closed := make([]time.Time, 0, len(closes))
	for d := range closes {
		closed = append(closed, d)
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].Before(closed[j]) })

	for i := range out {
		// index of the first closing date not before this row's date
		j := sort.Search(len(closed), func(k int) bool { return !closed[k].Before(dates[i]) })
		if j == 0 {
			out[i].PreviousClose = decimal.NullDecimal{}
			continue
		}
		out[i].PreviousClose = decimal.NewNullDecimal(closes[closed[j-1]])
	}
	return out, nil
}
