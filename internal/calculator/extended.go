package calculator

import (
	"sort"
	"time"

	"MarketSpider/internal/model"

	"github.com/shopspring/decimal"
)

type window int

const (
	preMarket window = iota
	postMarket
)

type extrema struct {
	high, low       decimal.NullDecimal
	highPct, lowPct decimal.NullDecimal
}

// AggregateExtendedHours summarizes zero-volume intraday rows into one
// ExtendedHours row per date. Rows at or before the pre-market cutoff fall into
// the pre window and rows at or after the post-market cutoff into the post
// window, both compared in opts.Location. Dates come from the outer join of both
// windows with dailyRef, whose Open picks the representative change: the high
// percentage when the high is further from the open than the low, else the low
// percentage.
func AggregateExtendedHours(series, dailyRef model.Series, opts Options) ([]model.ExtendedHours, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	aggs := [2]map[time.Time]*extrema{{}, {}}
	for _, r := range series {
		if !r.Datetime.Valid || !r.Volume.Valid || r.Volume.Int64 != 0 {
			continue
		}
		t := r.Datetime.Time
		if opts.Location != nil {
			t = t.In(opts.Location)
		}
		sec := t.Hour()*3600 + t.Minute()*60 + t.Second()
		var w window
		switch {
		case sec <= opts.PreMarketCutoff.seconds():
			w = preMarket
		case sec >= opts.PostMarketCutoff.seconds():
			w = postMarket
		default:
			continue
		}
		d := model.DateOf(t, nil)
		e, ok := aggs[w][d]
		if !ok {
			e = &extrema{}
			aggs[w][d] = e
		}
		e.high = maxOf(e.high, r.High)
		e.low = minOf(e.low, r.Low)
		e.highPct = maxOf(e.highPct, r.HighPct)
		e.lowPct = minOf(e.lowPct, r.LowPct)
	}

	opens := make(map[time.Time]decimal.NullDecimal, len(dailyRef))
	for _, r := range dailyRef {
		opens[rowDate(r, opts.Location)] = r.Open
	}

	seen := make(map[time.Time]struct{})
	for _, m := range aggs {
		for d := range m {
			seen[d] = struct{}{}
		}
	}
	for d := range opens {
		seen[d] = struct{}{}
	}
	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]model.ExtendedHours, 0, len(dates))
	for _, d := range dates {
		row := model.ExtendedHours{Date: d}
		open := opens[d]
		if e, ok := aggs[preMarket][d]; ok {
			row.PreHigh, row.PreHighPct = e.high, e.highPct
			row.PreLow, row.PreLowPct = e.low, e.lowPct
			row.PreChange = e.representative(open)
		}
		if e, ok := aggs[postMarket][d]; ok {
			row.PostHigh, row.PostHighPct = e.high, e.highPct
			row.PostLow, row.PostLowPct = e.low, e.lowPct
			row.PostChange = e.representative(open)
		}
		out = append(out, row)
	}
	return out, nil
}

func (e *extrema) representative(open decimal.NullDecimal) decimal.NullDecimal {
	if !open.Valid || !e.high.Valid || !e.low.Valid {
		return decimal.NullDecimal{}
	}
	if distance(open.Decimal, e.high.Decimal).GreaterThan(distance(open.Decimal, e.low.Decimal)) {
		return e.highPct
	}
	return e.lowPct
}
