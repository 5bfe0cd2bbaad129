package calculator

import (
	"MarketSpider/internal/model"

	"github.com/shopspring/decimal"
)

// CalcChange derives Gap, HighPct, LowPct and Change from PreviousClose.
// Gap is left null on rows carrying a Datetime.
func CalcChange(series model.Series, opts Options) (model.Series, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	out := series.Clone()
	for i := range out {
		r := &out[i]
		if r.Datetime.Valid {
			r.Gap = decimal.NullDecimal{}
		} else {
			r.Gap = opts.ratio(r.Open, r.PreviousClose)
		}
		r.HighPct = opts.ratio(r.High, r.PreviousClose)
		r.LowPct = opts.ratio(r.Low, r.PreviousClose)
		r.Change = opts.ratio(r.Close, r.PreviousClose)
	}
	return out, nil
}

// SetChange resolves previous closes when the series carries none yet and then
// derives the change columns. A series without any Close is returned as is.
func SetChange(series model.Series, opts Options) (model.Series, error) {
	if !hasClose(series) {
		return series.Clone(), nil
	}
	out := series
	if !hasPreviousClose(series) {
		var err error
		if out, err = ResolvePreviousClose(series, opts); err != nil {
			return nil, err
		}
	}
	return CalcChange(out, opts)
}

func hasClose(s model.Series) bool {
	for _, r := range s {
		if r.Close.Valid {
			return true
		}
	}
	return false
}

func hasPreviousClose(s model.Series) bool {
	for _, r := range s {
		if r.PreviousClose.Valid {
			return true
		}
	}
	return false
}
