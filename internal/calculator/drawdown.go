package calculator

import (
	"fmt"
	"time"

	"MarketSpider/internal/model"
)

// CalcDrawdown adds MaxPrice, the running maximum of High, and DrawDown, the
// decline of Close from it. A seed max in opts raises the starting baseline and
// never shows up as a row. Rows lacking High or Close get no drawdown columns,
// though a present High still lifts the running maximum.
func CalcDrawdown(series model.Series, opts Options) (model.Series, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	out := series.Clone()
	running := opts.SeedMax
	for i := range out {
		r := &out[i]
		running = maxOf(running, r.High)
		if !r.High.Valid || !r.Close.Valid {
			continue
		}
		r.MaxPrice = running
		r.DrawDown = opts.ratio(r.Close, running)
	}
	return out, nil
}

// Anomaly describes a row breaking the OHLC ordering expected of clean data.
type Anomaly struct {
	Index  int
	Key    string
	At     time.Time
	Reason string
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s %s: %s", a.Key, a.At.Format(time.RFC3339), a.Reason)
}

// CheckBounds reports rows where low <= open, close <= high does not hold, and
// rows whose close exceeds the running max. Nothing is clamped.
func CheckBounds(series model.Series) []Anomaly {
	var out []Anomaly
	for i, r := range series {
		add := func(reason string) {
			out = append(out, Anomaly{Index: i, Key: r.Key(), At: r.TimeKey(), Reason: reason})
		}
		if r.High.Valid && r.Low.Valid && r.Low.Decimal.GreaterThan(r.High.Decimal) {
			add("low above high")
		}
		if r.High.Valid {
			if r.Open.Valid && r.Open.Decimal.GreaterThan(r.High.Decimal) {
				add("open above high")
			}
			if r.Close.Valid && r.Close.Decimal.GreaterThan(r.High.Decimal) {
				add("close above high")
			}
		}
		if r.Low.Valid {
			if r.Open.Valid && r.Open.Decimal.LessThan(r.Low.Decimal) {
				add("open below low")
			}
			if r.Close.Valid && r.Close.Decimal.LessThan(r.Low.Decimal) {
				add("close below low")
			}
		}
		if r.DrawDown.Valid && r.DrawDown.Decimal.IsPositive() {
			add("close above running max")
		}
	}
	return out
}
