package calculator

import (
	"fmt"
	"time"

	"MarketSpider/internal/model"

	"github.com/shopspring/decimal"
)

// DefaultPrecision is the number of decimal places kept on derived percentages.
const DefaultPrecision = 4

// Clock is a wall-clock time of day used for extended-hours cutoffs.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("parse clock %q: %w", s, model.ErrInvalidArgument)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

func (c Clock) seconds() int { return c.Hour*3600 + c.Minute*60 }

// Options configures every transformation. The zero value disables rounding,
// keeps timestamps in their own location and uses no drawdown seed.
type Options struct {
	Precision        *int
	Location         *time.Location
	SeedMax          decimal.NullDecimal
	PreMarketCutoff  Clock
	PostMarketCutoff Clock
}

// DefaultOptions returns the US regular-session setup with four-digit rounding.
func DefaultOptions() Options {
	p := DefaultPrecision
	return Options{
		Precision:        &p,
		PreMarketCutoff:  Clock{Hour: 9, Minute: 30},
		PostMarketCutoff: Clock{Hour: 16},
	}
}

// WithPrecision returns a copy of o rounding to p places.
func (o Options) WithPrecision(p int) Options {
	o.Precision = &p
	return o
}

// WithSeed returns a copy of o seeding the drawdown running max.
func (o Options) WithSeed(max decimal.Decimal) Options {
	o.SeedMax = decimal.NewNullDecimal(max)
	return o
}

// Validate rejects configuration no transformation can honour.
func (o Options) Validate() error {
	if o.Precision != nil && *o.Precision < 0 {
		return fmt.Errorf("precision %d: %w", *o.Precision, model.ErrInvalidArgument)
	}
	for _, c := range []Clock{o.PreMarketCutoff, o.PostMarketCutoff} {
		if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
			return fmt.Errorf("cutoff %s: %w", c, model.ErrInvalidArgument)
		}
	}
	return nil
}

func (o Options) round(d decimal.Decimal) decimal.Decimal {
	if o.Precision == nil {
		return d
	}
	return d.Round(int32(*o.Precision))
}

// ratio returns (value - base) / base, or null when either side is missing or base is zero.
func (o Options) ratio(value, base decimal.NullDecimal) decimal.NullDecimal {
	if !value.Valid || !base.Valid || base.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(o.round(value.Decimal.Sub(base.Decimal).Div(base.Decimal)))
}

// rowDate resolves the calendar date of r, deriving it from Datetime in loc when set.
func rowDate(r model.PriceRow, loc *time.Location) time.Time {
	if r.Datetime.Valid && (loc != nil || r.Date.IsZero()) {
		return model.DateOf(r.Datetime.Time, loc)
	}
	return r.Date
}
