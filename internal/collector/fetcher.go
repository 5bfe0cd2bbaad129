package collector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"MarketSpider/internal/config"
	"MarketSpider/internal/model"

	"github.com/guregu/null/v6"
	"github.com/sirupsen/logrus"
)

// PriceRequest asks a provider for the price history of one instrument.
type PriceRequest struct {
	Symbol   string    // ticker, or the six-digit code of a KRX listing
	ID       string    // provider-internal id when it differs from Symbol
	Start    null.Time // inclusive; providers pick their own default when null
	End      null.Time // inclusive
	Interval string    // 1d, 1wk, 1mo, 1h, 5m ...
	PrePost  bool      // include extended-hours bars
}

// Fetcher defines the interface for fetching price history.
type Fetcher interface {
	FetchPrices(ctx context.Context, req PriceRequest) (model.Series, error)
	Name() string
}

// New creates the fetcher of a configured provider.
func New(provider string, sources config.SourcesConfig, proxyURL string, log logrus.FieldLogger) (Fetcher, error) {
	switch provider {
	case "yahoo":
		return NewYahooFetcher(sources.Yahoo, proxyURL, log), nil
	case "alpha":
		return NewAlphaVantageFetcher(sources.Alpha, proxyURL, log), nil
	case "square":
		return NewSquareFetcher(sources.Square, proxyURL, log), nil
	}
	return nil, fmt.Errorf("provider %q: %w", provider, model.ErrInvalidArgument)
}

// IsIntraday reports whether interval produces sub-daily bars.
func IsIntraday(interval string) bool {
	_, ok := intervalMinutes(interval)
	return ok
}

// intervalMinutes parses 5m, 5min, minute-5, 1h and 60m style intervals.
func intervalMinutes(interval string) (int, bool) {
	s := strings.ToLower(strings.TrimSpace(interval))
	var num string
	mult := 1
	switch {
	case strings.HasPrefix(s, "minute-"):
		num = strings.TrimPrefix(s, "minute-")
	case strings.HasSuffix(s, "min"):
		num = strings.TrimSuffix(s, "min")
	case strings.HasSuffix(s, "m") && !strings.HasSuffix(s, "mo"):
		num = strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "h"):
		num = strings.TrimSuffix(s, "h")
		mult = 60
	default:
		return 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n * mult, true
}

// window returns the request bounds as dates, defaulting End to today in loc.
func (r PriceRequest) window(loc *time.Location, now time.Time) (time.Time, time.Time) {
	end := model.DateOf(now, loc)
	if r.End.Valid {
		end = model.DateOf(r.End.Time, nil)
	}
	var start time.Time
	if r.Start.Valid {
		start = model.DateOf(r.Start.Time, nil)
	}
	return start, end
}
