package collector

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"MarketSpider/internal/calculator"
	"MarketSpider/internal/config"
	"MarketSpider/internal/model"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// AlphaVantageFetcher implements Fetcher using the Alpha Vantage CSV query API.
// Intraday history is requested one calendar month at a time.
type AlphaVantageFetcher struct {
	BaseURL  string
	APIKey   string
	Adjusted bool
	Location *time.Location // timestamps are US/Eastern wall clock
	Now      func() time.Time

	http *httpClient
}

// NewAlphaVantageFetcher creates a new Alpha Vantage fetcher.
func NewAlphaVantageFetcher(src config.SourceConfig, proxyURL string, log logrus.FieldLogger) *AlphaVantageFetcher {
	base := src.BaseURL
	if base == "" {
		base = "https://www.alphavantage.co"
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &AlphaVantageFetcher{
		BaseURL:  base,
		APIKey:   src.APIKey,
		Location: loc,
		Now:      time.Now,
		http:     newHTTPClient("alpha", src, proxyURL, log),
	}
}

func (f *AlphaVantageFetcher) Name() string { return "alpha" }

func (f *AlphaVantageFetcher) function(interval string) (string, error) {
	suffix := ""
	if f.Adjusted {
		suffix = "_ADJUSTED"
	}
	switch interval {
	case "", "1d", "day", "daily":
		return "TIME_SERIES_DAILY" + suffix, nil
	case "1wk", "week", "weekly":
		return "TIME_SERIES_WEEKLY" + suffix, nil
	case "1mo", "month", "monthly":
		return "TIME_SERIES_MONTHLY" + suffix, nil
	}
	if _, ok := alphaInterval(interval); ok {
		return "TIME_SERIES_INTRADAY", nil
	}
	return "", fmt.Errorf("alpha: unsupported interval %q: %w", interval, model.ErrInvalidArgument)
}

// alphaInterval maps an interval onto the 1min/5min/15min/30min/60min set.
func alphaInterval(interval string) (string, bool) {
	n, ok := intervalMinutes(interval)
	if !ok {
		return "", false
	}
	switch n {
	case 1, 5, 15, 30, 60:
		return fmt.Sprintf("%dmin", n), true
	}
	return "", false
}

// FetchPrices downloads the bars of req, filtered to its window.
func (f *AlphaVantageFetcher) FetchPrices(ctx context.Context, req PriceRequest) (model.Series, error) {
	fn, err := f.function(req.Interval)
	if err != nil {
		return nil, err
	}
	start, end := req.window(f.Location, f.Now())

	q := url.Values{}
	q.Set("function", fn)
	q.Set("symbol", req.Symbol)
	q.Set("apikey", f.APIKey)
	q.Set("datatype", "csv")
	q.Set("outputsize", "full")

	var out model.Series
	if fn != "TIME_SERIES_INTRADAY" {
		rows, err := f.query(ctx, req.Symbol, q, false)
		if err != nil {
			return nil, err
		}
		out = rows
	} else {
		iv, _ := alphaInterval(req.Interval)
		q.Set("interval", iv)
		q.Set("adjusted", strconv.FormatBool(f.Adjusted))
		q.Set("extended_hours", strconv.FormatBool(req.PrePost))
		if start.IsZero() {
			start = end.AddDate(0, 0, -1)
		}
		for _, month := range alphaMonths(start, end) {
			q.Set("month", month)
			rows, err := f.query(ctx, req.Symbol, q, true)
			if err != nil {
				return nil, err
			}
			out = append(out, rows...)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].TimeKey().Before(out[j].TimeKey()) })
	return calculator.Deduplicate(out.Between(start, end)), nil
}

// alphaMonths lists YYYY-MM for every month touching [start, end].
func alphaMonths(start, end time.Time) []string {
	var out []string
	m := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !m.After(end) {
		out = append(out, m.Format("2006-01"))
		m = m.AddDate(0, 1, 0)
	}
	return out
}

func (f *AlphaVantageFetcher) query(ctx context.Context, symbol string, q url.Values, intraday bool) (model.Series, error) {
	body, err := f.http.get(ctx, f.BaseURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("alpha %s: %w", symbol, err)
	}
	// errors and quota notices come back as JSON with a 200 status
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var msg map[string]string
		if err := json.Unmarshal(trimmed, &msg); err == nil {
			for _, k := range []string{"Error Message", "Note", "Information"} {
				if v, ok := msg[k]; ok {
					return nil, fmt.Errorf("alpha %s: %s", symbol, v)
				}
			}
		}
		return nil, fmt.Errorf("alpha %s: unexpected JSON response", symbol)
	}
	rows, err := f.parseCSV(body, symbol, intraday)
	if err != nil {
		return nil, fmt.Errorf("alpha %s: %w", symbol, err)
	}
	return rows, nil
}

func (f *AlphaVantageFetcher) parseCSV(body []byte, symbol string, intraday bool) (model.Series, error) {
	r := csv.NewReader(bytes.NewReader(body))
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	if _, ok := col["timestamp"]; !ok {
		return nil, fmt.Errorf("csv without timestamp column: %v", header)
	}
	field := func(rec []string, name string) decimal.NullDecimal {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return decimal.NullDecimal{}
		}
		d, err := decimal.NewFromString(strings.TrimSpace(rec[i]))
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	}

	var out model.Series
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		ts := rec[col["timestamp"]]
		row := model.PriceRow{
			Symbol:   symbol,
			Open:     field(rec, "open"),
			High:     field(rec, "high"),
			Low:      field(rec, "low"),
			Close:    field(rec, "close"),
			AdjClose: field(rec, "adjusted_close"),
		}
		if v := field(rec, "volume"); v.Valid {
			row.Volume = null.IntFrom(v.Decimal.IntPart())
		}
		if intraday {
			at, err := time.ParseInLocation(time.DateTime, ts, f.Location)
			if err != nil {
				return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
			}
			row.Datetime = null.TimeFrom(at)
			row.Date = model.DateOf(at, nil)
		} else {
			d, err := time.Parse(time.DateOnly, ts)
			if err != nil {
				return nil, fmt.Errorf("parse date %q: %w", ts, err)
			}
			row.Date = d
		}
		out = append(out, row)
	}
	return out, nil
}
