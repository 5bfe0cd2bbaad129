package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"MarketSpider/internal/calculator"
	"MarketSpider/internal/config"
	"MarketSpider/internal/model"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Look-back limits of the chart API per interval, in days. Intervals missing
// from the map have no limit.
var yahooDateLimit = map[string]int{
	"1m": 30, "2m": 60, "5m": 60, "15m": 60, "30m": 60, "90m": 60,
	"60m": 730, "1h": 730,
}

// The chart API serves at most 7 days of 1m bars per request.
const yahooMinuteSpan = 7

// YahooFetcher implements Fetcher using the Yahoo Finance chart API.
type YahooFetcher struct {
	BaseURL   string
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
	Digits    int32             // decimal places kept on prices
	Now       func() time.Time

	http *httpClient
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(src config.SourceConfig, proxyURL string, log logrus.FieldLogger) *YahooFetcher {
	base := src.BaseURL
	if base == "" {
		base = "https://query1.finance.yahoo.com"
	}
	return &YahooFetcher{
		BaseURL: base,
		SymbolMap: map[string]string{
			"SPX":    "^GSPC",
			"NASDAQ": "^IXIC",
			"KOSPI":  "^KS11",
			"KOSDAQ": "^KQ11",
		},
		Digits: 2,
		Now:    time.Now,
		http:   newHTTPClient("yahoo", src, proxyURL, log),
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
				GMTOffset            int    `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (f *YahooFetcher) toDecimal(v []*float64, i int) decimal.NullDecimal {
	if i >= len(v) || v[i] == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v[i]).Round(f.Digits))
}

// FetchPrices downloads the bars of req, splitting the window where the API requires it.
func (f *YahooFetcher) FetchPrices(ctx context.Context, req PriceRequest) (model.Series, error) {
	interval := req.Interval
	if interval == "" {
		interval = "1d"
	}
	start, end := f.dateRange(req, interval)

	var out model.Series
	for _, p := range yahooPeriods(start, end, interval) {
		rows, err := f.fetchChart(ctx, req, interval, p[0], p[1])
		if err != nil {
			return nil, fmt.Errorf("yahoo %s: %w", req.Symbol, err)
		}
		out = append(out, rows...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimeKey().Before(out[j].TimeKey()) })
	return calculator.Deduplicate(out), nil
}

// dateRange clamps the request to the look-back limit of interval.
func (f *YahooFetcher) dateRange(req PriceRequest, interval string) (time.Time, time.Time) {
	start, end := req.window(time.UTC, f.Now())
	limit, ok := yahooDateLimit[interval]
	if !ok {
		return start, end
	}
	if start.IsZero() {
		return end.AddDate(0, 0, -limit), end
	}
	if int(end.Sub(start).Hours()/24) <= limit {
		return start, end
	}
	if req.End.Valid {
		return end.AddDate(0, 0, -limit), end
	}
	return start, start.AddDate(0, 0, limit)
}

// yahooPeriods splits 1m windows into 7-day chunks; other intervals go in one request.
func yahooPeriods(start, end time.Time, interval string) [][2]time.Time {
	if interval != "1m" || start.IsZero() {
		return [][2]time.Time{{start, end}}
	}
	var out [][2]time.Time
	for from := start; !from.After(end); from = from.AddDate(0, 0, yahooMinuteSpan) {
		to := from.AddDate(0, 0, yahooMinuteSpan-1)
		if to.After(end) {
			to = end
		}
		out = append(out, [2]time.Time{from, to})
	}
	return out
}

func (f *YahooFetcher) fetchChart(ctx context.Context, req PriceRequest, interval string, start, end time.Time) (model.Series, error) {
	q := url.Values{}
	q.Set("interval", interval)
	q.Set("includePrePost", strconv.FormatBool(req.PrePost))
	q.Set("includeAdjustedClose", "true")
	if start.IsZero() {
		q.Set("period1", "0")
	} else {
		q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	}
	// period2 is exclusive
	q.Set("period2", strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10))
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", f.BaseURL, url.PathEscape(f.yahooSymbol(req.Symbol)), q.Encode())

	body, err := f.http.get(ctx, u, nil)
	if err != nil {
		return nil, err
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	loc := time.FixedZone("exchange", result.Meta.GMTOffset)
	if result.Meta.ExchangeTimezoneName != "" {
		if l, err := time.LoadLocation(result.Meta.ExchangeTimezoneName); err == nil {
			loc = l
		}
	}
	quote := result.Indicators.Quote[0]
	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}
	intraday := IsIntraday(interval)

	rows := make(model.Series, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		row := model.PriceRow{
			Symbol:   req.Symbol,
			Open:     f.toDecimal(quote.Open, i),
			High:     f.toDecimal(quote.High, i),
			Low:      f.toDecimal(quote.Low, i),
			Close:    f.toDecimal(quote.Close, i),
			AdjClose: f.toDecimal(adj, i),
		}
		if !row.Open.Valid && !row.High.Valid && !row.Low.Valid && !row.Close.Valid {
			continue // skip null bars (holidays etc.)
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			row.Volume = null.IntFrom(*quote.Volume[i])
		}
		at := time.Unix(ts, 0).In(loc)
		row.Date = model.DateOf(at, nil)
		if intraday {
			row.Datetime = null.TimeFrom(at)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
