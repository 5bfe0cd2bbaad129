package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
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

// The candles endpoint returns at most this many bars per request.
const squareMaxLimit = 1000

// SquareFetcher implements Fetcher using the Alpha Square candles API for KRX listings.
type SquareFetcher struct {
	BaseURL  string
	Token    string
	Limit    int
	Location *time.Location
	Now      func() time.Time

	http *httpClient
}

// NewSquareFetcher creates a new Alpha Square fetcher.
func NewSquareFetcher(src config.SourceConfig, proxyURL string, log logrus.FieldLogger) *SquareFetcher {
	base := src.BaseURL
	if base == "" {
		base = "https://api.alphasquare.co.kr"
	}
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.FixedZone("KST", 9*3600)
	}
	return &SquareFetcher{
		BaseURL:  base,
		Token:    src.Token,
		Limit:    600,
		Location: loc,
		Now:      time.Now,
		http:     newHTTPClient("square", src, proxyURL, log),
	}
}

func (f *SquareFetcher) Name() string { return "square" }

// squareFreq maps an interval onto the day / minute-N frequencies of the API.
func squareFreq(interval string) (string, error) {
	switch interval {
	case "", "1d", "day":
		return "day", nil
	}
	if n, ok := intervalMinutes(interval); ok {
		return fmt.Sprintf("minute-%d", n), nil
	}
	return "", fmt.Errorf("square: unsupported interval %q: %w", interval, model.ErrInvalidArgument)
}

type squareCandles struct {
	Data [][]json.Number `json:"data"`
}

// FetchPrices downloads the latest candles of req.ID (or req.Symbol) and keeps those inside the window.
func (f *SquareFetcher) FetchPrices(ctx context.Context, req PriceRequest) (model.Series, error) {
	freq, err := squareFreq(req.Interval)
	if err != nil {
		return nil, err
	}
	id := req.ID
	if id == "" {
		id = req.Symbol
	}
	limit := f.Limit
	if limit <= 0 || limit > squareMaxLimit {
		limit = squareMaxLimit
	}

	q := url.Values{}
	q.Set("freq", freq)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("include_current_candle", "false")
	u := fmt.Sprintf("%s/data/v3/prices/candles/%s?%s", f.BaseURL, url.PathEscape(id), q.Encode())

	header := http.Header{}
	if f.Token != "" {
		header.Set("X-Csrftoken", f.Token)
	}
	body, err := f.http.get(ctx, u, header)
	if err != nil {
		return nil, fmt.Errorf("square %s: %w", req.Symbol, err)
	}

	var resp squareCandles
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("square %s: decode: %w", req.Symbol, err)
	}

	intraday := freq != "day"
	rows := make(model.Series, 0, len(resp.Data))
	for _, c := range resp.Data {
		if len(c) < 5 {
			continue
		}
		ms, err := c[0].Int64()
		if err != nil {
			return nil, fmt.Errorf("square %s: timestamp %q: %w", req.Symbol, c[0], err)
		}
		at := time.UnixMilli(ms).In(f.Location)
		row := model.PriceRow{
			Code:  req.Symbol,
			ID:    id,
			Date:  model.DateOf(at, nil),
			Open:  number(c, 1),
			High:  number(c, 2),
			Low:   number(c, 3),
			Close: number(c, 4),
		}
		if v := number(c, 5); v.Valid {
			row.Volume = null.IntFrom(v.Decimal.IntPart())
		}
		if intraday {
			row.Datetime = null.TimeFrom(at)
		}
		rows = append(rows, row)
	}

	start, end := req.window(f.Location, f.Now())
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TimeKey().Before(rows[j].TimeKey()) })
	return calculator.Deduplicate(rows.Between(start, end)), nil
}

func number(c []json.Number, i int) decimal.NullDecimal {
	if i >= len(c) || c[i] == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(c[i].String())
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
