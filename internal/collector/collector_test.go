package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"MarketSpider/internal/config"
	"MarketSpider/internal/model"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(d int) time.Time { return model.NewDate(2024, time.March, d) }

func assertDec(t *testing.T, want string, got decimal.NullDecimal) {
	t.Helper()
	require.True(t, got.Valid)
	assert.True(t, decimal.RequireFromString(want).Equal(got.Decimal), "want %s, got %s", want, got.Decimal)
}

func fastSource() config.SourceConfig {
	return config.SourceConfig{Retries: 2}
}

const yahooDaily = `{"chart":{"result":[{
  "meta":{"exchangeTimezoneName":"America/New_York","gmtoffset":-18000},
  "timestamp":[1709562600,1709649000,1709735400],
  "indicators":{
    "quote":[{"open":[100.123,101,null],"high":[102,103,null],"low":[99,100,null],"close":[101,102.5,null],"volume":[1000,2000,null]}],
    "adjclose":[{"adjclose":[100.9,102.4,null]}]
  }}],"error":null}}`

func TestYahooFetcher_Daily(t *testing.T) {
	var query atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/^IXIC", r.URL.Path)
		query.Store(r.URL.Query())
		fmt.Fprint(w, yahooDaily)
	}))
	defer srv.Close()

	f := NewYahooFetcher(fastSource(), "", nil)
	f.BaseURL = srv.URL

	rows, err := f.FetchPrices(context.Background(), PriceRequest{
		Symbol: "NASDAQ", Start: null.TimeFrom(date(4)), End: null.TimeFrom(date(6)), Interval: "1d",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	q := query.Load().(url.Values)
	assert.Equal(t, []string{"1d"}, q["interval"])
	assert.Equal(t, []string{"false"}, q["includePrePost"])
	assert.Equal(t, []string{fmt.Sprint(date(4).Unix())}, q["period1"])
	assert.Equal(t, []string{fmt.Sprint(date(7).Unix())}, q["period2"])

	assert.Equal(t, "NASDAQ", rows[0].Symbol)
	assert.Equal(t, date(4), rows[0].Date)
	assert.False(t, rows[0].Datetime.Valid)
	assertDec(t, "100.12", rows[0].Open)
	assertDec(t, "100.9", rows[0].AdjClose)
	assert.Equal(t, int64(2000), rows[1].Volume.Int64)
}

func TestYahooFetcher_Intraday(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("includePrePost"))
		fmt.Fprint(w, yahooDaily)
	}))
	defer srv.Close()

	f := NewYahooFetcher(fastSource(), "", nil)
	f.BaseURL = srv.URL
	f.Now = func() time.Time { return date(6) }

	rows, err := f.FetchPrices(context.Background(), PriceRequest{Symbol: "QQQ", Interval: "1h", PrePost: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.True(t, rows[0].Datetime.Valid)
	assert.Equal(t, "America/New_York", rows[0].Datetime.Time.Location().String())
	assert.Equal(t, 9, rows[0].Datetime.Time.Hour())
	assert.Equal(t, 30, rows[0].Datetime.Time.Minute())
}

func TestYahooFetcher_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	}))
	defer srv.Close()

	f := NewYahooFetcher(fastSource(), "", nil)
	f.BaseURL = srv.URL
	_, err := f.FetchPrices(context.Background(), PriceRequest{Symbol: "XXXX"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delisted")
}

func TestYahooDateRange(t *testing.T) {
	f := NewYahooFetcher(fastSource(), "", nil)
	f.Now = func() time.Time { return date(30) }

	start, end := f.dateRange(PriceRequest{}, "1m")
	assert.Equal(t, model.NewDate(2024, time.February, 29), start)
	assert.Equal(t, date(30), end)

	start, end = f.dateRange(PriceRequest{Start: null.TimeFrom(model.NewDate(2023, 1, 1))}, "5m")
	assert.Equal(t, model.NewDate(2023, 1, 1), start)
	assert.Equal(t, model.NewDate(2023, 3, 2), end)

	start, _ = f.dateRange(PriceRequest{Start: null.TimeFrom(model.NewDate(2000, 1, 1))}, "1d")
	assert.Equal(t, model.NewDate(2000, 1, 1), start)

	periods := yahooPeriods(date(1), date(30), "1m")
	require.Len(t, periods, 5)
	assert.Equal(t, date(7), periods[0][1])
	assert.Equal(t, date(29), periods[4][0])
	assert.Equal(t, date(30), periods[4][1])
	assert.Len(t, yahooPeriods(date(1), date(30), "5m"), 1)
}

func TestHTTPClient_Retry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	c := newHTTPClient("test", fastSource(), "", nil)
	c.backoff = time.Millisecond
	body, err := c.get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPClient_NoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newHTTPClient("test", fastSource(), "", nil)
	c.backoff = time.Millisecond
	_, err := c.get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	var se *statusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRedact(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://www.alphavantage.co/query?apikey=s3cret&symbol=IBM", "https://www.alphavantage.co/query?apikey=REDACTED&symbol=IBM"},
		{"https://query1.finance.yahoo.com/v8/finance/chart/AAPL?interval=1d", "https://query1.finance.yahoo.com/v8/finance/chart/AAPL?interval=1d"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, redact(tt.in))
	}
}

func TestHTTPClient_DoesNotLogCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	c := newHTTPClient("alpha", fastSource(), "", log)
	c.backoff = time.Millisecond
	_, err := c.get(context.Background(), srv.URL+"/query?apikey=s3cret&symbol=IBM", nil)
	require.NoError(t, err)

	// closed server: the transport error must not leak the key either
	srv.Close()
	_, err = c.get(context.Background(), srv.URL+"/query?apikey=s3cret&symbol=IBM", nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "s3cret")

	require.NotEmpty(t, hook.AllEntries())
	for _, e := range hook.AllEntries() {
		line, err := e.String()
		require.NoError(t, err)
		assert.False(t, strings.Contains(line, "s3cret"), line)
	}
}

func TestAlphaVantageFetcher_Daily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "TIME_SERIES_DAILY", q.Get("function"))
		assert.Equal(t, "csv", q.Get("datatype"))
		assert.Equal(t, "demo", q.Get("apikey"))
		fmt.Fprint(w, "timestamp,open,high,low,close,volume\r\n"+
			"2024-03-05,101,103,100,102,2000\r\n"+
			"2024-03-04,100,102,99,101,1000\r\n"+
			"2024-03-01,98,99,97,98.5,900\r\n")
	}))
	defer srv.Close()

	src := fastSource()
	src.APIKey = "demo"
	f := NewAlphaVantageFetcher(src, "", nil)
	f.BaseURL = srv.URL

	rows, err := f.FetchPrices(context.Background(), PriceRequest{
		Symbol: "IBM", Start: null.TimeFrom(date(4)), End: null.TimeFrom(date(5)),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, date(4), rows[0].Date)
	assertDec(t, "102", rows[1].Close)
	assert.Equal(t, int64(1000), rows[0].Volume.Int64)
}

func TestAlphaVantageFetcher_IntradayMonths(t *testing.T) {
	var months []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "TIME_SERIES_INTRADAY", q.Get("function"))
		assert.Equal(t, "5min", q.Get("interval"))
		assert.Equal(t, "true", q.Get("extended_hours"))
		months = append(months, q.Get("month"))
		fmt.Fprint(w, "timestamp,open,high,low,close,volume\n")
		if q.Get("month") == "2024-03" {
			fmt.Fprint(w, "2024-03-01 09:35:00,10,11,9,10.5,100\n2024-03-01 04:00:00,9,9.5,8.5,9.2,0\n")
		}
	}))
	defer srv.Close()

	src := fastSource()
	src.Rate = 1000
	f := NewAlphaVantageFetcher(src, "", nil)
	f.BaseURL = srv.URL

	rows, err := f.FetchPrices(context.Background(), PriceRequest{
		Symbol: "IBM", Interval: "5m", PrePost: true,
		Start: null.TimeFrom(model.NewDate(2024, time.February, 28)), End: null.TimeFrom(date(2)),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-02", "2024-03"}, months)
	require.Len(t, rows, 2)
	assert.Equal(t, 4, rows[0].Datetime.Time.Hour())
	assert.Equal(t, "America/New_York", rows[0].Datetime.Time.Location().String())
	assert.Equal(t, date(1), rows[0].Date)
}

func TestAlphaVantageFetcher_Note(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`)
	}))
	defer srv.Close()

	f := NewAlphaVantageFetcher(fastSource(), "", nil)
	f.BaseURL = srv.URL
	_, err := f.FetchPrices(context.Background(), PriceRequest{Symbol: "IBM"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call frequency")

	_, err = f.FetchPrices(context.Background(), PriceRequest{Symbol: "IBM", Interval: "7m"})
	assert.True(t, errors.Is(err, model.ErrInvalidArgument))
}

func TestSquareFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/v3/prices/candles/ID42", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Csrftoken"))
		assert.Equal(t, "minute-5", r.URL.Query().Get("freq"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		assert.Equal(t, "false", r.URL.Query().Get("include_current_candle"))
		fmt.Fprint(w, `{"data":[[1709510700000,70100,70300,70000,70200,500],[1709510400000,70000,71000,69000,70500,1000]]}`)
	}))
	defer srv.Close()

	src := fastSource()
	src.Token = "secret"
	f := NewSquareFetcher(src, "", nil)
	f.BaseURL = srv.URL
	f.Limit = 5000
	f.Now = func() time.Time { return date(10) }

	rows, err := f.FetchPrices(context.Background(), PriceRequest{Symbol: "005930", ID: "ID42", Interval: "5m"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "005930", first.Code)
	assert.Equal(t, "ID42", first.ID)
	assert.Equal(t, date(4), first.Date)
	require.True(t, first.Datetime.Valid)
	assert.Equal(t, 9, first.Datetime.Time.Hour())
	assertDec(t, "70500", first.Close)
	assert.Equal(t, int64(1000), first.Volume.Int64)
}

func TestIntervals(t *testing.T) {
	for _, iv := range []string{"1m", "5min", "minute-15", "1h", "90m"} {
		assert.True(t, IsIntraday(iv), iv)
	}
	for _, iv := range []string{"1d", "1wk", "1mo", "day", ""} {
		assert.False(t, IsIntraday(iv), iv)
	}
	freq, err := squareFreq("1h")
	require.NoError(t, err)
	assert.Equal(t, "minute-60", freq)
}

func TestCollector_Collect(t *testing.T) {
	mock := &MockFetcher{
		Data: map[string]model.Series{
			"A": {{Symbol: "A", Date: date(1)}},
			"B": {{Symbol: "B", Date: date(1)}, {Symbol: "B", Date: date(2)}},
		},
		Errors: map[string]error{"C": errors.New("boom")},
	}
	c := NewCollector(mock, 2, nil)

	results, err := c.Collect(context.Background(), []PriceRequest{{Symbol: "A"}, {Symbol: "B"}, {Symbol: "C"}})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Len(t, results[1].Series, 2)
	require.Error(t, results[2].Err)
	assert.Contains(t, results[2].Err.Error(), "fetch C")
	assert.Len(t, Table(results), 3)
	assert.Len(t, mock.Requests, 3)
}

func TestCollector_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCollector(&MockFetcher{}, 1, nil)
	results, err := c.Collect(ctx, []PriceRequest{{Symbol: "A"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Error(t, results[0].Err)
}
