package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"MarketSpider/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() model.DailyReport {
	day := model.NewDate(2024, time.March, 5)
	return model.DailyReport{
		Market: "NASDAQ",
		Index: model.PriceRow{
			Symbol: "^IXIC", Date: day,
			Open: model.Dec(16130.1), High: model.Dec(16200), Low: model.Dec(16000), Close: model.Dec(16031.54),
			Gap: model.Dec(-0.0047), HighPct: model.Dec(-0.0004), LowPct: model.Dec(-0.0128), Change: model.Dec(-0.0165),
			MaxPrice: model.Dec(16538.86), DrawDown: model.Dec(-0.0307),
		},
		Extended: &model.ExtendedHours{Date: day, PreChange: model.Dec(-0.0031)},
		Indicators: map[string]decimal.NullDecimal{
			"VIX":        model.Dec(14.46),
			"BTC-Change": model.Dec(0.0521),
			"USDX":       {},
		},
		Top: &model.TopMover{Symbol: "005930.KS", Close: model.Dec(73000), Change: model.Dec(-0.0068)},
	}
}

func TestFormatDailyReport(t *testing.T) {
	msg := FormatDailyReport(sampleReport())

	assert.Contains(t, msg, "<b>NASDAQ</b> | 2024-03-05")
	assert.Contains(t, msg, "Close: 16031.54 (-1.65%)")
	assert.Contains(t, msg, "Gap: -0.47%")
	assert.Contains(t, msg, "Drawdown: -3.07% from 16538.86")
	assert.Contains(t, msg, "Pre: -0.31%")
	assert.NotContains(t, msg, "Post:")
	assert.Contains(t, msg, "005930.KS: 73000.00 (-0.68%)")
	assert.Contains(t, msg, "BTC-Change: +5.21%")
	assert.Contains(t, msg, "VIX: 14.46")
	assert.Contains(t, msg, "USDX: -")
	// indicators are listed in name order
	assert.Less(t, strings.Index(msg, "BTC-Change"), strings.Index(msg, "VIX"))
}

func TestFormatDailyReport_Minimal(t *testing.T) {
	msg := FormatDailyReport(model.DailyReport{Market: "KOSPI", Index: model.PriceRow{Date: model.NewDate(2024, 3, 5)}})
	assert.Contains(t, msg, "Close: - (-)")
	assert.NotContains(t, msg, "Drawdown")
	assert.NotContains(t, msg, "Extended hours")
	assert.NotContains(t, msg, "Indicators")
}

func TestFormatFailureEscapes(t *testing.T) {
	msg := FormatFailure("prices_kr", errors.New("status 500, body: <html>"))
	assert.Contains(t, msg, "&lt;html&gt;")
}

func newTestNotifier(url string) *TelegramNotifier {
	n := NewTelegramNotifier("TOKEN", "42", "", nil)
	n.BaseURL = url
	n.Backoff = time.Millisecond
	return n
}

func TestTelegramNotifier_SendWithRetry(t *testing.T) {
	var calls int32
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	n := newTestNotifier(srv.URL)
	require.NoError(t, n.SendWithRetry(context.Background(), "hello", 2))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "42", payload["chat_id"])
	assert.Equal(t, "HTML", payload["parse_mode"])
	assert.Equal(t, "hello", payload["text"])
}

func TestTelegramNotifier_RetriesExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newTestNotifier(srv.URL).SendWithRetry(context.Background(), "hello", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 retries exhausted")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTelegramNotifier_NotifyDaily(t *testing.T) {
	var text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		text = p["text"]
	}))
	defer srv.Close()

	require.NoError(t, newTestNotifier(srv.URL).NotifyDaily(context.Background(), sampleReport()))
	assert.Contains(t, text, "NASDAQ")
}

func TestTelegramNotifier_Polling(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		mu      sync.Mutex
		replies []string
		polls   int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if atomic.AddInt32(&polls, 1) > 1 {
				fmt.Fprint(w, `{"ok":true,"result":[]}`)
				return
			}
			fmt.Fprint(w, `{"ok":true,"result":[
				{"update_id":7,"message":{"text":"/jobs","chat":{"id":99}}},
				{"update_id":8,"message":{"text":" /jobs ","chat":{"id":42}}}
			]}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var p map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			mu.Lock()
			replies = append(replies, p["text"])
			mu.Unlock()
			cancel()
		}
	}))
	defer srv.Close()

	var commands []string
	n := newTestNotifier(srv.URL)
	n.StartPolling(ctx, func(_ context.Context, cmd string) string {
		commands = append(commands, cmd)
		return "pong"
	})

	assert.Equal(t, []string{"/jobs"}, commands)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"pong"}, replies)
}
