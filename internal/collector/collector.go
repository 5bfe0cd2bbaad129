package collector

import (
	"context"
	"fmt"
	"sync"

	"MarketSpider/internal/logger"
	"MarketSpider/internal/metrics"
	"MarketSpider/internal/model"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MockFetcher returns fixed series per symbol for development and testing.
type MockFetcher struct {
	Data   map[string]model.Series
	Errors map[string]error

	mu       sync.Mutex
	Requests []PriceRequest
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchPrices(_ context.Context, req PriceRequest) (model.Series, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if err, ok := m.Errors[req.Symbol]; ok {
		return nil, err
	}
	return m.Data[req.Symbol].Clone(), nil
}

// Result is the outcome of one request.
type Result struct {
	Request PriceRequest
	Series  model.Series
	Err     error
}

// Collector fetches many instruments concurrently from one provider.
type Collector struct {
	Fetcher     Fetcher
	Concurrency int
	Log         *logrus.Entry
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, concurrency int, log logrus.FieldLogger) *Collector {
	if concurrency <= 0 {
		concurrency = 4
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Collector{
		Fetcher:     fetcher,
		Concurrency: concurrency,
		Log:         logger.WithComponent(log, "collector").WithField("provider", fetcher.Name()),
	}
}

// Collect runs every request and returns one Result per request, in request
// order. Per-request failures are reported in Result.Err; the returned error is
// set only when ctx is cancelled.
func (c *Collector) Collect(ctx context.Context, reqs []PriceRequest) ([]Result, error) {
	results := make([]Result, len(reqs))
	var g errgroup.Group
	g.SetLimit(c.Concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Request: req, Err: err}
				return nil
			}
			series, err := c.Fetcher.FetchPrices(ctx, req)
			if err != nil {
				c.Log.WithField("symbol", req.Symbol).Warnf("fetch failed: %v", err)
				err = fmt.Errorf("fetch %s: %w", req.Symbol, err)
			} else {
				metrics.RowsProcessed.WithLabelValues("fetched").Add(float64(len(series)))
			}
			results[i] = Result{Request: req, Series: series, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// Table merges the series of all successful results.
func Table(results []Result) model.Table {
	var out model.Table
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Series...)
		}
	}
	return out
}
