package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"MarketSpider/internal/config"
	"MarketSpider/internal/logger"
	"MarketSpider/internal/metrics"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// statusError is returned for non-200 responses.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d, body: %s", e.Code, e.Body)
}

func (e *statusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// httpClient is the rate-limited, retrying transport shared by all fetchers.
type httpClient struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
	retries int
	backoff time.Duration
	log     *logrus.Entry
}

func newHTTPClient(name string, src config.SourceConfig, proxyURL string, log logrus.FieldLogger) *httpClient {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	timeout := src.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if src.Rate > 0 {
		limit = rate.Limit(src.Rate)
	}
	burst := src.Burst
	if burst <= 0 {
		burst = 1
	}
	if log == nil {
		log = logger.Discard()
	}
	return &httpClient{
		name:    name,
		client:  &http.Client{Timeout: timeout, Transport: transport},
		limiter: rate.NewLimiter(limit, burst),
		retries: src.Retries,
		backoff: time.Second,
		log:     logger.WithComponent(log, name),
	}
}

// get performs a GET with exponential backoff on transport errors, 429 and 5xx.
func (c *httpClient) get(ctx context.Context, u string, header http.Header) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * c.backoff
			c.log.Warnf("request failed (attempt %d/%d): %v, retrying in %v", attempt, c.retries+1, lastErr, wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s rate limiter: %w", c.name, err)
		}
		body, err := c.do(ctx, u, header)
		if err == nil {
			return body, nil
		}
		lastErr = err
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%s: all %d attempts failed: %w", c.name, c.retries+1, lastErr)
}

func (c *httpClient) do(ctx context.Context, u string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	began := time.Now()
	resp, err := c.client.Do(req)
	metrics.FetchLatency.WithLabelValues(c.name).Observe(time.Since(began).Seconds())
	if err != nil {
		metrics.FetchRequests.WithLabelValues(c.name, "error").Inc()
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redact(ue.URL)
		}
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.FetchRequests.WithLabelValues(c.name, "error").Inc()
		return nil, fmt.Errorf("read body: %w", err)
	}
	metrics.FetchRequests.WithLabelValues(c.name, fmt.Sprint(resp.StatusCode)).Inc()
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{Code: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	c.log.WithField("url", redact(u)).Debug("fetched")
	return body, nil
}

// secretParams are query parameters carrying credentials.
var secretParams = []string{"apikey", "api_key", "token", "key"}

// redact masks credentials in the query string of u.
func redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "<unparsable url>"
	}
	q := parsed.Query()
	changed := false
	for _, k := range secretParams {
		if q.Has(k) {
			q.Set(k, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return u
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
