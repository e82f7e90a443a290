// Package finnhub is a REST client for quotes, candles and company news.
package finnhub

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"FinSignal/internal/domain/models"
	drepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/service/ratelimit"
	xhttp "FinSignal/pkg/http"
	applogger "FinSignal/pkg/logger"
)

const (
	defaultBaseURL = "https://finnhub.io/api/v1"
	limiterKey     = "finnhub"
)

// Option configures Client.
type Option func(*Client)

// Client implements MarketDataFeed and NewsFeed against the Finnhub REST API.
type Client struct {
	apiKey   string
	baseURL  string
	http     *xhttp.Client
	limiter  *ratelimit.Limiter
	rate     float64
	burst    float64
	attempts int
	newsDays int
	crypto   map[string]bool
	now      func() time.Time
	log      *applogger.Logger
}

var (
	_ drepo.MarketDataFeed = (*Client)(nil)
	_ drepo.NewsFeed       = (*Client)(nil)
)

// New creates a Finnhub client. Symbols listed with WithCrypto use the crypto
// candle endpoint.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		limiter:  ratelimit.New(),
		rate:     1,
		burst:    30,
		attempts: 3,
		newsDays: 3,
		crypto:   map[string]bool{},
		now:      time.Now,
		log:      applogger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient(xhttp.WithTimeout(5 * time.Second))
	}
	return c
}

func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") } }

func WithHTTPClient(h *xhttp.Client) Option { return func(c *Client) { c.http = h } }

// WithRateLimit sets requests per second and burst size.
func WithRateLimit(perSecond, burst float64) Option {
	return func(c *Client) { c.rate, c.burst = perSecond, burst }
}

func WithRetries(n int) Option { return func(c *Client) { c.attempts = n } }

func WithNewsDays(n int) Option { return func(c *Client) { c.newsDays = n } }

func WithCrypto(symbols []string) Option {
	return func(c *Client) {
		for _, s := range symbols {
			c.crypto[s] = true
		}
	}
}

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func WithLogger(l *applogger.Logger) Option { return func(c *Client) { c.log = l } }

type quoteResponse struct {
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	DP float64 `json:"dp"`
	H  float64 `json:"h"`
	L  float64 `json:"l"`
	O  float64 `json:"o"`
	PC float64 `json:"pc"`
}

// CurrentPrice returns the latest quote. A zero price is reported as an error
// since Finnhub answers unknown symbols with an all-zero body.
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (models.Quote, error) {
	var q quoteResponse
	if err := c.get(ctx, "/quote", map[string]string{"symbol": symbol}, &q); err != nil {
		return models.Quote{}, fmt.Errorf("finnhub quote %s: %w", symbol, err)
	}
	if q.C <= 0 {
		return models.Quote{}, fmt.Errorf("finnhub quote %s: no price", symbol)
	}
	return models.Quote{Price: q.C, Change: q.D, ChangePercent: q.DP}, nil
}

type candleResponse struct {
	C []float64 `json:"c"`
	H []float64 `json:"h"`
	L []float64 `json:"l"`
	O []float64 `json:"o"`
	V []float64 `json:"v"`
	T []int64   `json:"t"`
	S string    `json:"s"`
}

// HistoricalCandles returns up to count of the most recent bars.
func (c *Client) HistoricalCandles(ctx context.Context, symbol string, iv drepo.Interval, count int) (*models.HistoricalData, error) {
	if count <= 0 {
		return &models.HistoricalData{}, nil
	}
	to := c.now()
	span := iv.Duration() * time.Duration(count)
	if iv == drepo.Interval1d {
		// Weekends and holidays: request roughly 1.6x calendar days.
		span = span * 8 / 5
	}
	from := to.Add(-span)

	path := "/stock/candle"
	if c.crypto[symbol] {
		path = "/crypto/candle"
	}
	var r candleResponse
	err := c.get(ctx, path, map[string]string{
		"symbol":     symbol,
		"resolution": resolution(iv),
		"from":       strconv.FormatInt(from.Unix(), 10),
		"to":         strconv.FormatInt(to.Unix(), 10),
	}, &r)
	if err != nil {
		return nil, fmt.Errorf("finnhub candles %s: %w", symbol, err)
	}
	if r.S == "no_data" {
		return &models.HistoricalData{}, nil
	}
	if r.S != "ok" {
		return nil, fmt.Errorf("finnhub candles %s: status %q", symbol, r.S)
	}

	n := len(r.C)
	if len(r.O) != n || len(r.H) != n || len(r.L) != n || len(r.V) != n || len(r.T) != n {
		return nil, fmt.Errorf("finnhub candles %s: ragged arrays", symbol)
	}
	start := 0
	if n > count {
		start = n - count
	}
	h := &models.HistoricalData{
		Timestamps: make([]time.Time, 0, n-start),
		Opens:      append([]float64(nil), r.O[start:]...),
		Highs:      append([]float64(nil), r.H[start:]...),
		Lows:       append([]float64(nil), r.L[start:]...),
		Closes:     append([]float64(nil), r.C[start:]...),
		Volumes:    append([]float64(nil), r.V[start:]...),
	}
	for _, ts := range r.T[start:] {
		h.Timestamps = append(h.Timestamps, time.Unix(ts, 0).UTC())
	}
	return h, nil
}

type newsResponse struct {
	Category string `json:"category"`
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// RecentNews returns company news from the last newsDays days.
func (c *Client) RecentNews(ctx context.Context, symbol string) ([]models.NewsItem, error) {
	to := c.now().UTC()
	from := to.AddDate(0, 0, -c.newsDays)
	var rows []newsResponse
	err := c.get(ctx, "/company-news", map[string]string{
		"symbol": symbol,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("finnhub news %s: %w", symbol, err)
	}
	out := make([]models.NewsItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.NewsItem{
			Symbol:    symbol,
			Headline:  r.Headline,
			Summary:   r.Summary,
			Source:    r.Source,
			URL:       r.URL,
			Published: time.Unix(r.Datetime, 0).UTC(),
		})
	}
	return out, nil
}

// get performs a rate-limited GET with retries on transport errors, 429 and 5xx.
func (c *Client) get(ctx context.Context, path string, params map[string]string, dest interface{}) error {
	q := map[string][]string{"token": {c.apiKey}}
	for k, v := range params {
		q[k] = []string{v}
	}
	opts := &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: q,
	}

	attempts := c.attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if werr := c.limiter.Wait(ctx, limiterKey, c.burst, c.rate); werr != nil {
			return werr
		}
		err = c.http.SendAndParse(ctx, opts, dest)
		if err == nil || !retryable(err) || i == attempts {
			break
		}
		c.log.Debug("finnhub retry", applogger.String("path", path), applogger.Int("attempt", i), applogger.Error(err))
		// simple backoff
		select {
		case <-time.After(time.Duration(i) * 100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

func resolution(iv drepo.Interval) string {
	switch iv {
	case drepo.Interval1m:
		return "1"
	case drepo.Interval5m:
		return "5"
	case drepo.Interval1h:
		return "60"
	default:
		return "D"
	}
}
