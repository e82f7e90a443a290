package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	ttlcache "FinSignal/internal/service/cache"
	pkgch "FinSignal/pkg/clickhouse"
	applogger "FinSignal/pkg/logger"
)

const defaultCandleTTL = 30 * time.Second

// CHCandleFeed implements MarketDataFeed over ClickHouse candle tables
// (<database>.candles_1m, _5m, _1h, _1d). History reads are memoised briefly
// since every generator may ask for the same series in one refresh.
type CHCandleFeed struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
	hist     *ttlcache.TTLCache[*models.HistoricalData]
	ttl      time.Duration
}

var _ domrepo.MarketDataFeed = (*CHCandleFeed)(nil)

func NewCHCandleFeed(ch *pkgch.Client, database string) *CHCandleFeed {
	return &CHCandleFeed{
		db:       ch.DB(),
		database: database,
		l:        applogger.Nop(),
		hist:     ttlcache.NewTTLCache[*models.HistoricalData](),
		ttl:      defaultCandleTTL,
	}
}

// SetLogger injects a structured logger.
func (f *CHCandleFeed) SetLogger(l *applogger.Logger) {
	if l != nil {
		f.l = l
	}
}

// CurrentPrice reports the latest 1m close and its change against the last
// daily close before today.
func (f *CHCandleFeed) CurrentPrice(ctx context.Context, symbol string) (models.Quote, error) {
	latest, err := f.latestN(ctx, symbol, domrepo.Interval1m, 1)
	if err != nil {
		return models.Quote{}, err
	}
	if len(latest) == 0 {
		return models.Quote{}, fmt.Errorf("no candles for %s", symbol)
	}
	q := models.Quote{Price: latest[0].Close}

	daily, err := f.latestN(ctx, symbol, domrepo.Interval1d, 2)
	if err != nil {
		f.l.Debug("clickhouse daily close unavailable", applogger.String("symbol", symbol), applogger.Error(err))
		return q, nil
	}
	if len(daily) == 2 && daily[0].Close > 0 {
		prev := daily[0].Close
		q.Change = q.Price - prev
		q.ChangePercent = q.Change / prev * 100
	}
	return q, nil
}

func (f *CHCandleFeed) HistoricalCandles(ctx context.Context, symbol string, iv domrepo.Interval, count int) (*models.HistoricalData, error) {
	key := fmt.Sprintf("%s|%s|%d", symbol, iv, count)
	if h, ok := f.hist.Get(key); ok {
		return h, nil
	}
	cs, err := f.latestN(ctx, symbol, iv, count)
	if err != nil {
		return nil, err
	}
	h := models.HistoricalDataFromCandles(cs)
	f.hist.Set(key, h, f.ttl)
	return h, nil
}

// latestN returns the newest n candles in ascending order.
func (f *CHCandleFeed) latestN(ctx context.Context, symbol string, iv domrepo.Interval, n int) ([]models.Candle, error) {
	start := time.Now()
	table, err := candleTable(f.database, iv)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, volume
        FROM %s
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	rows, err := f.db.QueryContext(ctx, fmt.Sprintf(qtpl, table), symbol, n)
	if err != nil {
		f.l.Error("clickhouse latest_candles query error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		tmp = append(tmp, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverseCandles(tmp)
	f.l.Debug("clickhouse latest_candles ok",
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(tmp)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return tmp, nil
}

func reverseCandles(cs []models.Candle) {
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
}

var errUnsupportedInterval = errors.New("unsupported interval")

func candleTable(database string, iv domrepo.Interval) (string, error) {
	if !domrepo.IsValidInterval(iv) {
		return "", fmt.Errorf("%w: %s", errUnsupportedInterval, iv)
	}
	return fmt.Sprintf("%s.candles_%s", database, iv), nil
}

// CandleSchema returns the DDL for the candle tables read by CHCandleFeed.
func CandleSchema(database string) []string {
	ivs := []domrepo.Interval{domrepo.Interval1m, domrepo.Interval5m, domrepo.Interval1h, domrepo.Interval1d}
	out := make([]string, 0, len(ivs))
	for _, iv := range ivs {
		table, _ := candleTable(database, iv)
		out = append(out, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            bucket DateTime('UTC'),
            symbol LowCardinality(String),
            open   Float64,
            high   Float64,
            low    Float64,
            close  Float64,
            volume Float64
        )
        ENGINE = ReplacingMergeTree
        ORDER BY (symbol, bucket)
    `, table))
	}
	return out
}
