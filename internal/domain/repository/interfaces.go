package repository

import (
	"context"
	"errors"
	"time"

	"FinSignal/internal/domain/models"
)

// ErrSignalNotFound is returned by stores when an id is unknown.
var ErrSignalNotFound = errors.New("signal not found")

// MarketDataFeed is the price/candle collaborator. Implementations are called
// once per symbol per refresh; no batching is assumed.
type MarketDataFeed interface {
	CurrentPrice(ctx context.Context, symbol string) (models.Quote, error)
	HistoricalCandles(ctx context.Context, symbol string, interval Interval, count int) (*models.HistoricalData, error)
}

// NewsFeed provides recent headlines for non-technical generators.
type NewsFeed interface {
	RecentNews(ctx context.Context, symbol string) ([]models.NewsItem, error)
}

// SignalStore persists signal records. Records are never deleted.
type SignalStore interface {
	SaveSignal(ctx context.Context, s models.TradingSignal) (models.TradingSignal, error)
	UpdateSignalStatus(ctx context.Context, id string, status models.Status) error
	LoadActiveSignals(ctx context.Context) ([]models.TradingSignal, error)
}

// SignalPublisher emits lifecycle events to downstream consumers.
type SignalPublisher interface {
	Publish(ctx context.Context, ev models.SignalEvent) error
	Close() error
}

// Locker is a best-effort distributed mutex.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// SnapshotCache stores the latest committed signal list for other instances.
type SnapshotCache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

type Metrics interface {
	RecordRefresh(source string)
	RecordSignals(stage string, n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordStatusTransition(status string)
}
