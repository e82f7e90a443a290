// Package generators holds the signal generators registered with the signal
// service: technical (moving averages and RSI), pattern (candlesticks) and
// sentiment (news).
package generators

import (
	"context"
	"fmt"
	"math"
	"time"

	"FinSignal/internal/domain/models"
	drepo "FinSignal/internal/domain/repository"
	applogger "FinSignal/pkg/logger"
)

const (
	minHistory       = 20
	defaultHistory   = 250
	requiredHistory  = 200
	favourableMove   = 0.03
	backtestHorizon  = 10
	defaultBacktest  = 0.5
	volatilityWindow = 20
)

// historyFor returns md.HistoricalData or fetches it through feed. Fetches
// request at least requiredHistory bars.
func historyFor(ctx context.Context, feed drepo.MarketDataFeed, md *models.MarketData, iv drepo.Interval, count int) (*models.HistoricalData, error) {
	if md.HistoricalData != nil && md.HistoricalData.Len() > 0 {
		return md.HistoricalData, nil
	}
	if feed == nil {
		return nil, fmt.Errorf("no history for %s and no feed configured", md.Symbol)
	}
	if count < requiredHistory {
		count = requiredHistory
	}
	h, err := feed.HistoricalCandles(ctx, md.Symbol, iv, count)
	if err != nil {
		return nil, fmt.Errorf("fetch history %s: %w", md.Symbol, err)
	}
	return h, nil
}

// usableHistory rejects ragged or short series.
func usableHistory(h *models.HistoricalData) bool {
	return h != nil && h.Consistent() && h.Len() >= minHistory
}

// currentPrice prefers the live quote and falls back to the last close.
func currentPrice(md *models.MarketData, h *models.HistoricalData) float64 {
	if md.Price > 0 {
		return md.Price
	}
	if h.Len() > 0 {
		return h.Closes[h.Len()-1]
	}
	return 0
}

// BacktestSuccessRate treats each of the lookback points that end at least
// backtestHorizon periods before the last close as an entry, and counts the
// entries where price moved favourableMove in direction within the next
// backtestHorizon periods. With fewer than lookback+backtestHorizon closes it
// returns defaultBacktest.
func BacktestSuccessRate(closes []float64, dir models.Direction, lookback int) float64 {
	n := len(closes)
	if lookback <= 0 || n < lookback+backtestHorizon {
		return defaultBacktest
	}

	favourable, trials := 0, 0
	for i := n - backtestHorizon - lookback; i < n-backtestHorizon; i++ {
		entry := closes[i]
		if entry <= 0 {
			continue
		}
		trials++
		for j := i + 1; j <= i+backtestHorizon; j++ {
			move := (closes[j] - entry) / entry
			if (dir == models.Buy && move >= favourableMove) || (dir == models.Sell && move <= -favourableMove) {
				favourable++
				break
			}
		}
	}
	if trials == 0 {
		return defaultBacktest
	}
	return float64(favourable) / float64(trials)
}

// levels describes a trade by percentage distances from entry.
type levels struct {
	stopPct   float64
	targetPct float64
}

func (l levels) apply(dir models.Direction, price float64) (stop, target float64) {
	if dir == models.Buy {
		return price * (1 - l.stopPct), price * (1 + l.targetPct)
	}
	return price * (1 + l.stopPct), price * (1 - l.targetPct)
}

// draft carries the fields a rule decides; newSignal fills in the rest.
type draft struct {
	symbol    string
	typ       models.SignalType
	dir       models.Direction
	strength  models.Strength
	reason    string
	price     float64
	stop      float64
	target    float64
	success   float64
	timeframe string
	ttl       time.Duration
	now       time.Time
	meta      models.Metadata
}

func newSignal(d draft) models.TradingSignal {
	rr := models.RiskRewardRatio(d.price, d.stop, d.target)
	return models.TradingSignal{
		Symbol:      d.symbol,
		Type:        d.typ,
		Signal:      d.dir,
		Reason:      d.reason,
		Strength:    d.strength,
		Timestamp:   d.now,
		Price:       d.price,
		EntryPrice:  d.price,
		StopLoss:    d.stop,
		TargetPrice: d.target,
		SuccessRate: clamp01(d.success),
		Timeframe:   d.timeframe,
		Expiry:      d.now.Add(d.ttl),
		RiskReward:  models.FormatRiskReward(rr),
		Status:      models.StatusActive,
		Metadata:    d.meta,
	}
}

// safeGenerate converts a panic inside fn into an empty, logged result.
func safeGenerate(log *applogger.Logger, typ models.SignalType, symbol string, fn func() models.SignalGeneratorResult) (res models.SignalGeneratorResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("generator panic",
				applogger.String("type", string(typ)),
				applogger.String("symbol", symbol),
				applogger.Any("panic", r),
			)
			res = empty()
		}
	}()
	return fn()
}

func empty() models.SignalGeneratorResult {
	return models.SignalGeneratorResult{Signals: []models.TradingSignal{}}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func strengthFor(v, strong, moderate float64) models.Strength {
	switch {
	case v >= strong:
		return models.Strong
	case v >= moderate:
		return models.Moderate
	default:
		return models.Weak
	}
}
