package generators

import (
	"context"
	"fmt"
	"time"

	"FinSignal/internal/domain/models"
	drepo "FinSignal/internal/domain/repository"
	domsvc "FinSignal/internal/domain/service"
	"FinSignal/internal/services/indicators"
	applogger "FinSignal/pkg/logger"
)

const day = 24 * time.Hour

// TechnicalGenerator evaluates moving-average crosses and RSI extremes.
type TechnicalGenerator struct {
	feed     drepo.MarketDataFeed
	interval drepo.Interval
	history  int
	log      *applogger.Logger
}

var _ domsvc.SignalGenerator = (*TechnicalGenerator)(nil)

// TechnicalOption configures TechnicalGenerator.
type TechnicalOption func(*TechnicalGenerator)

func WithInterval(iv drepo.Interval) TechnicalOption {
	return func(g *TechnicalGenerator) { g.interval = iv }
}

// WithHistory sets how many bars to request when history is not supplied.
func WithHistory(n int) TechnicalOption {
	return func(g *TechnicalGenerator) { g.history = n }
}

func WithTechnicalLogger(l *applogger.Logger) TechnicalOption {
	return func(g *TechnicalGenerator) { g.log = l }
}

func NewTechnicalGenerator(feed drepo.MarketDataFeed, opts ...TechnicalOption) *TechnicalGenerator {
	g := &TechnicalGenerator{
		feed:     feed,
		interval: drepo.DefaultInterval(),
		history:  defaultHistory,
		log:      applogger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *TechnicalGenerator) Type() models.SignalType { return models.TypeTechnical }

// ruleInput is what every technical rule sees.
type ruleInput struct {
	symbol string
	price  float64
	closes []float64
	now    time.Time
	meta   models.Metadata
}

// rule returns a signal when its condition holds on the latest period.
type rule func(in ruleInput) (models.TradingSignal, bool)

// rules are evaluated in order; the first one producing a signal wins.
func (g *TechnicalGenerator) rules() []rule {
	return []rule{goldenCross, shortTermCross, rsiExtreme}
}

func (g *TechnicalGenerator) GenerateSignals(ctx context.Context, md *models.MarketData, opts domsvc.GenerateOptions) models.SignalGeneratorResult {
	if md == nil {
		return empty()
	}
	return safeGenerate(g.log, g.Type(), md.Symbol, func() models.SignalGeneratorResult {
		hist, err := historyFor(ctx, g.feed, md, g.interval, g.history)
		if err != nil {
			g.log.Warn("technical: history unavailable", applogger.String("symbol", md.Symbol), applogger.Error(err))
			return empty()
		}
		if !usableHistory(hist) {
			g.log.Debug("technical: insufficient history", applogger.String("symbol", md.Symbol), applogger.Int("periods", hist.Len()))
			return empty()
		}
		price := currentPrice(md, hist)
		if price <= 0 {
			return empty()
		}

		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		rv := indicators.RealizedVolatility(indicators.LogReturns(hist.Closes), volatilityWindow, drepo.BarsPerYear(g.interval))
		in := ruleInput{symbol: md.Symbol, price: price, closes: hist.Closes, now: now}

		for _, r := range g.rules() {
			in.meta = models.Metadata{}
			in.meta.SetFloat("realized_vol", rv)
			if s, ok := r(in); ok {
				return models.SignalGeneratorResult{
					Signals:  []models.TradingSignal{s},
					Metadata: models.Metadata{"periods": hist.Len(), "realized_vol": rv},
				}
			}
		}
		return models.SignalGeneratorResult{
			Signals:  []models.TradingSignal{},
			Metadata: models.Metadata{"periods": hist.Len(), "realized_vol": rv},
		}
	})
}

// crossed reports an upward or downward cross of fast over slow between the
// last two periods. Both series end on the latest close.
func crossed(fast, slow []float64) (up, down bool) {
	if len(fast) < 2 || len(slow) < 2 {
		return false, false
	}
	pf, cf := fast[len(fast)-2], fast[len(fast)-1]
	ps, cs := slow[len(slow)-2], slow[len(slow)-1]
	up = pf <= ps && cf > cs
	down = pf >= ps && cf < cs
	return up, down
}

func goldenCross(in ruleInput) (models.TradingSignal, bool) {
	fast := indicators.SMA(in.closes, 50)
	slow := indicators.SMA(in.closes, 200)
	up, down := crossed(fast, slow)
	if !up && !down {
		return models.TradingSignal{}, false
	}

	dir, reason := models.Buy, "Golden cross: SMA50 crossed above SMA200"
	if down {
		dir, reason = models.Sell, "Death cross: SMA50 crossed below SMA200"
	}
	stop, target := levels{stopPct: 0.05, targetPct: 0.15}.apply(dir, in.price)
	in.meta.SetString("rule", "golden_cross")
	in.meta.SetFloat("sma_fast", fast[len(fast)-1])
	in.meta.SetFloat("sma_slow", slow[len(slow)-1])
	return newSignal(draft{
		symbol: in.symbol, typ: models.TypeTechnical, dir: dir, strength: models.Strong,
		reason: reason, price: in.price, stop: stop, target: target,
		success:   BacktestSuccessRate(in.closes, dir, 100),
		timeframe: "long-term", ttl: 30 * day, now: in.now, meta: in.meta,
	}), true
}

func shortTermCross(in ruleInput) (models.TradingSignal, bool) {
	fast := indicators.SMA(in.closes, 8)
	slow := indicators.SMA(in.closes, 20)
	up, down := crossed(fast, slow)
	if !up && !down {
		return models.TradingSignal{}, false
	}

	dir, reason := models.Buy, "SMA8 crossed above SMA20"
	if down {
		dir, reason = models.Sell, "SMA8 crossed below SMA20"
	}
	stop, target := levels{stopPct: 0.03, targetPct: 0.06}.apply(dir, in.price)
	in.meta.SetString("rule", "ma_cross")
	in.meta.SetFloat("sma_fast", fast[len(fast)-1])
	in.meta.SetFloat("sma_slow", slow[len(slow)-1])
	return newSignal(draft{
		symbol: in.symbol, typ: models.TypeTechnical, dir: dir, strength: models.Moderate,
		reason: reason, price: in.price, stop: stop, target: target,
		success:   0.9 * BacktestSuccessRate(in.closes, dir, 50),
		timeframe: "medium-term", ttl: 14 * day, now: in.now, meta: in.meta,
	}), true
}

func rsiExtreme(in ruleInput) (models.TradingSignal, bool) {
	rsi, ok := indicators.Last(indicators.RSI(in.closes, indicators.DefaultRSIPeriod))
	if !ok {
		return models.TradingSignal{}, false
	}

	var dir models.Direction
	var reason string
	switch {
	case rsi < 30:
		dir, reason = models.Buy, fmt.Sprintf("RSI oversold at %.1f", rsi)
	case rsi > 70:
		dir, reason = models.Sell, fmt.Sprintf("RSI overbought at %.1f", rsi)
	default:
		return models.TradingSignal{}, false
	}
	stop, target := levels{stopPct: 0.03, targetPct: 0.05}.apply(dir, in.price)
	in.meta.SetString("rule", "rsi")
	in.meta.SetFloat("rsi", rsi)
	return newSignal(draft{
		symbol: in.symbol, typ: models.TypeTechnical, dir: dir, strength: models.Moderate,
		reason: reason, price: in.price, stop: stop, target: target,
		success:   0.85 * BacktestSuccessRate(in.closes, dir, 30),
		timeframe: "short-term", ttl: 7 * day, now: in.now, meta: in.meta,
	}), true
}
