package generators

import (
	"context"
	"fmt"
	"math"
	"time"

	"FinSignal/internal/domain/models"
	drepo "FinSignal/internal/domain/repository"
	domsvc "FinSignal/internal/domain/service"
	"FinSignal/internal/services/indicators"
	applogger "FinSignal/pkg/logger"
)

const (
	levelProximity  = 0.02
	confirmBonus    = 0.1
	atrStopMult     = 1.5
	atrTargetMult   = 3.0
	patternLookback = 30
)

// PatternGenerator emits signals from candlestick formations, confirmed by
// nearby support/resistance and RSI divergence.
type PatternGenerator struct {
	feed     drepo.MarketDataFeed
	interval drepo.Interval
	history  int
	log      *applogger.Logger
}

var _ domsvc.SignalGenerator = (*PatternGenerator)(nil)

func NewPatternGenerator(feed drepo.MarketDataFeed, iv drepo.Interval, history int, log *applogger.Logger) *PatternGenerator {
	if log == nil {
		log = applogger.Nop()
	}
	if history <= 0 {
		history = defaultHistory
	}
	return &PatternGenerator{feed: feed, interval: iv, history: history, log: log}
}

func (g *PatternGenerator) Type() models.SignalType { return models.TypePattern }

func (g *PatternGenerator) GenerateSignals(ctx context.Context, md *models.MarketData, opts domsvc.GenerateOptions) models.SignalGeneratorResult {
	if md == nil {
		return empty()
	}
	return safeGenerate(g.log, g.Type(), md.Symbol, func() models.SignalGeneratorResult {
		hist, err := historyFor(ctx, g.feed, md, g.interval, g.history)
		if err != nil {
			g.log.Warn("pattern: history unavailable", applogger.String("symbol", md.Symbol), applogger.Error(err))
			return empty()
		}
		if !usableHistory(hist) {
			return empty()
		}
		price := currentPrice(md, hist)
		if price <= 0 {
			return empty()
		}

		found := indicators.DetectPatterns(hist.Opens, hist.Highs, hist.Lows, hist.Closes)
		if len(found) == 0 {
			return empty()
		}
		best := found[0]
		for _, p := range found[1:] {
			if p.Strength > best.Strength {
				best = p
			}
		}

		dir := models.Sell
		if best.Bullish {
			dir = models.Buy
		}

		support := indicators.FindLevels(hist.Lows, indicators.Support)
		resistance := indicators.FindLevels(hist.Highs, indicators.Resistance)
		div := indicators.Divergence(hist.Closes, indicators.RSI(hist.Closes, indicators.DefaultRSIPeriod))

		score := best.Strength
		reason := fmt.Sprintf("%s candlestick pattern", humanize(best.Name))
		meta := models.Metadata{}
		if dir == models.Buy {
			if s, ok := indicators.NearestBelow(support, price); ok {
				meta.SetFloat("support", s)
				if (price-s)/price <= levelProximity {
					score += confirmBonus
					reason += fmt.Sprintf(" near support %.2f", s)
				}
			}
			if div == indicators.BullishDivergence {
				score += confirmBonus
				reason += " with bullish RSI divergence"
			}
		} else {
			if r, ok := indicators.NearestAbove(resistance, price); ok {
				meta.SetFloat("resistance", r)
				if (r-price)/price <= levelProximity {
					score += confirmBonus
					reason += fmt.Sprintf(" near resistance %.2f", r)
				}
			}
			if div == indicators.BearishDivergence {
				score += confirmBonus
				reason += " with bearish RSI divergence"
			}
		}
		score = math.Min(1, score)

		atr, _ := indicators.Last(indicators.ATR(hist.Highs, hist.Lows, hist.Closes, indicators.DefaultATRPeriod))
		stop, target := atrLevels(dir, price, atr)

		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		meta.SetString("pattern", best.Name)
		meta.SetFloat("pattern_strength", best.Strength)
		meta.SetFloat("atr", atr)
		meta.SetString("divergence", string(div))

		s := newSignal(draft{
			symbol: md.Symbol, typ: models.TypePattern, dir: dir,
			strength: strengthFor(score, 0.8, 0.6),
			reason:   reason, price: price, stop: stop, target: target,
			success:   BacktestSuccessRate(hist.Closes, dir, patternLookback),
			timeframe: "short-term", ttl: 5 * day, now: now, meta: meta,
		})
		return models.SignalGeneratorResult{
			Signals:  []models.TradingSignal{s},
			Metadata: models.Metadata{"patterns_found": len(found)},
		}
	})
}

// atrLevels places the stop 1.5 ATR and the target 3 ATR from price, or uses
// fixed 3%/6% distances when ATR is unusable.
func atrLevels(dir models.Direction, price, atr float64) (stop, target float64) {
	if atr <= 0 || atrStopMult*atr >= price {
		return levels{stopPct: 0.03, targetPct: 0.06}.apply(dir, price)
	}
	if dir == models.Buy {
		return price - atrStopMult*atr, price + atrTargetMult*atr
	}
	return price + atrStopMult*atr, math.Max(price-atrTargetMult*atr, price*0.01)
}

func humanize(name string) string {
	out := []byte(name)
	for i, c := range out {
		if c == '_' {
			out[i] = ' '
		}
	}
	if len(out) > 0 && out[0] >= 'a' && out[0] <= 'z' {
		out[0] -= 'a' - 'A'
	}
	return string(out)
}
