package indicators

import "math"

// TrendDirection is the short-window direction preceding a candle formation.
type TrendDirection string

const (
	TrendUp       TrendDirection = "up"
	TrendDown     TrendDirection = "down"
	TrendSideways TrendDirection = "sideways"
)

const (
	trendPeriod   = 5
	trendDeadband = 0.005
)

// Trend compares the latest 5-period SMA with the one 5 periods earlier.
// Moves within ±0.5% are sideways, as is any series too short to measure.
func Trend(closes []float64) TrendDirection {
	sma := SMA(closes, trendPeriod)
	if len(sma) < trendPeriod+1 {
		return TrendSideways
	}
	now := sma[len(sma)-1]
	then := sma[len(sma)-1-trendPeriod]
	if then == 0 {
		return TrendSideways
	}
	slope := (now - then) / then
	switch {
	case slope > trendDeadband:
		return TrendUp
	case slope < -trendDeadband:
		return TrendDown
	default:
		return TrendSideways
	}
}

const (
	PatternDoji             = "doji"
	PatternHammer           = "hammer"
	PatternHangingMan       = "hanging_man"
	PatternBullishEngulfing = "bullish_engulfing"
	PatternBearishEngulfing = "bearish_engulfing"
	PatternMorningStar      = "morning_star"
	PatternEveningStar      = "evening_star"
)

// Pattern is a detected candlestick formation on the latest candles.
// Strength is in (0, 1].
type Pattern struct {
	Name     string
	Strength float64
	Bullish  bool
}

type candle struct {
	open, high, low, close float64
}

func (c candle) body() float64  { return math.Abs(c.close - c.open) }
func (c candle) span() float64  { return c.high - c.low }
func (c candle) upper() float64 { return c.high - math.Max(c.open, c.close) }
func (c candle) lower() float64 { return math.Min(c.open, c.close) - c.low }
func (c candle) bull() bool     { return c.close > c.open }
func (c candle) bear() bool     { return c.close < c.open }

// DetectPatterns runs every detector against the most recent candles. The
// trend for each detector is measured on the closes before its formation.
func DetectPatterns(opens, highs, lows, closes []float64) []Pattern {
	n := minLen(opens, highs, lows, closes)
	if n == 0 {
		return nil
	}
	at := func(i int) candle {
		return candle{open: opens[i], high: highs[i], low: lows[i], close: closes[i]}
	}

	var out []Pattern
	last := at(n - 1)
	trend1 := Trend(closes[:n-1])

	if p, ok := doji(last, trend1); ok {
		out = append(out, p)
	}
	if p, ok := hammer(last, trend1); ok {
		out = append(out, p)
	}
	if n >= 2 {
		if p, ok := engulfing(at(n-2), last, Trend(closes[:n-2])); ok {
			out = append(out, p)
		}
	}
	if n >= 3 {
		if p, ok := star(at(n-3), at(n-2), last, Trend(closes[:n-3])); ok {
			out = append(out, p)
		}
	}
	return out
}

// doji: body at most 10% of the range after a directional move. Bullish after
// a downtrend.
func doji(c candle, trend TrendDirection) (Pattern, bool) {
	span := c.span()
	if span <= 0 || trend == TrendSideways || c.body() > 0.1*span {
		return Pattern{}, false
	}
	strength := 0.5 + 0.4*(1-c.body()/(0.1*span))
	return Pattern{Name: PatternDoji, Strength: strength, Bullish: trend == TrendDown}, true
}

// hammer: lower shadow at least twice the body and almost no upper shadow.
// After a downtrend it is a hammer, after an uptrend a hanging man.
func hammer(c candle, trend TrendDirection) (Pattern, bool) {
	body, span := c.body(), c.span()
	if body <= 0 || span <= 0 || trend == TrendSideways {
		return Pattern{}, false
	}
	if c.lower() < 2*body || c.upper() > 0.1*span {
		return Pattern{}, false
	}
	strength := math.Min(0.9, 0.6+0.1*(c.lower()/body-2))
	if trend == TrendDown {
		return Pattern{Name: PatternHammer, Strength: strength, Bullish: true}, true
	}
	return Pattern{Name: PatternHangingMan, Strength: strength, Bullish: false}, true
}

// engulfing: the latest body fully covers an opposite-coloured previous body.
func engulfing(prev, cur candle, trend TrendDirection) (Pattern, bool) {
	pb, cb := prev.body(), cur.body()
	if pb <= 0 || cb <= pb {
		return Pattern{}, false
	}
	strength := math.Min(0.95, 0.6+0.2*(cb/pb-1))
	switch {
	case trend == TrendDown && prev.bear() && cur.bull() && cur.open <= prev.close && cur.close >= prev.open:
		return Pattern{Name: PatternBullishEngulfing, Strength: strength, Bullish: true}, true
	case trend == TrendUp && prev.bull() && cur.bear() && cur.open >= prev.close && cur.close <= prev.open:
		return Pattern{Name: PatternBearishEngulfing, Strength: strength, Bullish: false}, true
	default:
		return Pattern{}, false
	}
}

// star: a long candle, a small-bodied candle, then a candle closing beyond the
// midpoint of the first one in the opposite direction.
func star(a, b, c candle, trend TrendDirection) (Pattern, bool) {
	ab := a.body()
	if ab <= 0 || a.span() <= 0 || ab < 0.6*a.span() || b.body() > 0.3*ab {
		return Pattern{}, false
	}
	mid := (a.open + a.close) / 2
	switch {
	case trend == TrendDown && a.bear() && c.bull() && c.close > mid:
		strength := 0.8
		if c.close >= a.open {
			strength = 0.9
		}
		return Pattern{Name: PatternMorningStar, Strength: strength, Bullish: true}, true
	case trend == TrendUp && a.bull() && c.bear() && c.close < mid:
		strength := 0.8
		if c.close <= a.open {
			strength = 0.9
		}
		return Pattern{Name: PatternEveningStar, Strength: strength, Bullish: false}, true
	default:
		return Pattern{}, false
	}
}
