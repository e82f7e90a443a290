package indicators

import (
	"context"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
)

const (
	DefaultBollingerPeriod = 20
	DefaultBollingerStdDev = 2.0
	DefaultATRPeriod       = 14
)

// Bands is a Bollinger envelope, one value per full window.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BollingerBands returns SMA(period) ± mult × population standard deviation
// of the same window.
func BollingerBands(prices []float64, period int, mult float64) Bands {
	if period <= 0 || len(prices) < period {
		return Bands{Upper: []float64{}, Middle: []float64{}, Lower: []float64{}}
	}
	bb := volatility.NewBollingerBandsWithPeriod[float64](period)
	bb.Multiplier = mult
	upper, middle, lower := bb.ComputeWithContext(context.Background(), helper.SliceToChan(prices))

	// The three outputs share one pipeline and must be drained together.
	s := helper.ChanToSlices(upper, middle, lower)
	return Bands{Upper: orEmpty(s[0]), Middle: orEmpty(s[1]), Lower: orEmpty(s[2])}
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) for every
// period after the first.
func TrueRange(highs, lows, closes []float64) []float64 {
	n := minLen(highs, lows, closes)
	if n < 2 {
		return []float64{}
	}
	tr := volatility.NewTrueRange[float64]()
	return collect(tr.ComputeWithContext(context.Background(),
		helper.SliceToChan(highs[:n]), helper.SliceToChan(lows[:n]), helper.SliceToChan(closes[:n])))
}

// ATR returns the average true range. The first value is the mean of the first
// period true ranges and later values use Wilder smoothing.
func ATR(highs, lows, closes []float64, period int) []float64 {
	n := minLen(highs, lows, closes)
	if period <= 0 || n-1 < period {
		return []float64{}
	}
	atr := volatility.NewAtrWithMa[float64](trend.NewRmaWithPeriod[float64](period))
	return collect(atr.ComputeWithContext(context.Background(),
		helper.SliceToChan(highs[:n]), helper.SliceToChan(lows[:n]), helper.SliceToChan(closes[:n])))
}

// LogReturns computes r_t = ln(C_t / C_{t-1}). Non-positive prices yield 0.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return []float64{}
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes the annualized sample volatility of the latest
// window of log returns. The variance is taken around the window mean in a
// second pass so constant returns give exactly zero.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	rs := logReturns[len(logReturns)-window:]
	mean := 0.0
	for _, r := range rs {
		mean += r
	}
	mean /= float64(window)

	ss := 0.0
	for _, r := range rs {
		d := r - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(window-1) * barsPerYear)
}

func orEmpty(xs []float64) []float64 {
	if xs == nil {
		return []float64{}
	}
	return xs
}

func minLen(xs ...[]float64) int {
	if len(xs) == 0 {
		return 0
	}
	n := len(xs[0])
	for _, x := range xs[1:] {
		if len(x) < n {
			n = len(x)
		}
	}
	return n
}
