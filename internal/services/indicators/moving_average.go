// Package indicators implements pure technical-analysis functions over
// numeric series ordered oldest to newest. Every function is deterministic and
// returns an empty result, never an error, when the input is shorter than the
// lookback it needs.
//
// The smoothing primitives come from cinar/indicator; this package adapts its
// channel pipelines to slices and adds the level, divergence and candlestick
// logic the library does not have.
package indicators

import (
	"context"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// SMA returns the simple moving average of every full window of period values.
// The output has len(prices)-period+1 elements, or none if prices is too short.
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}
	sma := trend.NewSmaWithPeriod[float64](period)
	return collect(sma.ComputeWithContext(context.Background(), helper.SliceToChan(prices)))
}

// EMA returns the exponential moving average seeded with the first SMA window.
// out[0] corresponds to prices[period-1].
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}
	ema := trend.NewEmaWithPeriod[float64](period)
	return collect(ema.ComputeWithContext(context.Background(), helper.SliceToChan(prices)))
}

// wilder is the RMA used by RSI and ATR: an SMA seed, then (prev*(n-1)+x)/n.
func wilder(xs []float64, period int) []float64 {
	if period <= 0 || len(xs) < period {
		return []float64{}
	}
	rma := trend.NewRmaWithPeriod[float64](period)
	return collect(rma.ComputeWithContext(context.Background(), helper.SliceToChan(xs)))
}

func collect(c <-chan float64) []float64 {
	out := helper.ChanToSlice(c)
	if out == nil {
		return []float64{}
	}
	return out
}

// Last returns the final element of xs and whether there was one.
func Last(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	return xs[len(xs)-1], true
}
