package indicators

import (
	"math"
	"sort"
)

// LevelKind selects which side of price a level describes.
type LevelKind int

const (
	Support LevelKind = iota
	Resistance
)

const (
	levelWindow    = 5
	levelTolerance = 0.01
)

// FindLevels returns support or resistance levels from a series of extremes
// (lows for support, highs for resistance). A point qualifies when it is
// strictly below (or above) the 5 points on each side. Levels within 1% of an
// already kept level are merged. Support is sorted ascending, resistance
// descending.
func FindLevels(values []float64, kind LevelKind) []float64 {
	idx := LocalExtremes(values, levelWindow, kind == Resistance)
	if len(idx) == 0 {
		return []float64{}
	}

	raw := make([]float64, 0, len(idx))
	for _, i := range idx {
		raw = append(raw, values[i])
	}
	if kind == Support {
		sort.Float64s(raw)
	} else {
		sort.Sort(sort.Reverse(sort.Float64Slice(raw)))
	}

	levels := []float64{raw[0]}
	for _, v := range raw[1:] {
		last := levels[len(levels)-1]
		if last != 0 && math.Abs(v-last)/math.Abs(last) <= levelTolerance {
			continue
		}
		levels = append(levels, v)
	}
	return levels
}

// LocalExtremes returns indices whose value strictly dominates window points on
// each side: maxima when highs is true, minima otherwise.
func LocalExtremes(values []float64, window int, highs bool) []int {
	var out []int
	for i := window; i < len(values)-window; i++ {
		ok := true
		for j := i - window; j <= i+window && ok; j++ {
			if j == i {
				continue
			}
			if highs {
				ok = values[i] > values[j]
			} else {
				ok = values[i] < values[j]
			}
		}
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// NearestBelow returns the highest level strictly below price.
func NearestBelow(levels []float64, price float64) (float64, bool) {
	best, found := 0.0, false
	for _, l := range levels {
		if l < price && (!found || l > best) {
			best, found = l, true
		}
	}
	return best, found
}

// NearestAbove returns the lowest level strictly above price.
func NearestAbove(levels []float64, price float64) (float64, bool) {
	best, found := 0.0, false
	for _, l := range levels {
		if l > price && (!found || l < best) {
			best, found = l, true
		}
	}
	return best, found
}

// DivergenceKind is the outcome of comparing price and indicator extremes.
type DivergenceKind string

const (
	NoDivergence      DivergenceKind = "none"
	BullishDivergence DivergenceKind = "bullish"
	BearishDivergence DivergenceKind = "bearish"
)

const divergenceWindow = 3

// Divergence compares the last two local lows and the last two local highs of
// price and indicator. Bullish: price makes a lower low while the indicator
// makes a higher low. Bearish: price makes a higher high while the indicator
// makes a lower high. The series are aligned on their most recent values.
func Divergence(prices, indicator []float64) DivergenceKind {
	n := len(prices)
	if len(indicator) < n {
		n = len(indicator)
	}
	p := prices[len(prices)-n:]
	ind := indicator[len(indicator)-n:]

	if lastTwo(p, false, func(a, b float64) bool { return b < a }) &&
		lastTwo(ind, false, func(a, b float64) bool { return b > a }) {
		return BullishDivergence
	}
	if lastTwo(p, true, func(a, b float64) bool { return b > a }) &&
		lastTwo(ind, true, func(a, b float64) bool { return b < a }) {
		return BearishDivergence
	}
	return NoDivergence
}

// lastTwo reports whether the two most recent extremes satisfy cmp(older, newer).
func lastTwo(values []float64, highs bool, cmp func(older, newer float64) bool) bool {
	idx := LocalExtremes(values, divergenceWindow, highs)
	if len(idx) < 2 {
		return false
	}
	return cmp(values[idx[len(idx)-2]], values[idx[len(idx)-1]])
}
