package repository

import "time"

// Interval represents candle resolution buckets.
type Interval string

const (
	Interval1m Interval = "1m"
	Interval5m Interval = "5m"
	Interval1h Interval = "1h"
	Interval1d Interval = "1d"
)

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case Interval1m, Interval5m, Interval1h, Interval1d:
		return true
	default:
		return false
	}
}

// DefaultInterval returns the default interval.
func DefaultInterval() Interval { return Interval1d }

// NormalizeInterval converts raw string to a valid interval (or default).
func NormalizeInterval(s string) Interval {
	if s == "" {
		return DefaultInterval()
	}
	iv := Interval(s)
	if IsValidInterval(iv) {
		return iv
	}
	return DefaultInterval()
}

// BarsPerYear returns the approximate number of bars per year for an interval.
func BarsPerYear(iv Interval) float64 {
	switch iv {
	case Interval1m:
		return 365 * 24 * 60
	case Interval5m:
		return 365 * 24 * 12
	case Interval1h:
		return 365 * 24
	default:
		return 252
	}
}

// Duration returns the length of one bar.
func (iv Interval) Duration() time.Duration {
	switch iv {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval1h:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}
