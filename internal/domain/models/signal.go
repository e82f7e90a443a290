package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalType is the strategy tag of the generator that produced a signal.
type SignalType string

const (
	TypeTechnical SignalType = "technical"
	TypePattern   SignalType = "pattern"
	TypeSentiment SignalType = "sentiment"
)

// Direction is the trade side recommended by a signal.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Strength is the confidence tier of a signal.
type Strength string

const (
	Weak     Strength = "WEAK"
	Moderate Strength = "MODERATE"
	Strong   Strength = "STRONG"
)

// Rank orders strengths: STRONG > MODERATE > WEAK. Unknown values rank 0.
func (s Strength) Rank() int {
	switch s {
	case Strong:
		return 3
	case Moderate:
		return 2
	case Weak:
		return 1
	default:
		return 0
	}
}

// Status is the lifecycle state of a persisted signal.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// Metadata carries generator-specific scalar attributes. Values are restricted
// to string, float64, int and bool; use the typed setters to keep it that way.
//
//	technical: rule, sma_fast, sma_slow, rsi, realized_vol
//	pattern:   pattern, pattern_strength, atr, support, resistance, divergence
//	sentiment: score, news_count
type Metadata map[string]any

func (m Metadata) SetString(key, v string) { m[key] = v }
func (m Metadata) SetFloat(key string, v float64) { m[key] = v }
func (m Metadata) SetInt(key string, v int) { m[key] = v }
func (m Metadata) SetBool(key string, v bool) { m[key] = v }

// Float returns the numeric value stored under key.
func (m Metadata) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// String returns the string value stored under key.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// TradingSignal is a BUY/SELL recommendation with full trade parameters.
//
// For BUY: StopLoss < EntryPrice < TargetPrice. For SELL: TargetPrice <
// EntryPrice < StopLoss. RiskReward is reward/risk rendered with two decimals.
type TradingSignal struct {
	ID           string     `json:"id,omitempty"`
	Symbol       string     `json:"symbol"`
	Type         SignalType `json:"type"`
	Signal       Direction  `json:"signal"`
	Reason       string     `json:"reason"`
	Strength     Strength   `json:"strength"`
	Timestamp    time.Time  `json:"timestamp"`
	Price        float64    `json:"price"`
	EntryPrice   float64    `json:"entry_price"`
	StopLoss     float64    `json:"stop_loss"`
	TargetPrice  float64    `json:"target_price"`
	SuccessRate  float64    `json:"success_rate"`
	Timeframe    string     `json:"timeframe"`
	Expiry       time.Time  `json:"expiry"`
	RiskReward   string     `json:"risk_reward"`
	Status       Status     `json:"status"`
	RelatedAsset string     `json:"related_asset,omitempty"`
	Metadata     Metadata   `json:"metadata,omitempty"`
}

// Key identifies a candidate across generator output, aggregation and backfill.
func (s TradingSignal) Key() string {
	return s.Symbol + "|" + string(s.Type) + "|" + string(s.Signal) + "|" + s.Timestamp.UTC().Format(time.RFC3339Nano)
}

// ValidLevels reports whether stop, entry and target are ordered for the direction.
func (s TradingSignal) ValidLevels() bool {
	switch s.Signal {
	case Buy:
		return s.StopLoss < s.EntryPrice && s.EntryPrice < s.TargetPrice
	case Sell:
		return s.TargetPrice < s.EntryPrice && s.EntryPrice < s.StopLoss
	default:
		return false
	}
}

// RiskRewardRatio returns reward distance over risk distance, or 0 if risk is not positive.
func RiskRewardRatio(entry, stop, target float64) float64 {
	risk := entry - stop
	reward := target - entry
	if risk < 0 {
		risk, reward = -risk, -reward
	}
	if risk <= 0 || reward <= 0 {
		return 0
	}
	return reward / risk
}

// FormatRiskReward renders a ratio as decimal text with two places, e.g. "3.00".
func FormatRiskReward(ratio float64) string {
	return decimal.NewFromFloat(ratio).StringFixed(2)
}

// SignalGeneratorResult is a generator's output for one MarketData input.
type SignalGeneratorResult struct {
	Signals  []TradingSignal `json:"signals"`
	Metadata Metadata        `json:"metadata,omitempty"`
}

// SignalEvent is published when a signal is created or changes status.
type SignalEvent struct {
	Event  string        `json:"event"` // "created" | "status_changed"
	Signal TradingSignal `json:"signal"`
	At     time.Time     `json:"at"`
}

const (
	EventCreated       = "created"
	EventStatusChanged = "status_changed"
)
