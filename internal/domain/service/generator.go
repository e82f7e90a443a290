package service

import (
	"context"
	"time"

	"FinSignal/internal/domain/models"
)

// GenerateOptions are per-call inputs shared by all generators in a cycle.
type GenerateOptions struct {
	// Now stamps Timestamp and Expiry of produced signals.
	Now time.Time
}

// SignalGenerator turns one instrument's market data into candidate signals.
// Implementations never fail: internal errors are logged and yield an empty result.
type SignalGenerator interface {
	Type() models.SignalType
	GenerateSignals(ctx context.Context, md *models.MarketData, opts GenerateOptions) models.SignalGeneratorResult
}
