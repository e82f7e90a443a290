package usecase

import (
	"sync"
	"time"

	"FinSignal/internal/domain/models"
)

// signalCache is the single committed signal list. A refresh observes the
// generation before it starts and may only commit if nobody else committed in
// between. In-place patches keep the generation.
type signalCache struct {
	mu         sync.RWMutex
	entries    []models.TradingSignal
	generation uint64
	expiresAt  time.Time
}

func (c *signalCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Fresh returns a copy of the entries if they are non-empty and not expired.
func (c *signalCache) Fresh(now time.Time) ([]models.TradingSignal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.entries) == 0 || !now.Before(c.expiresAt) {
		return nil, false
	}
	return cloneSignals(c.entries), true
}

// Entries returns a copy of the entries regardless of expiry.
func (c *signalCache) Entries() []models.TradingSignal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneSignals(c.entries)
}

// Commit replaces the entries when observed is still the current generation.
func (c *signalCache) Commit(observed uint64, entries []models.TradingSignal, expiresAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != observed {
		return false
	}
	c.entries = cloneSignals(entries)
	c.expiresAt = expiresAt
	c.generation++
	return true
}

// Replace swaps a cached signal with the same ID for s. It reports whether
// an entry was found.
func (c *signalCache) Replace(s models.TradingSignal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if sameSignal(c.entries[i], s) {
			c.entries[i] = s
			return true
		}
	}
	return false
}

// Swap drops the removed signals and appends added ones.
func (c *signalCache) Swap(removed, added []models.TradingSignal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.entries[:0:0]
	for _, e := range c.entries {
		drop := false
		for _, r := range removed {
			if sameSignal(e, r) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, e)
		}
	}
	c.entries = append(kept, added...)
}

func sameSignal(a, b models.TradingSignal) bool {
	if a.ID != "" || b.ID != "" {
		return a.ID == b.ID
	}
	return a.Key() == b.Key()
}

func cloneSignals(in []models.TradingSignal) []models.TradingSignal {
	out := make([]models.TradingSignal, len(in))
	copy(out, in)
	return out
}
