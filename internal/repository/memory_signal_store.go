package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
)

// MemorySignalStore keeps signal records in process. Used when no ClickHouse
// is configured and in tests.
type MemorySignalStore struct {
	mu      sync.RWMutex
	signals map[string]models.TradingSignal
	seq     map[string]int
	next    int
}

var _ domrepo.SignalStore = (*MemorySignalStore)(nil)

func NewMemorySignalStore() *MemorySignalStore {
	return &MemorySignalStore{signals: map[string]models.TradingSignal{}, seq: map[string]int{}}
}

func (s *MemorySignalStore) SaveSignal(_ context.Context, sig models.TradingSignal) (models.TradingSignal, error) {
	if sig.ID == "" {
		return models.TradingSignal{}, fmt.Errorf("save signal: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seq[sig.ID]; !ok {
		s.seq[sig.ID] = s.next
		s.next++
	}
	s.signals[sig.ID] = sig
	return sig, nil
}

func (s *MemorySignalStore) UpdateSignalStatus(_ context.Context, id string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok {
		return domrepo.ErrSignalNotFound
	}
	sig.Status = status
	s.signals[id] = sig
	return nil
}

// LoadActiveSignals returns active signals in insertion order.
func (s *MemorySignalStore) LoadActiveSignals(_ context.Context) ([]models.TradingSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TradingSignal, 0, len(s.signals))
	for _, sig := range s.signals {
		if sig.Status == models.StatusActive {
			out = append(out, sig)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] < s.seq[out[j].ID] })
	return out, nil
}

// Get returns a stored signal by id.
func (s *MemorySignalStore) Get(id string) (models.TradingSignal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signals[id]
	return sig, ok
}
