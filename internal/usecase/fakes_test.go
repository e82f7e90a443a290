package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"FinSignal/internal/domain/models"
	drepo "FinSignal/internal/domain/repository"
	domsvc "FinSignal/internal/domain/service"
)

var testNow = time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: testNow} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeFeed struct {
	mu         sync.Mutex
	prices     map[string]float64
	fail       map[string]bool
	history    map[string]*models.HistoricalData
	priceCalls int
}

func newFakeFeed(prices map[string]float64) *fakeFeed {
	return &fakeFeed{prices: prices, fail: map[string]bool{}, history: map[string]*models.HistoricalData{}}
}

func (f *fakeFeed) SetPrice(symbol string, p float64) {
	f.mu.Lock()
	f.prices[symbol] = p
	f.mu.Unlock()
}

func (f *fakeFeed) SetFail(symbol string, fail bool) {
	f.mu.Lock()
	f.fail[symbol] = fail
	f.mu.Unlock()
}

func (f *fakeFeed) PriceCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.priceCalls
}

func (f *fakeFeed) CurrentPrice(_ context.Context, symbol string) (models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls++
	if f.fail[symbol] {
		return models.Quote{}, errors.New("feed unavailable")
	}
	p, ok := f.prices[symbol]
	if !ok {
		return models.Quote{}, errors.New("unknown symbol")
	}
	return models.Quote{Price: p}, nil
}

func (f *fakeFeed) HistoricalCandles(_ context.Context, symbol string, _ drepo.Interval, _ int) (*models.HistoricalData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.history[symbol]; ok {
		return h, nil
	}
	return nil, errors.New("no history")
}

// stubGenerator returns whatever fn produces for each symbol.
type stubGenerator struct {
	typ   models.SignalType
	fn    func(md *models.MarketData, now time.Time) []models.TradingSignal
	mu    sync.Mutex
	calls int
	seen  []*models.MarketData
}

var _ domsvc.SignalGenerator = (*stubGenerator)(nil)

func (g *stubGenerator) Type() models.SignalType { return g.typ }

func (g *stubGenerator) GenerateSignals(_ context.Context, md *models.MarketData, opts domsvc.GenerateOptions) models.SignalGeneratorResult {
	g.mu.Lock()
	g.calls++
	g.seen = append(g.seen, md)
	g.mu.Unlock()
	return models.SignalGeneratorResult{Signals: g.fn(md, opts.Now)}
}

func (g *stubGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// buyAtPrice emits one BUY per symbol with a 5% stop and a 15% target.
func buyAtPrice(typ models.SignalType, strength models.Strength, success float64) *stubGenerator {
	return &stubGenerator{typ: typ, fn: func(md *models.MarketData, now time.Time) []models.TradingSignal {
		return []models.TradingSignal{candidate(md.Symbol, typ, models.Buy, strength, success, md.Price, now)}
	}}
}

func candidate(symbol string, typ models.SignalType, dir models.Direction, strength models.Strength, success, price float64, ts time.Time) models.TradingSignal {
	stop, target := price*0.95, price*1.15
	if dir == models.Sell {
		stop, target = price*1.05, price*0.85
	}
	return models.TradingSignal{
		Symbol:      symbol,
		Type:        typ,
		Signal:      dir,
		Reason:      string(typ) + " " + string(dir),
		Strength:    strength,
		Timestamp:   ts,
		Price:       price,
		EntryPrice:  price,
		StopLoss:    stop,
		TargetPrice: target,
		SuccessRate: success,
		Expiry:      ts.Add(30 * 24 * time.Hour),
		RiskReward:  models.FormatRiskReward(models.RiskRewardRatio(price, stop, target)),
		Status:      models.StatusActive,
	}
}

type fakeStore struct {
	mu       sync.Mutex
	signals  map[string]models.TradingSignal
	order    []string
	saveErr  error
	loadErr  error
	stale    bool // ignore status updates, as a lagging replica would
	saves    int
	statuses map[string]models.Status
	onSave   func(ctx context.Context) error // runs before the save, outside the lock
}

func newFakeStore() *fakeStore {
	return &fakeStore{signals: map[string]models.TradingSignal{}, statuses: map[string]models.Status{}}
}

func (s *fakeStore) SaveSignal(ctx context.Context, sig models.TradingSignal) (models.TradingSignal, error) {
	if s.onSave != nil {
		if err := s.onSave(ctx); err != nil {
			return models.TradingSignal{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return models.TradingSignal{}, s.saveErr
	}
	s.saves++
	s.signals[sig.ID] = sig
	s.order = append(s.order, sig.ID)
	return sig, nil
}

func (s *fakeStore) UpdateSignalStatus(_ context.Context, id string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok {
		return drepo.ErrSignalNotFound
	}
	s.statuses[id] = status
	if s.stale {
		return nil
	}
	sig.Status = status
	s.signals[id] = sig
	return nil
}

func (s *fakeStore) LoadActiveSignals(context.Context) ([]models.TradingSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	var out []models.TradingSignal
	for _, id := range s.order {
		if sig := s.signals[id]; sig.Status == models.StatusActive {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (s *fakeStore) Get(id string) models.TradingSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signals[id]
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.SignalEvent
}

func (p *fakePublisher) Publish(_ context.Context, ev models.SignalEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) Count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Event == event {
			n++
		}
	}
	return n
}

type recordingMetrics struct {
	mu          sync.Mutex
	refresh     map[string]int
	errors      map[string]int
	transitions map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{refresh: map[string]int{}, errors: map[string]int{}, transitions: map[string]int{}}
}

func (m *recordingMetrics) RecordRefresh(source string) {
	m.mu.Lock()
	m.refresh[source]++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordSignals(string, int) {}

func (m *recordingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordLatency(string, float64) {}

func (m *recordingMetrics) RecordStatusTransition(status string) {
	m.mu.Lock()
	m.transitions[status]++
	m.mu.Unlock()
}

func (m *recordingMetrics) Refresh(source string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh[source]
}
