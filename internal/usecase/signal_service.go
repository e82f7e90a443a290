package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinSignal/internal/domain/models"
	drepo "FinSignal/internal/domain/repository"
	domsvc "FinSignal/internal/domain/service"
	ttlcache "FinSignal/internal/service/cache"
	"FinSignal/pkg/cache"
	applogger "FinSignal/pkg/logger"
)

const (
	// DefaultMinSignals is the backfill floor of a refresh.
	DefaultMinSignals  = 7
	defaultConcurrency = 8
	defaultCacheTTL    = 15 * time.Minute
	defaultPersistWait = 5 * time.Second
	replacedLedgerTTL  = 7 * 24 * time.Hour
)

// SnapshotKey is where the latest committed signal list is shared between instances.
var SnapshotKey = cache.Key("signals", "latest")

// SignalServiceConfig holds the lifecycle settings. Generators maps a type to
// its enabled flag; registered types missing from the map are enabled.
type SignalServiceConfig struct {
	Symbols        []string
	Crypto         []string
	CacheEnabled   bool
	CacheDuration  time.Duration
	MinSignals     int
	Concurrency    int
	Interval       drepo.Interval
	HistoryCount   int
	Generators     map[models.SignalType]bool
	// PersistTimeout bounds each store write made after a cache update.
	PersistTimeout time.Duration
}

type registered struct {
	gen     domsvc.SignalGenerator
	enabled bool
}

// SignalService owns the generator registry, the aggregator and the signal
// cache, and drives the signal lifecycle against the feed and the store.
type SignalService struct {
	cfg    SignalServiceConfig
	crypto map[string]bool
	feed   drepo.MarketDataFeed
	store  drepo.SignalStore
	agg    *SignalAggregator

	mu       sync.RWMutex
	registry map[models.SignalType]*registered
	order    []models.SignalType

	cache    signalCache
	replaced *ttlcache.TTLCache[struct{}]
	claimMu  sync.Mutex

	publisher drepo.SignalPublisher
	snapshot  drepo.SnapshotCache
	metrics   drepo.Metrics
	log       *applogger.Logger
	now       func() time.Time
}

type ServiceOption func(*SignalService)

// WithClock replaces the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *SignalService) { s.now = now }
}

func WithLogger(l *applogger.Logger) ServiceOption {
	return func(s *SignalService) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m drepo.Metrics) ServiceOption {
	return func(s *SignalService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithPublisher emits created and status_changed events.
func WithPublisher(p drepo.SignalPublisher) ServiceOption {
	return func(s *SignalService) { s.publisher = p }
}

// WithSnapshotCache shares committed refreshes through c.
func WithSnapshotCache(c drepo.SnapshotCache) ServiceOption {
	return func(s *SignalService) { s.snapshot = c }
}

// NewSignalService validates the configuration against the supplied
// generators. It fails with ErrUnknownGenerator when an enabled type has no
// generator and with ErrNoGenerators when nothing ends up enabled.
func NewSignalService(cfg SignalServiceConfig, feed drepo.MarketDataFeed, store drepo.SignalStore, agg *SignalAggregator, gens []domsvc.SignalGenerator, opts ...ServiceOption) (*SignalService, error) {
	if feed == nil {
		return nil, fmt.Errorf("%w: market data feed is required", ErrInvalidConfig)
	}
	if agg == nil {
		return nil, fmt.Errorf("%w: aggregator is required", ErrInvalidConfig)
	}
	if cfg.MinSignals <= 0 {
		cfg.MinSignals = DefaultMinSignals
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.CacheDuration <= 0 {
		cfg.CacheDuration = defaultCacheTTL
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistWait
	}
	if cfg.Interval == "" {
		cfg.Interval = drepo.DefaultInterval()
	}

	s := &SignalService{
		cfg:      cfg,
		crypto:   map[string]bool{},
		feed:     feed,
		store:    store,
		agg:      agg,
		registry: map[models.SignalType]*registered{},
		replaced: ttlcache.NewTTLCache[struct{}](),
		metrics:  nopMetrics{},
		log:      applogger.Nop(),
		now:      time.Now,
	}
	for _, sym := range cfg.Crypto {
		s.crypto[sym] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	s.replaced.WithClock(s.now)

	for _, g := range gens {
		if err := s.RegisterGenerator(g); err != nil {
			return nil, err
		}
	}
	for t, on := range cfg.Generators {
		if on && s.registry[t] == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownGenerator, t)
		}
	}
	if len(s.enabledGenerators()) == 0 {
		return nil, ErrNoGenerators
	}
	return s, nil
}

// RegisterGenerator adds g to the registry, replacing any generator of the
// same type. It is enabled unless the configuration switches its type off.
func (s *SignalService) RegisterGenerator(g domsvc.SignalGenerator) error {
	if g == nil {
		return fmt.Errorf("%w: nil generator", ErrInvalidConfig)
	}
	t := g.Type()
	enabled := true
	if on, ok := s.cfg.Generators[t]; ok {
		enabled = on
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.registry[t]; !exists {
		s.order = append(s.order, t)
	}
	s.registry[t] = &registered{gen: g, enabled: enabled}
	s.log.Info("signal generator registered", applogger.String("type", string(t)), applogger.Bool("enabled", enabled))
	return nil
}

// Generators lists the enabled generator types in registration order.
func (s *SignalService) Generators() []models.SignalType {
	gens := s.enabledGenerators()
	out := make([]models.SignalType, 0, len(gens))
	for _, g := range gens {
		out = append(out, g.Type())
	}
	return out
}

func (s *SignalService) enabledGenerators() []domsvc.SignalGenerator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domsvc.SignalGenerator, 0, len(s.order))
	for _, t := range s.order {
		if r := s.registry[t]; r.enabled {
			out = append(out, r.gen)
		}
	}
	return out
}

// FetchTradingSignals returns the cached signals while they are fresh, or runs
// a refresh across all configured symbols. It never fails: when every symbol
// fails to fetch the previous cache contents are returned.
func (s *SignalService) FetchTradingSignals(ctx context.Context, forceRefresh bool) []models.TradingSignal {
	start := s.now()
	defer func() { s.metrics.RecordLatency("fetch_signals", s.now().Sub(start).Seconds()) }()

	if !forceRefresh && s.cfg.CacheEnabled {
		if cached, ok := s.cache.Fresh(start); ok {
			s.metrics.RecordRefresh("cache")
			return cached
		}
		if warm, ok := s.warmFromSnapshot(ctx, start); ok {
			s.metrics.RecordRefresh("snapshot")
			return warm
		}
	}

	observed := s.cache.Generation()
	cycle := s.runCycle(ctx, s.cfg.Symbols, start)
	if cycle.fetched == 0 && len(s.cfg.Symbols) > 0 {
		s.log.Warn("all symbol fetches failed, serving previous signals", applogger.Int("symbols", len(s.cfg.Symbols)))
		s.metrics.RecordRefresh("fallback")
		return s.cache.Entries()
	}

	s.metrics.RecordSignals("aggregated", len(cycle.aggregated))
	result := backfill(cycle.aggregated, cycle.raw, s.cfg.MinSignals)
	s.metrics.RecordSignals("backfilled", len(result)-len(cycle.aggregated))
	result = activate(result)

	expires := start.Add(s.cfg.CacheDuration)
	if s.cache.Commit(observed, result, expires) {
		s.writeSnapshot(ctx, result, expires)
	} else {
		s.log.Debug("concurrent refresh already committed, result not cached", applogger.Int("signals", len(result)))
	}
	s.persist(ctx, result, start)
	s.metrics.RecordRefresh("fresh")
	return cloneSignals(result)
}

// snapshotPayload is the shared-cache form of a committed refresh.
type snapshotPayload struct {
	Signals   []models.TradingSignal `json:"signals"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// warmFromSnapshot seeds an empty local cache from the shared snapshot.
func (s *SignalService) warmFromSnapshot(ctx context.Context, now time.Time) ([]models.TradingSignal, bool) {
	if s.snapshot == nil {
		return nil, false
	}
	observed := s.cache.Generation()
	if len(s.cache.Entries()) > 0 {
		return nil, false
	}
	var payload snapshotPayload
	if err := s.snapshot.Get(ctx, SnapshotKey, &payload); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("read signal snapshot", applogger.Error(err))
		}
		return nil, false
	}
	if len(payload.Signals) == 0 || !now.Before(payload.ExpiresAt) {
		return nil, false
	}
	if !s.cache.Commit(observed, payload.Signals, payload.ExpiresAt) {
		return nil, false
	}
	s.log.Info("signal cache warmed from snapshot", applogger.Int("signals", len(payload.Signals)))
	return cloneSignals(payload.Signals), true
}

func (s *SignalService) writeSnapshot(ctx context.Context, signals []models.TradingSignal, expires time.Time) {
	if s.snapshot == nil {
		return
	}
	ttl := expires.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.snapshot.Set(ctx, SnapshotKey, snapshotPayload{Signals: signals, ExpiresAt: expires}, ttl); err != nil {
		s.metrics.RecordError("snapshot")
		s.log.Warn("write signal snapshot", applogger.Error(err))
	}
}

// cycleResult is the joined output of one fan-out over symbols.
type cycleResult struct {
	aggregated []models.TradingSignal
	raw        []models.TradingSignal
	fetched    int
}

// runCycle fetches market data and runs every enabled generator per symbol,
// concurrently, then aggregates once every symbol has finished.
func (s *SignalService) runCycle(ctx context.Context, symbols []string, now time.Time) cycleResult {
	gens := s.enabledGenerators()
	opts := domsvc.GenerateOptions{Now: now}

	type symbolResult struct {
		ok     bool
		byType map[models.SignalType][]models.TradingSignal
	}
	results := make([]symbolResult, len(symbols))
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			md, err := s.marketData(ctx, sym)
			if err != nil {
				s.metrics.RecordError("fetch")
				s.log.Warn("market data fetch failed", applogger.String("symbol", sym), applogger.Error(err))
				return
			}
			byType := make(map[models.SignalType][]models.TradingSignal, len(gens))
			for _, g := range gens {
				res := g.GenerateSignals(ctx, md, opts)
				byType[g.Type()] = append(byType[g.Type()], res.Signals...)
			}
			results[i] = symbolResult{ok: true, byType: byType}
		}(i, sym)
	}
	wg.Wait()

	var out cycleResult
	byType := map[models.SignalType][]models.TradingSignal{}
	for _, r := range results {
		if !r.ok {
			continue
		}
		out.fetched++
		for t, signals := range r.byType {
			byType[t] = append(byType[t], signals...)
			out.raw = append(out.raw, signals...)
		}
	}
	sort.SliceStable(out.raw, func(i, j int) bool { return out.raw[i].Key() < out.raw[j].Key() })
	out.aggregated = s.agg.Aggregate(byType)
	return out
}

// marketData builds the generator input for symbol: the live quote plus the
// latest bar's volume, high, low and open taken from candle history.
func (s *SignalService) marketData(ctx context.Context, symbol string) (*models.MarketData, error) {
	q, err := s.feed.CurrentPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("current price: %w", err)
	}
	if q.Price <= 0 {
		return nil, fmt.Errorf("current price: non-positive price %v", q.Price)
	}
	md := &models.MarketData{
		Symbol:   symbol,
		Price:    q.Price,
		IsCrypto: s.crypto[symbol],
	}
	change, pct := q.Change, q.ChangePercent

	hist, err := s.feed.HistoricalCandles(ctx, symbol, s.cfg.Interval, s.cfg.HistoryCount)
	switch {
	case err != nil:
		// Generators fetch history on their own when it is missing.
		s.log.Debug("history prefetch failed", applogger.String("symbol", symbol), applogger.Error(err))
	case hist.Consistent() && hist.Len() > 0:
		md.HistoricalData = hist
		last := hist.Len() - 1
		vol, hi, lo, open := hist.Volumes[last], hist.Highs[last], hist.Lows[last], hist.Opens[last]
		md.Volume, md.High, md.Low, md.Open = &vol, &hi, &lo, &open
		if change == 0 && last > 0 && hist.Closes[last-1] > 0 {
			prev := hist.Closes[last-1]
			change = q.Price - prev
			pct = change / prev * 100
		}
	}
	md.Change, md.ChangePercent = &change, &pct
	return md, nil
}

// rankSignals orders by strength then success rate, descending. Key breaks ties.
func rankSignals(signals []models.TradingSignal) {
	sort.SliceStable(signals, func(i, j int) bool {
		a, b := signals[i], signals[j]
		if a.Strength.Rank() != b.Strength.Rank() {
			return a.Strength.Rank() > b.Strength.Rank()
		}
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		return a.Key() < b.Key()
	})
}

// backfill tops aggregated up to floor with the best raw candidates that were
// not selected. It never adds more than the pool holds.
func backfill(aggregated, raw []models.TradingSignal, floor int) []models.TradingSignal {
	out := cloneSignals(aggregated)
	if len(out) >= floor {
		return out
	}
	used := make(map[string]bool, len(out)+len(raw))
	for _, s := range out {
		used[s.Key()] = true
	}
	pool := make([]models.TradingSignal, 0, len(raw))
	for _, s := range raw {
		if used[s.Key()] {
			continue
		}
		used[s.Key()] = true
		pool = append(pool, s)
	}
	rankSignals(pool)
	for _, s := range pool {
		if len(out) >= floor {
			break
		}
		out = append(out, s)
	}
	return out
}

// candidatePool is every aggregated and unused raw candidate of a cycle, ranked.
func candidatePool(c cycleResult) []models.TradingSignal {
	pool := backfill(c.aggregated, c.raw, len(c.aggregated)+len(c.raw))
	rankSignals(pool)
	return pool
}

// activate gives each new signal its identity and the active status. The
// service owns ids; stores keep the id they are given.
func activate(signals []models.TradingSignal) []models.TradingSignal {
	out := make([]models.TradingSignal, len(signals))
	for i, sig := range signals {
		sig.ID = uuid.NewString()
		sig.Status = models.StatusActive
		out[i] = sig
	}
	return out
}

// persist saves each signal in order and publishes a created event. It runs
// after the cache update, and each save gets its own deadline so a hanging
// store costs at most PersistTimeout per signal. Failures are only logged.
func (s *SignalService) persist(ctx context.Context, signals []models.TradingSignal, now time.Time) {
	for _, sig := range signals {
		if s.store != nil {
			saveCtx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
			_, err := s.store.SaveSignal(saveCtx, sig)
			cancel()
			if err != nil {
				s.metrics.RecordError("store")
				s.log.Error("save signal", applogger.String("id", sig.ID), applogger.String("symbol", sig.Symbol), applogger.Error(err))
			}
		}
		s.publish(ctx, models.EventCreated, sig, now)
	}
}

func (s *SignalService) publish(ctx context.Context, event string, sig models.TradingSignal, at time.Time) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, models.SignalEvent{Event: event, Signal: sig, At: at}); err != nil {
		s.metrics.RecordError("publish")
		s.log.Warn("publish signal event", applogger.String("event", event), applogger.String("id", sig.ID), applogger.Error(err))
	}
}

// UpdateSignalStatus checks sig against the current price. Reaching the
// target completes it, reaching the stop cancels it, and an active signal past
// its expiry expires. Terminal signals are returned unchanged.
func (s *SignalService) UpdateSignalStatus(ctx context.Context, sig models.TradingSignal) models.TradingSignal {
	if sig.Status.IsTerminal() {
		return sig
	}
	now := s.now()
	next := models.StatusActive

	q, err := s.feed.CurrentPrice(ctx, sig.Symbol)
	switch {
	case err != nil:
		s.metrics.RecordError("fetch")
		s.log.Warn("status check price fetch failed", applogger.String("id", sig.ID), applogger.String("symbol", sig.Symbol), applogger.Error(err))
	case q.Price > 0:
		next = statusAt(sig, q.Price)
	}
	if next == models.StatusActive && !sig.Expiry.IsZero() && now.After(sig.Expiry) {
		next = models.StatusExpired
	}
	if next == models.StatusActive {
		return sig
	}

	updated := sig
	updated.Status = next
	if s.store != nil && updated.ID != "" {
		if err := s.store.UpdateSignalStatus(ctx, updated.ID, next); err != nil {
			s.metrics.RecordError("store")
			s.log.Error("update signal status", applogger.String("id", updated.ID), applogger.String("status", string(next)), applogger.Error(err))
		}
	}
	s.cache.Replace(updated)
	s.publish(ctx, models.EventStatusChanged, updated, now)
	s.metrics.RecordStatusTransition(string(next))
	s.log.Info("signal status changed",
		applogger.String("id", updated.ID),
		applogger.String("symbol", updated.Symbol),
		applogger.String("status", string(next)),
		applogger.Float64("price", q.Price),
	)
	return updated
}

func statusAt(sig models.TradingSignal, price float64) models.Status {
	switch sig.Signal {
	case models.Buy:
		if price >= sig.TargetPrice {
			return models.StatusCompleted
		}
		if price <= sig.StopLoss {
			return models.StatusCancelled
		}
	case models.Sell:
		if price <= sig.TargetPrice {
			return models.StatusCompleted
		}
		if price >= sig.StopLoss {
			return models.StatusCancelled
		}
	}
	return models.StatusActive
}

// UpdateAllSignalsStatus applies UpdateSignalStatus to every persisted active
// signal. Without a store, or when loading fails, the cached active signals
// are checked instead.
func (s *SignalService) UpdateAllSignalsStatus(ctx context.Context) []models.TradingSignal {
	start := s.now()
	defer func() { s.metrics.RecordLatency("update_status", s.now().Sub(start).Seconds()) }()

	active := s.activeSignals(ctx)
	out := make([]models.TradingSignal, len(active))
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, sig := range active {
		wg.Add(1)
		go func(i int, sig models.TradingSignal) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			out[i] = s.UpdateSignalStatus(ctx, sig)
		}(i, sig)
	}
	wg.Wait()
	return out
}

func (s *SignalService) activeSignals(ctx context.Context) []models.TradingSignal {
	if s.store != nil {
		active, err := s.store.LoadActiveSignals(ctx)
		if err == nil {
			return active
		}
		s.metrics.RecordError("store")
		s.log.Error("load active signals, using cache", applogger.Error(err))
	}
	var out []models.TradingSignal
	for _, sig := range s.cache.Entries() {
		if sig.Status == models.StatusActive {
			out = append(out, sig)
		}
	}
	return out
}

// MonitorAndReplaceSignals updates every active signal and replaces each one
// that just completed or was cancelled with one fresh signal for the same set
// of symbols. A signal is replaced at most once, so repeated calls without new
// price movement return nothing.
func (s *SignalService) MonitorAndReplaceSignals(ctx context.Context) []models.TradingSignal {
	start := s.now()
	defer func() { s.metrics.RecordLatency("monitor", s.now().Sub(start).Seconds()) }()

	finished := s.claimFinished(s.UpdateAllSignalsStatus(ctx))
	if len(finished) == 0 {
		return []models.TradingSignal{}
	}

	seen := map[string]bool{}
	var symbols []string
	for _, sig := range finished {
		if !seen[sig.Symbol] {
			seen[sig.Symbol] = true
			symbols = append(symbols, sig.Symbol)
		}
	}
	sort.Strings(symbols)

	now := s.now()
	cycle := s.runCycle(ctx, symbols, now)
	pool := candidatePool(cycle)
	if len(pool) > len(finished) {
		pool = pool[:len(finished)]
	}

	replacements := activate(pool)
	s.cache.Swap(finished, replacements)
	s.persist(ctx, replacements, now)
	s.metrics.RecordSignals("replaced", len(replacements))
	s.log.Info("signals replaced",
		applogger.Int("finished", len(finished)),
		applogger.Int("replacements", len(replacements)),
		applogger.Strings("symbols", symbols),
	)
	return replacements
}

// claimFinished returns the completed or cancelled signals that were not
// claimed for replacement before, and claims them.
func (s *SignalService) claimFinished(updated []models.TradingSignal) []models.TradingSignal {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()
	var out []models.TradingSignal
	for _, sig := range updated {
		if sig.Status != models.StatusCompleted && sig.Status != models.StatusCancelled {
			continue
		}
		id := sig.ID
		if id == "" {
			id = sig.Key()
		}
		if _, done := s.replaced.Get(id); done {
			continue
		}
		s.replaced.Set(id, struct{}{}, replacedLedgerTTL)
		out = append(out, sig)
	}
	return out
}

type nopMetrics struct{}

func (nopMetrics) RecordRefresh(string) {}
func (nopMetrics) RecordSignals(string, int) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordLatency(string, float64) {}
func (nopMetrics) RecordStatusTransition(string) {}
