package usecase

import (
	"context"
	"sync"
	"time"

	"FinSignal/internal/domain/models"
	drepo "FinSignal/internal/domain/repository"
	"FinSignal/pkg/cache"
	applogger "FinSignal/pkg/logger"
)

// MonitorLockKey guards the monitor pass across replicas.
var MonitorLockKey = cache.Key("signals", "monitor", "lock")

// Lifecycle is the part of SignalService the scheduler drives.
type Lifecycle interface {
	FetchTradingSignals(ctx context.Context, forceRefresh bool) []models.TradingSignal
	MonitorAndReplaceSignals(ctx context.Context) []models.TradingSignal
}

// SignalScheduler periodically refreshes signals and runs the monitor pass.
// With a Locker only the replica holding MonitorLockKey replaces signals.
type SignalScheduler struct {
	svc     Lifecycle
	locker  drepo.Locker
	refresh time.Duration
	monitor time.Duration
	lockTTL time.Duration
	log     *applogger.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSignalScheduler builds a scheduler. A zero interval disables that loop;
// locker may be nil for single-instance deployments.
func NewSignalScheduler(svc Lifecycle, locker drepo.Locker, refresh, monitor time.Duration, log *applogger.Logger) *SignalScheduler {
	if log == nil {
		log = applogger.Nop()
	}
	lockTTL := monitor
	if lockTTL < 30*time.Second {
		lockTTL = 30 * time.Second
	}
	return &SignalScheduler{
		svc:     svc,
		locker:  locker,
		refresh: refresh,
		monitor: monitor,
		lockTTL: lockTTL,
		log:     log,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the loops. The first refresh runs immediately.
func (s *SignalScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	if s.refresh > 0 {
		s.wg.Add(1)
		go s.loop(ctx, s.refresh, true, func(ctx context.Context) {
			signals := s.svc.FetchTradingSignals(ctx, true)
			s.log.Debug("scheduled refresh done", applogger.Int("signals", len(signals)))
		})
	}
	if s.monitor > 0 {
		s.wg.Add(1)
		go s.loop(ctx, s.monitor, false, func(ctx context.Context) {
			s.MonitorOnce(ctx)
		})
	}
	s.log.Info("signal scheduler started",
		applogger.Duration("refresh_interval", s.refresh),
		applogger.Duration("monitor_interval", s.monitor),
	)
}

func (s *SignalScheduler) loop(ctx context.Context, every time.Duration, immediate bool, fn func(context.Context)) {
	defer s.wg.Done()
	if immediate {
		fn(ctx)
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-t.C:
			fn(ctx)
		}
	}
}

// MonitorOnce runs one monitor pass if the lock can be taken. It reports
// whether the pass ran.
func (s *SignalScheduler) MonitorOnce(ctx context.Context) ([]models.TradingSignal, bool) {
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, MonitorLockKey, s.lockTTL)
		if err != nil {
			s.log.Warn("monitor lock unavailable", applogger.Error(err))
			return nil, false
		}
		if !ok {
			s.log.Debug("monitor pass held by another instance")
			return nil, false
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), MonitorLockKey); err != nil {
				s.log.Warn("release monitor lock", applogger.Error(err))
			}
		}()
	}
	replaced := s.svc.MonitorAndReplaceSignals(ctx)
	if len(replaced) > 0 {
		s.log.Info("monitor pass replaced signals", applogger.Int("count", len(replaced)))
	}
	return replaced, true
}

// Stop ends the loops and waits for a running pass to return.
func (s *SignalScheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}
