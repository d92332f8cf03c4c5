package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/event"

	"scheduled_payments/internal/app/port"
	"scheduled_payments/internal/domain/entity"
)

// DefaultSyncInterval is the polling cadence of the schedule mirror.
const DefaultSyncInterval = 10 * time.Second

// SyncScheduler refreshes the store on a fixed interval while the session is Connected.
// The timer exists only in Connected; leaving it stops the timer and clears the store.
type SyncScheduler struct {
	session  *Session
	store    port.ScheduleRefresher
	interval time.Duration
	logger   port.Logger

	mu      sync.Mutex
	sub     event.Subscription
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

func NewSyncScheduler(session *Session, store port.ScheduleRefresher, interval time.Duration, logger port.Logger) *SyncScheduler {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &SyncScheduler{session: session, store: store, interval: interval, logger: logger}
}

// Start begins following session transitions. It returns immediately.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errors.New("sync scheduler already started")
	}
	events := make(chan entity.SessionEvent, providerEventBuffer)
	s.sub = s.session.Subscribe(events)
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, events, s.sub, s.done)
	return nil
}

// Stop disposes the session subscription and waits for the loop to exit.
// No refresh runs after Stop returns.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	sub, cancel, done := s.sub, s.cancel, s.done
	s.sub, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Unsubscribe()
	cancel()
	<-done
}

// Running reports whether the refresh timer is active.
func (s *SyncScheduler) Running() bool {
	return s.running.Load()
}

func (s *SyncScheduler) loop(ctx context.Context, events <-chan entity.SessionEvent, sub event.Subscription, done chan struct{}) {
	var ticker *time.Ticker
	var tick <-chan time.Time
	stopTimer := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
			s.running.Store(false)
			s.logger.Debug("Sync timer stopped")
		}
	}
	defer func() {
		stopTimer()
		close(done)
	}()

	// follow brings the timer in line with the session's current state.
	follow := func(refreshNow bool) {
		if s.session.Snapshot().State != entity.Connected {
			stopTimer()
			s.store.Clear()
			return
		}
		if ticker == nil {
			ticker = time.NewTicker(s.interval)
			tick = ticker.C
			s.running.Store(true)
			s.logger.Debug("Sync timer started", "interval", s.interval.String())
			refreshNow = true
		}
		if refreshNow {
			s.refresh(ctx)
		}
	}

	follow(false)
	for {
		select {
		case ev := <-events:
			follow(ev.Kind == entity.EventAccountChanged)
		case <-tick:
			s.refresh(ctx)
		case <-sub.Err():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *SyncScheduler) refresh(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	if err := s.store.Refresh(refreshCtx); err != nil && ctx.Err() == nil {
		s.logger.Warn("Scheduled refresh failed", "error", err)
	}
}
