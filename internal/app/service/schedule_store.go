package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"scheduled_payments/internal/app/port"
	"scheduled_payments/internal/domain/entity"
	"scheduled_payments/internal/pkg/metrics"
)

// ReaderSource builds a ledger reader for the session's current account.
type ReaderSource interface {
	Reader() (port.ScheduleReader, error)
}

// ReaderSourceFunc adapts a function to ReaderSource.
type ReaderSourceFunc func() (port.ScheduleReader, error)

func (f ReaderSourceFunc) Reader() (port.ScheduleReader, error) { return f() }

// storeSnapshot is one complete refresh result. It is never modified after publication.
type storeSnapshot struct {
	owner     common.Address
	schedules []entity.Schedule
	byID      map[uint64]int
	balance   *big.Int
}

// ScheduleStore mirrors the connected account's schedules. Every successful refresh
// replaces the whole collection; failed refreshes leave it untouched.
type ScheduleStore struct {
	session *Session
	readers ReaderSource
	logger  port.Logger

	mu   sync.RWMutex
	snap *storeSnapshot
}

var _ port.ScheduleRefresher = (*ScheduleStore)(nil)

func NewScheduleStore(session *Session, readers ReaderSource, logger port.Logger) *ScheduleStore {
	return &ScheduleStore{session: session, readers: readers, logger: logger}
}

// Refresh re-reads the account's schedules and the ledger balance. With no connected
// account the store is cleared. Concurrent refreshes are allowed; the last to finish wins,
// unless the account changed while it ran, in which case its result is dropped.
func (s *ScheduleStore) Refresh(ctx context.Context) error {
	sess := s.session.Snapshot()
	if sess.State != entity.Connected || sess.Account == nil {
		s.Clear()
		return nil
	}
	owner := *sess.Account

	reader, err := s.readers.Reader()
	if err != nil {
		metrics.StoreRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("refresh: %w", err)
	}

	var schedules []entity.Schedule
	var balance *big.Int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		schedules, err = reader.ListSchedules(gctx, owner)
		return err
	})
	g.Go(func() (err error) {
		balance, err = reader.ContractBalance(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.StoreRefreshes.WithLabelValues("error").Inc()
		s.logger.Warn("Schedule refresh failed, keeping last known data", "owner", owner.Hex(), "error", err)
		return fmt.Errorf("refresh: %w", err)
	}

	next := &storeSnapshot{
		owner:     owner,
		schedules: make([]entity.Schedule, len(schedules)),
		byID:      make(map[uint64]int, len(schedules)),
		balance:   balance,
	}
	for i, sc := range schedules {
		next.schedules[i] = sc.Clone()
		next.byID[sc.ID] = i
	}

	s.mu.Lock()
	if now := s.session.Snapshot(); now.State != entity.Connected || now.Account == nil || *now.Account != owner {
		s.mu.Unlock()
		s.logger.Debug("Dropping schedules read for a previous account", "owner", owner.Hex())
		return nil
	}
	s.snap = next
	s.mu.Unlock()

	metrics.StoreRefreshes.WithLabelValues("ok").Inc()
	s.recordGauges(next)
	s.logger.Debug("Schedule store refreshed", "owner", owner.Hex(), "count", len(schedules))
	return nil
}

// Clear drops the held collection.
func (s *ScheduleStore) Clear() {
	s.mu.Lock()
	s.snap = nil
	s.mu.Unlock()
	s.recordGauges(nil)
}

// current returns the held snapshot if it belongs to the session's current account.
func (s *ScheduleStore) current() *storeSnapshot {
	sess := s.session.Snapshot()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil || sess.State != entity.Connected || sess.Account == nil || *sess.Account != s.snap.owner {
		return nil
	}
	return s.snap
}

func (s *ScheduleStore) filter(keep func(entity.Schedule) bool) []entity.Schedule {
	out := []entity.Schedule{}
	snap := s.current()
	if snap == nil {
		return out
	}
	for _, sc := range snap.schedules {
		if keep == nil || keep(sc) {
			out = append(out, sc.Clone())
		}
	}
	return out
}

// All returns every held schedule in ledger order.
func (s *ScheduleStore) All() []entity.Schedule {
	return s.filter(nil)
}

// Active returns schedules with active == true.
func (s *ScheduleStore) Active() []entity.Schedule {
	return s.filter(func(sc entity.Schedule) bool { return sc.Active })
}

// Completed returns every inactive schedule, the history view.
func (s *ScheduleStore) Completed() []entity.Schedule {
	return s.filter(func(sc entity.Schedule) bool { return !sc.Active })
}

// Cancelled returns inactive schedules that still had executions left.
func (s *ScheduleStore) Cancelled() []entity.Schedule {
	return s.filter(entity.Schedule.IsCancelled)
}

// Get returns the schedule with id.
func (s *ScheduleStore) Get(id uint64) (entity.Schedule, bool) {
	snap := s.current()
	if snap == nil {
		return entity.Schedule{}, false
	}
	i, ok := snap.byID[id]
	if !ok {
		return entity.Schedule{}, false
	}
	return snap.schedules[i].Clone(), true
}

// Stats counts the held schedules by derived status.
func (s *ScheduleStore) Stats() entity.ScheduleStats {
	return statsOf(s.current())
}

func statsOf(snap *storeSnapshot) entity.ScheduleStats {
	stats := entity.ScheduleStats{ContractBalance: new(big.Int)}
	if snap == nil {
		return stats
	}
	if snap.balance != nil {
		stats.ContractBalance.Set(snap.balance)
	}
	stats.Total = len(snap.schedules)
	for _, sc := range snap.schedules {
		switch sc.Status() {
		case entity.StatusActive:
			stats.Active++
		case entity.StatusCompleted:
			stats.Completed++
		case entity.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

func (s *ScheduleStore) recordGauges(snap *storeSnapshot) {
	stats := statsOf(snap)
	metrics.SchedulesTracked.WithLabelValues(string(entity.StatusActive)).Set(float64(stats.Active))
	metrics.SchedulesTracked.WithLabelValues(string(entity.StatusCompleted)).Set(float64(stats.Completed))
	metrics.SchedulesTracked.WithLabelValues(string(entity.StatusCancelled)).Set(float64(stats.Cancelled))
}
