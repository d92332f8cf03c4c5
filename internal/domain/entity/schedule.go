package entity

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ScheduleStatus is the derived classification of a schedule.
type ScheduleStatus string

const (
	StatusActive    ScheduleStatus = "active"
	StatusCompleted ScheduleStatus = "completed"
	StatusCancelled ScheduleStatus = "cancelled"
)

// Schedule is the local mirror of a remote schedule record.
// Values are replaced wholesale on refresh, never edited in place.
type Schedule struct {
	ID                 uint64         `json:"id"`
	Payer              common.Address `json:"payer"`
	Recipient          common.Address `json:"recipient"`
	AmountPerExecution *big.Int       `json:"amountPerExecution"`
	IntervalSeconds    uint64         `json:"intervalSeconds"`
	NextExecutionTime  int64          `json:"nextExecutionTime"`
	ExecutionsLeft     uint64         `json:"executionsLeft"`
	RemainingBalance   *big.Int       `json:"remainingBalance"`
	Active             bool           `json:"active"`
}

// IsOneTime reports whether the schedule never repeats.
func (s Schedule) IsOneTime() bool { return s.IntervalSeconds == 0 }

// IsCompleted reports an inactive schedule with nothing left to execute.
func (s Schedule) IsCompleted() bool { return !s.Active && s.ExecutionsLeft == 0 }

// IsCancelled reports an inactive schedule that still had executions left.
func (s Schedule) IsCancelled() bool { return !s.Active && s.ExecutionsLeft > 0 }

// Status returns exactly one of active, completed or cancelled.
func (s Schedule) Status() ScheduleStatus {
	switch {
	case s.Active:
		return StatusActive
	case s.ExecutionsLeft == 0:
		return StatusCompleted
	default:
		return StatusCancelled
	}
}

// NextExecution returns the next execution as a time value. Only meaningful while active.
func (s Schedule) NextExecution() time.Time {
	return time.Unix(s.NextExecutionTime, 0)
}

// Clone returns a deep copy so callers can never reach the store's big.Int values.
func (s Schedule) Clone() Schedule {
	c := s
	if s.AmountPerExecution != nil {
		c.AmountPerExecution = new(big.Int).Set(s.AmountPerExecution)
	}
	if s.RemainingBalance != nil {
		c.RemainingBalance = new(big.Int).Set(s.RemainingBalance)
	}
	return c
}

// ScheduleStats summarises the held collection.
type ScheduleStats struct {
	ContractBalance *big.Int `json:"contractBalance"`
	Total           int      `json:"total"`
	Active          int      `json:"active"`
	Completed       int      `json:"completed"`
	Cancelled       int      `json:"cancelled"`
}
