package port

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"scheduled_payments/internal/domain/entity"
)

// ScheduleReader reads schedule records from the ledger.
type ScheduleReader interface {
	ListSchedules(ctx context.Context, owner common.Address) ([]entity.Schedule, error)
	ContractBalance(ctx context.Context) (*big.Int, error)
}

// ScheduleWriter submits mutating ledger calls and waits for them.
type ScheduleWriter interface {
	ValidateCreate(req entity.CreateRequest) error
	SubmitCreate(ctx context.Context, req entity.CreateRequest) (*entity.PendingTx, error)
	SubmitCancel(ctx context.Context, id uint64) (*entity.PendingTx, error)
	WaitConfirmed(ctx context.Context, tx *entity.PendingTx) (*entity.Receipt, error)
	CreatedScheduleID(receipt *entity.Receipt) (uint64, bool)
}

// ScheduleRefresher re-reads the schedule mirror from the ledger.
type ScheduleRefresher interface {
	Refresh(ctx context.Context) error
	Clear()
}
