package entity

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// FeeData holds EIP-1559 fee-per-gas estimates in the smallest unit.
type FeeData struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// TxRequest is what the wallet signs and submits.
type TxRequest struct {
	To                   common.Address
	Value                *big.Int
	Data                 []byte
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Receipt is the part of a transaction receipt the client cares about.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Succeeded   bool
	GasUsed     uint64
	Logs        []*types.Log
}

// OperationKind identifies a mutating ledger operation.
type OperationKind string

const (
	OperationCreate OperationKind = "create"
	OperationCancel OperationKind = "cancel"
)

// PendingTx is the handle returned once a mutating call reached the ledger.
type PendingTx struct {
	Operation   OperationKind
	Hash        common.Hash
	Value       *big.Int
	Fees        FeeData
	SubmittedAt time.Time
}

// CreateRequest carries the inputs of a schedule creation.
// Amount is already expressed in the smallest unit.
type CreateRequest struct {
	Recipient       string
	Amount          *big.Int
	IntervalSeconds uint64
	StartTime       time.Time
	Executions      uint64
}

// TxOutcome is the single terminal result of a pipeline run.
type TxOutcome struct {
	Operation  OperationKind `json:"operation"`
	TxHash     string        `json:"txHash,omitempty"`
	ScheduleID *uint64       `json:"scheduleId,omitempty"`
	Confirmed  bool          `json:"confirmed"`
	Err        error         `json:"-"`
	RefreshErr error         `json:"-"`
	Message    string        `json:"message"`
}
