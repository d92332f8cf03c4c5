package service

import (
	"context"
	"fmt"

	"scheduled_payments/internal/app/port"
	"scheduled_payments/internal/domain/entity"
	"scheduled_payments/internal/domain/money"
)

// DefaultFeeBufferPercent is the safety multiplier applied to network fee estimates (1.20x).
const DefaultFeeBufferPercent = 120

// FeePolicy scales network fee-per-gas estimates by a fixed percentage before submission.
type FeePolicy struct {
	BufferPercent int64
}

// NewFeePolicy returns a policy with bufferPercent, falling back to the default when it is not positive.
func NewFeePolicy(bufferPercent int64) FeePolicy {
	if bufferPercent <= 0 {
		bufferPercent = DefaultFeeBufferPercent
	}
	return FeePolicy{BufferPercent: bufferPercent}
}

// Apply returns fd with both fields scaled by the buffer. Integer math truncates toward zero.
func (p FeePolicy) Apply(fd entity.FeeData) entity.FeeData {
	return entity.FeeData{
		MaxFeePerGas:         money.ScaleBy(fd.MaxFeePerGas, p.BufferPercent, 100),
		MaxPriorityFeePerGas: money.ScaleBy(fd.MaxPriorityFeePerGas, p.BufferPercent, 100),
	}
}

// Estimate reads current fee data from the provider and applies the buffer.
func (p FeePolicy) Estimate(ctx context.Context, provider port.WalletProvider) (entity.FeeData, error) {
	fd, err := provider.FeeData(ctx)
	if err != nil {
		return entity.FeeData{}, entity.NewLedgerError(entity.ErrRemoteRead, "", fmt.Errorf("failed to read fee data: %w", err))
	}
	if fd.MaxFeePerGas == nil || fd.MaxPriorityFeePerGas == nil {
		return entity.FeeData{}, entity.NewLedgerError(entity.ErrRemoteRead, "", fmt.Errorf("provider returned incomplete fee data"))
	}
	return p.Apply(fd), nil
}
