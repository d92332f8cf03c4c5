package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"scheduled_payments/internal/app/port"
	"scheduled_payments/internal/domain/entity"
	"scheduled_payments/internal/domain/money"
	"scheduled_payments/internal/infrastructure/contract"
)

const feeRateCacheKey = "feeBps:"

// LedgerClientOptions holds the policies a LedgerClient applies to every call.
type LedgerClientOptions struct {
	FeePolicy           FeePolicy
	ConfirmationTimeout time.Duration
	// FeeRateCache memoizes the ledger fee rate; nil disables caching.
	FeeRateCache *cache.Cache
	Now          func() time.Time
}

// LedgerClient is the typed façade over the ledger contract for one connected account.
// It is only usable while the session it was built from stays Connected to the same account.
type LedgerClient struct {
	session  *Session
	provider port.WalletProvider
	codec    *contract.Codec
	account  common.Address
	opts     LedgerClientOptions
	logger   port.Logger
}

var (
	_ port.ScheduleReader = (*LedgerClient)(nil)
	_ port.ScheduleWriter = (*LedgerClient)(nil)
)

// NewLedgerClient binds a client to the session's current account. It fails with
// entity.ErrLedgerUnavailable unless the session is Connected.
func NewLedgerClient(session *Session, codec *contract.Codec, opts LedgerClientOptions, logger port.Logger) (*LedgerClient, error) {
	snap := session.Snapshot()
	if snap.State != entity.Connected || snap.Account == nil {
		return nil, entity.ErrLedgerUnavailable
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ConfirmationTimeout <= 0 {
		opts.ConfirmationTimeout = 2 * time.Minute
	}
	if opts.FeePolicy.BufferPercent <= 0 {
		opts.FeePolicy = NewFeePolicy(DefaultFeeBufferPercent)
	}
	return &LedgerClient{
		session:  session,
		provider: session.Provider(),
		codec:    codec,
		account:  *snap.Account,
		opts:     opts,
		logger:   logger,
	}, nil
}

// Account returns the address the client is scoped to.
func (c *LedgerClient) Account() common.Address {
	return c.account
}

func (c *LedgerClient) ensureSession() error {
	snap := c.session.Snapshot()
	if snap.State != entity.Connected || snap.Account == nil || *snap.Account != c.account {
		return entity.ErrLedgerUnavailable
	}
	return nil
}

func (c *LedgerClient) call(ctx context.Context, method string, data []byte) ([]byte, error) {
	out, err := c.provider.Call(ctx, c.codec.Address, data)
	if err != nil {
		return nil, entity.NewLedgerError(entity.ErrRemoteRead, contract.RevertReason(err), fmt.Errorf("%s: %w", method, err))
	}
	return out, nil
}

func remoteRead(err error) error {
	if errors.Is(err, entity.ErrRemoteRead) || errors.Is(err, entity.ErrLedgerUnavailable) {
		return err
	}
	return entity.NewLedgerError(entity.ErrRemoteRead, "", err)
}

// ListSchedules reads ids and records for owner concurrently and pairs them by index.
func (c *LedgerClient) ListSchedules(ctx context.Context, owner common.Address) ([]entity.Schedule, error) {
	if err := c.ensureSession(); err != nil {
		return nil, err
	}
	idsCall, err := c.codec.PackGetUserScheduleIDs(owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getUserScheduleIds: %w", err)
	}
	recordsCall, err := c.codec.PackGetUserSchedules(owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getUserSchedules: %w", err)
	}

	var idsRaw, recordsRaw []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		idsRaw, err = c.call(gctx, "getUserScheduleIds", idsCall)
		return err
	})
	g.Go(func() (err error) {
		recordsRaw, err = c.call(gctx, "getUserSchedules", recordsCall)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids, err := c.codec.UnpackScheduleIDs(idsRaw)
	if err != nil {
		return nil, remoteRead(err)
	}
	schedules, err := c.codec.UnpackSchedules(ids, recordsRaw)
	if err != nil {
		return nil, remoteRead(err)
	}
	c.logger.Debug("Schedules read from ledger", "owner", owner.Hex(), "count", len(schedules))
	return schedules, nil
}

// GetSchedule reads one schedule record by id.
func (c *LedgerClient) GetSchedule(ctx context.Context, id uint64) (entity.Schedule, error) {
	if err := c.ensureSession(); err != nil {
		return entity.Schedule{}, err
	}
	data, err := c.codec.PackGetSchedule(id)
	if err != nil {
		return entity.Schedule{}, fmt.Errorf("failed to pack getSchedule: %w", err)
	}
	raw, err := c.call(ctx, "getSchedule", data)
	if err != nil {
		return entity.Schedule{}, err
	}
	s, err := c.codec.UnpackSchedule(id, raw)
	if err != nil {
		return entity.Schedule{}, remoteRead(err)
	}
	return s, nil
}

// ScheduleCount reads the total number of schedules ever created on the ledger.
func (c *LedgerClient) ScheduleCount(ctx context.Context) (uint64, error) {
	v, err := c.readUint(ctx, "schedulesCount", c.codec.PackSchedulesCount)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// FeeRateBps reads the ledger fee rate, served from cache when fresh.
func (c *LedgerClient) FeeRateBps(ctx context.Context) (uint32, error) {
	key := feeRateCacheKey + c.codec.Address.Hex()
	if c.opts.FeeRateCache != nil {
		if v, ok := c.opts.FeeRateCache.Get(key); ok {
			return v.(uint32), nil
		}
	}
	v, err := c.readUint(ctx, "feeBps", c.codec.PackFeeBps)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() || v.Uint64() > money.BasisPointsDenominator {
		return 0, remoteRead(fmt.Errorf("ledger fee rate %s bps is out of range", v))
	}
	bps := uint32(v.Uint64())
	if c.opts.FeeRateCache != nil {
		c.opts.FeeRateCache.SetDefault(key, bps)
	}
	return bps, nil
}

// ContractBalance reads the ledger contract's native balance.
func (c *LedgerClient) ContractBalance(ctx context.Context) (*big.Int, error) {
	if err := c.ensureSession(); err != nil {
		return nil, err
	}
	bal, err := c.provider.BalanceAt(ctx, c.codec.Address)
	if err != nil {
		return nil, remoteRead(fmt.Errorf("failed to read ledger balance: %w", err))
	}
	return bal, nil
}

// RemoteTotalCost asks the ledger for its own total cost figure, for cross-checking previews.
func (c *LedgerClient) RemoteTotalCost(ctx context.Context, amount *big.Int, executions uint64) (*big.Int, error) {
	return c.readUint(ctx, "previewTotalCost", func() ([]byte, error) {
		return c.codec.PackPreviewTotalCost(amount, executions)
	})
}

func (c *LedgerClient) readUint(ctx context.Context, method string, pack func() ([]byte, error)) (*big.Int, error) {
	if err := c.ensureSession(); err != nil {
		return nil, err
	}
	data, err := pack()
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	raw, err := c.call(ctx, method, data)
	if err != nil {
		return nil, err
	}
	v, err := c.codec.UnpackUint(method, raw)
	if err != nil {
		return nil, remoteRead(err)
	}
	return v, nil
}

// PreviewCost computes the cost of funding a schedule. With feeRateBps supplied it is a
// pure computation; otherwise the fee rate is read from the ledger once.
func (c *LedgerClient) PreviewCost(ctx context.Context, amount *big.Int, executions uint64, feeRateBps *uint32) (entity.CostPreview, error) {
	if feeRateBps != nil {
		return money.PreviewCost(amount, executions, *feeRateBps)
	}
	bps, err := c.FeeRateBps(ctx)
	if err != nil {
		return entity.CostPreview{}, err
	}
	return money.PreviewCost(amount, executions, bps)
}

// ValidateCreate checks a creation request locally. It never calls the provider.
func (c *LedgerClient) ValidateCreate(req entity.CreateRequest) error {
	return ValidateCreateRequest(req, c.opts.Now())
}

// ValidateCreateRequest checks recipient, amount, executions and start time against now.
func ValidateCreateRequest(req entity.CreateRequest, now time.Time) error {
	if !common.IsHexAddress(req.Recipient) || common.HexToAddress(req.Recipient) == (common.Address{}) {
		return fmt.Errorf("%w: %q", entity.ErrInvalidRecipient, req.Recipient)
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return entity.ErrInvalidAmount
	}
	if req.Executions < 1 {
		return entity.ErrInvalidExecutions
	}
	if !req.StartTime.After(now) {
		return entity.ErrPastStartTime
	}
	return nil
}

// SubmitCreate validates req, attaches the previewed total as value and submits createSchedule.
func (c *LedgerClient) SubmitCreate(ctx context.Context, req entity.CreateRequest) (*entity.PendingTx, error) {
	if err := c.ensureSession(); err != nil {
		return nil, err
	}
	if err := c.ValidateCreate(req); err != nil {
		return nil, err
	}
	preview, err := c.PreviewCost(ctx, req.Amount, req.Executions, nil)
	if err != nil {
		return nil, err
	}
	data, err := c.codec.PackCreateSchedule(common.HexToAddress(req.Recipient), req.Amount,
		req.IntervalSeconds, req.StartTime.Unix(), req.Executions)
	if err != nil {
		return nil, fmt.Errorf("failed to pack createSchedule: %w", err)
	}
	tx, err := c.submit(ctx, entity.OperationCreate, data, preview.Total)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Schedule creation submitted", "hash", tx.Hash.Hex(), "recipient", req.Recipient,
		"executions", req.Executions, "total", preview.Total.String())
	return tx, nil
}

// SubmitCancel submits cancelSchedule. A ledger refusal (not the caller's schedule, or
// already inactive) surfaces as entity.ErrScheduleNotFound with the ledger's reason.
func (c *LedgerClient) SubmitCancel(ctx context.Context, id uint64) (*entity.PendingTx, error) {
	if err := c.ensureSession(); err != nil {
		return nil, err
	}
	data, err := c.codec.PackCancelSchedule(id)
	if err != nil {
		return nil, fmt.Errorf("failed to pack cancelSchedule: %w", err)
	}
	tx, err := c.submit(ctx, entity.OperationCancel, data, new(big.Int))
	if err != nil {
		var le *entity.LedgerError
		if errors.As(err, &le) && errors.Is(err, entity.ErrSubmissionRejected) && le.Reason != "" {
			return nil, entity.NewLedgerError(entity.ErrScheduleNotFound, le.Reason, err)
		}
		return nil, err
	}
	c.logger.Info("Schedule cancellation submitted", "hash", tx.Hash.Hex(), "schedule_id", strconv.FormatUint(id, 10))
	return tx, nil
}

func (c *LedgerClient) submit(ctx context.Context, op entity.OperationKind, data []byte, value *big.Int) (*entity.PendingTx, error) {
	fees, err := c.opts.FeePolicy.Estimate(ctx, c.provider)
	if err != nil {
		return nil, err
	}
	hash, err := c.provider.SendTransaction(ctx, entity.TxRequest{
		To:                   c.codec.Address,
		Value:                value,
		Data:                 data,
		MaxFeePerGas:         fees.MaxFeePerGas,
		MaxPriorityFeePerGas: fees.MaxPriorityFeePerGas,
	})
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrUserRejected), errors.Is(err, entity.ErrWalletUnavailable),
			errors.Is(err, entity.ErrSubmissionRejected):
			return nil, err
		default:
			return nil, entity.NewLedgerError(entity.ErrSubmissionRejected, contract.RevertReason(err), err)
		}
	}
	return &entity.PendingTx{
		Operation:   op,
		Hash:        hash,
		Value:       value,
		Fees:        fees,
		SubmittedAt: c.opts.Now(),
	}, nil
}

// WaitConfirmed waits up to the confirmation timeout for tx to be mined. It does not
// require the session: a submitted call runs to completion regardless.
func (c *LedgerClient) WaitConfirmed(ctx context.Context, tx *entity.PendingTx) (*entity.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.opts.ConfirmationTimeout)
	defer cancel()

	receipt, err := c.provider.WaitReceipt(waitCtx, tx.Hash)
	if err != nil {
		return nil, entity.NewLedgerError(entity.ErrConfirmationTimeout, "",
			fmt.Errorf("waiting for %s: %w", tx.Hash.Hex(), err))
	}
	if !receipt.Succeeded {
		return receipt, entity.NewLedgerError(entity.ErrTransactionReverted, "",
			fmt.Errorf("transaction %s reverted in block %d", tx.Hash.Hex(), receipt.BlockNumber))
	}
	return receipt, nil
}

// CreatedScheduleID returns the id from the ScheduleCreated event in receipt.
func (c *LedgerClient) CreatedScheduleID(receipt *entity.Receipt) (uint64, bool) {
	if receipt == nil {
		return 0, false
	}
	return c.codec.CreatedScheduleID(receipt.Logs)
}
