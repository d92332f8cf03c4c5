package service

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"

	"scheduled_payments/internal/app/port"
	"scheduled_payments/internal/domain/entity"
	"scheduled_payments/internal/pkg/metrics"
)

const msgSubmitted = "Transaction submitted..."

var successMessages = map[entity.OperationKind]string{
	entity.OperationCreate: "Schedule created successfully!",
	entity.OperationCancel: "Schedule cancelled successfully!",
}

// WriterSource builds a ledger writer for the session's current account.
type WriterSource interface {
	Writer() (port.ScheduleWriter, error)
}

// WriterSourceFunc adapts a function to WriterSource.
type WriterSourceFunc func() (port.ScheduleWriter, error)

func (f WriterSourceFunc) Writer() (port.ScheduleWriter, error) { return f() }

// TransactionPipeline runs one mutating ledger operation end to end: validate, estimate
// fees and submit, wait for confirmation, then refresh the store from the ledger.
type TransactionPipeline struct {
	writers  WriterSource
	store    port.ScheduleRefresher
	notifier port.Notifier
	logger   port.Logger
	inFlight atomic.Int64
}

func NewTransactionPipeline(writers WriterSource, store port.ScheduleRefresher, notifier port.Notifier, logger port.Logger) *TransactionPipeline {
	return &TransactionPipeline{writers: writers, store: store, notifier: notifier, logger: logger}
}

// Pending returns how many operations are currently running.
func (p *TransactionPipeline) Pending() int {
	return int(p.inFlight.Load())
}

// Create funds and records a new schedule.
func (p *TransactionPipeline) Create(ctx context.Context, req entity.CreateRequest) entity.TxOutcome {
	return p.run(ctx, entity.OperationCreate,
		func(w port.ScheduleWriter) error { return w.ValidateCreate(req) },
		func(ctx context.Context, w port.ScheduleWriter) (*entity.PendingTx, error) { return w.SubmitCreate(ctx, req) },
	)
}

// Cancel cancels schedule id.
func (p *TransactionPipeline) Cancel(ctx context.Context, id uint64) entity.TxOutcome {
	return p.run(ctx, entity.OperationCancel, nil,
		func(ctx context.Context, w port.ScheduleWriter) (*entity.PendingTx, error) { return w.SubmitCancel(ctx, id) },
	)
}

func (p *TransactionPipeline) run(
	ctx context.Context,
	op entity.OperationKind,
	validate func(port.ScheduleWriter) error,
	submit func(context.Context, port.ScheduleWriter) (*entity.PendingTx, error),
) entity.TxOutcome {
	p.inFlight.Add(1)
	metrics.TransactionsInFlight.Inc()
	defer func() {
		p.inFlight.Add(-1)
		metrics.TransactionsInFlight.Dec()
	}()

	outcome := entity.TxOutcome{Operation: op}

	writer, err := p.writers.Writer()
	if err != nil {
		return p.fail(outcome, err)
	}
	if validate != nil {
		if err := validate(writer); err != nil {
			return p.fail(outcome, err)
		}
	}

	tx, err := submit(ctx, writer)
	if err != nil {
		if isValidationError(err) || errors.Is(err, entity.ErrLedgerUnavailable) {
			return p.fail(outcome, err)
		}
		outcome.RefreshErr = p.refresh(ctx, op)
		return p.fail(outcome, err)
	}
	outcome.TxHash = tx.Hash.Hex()
	p.notifier.Notify(msgSubmitted, entity.NotifySuccess)
	p.logger.Info("Transaction submitted", "operation", string(op), "hash", outcome.TxHash)

	// The call cannot be withdrawn once submitted, so the caller's cancellation no longer applies.
	receipt, waitErr := writer.WaitConfirmed(context.WithoutCancel(ctx), tx)
	if waitErr == nil {
		outcome.Confirmed = true
		if op == entity.OperationCreate {
			if id, ok := writer.CreatedScheduleID(receipt); ok {
				outcome.ScheduleID = &id
			}
		}
	}

	outcome.RefreshErr = p.refresh(ctx, op)
	if waitErr != nil {
		return p.fail(outcome, waitErr)
	}

	outcome.Message = successMessages[op]
	metrics.Transactions.WithLabelValues(string(op), "confirmed").Inc()
	p.notifier.Notify(outcome.Message, entity.NotifySuccess)
	fields := []any{"operation", string(op), "hash", outcome.TxHash}
	if outcome.ScheduleID != nil {
		fields = append(fields, "schedule_id", strconv.FormatUint(*outcome.ScheduleID, 10))
	}
	p.logger.Info("Transaction confirmed", fields...)
	return outcome
}

// refresh re-reads the store after any attempt that reached the network, even a failed one:
// the ledger's state after an ambiguous failure is otherwise unknown.
func (p *TransactionPipeline) refresh(ctx context.Context, op entity.OperationKind) error {
	if err := p.store.Refresh(context.WithoutCancel(ctx)); err != nil {
		p.logger.Warn("Post-transaction refresh failed", "operation", string(op), "error", err)
		return err
	}
	return nil
}

func (p *TransactionPipeline) fail(outcome entity.TxOutcome, err error) entity.TxOutcome {
	outcome.Err = err
	outcome.Message = entity.UserMessage(err)
	metrics.Transactions.WithLabelValues(string(outcome.Operation), outcomeLabel(err)).Inc()
	p.notifier.Notify(outcome.Message, entity.NotifyError)
	p.logger.Warn("Transaction failed", "operation", string(outcome.Operation), "hash", outcome.TxHash, "error", err)
	return outcome
}

func isValidationError(err error) bool {
	return errors.Is(err, entity.ErrInvalidRecipient) ||
		errors.Is(err, entity.ErrInvalidAmount) ||
		errors.Is(err, entity.ErrInvalidExecutions) ||
		errors.Is(err, entity.ErrPastStartTime)
}

func outcomeLabel(err error) string {
	switch {
	case isValidationError(err):
		return "invalid"
	case errors.Is(err, entity.ErrUserRejected):
		return "user_rejected"
	case errors.Is(err, entity.ErrScheduleNotFound):
		return "not_found"
	case errors.Is(err, entity.ErrSubmissionRejected):
		return "rejected"
	case errors.Is(err, entity.ErrTransactionReverted):
		return "reverted"
	case errors.Is(err, entity.ErrConfirmationTimeout):
		return "timeout"
	case errors.Is(err, entity.ErrLedgerUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
