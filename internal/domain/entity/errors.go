package entity

import (
	"errors"
	"fmt"
)

var (
	ErrWalletUnavailable   = errors.New("wallet unavailable")
	ErrUserRejected        = errors.New("request rejected by user")
	ErrNetworkMismatch     = errors.New("wrong network")
	ErrChainNotAdded       = errors.New("network not registered with wallet")
	ErrSessionSuperseded   = errors.New("session changed while request was in flight")
	ErrInvalidRecipient    = errors.New("invalid recipient address")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidExecutions   = errors.New("executions must be at least 1")
	ErrPastStartTime       = errors.New("start time must be in the future")
	ErrLedgerUnavailable   = errors.New("ledger unavailable: no connected session")
	ErrRemoteRead          = errors.New("remote read failed")
	ErrScheduleNotFound    = errors.New("schedule not found")
	ErrSubmissionRejected  = errors.New("transaction submission rejected")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")
)

// LedgerError attaches the remote-provided reason to a taxonomy member.
type LedgerError struct {
	Kind   error
	Reason string
	Err    error
}

// NewLedgerError builds a LedgerError; reason may be empty.
func NewLedgerError(kind error, reason string, cause error) *LedgerError {
	return &LedgerError{Kind: kind, Reason: reason, Err: cause}
}

func (e *LedgerError) Error() string {
	switch {
	case e.Reason != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

func (e *LedgerError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// UserMessage returns the one message shown to the operator for err:
// the remote reason when there is one, a generic text per kind otherwise.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var le *LedgerError
	if errors.As(err, &le) && le.Reason != "" {
		return le.Reason
	}
	switch {
	case errors.Is(err, ErrWalletUnavailable):
		return "No wallet available. Please install or configure a wallet."
	case errors.Is(err, ErrNetworkMismatch):
		return "Wallet is on the wrong network. Please switch and try again."
	case errors.Is(err, ErrUserRejected):
		return "Request was rejected in the wallet."
	case errors.Is(err, ErrInvalidRecipient):
		return "Invalid recipient address."
	case errors.Is(err, ErrInvalidAmount):
		return "Amount must be greater than zero."
	case errors.Is(err, ErrInvalidExecutions):
		return "Number of payments must be at least 1."
	case errors.Is(err, ErrPastStartTime):
		return "Start time must be in the future."
	case errors.Is(err, ErrLedgerUnavailable):
		return "Connect your wallet first."
	case errors.Is(err, ErrRemoteRead):
		return "Could not load data from the network. Retrying shortly."
	case errors.Is(err, ErrScheduleNotFound):
		return "Schedule not found or already inactive."
	case errors.Is(err, ErrSubmissionRejected):
		return "Transaction was rejected."
	case errors.Is(err, ErrTransactionReverted):
		return "Transaction failed on the network."
	case errors.Is(err, ErrConfirmationTimeout):
		return "Transaction is taking too long to confirm."
	default:
		return err.Error()
	}
}
