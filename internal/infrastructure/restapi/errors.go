package restapi

import (
	"errors"
	"net/http"

	"scheduled_payments/internal/domain/entity"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, entity.ErrInvalidRecipient),
		errors.Is(err, entity.ErrInvalidAmount),
		errors.Is(err, entity.ErrInvalidExecutions),
		errors.Is(err, entity.ErrPastStartTime):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrLedgerUnavailable),
		errors.Is(err, entity.ErrWalletUnavailable):
		return http.StatusPreconditionRequired
	case errors.Is(err, entity.ErrNetworkMismatch):
		return http.StatusConflict
	case errors.Is(err, entity.ErrUserRejected):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrScheduleNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrSubmissionRejected),
		errors.Is(err, entity.ErrTransactionReverted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrConfirmationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, entity.ErrRemoteRead):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
