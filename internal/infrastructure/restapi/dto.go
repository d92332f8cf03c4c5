package restapi

import (
	"math/big"
	"time"

	"scheduled_payments/internal/domain/entity"
	"scheduled_payments/internal/pkg/utils"
)

// APIResponse wraps every reply.
type APIResponse struct {
	Data          any    `json:"data,omitempty"`
	Error         string `json:"error,omitempty"`
	StatusMessage string `json:"status_message,omitempty"`
}

type sessionDTO struct {
	State     string  `json:"state"`
	Account   string  `json:"account,omitempty"`
	Short     string  `json:"accountShort,omitempty"`
	NetworkID *uint64 `json:"networkId,omitempty"`
	Target    uint64  `json:"targetNetworkId"`
	Error     string  `json:"error,omitempty"`
}

func toSessionDTO(snap entity.SessionSnapshot, target entity.NetworkDefinition) sessionDTO {
	out := sessionDTO{
		State:     snap.State.String(),
		NetworkID: snap.NetworkID,
		Target:    target.ChainID,
		Error:     snap.Error,
	}
	if snap.Account != nil {
		out.Account = snap.Account.Hex()
		out.Short = utils.TruncateAddress(out.Account)
	}
	return out
}

// scheduleDTO carries amounts as exact decimal strings of the smallest unit plus display text.
type scheduleDTO struct {
	ID                 uint64 `json:"id"`
	Payer              string `json:"payer"`
	Recipient          string `json:"recipient"`
	RecipientShort     string `json:"recipientShort"`
	AmountPerExecution string `json:"amountPerExecution"`
	AmountDisplay      string `json:"amountDisplay"`
	IntervalSeconds    uint64 `json:"intervalSeconds"`
	IntervalText       string `json:"intervalText"`
	NextExecutionTime  int64  `json:"nextExecutionTime"`
	NextExecutionText  string `json:"nextExecutionText"`
	ExecutionsLeft     uint64 `json:"executionsLeft"`
	RemainingBalance   string `json:"remainingBalance"`
	RemainingDisplay   string `json:"remainingDisplay"`
	Active             bool   `json:"active"`
	Status             string `json:"status"`
}

func toScheduleDTO(s entity.Schedule, network entity.NetworkDefinition, now time.Time) scheduleDTO {
	dec := uint8(network.Decimals)
	return scheduleDTO{
		ID:                 s.ID,
		Payer:              s.Payer.Hex(),
		Recipient:          s.Recipient.Hex(),
		RecipientShort:     utils.TruncateAddress(s.Recipient.Hex()),
		AmountPerExecution: bigString(s.AmountPerExecution),
		AmountDisplay:      utils.FormatAmount(s.AmountPerExecution, dec, 4, network.NativeSymbol),
		IntervalSeconds:    s.IntervalSeconds,
		IntervalText:       utils.FormatInterval(s.IntervalSeconds),
		NextExecutionTime:  s.NextExecutionTime,
		NextExecutionText:  utils.FormatNextExecution(s.NextExecution(), now),
		ExecutionsLeft:     s.ExecutionsLeft,
		RemainingBalance:   bigString(s.RemainingBalance),
		RemainingDisplay:   utils.FormatAmount(s.RemainingBalance, dec, 4, network.NativeSymbol),
		Active:             s.Active,
		Status:             string(s.Status()),
	}
}

type statsDTO struct {
	Total                  int    `json:"total"`
	Active                 int    `json:"active"`
	Completed              int    `json:"completed"`
	Cancelled              int    `json:"cancelled"`
	ContractBalance        string `json:"contractBalance"`
	ContractBalanceDisplay string `json:"contractBalanceDisplay"`
	PendingTransactions    int    `json:"pendingTransactions"`
}

type costPreviewDTO struct {
	Principal    string `json:"principal"`
	Fee          string `json:"fee"`
	Total        string `json:"total"`
	FeeRateBps   uint32 `json:"feeRateBps"`
	TotalDisplay string `json:"totalDisplay"`
}

func toCostPreviewDTO(p entity.CostPreview, network entity.NetworkDefinition) costPreviewDTO {
	return costPreviewDTO{
		Principal:    bigString(p.Principal),
		Fee:          bigString(p.Fee),
		Total:        bigString(p.Total),
		FeeRateBps:   p.FeeRateBps,
		TotalDisplay: utils.FormatAmount(p.Total, uint8(network.Decimals), 6, network.NativeSymbol),
	}
}

type outcomeDTO struct {
	Operation  string  `json:"operation"`
	TxHash     string  `json:"txHash,omitempty"`
	ScheduleID *uint64 `json:"scheduleId,omitempty"`
	Confirmed  bool    `json:"confirmed"`
	Message    string  `json:"message"`
}

func toOutcomeDTO(o entity.TxOutcome) outcomeDTO {
	return outcomeDTO{
		Operation:  string(o.Operation),
		TxHash:     o.TxHash,
		ScheduleID: o.ScheduleID,
		Confirmed:  o.Confirmed,
		Message:    o.Message,
	}
}

// previewRequest is the body of POST /schedules/preview. Amount is a decimal in native units.
type previewRequest struct {
	Amount     string  `json:"amount" binding:"required"`
	Executions uint64  `json:"executions"`
	FeeRateBps *uint32 `json:"feeRateBps"`
}

// createRequest is the body of POST /schedules. StartTime is unix seconds.
type createRequest struct {
	Recipient       string `json:"recipient" binding:"required"`
	Amount          string `json:"amount" binding:"required"`
	IntervalSeconds uint64 `json:"intervalSeconds"`
	StartTime       int64  `json:"startTime" binding:"required"`
	Executions      uint64 `json:"executions"`
}

type favoriteRequest struct {
	Address string `json:"address" binding:"required"`
	Label   string `json:"label"`
}

type labelRequest struct {
	Label string `json:"label"`
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
