package restapi

import (
	"context"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"scheduled_payments/internal/app/port"
	"scheduled_payments/internal/domain/entity"
	"scheduled_payments/internal/domain/money"
	"scheduled_payments/internal/pkg/utils"
)

// SessionControl is the part of the session the surface drives.
type SessionControl interface {
	Snapshot() entity.SessionSnapshot
	Connect(ctx context.Context) (entity.SessionSnapshot, error)
	Disconnect() entity.SessionSnapshot
}

// ScheduleViews reads the local schedule mirror.
type ScheduleViews interface {
	All() []entity.Schedule
	Active() []entity.Schedule
	Completed() []entity.Schedule
	Cancelled() []entity.Schedule
	Get(id uint64) (entity.Schedule, bool)
	Stats() entity.ScheduleStats
}

// CostPreviewer computes funding cost, reading the fee rate when none is given.
type CostPreviewer interface {
	PreviewCost(ctx context.Context, amount *big.Int, executions uint64, feeRateBps *uint32) (entity.CostPreview, error)
}

// Transactions runs mutating ledger operations.
type Transactions interface {
	Create(ctx context.Context, req entity.CreateRequest) entity.TxOutcome
	Cancel(ctx context.Context, id uint64) entity.TxOutcome
	Pending() int
}

// Notifications exposes the latest notification.
type Notifications interface {
	Current() (entity.Notification, bool)
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Session       SessionControl
	Schedules     ScheduleViews
	Previewer     func() (CostPreviewer, error)
	Transactions  Transactions
	AddressBook   port.AddressBook
	Notifications Notifications
	Network       entity.NetworkDefinition
	Now           func() time.Time
}

// Handler serves the scheduled-payments API.
type Handler struct {
	deps   Deps
	logger port.Logger
}

func NewHandler(deps Deps, logger port.Logger) *Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler{deps: deps, logger: logger}
}

func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), APIResponse{Error: entity.UserMessage(err)})
}

func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Data: toSessionDTO(h.deps.Session.Snapshot(), h.deps.Network)})
}

func (h *Handler) Connect(c *gin.Context) {
	snap, err := h.deps.Session.Connect(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), APIResponse{
			Data:  toSessionDTO(snap, h.deps.Network),
			Error: entity.UserMessage(err),
		})
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: toSessionDTO(snap, h.deps.Network), StatusMessage: "Wallet connected."})
}

func (h *Handler) Disconnect(c *gin.Context) {
	snap := h.deps.Session.Disconnect()
	c.JSON(http.StatusOK, APIResponse{Data: toSessionDTO(snap, h.deps.Network)})
}

// ListSchedules serves ?view=all|active|completed|cancelled.
func (h *Handler) ListSchedules(c *gin.Context) {
	var list []entity.Schedule
	switch view := c.DefaultQuery("view", "all"); view {
	case "all":
		list = h.deps.Schedules.All()
	case "active":
		list = h.deps.Schedules.Active()
	case "completed", "history":
		list = h.deps.Schedules.Completed()
	case "cancelled":
		list = h.deps.Schedules.Cancelled()
	default:
		c.JSON(http.StatusBadRequest, APIResponse{Error: "unknown view " + strconv.Quote(view)})
		return
	}
	now := h.deps.Now()
	out := make([]scheduleDTO, 0, len(list))
	for _, s := range list {
		out = append(out, toScheduleDTO(s, h.deps.Network, now))
	}
	c.JSON(http.StatusOK, APIResponse{Data: out})
}

func (h *Handler) GetSchedule(c *gin.Context) {
	id, ok := scheduleID(c)
	if !ok {
		return
	}
	s, found := h.deps.Schedules.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, APIResponse{Error: entity.UserMessage(entity.ErrScheduleNotFound)})
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: toScheduleDTO(s, h.deps.Network, h.deps.Now())})
}

func (h *Handler) GetStats(c *gin.Context) {
	st := h.deps.Schedules.Stats()
	c.JSON(http.StatusOK, APIResponse{Data: statsDTO{
		Total:                  st.Total,
		Active:                 st.Active,
		Completed:              st.Completed,
		Cancelled:              st.Cancelled,
		ContractBalance:        bigString(st.ContractBalance),
		ContractBalanceDisplay: utils.FormatAmount(st.ContractBalance, uint8(h.deps.Network.Decimals), 4, h.deps.Network.NativeSymbol),
		PendingTransactions:    h.deps.Transactions.Pending(),
	}})
}

// Preview computes the cost of funding a schedule. With feeRateBps in the body it works offline.
func (h *Handler) Preview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: err.Error()})
		return
	}
	amount, err := money.ParseUnits(req.Amount, h.deps.Network.Decimals)
	if err != nil {
		h.fail(c, err)
		return
	}
	var preview entity.CostPreview
	if req.FeeRateBps != nil {
		preview, err = money.PreviewCost(amount, req.Executions, *req.FeeRateBps)
	} else {
		var p CostPreviewer
		if p, err = h.deps.Previewer(); err == nil {
			preview, err = p.PreviewCost(c.Request.Context(), amount, req.Executions, nil)
		}
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: toCostPreviewDTO(preview, h.deps.Network)})
}

func (h *Handler) CreateSchedule(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: err.Error()})
		return
	}
	amount, err := money.ParseUnits(req.Amount, h.deps.Network.Decimals)
	if err != nil {
		h.fail(c, err)
		return
	}
	executions := req.Executions
	if req.IntervalSeconds == 0 && executions == 0 {
		executions = 1
	}
	outcome := h.deps.Transactions.Create(c.Request.Context(), entity.CreateRequest{
		Recipient:       req.Recipient,
		Amount:          amount,
		IntervalSeconds: req.IntervalSeconds,
		StartTime:       time.Unix(req.StartTime, 0),
		Executions:      executions,
	})
	h.respondOutcome(c, outcome)
}

func (h *Handler) CancelSchedule(c *gin.Context) {
	id, ok := scheduleID(c)
	if !ok {
		return
	}
	h.respondOutcome(c, h.deps.Transactions.Cancel(c.Request.Context(), id))
}

func (h *Handler) respondOutcome(c *gin.Context, o entity.TxOutcome) {
	if o.Err != nil {
		_ = c.Error(o.Err)
		c.JSON(statusFor(o.Err), APIResponse{Data: toOutcomeDTO(o), Error: o.Message})
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: toOutcomeDTO(o), StatusMessage: o.Message})
}

func (h *Handler) ListFavorites(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Data: h.deps.AddressBook.List()})
}

func (h *Handler) AddFavorite(c *gin.Context) {
	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: err.Error()})
		return
	}
	added, err := h.deps.AddressBook.Add(req.Address, req.Label)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !added {
		c.JSON(http.StatusConflict, APIResponse{Error: "Address already saved."})
		return
	}
	c.JSON(http.StatusCreated, APIResponse{Data: h.deps.AddressBook.List()})
}

func (h *Handler) RemoveFavorite(c *gin.Context) {
	if err := h.deps.AddressBook.Remove(c.Param("address")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: h.deps.AddressBook.List()})
}

func (h *Handler) RenameFavorite(c *gin.Context) {
	var req labelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: err.Error()})
		return
	}
	if err := h.deps.AddressBook.UpdateLabel(c.Param("address"), req.Label); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: h.deps.AddressBook.List()})
}

func (h *Handler) GetNotification(c *gin.Context) {
	n, ok := h.deps.Notifications.Current()
	if !ok {
		c.JSON(http.StatusOK, APIResponse{})
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: n})
}

func (h *Handler) ListIntervals(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Data: utils.IntervalPresets()})
}

func scheduleID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: "invalid schedule id"})
		return 0, false
	}
	return id, true
}
