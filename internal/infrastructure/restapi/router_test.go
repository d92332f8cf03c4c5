package restapi

import (
	"bytes"
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scheduled_payments/internal/domain/entity"
	"scheduled_payments/internal/pkg/logger"
	"scheduled_payments/internal/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	testOrigin  = "http://localhost:5173"
	testAccount = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	testNetwork = entity.NetworkDefinition{ChainID: 421614, Name: "Arbitrum Sepolia", NativeSymbol: "ETH", Decimals: 18}
	testNow     = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

type stubSession struct {
	snap       entity.SessionSnapshot
	connectErr error
}

func (s *stubSession) Snapshot() entity.SessionSnapshot { return s.snap }

func (s *stubSession) Connect(context.Context) (entity.SessionSnapshot, error) {
	if s.connectErr != nil {
		s.snap = entity.SessionSnapshot{State: entity.Disconnected, Error: entity.UserMessage(s.connectErr)}
		return s.snap, s.connectErr
	}
	net := testNetwork.ChainID
	acct := testAccount
	s.snap = entity.SessionSnapshot{State: entity.Connected, Account: &acct, NetworkID: &net}
	return s.snap, nil
}

func (s *stubSession) Disconnect() entity.SessionSnapshot {
	s.snap = entity.SessionSnapshot{State: entity.Disconnected}
	return s.snap
}

type stubViews struct{ schedules []entity.Schedule }

func (v *stubViews) pick(keep func(entity.Schedule) bool) []entity.Schedule {
	out := []entity.Schedule{}
	for _, s := range v.schedules {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func (v *stubViews) All() []entity.Schedule { return v.pick(func(entity.Schedule) bool { return true }) }
func (v *stubViews) Active() []entity.Schedule {
	return v.pick(func(s entity.Schedule) bool { return s.Active })
}
func (v *stubViews) Completed() []entity.Schedule {
	return v.pick(func(s entity.Schedule) bool { return !s.Active })
}
func (v *stubViews) Cancelled() []entity.Schedule { return v.pick(entity.Schedule.IsCancelled) }

func (v *stubViews) Get(id uint64) (entity.Schedule, bool) {
	for _, s := range v.schedules {
		if s.ID == id {
			return s, true
		}
	}
	return entity.Schedule{}, false
}

func (v *stubViews) Stats() entity.ScheduleStats {
	return entity.ScheduleStats{ContractBalance: big.NewInt(5e17), Total: len(v.schedules)}
}

type stubPreviewer struct{ bps uint32 }

func (p stubPreviewer) PreviewCost(_ context.Context, amount *big.Int, executions uint64, _ *uint32) (entity.CostPreview, error) {
	principal := new(big.Int).Mul(amount, new(big.Int).SetUint64(executions))
	fee := new(big.Int).Div(new(big.Int).Mul(principal, big.NewInt(int64(p.bps))), big.NewInt(10000))
	return entity.CostPreview{Principal: principal, Fee: fee, Total: new(big.Int).Add(principal, fee), FeeRateBps: p.bps}, nil
}

type stubTransactions struct {
	last    entity.CreateRequest
	outcome entity.TxOutcome
}

func (s *stubTransactions) Create(_ context.Context, req entity.CreateRequest) entity.TxOutcome {
	s.last = req
	return s.outcome
}

func (s *stubTransactions) Cancel(context.Context, uint64) entity.TxOutcome { return s.outcome }
func (s *stubTransactions) Pending() int                                 { return 0 }

type stubBook struct{ entries []entity.FavoriteEntry }

func (b *stubBook) Add(address, label string) (bool, error) {
	if b.IsKnown(address) {
		return false, nil
	}
	b.entries = append(b.entries, entity.FavoriteEntry{Address: address, Label: label})
	return true, nil
}
func (b *stubBook) Remove(string) error {
	b.entries = nil
	return nil
}

func (b *stubBook) UpdateLabel(address, label string) error {
	for i := range b.entries {
		if b.entries[i].Address == address {
			b.entries[i].Label = label
		}
	}
	return nil
}

func (b *stubBook) IsKnown(address string) bool {
	for _, e := range b.entries {
		if e.Address == address {
			return true
		}
	}
	return false
}

func (b *stubBook) List() []entity.FavoriteEntry { return b.entries }

type stubNotifications struct{}

func (stubNotifications) Current() (entity.Notification, bool) {
	return entity.Notification{ID: "n1", Message: "hello", Visible: true}, true
}

type fixture struct {
	session *stubSession
	views   *stubViews
	txs     *stubTransactions
	book    *stubBook
	router  *gin.Engine
}

func newFixture(previewErr error) *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		session: &stubSession{},
		views: &stubViews{schedules: []entity.Schedule{
			{ID: 1, Payer: testAccount, Recipient: testAccount, AmountPerExecution: big.NewInt(1e16), IntervalSeconds: 86400,
				NextExecutionTime: testNow.Add(time.Hour).Unix(), ExecutionsLeft: 3, RemainingBalance: big.NewInt(3e16), Active: true},
			{ID: 2, Payer: testAccount, Recipient: testAccount, AmountPerExecution: big.NewInt(1e16),
				ExecutionsLeft: 2, RemainingBalance: big.NewInt(0)},
		}},
		txs:  &stubTransactions{},
		book: &stubBook{},
	}
	h := NewHandler(Deps{
		Session:   f.session,
		Schedules: f.views,
		Previewer: func() (CostPreviewer, error) {
			if previewErr != nil {
				return nil, previewErr
			}
			return stubPreviewer{bps: 50}, nil
		},
		Transactions:  f.txs,
		AddressBook:   f.book,
		Notifications: stubNotifications{},
		Network:       testNetwork,
		Now:           func() time.Time { return testNow },
	}, logger.NewZapAdapter(zap.NewNop()))
	f.router = SetupRouter(h, zap.NewNop(), []string{testOrigin})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestSessionRoutes(t *testing.T) {
	f := newFixture(nil)

	rec, body := f.do(t, http.MethodGet, "/api/v1/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "disconnected", body["data"].(map[string]any)["state"])

	rec, body = f.do(t, http.MethodPost, "/api/v1/session/connect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	require.Equal(t, "connected", data["state"])
	require.Equal(t, utils.TruncateAddress(testAccount.Hex()), data["accountShort"])
	require.Equal(t, "...0001", data["accountShort"].(string)[6:])

	rec, body = f.do(t, http.MethodPost, "/api/v1/session/disconnect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "disconnected", body["data"].(map[string]any)["state"])
}

func TestCORSOnlyForAllowedOrigins(t *testing.T) {
	f := newFixture(nil)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/schedules", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}

	rec := preflight(testOrigin)
	require.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = preflight("https://evil.example")
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, entity.CreateRequest{}, f.txs.last)
}

func TestConnectRejected(t *testing.T) {
	f := newFixture(nil)
	f.session.connectErr = entity.ErrUserRejected

	rec, body := f.do(t, http.MethodPost, "/api/v1/session/connect", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "Request was rejected in the wallet.", body["error"])
}

func TestScheduleViews(t *testing.T) {
	f := newFixture(nil)

	rec, body := f.do(t, http.MethodGet, "/api/v1/schedules?view=active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := body["data"].([]any)
	require.Len(t, list, 1)
	first := list[0].(map[string]any)
	require.Equal(t, "10000000000000000", first["amountPerExecution"])
	require.Equal(t, "0.0100 ETH", first["amountDisplay"])
	require.Equal(t, "1 days", first["intervalText"])
	require.Equal(t, "In 1 hours", first["nextExecutionText"])
	require.Equal(t, "active", first["status"])

	_, body = f.do(t, http.MethodGet, "/api/v1/schedules?view=cancelled", nil)
	require.Len(t, body["data"].([]any), 1)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/schedules?view=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSchedule(t *testing.T) {
	f := newFixture(nil)

	rec, body := f.do(t, http.MethodGet, "/api/v1/schedules/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cancelled", body["data"].(map[string]any)["status"])

	rec, _ = f.do(t, http.MethodGet, "/api/v1/schedules/9", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/schedules/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats(t *testing.T) {
	f := newFixture(nil)
	rec, body := f.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	require.Equal(t, "500000000000000000", data["contractBalance"])
	require.Equal(t, "0.5000 ETH", data["contractBalanceDisplay"])
}

func TestPreview(t *testing.T) {
	f := newFixture(nil)

	rec, body := f.do(t, http.MethodPost, "/api/v1/schedules/preview", map[string]any{"amount": "0.01", "executions": 4})
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	require.Equal(t, "40000000000000000", data["principal"])
	require.Equal(t, "200000000000000", data["fee"])
	require.Equal(t, "40200000000000000", data["total"])

	rec, body = f.do(t, http.MethodPost, "/api/v1/schedules/preview", map[string]any{"amount": "1", "executions": 1, "feeRateBps": 100})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1010000000000000000", body["data"].(map[string]any)["total"])

	rec, _ = f.do(t, http.MethodPost, "/api/v1/schedules/preview", map[string]any{"amount": "1.0000000000000000001", "executions": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewWithoutSession(t *testing.T) {
	f := newFixture(entity.ErrLedgerUnavailable)
	rec, body := f.do(t, http.MethodPost, "/api/v1/schedules/preview", map[string]any{"amount": "1", "executions": 2})
	require.Equal(t, http.StatusPreconditionRequired, rec.Code)
	require.Equal(t, "Connect your wallet first.", body["error"])
}

func TestCreateSchedule(t *testing.T) {
	f := newFixture(nil)
	id := uint64(7)
	f.txs.outcome = entity.TxOutcome{Operation: entity.OperationCreate, TxHash: "0xabc", ScheduleID: &id,
		Confirmed: true, Message: "Schedule created successfully!"}

	rec, body := f.do(t, http.MethodPost, "/api/v1/schedules", map[string]any{
		"recipient": "0xB0B0000000000000000000000000000000000002",
		"amount":    "0.5",
		"startTime": testNow.Add(time.Hour).Unix(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Schedule created successfully!", body["status_message"])
	require.Equal(t, float64(7), body["data"].(map[string]any)["scheduleId"])

	require.Equal(t, uint64(1), f.txs.last.Executions)
	require.Equal(t, "500000000000000000", f.txs.last.Amount.String())
	require.Equal(t, testNow.Add(time.Hour).Unix(), f.txs.last.StartTime.Unix())
}

func TestCreateScheduleFailure(t *testing.T) {
	f := newFixture(nil)
	f.txs.outcome = entity.TxOutcome{Operation: entity.OperationCreate, Err: entity.ErrPastStartTime,
		Message: "Start time must be in the future."}

	rec, body := f.do(t, http.MethodPost, "/api/v1/schedules", map[string]any{
		"recipient": "0xB0B0000000000000000000000000000000000002", "amount": "1", "startTime": 1, "executions": 2,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Start time must be in the future.", body["error"])
}

func TestCancelSchedule(t *testing.T) {
	f := newFixture(nil)
	f.txs.outcome = entity.TxOutcome{Operation: entity.OperationCancel,
		Err:     entity.NewLedgerError(entity.ErrScheduleNotFound, "Schedule not active", nil),
		Message: "Schedule not active"}

	rec, body := f.do(t, http.MethodPost, "/api/v1/schedules/1/cancel", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Schedule not active", body["error"])
}

func TestFavorites(t *testing.T) {
	f := newFixture(nil)
	addr := "0xB0B0000000000000000000000000000000000002"

	rec, _ := f.do(t, http.MethodPost, "/api/v1/favorites", map[string]any{"address": addr, "label": "Bob"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/api/v1/favorites", map[string]any{"address": addr})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = f.do(t, http.MethodPatch, "/api/v1/favorites/"+addr, map[string]any{"label": "Robert"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Robert", f.book.entries[0].Label)

	rec, body := f.do(t, http.MethodGet, "/api/v1/favorites", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["data"].([]any), 1)

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/favorites/"+addr, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, f.book.entries)
}

func TestNotificationAndIntervals(t *testing.T) {
	f := newFixture(nil)

	_, body := f.do(t, http.MethodGet, "/api/v1/notification", nil)
	require.Equal(t, "hello", body["data"].(map[string]any)["message"])

	_, body = f.do(t, http.MethodGet, "/api/v1/intervals", nil)
	require.Len(t, body["data"].([]any), 6)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(nil)
	rec, _ := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
