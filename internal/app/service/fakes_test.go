package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"scheduled_payments/internal/app/port"
	"scheduled_payments/internal/domain/entity"
	"scheduled_payments/internal/infrastructure/contract"
	"scheduled_payments/internal/pkg/logger"
)

var (
	ledgerAddress = common.HexToAddress("0x9dd92984A3de28aE03Bc2dcf5026e1D7c77E5a4A")
	alice         = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	bob           = common.HexToAddress("0xB0B0000000000000000000000000000000000002")
	carol         = common.HexToAddress("0xCA40100000000000000000000000000000000003")

	targetNetwork = entity.NetworkDefinition{
		ChainID:        421614,
		Name:           "Arbitrum Sepolia",
		Identifier:     "arbitrum-sepolia",
		NativeUnitName: "ETH",
		NativeSymbol:   "ETH",
		Decimals:       18,
		PrimaryRPCURL:  "https://sepolia-rollup.arbitrum.io/rpc",
	}
)

func nopLogger() port.Logger {
	return logger.NewZapAdapter(zap.NewNop())
}

// abiSchedule has the field names of the ledger's Schedule tuple so the ABI can pack it.
type abiSchedule struct {
	Payer            common.Address
	Recipient        common.Address
	Amount           *big.Int
	Interval         *big.Int
	NextExecution    *big.Int
	ExecutionsLeft   *big.Int
	RemainingBalance *big.Int
	Active           bool
}

// fakeWallet is a scriptable WalletProvider backed by an in-memory ledger. It counts every call.
type fakeWallet struct {
	mu    sync.Mutex
	calls map[string]int

	granted     []common.Address
	authorized  bool
	rejectGrant bool
	chainID     uint64
	known       map[uint64]bool
	rejectAdd   bool
	// blockRequest, when set, is waited on inside RequestAccounts.
	blockRequest chan struct{}

	feeBps    uint64
	schedules map[common.Address][]entity.Schedule
	balance   *big.Int
	nextID    uint64
	// idsExtra appends bogus ids to getUserScheduleIds to desynchronise the two reads.
	idsExtra []uint64
	callErr  error
	sendErr  error
	waitErr  error
	revert   bool
	sent     []entity.TxRequest
	receipts map[common.Hash]*entity.Receipt

	accountsFeed event.Feed
	chainFeed    event.Feed
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		calls:     map[string]int{},
		granted:   []common.Address{alice},
		chainID:   targetNetwork.ChainID,
		known:     map[uint64]bool{1: true, targetNetwork.ChainID: true},
		feeBps:    50,
		schedules: map[common.Address][]entity.Schedule{},
		balance:   big.NewInt(0),
		nextID:    1,
		receipts:  map[common.Hash]*entity.Receipt{},
	}
}

func (f *fakeWallet) count(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeWallet) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeWallet) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeWallet) resetCalls() {
	f.mu.Lock()
	f.calls = map[string]int{}
	f.mu.Unlock()
}

func (f *fakeWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	f.count("RequestAccounts")
	if f.blockRequest != nil {
		select {
		case <-f.blockRequest:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectGrant {
		return nil, fmt.Errorf("connect: %w", entity.ErrUserRejected)
	}
	f.authorized = true
	return append([]common.Address(nil), f.granted...), nil
}

func (f *fakeWallet) Accounts(context.Context) ([]common.Address, error) {
	f.count("Accounts")
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.authorized {
		return []common.Address{}, nil
	}
	return append([]common.Address(nil), f.granted...), nil
}

func (f *fakeWallet) ChainID(context.Context) (uint64, error) {
	f.count("ChainID")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chainID, nil
}

func (f *fakeWallet) SwitchChain(_ context.Context, chainID uint64) error {
	f.count("SwitchChain")
	f.mu.Lock()
	if !f.known[chainID] {
		f.mu.Unlock()
		return entity.ErrChainNotAdded
	}
	f.chainID = chainID
	f.mu.Unlock()
	f.chainFeed.Send(chainID)
	return nil
}

func (f *fakeWallet) AddChain(_ context.Context, def entity.NetworkDefinition) error {
	f.count("AddChain")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectAdd {
		return fmt.Errorf("add-network: %w", entity.ErrUserRejected)
	}
	f.known[def.ChainID] = true
	return nil
}

func (f *fakeWallet) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return f.accountsFeed.Subscribe(ch)
}

func (f *fakeWallet) SubscribeChainChanged(ch chan<- uint64) event.Subscription {
	return f.chainFeed.Subscribe(ch)
}

// emitAccounts simulates the user switching or removing accounts in the wallet.
func (f *fakeWallet) emitAccounts(accounts ...common.Address) {
	f.mu.Lock()
	f.granted = accounts
	if len(accounts) == 0 {
		f.authorized = false
	}
	f.mu.Unlock()
	f.accountsFeed.Send(accounts)
}

// grantFromWallet simulates the user authorizing the client from the wallet itself.
func (f *fakeWallet) grantFromWallet(accounts ...common.Address) {
	f.mu.Lock()
	f.granted = accounts
	f.authorized = true
	f.mu.Unlock()
	f.accountsFeed.Send(accounts)
}

// emitChain simulates the user switching networks in the wallet.
func (f *fakeWallet) emitChain(chainID uint64) {
	f.mu.Lock()
	f.chainID = chainID
	f.mu.Unlock()
	f.chainFeed.Send(chainID)
}

func (f *fakeWallet) BalanceAt(_ context.Context, account common.Address) (*big.Int, error) {
	f.count("BalanceAt")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeWallet) FeeData(context.Context) (entity.FeeData, error) {
	f.count("FeeData")
	return entity.FeeData{MaxFeePerGas: big.NewInt(1000), MaxPriorityFeePerGas: big.NewInt(100)}, nil
}

func (f *fakeWallet) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	f.count("Call")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	if to != ledgerAddress {
		return nil, nil
	}
	parsed := contract.ABI()
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "feeBps":
		return method.Outputs.Pack(new(big.Int).SetUint64(f.feeBps))
	case "schedulesCount":
		return method.Outputs.Pack(new(big.Int).SetUint64(f.nextID - 1))
	case "getUserScheduleIds":
		ids := []*big.Int{}
		for _, s := range f.schedules[args[0].(common.Address)] {
			ids = append(ids, new(big.Int).SetUint64(s.ID))
		}
		for _, id := range f.idsExtra {
			ids = append(ids, new(big.Int).SetUint64(id))
		}
		return method.Outputs.Pack(ids)
	case "getUserSchedules":
		records := []abiSchedule{}
		for _, s := range f.schedules[args[0].(common.Address)] {
			records = append(records, toABI(s))
		}
		return method.Outputs.Pack(records)
	case "getSchedule":
		id := args[0].(*big.Int).Uint64()
		for _, list := range f.schedules {
			for _, s := range list {
				if s.ID == id {
					return method.Outputs.Pack(toABI(s))
				}
			}
		}
		return method.Outputs.Pack(abiSchedule{Amount: new(big.Int), Interval: new(big.Int), NextExecution: new(big.Int),
			ExecutionsLeft: new(big.Int), RemainingBalance: new(big.Int)})
	case "previewTotalCost":
		principal := new(big.Int).Mul(args[0].(*big.Int), args[1].(*big.Int))
		fee := new(big.Int).Quo(new(big.Int).Mul(principal, new(big.Int).SetUint64(f.feeBps)), big.NewInt(10000))
		return method.Outputs.Pack(principal.Add(principal, fee))
	}
	return nil, fmt.Errorf("unexpected call %s", method.Name)
}

func toABI(s entity.Schedule) abiSchedule {
	return abiSchedule{
		Payer:            s.Payer,
		Recipient:        s.Recipient,
		Amount:           s.AmountPerExecution,
		Interval:         new(big.Int).SetUint64(s.IntervalSeconds),
		NextExecution:    big.NewInt(s.NextExecutionTime),
		ExecutionsLeft:   new(big.Int).SetUint64(s.ExecutionsLeft),
		RemainingBalance: s.RemainingBalance,
		Active:           s.Active,
	}
}

// SendTransaction applies createSchedule / cancelSchedule to the in-memory ledger, like a mined block would.
func (f *fakeWallet) SendTransaction(_ context.Context, req entity.TxRequest) (common.Hash, error) {
	f.count("SendTransaction")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sent = append(f.sent, req)
	hash := common.BigToHash(big.NewInt(int64(len(f.sent))))
	receipt := &entity.Receipt{TxHash: hash, BlockNumber: 100, Succeeded: !f.revert}
	if f.revert {
		f.receipts[hash] = receipt
		return hash, nil
	}

	parsed := contract.ABI()
	method, err := parsed.MethodById(req.Data[:4])
	if err != nil {
		return common.Hash{}, err
	}
	args, err := method.Inputs.Unpack(req.Data[4:])
	if err != nil {
		return common.Hash{}, err
	}
	owner := f.granted[0]
	switch method.Name {
	case "createSchedule":
		amount := args[1].(*big.Int)
		executions := args[4].(*big.Int).Uint64()
		id := f.nextID
		f.nextID++
		f.schedules[owner] = append(f.schedules[owner], entity.Schedule{
			ID:                 id,
			Payer:              owner,
			Recipient:          args[0].(common.Address),
			AmountPerExecution: amount,
			IntervalSeconds:    args[2].(*big.Int).Uint64(),
			NextExecutionTime:  args[3].(*big.Int).Int64(),
			ExecutionsLeft:     executions,
			RemainingBalance:   new(big.Int).Mul(amount, new(big.Int).SetUint64(executions)),
			Active:             true,
		})
		f.balance.Add(f.balance, req.Value)
		receipt.Logs = []*types.Log{{
			Address: ledgerAddress,
			Topics: []common.Hash{
				parsed.Events["ScheduleCreated"].ID,
				common.BigToHash(new(big.Int).SetUint64(id)),
				common.BytesToHash(owner.Bytes()),
			},
		}}
	case "cancelSchedule":
		id := args[0].(*big.Int).Uint64()
		list := f.schedules[owner]
		for i := range list {
			if list[i].ID == id {
				list[i].Active = false
				list[i].RemainingBalance = new(big.Int)
			}
		}
	}
	f.receipts[hash] = receipt
	return hash, nil
}

func (f *fakeWallet) WaitReceipt(ctx context.Context, hash common.Hash) (*entity.Receipt, error) {
	f.count("WaitReceipt")
	f.mu.Lock()
	waitErr := f.waitErr
	receipt, ok := f.receipts[hash]
	f.mu.Unlock()
	if waitErr != nil {
		if errors.Is(waitErr, context.DeadlineExceeded) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, waitErr
	}
	if !ok {
		return nil, errors.New("unknown transaction")
	}
	return receipt, nil
}

func (f *fakeWallet) setSchedules(owner common.Address, schedules ...entity.Schedule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules[owner] = schedules
	for _, s := range schedules {
		if s.ID >= f.nextID {
			f.nextID = s.ID + 1
		}
	}
}

func sched(id uint64, active bool, executionsLeft uint64) entity.Schedule {
	return entity.Schedule{
		ID:                 id,
		Payer:              alice,
		Recipient:          bob,
		AmountPerExecution: big.NewInt(1e18),
		IntervalSeconds:    3600,
		NextExecutionTime:  time.Now().Add(time.Hour).Unix(),
		ExecutionsLeft:     executionsLeft,
		RemainingBalance:   new(big.Int).Mul(big.NewInt(1e18), new(big.Int).SetUint64(executionsLeft)),
		Active:             active,
	}
}

// recordingNotifier keeps every notification.
type recordingNotifier struct {
	mu   sync.Mutex
	msgs []entity.Notification
}

func (n *recordingNotifier) Notify(message string, kind entity.NotificationKind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, entity.Notification{Message: message, Kind: kind})
}

func (n *recordingNotifier) last() entity.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.msgs) == 0 {
		return entity.Notification{}
	}
	return n.msgs[len(n.msgs)-1]
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.msgs))
	for i, m := range n.msgs {
		out[i] = m.Message
	}
	return out
}
