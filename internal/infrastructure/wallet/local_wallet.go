package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	"scheduled_payments/internal/app/port"
	"scheduled_payments/internal/domain/entity"
	"scheduled_payments/internal/infrastructure/contract"
	"scheduled_payments/internal/infrastructure/network/client"
)

// PromptKind names the wallet prompts a user can accept or decline.
type PromptKind string

const (
	PromptConnect  PromptKind = "connect"
	PromptSwitch   PromptKind = "switch-network"
	PromptAddChain PromptKind = "add-network"
	PromptSend     PromptKind = "send-transaction"
)

// Approver answers wallet prompts on behalf of the user.
type Approver interface {
	Approve(ctx context.Context, kind PromptKind, detail string) (bool, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, kind PromptKind, detail string) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, kind PromptKind, detail string) (bool, error) {
	return f(ctx, kind, detail)
}

// StaticApprover accepts every prompt when accept is true and declines every prompt otherwise.
func StaticApprover(accept bool) Approver {
	return ApproverFunc(func(context.Context, PromptKind, string) (bool, error) { return accept, nil })
}

// BackendSource hands out chain backends per network.
type BackendSource interface {
	GetClient(netDef entity.NetworkDefinition) (client.Backend, error)
}

// Options configures a LocalWallet.
type Options struct {
	// InitialChain is the network the wallet starts on; it must be among Networks.
	InitialChain        uint64
	Networks            []entity.NetworkDefinition
	ReceiptPollInterval time.Duration
}

// LocalWallet is a software wallet holding signing keys in memory. It behaves like an
// injected browser wallet: access must be authorized, it sits on one network at a time,
// only knows registered networks and reports account and network changes through feeds.
type LocalWallet struct {
	mu         sync.Mutex
	keys       []*ecdsa.PrivateKey
	selected   int
	authorized bool
	networks   map[uint64]entity.NetworkDefinition
	chainID    uint64

	approver     Approver
	backends     BackendSource
	logger       port.Logger
	pollInterval time.Duration

	accountsFeed event.Feed
	chainFeed    event.Feed
}

var _ port.WalletProvider = (*LocalWallet)(nil)

// NewLocalWallet creates a wallet over keys. With no keys every call fails with entity.ErrWalletUnavailable.
func NewLocalWallet(keys []*ecdsa.PrivateKey, backends BackendSource, approver Approver, opts Options, logger port.Logger) (*LocalWallet, error) {
	networks := make(map[uint64]entity.NetworkDefinition, len(opts.Networks))
	for _, def := range opts.Networks {
		networks[def.ChainID] = def
	}
	if _, ok := networks[opts.InitialChain]; !ok {
		return nil, fmt.Errorf("initial chain %d is not among the wallet networks", opts.InitialChain)
	}
	poll := opts.ReceiptPollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &LocalWallet{
		keys:         keys,
		networks:     networks,
		chainID:      opts.InitialChain,
		approver:     approver,
		backends:     backends,
		logger:       logger,
		pollInterval: poll,
	}, nil
}

func (w *LocalWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	w.mu.Lock()
	if len(w.keys) == 0 {
		w.mu.Unlock()
		return nil, entity.ErrWalletUnavailable
	}
	if w.authorized {
		defer w.mu.Unlock()
		return w.accountsLocked(), nil
	}
	account := crypto.PubkeyToAddress(w.keys[w.selected].PublicKey)
	w.mu.Unlock()

	if err := w.prompt(ctx, PromptConnect, account.Hex()); err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.authorized = true
	accounts := w.accountsLocked()
	w.mu.Unlock()
	w.logger.Info("Wallet access authorized", "account", account.Hex())
	return accounts, nil
}

func (w *LocalWallet) Accounts(ctx context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.keys) == 0 {
		return nil, entity.ErrWalletUnavailable
	}
	return w.accountsLocked(), nil
}

// accountsLocked returns the selected account first, like injected wallets do.
func (w *LocalWallet) accountsLocked() []common.Address {
	if !w.authorized {
		return []common.Address{}
	}
	accounts := []common.Address{crypto.PubkeyToAddress(w.keys[w.selected].PublicKey)}
	for i, k := range w.keys {
		if i != w.selected {
			accounts = append(accounts, crypto.PubkeyToAddress(k.PublicKey))
		}
	}
	return accounts
}

func (w *LocalWallet) ChainID(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.keys) == 0 {
		return 0, entity.ErrWalletUnavailable
	}
	return w.chainID, nil
}

func (w *LocalWallet) SwitchChain(ctx context.Context, chainID uint64) error {
	w.mu.Lock()
	if len(w.keys) == 0 {
		w.mu.Unlock()
		return entity.ErrWalletUnavailable
	}
	def, known := w.networks[chainID]
	current := w.chainID
	w.mu.Unlock()

	if !known {
		return fmt.Errorf("switch to chain %d: %w", chainID, entity.ErrChainNotAdded)
	}
	if current == chainID {
		return nil
	}
	if err := w.prompt(ctx, PromptSwitch, def.Name); err != nil {
		return err
	}
	w.mu.Lock()
	w.chainID = chainID
	w.mu.Unlock()

	w.logger.Info("Wallet switched network", "chain_id", chainID, "network", def.Name)
	w.chainFeed.Send(chainID)
	return nil
}

func (w *LocalWallet) AddChain(ctx context.Context, def entity.NetworkDefinition) error {
	if def.ChainID == 0 || def.PrimaryRPCURL == "" {
		return fmt.Errorf("incomplete network definition for %q", def.Name)
	}
	w.mu.Lock()
	if len(w.keys) == 0 {
		w.mu.Unlock()
		return entity.ErrWalletUnavailable
	}
	w.mu.Unlock()

	if err := w.prompt(ctx, PromptAddChain, def.Name); err != nil {
		return err
	}
	w.mu.Lock()
	w.networks[def.ChainID] = def
	w.mu.Unlock()
	w.logger.Info("Network registered with wallet", "chain_id", def.ChainID, "network", def.Name)
	return nil
}

func (w *LocalWallet) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return w.accountsFeed.Subscribe(ch)
}

func (w *LocalWallet) SubscribeChainChanged(ch chan<- uint64) event.Subscription {
	return w.chainFeed.Subscribe(ch)
}

// SelectAccount makes the key at index the active account and announces the change.
func (w *LocalWallet) SelectAccount(index int) error {
	w.mu.Lock()
	if index < 0 || index >= len(w.keys) {
		w.mu.Unlock()
		return fmt.Errorf("account index %d out of range", index)
	}
	w.selected = index
	accounts := w.accountsLocked()
	authorized := w.authorized
	w.mu.Unlock()

	if authorized {
		w.accountsFeed.Send(accounts)
	}
	return nil
}

// Revoke withdraws the granted access, as a user disconnecting the site from the wallet would.
func (w *LocalWallet) Revoke() {
	w.mu.Lock()
	was := w.authorized
	w.authorized = false
	w.mu.Unlock()

	if was {
		w.logger.Info("Wallet access revoked")
		w.accountsFeed.Send([]common.Address{})
	}
}

func (w *LocalWallet) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	backend, _, err := w.backend()
	if err != nil {
		return nil, err
	}
	return backend.BalanceAt(ctx, account)
}

func (w *LocalWallet) FeeData(ctx context.Context) (entity.FeeData, error) {
	backend, _, err := w.backend()
	if err != nil {
		return entity.FeeData{}, err
	}
	return backend.FeeData(ctx)
}

func (w *LocalWallet) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	backend, _, err := w.backend()
	if err != nil {
		return nil, err
	}
	return backend.CallContract(ctx, to, data)
}

// SendTransaction signs req as an EIP-1559 transaction from the selected account and broadcasts it
// once the approver accepts the send prompt. Estimation failures and node rejections come back as
// entity.ErrSubmissionRejected with the revert reason.
func (w *LocalWallet) SendTransaction(ctx context.Context, req entity.TxRequest) (common.Hash, error) {
	w.mu.Lock()
	if len(w.keys) == 0 {
		w.mu.Unlock()
		return common.Hash{}, entity.ErrWalletUnavailable
	}
	if !w.authorized {
		w.mu.Unlock()
		return common.Hash{}, fmt.Errorf("send transaction: %w", entity.ErrUserRejected)
	}
	key := w.keys[w.selected]
	w.mu.Unlock()

	backend, chainID, err := w.backend()
	if err != nil {
		return common.Hash{}, err
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, entity.NewLedgerError(entity.ErrSubmissionRejected, "", err)
	}
	to := req.To
	gas, err := backend.EstimateGas(ctx, ethereum.CallMsg{
		From:      from,
		To:        &to,
		Value:     value,
		Data:      req.Data,
		GasFeeCap: req.MaxFeePerGas,
		GasTipCap: req.MaxPriorityFeePerGas,
	})
	if err != nil {
		return common.Hash{}, entity.NewLedgerError(entity.ErrSubmissionRejected, contract.RevertReason(err), err)
	}

	detail := fmt.Sprintf("from %s to %s value %s wei max fee %s wei/gas gas %d", from.Hex(), to.Hex(), value, req.MaxFeePerGas, gas)
	if err := w.prompt(ctx, PromptSend, detail); err != nil {
		return common.Hash{}, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(chainID),
		Nonce:     nonce,
		GasTipCap: req.MaxPriorityFeePerGas,
		GasFeeCap: req.MaxFeePerGas,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, entity.NewLedgerError(entity.ErrSubmissionRejected, contract.RevertReason(err), err)
	}
	w.logger.Info("Transaction broadcast", "hash", signed.Hash().Hex(), "from", from.Hex(), "nonce", nonce, "gas", gas)
	return signed.Hash(), nil
}

// WaitReceipt polls for the receipt until it appears or ctx is done. Transient read
// errors are logged and polling continues.
func (w *LocalWallet) WaitReceipt(ctx context.Context, hash common.Hash) (*entity.Receipt, error) {
	backend, _, err := w.backend()
	if err != nil {
		return nil, err
	}
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return &entity.Receipt{
				TxHash:      receipt.TxHash,
				BlockNumber: blockNumber(receipt),
				Succeeded:   receipt.Status == types.ReceiptStatusSuccessful,
				GasUsed:     receipt.GasUsed,
				Logs:        receipt.Logs,
			}, nil
		case errors.Is(err, ethereum.NotFound):
		default:
			w.logger.Warn("Receipt lookup failed, retrying", "hash", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func blockNumber(r *types.Receipt) uint64 {
	if r.BlockNumber == nil {
		return 0
	}
	return r.BlockNumber.Uint64()
}

func (w *LocalWallet) backend() (client.Backend, uint64, error) {
	w.mu.Lock()
	if len(w.keys) == 0 {
		w.mu.Unlock()
		return nil, 0, entity.ErrWalletUnavailable
	}
	def := w.networks[w.chainID]
	chainID := w.chainID
	w.mu.Unlock()

	backend, err := w.backends.GetClient(def)
	if err != nil {
		return nil, 0, err
	}
	return backend, chainID, nil
}

func (w *LocalWallet) prompt(ctx context.Context, kind PromptKind, detail string) error {
	ok, err := w.approver.Approve(ctx, kind, detail)
	if err != nil {
		return fmt.Errorf("%s prompt failed: %w", kind, err)
	}
	if !ok {
		w.logger.Info("Wallet prompt declined", "prompt", string(kind), "detail", detail)
		return fmt.Errorf("%s: %w", kind, entity.ErrUserRejected)
	}
	return nil
}
