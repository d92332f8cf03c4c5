package port

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"scheduled_payments/internal/domain/entity"
)

// WalletProvider is the boundary to the wallet and the network behind it.
// Implementations return entity.ErrUserRejected when the user declines a prompt
// and entity.ErrChainNotAdded when asked to switch to a network they do not know.
type WalletProvider interface {
	// RequestAccounts asks the user to authorize access and returns the granted accounts.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts returns already-authorized accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	// ChainID returns the network the wallet is currently on.
	ChainID(ctx context.Context) (uint64, error)
	SwitchChain(ctx context.Context, chainID uint64) error
	AddChain(ctx context.Context, def entity.NetworkDefinition) error

	SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription
	SubscribeChainChanged(ch chan<- uint64) event.Subscription

	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	FeeData(ctx context.Context) (entity.FeeData, error)
	// Call runs a read-only contract call against the latest block.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	SendTransaction(ctx context.Context, req entity.TxRequest) (common.Hash, error)
	// WaitReceipt blocks until the transaction is mined or ctx is done.
	WaitReceipt(ctx context.Context, hash common.Hash) (*entity.Receipt, error)
}
