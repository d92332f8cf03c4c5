package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"scheduled_payments/internal/app/port"
	"scheduled_payments/internal/domain/entity"
	"scheduled_payments/internal/pkg/metrics"
)

const providerEventBuffer = 16

var sessionStates = []string{
	entity.Disconnected.String(),
	entity.Connecting.String(),
	entity.Connected.String(),
	entity.NetworkMismatch.String(),
}

// Session owns the connection to the wallet and the target network.
// Only its own transition logic writes account, network and state.
type Session struct {
	provider port.WalletProvider
	target   entity.NetworkDefinition
	logger   port.Logger

	mu        sync.Mutex
	state     entity.ConnectionState
	account   *common.Address
	networkID *uint64
	errMsg    string
	// epoch is bumped by every transition that invalidates in-flight connect or probe results.
	epoch uint64

	feed event.Feed

	accountsCh chan []common.Address
	chainCh    chan uint64
	subs       []event.Subscription
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewSession creates a Disconnected session for target.
func NewSession(provider port.WalletProvider, target entity.NetworkDefinition, logger port.Logger) *Session {
	metrics.SetSessionState(entity.Disconnected.String(), sessionStates)
	return &Session{
		provider: provider,
		target:   target,
		logger:   logger,
		state:    entity.Disconnected,
	}
}

// Start subscribes to provider account and network changes and silently probes for
// an already-authorized account. It never prompts the user.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.accountsCh = make(chan []common.Address, providerEventBuffer)
	s.chainCh = make(chan uint64, providerEventBuffer)
	s.subs = []event.Subscription{
		s.provider.SubscribeAccountsChanged(s.accountsCh),
		s.provider.SubscribeChainChanged(s.chainCh),
	}
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(loopCtx)
	return s.probe(ctx)
}

// Close releases the provider subscriptions and stops the event loop.
func (s *Session) Close() {
	s.mu.Lock()
	subs, cancel, done := s.subs, s.cancel, s.done
	s.subs, s.cancel = nil, nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if cancel != nil {
		cancel()
		<-done
	}
}

// Subscribe delivers every session transition to ch. The returned handle must be disposed.
func (s *Session) Subscribe(ch chan<- entity.SessionEvent) event.Subscription {
	return s.feed.Subscribe(ch)
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() entity.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Target returns the network the session connects to.
func (s *Session) Target() entity.NetworkDefinition {
	return s.target
}

// Provider returns the wallet provider the session negotiates with.
func (s *Session) Provider() port.WalletProvider {
	return s.provider
}

func (s *Session) snapshotLocked() entity.SessionSnapshot {
	snap := entity.SessionSnapshot{State: s.state, Error: s.errMsg}
	if s.account != nil {
		a := *s.account
		snap.Account = &a
	}
	if s.networkID != nil {
		n := *s.networkID
		snap.NetworkID = &n
	}
	return snap
}

// Connect asks the wallet for access and makes sure it sits on the target network,
// registering the network with the wallet when it does not know it. Connecting while
// Connected is a no-op. A connect that completes after the session was torn down or
// reconnected returns entity.ErrSessionSuperseded and changes nothing.
func (s *Session) Connect(ctx context.Context) (entity.SessionSnapshot, error) {
	s.mu.Lock()
	if s.state == entity.Connected {
		defer s.mu.Unlock()
		return s.snapshotLocked(), nil
	}
	s.epoch++
	attempt := s.epoch
	s.setLocked(entity.Connecting, nil, nil, "")
	s.mu.Unlock()
	s.logger.Info("Connecting wallet session", "target_chain", s.target.ChainID)

	accounts, err := s.provider.RequestAccounts(ctx)
	if err == nil && len(accounts) == 0 {
		err = fmt.Errorf("wallet granted no accounts: %w", entity.ErrUserRejected)
	}
	if err != nil {
		return s.failConnect(attempt, entity.Disconnected, nil, err)
	}

	chainID, err := s.provider.ChainID(ctx)
	if err != nil {
		return s.failConnect(attempt, entity.Disconnected, nil, err)
	}
	if chainID != s.target.ChainID {
		if err := s.switchToTarget(ctx); err != nil {
			return s.failConnect(attempt, entity.NetworkMismatch, &chainID,
				fmt.Errorf("%w: %w", entity.ErrNetworkMismatch, err))
		}
		if chainID, err = s.provider.ChainID(ctx); err != nil {
			return s.failConnect(attempt, entity.Disconnected, nil, err)
		}
		if chainID != s.target.ChainID {
			return s.failConnect(attempt, entity.NetworkMismatch, &chainID,
				fmt.Errorf("%w: wallet is on chain %d after switching", entity.ErrNetworkMismatch, chainID))
		}
	}

	s.mu.Lock()
	if s.epoch != attempt {
		s.mu.Unlock()
		return entity.SessionSnapshot{}, entity.ErrSessionSuperseded
	}
	account := accounts[0]
	network := s.target.ChainID
	s.setLocked(entity.Connected, &account, &network, "")
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("Wallet session connected", "account", account.Hex(), "chain_id", network)
	s.publish(entity.EventConnected, snap)
	return snap, nil
}

// switchToTarget asks the wallet to switch networks, registering the target first if
// the wallet does not know it.
func (s *Session) switchToTarget(ctx context.Context) error {
	err := s.provider.SwitchChain(ctx, s.target.ChainID)
	if err == nil || !errors.Is(err, entity.ErrChainNotAdded) {
		return err
	}
	s.logger.Info("Target network unknown to wallet, registering it", "network", s.target.Name)
	if err := s.provider.AddChain(ctx, s.target); err != nil {
		return fmt.Errorf("failed to register network %s: %w", s.target.Name, err)
	}
	return s.provider.SwitchChain(ctx, s.target.ChainID)
}

func (s *Session) failConnect(attempt uint64, state entity.ConnectionState, network *uint64, cause error) (entity.SessionSnapshot, error) {
	s.mu.Lock()
	if s.epoch != attempt {
		s.mu.Unlock()
		return entity.SessionSnapshot{}, fmt.Errorf("%w: %w", entity.ErrSessionSuperseded, cause)
	}
	s.setLocked(state, nil, network, entity.UserMessage(cause))
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Warn("Wallet connect failed", "state", state.String(), "error", cause)
	kind := entity.EventDisconnected
	if state == entity.NetworkMismatch {
		kind = entity.EventNetworkMismatch
	}
	s.publish(kind, snap)
	return snap, cause
}

// Disconnect forgets the account locally. There is no provider call that revokes access.
func (s *Session) Disconnect() entity.SessionSnapshot {
	s.mu.Lock()
	s.epoch++
	was := s.state
	s.setLocked(entity.Disconnected, nil, nil, "")
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if was != entity.Disconnected {
		s.logger.Info("Wallet session disconnected")
		s.publish(entity.EventDisconnected, snap)
	}
	return snap
}

// probe reads already-authorized accounts and the current network without prompting.
func (s *Session) probe(ctx context.Context) error {
	s.mu.Lock()
	if s.state == entity.Connecting {
		s.mu.Unlock()
		return nil
	}
	attempt := s.epoch
	s.mu.Unlock()

	accounts, err := s.provider.Accounts(ctx)
	var chainID uint64
	if err == nil && len(accounts) > 0 {
		chainID, err = s.provider.ChainID(ctx)
	}

	s.mu.Lock()
	if s.epoch != attempt || s.state == entity.Connecting {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.setLocked(entity.Disconnected, nil, nil, entity.UserMessage(err))
		s.mu.Unlock()
		s.logger.Warn("Silent wallet probe failed", "error", err)
		return err
	}
	was := s.state
	var kind entity.SessionEventKind
	switch {
	case len(accounts) == 0:
		s.setLocked(entity.Disconnected, nil, nil, "")
		kind = entity.EventDisconnected
	case chainID == s.target.ChainID:
		account := accounts[0]
		s.setLocked(entity.Connected, &account, &chainID, "")
		kind = entity.EventConnected
	default:
		s.setLocked(entity.NetworkMismatch, nil, &chainID, entity.UserMessage(entity.ErrNetworkMismatch))
		kind = entity.EventNetworkMismatch
	}
	now := s.state
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if was != now {
		s.logger.Info("Silent wallet probe", "state", now.String())
		s.publish(kind, snap)
	}
	return nil
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case accounts := <-s.accountsCh:
			s.onAccountsChanged(ctx, accounts)
		case chainID := <-s.chainCh:
			s.onChainChanged(ctx, chainID)
		case <-ctx.Done():
			return
		}
	}
}

// onAccountsChanged follows the wallet's account list. Accounts announced while not
// connected mean access was granted from the wallet side, so the session re-probes.
func (s *Session) onAccountsChanged(ctx context.Context, accounts []common.Address) {
	s.mu.Lock()
	switch s.state {
	case entity.Connecting:
		s.mu.Unlock()
		return
	case entity.Disconnected, entity.NetworkMismatch:
		s.mu.Unlock()
		if len(accounts) == 0 {
			return
		}
		if err := s.probe(ctx); err != nil {
			s.logger.Warn("Probe after wallet account announcement failed", "error", err)
		}
		return
	}
	if len(accounts) == 0 {
		s.epoch++
		s.setLocked(entity.Disconnected, nil, nil, "")
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.logger.Info("Wallet reported no accounts, session disconnected")
		s.publish(entity.EventDisconnected, snap)
		return
	}
	if *s.account == accounts[0] {
		s.mu.Unlock()
		return
	}
	account := accounts[0]
	s.account = &account
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("Wallet account changed", "account", account.Hex())
	s.publish(entity.EventAccountChanged, snap)
}

// onChainChanged abandons a Connected session whose network moved and re-probes from scratch.
// Changes during Connecting come from the session's own switch request.
func (s *Session) onChainChanged(ctx context.Context, chainID uint64) {
	s.mu.Lock()
	switch {
	case s.state == entity.Connecting:
		s.mu.Unlock()
		return
	case s.state == entity.Connected && *s.networkID == chainID:
		s.mu.Unlock()
		return
	case s.state == entity.Connected:
		s.epoch++
		s.setLocked(entity.Disconnected, nil, nil, "")
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.logger.Warn("Network changed under the session, resynchronizing", "chain_id", chainID)
		s.publish(entity.EventDisconnected, snap)
	default:
		s.mu.Unlock()
	}
	if err := s.probe(ctx); err != nil {
		s.logger.Warn("Resynchronization after network change failed", "error", err)
	}
}

func (s *Session) setLocked(state entity.ConnectionState, account *common.Address, network *uint64, errMsg string) {
	s.state = state
	s.account = account
	s.networkID = network
	s.errMsg = errMsg
	metrics.SetSessionState(state.String(), sessionStates)
}

// publish must be called without s.mu held: Feed.Send blocks until subscribers receive.
func (s *Session) publish(kind entity.SessionEventKind, snap entity.SessionSnapshot) {
	s.feed.Send(entity.SessionEvent{Kind: kind, Snapshot: snap})
}
