package entity

import "github.com/ethereum/go-ethereum/common"

// ConnectionState is the state of the wallet session.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	NetworkMismatch
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case NetworkMismatch:
		return "network_mismatch"
	default:
		return "unknown"
	}
}

// SessionSnapshot is a consistent read of the session.
// Account is non-nil iff State == Connected.
type SessionSnapshot struct {
	State     ConnectionState
	Account   *common.Address
	NetworkID *uint64
	Error     string
}

// SessionEventKind describes a session transition.
type SessionEventKind int

const (
	EventConnected SessionEventKind = iota
	EventDisconnected
	EventAccountChanged
	EventNetworkMismatch
)

func (k SessionEventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventAccountChanged:
		return "account_changed"
	case EventNetworkMismatch:
		return "network_mismatch"
	default:
		return "unknown"
	}
}

// SessionEvent is published after every session transition.
type SessionEvent struct {
	Kind     SessionEventKind
	Snapshot SessionSnapshot
}
