package client

import (
	"fmt"
	"sync"
	"time"

	"scheduled_payments/internal/app/port"
	"scheduled_payments/internal/config"
	"scheduled_payments/internal/domain/entity"
)

// Dialer creates a Backend for a network definition.
type Dialer func(netDef entity.NetworkDefinition, opts Options) (Backend, error)

// DialEVM is the default Dialer.
func DialEVM(netDef entity.NetworkDefinition, opts Options) (Backend, error) {
	return NewEVMClient(netDef, opts)
}

// Provider hands out one cached Backend per chain id.
type Provider struct {
	clients map[uint64]Backend
	mu      sync.Mutex
	logger  port.Logger
	opts    Options
	dial    Dialer
}

// NewProvider creates a Provider configured from the rpcClient section.
func NewProvider(cfg *config.Config, logger port.Logger) *Provider {
	return NewProviderWithDialer(OptionsFromConfig(cfg), logger, DialEVM)
}

func NewProviderWithDialer(opts Options, logger port.Logger, dial Dialer) *Provider {
	return &Provider{
		clients: make(map[uint64]Backend),
		logger:  logger,
		opts:    opts,
		dial:    dial,
	}
}

// OptionsFromConfig converts the rpcClient section into client Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ConnectTimeout: time.Duration(cfg.RpcClient.ConnectTimeoutMs) * time.Millisecond,
		CallTimeout:    time.Duration(cfg.RpcClient.DefaultTimeoutMs) * time.Millisecond,
		RateLimit:      cfg.RpcClient.RateLimit,
		Burst:          cfg.RpcClient.BurstLimit,
	}
}

// GetClient retrieves a client for the given network definition.
// It caches clients to avoid reconnecting repeatedly.
func (p *Provider) GetClient(netDef entity.NetworkDefinition) (Backend, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, exists := p.clients[netDef.ChainID]; exists {
		p.logger.Debug("Returning cached EVM client", "network", netDef.Name)
		return client, nil
	}

	p.logger.Info("Creating new EVM client", "network", netDef.Name, "rpc_primary", netDef.PrimaryRPCURL)
	newClient, err := p.dial(netDef, p.opts)
	if err != nil {
		p.logger.Error("Failed to create EVM client", "network", netDef.Name, "error", err)
		return nil, fmt.Errorf("failed to create EVM client for %s: %w", netDef.Name, err)
	}

	p.clients[netDef.ChainID] = newClient
	return newClient, nil
}

// Close closes every cached client.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.clients {
		c.Close()
		delete(p.clients, id)
	}
}
