package provider

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"

	"scheduled_payments/internal/app/port"
	"scheduled_payments/internal/app/service"
	"scheduled_payments/internal/config"
	"scheduled_payments/internal/infrastructure/contract"
)

const defaultFeeRateTTL = 5 * time.Minute

// LedgerProvider hands out ledger clients bound to the session's current account.
// Clients share one codec and one fee-rate cache.
type LedgerProvider struct {
	session  *service.Session
	codec    *contract.Codec
	feeCache *cache.Cache
	opts     service.LedgerClientOptions
	logger   port.Logger
}

var (
	_ service.ReaderSource = (*LedgerProvider)(nil)
	_ service.WriterSource = (*LedgerProvider)(nil)
)

// NewLedgerProvider creates a LedgerProvider for the configured contract.
func NewLedgerProvider(session *service.Session, cfg *config.Config, logger port.Logger) (*LedgerProvider, error) {
	if !common.IsHexAddress(cfg.Ledger.ContractAddress) {
		return nil, fmt.Errorf("invalid ledger contract address %q", cfg.Ledger.ContractAddress)
	}
	ttl := defaultFeeRateTTL
	if cfg.Ledger.FeeRateCacheTTLSeconds > 0 {
		ttl = time.Duration(cfg.Ledger.FeeRateCacheTTLSeconds) * time.Second
	}
	feeCache := cache.New(ttl, 2*ttl)

	logger.Info("Ledger provider ready",
		"contract", cfg.Ledger.ContractAddress,
		"fee_buffer_percent", cfg.Transactions.FeeBufferPercent,
		"fee_rate_ttl", ttl.String())

	return &LedgerProvider{
		session:  session,
		codec:    contract.NewCodec(common.HexToAddress(cfg.Ledger.ContractAddress)),
		feeCache: feeCache,
		opts: service.LedgerClientOptions{
			FeePolicy:           service.NewFeePolicy(cfg.Transactions.FeeBufferPercent),
			ConfirmationTimeout: time.Duration(cfg.Transactions.ConfirmationTimeoutSeconds) * time.Second,
			FeeRateCache:        feeCache,
		},
		logger: logger,
	}, nil
}

// Client returns a client for the current account, or entity.ErrLedgerUnavailable.
func (p *LedgerProvider) Client() (*service.LedgerClient, error) {
	c, err := service.NewLedgerClient(p.session, p.codec, p.opts, p.logger)
	if err != nil {
		p.logger.Debug("Ledger client unavailable", "error", err)
		return nil, err
	}
	return c, nil
}

func (p *LedgerProvider) Reader() (port.ScheduleReader, error) {
	c, err := p.Client()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *LedgerProvider) Writer() (port.ScheduleWriter, error) {
	c, err := p.Client()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Codec exposes the shared contract codec.
func (p *LedgerProvider) Codec() *contract.Codec {
	return p.codec
}

// InvalidateFeeRate drops the cached fee rate so the next read goes to the ledger.
func (p *LedgerProvider) InvalidateFeeRate() {
	p.feeCache.Flush()
}
