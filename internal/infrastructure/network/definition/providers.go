package networkdefinition

import (
	"sort"

	"scheduled_payments/internal/app/port"
	"scheduled_payments/internal/config"
	"scheduled_payments/internal/domain/entity"
)

// Predefined network definitions
var ( //nolint:gochecknoglobals // Global for definitions
	ArbitrumSepolia = entity.NetworkDefinition{
		ChainID:          421614,
		Name:             "Arbitrum Sepolia",
		Identifier:       "arbitrum-sepolia",
		NativeUnitName:   "ETH",
		NativeSymbol:     "ETH",
		Decimals:         18,
		PrimaryRPCURL:    "https://sepolia-rollup.arbitrum.io/rpc",
		FallbackRPCURLs:  []string{"https://arbitrum-sepolia.publicnode.com"},
		BlockExplorerURL: "https://sepolia.arbiscan.io/",
	}
	Ethereum = entity.NetworkDefinition{
		ChainID:          1,
		Name:             "Ethereum Mainnet",
		Identifier:       "ethereum",
		NativeUnitName:   "Ether",
		NativeSymbol:     "ETH",
		Decimals:         18,
		PrimaryRPCURL:    "https://ethereum-rpc.publicnode.com",
		FallbackRPCURLs:  []string{"https://rpc.ankr.com/eth", "https://ethereum.publicnode.com"},
		BlockExplorerURL: "https://etherscan.io",
	}
	Sepolia = entity.NetworkDefinition{
		ChainID:          11155111,
		Name:             "Sepolia",
		Identifier:       "sepolia",
		NativeUnitName:   "Sepolia Ether",
		NativeSymbol:     "ETH",
		Decimals:         18,
		PrimaryRPCURL:    "https://ethereum-sepolia-rpc.publicnode.com",
		FallbackRPCURLs:  []string{"https://rpc.sepolia.org"},
		BlockExplorerURL: "https://sepolia.etherscan.io",
	}
	Arbitrum = entity.NetworkDefinition{
		ChainID:          42161,
		Name:             "Arbitrum One",
		Identifier:       "arbitrum",
		NativeUnitName:   "Ether",
		NativeSymbol:     "ETH",
		Decimals:         18,
		PrimaryRPCURL:    "https://arb1.arbitrum.io/rpc",
		FallbackRPCURLs:  []string{"https://arbitrum.llamarpc.com", "https://arbitrum.publicnode.com"},
		BlockExplorerURL: "https://arbiscan.io",
	}
	Base = entity.NetworkDefinition{
		ChainID:          8453,
		Name:             "Base Mainnet",
		Identifier:       "base",
		NativeUnitName:   "Ether",
		NativeSymbol:     "ETH",
		Decimals:         18,
		PrimaryRPCURL:    "https://1rpc.io/base",
		FallbackRPCURLs:  []string{"https://base.publicnode.com", "https://base.llamarpc.com"},
		BlockExplorerURL: "https://basescan.org",
	}
)

// wellKnown are the networks a freshly installed wallet already carries.
var wellKnown = []entity.NetworkDefinition{Ethereum, Sepolia, Arbitrum, Base}

// Registry resolves network definitions. The target is the network the ledger lives on.
type Registry struct {
	logger  port.Logger
	target  entity.NetworkDefinition
	byChain map[uint64]entity.NetworkDefinition
}

// NewRegistry creates a registry of the well-known networks plus target.
// A target sharing a chain id with a well-known network overrides it.
func NewRegistry(logger port.Logger, target entity.NetworkDefinition) *Registry {
	r := &Registry{
		logger:  logger,
		target:  target,
		byChain: make(map[uint64]entity.NetworkDefinition, len(wellKnown)+2),
	}
	for _, def := range wellKnown {
		r.byChain[def.ChainID] = def
	}
	r.byChain[ArbitrumSepolia.ChainID] = ArbitrumSepolia
	r.byChain[target.ChainID] = target
	logger.Debug("Network registry initialized", "target", target.Name, "chain_id", target.ChainID, "known", len(r.byChain))
	return r
}

// FromConfig builds the target definition from the network config section.
func FromConfig(cfg config.NetworkConfig) entity.NetworkDefinition {
	fallbacks := make([]string, len(cfg.FallbackRPCEndpoints))
	copy(fallbacks, cfg.FallbackRPCEndpoints)
	return entity.NetworkDefinition{
		ChainID:          cfg.ChainID,
		Name:             cfg.Name,
		Identifier:       cfg.Identifier,
		NativeUnitName:   cfg.NativeUnitName,
		NativeSymbol:     cfg.NativeUnitSymbol,
		Decimals:         cfg.NativeUnitDecimals,
		PrimaryRPCURL:    cfg.RPCEndpoint,
		FallbackRPCURLs:  fallbacks,
		BlockExplorerURL: cfg.ExplorerURL,
	}
}

// Target returns the network the ledger lives on.
func (r *Registry) Target() entity.NetworkDefinition {
	return r.target
}

// WellKnown returns the definitions a wallet knows without registration, sorted by chain id.
// The target is excluded unless it coincides with one of them.
func (r *Registry) WellKnown() []entity.NetworkDefinition {
	defs := make([]entity.NetworkDefinition, 0, len(wellKnown))
	for _, def := range wellKnown {
		defs = append(defs, r.byChain[def.ChainID])
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ChainID < defs[j].ChainID })
	return defs
}

// GetByChainID returns a network definition by its chain ID.
func (r *Registry) GetByChainID(chainID uint64) (entity.NetworkDefinition, bool) {
	def, ok := r.byChain[chainID]
	return def, ok
}

// GetByIdentifier returns a network definition by its short identifier.
func (r *Registry) GetByIdentifier(identifier string) (entity.NetworkDefinition, bool) {
	for _, def := range r.byChain {
		if def.Identifier == identifier {
			return def, true
		}
	}
	return entity.NetworkDefinition{}, false
}
