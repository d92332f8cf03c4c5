package entity

// NetworkDefinition holds the configuration for a specific blockchain network.
// It doubles as the payload the wallet needs to register a network it does not know yet.
type NetworkDefinition struct {
	ChainID          uint64   `json:"chainId" yaml:"chainId"`
	Name             string   `json:"name" yaml:"name"`             // display name, e.g. "Arbitrum Sepolia"
	Identifier       string   `json:"identifier" yaml:"identifier"` // short unique id, e.g. "arbitrum-sepolia"
	NativeUnitName   string   `json:"nativeUnitName" yaml:"nativeUnitName"`
	NativeSymbol     string   `json:"nativeSymbol" yaml:"nativeSymbol"`
	Decimals         int32    `json:"decimals" yaml:"decimals"` // decimals of the native unit
	PrimaryRPCURL    string   `json:"primaryRpcUrl" yaml:"primaryRpcUrl"`
	FallbackRPCURLs  []string `json:"fallbackRpcUrls,omitempty" yaml:"fallbackRpcUrls,omitempty"`
	BlockExplorerURL string   `json:"blockExplorerUrl,omitempty" yaml:"blockExplorerUrl,omitempty"`
}

// RPCURLs returns the primary endpoint followed by the fallbacks.
func (d NetworkDefinition) RPCURLs() []string {
	urls := make([]string, 0, 1+len(d.FallbackRPCURLs))
	if d.PrimaryRPCURL != "" {
		urls = append(urls, d.PrimaryRPCURL)
	}
	return append(urls, d.FallbackRPCURLs...)
}
