package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds the overall configuration for the application.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Network       NetworkConfig       `yaml:"network"`
	Ledger        LedgerConfig        `yaml:"ledger"`
	Wallet        WalletConfig        `yaml:"wallet"`
	Sync          SyncConfig          `yaml:"sync"`
	Transactions  TransactionsConfig  `yaml:"transactions"`
	RpcClient     RpcClientConfig     `yaml:"rpcClient"`
	AddressBook   AddressBookConfig   `yaml:"addressBook"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// ServerConfig holds the server-specific configuration.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
	IdleTimeout  int    `yaml:"idleTimeout"`
}

// LoggingConfig holds the configuration for logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // e.g., "debug", "info", "warn", "error"
	File  string `yaml:"file"`
}

// NetworkConfig describes the network the ledger lives on. It is also the
// definition offered to the wallet when the network is not registered there.
type NetworkConfig struct {
	ChainID              uint64   `yaml:"chainID"`
	Name                 string   `yaml:"name"`
	Identifier           string   `yaml:"identifier"`
	NativeUnitName       string   `yaml:"nativeUnitName"`
	NativeUnitSymbol     string   `yaml:"nativeUnitSymbol"`
	NativeUnitDecimals   int32    `yaml:"nativeUnitDecimals"`
	RPCEndpoint          string   `yaml:"rpcEndpoint"`
	FallbackRPCEndpoints []string `yaml:"fallbackRpcEndpoints"`
	ExplorerURL          string   `yaml:"explorerUrl"`
}

// LedgerConfig points at the scheduled payments contract.
type LedgerConfig struct {
	ContractAddress        string `yaml:"contractAddress"`
	FeeRateCacheTTLSeconds int    `yaml:"feeRateCacheTTLSeconds"`
}

// WalletConfig configures the local signing wallet.
type WalletConfig struct {
	KeyFile           string `yaml:"keyFile"`
	KeyEnv            string `yaml:"keyEnv"`
	AutoAuthorize     bool   `yaml:"autoAuthorize"`
	PreregisterTarget bool   `yaml:"preregisterTarget"`
}

type SyncConfig struct {
	IntervalSeconds int `yaml:"intervalSeconds"`
}

// TransactionsConfig holds fee and confirmation policy for submitted transactions.
type TransactionsConfig struct {
	FeeBufferPercent           int64 `yaml:"feeBufferPercent"`
	ConfirmationTimeoutSeconds int   `yaml:"confirmationTimeoutSeconds"`
	ReceiptPollIntervalMillis  int   `yaml:"receiptPollIntervalMillis"`
}

// RpcClientConfig holds configuration for RPC clients.
type RpcClientConfig struct {
	DefaultTimeoutMs int64   `yaml:"defaultTimeoutMs"`
	ConnectTimeoutMs int64   `yaml:"connectTimeoutMs"`
	RateLimit        float64 `yaml:"rateLimit"`
	BurstLimit       int     `yaml:"burstLimit"`
}

type AddressBookConfig struct {
	Path       string `yaml:"path"`
	StorageKey string `yaml:"storageKey"`
}

type NotificationsConfig struct {
	VisibleMillis int `yaml:"visibleMillis"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	logrus.Infof("Loading configuration from path: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Errorf("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		logrus.Errorf("Failed to load config data from %s: %v", path, err)
		return nil, fmt.Errorf("failed to load config data from %s: %w", path, err)
	}

	logrus.Info("Configuration loaded successfully.")
	return cfg, nil
}

// Parse decodes YAML config data, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no contract address.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Host == "" {
		// The API moves funds from the local key; keep it off the network unless asked.
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15
	}
	if cfg.Server.WriteTimeout == 0 {
		// Creation waits for confirmation inside the request.
		cfg.Server.WriteTimeout = 180
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	n := &cfg.Network
	if n.ChainID == 0 {
		n.ChainID = 421614
		logrus.Infof("network.chainID not set, defaulting to %d (Arbitrum Sepolia)", n.ChainID)
	}
	if n.Name == "" {
		n.Name = "Arbitrum Sepolia"
	}
	if n.Identifier == "" {
		n.Identifier = "arbitrum-sepolia"
	}
	if n.NativeUnitName == "" {
		n.NativeUnitName = "ETH"
	}
	if n.NativeUnitSymbol == "" {
		n.NativeUnitSymbol = "ETH"
	}
	if n.NativeUnitDecimals == 0 {
		n.NativeUnitDecimals = 18
	}
	if n.RPCEndpoint == "" {
		n.RPCEndpoint = "https://sepolia-rollup.arbitrum.io/rpc"
		logrus.Infof("network.rpcEndpoint not set, defaulting to %s", n.RPCEndpoint)
	}
	if n.ExplorerURL == "" {
		n.ExplorerURL = "https://sepolia.arbiscan.io/"
	}

	if cfg.Ledger.FeeRateCacheTTLSeconds == 0 {
		cfg.Ledger.FeeRateCacheTTLSeconds = 300
	}
	if cfg.Wallet.KeyEnv == "" {
		cfg.Wallet.KeyEnv = "SCHEDULER_PRIVATE_KEY"
	}
	if cfg.Sync.IntervalSeconds == 0 {
		cfg.Sync.IntervalSeconds = 10
	}
	if cfg.Transactions.FeeBufferPercent == 0 {
		cfg.Transactions.FeeBufferPercent = 120
	}
	if cfg.Transactions.ConfirmationTimeoutSeconds == 0 {
		cfg.Transactions.ConfirmationTimeoutSeconds = 120
	}
	if cfg.Transactions.ReceiptPollIntervalMillis == 0 {
		cfg.Transactions.ReceiptPollIntervalMillis = 1000
	}
	if cfg.RpcClient.DefaultTimeoutMs == 0 {
		cfg.RpcClient.DefaultTimeoutMs = 10000
	}
	if cfg.RpcClient.ConnectTimeoutMs == 0 {
		cfg.RpcClient.ConnectTimeoutMs = 10000
	}
	if cfg.RpcClient.RateLimit == 0 {
		cfg.RpcClient.RateLimit = 10
	}
	if cfg.RpcClient.BurstLimit == 0 {
		cfg.RpcClient.BurstLimit = 20
	}
	if cfg.AddressBook.Path == "" {
		cfg.AddressBook.Path = "~/.scheduled-payments"
	}
	if cfg.AddressBook.StorageKey == "" {
		cfg.AddressBook.StorageKey = "scheduled-payments-favorites"
	}
	if cfg.Notifications.VisibleMillis == 0 {
		cfg.Notifications.VisibleMillis = 3000
	}
}

func (cfg *Config) validate() error {
	addr := strings.TrimSpace(cfg.Ledger.ContractAddress)
	if addr == "" {
		return fmt.Errorf("ledger.contractAddress is required")
	}
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("ledger.contractAddress %q is not a valid address", addr)
	}
	if cfg.Transactions.FeeBufferPercent < 100 {
		return fmt.Errorf("transactions.feeBufferPercent must be at least 100, got %d", cfg.Transactions.FeeBufferPercent)
	}
	if cfg.Network.NativeUnitDecimals < 0 {
		return fmt.Errorf("network.nativeUnitDecimals must not be negative")
	}
	return nil
}

// ConfigPath returns the config file location, honouring the CONFIG_PATH env var.
func ConfigPath(fallback string) string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return fallback
}
