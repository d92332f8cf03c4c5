package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
ledger:
  contractAddress: "0x9dd92984A3de28aE03Bc2dcf5026e1D7c77E5a4A"
`))
	require.NoError(t, err)
	require.Equal(t, uint64(421614), cfg.Network.ChainID)
	require.Equal(t, int32(18), cfg.Network.NativeUnitDecimals)
	require.Equal(t, "https://sepolia-rollup.arbitrum.io/rpc", cfg.Network.RPCEndpoint)
	require.Equal(t, 10, cfg.Sync.IntervalSeconds)
	require.Equal(t, int64(120), cfg.Transactions.FeeBufferPercent)
	require.Equal(t, "scheduled-payments-favorites", cfg.AddressBook.StorageKey)
	require.Equal(t, 3000, cfg.Notifications.VisibleMillis)
	require.Equal(t, "SCHEDULER_PRIVATE_KEY", cfg.Wallet.KeyEnv)
}

func TestParseKeepsExplicitValues(t *testing.T) {
	cfg, err := Parse([]byte(`
network:
  chainID: 31337
  rpcEndpoint: "http://127.0.0.1:8545"
ledger:
  contractAddress: "0x9dd92984A3de28aE03Bc2dcf5026e1D7c77E5a4A"
sync:
  intervalSeconds: 3
transactions:
  feeBufferPercent: 150
`))
	require.NoError(t, err)
	require.Equal(t, uint64(31337), cfg.Network.ChainID)
	require.Equal(t, "http://127.0.0.1:8545", cfg.Network.RPCEndpoint)
	require.Equal(t, 3, cfg.Sync.IntervalSeconds)
	require.Equal(t, int64(150), cfg.Transactions.FeeBufferPercent)
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing contract", `network: {chainID: 1}`},
		{"bad contract", `ledger: {contractAddress: "0x1234"}`},
		{"fee buffer below one", "ledger: {contractAddress: \"0x9dd92984A3de28aE03Bc2dcf5026e1D7c77E5a4A\"}\ntransactions: {feeBufferPercent: 90}"},
		{"malformed yaml", `ledger: [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ledger:\n  contractAddress: \"0x9dd92984A3de28aE03Bc2dcf5026e1D7c77E5a4A\"\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.Server.AllowedOrigins)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestConfigPathEnvOverride(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/scheduler.yaml")
	require.Equal(t, "/etc/scheduler.yaml", ConfigPath("config/config.yaml"))
	t.Setenv("CONFIG_PATH", "")
	require.Equal(t, "config/config.yaml", ConfigPath("config/config.yaml"))
}
