package utils

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatBigInt(t *testing.T) {
	v, _ := new(big.Int).SetString("1234500000000000000", 10)
	require.Equal(t, "1.2345", FormatBigInt(v, 18))
	require.Equal(t, "0", FormatBigInt(nil, 18))
	require.Equal(t, "42", FormatBigInt(big.NewInt(42), 0))

	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.Equal(t, "123456789012.34567890123456789", FormatBigInt(huge, 18))
}

func TestFormatAmount(t *testing.T) {
	v, _ := new(big.Int).SetString("40200000000000000", 10)
	require.Equal(t, "0.0402 ETH", FormatAmount(v, 18, 4, "ETH"))
	require.Equal(t, "0.04", FormatAmount(v, 18, 2, ""))
}

func TestTruncateAddress(t *testing.T) {
	require.Equal(t, "0x9dd9...5a4A", TruncateAddress("0x9dd92984A3de28aE03Bc2dcf5026e1D7c77E5a4A"))
	require.Equal(t, "", TruncateAddress(""))
	require.Equal(t, "0x1234", TruncateAddress("0x1234"))
}

func TestFormatInterval(t *testing.T) {
	cases := map[uint64]string{
		0:       "One-time",
		30:      "30 seconds",
		60:      "1 minutes",
		7200:    "2 hours",
		86400:   "1 days",
		1209600: "2 weeks",
		2592000: "1 months",
	}
	for in, want := range cases {
		require.Equal(t, want, FormatInterval(in), "interval %d", in)
	}
}

func TestFormatNextExecution(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, "Overdue", FormatNextExecution(now.Add(-time.Second), now))
	require.Equal(t, "In less than a minute", FormatNextExecution(now.Add(30*time.Second), now))
	require.Equal(t, "In 5 min", FormatNextExecution(now.Add(5*time.Minute+10*time.Second), now))
	require.Equal(t, "In 3 hours", FormatNextExecution(now.Add(3*time.Hour), now))
	require.Equal(t, "Jun 3, 12:00 PM", FormatNextExecution(now.Add(48*time.Hour), now))
}

func TestIntervalPresets(t *testing.T) {
	presets := IntervalPresets()
	require.Len(t, presets, 6)
	require.True(t, IsOneTime(presets[0].Seconds))
	require.Equal(t, uint64(2592000), presets[5].Seconds)

	presets[0].Label = "changed"
	require.Equal(t, "One-time (no repeat)", IntervalPresets()[0].Label)
}
