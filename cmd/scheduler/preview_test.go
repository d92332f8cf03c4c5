package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreviewCommand(t *testing.T) {
	cmd := newPreviewCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--amount", "0.01", "--executions", "4"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, "Principal: 0.04 ETH\nFee (50 bps): 0.0002 ETH\nTotal: 0.0402 ETH\n", out.String())
}

func TestPreviewCommandRejectsBadAmount(t *testing.T) {
	cmd := newPreviewCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--amount", "abc"})
	require.Error(t, cmd.Execute())
}
