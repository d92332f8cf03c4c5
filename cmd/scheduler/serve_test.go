package main

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	networkdefinition "scheduled_payments/internal/infrastructure/network/definition"
	"scheduled_payments/internal/infrastructure/wallet"
	"scheduled_payments/internal/pkg/logger"
)

func TestWalletNetworks(t *testing.T) {
	log := logger.NewZapAdapter(zap.NewNop())

	registry := networkdefinition.NewRegistry(log, networkdefinition.ArbitrumSepolia)
	networks, initial := walletNetworks(registry, false)
	require.Equal(t, networkdefinition.Ethereum.ChainID, initial)
	for _, def := range networks {
		require.NotEqual(t, networkdefinition.ArbitrumSepolia.ChainID, def.ChainID)
	}

	networks, initial = walletNetworks(registry, true)
	require.Equal(t, networkdefinition.ArbitrumSepolia.ChainID, initial)
	require.Equal(t, networkdefinition.ArbitrumSepolia, networks[len(networks)-1])

	// A target that is also well known is still withheld until registered.
	registry = networkdefinition.NewRegistry(log, networkdefinition.Sepolia)
	networks, _ = walletNetworks(registry, false)
	for _, def := range networks {
		require.NotEqual(t, networkdefinition.Sepolia.ChainID, def.ChainID)
	}
}

func TestListenAddr(t *testing.T) {
	require.Equal(t, "127.0.0.1:8080", listenAddr("127.0.0.1", "8080"))
	require.Equal(t, ":8080", listenAddr("", "8080"))
	require.Equal(t, "[::1]:8080", listenAddr("::1", "8080"))
	require.Equal(t, "0.0.0.0:9000", listenAddr("127.0.0.1", "0.0.0.0:9000"))
}

func newPipedPrompt(t *testing.T) (*terminalPrompt, io.Writer, <-chan string) {
	t.Helper()
	in, answers := io.Pipe()
	promptOut, out := io.Pipe()
	t.Cleanup(func() {
		answers.Close()
		out.Close()
	})
	prompts := make(chan string, 4)
	go func() {
		buf := make([]byte, 512)
		for {
			n, err := promptOut.Read(buf)
			if err != nil {
				return
			}
			prompts <- string(buf[:n])
		}
	}()
	return newTerminalPrompt(in, out), answers, prompts
}

func TestTerminalPromptAccepts(t *testing.T) {
	p, answers, prompts := newPipedPrompt(t)

	done := make(chan bool, 1)
	go func() {
		ok, _ := p.Approve(context.Background(), wallet.PromptConnect, "0xabc")
		done <- ok
	}()
	require.Contains(t, <-prompts, "[connect] 0xabc")
	_, err := answers.Write([]byte("Yes\n"))
	require.NoError(t, err)
	require.True(t, <-done)
}

func TestTerminalPromptDiscardsLateAnswer(t *testing.T) {
	p, answers, prompts := newPipedPrompt(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Approve(ctx, wallet.PromptSend, "1 ETH")
	require.ErrorIs(t, err, context.Canceled)
	<-prompts

	// The answer meant for the abandoned prompt arrives late.
	_, err = answers.Write([]byte("y\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(p.lines) == 1 }, time.Second, time.Millisecond)

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := p.Approve(context.Background(), wallet.PromptSend, "2 ETH")
		done <- result{ok, err}
	}()
	require.Contains(t, <-prompts, "2 ETH")
	_, err = answers.Write([]byte("n\n"))
	require.NoError(t, err)

	r := <-done
	require.NoError(t, r.err)
	require.False(t, r.ok)
}
