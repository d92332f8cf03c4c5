package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scheduled_payments/internal/app/provider"
	"scheduled_payments/internal/app/service"
	"scheduled_payments/internal/config"
	"scheduled_payments/internal/domain/entity"
	"scheduled_payments/internal/infrastructure/addressbook"
	"scheduled_payments/internal/infrastructure/keyloader"
	clientprovider "scheduled_payments/internal/infrastructure/network/client"
	networkdefinition "scheduled_payments/internal/infrastructure/network/definition"
	"scheduled_payments/internal/infrastructure/notifier"
	"scheduled_payments/internal/infrastructure/restapi"
	"scheduled_payments/internal/infrastructure/wallet"
	"scheduled_payments/internal/pkg/logger"
	"scheduled_payments/internal/pkg/metrics"
)

const defaultConfigPath = "config/config.yaml"

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync loop and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(config.ConfigPath(cfgPath))
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "path to the YAML config (CONFIG_PATH overrides)")
	return cmd
}

func serve(cfgPath string) error {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	zapLogger, err := logger.Init(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	log := logger.NewSlogAdapter()
	zapLogger.Info("Configuration loaded", zap.String("path", cfgPath))

	metrics.MustRegisterMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	target := networkdefinition.FromConfig(cfg.Network)
	registry := networkdefinition.NewRegistry(log, target)
	clients := clientprovider.NewProvider(cfg, log)
	defer clients.Close()

	keys, err := keyloader.NewKeyLoader(cfg.Wallet.KeyFile, cfg.Wallet.KeyEnv, log).Load()
	if err != nil {
		if !errors.Is(err, keyloader.ErrNoKeys) {
			return err
		}
		log.Warn("No signing key configured; the wallet stays unavailable", "key_env", cfg.Wallet.KeyEnv)
	}

	networks, initial := walletNetworks(registry, cfg.Wallet.PreregisterTarget)
	localWallet, err := wallet.NewLocalWallet(keys, clients, approverFor(cfg.Wallet), wallet.Options{
		InitialChain:        initial,
		Networks:            networks,
		ReceiptPollInterval: time.Duration(cfg.Transactions.ReceiptPollIntervalMillis) * time.Millisecond,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	session := service.NewSession(localWallet, registry.Target(), log)
	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.Close()

	ledgers, err := provider.NewLedgerProvider(session, cfg, log)
	if err != nil {
		return err
	}
	store := service.NewScheduleStore(session, ledgers, log)
	toast := notifier.NewToast(time.Duration(cfg.Notifications.VisibleMillis)*time.Millisecond, log)
	pipeline := service.NewTransactionPipeline(ledgers, store, toast, log)

	syncer := service.NewSyncScheduler(session, store, time.Duration(cfg.Sync.IntervalSeconds)*time.Second, log)
	if err := syncer.Start(ctx); err != nil {
		return err
	}
	defer syncer.Stop()

	book, err := addressbook.Open(cfg.AddressBook.Path, cfg.AddressBook.StorageKey, log)
	if err != nil {
		return fmt.Errorf("failed to open address book: %w", err)
	}

	if logger.ParseLevel(cfg.Logging.Level) > zap.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := restapi.NewHandler(restapi.Deps{
		Session:   session,
		Schedules: store,
		Previewer: func() (restapi.CostPreviewer, error) {
			c, err := ledgers.Client()
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Transactions:  pipeline,
		AddressBook:   book,
		Notifications: toast,
		Network:       registry.Target(),
	}, log)

	srv := &http.Server{
		Addr:         listenAddr(cfg.Server.Host, cfg.Server.Port),
		Handler:      restapi.SetupRouter(handler, zapLogger, cfg.Server.AllowedOrigins),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		zapLogger.Info("Server starting", zap.String("addr", srv.Addr),
			zap.String("network", target.Name), zap.String("ledger", cfg.Ledger.ContractAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	zapLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if n := pipeline.Pending(); n > 0 {
		log.Warn("Exiting with transactions still awaiting confirmation", "count", n)
	}
	zapLogger.Info("Server exiting")
	return nil
}

// walletNetworks returns the networks the wallet starts with and the one it sits on.
// Unless preregistered, the target must be registered through the wallet on first connect.
func walletNetworks(registry *networkdefinition.Registry, preregister bool) ([]entity.NetworkDefinition, uint64) {
	target := registry.Target()
	networks := make([]entity.NetworkDefinition, 0, 5)
	for _, def := range registry.WellKnown() {
		if def.ChainID != target.ChainID {
			networks = append(networks, def)
		}
	}
	if preregister || len(networks) == 0 {
		return append(networks, target), target.ChainID
	}
	return networks, networks[0].ChainID
}

// approverFor accepts every prompt with autoAuthorize, otherwise asks on the terminal.
func approverFor(cfg config.WalletConfig) wallet.Approver {
	if cfg.AutoAuthorize {
		return wallet.StaticApprover(true)
	}
	return newTerminalPrompt(os.Stdin, os.Stderr)
}

// terminalPrompt asks on out and reads answers from in. A single reader goroutine owns in,
// and anything typed before a prompt is shown is discarded, so a late answer to an
// abandoned prompt never answers the next one.
type terminalPrompt struct {
	mu    sync.Mutex
	out   io.Writer
	lines chan string
}

func newTerminalPrompt(in io.Reader, out io.Writer) *terminalPrompt {
	p := &terminalPrompt{out: out, lines: make(chan string, 8)}
	go func() {
		defer close(p.lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			p.lines <- strings.ToLower(strings.TrimSpace(scanner.Text()))
		}
	}()
	return p
}

func (p *terminalPrompt) Approve(ctx context.Context, kind wallet.PromptKind, detail string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
drain:
	for {
		select {
		case _, ok := <-p.lines:
			if !ok {
				return false, io.EOF
			}
		default:
			break drain
		}
	}
	fmt.Fprintf(p.out, "Wallet request [%s] %s. Approve? [y/N]: ", kind, detail)
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a, ok := <-p.lines:
		if !ok {
			return false, io.EOF
		}
		return a == "y" || a == "yes", nil
	}
}

func listenAddr(host, port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return net.JoinHostPort(host, port)
}
