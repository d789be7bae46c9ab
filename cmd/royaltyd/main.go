// Command royaltyd runs the royalty distributor behind its HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/bitfsorg/royalty-go/config"
	"github.com/bitfsorg/royalty-go/ledger"
	"github.com/bitfsorg/royalty-go/logger"
	"github.com/bitfsorg/royalty-go/metrics"
	"github.com/bitfsorg/royalty-go/payout"
	"github.com/bitfsorg/royalty-go/registry"
	"github.com/bitfsorg/royalty-go/server"
	"github.com/bitfsorg/royalty-go/vault"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", "", "path to config file (default <data-dir>/config)")
	dataDirFlag := flag.String("data-dir", config.DefaultDataDir(), "data directory (or set ROYALTY_DATA_DIR env var)")
	listenFlag := flag.String("listen", ":8080", "HTTP listen address (or set ROYALTY_LISTEN env var)")
	networkFlag := flag.String("network", "mainnet", "address network: mainnet, testnet, regtest (or set ROYALTY_NETWORK env var)")
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	registryFileFlag := flag.String("registry-file", "", "JSON ownership snapshot served as the registry")
	initialBalanceFlag := flag.Uint64("initial-balance", 0, "starting balance of the in-memory vault (default: the balance saved in the checkpoint)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 10*time.Second, "grace period for in-flight requests on shutdown")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := loadConfig(*configFlag, *dataDirFlag)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(&cfg, environ()); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	// Explicit flags win over env and file.
	if flag.CommandLine.Changed("data-dir") {
		cfg.DataDir = *dataDirFlag
	}
	if flag.CommandLine.Changed("listen") {
		cfg.ListenAddr = *listenFlag
	}
	if flag.CommandLine.Changed("network") {
		cfg.Network = *networkFlag
	}
	if *verboseFlag {
		cfg.LogLevel = "debug"
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	log := logger.New(cfg.LogLevel)
	metrics.BuildInfo.WithLabelValues(version, commit).Set(1)
	log.Info("starting royaltyd", "version", version, "commit", commit,
		"data_dir", cfg.DataDir, "network", cfg.Network)

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := ledger.OpenBoltStore(config.DatabasePath(cfg.DataDir))
	if err != nil {
		return err
	}
	defer store.Close()

	reg := registry.NewMemRegistry()
	if *registryFileFlag != "" {
		if reg, err = registry.LoadFile(*registryFileFlag); err != nil {
			return err
		}
	} else {
		log.Warn("no --registry-file given, serving an empty registry")
	}
	dir := registry.NewDirectory()
	dir.Register(cfg.Settings.Registry, reg)
	// The in-memory vault does not survive a restart. Seed it from the
	// checkpoint unless a balance is given explicitly.
	initialBalance := *initialBalanceFlag
	if cp, err := store.Checkpoints().LoadCheckpoint(); err == nil {
		// A restored checkpoint may name a registry set at runtime.
		if cp.Settings.Registry != cfg.Settings.Registry {
			dir.Register(cp.Settings.Registry, reg)
		}
		if !flag.CommandLine.Changed("initial-balance") {
			initialBalance = cp.Funds
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dist, err := payout.New(ctx, &cfg.Settings, payout.Options{
		Ledger:      store.Claims(),
		Checkpoints: store.Checkpoints(),
		Resolver:    dir,
		Vault:       vault.NewMemVault(initialBalance),
		Sink:        payout.LogSink{Logger: log},
		Logger:      log,
	})
	if err != nil {
		return err
	}

	srv := server.New(dist, server.Config{
		ListenAddr: cfg.ListenAddr,
		Mainnet:    cfg.Mainnet(),
		Logger:     log,
	})
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received", "timeout", *shutdownTimeoutFlag)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownTimeoutFlag)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// loadConfig reads the config file. A missing file is only an error when
// its path was given explicitly.
func loadConfig(path, dataDir string) (config.Config, error) {
	explicit := path != ""
	if !explicit {
		path = config.ConfigPath(dataDir)
	}
	cfg, err := config.LoadConfig(path)
	switch {
	case err == nil:
		return cfg, nil
	case errors.Is(err, config.ErrConfigNotFound) && !explicit:
		cfg = config.DefaultConfig()
		cfg.DataDir = dataDir
		return cfg, nil
	default:
		return config.Config{}, err
	}
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
