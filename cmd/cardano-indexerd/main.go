// Package main provides cardano-indexerd, a UTxO-model chain indexer.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/input-output-hk/cardano-txindexer/internal/bulk"
	"github.com/input-output-hk/cardano-txindexer/internal/config"
	"github.com/input-output-hk/cardano-txindexer/internal/projector"
	"github.com/input-output-hk/cardano-txindexer/internal/server"
	"github.com/input-output-hk/cardano-txindexer/internal/store"
	"github.com/input-output-hk/cardano-txindexer/internal/syncloop"
	"github.com/input-output-hk/cardano-txindexer/internal/upstream"
	"github.com/input-output-hk/cardano-txindexer/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

// genesisHash is the synthetic BlockLink root every fresh database is
// seeded with before the sync loop or bulk ingestor ever runs.
const genesisHash = "genesis"

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.cardano-txindexer", "Data directory")
		configFile  = flag.String("config", "", "Config file path; only its directory is used and config.yaml is read from there (default: <data-dir>/config.yaml)")
		port        = flag.Int("port", 0, "Query server port, overrides config")
		httpBridge  = flag.String("http-bridge", "", "Upstream bridge base URL, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("cardano-indexerd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		log.Fatal("missing subcommand: expected 'start' or 'sync-block-index'")
	}
	subcommand := args[0]

	configDir := *dataDir
	if *configFile != "" {
		configDir = filepath.Dir(*configFile)
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	if *port != 0 {
		cfg.Port = *port
	}
	if *httpBridge != "" {
		cfg.HTTPBridge = *httpBridge
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)
	log.Info("config loaded", "path", config.ConfigPath(configDir))

	s, err := store.New(&store.Config{
		DataDir:        expandPath(cfg.Database),
		ReaderPoolSize: cfg.ReaderPoolSize,
	})
	if err != nil {
		log.Fatal("failed to initialize store", "error", err)
	}
	defer s.Close()
	log.Info("store initialized", "path", s.Path())

	if err := projector.ApplyInitialState(s, genesisHash, nil); err != nil {
		log.Fatal("failed to seed genesis state", "error", err)
	}

	bridge := upstream.NewHTTPBridge(cfg.HTTPBridge)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch subcommand {
	case "start":
		runStart(ctx, log, cfg, s, bridge)
	case "sync-block-index":
		runSyncBlockIndex(ctx, log, cfg, s, bridge)
	default:
		log.Fatal("unknown subcommand", "subcommand", subcommand)
	}
}

func runStart(ctx context.Context, log *logging.Logger, cfg *config.Config, s *store.Store, bridge upstream.Upstream) {
	srv := server.New(s, cfg.Port)
	if err := srv.Start(); err != nil {
		log.Fatal("failed to start query server", "error", err)
	}

	loop := syncloop.New(s, bridge, cfg.RefreshInterval)
	loop.OnApplied = srv.NotifyBlockApplied

	printBanner(log, cfg)

	go loop.RunWithRestart(ctx, 5*time.Second)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("error stopping query server", "error", err)
	}

	log.Info("goodbye!")
}

func runSyncBlockIndex(ctx context.Context, log *logging.Logger, cfg *config.Config, s *store.Store, bridge upstream.Upstream) {
	tip, err := bridge.Tip(ctx)
	if err != nil {
		log.Fatal("failed to fetch upstream tip", "error", err)
	}

	firstUnstable := upstream.FirstUnstableEpoch(tip, cfg.EpochStabilityDepth)
	log.Info("computed first unstable epoch", "epoch", firstUnstable, "tip", tip.Hash)

	if err := bulk.IngestEpochs(ctx, s, firstUnstable, bridge.Epoch); err != nil {
		log.Fatal("epoch bulk ingestion failed", "error", err)
	}

	log.Info("block index synced", "first_unstable_epoch", firstUnstable)
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func printBanner(log *logging.Logger, cfg *config.Config) {
	log.Info("")
	log.Info("=================================================")
	log.Infof("  cardano-indexerd (%s)", cfg.Network)
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Query API: http://localhost:%d", cfg.Port)
	log.Infof("  WS feed:   ws://localhost:%d/ws", cfg.Port)
	log.Infof("  Upstream:  %s", cfg.HTTPBridge)
	log.Info("")
	log.Infof("  Network: %s | refresh: %s", cfg.Network, cfg.RefreshInterval)
	log.Infof("  Data dir: %s", expandPath(cfg.Database))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
