// Harrier - Fraud verdicts for every transaction.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/harrier/internal/advisory"
	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/classifier"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/observability"
	"github.com/opensource-finance/harrier/internal/profile"
	"github.com/opensource-finance/harrier/internal/replay"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/screen"
	"github.com/opensource-finance/harrier/internal/validator"
	"github.com/opensource-finance/harrier/internal/velocity"
	"github.com/opensource-finance/harrier/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Layer .env under real environment variables
	_ = godotenv.Load()

	cfg := domain.FromEnv()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"model_path", cfg.Classifier.ModelPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Load the classifier artifact. No model, no service.
	model, err := classifier.Load(cfg.Classifier.ModelPath)
	if err != nil {
		slog.Error("failed to load classifier artifact", "path", cfg.Classifier.ModelPath, "error", err)
		os.Exit(1)
	}
	slog.Info("classifier loaded", "model_version", model.Version())

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Velocity tracker feeds the velocity_count rule variable
	tracker := velocity.NewTracker(cacheImpl, cfg.Validator.VelocityWindow)

	// Supplemental screen rule engine
	engine, err := screen.NewEngine(tracker.Count, logger)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load screen rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RuleCount())

	// Profile aggregator, warmed from recent history
	profiles := profile.NewAggregator(cfg.Profile)
	warmProfiles(ctx, repo, profiles)
	slog.Info("profile aggregator initialized", "customers", profiles.CustomerCount())

	// Advisory oracle
	oracle := advisory.NewClient(cfg.Oracle)
	stage := advisory.NewStage(oracle, logger)
	slog.Info("advisory stage initialized", "model", cfg.Oracle.Model)

	// Validation orchestrator
	orchestrator, err := validator.NewOrchestrator(model, profiles, stage, validator.Options{
		Engine:     engine,
		Repo:       repo,
		Bus:        busImpl,
		MaxWorkers: cfg.Validator.MaxWorkers,
		Logger:     logger,
	})
	if err != nil {
		slog.Error("failed to initialize orchestrator", "error", err)
		os.Exit(1)
	}

	// Count ingested transactions toward per-account velocity
	velocitySub, err := busImpl.Subscribe(ctx, domain.TopicTransactionIngested, func(ctx context.Context, msg *domain.Message) error {
		var tx domain.Transaction
		if err := json.Unmarshal(msg.Payload, &tx); err != nil {
			return nil
		}
		if _, err := tracker.Record(ctx, tx.AccountNumber); err != nil {
			slog.Warn("velocity record failed", "account", tx.AccountNumber, "error", err)
		}
		return nil
	})
	if err != nil {
		slog.Error("failed to subscribe velocity tracker", "error", err)
		os.Exit(1)
	}
	defer velocitySub.Unsubscribe()

	// Async validation worker
	asyncWorker := worker.NewWorker(busImpl, orchestrator, logger)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start async worker", "error", err)
		os.Exit(1)
	}
	slog.Info("async worker started")

	metrics := observability.New()

	// Stream replayer
	var replayer *replay.Replayer
	if cfg.Replay.Enabled {
		replayer, err = replay.NewReplayer(model, busImpl, cfg.Replay.Interval, logger)
		if err != nil {
			slog.Error("failed to initialize replayer", "error", err)
			os.Exit(1)
		}
		replayer.InstrumentTicks(metrics.ReplayTicksTotal)
		seq, err := repo.ListRecentTransactions(ctx, cfg.Replay.Limit)
		if err != nil {
			slog.Warn("failed to load replay sequence", "error", err)
		} else {
			replayer.SetSequence(seq)
		}
		go replayer.Run(ctx)
		slog.Info("stream replayer started", "sequence_len", replayer.Len(), "interval", cfg.Replay.Interval)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, model, profiles, orchestrator, stage, engine, replayer, metrics, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
}

// loadRulesFromDatabase loads supplemental screen rules into the engine.
// Rules are configured via POST /rules - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *screen.Engine) error {
	stored, err := repo.ListScreenRules(ctx)
	if err != nil {
		slog.Warn("failed to list screen rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(stored) == 0 {
		slog.Info("no screen rules in database - configure via POST /rules API")
		return nil
	}

	rules := make([]domain.ScreenRule, 0, len(stored))
	for _, r := range stored {
		rules = append(rules, *r)
	}
	return engine.Load(rules)
}

// warmProfiles replays persisted transactions into the aggregator so
// profile reports survive restarts.
func warmProfiles(ctx context.Context, repo domain.Repository, profiles *profile.Aggregator) {
	txs, err := repo.ListRecentTransactions(ctx, 10000)
	if err != nil {
		slog.Warn("failed to warm profiles from repository", "error", err)
		return
	}
	for _, tx := range txs {
		profiles.Ingest(tx)
	}
	if len(txs) > 0 {
		slog.Info("profiles warmed from repository", "transactions", len(txs))
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 HARRIER                  ║")
	fmt.Println("  ║       Fraud Verdict Pipeline              ║")
	fmt.Println("  ║    A verdict for every transaction.       ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score                  - Score a transaction")
	fmt.Println("    POST /score/batch            - Score a batch")
	fmt.Println("    POST /validate               - Full verdict pipeline")
	fmt.Println("    POST /validate/batch         - Validate a batch")
	fmt.Println("    POST /transactions           - Ingest a transaction")
	fmt.Println("    GET  /transactions/{id}      - Get transaction by ID")
	fmt.Println("    GET  /validations/{id}       - Get validation by ID")
	fmt.Println("    GET  /profiles/{id}          - Get customer profile")
	fmt.Println("    POST /profiles/{id}/analyze  - Advisory profile analysis")
	fmt.Println("    GET  /profiles/{id}/transactions - Customer transaction history")
	fmt.Println("    GET  /rules                  - List screen rules")
	fmt.Println("    POST /rules                  - Create a screen rule")
	fmt.Println("    POST /rules/reload           - Hot-reload rules")
	fmt.Println("    GET  /stream                 - Replay stream (SSE)")
	fmt.Println("    GET  /stream/ws              - Replay stream (WebSocket)")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println("    GET  /metrics                - Prometheus metrics")
	fmt.Println()
}
