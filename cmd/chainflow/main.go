// ChainFlow - supply chain route optimization and shipment verification.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chainflow-labs/chainflow/internal/api"
	"github.com/chainflow-labs/chainflow/internal/bus"
	"github.com/chainflow-labs/chainflow/internal/cache"
	"github.com/chainflow-labs/chainflow/internal/config"
	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/chainflow-labs/chainflow/internal/repository"
	"github.com/chainflow-labs/chainflow/internal/routing"
	"github.com/chainflow-labs/chainflow/internal/rules"
	"github.com/chainflow-labs/chainflow/internal/scoring"
	"github.com/chainflow-labs/chainflow/internal/telemetry"
	"github.com/chainflow-labs/chainflow/internal/tracking"
	"github.com/chainflow-labs/chainflow/internal/velocity"
	"github.com/chainflow-labs/chainflow/internal/verify"
	"github.com/chainflow-labs/chainflow/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "chainflow.yaml", "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chainflow: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting chainflow",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"fraud_backend", cfg.Engine.FraudBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("chainflow failed", "error", err)
		os.Exit(1)
	}
	slog.Info("chainflow shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, Version, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	velocitySvc := velocity.NewService(repo, cfg.Engine.VelocityWindow)

	engine, err := rules.NewEngine(velocitySvc.AssessmentCount, cfg.Engine.MaxConcurrency)
	if err != nil {
		return fmt.Errorf("failed to initialize rule engine: %w", err)
	}
	defer engine.Close()

	if err := loadRules(ctx, repo, engine); err != nil {
		return err
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	profiles := rules.NewProfileEngine()
	if err := loadProfiles(ctx, repo, profiles); err != nil {
		return err
	}
	slog.Info("profile engine initialized", "profiles_count", profiles.ProfileCount())

	scorer := scoring.NewScorer(scoring.NewFraudModel(cfg.Engine))
	optimizer := routing.NewOptimizer(cfg.Engine.Seed)
	shipments := tracking.NewStore(cacheImpl, optimizer, cfg.Cache.ShipmentTTL, cfg.Engine.Seed)

	pipeline := &verify.Pipeline{
		Scorer:    scorer,
		Planner:   optimizer,
		Rules:     engine,
		Profiles:  profiles,
		Processor: verify.NewProcessor(),
		Store:     repo,
	}

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, pipeline)
		tenantIDs := cfg.Worker.TenantIDs()
		if err := asyncWorker.Start(worker.Config{
			TenantIDs:   tenantIDs,
			WorkerCount: cfg.Worker.Count,
		}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs), "workers", cfg.Worker.Count)
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Optimizer: optimizer,
		Scorer:    scorer,
		Shipments: shipments,
		Rules:     engine,
		Profiles:  profiles,
		Pipeline:  pipeline,
		Version:   Version,

		EnqueueTimeout: cfg.Server.EnqueueTimeout,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	slog.Info("chainflow is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"fraud_degraded", scorer.Degraded(),
	)
	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	return nil
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// loadRules loads global rules into the engine, seeding the starter catalog
// into an empty database first.
func loadRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRules(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil
	}

	if len(dbRules) == 0 {
		dbRules = rules.StarterRules(api.GlobalTenantID)
		for _, r := range dbRules {
			if err := repo.SaveRule(ctx, api.GlobalTenantID, r); err != nil {
				return fmt.Errorf("failed to seed rule %s: %w", r.ID, err)
			}
		}
		slog.Info("seeded starter rules", "count", len(dbRules))
	}

	if err := engine.ReloadRules(dbRules); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	return nil
}

func loadProfiles(ctx context.Context, repo domain.Repository, engine *rules.ProfileEngine) error {
	dbProfiles, err := repo.ListProfiles(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list profiles from database", "error", err)
		return nil
	}

	if len(dbProfiles) == 0 {
		dbProfiles = rules.StarterProfiles(api.GlobalTenantID)
		for _, p := range dbProfiles {
			if err := repo.SaveProfile(ctx, api.GlobalTenantID, p); err != nil {
				return fmt.Errorf("failed to seed profile %s: %w", p.ID, err)
			}
		}
		slog.Info("seeded starter profiles", "count", len(dbProfiles))
	}

	engine.LoadProfiles(dbProfiles)
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ChainFlow - supply chain verification engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /routes/optimize          - Plan a multi-hop route")
	fmt.Println("    GET  /regions                  - Region table and hubs")
	fmt.Println("    POST /suppliers/trust          - Score a supplier")
	fmt.Println("    POST /fraud/assess             - Score a transaction")
	fmt.Println("    POST /verify                   - Verify a product shipment")
	fmt.Println("    POST /shipments                - Start tracking a shipment")
	fmt.Println("    POST /shipments/{id}/advance   - Advance a shipment")
	fmt.Println("    GET  /rules, /profiles         - Loaded compliance rules and profiles")
	fmt.Println("    GET  /health, /metrics         - Health and Prometheus metrics")
	fmt.Println()
}
