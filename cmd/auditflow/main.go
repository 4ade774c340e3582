// Auditflow server — provides the evaluation HTTP API, manages the async
// job worker pool, and orchestrates per-item reasoning against the
// configured LLM and OCR providers.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/auditflow/auditflow/pkg/api"
	"github.com/auditflow/auditflow/pkg/batch"
	"github.com/auditflow/auditflow/pkg/config"
	"github.com/auditflow/auditflow/pkg/correlation"
	"github.com/auditflow/auditflow/pkg/evidence"
	"github.com/auditflow/auditflow/pkg/graph"
	"github.com/auditflow/auditflow/pkg/jobs"
	"github.com/auditflow/auditflow/pkg/providers"
	"github.com/auditflow/auditflow/pkg/providers/registry"
	"github.com/auditflow/auditflow/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

// buildStore selects the job store backend from configuration.
func buildStore(ctx context.Context, cfg *config.Config) (jobs.Store, func(), error) {
	switch cfg.Jobs.Store {
	case config.JobStorePostgres:
		store, err := jobs.NewPostgresStore(ctx, jobs.PostgresConfig{
			DSN:      cfg.Database.DSN(),
			MaxConns: int32(cfg.Database.MaxConns),
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Connected to PostgreSQL job store",
			"host", cfg.Database.Host, "database", cfg.Database.Database)
		return store, store.Close, nil
	default:
		slog.Info("Using in-memory job store")
		return jobs.NewMemoryStore(), func() {}, nil
	}
}

func main() {
	// Correlation IDs ride the context into every log record.
	slog.SetDefault(slog.New(correlation.NewHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))))

	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	podID := resolvePodID()

	slog.Info("Starting auditflow",
		"version", version.Full(),
		"http_port", httpPort,
		"pod_id", podID)

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	reg, err := registry.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize providers", "error", err)
		os.Exit(1)
	}

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize job store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Evaluation pipeline: evidence → orchestrator → batch coordinator.
	processor := evidence.NewProcessor(reg.OCR(), evidence.Options{
		MaxExtractChars:     cfg.Evidence.MaxExtractChars,
		OCRFallbackMinChars: cfg.Orchestrator.OCRFallbackMinChars,
		Language:            cfg.OCR.Language,
	})
	orchestrator := graph.New(reg.LLM(), processor, providers.NewCostReporter(), graph.Config{
		MaxPlanRevisions:      cfg.Orchestrator.MaxPlanRevisions,
		MaxJudgmentRevisions:  cfg.Orchestrator.MaxJudgmentRevisions,
		SkipPlanCreation:      cfg.Orchestrator.SkipPlanCreation,
		SelfReflectionEnabled: cfg.Orchestrator.SelfReflectionEnabled,
		ItemTimeout:           cfg.Orchestrator.ItemTimeout,
	})
	coordinator := batch.New(orchestrator, batch.Config{
		MaxConcurrentEvaluations: cfg.Batch.MaxConcurrentEvaluations,
		ItemTimeout:              cfg.Orchestrator.ItemTimeout,
	})

	// Async job subsystem: manager, worker pool, reaper.
	manager := jobs.NewManager(store, cfg.Jobs)
	pool := jobs.NewPool(podID, manager, coordinator, cfg.Jobs)
	pool.Start(ctx)

	reaper := jobs.NewReaper(store, cfg.Jobs)
	reaper.Start(ctx)

	httpServer := api.NewServer(cfg, reg, coordinator, manager)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Auditflow started",
		"pod_id", podID,
		"workers", cfg.Jobs.WorkerCount,
		"llm_provider", reg.LLM().Name(),
		"ocr_provider", reg.OCR().Name())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Workers finish their current jobs before the process exits; anything
	// slower than the budget is orphan-recovered by another replica.
	shutdownBudget := cfg.Jobs.JobTimeout
	if shutdownBudget > 30*time.Second {
		shutdownBudget = 30 * time.Second
	}
	workerCtx, workerCancel := context.WithTimeout(ctx, shutdownBudget)
	defer workerCancel()

	reaper.Stop()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerCtx.Done():
		slog.Warn("Shutdown timeout exceeded, incomplete jobs will be orphan-recovered")
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
