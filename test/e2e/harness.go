// Package e2e boots a complete auditflow instance over the scripted mock LLM
// and the in-memory job store, then drives it through real HTTP requests.
package e2e

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/pkg/api"
	"github.com/auditflow/auditflow/pkg/batch"
	"github.com/auditflow/auditflow/pkg/config"
	"github.com/auditflow/auditflow/pkg/evidence"
	"github.com/auditflow/auditflow/pkg/graph"
	"github.com/auditflow/auditflow/pkg/jobs"
	"github.com/auditflow/auditflow/pkg/providers"
	"github.com/auditflow/auditflow/pkg/providers/mockllm"
	"github.com/auditflow/auditflow/pkg/providers/registry"
)

// TestApp is a running auditflow instance for one test.
type TestApp struct {
	Config  *config.Config
	LLM     *mockllm.Client
	Manager *jobs.Manager
	Store   jobs.Store
	Pool    *jobs.Pool
	Reaper  *jobs.Reaper
	Server  *api.Server

	// BaseURL points at the test HTTP listener, e.g. "http://127.0.0.1:54321".
	BaseURL string

	t *testing.T
}

type testAppConfig struct {
	cfg         *config.Config
	llm         *mockllm.Client
	workerCount int
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithConfig sets a custom config.
func WithConfig(cfg *config.Config) TestAppOption {
	return func(c *testAppConfig) { c.cfg = cfg }
}

// WithLLMClient sets a pre-scripted mock LLM client.
func WithLLMClient(client *mockllm.Client) TestAppOption {
	return func(c *testAppConfig) { c.llm = client }
}

// WithWorkerCount sets the number of job workers.
func WithWorkerCount(n int) TestAppOption {
	return func(c *testAppConfig) { c.workerCount = n }
}

// NewTestApp creates and starts a full auditflow test instance.
// Shutdown is registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{workerCount: 1}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.cfg == nil {
		tc.cfg = defaultTestConfig()
	}
	tc.cfg.Jobs.WorkerCount = tc.workerCount
	if tc.llm == nil {
		tc.llm = mockllm.New()
	}

	ctx := context.Background()
	reg, err := registry.New(ctx, tc.cfg)
	require.NoError(t, err)

	// The evaluation pipeline runs over the scripted client, not the
	// registry's own mock, so tests control every response.
	processor := evidence.NewProcessor(reg.OCR(), evidence.Options{
		MaxExtractChars:     tc.cfg.Evidence.MaxExtractChars,
		OCRFallbackMinChars: tc.cfg.Orchestrator.OCRFallbackMinChars,
	})
	orchestrator := graph.New(tc.llm, processor, providers.NewCostReporter(), graph.Config{
		MaxPlanRevisions:     tc.cfg.Orchestrator.MaxPlanRevisions,
		MaxJudgmentRevisions: tc.cfg.Orchestrator.MaxJudgmentRevisions,
		ItemTimeout:          tc.cfg.Orchestrator.ItemTimeout,
		RetryPolicy: providers.RetryPolicy{
			MaxAttempts:         3,
			InitialInterval:     time.Millisecond,
			RandomizationFactor: 0.1,
		},
	})
	coordinator := batch.New(orchestrator, batch.Config{
		MaxConcurrentEvaluations: tc.cfg.Batch.MaxConcurrentEvaluations,
		ItemTimeout:              tc.cfg.Orchestrator.ItemTimeout,
	})

	store := jobs.NewMemoryStore()
	manager := jobs.NewManager(store, tc.cfg.Jobs)

	podID := fmt.Sprintf("e2e-test-%s", t.Name())
	pool := jobs.NewPool(podID, manager, coordinator, tc.cfg.Jobs)
	pool.Start(ctx)

	// The reaper is created but not started; tests that exercise retention
	// call Sweep directly for deterministic timing.
	reaper := jobs.NewReaper(store, tc.cfg.Jobs)

	server := api.NewServer(tc.cfg, reg, coordinator, manager)
	ts := httptest.NewServer(server)

	t.Cleanup(func() {
		pool.Stop()
		ts.Close()
	})

	return &TestApp{
		Config:  tc.cfg,
		LLM:     tc.llm,
		Manager: manager,
		Store:   store,
		Pool:    pool,
		Reaper:  reaper,
		Server:  server,
		BaseURL: ts.URL,
		t:       t,
	}
}

// defaultTestConfig creates a config suitable for tests that don't provide
// their own. Tests typically override specific fields before WithConfig.
func defaultTestConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{Provider: config.LLMProviderMock},
		OCR: config.OCRConfig{Provider: config.OCRProviderNone},
		Orchestrator: config.OrchestratorConfig{
			MaxPlanRevisions:     1,
			MaxJudgmentRevisions: 1,
			ItemTimeout:          10 * time.Second,
			OCRFallbackMinChars:  64,
		},
		Batch: config.BatchConfig{
			MaxConcurrentEvaluations: 4,
			MaxSyncBatchSize:         10,
			SyncWallClockGuard:       30 * time.Second,
		},
		Jobs: config.JobsConfig{
			Store:             config.JobStoreMemory,
			Retention:         time.Hour,
			JobTimeout:        time.Minute,
			ReaperInterval:    time.Hour,
			BackpressureLimit: 100,
			WorkerCount:       1,
			PollInterval:      10 * time.Millisecond,
			HeartbeatInterval: 10 * time.Millisecond,
			OrphanThreshold:   time.Minute,
		},
		Evidence: config.EvidenceConfig{
			MaxFileBytes:    5 * 1024 * 1024,
			MaxExtractChars: 50000,
		},
	}
}
