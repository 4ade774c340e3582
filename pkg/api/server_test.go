package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/pkg/batch"
	"github.com/auditflow/auditflow/pkg/config"
	"github.com/auditflow/auditflow/pkg/evidence"
	"github.com/auditflow/auditflow/pkg/graph"
	"github.com/auditflow/auditflow/pkg/jobs"
	"github.com/auditflow/auditflow/pkg/models"
	"github.com/auditflow/auditflow/pkg/providers"
	"github.com/auditflow/auditflow/pkg/providers/registry"
)

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{Provider: config.LLMProviderMock},
		OCR: config.OCRConfig{Provider: config.OCRProviderNone},
		Orchestrator: config.OrchestratorConfig{
			MaxPlanRevisions:     1,
			MaxJudgmentRevisions: 1,
			ItemTimeout:          5 * time.Second,
			OCRFallbackMinChars:  64,
		},
		Batch: config.BatchConfig{
			MaxConcurrentEvaluations: 2,
			MaxSyncBatchSize:         3,
			SyncWallClockGuard:       5 * time.Second,
		},
		Jobs: config.JobsConfig{
			Store:             config.JobStoreMemory,
			Retention:         time.Hour,
			JobTimeout:        time.Minute,
			ReaperInterval:    time.Minute,
			BackpressureLimit: 10,
			WorkerCount:       1,
			PollInterval:      10 * time.Millisecond,
			HeartbeatInterval: 10 * time.Millisecond,
			OrphanThreshold:   time.Minute,
		},
		Evidence: config.EvidenceConfig{MaxFileBytes: 1024, MaxExtractChars: 50000},
	}
}

// newTestServer wires a full server over the mock LLM and memory store.
// No worker pool runs; job tests drive the store directly.
func newTestServer(t *testing.T, cfg *config.Config) (*Server, *jobs.Manager) {
	t.Helper()
	reg, err := registry.New(context.Background(), cfg)
	require.NoError(t, err)

	proc := evidence.NewProcessor(reg.OCR(), evidence.Options{
		MaxExtractChars:     cfg.Evidence.MaxExtractChars,
		OCRFallbackMinChars: cfg.Orchestrator.OCRFallbackMinChars,
	})
	orch := graph.New(reg.LLM(), proc, providers.NewCostReporter(), graph.Config{
		MaxPlanRevisions:     cfg.Orchestrator.MaxPlanRevisions,
		MaxJudgmentRevisions: cfg.Orchestrator.MaxJudgmentRevisions,
		ItemTimeout:          cfg.Orchestrator.ItemTimeout,
		RetryPolicy:          providers.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond},
	})
	coordinator := batch.New(orch, batch.Config{
		MaxConcurrentEvaluations: cfg.Batch.MaxConcurrentEvaluations,
		ItemTimeout:              cfg.Orchestrator.ItemTimeout,
	})
	manager := jobs.NewManager(jobs.NewMemoryStore(), cfg.Jobs)
	return NewServer(cfg, reg, coordinator, manager), manager
}

func itemsBody(t *testing.T, n int) *bytes.Buffer {
	t.Helper()
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{
			"ID":                 fmt.Sprintf("item-%d", i),
			"ControlDescription": "Monthly reconciliations are approved by the controller.",
			"TestProcedure":      "Inspect the reconciliation for sign-off.",
		}
	}
	body, err := json.Marshal(items)
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func doJSON(s *Server, method, path string, body *bytes.Buffer) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func decodeErrorEnvelope(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var envelope ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Error)
	return envelope
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := doJSON(s, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "mock", resp.LLM.Provider)
	assert.Equal(t, "none", resp.OCR.Provider)
	assert.NotEmpty(t, resp.Version)
}

func TestConfigHandler_RedactsSecrets(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.APIKey = "super-secret"
	s, _ := newTestServer(t, cfg)

	rec := doJSON(s, http.MethodGet, "/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "super-secret")
	assert.Contains(t, rec.Body.String(), "***")
}

func TestEvaluateHandler_HappyPath(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	rec := doJSON(s, http.MethodPost, "/evaluate", itemsBody(t, 2))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var results []models.EvaluationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "item-0", results[0].ID)
	assert.Equal(t, "item-1", results[1].ID)
	for _, r := range results {
		assert.True(t, r.EvaluationResult)
		assert.Empty(t, r.ErrorKind)
	}
}

func TestEvaluateHandler_Validation(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKind models.ErrorKind
	}{
		{"not json", "not-json", http.StatusBadRequest, models.ErrKindBadRequest},
		{"empty array", "[]", http.StatusBadRequest, models.ErrKindBadRequest},
		{
			"missing control description",
			`[{"ID": "a", "TestProcedure": "check"}]`,
			http.StatusBadRequest, models.ErrKindBadRequest,
		},
		{
			"duplicate IDs",
			`[{"ID": "a", "ControlDescription": "c", "TestProcedure": "t"},
			  {"ID": "a", "ControlDescription": "c", "TestProcedure": "t"}]`,
			http.StatusBadRequest, models.ErrKindBadRequest,
		},
		{
			"invalid evidence base64",
			`[{"ID": "a", "ControlDescription": "c", "TestProcedure": "t",
			   "EvidenceFiles": [{"fileName": "x.txt", "mimeType": "text/plain", "base64": "@@@"}]}]`,
			http.StatusBadRequest, models.ErrKindBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(s, http.MethodPost, "/evaluate", bytes.NewBufferString(tt.body))
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			envelope := decodeErrorEnvelope(t, rec)
			assert.Equal(t, tt.wantKind, envelope.ErrorKind)
			assert.NotEmpty(t, envelope.CorrelationID)
		})
	}
}

func TestEvaluateHandler_BatchTooLarge(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	rec := doJSON(s, http.MethodPost, "/evaluate", itemsBody(t, 4))

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	envelope := decodeErrorEnvelope(t, rec)
	assert.Equal(t, models.ErrKindRequestTooLarge, envelope.ErrorKind)
}

func TestEvaluateHandler_BatchAtLimit(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	// A batch of exactly the configured maximum is accepted; only larger
	// batches are rejected.
	rec := doJSON(s, http.MethodPost, "/evaluate", itemsBody(t, 3))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var results []models.EvaluationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Empty(t, r.ErrorKind)
	}
}

func TestEvaluateHandler_EvidenceFileTooLarge(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	big := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("x"), 2048))
	body := fmt.Sprintf(`[{"ID": "a", "ControlDescription": "c", "TestProcedure": "t",
		"EvidenceFiles": [{"fileName": "big.txt", "mimeType": "text/plain", "base64": %q}]}]`, big)

	rec := doJSON(s, http.MethodPost, "/evaluate", bytes.NewBufferString(body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeErrorEnvelope(t, rec)
	assert.Contains(t, envelope.Message, "byte limit")
}

func TestEvaluateHandler_WallClockGuard(t *testing.T) {
	cfg := testConfig()
	cfg.Batch.SyncWallClockGuard = 30 * time.Millisecond
	s, _ := newTestServer(t, cfg)
	// The guard is enforced even when the coordinator is healthy but slow.
	s.coordinator = batch.New(slowEvaluator{}, batch.Config{
		MaxConcurrentEvaluations: 1,
		ItemTimeout:              time.Second,
	})

	rec := doJSON(s, http.MethodPost, "/evaluate", itemsBody(t, 1))

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	envelope := decodeErrorEnvelope(t, rec)
	assert.Equal(t, models.ErrKindTimeout, envelope.ErrorKind)
}

// slowEvaluator stalls until the context dies.
type slowEvaluator struct{}

func (slowEvaluator) EvaluateItem(ctx context.Context, item *models.EvaluationItem) *models.EvaluationResult {
	<-ctx.Done()
	return &models.EvaluationResult{ID: item.ID, ErrorKind: models.ErrKindTimeout, ErrorMessage: "slow"}
}

func TestCorrelationIDEchoedAndGenerated(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "given-id")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, "given-id", rec.Header().Get("X-Correlation-ID"))

	rec = doJSON(s, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestSecurityHeaders(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := doJSON(s, http.MethodGet, "/health", nil)

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
}
