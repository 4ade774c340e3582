package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/pkg/models"
)

// Sync happy path: one item through the full pipeline over the canned mock
// LLM, with the caller's correlation ID echoed back.
func TestE2E_SyncHappyPath(t *testing.T) {
	app := NewTestApp(t)

	body, err := json.Marshal([]map[string]any{Item("IC-001")})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, app.BaseURL+"/evaluate", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", "e2e-sync-happy")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "e2e-sync-happy", resp.Header.Get("X-Correlation-ID"))

	var results []models.EvaluationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 1)
	assert.Equal(t, "IC-001", results[0].ID)
	assert.True(t, results[0].EvaluationResult)
	assert.NotEmpty(t, results[0].ExecutionPlanSummary)
	assert.NotEmpty(t, results[0].JudgmentBasis)
	assert.Empty(t, results[0].ErrorKind)
}
