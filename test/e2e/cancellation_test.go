package e2e

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/pkg/providers/mockllm"
)

// Cancellation: a running job is cancelled mid-flight; status reports
// cancelled and the results endpoint answers with a CANCELLED failure
// envelope instead of partial results.
func TestE2E_Cancellation(t *testing.T) {
	llm := mockllm.New()
	// Every LLM call stalls so the job stays in flight until the cancel.
	llm.SetDelay(30 * time.Second)

	app := NewTestApp(t, WithLLMClient(llm))

	jobID := app.SubmitBatch(t, Items(10))
	app.WaitForJobStatus(t, jobID, "processing")

	code, body := app.postJSON(t, "/evaluate/cancel/"+jobID, nil)
	require.Equal(t, http.StatusOK, code, "cancel: %s", body)
	var cancel struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body, &cancel))
	assert.Equal(t, jobID, cancel.JobID)

	final := app.WaitForJobStatus(t, jobID, "cancelled")
	require.NotNil(t, final.CompletedAt)

	code, body = app.getJSON(t, "/evaluate/results/"+jobID)
	require.Equal(t, http.StatusConflict, code, "results: %s", body)
	envelope := DecodeErrorEnvelope(t, body)
	assert.Equal(t, "CANCELLED", envelope.ErrorKind)
}
