package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Item builds a minimal valid evaluation item request body.
func Item(id string) map[string]any {
	return map[string]any{
		"ID":                 id,
		"ControlDescription": "monthly reconciliation is approved",
		"TestProcedure":      "inspect signed report",
	}
}

// Items builds n sequentially numbered items.
func Items(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = Item(fmt.Sprintf("IC-%03d", i+1))
	}
	return out
}

// SubmitBatch posts items to /evaluate/submit and returns the jobId.
func (app *TestApp) SubmitBatch(t *testing.T, items []map[string]any) string {
	t.Helper()
	code, body := app.postJSON(t, "/evaluate/submit", items)
	require.Equal(t, http.StatusAccepted, code, "submit: %s", body)
	var receipt struct {
		JobID            string `json:"jobId"`
		EstimatedSeconds int    `json:"estimatedDurationSeconds"`
	}
	require.NoError(t, json.Unmarshal(body, &receipt))
	require.NotEmpty(t, receipt.JobID)
	require.Positive(t, receipt.EstimatedSeconds)
	return receipt.JobID
}

// JobStatus is the /evaluate/status envelope.
type JobStatus struct {
	JobID         string     `json:"jobId"`
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	SubmittedAt   time.Time  `json:"submittedAt"`
	StartedAt     *time.Time `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt"`
	CorrelationID string     `json:"correlationId"`
}

// GetStatus fetches the job status, requiring HTTP 200.
func (app *TestApp) GetStatus(t *testing.T, jobID string) JobStatus {
	t.Helper()
	code, body := app.getJSON(t, "/evaluate/status/"+jobID)
	require.Equal(t, http.StatusOK, code, "status: %s", body)
	var status JobStatus
	require.NoError(t, json.Unmarshal(body, &status))
	return status
}

// WaitForJobStatus polls until the job reaches the wanted state.
func (app *TestApp) WaitForJobStatus(t *testing.T, jobID, want string) JobStatus {
	t.Helper()
	var last JobStatus
	require.Eventually(t, func() bool {
		last = app.GetStatus(t, jobID)
		return last.Status == want
	}, 10*time.Second, 20*time.Millisecond, "job %s never reached state %q (last %q)", jobID, want, last.Status)
	return last
}

// ErrorEnvelope is the uniform failure body.
type ErrorEnvelope struct {
	Error         bool   `json:"error"`
	ErrorKind     string `json:"errorKind"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
}

// DecodeErrorEnvelope parses a failure body.
func DecodeErrorEnvelope(t *testing.T, body []byte) ErrorEnvelope {
	t.Helper()
	var envelope ErrorEnvelope
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.True(t, envelope.Error)
	return envelope
}

func (app *TestApp) postJSON(t *testing.T, path string, body any) (int, []byte) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, app.BaseURL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return app.do(t, req)
}

func (app *TestApp) getJSON(t *testing.T, path string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, app.BaseURL+path, nil)
	require.NoError(t, err)
	return app.do(t, req)
}

func (app *TestApp) do(t *testing.T, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}
