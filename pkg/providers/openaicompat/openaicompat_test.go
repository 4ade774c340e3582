package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/pkg/providers"
)

func okResponse(content string) string {
	return `{
		"choices": [{"message": {"content": ` + mustJSON(content) + `}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestClient_GenericEndpoint(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okResponse("hello from model")))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		Name:     "local",
		Endpoint: srv.URL,
		Model:    "llama3",
		APIKey:   "secret",
	})
	require.NoError(t, err)

	resp, err := client.Invoke(context.Background(), &providers.LLMRequest{
		System:      "You are an auditor.",
		Prompt:      "Evaluate the control.",
		MaxTokens:   256,
		Temperature: 0.2,
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "user", gotBody.Messages[1].Role)
	assert.Equal(t, "llama3", gotBody.Model)
	assert.Equal(t, 256, gotBody.MaxTokens)

	assert.Equal(t, "hello from model", resp.Text)
	assert.Equal(t, providers.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, resp.Usage)
}

func TestClient_AzureDeploymentRouting(t *testing.T) {
	var gotPath, gotAPIKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("api-key")
		gotVersion = r.URL.Query().Get("api-version")
		_, _ = w.Write([]byte(okResponse("ok")))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		Name:            "azure",
		Endpoint:        srv.URL,
		Model:           "gpt-4o-audit",
		APIKey:          "azure-key",
		AzureDeployment: true,
	})
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), &providers.LLMRequest{Prompt: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "/openai/deployments/gpt-4o-audit/chat/completions", gotPath)
	assert.Equal(t, "azure-key", gotAPIKey)
	assert.Equal(t, defaultAPIVersion, gotVersion)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   providers.ErrorKind
	}{
		{http.StatusTooManyRequests, providers.KindRateLimited},
		{http.StatusInternalServerError, providers.KindUnavailable},
		{http.StatusBadGateway, providers.KindUnavailable},
		{http.StatusRequestTimeout, providers.KindTimeout},
		{http.StatusBadRequest, providers.KindInvalidRequest},
		{http.StatusUnauthorized, providers.KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": {"message": "nope"}}`))
			}))
			defer srv.Close()

			client, err := NewClient(Config{Endpoint: srv.URL, Model: "m"})
			require.NoError(t, err)

			_, err = client.Invoke(context.Background(), &providers.LLMRequest{Prompt: "hi"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, providers.KindOf(err))
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL, Model: "m", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), &providers.LLMRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, providers.KindTimeout, providers.KindOf(err))
	assert.True(t, providers.IsTransient(err))
}

func TestClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [], "usage": {}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL, Model: "m"})
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), &providers.LLMRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, providers.KindUnavailable, providers.KindOf(err))
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{Model: "m"})
	assert.Error(t, err)

	_, err = NewClient(Config{Endpoint: "http://localhost"})
	assert.Error(t, err)
}
