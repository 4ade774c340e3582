package mockllm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/pkg/providers"
)

func TestClient_CannedResponses(t *testing.T) {
	c := New()

	tests := []struct {
		name     string
		prompt   string
		contains string
	}{
		{"plan", "Select the reasoning tasks for this control.", `"tasks"`},
		{"plan review", "Review the proposed plan against the control.", `"gaps"`},
		{"judgment", "Render a verdict for the control.", `"verdict"`},
		{"judgment review", "Review the verdict against the findings.", `"supported"`},
		{"reflection", "Reflect on the judgment above.", `"annotation"`},
		{"task", "Compare the evidence dates against the period.", `"finding"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.Invoke(context.Background(), &providers.LLMRequest{Prompt: tt.prompt})
			require.NoError(t, err)
			assert.Contains(t, resp.Text, tt.contains)
			assert.Positive(t, resp.Usage.TotalTokens)
		})
	}
}

func TestClient_SequentialScript(t *testing.T) {
	c := New()
	c.AddSequential(Entry{Text: "first"})
	c.AddSequential(Entry{Err: providers.NewError(providers.KindUnavailable, "mock", "scripted failure", nil)})
	c.AddSequential(Entry{Text: "third"})

	resp, err := c.Invoke(context.Background(), &providers.LLMRequest{Prompt: "a"})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)

	_, err = c.Invoke(context.Background(), &providers.LLMRequest{Prompt: "b"})
	require.Error(t, err)
	assert.Equal(t, providers.KindUnavailable, providers.KindOf(err))

	resp, err = c.Invoke(context.Background(), &providers.LLMRequest{Prompt: "c"})
	require.NoError(t, err)
	assert.Equal(t, "third", resp.Text)

	// Script exhausted, falls back to canned.
	resp, err = c.Invoke(context.Background(), &providers.LLMRequest{Prompt: "Render a verdict now."})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, `"verdict"`)
}

func TestClient_RoutedScript(t *testing.T) {
	c := New()
	c.AddRouted("Render a verdict", Entry{Text: `{"verdict": "ineffective", "judgmentBasis": "Evidence missing.", "documentReference": ""}`})

	resp, err := c.Invoke(context.Background(), &providers.LLMRequest{Prompt: "Render a verdict for the control."})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "ineffective")

	// Routed entries exhausted, canned takes over.
	resp, err = c.Invoke(context.Background(), &providers.LLMRequest{Prompt: "Render a verdict for the control."})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, `"effective"`)
}

func TestClient_DelayRespectsContext(t *testing.T) {
	c := New()
	c.SetDelay(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Invoke(ctx, &providers.LLMRequest{Prompt: "anything"})
	require.Error(t, err)
	assert.Equal(t, providers.KindTimeout, providers.KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_CapturesRequests(t *testing.T) {
	c := New()
	_, err := c.Invoke(context.Background(), &providers.LLMRequest{System: "sys", Prompt: "p1"})
	require.NoError(t, err)
	_, err = c.Invoke(context.Background(), &providers.LLMRequest{Prompt: "p2"})
	require.NoError(t, err)

	captured := c.CapturedRequests()
	require.Len(t, captured, 2)
	assert.Equal(t, "sys", captured[0].System)
	assert.Equal(t, "p2", captured[1].Prompt)
}
