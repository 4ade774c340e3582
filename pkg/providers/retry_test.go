package providers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM fails a fixed number of times before succeeding.
type fakeLLM struct {
	calls    atomic.Int32
	failures int
	failWith error
}

func (f *fakeLLM) Invoke(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	n := f.calls.Add(1)
	if int(n) <= f.failures {
		return nil, f.failWith
	}
	return &LLMResponse{Text: "ok", Usage: Usage{InputTokens: 1, OutputTokens: 1, TotalTokens: 2}}, nil
}

func (f *fakeLLM) Name() string  { return "fake" }
func (f *fakeLLM) Model() string { return "fake-model" }

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, RandomizationFactor: 0}
}

func TestInvokeWithRetry_SucceedsFirstAttempt(t *testing.T) {
	client := &fakeLLM{}

	resp, err := InvokeWithRetry(context.Background(), client, &LLMRequest{Prompt: "hi"}, fastPolicy())

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestInvokeWithRetry_RecoversFromTransient(t *testing.T) {
	client := &fakeLLM{
		failures: 2,
		failWith: NewError(KindUnavailable, "fake", "backend overloaded", nil),
	}

	resp, err := InvokeWithRetry(context.Background(), client, &LLMRequest{Prompt: "hi"}, fastPolicy())

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, int32(3), client.calls.Load())
}

func TestInvokeWithRetry_ExhaustsAttempts(t *testing.T) {
	client := &fakeLLM{
		failures: 10,
		failWith: NewError(KindRateLimited, "fake", "throttled", nil),
	}

	_, err := InvokeWithRetry(context.Background(), client, &LLMRequest{Prompt: "hi"}, fastPolicy())

	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.Equal(t, int32(3), client.calls.Load())
}

func TestInvokeWithRetry_PermanentFailsImmediately(t *testing.T) {
	client := &fakeLLM{
		failures: 10,
		failWith: NewError(KindInvalidRequest, "fake", "prompt rejected", nil),
	}

	_, err := InvokeWithRetry(context.Background(), client, &LLMRequest{Prompt: "hi"}, fastPolicy())

	require.Error(t, err)
	assert.Equal(t, KindInvalidRequest, KindOf(err))
	assert.Equal(t, int32(1), client.calls.Load(), "permanent errors must not be retried")
}

func TestInvokeWithRetry_ContextCancelled(t *testing.T) {
	client := &fakeLLM{
		failures: 10,
		failWith: NewError(KindUnavailable, "fake", "backend overloaded", nil),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := InvokeWithRetry(ctx, client, &LLMRequest{Prompt: "hi"}, RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
	})

	require.Error(t, err)
	assert.LessOrEqual(t, client.calls.Load(), int32(1))
}
