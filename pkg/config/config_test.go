package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, LLMProviderMock, cfg.LLM.Provider)
	assert.Equal(t, OCRProviderNone, cfg.OCR.Provider)
	assert.Equal(t, JobStoreMemory, cfg.Jobs.Store)
	assert.Equal(t, 10, cfg.Batch.MaxConcurrentEvaluations)
	assert.Equal(t, 50, cfg.Batch.MaxSyncBatchSize)
	assert.Equal(t, 25*time.Second, cfg.Batch.SyncWallClockGuard)
	assert.Equal(t, 1, cfg.Orchestrator.MaxPlanRevisions)
	assert.Equal(t, 1, cfg.Orchestrator.MaxJudgmentRevisions)
	assert.Equal(t, 300*time.Second, cfg.Orchestrator.ItemTimeout)
	assert.Equal(t, 604800*time.Second, cfg.Jobs.Retention)
	assert.Equal(t, 60*time.Second, cfg.Jobs.ReaperInterval)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "AZURE")
	t.Setenv("LLM_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("LLM_API_KEY", "secret")
	t.Setenv("MAX_CONCURRENT_EVALUATIONS", "3")
	t.Setenv("SKIP_PLAN_CREATION", "true")
	t.Setenv("MAX_PLAN_REVISIONS", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, LLMProviderAzure, cfg.LLM.Provider)
	assert.True(t, cfg.LLM.Configured())
	assert.Equal(t, 3, cfg.Batch.MaxConcurrentEvaluations)
	assert.True(t, cfg.Orchestrator.SkipPlanCreation)
	assert.Equal(t, 0, cfg.Orchestrator.MaxPlanRevisions)
}

func TestLoadRejectsInvalidProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "SOMETHING_ELSE")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidBounds(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_EVALUATIONS", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestLLMConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  LLMConfig
		want bool
	}{
		{name: "mock always configured", cfg: LLMConfig{Provider: LLMProviderMock}, want: true},
		{name: "azure without key", cfg: LLMConfig{Provider: LLMProviderAzure, Endpoint: "https://x"}, want: false},
		{name: "azure with key", cfg: LLMConfig{Provider: LLMProviderAzure, Endpoint: "https://x", APIKey: "k"}, want: true},
		{name: "aws with model", cfg: LLMConfig{Provider: LLMProviderAWS, Model: "anthropic.claude-3"}, want: true},
		{name: "local with endpoint", cfg: LLMConfig{Provider: LLMProviderLocal, Endpoint: "http://localhost:11434"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Configured())
		})
	}
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, LLMProviderAzureFoundry.IsValid())
	assert.False(t, LLMProviderType("OPENAI").IsValid())
	assert.True(t, OCRProviderTesseract.IsValid())
	assert.False(t, OCRProviderType("").IsValid())
	assert.True(t, JobStorePostgres.IsValid())
	assert.False(t, JobStoreType("redis").IsValid())
}
