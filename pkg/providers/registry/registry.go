// Package registry instantiates the configured LLM and OCR clients once at
// startup. Unconfigured backends degrade to the mock LLM and no-op OCR with
// a warning, so the service always starts.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/auditflow/auditflow/pkg/config"
	"github.com/auditflow/auditflow/pkg/providers"
	"github.com/auditflow/auditflow/pkg/providers/bedrock"
	"github.com/auditflow/auditflow/pkg/providers/mockllm"
	"github.com/auditflow/auditflow/pkg/providers/ocr"
	"github.com/auditflow/auditflow/pkg/providers/openaicompat"
)

// Registry holds the provider clients for the lifetime of the process.
type Registry struct {
	llmClient providers.LLMClient
	ocrClient providers.OCRClient
}

// New builds clients from the configuration. A selected but misconfigured
// backend is a hard error; an unselected one falls back to mock/none.
func New(ctx context.Context, cfg *config.Config) (*Registry, error) {
	llmClient, err := buildLLM(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("building LLM client: %w", err)
	}
	ocrClient, err := buildOCR(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("building OCR client: %w", err)
	}

	slog.Info("Provider registry initialized",
		"llm_provider", llmClient.Name(),
		"llm_model", llmClient.Model(),
		"ocr_provider", ocrClient.Name())

	return &Registry{llmClient: llmClient, ocrClient: ocrClient}, nil
}

// LLM returns the configured LLM client.
func (r *Registry) LLM() providers.LLMClient { return r.llmClient }

// OCR returns the configured OCR client.
func (r *Registry) OCR() providers.OCRClient { return r.ocrClient }

func buildLLM(ctx context.Context, cfg *config.Config) (providers.LLMClient, error) {
	if !cfg.LLM.Configured() {
		slog.Warn("LLM provider not fully configured, falling back to mock",
			"provider", cfg.LLM.Provider)
		return mockllm.New(), nil
	}

	switch cfg.LLM.Provider {
	case config.LLMProviderMock:
		return mockllm.New(), nil
	case config.LLMProviderAWS:
		return bedrock.NewClient(ctx, bedrock.Config{
			ModelID: cfg.LLM.Model,
			Region:  cfg.LLM.Region,
		})
	case config.LLMProviderAzure:
		return openaicompat.NewClient(openaicompat.Config{
			Name:            "azure-openai",
			Endpoint:        cfg.LLM.Endpoint,
			Model:           cfg.LLM.Model,
			APIKey:          cfg.LLM.APIKey,
			APIVersion:      cfg.LLM.APIVersion,
			AzureDeployment: true,
			Timeout:         cfg.LLM.Timeout,
		})
	case config.LLMProviderAzureFoundry:
		return openaicompat.NewClient(openaicompat.Config{
			Name:     "azure-foundry",
			Endpoint: cfg.LLM.Endpoint,
			Model:    cfg.LLM.Model,
			APIKey:   cfg.LLM.APIKey,
			Timeout:  cfg.LLM.Timeout,
		})
	case config.LLMProviderGCP:
		return openaicompat.NewClient(openaicompat.Config{
			Name:     "gcp",
			Endpoint: cfg.LLM.Endpoint,
			Model:    cfg.LLM.Model,
			APIKey:   cfg.LLM.APIKey,
			Timeout:  cfg.LLM.Timeout,
		})
	case config.LLMProviderLocal:
		return openaicompat.NewClient(openaicompat.Config{
			Name:     "local",
			Endpoint: cfg.LLM.Endpoint,
			Model:    cfg.LLM.Model,
			APIKey:   cfg.LLM.APIKey,
			Timeout:  cfg.LLM.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}
}

func buildOCR(ctx context.Context, cfg *config.Config) (providers.OCRClient, error) {
	if !cfg.OCR.Configured() {
		slog.Warn("OCR provider not fully configured, falling back to none",
			"provider", cfg.OCR.Provider)
		return ocr.NewNoneClient(), nil
	}

	switch cfg.OCR.Provider {
	case config.OCRProviderNone:
		return ocr.NewNoneClient(), nil
	case config.OCRProviderTesseract:
		return ocr.NewTesseractClient(cfg.OCR.CommandPath, cfg.OCR.Language)
	case config.OCRProviderAzure:
		return ocr.NewAzureClient(cfg.OCR.Endpoint, cfg.OCR.APIKey)
	case config.OCRProviderAWS:
		return ocr.NewTextractClient(ctx, cfg.OCR.Region)
	case config.OCRProviderGCP:
		return ocr.NewGCPClient(cfg.OCR.Endpoint, cfg.OCR.APIKey)
	default:
		return nil, fmt.Errorf("unknown OCR provider %q", cfg.OCR.Provider)
	}
}
