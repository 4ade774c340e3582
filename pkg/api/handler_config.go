package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// configHandler handles GET /config: the effective settings with every
// secret redacted. Intended for operators debugging a deployment.
func (s *Server) configHandler(c *echo.Context) error {
	cfg := s.cfg
	return c.JSON(http.StatusOK, map[string]any{
		"llm": map[string]any{
			"provider":   cfg.LLM.Provider,
			"model":      cfg.LLM.Model,
			"endpoint":   cfg.LLM.Endpoint,
			"apiVersion": cfg.LLM.APIVersion,
			"apiKey":     redact(cfg.LLM.APIKey),
			"configured": cfg.LLM.Configured(),
		},
		"ocr": map[string]any{
			"provider":   cfg.OCR.Provider,
			"language":   cfg.OCR.Language,
			"apiKey":     redact(cfg.OCR.APIKey),
			"configured": cfg.OCR.Configured(),
		},
		"orchestrator": map[string]any{
			"maxPlanRevisions":      cfg.Orchestrator.MaxPlanRevisions,
			"maxJudgmentRevisions":  cfg.Orchestrator.MaxJudgmentRevisions,
			"skipPlanCreation":      cfg.Orchestrator.SkipPlanCreation,
			"selfReflectionEnabled": cfg.Orchestrator.SelfReflectionEnabled,
			"itemTimeoutSeconds":    int(cfg.Orchestrator.ItemTimeout.Seconds()),
			"ocrFallbackMinChars":   cfg.Orchestrator.OCRFallbackMinChars,
		},
		"batch": map[string]any{
			"maxConcurrentEvaluations":  cfg.Batch.MaxConcurrentEvaluations,
			"maxSyncBatchSize":          cfg.Batch.MaxSyncBatchSize,
			"syncWallClockGuardSeconds": int(cfg.Batch.SyncWallClockGuard.Seconds()),
		},
		"jobs": map[string]any{
			"store":             cfg.Jobs.Store,
			"retentionSeconds":  int(cfg.Jobs.Retention.Seconds()),
			"jobTimeoutSeconds": int(cfg.Jobs.JobTimeout.Seconds()),
			"workerCount":       cfg.Jobs.WorkerCount,
			"backpressureLimit": cfg.Jobs.BackpressureLimit,
		},
		"evidence": map[string]any{
			"maxFileBytes":    cfg.Evidence.MaxFileBytes,
			"maxExtractChars": cfg.Evidence.MaxExtractChars,
		},
	})
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}
