package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/auditflow/auditflow/pkg/version"
)

type providerHealth struct {
	Provider   string `json:"provider"`
	Configured bool   `json:"configured"`
}

// HealthResponse reports service liveness and provider wiring.
type HealthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	LLM     providerHealth `json:"llm"`
	OCR     providerHealth `json:"ocr"`
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  "ok",
		Version: version.Full(),
		LLM: providerHealth{
			Provider:   s.registry.LLM().Name(),
			Configured: s.cfg.LLM.Configured(),
		},
		OCR: providerHealth{
			Provider:   s.registry.OCR().Name(),
			Configured: s.cfg.OCR.Configured(),
		},
	})
}
