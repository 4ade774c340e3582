package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/auditflow/auditflow/pkg/models"
)

// StatusResponse is the job status envelope.
type StatusResponse struct {
	JobID         string          `json:"jobId"`
	Status        models.JobState `json:"status"`
	Progress      int             `json:"progress"`
	SubmittedAt   time.Time       `json:"submittedAt"`
	StartedAt     *time.Time      `json:"startedAt"`
	CompletedAt   *time.Time      `json:"completedAt"`
	CorrelationID string          `json:"correlationId"`
}

// CancelResponse reports the state observed when the cancel took effect.
type CancelResponse struct {
	JobID  string          `json:"jobId"`
	Status models.JobState `json:"status"`
}

// statusHandler handles GET /evaluate/status/:id.
func (s *Server) statusHandler(c *echo.Context) error {
	jobID := c.Param("id")
	if jobID == "" {
		return writeError(c, models.ErrKindBadRequest, "job id is required")
	}

	job, err := s.manager.Status(c.Request().Context(), jobID)
	if err != nil {
		return mapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, &StatusResponse{
		JobID:         job.JobID,
		Status:        job.State,
		Progress:      job.Progress,
		SubmittedAt:   job.SubmittedAt,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
		CorrelationID: job.CorrelationID,
	})
}

// resultsHandler handles GET /evaluate/results/:id. Results exist only for
// completed jobs; non-terminal jobs answer NOT_READY, terminal failures
// answer with the job's error descriptor.
func (s *Server) resultsHandler(c *echo.Context) error {
	jobID := c.Param("id")
	if jobID == "" {
		return writeError(c, models.ErrKindBadRequest, "job id is required")
	}

	results, err := s.manager.Results(c.Request().Context(), jobID)
	if err != nil {
		return mapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, results)
}

// cancelHandler handles POST /evaluate/cancel/:id.
func (s *Server) cancelHandler(c *echo.Context) error {
	jobID := c.Param("id")
	if jobID == "" {
		return writeError(c, models.ErrKindBadRequest, "job id is required")
	}

	state, err := s.manager.Cancel(c.Request().Context(), jobID)
	if err != nil {
		return mapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, &CancelResponse{JobID: jobID, Status: state})
}
