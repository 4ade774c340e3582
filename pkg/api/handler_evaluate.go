package api

import (
	"context"
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/auditflow/auditflow/pkg/models"
)

// evaluateHandler handles POST /evaluate: the synchronous path, bounded by
// the wall-clock guard tuned below typical gateway limits. Work that cannot
// finish in time yields TIMEOUT; callers should switch to /evaluate/submit.
func (s *Server) evaluateHandler(c *echo.Context) error {
	items, kind, msg := s.bindItems(c)
	if kind != "" {
		return writeError(c, kind, msg)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.cfg.Batch.SyncWallClockGuard)
	defer cancel()

	results := s.coordinator.Run(ctx, items, nil)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return writeError(c, models.ErrKindTimeout,
			"evaluation exceeded the synchronous time budget; submit the batch to /evaluate/submit instead")
	}
	return c.JSON(http.StatusOK, results)
}

// submitHandler handles POST /evaluate/submit: persist, enqueue, return the
// job receipt.
func (s *Server) submitHandler(c *echo.Context) error {
	items, kind, msg := s.bindItems(c)
	if kind != "" {
		return writeError(c, kind, msg)
	}

	receipt, err := s.manager.Submit(c.Request().Context(), items)
	if err != nil {
		return mapDomainError(c, err)
	}
	return c.JSON(http.StatusAccepted, receipt)
}
