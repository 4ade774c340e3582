package api

import (
	"encoding/base64"
	"fmt"

	echo "github.com/labstack/echo/v5"

	"github.com/auditflow/auditflow/pkg/models"
)

// bindItems decodes and validates the evaluation request body shared by the
// sync and async endpoints. On failure it returns the error kind and a
// client-safe message.
func (s *Server) bindItems(c *echo.Context) ([]models.EvaluationItem, models.ErrorKind, string) {
	var items []models.EvaluationItem
	if err := c.Bind(&items); err != nil {
		return nil, models.ErrKindBadRequest, "request body must be a JSON array of evaluation items"
	}
	if len(items) == 0 {
		return nil, models.ErrKindBadRequest, "at least one item is required"
	}
	if len(items) > s.cfg.Batch.MaxSyncBatchSize {
		return nil, models.ErrKindRequestTooLarge,
			fmt.Sprintf("batch exceeds the maximum of %d items", s.cfg.Batch.MaxSyncBatchSize)
	}

	seen := make(map[string]bool, len(items))
	for i := range items {
		item := &items[i]
		if err := item.Validate(); err != nil {
			return nil, models.ErrKindBadRequest, err.Error()
		}
		if seen[item.ID] {
			return nil, models.ErrKindBadRequest, fmt.Sprintf("duplicate item ID %q", item.ID)
		}
		seen[item.ID] = true

		if kind, msg := s.decodeEvidence(item); kind != "" {
			return nil, kind, msg
		}
	}
	return items, "", ""
}

// decodeEvidence turns wire base64 into bytes, enforcing the per-file cap.
func (s *Server) decodeEvidence(item *models.EvaluationItem) (models.ErrorKind, string) {
	maxBytes := s.cfg.Evidence.MaxFileBytes
	for i := range item.EvidenceFiles {
		f := &item.EvidenceFiles[i]
		if f.FileName == "" {
			return models.ErrKindBadRequest,
				fmt.Sprintf("item %q: evidence file name is required", item.ID)
		}
		if f.Base64 == "" {
			continue
		}
		// Cheap pre-check before decoding: 4 base64 chars carry 3 bytes.
		if maxBytes > 0 && len(f.Base64)/4*3 > maxBytes {
			return models.ErrKindBadRequest,
				fmt.Sprintf("item %q: evidence file %q exceeds the %d byte limit", item.ID, f.FileName, maxBytes)
		}
		content, err := base64.StdEncoding.DecodeString(f.Base64)
		if err != nil {
			return models.ErrKindBadRequest,
				fmt.Sprintf("item %q: evidence file %q is not valid base64", item.ID, f.FileName)
		}
		if maxBytes > 0 && len(content) > maxBytes {
			return models.ErrKindBadRequest,
				fmt.Sprintf("item %q: evidence file %q exceeds the %d byte limit", item.ID, f.FileName, maxBytes)
		}
		f.Content = content
		f.Base64 = ""
	}
	return "", ""
}
