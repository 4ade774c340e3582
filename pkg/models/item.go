// Package models defines the domain types shared across the service:
// evaluation items and results, evidence files, jobs, and error kinds.
package models

import "fmt"

// EvaluationItem is a single control-evaluation request unit.
// Items are created at ingest and immutable thereafter.
type EvaluationItem struct {
	ID                 string         `json:"ID"`
	Category           string         `json:"Category,omitempty"`
	ControlDescription string         `json:"ControlDescription"`
	TestProcedure      string         `json:"TestProcedure"`
	EvidenceLink       string         `json:"EvidenceLink,omitempty"`
	EvidenceFiles      []EvidenceFile `json:"EvidenceFiles,omitempty"`
}

// Validate checks the item invariants: non-empty ID, control description,
// and test procedure.
func (i *EvaluationItem) Validate() error {
	if i.ID == "" {
		return &ValidationError{Field: "ID", Message: "item ID is required"}
	}
	if i.ControlDescription == "" {
		return &ValidationError{Field: "ControlDescription", Message: "control description is required"}
	}
	if i.TestProcedure == "" {
		return &ValidationError{Field: "TestProcedure", Message: "test procedure is required"}
	}
	return nil
}

// EvidenceFile is one decoded attachment on an evaluation item.
// Content holds the decoded bytes; the Base64 field is only populated on the
// wire and cleared after decoding.
type EvidenceFile struct {
	FileName         string `json:"fileName"`
	MimeType         string `json:"mimeType"`
	Extension        string `json:"extension"`
	Base64           string `json:"base64,omitempty"`
	OriginalFileName string `json:"originalFileName,omitempty"`

	Content []byte `json:"-"`
}

// Recognized MIME types for evidence files.
const (
	MimePDF  = "application/pdf"
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeGIF  = "image/gif"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText = "text/plain"
)

// RecognizedMimeType reports whether the MIME type is in the supported set.
func RecognizedMimeType(mimeType string) bool {
	switch mimeType {
	case MimePDF, MimePNG, MimeJPEG, MimeGIF, MimeXLSX, MimeDOCX, MimeText:
		return true
	default:
		return false
	}
}

// ValidationError wraps field-specific validation errors.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}
