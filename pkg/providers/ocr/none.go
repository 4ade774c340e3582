package ocr

import (
	"context"

	"github.com/auditflow/auditflow/pkg/providers"
)

// NoneClient is the no-op OCR backend. Extraction succeeds with empty
// output, letting the native text extractors carry the pipeline alone.
type NoneClient struct{}

// NewNoneClient creates the no-op client.
func NewNoneClient() *NoneClient { return &NoneClient{} }

// Name implements providers.OCRClient.
func (c *NoneClient) Name() string { return "none" }

// Extract implements providers.OCRClient.
func (c *NoneClient) Extract(ctx context.Context, content []byte, mimeType, language string) (*providers.Extraction, error) {
	return &providers.Extraction{}, nil
}
