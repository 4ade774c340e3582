package evidence

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/auditflow/auditflow/pkg/models"
	"github.com/auditflow/auditflow/pkg/providers"
)

// extractPDF prefers the embedded text layer. Scanned PDFs with little or no
// embedded text fall back to the OCR client, which also supplies positioned
// blocks for highlighting.
func (p *Processor) extractPDF(ctx context.Context, content []byte) (string, []providers.Block, error) {
	text, err := embeddedPDFText(content)
	if err == nil && len(strings.TrimSpace(text)) >= p.opts.OCRFallbackMinChars {
		return text, nil, nil
	}

	extraction, ocrErr := p.ocr.Extract(ctx, content, models.MimePDF, p.opts.Language)
	if ocrErr != nil {
		if err != nil {
			return "", nil, fmt.Errorf("embedded text: %w; OCR fallback: %v", err, ocrErr)
		}
		// Thin text layer but usable; keep it rather than failing the file.
		return text, nil, nil
	}
	// With no embedded text layer at all, the OCR result stands on its own.
	if err != nil || len(strings.TrimSpace(extraction.Text)) > len(strings.TrimSpace(text)) {
		return extraction.Text, extraction.Blocks, nil
	}
	return text, nil, nil
}

func embeddedPDFText(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	var text strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// One bad page must not sink the document.
			continue
		}
		if text.Len() > 0 {
			text.WriteByte('\n')
		}
		text.WriteString(pageText)
	}
	return text.String(), nil
}

// extractImage always goes through OCR.
func (p *Processor) extractImage(ctx context.Context, content []byte, mimeType string) (string, []providers.Block, error) {
	extraction, err := p.ocr.Extract(ctx, content, mimeType, p.opts.Language)
	if err != nil {
		return "", nil, err
	}
	return extraction.Text, extraction.Blocks, nil
}
