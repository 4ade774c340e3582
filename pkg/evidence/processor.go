// Package evidence transforms decoded evidence attachments into prompt-ready
// text and annotated artifacts. Each file is dispatched by MIME type to a
// format-specific extractor; failures are isolated per file and surface as
// warnings rather than aborting the batch.
package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/auditflow/auditflow/pkg/models"
	"github.com/auditflow/auditflow/pkg/providers"
)

// TruncationMarker is appended when extracted text exceeds the per-file cap.
const TruncationMarker = "\n[truncated: extracted text exceeded the configured limit]"

// Cell is one non-empty spreadsheet cell.
type Cell struct {
	Sheet string
	Ref   string
	Text  string
}

// FileExtraction is the per-file output of the processor. Exactly one of
// Blocks, Cells, or Paragraphs carries position data depending on the file
// kind; Text is always the flattened extraction.
type FileExtraction struct {
	FileName   string
	MimeType   string
	Text       string
	Blocks     []providers.Block
	Cells      []Cell
	Paragraphs []string
	Truncated  bool
	Warning    string
}

// Options tunes the extraction pipeline.
type Options struct {
	// MaxExtractChars caps the flattened text per file.
	MaxExtractChars int

	// OCRFallbackMinChars triggers PDF OCR fallback when the embedded text
	// layer is shorter than this.
	OCRFallbackMinChars int

	// Language is passed through to the OCR backend.
	Language string
}

// Processor runs the extraction pipeline over evidence files.
type Processor struct {
	ocr  providers.OCRClient
	opts Options
}

// NewProcessor creates a processor backed by the given OCR client.
func NewProcessor(ocrClient providers.OCRClient, opts Options) *Processor {
	if opts.MaxExtractChars <= 0 {
		opts.MaxExtractChars = 50000
	}
	if opts.OCRFallbackMinChars <= 0 {
		opts.OCRFallbackMinChars = 64
	}
	return &Processor{ocr: ocrClient, opts: opts}
}

// Process extracts every file. The output preserves input order and always
// has one entry per input file; a failed extraction contributes empty text
// plus a warning.
func (p *Processor) Process(ctx context.Context, files []models.EvidenceFile) []FileExtraction {
	out := make([]FileExtraction, 0, len(files))
	for i := range files {
		out = append(out, p.processOne(ctx, &files[i]))
	}
	return out
}

func (p *Processor) processOne(ctx context.Context, file *models.EvidenceFile) FileExtraction {
	ext := FileExtraction{FileName: file.FileName, MimeType: file.MimeType}

	var err error
	switch file.MimeType {
	case models.MimePDF:
		ext.Text, ext.Blocks, err = p.extractPDF(ctx, file.Content)
	case models.MimePNG, models.MimeJPEG, models.MimeGIF:
		ext.Text, ext.Blocks, err = p.extractImage(ctx, file.Content, file.MimeType)
	case models.MimeXLSX:
		ext.Text, ext.Cells, err = extractXLSX(file.Content)
	case models.MimeDOCX:
		ext.Text, ext.Paragraphs, err = extractDOCX(file.Content)
	case models.MimeText:
		ext.Text = string(file.Content)
	default:
		err = fmt.Errorf("unsupported MIME type %q", file.MimeType)
	}

	if err != nil {
		slog.WarnContext(ctx, "Evidence extraction failed",
			"file_name", file.FileName,
			"mime_type", file.MimeType,
			"error", err)
		ext.Text = ""
		ext.Blocks = nil
		ext.Cells = nil
		ext.Paragraphs = nil
		ext.Warning = fmt.Sprintf("extraction failed: %v", err)
		return ext
	}

	if len(ext.Text) > p.opts.MaxExtractChars {
		ext.Text = ext.Text[:p.opts.MaxExtractChars] + TruncationMarker
		ext.Truncated = true
	}
	return ext
}

// PromptText flattens the extractions for LLM prompting, one filename header
// per file, preserving input order.
func PromptText(extractions []FileExtraction) string {
	var b strings.Builder
	for _, ext := range extractions {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- evidence file: %s ---\n", ext.FileName)
		if ext.Warning != "" {
			fmt.Fprintf(&b, "(no text available: %s)", ext.Warning)
			continue
		}
		b.WriteString(ext.Text)
	}
	return b.String()
}
