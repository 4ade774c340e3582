// Package providers defines the invocation contracts for LLM and OCR
// backends plus the typed error variants the orchestrator keys retry
// decisions on. Concrete clients live in subpackages; the registry
// subpackage instantiates them from configuration.
package providers

import "context"

// LLMRequest is a single completion call.
type LLMRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Usage reports token consumption for one LLM call.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// LLMResponse is the completion text plus usage accounting.
type LLMResponse struct {
	Text  string
	Usage Usage
}

// LLMClient is the uniform invocation contract for LLM backends.
// Implementations are safe for concurrent use; the only shared state is the
// underlying HTTP connection pool.
type LLMClient interface {
	// Invoke sends one completion request. Failures are *Error values with
	// a kind of RateLimited, Unavailable, Timeout, or InvalidRequest.
	Invoke(ctx context.Context, req *LLMRequest) (*LLMResponse, error)

	// Name returns the provider identifier.
	Name() string

	// Model returns the configured model identifier.
	Model() string
}

// Block is one positioned text region from OCR: page plus bounding box in
// page-relative coordinates (0..1).
type Block struct {
	Text       string  `json:"text"`
	Page       int     `json:"page"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Extraction is the result of one OCR pass over a buffer.
type Extraction struct {
	Text   string
	Blocks []Block
}

// OCRClient extracts text and structured blocks from image or document bytes.
type OCRClient interface {
	Extract(ctx context.Context, content []byte, mimeType, language string) (*Extraction, error)
	Name() string
}
