package models

// EvaluationResult is the output unit, one per input item.
// Either EvaluationResult is meaningful or ErrorKind is set; never both.
type EvaluationResult struct {
	ID                   string          `json:"ID"`
	EvaluationResult     bool            `json:"evaluationResult"`
	ExecutionPlanSummary string          `json:"executionPlanSummary,omitempty"`
	JudgmentBasis        string          `json:"judgmentBasis,omitempty"`
	DocumentReference    string          `json:"documentReference,omitempty"`
	EvidenceFiles        []AnnotatedFile `json:"evidenceFiles,omitempty"`
	FileName             string          `json:"fileName,omitempty"`

	// Failure descriptor for items that could not be evaluated.
	ErrorKind    ErrorKind `json:"errorKind,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// Failed reports whether the item yielded a non-recoverable error instead of
// a verdict.
func (r *EvaluationResult) Failed() bool {
	return r.ErrorKind != ""
}

// AnnotatedFile is an evidence artifact returned to the client: the original
// bytes re-encoded as base64 plus overlay metadata highlighting the regions
// the reasoning tasks focused on.
type AnnotatedFile struct {
	FileName         string      `json:"fileName"`
	OriginalFileName string      `json:"originalFileName"`
	FilePath         string      `json:"filePath,omitempty"`
	Base64           string      `json:"base64"`
	Highlights       []Highlight `json:"highlights,omitempty"`
	Warning          string      `json:"warning,omitempty"`
}

// Highlight marks a region of an evidence file that supported the judgment.
// Exactly one locator group is populated depending on the file kind:
// page+bounding box for PDFs and images, cell coordinates for spreadsheets,
// paragraph index for documents.
type Highlight struct {
	Page        int     `json:"page,omitempty"`
	X           float64 `json:"x,omitempty"`
	Y           float64 `json:"y,omitempty"`
	Width       float64 `json:"width,omitempty"`
	Height      float64 `json:"height,omitempty"`
	Cell        string  `json:"cell,omitempty"`
	Sheet       string  `json:"sheet,omitempty"`
	Paragraph   int     `json:"paragraph,omitempty"`
	MatchedText string  `json:"matchedText,omitempty"`
}
