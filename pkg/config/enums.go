package config

// LLMProviderType defines supported LLM backends.
type LLMProviderType string

// LLM provider identifiers.
const (
	LLMProviderAzureFoundry LLMProviderType = "AZURE_FOUNDRY"
	LLMProviderAzure        LLMProviderType = "AZURE"
	LLMProviderGCP          LLMProviderType = "GCP"
	LLMProviderAWS          LLMProviderType = "AWS"
	LLMProviderLocal        LLMProviderType = "LOCAL"
	LLMProviderMock         LLMProviderType = "MOCK"
)

// IsValid checks if the LLM provider type is valid.
func (t LLMProviderType) IsValid() bool {
	switch t {
	case LLMProviderAzureFoundry, LLMProviderAzure, LLMProviderGCP,
		LLMProviderAWS, LLMProviderLocal, LLMProviderMock:
		return true
	default:
		return false
	}
}

// OCRProviderType defines supported OCR backends.
type OCRProviderType string

// OCR provider identifiers. NONE disables OCR; PDFs still get embedded
// text extraction.
const (
	OCRProviderAzure     OCRProviderType = "AZURE"
	OCRProviderAWS       OCRProviderType = "AWS"
	OCRProviderGCP       OCRProviderType = "GCP"
	OCRProviderTesseract OCRProviderType = "TESSERACT"
	OCRProviderNone      OCRProviderType = "NONE"
)

// IsValid checks if the OCR provider type is valid.
func (t OCRProviderType) IsValid() bool {
	switch t {
	case OCRProviderAzure, OCRProviderAWS, OCRProviderGCP, OCRProviderTesseract, OCRProviderNone:
		return true
	default:
		return false
	}
}

// JobStoreType selects the durable job store backend.
type JobStoreType string

// Job store backends.
const (
	JobStoreMemory   JobStoreType = "memory"
	JobStorePostgres JobStoreType = "postgres"
)

// IsValid checks if the job store type is valid.
func (t JobStoreType) IsValid() bool {
	return t == JobStoreMemory || t == JobStorePostgres
}
