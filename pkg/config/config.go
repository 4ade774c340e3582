// Package config loads and validates service configuration from the
// environment. Every recognized option has a built-in default so the
// service starts with no configuration at all (MOCK providers, in-memory
// job store).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LLMConfig configures the LLM provider selection and credentials.
type LLMConfig struct {
	Provider   LLMProviderType
	Model      string
	Endpoint   string
	APIKey     string
	APIVersion string
	Region     string
	Timeout    time.Duration
}

// Configured reports whether enough credentials are present to reach the
// selected backend. MOCK is always configured.
func (c *LLMConfig) Configured() bool {
	switch c.Provider {
	case LLMProviderMock:
		return true
	case LLMProviderAWS:
		// Credentials come from the ambient AWS chain; the model is enough.
		return c.Model != ""
	case LLMProviderLocal:
		return c.Endpoint != ""
	default:
		return c.Endpoint != "" && c.APIKey != ""
	}
}

// OCRConfig configures the OCR provider selection and credentials.
type OCRConfig struct {
	Provider    OCRProviderType
	Endpoint    string
	APIKey      string
	Region      string
	Language    string
	CommandPath string
}

// Configured reports whether the OCR backend is usable.
func (c *OCRConfig) Configured() bool {
	switch c.Provider {
	case OCRProviderNone:
		return true
	case OCRProviderTesseract:
		return c.CommandPath != ""
	case OCRProviderAWS:
		return true
	default:
		return c.Endpoint != "" && c.APIKey != ""
	}
}

// OrchestratorConfig holds the graph orchestrator tunables.
type OrchestratorConfig struct {
	MaxPlanRevisions      int
	MaxJudgmentRevisions  int
	SkipPlanCreation      bool
	SelfReflectionEnabled bool

	// ItemTimeout is the per-item wall-clock cap.
	ItemTimeout time.Duration

	// OCRFallbackMinChars is the embedded-text threshold below which a PDF
	// is sent to OCR.
	OCRFallbackMinChars int
}

// BatchConfig holds batch coordinator tunables.
type BatchConfig struct {
	MaxConcurrentEvaluations int
	MaxSyncBatchSize         int
	SyncWallClockGuard       time.Duration
}

// JobsConfig holds job manager tunables.
type JobsConfig struct {
	Store             JobStoreType
	Retention         time.Duration
	JobTimeout        time.Duration
	ReaperInterval    time.Duration
	BackpressureLimit int
	WorkerCount       int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	OrphanThreshold   time.Duration
}

// DatabaseConfig holds postgres connection settings for the postgres job
// store. Ignored when JOB_STORE is memory.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
}

// DSN builds a pgx-compatible connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// EvidenceConfig holds evidence ingestion tunables.
type EvidenceConfig struct {
	MaxFileBytes    int
	MaxExtractChars int
}

// Config is the root configuration, assembled once at startup and read-only
// afterwards.
type Config struct {
	LLM          LLMConfig
	OCR          OCRConfig
	Orchestrator OrchestratorConfig
	Batch        BatchConfig
	Jobs         JobsConfig
	Database     DatabaseConfig
	Evidence     EvidenceConfig
}

// Load reads configuration from the environment, applying defaults for
// every unset option.
func Load() (*Config, error) {
	cfg := &Config{
		LLM: LLMConfig{
			Provider:   LLMProviderType(getEnv("LLM_PROVIDER", string(LLMProviderMock))),
			Model:      os.Getenv("LLM_MODEL"),
			Endpoint:   os.Getenv("LLM_ENDPOINT"),
			APIKey:     os.Getenv("LLM_API_KEY"),
			APIVersion: os.Getenv("LLM_API_VERSION"),
			Region:     os.Getenv("LLM_AWS_REGION"),
			Timeout:    envSeconds("LLM_TIMEOUT_SECONDS", 60),
		},
		OCR: OCRConfig{
			Provider:    OCRProviderType(getEnv("OCR_PROVIDER", string(OCRProviderNone))),
			Endpoint:    os.Getenv("OCR_ENDPOINT"),
			APIKey:      os.Getenv("OCR_API_KEY"),
			Region:      os.Getenv("OCR_AWS_REGION"),
			Language:    getEnv("OCR_LANGUAGE", "en"),
			CommandPath: getEnv("OCR_COMMAND_PATH", "tesseract"),
		},
		Orchestrator: OrchestratorConfig{
			MaxPlanRevisions:      envInt("MAX_PLAN_REVISIONS", 1),
			MaxJudgmentRevisions:  envInt("MAX_JUDGMENT_REVISIONS", 1),
			SkipPlanCreation:      envBool("SKIP_PLAN_CREATION", false),
			SelfReflectionEnabled: envBool("SELF_REFLECTION_ENABLED", false),
			ItemTimeout:           envSeconds("FUNCTION_TIMEOUT_SECONDS", 300),
			OCRFallbackMinChars:   envInt("OCR_FALLBACK_MIN_CHARS", 64),
		},
		Batch: BatchConfig{
			MaxConcurrentEvaluations: envInt("MAX_CONCURRENT_EVALUATIONS", 10),
			MaxSyncBatchSize:         envInt("MAX_SYNC_BATCH_SIZE", 50),
			SyncWallClockGuard:       envSeconds("SYNC_WALL_CLOCK_GUARD_SECONDS", 25),
		},
		Jobs: JobsConfig{
			Store:             JobStoreType(getEnv("JOB_STORE", string(JobStoreMemory))),
			Retention:         envSeconds("JOB_RETENTION_SECONDS", 604800),
			JobTimeout:        envSeconds("JOB_TIMEOUT_SECONDS", 1800),
			ReaperInterval:    envSeconds("REAPER_INTERVAL_SECONDS", 60),
			BackpressureLimit: envInt("QUEUE_BACKPRESSURE_LIMIT", 100),
			WorkerCount:       envInt("JOB_WORKER_COUNT", 2),
			PollInterval:      envSeconds("JOB_POLL_INTERVAL_SECONDS", 1),
			HeartbeatInterval: envSeconds("JOB_HEARTBEAT_INTERVAL_SECONDS", 15),
			OrphanThreshold:   envSeconds("JOB_ORPHAN_THRESHOLD_SECONDS", 300),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     envInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "auditflow"),
			Password: os.Getenv("DB_PASSWORD"),
			Database: getEnv("DB_NAME", "auditflow"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: envInt("DB_MAX_CONNS", 10),
		},
		Evidence: EvidenceConfig{
			MaxFileBytes:    envInt("MAX_EVIDENCE_FILE_BYTES", 20*1024*1024),
			MaxExtractChars: envInt("MAX_EXTRACT_CHARS", 50000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enum values and numeric bounds.
func (c *Config) Validate() error {
	if !c.LLM.Provider.IsValid() {
		return fmt.Errorf("invalid LLM_PROVIDER %q", c.LLM.Provider)
	}
	if !c.OCR.Provider.IsValid() {
		return fmt.Errorf("invalid OCR_PROVIDER %q", c.OCR.Provider)
	}
	if !c.Jobs.Store.IsValid() {
		return fmt.Errorf("invalid JOB_STORE %q", c.Jobs.Store)
	}
	if c.Orchestrator.MaxPlanRevisions < 0 {
		return fmt.Errorf("MAX_PLAN_REVISIONS must be non-negative, got %d", c.Orchestrator.MaxPlanRevisions)
	}
	if c.Orchestrator.MaxJudgmentRevisions < 0 {
		return fmt.Errorf("MAX_JUDGMENT_REVISIONS must be non-negative, got %d", c.Orchestrator.MaxJudgmentRevisions)
	}
	if c.Batch.MaxConcurrentEvaluations < 1 {
		return fmt.Errorf("MAX_CONCURRENT_EVALUATIONS must be at least 1, got %d", c.Batch.MaxConcurrentEvaluations)
	}
	if c.Batch.MaxSyncBatchSize < 1 {
		return fmt.Errorf("MAX_SYNC_BATCH_SIZE must be at least 1, got %d", c.Batch.MaxSyncBatchSize)
	}
	if c.Jobs.WorkerCount < 1 {
		return fmt.Errorf("JOB_WORKER_COUNT must be at least 1, got %d", c.Jobs.WorkerCount)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func envSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(envInt(key, defaultSeconds)) * time.Second
}
