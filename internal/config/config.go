package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the single explicit configuration record for the ingestion
// engine, loaded once at process start and passed by value into
// constructors. Mirrors §6 of the specification's enumerated configuration.
type Config struct {
	LogMode string

	PostgresDSN string

	VectorDim          int
	VectorStoreURL     string
	VectorCollection   string
	VectorNamespacePfx string

	EmbedderName    string
	EmbedderVersion string

	RedisAddr string

	SessionTimeGap                  time.Duration
	SessionMaxTokens                int
	SessionSemanticRefineThreshold  int
	SessionSemanticPercentile       float64
	SessionSemanticMinSubSession    int

	JobMaxAttempts      int
	JobBackoffBase      time.Duration
	JobBackoffCap       time.Duration
	VisibilityTimeout   time.Duration
	DedupWindow         time.Duration

	ReconcilerInterval time.Duration
	ReconcilerBatch    int

	AttachmentMaxTextBytes  int64
	AttachmentMaxPDFBytes   int64
	AttachmentMaxImageBytes int64
	BlockedExtensions       []string

	WorkerConcurrency   int
	QueueBackpressureHi int

	ChunkMinTokens int
	ChunkMaxTokens int

	BackfillPageSize int
}

// Error is a validation error against a specific config field, following
// the teacher's qdrant.ConfigError pattern: a stable code plus the bad
// value, so callers can branch on Code without string matching.
type Error struct {
	Field string
	Value string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config: invalid %s=%q: %v", e.Field, e.Value, e.Cause)
	}
	return fmt.Sprintf("config: missing or invalid %s=%q", e.Field, e.Value)
}

func (e *Error) Unwrap() error { return e.Cause }

// Load reads configuration from the environment, applying the defaults
// enumerated in spec §6, and validates it eagerly.
func Load() (Config, error) {
	cfg := Config{
		LogMode:     getEnv("LOG_MODE", "development"),
		PostgresDSN: getEnv("POSTGRES_DSN", ""),

		VectorStoreURL:     getEnv("VECTOR_STORE_URL", ""),
		VectorCollection:   getEnv("VECTOR_COLLECTION", "conversation_index"),
		VectorNamespacePfx: getEnv("VECTOR_NAMESPACE_PREFIX", "ci"),

		EmbedderName:    getEnv("EMBEDDER_NAME", "local"),
		EmbedderVersion: getEnv("EMBEDDER_VERSION", "v1"),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		SessionTimeGap:                 time.Duration(getEnvInt("SESSION_TIME_GAP_SECONDS", 15*60)) * time.Second,
		SessionMaxTokens:               getEnvInt("SESSION_MAX_TOKENS", 480),
		SessionSemanticRefineThreshold: getEnvInt("SESSION_SEMANTIC_REFINE_THRESHOLD_MESSAGES", 20),
		SessionSemanticPercentile:      getEnvFloat("SESSION_SEMANTIC_PERCENTILE", 5),
		SessionSemanticMinSubSession:   getEnvInt("SESSION_SEMANTIC_MIN_SUBSESSION", 2),

		JobMaxAttempts:    getEnvInt("JOB_MAX_ATTEMPTS", 5),
		JobBackoffBase:    time.Duration(getEnvInt("JOB_BACKOFF_BASE_SECONDS", 1)) * time.Second,
		JobBackoffCap:     time.Duration(getEnvInt("JOB_BACKOFF_CAP_SECONDS", 600)) * time.Second,
		VisibilityTimeout: time.Duration(getEnvInt("VISIBILITY_TIMEOUT_SECONDS", 5*60)) * time.Second,
		DedupWindow:       time.Duration(getEnvInt("DEDUP_WINDOW_SECONDS", 5*60)) * time.Second,

		ReconcilerInterval: time.Duration(getEnvInt("RECONCILER_INTERVAL_SECONDS", 15*60)) * time.Second,
		ReconcilerBatch:    getEnvInt("RECONCILER_BATCH_SIZE", 200),

		AttachmentMaxTextBytes:  int64(getEnvInt("ATTACHMENT_MAX_TEXT_BYTES", 2*1024*1024)),
		AttachmentMaxPDFBytes:   int64(getEnvInt("ATTACHMENT_MAX_PDF_BYTES", 20*1024*1024)),
		AttachmentMaxImageBytes: int64(getEnvInt("ATTACHMENT_MAX_IMAGE_BYTES", 10*1024*1024)),
		BlockedExtensions:       splitCSV(getEnv("BLOCKED_ATTACHMENT_EXTENSIONS", ".exe,.bat,.sh,.ps1,.cmd")),

		WorkerConcurrency:   getEnvInt("WORKER_CONCURRENCY", 4),
		QueueBackpressureHi: getEnvInt("QUEUE_BACKPRESSURE_HI", 10000),

		ChunkMinTokens: getEnvInt("CHUNK_MIN_TOKENS", 32),
		ChunkMaxTokens: getEnvInt("CHUNK_MAX_TOKENS", 480),

		BackfillPageSize: getEnvInt("BACKFILL_PAGE_SIZE", 500),
	}

	rawDim := strings.TrimSpace(os.Getenv("VECTOR_DIM"))
	if rawDim == "" {
		return Config{}, &Error{Field: "VECTOR_DIM", Value: rawDim}
	}
	dim, err := strconv.Atoi(rawDim)
	if err != nil || dim <= 0 {
		return Config{}, &Error{Field: "VECTOR_DIM", Value: rawDim, Cause: err}
	}
	cfg.VectorDim = dim

	if cfg.PostgresDSN == "" {
		return Config{}, &Error{Field: "POSTGRES_DSN", Value: ""}
	}
	if cfg.VectorStoreURL == "" {
		return Config{}, &Error{Field: "VECTOR_STORE_URL", Value: ""}
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
