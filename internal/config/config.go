package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection (preferred durable engine)
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Storage fallbacks
	StorageBackends []string // preference order: surreal, sqlite, memory
	SQLitePath      string
	MemoryEventCap  int

	// Embedding providers
	EmbedProviders     []string // preference order, hash is always appended
	OllamaHost         string
	EmbeddingModel     string
	EmbedDimension     int
	VoyageAPIKey       string
	VoyageModel        string
	OpenAIAPIKey       string
	OpenAIEmbedModel   string
	ProviderCheckTTL   time.Duration
	ChunkSize          int
	ChunkOverlap       int
	MinEmbedTextLength int

	// Vector index
	VectorCacheSize  int
	VectorCeiling    int
	PruneEvery       int
	PruneBatchSize   int
	SearchMaxVectors int

	// Pipeline
	DedupWindow    time.Duration
	DedupTTL       time.Duration
	TaggingConfig  string // optional YAML file overriding DefaultTagging
	PIIRejectLevel string // none, low, medium or high

	// Completion providers
	BackendURL      string
	BackendTimeout  time.Duration
	StreamTimeout   time.Duration
	LLMProviders    []string // local chain order after the backend
	LLMModel        string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	BedrockRegion   string
	BedrockModel    string

	// Task engine
	EngineConcurrency int
	IdleTimeout       time.Duration
	HistorySize       int

	// Maintenance
	DecayAfter       time.Duration
	DecayInterval    time.Duration
	CompactThreshold int
	DecayKeepPinned  bool

	// Metrics
	MetricsAddr string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "omni"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "memory"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		StorageBackends: getListEnv("OMNI_STORAGE", []string{"surreal", "sqlite", "memory"}),
		SQLitePath:      getEnv("OMNI_SQLITE_PATH", defaultSQLitePath()),
		MemoryEventCap:  getIntEnv("OMNI_MEMORY_EVENT_CAP", 10000),

		EmbedProviders:     getListEnv("OMNI_EMBED_PROVIDERS", []string{"ollama", "voyage", "openai"}),
		OllamaHost:         getEnv("OLLAMA_HOST", "http://localhost:11434"),
		EmbeddingModel:     getEnv("OMNI_EMBEDDING_MODEL", "all-minilm:l6-v2"),
		EmbedDimension:     getIntEnv("OMNI_EMBED_DIMENSION", 384),
		VoyageAPIKey:       getEnv("VOYAGE_API_KEY", ""),
		VoyageModel:        getEnv("OMNI_VOYAGE_MODEL", "voyage-3-lite"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIEmbedModel:   getEnv("OMNI_OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		ProviderCheckTTL:   getDurationEnv("OMNI_PROVIDER_CHECK_TTL", 60*time.Second),
		ChunkSize:          getIntEnv("OMNI_CHUNK_SIZE", 512),
		ChunkOverlap:       getIntEnv("OMNI_CHUNK_OVERLAP", 50),
		MinEmbedTextLength: getIntEnv("OMNI_MIN_EMBED_TEXT", 10),

		VectorCacheSize:  getIntEnv("OMNI_VECTOR_CACHE", 1000),
		VectorCeiling:    getIntEnv("OMNI_VECTOR_CEILING", 5000),
		PruneEvery:       getIntEnv("OMNI_PRUNE_EVERY", 100),
		PruneBatchSize:   getIntEnv("OMNI_PRUNE_BATCH", 50),
		SearchMaxVectors: getIntEnv("OMNI_SEARCH_MAX_VECTORS", 5000),

		DedupWindow:    getDurationEnv("OMNI_DEDUP_WINDOW", time.Second),
		DedupTTL:       getDurationEnv("OMNI_DEDUP_TTL", 5*time.Second),
		TaggingConfig:  getEnv("OMNI_TAGGING_CONFIG", ""),
		PIIRejectLevel: strings.ToLower(getEnv("OMNI_PII_REJECT_SEVERITY", "high")),

		BackendURL:      getEnv("OMNI_BACKEND_URL", ""),
		BackendTimeout:  getDurationEnv("OMNI_BACKEND_TIMEOUT", 30*time.Second),
		StreamTimeout:   getDurationEnv("OMNI_STREAM_TIMEOUT", 60*time.Second),
		LLMProviders:    getListEnv("OMNI_LLM_PROVIDERS", []string{"ollama", "openai", "anthropic", "bedrock"}),
		LLMModel:        getEnv("OMNI_LLM_MODEL", "llama3.2"),
		OpenAIModel:     getEnv("OMNI_OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("OMNI_ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		BedrockRegion:   getEnv("AWS_REGION", ""),
		BedrockModel:    getEnv("OMNI_BEDROCK_MODEL", "anthropic.claude-3-haiku-20240307-v1:0"),

		EngineConcurrency: getIntEnv("OMNI_ENGINE_CONCURRENCY", 1),
		IdleTimeout:       getDurationEnv("OMNI_IDLE_TIMEOUT", 45*time.Second),
		HistorySize:       getIntEnv("OMNI_HISTORY_SIZE", 10),

		DecayAfter:       getDurationEnv("OMNI_DECAY_AFTER", 720*time.Hour),
		DecayInterval:    getDurationEnv("OMNI_DECAY_INTERVAL", time.Hour),
		CompactThreshold: getIntEnv("OMNI_COMPACT_THRESHOLD", 50),
		DecayKeepPinned:  getBoolEnv("OMNI_DECAY_KEEP_PINNED", true),

		MetricsAddr: getEnv("OMNI_METRICS_ADDR", ""),

		LogFile:  getEnv("OMNI_LOG_FILE", "/tmp/omnimemory.log"),
		LogLevel: parseLogLevel(getEnv("OMNI_LOG_LEVEL", "INFO")),
	}
}

func defaultSQLitePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "omnimemory.db"
	}
	return dir + "/omnimemory/memory.db"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getListEnv parses a comma-separated list, dropping empty items.
func getListEnv(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, strings.ToLower(item))
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
