package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	DBName   string
	Port     string
	GinMode  string

	CORSOrigins []string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int
	IngestQueue   string

	// Qdrant Configuration
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
	VectorDimensions int

	// Gemini Configuration
	GeminiAPIKey    string
	GeminiTier      string
	EmbeddingsModel string
	GenerationModel string

	// Chunking (words)
	ChunkSize    int
	ChunkOverlap int

	// Retrieval
	SearchTopK    int
	ScoreFloor    float64
	ContextChunks int

	// Worker
	WorkerPollInterval int // seconds between empty-queue polls
	FetchTimeout       int // seconds
	UpstreamTimeout    int // seconds, per embed/search/generate call
	StuckProcessingTTL int // minutes before a processing doc is swept to failed
	ReconcileInterval  int // minutes between reconciliation sweeps

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Tracing
	TracingEnabled bool
	OTLPEndpoint   string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/rag_engine"),
		DBName:   getEnv("DB_NAME", "rag_engine"),
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),

		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		IngestQueue:   getEnv("INGEST_QUEUE_KEY", "ingest:jobs"),

		// Qdrant Configuration
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "documents_chunks"),
		VectorDimensions: getEnvInt("VECTOR_DIM", 768),

		// Gemini
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiTier:      getEnv("GEMINI_TIER", "free"),
		EmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		GenerationModel: getEnv("GOOGLE_GENERATION_MODEL", "gemini-2.0-flash"),

		// Chunking
		ChunkSize:    getEnvInt("CHUNK_SIZE_WORDS", 400),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP_WORDS", 50),

		// Retrieval
		SearchTopK:    getEnvInt("SEARCH_TOP_K", 10),
		ScoreFloor:    getEnvFloat64("SEARCH_SCORE_FLOOR", 0.35),
		ContextChunks: getEnvInt("CONTEXT_CHUNKS", 3),

		// Worker
		WorkerPollInterval: getEnvInt("WORKER_POLL_INTERVAL", 2),
		FetchTimeout:       getEnvInt("FETCH_TIMEOUT", 15),
		UpstreamTimeout:    getEnvInt("UPSTREAM_TIMEOUT", 60),
		StuckProcessingTTL: getEnvInt("STUCK_PROCESSING_TTL", 30),
		ReconcileInterval:  getEnvInt("RECONCILE_INTERVAL", 10),

		// Rate limiting
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		// Tracing
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	// Validate required fields
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	// Reject invalid chunking config here so the chunker never sees it
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("CHUNK_SIZE_WORDS must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP_WORDS (%d) must be in [0, CHUNK_SIZE_WORDS)", cfg.ChunkOverlap)
	}

	if cfg.ContextChunks > cfg.SearchTopK {
		return nil, fmt.Errorf("CONTEXT_CHUNKS (%d) cannot exceed SEARCH_TOP_K (%d)",
			cfg.ContextChunks, cfg.SearchTopK)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
