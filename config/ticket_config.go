package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	RedisURL    string
	MongoDBURL  string
	MongoDBName string

	// JWT (trigger API auth)
	JWTSecret string

	// CORS
	AllowedOrigins []string

	// OpenAI
	OpenAIAPIKey   string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int

	// Microsoft Graph (source)
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphMailbox      string
	GraphFolder       string

	// Gmail (alternative source)
	GmailCredentialsJSON string
	GmailUserID          string

	// Source selection: "graph" or "gmail"
	SourceProvider string

	// Pipeline
	ConfidenceThreshold float64
	PipelineWorkers     int
	FetchMaxCount       int
	FetchWindowHours    int

	// Fingerprint store: "postgres" or "redis"
	FingerprintBackend string
	FingerprintTTLDays int

	// Decision archive
	ArchiveEnabled bool
	ArchiveTTLDays int

	// Scheduler
	SchedulerEnabled  bool
	SchedulerInterval time.Duration
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "ticketflow"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", nil),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.1),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 30),

		// Microsoft Graph
		GraphTenantID:     getEnv("GRAPH_TENANT_ID", ""),
		GraphClientID:     getEnv("GRAPH_CLIENT_ID", ""),
		GraphClientSecret: getEnv("GRAPH_CLIENT_SECRET", ""),
		GraphMailbox:      getEnv("GRAPH_MAILBOX", ""),
		GraphFolder:       getEnv("GRAPH_FOLDER", "inbox"),

		// Gmail
		GmailCredentialsJSON: getEnv("GMAIL_CREDENTIALS_JSON", ""),
		GmailUserID:          getEnv("GMAIL_USER_ID", "me"),

		SourceProvider: getEnv("SOURCE_PROVIDER", "graph"),

		// Pipeline
		ConfidenceThreshold: getEnvFloat("CONFIDENCE_THRESHOLD", 0.6),
		PipelineWorkers:     getEnvInt("PIPELINE_WORKERS", 4),
		FetchMaxCount:       getEnvInt("FETCH_MAX_COUNT", 20),
		FetchWindowHours:    getEnvInt("FETCH_WINDOW_HOURS", 24),

		// Fingerprint store
		FingerprintBackend: getEnv("FINGERPRINT_BACKEND", "postgres"),
		FingerprintTTLDays: getEnvInt("FINGERPRINT_TTL_DAYS", 0), // 0 = keep forever

		// Decision archive
		ArchiveEnabled: getEnvBool("ARCHIVE_ENABLED", true),
		ArchiveTTLDays: getEnvInt("ARCHIVE_TTL_DAYS", 90),

		// Scheduler
		SchedulerEnabled:  getEnvBool("SCHEDULER_ENABLED", true),
		SchedulerInterval: time.Duration(getEnvInt("SCHEDULER_INTERVAL_MIN", 2)) * time.Minute,
	}, nil
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
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

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
