package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// StorageDriver selects postgres or the in-memory repositories.
	StorageDriver string

	// Provider configuration
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	EmbeddingModel     string
	EmbeddingDimension int
	EmbeddingBatchSize int
	ChatModel          string
	ChatMaxTokens      int
	ChatTemperature    float64
	ProviderTimeout    time.Duration
	ProviderRateLimit  float64
	ProviderMaxRetries int

	// Ingestion and retrieval
	ChunkSize     int
	ChunkOverlap  int
	RetrievalTopK int

	ServerPort string
	ServerHost string

	// Worker pool configuration
	IngestionWorkers   int
	IngestionQueueSize int

	// Observability
	JaegerEndpoint   string
	TraceSampleRatio float64
	ServiceVersion   string
	LogLevel         string
	LogFormat        string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "docqa"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		StorageDriver: getEnv("STORAGE_DRIVER", StoragePostgres),

		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 1536),
		EmbeddingBatchSize: getEnvInt("EMBEDDING_BATCH_SIZE", 100),
		ChatModel:          getEnv("CHAT_MODEL", "gpt-3.5-turbo"),
		ChatMaxTokens:      getEnvInt("CHAT_MAX_TOKENS", 500),
		ChatTemperature:    getEnvFloat("CHAT_TEMPERATURE", 0.3),
		ProviderTimeout:    getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
		ProviderRateLimit:  getEnvFloat("PROVIDER_RATE_LIMIT", 0),
		ProviderMaxRetries: getEnvInt("PROVIDER_MAX_RETRIES", 2),

		ChunkSize:     getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:  getEnvInt("CHUNK_OVERLAP", 200),
		RetrievalTopK: getEnvInt("RETRIEVAL_TOP_K", 5),

		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "localhost"),

		IngestionWorkers:   getEnvInt("INGESTION_WORKERS", 5),
		IngestionQueueSize: getEnvInt("INGESTION_QUEUE_SIZE", 100),

		JaegerEndpoint:   getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		TraceSampleRatio: getEnvFloat("TRACE_SAMPLE_RATIO", 1),
		ServiceVersion:   getEnv("SERVICE_VERSION", "dev"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
	}

	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges that the services rely on.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StoragePostgres, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StoragePostgres, StorageMemory, c.StorageDriver))
	}

	for _, v := range []struct {
		key   string
		value int
	}{
		{"EMBEDDING_DIMENSION", c.EmbeddingDimension},
		{"EMBEDDING_BATCH_SIZE", c.EmbeddingBatchSize},
		{"CHAT_MAX_TOKENS", c.ChatMaxTokens},
		{"CHUNK_SIZE", c.ChunkSize},
		{"RETRIEVAL_TOP_K", c.RetrievalTopK},
		{"INGESTION_WORKERS", c.IngestionWorkers},
		{"INGESTION_QUEUE_SIZE", c.IngestionQueueSize},
	} {
		if v.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", v.key, v.value))
		}
	}

	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if c.ChatTemperature < 0 || c.ChatTemperature > 2 {
		errs = append(errs, fmt.Errorf("CHAT_TEMPERATURE must be in [0, 2], got %g", c.ChatTemperature))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %s", c.ProviderTimeout))
	}
	if c.ProviderRateLimit < 0 {
		errs = append(errs, fmt.Errorf("PROVIDER_RATE_LIMIT must not be negative, got %g", c.ProviderRateLimit))
	}
	if c.ProviderMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("PROVIDER_MAX_RETRIES must not be negative, got %d", c.ProviderMaxRetries))
	}

	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		errs = append(errs, fmt.Errorf("TRACE_SAMPLE_RATIO must be in [0, 1], got %g", c.TraceSampleRatio))
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// Address is the host:port the HTTP server listens on.
func (c *Config) Address() string {
	return c.ServerHost + ":" + c.ServerPort
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseFloat(value, 64); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}
