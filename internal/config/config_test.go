package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, 1536, cfg.EmbeddingDimension)
	assert.Equal(t, "gpt-3.5-turbo", cfg.ChatModel)
	assert.Equal(t, 500, cfg.ChatMaxTokens)
	assert.InDelta(t, 0.3, cfg.ChatTemperature, 1e-9)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 5, cfg.RetrievalTopK)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "localhost:8080", cfg.Address())
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CHUNK_OVERLAP", "50")
	t.Setenv("PROVIDER_TIMEOUT", "5s")
	t.Setenv("CHAT_TEMPERATURE", "0.7")
	t.Setenv("INGESTION_WORKERS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	assert.InDelta(t, 0.7, cfg.ChatTemperature, 1e-9)
	assert.Equal(t, 5, cfg.IngestionWorkers)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			StorageDriver:      StorageMemory,
			EmbeddingDimension: 8,
			EmbeddingBatchSize: 10,
			ChatMaxTokens:      100,
			ChatTemperature:    0.3,
			ProviderTimeout:    time.Second,
			ChunkSize:          100,
			ChunkOverlap:       10,
			RetrievalTopK:      5,
			IngestionWorkers:   1,
			IngestionQueueSize: 1,
			LogFormat:          "console",
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.StorageDriver = "sqlite" }, "STORAGE_DRIVER"},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }, "CHUNK_SIZE"},
		{"overlap too large", func(c *Config) { c.ChunkOverlap = 100 }, "CHUNK_OVERLAP"},
		{"negative overlap", func(c *Config) { c.ChunkOverlap = -1 }, "CHUNK_OVERLAP"},
		{"zero workers", func(c *Config) { c.IngestionWorkers = 0 }, "INGESTION_WORKERS"},
		{"temperature", func(c *Config) { c.ChatTemperature = 3 }, "CHAT_TEMPERATURE"},
		{"timeout", func(c *Config) { c.ProviderTimeout = 0 }, "PROVIDER_TIMEOUT"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
		{"sample ratio", func(c *Config) { c.TraceSampleRatio = 1.5 }, "TRACE_SAMPLE_RATIO"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
