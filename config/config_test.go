package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "REDIS_DB", "KAFKA_BROKERS", "IDEMPOTENCY_TTL_SECONDS", "RUN_MIGRATIONS", "JWT_SECRET", "TRACE_SAMPLE_RATIO", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 24*time.Hour, cfg.Business.IdempotencyTTL)
	assert.True(t, cfg.Database.RunMigrations)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, 1.0, cfg.Observ.TraceSampleRatio)
	assert.Empty(t, cfg.Observ.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PRODUCT_CACHE_TTL_SECONDS", "60")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.25")
	t.Setenv("LOG_LEVEL", "warn")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Minute, cfg.Business.ProductCacheTTL)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns, "falls back on unparsable values")
	assert.False(t, cfg.Database.RunMigrations)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 0.25, cfg.Observ.TraceSampleRatio)
	assert.Equal(t, "warn", cfg.Observ.LogLevel)
}
