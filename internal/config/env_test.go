package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "GS_PATHS", "GS_TIMEOUT", "WORKER_CONCURRENCY", "REDIS_URL", "PRICE_TABLE_FILE"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DefaultGhostscriptPaths, cfg.Ghostscript.Candidates)
	assert.Equal(t, "gs", cfg.Ghostscript.Binary)
	assert.Equal(t, 5*time.Minute, cfg.Ghostscript.Timeout)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Empty(t, cfg.Store.RedisURL)
	assert.Empty(t, cfg.Pricing.TableFile)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("GS_PATHS", "/a/gs: /b/gs ::")
	t.Setenv("GS_TIMEOUT", "30s")
	t.Setenv("WORKER_CONCURRENCY", "6")
	t.Setenv("GS_MAX_PROCS", "not-a-number")
	t.Setenv("LOG_PRETTY", "yes")

	cfg := FromEnv()
	assert.Equal(t, []string{"/a/gs", "/b/gs"}, cfg.Ghostscript.Candidates)
	assert.Equal(t, 30*time.Second, cfg.Ghostscript.Timeout)
	assert.Equal(t, 6, cfg.Worker.Concurrency)
	assert.Equal(t, 2, cfg.Ghostscript.MaxProcs)
	assert.True(t, cfg.Logging.Pretty)
}
