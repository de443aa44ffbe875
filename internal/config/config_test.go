package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 384, cfg.EmbedDimension)
	assert.Equal(t, 512, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 1000, cfg.VectorCacheSize)
	assert.Equal(t, 5000, cfg.VectorCeiling)
	assert.Equal(t, 100, cfg.PruneEvery)
	assert.Equal(t, 50, cfg.PruneBatchSize)
	assert.Equal(t, time.Second, cfg.DedupWindow)
	assert.Equal(t, 5*time.Second, cfg.DedupTTL)
	assert.Equal(t, "high", cfg.PIIRejectLevel)
	assert.Equal(t, 60*time.Second, cfg.ProviderCheckTTL)
	assert.Equal(t, 30*time.Second, cfg.BackendTimeout)
	assert.Equal(t, 60*time.Second, cfg.StreamTimeout)
	assert.Equal(t, 1, cfg.EngineConcurrency)
	assert.Equal(t, 10, cfg.HistorySize)
	assert.Equal(t, 10000, cfg.MemoryEventCap)
	assert.Equal(t, []string{"surreal", "sqlite", "memory"}, cfg.StorageBackends)
	assert.True(t, cfg.DecayKeepPinned)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OMNI_ENGINE_CONCURRENCY", "3")
	t.Setenv("OMNI_DEDUP_WINDOW", "250ms")
	t.Setenv("OMNI_STORAGE", " SQLite , memory ,")
	t.Setenv("OMNI_LOG_LEVEL", "warning")
	t.Setenv("OMNI_VECTOR_CEILING", "not-a-number")
	t.Setenv("OMNI_DECAY_KEEP_PINNED", "false")
	t.Setenv("OMNI_PII_REJECT_SEVERITY", "Medium")

	cfg := Load()

	assert.Equal(t, 3, cfg.EngineConcurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.DedupWindow)
	assert.Equal(t, []string{"sqlite", "memory"}, cfg.StorageBackends)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, 5000, cfg.VectorCeiling, "invalid values keep the default")
	assert.False(t, cfg.DecayKeepPinned)
	assert.Equal(t, "medium", cfg.PIIRejectLevel)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}

func TestLoadTagging(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadTagging("")
		require.NoError(t, err)
		assert.Equal(t, 6, cfg.MaxAutoTags)
		assert.Equal(t, 10, cfg.MaxTotalTags)
		assert.Equal(t, 2, cfg.MinLength)
		assert.Contains(t, cfg.StopWords, "the")
	})

	t.Run("file overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tagging.yaml")
		content := "stop_words: [foo, bar]\nmax_auto_tags: 3\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := LoadTagging(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"foo", "bar"}, cfg.StopWords)
		assert.Equal(t, 3, cfg.MaxAutoTags)
		assert.Equal(t, 10, cfg.MaxTotalTags, "unset keys keep defaults")
	})

	t.Run("missing file", func(t *testing.T) {
		cfg, err := LoadTagging(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Equal(t, DefaultTagging().MaxAutoTags, cfg.MaxAutoTags)
	})
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	Component(logger, "pipeline").Info("event processed", "event_id", "01ABC")
	logger.Debug("hidden")

	assert.Contains(t, stderr.String(), "event processed")
	assert.Contains(t, stderr.String(), "component=pipeline")
	assert.NotContains(t, stderr.String(), "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(file.String())), &entry))
	assert.Equal(t, "01ABC", entry["event_id"])
}
