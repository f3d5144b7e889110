package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendlog/internal/config"
	"spendlog/internal/log"
)

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := SetupLogger(&config.Config{LogLevel: "debug", LogFormat: "json"}, log.ComponentWorker)
	assert.Equal(t, log.ComponentWorker, logger.Component())
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	quiet := SetupLogger(&config.Config{LogLevel: "error"}, "")
	assert.False(t, quiet.Enabled(context.Background(), slog.LevelWarn))
	assert.Equal(t, log.ComponentApp, quiet.Component())
}

func TestNewNarrator(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelInfo, Format: "json", Output: &buf})

	assert.Nil(t, NewNarrator(&config.Config{InsightEnabled: false}, logger))

	n := NewNarrator(&config.Config{InsightEnabled: true}, logger)
	require.NotNil(t, n, "narration on without a key still narrates with fallback text")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.SplitN(buf.Bytes(), []byte("\n"), 2)[0], &entry))
	assert.Equal(t, "Insight generator unavailable, narration will use fallback text", entry["msg"])

	buf.Reset()
	n = NewNarrator(&config.Config{InsightEnabled: true, OpenAIAPIKey: "sk-test"}, logger)
	require.NotNil(t, n)
	assert.Empty(t, buf.String())
}
