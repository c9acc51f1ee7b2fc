package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":     slog.LevelDebug,
		" WARNING ": slog.LevelWarn,
		"warn":      slog.LevelWarn,
		"error":     slog.LevelError,
		"":          slog.LevelInfo,
		"verbose":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewWithWriterFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn")
	logger.Info("dropped")
	logger.Warn("kept", "calendar", "postgres")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var record map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &record))
	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "postgres", record["calendar"])
}

func TestDefaultIsInfo(t *testing.T) {
	ctx := context.Background()
	logger := Default()
	assert.True(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.False(t, logger.Enabled(ctx, slog.LevelDebug))
}

func TestWithSession(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info").WithSession("+5511999990000").Info("turn handled", "state", "idle")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "+5511999990000", record["session_id"])
	assert.Equal(t, "idle", record["state"])

	var nilLogger *Logger
	assert.NotNil(t, nilLogger.WithSession("x"))
}
