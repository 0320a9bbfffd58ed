package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	dec := json.NewDecoder(buf)
	for dec.More() {
		var entry LogEntry
		require.NoError(t, dec.Decode(&entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_EmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("chat-service").WithOutput(&buf).WithLevel(LevelInfo)

	logger.Info(context.Background(), "Run completed", map[string]interface{}{
		"status": "success",
	})

	entries := decodeLogLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "Run completed", entries[0].Message)
	assert.Equal(t, "chat-service", entries[0].Component)
	assert.Equal(t, "success", entries[0].Fields["status"])
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestLogger_MinLevelFiltersEntries(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("chat-service").WithOutput(&buf).WithLevel(LevelWarn)

	ctx := context.Background()
	logger.Debug(ctx, "noise", nil)
	logger.Info(ctx, "noise", nil)
	logger.Warn(ctx, "kept", nil)
	logger.Error(ctx, "kept", nil, nil)

	entries := decodeLogLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0].Level)
	assert.Equal(t, "error", entries[1].Level)
}

func TestLogger_ErrorFoldsErrIntoFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("query-executor").WithOutput(&buf).WithLevel(LevelInfo)

	logger.Error(context.Background(), "Query failed", errors.New("connection refused"), nil)

	entries := decodeLogLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "connection refused", entries[0].Fields["error"])
}

func TestLogger_CorrelationAndUserIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("chat-service").WithOutput(&buf).WithLevel(LevelInfo)

	ctx := WithCorrelationID(context.Background(), "corr-123")
	ctx = WithUserID(ctx, "user-7")
	logger.Info(ctx, "Run started", nil)

	entries := decodeLogLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "corr-123", entries[0].CorrelationID)
	assert.Equal(t, "user-7", entries[0].UserID)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{" error ", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}
