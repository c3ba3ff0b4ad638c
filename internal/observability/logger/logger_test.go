package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sportsdatalake/internal/observability/types"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"verbose", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestJSONLogger_Info(t *testing.T) {
	var buf bytes.Buffer
	log := New("pipeline.fetcher", "test", "info", &buf, types.Fields{"version": "1.0.0"})

	ctx := types.WithRunID(context.Background(), "run-1")
	log.Info(ctx, "API data fetched", types.Fields{"bytes": 42})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "pipeline.fetcher", entry["service"])
	assert.Equal(t, "API data fetched", entry["message"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Equal(t, float64(42), entry["bytes"])
}

func TestJSONLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New("svc", "test", "warn", &buf, nil)

	ctx := context.Background()
	log.Debug(ctx, "debug", nil)
	log.Info(ctx, "info", nil)
	log.Warn(ctx, "warn", nil)
	log.Error(ctx, "error", errors.New("boom"), nil)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "error", entries[1]["level"])
	assert.Equal(t, "boom", entries[1]["error"])
	assert.Equal(t, "*errors.errorString", entries[1]["error_type"])
}

func TestJSONLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	parent := New("svc", "test", "info", &buf, types.Fields{"component": "catalog"})
	child := parent.WithFields(types.Fields{"crawler": "sportsdata-crawler"})

	ctx := context.Background()
	child.Info(ctx, "child", nil)
	parent.Info(ctx, "parent", nil)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "sportsdata-crawler", entries[0]["crawler"])
	assert.Equal(t, "catalog", entries[0]["component"])
	assert.NotContains(t, entries[1], "crawler")
}

func TestJSONLogger_UnmarshalableField(t *testing.T) {
	var buf bytes.Buffer
	log := New("svc", "test", "info", &buf, nil)

	log.Info(context.Background(), "bad field", types.Fields{"ch": make(chan int)})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "bad field", entries[0]["message"])
	assert.Contains(t, entries[0], "log_error")
}
