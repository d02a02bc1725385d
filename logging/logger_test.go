package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogAdapter_WritesStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil)))

	logger.Info("runner finished", "worker", 3, "canceled", false)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "runner finished", record["msg"])
	assert.Equal(t, float64(3), record["worker"])
	assert.Equal(t, false, record["canceled"])
}

func TestFanoutLogger_DeliversToAllHandlers(t *testing.T) {
	var a, b bytes.Buffer
	logger := NewFanoutLogger(
		slog.NewJSONHandler(&a, nil),
		slog.NewTextHandler(&b, nil),
	)

	logger.Warn("queue full")

	assert.Contains(t, a.String(), "queue full")
	assert.Contains(t, b.String(), "queue full")
}

func TestZerologAdapter_AttachesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologAdapter(zerolog.New(&buf))

	logger.Error("think failed", "thinker", "t-1")

	line := buf.String()
	assert.True(t, strings.Contains(line, "think failed"))
	assert.True(t, strings.Contains(line, "t-1"))
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}
