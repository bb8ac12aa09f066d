package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONRecord(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "satsend", func(context.Context) string { return "abc123" })

	log.Info(context.Background(), "circuit opened", "domain", "mempool.space", "failures", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "circuit opened", rec["msg"])
	assert.Equal(t, "satsend", rec["service"])
	assert.Equal(t, "mempool.space", rec["domain"])
	assert.Equal(t, float64(3), rec["failures"])
	assert.Equal(t, "abc123", rec["trace_id"])
	assert.Contains(t, rec["file"], "logger_test.go")
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "satsend", nil)

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	log.Warn(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}
