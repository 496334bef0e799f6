package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("dropping unparsable row", "source", "ufo", "row", 7)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dropping unparsable row", entry["msg"])
	assert.Equal(t, "ufo", entry["source"])
	assert.InDelta(t, 7, entry["row"], 0)
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "info", "TEXT").Info("run complete", "run_id", "abc")
	assert.Contains(t, buf.String(), "msg=\"run complete\"")
	assert.Contains(t, buf.String(), "run_id=abc")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}

func TestNewMetricsForTesting_Isolated(t *testing.T) {
	m1, reg1 := NewMetricsForTesting()
	m2, _ := NewMetricsForTesting()

	m1.RowsRead.WithLabelValues("ufo").Add(3)
	assert.InDelta(t, 3, testutil.ToFloat64(m1.RowsRead.WithLabelValues("ufo")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m2.RowsRead.WithLabelValues("ufo")), 0)

	n, err := testutil.GatherAndCount(reg1, "sighting_etl_rows_read_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sighting_etl.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "go_goroutines")
}
