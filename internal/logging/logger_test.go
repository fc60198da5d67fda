package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb/askdb/internal/config"
)

func newTestLogger(level, format string) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := &Logger{
		level:  parseLogLevel(level),
		format: format,
		output: buf,
		fields: make(map[string]interface{}),
	}

	return logger, buf
}

func TestLogLevelFiltering(t *testing.T) {
	logger, buf := newTestLogger("warn", "text")

	logger.Debug("not visible")
	logger.Info("not visible either")
	logger.Warn("visible warning")
	logger.Error("visible error")

	out := buf.String()
	assert.NotContains(t, out, "not visible")
	assert.Contains(t, out, "visible warning")
	assert.Contains(t, out, "visible error")
}

func TestTextFormat(t *testing.T) {
	logger, buf := newTestLogger("debug", "text")

	logger.WithField("question", "top artists").Infof("retrieved %d columns", 3)

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "retrieved 3 columns")
	assert.Contains(t, out, "question=top artists")
}

func TestJSONFormat(t *testing.T) {
	logger, buf := newTestLogger("debug", "json")

	logger.WithField("attempt", 2).Warn("scope violation")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "WARN", entry.Level)
	assert.Equal(t, "scope violation", entry.Message)
	assert.EqualValues(t, 2, entry.Fields["attempt"])
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	logger, buf := newTestLogger("debug", "text")

	child := logger.WithFields(map[string]interface{}{"stage": "retrieve"})
	child.Info("child message")
	logger.Info("parent message")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "stage=retrieve")
	assert.NotContains(t, string(lines[1]), "stage=retrieve")
}

func TestWithErrorNilPassthrough(t *testing.T) {
	logger, _ := newTestLogger("debug", "text")
	assert.Same(t, logger, logger.WithError(nil))
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "askdb.log")

	logger, err := NewLogger(config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "file",
		File:   path,
	})
	require.NoError(t, err)

	logger.Info("written to file")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestNewLoggerInvalidOutput(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "info", Format: "text", Output: "syslog"})
	assert.Error(t, err)
}

func TestGetLoggerFallback(t *testing.T) {
	globalLogger = nil
	logger := GetLogger()
	require.NotNil(t, logger)
	assert.Equal(t, InfoLevel, logger.level)
}
