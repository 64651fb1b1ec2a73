// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/postpilot/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// lockedBuffer is a WriteSyncer over an in-memory buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Sync() error { return nil }

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ zapcore.WriteSyncer = (*lockedBuffer)(nil)

func TestInitialize(t *testing.T) {
	t.Run("console with colors", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		sink := &lockedBuffer{}

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "postpilot",
			Colors:      config.ColorConfig{Info: "green"},
		}, sink)
		GetLogger().Named("engine").Info("title filled")

		out := sink.String()
		assert.Contains(t, out, "title filled")
		assert.Contains(t, out, "\x1b[32mINFO"+colorReset)
		assert.Contains(t, out, "postpilot.engine.")
	})

	t.Run("json format", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		sink := &lockedBuffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "svc"}, sink)
		GetLogger().Info("structured", zap.String("platform", "naver"))

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(sink.String())), &entry))
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "naver", entry["platform"])
		assert.Equal(t, "svc", entry["logger"])
	})

	t.Run("level filtering and bad level", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		sink := &lockedBuffer{}

		Initialize(config.LoggerConfig{Level: "not-a-level", Format: "json"}, sink)
		GetLogger().Debug("hidden")
		GetLogger().Info("shown")

		assert.NotContains(t, sink.String(), "hidden")
		assert.Contains(t, sink.String(), "shown")
	})

	t.Run("only first initialization wins", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		first, second := &lockedBuffer{}, &lockedBuffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, first)
		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, second)
		GetLogger().Info("once")

		assert.Contains(t, first.String(), "once")
		assert.Empty(t, second.String())
	})

	t.Run("log file receives json", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		path := filepath.Join(t.TempDir(), "postpilot.log")

		Initialize(config.LoggerConfig{Level: "info", Format: "console", LogFile: path, MaxSize: 1}, &lockedBuffer{})
		GetLogger().Info("to file")
		Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"to file"`)
	})
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	assert.NotPanics(t, func() { logger.Info("fallback works") })
	assert.NotPanics(t, Sync)
}
