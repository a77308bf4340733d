package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewJSONFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nbp.log")
	log, closeOutput, err := New("debug", "json", path)
	require.NoError(t, err)
	defer closeOutput()

	log.Debug("tool call completed", zap.String("tool", "get_gold_price"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "tool call completed", entry["msg"])
	assert.Equal(t, "get_gold_price", entry["tool"])
}

func TestNewLevelFiltering(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nbp.log")
	log, closeOutput, err := New("warn", "console", path)
	require.NoError(t, err)
	defer closeOutput()

	log.Info("hidden")
	log.Warn("visible")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	t.Parallel()

	log, closeOutput, err := New("chatty", "", "stderr")
	require.NoError(t, err)
	defer closeOutput()
	assert.True(t, log.Core().Enabled(zap.InfoLevel))
	assert.False(t, log.Core().Enabled(zap.DebugLevel))
}

func TestNewUnwritableFile(t *testing.T) {
	t.Parallel()

	_, _, err := New("info", "json", filepath.Join(t.TempDir(), "missing", "nbp.log"))
	assert.Error(t, err)
}

func TestNewCloseReleasesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nbp.log")
	log, closeOutput, err := New("info", "console", path)
	require.NoError(t, err)

	log.Info("before close")
	closeOutput()
	log.Info("after close")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "before close")
	assert.NotContains(t, string(data), "after close")
}
