package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"concord/internal/models"
	"concord/internal/version"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSONStdout(t *testing.T) {
	cfg := models.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}

	log, closer, err := Setup(cfg, version.Info{Version: "test"})
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.NotNil(t, log)
}

func TestSetup_TextStderr(t *testing.T) {
	cfg := models.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}

	log, closer, err := Setup(cfg, version.Info{})
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.NotNil(t, log)
	assert.True(t, log.Enabled(t.Context(), slog.LevelDebug))
}

func TestSetup_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concord.log")
	cfg := models.LoggingConfig{Level: "info", Format: "json", Output: "file", FilePath: path}

	log, closer, err := Setup(cfg, version.Info{Version: "v1.2.3"})
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer.Close()

	log.Info("hello from test")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
	assert.Contains(t, string(data), "v1.2.3")
}

func TestSetup_FileOutputMissingPath(t *testing.T) {
	cfg := models.LoggingConfig{Level: "info", Format: "json", Output: "file"}

	_, _, err := Setup(cfg, version.Info{})
	require.Error(t, err)
}

func TestSetup_InvalidLevel(t *testing.T) {
	cfg := models.LoggingConfig{Level: "loud", Format: "json", Output: "stdout"}

	_, _, err := Setup(cfg, version.Info{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"Warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
		} else {
			require.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}
