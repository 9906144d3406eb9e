package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"selfheal/infrastructure/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_TextConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := newLogger(config.LoggerConfig{Level: "warn", Format: "text"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.WithField("session_id", "abc").Warn("Locator not found")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "Locator not found")
	assert.Contains(t, out, "session_id=abc")
}

func TestNewLogger_FileIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selfheal.log")
	var console bytes.Buffer

	logger, closer, err := newLogger(config.LoggerConfig{
		Level:   "info",
		Format:  "text",
		LogFile: path,
		MaxSize: 1,
	}, &console)
	require.NoError(t, err)

	logger.Debug("too verbose")
	logger.WithField("name", "submitBtn").Info("Locator healed")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Locator healed", entry["msg"])
	assert.Equal(t, "submitBtn", entry["name"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewLogger_InvalidSettings(t *testing.T) {
	_, _, err := newLogger(config.LoggerConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, _, err = newLogger(config.LoggerConfig{Level: "info", Format: "xml"}, &bytes.Buffer{})
	assert.EqualError(t, err, `invalid logger.format "xml"`)
}

func TestFileHookLevels(t *testing.T) {
	h := newFileHook(&bytes.Buffer{}, logrus.AllLevels[:logrus.WarnLevel+1])
	assert.Equal(t, []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}, h.Levels())
}
