package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nccgroup/scrying/internal/config"
)

func TestInitLogger_FileKeepsVerboseLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "scrying.log")
	lm, err := InitLogger(&config.LogConfig{
		Level:     "warn",
		FileLevel: "debug",
		Format:    "text",
		Output:    "none",
		FilePath:  path,
		MaxSize:   1,
	})
	require.NoError(t, err)
	defer func() {
		lm.Close()
		LoggerInstance = nil
	}()

	assert.True(t, IsLevelEnabled(logrus.DebugLevel))
	Debugf("[Test] debug line %d", 1)
	LogCaptureOutcome(CaptureLogEntry{
		Protocol: "VNC",
		Target:   "192.0.2.1:5900",
		Status:   "failed",
		Kind:     "auth_required",
		Detail:   "server requires a password",
		Duration: 1500 * time.Millisecond,
	}, nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, "debug line 1"))
	assert.True(t, strings.Contains(text, "[VNC] 192.0.2.1:5900 failed (auth_required)"))
}

func TestInitLogger_InvalidFormat(t *testing.T) {
	_, err := InitLogger(&config.LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)

	_, err = InitLogger(nil)
	assert.Error(t, err)
}

func TestHelpersWithoutInstance(t *testing.T) {
	LoggerInstance = nil
	// 未初始化时不得 panic
	Infof("ignored %s", "message")
	WithField("k", "v").Info("ignored")
	LogCaptureOutcome(CaptureLogEntry{Status: "completed"}, nil)
	assert.False(t, IsLevelEnabled(logrus.InfoLevel))
}
