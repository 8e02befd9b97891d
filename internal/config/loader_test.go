package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := NewConfigLoader("", "SCRYINGTEST").LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.Capture.Mode)
	assert.Equal(t, "output", cfg.Capture.OutputDir)
	assert.Equal(t, 2*time.Second, cfg.Capture.RDPQuiet)
	assert.Equal(t, 10*time.Second, cfg.Capture.RDPNegotiation)
	assert.Equal(t, 1, cfg.Workers.RDP)
	assert.Equal(t, 1, cfg.Workers.Web)
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "scrying.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
capture:
  mode: vnc
  output_dir: from-file
  rdp_quiet: 5s
workers:
  rdp: 4
  web: 2
proxy:
  default: socks5://127.0.0.1:1080
`), 0o644))

	t.Setenv("SCRYINGTEST_WORKERS_RDP", "6")
	t.Setenv("SCRYINGTEST_CAPTURE_OUTPUT_DIR", "from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("output", "output", "")
	require.NoError(t, flags.Parse([]string{"--output", "from-flag"}))

	loader := NewConfigLoader(file, "SCRYINGTEST")
	require.NoError(t, loader.BindFlag("capture.output_dir", flags.Lookup("output")))

	cfg, err := loader.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Capture.OutputDir)
	assert.Equal(t, 6, cfg.Workers.RDP)
	assert.Equal(t, 2, cfg.Workers.Web)
	assert.Equal(t, "vnc", cfg.Capture.Mode)
	assert.Equal(t, 5*time.Second, cfg.Capture.RDPQuiet)
	assert.Equal(t, "socks5://127.0.0.1:1080", cfg.Proxy.RDPProxy())
	assert.Equal(t, "socks5://127.0.0.1:1080", cfg.Proxy.WebProxy())
	assert.Equal(t, file, loader.GetConfigPath())
}

func TestLoadConfig_ExplicitFileMissing(t *testing.T) {
	_, err := NewConfigLoader(filepath.Join(t.TempDir(), "nope.yaml"), "SCRYINGTEST").LoadConfig()
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, validateConfig(cfg))

	cfg.Workers.VNC = 0
	assert.Error(t, validateConfig(cfg))

	cfg = DefaultConfig()
	cfg.Capture.Mode = "ssh"
	assert.Error(t, validateConfig(cfg))

	cfg = DefaultConfig()
	cfg.Capture.Width = 800
	assert.Error(t, validateConfig(cfg))
}

func TestWriteYAML_MasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capture.VNCPassword = "hunter2"

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))
	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), "rdp_quiet: 2s")
	// 原配置不受影响
	assert.Equal(t, "hunter2", cfg.Capture.VNCPassword)
}

func TestEnvLoader_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SCRYINGENV_A=from-file\nSCRYINGENV_B=from-file\n"), 0o644))
	t.Setenv("SCRYINGENV_A", "from-process")
	t.Cleanup(func() { os.Unsetenv("SCRYINGENV_B") })

	loader := NewEnvLoader(envFile, filepath.Join(dir, "missing.env"))
	require.NoError(t, loader.Load())
	assert.Equal(t, "from-process", os.Getenv("SCRYINGENV_A"))
	assert.Equal(t, "from-file", os.Getenv("SCRYINGENV_B"))
	assert.Equal(t, []string{"SCRYINGENV_B"}, loader.LoadedKeys("SCRYINGENV_"))
}
