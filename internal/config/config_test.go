package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("buttcom", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Serial.Port)
	assert.Equal(t, time.Second, cfg.Pacing.CommandDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Pacing.CharDelay)
	assert.Equal(t, time.Second, cfg.Pacing.SettleDelay)
	assert.Equal(t, "hello", cfg.Session.Procedure)
	assert.True(t, cfg.Session.DrainOnClear)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Contains(t, cfg.Serial.PortPatterns, "/dev/ttyUSB*")

	assert.Error(t, cfg.RequirePort())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("BUTTCOM_SERIAL_PORT", "/dev/ttyUSB1")
	t.Setenv("BUTTCOM_SESSION_PROCEDURE", "calibrate")

	cfg, err := Load(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port)
	assert.Equal(t, "calibrate", cfg.Session.Procedure)
	assert.NoError(t, cfg.RequirePort())
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("BUTTCOM_SERIAL_PORT", "/dev/ttyUSB1")

	cfg, err := Load(newFlags(t,
		"--port", "/dev/ttyACM0",
		"--procedure", "disable-logging",
		"--char-delay", "250ms",
	))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, "disable-logging", cfg.Session.Procedure)
	assert.Equal(t, 250*time.Millisecond, cfg.Pacing.CharDelay)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	content := []byte(`
serial:
  port: COM3
pacing:
  command_delay: 2s
session:
  procedure: console
  drain_on_clear: false
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(newFlags(t, "--config", path))
	require.NoError(t, err)

	assert.Equal(t, "COM3", cfg.Serial.Port)
	assert.Equal(t, 2*time.Second, cfg.Pacing.CommandDelay)
	assert.Equal(t, "console", cfg.Session.Procedure)
	assert.False(t, cfg.Session.DrainOnClear)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingExplicitConfigFile(t *testing.T) {
	_, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Error(t, err)
}

func TestValidateRejectsUnknownProcedure(t *testing.T) {
	_, err := Load(newFlags(t, "--procedure", "reflash"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.procedure")
}

func TestValidateRejectsNegativeDelay(t *testing.T) {
	_, err := Load(newFlags(t, "--command-delay=-1s"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative")
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	_, err := Load(newFlags(t, "--log-level", "chatty"))
	assert.Error(t, err)
}
