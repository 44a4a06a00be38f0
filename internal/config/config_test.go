package config

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.Equal(t, 60, cfg.QueueCapacity)
	assert.Equal(t, 1200, cfg.MTU)
	assert.Equal(t, "testsrc", cfg.Source)
	assert.True(t, cfg.Capture())
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("QUEUE_CAPACITY", "10")
	t.Setenv("ICE_SERVERS", "stun:a:3478, turn:b:3478 ,")
	t.Setenv("SOURCE", "none")
	t.Setenv("FPS", "not-a-number")

	cfg, err := Load(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 10, cfg.QueueCapacity)
	assert.Equal(t, []string{"stun:a:3478", "turn:b:3478"}, cfg.ICEServers)
	assert.False(t, cfg.Capture())
	assert.Equal(t, 30, cfg.FPS)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	cfg, err := Load([]string{"-p", "7000", "--source", "/tmp/a.mp4", "--log-format=json"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "/tmp/a.mp4", cfg.Source)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadHelp(t *testing.T) {
	_, err := Load([]string{"--help"}, io.Discard)
	assert.True(t, errors.Is(err, pflag.ErrHelp))
}

func TestLoadRejects(t *testing.T) {
	for _, args := range [][]string{
		{"--port", "0"},
		{"--queue", "0"},
		{"--mtu", "100"},
		{"--mtu", "70000"},
		{"--mtu", "1501"},
		{"--fps", "0"},
		{"--width", "-1"},
		{"--unknown"},
		{"stray"},
	} {
		_, err := Load(args, io.Discard)
		assert.Error(t, err, "%v", args)
	}
}

func TestMTUBounds(t *testing.T) {
	cfg, err := Load([]string{"--mtu", "1500"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1500, cfg.MTU)

	cfg.MTU = 65536 + 1200
	assert.Error(t, cfg.Validate())
}

func TestValidateSkipsVideoWhenCaptureDisabled(t *testing.T) {
	cfg, err := Load([]string{"--source", "none", "--fps", "0"}, io.Discard)
	require.NoError(t, err)
	assert.Zero(t, cfg.FPS)
}
