package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notnil/vcucan"
	"github.com/notnil/vcucan/canbus"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vcusim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VCUSIM_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Log, cfg.Log)
	assert.Equal(t, def.Bus, cfg.Bus)
	assert.Equal(t, def.TickInterval, cfg.TickInterval)
	assert.Equal(t, def.Inbound, cfg.Inbound)
	assert.Equal(t, def.Outbound, cfg.Outbound)
	assert.Equal(t, vcucan.ContinueOnError, cfg.Policy())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log:
  level: Warning
  format: JSON
  file: /var/log/vcusim.log
  rotate:
    max_size_mb: 5
bus:
  kind: SocketCAN
  iface: vcan0
  record: /tmp/trace.cbor
tick_interval: 5ms
error_policy: abort
status:
  listen: ""
inbound:
  - id: 0x0AA
    timeout: 500ms
  - id: 0x200
    id_high: 0x20F
outbound:
  - id: 0x120
    period: 100ms
    data: [1, 0, 2]
  - id: 0x18FF50E5
peer:
  enable: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, LogConfig{
		Level:  "warn",
		Format: "json",
		File:   "/var/log/vcusim.log",
		Rotate: RotateConfig{MaxSizeMB: 5, MaxBackups: 3, MaxAgeDays: 28},
	}, cfg.Log)
	assert.Equal(t, "socketcan", cfg.Bus.Kind)
	assert.Equal(t, "vcan0", cfg.Bus.Iface)
	assert.Equal(t, canbus.DefaultQueueLen, cfg.Bus.QueueLen)
	assert.Equal(t, 5*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, vcucan.AbortOnError, cfg.Policy())
	assert.Empty(t, cfg.Status.Listen)
	assert.False(t, cfg.Peer.Enable)

	require.Len(t, cfg.Inbound, 2)
	assert.Equal(t, InboundConfig{ID: 0x0AA, Timeout: 500 * time.Millisecond}, cfg.Inbound[0])
	lo, hi := cfg.Inbound[1].Range()
	assert.Equal(t, uint32(0x200), lo)
	assert.Equal(t, uint32(0x20F), hi)
	assert.Zero(t, cfg.Inbound[1].Timeout)

	require.Len(t, cfg.Outbound, 2)
	assert.Equal(t, []byte{1, 0, 2}, cfg.Outbound[0].Data)
	assert.Equal(t, 100*time.Millisecond, cfg.Outbound[0].Period)
	assert.Empty(t, cfg.Outbound[1].Data)
	lo, hi = cfg.Outbound[1].Range()
	assert.Equal(t, lo, hi)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "tick_interval: 5ms\n")
	t.Setenv("VCUSIM_TICK_INTERVAL", "20ms")
	t.Setenv("VCUSIM_LOG_LEVEL", "warn")
	t.Setenv("VCUSIM_BUS_QUEUE_LEN", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Bus.QueueLen)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, "error_policy: abort\n")
	t.Setenv("VCUSIM_CONFIG", path)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, vcucan.AbortOnError, cfg.Policy())
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"log level":        "log:\n  level: loud\n",
		"log format":       "log:\n  format: xml\n",
		"log rotate":       "log:\n  rotate:\n    max_size_mb: -1\n",
		"bus kind":         "bus:\n  kind: serial\n",
		"socketcan iface":  "bus:\n  kind: socketcan\n  iface: \"\"\n",
		"tick interval":    "tick_interval: 0s\n",
		"error policy":     "error_policy: retry\n",
		"inbound id":       "inbound:\n  - id: 0x20000000\n",
		"inbound range":    "inbound:\n  - id: 0x20\n    id_high: 0x10\n",
		"inbound timeout":  "inbound:\n  - id: 0x20\n    timeout: -1s\n",
		"outbound period":  "outbound:\n  - id: 0x20\n    period: -1s\n",
		"outbound payload": "outbound:\n  - id: 0x20\n    data: [1,2,3,4,5,6,7,8,9]\n",
		"peer period":      "peer:\n  enable: true\n  period: 0s\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "bus: [unclosed\n"))
	assert.ErrorContains(t, err, "read config")
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() { MustLoad(writeConfig(t, "tick_interval: -1s\n")) })
}
