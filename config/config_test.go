package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "clunetd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
device:
  id: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint8(5), cfg.Device.ID)
	assert.Equal(t, uint8(16), cfg.Device.BitTicks)
	assert.Equal(t, 128, cfg.Buffers.SendSize)
	assert.Equal(t, 128, cfg.Buffers.ReadSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "", cfg.Bridge.ListenAddr)
	assert.Equal(t, "clunet-5", cfg.Bridge.ServiceName)
}

func TestLoadHonoursExplicitValues(t *testing.T) {
	path := writeConfig(t, `
device:
  id: 9
  name: pump-controller
  bit_ticks: 20
line:
  chip: gpiochip2
  line: 17
buffers:
  send_size: 64
  read_size: 64
log:
  level: debug
  json: true
bridge:
  listen_addr: ":9000"
  advertise: true
  service_name: my-bridge
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint8(9), cfg.Device.ID)
	assert.Equal(t, "pump-controller", cfg.Device.Name)
	assert.Equal(t, uint8(20), cfg.Device.BitTicks)
	assert.Equal(t, "gpiochip2", cfg.Line.Chip)
	assert.Equal(t, 17, cfg.Line.Line)
	assert.Equal(t, 64, cfg.Buffers.SendSize)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, ":9000", cfg.Bridge.ListenAddr)
	assert.True(t, cfg.Bridge.Advertise)
	assert.Equal(t, "my-bridge", cfg.Bridge.ServiceName)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
