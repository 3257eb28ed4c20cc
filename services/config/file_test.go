//go:build !rp2040 && !rp2350

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "probe.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadFileDefaultsAndValues(t *testing.T) {
	p := writeFile(t, `
ssid: lab
psk: secret
cors_origins: ["http://a", "http://b"]
log:
  format: json
`)
	f, err := LoadFile(p)
	require.NoError(t, err)

	assert.Equal(t, "lab", f.SSID)
	assert.Equal(t, "pool.ntp.org", f.NTPServer)
	assert.Equal(t, "UTC", f.Timezone)
	assert.Equal(t, ":8080", f.ListenAddr)
	assert.Equal(t, "json", f.Log.Format)
	assert.Equal(t, "info", f.Log.Level)
	assert.InDelta(t, 20.3, f.Sim.Temperature, 1e-9)

	v, err := f.Get(KeyCORSOrigins)
	require.NoError(t, err)
	assert.Equal(t, "http://a,http://b", v)
}

func TestLoadFileEnvOverride(t *testing.T) {
	p := writeFile(t, "ssid: lab\npsk: secret\n")
	t.Setenv("COBITIS_SSID", "field")
	t.Setenv("COBITIS_TIMEZONE", "UTC+02:00")

	f, err := LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "field", f.SSID)

	tz, err := f.Get(KeyTimezone)
	require.NoError(t, err)
	assert.Equal(t, "UTC+02:00", tz)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileGetMissingKey(t *testing.T) {
	f := &File{}
	_, err := f.Get(KeyPSK)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.Get("unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSampleSimConfigIsComplete(t *testing.T) {
	f, err := LoadFile(filepath.Join("..", "..", "config", "sim.yaml"))
	require.NoError(t, err)

	got, err := Require(f, KeySSID, KeyPSK, KeyNTPServer, KeyTimezone)
	require.NoError(t, err)
	assert.Equal(t, "bench", got[KeySSID])
	assert.Equal(t, "Europe/London", got[KeyTimezone])
	assert.Equal(t, -58, f.Sim.RSSI)
}
