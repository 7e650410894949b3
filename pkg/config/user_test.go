package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserConfigCreatesDefault(t *testing.T) {
	iniPath := filepath.Join(t.TempDir(), "mfctext.ini")
	t.Setenv(UserConfigEnv, iniPath)

	cfg, err := NewUserConfig(DefaultUserConfig())
	require.NoError(t, err)
	assert.Equal(t, iniPath, cfg.IniPath)
	assert.FileExists(t, iniPath)

	data, err := os.ReadFile(iniPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[mifare]")
	assert.Contains(t, string(data), "key_type = B")
	assert.Contains(t, string(data), "port = "+DefaultApiPort)
}

func TestNewUserConfigLoads(t *testing.T) {
	iniPath := filepath.Join(t.TempDir(), "mfctext.ini")
	t.Setenv(UserConfigEnv, iniPath)

	contents := `[mfctext]
reader = pn532_uart:/dev/ttyUSB0
reader = file:/tmp/tag.mfd
probe_device = false
debug = true

[mifare]
key = A0A1A2A3A4A5
key_type = a
write_sector = 2
decoders = ndef
decoders = printable

[api]
port = 8000
`
	require.NoError(t, os.WriteFile(iniPath, []byte(contents), 0644))

	cfg, err := NewUserConfig(DefaultUserConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"pn532_uart:/dev/ttyUSB0", "file:/tmp/tag.mfd"}, cfg.GetReader())
	assert.False(t, cfg.GetProbeDevice())
	assert.True(t, cfg.GetDebug())
	assert.Equal(t, "A0A1A2A3A4A5", cfg.GetKey())
	assert.Equal(t, "a", cfg.GetKeyType())
	assert.Equal(t, 2, cfg.GetWriteSector())
	assert.Equal(t, []string{"ndef", "printable"}, cfg.GetDecoders())
	assert.Equal(t, "8000", cfg.GetApiPort())
	assert.True(t, cfg.GetDiscovery())
	assert.Empty(t, cfg.GetInstanceName())
}

func TestNewUserConfigInvalidValue(t *testing.T) {
	iniPath := filepath.Join(t.TempDir(), "mfctext.ini")
	t.Setenv(UserConfigEnv, iniPath)

	require.NoError(t, os.WriteFile(iniPath, []byte("[mifare]\nwrite_sector = two\n"), 0644))

	_, err := NewUserConfig(DefaultUserConfig())
	assert.Error(t, err)
}

func TestUserConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := &UserConfig{}
	assert.Equal(t, DefaultWriteSector, cfg.GetWriteSector())
	assert.Equal(t, DefaultApiPort, cfg.GetApiPort())

	cfg.SetWriteSector(0)
	assert.Equal(t, DefaultWriteSector, cfg.GetWriteSector())

	cfg.SetWriteSector(5)
	assert.Equal(t, 5, cfg.GetWriteSector())

	cfg.SetKeyType("a")
	assert.Equal(t, "A", cfg.GetKeyType())
}

func TestSaveConfigRoundTrip(t *testing.T) {
	t.Parallel()

	iniPath := filepath.Join(t.TempDir(), "mfctext.ini")
	cfg := DefaultUserConfig()
	cfg.IniPath = iniPath
	cfg.SetReader([]string{"acr122_pcsc:ACS ACR122U"})
	cfg.SetDecoders([]string{"utf8"})
	require.NoError(t, cfg.SaveConfig())

	loaded := DefaultUserConfig()
	loaded.IniPath = iniPath
	require.NoError(t, loaded.LoadConfig())
	assert.Equal(t, []string{"acr122_pcsc:ACS ACR122U"}, loaded.GetReader())
	assert.Equal(t, []string{"utf8"}, loaded.GetDecoders())
	assert.Equal(t, "FFFFFFFFFFFF", loaded.GetKey())
}
