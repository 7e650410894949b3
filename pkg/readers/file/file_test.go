package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wizzomafizzo/mfctext/pkg/mifare"
	"github.com/wizzomafizzo/mfctext/pkg/readers"
)

func writeDump(t *testing.T, path string, text string) {
	t.Helper()

	card := mifare.NewBlankMemoryCard(mifare.Classic1K(), [4]byte{0x11, 0x22, 0x33, 0x44})
	if text != "" {
		_, err := mifare.WriteText(card, card.Layout(), 1, mifare.KeyB, mifare.DefaultKey, text)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(path, card.Bytes(), 0644))
}

func nextScan(t *testing.T, iq <-chan readers.Scan) readers.Scan {
	t.Helper()

	select {
	case scan := <-iq:
		return scan
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for scan")
	}
	return readers.Scan{}
}

func TestFileReader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tag.mfd")
	device := "file:" + path
	writeDump(t, path, "hello file")

	r := NewReader(nil)
	iq := make(chan readers.Scan)
	require.NoError(t, r.Open(device, iq))
	defer func() {
		_ = r.Close()
	}()

	assert.True(t, r.Connected())
	assert.Equal(t, device, r.Device())

	scan := nextScan(t, iq)
	require.NoError(t, scan.Error)
	require.NotNil(t, scan.Token)
	assert.Equal(t, "hello file", scan.Token.Text)
	assert.Equal(t, "11223344", scan.Token.UID)
	assert.Equal(t, device, scan.Token.Source)

	writeDump(t, path, "changed")
	scan = nextScan(t, iq)
	require.NotNil(t, scan.Token)
	assert.Equal(t, "changed", scan.Token.Text)

	require.NoError(t, os.WriteFile(path, []byte{}, 0644))
	scan = nextScan(t, iq)
	assert.Nil(t, scan.Token)
	assert.NoError(t, scan.Error)
}

func TestFileReaderWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tag.mfd")
	writeDump(t, path, "")

	r := NewReader(nil)
	iq := make(chan readers.Scan, 10)
	require.NoError(t, r.Open("file:"+path, iq))
	defer func() {
		_ = r.Close()
	}()

	token, err := r.Write("**random:genesis")
	require.NoError(t, err)
	assert.Equal(t, "**random:genesis", token.Text)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "**random:genesis", string(data[64:80]))
}

func TestFileReaderInvalidDevice(t *testing.T) {
	t.Parallel()

	r := NewReader(nil)
	iq := make(chan readers.Scan)

	assert.Error(t, r.Open("file:relative/tag.mfd", iq))
	assert.Error(t, r.Open("pn532_uart:/dev/ttyUSB0", iq))
	assert.Error(t, r.Open("file:/does/not/exist/tag.mfd", iq))
	assert.False(t, r.Connected())
}

func TestWriteFileNoTag(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing.mfd")
	_, err := writeFile(path, "file:"+path, readers.DefaultTagOptions(), "x")
	assert.ErrorIs(t, err, readers.ErrNoTag)
}
