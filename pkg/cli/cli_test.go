package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wizzomafizzo/mfctext/pkg/config"
	"github.com/wizzomafizzo/mfctext/pkg/mifare"
)

func TestEncodeText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, EncodeText(&buf, "ABCDEFGHIJKLMNOPQ", 1))
	assert.Equal(t,
		"4: 4142434445464748494a4b4c4d4e4f50\n"+
			"5: 51000000000000000000000000000000\n",
		buf.String(),
	)

	buf.Reset()
	require.NoError(t, EncodeText(&buf, "x", 32))
	assert.Equal(t, "128: 78000000000000000000000000000000\n", buf.String())
}

func TestEncodeTextErrors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	assert.ErrorIs(t, EncodeText(&buf, "x", 0), mifare.ErrInvalidSector)
	assert.Error(t, EncodeText(&buf, "x", 40))
	assert.True(t, mifare.IsCapacityExceeded(EncodeText(&buf, string(make([]byte, 49)), 1)))
	assert.Empty(t, buf.String())
}

func TestDecodeFile(t *testing.T) {
	t.Parallel()

	card := mifare.NewBlankMemoryCard(mifare.Classic1K(), [4]byte{1, 2, 3, 4})
	_, err := mifare.WriteText(card, card.Layout(), 1, mifare.KeyB, mifare.DefaultKey, "from disk")
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "tag.mfd")
	require.NoError(t, os.WriteFile(path, card.Bytes(), 0644))

	var buf bytes.Buffer
	require.NoError(t, DecodeFile(&buf, config.DefaultUserConfig(), path))
	assert.Equal(t, "from disk\n", buf.String())

	blank := filepath.Join(dir, "blank.mfd")
	require.NoError(t, os.WriteFile(blank, mifare.NewBlankMemoryCard(mifare.ClassicMini(), [4]byte{1, 2, 3, 4}).Bytes(), 0644))
	buf.Reset()
	require.NoError(t, DecodeFile(&buf, nil, blank))
	assert.Equal(t, "No readable text found\n", buf.String())

	assert.Error(t, DecodeFile(&buf, nil, filepath.Join(dir, "missing.mfd")))
}
