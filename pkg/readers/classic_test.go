package readers

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wizzomafizzo/mfctext/pkg/config"
	"github.com/wizzomafizzo/mfctext/pkg/mifare"
	"github.com/wizzomafizzo/mfctext/pkg/tokens"
)

var testUID = [4]byte{0xDE, 0xAD, 0xBE, 0xEF}

func TestTagOptionsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultUserConfig()
	cfg.SetKeyType("a")
	cfg.SetKey("A0:A1:A2:A3:A4:A5")
	cfg.SetWriteSector(3)
	cfg.SetDecoders([]string{"rot13", mifare.DecoderNdef})

	opts := TagOptionsFromConfig(cfg)
	assert.Equal(t, mifare.KeyA, opts.KeyType)
	assert.Equal(t, mifare.Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}, opts.Key)
	assert.Equal(t, 3, opts.WriteSector)
	assert.Equal(t, []string{mifare.DecoderNdef}, opts.Decoders)
}

func TestTagOptionsFromConfigInvalid(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultUserConfig()
	cfg.SetKeyType("C")
	cfg.SetKey("nothex")

	opts := TagOptionsFromConfig(cfg)
	assert.Equal(t, DefaultTagOptions(), opts)
	assert.Equal(t, DefaultTagOptions(), TagOptionsFromConfig(nil))
}

func TestTokenType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, tokens.TypeClassicMini, TokenType(mifare.ClassicMini()))
	assert.Equal(t, tokens.TypeClassic1K, TokenType(mifare.Classic1K()))
	assert.Equal(t, tokens.TypeClassic4K, TokenType(mifare.Classic4K()))
}

func TestWriteThenReadToken(t *testing.T) {
	t.Parallel()

	card := mifare.NewBlankMemoryCard(mifare.Classic1K(), testUID)
	opts := DefaultTagOptions()

	token, err := WriteToken(card, card.Layout(), card.UID(), "file:test", opts, "**launch.random:snes")
	require.NoError(t, err)
	assert.Equal(t, "**launch.random:snes", token.Text)
	assert.Equal(t, "deadbeef", token.UID)
	assert.Equal(t, tokens.TypeClassic1K, token.Type)
	assert.Equal(t, "file:test", token.Source)

	data, err := hex.DecodeString(token.Data)
	require.NoError(t, err)
	assert.Len(t, data, mifare.Size1K)
	assert.True(t, strings.HasPrefix(string(data[64:]), "**launch.random:"))
}

func TestReadTokenIgnoresTrailers(t *testing.T) {
	t.Parallel()

	card := mifare.NewBlankMemoryCard(mifare.ClassicMini(), testUID)
	opts := DefaultTagOptions()

	token, err := ReadToken(card, card.Layout(), card.UID(), "file:test", opts)
	require.NoError(t, err)
	assert.Equal(t, "", token.Text)

	opts.IncludeTrailers = true
	token, err = ReadToken(card, card.Layout(), card.UID(), "file:test", opts)
	require.NoError(t, err)
	assert.NotEqual(t, "", token.Text)
}

func TestWriteTokenTooLong(t *testing.T) {
	t.Parallel()

	card := mifare.NewBlankMemoryCard(mifare.Classic1K(), testUID)

	_, err := WriteToken(card, card.Layout(), card.UID(), "file:test", DefaultTagOptions(), strings.Repeat("x", 49))
	assert.ErrorIs(t, err, mifare.ErrCapacityExceeded)
}

func TestDecodeDump(t *testing.T) {
	t.Parallel()

	card := mifare.NewBlankMemoryCard(mifare.Classic4K(), testUID)
	_, err := mifare.WriteText(card, card.Layout(), 35, mifare.KeyB, mifare.DefaultKey, "far away sector")
	require.NoError(t, err)

	layout, text, decoder, err := DecodeDump(card.Bytes(), DefaultTagOptions())
	require.NoError(t, err)
	assert.Equal(t, mifare.Size4K, layout.Size())
	assert.Equal(t, "far away sector", text)
	assert.Equal(t, "printable", decoder)

	_, _, _, err = DecodeDump(make([]byte, 100), DefaultTagOptions())
	assert.Error(t, err)
}
