package mifare

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUID = [4]byte{0xDE, 0xAD, 0xBE, 0xEF}

func TestParseKey(t *testing.T) {
	t.Parallel()

	k, err := ParseKey("")
	require.NoError(t, err)
	assert.Equal(t, DefaultKey, k)

	k, err = ParseKey("a0:a1:a2:a3:a4:a5")
	require.NoError(t, err)
	assert.Equal(t, Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}, k)
	assert.Equal(t, "A0A1A2A3A4A5", k.String())

	_, err = ParseKey("FFFF")
	assert.Error(t, err)

	_, err = ParseKey("zzzzzzzzzzzz")
	assert.Error(t, err)
}

func TestParseKeyType(t *testing.T) {
	t.Parallel()

	kt, err := ParseKeyType("a")
	require.NoError(t, err)
	assert.Equal(t, KeyA, kt)

	kt, err = ParseKeyType("")
	require.NoError(t, err)
	assert.Equal(t, KeyB, kt)

	_, err = ParseKeyType("C")
	assert.Error(t, err)
}

func TestReadBlankTag(t *testing.T) {
	t.Parallel()

	card := NewBlankMemoryCard(Classic1K(), testUID)
	assert.Equal(t, "deadbeef", card.UID())

	reads, err := ReadTag(card, card.Layout(), KeyB, DefaultKey)
	require.NoError(t, err)
	require.Len(t, reads, 16)

	for _, sr := range reads {
		assert.True(t, sr.Authenticated)
		assert.Len(t, sr.Blocks, 4)
	}

	// key A is masked when reading a trailer
	assert.Equal(t, make([]byte, 6), reads[1].Blocks[3][0:6])
	assert.Equal(t, card.Bytes()[7*BlockSize+6:8*BlockSize], reads[1].Blocks[3][6:])
}

func TestReadWrongKey(t *testing.T) {
	t.Parallel()

	card := NewBlankMemoryCard(ClassicMini(), testUID)

	reads, err := ReadTag(card, card.Layout(), KeyA, Key{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	require.Len(t, reads, 5)
	for _, sr := range reads {
		assert.False(t, sr.Authenticated)
		assert.Empty(t, sr.Blocks)
	}
}

func TestWriteThenRead(t *testing.T) {
	t.Parallel()

	card := NewBlankMemoryCard(Classic1K(), testUID)
	layout := card.Layout()

	written, err := WriteText(card, layout, 1, KeyB, DefaultKey, "hello mifare classic")
	require.NoError(t, err)
	assert.Len(t, written, 3)

	reads, err := ReadTag(card, layout, KeyB, DefaultKey)
	require.NoError(t, err)

	text := Decode(StripTrailers(layout, reads))
	assert.Equal(t, "hello mifare classic", text.String())
}

func TestWriteClearsStaleBlocks(t *testing.T) {
	t.Parallel()

	card := NewBlankMemoryCard(Classic1K(), testUID)
	layout := card.Layout()

	_, err := WriteText(card, layout, 2, KeyB, DefaultKey, strings.Repeat("z", 40))
	require.NoError(t, err)
	_, err = WriteText(card, layout, 2, KeyB, DefaultKey, "short")
	require.NoError(t, err)

	reads, err := ReadTag(card, layout, KeyB, DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, "short", Decode(StripTrailers(layout, reads)).String())
}

func TestWriteLeavesTrailerIntact(t *testing.T) {
	t.Parallel()

	card := NewBlankMemoryCard(Classic1K(), testUID)
	before := card.Bytes()

	_, err := WriteText(card, card.Layout(), 1, KeyB, DefaultKey, "abc")
	require.NoError(t, err)

	after := card.Bytes()
	assert.Equal(t, before[7*BlockSize:8*BlockSize], after[7*BlockSize:8*BlockSize])
}

func TestWriteErrors(t *testing.T) {
	t.Parallel()

	card := NewBlankMemoryCard(Classic1K(), testUID)
	layout := card.Layout()

	_, err := WriteText(card, layout, 0, KeyB, DefaultKey, "x")
	assert.ErrorIs(t, err, ErrInvalidSector)

	_, err = WriteText(card, layout, 16, KeyB, DefaultKey, "x")
	assert.ErrorIs(t, err, ErrInvalidSector)

	_, err = WriteText(card, layout, 1, KeyB, DefaultKey, strings.Repeat("x", 49))
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	_, err = WriteText(card, layout, 1, KeyA, Key{}, "x")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestWriteLargeSector(t *testing.T) {
	t.Parallel()

	card := NewBlankMemoryCard(Classic4K(), testUID)
	msg := strings.Repeat("0123456789", 20)

	written, err := WriteText(card, card.Layout(), 33, KeyB, DefaultKey, msg)
	require.NoError(t, err)
	assert.Len(t, written, 15)

	reads, err := ReadTag(card, card.Layout(), KeyB, DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, msg, Decode(StripTrailers(card.Layout(), reads)).String())
}

type failingCard struct {
	*MemoryCard
	failBlock int
}

func (c *failingCard) ReadBlock(block int) (Block, error) {
	if block == c.failBlock {
		return Block{}, errors.New("connection lost")
	}
	return c.MemoryCard.ReadBlock(block)
}

func TestReadStopsOnIOError(t *testing.T) {
	t.Parallel()

	card := &failingCard{
		MemoryCard: NewBlankMemoryCard(Classic1K(), testUID),
		failBlock:  9,
	}

	reads, err := ReadTag(card, card.Layout(), KeyB, DefaultKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block 9")
	assert.Len(t, reads, 2)
}

func TestDumpRoundTrip(t *testing.T) {
	t.Parallel()

	card := NewBlankMemoryCard(ClassicMini(), testUID)
	_, err := WriteText(card, card.Layout(), 3, KeyB, DefaultKey, "dump me")
	require.NoError(t, err)

	reads, err := ReadTag(card, card.Layout(), KeyB, DefaultKey)
	require.NoError(t, err)

	dump := Dump(card.Layout(), reads)
	require.Len(t, dump, SizeMini)

	clone, err := NewMemoryCard(dump)
	require.NoError(t, err)
	assert.Equal(t, card.UID(), clone.UID())
	assert.Equal(t, card.Bytes()[12*BlockSize:13*BlockSize], clone.Bytes()[12*BlockSize:13*BlockSize])
}

func TestDumpReads(t *testing.T) {
	t.Parallel()

	card := NewBlankMemoryCard(ClassicMini(), testUID)
	_, err := WriteText(card, card.Layout(), 2, KeyB, DefaultKey, "from a dump")
	require.NoError(t, err)

	reads := DumpReads(card.Layout(), card.Bytes())
	require.Len(t, reads, 5)
	for _, sr := range reads {
		assert.True(t, sr.Authenticated)
		assert.Len(t, sr.Blocks, 4)
	}

	assert.Equal(t, card.Bytes(), Dump(card.Layout(), reads))
	assert.Equal(t, "from a dump", Decode(StripTrailers(card.Layout(), reads)).String())
}
