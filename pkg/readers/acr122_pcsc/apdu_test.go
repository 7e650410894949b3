package acr122pcsc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wizzomafizzo/mfctext/pkg/mifare"
	"github.com/wizzomafizzo/mfctext/pkg/readers"
)

var (
	sw9000 = []byte{0x90, 0x00}
	sw6300 = []byte{0x63, 0x00}
)

func atrFor(name uint16) []byte {
	return []byte{
		0x3B, 0x8F, 0x80, 0x01, 0x80, 0x4F, 0x0C,
		0xA0, 0x00, 0x00, 0x03, 0x06, 0x03,
		byte(name >> 8), byte(name),
		0x00, 0x00, 0x00, 0x00, 0x6A,
	}
}

// fakeCard answers ACR122 storage card pseudo APDUs from an in-memory tag.
type fakeCard struct {
	card     *mifare.MemoryCard
	keys     map[byte]mifare.Key
	sent     [][]byte
	loadKeys int
}

func newFakeCard(card *mifare.MemoryCard) *fakeCard {
	return &fakeCard{card: card, keys: make(map[byte]mifare.Key)}
}

func (f *fakeCard) Transmit(apdu []byte) ([]byte, error) {
	f.sent = append(f.sent, append([]byte{}, apdu...))

	if len(apdu) < 5 || apdu[0] != 0xFF {
		return []byte{0x6E, 0x00}, nil
	}

	switch apdu[1] {
	case 0xCA:
		return append(f.card.Bytes()[0:4], sw9000...), nil
	case 0x82:
		var k mifare.Key
		copy(k[:], apdu[5:11])
		f.keys[apdu[3]] = k
		f.loadKeys++
		return sw9000, nil
	case 0x86:
		k, ok := f.keys[apdu[9]]
		if !ok {
			return sw6300, nil
		}
		err := f.card.Authenticate(int(apdu[7]), mifare.KeyType(apdu[8]), k)
		if err != nil {
			return sw6300, nil
		}
		return sw9000, nil
	case 0xB0:
		b, err := f.card.ReadBlock(int(apdu[3]))
		if err != nil {
			return sw6300, nil
		}
		return append(b[:], sw9000...), nil
	case 0xD6:
		var b mifare.Block
		copy(b[:], apdu[5:])
		err := f.card.WriteBlock(int(apdu[3]), b)
		if err != nil {
			return sw6300, nil
		}
		return sw9000, nil
	}

	return []byte{0x6D, 0x00}, nil
}

var testUID = [4]byte{0xDE, 0xAD, 0xBE, 0xEF}

func TestLayoutForAtr(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		atr  []byte
		size int
		ok   bool
	}{
		"1k":         {atr: atrFor(0x0001), size: mifare.Size1K, ok: true},
		"4k":         {atr: atrFor(0x0002), size: mifare.Size4K, ok: true},
		"mini":       {atr: atrFor(0x0026), size: mifare.SizeMini, ok: true},
		"ultralight": {atr: atrFor(0x0003)},
		"short":      {atr: []byte{0x3B, 0x8F}},
		"other rid":  {atr: append(atrFor(0x0001)[:7], bytes.Repeat([]byte{0x01}, 13)...)},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			layout, ok := layoutForAtr(tc.atr)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.size, layout.Size())
			}
		})
	}
}

func TestTransmitStatus(t *testing.T) {
	t.Parallel()

	card := newFakeCard(mifare.NewBlankMemoryCard(mifare.Classic1K(), testUID))

	uid, err := getUID(card)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", uid)

	_, err = transmit(card, []byte{0x00, 0xA4, 0x04, 0x00, 0x00})
	var swErr *StatusError
	require.ErrorAs(t, err, &swErr)
	assert.Equal(t, byte(0x6E), swErr.SW1)
}

func TestMifareCardAuthenticate(t *testing.T) {
	t.Parallel()

	card := newFakeCard(mifare.NewBlankMemoryCard(mifare.Classic1K(), testUID))
	mc := NewMifareCard(card)

	require.NoError(t, mc.Authenticate(7, mifare.KeyB, mifare.DefaultKey))
	require.NoError(t, mc.Authenticate(11, mifare.KeyA, mifare.DefaultKey))
	assert.Equal(t, 1, card.loadKeys)

	err := mc.Authenticate(7, mifare.KeyB, mifare.Key{1, 2, 3, 4, 5, 6})
	assert.ErrorIs(t, err, mifare.ErrAuthFailed)
	assert.Equal(t, 2, card.loadKeys)

	_, err = mc.ReadBlock(4)
	assert.Error(t, err)
}

func TestWriteAndReadCard(t *testing.T) {
	t.Parallel()

	mem := mifare.NewBlankMemoryCard(mifare.Classic1K(), testUID)
	card := newFakeCard(mem)
	atr := atrFor(0x0001)
	opts := readers.DefaultTagOptions()

	token, err := writeCard(card, atr, "acr122_pcsc:ACS ACR122U", opts, "**launch.system:nes")
	require.NoError(t, err)
	assert.Equal(t, "**launch.system:nes", token.Text)
	assert.Equal(t, "deadbeef", token.UID)

	token, err = readCard(card, atr, "acr122_pcsc:ACS ACR122U", opts)
	require.NoError(t, err)
	assert.Equal(t, "**launch.system:nes", token.Text)
	assert.Equal(t, "acr122_pcsc:ACS ACR122U", token.Source)
	assert.Len(t, token.Data, mifare.Size1K*2)
}

func TestReadCardNotClassic(t *testing.T) {
	t.Parallel()

	card := newFakeCard(mifare.NewBlankMemoryCard(mifare.Classic1K(), testUID))

	_, err := readCard(card, atrFor(0x0003), "acr122_pcsc:x", readers.DefaultTagOptions())
	assert.ErrorIs(t, err, readers.ErrNotClassic)
}
