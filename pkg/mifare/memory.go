package mifare

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sync"
)

// Factory access bits plus the general purpose byte.
var defaultAccessBits = []byte{0xFF, 0x07, 0x80, 0x69}

// MemoryCard is a tag held in memory as a raw image. It enforces the keys
// stored in each sector trailer the same way a real tag does.
type MemoryCard struct {
	mu     sync.Mutex
	layout Layout
	data   []byte
	authed int
}

func NewMemoryCard(data []byte) (*MemoryCard, error) {
	layout, err := LayoutForSize(len(data))
	if err != nil {
		return nil, err
	}

	c := &MemoryCard{
		layout: layout,
		data:   make([]byte, len(data)),
		authed: -1,
	}
	copy(c.data, data)

	return c, nil
}

// NewBlankMemoryCard returns a tag as it ships from the factory: zeroed data
// blocks and every trailer set to the default keys.
func NewBlankMemoryCard(layout Layout, uid [4]byte) *MemoryCard {
	data := make([]byte, layout.Size())

	copy(data, uid[:])
	data[4] = uid[0] ^ uid[1] ^ uid[2] ^ uid[3] // BCC

	for _, s := range layout.Sectors {
		off := s.TrailerBlock() * BlockSize
		copy(data[off:], DefaultKey[:])
		copy(data[off+6:], defaultAccessBits)
		copy(data[off+10:], DefaultKey[:])
	}

	return &MemoryCard{
		layout: layout,
		data:   data,
		authed: -1,
	}
}

func (c *MemoryCard) Layout() Layout {
	return c.layout
}

func (c *MemoryCard) UID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return hex.EncodeToString(c.data[0:4])
}

// Bytes returns a copy of the raw image.
func (c *MemoryCard) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	data := make([]byte, len(c.data))
	copy(data, c.data)
	return data
}

func (c *MemoryCard) trailer(sector int) []byte {
	off := c.layout.Sectors[sector].TrailerBlock() * BlockSize
	return c.data[off : off+BlockSize]
}

func (c *MemoryCard) Authenticate(block int, kt KeyType, key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.authed = -1

	sector, err := c.layout.BlockToSector(block)
	if err != nil {
		return err
	}

	tr := c.trailer(sector)
	var stored []byte
	switch kt {
	case KeyA:
		stored = tr[0:6]
	case KeyB:
		stored = tr[10:16]
	default:
		return fmt.Errorf("invalid key type: %s", kt)
	}

	if !bytes.Equal(stored, key[:]) {
		return ErrAuthFailed
	}

	c.authed = sector
	return nil
}

func (c *MemoryCard) checkAuth(block int) error {
	sector, err := c.layout.BlockToSector(block)
	if err != nil {
		return err
	} else if sector != c.authed {
		return fmt.Errorf("%w: sector %d not authenticated", ErrAuthFailed, sector)
	}
	return nil
}

func (c *MemoryCard) ReadBlock(block int) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b Block
	if err := c.checkAuth(block); err != nil {
		return b, err
	}

	copy(b[:], c.data[block*BlockSize:])
	if c.layout.IsTrailer(block) {
		// key A is never readable
		copy(b[0:6], make([]byte, 6))
	}

	return b, nil
}

func (c *MemoryCard) WriteBlock(block int, data Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkAuth(block); err != nil {
		return err
	} else if block == 0 {
		return fmt.Errorf("%w: manufacturer block is read only", ErrInvalidSector)
	}

	copy(c.data[block*BlockSize:], data[:])
	return nil
}
