package mifare

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

type KeyType byte

const (
	KeyA KeyType = 0x60
	KeyB KeyType = 0x61
)

func (kt KeyType) String() string {
	switch kt {
	case KeyA:
		return "A"
	case KeyB:
		return "B"
	default:
		return fmt.Sprintf("%#x", byte(kt))
	}
}

func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return KeyA, nil
	case "B", "":
		return KeyB, nil
	default:
		return 0, fmt.Errorf("invalid key type: %s", s)
	}
}

type Key [6]byte

// DefaultKey is the factory transport key.
var DefaultKey = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

func (k Key) String() string {
	return strings.ToUpper(hex.EncodeToString(k[:]))
}

func ParseKey(s string) (Key, error) {
	var k Key
	s = strings.ReplaceAll(strings.TrimSpace(s), ":", "")
	if s == "" {
		return DefaultKey, nil
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("invalid key: %w", err)
	} else if len(b) != len(k) {
		return k, fmt.Errorf("invalid key length: %d", len(b))
	}

	copy(k[:], b)
	return k, nil
}

// Card is a connected MIFARE Classic tag. Drivers report a failed
// authentication with an error matching ErrAuthFailed.
type Card interface {
	Authenticate(block int, kt KeyType, key Key) error
	ReadBlock(block int) (Block, error)
	WriteBlock(block int, data Block) error
}

// ReadTag authenticates every sector of the layout and reads all of its
// blocks. Sectors which fail authentication are returned unauthenticated
// without blocks; any other error stops the read.
func ReadTag(card Card, layout Layout, kt KeyType, key Key) ([]SectorRead, error) {
	reads := make([]SectorRead, 0, layout.SectorCount())

	for _, s := range layout.Sectors {
		sr := SectorRead{Sector: s.Index}

		err := card.Authenticate(s.TrailerBlock(), kt, key)
		if errors.Is(err, ErrAuthFailed) {
			log.Debug().Msgf("sector %d: authentication with key %s failed", s.Index, kt)
			reads = append(reads, sr)
			continue
		} else if err != nil {
			return reads, fmt.Errorf("sector %d: %w", s.Index, err)
		}

		sr.Authenticated = true
		for i := 0; i < s.BlockCount; i++ {
			b, err := card.ReadBlock(s.FirstBlock + i)
			if err != nil {
				return reads, fmt.Errorf("block %d: %w", s.FirstBlock+i, err)
			}
			sr.Blocks = append(sr.Blocks, b)
		}

		reads = append(reads, sr)
	}

	return reads, nil
}

// StripTrailers drops sector trailers and the manufacturer block from reads
// taken with ReadTag.
func StripTrailers(layout Layout, reads []SectorRead) []SectorRead {
	stripped := make([]SectorRead, 0, len(reads))
	for _, sr := range reads {
		out := SectorRead{
			Sector:        sr.Sector,
			Authenticated: sr.Authenticated,
		}
		s, err := layout.Sector(sr.Sector)
		if err != nil {
			continue
		} else if len(sr.Blocks) != s.BlockCount {
			// already stripped, or a partial read
			out.Blocks = sr.Blocks
			stripped = append(stripped, out)
			continue
		}
		for i, b := range sr.Blocks {
			abs := s.FirstBlock + i
			if abs == 0 || abs == s.TrailerBlock() {
				continue
			}
			out.Blocks = append(out.Blocks, b)
		}
		stripped = append(stripped, out)
	}
	return stripped
}

// Dump flattens reads back into a memory image. Unauthenticated sectors are
// left zeroed.
func Dump(layout Layout, reads []SectorRead) []byte {
	data := make([]byte, layout.Size())
	for _, sr := range reads {
		s, err := layout.Sector(sr.Sector)
		if err != nil {
			continue
		}
		for i, b := range sr.Blocks {
			if i >= s.BlockCount {
				break
			}
			copy(data[(s.FirstBlock+i)*BlockSize:], b[:])
		}
	}
	return data
}

// DumpReads splits a memory image into reads, every sector authenticated.
func DumpReads(layout Layout, data []byte) []SectorRead {
	reads := make([]SectorRead, 0, layout.SectorCount())
	for _, s := range layout.Sectors {
		sr := SectorRead{Sector: s.Index, Authenticated: true}
		for i := 0; i < s.BlockCount; i++ {
			off := (s.FirstBlock + i) * BlockSize
			if off+BlockSize > len(data) {
				break
			}
			var b Block
			copy(b[:], data[off:off+BlockSize])
			sr.Blocks = append(sr.Blocks, b)
		}
		reads = append(reads, sr)
	}
	return reads
}

// WriteText encodes message into the data blocks of a single sector. Data
// blocks after the message are zeroed so no stale text is left behind.
// Returns the blocks written.
func WriteText(
	card Card,
	layout Layout,
	sector int,
	kt KeyType,
	key Key,
	message string,
) ([]Block, error) {
	s, err := layout.Sector(sector)
	if err != nil {
		return nil, err
	} else if s.Index == 0 {
		return nil, fmt.Errorf("%w: sector 0 is reserved", ErrInvalidSector)
	}

	capacity := s.DataBlockCount()
	blocks, err := EncodeBlocks(message, capacity)
	if err != nil {
		return nil, err
	}

	err = card.Authenticate(s.TrailerBlock(), kt, key)
	if err != nil {
		return nil, fmt.Errorf("sector %d with key %s: %w", s.Index, kt, err)
	}

	for len(blocks) < capacity {
		blocks = append(blocks, Block{})
	}

	for i, b := range blocks {
		err := card.WriteBlock(s.FirstBlock+i, b)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", s.FirstBlock+i, err)
		}
	}

	return blocks, nil
}
