package mifare

import "fmt"

const (
	BlockSize = 16

	// Sectors below this index hold 4 blocks, the rest hold 16 (4K only).
	smallSectorCount  = 32
	smallSectorBlocks = 4
	largeSectorBlocks = 16

	SizeMini = 320
	Size1K   = 1024
	Size4K   = 4096
)

type Block [BlockSize]byte

type Sector struct {
	Index      int
	FirstBlock int
	BlockCount int
}

// TrailerBlock is the absolute index of the sector trailer holding the keys
// and access bits.
func (s Sector) TrailerBlock() int {
	return s.FirstBlock + s.BlockCount - 1
}

// DataBlockCount is the number of blocks in the sector which can hold user
// data. The trailer is never counted, and neither is the manufacturer block
// in sector 0.
func (s Sector) DataBlockCount() int {
	if s.Index == 0 {
		return s.BlockCount - 2
	}
	return s.BlockCount - 1
}

type Layout struct {
	Name    string
	Sectors []Sector
}

func newLayout(name string, sectors int) Layout {
	l := Layout{Name: name}
	block := 0
	for i := 0; i < sectors; i++ {
		count := smallSectorBlocks
		if i >= smallSectorCount {
			count = largeSectorBlocks
		}
		l.Sectors = append(l.Sectors, Sector{
			Index:      i,
			FirstBlock: block,
			BlockCount: count,
		})
		block += count
	}
	return l
}

func ClassicMini() Layout {
	return newLayout("MIFARE Classic Mini", 5)
}

func Classic1K() Layout {
	return newLayout("MIFARE Classic 1K", 16)
}

func Classic4K() Layout {
	return newLayout("MIFARE Classic 4K", 40)
}

// LayoutForSize returns the layout matching a raw memory image size.
func LayoutForSize(size int) (Layout, error) {
	switch size {
	case SizeMini:
		return ClassicMini(), nil
	case Size1K:
		return Classic1K(), nil
	case Size4K:
		return Classic4K(), nil
	default:
		return Layout{}, fmt.Errorf("unknown memory size: %d bytes", size)
	}
}

// LayoutForSak returns the layout of a tag from its ISO 14443-3 select
// acknowledge byte, or false if the tag is not a MIFARE Classic.
func LayoutForSak(sak byte) (Layout, bool) {
	switch sak {
	case 0x09:
		return ClassicMini(), true
	case 0x08, 0x28, 0x88:
		return Classic1K(), true
	case 0x18, 0x38, 0x98:
		return Classic4K(), true
	default:
		return Layout{}, false
	}
}

func (l Layout) SectorCount() int {
	return len(l.Sectors)
}

func (l Layout) TotalBlocks() int {
	if len(l.Sectors) == 0 {
		return 0
	}
	last := l.Sectors[len(l.Sectors)-1]
	return last.FirstBlock + last.BlockCount
}

func (l Layout) Size() int {
	return l.TotalBlocks() * BlockSize
}

func (l Layout) Sector(index int) (Sector, error) {
	if index < 0 || index >= len(l.Sectors) {
		return Sector{}, fmt.Errorf("%w: %d", ErrInvalidSector, index)
	}
	return l.Sectors[index], nil
}

func (l Layout) SectorToBlock(index int) (int, error) {
	s, err := l.Sector(index)
	if err != nil {
		return 0, err
	}
	return s.FirstBlock, nil
}

func (l Layout) BlockCountInSector(index int) (int, error) {
	s, err := l.Sector(index)
	if err != nil {
		return 0, err
	}
	return s.BlockCount, nil
}

func (l Layout) BlockToSector(block int) (int, error) {
	for _, s := range l.Sectors {
		if block >= s.FirstBlock && block < s.FirstBlock+s.BlockCount {
			return s.Index, nil
		}
	}
	return 0, fmt.Errorf("block out of range: %d", block)
}

func (l Layout) IsTrailer(block int) bool {
	idx, err := l.BlockToSector(block)
	if err != nil {
		return false
	}
	return l.Sectors[idx].TrailerBlock() == block
}
