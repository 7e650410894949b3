package mifare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayouts(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		layout  Layout
		sectors int
		blocks  int
		size    int
	}{
		"mini": {layout: ClassicMini(), sectors: 5, blocks: 20, size: SizeMini},
		"1k":   {layout: Classic1K(), sectors: 16, blocks: 64, size: Size1K},
		"4k":   {layout: Classic4K(), sectors: 40, blocks: 256, size: Size4K},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.sectors, tc.layout.SectorCount())
			assert.Equal(t, tc.blocks, tc.layout.TotalBlocks())
			assert.Equal(t, tc.size, tc.layout.Size())

			l, err := LayoutForSize(tc.size)
			require.NoError(t, err)
			assert.Equal(t, tc.layout, l)
		})
	}

	_, err := LayoutForSize(512)
	assert.Error(t, err)
}

func TestLayoutContiguous(t *testing.T) {
	t.Parallel()

	for _, l := range []Layout{ClassicMini(), Classic1K(), Classic4K()} {
		next := 0
		for i, s := range l.Sectors {
			assert.Equal(t, i, s.Index)
			assert.Equal(t, next, s.FirstBlock, "%s sector %d", l.Name, i)
			next += s.BlockCount
		}
	}
}

func TestSectorAddressing(t *testing.T) {
	t.Parallel()

	l := Classic4K()

	first, err := l.SectorToBlock(1)
	require.NoError(t, err)
	assert.Equal(t, 4, first)

	first, err = l.SectorToBlock(32)
	require.NoError(t, err)
	assert.Equal(t, 128, first)

	first, err = l.SectorToBlock(39)
	require.NoError(t, err)
	assert.Equal(t, 240, first)

	count, err := l.BlockCountInSector(31)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	count, err = l.BlockCountInSector(33)
	require.NoError(t, err)
	assert.Equal(t, 16, count)

	sector, err := l.BlockToSector(143)
	require.NoError(t, err)
	assert.Equal(t, 32, sector)

	_, err = l.BlockToSector(256)
	assert.Error(t, err)

	_, err = l.Sector(40)
	assert.ErrorIs(t, err, ErrInvalidSector)
	_, err = l.SectorToBlock(-1)
	assert.ErrorIs(t, err, ErrInvalidSector)

	assert.True(t, l.IsTrailer(3))
	assert.True(t, l.IsTrailer(143))
	assert.False(t, l.IsTrailer(4))
	assert.False(t, l.IsTrailer(300))
}

func TestDataBlockCount(t *testing.T) {
	t.Parallel()

	l := Classic4K()
	assert.Equal(t, 2, l.Sectors[0].DataBlockCount())
	assert.Equal(t, 3, l.Sectors[1].DataBlockCount())
	assert.Equal(t, 15, l.Sectors[35].DataBlockCount())
	assert.Equal(t, 7, l.Sectors[1].TrailerBlock())
}

func TestLayoutForSak(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		sak  byte
		size int
		ok   bool
	}{
		"mini":        {sak: 0x09, size: SizeMini, ok: true},
		"1k":          {sak: 0x08, size: Size1K, ok: true},
		"1k infineon": {sak: 0x88, size: Size1K, ok: true},
		"4k":          {sak: 0x18, size: Size4K, ok: true},
		"ntag":        {sak: 0x00, ok: false},
		"desfire":     {sak: 0x20, ok: false},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			l, ok := LayoutForSak(tc.sak)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.size, l.Size())
			}
		})
	}
}
