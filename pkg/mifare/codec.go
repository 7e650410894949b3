package mifare

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// SectorRead is the result of reading one sector from a tag. Blocks is empty
// when authentication failed.
type SectorRead struct {
	Sector        int
	Authenticated bool
	Blocks        []Block
}

// ExtractedText holds the printable runs found on a tag in block scan order.
type ExtractedText struct {
	Runs []string
}

func (t ExtractedText) String() string {
	return strings.Join(t.Runs, "")
}

func (t ExtractedText) Empty() bool {
	return len(t.Runs) == 0
}

func printable(b byte) bool {
	return b >= 0x20 && b <= 0x7E && b != '@'
}

// ExtractRuns returns every maximal run of printable ASCII in data, excluding
// the '@' character.
func ExtractRuns(data []byte) []string {
	var runs []string
	start := -1
	for i, b := range data {
		if printable(b) {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			runs = append(runs, string(data[start:i]))
			start = -1
		}
	}
	if start != -1 {
		runs = append(runs, string(data[start:]))
	}
	return runs
}

// Decode scans the blocks of every authenticated sector, ascending by sector
// then block, and collects their printable runs.
func Decode(reads []SectorRead) ExtractedText {
	sorted := make([]SectorRead, len(reads))
	copy(sorted, reads)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Sector < sorted[j].Sector
	})

	var text ExtractedText
	for _, sr := range sorted {
		if !sr.Authenticated {
			continue
		}
		for _, b := range sr.Blocks {
			text.Runs = append(text.Runs, ExtractRuns(b[:])...)
		}
	}
	return text
}

// Encode converts message to ISO-8859-1 and splits it into zero padded chunks
// of blockSize bytes. It fails if more than capacity chunks are needed.
func Encode(message string, blockSize int, capacity int) ([][]byte, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("invalid block size: %d", blockSize)
	}

	data, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(message))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnencodable, err)
	}

	required := (len(data) + blockSize - 1) / blockSize
	if required > capacity {
		return nil, &CapacityError{
			Required: required,
			Capacity: capacity,
		}
	}

	chunks := make([][]byte, 0, required)
	for start := 0; start < len(data); start += blockSize {
		chunk := make([]byte, blockSize)
		copy(chunk, data[start:])
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// EncodeBlocks is Encode fixed to the tag block size.
func EncodeBlocks(message string, capacity int) ([]Block, error) {
	chunks, err := Encode(message, BlockSize, capacity)
	if err != nil {
		return nil, err
	}

	blocks := make([]Block, len(chunks))
	for i, c := range chunks {
		copy(blocks[i][:], c)
	}
	return blocks, nil
}

func IsCapacityExceeded(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}
