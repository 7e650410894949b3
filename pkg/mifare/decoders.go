package mifare

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hsanjuan/go-ndef"
	"golang.org/x/text/encoding/charmap"
)

const (
	DecoderPrintable = "printable"
	DecoderNdef      = "ndef"
	DecoderUtf8      = "utf8"
	DecoderLatin1    = "latin1"
	DecoderAscii     = "ascii"
)

const (
	tlvNull       = 0x00
	tlvNdef       = 0x03
	tlvTerminator = 0xFE
)

// Decoder turns the sectors read from a tag into text. An empty result means
// the decoder found nothing it understood.
type Decoder func(layout Layout, reads []SectorRead) string

var decoders = map[string]Decoder{
	DecoderPrintable: decodePrintable,
	DecoderNdef:      decodeNdef,
	DecoderUtf8:      decodeUtf8,
	DecoderLatin1:    decodeLatin1,
	DecoderAscii:     decodeAscii,
}

var DefaultDecoders = []string{DecoderPrintable}

func ValidDecoder(name string) bool {
	_, ok := decoders[name]
	return ok
}

// DecodeWith tries each named decoder in order and returns the first
// non-empty result along with the decoder that produced it.
func DecodeWith(layout Layout, reads []SectorRead, names []string) (string, string, error) {
	if len(names) == 0 {
		names = DefaultDecoders
	}

	for _, name := range names {
		fn, ok := decoders[name]
		if !ok {
			return "", "", fmt.Errorf("unknown decoder: %s", name)
		}

		text := fn(layout, reads)
		if text != "" {
			return text, name, nil
		}
	}

	return "", "", nil
}

// userData concatenates the data blocks of every authenticated sector except
// the MAD sector.
func userData(layout Layout, reads []SectorRead) []byte {
	var data []byte
	for _, sr := range StripTrailers(layout, reads) {
		if sr.Sector == 0 || !sr.Authenticated {
			continue
		}
		for _, b := range sr.Blocks {
			data = append(data, b[:]...)
		}
	}
	return data
}

// trimControl drops padding NULs and trims surrounding whitespace and control
// characters.
func trimControl(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimFunc(s, func(r rune) bool {
		return r <= ' '
	})
}

func decodePrintable(_ Layout, reads []SectorRead) string {
	return Decode(reads).String()
}

func decodeUtf8(layout Layout, reads []SectorRead) string {
	data := userData(layout, reads)
	if !utf8.Valid(data) {
		return ""
	}
	return trimControl(string(data))
}

func decodeLatin1(layout Layout, reads []SectorRead) string {
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(userData(layout, reads))
	if err != nil {
		return ""
	}
	return trimControl(string(text))
}

func decodeAscii(layout Layout, reads []SectorRead) string {
	data := userData(layout, reads)
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if b < 0x80 {
			out = append(out, b)
		}
	}
	return trimControl(string(out))
}

func decodeNdef(layout Layout, reads []SectorRead) string {
	payload := FindNdefMessage(userData(layout, reads))
	if payload == nil {
		return ""
	}

	text, err := ParseNdefText(payload)
	if err != nil {
		return ""
	}
	return text
}

// FindNdefMessage walks the TLV blocks in data and returns the value of the
// first NDEF message TLV, or nil if there is none.
func FindNdefMessage(data []byte) []byte {
	i := 0
	for i < len(data) {
		t := data[i]
		switch t {
		case tlvNull:
			i++
			continue
		case tlvTerminator:
			return nil
		}

		if i+1 >= len(data) {
			return nil
		}

		length := int(data[i+1])
		hdr := 2
		if data[i+1] == 0xFF {
			// three byte length format
			if i+3 >= len(data) {
				return nil
			}
			length = int(binary.BigEndian.Uint16(data[i+2 : i+4]))
			hdr = 4
		}

		start := i + hdr
		end := start + length
		if end > len(data) {
			return nil
		}

		if t == tlvNdef {
			return data[start:end]
		}

		i = end
	}
	return nil
}

// ParseNdefText returns the text of the first well known text record in an
// NDEF message.
func ParseNdefText(payload []byte) (string, error) {
	msg := &ndef.Message{}
	_, err := msg.Unmarshal(payload)
	if err != nil {
		return "", err
	}

	for _, rec := range msg.Records {
		if rec.TNF() != ndef.NFCForumWellKnownType || rec.Type() != "T" {
			continue
		}

		pl, err := rec.Payload()
		if err != nil {
			return "", err
		}

		raw := pl.Marshal()
		if len(raw) < 1 {
			continue
		}

		langLen := int(raw[0] & 0x3F)
		if len(raw) < 1+langLen {
			continue
		}

		return string(raw[1+langLen:]), nil
	}

	return "", fmt.Errorf("no text record found")
}
