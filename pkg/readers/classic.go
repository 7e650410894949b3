package readers

import (
	"encoding/hex"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/config"
	"github.com/wizzomafizzo/mfctext/pkg/mifare"
	"github.com/wizzomafizzo/mfctext/pkg/tokens"
)

// TagOptions controls how drivers authenticate, decode and write tags.
type TagOptions struct {
	KeyType         mifare.KeyType
	Key             mifare.Key
	WriteSector     int
	Decoders        []string
	IncludeTrailers bool
}

func DefaultTagOptions() TagOptions {
	return TagOptions{
		KeyType:     mifare.KeyB,
		Key:         mifare.DefaultKey,
		WriteSector: config.DefaultWriteSector,
		Decoders:    mifare.DefaultDecoders,
	}
}

// TagOptionsFromConfig builds tag options from the user config, falling back
// to the defaults for any invalid value.
func TagOptionsFromConfig(cfg *config.UserConfig) TagOptions {
	opts := DefaultTagOptions()
	if cfg == nil {
		return opts
	}

	kt, err := mifare.ParseKeyType(cfg.GetKeyType())
	if err != nil {
		log.Warn().Err(err).Msg("invalid key type in config, using key B")
	} else {
		opts.KeyType = kt
	}

	key, err := mifare.ParseKey(cfg.GetKey())
	if err != nil {
		log.Warn().Err(err).Msg("invalid key in config, using default key")
	} else {
		opts.Key = key
	}

	opts.WriteSector = cfg.GetWriteSector()
	opts.IncludeTrailers = cfg.GetIncludeTrailers()

	var ds []string
	for _, d := range cfg.GetDecoders() {
		if !mifare.ValidDecoder(d) {
			log.Warn().Msgf("ignoring unknown decoder: %s", d)
			continue
		}
		ds = append(ds, d)
	}
	if len(ds) > 0 {
		opts.Decoders = ds
	}

	return opts
}

func TokenType(layout mifare.Layout) string {
	switch layout.Size() {
	case mifare.SizeMini:
		return tokens.TypeClassicMini
	case mifare.Size4K:
		return tokens.TypeClassic4K
	default:
		return tokens.TypeClassic1K
	}
}

// ReadToken reads every sector of a tag and builds a token from it.
func ReadToken(
	card mifare.Card,
	layout mifare.Layout,
	uid string,
	source string,
	opts TagOptions,
) (*tokens.Token, error) {
	reads, err := mifare.ReadTag(card, layout, opts.KeyType, opts.Key)
	if err != nil {
		return nil, err
	}

	authed := 0
	for _, sr := range reads {
		if sr.Authenticated {
			authed++
		}
	}
	log.Debug().Msgf("authenticated %d/%d sectors", authed, layout.SectorCount())

	decodeReads := reads
	if !opts.IncludeTrailers {
		decodeReads = mifare.StripTrailers(layout, reads)
	}

	text, decoder, err := mifare.DecodeWith(layout, decodeReads, opts.Decoders)
	if err != nil {
		return nil, err
	}

	if text == "" {
		log.Warn().Msg("no readable text found on the tag")
	} else {
		log.Info().Msgf("decoded text (%s): %s", decoder, text)
	}

	return &tokens.Token{
		Type:     TokenType(layout),
		UID:      uid,
		Text:     text,
		Data:     hex.EncodeToString(mifare.Dump(layout, reads)),
		ScanTime: time.Now(),
		Source:   source,
	}, nil
}

// DecodeDump decodes a raw memory image the same way a tag read is decoded.
// Returns the layout, text and the decoder that produced it.
func DecodeDump(data []byte, opts TagOptions) (mifare.Layout, string, string, error) {
	layout, err := mifare.LayoutForSize(len(data))
	if err != nil {
		return layout, "", "", err
	}

	reads := mifare.DumpReads(layout, data)
	if !opts.IncludeTrailers {
		reads = mifare.StripTrailers(layout, reads)
	}

	text, decoder, err := mifare.DecodeWith(layout, reads, opts.Decoders)
	return layout, text, decoder, err
}

// WriteToken writes text into the configured sector, reads the whole tag back
// and checks the sector holds what was written.
func WriteToken(
	card mifare.Card,
	layout mifare.Layout,
	uid string,
	source string,
	opts TagOptions,
	text string,
) (*tokens.Token, error) {
	blocks, err := mifare.WriteText(card, layout, opts.WriteSector, opts.KeyType, opts.Key, text)
	if err != nil {
		return nil, err
	}

	var data []byte
	for _, b := range blocks {
		data = append(data, b[:]...)
	}
	log.Info().Msgf("wrote %d blocks to sector %d: %s", len(blocks), opts.WriteSector, hex.EncodeToString(data))

	token, err := ReadToken(card, layout, uid, source, opts)
	if err != nil {
		return nil, err
	}

	s, err := layout.Sector(opts.WriteSector)
	if err != nil {
		return nil, err
	}
	start := s.FirstBlock * mifare.BlockSize * 2
	want := hex.EncodeToString(data)
	if len(token.Data) < start+len(want) || token.Data[start:start+len(want)] != want {
		return nil, ErrVerifyFailed
	}

	return token, nil
}
