package methods

import (
	"encoding/hex"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/api/models"
	"github.com/wizzomafizzo/mfctext/pkg/api/models/requests"
	"github.com/wizzomafizzo/mfctext/pkg/api/validation"
	"github.com/wizzomafizzo/mfctext/pkg/mifare"
	"github.com/wizzomafizzo/mfctext/pkg/readers"
	"github.com/wizzomafizzo/mfctext/pkg/utils"
)

// default capacity of a 4 block sector
const defaultEncodeCapacity = 3

func HandleMifareDecode(env requests.RequestEnv) (any, error) {
	log.Info().Msg("received mifare decode request")

	var params models.MifareDecodeParams
	err := validation.ValidateAndUnmarshal(env.Params, &params)
	if err != nil {
		return nil, err
	}

	data, err := hex.DecodeString(utils.CleanHex(params.Data))
	if err != nil {
		return nil, ErrInvalidParams
	}

	opts := readers.TagOptionsFromConfig(env.Config)
	if params.Decoders != nil {
		opts.Decoders = *params.Decoders
	}

	layout, text, decoder, err := readers.DecodeDump(data, opts)
	if err != nil {
		return nil, err
	}

	return models.MifareDecodeResponse{
		Layout:  layout.Name,
		Text:    text,
		Decoder: decoder,
	}, nil
}

func HandleMifareEncode(env requests.RequestEnv) (any, error) {
	log.Info().Msg("received mifare encode request")

	var params models.MifareEncodeParams
	err := validation.ValidateAndUnmarshal(env.Params, &params)
	if err != nil {
		return nil, err
	}

	capacity := defaultEncodeCapacity
	if params.Capacity != nil {
		capacity = *params.Capacity
	}

	blocks, err := mifare.EncodeBlocks(params.Text, capacity)
	if err != nil {
		return nil, err
	}

	resp := models.MifareEncodeResponse{
		Blocks: make([]string, len(blocks)),
	}
	for i, b := range blocks {
		resp.Blocks[i] = hex.EncodeToString(b[:])
	}

	return resp, nil
}
