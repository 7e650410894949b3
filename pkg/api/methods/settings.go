package methods

import (
	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/api/models"
	"github.com/wizzomafizzo/mfctext/pkg/api/models/requests"
	"github.com/wizzomafizzo/mfctext/pkg/api/validation"
)

func HandleSettings(env requests.RequestEnv) (any, error) {
	log.Info().Msg("received settings request")

	resp := models.SettingsResponse{
		Readers:         make([]string, 0),
		ProbeDevice:     env.Config.GetProbeDevice(),
		Debug:           env.Config.GetDebug(),
		KeyType:         env.Config.GetKeyType(),
		WriteSector:     env.Config.GetWriteSector(),
		Decoders:        make([]string, 0),
		IncludeTrailers: env.Config.GetIncludeTrailers(),
	}

	resp.Readers = append(resp.Readers, env.Config.GetReader()...)
	resp.Decoders = append(resp.Decoders, env.Config.GetDecoders()...)

	return resp, nil
}

func HandleSettingsUpdate(env requests.RequestEnv) (any, error) {
	log.Info().Msg("received settings update request")

	var params models.UpdateSettingsParams
	err := validation.ValidateAndUnmarshal(env.Params, &params)
	if err != nil {
		return nil, err
	}

	if params.Readers != nil {
		log.Info().Strs("readers", *params.Readers).Msg("updating readers")
		env.Config.SetReader(*params.Readers)
	}

	if params.ProbeDevice != nil {
		log.Info().Bool("probeDevice", *params.ProbeDevice).Msg("updating probe device")
		env.Config.SetProbeDevice(*params.ProbeDevice)
	}

	if params.Debug != nil {
		log.Info().Bool("debug", *params.Debug).Msg("updating debug")
		env.Config.SetDebug(*params.Debug)
	}

	if params.Key != nil {
		log.Info().Msg("updating key")
		env.Config.SetKey(*params.Key)
	}

	if params.KeyType != nil {
		log.Info().Str("keyType", *params.KeyType).Msg("updating key type")
		env.Config.SetKeyType(*params.KeyType)
	}

	if params.WriteSector != nil {
		log.Info().Int("writeSector", *params.WriteSector).Msg("updating write sector")
		env.Config.SetWriteSector(*params.WriteSector)
	}

	if params.Decoders != nil {
		log.Info().Strs("decoders", *params.Decoders).Msg("updating decoders")
		env.Config.SetDecoders(*params.Decoders)
	}

	if params.IncludeTrailers != nil {
		log.Info().Bool("includeTrailers", *params.IncludeTrailers).Msg("updating include trailers")
		env.Config.SetIncludeTrailers(*params.IncludeTrailers)
	}

	return nil, env.Config.SaveConfig()
}
