package methods

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/api/models"
	"github.com/wizzomafizzo/mfctext/pkg/api/models/requests"
)

func HandleTokens(env requests.RequestEnv) (any, error) {
	log.Info().Msg("received tokens request")

	resp := models.TokensResponse{
		Active: make([]models.TokenResponse, 0),
	}

	for _, t := range env.State.GetActiveTokens() {
		resp.Active = append(resp.Active, tokenResponse(t))
	}

	last := env.State.GetLastScanned()
	if last != nil {
		tr := tokenResponse(*last)
		resp.Last = &tr
	}

	return resp, nil
}

func HandleHistory(env requests.RequestEnv) (any, error) {
	log.Info().Msg("received history request")

	if env.Database == nil {
		return nil, errors.New("history is not available")
	}

	entries, err := env.Database.GetHistory()
	if err != nil {
		log.Error().Err(err).Msgf("error getting history")
		return nil, errors.New("error getting history")
	}

	resp := models.HistoryResponse{
		Entries: make([]models.HistoryResponseEntry, len(entries)),
	}

	for i, e := range entries {
		resp.Entries[i] = models.HistoryResponseEntry{
			Time:    e.Time,
			Action:  e.Action,
			Source:  e.Source,
			Type:    e.Type,
			UID:     e.UID,
			Text:    e.Text,
			Data:    e.Data,
			Success: e.Success,
			Error:   e.Error,
		}
	}

	return resp, nil
}
