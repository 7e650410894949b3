package methods

import (
	"github.com/wizzomafizzo/mfctext/pkg/api/models"
	"github.com/wizzomafizzo/mfctext/pkg/api/validation"
	"github.com/wizzomafizzo/mfctext/pkg/tokens"
)

var (
	ErrMissingParams = validation.ErrMissingParams
	ErrInvalidParams = validation.ErrInvalidParams
)

func tokenResponse(t tokens.Token) models.TokenResponse {
	return models.TokenResponse{
		Type:     t.Type,
		UID:      t.UID,
		Text:     t.Text,
		Data:     t.Data,
		ScanTime: t.ScanTime,
		Source:   t.Source,
	}
}
