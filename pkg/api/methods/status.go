package methods

import (
	"net/http"
	"runtime"

	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/api/models"
	"github.com/wizzomafizzo/mfctext/pkg/api/models/requests"
	"github.com/wizzomafizzo/mfctext/pkg/config"
	"github.com/wizzomafizzo/mfctext/pkg/service/state"
)

func listReaders(st *state.State) []models.ReaderResponse {
	rs := make([]models.ReaderResponse, 0)
	for _, device := range st.ListReaders() {
		reader, ok := st.GetReader(device)
		if ok && reader != nil {
			rs = append(rs, models.ReaderResponse{
				Connected: reader.Connected(),
				Device:    device,
				Info:      reader.Info(),
			})
		}
	}
	return rs
}

func NewStatus(st *state.State) models.StatusResponse {
	active := make([]models.TokenResponse, 0)
	for _, t := range st.GetActiveTokens() {
		active = append(active, tokenResponse(t))
	}

	return models.StatusResponse{
		Version: config.Version,
		Readers: listReaders(st),
		Active:  active,
	}
}

// HandleStatusHttp serves a read-only status snapshot for clients which
// can't hold open a websocket.
func HandleStatusHttp(st *state.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Info().Msg("received http status request")
		status := NewStatus(st)
		err := render.Render(w, r, &status)
		if err != nil {
			log.Error().Err(err).Msg("error rendering status")
		}
	}
}

func HandleVersion(_ requests.RequestEnv) (any, error) {
	log.Info().Msg("received version request")
	return models.VersionResponse{
		Version:  config.Version,
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}, nil
}
