package methods

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/api/models"
	"github.com/wizzomafizzo/mfctext/pkg/api/models/requests"
	"github.com/wizzomafizzo/mfctext/pkg/database"
	"github.com/wizzomafizzo/mfctext/pkg/readers"
	"github.com/wizzomafizzo/mfctext/pkg/service/state"
	"github.com/wizzomafizzo/mfctext/pkg/tokens"
)

var ErrNoReaders = errors.New("no readers connected")

func HandleReaders(env requests.RequestEnv) (any, error) {
	log.Info().Msg("received readers request")
	return models.ReadersResponse{
		Readers: listReaders(env.State),
	}, nil
}

// writeTarget picks the reader a write goes to: the requested device, else
// the reader that last scanned a tag, else the first connected reader.
func writeTarget(st *state.State, device *string) (string, readers.Reader, error) {
	if device != nil && *device != "" {
		r, ok := st.GetReader(*device)
		if !ok || r == nil {
			return "", nil, errors.New("reader not connected: " + *device)
		}
		return *device, r, nil
	}

	rs := st.ListReaders()
	if len(rs) == 0 {
		return "", nil, ErrNoReaders
	}

	rid := rs[0]
	lt := st.GetLastScanned()
	if lt != nil && lt.Source != "" {
		if _, ok := st.GetReader(lt.Source); ok {
			rid = lt.Source
		}
	}

	r, ok := st.GetReader(rid)
	if !ok || r == nil {
		return "", nil, errors.New("reader not connected: " + rid)
	}

	return rid, r, nil
}

func addWriteHistory(db *database.Database, source string, t *tokens.Token, err error) {
	if db == nil {
		return
	}

	he := database.HistoryEntry{
		Time:    time.Now(),
		Action:  database.ActionWrite,
		Source:  source,
		Success: err == nil,
	}
	if t != nil {
		he.Type = t.Type
		he.UID = t.UID
		he.Text = t.Text
		he.Data = t.Data
	}
	if err != nil {
		he.Error = err.Error()
	}

	herr := db.AddHistory(he)
	if herr != nil {
		log.Error().Err(herr).Msg("error adding write history")
	}
}

func HandleReaderWrite(env requests.RequestEnv) (any, error) {
	log.Info().Msg("received reader write request")

	if len(env.Params) == 0 {
		return nil, ErrMissingParams
	}

	var params models.ReaderWriteParams
	err := json.Unmarshal(env.Params, &params)
	if err != nil {
		return nil, ErrInvalidParams
	}

	device, reader, err := writeTarget(env.State, params.Device)
	if err != nil {
		return nil, err
	}

	t, err := reader.Write(params.Text)
	if errors.Is(err, readers.ErrWriteCancelled) {
		log.Info().Msgf("write cancelled: %s", device)
		return nil, err
	} else if err != nil {
		log.Error().Err(err).Msg("error writing to reader")
		addWriteHistory(env.Database, device, nil, err)
		return nil, err
	}

	if t == nil {
		return nil, nil
	}

	env.State.SetWroteToken(t)
	addWriteHistory(env.Database, device, t, nil)
	env.State.Notify(models.NotificationTokensWritten, tokenResponse(*t))

	return tokenResponse(*t), nil
}

func HandleReaderWriteCancel(env requests.RequestEnv) (any, error) {
	log.Info().Msg("received reader write cancel request")

	var params models.ReaderWriteCancelParams
	if len(env.Params) > 0 {
		err := json.Unmarshal(env.Params, &params)
		if err != nil {
			return nil, ErrInvalidParams
		}
	}

	if params.Device != nil && *params.Device != "" {
		r, ok := env.State.GetReader(*params.Device)
		if !ok || r == nil {
			return nil, errors.New("reader not connected: " + *params.Device)
		}
		r.CancelWrite()
		return nil, nil
	}

	for _, device := range env.State.ListReaders() {
		r, ok := env.State.GetReader(device)
		if ok && r != nil {
			r.CancelWrite()
		}
	}

	return nil, nil
}
