package requests

import (
	"github.com/google/uuid"
	"github.com/wizzomafizzo/mfctext/pkg/config"
	"github.com/wizzomafizzo/mfctext/pkg/database"
	"github.com/wizzomafizzo/mfctext/pkg/service/state"
)

type RequestEnv struct {
	Config   *config.UserConfig
	State    *state.State
	Database *database.Database
	Id       uuid.UUID
	Params   []byte
	IsLocal  bool
}
