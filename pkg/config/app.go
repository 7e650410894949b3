package config

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

const (
	Version            = "1.0.0"
	AppName            = "mfctext"
	DbFilename         = "mfctext.db"
	LogFilename        = "mfctext.log"
	DefaultApiPort     = "7498"
	DefaultWriteSector = 1
)

// DataDir returns the folder used for the database and logs, next to the
// config file.
func DataDir(cfg *UserConfig) string {
	if cfg != nil && cfg.IniPath != "" {
		return filepath.Dir(cfg.IniPath)
	}
	return MkTempDir()
}

func MkTempDir() string {
	path := filepath.Join(os.TempDir(), AppName)
	err := os.MkdirAll(path, 0755)
	if err != nil {
		log.Error().Err(err).Msg("error creating temp folder")
	}
	return path
}
