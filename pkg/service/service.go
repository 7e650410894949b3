/*
mfctext
Copyright (C) 2023 Gareth Jones
Copyright (C) 2023, 2024 Callan Barrett

This file is part of mfctext.

mfctext is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

mfctext is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with mfctext.  If not, see <http://www.gnu.org/licenses/>.
*/

package service

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/api"
	"github.com/wizzomafizzo/mfctext/pkg/api/models"
	"github.com/wizzomafizzo/mfctext/pkg/config"
	"github.com/wizzomafizzo/mfctext/pkg/database"
	"github.com/wizzomafizzo/mfctext/pkg/service/discovery"
	"github.com/wizzomafizzo/mfctext/pkg/service/state"
	"golang.org/x/sync/errgroup"
)

const (
	notificationQueueSize = 100
	historyRetention      = 250
)

// Start runs the reader manager and API server in the background. The
// returned function stops them and waits for them to exit.
func Start(cfg *config.UserConfig) (func() error, error) {
	return start(cfg, SupportedReaders, true)
}

func start(
	cfg *config.UserConfig,
	factory ReaderFactory,
	runApi bool,
) (func() error, error) {
	log.Info().Msgf("mfctext v%s", config.Version)
	log.Info().Msgf("config path = %s", cfg.IniPath)
	log.Info().Msgf("app path = %s", cfg.AppPath)
	log.Info().Msgf("reader = %s", cfg.GetReader())
	log.Info().Msgf("probe_device = %t", cfg.GetProbeDevice())
	log.Info().Msgf("key_type = %s", cfg.GetKeyType())
	log.Info().Msgf("write_sector = %d", cfg.GetWriteSector())
	log.Info().Msgf("decoders = %s", cfg.GetDecoders())
	log.Info().Msgf("include_trailers = %t", cfg.GetIncludeTrailers())
	log.Info().Msgf("debug = %t", cfg.GetDebug())

	log.Debug().Msg("opening database")
	db, err := database.Open(database.DbFile(cfg))
	if err != nil {
		log.Error().Err(err).Msgf("error opening database")
		return nil, err
	}

	pruned, err := db.PruneHistory(historyRetention)
	if err != nil {
		log.Warn().Err(err).Msg("error pruning history")
	} else if pruned > 0 {
		log.Info().Msgf("pruned %d old history entries", pruned)
	}

	ns := make(chan models.Notification, notificationQueueSize)
	st := state.NewState(ns)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return readerManager(gctx, cfg, st, db, factory)
	})

	if runApi {
		g.Go(func() error {
			return api.Start(gctx, cfg, st, db, ns)
		})
		g.Go(func() error {
			return discovery.New(cfg).Run(gctx)
		})
	}

	return func() error {
		cancel()
		err := g.Wait()
		if err != nil {
			log.Error().Err(err).Msg("service exited with error")
		}

		cerr := db.Close()
		if cerr != nil {
			log.Warn().Err(cerr).Msg("error closing database")
		}

		return err
	}, nil
}
