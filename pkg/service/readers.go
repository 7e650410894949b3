package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/api/models"
	"github.com/wizzomafizzo/mfctext/pkg/config"
	"github.com/wizzomafizzo/mfctext/pkg/database"
	"github.com/wizzomafizzo/mfctext/pkg/readers"
	"github.com/wizzomafizzo/mfctext/pkg/readers/acr122_pcsc"
	"github.com/wizzomafizzo/mfctext/pkg/readers/file"
	"github.com/wizzomafizzo/mfctext/pkg/readers/libnfc"
	"github.com/wizzomafizzo/mfctext/pkg/readers/pn532_uart"
	"github.com/wizzomafizzo/mfctext/pkg/service/state"
	"github.com/wizzomafizzo/mfctext/pkg/tokens"
	"github.com/wizzomafizzo/mfctext/pkg/utils"
)

const readerCheckPeriod = 1 * time.Second

// ReaderFactory returns a fresh instance of every supported reader driver.
type ReaderFactory func(cfg *config.UserConfig) []readers.Reader

func SupportedReaders(cfg *config.UserConfig) []readers.Reader {
	return []readers.Reader{
		pn532_uart.NewReader(cfg),
		acr122pcsc.NewAcr122Pcsc(cfg),
		libnfc.NewReader(cfg),
		file.NewReader(cfg),
	}
}

// connectReader acquires a session on the reader and pumps its events into
// the input queue until the session ends.
func connectReader(
	ctx context.Context,
	st *state.State,
	r readers.Reader,
	device string,
	iq chan<- readers.Scan,
) error {
	session, err := st.Sessions().Acquire(ctx, r, device)
	if err != nil {
		return err
	}

	st.Notify(models.NotificationReadersConnected, device)

	go func() {
		for {
			select {
			case scan := <-session.Events():
				select {
				case iq <- scan:
				case <-session.Done():
					return
				}
			case <-session.Done():
				return
			}
		}
	}()

	return nil
}

func connectReaders(
	ctx context.Context,
	cfg *config.UserConfig,
	st *state.State,
	factory ReaderFactory,
	iq chan<- readers.Scan,
) error {
	rs := st.ListReaders()
	var toConnect []string
	var errs []error

	for _, device := range cfg.GetReader() {
		if !utils.Contains(rs, device) && !utils.Contains(toConnect, device) {
			log.Debug().Msgf("config device not connected, adding: %s", device)
			toConnect = append(toConnect, device)
		}
	}

	// user defined readers
	for _, device := range toConnect {
		ps := strings.SplitN(device, ":", 2)
		if len(ps) != 2 {
			errs = append(errs, errors.New("invalid device string: "+device))
			continue
		}

		for _, r := range factory(cfg) {
			if !utils.Contains(r.Ids(), ps[0]) {
				continue
			}

			err := connectReader(ctx, st, r, device, iq)
			if err != nil {
				log.Error().Msgf("error opening reader: %s", err)
			} else {
				log.Info().Msgf("opened reader: %s", device)
			}
			break
		}
	}

	// auto-detect readers
	for _, r := range factory(cfg) {
		detect := r.Detect(st.ListReaders())
		if detect == "" {
			continue
		}

		err := connectReader(ctx, st, r, detect, iq)
		if err != nil {
			log.Error().Msgf("error opening detected reader %s: %s", detect, err)
		} else {
			log.Info().Msgf("opened detected reader: %s", detect)
		}
	}

	return errors.Join(errs...)
}

func pruneReaders(st *state.State) {
	for _, device := range st.ListReaders() {
		r, ok := st.GetReader(device)
		if ok && r != nil && !r.Connected() {
			log.Debug().Msgf("pruning disconnected reader: %s", device)
			st.RemoveReader(device)
		}
	}
}

func historyEntry(action string, source string, t *tokens.Token, err error) database.HistoryEntry {
	he := database.HistoryEntry{
		Time:    time.Now(),
		Action:  action,
		Source:  source,
		Success: err == nil,
	}

	if t != nil {
		he.Time = t.ScanTime
		he.Type = t.Type
		he.UID = t.UID
		he.Text = t.Text
		he.Data = t.Data
	}

	if err != nil {
		he.Error = err.Error()
	}

	return he
}

func addHistory(db *database.Database, he database.HistoryEntry) {
	if db == nil {
		return
	}
	err := db.AddHistory(he)
	if err != nil {
		log.Error().Err(err).Msgf("error adding history")
	}
}

// processScan updates the state with a scan from a reader.
func processScan(st *state.State, db *database.Database, scan readers.Scan) {
	if scan.Error != nil {
		log.Error().Msgf("error reading card: %s", scan.Error)
		addHistory(db, historyEntry(database.ActionRead, scan.Source, nil, scan.Error))
		return
	}

	if scan.Token == nil {
		if st.SetActiveToken(scan.Source, nil) {
			log.Info().Msgf("token was removed: %s", scan.Source)
		}
		return
	}

	if !st.SetActiveToken(scan.Source, scan.Token) {
		log.Debug().Msg("ignoring duplicate scan")
		return
	}

	log.Info().Msgf("new token scanned: %s (%s)", scan.Token.UID, scan.Token.Text)

	wt := st.GetWroteToken()
	if wt != nil && tokens.Equal(scan.Token, wt) {
		log.Info().Msg("skipping history for just written token")
		st.SetWroteToken(nil)
		return
	}
	st.SetWroteToken(nil)

	addHistory(db, historyEntry(database.ActionRead, scan.Source, scan.Token, nil))
}

// readerManager keeps readers connected and processes their scans until ctx
// is done.
func readerManager(
	ctx context.Context,
	cfg *config.UserConfig,
	st *state.State,
	db *database.Database,
	factory ReaderFactory,
) error {
	inputQueue := make(chan readers.Scan)
	readerTicker := time.NewTicker(readerCheckPeriod)
	defer readerTicker.Stop()

	connect := func() {
		pruneReaders(st)
		err := connectReaders(ctx, cfg, st, factory, inputQueue)
		if err != nil {
			log.Error().Msgf("error connecting readers: %s", err)
		}
	}

	connect()

	for {
		select {
		case <-ctx.Done():
			st.Sessions().ReleaseAll()
			return nil
		case <-readerTicker.C:
			connect()
		case scan := <-inputQueue:
			log.Debug().Msgf("pre-processing scan: %v", scan)
			processScan(st, db, scan)
		}
	}
}
