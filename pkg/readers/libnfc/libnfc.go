//go:build (linux || darwin) && cgo

package libnfc

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/clausecker/nfc/v2"
	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/config"
	"github.com/wizzomafizzo/mfctext/pkg/readers"
	"github.com/wizzomafizzo/mfctext/pkg/readers/libnfc/tags"
	"github.com/wizzomafizzo/mfctext/pkg/tokens"
)

const (
	timeToForgetCard   = 500 * time.Millisecond
	connectMaxTries    = 10
	timesToPoll        = 1
	periodBetweenPolls = 250 * time.Millisecond
	periodBetweenLoop  = 250 * time.Millisecond
	writeTries         = 4 * 30 // ~30 seconds
)

const (
	ReaderTypePN532   = "PN532"
	ReaderTypeACR122U = "ACR122U"
	ReaderTypeUnknown = "Unknown"
)

type Reader struct {
	cfg         *config.UserConfig
	mu          sync.RWMutex
	device      string
	pnd         *nfc.Device
	prevToken   *tokens.Token
	rejected    string
	write       chan readers.WriteRequest
	activeWrite readers.ActiveWrite
	done        chan struct{}
}

func NewReader(cfg *config.UserConfig) *Reader {
	return &Reader{
		cfg:   cfg,
		write: make(chan readers.WriteRequest),
	}
}

func (r *Reader) Ids() []string {
	return []string{"libnfc"}
}

// Open connects to a device string of the form "libnfc:<connstring>". An
// empty connection string lets libnfc pick the first device it finds.
func (r *Reader) Open(device string, scans chan<- readers.Scan) error {
	_, connStr, err := readers.ParseDevice(r, device)
	if err != nil {
		return err
	}

	pnd, err := openDeviceWithRetries(connStr)
	if err != nil {
		return err
	}

	done := make(chan struct{})

	r.mu.Lock()
	r.device = device
	r.pnd = &pnd
	r.prevToken = nil
	r.done = done
	r.mu.Unlock()

	opts := readers.TagOptionsFromConfig(r.cfg)

	go func() {
		send := func(scan readers.Scan) bool {
			select {
			case scans <- scan:
				return true
			case <-done:
				return false
			}
		}

		for {
			select {
			case <-done:
				return
			case req := <-r.write:
				token := r.writeTag(&req, opts)
				if token != nil {
					r.prevToken = token
					if !send(readers.Scan{Source: device, Token: token}) {
						return
					}
				}
				continue
			case <-time.After(periodBetweenLoop):
			}

			token, removed, err := r.pollDevice(r.prevToken, opts)
			if errors.Is(err, nfc.Error(nfc.EIO)) {
				log.Error().Msgf("error during poll: %s", err)
				log.Error().Msg("fatal IO error, device was possibly unplugged")

				err = r.Close()
				if err != nil {
					log.Warn().Msgf("error closing device: %s", err)
				}

				return
			} else if errors.Is(err, readers.ErrNotClassic) {
				if !send(readers.Scan{Source: device, Error: err}) {
					return
				}
				continue
			} else if err != nil {
				log.Error().Msgf("error polling device: %s", err)
				continue
			}

			if removed {
				log.Info().Msg("token removed, sending to input queue")
				r.prevToken = nil
				if !send(readers.Scan{Source: device}) {
					return
				}
			} else if token != nil && !tokens.Equal(token, r.prevToken) {
				log.Info().Msg("new token detected, sending to input queue")
				r.prevToken = token
				if !send(readers.Scan{Source: device, Token: token}) {
					return
				}
			}
		}
	}()

	return nil
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		close(r.done)
		r.done = nil
	}

	if r.pnd == nil {
		return nil
	}

	log.Debug().Msgf("closing device: %s", r.device)
	err := r.pnd.Close()
	r.pnd = nil
	return err
}

// Detect returns the default libnfc device when probing is enabled. Serial
// PN532 and PC/SC ACR122 readers are left to their own drivers.
func (r *Reader) Detect(connected []string) string {
	if !r.cfg.GetProbeDevice() {
		return ""
	}

	for _, c := range connected {
		if strings.HasPrefix(c, "libnfc:") {
			return ""
		}
	}

	pnd, err := nfc.Open("")
	if err != nil {
		return ""
	}

	conn := pnd.Connection()
	err = pnd.Close()
	if err != nil {
		log.Warn().Err(err).Msg("error closing probed device")
	}

	if strings.HasPrefix(conn, "pn532_uart:") || strings.HasPrefix(conn, "acr122_pcsc:") {
		return ""
	}

	return "libnfc:" + conn
}

func (r *Reader) Device() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.device
}

func (r *Reader) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pnd != nil && r.pnd.Connection() != ""
}

func (r *Reader) Info() string {
	if !r.Connected() {
		return ""
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	deviceName := r.pnd.String()
	if strings.Contains(strings.ToLower(r.pnd.Connection()), "pn532") {
		return ReaderTypePN532
	} else if strings.Contains(deviceName, "ACR122U") {
		return ReaderTypeACR122U
	} else {
		return ReaderTypeUnknown
	}
}

func (r *Reader) Write(text string) (*tokens.Token, error) {
	if !r.Connected() {
		return nil, readers.ErrNotConnected
	} else if r.activeWrite.Active() {
		return nil, readers.ErrWriteInProgress
	}

	req := readers.NewWriteRequest(text)

	select {
	case r.write <- req:
	case <-time.After(5 * time.Second):
		return nil, errors.New("reader is not accepting writes")
	}

	token, err := req.Wait()
	if err != nil {
		log.Error().Msgf("error writing to tag: %s", err)
		return nil, err
	}

	return token, nil
}

func (r *Reader) CancelWrite() {
	r.activeWrite.Cancel()
}

func openDeviceWithRetries(device string) (nfc.Device, error) {
	log.Info().Msgf("connecting to device: %s", device)

	tries := 0
	for {
		pnd, err := nfc.Open(device)
		if err == nil {
			log.Info().Msgf("successful connect after %d tries", tries)
			log.Info().Msgf("device name: %s", pnd.String())

			if err := pnd.InitiatorInit(); err != nil {
				log.Error().Msgf("could not init initiator: %s", err)
				_ = pnd.Close()
				return pnd, err
			}

			return pnd, err
		}

		if tries >= connectMaxTries {
			log.Error().Msgf("could not open device after %d tries: %s", connectMaxTries, err)
			return pnd, err
		}

		tries++
	}
}

func (r *Reader) pollDevice(
	activeToken *tokens.Token,
	opts readers.TagOptions,
) (*tokens.Token, bool, error) {
	r.mu.RLock()
	pnd := r.pnd
	device := r.device
	r.mu.RUnlock()

	if pnd == nil {
		return nil, false, nfc.Error(nfc.EIO)
	}

	removed := false

	count, target, err := pnd.InitiatorPollTarget(tags.SupportedCardTypes, timesToPoll, periodBetweenPolls)
	if err != nil && !errors.Is(err, nfc.Error(nfc.ETIMEOUT)) {
		return nil, removed, err
	}

	if count > 1 {
		log.Info().Msg("more than one card on the reader")
	}

	if count <= 0 {
		r.rejected = ""
		if activeToken != nil && time.Since(activeToken.ScanTime) > timeToForgetCard {
			log.Info().Msg("card removed")
			activeToken = nil
			removed = true
		}

		return activeToken, removed, nil
	}

	tagUid := tags.GetTagUID(target)
	if tagUid == "" {
		log.Warn().Msgf("unable to detect token UID: %s", target.String())
	}

	// no change in tag
	if activeToken != nil && tagUid == activeToken.UID {
		return activeToken, removed, nil
	}

	log.Info().Msgf("found token UID: %s", tagUid)

	layout, ok := tags.GetTagLayout(target)
	if !ok {
		if r.rejected == tagUid {
			return activeToken, removed, nil
		}
		log.Warn().Msgf("unsupported tag: %s", target.String())
		r.rejected = tagUid
		return activeToken, removed, readers.ErrNotClassic
	}
	log.Info().Msgf("%s detected", layout.Name)

	card, err := tags.NewMifareCard(*pnd, target)
	if err != nil {
		return activeToken, removed, err
	}

	token, err := readers.ReadToken(card, layout, tagUid, device, opts)
	if err != nil {
		return activeToken, removed, fmt.Errorf("error reading mifare: %w", err)
	}

	return token, removed, nil
}

func (r *Reader) writeTag(req *readers.WriteRequest, opts readers.TagOptions) *tokens.Token {
	log.Info().Msgf("write request: %s", req.Text)

	err := r.activeWrite.Begin(req)
	if err != nil {
		req.Result <- readers.WriteRequestResult{Err: err}
		return nil
	}
	defer r.activeWrite.End()

	r.mu.RLock()
	pnd := r.pnd
	device := r.device
	r.mu.RUnlock()

	if pnd == nil {
		req.Result <- readers.WriteRequestResult{Err: readers.ErrNotConnected}
		return nil
	}

	var count int
	var target nfc.Target

	for tries := writeTries; tries > 0; tries-- {
		select {
		case <-req.Cancel:
			log.Info().Msg("write cancelled by user")
			req.Result <- readers.WriteRequestResult{Cancelled: true}
			return nil
		default:
		}

		count, target, err = pnd.InitiatorPollTarget(
			tags.SupportedCardTypes,
			timesToPoll,
			periodBetweenPolls,
		)
		if err != nil && !errors.Is(err, nfc.Error(nfc.ETIMEOUT)) {
			log.Error().Msgf("could not poll: %s", err)
		}

		if count > 0 {
			break
		}
	}

	if count <= 0 {
		log.Error().Msg("could not detect a tag")
		req.Result <- readers.WriteRequestResult{Err: readers.ErrNoTag}
		return nil
	}

	tagUid := tags.GetTagUID(target)
	log.Info().Msgf("found tag with UID: %s", tagUid)

	layout, ok := tags.GetTagLayout(target)
	if !ok {
		req.Result <- readers.WriteRequestResult{Err: readers.ErrNotClassic}
		return nil
	}

	card, err := tags.NewMifareCard(*pnd, target)
	if err != nil {
		req.Result <- readers.WriteRequestResult{Err: err}
		return nil
	}

	token, err := readers.WriteToken(card, layout, tagUid, device, opts, req.Text)
	if err != nil {
		log.Error().Msgf("error writing to mifare: %s", err)
		req.Result <- readers.WriteRequestResult{Err: err}
		return nil
	}

	req.Result <- readers.WriteRequestResult{Token: token}
	return token
}
