package acr122pcsc

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ebfe/scard"
	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/config"
	"github.com/wizzomafizzo/mfctext/pkg/mifare"
	"github.com/wizzomafizzo/mfctext/pkg/readers"
	"github.com/wizzomafizzo/mfctext/pkg/tokens"
	"github.com/wizzomafizzo/mfctext/pkg/utils"
)

const (
	periodBetweenLoop = 250 * time.Millisecond
	maxErrors         = 5
	writeTries        = 4 * 30 // ~30 seconds
)

type Acr122Pcsc struct {
	cfg         *config.UserConfig
	mu          sync.RWMutex
	device      string
	name        string
	ctx         *scard.Context
	done        chan struct{}
	lastToken   *tokens.Token
	write       chan readers.WriteRequest
	activeWrite readers.ActiveWrite
}

func NewAcr122Pcsc(cfg *config.UserConfig) *Acr122Pcsc {
	return &Acr122Pcsc{
		cfg:   cfg,
		write: make(chan readers.WriteRequest),
	}
}

func (r *Acr122Pcsc) Ids() []string {
	return []string{"acr122_pcsc"}
}

// Open takes a device string of the form "acr122_pcsc:<pcsc reader name>".
func (r *Acr122Pcsc) Open(device string, iq chan<- readers.Scan) error {
	_, name, err := readers.ParseDevice(r, device)
	if err != nil {
		return err
	}

	ctx, err := scard.EstablishContext()
	if err != nil {
		return err
	}

	rls, err := ctx.ListReaders()
	if err != nil {
		_ = ctx.Release()
		return err
	} else if !utils.Contains(rls, name) {
		_ = ctx.Release()
		return errors.New("pcsc reader not found: " + name)
	}

	done := make(chan struct{})

	r.mu.Lock()
	r.ctx = ctx
	r.device = device
	r.name = name
	r.done = done
	r.lastToken = nil
	r.mu.Unlock()

	opts := readers.TagOptionsFromConfig(r.cfg)
	go r.poll(ctx, name, device, done, iq, opts)

	return nil
}

// connectCard connects to the card in the reader and returns its ATR.
func connectCard(ctx *scard.Context, name string) (*scard.Card, []byte, error) {
	card, err := ctx.Connect(name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return nil, nil, err
	}

	status, err := card.Status()
	if err != nil {
		_ = card.Disconnect(scard.LeaveCard)
		return nil, nil, err
	}

	return card, status.Atr, nil
}

// identify returns the UID and layout of the card, or ErrNotClassic with the
// UID if it's some other kind of tag.
func identify(card transmitter, atr []byte) (string, mifare.Layout, error) {
	uid, err := getUID(card)
	if err != nil {
		return "", mifare.Layout{}, err
	}

	layout, ok := layoutForAtr(atr)
	if !ok {
		return uid, layout, readers.ErrNotClassic
	}

	return uid, layout, nil
}

func readCard(
	card transmitter,
	atr []byte,
	device string,
	opts readers.TagOptions,
) (*tokens.Token, error) {
	uid, layout, err := identify(card, atr)
	if err != nil {
		return nil, err
	}
	log.Info().Msgf("%s detected: %s", layout.Name, uid)

	return readers.ReadToken(NewMifareCard(card), layout, uid, device, opts)
}

func writeCard(
	card transmitter,
	atr []byte,
	device string,
	opts readers.TagOptions,
	text string,
) (*tokens.Token, error) {
	uid, layout, err := identify(card, atr)
	if err != nil {
		return nil, err
	}

	return readers.WriteToken(NewMifareCard(card), layout, uid, device, opts, text)
}

func (r *Acr122Pcsc) poll(
	ctx *scard.Context,
	name string,
	device string,
	done <-chan struct{},
	iq chan<- readers.Scan,
	opts readers.TagOptions,
) {
	defer func() {
		err := ctx.Release()
		if err != nil {
			log.Debug().Err(err).Msg("error releasing pcsc context")
		}
	}()

	send := func(scan readers.Scan) bool {
		select {
		case iq <- scan:
			return true
		case <-done:
			return false
		}
	}

	rs := []scard.ReaderState{{Reader: name, CurrentState: scard.StateUnaware}}
	errCount := 0
	handled := false

	for {
		if errCount >= maxErrors {
			log.Error().Msg("too many errors, exiting")
			err := r.Close()
			if err != nil {
				log.Warn().Err(err).Msg("failed to close pcsc reader")
			}
			return
		}

		select {
		case <-done:
			return
		case req := <-r.write:
			token := r.writeTag(ctx, name, device, &req, opts)
			if token != nil {
				r.lastToken = token
				handled = true
				if !send(readers.Scan{Source: device, Token: token}) {
					return
				}
			}
			continue
		default:
		}

		err := ctx.GetStatusChange(rs, periodBetweenLoop)
		if errors.Is(err, scard.ErrTimeout) {
			// no change
		} else if errors.Is(err, scard.ErrCancelled) {
			return
		} else if err != nil {
			log.Error().Err(err).Msg("failed to get reader status")
			errCount++
			time.Sleep(periodBetweenLoop)
			continue
		}
		rs[0].CurrentState = rs[0].EventState

		if rs[0].EventState&scard.StatePresent == 0 {
			handled = false
			if r.lastToken != nil {
				log.Info().Msg("token removed")
				r.lastToken = nil
				if !send(readers.Scan{Source: device}) {
					return
				}
			}
			continue
		} else if handled {
			continue
		}

		token, err := readPresent(ctx, name, device, opts)
		if errors.Is(err, readers.ErrNotClassic) {
			handled = true
			if !send(readers.Scan{Source: device, Error: err}) {
				return
			}
			continue
		} else if err != nil {
			log.Error().Err(err).Msg("failed to read card")
			errCount++
			continue
		}

		errCount = 0
		handled = true
		if !tokens.Equal(token, r.lastToken) {
			log.Info().Msg("new token detected, sending to input queue")
			r.lastToken = token
			if !send(readers.Scan{Source: device, Token: token}) {
				return
			}
		}
	}
}

// readPresent reads the card currently in the reader.
func readPresent(
	ctx *scard.Context,
	name string,
	device string,
	opts readers.TagOptions,
) (*tokens.Token, error) {
	card, atr, err := connectCard(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = card.Disconnect(scard.LeaveCard)
	}()

	token, err := readCard(card, atr, device, opts)
	if errors.Is(err, readers.ErrNotClassic) {
		log.Warn().Msgf("unsupported tag (atr %x)", atr)
	}

	return token, err
}

func (r *Acr122Pcsc) writeTag(
	ctx *scard.Context,
	name string,
	device string,
	req *readers.WriteRequest,
	opts readers.TagOptions,
) *tokens.Token {
	log.Info().Msgf("write request: %s", req.Text)

	err := r.activeWrite.Begin(req)
	if err != nil {
		req.Result <- readers.WriteRequestResult{Err: err}
		return nil
	}
	defer r.activeWrite.End()

	var card *scard.Card
	var atr []byte
	for tries := writeTries; tries > 0 && card == nil; tries-- {
		select {
		case <-req.Cancel:
			log.Info().Msg("write cancelled by user")
			req.Result <- readers.WriteRequestResult{Cancelled: true}
			return nil
		case <-time.After(periodBetweenLoop):
		}

		card, atr, err = connectCard(ctx, name)
		if err != nil && !errors.Is(err, scard.ErrNoSmartcard) {
			log.Debug().Err(err).Msg("could not connect to card")
		}
	}

	if card == nil {
		req.Result <- readers.WriteRequestResult{Err: readers.ErrNoTag}
		return nil
	}
	defer func() {
		_ = card.Disconnect(scard.LeaveCard)
	}()

	token, err := writeCard(card, atr, device, opts, req.Text)
	if err != nil {
		log.Error().Err(err).Msg("error writing to mifare")
		req.Result <- readers.WriteRequestResult{Err: err}
		return nil
	}

	req.Result <- readers.WriteRequestResult{Token: token}
	return token
}

func (r *Acr122Pcsc) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		close(r.done)
		r.done = nil
	}

	if r.ctx != nil {
		// unblocks GetStatusChange, the poll loop releases the context
		err := r.ctx.Cancel()
		r.ctx = nil
		if err != nil {
			return err
		}
	}

	return nil
}

// Detect returns the first ACR122 PC/SC reader that isn't already connected.
func (r *Acr122Pcsc) Detect(connected []string) string {
	if !r.cfg.GetProbeDevice() {
		return ""
	}

	ctx, err := scard.EstablishContext()
	if err != nil {
		return ""
	}
	defer func() {
		_ = ctx.Release()
	}()

	rls, err := ctx.ListReaders()
	if err != nil {
		log.Debug().Msgf("error listing pcsc readers: %s", err)
		return ""
	}

	log.Debug().Msgf("detected pcsc readers: %v", rls)

	for _, name := range rls {
		if !strings.Contains(strings.ToUpper(name), "ACR122") {
			continue
		}

		device := "acr122_pcsc:" + name
		if utils.Contains(connected, device) {
			continue
		}

		return device
	}

	return ""
}

func (r *Acr122Pcsc) Device() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.device
}

func (r *Acr122Pcsc) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.done != nil && r.ctx != nil
}

func (r *Acr122Pcsc) Info() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return "ACR122 PC/SC (" + r.name + ")"
}

func (r *Acr122Pcsc) Write(text string) (*tokens.Token, error) {
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

	return req.Wait()
}

func (r *Acr122Pcsc) CancelWrite() {
	r.activeWrite.Cancel()
}
