package pn532_uart

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/config"
	"github.com/wizzomafizzo/mfctext/pkg/readers"
	"github.com/wizzomafizzo/mfctext/pkg/tokens"
	"github.com/wizzomafizzo/mfctext/pkg/utils"
	"go.bug.st/serial"
)

const (
	periodBetweenLoop = 250 * time.Millisecond
	maxErrors         = 5
	maxZeroScans      = 3
	writeTries        = 4 * 30 // ~30 seconds
)

type Pn532UartReader struct {
	cfg         *config.UserConfig
	mu          sync.RWMutex
	device      string
	name        string
	port        serial.Port
	done        chan struct{}
	lastToken   *tokens.Token
	rejected    string
	write       chan readers.WriteRequest
	activeWrite readers.ActiveWrite
}

func NewReader(cfg *config.UserConfig) *Pn532UartReader {
	return &Pn532UartReader{
		cfg:   cfg,
		write: make(chan readers.WriteRequest),
	}
}

func (r *Pn532UartReader) Ids() []string {
	return []string{"pn532_uart"}
}

func connect(name string) (serial.Port, error) {
	log.Debug().Msgf("connecting to %s", name)
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return port, err
	}

	err = port.SetReadTimeout(100 * time.Millisecond)
	if err != nil {
		return port, err
	}

	err = SamConfiguration(port)
	if err != nil {
		return port, err
	}

	fv, err := GetFirmwareVersion(port)
	if err != nil {
		return port, err
	}
	log.Debug().Msgf("firmware version: %v", fv)

	gs, err := GetGeneralStatus(port)
	if err != nil {
		log.Debug().Err(err).Msg("error getting general status")
	} else {
		log.Debug().Msgf("general status: %+v", gs)
	}

	return port, nil
}

func (r *Pn532UartReader) Open(device string, iq chan<- readers.Scan) error {
	_, name, err := readers.ParseDevice(r, device)
	if err != nil {
		return err
	}

	if runtime.GOOS != "windows" {
		if _, err := os.Stat(name); err != nil {
			return err
		}
	}

	port, err := connect(name)
	if err != nil {
		if port != nil {
			_ = port.Close()
		}
		return err
	}

	done := make(chan struct{})

	r.mu.Lock()
	r.port = port
	r.device = device
	r.name = name
	r.done = done
	r.lastToken = nil
	r.mu.Unlock()

	opts := readers.TagOptionsFromConfig(r.cfg)
	go r.poll(port, device, done, iq, opts)

	return nil
}

// poll owns the port until done is closed. Writes are handed to it over the
// write channel so they never overlap a read.
func (r *Pn532UartReader) poll(
	port Port,
	device string,
	done <-chan struct{},
	iq chan<- readers.Scan,
	opts readers.TagOptions,
) {
	send := func(scan readers.Scan) bool {
		select {
		case iq <- scan:
			return true
		case <-done:
			return false
		}
	}

	errCount := 0
	zeroScans := 0

	for {
		if errCount >= maxErrors {
			log.Error().Msg("too many errors, exiting")
			err := r.Close()
			if err != nil {
				log.Warn().Err(err).Msg("failed to close serial port")
			}
			return
		}

		select {
		case <-done:
			return
		case req := <-r.write:
			token := r.writeTag(port, device, &req, opts)
			if token != nil {
				r.lastToken = token
				if !send(readers.Scan{Source: device, Token: token}) {
					return
				}
			}
			continue
		case <-time.After(periodBetweenLoop):
		}

		tgt, err := InListPassiveTarget(port)
		if err != nil {
			log.Error().Err(err).Msg("failed to read passive target")
			errCount++
			continue
		} else if tgt == nil {
			zeroScans++
			r.rejected = ""

			// token was removed
			if zeroScans == maxZeroScans && r.lastToken != nil {
				r.lastToken = nil
				if !send(readers.Scan{Source: device}) {
					return
				}
			}

			continue
		}

		log.Debug().Msgf("target: %s", tgt.Uid)

		errCount = 0
		zeroScans = 0

		if r.lastToken != nil && r.lastToken.UID == tgt.Uid {
			// same token
			continue
		}

		layout, ok := tgt.Layout()
		if !ok {
			if r.rejected != tgt.Uid {
				log.Warn().Msgf("unsupported tag: %s (sak %#x)", tgt.Uid, tgt.Sak)
				r.rejected = tgt.Uid
				if !send(readers.Scan{Source: device, Error: readers.ErrNotClassic}) {
					return
				}
			}
			continue
		}

		card, err := NewMifareCard(port, tgt)
		if err != nil {
			log.Error().Err(err).Msg("invalid target")
			continue
		}

		token, err := readers.ReadToken(card, layout, tgt.Uid, device, opts)
		if err != nil {
			log.Error().Err(err).Msg("failed to read mifare")
			errCount++
			continue
		}

		if !tokens.Equal(token, r.lastToken) {
			if !send(readers.Scan{Source: device, Token: token}) {
				return
			}
		}

		r.lastToken = token
	}
}

func (r *Pn532UartReader) writeTag(
	port Port,
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

	var tgt *Target
	for tries := writeTries; tries > 0 && tgt == nil; tries-- {
		select {
		case <-req.Cancel:
			log.Info().Msg("write cancelled by user")
			req.Result <- readers.WriteRequestResult{Cancelled: true}
			return nil
		case <-time.After(periodBetweenLoop):
		}

		tgt, err = InListPassiveTarget(port)
		if err != nil {
			log.Error().Err(err).Msg("failed to read passive target")
		}
	}

	if tgt == nil {
		req.Result <- readers.WriteRequestResult{Err: readers.ErrNoTag}
		return nil
	}

	layout, ok := tgt.Layout()
	if !ok {
		req.Result <- readers.WriteRequestResult{Err: readers.ErrNotClassic}
		return nil
	}

	card, err := NewMifareCard(port, tgt)
	if err != nil {
		req.Result <- readers.WriteRequestResult{Err: err}
		return nil
	}

	token, err := readers.WriteToken(card, layout, tgt.Uid, device, opts, req.Text)
	if err != nil {
		log.Error().Err(err).Msg("error writing to mifare")
		req.Result <- readers.WriteRequestResult{Err: err}
		return nil
	}

	req.Result <- readers.WriteRequestResult{Token: token}
	return token
}

func (r *Pn532UartReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		close(r.done)
		r.done = nil
	}

	if r.port != nil {
		err := r.port.Close()
		r.port = nil
		if err != nil {
			return err
		}
	}
	return nil
}

// keep track of serial devices that had failed opens
var serialCacheMu = &sync.RWMutex{}
var serialBlockList []string

func (r *Pn532UartReader) Detect(connected []string) string {
	if !r.cfg.GetProbeDevice() {
		return ""
	}

	ports, err := utils.GetSerialDeviceList()
	if err != nil {
		log.Error().Err(err).Msg("failed to get serial ports")
	}

	for _, name := range ports {
		device := "pn532_uart:" + name

		// ignore if device is in block list
		serialCacheMu.RLock()
		if utils.Contains(serialBlockList, name) {
			serialCacheMu.RUnlock()
			continue
		}
		serialCacheMu.RUnlock()

		// ignore if exact same device and reader are connected
		if utils.Contains(connected, device) {
			continue
		}

		if runtime.GOOS != "windows" {
			// ignore if the resolved device is already connected
			realPath, err := filepath.EvalSymlinks(name)
			if err == nil && utils.Contains(connected, "pn532_uart:"+realPath) {
				continue
			}
		}

		// ignore if different reader already connected
		match := false
		for _, connDev := range connected {
			if strings.HasSuffix(connDev, ":"+name) {
				match = true
				break
			}
		}
		if match {
			continue
		}

		// try to open the device
		port, err := connect(name)
		if port != nil {
			cerr := port.Close()
			if cerr != nil {
				log.Warn().Err(cerr).Msg("failed to close serial port")
			}
		}
		if err != nil {
			log.Debug().Err(err).Msgf("failed to open detected serial port, blocklisting: %s", name)
			serialCacheMu.Lock()
			serialBlockList = append(serialBlockList, name)
			serialCacheMu.Unlock()
			continue
		}

		return device
	}

	return ""
}

func (r *Pn532UartReader) Device() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.device
}

func (r *Pn532UartReader) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.done != nil && r.port != nil
}

func (r *Pn532UartReader) Info() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return "PN532 UART (" + r.name + ")"
}

func (r *Pn532UartReader) Write(text string) (*tokens.Token, error) {
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

func (r *Pn532UartReader) CancelWrite() {
	r.activeWrite.Cancel()
}
