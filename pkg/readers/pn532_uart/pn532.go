package pn532_uart

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/mifare"
)

const (
	cmdSamConfiguration    = 0x14
	cmdGetFirmwareVersion  = 0x02
	cmdGetGeneralStatus    = 0x04
	cmdInListPassiveTarget = 0x4A
	cmdInDataExchange      = 0x40
	hostToPn532            = 0xD4
	pn532ToHost            = 0xD5
)

const (
	statusOk        = 0x00
	statusMifareErr = 0x14
)

const maxFrameReads = 20

var (
	ackFrame        = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
	nackFrame       = []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}
	ErrAckTimeout   = errors.New("timeout waiting for ACK")
	ErrNoFrameFound = errors.New("no frame found")
)

// Port is the part of a serial port the PN532 protocol needs.
type Port interface {
	io.ReadWriter
	Drain() error
}

func wakeUp(port Port) error {
	// over uart, pn532 must be (to be safe) "woken up" by sending a 0x55
	// dummy byte and then waiting for some amount of time

	n, err := port.Write([]byte{
		0x55, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	})
	if err != nil {
		return err
	} else if n != 16 {
		return errors.New("wakeup write error, not all bytes written")
	}

	return port.Drain()
}

func writeAll(port Port, data []byte, name string) error {
	n, err := port.Write(data)
	if err != nil {
		return err
	} else if n != len(data) {
		return fmt.Errorf("%s write error, not all bytes written", name)
	}

	return port.Drain()
}

// sendAck tells the PN532 the response was received. It also cancels any
// command still being processed.
func sendAck(port Port) error {
	return writeAll(port, ackFrame, "ack")
}

// sendNack asks the PN532 to resend the previous response.
func sendNack(port Port) error {
	return writeAll(port, nackFrame, "nack")
}

// Block and wait to receive an ACK frame on the serial port, returning any
// extra data that was received before the ACK frame. Data before the ACK frame
// is not valid framing, but happens with some Windows drivers.
func waitAck(port Port) ([]byte, error) {
	tries := 0
	maxTries := 64 // bytes to scan through

	buf := make([]byte, 1)
	ackBuf := make([]byte, 0)
	preAck := make([]byte, 0)

	for {
		if tries >= maxTries {
			return preAck, ErrAckTimeout
		}

		n, err := port.Read(buf)
		if err != nil {
			return preAck, err
		} else if n == 0 {
			tries++
			continue
		}

		ackBuf = append(ackBuf, buf[0])
		if len(ackBuf) < 6 {
			continue
		}

		if bytes.Equal(ackBuf, ackFrame) {
			return preAck, nil
		}

		preAck = append(preAck, ackBuf[0])
		ackBuf = ackBuf[1:]
		tries++
	}
}

// buildFrame wraps a command in a normal information frame.
func buildFrame(tfi byte, cmd byte, args []byte) ([]byte, error) {
	data := []byte{tfi, cmd}
	data = append(data, args...)

	if len(data) > 255 {
		// extended frames are only needed for payloads PN532 tags never send
		return nil, errors.New("data too big for frame")
	}

	frm := []byte{0x00, 0x00, 0xFF} // preamble and start code

	dlen := byte(len(data))
	frm = append(frm, dlen)    // length
	frm = append(frm, ^dlen+1) // length checksum

	checksum := byte(0)
	for _, b := range data {
		frm = append(frm, b)
		checksum += b
	}

	frm = append(frm, ^checksum+1) // data checksum
	frm = append(frm, 0x00)        // postamble

	return frm, nil
}

func sendFrame(port Port, cmd byte, args []byte) ([]byte, error) {
	frm, err := buildFrame(hostToPn532, cmd, args)
	if err != nil {
		return nil, err
	}

	err = wakeUp(port)
	if err != nil {
		return nil, err
	}

	err = writeAll(port, frm, "frame")
	if err != nil {
		return nil, err
	}

	return waitAck(port)
}

// parseFrame finds a complete frame in buf. It returns the data part without
// the TFI, and false if more bytes are needed.
func parseFrame(buf []byte) ([]byte, bool, error) {
	off := bytes.Index(buf, []byte{0x00, 0xFF})
	if off < 0 {
		return nil, false, nil
	}
	off += 2

	// LEN, LCS, TFI, DATA..., DCS
	if len(buf) < off+2 {
		return nil, false, nil
	}

	frameLen := int(buf[off])
	if (frameLen+int(buf[off+1]))&0xFF != 0 {
		return nil, true, errors.New("invalid frame length")
	} else if frameLen == 0 {
		return nil, true, errors.New("empty frame")
	}

	body := off + 2
	if len(buf) < body+frameLen+1 {
		return nil, false, nil
	}

	chk := byte(0)
	for _, b := range buf[body : body+frameLen+1] {
		chk += b
	}
	if chk != 0 {
		return nil, true, errors.New("invalid frame checksum")
	}

	if buf[body] != pn532ToHost {
		return nil, true, fmt.Errorf("invalid TFI, expected PN532 to host, got: %x", buf[body])
	}

	data := make([]byte, frameLen-1)
	copy(data, buf[body+1:body+frameLen])

	return data, true, nil
}

// Read a single frame from the serial port, returning the data part of the
// frame. Optionally accepts data to prepend to the read buffer and treat as
// part of the potential frame.
func receiveFrame(port Port, pre []byte) ([]byte, error) {
	tries := 0
	maxTries := 3

	buf := append([]byte{}, pre...)
	chunk := make([]byte, 255+7)
	reads := 0

	for {
		data, done, err := parseFrame(buf)
		if done && err == nil {
			log.Debug().Msgf("received frame data: %x", data)
			return data, nil
		} else if done {
			if tries >= maxTries {
				return nil, err
			}
			tries++
			log.Debug().Err(err).Msg("bad frame, sending NACK")
			err := sendNack(port)
			if err != nil {
				return nil, err
			}
			buf = buf[:0]
			reads = 0
			continue
		}

		if reads >= maxFrameReads {
			return nil, ErrNoFrameFound
		}

		n, err := port.Read(chunk)
		if err != nil {
			return nil, err
		}
		reads++
		if n == 0 && len(buf) == 0 {
			// read timeout with nothing pending
			return nil, ErrNoFrameFound
		}
		buf = append(buf, chunk[:n]...)
	}
}

func callCommand(
	port Port,
	cmd byte,
	data []byte,
) ([]byte, error) {
	ackData, err := sendFrame(port, cmd, data)
	if err != nil {
		return nil, err
	}

	if len(ackData) > 0 {
		log.Debug().Msgf("pre ack data: %x", ackData)
	}

	time.Sleep(6 * time.Millisecond)

	res, err := receiveFrame(port, ackData)
	if err != nil {
		return nil, err
	}

	err = sendAck(port)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 || res[0] != cmd+1 {
		return nil, fmt.Errorf("unexpected response to command %#x: %x", cmd, res)
	}

	return res, nil
}

func SamConfiguration(port Port) error {
	log.Debug().Msg("running sam configuration")
	// sets pn532 to "normal" mode
	res, err := callCommand(port, cmdSamConfiguration, []byte{0x01, 0x14, 0x01})
	if err != nil {
		return err
	} else if len(res) != 1 {
		return errors.New("unexpected sam configuration response")
	}

	return nil
}

type FirmwareVersion struct {
	Version          string
	SupportIso14443a bool
	SupportIso14443b bool
	SupportIso18092  bool
}

func GetFirmwareVersion(port Port) (FirmwareVersion, error) {
	log.Debug().Msg("running getfirmwareversion")
	res, err := callCommand(port, cmdGetFirmwareVersion, []byte{})
	if err != nil {
		return FirmwareVersion{}, err
	} else if len(res) != 5 {
		return FirmwareVersion{}, errors.New("unexpected firmware version response")
	}

	if res[1] != 0x32 {
		return FirmwareVersion{}, fmt.Errorf("unexpected IC: %x", res[1])
	}

	fv := FirmwareVersion{
		Version:          fmt.Sprintf("%d.%d", res[2], res[3]),
		SupportIso14443a: res[4]&0x01 == 0x01,
		SupportIso14443b: res[4]&0x02 == 0x02,
		SupportIso18092:  res[4]&0x04 == 0x04,
	}

	return fv, nil
}

type GeneralStatus struct {
	LastError    byte
	FieldPresent bool
}

func GetGeneralStatus(port Port) (GeneralStatus, error) {
	log.Debug().Msg("running getgeneralstatus")
	res, err := callCommand(port, cmdGetGeneralStatus, []byte{})
	if err != nil {
		return GeneralStatus{}, err
	} else if len(res) < 4 {
		return GeneralStatus{}, errors.New("unexpected general status response")
	}

	gs := GeneralStatus{
		LastError:    res[1],
		FieldPresent: res[2] == 0x01,
	}

	return gs, nil
}

type Target struct {
	Atqa     [2]byte
	Sak      byte
	Uid      string
	UidBytes []byte
}

// Layout returns the memory layout of the target if it's a MIFARE Classic.
func (t *Target) Layout() (mifare.Layout, bool) {
	return mifare.LayoutForSak(t.Sak)
}

// InListPassiveTarget selects a single ISO14443A tag in the field, returning
// nil if there isn't one.
func InListPassiveTarget(port Port) (*Target, error) {
	res, err := callCommand(port, cmdInListPassiveTarget, []byte{0x01, 0x00})
	if errors.Is(err, ErrNoFrameFound) {
		// no tag detected, cancel the pending command
		return nil, sendAck(port)
	} else if err != nil {
		return nil, err
	} else if len(res) < 2 {
		return nil, errors.New("unexpected passive target response")
	} else if res[1] != 0x01 {
		// no tag detected
		return nil, nil
	}

	// Tg, SENS_RES (2), SEL_RES, NFCIDLength, NFCID1
	if len(res) < 7 {
		return nil, errors.New("short passive target response")
	}

	uidLen := int(res[6])
	if uidLen == 0 || len(res) < 7+uidLen {
		return nil, errors.New("invalid uid length")
	}

	uid := make([]byte, uidLen)
	copy(uid, res[7:7+uidLen])

	return &Target{
		Atqa:     [2]byte{res[3], res[4]},
		Sak:      res[5],
		Uid:      hex.EncodeToString(uid),
		UidBytes: uid,
	}, nil
}

// ExchangeError is a non-zero status returned by InDataExchange.
type ExchangeError struct {
	Status byte
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("data exchange error: %#x", e.Status)
}

func InDataExchange(port Port, data []byte) ([]byte, error) {
	res, err := callCommand(port, cmdInDataExchange, append([]byte{0x01}, data...))
	if err != nil {
		return nil, err
	} else if len(res) < 2 {
		return nil, errors.New("unexpected data exchange response")
	} else if res[1]&0x3F != statusOk {
		return nil, &ExchangeError{Status: res[1] & 0x3F}
	}

	return res[2:], nil
}
