//go:build (linux || darwin) && cgo

package tags

import (
	"errors"
	"fmt"

	"github.com/clausecker/nfc/v2"
	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/mifare"
)

// MifareCard sends MIFARE Classic commands to a selected target. libnfc's
// easy framing takes care of the crypto once a sector is authenticated.
type MifareCard struct {
	pnd    nfc.Device
	target *nfc.ISO14443aTarget
}

func NewMifareCard(pnd nfc.Device, target nfc.Target) (*MifareCard, error) {
	t, ok := target.(*nfc.ISO14443aTarget)
	if !ok {
		return nil, errors.New("target is not ISO14443A")
	} else if t.UIDLen < 4 {
		return nil, fmt.Errorf("invalid UID length: %d", t.UIDLen)
	}
	return &MifareCard{pnd: pnd, target: t}, nil
}

// authUID is the part of the UID used in the auth command, the last 4 bytes
// for 7 byte UIDs.
func (c *MifareCard) authUID() []byte {
	return c.target.UID[c.target.UIDLen-4 : c.target.UIDLen]
}

// reselect wakes the tag after a failed authentication halted it.
func (c *MifareCard) reselect() {
	_, err := c.pnd.InitiatorSelectPassiveTarget(
		SupportedCardTypes[0],
		c.target.UID[:c.target.UIDLen],
	)
	if err != nil {
		log.Debug().Err(err).Msg("could not reselect tag")
	}
}

func (c *MifareCard) Authenticate(block int, kt mifare.KeyType, key mifare.Key) error {
	tx := []byte{byte(kt), byte(block)}
	tx = append(tx, key[:]...)
	tx = append(tx, c.authUID()...)

	_, err := comm(c.pnd, tx, 2)
	if errors.Is(err, nfc.Error(nfc.EMFCAUTHFAIL)) || errors.Is(err, nfc.Error(nfc.ERFTRANS)) {
		c.reselect()
		return fmt.Errorf("block %d: %w", block, mifare.ErrAuthFailed)
	} else if err != nil {
		return err
	}

	return nil
}

func (c *MifareCard) ReadBlock(block int) (mifare.Block, error) {
	var b mifare.Block

	rx, err := comm(c.pnd, []byte{ReadCommand, byte(block)}, 18)
	if err != nil {
		return b, err
	} else if len(rx) < mifare.BlockSize {
		return b, fmt.Errorf("short read of block %d: %d bytes", block, len(rx))
	}

	copy(b[:], rx)
	return b, nil
}

func (c *MifareCard) WriteBlock(block int, data mifare.Block) error {
	tx := []byte{WriteCommand, byte(block)}
	tx = append(tx, data[:]...)

	_, err := comm(c.pnd, tx, 2)
	return err
}
