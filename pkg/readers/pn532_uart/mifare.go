package pn532_uart

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/mifare"
)

const (
	mfAuthKeyA = 0x60
	mfAuthKeyB = 0x61
	mfRead     = 0x30
	mfWrite    = 0xA0
)

// delay between exchanges, the PN532 drops frames sent too quickly
const exchangeDelay = 6 * time.Millisecond

// MifareCard runs MIFARE Classic commands on the selected target through
// InDataExchange.
type MifareCard struct {
	port   Port
	target *Target
}

func NewMifareCard(port Port, target *Target) (*MifareCard, error) {
	if len(target.UidBytes) < 4 {
		return nil, fmt.Errorf("invalid UID length: %d", len(target.UidBytes))
	}
	return &MifareCard{port: port, target: target}, nil
}

func (c *MifareCard) exchange(data []byte) ([]byte, error) {
	defer time.Sleep(exchangeDelay)
	return InDataExchange(c.port, data)
}

// reselect wakes the tag after a failed authentication halted it.
func (c *MifareCard) reselect() {
	tgt, err := InListPassiveTarget(c.port)
	if err != nil {
		log.Debug().Err(err).Msg("could not reselect tag")
	} else if tgt == nil || tgt.Uid != c.target.Uid {
		log.Debug().Msg("tag changed during read")
	}
}

func (c *MifareCard) Authenticate(block int, kt mifare.KeyType, key mifare.Key) error {
	uid := c.target.UidBytes
	tx := []byte{byte(kt), byte(block)}
	tx = append(tx, key[:]...)
	tx = append(tx, uid[len(uid)-4:]...)

	_, err := c.exchange(tx)
	var exErr *ExchangeError
	if errors.As(err, &exErr) && exErr.Status == statusMifareErr {
		c.reselect()
		return fmt.Errorf("block %d: %w", block, mifare.ErrAuthFailed)
	} else if err != nil {
		return err
	}

	return nil
}

func (c *MifareCard) ReadBlock(block int) (mifare.Block, error) {
	var b mifare.Block

	res, err := c.exchange([]byte{mfRead, byte(block)})
	if err != nil {
		return b, err
	} else if len(res) < mifare.BlockSize {
		return b, fmt.Errorf("short read of block %d: %d bytes", block, len(res))
	}

	copy(b[:], res)
	return b, nil
}

func (c *MifareCard) WriteBlock(block int, data mifare.Block) error {
	tx := []byte{mfWrite, byte(block)}
	tx = append(tx, data[:]...)

	_, err := c.exchange(tx)
	return err
}
