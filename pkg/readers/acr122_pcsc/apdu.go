package acr122pcsc

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/wizzomafizzo/mfctext/pkg/mifare"
)

// volatile key slot used for every authentication
const keySlot = 0x00

var (
	apduGetUID  = []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}
	atrRid      = []byte{0xA0, 0x00, 0x00, 0x03, 0x06}
	ErrShortRes = errors.New("short APDU response")
)

// StatusError is a status word other than 90 00.
type StatusError struct {
	SW1 byte
	SW2 byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("APDU failed: SW=%02X%02X", e.SW1, e.SW2)
}

// transmitter sends an APDU to the card and returns the raw response, status
// word included.
type transmitter interface {
	Transmit(apdu []byte) ([]byte, error)
}

func transmit(card transmitter, apdu []byte) ([]byte, error) {
	res, err := card.Transmit(apdu)
	if err != nil {
		return nil, err
	} else if len(res) < 2 {
		return nil, ErrShortRes
	}

	sw1 := res[len(res)-2]
	sw2 := res[len(res)-1]
	if sw1 != 0x90 || sw2 != 0x00 {
		return nil, &StatusError{SW1: sw1, SW2: sw2}
	}

	return res[:len(res)-2], nil
}

func getUID(card transmitter) (string, error) {
	uid, err := transmit(card, apduGetUID)
	if err != nil {
		return "", err
	} else if len(uid) < 4 {
		return "", fmt.Errorf("invalid UID length: %d", len(uid))
	}
	return hex.EncodeToString(uid), nil
}

// layoutForAtr picks the memory layout from the card name in a PC/SC
// contactless storage card ATR.
func layoutForAtr(atr []byte) (mifare.Layout, bool) {
	// 3B 8F 80 01 80 4F 0C <RID x5> <SS> <NN NN> ...
	if len(atr) < 15 || !bytes.Equal(atr[7:12], atrRid) {
		return mifare.Layout{}, false
	}

	switch uint16(atr[13])<<8 | uint16(atr[14]) {
	case 0x0001:
		return mifare.Classic1K(), true
	case 0x0002:
		return mifare.Classic4K(), true
	case 0x0026:
		return mifare.ClassicMini(), true
	default:
		return mifare.Layout{}, false
	}
}

// MifareCard runs MIFARE Classic operations through the reader's storage
// card pseudo APDUs.
type MifareCard struct {
	card   transmitter
	loaded *mifare.Key
}

func NewMifareCard(card transmitter) *MifareCard {
	return &MifareCard{card: card}
}

func (c *MifareCard) loadKey(key mifare.Key) error {
	if c.loaded != nil && *c.loaded == key {
		return nil
	}

	apdu := []byte{0xFF, 0x82, 0x00, keySlot, 0x06}
	apdu = append(apdu, key[:]...)
	_, err := transmit(c.card, apdu)
	if err != nil {
		return fmt.Errorf("loading key: %w", err)
	}

	c.loaded = &key
	return nil
}

func (c *MifareCard) Authenticate(block int, kt mifare.KeyType, key mifare.Key) error {
	err := c.loadKey(key)
	if err != nil {
		return err
	}

	_, err = transmit(c.card, []byte{
		0xFF, 0x86, 0x00, 0x00, 0x05,
		0x01, 0x00, byte(block), byte(kt), keySlot,
	})
	var swErr *StatusError
	if errors.As(err, &swErr) {
		return fmt.Errorf("block %d: %w", block, mifare.ErrAuthFailed)
	} else if err != nil {
		return err
	}

	return nil
}

func (c *MifareCard) ReadBlock(block int) (mifare.Block, error) {
	var b mifare.Block

	res, err := transmit(c.card, []byte{0xFF, 0xB0, 0x00, byte(block), mifare.BlockSize})
	if err != nil {
		return b, fmt.Errorf("reading block %d: %w", block, err)
	} else if len(res) < mifare.BlockSize {
		return b, fmt.Errorf("short read of block %d: %d bytes", block, len(res))
	}

	copy(b[:], res)
	return b, nil
}

func (c *MifareCard) WriteBlock(block int, data mifare.Block) error {
	apdu := []byte{0xFF, 0xD6, 0x00, byte(block), mifare.BlockSize}
	apdu = append(apdu, data[:]...)

	_, err := transmit(c.card, apdu)
	if err != nil {
		return fmt.Errorf("writing block %d: %w", block, err)
	}
	return nil
}
