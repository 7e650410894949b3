//go:build (linux || darwin) && cgo

/*
mfctext
Copyright (C) 2023, 2024 Callan Barrett
Copyright (C) 2023 Gareth Jones

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

package tags

import (
	"encoding/hex"
	"fmt"

	"github.com/clausecker/nfc/v2"
	"github.com/wizzomafizzo/mfctext/pkg/mifare"
)

const (
	AuthKeyACommand = byte(0x60)
	AuthKeyBCommand = byte(0x61)
	ReadCommand     = byte(0x30)
	WriteCommand    = byte(0xA0)
)

const commTimeout = -1

var SupportedCardTypes = []nfc.Modulation{
	{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106},
}

func GetTagUID(target nfc.Target) string {
	switch target.Modulation() {
	case nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}:
		var card = target.(*nfc.ISO14443aTarget)
		return hex.EncodeToString(card.UID[:card.UIDLen])
	default:
		return ""
	}
}

// GetTagLayout returns the memory layout of a MIFARE Classic target, or false
// if the target is some other kind of tag.
func GetTagLayout(target nfc.Target) (mifare.Layout, bool) {
	switch target.Modulation() {
	case nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}:
		var card = target.(*nfc.ISO14443aTarget)
		// https://www.nxp.com/docs/en/application-note/AN10833.pdf page 9
		return mifare.LayoutForSak(card.Sak)
	}
	return mifare.Layout{}, false
}

func comm(pnd nfc.Device, tx []byte, replySize int) ([]byte, error) {
	rx := make([]byte, replySize)

	n, err := pnd.InitiatorTransceiveBytes(tx, rx, commTimeout)
	if err != nil {
		return nil, fmt.Errorf("comm error: %w", err)
	}

	if n < 0 || n > len(rx) {
		n = 0
	}

	return rx[:n], nil
}
