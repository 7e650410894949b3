/*
mfctext
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

package utils

import (
	"net"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Contains returns true if slice contains value.
func Contains[T comparable](xs []T, x T) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// MapKeys returns a list of all keys in a map.
func MapKeys[K comparable, V any](m map[K]V) []K {
	keys := make([]K, len(m))
	i := 0
	for k := range m {
		keys[i] = k
		i++
	}
	return keys
}

func AlphaMapKeys[V any](m map[string]V) []string {
	keys := MapKeys(m)
	sort.Strings(keys)
	return keys
}

// CleanHex removes separators commonly used when writing hex strings by hand.
func CleanHex(s string) string {
	r := strings.NewReplacer(" ", "", ":", "", "-", "", "\n", "", "\t", "")
	return r.Replace(s)
}

// GetLocalIp returns the address of the interface used for outbound traffic.
// No packets are sent.
func GetLocalIp() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer func(conn net.Conn) {
		err := conn.Close()
		if err != nil {
			log.Warn().Err(err).Msg("close connection failed")
		}
	}(conn)

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP, nil
}
