package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContains(t *testing.T) {
	t.Parallel()

	assert.True(t, Contains([]string{"file", "pn532_uart"}, "file"))
	assert.False(t, Contains([]string{"file", "pn532_uart"}, "libnfc"))
	assert.False(t, Contains(nil, 1))
}

func TestAlphaMapKeys(t *testing.T) {
	t.Parallel()

	m := map[string]int{"tokens": 1, "history": 2, "version": 3}
	assert.Equal(t, []string{"history", "tokens", "version"}, AlphaMapKeys(m))
}

func TestCleanHex(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input string
		want  string
	}{
		"plain":  {input: "FFFFFFFFFFFF", want: "FFFFFFFFFFFF"},
		"colons": {input: "A0:A1:A2:A3:A4:A5", want: "A0A1A2A3A4A5"},
		"spaces": {input: "de ad be ef\n00", want: "deadbeef00"},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, CleanHex(tc.input))
		})
	}
}

func TestIgnoreSerialDevice(t *testing.T) {
	t.Parallel()

	assert.True(t, IgnoreSerialDevice("16C0", "0F38"))
	assert.False(t, IgnoreSerialDevice("1a86", "7523"))
}
