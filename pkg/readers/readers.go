package readers

import (
	"errors"
	"strings"

	"github.com/wizzomafizzo/mfctext/pkg/tokens"
	"github.com/wizzomafizzo/mfctext/pkg/utils"
)

var ErrNotClassic = errors.New("not a MIFARE Classic tag")

// Scan is sent by a reader whenever a tag is detected or removed. A nil Token
// with no Error means the tag was removed.
type Scan struct {
	Source string
	Token  *tokens.Token
	Error  error
}

type Reader interface {
	// Ids returns the device string prefixes this reader handles.
	Ids() []string
	// Open any necessary connections to the device and start polling.
	// Takes a device connection string and a channel to send scans to.
	Open(string, chan<- Scan) error
	// Close any open connections to the device and stop polling.
	Close() error
	// Detect attempts to search for a connected device and returns the device
	// connection string. If no device is found, an empty string is returned.
	// Takes a list of currently connected device strings.
	Detect([]string) string
	// Device returns the device connection string.
	Device() string
	// Connected returns true if the device is connected and active.
	Connected() bool
	// Info returns a string with information about the connected device.
	Info() string
	// Write encodes text into the configured sector of the next tag
	// presented. Blocking.
	Write(string) (*tokens.Token, error)
	// CancelWrite stops a pending write request, if any.
	CancelWrite()
}

// ParseDevice splits a device string into its driver id and path, and checks
// the id belongs to the reader.
func ParseDevice(r Reader, device string) (string, string, error) {
	ps := strings.SplitN(device, ":", 2)
	if len(ps) != 2 {
		return "", "", errors.New("invalid device string: " + device)
	}

	if !utils.Contains(r.Ids(), ps[0]) {
		return "", "", errors.New("invalid reader id: " + ps[0])
	}

	return ps[0], ps[1], nil
}
