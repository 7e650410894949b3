//go:build !((linux || darwin) && cgo)

package libnfc

import (
	"errors"

	"github.com/wizzomafizzo/mfctext/pkg/config"
	"github.com/wizzomafizzo/mfctext/pkg/readers"
	"github.com/wizzomafizzo/mfctext/pkg/tokens"
)

var errUnsupported = errors.New("libnfc is not available in this build")

// Reader is a placeholder for builds without cgo, where libnfc can't be
// linked.
type Reader struct{}

func NewReader(_ *config.UserConfig) *Reader {
	return &Reader{}
}

func (r *Reader) Ids() []string {
	return []string{"libnfc"}
}

func (r *Reader) Open(_ string, _ chan<- readers.Scan) error {
	return errUnsupported
}

func (r *Reader) Close() error {
	return nil
}

func (r *Reader) Detect(_ []string) string {
	return ""
}

func (r *Reader) Device() string {
	return ""
}

func (r *Reader) Connected() bool {
	return false
}

func (r *Reader) Info() string {
	return ""
}

func (r *Reader) Write(_ string) (*tokens.Token, error) {
	return nil, errUnsupported
}

func (r *Reader) CancelWrite() {}
