package mifare

import (
	"errors"
	"fmt"
)

var (
	ErrCapacityExceeded = errors.New("message too long for sector")
	ErrUnencodable      = errors.New("message contains characters outside ISO-8859-1")
	ErrInvalidSector    = errors.New("invalid sector")
	ErrAuthFailed       = errors.New("sector authentication failed")
)

// CapacityError reports how many blocks a message needed against how many the
// target sector could hold. It matches ErrCapacityExceeded with errors.Is.
type CapacityError struct {
	Required int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: [%d/%d] blocks", ErrCapacityExceeded, e.Required, e.Capacity)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}
