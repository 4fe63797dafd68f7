package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when an address or id does not match any device.
	ErrNotFound = errors.New("device: not found")

	// ErrConflict is returned when creating or editing a device would
	// produce a duplicate address within its kind.
	ErrConflict = errors.New("device: address already in use")

	// ErrInvalidAddress is returned when an address component is out of
	// the 0..255 range.
	ErrInvalidAddress = errors.New("device: invalid address")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidState is returned when state validation fails.
	ErrInvalidState = errors.New("device: invalid state")

	// ErrInvalidFormat is returned when a sensor format is not recognised.
	ErrInvalidFormat = errors.New("device: invalid sensor format")

	// ErrGroupNotFound is returned when a cover group id does not exist.
	ErrGroupNotFound = errors.New("device: cover group not found")
)
