package bus

import "errors"

// ErrInvalidFrame is returned when a raw datagram cannot be decoded as a
// telegram (too short, bad preamble, or checksum mismatch). Callers should
// log and drop the frame rather than treat it as fatal.
var ErrInvalidFrame = errors.New("bus: invalid frame")

// ErrTransportNotReady is returned by Send when the UDP socket has not yet
// been bound, or no peer has been established to send to.
var ErrTransportNotReady = errors.New("bus: transport not ready")
