package protocol

import "errors"

// Framing errors are always local: the caller increments a counter and
// drops the packet (§7). None of these are ever surfaced on an event stream.
var (
	ErrShortBuffer    = errors.New("protocol: buffer shorter than header")
	ErrBadMagic       = errors.New("protocol: bad magic")
	ErrBadVersion     = errors.New("protocol: unsupported version")
	ErrLengthOverflow = errors.New("protocol: payload length overflow")
	ErrCrcMismatch    = errors.New("protocol: crc mismatch")
)
