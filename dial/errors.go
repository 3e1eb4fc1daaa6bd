package dial

import "errors"

var (
	ErrSlotUnconfigured = errors.New("dial: slot is not configured")
	ErrSlotLimitReached = errors.New("dial: all 15 worker slots are in use")
	ErrInvalidPosition  = errors.New("dial: position out of range")
	ErrAlreadyConnected = errors.New("dial: slot already connected")
)
