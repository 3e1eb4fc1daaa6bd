package dispatch

import "errors"

// ErrGaveUp is returned by SendReliable once an ACK_REQUIRED message has
// exhausted its retry schedule without a matching ACK (§4.6).
var ErrGaveUp = errors.New("dispatch: ack-required send exhausted its retries")

// ErrNoPendingHandshake is returned when a MSG_KEY_CONFIRM arrives for a
// peer that never received a MSG_KEY_EXCHANGE from us.
var ErrNoPendingHandshake = errors.New("dispatch: key confirm with no pending handshake")
