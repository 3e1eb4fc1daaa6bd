// Package session implements one logical conversation — a call or a
// frequency membership — as a state machine bound to its own crypto
// context and audio rings (original_source core, spec §4.4).
package session

import "errors"

var (
	ErrIllegalTransition = errors.New("session: illegal state transition")
	ErrWrongPassword     = errors.New("session: wrong password")
	ErrFrequencyFull     = errors.New("session: frequency full")
	ErrFrequencyClosed   = errors.New("session: frequency closed")
	ErrPermissionDenied  = errors.New("session: permission denied")
)
