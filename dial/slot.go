// Package dial implements the fixed 15-position dial wheel: each position
// either sits empty, holds saved connection metadata, or is actively
// connecting/connected via a dedicated worker goroutine (original_source
// dial_manager.h/.c, spec §4.5).
package dial

import (
	"context"
	"time"

	"github.com/duskline/waltalk/session"
)

// Positions is the fixed slot count the dial wheel offers (spec
// §3 "Dial manager").
const Positions = 15

// ConnType distinguishes a one-to-one call slot from a frequency slot.
type ConnType int

const (
	ConnDevice ConnType = iota
	ConnFrequency
)

// State is where a slot currently sits in its own small lifecycle.
type State int

const (
	StateEmpty State = iota
	StateSaved
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateSaved:
		return "saved"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Stats mirrors original_source's per-slot counters.
type Stats struct {
	ConnectTime    time.Time
	BytesSent      uint64
	BytesReceived  uint64
	SignalStrength int8
}

// Slot is one position on the dial wheel (§3 "Dial slot"). Invariant:
// state is CONNECTED or CONNECTING iff the worker fields are non-nil.
type Slot struct {
	Configured   bool
	ConnType     ConnType
	Code         string // saved device id or frequency id
	Name         string
	PasswordHash string // bcrypt hash; empty means no password

	State         State
	Muted         bool
	IsActiveAudio bool
	IsAdmin       bool // frequency slots only: local device created/administers this frequency

	Session *session.Session
	Stats   Stats

	cancel context.CancelFunc
	done   chan struct{}
}

// hasWorker reports whether this slot currently owns a running worker
// goroutine, which must hold iff State is CONNECTING or CONNECTED.
func (s *Slot) hasWorker() bool {
	return s.cancel != nil
}
