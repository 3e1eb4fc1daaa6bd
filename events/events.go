// Package events implements the core's outward-facing event stream: the
// typed notifications UI and dispatcher collaborators consume in place of
// the original's callback-per-domain style (original_source design notes,
// "Callback-heavy C style -> typed event streams").
package events

import "time"

// Kind identifies the domain of an Event.
type Kind int

const (
	KindIncomingRequest Kind = iota
	KindAccepted
	KindRejected
	KindMemberListUpdate
	KindLinkLost
	KindTimeout
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindIncomingRequest:
		return "incoming_request"
	case KindAccepted:
		return "accepted"
	case KindRejected:
		return "rejected"
	case KindMemberListUpdate:
		return "member_list_update"
	case KindLinkLost:
		return "link_lost"
	case KindTimeout:
		return "timeout"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one notification surfaced to a subscriber.
type Event struct {
	Kind      Kind
	SessionID string // peer device id or frequency id, depending on session kind
	Timestamp time.Time
	Reason    string // human-readable detail, e.g. a rejection reason or error message
	Data      any    // kind-specific payload, e.g. a protocol.MemberList
}
