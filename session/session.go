package session

import (
	"sync"
	"time"

	"github.com/duskline/waltalk/audio"
	"github.com/duskline/waltalk/crypto"
	"github.com/duskline/waltalk/events"
	"github.com/duskline/waltalk/protocol"
)

const (
	// WaitingTimeout is how long an outgoing request waits for a response
	// before self-clearing to idle (§4.4).
	WaitingTimeout = 30 * time.Second

	// InactivityTimeout expires a connected session that hasn't seen any
	// inbound packet in this long (§4.4's "implementation policy >= 60s").
	InactivityTimeout = 60 * time.Second
)

// Session is one call or frequency membership (§3 "Session").
type Session struct {
	mu sync.Mutex

	Kind Kind
	// PeerID is the call peer's device id, or the frequency id, depending
	// on Kind.
	PeerID string
	Role   Role

	state State

	Muted       bool
	AudioActive bool
	MemberCount uint8

	policy  FrequencyPolicy
	pending []PendingJoin

	Security *crypto.SecurityContext

	txSeq         uint32
	rxSeqExpected uint16
	JitterDepth   uint8

	RXRing *audio.Ring
	TXRing *audio.Ring

	CreatedAt    time.Time
	ConnectedAt  time.Time
	lastActivity time.Time

	bus *events.Bus

	waitingTimer  *time.Timer
	watchdogTimer *time.Timer
}

// New creates an idle session. bus may be nil, in which case events are
// silently dropped (useful in tests).
func New(kind Kind, peerID string, role Role, bus *events.Bus) *Session {
	return &Session{
		Kind:        kind,
		PeerID:      peerID,
		Role:        role,
		state:       StateIdle,
		JitterDepth: 3,
		Security:    crypto.NewSecurityContext(),
		RXRing:      audio.NewRing(),
		TXRing:      audio.NewRing(),
		CreatedAt:   time.Now(),
		bus:         bus,
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) publish(kind events.Kind, reason string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Kind:      kind,
		SessionID: s.PeerID,
		Timestamp: time.Now(),
		Reason:    reason,
		Data:      data,
	})
}

// transition moves the state machine to next, rejecting illegal arrows.
// Caller must hold s.mu.
func (s *Session) transition(next State) error {
	if !s.state.canTransitionTo(next) {
		return ErrIllegalTransition
	}
	s.state = next
	return nil
}

// RequestOutgoing begins an outgoing call or frequency join: IDLE->WAITING,
// arming the 30s timeout.
func (s *Session) RequestOutgoing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transition(StateWaiting); err != nil {
		return err
	}
	s.armWaitingTimeout()
	return nil
}

// RequestIncoming records an unsolicited inbound request: IDLE->INCOMING,
// and surfaces it on the event stream for the UI collaborator to act on.
func (s *Session) RequestIncoming() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transition(StateIncoming); err != nil {
		return err
	}
	s.publish(events.KindIncomingRequest, "", nil)
	return nil
}

// Accept moves WAITING or INCOMING to CONNECTED and starts the inactivity
// watchdog.
func (s *Session) Accept() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateWaiting && s.state != StateIncoming {
		return ErrIllegalTransition
	}
	if err := s.transition(StateConnected); err != nil {
		return err
	}

	s.stopWaitingTimeoutLocked()
	s.ConnectedAt = time.Now()
	s.lastActivity = s.ConnectedAt
	s.armWatchdogLocked()

	s.publish(events.KindAccepted, "", nil)
	return nil
}

// Reject moves WAITING or INCOMING back to IDLE.
func (s *Session) Reject(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateWaiting && s.state != StateIncoming {
		return ErrIllegalTransition
	}
	if err := s.transition(StateIdle); err != nil {
		return err
	}
	s.stopWaitingTimeoutLocked()
	s.publish(events.KindRejected, reason, nil)
	return nil
}

// End tears a CONNECTED session down to IDLE (CALL_END/FREQ_CLOSE/KICK/link
// loss all funnel through here with a reason).
func (s *Session) End(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return ErrIllegalTransition
	}
	if err := s.transition(StateIdle); err != nil {
		return err
	}
	s.stopWatchdogLocked()
	s.Security.Clear()

	kind := events.KindLinkLost
	if reason == "" {
		kind = events.KindRejected
	}
	s.publish(kind, reason, nil)
	return nil
}

// Touch records inbound packet activity, resetting the inactivity
// watchdog. Safe to call from any state; it is a no-op unless CONNECTED.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity = time.Now()
	if s.state == StateConnected {
		s.armWatchdogLocked()
	}
}

// CanAcceptVoice reports whether inbound voice packets should be routed
// into RXRing. Voice is accepted only while CONNECTED (§4.4).
func (s *Session) CanAcceptVoice() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected
}

// NextTxSequence returns the next outbound sequence number and advances
// the counter.
func (s *Session) NextTxSequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.txSeq
	s.txSeq++
	return seq
}

// RxGap reports the sequence gap between the expected next inbound
// sequence and received, then advances the expectation.
func (s *Session) RxGap(received uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	gap := audio.SequenceGap(s.rxSeqExpected, received)
	s.rxSeqExpected = received + 1
	return gap
}

// UpdateMemberList records a frequency's member count from a
// MSG_FREQ_MEMBER_LIST payload and surfaces the change.
func (s *Session) UpdateMemberList(list protocol.MemberList) {
	s.mu.Lock()
	s.MemberCount = uint8(len(list.Members))
	s.mu.Unlock()

	s.publish(events.KindMemberListUpdate, "", list)
}

func (s *Session) armWaitingTimeout() {
	s.stopWaitingTimeoutLocked()
	s.waitingTimer = time.AfterFunc(WaitingTimeout, func() {
		s.mu.Lock()
		if s.state != StateWaiting {
			s.mu.Unlock()
			return
		}
		s.state = StateIdle
		s.mu.Unlock()
		s.publish(events.KindTimeout, "no response", nil)
	})
}

func (s *Session) stopWaitingTimeoutLocked() {
	if s.waitingTimer != nil {
		s.waitingTimer.Stop()
		s.waitingTimer = nil
	}
}

func (s *Session) armWatchdogLocked() {
	if s.watchdogTimer != nil {
		s.watchdogTimer.Stop()
	}
	s.watchdogTimer = time.AfterFunc(InactivityTimeout, func() {
		s.mu.Lock()
		if s.state != StateConnected {
			s.mu.Unlock()
			return
		}
		s.state = StateIdle
		s.Security.Clear()
		s.mu.Unlock()
		s.publish(events.KindLinkLost, "inactivity watchdog", nil)
	})
}

func (s *Session) stopWatchdogLocked() {
	if s.watchdogTimer != nil {
		s.watchdogTimer.Stop()
		s.watchdogTimer = nil
	}
}

// ResolveFrequencyCollision picks the winner when two devices generated
// colliding frequency ids: the earlier creation timestamp wins announcement
// precedence (§4.4 tie-break, §9 open question).
func ResolveFrequencyCollision(aCreated, bCreated time.Time) int {
	switch {
	case aCreated.Before(bCreated):
		return -1
	case bCreated.Before(aCreated):
		return 1
	default:
		return 0
	}
}
