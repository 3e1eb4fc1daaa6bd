package session

import (
	"time"

	"github.com/duskline/waltalk/crypto"
	"github.com/duskline/waltalk/events"
)

// JoinDecision is the outcome of a FREQ_JOIN_REQUEST once it has been
// checked against a frequency's protection policy (§4.4 "Protected
// frequencies").
type JoinDecision int

const (
	// JoinAccepted means the request passed its password check (or the
	// frequency is unprotected) and may proceed straight to CONNECTED.
	JoinAccepted JoinDecision = iota
	// JoinRejected means a password was required and didn't match.
	JoinRejected
	// JoinPending means the frequency is approval-protected; the request
	// has been queued and an event raised for the admin to act on.
	JoinPending
)

// PendingJoin is one queued FREQ_JOIN_REQUEST awaiting an admin decision.
type PendingJoin struct {
	DeviceID    string
	RequestedAt time.Time
}

// FrequencyPolicy holds a frequency session's admin-configured join
// requirements. A zero value is an open, unprotected frequency.
type FrequencyPolicy struct {
	PasswordHash     string // bcrypt hash; empty means no password required
	ApprovalRequired bool
}

// SetAdmin records whether this session holds admin standing over the
// frequency. Per §4.4 the flag is set only when we originated the
// frequency or received an explicit server-side designation — callers are
// responsible for only calling this in those two cases.
func (s *Session) SetAdmin(isAdmin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isAdmin {
		s.Role = RoleAdmin
	} else {
		s.Role = RoleClient
	}
}

// SetPolicy configures this frequency's join protection. Only meaningful
// on a KindFrequency session held by its admin.
func (s *Session) SetPolicy(policy FrequencyPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = policy
}

// EvaluateJoinRequest checks a FREQ_JOIN_REQUEST against the frequency's
// policy (§4.4): a wrong password is rejected outright, an
// approval-protected frequency queues the request and surfaces an event,
// and everything else is accepted immediately.
func (s *Session) EvaluateJoinRequest(deviceID, password string) (JoinDecision, error) {
	s.mu.Lock()

	if s.policy.PasswordHash != "" {
		if !crypto.VerifyFrequencyPassword(password, s.policy.PasswordHash) {
			s.mu.Unlock()
			s.publish(events.KindRejected, ErrWrongPassword.Error(), deviceID)
			return JoinRejected, ErrWrongPassword
		}
	}

	if s.policy.ApprovalRequired {
		s.pending = append(s.pending, PendingJoin{DeviceID: deviceID, RequestedAt: time.Now()})
		s.mu.Unlock()
		s.publish(events.KindIncomingRequest, deviceID, nil)
		return JoinPending, nil
	}

	s.mu.Unlock()
	return JoinAccepted, nil
}

// PendingJoins returns a snapshot of requests awaiting an admin decision.
func (s *Session) PendingJoins() []PendingJoin {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingJoin, len(s.pending))
	copy(out, s.pending)
	return out
}

// ResolvePendingJoin removes a queued request, whichever way the admin
// decided it. It is a no-op if deviceID isn't queued.
func (s *Session) ResolvePendingJoin(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.pending {
		if p.DeviceID == deviceID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}
