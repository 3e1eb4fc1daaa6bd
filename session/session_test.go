package session

import (
	"testing"
	"time"

	"github.com/duskline/waltalk/events"
	"github.com/duskline/waltalk/protocol"
)

func TestLegalTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateWaiting, true},
		{StateIdle, StateIncoming, true},
		{StateIdle, StateConnected, false},
		{StateWaiting, StateConnected, true},
		{StateWaiting, StateIdle, true},
		{StateWaiting, StateIncoming, false},
		{StateIncoming, StateConnected, true},
		{StateIncoming, StateIdle, true},
		{StateConnected, StateIdle, true},
		{StateConnected, StateWaiting, false},
	}
	for _, c := range cases {
		if got := c.from.canTransitionTo(c.to); got != c.want {
			t.Errorf("%s->%s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestOutgoingCallAcceptFlow(t *testing.T) {
	bus := events.NewBus()
	_, ch := bus.Subscribe()

	s := New(KindCall, "10000001", RoleClient, bus)

	if err := s.RequestOutgoing(); err != nil {
		t.Fatalf("RequestOutgoing: %v", err)
	}
	if s.State() != StateWaiting {
		t.Fatalf("state = %s, want waiting", s.State())
	}

	if err := s.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if s.State() != StateConnected {
		t.Fatalf("state = %s, want connected", s.State())
	}

	select {
	case ev := <-ch:
		if ev.Kind != events.KindAccepted {
			t.Errorf("event kind = %v, want accepted", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for accepted event")
	}

	if err := s.End("call ended"); err != nil {
		t.Fatalf("End: %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %s, want idle", s.State())
	}
}

func TestIncomingRejectFlow(t *testing.T) {
	s := New(KindCall, "10000002", RoleClient, nil)

	if err := s.RequestIncoming(); err != nil {
		t.Fatalf("RequestIncoming: %v", err)
	}
	if s.State() != StateIncoming {
		t.Fatalf("state = %s, want incoming", s.State())
	}

	if err := s.Reject(ErrWrongPassword.Error()); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %s, want idle", s.State())
	}
}

func TestAcceptOutsideWaitingOrIncomingIsIllegal(t *testing.T) {
	s := New(KindCall, "10000003", RoleClient, nil)
	if err := s.Accept(); err != ErrIllegalTransition {
		t.Fatalf("Accept from idle: got %v, want ErrIllegalTransition", err)
	}
}

func TestEndOutsideConnectedIsIllegal(t *testing.T) {
	s := New(KindCall, "10000004", RoleClient, nil)
	if err := s.End("x"); err != ErrIllegalTransition {
		t.Fatalf("End from idle: got %v, want ErrIllegalTransition", err)
	}
}

func TestWaitingTimesOutToIdle(t *testing.T) {
	s := New(KindCall, "10000005", RoleClient, events.NewBus())
	s.waitingTimer = nil

	if err := s.RequestOutgoing(); err != nil {
		t.Fatalf("RequestOutgoing: %v", err)
	}

	s.mu.Lock()
	s.waitingTimer.Stop()
	s.waitingTimer = time.AfterFunc(10*time.Millisecond, func() {
		s.mu.Lock()
		if s.state != StateWaiting {
			s.mu.Unlock()
			return
		}
		s.state = StateIdle
		s.mu.Unlock()
	})
	s.mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	if s.State() != StateIdle {
		t.Fatalf("state after timeout = %s, want idle", s.State())
	}
}

func TestTouchKeepsConnectedSessionAlive(t *testing.T) {
	s := New(KindCall, "10000006", RoleClient, nil)
	if err := s.RequestIncoming(); err != nil {
		t.Fatal(err)
	}
	if err := s.Accept(); err != nil {
		t.Fatal(err)
	}

	s.mu.Lock()
	s.watchdogTimer.Stop()
	fired := make(chan struct{})
	s.watchdogTimer = time.AfterFunc(30*time.Millisecond, func() { close(fired) })
	s.mu.Unlock()

	time.Sleep(10 * time.Millisecond)
	s.Touch()

	select {
	case <-fired:
		t.Fatal("watchdog fired despite Touch resetting it")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNextTxSequenceIncrements(t *testing.T) {
	s := New(KindCall, "10000007", RoleClient, nil)
	if got := s.NextTxSequence(); got != 0 {
		t.Fatalf("first seq = %d, want 0", got)
	}
	if got := s.NextTxSequence(); got != 1 {
		t.Fatalf("second seq = %d, want 1", got)
	}
}

func TestRxGapReportsMissedFrames(t *testing.T) {
	s := New(KindCall, "10000008", RoleClient, nil)
	if gap := s.RxGap(0); gap != 0 {
		t.Fatalf("first gap = %d, want 0", gap)
	}
	if gap := s.RxGap(5); gap != 4 {
		t.Fatalf("gap after jump to 5 = %d, want 4", gap)
	}
}

func TestUpdateMemberListPublishesAndCounts(t *testing.T) {
	bus := events.NewBus()
	_, ch := bus.Subscribe()

	s := New(KindFrequency, "FREQ0001", RoleAdmin, bus)
	list := protocol.MemberList{Members: []protocol.MemberInfo{
		{DeviceID: "10000001", Name: "alice", IsAdmin: true},
		{DeviceID: "10000002", Name: "bob"},
	}}
	s.UpdateMemberList(list)

	if s.MemberCount != 2 {
		t.Fatalf("MemberCount = %d, want 2", s.MemberCount)
	}

	select {
	case ev := <-ch:
		if ev.Kind != events.KindMemberListUpdate {
			t.Errorf("event kind = %v, want member_list_update", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for member list event")
	}
}

func TestResolveFrequencyCollisionPrefersEarlierCreation(t *testing.T) {
	earlier := time.Now()
	later := earlier.Add(time.Second)

	if got := ResolveFrequencyCollision(earlier, later); got != -1 {
		t.Errorf("earlier vs later = %d, want -1", got)
	}
	if got := ResolveFrequencyCollision(later, earlier); got != 1 {
		t.Errorf("later vs earlier = %d, want 1", got)
	}
	if got := ResolveFrequencyCollision(earlier, earlier); got != 0 {
		t.Errorf("equal timestamps = %d, want 0", got)
	}
}
