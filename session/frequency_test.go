package session

import (
	"testing"

	"github.com/duskline/waltalk/crypto"
	"github.com/duskline/waltalk/events"
)

func TestEvaluateJoinRequestUnprotectedAccepts(t *testing.T) {
	s := New(KindFrequency, "FREQ0001", RoleAdmin, nil)

	decision, err := s.EvaluateJoinRequest("10000001", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != JoinAccepted {
		t.Fatalf("decision = %v, want JoinAccepted", decision)
	}
}

func TestEvaluateJoinRequestWrongPasswordRejects(t *testing.T) {
	hash, err := crypto.HashFrequencyPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashFrequencyPassword: %v", err)
	}

	s := New(KindFrequency, "FREQ0002", RoleAdmin, nil)
	s.SetPolicy(FrequencyPolicy{PasswordHash: hash})

	decision, err := s.EvaluateJoinRequest("10000002", "wrong-guess")
	if err != ErrWrongPassword {
		t.Fatalf("err = %v, want ErrWrongPassword", err)
	}
	if decision != JoinRejected {
		t.Fatalf("decision = %v, want JoinRejected", decision)
	}
}

func TestEvaluateJoinRequestCorrectPasswordAccepts(t *testing.T) {
	hash, err := crypto.HashFrequencyPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashFrequencyPassword: %v", err)
	}

	s := New(KindFrequency, "FREQ0003", RoleAdmin, nil)
	s.SetPolicy(FrequencyPolicy{PasswordHash: hash})

	decision, err := s.EvaluateJoinRequest("10000003", "correct-horse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != JoinAccepted {
		t.Fatalf("decision = %v, want JoinAccepted", decision)
	}
}

func TestEvaluateJoinRequestApprovalRequiredQueues(t *testing.T) {
	bus := events.NewBus()
	_, ch := bus.Subscribe()

	s := New(KindFrequency, "FREQ0004", RoleAdmin, bus)
	s.SetPolicy(FrequencyPolicy{ApprovalRequired: true})

	decision, err := s.EvaluateJoinRequest("10000004", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != JoinPending {
		t.Fatalf("decision = %v, want JoinPending", decision)
	}

	pending := s.PendingJoins()
	if len(pending) != 1 || pending[0].DeviceID != "10000004" {
		t.Fatalf("pending = %+v, want one entry for 10000004", pending)
	}

	select {
	case ev := <-ch:
		if ev.Kind != events.KindIncomingRequest {
			t.Errorf("event kind = %v, want incoming_request", ev.Kind)
		}
	default:
		t.Fatal("expected an event to be published")
	}

	s.ResolvePendingJoin("10000004")
	if len(s.PendingJoins()) != 0 {
		t.Fatal("expected pending queue to be empty after resolution")
	}
}

func TestSetAdminTogglesRole(t *testing.T) {
	s := New(KindFrequency, "FREQ0005", RoleClient, nil)
	s.SetAdmin(true)
	if s.Role != RoleAdmin {
		t.Fatalf("Role = %v, want RoleAdmin", s.Role)
	}
	s.SetAdmin(false)
	if s.Role != RoleClient {
		t.Fatalf("Role = %v, want RoleClient", s.Role)
	}
}
