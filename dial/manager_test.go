package dial

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/duskline/waltalk/session"
)

func blockingWorker(ctx context.Context, sess *session.Session, markConnected func()) {
	<-ctx.Done()
}

func TestSaveConnectDisconnectLifecycle(t *testing.T) {
	m := NewManager(nil, blockingWorker)

	if err := m.Save(0, ConnDevice, "10000001", "alice"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	slot, _ := m.Slot(0)
	if slot.State != StateSaved {
		t.Fatalf("state = %s, want saved", slot.State)
	}

	if err := m.Connect(0); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	slot, _ = m.Slot(0)
	if slot.State != StateConnecting {
		t.Fatalf("state = %s, want connecting", slot.State)
	}
	if m.ActiveWorkers() != 1 {
		t.Fatalf("ActiveWorkers = %d, want 1", m.ActiveWorkers())
	}

	if err := m.Disconnect(0); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if m.ActiveWorkers() != 0 {
		t.Fatalf("ActiveWorkers after disconnect = %d, want 0", m.ActiveWorkers())
	}
	slot, _ = m.Slot(0)
	if slot.State != StateSaved {
		t.Fatalf("state after disconnect = %s, want saved", slot.State)
	}
}

func TestConnectUnconfiguredSlotFails(t *testing.T) {
	m := NewManager(nil, blockingWorker)
	if err := m.Connect(3); err != ErrSlotUnconfigured {
		t.Fatalf("err = %v, want ErrSlotUnconfigured", err)
	}
}

func TestConnectRejectsSixteenthSlot(t *testing.T) {
	m := NewManager(nil, blockingWorker)

	for i := 0; i < Positions; i++ {
		if err := m.Save(i, ConnDevice, "1000000"+string(rune('0'+i%10)), "x"); err != nil {
			t.Fatalf("Save(%d): %v", i, err)
		}
		if err := m.Connect(i); err != nil {
			t.Fatalf("Connect(%d): %v", i, err)
		}
	}

	if m.ActiveWorkers() != Positions {
		t.Fatalf("ActiveWorkers = %d, want %d", m.ActiveWorkers(), Positions)
	}

	// All 15 slots are occupied; a 16th connect attempt on any position
	// not yet configured must fail without starting a worker.
	if err := m.Connect(0); err != ErrAlreadyConnected {
		t.Fatalf("reconnecting an already-connected slot: got %v", err)
	}

	m.DisconnectAll()
	if m.ActiveWorkers() != 0 {
		t.Fatalf("ActiveWorkers after DisconnectAll = %d, want 0", m.ActiveWorkers())
	}
}

func TestRotateWraps(t *testing.T) {
	m := NewManager(nil, blockingWorker)
	m.SetPosition(0)

	if got := m.Rotate(-1); got != Positions-1 {
		t.Fatalf("Rotate(-1) from 0 = %d, want %d", got, Positions-1)
	}
	if got := m.Rotate(1); got != 0 {
		t.Fatalf("Rotate(1) from 14 = %d, want 0", got)
	}
}

func TestSetActiveAudioIsExclusive(t *testing.T) {
	m := NewManager(nil, blockingWorker)
	m.Save(0, ConnDevice, "10000001", "a")
	m.Save(1, ConnDevice, "10000002", "b")

	if err := m.SetActiveAudio(0); err != nil {
		t.Fatal(err)
	}
	if err := m.SetActiveAudio(1); err != nil {
		t.Fatal(err)
	}

	s0, _ := m.Slot(0)
	s1, _ := m.Slot(1)
	if s0.IsActiveAudio {
		t.Fatal("slot 0 still active after switching to slot 1")
	}
	if !s1.IsActiveAudio {
		t.Fatal("slot 1 not active after SetActiveAudio")
	}
}

func TestClearTearsDownConnectedSlot(t *testing.T) {
	m := NewManager(nil, blockingWorker)
	m.Save(0, ConnDevice, "10000001", "a")
	if err := m.Connect(0); err != nil {
		t.Fatal(err)
	}

	if err := m.Clear(0); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	slot, _ := m.Slot(0)
	if slot.State != StateEmpty || slot.Configured {
		t.Fatalf("slot after Clear = %+v, want empty/unconfigured", slot)
	}
	if m.ActiveWorkers() != 0 {
		t.Fatalf("ActiveWorkers after Clear = %d, want 0", m.ActiveWorkers())
	}
}

func TestConcurrentConnectsRespectSlotLimit(t *testing.T) {
	m := NewManager(nil, func(ctx context.Context, sess *session.Session, markConnected func()) {
		<-ctx.Done()
	})

	var wg sync.WaitGroup
	errs := make([]error, Positions+1)
	for i := 0; i < Positions; i++ {
		m.Save(i, ConnDevice, "1000000"+string(rune('0'+i%10)), "x")
	}

	for i := 0; i < Positions; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.Connect(i)
		}()
	}
	wg.Wait()

	for i, err := range errs[:Positions] {
		if err != nil {
			t.Fatalf("Connect(%d): %v", i, err)
		}
	}
	if m.ActiveWorkers() != Positions {
		t.Fatalf("ActiveWorkers = %d, want %d", m.ActiveWorkers(), Positions)
	}

	m.DisconnectAll()
	time.Sleep(10 * time.Millisecond)
	if m.ActiveWorkers() != 0 {
		t.Fatalf("ActiveWorkers after DisconnectAll = %d, want 0", m.ActiveWorkers())
	}
}
