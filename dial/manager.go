package dial

import (
	"context"
	"sync"
	"time"

	"github.com/duskline/waltalk/events"
	"github.com/duskline/waltalk/session"
)

// WorkerFunc runs one connected slot's session to completion. It must
// return promptly once ctx is cancelled (disconnect's cancellation
// primitive, §4.5/§4.8): observe ctx.Done() at every suspension point,
// send an outbound disconnect if still connected, then let the session's
// crypto and audio state be torn down by the caller. It must call
// markConnected once its handshake succeeds, so the slot's own State
// leaves CONNECTING — only the worker knows when that happens.
type WorkerFunc func(ctx context.Context, sess *session.Session, markConnected func())

// Manager owns the 15-slot dial wheel and the cursor into it. All slot
// mutation happens under mu, per spec §7's "single manager-level mutex"
// rule; composite inspections (e.g. counting active workers) must also
// hold it.
type Manager struct {
	mu            sync.Mutex
	slots         [Positions]Slot
	position      uint8
	activeWorkers int

	bus   *events.Bus
	spawn WorkerFunc
}

// NewManager returns a manager with all 15 slots empty. spawn is invoked
// in its own goroutine for every successful Connect; bus carries session
// lifecycle notifications (may be nil in tests).
func NewManager(bus *events.Bus, spawn WorkerFunc) *Manager {
	return &Manager{bus: bus, spawn: spawn}
}

func validPosition(i int) bool {
	return i >= 0 && i < Positions
}

// Slot returns a copy of a slot's current metadata and state. The
// Session pointer, if any, remains live and shared.
func (m *Manager) Slot(i int) (Slot, error) {
	if !validPosition(i) {
		return Slot{}, ErrInvalidPosition
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[i], nil
}

// Position returns the current cursor position.
func (m *Manager) Position() uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// ActiveWorkers returns how many slots currently own a running worker.
func (m *Manager) ActiveWorkers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeWorkers
}

// SetPosition moves the cursor directly to position i.
func (m *Manager) SetPosition(i int) error {
	if !validPosition(i) {
		return ErrInvalidPosition
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = uint8(i)
	return nil
}

// Rotate moves the cursor by direction (+1 or -1) with wraparound. If the
// new position is CONNECTED, audio focus transfers there (§4.5).
func (m *Manager) Rotate(direction int) uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := int(m.position) + direction
	next = ((next % Positions) + Positions) % Positions
	m.position = uint8(next)

	if m.slots[next].State == StateConnected {
		m.setActiveAudioLocked(next)
	}
	return m.position
}

// Save overwrites a slot's configuration, tearing down any existing
// session there first (§4.5).
func (m *Manager) Save(i int, connType ConnType, code, name string) error {
	if !validPosition(i) {
		return ErrInvalidPosition
	}
	m.mu.Lock()
	slot := &m.slots[i]
	wasActive := slot.hasWorker()
	m.mu.Unlock()

	if wasActive {
		if err := m.Disconnect(i); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	slot = &m.slots[i]
	slot.Configured = true
	slot.ConnType = connType
	slot.Code = code
	slot.Name = name
	slot.State = StateSaved
	return nil
}

// SetPassword attaches a bcrypt password hash to a configured slot
// (original_source's per-slot `password` field), or clears it when
// passwordHash is empty.
func (m *Manager) SetPassword(i int, passwordHash string) error {
	if !validPosition(i) {
		return ErrInvalidPosition
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.slots[i].Configured {
		return ErrSlotUnconfigured
	}
	m.slots[i].PasswordHash = passwordHash
	return nil
}

// Clear tears down any session and marks the slot empty.
func (m *Manager) Clear(i int) error {
	if !validPosition(i) {
		return ErrInvalidPosition
	}
	m.mu.Lock()
	wasActive := m.slots[i].hasWorker()
	m.mu.Unlock()

	if wasActive {
		if err := m.Disconnect(i); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[i] = Slot{}
	return nil
}

// Connect spawns a worker bound to slot i. Requires the slot be
// configured and not already connected, and that fewer than 15 workers
// are currently running (§4.5).
func (m *Manager) Connect(i int) error {
	if !validPosition(i) {
		return ErrInvalidPosition
	}

	m.mu.Lock()
	slot := &m.slots[i]
	if !slot.Configured {
		m.mu.Unlock()
		return ErrSlotUnconfigured
	}
	if slot.State == StateConnected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	if m.activeWorkers >= Positions {
		m.mu.Unlock()
		return ErrSlotLimitReached
	}

	kind := session.KindCall
	if slot.ConnType == ConnFrequency {
		kind = session.KindFrequency
	}
	sess := session.New(kind, slot.Code, session.RoleClient, m.bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	slot.cancel = cancel
	slot.done = done
	slot.Session = sess
	slot.State = StateConnecting
	slot.Stats.ConnectTime = time.Now()
	m.activeWorkers++
	spawn := m.spawn
	m.mu.Unlock()

	go func() {
		defer close(done)
		if spawn != nil {
			spawn(ctx, sess, func() { _ = m.MarkConnected(i) })
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		s := &m.slots[i]
		s.cancel = nil
		s.done = nil
		if s.Configured {
			s.State = StateSaved
		} else {
			s.State = StateEmpty
		}
		s.IsActiveAudio = false
		s.Session = nil
		m.activeWorkers--
	}()

	return nil
}

// MarkConnected flips a CONNECTING slot to CONNECTED once its worker
// reports a successful handshake (driven by dispatch, not the manager
// itself, since only the worker knows when that happens).
func (m *Manager) MarkConnected(i int) error {
	if !validPosition(i) {
		return ErrInvalidPosition
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.slots[i].hasWorker() {
		return ErrSlotUnconfigured
	}
	m.slots[i].State = StateConnected
	return nil
}

// MarkError transitions a slot to the ERROR state from a worker fault. An
// explicit Disconnect is required to clear it (§4.8).
func (m *Manager) MarkError(i int) error {
	if !validPosition(i) {
		return ErrInvalidPosition
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[i].State = StateError
	return nil
}

// Disconnect requests the worker to terminate and blocks until it
// acknowledges release, then transitions the slot to SAVED or EMPTY
// depending on whether it still carries configuration (§4.5, §4.8).
func (m *Manager) Disconnect(i int) error {
	if !validPosition(i) {
		return ErrInvalidPosition
	}

	m.mu.Lock()
	slot := &m.slots[i]
	cancel := slot.cancel
	done := slot.done
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// DisconnectAll invokes Disconnect for every slot and waits for
// quiescence (§4.8).
func (m *Manager) DisconnectAll() {
	var wg sync.WaitGroup
	for i := 0; i < Positions; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Disconnect(i)
		}()
	}
	wg.Wait()
}

// SetActiveAudio binds the microphone/speaker to slot i, clearing the
// flag everywhere else (§4.5).
func (m *Manager) SetActiveAudio(i int) error {
	if !validPosition(i) {
		return ErrInvalidPosition
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setActiveAudioLocked(i)
	return nil
}

func (m *Manager) setActiveAudioLocked(i int) {
	for j := range m.slots {
		m.slots[j].IsActiveAudio = j == i
	}
}
