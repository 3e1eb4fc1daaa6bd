// Package stub provides an in-memory transport.RadioTransport double for
// host-side tests, adapted from the original nRF52 mock radio driver's
// bounded ring-buffer outbox (ystepanoff-nrfcomm driver/stub/stub_driver.go)
// to this core's Send/receive-callback contract.
package stub

import "sync"

const outboxCapacity = 64

// Transport is a loopback-friendly RadioTransport double: Send appends to
// a bounded outbox a test can inspect, and InjectReceive synthesizes an
// inbound frame as if the radio had delivered it. If Peer is set, Send
// also delivers the frame straight to the peer's callback, simulating an
// instantaneous point-to-point link.
type Transport struct {
	mu       sync.Mutex
	outbox   [][]byte
	callback func(frame []byte, rssi, snr int8)
	free     bool

	Peer     *Transport
	PeerRSSI int8
	PeerSNR  int8
}

// New returns a transport with the channel reporting free.
func New() *Transport {
	return &Transport{free: true}
}

func (t *Transport) Send(frame []byte) error {
	t.mu.Lock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	if len(t.outbox) == outboxCapacity {
		t.outbox = t.outbox[1:]
	}
	t.outbox = append(t.outbox, cp)
	peer := t.Peer
	rssi, snr := t.PeerRSSI, t.PeerSNR
	t.mu.Unlock()

	if peer != nil {
		peer.InjectReceive(cp, rssi, snr)
	}
	return nil
}

func (t *Transport) SetReceiveCallback(cb func(frame []byte, rssi, snr int8)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callback = cb
}

func (t *Transport) ChannelIsFree() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.free
}

// SetChannelBusy lets a test simulate contention.
func (t *Transport) SetChannelBusy(busy bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.free = !busy
}

// InjectReceive hands frame to whatever callback is currently registered,
// as the radio HAL would on an inbound interrupt.
func (t *Transport) InjectReceive(frame []byte, rssi, snr int8) {
	t.mu.Lock()
	cb := t.callback
	t.mu.Unlock()
	if cb != nil {
		cb(frame, rssi, snr)
	}
}

// Outbox returns a snapshot of every frame Send has queued so far.
func (t *Transport) Outbox() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.outbox))
	for i, f := range t.outbox {
		cp := make([]byte, len(f))
		copy(cp, f)
		out[i] = cp
	}
	return out
}

// Pair wires two stub transports so that each one's Send becomes the
// other's InjectReceive input, for point-to-point dispatcher tests.
func Pair(rssi, snr int8) (a, b *Transport) {
	a, b = New(), New()
	a.Peer, a.PeerRSSI, a.PeerSNR = b, rssi, snr
	b.Peer, b.PeerRSSI, b.PeerSNR = a, rssi, snr
	return a, b
}
