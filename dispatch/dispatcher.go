// Package dispatch implements the single inbound parse-and-route path and
// single outbound send path the core presents to its sessions (spec
// §4.6), including PING/PONG, discovery, and ACK-required retransmission
// with exponential backoff.
package dispatch

import (
	"errors"
	"sync"
	"time"

	"github.com/duskline/waltalk/crypto"
	"github.com/duskline/waltalk/events"
	"github.com/duskline/waltalk/metrics"
	"github.com/duskline/waltalk/protocol"
	"github.com/duskline/waltalk/session"
	"github.com/duskline/waltalk/transport"
)

// ackBackoff is the retry schedule for ACK_REQUIRED sends (§4.6): three
// attempts, doubling each time, then give up.
var ackBackoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

// DiscoveryInfo supplies the local device's discovery-response payload.
// Returning ok=false suppresses the reply (visibility off).
type DiscoveryInfo func() (protocol.DiscoverDevice, bool)

type pendingKey struct {
	peer    string
	msgType protocol.MsgType
}

// Dispatcher owns the single inbound and outbound packet paths. It holds
// no session logic of its own — sessions are registered by the caller
// (the dial manager's workers) and looked up by peer/frequency id.
type Dispatcher struct {
	mu sync.Mutex

	deviceID string
	tr       transport.RadioTransport
	bus      *events.Bus
	discover DiscoveryInfo
	metrics  *metrics.Metrics // nil tolerated, used only to surface observability counters

	sessions map[string]*session.Session // keyed by call-peer id or frequency id
	members  map[string]string           // frequency member device id -> frequency id

	pending map[pendingKey]chan struct{}

	handshakes map[string]*pendingHandshake // keyed by peer id, while our MSG_KEY_EXCHANGE awaits MSG_KEY_CONFIRM

	latency map[string]*latencyTracker // keyed by peer id

	Stats Stats
}

// New wires a dispatcher to a transport and registers its receive
// callback; dispatcher lifetime matches the transport's. m may be nil
// (tests construct dispatchers with no registry to talk to).
func New(deviceID string, tr transport.RadioTransport, bus *events.Bus, discover DiscoveryInfo, m *metrics.Metrics) *Dispatcher {
	d := &Dispatcher{
		deviceID:   deviceID,
		tr:         tr,
		bus:        bus,
		discover:   discover,
		metrics:    m,
		sessions:   make(map[string]*session.Session),
		members:    make(map[string]string),
		pending:    make(map[pendingKey]chan struct{}),
		handshakes: make(map[string]*pendingHandshake),
		latency:    make(map[string]*latencyTracker),
	}
	tr.SetReceiveCallback(d.handleInbound)
	return d
}

// RegisterSession makes a session reachable by its peer/frequency id for
// inbound routing.
func (d *Dispatcher) RegisterSession(peerID string, sess *session.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[peerID] = sess
}

// UnregisterSession removes a session and any member-index entries that
// pointed at it.
func (d *Dispatcher) UnregisterSession(peerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, peerID)
	delete(d.latency, peerID)
	delete(d.handshakes, peerID)
	for member, freq := range d.members {
		if freq == peerID {
			delete(d.members, member)
		}
	}
}

// IndexMember records that deviceID is a current member of frequencyID,
// so inbound voice from that member routes to the frequency's session.
func (d *Dispatcher) IndexMember(deviceID, frequencyID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[deviceID] = frequencyID
}

// Send writes one best-effort frame through the single outbound path: no
// ACK, no retransmit (voice and heartbeats, §4.6).
func (d *Dispatcher) Send(msgType protocol.MsgType, targetID string, payload []byte) error {
	frame, err := protocol.Build(msgType, d.deviceID, payload)
	if err != nil {
		return err
	}
	if err := d.tr.Send(frame); err != nil {
		return err
	}
	d.mu.Lock()
	d.Stats.PacketsSent++
	d.mu.Unlock()
	return nil
}

// SendReliable sends a message flagged ACK_REQUIRED, retransmitting with
// exponential backoff (100ms -> 200ms -> 400ms -> give up) until an ACK
// naming msgType arrives from targetID (§4.6). Non-ACK_REQUIRED types
// degrade to a single best-effort Send.
func (d *Dispatcher) SendReliable(msgType protocol.MsgType, targetID string, payload []byte) error {
	if !msgType.RequiresAck() {
		return d.Send(msgType, targetID, payload)
	}

	frame, err := protocol.Build(msgType, d.deviceID, payload)
	if err != nil {
		return err
	}

	key := pendingKey{peer: targetID, msgType: msgType}
	ackCh := make(chan struct{}, 1)

	d.mu.Lock()
	d.pending[key] = ackCh
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()
	}()

	start := time.Now()
	for _, wait := range ackBackoff {
		if err := d.tr.Send(frame); err != nil {
			return err
		}
		d.mu.Lock()
		d.Stats.PacketsSent++
		d.mu.Unlock()

		select {
		case <-ackCh:
			d.recordLatency(targetID, time.Since(start))
			return nil
		case <-time.After(wait):
		}
	}

	d.mu.Lock()
	d.Stats.AckTimeouts++
	d.mu.Unlock()
	return ErrGaveUp
}

// SendVoice encrypts v.Audio under sess's session key before transmitting
// (§5 TX path: session framer -> crypto encrypt -> framing codec ->
// radio), folding the AEAD packet counter into the wire frame's existing
// Sequence field rather than widening the protocol. Returns
// crypto.ErrNotInitialized if no key has been agreed yet.
func (d *Dispatcher) SendVoice(targetID string, sess *session.Session, v protocol.VoiceData) error {
	ciphertext, counter, err := sess.Security.Encrypt(v.Audio, []byte(d.deviceID))
	if err != nil {
		return err
	}
	v.Audio = ciphertext
	v.Sequence = uint16(counter)
	return d.Send(protocol.MsgVoiceData, targetID, protocol.EncodeVoiceData(v))
}

func (d *Dispatcher) recordLatency(peerID string, rtt time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	lt, ok := d.latency[peerID]
	if !ok {
		lt = &latencyTracker{}
		d.latency[peerID] = lt
	}
	lt.record(float64(rtt.Milliseconds()))
}

// QualityReport builds a snapshot quality report for peerID from its
// recorded latency samples and the given packet counters.
func (d *Dispatcher) QualityReport(peerID string, sent, received, lost uint16, rssi int8) protocol.QualityReport {
	d.mu.Lock()
	lt, ok := d.latency[peerID]
	if !ok {
		lt = &latencyTracker{}
	}
	d.mu.Unlock()
	return buildQualityReport(sent, received, lost, rssi, lt)
}

func (d *Dispatcher) publish(kind events.Kind, reason string, data any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(events.Event{Kind: kind, Timestamp: time.Now(), Reason: reason, Data: data})
}

// handleInbound is the single inbound path: parse, then route by
// msg_type (§4.6). Framing faults are local and silent, only bumping a
// counter.
func (d *Dispatcher) handleInbound(frame []byte, rssi, snr int8) {
	header, payload, err := protocol.Parse(frame)
	if err != nil {
		d.mu.Lock()
		d.Stats.PacketsDropped++
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	d.Stats.PacketsReceived++
	d.mu.Unlock()

	switch {
	case header.MsgType == protocol.MsgPing:
		_ = d.Send(protocol.MsgPong, header.SrcID, nil)

	case header.MsgType == protocol.MsgAck || header.MsgType == protocol.MsgNack:
		d.handleAck(header, payload)

	case header.MsgType == protocol.MsgDiscoverRequest:
		d.handleDiscoverRequest(header)

	case header.MsgType == protocol.MsgDiscoverResponse:
		d.handleDiscoverResponse(header, payload)

	case header.MsgType.IsVoice():
		d.routeVoice(header, payload)

	default:
		d.routeControl(header, payload)
	}

	if header.MsgType.RequiresAck() {
		ack := protocol.EncodeAck(protocol.AckPayload{AckedType: header.MsgType})
		_ = d.Send(protocol.MsgAck, header.SrcID, ack)
	}
}

func (d *Dispatcher) handleAck(header protocol.Header, payload []byte) {
	ack, err := protocol.DecodeAck(payload)
	if err != nil {
		return
	}
	key := pendingKey{peer: header.SrcID, msgType: ack.AckedType}

	d.mu.Lock()
	ch, ok := d.pending[key]
	d.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) handleDiscoverRequest(header protocol.Header) {
	if d.discover == nil {
		return
	}
	info, ok := d.discover()
	if !ok {
		return
	}
	_ = d.Send(protocol.MsgDiscoverResponse, header.SrcID, protocol.EncodeDiscoverDevice(info))
}

func (d *Dispatcher) handleDiscoverResponse(header protocol.Header, payload []byte) {
	dev, err := protocol.DecodeDiscoverDevice(payload)
	if err != nil {
		return
	}
	d.publish(events.KindIncomingRequest, "discover_response", dev)
}

// routeVoice matches inbound voice to the session whose peer or
// frequency matches the source, dropping silently (with a counter) if
// none exists (§4.4 "voice accepted in CONNECTED only"), then decrypts
// the frame under the session's agreed key before buffering it (§5 RX
// path: radio -> framing codec -> crypto decrypt -> session framer).
func (d *Dispatcher) routeVoice(header protocol.Header, payload []byte) {
	sess := d.lookupSession(header.SrcID)
	if sess == nil || !sess.CanAcceptVoice() {
		d.mu.Lock()
		d.Stats.VoiceDropped++
		d.mu.Unlock()
		return
	}

	voice, err := protocol.DecodeVoiceData(payload)
	if err != nil {
		d.mu.Lock()
		d.Stats.PacketsDropped++
		d.mu.Unlock()
		return
	}

	sess.Touch()

	plaintext, err := sess.Security.Decrypt(voice.Audio, []byte(header.SrcID), uint32(voice.Sequence))
	if err != nil {
		d.mu.Lock()
		d.Stats.VoiceDropped++
		d.mu.Unlock()
		if errors.Is(err, crypto.ErrReplayNonce) && d.metrics != nil {
			d.metrics.ReplayDrops.Inc()
		}
		return
	}

	sess.RxGap(voice.Sequence)
	sess.RXRing.Write(plaintext, voice.Timestamp)
}

// routeControl matches call/frequency control messages to an existing
// session by source id, creating a new INCOMING session for a legitimate
// unsolicited CALL_REQUEST (§4.6).
func (d *Dispatcher) routeControl(header protocol.Header, payload []byte) {
	sess := d.lookupSession(header.SrcID)

	if sess == nil && header.MsgType == protocol.MsgCallRequest {
		sess = session.New(session.KindCall, header.SrcID, session.RoleClient, d.bus)
		d.RegisterSession(header.SrcID, sess)
		_ = sess.RequestIncoming()
		return
	}

	// A FREQ_JOIN_REQUEST's source is the joining device, which is never
	// registered as a session key on the admin side — it is the
	// frequency's own session, keyed by its FreqID, that holds the join
	// policy (§4.4 "Protected frequencies").
	if sess == nil && header.MsgType == protocol.MsgFreqJoinRequest {
		d.handleFreqJoinRequest(header, payload)
		return
	}

	if sess == nil {
		return
	}
	sess.Touch()

	switch header.MsgType {
	case protocol.MsgCallAccept, protocol.MsgFreqJoinAccept:
		_ = sess.Accept()
	case protocol.MsgCallReject, protocol.MsgFreqJoinReject:
		_ = sess.Reject("rejected by peer")
	case protocol.MsgCallEnd, protocol.MsgFreqClose, protocol.MsgFreqLeave, protocol.MsgFreqKick:
		_ = sess.End("peer closed the session")
	case protocol.MsgFreqMemberList:
		list, err := protocol.DecodeMemberList(payload)
		if err == nil {
			sess.UpdateMemberList(list)
			for _, m := range list.Members {
				d.IndexMember(m.DeviceID, header.SrcID)
			}
		}
	case protocol.MsgKeyExchange:
		if err := d.handleKeyExchange(sess, header.SrcID, payload); err != nil {
			d.mu.Lock()
			d.Stats.PacketsDropped++
			d.mu.Unlock()
		}
	case protocol.MsgKeyConfirm:
		if err := d.handleKeyConfirm(sess, header.SrcID, payload); err != nil {
			d.mu.Lock()
			d.Stats.PacketsDropped++
			d.mu.Unlock()
		}
	case protocol.MsgRekey:
		// Advisory only: the sender's follow-up MSG_KEY_EXCHANGE carries
		// the actual re-agreement, handled by the case above.
	}
}

// handleFreqJoinRequest evaluates a join request against the target
// frequency's policy and answers with MSG_FREQ_JOIN_ACCEPT/REJECT (§4.4).
// A JoinPending decision queues on the frequency session itself; nothing
// is sent back until the admin resolves it.
func (d *Dispatcher) handleFreqJoinRequest(header protocol.Header, payload []byte) {
	req, err := protocol.DecodeFreqJoinRequest(payload)
	if err != nil {
		d.mu.Lock()
		d.Stats.PacketsDropped++
		d.mu.Unlock()
		return
	}

	freqSess := d.lookupSession(req.FreqID)
	if freqSess == nil {
		return
	}

	decision, _ := freqSess.EvaluateJoinRequest(header.SrcID, req.Password)

	switch decision {
	case session.JoinAccepted:
		resp := protocol.EncodeFreqJoinResponse(protocol.FreqJoinResponse{
			FreqID:      req.FreqID,
			Accepted:    true,
			MemberCount: freqSess.MemberCount + 1,
			AdminID:     d.deviceID,
		})
		_ = d.Send(protocol.MsgFreqJoinAccept, header.SrcID, resp)
		d.IndexMember(header.SrcID, req.FreqID)
	case session.JoinRejected:
		if d.metrics != nil {
			d.metrics.AuthFailures.WithLabelValues(req.FreqID).Inc()
		}
		resp := protocol.EncodeFreqJoinResponse(protocol.FreqJoinResponse{FreqID: req.FreqID, Accepted: false, AdminID: d.deviceID})
		_ = d.Send(protocol.MsgFreqJoinReject, header.SrcID, resp)
	case session.JoinPending:
		// Queued on freqSess.PendingJoins; the admin decides later via
		// ResolvePendingJoin and an explicit accept/reject send.
	}
}

// LookupSession returns the session currently registered for srcID,
// either directly or via the frequency-member index, or nil if none
// exists.
func (d *Dispatcher) LookupSession(srcID string) *session.Session {
	return d.lookupSession(srcID)
}

func (d *Dispatcher) lookupSession(srcID string) *session.Session {
	d.mu.Lock()
	defer d.mu.Unlock()

	if sess, ok := d.sessions[srcID]; ok {
		return sess
	}
	if freq, ok := d.members[srcID]; ok {
		return d.sessions[freq]
	}
	return nil
}
