package dispatch

import (
	"testing"
	"time"

	"github.com/duskline/waltalk/crypto"
	"github.com/duskline/waltalk/events"
	"github.com/duskline/waltalk/protocol"
	"github.com/duskline/waltalk/session"
	"github.com/duskline/waltalk/transport/stub"
)

func TestPingAnsweredWithPong(t *testing.T) {
	a, b := stub.Pair(-50, 8)
	da := New("10000001", a, nil, nil, nil)
	_ = New("10000002", b, nil, nil, nil)

	frame, err := protocol.Build(protocol.MsgPing, "10000002", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b.Send(frame)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(a.Outbox()) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	out := a.Outbox()
	if len(out) == 0 {
		t.Fatal("expected a to reply with PONG")
	}
	h, _, err := protocol.Parse(out[0])
	if err != nil {
		t.Fatalf("Parse reply: %v", err)
	}
	if h.MsgType != protocol.MsgPong {
		t.Fatalf("reply type = %#x, want PONG", h.MsgType)
	}
	_ = da
}

func TestSendReliableSucceedsOnFirstAck(t *testing.T) {
	a, b := stub.Pair(-50, 8)
	da := New("10000001", a, nil, nil, nil)
	db := New("10000002", b, nil, nil, nil)
	_ = db

	done := make(chan error, 1)
	go func() {
		done <- da.SendReliable(protocol.MsgCallRequest, "10000002", protocol.EncodeCallRequest(protocol.CallRequest{TargetID: "10000002"}))
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SendReliable: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SendReliable never returned")
	}
}

func TestSendReliableGivesUpWithoutPeer(t *testing.T) {
	a := stub.New() // unpaired: nothing ever acks
	da := New("10000001", a, nil, nil, nil)

	start := time.Now()
	err := da.SendReliable(protocol.MsgCallRequest, "10000099", protocol.EncodeCallRequest(protocol.CallRequest{TargetID: "10000099"}))
	if err != ErrGaveUp {
		t.Fatalf("err = %v, want ErrGaveUp", err)
	}
	if elapsed := time.Since(start); elapsed < 600*time.Millisecond {
		t.Fatalf("gave up too soon: %v", elapsed)
	}
}

func TestInboundCallRequestCreatesIncomingSession(t *testing.T) {
	a, b := stub.Pair(-50, 8)
	bus := events.NewBus()
	_, ch := bus.Subscribe()

	da := New("10000001", a, bus, nil, nil)
	_ = New("10000002", b, nil, nil, nil)

	frame, err := protocol.Build(protocol.MsgCallRequest, "10000002",
		protocol.EncodeCallRequest(protocol.CallRequest{TargetID: "10000001"}))
	if err != nil {
		t.Fatal(err)
	}
	b.Send(frame)

	select {
	case ev := <-ch:
		if ev.Kind != events.KindIncomingRequest {
			t.Fatalf("event kind = %v, want incoming_request", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an incoming_request event")
	}

	sess := da.lookupSession("10000002")
	if sess == nil {
		t.Fatal("expected an incoming session registered under the caller's id")
	}
	if sess.State() != session.StateIncoming {
		t.Fatalf("state = %s, want incoming", sess.State())
	}
}

func TestVoiceDroppedWithoutSession(t *testing.T) {
	a, b := stub.Pair(-50, 8)
	da := New("10000001", a, nil, nil, nil)
	_ = New("10000002", b, nil, nil, nil)

	voice := protocol.EncodeVoiceData(protocol.VoiceData{
		Timestamp: 1, Sequence: 1, Codec: protocol.CodecPCM16kHz, FrameDurationMS: 20, Audio: make([]byte, 4),
	})
	frame, err := protocol.Build(protocol.MsgVoiceData, "10000002", voice)
	if err != nil {
		t.Fatal(err)
	}
	b.Send(frame)

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if da.Stats.VoiceDropped == 0 {
		t.Fatal("expected VoiceDropped to be incremented")
	}
}

func TestVoiceRoutedToConnectedSession(t *testing.T) {
	a, b := stub.Pair(-50, 8)
	da := New("10000001", a, nil, nil, nil)
	_ = New("10000002", b, nil, nil, nil)

	sess := session.New(session.KindCall, "10000002", session.RoleClient, nil)
	if err := sess.RequestIncoming(); err != nil {
		t.Fatal(err)
	}
	if err := sess.Accept(); err != nil {
		t.Fatal(err)
	}
	da.RegisterSession("10000002", sess)

	key, err := crypto.DeriveSessionKey([]byte("test-shared-secret"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Security.SetKey(key, 1); err != nil {
		t.Fatal(err)
	}

	audio := []byte("sixteen-bytes!!!")
	ciphertext, counter, err := sess.Security.Encrypt(audio, []byte("10000002"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	voice := protocol.EncodeVoiceData(protocol.VoiceData{
		Timestamp: 7, Sequence: uint16(counter), Codec: protocol.CodecPCM16kHz, FrameDurationMS: 20, Audio: ciphertext,
	})
	frame, err := protocol.Build(protocol.MsgVoiceData, "10000002", voice)
	if err != nil {
		t.Fatal(err)
	}
	b.Send(frame)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sess.RXRing.Count() > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if sess.RXRing.Count() == 0 {
		t.Fatal("expected the voice frame to land in the session's RX ring")
	}
	got, ok := sess.RXRing.Read()
	if !ok {
		t.Fatal("expected a frame to be readable")
	}
	if string(got.Samples[:got.Length]) != string(audio) {
		t.Fatalf("decrypted audio = %q, want %q", got.Samples[:got.Length], audio)
	}
}

func TestKeyExchangeHandshakeAgreesSharedKey(t *testing.T) {
	a, b := stub.Pair(-50, 8)
	da := New("10000001", a, nil, nil, nil)
	db := New("10000002", b, nil, nil, nil)

	sessA := session.New(session.KindCall, "10000002", session.RoleClient, nil)
	sessB := session.New(session.KindCall, "10000001", session.RoleClient, nil)
	da.RegisterSession("10000002", sessA)
	db.RegisterSession("10000001", sessB)

	if err := da.StartKeyExchange("10000002"); err != nil {
		t.Fatalf("StartKeyExchange: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sessA.Security.KeyAgreed() && sessB.Security.KeyAgreed() {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !sessA.Security.KeyAgreed() || !sessB.Security.KeyAgreed() {
		t.Fatal("handshake never completed on both sides")
	}

	ciphertext, counter, err := sessA.Security.Encrypt([]byte("agreed"), []byte("aad"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	plaintext, err := sessB.Security.Decrypt(ciphertext, []byte("aad"), counter)
	if err != nil {
		t.Fatalf("Decrypt with the peer-derived key: %v", err)
	}
	if string(plaintext) != "agreed" {
		t.Fatalf("plaintext = %q, want %q", plaintext, "agreed")
	}
}

func TestFreqJoinRequestRoutesToFrequencySession(t *testing.T) {
	a, b := stub.Pair(-50, 8)
	da := New("10000001", a, nil, nil, nil)
	_ = New("10000002", b, nil, nil, nil)

	freqSess := session.New(session.KindFrequency, "FREQ0001", session.RoleAdmin, nil)
	da.RegisterSession("FREQ0001", freqSess)

	req := protocol.EncodeFreqJoinRequest(protocol.FreqJoinRequest{FreqID: "FREQ0001"})
	frame, err := protocol.Build(protocol.MsgFreqJoinRequest, "10000002", req)
	if err != nil {
		t.Fatal(err)
	}
	b.Send(frame)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(a.Outbox()) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	out := a.Outbox()
	if len(out) == 0 {
		t.Fatal("expected the admin to answer the join request")
	}
	h, payload, err := protocol.Parse(out[0])
	if err != nil {
		t.Fatal(err)
	}
	if h.MsgType != protocol.MsgFreqJoinAccept {
		t.Fatalf("reply type = %#x, want FREQ_JOIN_ACCEPT", h.MsgType)
	}
	resp, err := protocol.DecodeFreqJoinResponse(payload)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Accepted {
		t.Fatal("expected an unprotected frequency to accept the join")
	}

	if got := da.lookupSession("10000002"); got != freqSess {
		t.Fatal("expected the joining device to be indexed as a member of the frequency")
	}
}
