package stub

import (
	"testing"
	"time"
)

func TestSendRecordsOutbox(t *testing.T) {
	tr := New()
	if err := tr.Send([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	out := tr.Outbox()
	if len(out) != 1 || string(out[0]) != "\x01\x02\x03" {
		t.Fatalf("Outbox = %v, want one frame {1,2,3}", out)
	}
}

func TestInjectReceiveInvokesCallback(t *testing.T) {
	tr := New()
	got := make(chan []byte, 1)
	tr.SetReceiveCallback(func(frame []byte, rssi, snr int8) {
		got <- frame
	})

	tr.InjectReceive([]byte{9, 9}, -40, 8)

	select {
	case frame := <-got:
		if len(frame) != 2 {
			t.Fatalf("frame = %v, want length 2", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}
}

func TestPairDeliversAcrossLink(t *testing.T) {
	a, b := Pair(-50, 10)

	got := make(chan []byte, 1)
	b.SetReceiveCallback(func(frame []byte, rssi, snr int8) {
		got <- frame
	})

	if err := a.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case frame := <-got:
		if string(frame) != "hello" {
			t.Fatalf("frame = %q, want hello", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("b never received a's frame")
	}
}

func TestChannelIsFreeToggle(t *testing.T) {
	tr := New()
	if !tr.ChannelIsFree() {
		t.Fatal("expected channel free by default")
	}
	tr.SetChannelBusy(true)
	if tr.ChannelIsFree() {
		t.Fatal("expected channel busy after SetChannelBusy(true)")
	}
}
