// Command walkiesim brings up two walkie cores over an in-memory radio
// link, places a call between them, and exchanges a few voice frames —
// a host-side demonstration of the dial/dispatch/session wiring with no
// real radio hardware involved (mirrors ystepanoff-nrfcomm's
// examples/transmitter and examples/receiver, generalized off one
// fixed tinygo target to two processes on this machine's loopback).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/duskline/waltalk"
	"github.com/duskline/waltalk/deviceid"
	"github.com/duskline/waltalk/dial"
	"github.com/duskline/waltalk/logging"
	"github.com/duskline/waltalk/protocol"
	"github.com/duskline/waltalk/transport/stub"
)

func main() {
	idA := flag.String("id-a", "10000001", "caller device id")
	idB := flag.String("id-b", "10000002", "callee device id")
	logLevel := flag.String("log-level", "info", "zerolog level")
	rssi := flag.Int("rssi", -45, "simulated signal strength reported by the link")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	identityA, err := deviceid.Custom(*idA)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid id-a:", err)
		os.Exit(1)
	}
	identityB, err := deviceid.Custom(*idB)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid id-b:", err)
		os.Exit(1)
	}

	trA, trB := stub.Pair(int8(*rssi), 8)

	a, err := waltalk.New(waltalk.Config{
		Identity:   identityA,
		Transport:  trA,
		Registry:   prometheus.NewRegistry(),
		LogOptions: logging.Options{Level: *logLevel},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "bring up device A:", err)
		os.Exit(1)
	}
	b, err := waltalk.New(waltalk.Config{
		Identity:   identityB,
		Transport:  trB,
		Registry:   prometheus.NewRegistry(),
		LogOptions: logging.Options{Level: *logLevel},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "bring up device B:", err)
		os.Exit(1)
	}
	defer func() { _ = a.Shutdown() }()
	defer func() { _ = b.Shutdown() }()

	// Auto-answer on B: accept the first incoming call request and tell
	// A about it over the link, the way a UI would after the user taps
	// "accept".
	subID, incoming := b.Bus.Subscribe()
	defer b.Bus.Unsubscribe(subID)
	go func() {
		for ev := range incoming {
			sess := b.Dispatch.LookupSession(identityA.String)
			if sess == nil {
				continue
			}
			if err := sess.Accept(); err != nil {
				b.Log.Warn().Err(err).Msg("auto-answer: accept failed")
				continue
			}
			if err := b.Dispatch.Send(protocol.MsgCallAccept, identityA.String, nil); err != nil {
				b.Log.Warn().Err(err).Msg("auto-answer: send CALL_ACCEPT failed")
			}
			_ = ev
			return
		}
	}()

	if err := a.Dial.Save(0, dial.ConnDevice, identityB.String, "sim-peer"); err != nil {
		fmt.Fprintln(os.Stderr, "save slot:", err)
		os.Exit(1)
	}
	if err := a.Dial.Connect(0); err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}

	a.Log.Info().Msg("waiting for the call to connect")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		slot, err := a.Dial.Slot(0)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read slot:", err)
			os.Exit(1)
		}
		if slot.State == dial.StateConnected {
			a.Log.Info().Msg("call connected")
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	sess := a.Dispatch.LookupSession(identityB.String)
	if sess == nil {
		fmt.Fprintln(os.Stderr, "lookup session: call connected with no registered session")
		os.Exit(1)
	}

	a.Log.Info().Msg("waiting for the key exchange to agree a session key")
	keyDeadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(keyDeadline) && !sess.Security.KeyAgreed() {
		time.Sleep(20 * time.Millisecond)
	}

	frame := make([]byte, 160)
	for seq := uint16(0); seq < 10; seq++ {
		voice := protocol.VoiceData{
			Timestamp:       uint32(seq) * 20,
			Sequence:        seq,
			Codec:           protocol.CodecPCM16kHz,
			FrameDurationMS: 20,
			Audio:           frame,
		}
		if err := a.Dispatch.SendVoice(identityB.String, sess, voice); err != nil {
			a.Log.Warn().Err(err).Msg("send voice frame failed")
		}
		time.Sleep(20 * time.Millisecond)
	}

	a.Log.Info().Msg("finished sending; waiting for shutdown signal (Ctrl-C) or exiting now")
	select {
	case <-ctx.Done():
	case <-time.After(200 * time.Millisecond):
	}
}
