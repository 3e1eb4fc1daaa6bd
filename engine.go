// Package waltalk is the façade that wires a dial manager, a
// dispatcher, persistence, metrics, and logging around one device
// identity — the bring-up sequence a UI or cmd/ binary drives,
// generalized off original_source's app_main.c init sequence and
// ystepanoff-nrfcomm's facade.go re-export style (minus any one
// hardware target: RadioTransport is supplied by the caller).
package waltalk

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/duskline/waltalk/deviceid"
	"github.com/duskline/waltalk/dial"
	"github.com/duskline/waltalk/dispatch"
	"github.com/duskline/waltalk/events"
	"github.com/duskline/waltalk/logging"
	"github.com/duskline/waltalk/metrics"
	"github.com/duskline/waltalk/persist"
	"github.com/duskline/waltalk/protocol"
	"github.com/duskline/waltalk/session"
	"github.com/duskline/waltalk/transport"
)

// pollInterval governs how often a worker checks its session's state
// while waiting for a call/join response (no event-driven wakeup exists
// for state alone, since Accept/Reject/timeout can each fire from a
// different goroutine).
const pollInterval = 20 * time.Millisecond

// rekeyCheckInterval governs how often a connected session polls
// Security.NeedsRefresh() to decide whether to restart the ECDH handshake
// (§5 key lifecycle).
const rekeyCheckInterval = 5 * time.Second

// Config bundles everything New needs to bring up one device's core.
type Config struct {
	Identity   deviceid.Identity
	Transport  transport.RadioTransport // required
	Registry   prometheus.Registerer    // nil gets a fresh prometheus.NewRegistry()
	LogOptions logging.Options
	Discover   dispatch.DiscoveryInfo
	StatePath  string // yaml file for persisted dial slots; empty disables persistence
}

// Engine is the façade a UI or cmd/ binary drives: one identity, one
// dispatcher, one dial wheel, with metrics and structured logging
// threaded through rather than held in package globals.
type Engine struct {
	ID       deviceid.Identity
	Bus      *events.Bus
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
	Dispatch *dispatch.Dispatcher
	Dial     *dial.Manager

	statePath string
}

// New brings up an Engine: logger, metrics, dispatcher, dial manager,
// and (if StatePath is set) the previously persisted slot configuration.
func New(cfg Config) (*Engine, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("waltalk: Config.Transport is required")
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	bus := events.NewBus()
	log := logging.New(cfg.Identity.String, cfg.LogOptions)
	m := metrics.New(reg)
	d := dispatch.New(cfg.Identity.String, cfg.Transport, bus, cfg.Discover, m)

	e := &Engine{
		ID:        cfg.Identity,
		Bus:       bus,
		Metrics:   m,
		Log:       log,
		Dispatch:  d,
		statePath: cfg.StatePath,
	}
	e.Dial = dial.NewManager(bus, e.runSlot)

	if cfg.StatePath != "" {
		if st, err := persist.Load(cfg.StatePath); err == nil {
			if err := persist.Restore(st, e.Dial); err != nil {
				log.Warn().Err(err).Msg("failed to restore persisted dial slots")
			}
		}
	}

	return e, nil
}

// SaveState snapshots the dial manager's 15 slots to StatePath. A no-op
// if no StatePath was configured.
func (e *Engine) SaveState() error {
	if e.statePath == "" {
		return nil
	}
	st, err := persist.FromManager(e.ID, e.Dial)
	if err != nil {
		return err
	}
	return persist.Save(e.statePath, st)
}

// Shutdown disconnects every active slot and, if persistence is
// configured, saves the resulting state.
func (e *Engine) Shutdown() error {
	e.Dial.DisconnectAll()
	return e.SaveState()
}

// runSlot is the dial.WorkerFunc bound to every slot this Engine owns:
// send the opening request, wait for accept/reject/timeout, then run
// until the dial manager cancels it, sending the matching close message
// on the way out (§4.5/§4.8).
func (e *Engine) runSlot(ctx context.Context, sess *session.Session, markConnected func()) {
	peer := sess.PeerID
	e.Dispatch.RegisterSession(peer, sess)
	defer e.Dispatch.UnregisterSession(peer)

	if err := sess.RequestOutgoing(); err != nil {
		e.Log.Warn().Err(err).Str("peer", peer).Msg("cannot start an outgoing session")
		return
	}

	msgType, payload := openingMessage(sess.Kind, peer)
	if err := e.Dispatch.SendReliable(msgType, peer, payload); err != nil {
		e.Log.Warn().Err(err).Str("peer", peer).Msg("connection request went unanswered")
		_ = sess.Reject("no response")
		return
	}

	if !e.waitConnected(ctx, sess) {
		return
	}
	markConnected()
	e.Log.Info().Str("peer", peer).Str("kind", sess.Kind.String()).Msg("session connected")

	if err := e.Dispatch.StartKeyExchange(peer); err != nil {
		e.Log.Warn().Err(err).Str("peer", peer).Msg("key exchange failed to start")
	}

	e.runConnected(ctx, sess, peer)

	if sess.State() == session.StateConnected {
		_ = e.Dispatch.Send(closingMessage(sess.Kind), peer, nil)
		_ = sess.End("local disconnect")
	}
}

// runConnected blocks until ctx is cancelled or the session drops back to
// idle, periodically checking whether the agreed key has carried too many
// packets or aged too long and needs replacing (§5 "needs_refresh()
// polling"), restarting the handshake when it has.
func (e *Engine) runConnected(ctx context.Context, sess *session.Session, peer string) {
	ticker := time.NewTicker(rekeyCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sess.State() != session.StateConnected {
				continue
			}
			if sess.Security.NeedsRefresh() {
				_ = e.Dispatch.Send(protocol.MsgRekey, peer, nil)
				if err := e.Dispatch.StartKeyExchange(peer); err != nil {
					e.Log.Warn().Err(err).Str("peer", peer).Msg("rekey failed to start")
				}
			}
		}
	}
}

func openingMessage(kind session.Kind, peer string) (protocol.MsgType, []byte) {
	if kind == session.KindFrequency {
		return protocol.MsgFreqJoinRequest, protocol.EncodeFreqJoinRequest(protocol.FreqJoinRequest{FreqID: peer})
	}
	return protocol.MsgCallRequest, protocol.EncodeCallRequest(protocol.CallRequest{TargetID: peer})
}

func closingMessage(kind session.Kind) protocol.MsgType {
	if kind == session.KindFrequency {
		return protocol.MsgFreqLeave
	}
	return protocol.MsgCallEnd
}

// waitConnected polls sess's state until CONNECTED, IDLE (rejected or
// timed out), or ctx cancellation.
func (e *Engine) waitConnected(ctx context.Context, sess *session.Session) bool {
	deadline := time.Now().Add(session.WaitingTimeout + 5*time.Second)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			switch sess.State() {
			case session.StateConnected:
				return true
			case session.StateIdle:
				return false
			}
			if time.Now().After(deadline) {
				return false
			}
		}
	}
}
