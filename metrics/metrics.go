// Package metrics exposes the runtime counters and gauges a walkie
// core reports for operational monitoring: audio ring buffer
// over/underruns, CRC/framing failures, active dial workers, auth
// failures, and replay drops (SPEC_FULL §Observability).
//
// Collectors are registered against a caller-supplied prometheus.Registerer
// rather than the package-global default registerer, so a process can
// run more than one core (or more than one test) without collector
// name collisions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds one collector per tracked condition. Vector collectors
// let callers break counts down by device or frequency id where that's
// useful; single-valued conditions use a plain Counter/Gauge.
type Metrics struct {
	RingOverruns  *prometheus.CounterVec // audio.Ring writes that overwrote unread frames, by session peer id
	RingUnderruns *prometheus.CounterVec // audio.Ring reads with nothing buffered, by session peer id

	CRCFailures     prometheus.Counter     // protocol.Parse checksum mismatches
	FramingFailures prometheus.Counter     // protocol.Parse magic/length mismatches
	ActiveWorkers   prometheus.Gauge       // dial.Manager.ActiveWorkers, sampled
	AuthFailures    *prometheus.CounterVec // frequency join attempts rejected for a wrong password, by frequency id
	ReplayDrops     prometheus.Counter     // voice frames dropped as out-of-order/replayed (session.RxGap)
	AckTimeouts     prometheus.Counter     // dispatch.SendReliable exhausting its retry schedule
	SessionsStarted *prometheus.CounterVec // sessions transitioning out of Idle, by kind
	SessionsEnded   *prometheus.CounterVec // sessions transitioning to Idle from Connected/Waiting/Incoming, by reason
}

// New creates every collector and registers it against reg. Callers
// construct one prometheus.Registry per process (or per test) and pass
// it in, rather than relying on the package-global default registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RingOverruns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "waltalk_ring_overruns_total",
			Help: "Audio ring buffer writes that overwrote an unread frame.",
		}, []string{"peer"}),

		RingUnderruns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "waltalk_ring_underruns_total",
			Help: "Audio ring buffer reads attempted with nothing buffered.",
		}, []string{"peer"}),

		CRCFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "waltalk_crc_failures_total",
			Help: "Inbound frames dropped for a checksum mismatch.",
		}),

		FramingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "waltalk_framing_failures_total",
			Help: "Inbound frames dropped for a magic or length mismatch.",
		}),

		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "waltalk_dial_active_workers",
			Help: "Number of dial slots currently holding a live worker goroutine.",
		}),

		AuthFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "waltalk_auth_failures_total",
			Help: "Frequency join attempts rejected for a wrong password.",
		}, []string{"frequency"}),

		ReplayDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "waltalk_replay_drops_total",
			Help: "Voice frames dropped as out-of-order or replayed.",
		}),

		AckTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "waltalk_ack_timeouts_total",
			Help: "ACK_REQUIRED sends that exhausted their retry schedule.",
		}),

		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "waltalk_sessions_started_total",
			Help: "Sessions that left Idle, by kind (call/frequency).",
		}, []string{"kind"}),

		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "waltalk_sessions_ended_total",
			Help: "Sessions that returned to Idle, by end reason.",
		}, []string{"reason"}),
	}
}
