package dispatch

import (
	"gonum.org/v1/gonum/stat"

	"github.com/duskline/waltalk/protocol"
)

// latencyWindow caps how many recent round-trip samples feed a quality
// report before the oldest are dropped.
const latencyWindow = 32

// latencyTracker accumulates per-link round-trip samples (one per
// ACK_REQUIRED reply) to back MSG_QUALITY_REPORT (ka9q_ubersdr's rolling
// stream statistics, adapted from sample buffers to link quality).
type latencyTracker struct {
	samples []float64
}

func (lt *latencyTracker) record(ms float64) {
	lt.samples = append(lt.samples, ms)
	if len(lt.samples) > latencyWindow {
		lt.samples = lt.samples[len(lt.samples)-latencyWindow:]
	}
}

// buildQualityReport summarizes sent/received/lost counters and the
// latency window into a QUALITY_REPORT payload. Mean and standard
// deviation (used as a jitter proxy) are computed with gonum/stat rather
// than by hand.
func buildQualityReport(sent, received, lost uint16, rssi int8, lt *latencyTracker) protocol.QualityReport {
	var avg, jitter float64
	if len(lt.samples) > 0 {
		avg = stat.Mean(lt.samples, nil)
		if len(lt.samples) > 1 {
			jitter = stat.StdDev(lt.samples, nil)
		}
	}

	quality := uint8(100)
	if sent > 0 {
		lossRatio := float64(lost) / float64(sent)
		quality = uint8(100 * (1 - lossRatio))
	}

	return protocol.QualityReport{
		PacketsSent:     sent,
		PacketsReceived: received,
		PacketsLost:     lost,
		AvgLatencyMS:    uint16(avg),
		JitterMS:        uint16(jitter),
		RSSI:            rssi,
		LinkQuality:     quality,
	}
}
