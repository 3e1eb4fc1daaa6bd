package audio

import "sync/atomic"

// Ring is a single-producer single-consumer ring buffer of audio frames.
// One goroutine may call Write/WriteFrame; a different single goroutine may
// call Read/Peek/Skip concurrently with it — no locking is needed between
// the two sides because each only ever advances its own index, and the
// other side only ever reads it.
//
// writeCount and readCount are monotonically increasing counts rather than
// indices mod BufferFrames, so count()'s difference unambiguously tells
// full from empty without a sentinel slot.
type Ring struct {
	frames [BufferFrames]Frame

	writeCount atomic.Uint32
	readCount  atomic.Uint32

	nextSequence uint16 // touched only by the writer

	jitterDepth uint8
	jitterArmed atomic.Bool // latched true once primed, cleared on empty

	stats Stats
}

// NewRing returns an empty ring with the default jitter depth of 3 frames.
func NewRing() *Ring {
	r := &Ring{jitterDepth: 3}
	return r
}

func (r *Ring) count() uint32 {
	return r.writeCount.Load() - r.readCount.Load()
}

// IsEmpty reports whether the ring holds no frames.
func (r *Ring) IsEmpty() bool { return r.count() == 0 }

// IsFull reports whether the ring has no room for another frame.
func (r *Ring) IsFull() bool { return r.count() >= BufferFrames }

// Count returns the number of frames currently buffered.
func (r *Ring) Count() uint8 { return uint8(r.count()) }

// FillPercent returns the buffer's occupancy as a 0-100 percentage.
func (r *Ring) FillPercent() uint8 {
	return uint8(r.count() * 100 / BufferFrames)
}

// Write appends raw samples as a new frame, stamping it with the next
// sequence number and, if timestamp is 0, a caller-agnostic placeholder of
// 0 (callers on real hardware pass a wall-clock ms value). Returns false if
// the ring is full.
func (r *Ring) Write(samples []byte, timestamp uint32) bool {
	var frame Frame
	frame.Timestamp = timestamp
	frame.Sequence = r.nextSequence
	frame.Length = uint16(len(samples))
	if frame.Length > FrameSize {
		frame.Length = FrameSize
	}
	copy(frame.Samples[:frame.Length], samples)
	frame.Valid = true

	return r.writeFrame(frame)
}

// WriteFrame appends a pre-built frame, preserving its sequence number.
func (r *Ring) WriteFrame(frame Frame) bool {
	return r.writeFrame(frame)
}

func (r *Ring) writeFrame(frame Frame) bool {
	if r.IsFull() {
		r.stats.FramesDropped++
		r.stats.BufferOverruns++
		return false
	}

	gap := SequenceGap(r.stats.LastSequence+1, frame.Sequence)
	if r.stats.FramesWritten > 0 && gap > 0 {
		r.stats.FramesMissed += uint32(gap)
	}
	r.stats.LastSequence = frame.Sequence
	if frame.Sequence == r.nextSequence {
		r.nextSequence++
	}

	idx := r.writeCount.Load() % BufferFrames
	r.frames[idx] = frame
	r.writeCount.Add(1)

	r.stats.FramesWritten++
	if c := uint8(r.count()); c > r.stats.MaxFillLevel {
		r.stats.MaxFillLevel = c
	}

	return true
}

// Read pops the oldest frame. Returns false if the ring is empty.
func (r *Ring) Read() (Frame, bool) {
	if r.IsEmpty() {
		r.stats.BufferUnderruns++
		r.jitterArmed.Store(false)
		return Frame{}, false
	}

	idx := r.readCount.Load() % BufferFrames
	frame := r.frames[idx]
	r.readCount.Add(1)
	r.stats.FramesRead++

	if r.IsEmpty() {
		r.jitterArmed.Store(false)
	}

	return frame, true
}

// Peek returns the oldest frame without consuming it.
func (r *Ring) Peek() (Frame, bool) {
	if r.IsEmpty() {
		return Frame{}, false
	}
	idx := r.readCount.Load() % BufferFrames
	return r.frames[idx], true
}

// Skip discards the oldest frame without returning it.
func (r *Ring) Skip() bool {
	if r.IsEmpty() {
		return false
	}
	r.readCount.Add(1)
	r.stats.FramesRead++
	return true
}

// DurationMS returns how many milliseconds of audio are currently buffered.
func (r *Ring) DurationMS() uint32 {
	return uint32(r.count()) * FrameDurationMS
}

// SetJitterDepth configures how many frames must accumulate before
// JitterReady reports true.
func (r *Ring) SetJitterDepth(frames uint8) {
	r.jitterDepth = frames
}

// JitterReady reports whether playback should start or continue. It
// implements hysteresis: once primed (count reached jitterDepth), it stays
// ready until the buffer runs completely dry, rather than flapping every
// time count dips one frame below jitterDepth. This avoids the audible
// stutter a non-hysteresis threshold would cause under mild jitter.
func (r *Ring) JitterReady() bool {
	if r.jitterArmed.Load() {
		return true
	}
	if uint8(r.count()) >= r.jitterDepth {
		r.jitterArmed.Store(true)
		return true
	}
	return false
}

// Stats returns a snapshot of the ring's counters. Must be called from
// either the reader or writer goroutine, not concurrently with the other
// side's mutation of the same stat fields — callers needing a fully
// race-free cross-goroutine snapshot should serialize through the
// dispatcher that already owns both sides.
func (r *Ring) Stats() Stats {
	return r.stats
}

// ResetStats zeroes the statistics counters without touching buffered
// frames.
func (r *Ring) ResetStats() {
	r.stats = Stats{}
}

// Clear empties the ring and resets sequencing state.
func (r *Ring) Clear() {
	r.readCount.Store(r.writeCount.Load())
	r.nextSequence = 0
	r.jitterArmed.Store(false)
}
