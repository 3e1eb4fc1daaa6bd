// Package audio implements the voice path's lock-free ring buffer: one
// writer (the radio receive path or the microphone capture path) and one
// reader (playback), communicating through atomically-published indices
// with no mutex (original_source core/audio_buffer.h/.c).
package audio

const (
	// FrameSamples is 20ms of 8kHz 16-bit PCM (original FrameSamples=160).
	FrameSamples = 160

	// FrameSize raises the original's 256-byte AUDIO_FRAME_SIZE to 320
	// (FrameSamples*2) so a full 20ms PCM16 frame fits without truncation
	// — see the Open Question this resolves in SPEC_FULL.md.
	FrameSize = FrameSamples * 2

	// BufferFrames is the ring's depth.
	BufferFrames = 32

	// FrameDurationMS is the nominal duration each frame represents.
	FrameDurationMS = 20
)

// Frame is one slot's worth of audio plus its sequencing metadata.
type Frame struct {
	Timestamp uint32
	Sequence  uint16
	Length    uint16
	Samples   [FrameSize]byte
	Valid     bool
}
