// Package opus wraps the optional Opus codec path (MSG_VOICE_DATA's
// CodecOpus/CodecOpusDTX variants). It is cgo-gated behind the "opus"
// build tag the same way ka9q_ubersdr isolates its Opus support, so a
// plain `go build` never needs libopus installed.
package opus

// Codec encodes and decodes one channel of 16-bit PCM to and from Opus.
type Codec interface {
	Encode(pcm []int16) ([]byte, error)
	Decode(data []byte, frameSize int) ([]int16, error)
	Enabled() bool
}
