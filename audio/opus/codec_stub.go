//go:build !opus

package opus

import "errors"

var ErrNotBuilt = errors.New("opus: codec not compiled in, rebuild with -tags opus")

type disabledCodec struct{}

// New returns a codec that always reports disabled; callers should fall
// back to PCM (CodecPCM16kHz/CodecPCM8kHz) when Enabled() is false.
func New(sampleRate int, bitrate int) (Codec, error) {
	return disabledCodec{}, nil
}

func (disabledCodec) Encode(pcm []int16) ([]byte, error)           { return nil, ErrNotBuilt }
func (disabledCodec) Decode(data []byte, frameSize int) ([]int16, error) { return nil, ErrNotBuilt }
func (disabledCodec) Enabled() bool                                { return false }
