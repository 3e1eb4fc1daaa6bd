//go:build opus

package opus

import (
	hopus "gopkg.in/hraban/opus.v2"
)

// nativeCodec wraps libopus via cgo. Construct with New.
type nativeCodec struct {
	enc *hopus.Encoder
	dec *hopus.Decoder
}

// New creates a Codec for the given sample rate (8000 or 16000, per
// FrameSamples) and a single channel, tuned for voice (OPUS_APPLICATION_VOIP).
func New(sampleRate int, bitrate int) (Codec, error) {
	enc, err := hopus.NewEncoder(sampleRate, 1, hopus.AppVoIP)
	if err != nil {
		return nil, err
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, err
	}

	dec, err := hopus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, err
	}

	return &nativeCodec{enc: enc, dec: dec}, nil
}

func (c *nativeCodec) Encode(pcm []int16) ([]byte, error) {
	out := make([]byte, 4000)
	n, err := c.enc.Encode(pcm, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func (c *nativeCodec) Decode(data []byte, frameSize int) ([]int16, error) {
	out := make([]int16, frameSize)
	n, err := c.dec.Decode(data, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func (c *nativeCodec) Enabled() bool { return true }
