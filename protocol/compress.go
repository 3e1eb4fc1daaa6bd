package protocol

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// FlagCompressed marks a packet whose payload was passed through Compress
// before framing (protocol_v2.h FLAG_COMPRESSED). The flag lives in the
// caller's message-specific header byte, not in the wire Header itself;
// Compress/Decompress operate purely on the payload bytes.
const FlagCompressed = 0x01

var (
	encOnce sync.Once
	enc     *zstd.Encoder

	decOnce sync.Once
	dec     *zstd.Decoder
)

func encoder() *zstd.Encoder {
	encOnce.Do(func() {
		enc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	})
	return enc
}

func decoder() *zstd.Decoder {
	decOnce.Do(func() {
		dec, _ = zstd.NewReader(nil)
	})
	return dec
}

// Compress returns payload zstd-compressed. Called by the dispatcher before
// Build when a status or control payload is large enough to bother (voice
// frames are never compressed; they're already near-incompressible PCM or
// Opus output).
func Compress(payload []byte) []byte {
	return encoder().EncodeAll(payload, make([]byte, 0, len(payload)))
}

// Decompress reverses Compress. The caller must know from the message's
// flag byte whether the payload was compressed; Decompress does not guess.
func Decompress(payload []byte) ([]byte, error) {
	return decoder().DecodeAll(payload, nil)
}
