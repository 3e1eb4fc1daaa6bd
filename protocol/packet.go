package protocol

import "encoding/binary"

// Header is the fixed portion of a packet, decoded from the wire.
type Header struct {
	Magic      uint16
	Version    uint8
	MsgType    MsgType
	SrcID      string // 8 ASCII digits
	PayloadLen uint16
	Checksum   uint16
}

// Build serialises msg_type, src_id and payload into a framed packet. It
// returns LengthOverflow if the payload would exceed MaxPayloadSize.
func Build(msgType MsgType, srcID string, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrLengthOverflow
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], Magic)
	buf[2] = Version
	buf[3] = byte(msgType)
	putSrcID(buf[4:4+DeviceIDLen], srcID)
	binary.LittleEndian.PutUint16(buf[12:14], uint16(len(payload)))
	binary.LittleEndian.PutUint16(buf[checksumOffset:checksumOffset+2], 0)
	copy(buf[HeaderSize:], payload)

	crc := CRC16(buf)
	binary.LittleEndian.PutUint16(buf[checksumOffset:checksumOffset+2], crc)

	return buf, nil
}

// Parse validates and decodes a packet. Returns the header and a view over
// the payload (no copy); the view aliases buf and must not be retained past
// buf's mutation.
func Parse(buf []byte) (Header, []byte, error) {
	if len(buf) < HeaderSize {
		return Header{}, nil, ErrShortBuffer
	}

	magic := binary.LittleEndian.Uint16(buf[0:2])
	if magic != Magic {
		return Header{}, nil, ErrBadMagic
	}

	version := buf[2]
	if version != Version {
		return Header{}, nil, ErrBadVersion
	}

	payloadLen := binary.LittleEndian.Uint16(buf[12:14])
	if int(payloadLen) > MaxPayloadSize || HeaderSize+int(payloadLen) > len(buf) {
		return Header{}, nil, ErrLengthOverflow
	}

	gotChecksum := binary.LittleEndian.Uint16(buf[checksumOffset : checksumOffset+2])

	verify := make([]byte, HeaderSize+int(payloadLen))
	copy(verify, buf[:HeaderSize+int(payloadLen)])
	binary.LittleEndian.PutUint16(verify[checksumOffset:checksumOffset+2], 0)
	wantChecksum := CRC16(verify)

	if gotChecksum != wantChecksum {
		return Header{}, nil, ErrCrcMismatch
	}

	h := Header{
		Magic:      magic,
		Version:    version,
		MsgType:    MsgType(buf[3]),
		SrcID:      getSrcID(buf[4 : 4+DeviceIDLen]),
		PayloadLen: payloadLen,
		Checksum:   gotChecksum,
	}

	return h, buf[HeaderSize : HeaderSize+int(payloadLen)], nil
}

func putSrcID(dst []byte, id string) {
	for i := 0; i < DeviceIDLen; i++ {
		if i < len(id) {
			dst[i] = id[i]
		} else {
			dst[i] = '0'
		}
	}
}

func getSrcID(src []byte) string {
	return string(src[:DeviceIDLen])
}
