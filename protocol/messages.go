package protocol

import (
	"encoding/binary"
	"errors"
)

// ErrMalformedPayload is returned by a message decoder when the payload is
// too short or internally inconsistent for its type.
var ErrMalformedPayload = errors.New("protocol: malformed payload")

// Codec identifies the audio encoding of a voice frame (voice_data_v2_t.codec).
type Codec uint8

const (
	CodecPCM16kHz Codec = 0x00
	CodecPCM8kHz  Codec = 0x01
	CodecOpus     Codec = 0x10
	CodecOpusDTX  Codec = 0x11
)

func putID(dst []byte, id string, n int) {
	for i := 0; i < n; i++ {
		if i < len(id) {
			dst[i] = id[i]
		} else {
			dst[i] = 0
		}
	}
}

func getID(src []byte) string {
	n := 0
	for n < len(src) && src[n] != 0 {
		n++
	}
	return string(src[:n])
}

// DiscoverRequest is MSG_DISCOVER_REQUEST's payload.
type DiscoverRequest struct {
	IncludeFrequencies bool
	IncludeDevices     bool
}

func EncodeDiscoverRequest(r DiscoverRequest) []byte {
	buf := make([]byte, 2)
	if r.IncludeFrequencies {
		buf[0] = 1
	}
	if r.IncludeDevices {
		buf[1] = 1
	}
	return buf
}

func DecodeDiscoverRequest(buf []byte) (DiscoverRequest, error) {
	if len(buf) < 2 {
		return DiscoverRequest{}, ErrMalformedPayload
	}
	return DiscoverRequest{IncludeFrequencies: buf[0] != 0, IncludeDevices: buf[1] != 0}, nil
}

// DiscoverDevice is one device entry of a MSG_DISCOVER_RESPONSE.
type DiscoverDevice struct {
	DeviceID string
	Name     string
	Signal   int8
	Available bool
}

func EncodeDiscoverDevice(d DiscoverDevice) []byte {
	buf := make([]byte, DeviceIDLen+DisplayNameLength+2)
	putID(buf[0:DeviceIDLen], d.DeviceID, DeviceIDLen)
	putID(buf[DeviceIDLen:DeviceIDLen+DisplayNameLength], d.Name, DisplayNameLength)
	buf[DeviceIDLen+DisplayNameLength] = byte(d.Signal)
	if d.Available {
		buf[DeviceIDLen+DisplayNameLength+1] = 1
	}
	return buf
}

func DecodeDiscoverDevice(buf []byte) (DiscoverDevice, error) {
	if len(buf) < DeviceIDLen+DisplayNameLength+2 {
		return DiscoverDevice{}, ErrMalformedPayload
	}
	return DiscoverDevice{
		DeviceID:  getID(buf[0:DeviceIDLen]),
		Name:      getID(buf[DeviceIDLen : DeviceIDLen+DisplayNameLength]),
		Signal:    int8(buf[DeviceIDLen+DisplayNameLength]),
		Available: buf[DeviceIDLen+DisplayNameLength+1] != 0,
	}, nil
}

// DiscoverFrequency is one frequency entry of a MSG_DISCOVER_RESPONSE.
type DiscoverFrequency struct {
	FreqID      string
	FreqType    uint8
	Protection  uint8
	MemberCount uint8
	Signal      int8
}

func EncodeDiscoverFrequency(f DiscoverFrequency) []byte {
	buf := make([]byte, DeviceIDLen+4)
	putID(buf[0:DeviceIDLen], f.FreqID, DeviceIDLen)
	buf[DeviceIDLen] = f.FreqType
	buf[DeviceIDLen+1] = f.Protection
	buf[DeviceIDLen+2] = f.MemberCount
	buf[DeviceIDLen+3] = byte(f.Signal)
	return buf
}

func DecodeDiscoverFrequency(buf []byte) (DiscoverFrequency, error) {
	if len(buf) < DeviceIDLen+4 {
		return DiscoverFrequency{}, ErrMalformedPayload
	}
	return DiscoverFrequency{
		FreqID:      getID(buf[0:DeviceIDLen]),
		FreqType:    buf[DeviceIDLen],
		Protection:  buf[DeviceIDLen+1],
		MemberCount: buf[DeviceIDLen+2],
		Signal:      int8(buf[DeviceIDLen+3]),
	}, nil
}

// CallRequest is MSG_CALL_REQUEST's payload: the callee's device id.
type CallRequest struct {
	TargetID string
}

func EncodeCallRequest(c CallRequest) []byte {
	buf := make([]byte, DeviceIDLen)
	putID(buf, c.TargetID, DeviceIDLen)
	return buf
}

func DecodeCallRequest(buf []byte) (CallRequest, error) {
	if len(buf) < DeviceIDLen {
		return CallRequest{}, ErrMalformedPayload
	}
	return CallRequest{TargetID: getID(buf[:DeviceIDLen])}, nil
}

// FreqJoinRequest is MSG_FREQ_JOIN_REQUEST's payload.
type FreqJoinRequest struct {
	FreqID   string
	Password string // empty if none
}

func EncodeFreqJoinRequest(r FreqJoinRequest) []byte {
	buf := make([]byte, DeviceIDLen+PasswordMaxLength)
	putID(buf[0:DeviceIDLen], r.FreqID, DeviceIDLen)
	putID(buf[DeviceIDLen:], r.Password, PasswordMaxLength)
	return buf
}

func DecodeFreqJoinRequest(buf []byte) (FreqJoinRequest, error) {
	if len(buf) < DeviceIDLen+PasswordMaxLength {
		return FreqJoinRequest{}, ErrMalformedPayload
	}
	return FreqJoinRequest{
		FreqID:   getID(buf[0:DeviceIDLen]),
		Password: getID(buf[DeviceIDLen : DeviceIDLen+PasswordMaxLength]),
	}, nil
}

// FreqJoinResponse is MSG_FREQ_JOIN_ACCEPT/MSG_FREQ_JOIN_REJECT's payload.
type FreqJoinResponse struct {
	FreqID      string
	Accepted    bool
	MemberCount uint8
	AdminID     string
}

func EncodeFreqJoinResponse(r FreqJoinResponse) []byte {
	buf := make([]byte, DeviceIDLen+2+DeviceIDLen)
	putID(buf[0:DeviceIDLen], r.FreqID, DeviceIDLen)
	if r.Accepted {
		buf[DeviceIDLen] = 1
	}
	buf[DeviceIDLen+1] = r.MemberCount
	putID(buf[DeviceIDLen+2:], r.AdminID, DeviceIDLen)
	return buf
}

func DecodeFreqJoinResponse(buf []byte) (FreqJoinResponse, error) {
	if len(buf) < DeviceIDLen+2+DeviceIDLen {
		return FreqJoinResponse{}, ErrMalformedPayload
	}
	return FreqJoinResponse{
		FreqID:      getID(buf[0:DeviceIDLen]),
		Accepted:    buf[DeviceIDLen] != 0,
		MemberCount: buf[DeviceIDLen+1],
		AdminID:     getID(buf[DeviceIDLen+2 : DeviceIDLen+2+DeviceIDLen]),
	}, nil
}

// FreqInvite is MSG_FREQ_INVITE's payload.
type FreqInvite struct {
	FreqID       string
	InviterID    string
	InviterName  string
}

func EncodeFreqInvite(i FreqInvite) []byte {
	buf := make([]byte, DeviceIDLen+DeviceIDLen+DisplayNameLength)
	putID(buf[0:DeviceIDLen], i.FreqID, DeviceIDLen)
	putID(buf[DeviceIDLen:2*DeviceIDLen], i.InviterID, DeviceIDLen)
	putID(buf[2*DeviceIDLen:], i.InviterName, DisplayNameLength)
	return buf
}

func DecodeFreqInvite(buf []byte) (FreqInvite, error) {
	if len(buf) < DeviceIDLen+DeviceIDLen+DisplayNameLength {
		return FreqInvite{}, ErrMalformedPayload
	}
	return FreqInvite{
		FreqID:      getID(buf[0:DeviceIDLen]),
		InviterID:   getID(buf[DeviceIDLen : 2*DeviceIDLen]),
		InviterName: getID(buf[2*DeviceIDLen : 2*DeviceIDLen+DisplayNameLength]),
	}, nil
}

// MemberInfo is one entry of a MSG_FREQ_MEMBER_LIST payload.
type MemberInfo struct {
	DeviceID string
	Name     string
	IsAdmin  bool
	IsMuted  bool
	Signal   int8
}

const memberInfoSize = DeviceIDLen + DisplayNameLength + 3

// MemberList is MSG_FREQ_MEMBER_LIST's payload (original_source member_list_t).
type MemberList struct {
	Members []MemberInfo
}

func EncodeMemberList(m MemberList) []byte {
	n := len(m.Members)
	if n > MaxFreqMembers {
		n = MaxFreqMembers
	}
	buf := make([]byte, 1+n*memberInfoSize)
	buf[0] = byte(n)
	for i := 0; i < n; i++ {
		off := 1 + i*memberInfoSize
		mi := m.Members[i]
		putID(buf[off:off+DeviceIDLen], mi.DeviceID, DeviceIDLen)
		putID(buf[off+DeviceIDLen:off+DeviceIDLen+DisplayNameLength], mi.Name, DisplayNameLength)
		if mi.IsAdmin {
			buf[off+DeviceIDLen+DisplayNameLength] = 1
		}
		if mi.IsMuted {
			buf[off+DeviceIDLen+DisplayNameLength+1] = 1
		}
		buf[off+DeviceIDLen+DisplayNameLength+2] = byte(mi.Signal)
	}
	return buf
}

func DecodeMemberList(buf []byte) (MemberList, error) {
	if len(buf) < 1 {
		return MemberList{}, ErrMalformedPayload
	}
	count := int(buf[0])
	if count > MaxFreqMembers || len(buf) < 1+count*memberInfoSize {
		return MemberList{}, ErrMalformedPayload
	}
	members := make([]MemberInfo, count)
	for i := 0; i < count; i++ {
		off := 1 + i*memberInfoSize
		members[i] = MemberInfo{
			DeviceID: getID(buf[off : off+DeviceIDLen]),
			Name:     getID(buf[off+DeviceIDLen : off+DeviceIDLen+DisplayNameLength]),
			IsAdmin:  buf[off+DeviceIDLen+DisplayNameLength] != 0,
			IsMuted:  buf[off+DeviceIDLen+DisplayNameLength+1] != 0,
			Signal:   int8(buf[off+DeviceIDLen+DisplayNameLength+2]),
		}
	}
	return MemberList{Members: members}, nil
}

// VoiceData is MSG_VOICE_DATA's payload (§3): capture timestamp, sequence,
// codec, frame duration and the raw audio bytes.
type VoiceData struct {
	Timestamp       uint32
	Sequence        uint16
	Codec           Codec
	FrameDurationMS uint8
	Audio           []byte
}

const voiceHeaderSize = 4 + 2 + 1 + 1 + 2

func EncodeVoiceData(v VoiceData) []byte {
	buf := make([]byte, voiceHeaderSize+len(v.Audio))
	binary.LittleEndian.PutUint32(buf[0:4], v.Timestamp)
	binary.LittleEndian.PutUint16(buf[4:6], v.Sequence)
	buf[6] = byte(v.Codec)
	buf[7] = v.FrameDurationMS
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(v.Audio)))
	copy(buf[voiceHeaderSize:], v.Audio)
	return buf
}

func DecodeVoiceData(buf []byte) (VoiceData, error) {
	if len(buf) < voiceHeaderSize {
		return VoiceData{}, ErrMalformedPayload
	}
	audioLen := int(binary.LittleEndian.Uint16(buf[8:10]))
	if voiceHeaderSize+audioLen > len(buf) {
		return VoiceData{}, ErrMalformedPayload
	}
	audio := make([]byte, audioLen)
	copy(audio, buf[voiceHeaderSize:voiceHeaderSize+audioLen])
	return VoiceData{
		Timestamp:       binary.LittleEndian.Uint32(buf[0:4]),
		Sequence:        binary.LittleEndian.Uint16(buf[4:6]),
		Codec:           Codec(buf[6]),
		FrameDurationMS: buf[7],
		Audio:           audio,
	}, nil
}

// QualityReport is the MSG_QUALITY_REPORT payload (original_source
// quality_report_t), built by the dispatcher from rolling latency samples.
type QualityReport struct {
	PacketsSent     uint16
	PacketsReceived uint16
	PacketsLost     uint16
	AvgLatencyMS    uint16
	JitterMS        uint16
	RSSI            int8
	LinkQuality     uint8
}

const qualityReportSize = 2 + 2 + 2 + 2 + 2 + 1 + 1

func EncodeQualityReport(q QualityReport) []byte {
	buf := make([]byte, qualityReportSize)
	binary.LittleEndian.PutUint16(buf[0:2], q.PacketsSent)
	binary.LittleEndian.PutUint16(buf[2:4], q.PacketsReceived)
	binary.LittleEndian.PutUint16(buf[4:6], q.PacketsLost)
	binary.LittleEndian.PutUint16(buf[6:8], q.AvgLatencyMS)
	binary.LittleEndian.PutUint16(buf[8:10], q.JitterMS)
	buf[10] = byte(q.RSSI)
	buf[11] = q.LinkQuality
	return buf
}

func DecodeQualityReport(buf []byte) (QualityReport, error) {
	if len(buf) < qualityReportSize {
		return QualityReport{}, ErrMalformedPayload
	}
	return QualityReport{
		PacketsSent:     binary.LittleEndian.Uint16(buf[0:2]),
		PacketsReceived: binary.LittleEndian.Uint16(buf[2:4]),
		PacketsLost:     binary.LittleEndian.Uint16(buf[4:6]),
		AvgLatencyMS:    binary.LittleEndian.Uint16(buf[6:8]),
		JitterMS:        binary.LittleEndian.Uint16(buf[8:10]),
		RSSI:            int8(buf[10]),
		LinkQuality:     buf[11],
	}, nil
}

// KeyExchange is the MSG_KEY_EXCHANGE payload: an X25519 public key, a
// random nonce and a key id (original_source key_exchange_t).
type KeyExchange struct {
	PublicKey [32]byte
	Nonce     [12]byte
	KeyID     uint32
}

const keyExchangeSize = 32 + 12 + 4

func EncodeKeyExchange(k KeyExchange) []byte {
	buf := make([]byte, keyExchangeSize)
	copy(buf[0:32], k.PublicKey[:])
	copy(buf[32:44], k.Nonce[:])
	binary.LittleEndian.PutUint32(buf[44:48], k.KeyID)
	return buf
}

func DecodeKeyExchange(buf []byte) (KeyExchange, error) {
	if len(buf) < keyExchangeSize {
		return KeyExchange{}, ErrMalformedPayload
	}
	var k KeyExchange
	copy(k.PublicKey[:], buf[0:32])
	copy(k.Nonce[:], buf[32:44])
	k.KeyID = binary.LittleEndian.Uint32(buf[44:48])
	return k, nil
}

// ErrorInfo is the MSG_ERROR payload (original_source error_info_t).
type ErrorInfo struct {
	Code           uint16
	RelatedSeq     uint16
	Message        string // truncated to 64 bytes
}

const errorInfoMessageLen = 64
const errorInfoSize = 2 + 2 + errorInfoMessageLen

func EncodeErrorInfo(e ErrorInfo) []byte {
	buf := make([]byte, errorInfoSize)
	binary.LittleEndian.PutUint16(buf[0:2], e.Code)
	binary.LittleEndian.PutUint16(buf[2:4], e.RelatedSeq)
	putID(buf[4:], e.Message, errorInfoMessageLen)
	return buf
}

func DecodeErrorInfo(buf []byte) (ErrorInfo, error) {
	if len(buf) < errorInfoSize {
		return ErrorInfo{}, ErrMalformedPayload
	}
	return ErrorInfo{
		Code:       binary.LittleEndian.Uint16(buf[0:2]),
		RelatedSeq: binary.LittleEndian.Uint16(buf[2:4]),
		Message:    getID(buf[4 : 4+errorInfoMessageLen]),
	}, nil
}

// AckPayload is MSG_ACK's and MSG_NACK's payload: since the header carries
// no sequence number of its own (§3), an acknowledgement names the
// message type it is closing out instead. At most one ACK_REQUIRED
// request of a given type is ever outstanding per peer at a time.
type AckPayload struct {
	AckedType MsgType
}

func EncodeAck(a AckPayload) []byte {
	return []byte{byte(a.AckedType)}
}

func DecodeAck(buf []byte) (AckPayload, error) {
	if len(buf) < 1 {
		return AckPayload{}, ErrMalformedPayload
	}
	return AckPayload{AckedType: MsgType(buf[0])}, nil
}
