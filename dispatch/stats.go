package dispatch

// Stats are the dispatcher's local, non-fatal counters (§4.8 propagation
// policy: framing/routing faults never surface, they only update
// counters).
type Stats struct {
	PacketsSent     uint32
	PacketsReceived uint32
	PacketsDropped  uint32 // failed Parse: bad magic/version/CRC/length
	VoiceDropped    uint32 // voice with no matching session
	AckTimeouts     uint32 // ACK_REQUIRED sends that exhausted retries
}
