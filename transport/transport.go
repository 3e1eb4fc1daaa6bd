// Package transport defines the contract the core requires of the
// physical radio link. The link itself — an SX1276-class LoRa modem and
// its register-level driver — is an external collaborator (spec §6); this
// package only states the interface the dispatcher programs against.
package transport

// RadioTransport delivers whole frames in either direction and reports
// the channel-occupancy and signal-quality metadata the dispatcher needs
// for its quality reports (§6).
type RadioTransport interface {
	// Send transmits one whole framed packet. Frame-level atomicity: the
	// implementation either sends the entire frame or returns an error.
	Send(frame []byte) error

	// SetReceiveCallback registers the function invoked once per inbound
	// frame, with the radio's RSSI/SNR reading for that frame.
	SetReceiveCallback(cb func(frame []byte, rssi, snr int8))

	// ChannelIsFree reports whether the link layer believes the channel
	// is clear to transmit on, for best-effort collision avoidance.
	ChannelIsFree() bool
}
