package crypto

import "time"

const (
	KeySize    = 16 // AES-128
	NonceSize  = 12 // GCM nonce
	TagSize    = 16 // GCM auth tag
	ECDHKeySize = 32 // X25519 key
	HashSize   = 32 // SHA-256 output

	// MaxPacketsBeforeRekey bounds packets_encrypted before NeedsRefresh
	// reports true (security_key_needs_refresh's packet-count leg).
	MaxPacketsBeforeRekey = 100_000

	// MaxKeyAge bounds key_created_time before NeedsRefresh reports true
	// (the time-based leg).
	MaxKeyAge = 24 * time.Hour
)
