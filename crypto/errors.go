// Package crypto implements the link's security context: X25519 key
// agreement, HKDF-SHA256 session-key derivation and AES-128-GCM encryption
// with a nonce-counter and replay watermark (original_source security.h).
package crypto

import "errors"

var (
	ErrInvalidKey      = errors.New("crypto: invalid key")
	ErrNotAgreed       = errors.New("crypto: no key agreed")
	ErrAuthFailed      = errors.New("crypto: authentication failed")
	ErrReplayNonce     = errors.New("crypto: nonce already seen")
	ErrKeyExpired      = errors.New("crypto: key needs refresh")
	ErrBufferSize      = errors.New("crypto: buffer too small")
	ErrNotInitialized  = errors.New("crypto: context not initialized")
)
