package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// sessionKeyInfo is the HKDF info string binding derived keys to this
// protocol, so the same shared secret can never be reused by an unrelated
// HKDF consumer in the same process.
const sessionKeyInfo = "waltalk-session-key-v1"

// DeriveSessionKey derives a 16-byte AES-128 key from an X25519 shared
// secret (or any other high-entropy secret, such as a PSK) via
// HKDF-SHA256. salt may be nil.
func DeriveSessionKey(secret, salt []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidKey
	}

	r := hkdf.New(sha256.New, secret, salt, []byte(sessionKeyInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// DeriveKeyFromPassword derives a 16-byte AES-128 key from a low-entropy
// password and a salt, via HKDF-SHA256 using the password directly as
// input key material.
//
// This is a deliberate departure from a password-hardening KDF (argon2id,
// scrypt): the original implementation's derive_from_password is
// unparametrised (no iteration count, no memory cost) and is invoked on
// every join of a password-protected frequency, a path that must stay
// cheap on constrained hardware. HKDF matches that contract; at-rest
// storage of the frequency password itself uses bcrypt instead, see
// HashFrequencyPassword.
func DeriveKeyFromPassword(password string, salt []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, ErrInvalidKey
	}

	r := hkdf.New(sha256.New, []byte(password), salt, []byte(sessionKeyInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, ErrInvalidKey
	}
	return key, nil
}
