package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"sync"
	"time"
)

// Stats mirrors original_source security_stats_t.
type Stats struct {
	PacketsEncrypted uint32
	PacketsDecrypted uint32
	AuthFailures     uint32
	ReplayCount      uint32
	KeyRefreshes     uint32
	KeyAge           time.Duration
}

// SecurityContext is one side's encryption state for a single session
// (original_source security_context_t): a session key, a send-side nonce
// counter and a receive-side replay watermark.
//
// Safe for concurrent Encrypt/Decrypt calls from a single dispatcher
// goroutine only during Encrypt (the counter must not race); Decrypt may be
// called from any goroutine since replay checking is itself mutex-guarded.
type SecurityContext struct {
	mu sync.Mutex

	sessionKey   []byte // 16 bytes
	nonceBase    [NonceSize]byte
	keyID        uint32
	createdAt    time.Time
	initialized  bool
	keyAgreed    bool

	sendCounter uint32
	highWater   uint32 // highest counter value accepted on receive

	stats Stats
}

// NewSecurityContext returns a zero-value context; callers must call
// SetKey or SetPSK before Encrypt/Decrypt.
func NewSecurityContext() *SecurityContext {
	return &SecurityContext{}
}

// SetKey installs a session key derived elsewhere (ECDH+HKDF or password
// KDF) along with a fresh random nonce base.
func (c *SecurityContext) SetKey(key []byte, keyID uint32) error {
	if len(key) != KeySize {
		return ErrInvalidKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessionKey = append([]byte(nil), key...)
	if _, err := rand.Read(c.nonceBase[:]); err != nil {
		return err
	}
	c.keyID = keyID
	c.createdAt = time.Now()
	c.initialized = true
	c.keyAgreed = true
	c.sendCounter = 0
	c.highWater = 0
	c.stats = Stats{}
	return nil
}

// SetPSK installs a pre-shared key directly, bypassing ECDH (for
// development and for devices without an agreed key).
func (c *SecurityContext) SetPSK(key []byte) error {
	return c.SetKey(key, 0)
}

// nonceFor XORs the nonce base with a little-endian packet counter, so
// each packet's nonce is unique for the lifetime of the session key without
// needing a full random nonce per packet.
func nonceFor(base [NonceSize]byte, counter uint32) []byte {
	nonce := base
	var ctrBytes [4]byte
	binary.LittleEndian.PutUint32(ctrBytes[:], counter)
	for i := 0; i < 4; i++ {
		nonce[NonceSize-4+i] ^= ctrBytes[i]
	}
	return nonce[:]
}

// Encrypt seals plaintext under the session key with aad authenticated but
// not encrypted (normally the packet header). Returns ciphertext||tag and
// the packet counter used for the nonce, which the caller must transmit
// alongside (e.g. as the voice frame's sequence number).
func (c *SecurityContext) Encrypt(plaintext, aad []byte) (ciphertext []byte, counter uint32, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil, 0, ErrNotInitialized
	}

	gcm, err := c.gcm()
	if err != nil {
		return nil, 0, err
	}

	counter = c.sendCounter
	nonce := nonceFor(c.nonceBase, counter)
	ciphertext = gcm.Seal(nil, nonce, plaintext, aad)

	c.sendCounter++
	c.stats.PacketsEncrypted++

	return ciphertext, counter, nil
}

// Decrypt opens ciphertext sealed with Encrypt's counter. Rejects any
// counter at or below the highest one already accepted (replay watermark,
// original_source security_verify_nonce): this assumes in-order delivery
// with best-effort transports, matching the protocol's reliance on
// sequence-gap detection rather than a sliding replay window.
func (c *SecurityContext) Decrypt(ciphertext, aad []byte, counter uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil, ErrNotInitialized
	}

	if c.stats.PacketsDecrypted > 0 && counter <= c.highWater {
		c.stats.ReplayCount++
		return nil, ErrReplayNonce
	}

	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}

	nonce := nonceFor(c.nonceBase, counter)
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		c.stats.AuthFailures++
		return nil, ErrAuthFailed
	}

	c.highWater = counter
	c.stats.PacketsDecrypted++

	return plaintext, nil
}

func (c *SecurityContext) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.sessionKey)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return cipher.NewGCM(block)
}

// NeedsRefresh reports whether the key has carried too many packets or
// aged past MaxKeyAge and should be rekeyed (MSG_REKEY).
func (c *SecurityContext) NeedsRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return false
	}
	if c.sendCounter >= MaxPacketsBeforeRekey {
		return true
	}
	return time.Since(c.createdAt) >= MaxKeyAge
}

// Stats returns a snapshot of the context's counters.
func (c *SecurityContext) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	if c.initialized {
		s.KeyAge = time.Since(c.createdAt)
	}
	return s
}

// Clear wipes key material (security_context_clear).
func (c *SecurityContext) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.sessionKey {
		c.sessionKey[i] = 0
	}
	c.sessionKey = nil
	c.nonceBase = [NonceSize]byte{}
	c.initialized = false
	c.keyAgreed = false
}

// KeyAgreed reports whether a session key is installed.
func (c *SecurityContext) KeyAgreed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keyAgreed
}

// ConstantTimeCompare wraps crypto/subtle for equal-length secret
// comparisons (auth tokens, PSKs), per the original's
// security_constant_compare contract.
func ConstantTimeCompare(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}
