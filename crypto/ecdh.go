package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
)

// ECDHContext holds one side's ephemeral X25519 state for a single key
// agreement (original_source ecdh_context_t).
type ECDHContext struct {
	private *ecdh.PrivateKey
	public  *ecdh.PublicKey

	peerPublic   *ecdh.PublicKey
	sharedSecret []byte
}

// GenerateKeypair creates a fresh ephemeral X25519 key pair.
func (c *ECDHContext) GenerateKeypair() error {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return ErrInvalidKey
	}
	c.private = priv
	c.public = priv.PublicKey()
	return nil
}

// PublicKey returns the 32-byte encoded public key, for inclusion in a
// MSG_KEY_EXCHANGE payload.
func (c *ECDHContext) PublicKey() ([]byte, error) {
	if c.public == nil {
		return nil, ErrNotInitialized
	}
	return c.public.Bytes(), nil
}

// ComputeSharedSecret performs the X25519 scalar multiplication against the
// peer's public key. The raw output is never used as a key directly: callers
// must pass it through DeriveSessionKey.
func (c *ECDHContext) ComputeSharedSecret(peerPublicKey []byte) error {
	if c.private == nil {
		return ErrNotInitialized
	}
	if len(peerPublicKey) != ECDHKeySize {
		return ErrInvalidKey
	}

	peer, err := ecdh.X25519().NewPublicKey(peerPublicKey)
	if err != nil {
		return ErrInvalidKey
	}

	secret, err := c.private.ECDH(peer)
	if err != nil {
		return ErrInvalidKey
	}

	c.peerPublic = peer
	c.sharedSecret = secret
	return nil
}

// SharedSecret returns the raw X25519 output, or ErrNotAgreed if
// ComputeSharedSecret hasn't run yet.
func (c *ECDHContext) SharedSecret() ([]byte, error) {
	if c.sharedSecret == nil {
		return nil, ErrNotAgreed
	}
	return c.sharedSecret, nil
}
