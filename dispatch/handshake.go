package dispatch

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/duskline/waltalk/crypto"
	"github.com/duskline/waltalk/protocol"
	"github.com/duskline/waltalk/session"
)

// pendingHandshake is our own ephemeral ECDH state for a MSG_KEY_EXCHANGE
// we sent while it awaits the peer's MSG_KEY_CONFIRM.
type pendingHandshake struct {
	ecdh  *crypto.ECDHContext
	nonce [crypto.NonceSize]byte
	keyID uint32
}

// StartKeyExchange begins an ECDH handshake with peerID (§5 "key agreement
// happens once, during CONNECTED, before any voice data flows"): generate
// an ephemeral X25519 keypair and nonce, remember them against the peer's
// upcoming MSG_KEY_CONFIRM, and send the opening MSG_KEY_EXCHANGE.
//
// Safe to call again on an already-keyed session: the new handshake
// simply installs a fresh key over the old one once it completes (§5
// rekeying).
func (d *Dispatcher) StartKeyExchange(peerID string) error {
	ec := &crypto.ECDHContext{}
	if err := ec.GenerateKeypair(); err != nil {
		return err
	}
	pub, err := ec.PublicKey()
	if err != nil {
		return err
	}

	hs := &pendingHandshake{ecdh: ec, keyID: randomKeyID()}
	if _, err := rand.Read(hs.nonce[:]); err != nil {
		return err
	}

	d.mu.Lock()
	d.handshakes[peerID] = hs
	d.mu.Unlock()

	var pub32 [32]byte
	copy(pub32[:], pub)
	payload := protocol.EncodeKeyExchange(protocol.KeyExchange{PublicKey: pub32, Nonce: hs.nonce, KeyID: hs.keyID})
	return d.SendReliable(protocol.MsgKeyExchange, peerID, payload)
}

// handleKeyExchange answers a peer's opening MSG_KEY_EXCHANGE: agree the
// shared secret, derive the session key, install it on sess, and reply
// with our own MSG_KEY_CONFIRM so the initiator can derive the same key.
func (d *Dispatcher) handleKeyExchange(sess *session.Session, peerID string, payload []byte) error {
	ke, err := protocol.DecodeKeyExchange(payload)
	if err != nil {
		return err
	}

	ec := &crypto.ECDHContext{}
	if err := ec.GenerateKeypair(); err != nil {
		return err
	}
	if err := ec.ComputeSharedSecret(ke.PublicKey[:]); err != nil {
		return err
	}
	secret, err := ec.SharedSecret()
	if err != nil {
		return err
	}

	var ourNonce [crypto.NonceSize]byte
	if _, err := rand.Read(ourNonce[:]); err != nil {
		return err
	}

	salt := xorNonce(ke.Nonce, ourNonce)
	key, err := crypto.DeriveSessionKey(secret, salt[:])
	if err != nil {
		return err
	}
	if err := sess.Security.SetKey(key, ke.KeyID); err != nil {
		return err
	}

	pub, err := ec.PublicKey()
	if err != nil {
		return err
	}
	var pub32 [32]byte
	copy(pub32[:], pub)
	reply := protocol.EncodeKeyExchange(protocol.KeyExchange{PublicKey: pub32, Nonce: ourNonce, KeyID: ke.KeyID})
	return d.SendReliable(protocol.MsgKeyConfirm, peerID, reply)
}

// handleKeyConfirm completes the initiator side of a handshake begun by
// StartKeyExchange: agree the shared secret from the peer's MSG_KEY_CONFIRM
// and install the same session key the responder just derived.
func (d *Dispatcher) handleKeyConfirm(sess *session.Session, peerID string, payload []byte) error {
	d.mu.Lock()
	hs, ok := d.handshakes[peerID]
	if ok {
		delete(d.handshakes, peerID)
	}
	d.mu.Unlock()
	if !ok {
		return ErrNoPendingHandshake
	}

	kc, err := protocol.DecodeKeyExchange(payload)
	if err != nil {
		return err
	}

	if err := hs.ecdh.ComputeSharedSecret(kc.PublicKey[:]); err != nil {
		return err
	}
	secret, err := hs.ecdh.SharedSecret()
	if err != nil {
		return err
	}

	salt := xorNonce(hs.nonce, kc.Nonce)
	key, err := crypto.DeriveSessionKey(secret, salt[:])
	if err != nil {
		return err
	}
	return sess.Security.SetKey(key, hs.keyID)
}

func randomKeyID() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func xorNonce(a, b [crypto.NonceSize]byte) [crypto.NonceSize]byte {
	var out [crypto.NonceSize]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}
