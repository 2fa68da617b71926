// Package core implements the paykit payment-coordination engine: identity
// and session-key lifecycle, the Noise-framed interactive channel, payment
// method selection and execution, endpoint rotation, subscriptions, and
// sealed-blob request discovery. It depends only on the opaque
// DirectoryStorage, BitcoinExecutor, and LightningExecutor seams — the
// directory network and wallet/node drivers live outside this package.
package core

import (
	"crypto/ecdh"
	"crypto/ed25519"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/tv42/zbase32"
	"golang.org/x/crypto/hkdf"
)

// bindingDomainTag is prepended to every session-key binding signature
// (spec §3, §4.3) so a binding signature can never be replayed as some other
// kind of Ed25519-signed message.
const bindingDomainTag = "paykit-binding-v1"

// Identity is an Ed25519 root keypair. The seed is cold: once a session key
// has been published via a binding (§4.3), ordinary operation never touches
// it again.
type Identity struct {
	Seed      [ed25519.SeedSize]byte
	PublicKey [ed25519.PublicKeySize]byte
}

// GenerateIdentity creates a new Ed25519 identity using a CSPRNG.
func GenerateIdentity() (Identity, error) {
	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		return Identity{}, WrapError(CodeInternal, "generate identity", err)
	}
	var id Identity
	copy(id.Seed[:], priv.Seed())
	copy(id.PublicKey[:], pub)
	return id, nil
}

// Sign signs msg with the identity's Ed25519 seed.
func (id Identity) Sign(msg []byte) []byte {
	priv := ed25519.NewKeyFromSeed(id.Seed[:])
	return ed25519.Sign(priv, msg)
}

// VerifySignature verifies an Ed25519 signature under pub. It runs in
// constant time on the failing branch (ed25519.Verify already is).
func VerifySignature(pub, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// SignBinding produces the signature over a session-key binding: it is a
// pure function of (seed, x25519Pub, deviceID) so it never needs network
// input while the seed is in memory.
func (id Identity) SignBinding(x25519Pub []byte, deviceID string) []byte {
	msg := append([]byte(bindingDomainTag), x25519Pub...)
	msg = append(msg, []byte(deviceID)...)
	return id.Sign(msg)
}

// VerifyBinding verifies a binding signature under the owner's Ed25519 public key.
func VerifyBinding(ownerPub, x25519Pub []byte, deviceID string, sig []byte) bool {
	msg := append([]byte(bindingDomainTag), x25519Pub...)
	msg = append(msg, []byte(deviceID)...)
	return VerifySignature(ownerPub, msg, sig)
}

// DeriveX25519 deterministically derives a per-device, per-epoch X25519
// session keypair from an Ed25519 seed via HKDF-SHA256 with
// info = device_id || epoch_be32 (spec §4.1). Same inputs always yield the
// same 32-byte secret.
func DeriveX25519(seed []byte, deviceID string, epoch uint32) (sk, pk [32]byte, err error) {
	if len(seed) != ed25519.SeedSize {
		return sk, pk, NewError(CodeInvalidData, "seed must be 32 bytes")
	}
	info := make([]byte, 0, len(deviceID)+4)
	info = append(info, []byte(deviceID)...)
	var epochBE [4]byte
	binary.BigEndian.PutUint32(epochBE[:], epoch)
	info = append(info, epochBE[:]...)

	kdf := hkdf.New(sha256.New, seed, nil, info)
	raw := make([]byte, 32)
	if _, err := io.ReadFull(kdf, raw); err != nil {
		return sk, pk, WrapError(CodeInternal, "hkdf derive", err)
	}
	// X25519 clamping is performed internally by crypto/ecdh.
	curve := ecdh.X25519()
	priv, err := curve.NewPrivateKey(raw)
	if err != nil {
		return sk, pk, WrapError(CodeInvalidData, "x25519 private key", err)
	}
	copy(sk[:], priv.Bytes())
	copy(pk[:], priv.PublicKey().Bytes())
	return sk, pk, nil
}

// X25519PublicFromSecret recovers the public key for a previously derived
// secret, used by tests to verify the base-point invariant (spec §8).
func X25519PublicFromSecret(sk [32]byte) ([32]byte, error) {
	var pk [32]byte
	priv, err := ecdh.X25519().NewPrivateKey(sk[:])
	if err != nil {
		return pk, WrapError(CodeInvalidData, "x25519 private key", err)
	}
	copy(pk[:], priv.PublicKey().Bytes())
	return pk, nil
}

// EncodePubZ32 encodes a raw public key as z-base32 (human-friendly,
// confusable-character-free).
func EncodePubZ32(pub []byte) string {
	return zbase32.EncodeToString(pub)
}

// DecodePubZ32 decodes a z-base32 public key back to raw bytes.
func DecodePubZ32(s string) ([]byte, error) {
	b, err := zbase32.DecodeString(s)
	if err != nil {
		return nil, WrapError(CodeInvalidData, "z-base32 decode", err)
	}
	return b, nil
}
