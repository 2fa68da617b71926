package core

import (
	"context"
	"crypto/ecdh"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// sealedBlobVersion1 is the only currently defined Sealed Blob envelope
// version (spec §3 glossary).
const sealedBlobVersion1 byte = 1

// SealedBlob is the versioned envelope encrypting a plaintext to a
// recipient's X25519 public key, binding an AAD derived from the storage
// path (spec §3).
type SealedBlob struct {
	Version    byte
	Ephemeral  [32]byte
	Nonce      [24]byte
	Ciphertext []byte
}

// Seal encrypts plaintext to recipientX25519Pub, binding aad. An ephemeral
// X25519 keypair is generated per call; the shared secret is passed through
// HKDF-SHA256 before keying ChaCha20-Poly1305 (spec §3, §5: intermediate
// buffers are not retained beyond this call).
func Seal(recipientX25519Pub [32]byte, plaintext, aad []byte) (SealedBlob, error) {
	curve := ecdh.X25519()
	ephPriv, err := curve.GenerateKey(crand.Reader)
	if err != nil {
		return SealedBlob{}, WrapError(CodeInternal, "generate ephemeral key", err)
	}
	recipientKey, err := curve.NewPublicKey(recipientX25519Pub[:])
	if err != nil {
		return SealedBlob{}, WrapError(CodeInvalidData, "recipient public key", err)
	}
	shared, err := ephPriv.ECDH(recipientKey)
	if err != nil {
		return SealedBlob{}, WrapError(CodeInternal, "ecdh", err)
	}

	key, err := sealKDF(shared, ephPriv.PublicKey().Bytes(), recipientX25519Pub[:])
	if err != nil {
		return SealedBlob{}, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return SealedBlob{}, WrapError(CodeInternal, "init aead", err)
	}
	var nonce [24]byte
	if _, err := io.ReadFull(crand.Reader, nonce[:12]); err != nil {
		return SealedBlob{}, WrapError(CodeInternal, "generate nonce", err)
	}
	ciphertext := aead.Seal(nil, nonce[:12], plaintext, aad)

	var blob SealedBlob
	blob.Version = sealedBlobVersion1
	copy(blob.Ephemeral[:], ephPriv.PublicKey().Bytes())
	blob.Nonce = nonce
	blob.Ciphertext = ciphertext
	return blob, nil
}

// Unseal decrypts blob using the recipient's X25519 secret, verifying aad.
// Decryption errors never reveal plaintext (spec §7 policy).
func Unseal(recipientX25519Secret [32]byte, blob SealedBlob, aad []byte) ([]byte, error) {
	if blob.Version != sealedBlobVersion1 {
		return nil, NewError(CodeInvalidData, "unsupported sealed blob version")
	}
	curve := ecdh.X25519()
	priv, err := curve.NewPrivateKey(recipientX25519Secret[:])
	if err != nil {
		return nil, WrapError(CodeInvalidData, "recipient secret", err)
	}
	ephPub, err := curve.NewPublicKey(blob.Ephemeral[:])
	if err != nil {
		return nil, WrapError(CodeInvalidData, "ephemeral public key", err)
	}
	shared, err := priv.ECDH(ephPub)
	if err != nil {
		return nil, WrapError(CodeAuth, "ecdh", err)
	}
	key, err := sealKDF(shared, blob.Ephemeral[:], priv.PublicKey().Bytes())
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, WrapError(CodeInternal, "init aead", err)
	}
	plaintext, err := aead.Open(nil, blob.Nonce[:12], blob.Ciphertext, aad)
	if err != nil {
		return nil, ErrAuth
	}
	return plaintext, nil
}

func sealKDF(shared, ephPub, recipientPub []byte) ([]byte, error) {
	info := append(append([]byte{}, ephPub...), recipientPub...)
	kdf := hkdf.New(sha256.New, shared, nil, info)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, WrapError(CodeInternal, "seal kdf", err)
	}
	return key, nil
}

// PaymentRequest is the plaintext a sender seals and publishes for a
// recipient to discover (spec §4.13).
type PaymentRequest struct {
	RequestID  string          `json:"request_id"`
	Sender     string          `json:"sender"`
	Recipient  string          `json:"recipient"`
	Amount     *string         `json:"amount,omitempty"`
	Currency   *string         `json:"currency,omitempty"`
	Method     MethodId        `json:"method,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
}

// requestScope is sha256hex(recipient_z32), the directory path segment a
// sender publishes sealed requests under (spec §4.13, §6).
func requestScope(recipientZ32 string) string {
	sum := sha256.Sum256([]byte(recipientZ32))
	return hex.EncodeToString(sum[:])
}

func requestPath(recipientZ32, requestID string) string {
	return paykitPathPrefix + requestsPathSegment + "/" + requestScope(recipientZ32) + "/" + requestID
}

func requestAAD(recipientZ32, requestID string) []byte {
	return []byte(recipientZ32 + "|" + requestID)
}

// PublishSealedRequest seals req to recipientX25519Pub and writes it to the
// sender's directory at the path spec §4.13/§6 define.
func PublishSealedRequest(ctx context.Context, dir DirectoryStorage, senderOwner string, recipientZ32 string, recipientX25519Pub [32]byte, req PaymentRequest) error {
	plaintext, err := json.Marshal(req)
	if err != nil {
		return WrapError(CodeSerialization, "marshal payment request", err)
	}
	blob, err := Seal(recipientX25519Pub, plaintext, requestAAD(recipientZ32, req.RequestID))
	if err != nil {
		return err
	}
	encoded := encodeSealedBlob(blob)
	if err := dir.Put(ctx, senderOwner, requestPath(recipientZ32, req.RequestID), encoded); err != nil {
		return WrapError(CodeStorage, "publish sealed request", err)
	}
	return nil
}

// sealedBlobMagic distinguishes a Sealed Blob v1 envelope from any
// plaintext accidentally (or maliciously) written to the same path;
// plaintext entries are rejected on read (spec §4.13).
var sealedBlobMagic = []byte("PAYKITSB1")

func encodeSealedBlob(b SealedBlob) []byte {
	out := make([]byte, 0, len(sealedBlobMagic)+1+32+12+len(b.Ciphertext))
	out = append(out, sealedBlobMagic...)
	out = append(out, b.Version)
	out = append(out, b.Ephemeral[:]...)
	out = append(out, b.Nonce[:12]...)
	out = append(out, b.Ciphertext...)
	return out
}

func decodeSealedBlob(data []byte) (SealedBlob, error) {
	minLen := len(sealedBlobMagic) + 1 + 32 + 12
	if len(data) < minLen || string(data[:len(sealedBlobMagic)]) != string(sealedBlobMagic) {
		return SealedBlob{}, NewError(CodeInvalidData, "not a sealed blob envelope")
	}
	off := len(sealedBlobMagic)
	var blob SealedBlob
	blob.Version = data[off]
	off++
	copy(blob.Ephemeral[:], data[off:off+32])
	off += 32
	copy(blob.Nonce[:12], data[off:off+12])
	off += 12
	blob.Ciphertext = append([]byte{}, data[off:]...)
	return blob, nil
}

// PublishedRequest is a decrypted PaymentRequest, grouped by sender
// (spec §4.13).
type PublishedRequest struct {
	Sender  string
	Request PaymentRequest
}

// RequestDiscoveryPoller iterates known peers, lists their scope
// subdirectory for the caller's recipient z32, decrypts entries, and
// filters for Active==true (spec §4.13).
type RequestDiscoveryPoller struct {
	Directory      DirectoryStorage
	RecipientZ32   string
	RecipientX25519Secret [32]byte
	KnownPeers     []string
	Interval       time.Duration
}

// PollOnce lists and decrypts every sealed request currently published for
// the caller's scope across KnownPeers. A plaintext file at a request path
// is rejected and skipped with a warning rather than treated as a request.
func (p *RequestDiscoveryPoller) PollOnce(ctx context.Context) ([]PublishedRequest, error) {
	scope := requestScope(p.RecipientZ32)
	var out []PublishedRequest
	for _, peer := range p.KnownPeers {
		entries, err := p.Directory.List(ctx, peer, paykitPathPrefix+requestsPathSegment+"/"+scope)
		if err != nil {
			return nil, WrapError(CodeStorage, "list requests", err)
		}
		for _, entry := range entries {
			data, found, err := p.Directory.Get(ctx, peer, paykitPathPrefix+requestsPathSegment+"/"+scope+"/"+entry)
			if err != nil {
				return nil, WrapError(CodeStorage, "fetch request", err)
			}
			if !found {
				continue
			}
			blob, err := decodeSealedBlob(data)
			if err != nil {
				sessionKeyLogger.WithField("peer", peer).Warn("ignoring plaintext payment request")
				continue
			}
			plaintext, err := Unseal(p.RecipientX25519Secret, blob, requestAAD(p.RecipientZ32, entry))
			if err != nil {
				sessionKeyLogger.WithField("peer", peer).Warn("failed to unseal payment request")
				continue
			}
			var req PaymentRequest
			if err := json.Unmarshal(plaintext, &req); err != nil {
				continue
			}
			if !req.Active {
				continue
			}
			out = append(out, PublishedRequest{Sender: peer, Request: req})
		}
	}
	return out, nil
}

// PollNew filters PollOnce's results to requests created after afterTs.
func (p *RequestDiscoveryPoller) PollNew(ctx context.Context, afterTs time.Time) ([]PublishedRequest, error) {
	all, err := p.PollOnce(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if r.Request.CreatedAt.After(afterTs) {
			out = append(out, r)
		}
	}
	return out, nil
}

