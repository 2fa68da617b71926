package core

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/flynn/noise"
	log "github.com/sirupsen/logrus"
)

// Wire framing constants (spec §4.4).
const (
	MaxHandshakeSize = 4096
	MaxMessageSize   = 16 * 1024 * 1024
	lengthPrefixSize = 4
)

// Pattern selects which Noise handshake pattern a channel negotiates.
type Pattern int

const (
	// PatternIK is the default mutual-auth pattern: initiator sends
	// e, es, s, ss carrying an Ed25519-signed identity payload; responder
	// replies e, ee, se.
	PatternIK Pattern = iota
	// PatternIKRaw has the identical wire shape to IK but carries no
	// signed payload — the caller must have verified the peer's identity
	// out of band via the session-key resolver (§4.3).
	PatternIKRaw
	// PatternN is the one-message anonymous-initiator pattern: e, es.
	PatternN
	// PatternNN is the fully anonymous two-message pattern: e / e, ee.
	// No authentication is guaranteed; post-handshake attestation is the
	// caller's responsibility (spec §1 Non-goals).
	PatternNN
)

func (p Pattern) noisePattern() noise.HandshakePattern {
	switch p {
	case PatternIK, PatternIKRaw:
		return noise.HandshakeIK
	case PatternN:
		return noise.HandshakeN
	case PatternNN:
		return noise.HandshakeNN
	default:
		return noise.HandshakeIK
	}
}

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// GenerateNoiseKeypair generates a fresh X25519 keypair for use as a Noise
// static key. Session keys derived via DeriveX25519 (§4.1) should be wrapped
// into a noise.DHKey with NoiseKeyFromX25519 instead of calling this in
// production flows.
func GenerateNoiseKeypair() (noise.DHKey, error) {
	kp, err := cipherSuite.GenerateKeypair(nil)
	if err != nil {
		return noise.DHKey{}, WrapError(CodeInternal, "generate noise keypair", err)
	}
	return kp, nil
}

// NoiseKeyFromX25519 wraps a deterministically derived X25519 keypair
// (§4.1) as a noise.DHKey.
func NoiseKeyFromX25519(sk, pk [32]byte) noise.DHKey {
	return noise.DHKey{Private: sk[:], Public: pk[:]}
}

// IdentityPayloadSigner produces the IK handshake payload embedding an
// Ed25519-signed assertion that static is genuinely the caller's session
// key, so the responder can verify it without a prior directory lookup.
type IdentityPayloadSigner struct {
	Identity Identity
}

// Sign signs staticPub (the initiator's Noise static public key) producing
// a payload: ed25519_pub(32) || signature(64).
func (s IdentityPayloadSigner) Sign(staticPub []byte) []byte {
	sig := s.Identity.Sign(staticPub)
	out := make([]byte, 0, 32+64)
	out = append(out, s.Identity.PublicKey[:]...)
	out = append(out, sig...)
	return out
}

// VerifyIdentityPayload checks a payload produced by IdentityPayloadSigner
// against the peer's Noise static public key.
func VerifyIdentityPayload(staticPub, payload []byte) (ed25519Pub []byte, ok bool) {
	if len(payload) != 32+64 {
		return nil, false
	}
	pub := payload[:32]
	sig := payload[32:]
	return pub, VerifySignature(pub, staticPub, sig)
}

// HandshakeConfig parameterizes a Noise handshake over an established
// net.Conn.
type HandshakeConfig struct {
	Pattern        Pattern
	Initiator      bool
	StaticKeypair  noise.DHKey // required for IK, IK-raw, N (responder), unused for NN
	PeerStatic     []byte      // required for IK, IK-raw, N initiator
	IdentitySigner *IdentityPayloadSigner // set by the IK initiator to embed a signed identity payload
	Timeout        time.Duration
}

// Channel is a framed, encrypted transport established after a successful
// Noise handshake. One writer and one reader task should use it at a time
// (spec §5) — concurrent Send calls on the same channel are undefined;
// callers needing concurrency must serialize via their own lock.
type Channel struct {
	conn          net.Conn
	send          *noise.CipherState
	recv          *noise.CipherState
	PeerStatic    []byte // populated for IK/IK-raw/N
	PeerEphemeral []byte // populated for NN, for post-handshake attestation
	PeerIdentity  []byte // Ed25519 pubkey recovered from an IK identity payload, if any
}

func deadlineFor(conn net.Conn, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	return conn.SetDeadline(time.Now().Add(timeout))
}

func writeFrame(w io.Writer, payload []byte, maxSize int) error {
	if len(payload) > maxSize {
		return WrapError(CodeTransport, "frame exceeds max size", fmt.Errorf("%d > %d", len(payload), maxSize))
	}
	var lenBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return WrapError(CodeTransport, "write frame length", err)
	}
	if _, err := w.Write(payload); err != nil {
		return WrapError(CodeTransport, "write frame body", err)
	}
	return nil
}

// readFrame reads a length-prefixed frame, failing immediately without
// allocating a body buffer if the declared length exceeds maxSize (spec
// §4.4).
func readFrame(r io.Reader, maxSize int) ([]byte, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, WrapError(CodeTransport, "read frame length", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if int(n) > maxSize {
		return nil, WrapError(CodeTransport, "frame exceeds max size", fmt.Errorf("%d > %d", n, maxSize))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, WrapError(CodeTransport, "read frame body", err)
	}
	return buf, nil
}

// RunHandshake executes cfg's pattern over conn and returns an established
// Channel, or a *Error with CodeTransport/CodeAuth on failure. The
// underlying byte stream is closed by the caller on any failure (spec §7).
func RunHandshake(conn net.Conn, cfg HandshakeConfig) (*Channel, error) {
	if err := deadlineFor(conn, cfg.Timeout); err != nil {
		return nil, WrapError(CodeTransport, "set handshake deadline", err)
	}
	defer conn.SetDeadline(time.Time{})

	hsConfig := noise.Config{
		CipherSuite: cipherSuite,
		Pattern:     cfg.Pattern.noisePattern(),
		Initiator:   cfg.Initiator,
		StaticKeypair: cfg.StaticKeypair,
	}
	if len(cfg.PeerStatic) > 0 {
		hsConfig.PeerStatic = cfg.PeerStatic
	}

	hs, err := noise.NewHandshakeState(hsConfig)
	if err != nil {
		return nil, WrapError(CodeInternal, "init handshake state", err)
	}

	var outPayload []byte
	if cfg.Pattern == PatternIK && cfg.Initiator && cfg.IdentitySigner != nil {
		outPayload = cfg.IdentitySigner.Sign(cfg.StaticKeypair.Public)
	}

	ch := &Channel{conn: conn}
	messageCount := len(cfg.Pattern.noisePattern().Messages)

	for i := 0; i < messageCount; i++ {
		isWriteTurn := (i%2 == 0) == cfg.Initiator
		if isWriteTurn {
			out, cs1, cs2, err := hs.WriteMessage(nil, outPayload)
			outPayload = nil
			if err != nil {
				return nil, WrapError(CodeInternal, "write handshake message", err)
			}
			if err := writeFrame(conn, out, MaxHandshakeSize); err != nil {
				return nil, err
			}
			if cs1 != nil {
				assignCipherStates(ch, cfg.Initiator, cs1, cs2)
			}
		} else {
			in, err := readFrame(conn, MaxHandshakeSize)
			if err != nil {
				return nil, err
			}
			payload, cs1, cs2, err := hs.ReadMessage(nil, in)
			if err != nil {
				return nil, WrapError(CodeAuth, "read handshake message", err)
			}
			if cfg.Pattern == PatternIK && !cfg.Initiator && len(payload) > 0 {
				pub, ok := VerifyIdentityPayload(hs.PeerStatic(), payload)
				if !ok {
					return nil, WrapError(CodeAuth, "identity payload verification failed", fmt.Errorf("signature invalid"))
				}
				ch.PeerIdentity = pub
			}
			if cs1 != nil {
				assignCipherStates(ch, cfg.Initiator, cs1, cs2)
			}
		}
	}

	ch.PeerStatic = hs.PeerStatic()
	ch.PeerEphemeral = hs.PeerEphemeral()
	return ch, nil
}

func assignCipherStates(ch *Channel, initiator bool, cs1, cs2 *noise.CipherState) {
	if initiator {
		ch.send, ch.recv = cs1, cs2
	} else {
		ch.recv, ch.send = cs1, cs2
	}
}

// Send serializes msg to JSON, encrypts it under the transport cipher, and
// writes it as a length-prefixed frame. Cancel-safe at the frame boundary:
// a partially written frame invalidates the channel (spec §5).
func (c *Channel) Send(msg interface{}) error {
	if c.send == nil {
		return NewError(CodeTransport, "channel not in transport mode")
	}
	plaintext, err := json.Marshal(msg)
	if err != nil {
		return WrapError(CodeSerialization, "marshal transport message", err)
	}
	ciphertext := c.send.Encrypt(nil, nil, plaintext)
	return writeFrame(c.conn, ciphertext, MaxMessageSize)
}

// Recv reads and decrypts the next transport frame into v.
func (c *Channel) Recv(v interface{}) error {
	if c.recv == nil {
		return NewError(CodeTransport, "channel not in transport mode")
	}
	ciphertext, err := readFrame(c.conn, MaxMessageSize)
	if err != nil {
		return err
	}
	plaintext, err := c.recv.Decrypt(nil, nil, ciphertext)
	if err != nil {
		// Decryption errors never reveal plaintext (spec §7).
		return WrapError(CodeAuth, "decrypt transport message", err)
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return WrapError(CodeSerialization, "unmarshal transport message", err)
	}
	return nil
}

// Close closes the underlying byte stream.
func (c *Channel) Close() error {
	return c.conn.Close()
}

var noiseLog = log.New()

// SetNoiseLogger replaces the package's noise logger. The handshake and
// transport code (RunHandshake, Send, Recv) does not log through it.
func SetNoiseLogger(l *log.Logger) { noiseLog = l }
