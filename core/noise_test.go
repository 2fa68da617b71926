package core

import (
	"bytes"
	"net"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func runHandshakePair(t *testing.T, initCfg, respCfg HandshakeConfig) (*Channel, *Channel) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	type result struct {
		ch  *Channel
		err error
	}
	clientRes := make(chan result, 1)
	serverRes := make(chan result, 1)

	go func() {
		ch, err := RunHandshake(clientConn, initCfg)
		clientRes <- result{ch, err}
	}()
	go func() {
		ch, err := RunHandshake(serverConn, respCfg)
		serverRes <- result{ch, err}
	}()

	cr := <-clientRes
	sr := <-serverRes
	if cr.err != nil {
		t.Fatalf("initiator handshake: %v", cr.err)
	}
	if sr.err != nil {
		t.Fatalf("responder handshake: %v", sr.err)
	}
	return cr.ch, sr.ch
}

func TestIKHandshakeWithSignedIdentityPayload(t *testing.T) {
	initiatorStatic, err := GenerateNoiseKeypair()
	if err != nil {
		t.Fatal(err)
	}
	responderStatic, err := GenerateNoiseKeypair()
	if err != nil {
		t.Fatal(err)
	}
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatal(err)
	}

	initCfg := HandshakeConfig{
		Pattern:        PatternIK,
		Initiator:      true,
		StaticKeypair:  initiatorStatic,
		PeerStatic:     responderStatic.Public,
		IdentitySigner: &IdentityPayloadSigner{Identity: identity},
		Timeout:        time.Second,
	}
	respCfg := HandshakeConfig{
		Pattern:       PatternIK,
		Initiator:     false,
		StaticKeypair: responderStatic,
		Timeout:       time.Second,
	}

	initCh, respCh := runHandshakePair(t, initCfg, respCfg)
	defer initCh.Close()
	defer respCh.Close()

	if !bytes.Equal(respCh.PeerIdentity, identity.PublicKey[:]) {
		t.Errorf("expected responder to recover the initiator's signed identity, got %x", respCh.PeerIdentity)
	}
	if !bytes.Equal(respCh.PeerStatic, initiatorStatic.Public) {
		t.Error("expected responder to learn the initiator's static key")
	}
}

func TestIKRawHandshakeHasNoIdentityPayload(t *testing.T) {
	initiatorStatic, _ := GenerateNoiseKeypair()
	responderStatic, _ := GenerateNoiseKeypair()

	initCfg := HandshakeConfig{
		Pattern:       PatternIKRaw,
		Initiator:     true,
		StaticKeypair: initiatorStatic,
		PeerStatic:    responderStatic.Public,
		Timeout:       time.Second,
	}
	respCfg := HandshakeConfig{
		Pattern:       PatternIKRaw,
		Initiator:     false,
		StaticKeypair: responderStatic,
		Timeout:       time.Second,
	}

	initCh, respCh := runHandshakePair(t, initCfg, respCfg)
	defer initCh.Close()
	defer respCh.Close()

	if respCh.PeerIdentity != nil {
		t.Errorf("expected no identity payload for IK-raw, got %x", respCh.PeerIdentity)
	}
}

func TestNPatternHandshakeAndTransport(t *testing.T) {
	responderStatic, err := GenerateNoiseKeypair()
	if err != nil {
		t.Fatal(err)
	}

	initCfg := HandshakeConfig{
		Pattern:    PatternN,
		Initiator:  true,
		PeerStatic: responderStatic.Public,
		Timeout:    time.Second,
	}
	respCfg := HandshakeConfig{
		Pattern:       PatternN,
		Initiator:     false,
		StaticKeypair: responderStatic,
		Timeout:       time.Second,
	}

	initCh, respCh := runHandshakePair(t, initCfg, respCfg)
	defer initCh.Close()
	defer respCh.Close()

	type msg struct{ Text string }
	done := make(chan error, 1)
	go func() {
		var got msg
		done <- respCh.Recv(&got)
		if got.Text != "hello" {
			done <- NewError(CodeInvalidData, "unexpected message content")
		}
	}()
	if err := initCh.Send(msg{Text: "hello"}); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestChannelSendRecvRoundTrip(t *testing.T) {
	initCh, respCh := newTestChannelPairForNoise(t)
	defer initCh.Close()
	defer respCh.Close()

	type payload struct {
		A int
		B string
	}
	want := payload{A: 42, B: "paykit"}

	done := make(chan error, 1)
	go func() {
		var got payload
		if err := respCh.Recv(&got); err != nil {
			done <- err
			return
		}
		if got != want {
			done <- NewError(CodeInvalidData, "payload mismatch")
			return
		}
		done <- nil
	}()
	if err := initCh.Send(want); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func newTestChannelPairForNoise(t *testing.T) (*Channel, *Channel) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	type result struct {
		ch  *Channel
		err error
	}
	clientRes := make(chan result, 1)
	serverRes := make(chan result, 1)
	go func() {
		ch, err := RunHandshake(clientConn, HandshakeConfig{Pattern: PatternNN, Initiator: true, Timeout: time.Second})
		clientRes <- result{ch, err}
	}()
	go func() {
		ch, err := RunHandshake(serverConn, HandshakeConfig{Pattern: PatternNN, Initiator: false, Timeout: time.Second})
		serverRes <- result{ch, err}
	}()
	cr := <-clientRes
	sr := <-serverRes
	if cr.err != nil {
		t.Fatalf("client handshake: %v", cr.err)
	}
	if sr.err != nil {
		t.Fatalf("server handshake: %v", sr.err)
	}
	return cr.ch, sr.ch
}

func TestSendOnNonTransportChannelRejected(t *testing.T) {
	ch := &Channel{}
	if err := ch.Send(struct{}{}); CodeOf(err) != CodeTransport {
		t.Errorf("expected CodeTransport sending before handshake, got %v", err)
	}
}

func TestRecvOnNonTransportChannelRejected(t *testing.T) {
	ch := &Channel{}
	var v struct{}
	if err := ch.Recv(&v); CodeOf(err) != CodeTransport {
		t.Errorf("expected CodeTransport receiving before handshake, got %v", err)
	}
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, 100)
	if err := writeFrame(&buf, payload, 50); CodeOf(err) != CodeTransport {
		t.Errorf("expected CodeTransport for oversized frame, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("expected nothing written when the payload exceeds the max size")
	}
}

func TestReadFrameRejectsDeclaredOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	lenBuf := []byte{0, 1, 0, 0} // declares a ~65536-byte frame
	buf.Write(lenBuf)
	if _, err := readFrame(&buf, 100); CodeOf(err) != CodeTransport {
		t.Errorf("expected CodeTransport for declared oversized length, got %v", err)
	}
}

func TestReadFrameShortReadFails(t *testing.T) {
	r := bytes.NewReader([]byte{0, 0, 0, 1})
	if _, err := readFrame(r, 100); err == nil {
		t.Error("expected an error reading a frame body shorter than its declared length")
	}
}

func TestSetNoiseLoggerOverridesGlobal(t *testing.T) {
	original := noiseLog
	defer func() { noiseLog = original }()

	custom := log.New()
	SetNoiseLogger(custom)
	if noiseLog != custom {
		t.Error("expected SetNoiseLogger to replace the package logger")
	}
}

func TestHandshakeFailsOnUnexpectedEOF(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	serverConn.Close()
	_, err := RunHandshake(clientConn, HandshakeConfig{Pattern: PatternNN, Initiator: true, Timeout: time.Second})
	if err == nil {
		t.Error("expected handshake to fail when the peer closes early")
	}
}
