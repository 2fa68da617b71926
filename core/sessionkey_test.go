package core

import (
	"context"
	"testing"
	"time"
)

func TestPublishAndResolveSessionKey(t *testing.T) {
	dir := NewInMemoryDirectory()
	id, err := GenerateIdentity()
	if err != nil {
		t.Fatal(err)
	}
	_, pub, err := DeriveX25519(id.Seed[:], "device-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(1_700_000_000, 0)

	if err := PublishSessionKey(context.Background(), dir, id, pub[:], "device-1", now); err != nil {
		t.Fatal(err)
	}

	resolved, err := ResolveSessionKey(context.Background(), dir, id.PublicKey[:], "device-1", 0, now.Add(30*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if resolved != pub {
		t.Error("resolved key should match published key")
	}
}

func TestResolveSessionKeyMissing(t *testing.T) {
	dir := NewInMemoryDirectory()
	id, _ := GenerateIdentity()
	_, err := ResolveSessionKey(context.Background(), dir, id.PublicKey[:], "device-1", 0, time.Now())
	if CodeOf(err) != CodeNotFound {
		t.Errorf("expected CodeNotFound, got %v", err)
	}
}

func TestResolveSessionKeyStale(t *testing.T) {
	dir := NewInMemoryDirectory()
	id, _ := GenerateIdentity()
	_, pub, _ := DeriveX25519(id.Seed[:], "device-1", 0)
	now := time.Unix(1_700_000_000, 0)

	if err := PublishSessionKey(context.Background(), dir, id, pub[:], "device-1", now); err != nil {
		t.Fatal(err)
	}
	_, err := ResolveSessionKey(context.Background(), dir, id.PublicKey[:], "device-1", 60, now.Add(2*time.Minute))
	if CodeOf(err) != CodeSessionExpired {
		t.Errorf("expected CodeSessionExpired, got %v", err)
	}
}

func TestResolveSessionKeyFutureTimestampRejected(t *testing.T) {
	dir := NewInMemoryDirectory()
	id, _ := GenerateIdentity()
	_, pub, _ := DeriveX25519(id.Seed[:], "device-1", 0)
	now := time.Unix(1_700_000_000, 0)

	if err := PublishSessionKey(context.Background(), dir, id, pub[:], "device-1", now); err != nil {
		t.Fatal(err)
	}
	// Resolve "as of" a time far before the binding's timestamp.
	_, err := ResolveSessionKey(context.Background(), dir, id.PublicKey[:], "device-1", 0, now.Add(-5*time.Minute))
	if CodeOf(err) != CodeValidationFailed {
		t.Errorf("expected CodeValidationFailed for future timestamp, got %v", err)
	}
}

func TestResolveSessionKeyTamperedRejected(t *testing.T) {
	dir := NewInMemoryDirectory()
	id, _ := GenerateIdentity()
	_, pub, _ := DeriveX25519(id.Seed[:], "device-1", 0)
	now := time.Unix(1_700_000_000, 0)
	if err := PublishSessionKey(context.Background(), dir, id, pub[:], "device-1", now); err != nil {
		t.Fatal(err)
	}

	owner := EncodePubZ32(id.PublicKey[:])
	tampered := formatSessionKeyRecord([]byte("................................"), make([]byte, 64), now.Unix())
	if err := dir.Put(context.Background(), owner, sessionKeyPath("device-1"), []byte(tampered)); err != nil {
		t.Fatal(err)
	}

	_, err := ResolveSessionKey(context.Background(), dir, id.PublicKey[:], "device-1", 0, now.Add(time.Second))
	if CodeOf(err) != CodeAuth {
		t.Errorf("expected CodeAuth for tampered binding, got %v", err)
	}
}
