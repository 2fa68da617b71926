package core

import (
	"sort"
	"testing"
)

func TestSecureStoragePutGetRoundTrip(t *testing.T) {
	s := NewInMemorySecureStorage()
	if err := s.Put("session/alice", []byte("secret"), AccessRead|AccessWrite); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get("session/alice")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(v) != "secret" {
		t.Fatalf("Get = %q, %v, want secret, true", v, ok)
	}
}

func TestSecureStorageGetMissingKeyIsNotFoundNotError(t *testing.T) {
	s := NewInMemorySecureStorage()
	v, ok, err := s.Get("nonexistent")
	if err != nil {
		t.Fatalf("expected no error for missing key, got %v", err)
	}
	if ok || v != nil {
		t.Errorf("expected ok=false, v=nil for missing key, got %v, %v", v, ok)
	}
}

func TestSecureStorageGetWithoutReadFlagDenied(t *testing.T) {
	s := NewInMemorySecureStorage()
	if err := s.Put("k", []byte("v"), AccessWrite); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Get("k"); err != ErrAuth {
		t.Errorf("expected ErrAuth reading without AccessRead, got %v", err)
	}
}

func TestSecureStorageDeleteWithoutDeleteFlagDenied(t *testing.T) {
	s := NewInMemorySecureStorage()
	if err := s.Put("k", []byte("v"), AccessRead); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("k"); err != ErrAuth {
		t.Errorf("expected ErrAuth deleting without AccessDelete, got %v", err)
	}
	if v, ok, _ := s.Get("k"); !ok || string(v) != "v" {
		t.Error("expected key to survive a denied delete")
	}
}

func TestSecureStorageDeleteMissingKeyIsNotFound(t *testing.T) {
	s := NewInMemorySecureStorage()
	if err := s.Delete("absent"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSecureStorageDeleteRemovesKey(t *testing.T) {
	s := NewInMemorySecureStorage()
	if err := s.Put("k", []byte("v"), AccessRead|AccessDelete); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get("k"); ok {
		t.Error("expected key to be gone after delete")
	}
}

func TestSecureStorageListByPrefix(t *testing.T) {
	s := NewInMemorySecureStorage()
	s.Put("session/alice", []byte("a"), AccessRead)
	s.Put("session/bob", []byte("b"), AccessRead)
	s.Put("device/alice", []byte("c"), AccessRead)

	keys, err := s.List("session/")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "session/alice" || keys[1] != "session/bob" {
		t.Errorf("List(session/) = %v, want [session/alice session/bob]", keys)
	}
}

func TestSecureStoragePutOverwritesValueAndFlags(t *testing.T) {
	s := NewInMemorySecureStorage()
	s.Put("k", []byte("v1"), AccessRead)
	s.Put("k", []byte("v2"), 0)
	if _, _, err := s.Get("k"); err != ErrAuth {
		t.Errorf("expected overwritten flags to revoke read access, got %v", err)
	}
}
