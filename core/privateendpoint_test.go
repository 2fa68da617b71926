package core

import (
	"context"
	"testing"
	"time"
)

func TestPrivateEndpointStorePrefersPrivateOverDirectory(t *testing.T) {
	dir := NewInMemoryDirectory()
	if err := dir.Put(context.Background(), "peer-1", methodEndpointPath("onchain"), []byte("public-endpoint")); err != nil {
		t.Fatal(err)
	}
	store := NewPrivateEndpointStore(EndpointPolicy{}, dir)
	now := time.Unix(1_700_000_000, 0)
	store.Put("peer-1", "onchain", "private-endpoint", now, ExpirationPolicy{Kind: ExpireNever})

	endpoint, err := store.ResolveEndpoint(context.Background(), "peer-1", "onchain", now)
	if err != nil {
		t.Fatal(err)
	}
	if endpoint != "private-endpoint" {
		t.Errorf("expected private endpoint to take priority, got %q", endpoint)
	}
}

func TestPrivateEndpointStoreFallsBackToDirectoryOnExpiry(t *testing.T) {
	dir := NewInMemoryDirectory()
	if err := dir.Put(context.Background(), "peer-1", methodEndpointPath("onchain"), []byte("public-endpoint")); err != nil {
		t.Fatal(err)
	}
	store := NewPrivateEndpointStore(EndpointPolicy{}, dir)
	now := time.Unix(1_700_000_000, 0)
	store.Put("peer-1", "onchain", "private-endpoint", now, ExpirationPolicy{Kind: ExpireAfterDuration, After: time.Second})

	endpoint, err := store.ResolveEndpoint(context.Background(), "peer-1", "onchain", now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if endpoint != "public-endpoint" {
		t.Errorf("expected fallback to public endpoint after expiry, got %q", endpoint)
	}
}

func TestPrivateEndpointStoreMissingYieldsNotFound(t *testing.T) {
	store := NewPrivateEndpointStore(EndpointPolicy{}, nil)
	_, err := store.ResolveEndpoint(context.Background(), "peer-1", "onchain", time.Now())
	if CodeOf(err) != CodeNotFound {
		t.Errorf("expected CodeNotFound, got %v", err)
	}
}

func TestPrivateEndpointStoreEvictsOldestOverCapacity(t *testing.T) {
	store := NewPrivateEndpointStore(EndpointPolicy{MaxPerPeer: 2}, nil)
	now := time.Unix(1_700_000_000, 0)
	store.Put("peer-1", "onchain", "e1", now, ExpirationPolicy{Kind: ExpireNever})
	store.Put("peer-1", "lightning", "e2", now.Add(time.Second), ExpirationPolicy{Kind: ExpireNever})
	store.Put("peer-1", "custom", "e3", now.Add(2*time.Second), ExpirationPolicy{Kind: ExpireNever})

	if len(store.byPeer["peer-1"]) != 2 {
		t.Fatalf("expected eviction to cap peer list at 2, got %d", len(store.byPeer["peer-1"]))
	}
	if _, ok := store.byKey[peerMethodKey{"peer-1", "onchain"}]; ok {
		t.Error("expected the oldest entry (onchain) to have been evicted")
	}
}

func TestPrivateEndpointExpiredAfterUse(t *testing.T) {
	pe := PrivateEndpoint{UseCount: 3, policy: ExpirationPolicy{Kind: ExpireAfterUse, AfterUses: 3}}
	if !pe.Expired(time.Now()) {
		t.Error("expected endpoint to be expired once use count reaches the limit")
	}
}
