package core

import "context"

// DirectoryStorage is the seam into the external self-sovereign identity
// overlay. The core never implements publication/resolution itself (spec
// §1 Non-goals) — it only calls through this interface, which a DHT-backed
// adapter implements outside this module.
//
// Contract: reads from a missing owner return empty results, never errors.
// Errors are reserved for transport/auth problems (spec §4.2).
type DirectoryStorage interface {
	// Put writes bytes at owner/path.
	Put(ctx context.Context, owner, path string, data []byte) error
	// Get reads the payload at owner/path. A missing entry returns
	// (nil, false, nil) — not an error.
	Get(ctx context.Context, owner, path string) (data []byte, found bool, err error)
	// List returns one path segment past prefix, deduplicated. A missing
	// owner or empty directory yields an empty, non-nil slice.
	List(ctx context.Context, owner, prefix string) ([]string, error)
	// Delete removes owner/path. Returns ErrNotFound if absent.
	Delete(ctx context.Context, owner, path string) error
}

// AuthenticatedDirectoryStorage is implemented by adapters that additionally
// accept a session token for writes, per spec §4.2 "variants that accept an
// authenticated session".
type AuthenticatedDirectoryStorage interface {
	DirectoryStorage
	PutAuthenticated(ctx context.Context, sessionToken, owner, path string, data []byte) error
}

// Path conventions (spec §6).
const (
	sessionKeyPathPrefix = "/pub/noise.app/v0/"
	paykitPathPrefix     = "/pub/paykit.app/v0/"
	requestsPathSegment  = "requests"
)

func sessionKeyPath(deviceID string) string {
	return sessionKeyPathPrefix + deviceID
}

func methodEndpointPath(method MethodId) string {
	return paykitPathPrefix + string(method)
}
