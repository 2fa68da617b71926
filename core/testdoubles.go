package core

import (
	"context"
	"sync"
)

// InMemoryDirectory is a DirectoryStorage reference implementation for
// tests, grounded on original_source/paykit-lib/src/test_utils/mock_network.rs.
// It never returns an error for a missing owner/path — only ErrNotFound
// on Delete, matching the interface contract.
type InMemoryDirectory struct {
	mu   sync.Mutex
	data map[string]map[string][]byte // owner -> path -> bytes
}

// NewInMemoryDirectory builds an empty directory double.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{data: make(map[string]map[string][]byte)}
}

func (d *InMemoryDirectory) Put(ctx context.Context, owner, path string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	owned, ok := d.data[owner]
	if !ok {
		owned = make(map[string][]byte)
		d.data[owner] = owned
	}
	owned[path] = append([]byte{}, data...)
	return nil
}

func (d *InMemoryDirectory) Get(ctx context.Context, owner, path string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	owned, ok := d.data[owner]
	if !ok {
		return nil, false, nil
	}
	v, ok := owned[path]
	if !ok {
		return nil, false, nil
	}
	return append([]byte{}, v...), true, nil
}

func (d *InMemoryDirectory) List(ctx context.Context, owner, prefix string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []string{}
	owned, ok := d.data[owner]
	if !ok {
		return out, nil
	}
	seen := make(map[string]bool)
	for path := range owned {
		if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
			continue
		}
		rest := path[len(prefix):]
		if len(rest) > 0 && rest[0] == '/' {
			rest = rest[1:]
		}
		for i, c := range rest {
			if c == '/' {
				rest = rest[:i]
				break
			}
		}
		if rest == "" || seen[rest] {
			continue
		}
		seen[rest] = true
		out = append(out, rest)
	}
	return out, nil
}

func (d *InMemoryDirectory) Delete(ctx context.Context, owner, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	owned, ok := d.data[owner]
	if !ok {
		return ErrNotFound
	}
	if _, ok := owned[path]; !ok {
		return ErrNotFound
	}
	delete(owned, path)
	return nil
}

// MockBitcoinExecutor is a scriptable BitcoinExecutor double, grounded on
// original_source/paykit-lib/src/testing/mock_transport.rs.
type MockBitcoinExecutor struct {
	mu  sync.Mutex
	txs map[string]mockTx
}

type mockTx struct {
	confirmations int64
	blockHeight   int64
	vout          *uint32
}

// NewMockBitcoinExecutor builds an empty double.
func NewMockBitcoinExecutor() *MockBitcoinExecutor {
	return &MockBitcoinExecutor{txs: make(map[string]mockTx)}
}

// SeedTxid registers a fake confirmed transaction for LookupTxid to return.
func (m *MockBitcoinExecutor) SeedTxid(txid string, confirmations, blockHeight int64, vout *uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[txid] = mockTx{confirmations: confirmations, blockHeight: blockHeight, vout: vout}
}

func (m *MockBitcoinExecutor) LookupTxid(ctx context.Context, txid string) (int64, int64, *uint32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[txid]
	if !ok {
		return 0, 0, nil, false, nil
	}
	return tx.confirmations, tx.blockHeight, tx.vout, true, nil
}

// MockLightningExecutor is a scriptable LightningExecutor double.
type MockLightningExecutor struct {
	mu       sync.Mutex
	Preimage string
	Hash     string
	Err      error
	Calls    int
}

func (m *MockLightningExecutor) PayInvoice(ctx context.Context, invoice string, amount Amount) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return "", "", m.Err
	}
	return m.Preimage, m.Hash, nil
}
