package core

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"
)

// MethodId is a short UTF-8 payment-rail identifier ("onchain",
// "lightning", ...). Equality is byte-wise (spec §3).
type MethodId string

// EndpointData is an opaque, method-defined UTF-8 payload (address string,
// invoice, URL, ...).
type EndpointData string

// SupportedPayments maps MethodId to EndpointData. A missing owner or empty
// directory yields an empty mapping, never an error (spec §3).
type SupportedPayments map[MethodId]EndpointData

// ValidationResult is the pure, side-effect-free outcome of
// Plugin.ValidateEndpoint.
type ValidationResult struct {
	Valid   bool
	Reasons []string
}

// PaymentExecution is the result of a plugin executing a payment, opaque to
// the core beyond what GenerateProof/FormatReceiptMetadata need.
type PaymentExecution struct {
	Method   MethodId
	Endpoint EndpointData
	Amount   Amount
	Raw      json.RawMessage
}

// Plugin is implemented by each payment-method driver. Plugins are
// registered into a Registry that holds them for the process lifetime
// (spec §3 Ownership summary, §4.6).
type Plugin interface {
	MethodId() MethodId
	DisplayName() string
	Description() string
	ValidateEndpoint(data EndpointData) ValidationResult
	SupportsAmount(amount Amount) bool
	// EstimatedConfirmationTimeSecs returns (secs, true) if the method has
	// a confirmation-time hint, or (0, false) otherwise.
	EstimatedConfirmationTimeSecs() (int64, bool)
	ExecutePayment(ctx context.Context, endpoint EndpointData, amount Amount, metadata json.RawMessage) (PaymentExecution, error)
	GenerateProof(execution PaymentExecution) (PaymentProof, error)
	FormatReceiptMetadata(execution PaymentExecution) (json.RawMessage, error)
	GenerateEndpoint(ctx context.Context) (EndpointData, error)
}

// Registry is an immutable-after-startup mapping MethodId -> Plugin,
// following the teacher's sync.Once-guarded singleton idiom
// (core/idwallet_registration.go) generalized to a plain registered table.
type Registry struct {
	mu      sync.RWMutex
	plugins map[MethodId]Plugin
	logger  *log.Logger
}

// NewRegistry builds an empty method registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[MethodId]Plugin), logger: log.New()}
}

// SetLogger overrides the registry's logger.
func (r *Registry) SetLogger(l *log.Logger) { r.logger = l }

// Register adds or replaces a plugin under its own MethodId.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.MethodId()] = p
	r.logger.WithField("method", string(p.MethodId())).Info("registered payment method plugin")
}

// Get returns the plugin for id, or (nil, false).
func (r *Registry) Get(id MethodId) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	return p, ok
}

// GetRequired returns the plugin for id or ErrMethodNotSupported.
func (r *Registry) GetRequired(id MethodId) (Plugin, error) {
	p, ok := r.Get(id)
	if !ok {
		return nil, ErrMethodNotSupported
	}
	return p, nil
}

// All returns every registered plugin, order unspecified.
func (r *Registry) All() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	return out
}

// --- Payment proofs (spec §3, §4.6) ---

// PaymentProof is a tagged union over the supported proof kinds.
type PaymentProof struct {
	Kind      string // "bitcoin_txid", "lightning_preimage", "custom"
	Bitcoin   *BitcoinTxidProof
	Lightning *LightningPreimageProof
	Custom    *CustomProof
}

// MethodIdOf is a pure function of the proof's tag (spec §3 invariant).
func (p PaymentProof) MethodIdOf() MethodId {
	switch p.Kind {
	case "bitcoin_txid":
		return "onchain"
	case "lightning_preimage":
		return "lightning"
	case "custom":
		if p.Custom != nil {
			return p.Custom.Method
		}
	}
	return ""
}

type BitcoinTxidProof struct {
	Txid          string
	BlockHeight   *int64
	Confirmations *int64
	Vout          *uint32
}

type LightningPreimageProof struct {
	Preimage    string // 64 hex chars
	PaymentHash string // 64 hex chars
}

type CustomProof struct {
	Method MethodId
	JSON   json.RawMessage
}

// BitcoinExecutor is the opaque wallet/node driver a BitcoinTxidVerifier
// consults (spec §1 Non-goals: the core never implements a node itself).
type BitcoinExecutor interface {
	LookupTxid(ctx context.Context, txid string) (confirmations int64, blockHeight int64, vout *uint32, found bool, err error)
}

// LightningExecutor is the opaque LN node driver rail executors delegate to.
type LightningExecutor interface {
	PayInvoice(ctx context.Context, invoice string, amount Amount) (preimage, paymentHash string, err error)
}

// ProofVerifier validates a PaymentProof for one method.
type ProofVerifier interface {
	Verify(ctx context.Context, proof PaymentProof) (bool, error)
}

// VerifierRegistry is the parallel registry of ProofVerifier keyed by
// MethodId (spec §4.6).
type VerifierRegistry struct {
	mu        sync.RWMutex
	verifiers map[MethodId]ProofVerifier
}

func NewVerifierRegistry() *VerifierRegistry {
	return &VerifierRegistry{verifiers: make(map[MethodId]ProofVerifier)}
}

func (r *VerifierRegistry) Register(method MethodId, v ProofVerifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[method] = v
}

func (r *VerifierRegistry) Verify(ctx context.Context, proof PaymentProof) (bool, error) {
	r.mu.RLock()
	v, ok := r.verifiers[proof.MethodIdOf()]
	r.mu.RUnlock()
	if !ok {
		return false, ErrMethodNotSupported
	}
	return v.Verify(ctx, proof)
}

// BitcoinTxidVerifier is the built-in verifier for onchain proofs.
type BitcoinTxidVerifier struct {
	Explorer         BitcoinExecutor
	MinConfirmations int64
}

func (v BitcoinTxidVerifier) Verify(ctx context.Context, proof PaymentProof) (bool, error) {
	if proof.Kind != "bitcoin_txid" || proof.Bitcoin == nil {
		return false, ErrInvalidData
	}
	t := proof.Bitcoin.Txid
	if len(t) != 64 || !isHex(t) {
		return false, nil
	}
	confs, height, vout, found, err := v.Explorer.LookupTxid(ctx, t)
	if err != nil {
		return false, WrapError(CodeTransport, "lookup txid", err)
	}
	if !found {
		return false, nil
	}
	if confs < v.MinConfirmations {
		return false, nil
	}
	if proof.Bitcoin.BlockHeight != nil && *proof.Bitcoin.BlockHeight != height {
		return false, nil
	}
	if proof.Bitcoin.Vout != nil && vout != nil && *proof.Bitcoin.Vout != *vout {
		return false, nil
	}
	return true, nil
}

// LightningPreimageVerifier is the built-in verifier for Lightning proofs.
// The hash comparison runs in constant time (spec §7 policy).
type LightningPreimageVerifier struct{}

func (LightningPreimageVerifier) Verify(ctx context.Context, proof PaymentProof) (bool, error) {
	if proof.Kind != "lightning_preimage" || proof.Lightning == nil {
		return false, ErrInvalidData
	}
	preimageHex := proof.Lightning.Preimage
	hashHex := proof.Lightning.PaymentHash
	if len(preimageHex) != 64 || len(hashHex) != 64 || !isHex(preimageHex) || !isHex(hashHex) {
		return false, nil
	}
	preimage, err := hex.DecodeString(preimageHex)
	if err != nil {
		return false, nil
	}
	wantHash, err := hex.DecodeString(hashHex)
	if err != nil {
		return false, nil
	}
	got := sha256.Sum256(preimage)
	return subtle.ConstantTimeCompare(got[:], wantHash) == 1, nil
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
