package core

import (
	"context"
	"sync"
	"time"
)

// RotationPolicy governs when an endpoint is regenerated (spec §4.8).
type RotationPolicy struct {
	Kind      RotationKind
	Threshold int           // used by RotateOnThreshold
	Interval  time.Duration // used by RotateOnTime
}

type RotationKind int

const (
	RotateNever RotationKind = iota
	RotateOnUse
	RotateOnThreshold
	RotateOnTime
)

type tracker struct {
	useCount     int
	lastRotation time.Time
	rotating     bool // at-most-one-in-flight guard (spec §5)
}

// RotationManager tracks per-method use counts and drives endpoint
// rotation against a configured policy (spec §4.8).
type RotationManager struct {
	mu         sync.Mutex
	registry   *Registry
	policies   map[MethodId]RotationPolicy
	defaultPol RotationPolicy
	trackers   map[MethodId]*tracker
	endpoints  map[MethodId]EndpointData
	callbacks  []func(method MethodId, endpoint EndpointData)
}

// NewRotationManager builds a manager over registry with defaultPolicy
// applied to any method without an explicit policy.
func NewRotationManager(registry *Registry, defaultPolicy RotationPolicy) *RotationManager {
	return &RotationManager{
		registry:   registry,
		policies:   make(map[MethodId]RotationPolicy),
		defaultPol: defaultPolicy,
		trackers:   make(map[MethodId]*tracker),
		endpoints:  make(map[MethodId]EndpointData),
	}
}

// SetPolicy configures a per-method rotation policy.
func (m *RotationManager) SetPolicy(method MethodId, p RotationPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[method] = p
}

// SetEndpoint seeds the currently published endpoint for method.
func (m *RotationManager) SetEndpoint(method MethodId, endpoint EndpointData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[method] = endpoint
}

// Endpoint returns the currently tracked endpoint for method.
func (m *RotationManager) Endpoint(method MethodId) (EndpointData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.endpoints[method]
	return e, ok
}

// OnRotated registers a callback invoked after each successful rotation.
// The callback receives a snapshot, not a live reference, so it never needs
// to acquire the manager's lock (spec §9 Observer callbacks).
func (m *RotationManager) OnRotated(cb func(method MethodId, endpoint EndpointData)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

func (m *RotationManager) trackerFor(method MethodId) *tracker {
	t, ok := m.trackers[method]
	if !ok {
		t = &tracker{}
		m.trackers[method] = t
	}
	return t
}

func (m *RotationManager) policyFor(method MethodId) RotationPolicy {
	if p, ok := m.policies[method]; ok {
		return p
	}
	return m.defaultPol
}

// RecordUse increments the use tracker for method. OnPaymentExecuted calls
// it before NeedsRotation and, when rotation is due, RotateAndPublish.
func (m *RotationManager) RecordUse(method MethodId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackerFor(method).useCount++
}

// NeedsRotation reports whether method's policy currently demands rotation.
func (m *RotationManager) NeedsRotation(method MethodId) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.needsRotationLocked(method)
}

func (m *RotationManager) needsRotationLocked(method MethodId) bool {
	t := m.trackerFor(method)
	p := m.policyFor(method)
	switch p.Kind {
	case RotateOnUse:
		return t.useCount > 0
	case RotateOnThreshold:
		return p.Threshold > 0 && t.useCount >= p.Threshold
	case RotateOnTime:
		return !t.lastRotation.IsZero() && time.Since(t.lastRotation) >= p.Interval
	default:
		return false
	}
}

// Rotate regenerates method's endpoint via the plugin's GenerateEndpoint,
// resets its tracker, and invokes registered callbacks. At most one
// rotation is in flight per method id at a time (spec §5): concurrent
// callers observe the already-rotated endpoint rather than racing.
func (m *RotationManager) Rotate(ctx context.Context, method MethodId) (EndpointData, error) {
	m.mu.Lock()
	t := m.trackerFor(method)
	if t.rotating {
		endpoint := m.endpoints[method]
		m.mu.Unlock()
		return endpoint, nil
	}
	t.rotating = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		t.rotating = false
		m.mu.Unlock()
	}()

	plugin, err := m.registry.GetRequired(method)
	if err != nil {
		return "", err
	}
	newEndpoint, err := plugin.GenerateEndpoint(ctx)
	if err != nil {
		return "", WrapError(CodeInternal, "generate endpoint", err)
	}

	m.mu.Lock()
	m.endpoints[method] = newEndpoint
	t.useCount = 0
	t.lastRotation = time.Now()
	callbacks := append([]func(MethodId, EndpointData){}, m.callbacks...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(method, newEndpoint)
	}
	return newEndpoint, nil
}

// RotateAndPublish rotates method's endpoint and writes the new value to
// the directory at its well-known path.
func (m *RotationManager) RotateAndPublish(ctx context.Context, method MethodId, dir DirectoryStorage, owner string) (EndpointData, error) {
	endpoint, err := m.Rotate(ctx, method)
	if err != nil {
		return "", err
	}
	if err := dir.Put(ctx, owner, methodEndpointPath(method), []byte(endpoint)); err != nil {
		return "", WrapError(CodeStorage, "publish rotated endpoint", err)
	}
	return endpoint, nil
}

// OnPaymentExecuted is the automatic hook payment-flow code calls after a
// successful payment over method (spec §4.8).
func (m *RotationManager) OnPaymentExecuted(ctx context.Context, method MethodId, dir DirectoryStorage, owner string) error {
	m.RecordUse(method)
	if !m.NeedsRotation(method) {
		return nil
	}
	_, err := m.RotateAndPublish(ctx, method, dir, owner)
	return err
}
