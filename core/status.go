package core

import (
	"sync"
	"time"
)

// PaymentState is the payment status finite state machine (spec §3):
// Pending -> Processing -> Confirmed -> Finalized, with any non-terminal
// state able to transition to Failed/Cancelled/Expired.
type PaymentState int

const (
	Pending PaymentState = iota
	Processing
	Confirmed
	Finalized
	Failed
	Cancelled
	Expired
)

func (s PaymentState) Terminal() bool {
	switch s {
	case Finalized, Failed, Cancelled, Expired:
		return true
	default:
		return false
	}
}

var validTransitions = map[PaymentState]map[PaymentState]bool{
	Pending:    {Processing: true, Failed: true, Cancelled: true, Expired: true},
	Processing: {Confirmed: true, Failed: true, Cancelled: true, Expired: true},
	Confirmed:  {Finalized: true, Failed: true, Cancelled: true, Expired: true},
}

// StatusSnapshot is an immutable, clonable view of a tracked payment's
// status, handed to observer callbacks so they never need the tracker's
// lock (spec §9 Observer callbacks).
type StatusSnapshot struct {
	PaymentID     string
	State         PaymentState
	Confirmations int
	Required      int
	UpdatedAt     time.Time
	Err           string
}

// ProgressPercentage derives 0/25/50-100/100 progress from the snapshot
// (spec §4.11).
func (s StatusSnapshot) ProgressPercentage() float64 {
	switch s.State {
	case Pending:
		return 0
	case Processing:
		return 25
	case Confirmed:
		if s.Required <= 0 {
			return 100
		}
		pct := 50 + 50*float64(s.Confirmations)/float64(s.Required)
		if pct > 100 {
			pct = 100
		}
		return pct
	case Finalized:
		return 100
	default:
		return 0
	}
}

type trackedPayment struct {
	state         PaymentState
	confirmations int
	required      int
	updatedAt     time.Time
	err           string
}

// StatusTracker tracks payment status transitions, enforcing monotonicity
// (spec §4.11): the tracker never demotes a terminal state (spec §7
// policy).
type StatusTracker struct {
	mu        sync.Mutex
	payments  map[string]*trackedPayment
	observers []func(StatusSnapshot)
}

// NewStatusTracker builds an empty tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{payments: make(map[string]*trackedPayment)}
}

// Track registers a new payment in the Pending state.
func (t *StatusTracker) Track(paymentID string, requiredConfirmations int, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.payments[paymentID] = &trackedPayment{state: Pending, required: requiredConfirmations, updatedAt: now}
}

// Observe registers a callback invoked after every successful Update/UpdateConfirmations/MarkFailed call.
func (t *StatusTracker) Observe(cb func(StatusSnapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, cb)
}

func (t *StatusTracker) notifyLocked(paymentID string, p *trackedPayment) []StatusSnapshot {
	snap := StatusSnapshot{
		PaymentID:     paymentID,
		State:         p.state,
		Confirmations: p.confirmations,
		Required:      p.required,
		UpdatedAt:     p.updatedAt,
		Err:           p.err,
	}
	return []StatusSnapshot{snap}
}

func (t *StatusTracker) fireObservers(snap StatusSnapshot) {
	t.mu.Lock()
	observers := append([]func(StatusSnapshot){}, t.observers...)
	t.mu.Unlock()
	for _, cb := range observers {
		cb(snap)
	}
}

// Update attempts to transition paymentID to newState, rejecting any
// attempt to move out of a terminal state, and returns the current
// snapshot.
func (t *StatusTracker) Update(paymentID string, newState PaymentState, now time.Time) (StatusSnapshot, error) {
	t.mu.Lock()
	p, ok := t.payments[paymentID]
	if !ok {
		t.mu.Unlock()
		return StatusSnapshot{}, ErrNotFound
	}
	if p.state.Terminal() {
		snap := t.notifyLocked(paymentID, p)[0]
		t.mu.Unlock()
		return snap, NewError(CodeValidationFailed, "cannot transition out of a terminal state")
	}
	if !validTransitions[p.state][newState] {
		snap := t.notifyLocked(paymentID, p)[0]
		t.mu.Unlock()
		return snap, NewError(CodeValidationFailed, "invalid status transition")
	}
	p.state = newState
	p.updatedAt = now
	snap := t.notifyLocked(paymentID, p)[0]
	t.mu.Unlock()
	t.fireObservers(snap)
	return snap, nil
}

// UpdateConfirmations sets the confirmation count and required threshold,
// moving to Confirmed automatically once the state is already Processing or
// Confirmed.
func (t *StatusTracker) UpdateConfirmations(paymentID string, confirmations, required int, now time.Time) (StatusSnapshot, error) {
	t.mu.Lock()
	p, ok := t.payments[paymentID]
	if !ok {
		t.mu.Unlock()
		return StatusSnapshot{}, ErrNotFound
	}
	if p.state.Terminal() {
		snap := t.notifyLocked(paymentID, p)[0]
		t.mu.Unlock()
		return snap, NewError(CodeValidationFailed, "cannot update confirmations on a terminal payment")
	}
	if confirmations < p.confirmations {
		snap := t.notifyLocked(paymentID, p)[0]
		t.mu.Unlock()
		return snap, NewError(CodeValidationFailed, "confirmations must be monotonic")
	}
	p.confirmations = confirmations
	p.required = required
	p.updatedAt = now
	if p.state == Processing && confirmations > 0 {
		p.state = Confirmed
	}
	snap := t.notifyLocked(paymentID, p)[0]
	t.mu.Unlock()
	t.fireObservers(snap)
	return snap, nil
}

// MarkFailed transitions paymentID to Failed with an error message.
func (t *StatusTracker) MarkFailed(paymentID string, errMsg string, now time.Time) (StatusSnapshot, error) {
	t.mu.Lock()
	p, ok := t.payments[paymentID]
	if !ok {
		t.mu.Unlock()
		return StatusSnapshot{}, ErrNotFound
	}
	if p.state.Terminal() {
		snap := t.notifyLocked(paymentID, p)[0]
		t.mu.Unlock()
		return snap, NewError(CodeValidationFailed, "cannot fail a terminal payment")
	}
	p.state = Failed
	p.err = errMsg
	p.updatedAt = now
	snap := t.notifyLocked(paymentID, p)[0]
	t.mu.Unlock()
	t.fireObservers(snap)
	return snap, nil
}

// Get returns a snapshot of paymentID's current status.
func (t *StatusTracker) Get(paymentID string) (StatusSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.payments[paymentID]
	if !ok {
		return StatusSnapshot{}, false
	}
	return t.notifyLocked(paymentID, p)[0], true
}

// CleanupOld removes terminal entries whose UpdatedAt predates before
// (spec §4.11).
func (t *StatusTracker) CleanupOld(before time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, p := range t.payments {
		if p.state.Terminal() && p.updatedAt.Before(before) {
			delete(t.payments, id)
			removed++
		}
	}
	return removed
}
