package core

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"time"
)

// subscriptionDomainTag domain-separates the subscription signing hash from
// every other Ed25519-signed message in the core (spec §4.12).
const subscriptionDomainTag = "PAYKIT_SUBSCRIPTION_V2"

// PaymentFrequency selects the subscription's billing cadence (spec §3).
type PaymentFrequency struct {
	Kind            FrequencyKind
	DayOfMonth      int   // Monthly
	Month, Day      int   // Yearly
	IntervalSeconds int64 // Custom
}

type FrequencyKind int

const (
	FreqDaily FrequencyKind = iota
	FreqWeekly
	FreqMonthly
	FreqYearly
	FreqCustom
)

// SubscriptionTerms is the negotiated billing terms of a subscription.
type SubscriptionTerms struct {
	Amount        Amount
	Frequency     PaymentFrequency
	Method        MethodId
	MaxPerPeriod  *Amount
	Description   string
}

// Subscription is a mutually-signed recurring payment agreement
// (spec §3). Subscriber and provider must differ, and EndsAt (if set)
// must be after StartsAt.
type Subscription struct {
	SubID      string
	Subscriber string // z-base32 Ed25519 public key
	Provider   string
	Terms      SubscriptionTerms
	Metadata   []byte
	CreatedAt  time.Time
	StartsAt   time.Time
	EndsAt     *time.Time
}

// Validate checks the structural invariants from spec §3.
func (s Subscription) Validate() error {
	if s.Subscriber == s.Provider {
		return NewError(CodeInvalidData, "subscriber and provider must differ")
	}
	if s.EndsAt != nil && !s.EndsAt.After(s.StartsAt) {
		return NewError(CodeInvalidData, "ends_at must be after starts_at")
	}
	return nil
}

// SubscriptionSignature is one party's signature over a Subscription
// (spec §3).
type SubscriptionSignature struct {
	Sig       []byte
	SignerPub []byte
	Nonce     [32]byte
	Timestamp time.Time
	ExpiresAt time.Time
}

// SignedSubscription bundles a Subscription with both parties' signatures.
type SignedSubscription struct {
	Subscription        Subscription
	SubscriberSignature SubscriptionSignature
	ProviderSignature   SubscriptionSignature
}

// canonicalEncode deterministically encodes a Subscription: fixed-width
// integers, declared field order, no set/map reordering (spec §4.12,
// §9 "Deterministic serialization"). JSON is deliberately not used here
// because Go map/struct-to-JSON key ordering is not a signing-safe
// guarantee across versions; see DESIGN.md for why no protobuf/msgpack
// message type from the reference corpus was a better fit than a direct
// fixed-width encoder.
func canonicalEncode(s Subscription) []byte {
	buf := make([]byte, 0, 256)
	putString := func(v string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, v...)
	}
	putInt64 := func(v int64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v))
		buf = append(buf, b[:]...)
	}
	putInt32 := func(v int32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v))
		buf = append(buf, b[:]...)
	}

	putString(s.SubID)
	putString(s.Subscriber)
	putString(s.Provider)
	putString(s.Terms.Amount.String())
	putString(s.Terms.Amount.Currency())
	putInt32(int32(s.Terms.Frequency.Kind))
	putInt32(int32(s.Terms.Frequency.DayOfMonth))
	putInt32(int32(s.Terms.Frequency.Month))
	putInt32(int32(s.Terms.Frequency.Day))
	putInt64(s.Terms.Frequency.IntervalSeconds)
	putString(string(s.Terms.Method))
	if s.Terms.MaxPerPeriod != nil {
		buf = append(buf, 1)
		putString(s.Terms.MaxPerPeriod.String())
		putString(s.Terms.MaxPerPeriod.Currency())
	} else {
		buf = append(buf, 0)
	}
	putString(s.Terms.Description)
	putString(string(s.Metadata))
	putInt64(s.CreatedAt.Unix())
	putInt64(s.StartsAt.Unix())
	if s.EndsAt != nil {
		buf = append(buf, 1)
		putInt64(s.EndsAt.Unix())
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func subscriptionHash(s Subscription, nonce [32]byte, timestamp, expiresAt time.Time) [32]byte {
	h := sha256.New()
	h.Write([]byte(subscriptionDomainTag))
	h.Write(canonicalEncode(s))
	h.Write(nonce[:])
	var tsBuf, expBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestamp.Unix()))
	binary.BigEndian.PutUint64(expBuf[:], uint64(expiresAt.Unix()))
	h.Write(tsBuf[:])
	h.Write(expBuf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SignSubscription produces a SubscriptionSignature over sub using the
// given identity, nonce, and lifetime (spec §4.12).
func SignSubscription(sub Subscription, id Identity, nonce [32]byte, now time.Time, lifetime time.Duration) SubscriptionSignature {
	expiresAt := now.Add(lifetime)
	hash := subscriptionHash(sub, nonce, now, expiresAt)
	sig := id.Sign(hash[:])
	return SubscriptionSignature{
		Sig:       sig,
		SignerPub: append([]byte{}, id.PublicKey[:]...),
		Nonce:     nonce,
		Timestamp: now,
		ExpiresAt: expiresAt,
	}
}

// RandomNonce generates a fresh 32-byte CSPRNG nonce for subscription
// signing; callers must track (signer_pub, nonce) for replay detection
// (spec §4.12).
func RandomNonce() ([32]byte, error) {
	var n [32]byte
	if _, err := io.ReadFull(crand.Reader, n[:]); err != nil {
		return n, WrapError(CodeInternal, "generate nonce", err)
	}
	return n, nil
}

// VerifySubscriptionSignature verifies sig over sub. It fails fast (before
// the crypto check) if sig has already expired (spec §4.12, §7 policy).
func VerifySubscriptionSignature(sub Subscription, sig SubscriptionSignature, now time.Time) bool {
	if now.After(sig.ExpiresAt) {
		return false
	}
	hash := subscriptionHash(sub, sig.Nonce, sig.Timestamp, sig.ExpiresAt)
	if len(sig.SignerPub) != ed25519.PublicKeySize {
		return false
	}
	return VerifySignature(sig.SignerPub, hash[:], sig.Sig)
}

// ReplayKey returns the (signer_pub, nonce) tuple callers must track to
// detect signature replay (spec §4.12).
func (s SubscriptionSignature) ReplayKey() string {
	return string(s.SignerPub) + "|" + string(s.Nonce[:])
}

// --- Due-date evaluation (spec §4.12) ---

// DueDateEvaluator evaluates whether a subscription is due, guarding
// against double-billing within a period by tracking the last successful
// billing per (sub_id, period_start) — the approach spec.md §9's open
// question recommends.
type DueDateEvaluator struct {
	lastBilled map[string]time.Time // key: subID|periodStart(unix)
}

// NewDueDateEvaluator builds an empty evaluator.
func NewDueDateEvaluator() *DueDateEvaluator {
	return &DueDateEvaluator{lastBilled: make(map[string]time.Time)}
}

// periodStart returns the calendar period start for freq as of now, used as
// the double-billing guard key.
func periodStart(freq PaymentFrequency, now time.Time) time.Time {
	switch freq.Kind {
	case FreqDaily:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case FreqWeekly:
		offset := int(now.Weekday())
		return time.Date(now.Year(), now.Month(), now.Day()-offset, 0, 0, 0, 0, now.Location())
	case FreqMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	case FreqYearly:
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
	default:
		return now
	}
}

func (e *DueDateEvaluator) billedKey(subID string, ps time.Time) string {
	return subID + "|" + ps.UTC().Format(time.RFC3339)
}

// IsDue reports whether sub is due at now and has not already been billed
// for the computed period. startsAt anchors the "start weekday" used by
// Weekly (spec §4.12); lastPaymentAt is consulted for FreqCustom's interval
// check.
func (e *DueDateEvaluator) IsDue(subID string, freq PaymentFrequency, startsAt, now, lastPaymentAt time.Time) bool {
	var due bool
	switch freq.Kind {
	case FreqDaily:
		due = true
	case FreqWeekly:
		due = now.Weekday() == startsAt.Weekday()
	case FreqMonthly:
		due = now.Day() == freq.DayOfMonth
	case FreqYearly:
		due = int(now.Month()) == freq.Month && now.Day() == freq.Day
	case FreqCustom:
		if lastPaymentAt.IsZero() {
			return true
		}
		return now.Sub(lastPaymentAt) >= time.Duration(freq.IntervalSeconds)*time.Second
	}
	if !due {
		return false
	}
	ps := periodStart(freq, now)
	key := e.billedKey(subID, ps)
	if _, already := e.lastBilled[key]; already {
		return false
	}
	return true
}

// MarkBilled records that subID was successfully billed for the period
// containing now, preventing a second IsDue==true within the same period.
func (e *DueDateEvaluator) MarkBilled(subID string, freq PaymentFrequency, now time.Time) {
	ps := periodStart(freq, now)
	e.lastBilled[e.billedKey(subID, ps)] = now
}
