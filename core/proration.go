package core

import (
	"time"
)

// ProrationResult is the outcome of computing a mid-period amount change
// (spec §4.12). Positive Net is an additional charge; negative is a
// refund; zero is neutral.
type ProrationResult struct {
	Credit Amount
	Charge Amount
	Net    Amount
}

const secondsPerDay = 86400

// ComputeProration validates periodStart <= changeDate <= periodEnd, then
// prorates oldAmount/newAmount across the remaining days of the period
// (spec §4.12 example 4).
func ComputeProration(oldAmount, newAmount Amount, periodStart, periodEnd, changeDate time.Time, mode RoundingMode) (ProrationResult, error) {
	if changeDate.Before(periodStart) || changeDate.After(periodEnd) {
		return ProrationResult{}, NewError(CodeInvalidData, "change_date must fall within [period_start, period_end]")
	}
	totalDays := int64(periodEnd.Sub(periodStart).Seconds()) / secondsPerDay
	if totalDays <= 0 {
		return ProrationResult{}, NewError(CodeInvalidData, "period_end must be after period_start")
	}
	daysAtNew := int64(periodEnd.Sub(changeDate).Seconds()) / secondsPerDay

	credit := oldAmount.MulRatDiv(daysAtNew, totalDays, mode)
	charge := newAmount.MulRatDiv(daysAtNew, totalDays, mode)
	net, err := charge.Sub(credit)
	if err != nil {
		return ProrationResult{}, err
	}
	return ProrationResult{Credit: credit, Charge: charge, Net: net}, nil
}

// --- Subscription payment fallback policy (spec §4.12) ---

// SubscriptionFallbackPolicy is an ordered list of methods to retry when a
// subscription payment fails.
type SubscriptionFallbackPolicy struct {
	Methods              []MethodId
	MaxMethods           int
	MaxRetriesPerMethod  int
	RetryDelay           time.Duration
	GracePeriod          time.Duration
}

// FallbackOutcome is the terminal status of a SubscriptionFallbackPolicy run.
type FallbackOutcome int

const (
	FallbackSucceeded FallbackOutcome = iota
	FallbackGracePeriod
	FallbackFailed
)

// SubscriptionAttempt records one (method, retry) attempt within a
// fallback run.
type SubscriptionAttempt struct {
	Method  MethodId
	Retry   int
	Success bool
	Error   string
}

// SubscriptionFallbackRecord is the full outcome of attempting a
// subscription payment across the fallback policy.
type SubscriptionFallbackRecord struct {
	Attempts []SubscriptionAttempt
	Outcome  FallbackOutcome
}

// RunSubscriptionFallback attempts pay against each method in order, up to
// MaxMethods methods and MaxRetriesPerMethod retries each. If every attempt
// fails, the outcome is GracePeriod when gracePeriodElapsed is false, or
// Failed once the grace period has elapsed.
func RunSubscriptionFallback(policy SubscriptionFallbackPolicy, gracePeriodElapsed bool, pay func(method MethodId) error) SubscriptionFallbackRecord {
	methods := policy.Methods
	if policy.MaxMethods > 0 && policy.MaxMethods < len(methods) {
		methods = methods[:policy.MaxMethods]
	}
	retries := policy.MaxRetriesPerMethod
	if retries <= 0 {
		retries = 1
	}

	var record SubscriptionFallbackRecord
	for _, method := range methods {
		for attempt := 0; attempt < retries; attempt++ {
			err := pay(method)
			if err == nil {
				record.Attempts = append(record.Attempts, SubscriptionAttempt{Method: method, Retry: attempt, Success: true})
				record.Outcome = FallbackSucceeded
				return record
			}
			record.Attempts = append(record.Attempts, SubscriptionAttempt{Method: method, Retry: attempt, Success: false, Error: err.Error()})
		}
	}

	if gracePeriodElapsed {
		record.Outcome = FallbackFailed
	} else {
		record.Outcome = FallbackGracePeriod
	}
	return record
}
