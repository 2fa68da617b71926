package core

import (
	"context"
	"encoding/json"
	"math/big"
	"sort"
	"time"
)

// SelectionStrategy picks how candidate methods are scored (spec §4.7).
type SelectionStrategy int

const (
	Balanced SelectionStrategy = iota
	CostOptimized
	SpeedOptimized
	PrivacyOptimized
	PriorityList
)

// SelectionPreferences parameterizes method scoring and filtering.
type SelectionPreferences struct {
	Strategy                 SelectionStrategy
	Excluded                 map[MethodId]bool
	PriorityList             []MethodId // used by the PriorityList strategy
	MaxConfirmationTimeSecs  *int64
	AmountThresholds         map[MethodId]Amount // minimum viable amount per method
	PreferPrivacy            bool
}

// privacyPreferringMethods favours off-chain rails under PrivacyOptimized.
var privacyPreferringMethods = map[MethodId]bool{
	"lightning": true,
}

const (
	baseScore = 50

	lightningSmallAmountBonus = 15
	lightningSmallAmountSats  = 100_000
	lightningViabilitySats    = 10_000_000 // above this, lightning is heavily penalized
	lightningPenalty          = -40

	onchainLargeAmountBonus = 10
	onchainDustSats         = 1_000
	onchainPenalty          = -40

	privacyBonus = 20
)

// SelectionResult captures the outcome of SelectMethod: the chosen primary,
// its ordered fallbacks, the primary's score, and a human-readable reason.
type SelectionResult struct {
	Primary   MethodId
	Fallbacks []MethodId
	Score     int
	Reason    string
}

type scoredMethod struct {
	id    MethodId
	score int
}

// satsOf extracts a sats-denominated integer heuristic from amount for
// scoring purposes. Amounts already tagged "SAT" are used directly;
// otherwise the method-fit bonuses that depend on a sats magnitude do not
// apply (score contribution 0), since cross-currency comparison is
// undefined (spec §3 invariant: no arithmetic crosses currency tags).
func satsOf(amount Amount) (int64, bool) {
	if amount.Currency() != "SAT" || amount.Sign() < 0 {
		return 0, false
	}
	whole := new(big.Int).Quo(amount.mantissa, pow10(amount.exponent))
	if !whole.IsInt64() {
		return 0, false
	}
	return whole.Int64(), true
}

func scoreMethod(plugin Plugin, amount Amount, prefs SelectionPreferences, priorityIndex int, maxPriority int) int {
	score := baseScore
	sats, hasSats := satsOf(amount)

	switch prefs.Strategy {
	case Balanced:
		if plugin.MethodId() == "lightning" {
			if hasSats && sats < lightningSmallAmountSats {
				score += lightningSmallAmountBonus
			}
			if hasSats && sats > lightningViabilitySats {
				score += lightningPenalty
			}
		}
		if plugin.MethodId() == "onchain" {
			if hasSats && sats >= lightningSmallAmountSats {
				score += onchainLargeAmountBonus
			}
			if hasSats && sats < onchainDustSats {
				score += onchainPenalty
			}
		}
	case CostOptimized:
		if plugin.MethodId() == "lightning" {
			score += 10
		}
	case SpeedOptimized:
		if secs, ok := plugin.EstimatedConfirmationTimeSecs(); ok {
			score += speedScore(secs)
		}
	case PrivacyOptimized:
		if privacyPreferringMethods[plugin.MethodId()] {
			score += privacyBonus
		}
	case PriorityList:
		if priorityIndex >= 0 {
			score += (maxPriority - priorityIndex) * 10
		} else {
			score = -1 << 30 // not in the list: sinks to the bottom
		}
	}

	// Amount-fit adjustments apply under every strategy (spec §4.7).
	if prefs.Strategy != Balanced {
		if plugin.MethodId() == "lightning" && hasSats {
			if sats < lightningSmallAmountSats {
				score += lightningSmallAmountBonus / 2
			}
			if sats > lightningViabilitySats {
				score += lightningPenalty
			}
		}
		if plugin.MethodId() == "onchain" && hasSats {
			if sats >= lightningSmallAmountSats {
				score += onchainLargeAmountBonus / 2
			}
			if sats < onchainDustSats {
				score += onchainPenalty
			}
		}
	}

	if threshold, ok := prefs.AmountThresholds[plugin.MethodId()]; ok {
		if cmp, err := amount.Cmp(threshold); err == nil && cmp < 0 {
			score -= 25
		}
	}

	return score
}

func speedScore(confirmationSecs int64) int {
	switch {
	case confirmationSecs <= 1:
		return 50
	case confirmationSecs <= 60:
		return 40
	case confirmationSecs <= 600:
		return 25
	default:
		return 10
	}
}

// SelectMethod scores every plugin in registry whose method appears in
// payments and is not excluded, dropping methods that fail
// ValidateEndpoint, SupportsAmount, or the MaxConfirmationTimeSecs cap, then
// orders the survivors by descending score (ties broken by MethodId) to
// build a primary + fallback chain (spec §4.7).
func SelectMethod(registry *Registry, payments SupportedPayments, amount Amount, prefs SelectionPreferences) (SelectionResult, error) {
	priorityIndex := make(map[MethodId]int, len(prefs.PriorityList))
	for i, m := range prefs.PriorityList {
		priorityIndex[m] = i
	}
	maxPriority := len(prefs.PriorityList)

	var candidates []scoredMethod
	for method, endpoint := range payments {
		if prefs.Excluded[method] {
			continue
		}
		plugin, ok := registry.Get(method)
		if !ok {
			continue
		}
		if !plugin.ValidateEndpoint(endpoint).Valid {
			continue
		}
		if !plugin.SupportsAmount(amount) {
			continue
		}
		if prefs.MaxConfirmationTimeSecs != nil {
			if secs, ok := plugin.EstimatedConfirmationTimeSecs(); ok && secs > *prefs.MaxConfirmationTimeSecs {
				continue
			}
		}
		idx := -1
		if prefs.Strategy == PriorityList {
			if i, found := priorityIndex[method]; found {
				idx = i
			}
		}
		candidates = append(candidates, scoredMethod{id: method, score: scoreMethod(plugin, amount, prefs, idx, maxPriority)})
	}

	if len(candidates) == 0 {
		return SelectionResult{}, NewError(CodeMethodNotSupported, "no viable payment method")
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	fallbacks := make([]MethodId, 0, len(candidates)-1)
	for _, c := range candidates[1:] {
		fallbacks = append(fallbacks, c.id)
	}

	return SelectionResult{
		Primary:   candidates[0].id,
		Fallbacks: fallbacks,
		Score:     candidates[0].score,
		Reason:    "scored by " + strategyName(prefs.Strategy),
	}, nil
}

func strategyName(s SelectionStrategy) string {
	switch s {
	case CostOptimized:
		return "cost_optimized"
	case SpeedOptimized:
		return "speed_optimized"
	case PrivacyOptimized:
		return "privacy_optimized"
	case PriorityList:
		return "priority_list"
	default:
		return "balanced"
	}
}

// --- Fallback execution (spec §4.7) ---

// FallbackConfig bounds the fallback executor's behavior.
type FallbackConfig struct {
	MaxAttempts int
	TimeoutMs   int64
}

// AttemptRecord records one execution attempt.
type AttemptRecord struct {
	Method    MethodId
	Success   bool
	Error     string
	Execution *PaymentExecution
}

// FallbackRecord is the terminal outcome of FallbackExecutor.Execute.
type FallbackRecord struct {
	Attempts         []AttemptRecord
	SuccessfulMethod MethodId
	Succeeded        bool
}

// FallbackExecutor iterates primary, then fallbacks in order, invoking each
// plugin's ExecutePayment until one succeeds or attempts are exhausted
// (spec §4.7).
type FallbackExecutor struct {
	Registry *Registry
	Config   FallbackConfig
}

func (f FallbackExecutor) Execute(ctx context.Context, result SelectionResult, payments SupportedPayments, amount Amount, metadata json.RawMessage) FallbackRecord {
	order := append([]MethodId{result.Primary}, result.Fallbacks...)
	maxAttempts := f.Config.MaxAttempts
	if maxAttempts <= 0 || maxAttempts > len(order) {
		maxAttempts = len(order)
	}

	var record FallbackRecord
	for i := 0; i < maxAttempts; i++ {
		method := order[i]
		endpoint, ok := payments[method]
		if !ok {
			record.Attempts = append(record.Attempts, AttemptRecord{Method: method, Success: false, Error: "no endpoint"})
			continue
		}
		plugin, err := f.Registry.GetRequired(method)
		if err != nil {
			record.Attempts = append(record.Attempts, AttemptRecord{Method: method, Success: false, Error: err.Error()})
			continue
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if f.Config.TimeoutMs > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(f.Config.TimeoutMs)*time.Millisecond)
		}
		execution, err := plugin.ExecutePayment(attemptCtx, endpoint, amount, metadata)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			record.Attempts = append(record.Attempts, AttemptRecord{Method: method, Success: false, Error: err.Error()})
			continue
		}
		record.Attempts = append(record.Attempts, AttemptRecord{Method: method, Success: true, Execution: &execution})
		record.Succeeded = true
		record.SuccessfulMethod = method
		return record
	}
	return record
}
