package core

import (
	"errors"
	"testing"
)

func TestErrorIsRetryable(t *testing.T) {
	if !ErrTransport.IsRetryable() {
		t.Error("transport error should be retryable")
	}
	if ErrNotFound.IsRetryable() {
		t.Error("not-found should not be retryable")
	}
}

func TestWrapErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := WrapError(CodeStorage, "storage op", cause)
	if !errors.Is(wrapped, cause) {
		t.Error("expected errors.Is to find wrapped cause")
	}
	if CodeOf(wrapped) != CodeStorage {
		t.Errorf("CodeOf = %v, want CodeStorage", CodeOf(wrapped))
	}
}

func TestCodeOfNonPaykitError(t *testing.T) {
	if CodeOf(errors.New("plain")) != CodeInternal {
		t.Error("non-paykit error should map to CodeInternal")
	}
}

func TestWithRetryChains(t *testing.T) {
	err := NewError(CodeRateLimited, "slow down").WithRetry(500)
	if err.RetryAfterMs != 500 {
		t.Errorf("RetryAfterMs = %d, want 500", err.RetryAfterMs)
	}
	if !err.IsRetryable() {
		t.Error("rate limited should be retryable")
	}
}
