package core

import (
	"testing"
	"time"
)

func TestStatusTrackerHappyPath(t *testing.T) {
	tr := NewStatusTracker()
	now := time.Unix(1_700_000_000, 0)
	tr.Track("pay-1", 3, now)

	if _, err := tr.Update("pay-1", Processing, now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	snap, err := tr.UpdateConfirmations("pay-1", 1, 3, now.Add(2*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != Confirmed {
		t.Errorf("expected auto-transition to Confirmed, got %v", snap.State)
	}
	if _, err := tr.Update("pay-1", Finalized, now.Add(3*time.Second)); err != nil {
		t.Fatal(err)
	}
	final, ok := tr.Get("pay-1")
	if !ok || final.State != Finalized {
		t.Fatalf("expected finalized terminal state, got %+v", final)
	}
}

func TestStatusTrackerRejectsTransitionOutOfTerminal(t *testing.T) {
	tr := NewStatusTracker()
	now := time.Now()
	tr.Track("pay-1", 1, now)
	if _, err := tr.MarkFailed("pay-1", "boom", now); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Update("pay-1", Processing, now); CodeOf(err) != CodeValidationFailed {
		t.Errorf("expected CodeValidationFailed leaving a terminal state, got %v", err)
	}
}

func TestStatusTrackerRejectsInvalidTransition(t *testing.T) {
	tr := NewStatusTracker()
	now := time.Now()
	tr.Track("pay-1", 1, now)
	if _, err := tr.Update("pay-1", Finalized, now); CodeOf(err) != CodeValidationFailed {
		t.Errorf("expected CodeValidationFailed for Pending->Finalized, got %v", err)
	}
}

func TestStatusTrackerConfirmationsMustBeMonotonic(t *testing.T) {
	tr := NewStatusTracker()
	now := time.Now()
	tr.Track("pay-1", 5, now)
	tr.Update("pay-1", Processing, now)
	if _, err := tr.UpdateConfirmations("pay-1", 3, 5, now); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.UpdateConfirmations("pay-1", 2, 5, now); CodeOf(err) != CodeValidationFailed {
		t.Errorf("expected monotonicity violation to be rejected, got %v", err)
	}
}

func TestStatusTrackerObserversReceiveSnapshotsWithoutLock(t *testing.T) {
	tr := NewStatusTracker()
	now := time.Now()
	var seen []PaymentState
	tr.Observe(func(snap StatusSnapshot) {
		// Observers must not need the tracker's lock; calling back in is safe.
		seen = append(seen, snap.State)
	})
	tr.Track("pay-1", 1, now)
	tr.Update("pay-1", Processing, now)
	tr.Update("pay-1", Confirmed, now)

	if len(seen) != 2 || seen[0] != Processing || seen[1] != Confirmed {
		t.Errorf("expected observer to see [Processing, Confirmed], got %v", seen)
	}
}

func TestStatusTrackerCleanupOld(t *testing.T) {
	tr := NewStatusTracker()
	old := time.Unix(1_000_000_000, 0)
	tr.Track("pay-1", 1, old)
	tr.MarkFailed("pay-1", "timeout", old)

	removed := tr.CleanupOld(old.Add(time.Hour))
	if removed != 1 {
		t.Errorf("expected 1 terminal entry removed, got %d", removed)
	}
	if _, ok := tr.Get("pay-1"); ok {
		t.Error("expected cleaned-up payment to no longer be tracked")
	}
}

func TestProgressPercentage(t *testing.T) {
	cases := []struct {
		snap StatusSnapshot
		want float64
	}{
		{StatusSnapshot{State: Pending}, 0},
		{StatusSnapshot{State: Processing}, 25},
		{StatusSnapshot{State: Confirmed, Confirmations: 3, Required: 6}, 75},
		{StatusSnapshot{State: Finalized}, 100},
	}
	for _, c := range cases {
		if got := c.snap.ProgressPercentage(); got != c.want {
			t.Errorf("ProgressPercentage(%+v) = %v, want %v", c.snap, got, c.want)
		}
	}
}
