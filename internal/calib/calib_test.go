package calib

import (
	"testing"

	"github.com/apsbeam/streamrecon/internal/obs"
)

func TestAggregatorNotReadyUntilFirstRecompute(t *testing.T) {
	a := New(4, 1, 1, obs.New("test"))
	if a.Ready() {
		t.Fatal("Aggregator must not be ready before any dark/flat has arrived")
	}
	if a.NeedsRecompute() {
		t.Fatal("NeedsRecompute must be false with no darks or flats yet")
	}

	_ = a.AcceptDark(0, []float64{1, 1, 1, 1})
	if a.NeedsRecompute() {
		t.Fatal("NeedsRecompute must require both a dark and a flat")
	}
	_ = a.AcceptFlat(0, []float64{5, 5, 5, 5})
	if !a.NeedsRecompute() {
		t.Fatal("NeedsRecompute must be true once both a dark and a flat have arrived")
	}

	a.Recompute()
	if !a.Ready() {
		t.Fatal("Aggregator must be ready after Recompute")
	}
	if a.NeedsRecompute() {
		t.Fatal("NeedsRecompute must be false immediately after Recompute")
	}
}

// TestReciprocalCorrectness encodes invariant 2 of §8: the reciprocal
// pixel equals 1/(mean(flat)-mean(dark)) when that denominator is
// nonzero, and 1 when it is zero.
func TestReciprocalCorrectness(t *testing.T) {
	a := New(2, 2, 2, obs.New("test"))

	_ = a.AcceptDark(0, []float64{2, 10})
	_ = a.AcceptDark(1, []float64{4, 10})
	_ = a.AcceptFlat(0, []float64{6, 10})
	_ = a.AcceptFlat(1, []float64{8, 10})
	a.Recompute()

	darkMean, reciprocal := a.Snapshot()
	// pixel 0: darkMean = (2+4)/2 = 3, flatMean = (6+8)/2 = 7, denom = 4.
	if !almostEqual(darkMean[0], 3, 1e-9) {
		t.Errorf("darkMean[0] = %v, want 3", darkMean[0])
	}
	if !almostEqual(reciprocal[0], 1.0/4.0, 1e-9) {
		t.Errorf("reciprocal[0] = %v, want %v", reciprocal[0], 1.0/4.0)
	}
	// pixel 1: dark and flat means both 10, denom = 0 -> reciprocal 1.
	if !almostEqual(reciprocal[1], 1, 1e-9) {
		t.Errorf("reciprocal[1] = %v, want 1 for zero denominator", reciprocal[1])
	}
}

func TestAcceptDarkOutOfRangeIsDroppedNotFatal(t *testing.T) {
	a := New(2, 1, 1, obs.New("test"))
	if err := a.AcceptDark(5, []float64{1, 1}); err != nil {
		t.Fatalf("AcceptDark out of range should be dropped, not errored: %v", err)
	}
	if a.NeedsRecompute() {
		t.Fatal("an out-of-range dark must not count toward recompute readiness")
	}
}

func TestAcceptDarkReplacingSlotDoesNotDoubleCount(t *testing.T) {
	a := New(2, 2, 1, obs.New("test"))
	_ = a.AcceptDark(0, []float64{1, 1})
	_ = a.AcceptDark(0, []float64{2, 2})
	_ = a.AcceptFlat(0, []float64{4, 4})
	a.Recompute()

	darkMean, _ := a.Snapshot()
	if !almostEqual(darkMean[0], 2, 1e-9) {
		t.Fatalf("darkMean[0] = %v, want 2 (only one dark slot filled, latest value kept)", darkMean[0])
	}
}

func almostEqual(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}
