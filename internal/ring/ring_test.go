package ring

import (
	"testing"

	"github.com/apsbeam/streamrecon/internal/obs"
)

func frameOf(pixels int, v float64) []float64 {
	data := make([]float64, pixels)
	for i := range data {
		data[i] = v
	}
	return data
}

func pushGroup(t *testing.T, r *Ring, gen, groupSize int, pixels int) {
	t.Helper()
	for s := 0; s < groupSize; s++ {
		idx := gen*groupSize + s
		if err := r.Push(idx, frameOf(pixels, float64(idx))); err != nil {
			t.Fatalf("Push(%d): %v", idx, err)
		}
	}
}

// TestRingCapacityEvictsOldestGeneration encodes the bounded-ring
// eviction scenario: capacity K=2, group size G=4. After two full groups
// and one projection of a third, the live generations must be {1, 2},
// generation 0 must report evicted, and a stray frame for generation 0
// must be silently dropped.
func TestRingCapacityEvictsOldestGeneration(t *testing.T) {
	const groupSize, capacity, rows, cols = 4, 2, 1, 1
	log := obs.New("test")
	r := New(groupSize, capacity, rows, cols, log)

	pushGroup(t, r, 0, groupSize, rows*cols)
	pushGroup(t, r, 1, groupSize, rows*cols)
	if err := r.Push(2*groupSize, frameOf(rows*cols, 99)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	live := r.LiveGenerations()
	gotSet := map[int]bool{}
	for _, g := range live {
		gotSet[g] = true
	}
	if len(gotSet) != 2 || !gotSet[1] || !gotSet[2] {
		t.Fatalf("live generations = %v, want {1, 2}", live)
	}
	if !r.Evicted(0) {
		t.Fatal("generation 0 should report evicted")
	}
	if r.Evicted(1) || r.Evicted(2) {
		t.Fatal("live generations must not report evicted")
	}

	// A stray frame for the evicted generation is dropped silently: no
	// error, and it must not resurrect generation 0.
	if err := r.Push(0, frameOf(rows*cols, -1)); err != nil {
		t.Fatalf("stray Push returned error: %v", err)
	}
	if !r.Evicted(0) {
		t.Fatal("generation 0 must remain evicted after a stray frame")
	}
}

// TestRingPublishesOutOfOrderCompletion checks that a later generation
// completing before an earlier one does not publish out of order: the
// output queue only ever yields generations in increasing order. The
// earlier generation's window is established with one frame before the
// later generation is completed, matching how workers racing on
// different groups can finish in either order but never skip the
// earliest live generation entirely.
func TestRingPublishesOutOfOrderCompletion(t *testing.T) {
	const groupSize, capacity, rows, cols = 2, 4, 1, 1
	log := obs.New("test")
	r := New(groupSize, capacity, rows, cols, log)

	if err := r.Push(0, frameOf(rows*cols, 0)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	pushGroup(t, r, 1, groupSize, rows*cols)
	if !r.Out().Empty() {
		t.Fatal("generation 1 must not publish before generation 0 completes")
	}

	if err := r.Push(1, frameOf(rows*cols, 0)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	g0, ok := r.Out().TryPop()
	if !ok || g0.Generation != 0 {
		t.Fatalf("first published generation = %+v, ok=%v, want generation 0", g0, ok)
	}
	g1, ok := r.Out().TryPop()
	if !ok || g1.Generation != 1 {
		t.Fatalf("second published generation = %+v, ok=%v, want generation 1", g1, ok)
	}
}

func TestRingCompleteSlotMergesOutOfOrderSlots(t *testing.T) {
	const groupSize, capacity, rows, cols = 3, 2, 1, 2
	log := obs.New("test")
	r := New(groupSize, capacity, rows, cols, log)

	if err := r.Push(2, []float64{2, 2}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := r.Push(0, []float64{0, 0}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !r.Out().Empty() {
		t.Fatal("group must not be complete with only 2 of 3 slots filled")
	}
	if err := r.Push(1, []float64{1, 1}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	g, ok := r.Out().TryPop()
	if !ok {
		t.Fatal("expected completed group 0")
	}
	want := []float64{0, 0, 1, 1, 2, 2}
	if len(g.Data) != len(want) {
		t.Fatalf("group data len = %d, want %d", len(g.Data), len(want))
	}
	for i, w := range want {
		if g.Data[i] != w {
			t.Errorf("group.Data[%d] = %v, want %v", i, g.Data[i], w)
		}
	}
}
