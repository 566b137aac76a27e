package sino

import (
	"context"
	"testing"
	"time"

	"github.com/apsbeam/streamrecon/internal/daqqueue"
	"github.com/apsbeam/streamrecon/internal/obs"
	"github.com/apsbeam/streamrecon/internal/ring"
)

func groupOf(gen, rows, cols, groupSize int, base float64) *ring.Group {
	data := make([]float64, groupSize*rows*cols)
	for i := range data {
		data[i] = base + float64(i)
	}
	return &ring.Group{Generation: gen, Rows: rows, Cols: cols, GroupSize: groupSize, Data: data, BaseIndex: gen * groupSize}
}

// TestTransposeRoundTrip encodes invariant 3 of §8: reading sino[r, g, c]
// equals the pre-transpose group[g, r, c] for every in-range (r, g, c).
func TestTransposeRoundTrip(t *testing.T) {
	const rows, cols, groupSize = 3, 4, 2
	const n = groupSize // one group per revolution, colOffset always 0

	in := daqqueue.New[*ring.Group](0)
	tr := New(Alternating, rows, cols, n, groupSize, in, obs.New("test"))

	g := groupOf(0, rows, cols, groupSize, 100)
	in.TryPush(g)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	upd, ok := tr.Out().WaitAndPop(2 * time.Second)
	if !ok {
		t.Fatal("timed out waiting for a transposed update")
	}

	for p := 0; p < groupSize; p++ {
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				srcIdx := p*rows*cols + r*cols + c
				dstIdx := r*n*cols + p*cols + c
				if upd.Data[dstIdx] != g.Data[srcIdx] {
					t.Fatalf("sino[r=%d,g=%d,c=%d] = %v, want group[g=%d,r=%d,c=%d] = %v",
						r, p, c, upd.Data[dstIdx], p, r, c, g.Data[srcIdx])
				}
			}
		}
	}
}

// TestTransposeHoldsLaterGenerationUntilContiguous checks that a
// generation completing preprocessing before its predecessor is held
// back rather than published out of order: only one Update is emitted,
// and it incorporates both generations once the hole is filled.
func TestTransposeHoldsLaterGenerationUntilContiguous(t *testing.T) {
	const rows, cols, groupSize = 2, 3, 2
	const revGroups = 2
	const n = groupSize * revGroups

	in := daqqueue.New[*ring.Group](0)
	tr := New(Alternating, rows, cols, n, groupSize, in, obs.New("test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	// Generation 1 (second half of the revolution) finishes first.
	in.TryPush(groupOf(1, rows, cols, groupSize, 1))
	time.Sleep(150 * time.Millisecond)
	if !tr.Out().Empty() {
		t.Fatal("a revolution must not publish until every generation in it has arrived")
	}

	in.TryPush(groupOf(0, rows, cols, groupSize, 0))

	upd, ok := tr.Out().WaitAndPop(2 * time.Second)
	if !ok {
		t.Fatal("timed out waiting for the completed revolution")
	}
	if upd.Generation != 1 {
		t.Fatalf("Update.Generation = %d, want 1 (last generation incorporated)", upd.Generation)
	}
	if upd.ColCount != n {
		t.Fatalf("Update.ColCount = %d, want %d (full revolution)", upd.ColCount, n)
	}
}

// TestTransposeContinuousModePublishesEveryGroup covers invariant 6 of
// §8 for continuous mode: each group published increments the
// incorporated projection count by exactly G, one Update per group.
func TestTransposeContinuousModePublishesEveryGroup(t *testing.T) {
	const rows, cols, groupSize = 2, 3, 2
	const revGroups = 2
	const n = groupSize * revGroups

	in := daqqueue.New[*ring.Group](0)
	tr := New(Continuous, rows, cols, n, groupSize, in, obs.New("test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	in.TryPush(groupOf(0, rows, cols, groupSize, 0))
	upd0, ok := tr.Out().WaitAndPop(2 * time.Second)
	if !ok {
		t.Fatal("timed out waiting for first update")
	}
	if upd0.ColCount != groupSize || upd0.ColOffset != 0 {
		t.Fatalf("first update = %+v, want ColOffset=0 ColCount=%d", upd0, groupSize)
	}

	in.TryPush(groupOf(1, rows, cols, groupSize, 0))
	upd1, ok := tr.Out().WaitAndPop(2 * time.Second)
	if !ok {
		t.Fatal("timed out waiting for second update")
	}
	if upd1.ColCount != groupSize || upd1.ColOffset != groupSize {
		t.Fatalf("second update = %+v, want ColOffset=%d ColCount=%d", upd1, groupSize, groupSize)
	}
}

// TestTransposePanicsOnMisalignedRevolution documents that N must be a
// multiple of the group size.
func TestTransposePanicsOnMisalignedRevolution(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("New must panic when n is not a multiple of groupSize")
		}
	}()
	New(Alternating, 2, 2, 5, 2, daqqueue.New[*ring.Group](0), obs.New("test"))
}
