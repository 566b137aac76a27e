package classify

import (
	"errors"
	"testing"

	"github.com/apsbeam/streamrecon/internal/calib"
	"github.com/apsbeam/streamrecon/internal/frame"
	"github.com/apsbeam/streamrecon/internal/obs"
	"github.com/apsbeam/streamrecon/internal/reconerr"
	"github.com/apsbeam/streamrecon/internal/ring"
)

// TestFrameAccountingAcrossPreCalibrationAndEvictionDrops covers
// invariant 1 of §8: the number of preprocessed projections reaching
// the transposer (here, the ring's output queue, the transposer's
// direct upstream) equals the number of projection frames accepted
// minus the number explicitly dropped, whether dropped for arriving
// before calibration was ready or for landing in a generation the ring
// evicted before it completed.
func TestFrameAccountingAcrossPreCalibrationAndEvictionDrops(t *testing.T) {
	const rows, cols = 1, 1
	shape := frame.Shape{Rows: rows, Cols: cols}
	log := obs.New("test")

	calibAgg := calib.New(rows*cols, 1, 1, log)
	const groupSize, capacity = 2, 1
	r := ring.New(groupSize, capacity, rows, cols, log)
	c := New(shape, calibAgg, r, log)

	var totalAccepted, preCalibDropped int
	accept := func(idx int) {
		totalAccepted++
		err := c.Accept(frame.Frame{Kind: frame.KindProjection, Index: idx, Shape: shape, Data: []float64{float64(idx)}})
		var rerr *reconerr.Error
		if errors.As(err, &rerr) && rerr.Kind == reconerr.KindCalibration {
			preCalibDropped++
		}
	}

	// Pre-calibration: dropped before ever reaching the ring.
	accept(0)
	accept(1)

	// Calibrate.
	if err := c.Accept(frame.Frame{Kind: frame.KindDark, Index: 0, Shape: shape, Data: []float64{0}}); err != nil {
		t.Fatalf("Accept(dark): %v", err)
	}
	if err := c.Accept(frame.Frame{Kind: frame.KindFlat, Index: 0, Shape: shape, Data: []float64{1}}); err != nil {
		t.Fatalf("Accept(flat): %v", err)
	}

	// Generation 1 (idx 2,3): completes and reaches the ring's output.
	accept(2)
	accept(3)
	// Generation 2 (idx 4): only partially filled before the ring, at
	// capacity 1, evicts it to make room for generation 3 — this
	// projection's data is permanently lost, the "ring eviction" drop.
	accept(4)
	// Generation 3 (idx 6, 7): forces generation 2's eviction, then
	// completes and reaches the ring's output despite the gap left by
	// the evicted generation 2.
	accept(6)
	accept(7)

	if !r.Evicted(2) {
		t.Fatal("generation 2 should have been evicted incomplete")
	}

	var reaching int
	for {
		g, ok := r.Out().TryPop()
		if !ok {
			break
		}
		reaching += g.GroupSize
	}

	const evictionDropped = 1 // generation 2's lone frame (idx 4)
	if want := totalAccepted - preCalibDropped - evictionDropped; reaching != want {
		t.Fatalf("reaching = %d, want totalAccepted(%d) - preCalibDropped(%d) - evictionDropped(%d) = %d",
			reaching, totalAccepted, preCalibDropped, evictionDropped, want)
	}
	if preCalibDropped != 2 {
		t.Fatalf("preCalibDropped = %d, want 2", preCalibDropped)
	}
	if reaching != 4 {
		t.Fatalf("reaching = %d, want 4 (generations 1 and 3, two projections each)", reaching)
	}
}
