package preprocess_test

import (
	"context"
	"testing"
	"time"

	"github.com/apsbeam/streamrecon/internal/calib"
	"github.com/apsbeam/streamrecon/internal/obs"
	"github.com/apsbeam/streamrecon/internal/preprocess"
	"github.com/apsbeam/streamrecon/internal/ring"
	"github.com/apsbeam/streamrecon/internal/sino"
)

const (
	pipelineRows = 4
	pipelineCols = 5
	pipelineN    = 16
)

// basePattern is the 4x5 projection pattern shared by S1 and S2, laid out
// row-major. Odd-indexed projections add 1 to every pixel.
var basePattern = []float64{
	2, 5, 3, 7, 1,
	4, 6, 2, 9, 5,
	1, 3, 7, 5, 8,
	6, 8, 8, 7, 3,
}

func projectionData(index int) []float64 {
	data := append([]float64(nil), basePattern...)
	if index%2 == 1 {
		for i := range data {
			data[i]++
		}
	}
	return data
}

func almostEqual(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

// runPipeline wires a ring, calibration aggregator, and preprocessor pool
// into a Transposer exactly as cmd/reconsvc's startup does, then feeds
// the given dark/flat/projection frames (in the given projection
// arrival order) and returns the first full-revolution sinogram Update.
func runPipeline(t *testing.T, projectionOrder []int) *sino.Update {
	t.Helper()
	log := obs.New("test")
	pixels := pipelineRows * pipelineCols

	calibAgg := calib.New(pixels, 1, 1, log)
	if err := calibAgg.AcceptDark(0, make([]float64, pixels)); err != nil {
		t.Fatalf("AcceptDark: %v", err)
	}
	flat := make([]float64, pixels)
	for i := range flat {
		flat[i] = 1
	}
	if err := calibAgg.AcceptFlat(0, flat); err != nil {
		t.Fatalf("AcceptFlat: %v", err)
	}
	calibAgg.Recompute()

	r := ring.New(pipelineN, 2, pipelineRows, pipelineCols, log)

	pool, err := preprocess.New(preprocess.Config{
		Rows:    pipelineRows,
		Cols:    pipelineCols,
		Workers: 2,
	}, calibAgg, r.Out(), log)
	if err != nil {
		t.Fatalf("preprocess.New: %v", err)
	}

	transposer := sino.New(sino.Alternating, pipelineRows, pipelineCols, pipelineN, pipelineN, pool.Out(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)
	go transposer.Run(ctx)

	for _, idx := range projectionOrder {
		if err := r.Push(idx, projectionData(idx)); err != nil {
			t.Fatalf("Push(%d): %v", idx, err)
		}
	}

	upd, ok := transposer.Out().WaitAndPop(5 * time.Second)
	if !ok {
		t.Fatal("timed out waiting for the preprocessed sinogram")
	}
	return upd
}

// wantFirstTen is S1's expected first ten row-major sinogram values:
// row 0's filtered projection 0 followed by row 0's filtered
// projection 1.
var wantFirstTen = []float64{
	0.110098, -0.272487, 0.133713, -0.491590, 0.520265,
	0.101732, -0.201946, 0.119072, -0.369920, 0.351062,
}

func checkFirstTen(t *testing.T, upd *sino.Update) {
	t.Helper()
	for i, want := range wantFirstTen {
		if !almostEqual(upd.Data[i], want, 1e-6) {
			t.Errorf("sinogram[%d] = %v, want %v", i, upd.Data[i], want)
		}
	}
}

// TestPipelineInOrderArrivalMatchesSinogramScenario is S1: in-order
// arrival of 16 projections over one full revolution (G=N=16) must
// produce the documented filtered sinogram values.
func TestPipelineInOrderArrivalMatchesSinogramScenario(t *testing.T) {
	order := make([]int, pipelineN)
	for i := range order {
		order[i] = i
	}
	upd := runPipeline(t, order)
	checkFirstTen(t, upd)
}

// TestPipelineOutOfOrderArrivalMatchesSinogramScenario is S2: the same
// 16 projections arrive as 0..N-4, then N-1,N,N+1,N+2 (spilling into the
// next generation), then N-3,N-2. The completed generation's sinogram
// must be identical to S1 regardless of arrival order.
func TestPipelineOutOfOrderArrivalMatchesSinogramScenario(t *testing.T) {
	const n = pipelineN
	order := []int{}
	for i := 0; i <= n-4; i++ {
		order = append(order, i)
	}
	order = append(order, n-1, n, n+1, n+2)
	order = append(order, n-3, n-2)

	upd := runPipeline(t, order)
	checkFirstTen(t, upd)
}
