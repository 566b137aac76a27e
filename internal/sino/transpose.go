// Package sino implements the sinogram transposer (§4.5): it re-indexes
// a completed (projection, row, col) group into the sinogram buffer's
// (row, projection, col) layout at the column offset determined by the
// generation's position within the current revolution, and hands off a
// completed (alternating mode) or patched (continuous mode) buffer to
// the uploader. Grounded on recon/src/sinobuffer.cpp's
// SinoBuffer::insertGroup column-offset arithmetic.
//
// Generations can finish preprocessing out of order (different workers
// race on different groups), so this package keeps the same
// hold-until-contiguous reorder buffer idiom as ring.Ring.tryPublishLocked,
// generalised to a component with no eviction: nothing is ever dropped
// here, only held until its predecessor generation has been transposed.
package sino

import (
	"context"
	"sync"
	"time"

	"github.com/apsbeam/streamrecon/internal/daqqueue"
	"github.com/apsbeam/streamrecon/internal/obs"
	"github.com/apsbeam/streamrecon/internal/ring"
)

// Mode selects alternating (full double-buffered revolution) or
// continuous (sliding window, patched in place) operation.
type Mode int

const (
	Alternating Mode = iota
	Continuous
)

func (m Mode) String() string {
	if m == Continuous {
		return "continuous"
	}
	return "alternating"
}

// Update is one hand-off to the uploader: either a freshly completed
// full revolution (Alternating) or an in-place patch covering
// [ColOffset, ColOffset+ColCount) columns (Continuous).
type Update struct {
	Mode             Mode
	Rows, N, Cols    int
	Data             []float64 // rows*N*cols, row-major (row, proj, col)
	ColOffset        int
	ColCount         int
	Generation       int // last generation incorporated by this update
}

// Transposer drains preprocessed groups in generation order and
// maintains the sinogram buffer.
type Transposer struct {
	mode                   Mode
	rows, cols, n          int
	groupSize, revGroups   int

	mu          sync.Mutex
	buffer      []float64
	filledInRev int
	nextGen     int
	pending     map[int]*ring.Group

	in  *daqqueue.Queue[*ring.Group]
	out *daqqueue.Queue[*Update]
	log *obs.Logger
}

// New builds a Transposer for a detector of (rows, cols) pixels,
// groupSize consecutive projections per generation, and n projections
// per revolution (n must be a multiple of groupSize).
func New(mode Mode, rows, cols, n, groupSize int, in *daqqueue.Queue[*ring.Group], log *obs.Logger) *Transposer {
	if n%groupSize != 0 {
		panic("sino: n must be a multiple of groupSize")
	}
	return &Transposer{
		mode:      mode,
		rows:      rows,
		cols:      cols,
		n:         n,
		groupSize: groupSize,
		revGroups: n / groupSize,
		buffer:    make([]float64, rows*n*cols),
		pending:   make(map[int]*ring.Group),
		in:        in,
		out:       daqqueue.New[*Update](0),
		log:       log,
	}
}

// Out returns the update queue the uploader drains.
func (t *Transposer) Out() *daqqueue.Queue[*Update] { return t.out }

// Run drains t.in until ctx is cancelled.
func (t *Transposer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		g, ok := t.in.WaitAndPop(100 * time.Millisecond)
		if !ok {
			continue
		}
		t.accept(g)
	}
}

func (t *Transposer) accept(g *ring.Group) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[g.Generation] = g
	t.advanceLocked()
}

func (t *Transposer) advanceLocked() {
	for {
		g, ok := t.pending[t.nextGen]
		if !ok {
			return
		}
		delete(t.pending, t.nextGen)

		localGen := t.nextGen % t.revGroups
		colOffset := localGen * t.groupSize
		transposeInto(t.buffer, t.n, t.cols, colOffset, g)
		t.nextGen++

		if t.mode == Alternating {
			t.filledInRev++
			if t.filledInRev < t.revGroups {
				continue
			}
			t.filledInRev = 0
			t.log.Info("sinogram revolution complete at generation %d", t.nextGen-1)
			t.publish(0, t.n, t.nextGen-1)
			continue
		}

		t.publish(colOffset, t.groupSize, t.nextGen-1)
	}
}

func (t *Transposer) publish(colOffset, colCount, generation int) {
	data := make([]float64, len(t.buffer))
	copy(data, t.buffer)
	t.out.TryPush(&Update{
		Mode:       t.mode,
		Rows:       t.rows,
		N:          t.n,
		Cols:       t.cols,
		Data:       data,
		ColOffset:  colOffset,
		ColCount:   colCount,
		Generation: generation,
	})
}

// transposeInto writes one group's (projIdxInGroup, row, col) data into
// dst's (row, proj, col) layout at column offset colOffset.
func transposeInto(dst []float64, n, cols, colOffset int, g *ring.Group) {
	for p := 0; p < g.GroupSize; p++ {
		for r := 0; r < g.Rows; r++ {
			srcBase := p*g.Rows*g.Cols + r*g.Cols
			dstBase := r*n*cols + (colOffset+p)*cols
			copy(dst[dstBase:dstBase+cols], g.Data[srcBase:srcBase+cols])
		}
	}
}

// Snapshot returns a copy of the current buffer state, for tests and
// diagnostics.
func (t *Transposer) Snapshot() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]float64, len(t.buffer))
	copy(out, t.buffer)
	return out
}
