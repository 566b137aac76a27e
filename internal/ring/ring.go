// Package ring implements the bounded, group-aligned raw projection ring
// (§4.3): each slot holds one group of G consecutive projections, at
// most K generations are live simultaneously, and arrivals for an
// already-evicted generation are dropped with a log line and no error.
// Grounded on
// slicerecon::Buffer<T>'s buffer_index_/indices1_/indices2_ bookkeeping
// (slicerecon/include/slicerecon/buffer.hpp) generalised from a
// double-buffer (capacity 2) to an arbitrary capacity K.
package ring

import (
	"sync"

	"github.com/apsbeam/streamrecon/internal/daqqueue"
	"github.com/apsbeam/streamrecon/internal/obs"
)

// Group is one completed generation: G consecutive projections of shape
// rows x cols, stored contiguously as (projection, row, col).
type Group struct {
	Generation int
	Rows, Cols int
	GroupSize  int
	// Data is laid out [projIdxInGroup][row][col], G*rows*cols floats.
	Data []float64
	// BaseIndex is the projection_index of slot 0 within this group,
	// i.e. Generation*GroupSize.
	BaseIndex int
}

type genSlot struct {
	data     []float64
	bits     []bool
	filled   int
	complete bool
}

// Ring is the bounded, group-aligned staging ring.
type Ring struct {
	groupSize int // G
	capacity  int // K
	rows, cols int
	pixels    int

	mu          sync.Mutex
	slots       map[int]*genSlot
	minAllowed  int // smallest generation not yet dropped-as-stray
	nextPublish int
	haveBound   bool

	out *daqqueue.Queue[*Group]
	log *obs.Logger
}

// New builds a Ring for groups of groupSize consecutive projections of
// the given shape, keeping at most capacity generations live.
func New(groupSize, capacity, rows, cols int, log *obs.Logger) *Ring {
	return &Ring{
		groupSize: groupSize,
		capacity:  capacity,
		rows:      rows,
		cols:      cols,
		pixels:    rows * cols,
		slots:     make(map[int]*genSlot),
		out:       daqqueue.New[*Group](0),
		log:       log,
	}
}

// Out returns the completed-group queue the dispatch goroutine drains.
func (r *Ring) Out() *daqqueue.Queue[*Group] { return r.out }

// Push inserts one projection's samples at projIndex. data must have
// pixels entries matching the ring's configured rows*cols. It always
// returns nil: a stray or evicted-generation frame is dropped with a
// log line rather than failing, matching classify.ProjectionSink's
// contract that backpressure is never an error the classifier reacts to.
func (r *Ring) Push(projIndex int, data []float64) error {
	g := projIndex / r.groupSize
	s := projIndex % r.groupSize

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.haveBound {
		r.minAllowed = g
		r.nextPublish = g
		r.haveBound = true
	}

	if g < r.minAllowed {
		r.log.Transient("stray frame for generation %d (already evicted, min live %d), dropped", g, r.minAllowed)
		return nil
	}

	slot, ok := r.slots[g]
	if !ok {
		for len(r.slots) >= r.capacity {
			r.evictOldestLocked()
		}
		slot = &genSlot{
			data: make([]float64, r.groupSize*r.pixels),
			bits: make([]bool, r.groupSize),
		}
		r.slots[g] = slot
	}

	if !slot.bits[s] {
		slot.filled++
	}
	slot.bits[s] = true
	copy(slot.data[s*r.pixels:(s+1)*r.pixels], data)

	if slot.filled == r.groupSize && !slot.complete {
		slot.complete = true
		r.log.Info("generation %d complete (%d projections)", g, r.groupSize)
	}

	r.tryPublishLocked()
	return nil
}

func (r *Ring) evictOldestLocked() {
	min := -1
	for gen := range r.slots {
		if min == -1 || gen < min {
			min = gen
		}
	}
	if min == -1 {
		return
	}
	delete(r.slots, min)
	if min+1 > r.minAllowed {
		r.minAllowed = min + 1
	}
	if r.nextPublish <= min {
		r.nextPublish = min + 1
	}
	r.log.Backpressure("ring full, evicted generation %d", min)
}

// tryPublishLocked publishes consecutive complete generations starting
// at nextPublish, preserving the increasing-generation-order guarantee
// even when later generations complete before earlier ones.
func (r *Ring) tryPublishLocked() {
	for {
		slot, ok := r.slots[r.nextPublish]
		if !ok {
			if r.nextPublish < r.minAllowed {
				r.nextPublish = r.minAllowed
				continue
			}
			return
		}
		if !slot.complete {
			return
		}
		out := &Group{
			Generation: r.nextPublish,
			Rows:       r.rows,
			Cols:       r.cols,
			GroupSize:  r.groupSize,
			BaseIndex:  r.nextPublish * r.groupSize,
			Data:       append([]float64(nil), slot.data...),
		}
		r.out.TryPush(out)
		r.nextPublish++
	}
}

// LiveGenerations returns the currently tracked (not-yet-evicted)
// generation numbers, for diagnostics and tests.
func (r *Ring) LiveGenerations() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.slots))
	for gen := range r.slots {
		out = append(out, gen)
	}
	return out
}

// Evicted reports whether generation gen has been dropped from the ring
// (either evicted for capacity, or never reachable because it predates
// the current live window).
func (r *Ring) Evicted(gen int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[gen]; ok {
		return false
	}
	return r.haveBound && gen < r.minAllowed
}
