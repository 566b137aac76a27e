// Package calib implements the calibration aggregator (§4.2): fixed
// capacity dark/flat arrays, per-pixel mean computation, and the
// reciprocal flat-field map, grounded on
// slicerecon::utils::computeReciprocal and
// recastx::recon::Reconstructor's received_darks_/received_flats_
// bookkeeping (recon/src/solver.cpp, recon/src/filter.cpp neighbours).
package calib

import (
	"sync"

	"github.com/apsbeam/streamrecon/internal/obs"
)

// Aggregator holds fixed-capacity dark/flat slot arrays and the derived
// calibration state (dark mean, reciprocal gain).
//
// Shared-resource policy (§5): single writer (ingest), multiple readers
// (preprocessor workers); the writer takes mu only during accept/recompute,
// readers call Snapshot to get an immutable, already-computed pair.
type Aggregator struct {
	mu sync.Mutex

	pixels int
	capD   int // configured dark count D
	capF   int // configured flat count F

	darks    [][]float64 // capD slots, pixels each
	flats    [][]float64 // capF slots, pixels each
	darkSet  []bool
	flatSet  []bool
	nDarks   int
	nFlats   int

	darkMean  []float64
	reciprocal []float64

	needsRecompute bool
	ready          bool

	log *obs.Logger
}

// New builds an Aggregator for a detector with the given pixel count and
// configured dark/flat counts (D, F).
func New(pixels, capD, capF int, log *obs.Logger) *Aggregator {
	a := &Aggregator{
		pixels:     pixels,
		capD:       capD,
		capF:       capF,
		darks:      make([][]float64, capD),
		flats:      make([][]float64, capF),
		darkSet:    make([]bool, capD),
		flatSet:    make([]bool, capF),
		darkMean:   make([]float64, pixels),
		reciprocal: make([]float64, pixels),
		log:        log,
	}
	for i := range a.reciprocal {
		a.reciprocal[i] = 1
	}
	return a
}

// AcceptDark stores a dark frame at slot i. Slots beyond the configured
// capacity are dropped with a warning (§4.2, §7 transient).
func (a *Aggregator) AcceptDark(i int, data []float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i < 0 || i >= a.capD {
		a.log.Transient("dark index %d out of range [0,%d), dropped", i, a.capD)
		return nil
	}
	cp := make([]float64, len(data))
	copy(cp, data)
	if !a.darkSet[i] {
		a.nDarks++
	}
	a.darks[i] = cp
	a.darkSet[i] = true
	a.needsRecompute = true
	a.ready = false
	return nil
}

// AcceptFlat is the symmetric operation for flat frames.
func (a *Aggregator) AcceptFlat(i int, data []float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i < 0 || i >= a.capF {
		a.log.Transient("flat index %d out of range [0,%d), dropped", i, a.capF)
		return nil
	}
	cp := make([]float64, len(data))
	copy(cp, data)
	if !a.flatSet[i] {
		a.nFlats++
	}
	a.flats[i] = cp
	a.flatSet[i] = true
	a.needsRecompute = true
	a.ready = false
	return nil
}

// NeedsRecompute reports whether a dark or flat has arrived since the
// last Recompute call and at least one dark and one flat are held.
func (a *Aggregator) NeedsRecompute() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.needsRecompute && a.nDarks > 0 && a.nFlats > 0
}

// Recompute computes the per-pixel dark mean and reciprocal gain map:
// reciprocal = 1/(flat_mean - dark_mean), with zero differences mapping
// to 1 (§4.2, invariant 2 in §8).
func (a *Aggregator) Recompute() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.nDarks < a.capD {
		a.log.Transient("recompute with fewer darks than expected: %d/%d", a.nDarks, a.capD)
	}
	if a.nFlats < a.capF {
		a.log.Transient("recompute with fewer flats than expected: %d/%d", a.nFlats, a.capF)
	}

	flatMean := make([]float64, a.pixels)
	meanOf(a.darks, a.darkSet, a.pixels, a.darkMean)
	meanOf(a.flats, a.flatSet, a.pixels, flatMean)

	for i := 0; i < a.pixels; i++ {
		denom := flatMean[i] - a.darkMean[i]
		if denom == 0 {
			a.reciprocal[i] = 1
		} else {
			a.reciprocal[i] = 1 / denom
		}
	}

	a.needsRecompute = false
	a.ready = true
	a.log.Info("calibration recomputed: %d darks, %d flats", a.nDarks, a.nFlats)
}

func meanOf(slots [][]float64, set []bool, pixels int, out []float64) {
	for i := range out {
		out[i] = 0
	}
	n := 0
	for s, ok := range set {
		if !ok {
			continue
		}
		n++
		data := slots[s]
		for i := 0; i < pixels; i++ {
			out[i] += data[i]
		}
	}
	if n == 0 {
		return
	}
	invN := 1 / float64(n)
	for i := range out {
		out[i] *= invN
	}
}

// Ready reports whether a reciprocal map has been computed at least once.
func (a *Aggregator) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// Snapshot returns read-only copies of the dark mean and reciprocal
// gain map for the preprocessor to borrow. Per §4.2's shared-resource
// policy, writes are serialised and never concurrent with reads, so a
// defensive copy keeps callers safe even across a concurrent recompute.
func (a *Aggregator) Snapshot() (darkMean, reciprocal []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	dm := make([]float64, a.pixels)
	rc := make([]float64, a.pixels)
	copy(dm, a.darkMean)
	copy(rc, a.reciprocal)
	return dm, rc
}
