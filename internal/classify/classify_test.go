package classify

import (
	"errors"
	"testing"

	"github.com/apsbeam/streamrecon/internal/frame"
	"github.com/apsbeam/streamrecon/internal/obs"
	"github.com/apsbeam/streamrecon/internal/reconerr"
)

type fakeCalib struct {
	darks, flats [][]float64
	needsRecomp  bool
	ready        bool
	recomputed   int
}

func (f *fakeCalib) AcceptDark(i int, data []float64) error {
	f.darks = append(f.darks, data)
	f.needsRecomp = true
	return nil
}

func (f *fakeCalib) AcceptFlat(i int, data []float64) error {
	f.flats = append(f.flats, data)
	f.needsRecomp = true
	return nil
}

func (f *fakeCalib) NeedsRecompute() bool { return f.needsRecomp }

func (f *fakeCalib) Recompute() {
	f.recomputed++
	f.needsRecomp = false
	f.ready = true
}

func (f *fakeCalib) Ready() bool { return f.ready }

type fakeProj struct {
	pushed []int
}

func (f *fakeProj) Push(index int, data []float64) error {
	f.pushed = append(f.pushed, index)
	return nil
}

var shape = frame.Shape{Rows: 2, Cols: 2}

// TestAcceptDropsProjectionBeforeCalibration encodes §7's calibration
// disposition: a projection arriving before any dark/flat has ever
// completed a recompute must be dropped with a KindCalibration error,
// not pushed through with identity-calibration defaults.
func TestAcceptDropsProjectionBeforeCalibration(t *testing.T) {
	calib := &fakeCalib{}
	proj := &fakeProj{}
	c := New(shape, calib, proj, obs.New("test"))

	err := c.Accept(frame.Frame{Kind: frame.KindProjection, Index: 0, Shape: shape, Data: []float64{1, 2, 3, 4}})
	if err == nil {
		t.Fatal("expected an error for a projection arriving before calibration is ready")
	}
	var rerr *reconerr.Error
	if !errors.As(err, &rerr) || rerr.Kind != reconerr.KindCalibration {
		t.Fatalf("err = %v, want a reconerr.KindCalibration error", err)
	}
	if len(proj.pushed) != 0 {
		t.Fatalf("projection must not reach the sink before calibration is ready, got %v", proj.pushed)
	}
}

func TestAcceptPushesProjectionOnceCalibrationReady(t *testing.T) {
	calib := &fakeCalib{}
	proj := &fakeProj{}
	c := New(shape, calib, proj, obs.New("test"))

	if err := c.Accept(frame.Frame{Kind: frame.KindDark, Index: 0, Shape: shape, Data: []float64{0, 0, 0, 0}}); err != nil {
		t.Fatalf("Accept(dark): %v", err)
	}
	if err := c.Accept(frame.Frame{Kind: frame.KindFlat, Index: 0, Shape: shape, Data: []float64{1, 1, 1, 1}}); err != nil {
		t.Fatalf("Accept(flat): %v", err)
	}

	if err := c.Accept(frame.Frame{Kind: frame.KindProjection, Index: 0, Shape: shape, Data: []float64{1, 2, 3, 4}}); err != nil {
		t.Fatalf("Accept(projection): %v", err)
	}
	if calib.recomputed != 1 {
		t.Fatalf("recomputed = %d, want exactly 1 recompute triggered by the first post-calibration projection", calib.recomputed)
	}
	if len(proj.pushed) != 1 || proj.pushed[0] != 0 {
		t.Fatalf("pushed = %v, want [0]", proj.pushed)
	}

	// A second projection must not trigger another recompute.
	if err := c.Accept(frame.Frame{Kind: frame.KindProjection, Index: 1, Shape: shape, Data: []float64{1, 2, 3, 4}}); err != nil {
		t.Fatalf("Accept(projection): %v", err)
	}
	if calib.recomputed != 1 {
		t.Fatalf("recomputed = %d, want still 1 (no new dark/flat arrived)", calib.recomputed)
	}
}

func TestAcceptRejectsShapeMismatch(t *testing.T) {
	calib := &fakeCalib{}
	proj := &fakeProj{}
	c := New(shape, calib, proj, obs.New("test"))

	err := c.Accept(frame.Frame{Kind: frame.KindProjection, Index: 0, Shape: frame.Shape{Rows: 3, Cols: 3}, Data: make([]float64, 9)})
	var rerr *reconerr.Error
	if !errors.As(err, &rerr) || rerr.Kind != reconerr.KindTransient {
		t.Fatalf("err = %v, want a reconerr.KindTransient error", err)
	}
}

func TestAcceptRejectsUnknownKind(t *testing.T) {
	calib := &fakeCalib{}
	proj := &fakeProj{}
	c := New(shape, calib, proj, obs.New("test"))

	err := c.Accept(frame.Frame{Kind: frame.Kind(99), Index: 0, Shape: shape, Data: []float64{1, 2, 3, 4}})
	var rerr *reconerr.Error
	if !errors.As(err, &rerr) || rerr.Kind != reconerr.KindProtocol {
		t.Fatalf("err = %v, want a reconerr.KindProtocol error", err)
	}
}
