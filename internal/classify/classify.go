// Package classify implements the frame classifier (§4.1): it routes
// dark/flat frames to the calibration aggregator and projection frames
// to the raw ring, and triggers calibration recomputation on the first
// projection following any dark/flat activity — grounded on
// Reconstructor::pushProjection's switch-on-ProjectionType dispatch in
// slicerecon/src/reconstruction/reconstructor.cpp.
package classify

import (
	"github.com/apsbeam/streamrecon/internal/frame"
	"github.com/apsbeam/streamrecon/internal/obs"
	"github.com/apsbeam/streamrecon/internal/reconerr"
)

// CalibrationSink receives dark and flat frames.
type CalibrationSink interface {
	AcceptDark(index int, data []float64) error
	AcceptFlat(index int, data []float64) error
	// NeedsRecompute reports whether a dark or flat has arrived since
	// the last recompute and both a dark and a flat are held, i.e.
	// whether the next projection should trigger one.
	NeedsRecompute() bool
	Recompute()
	// Ready reports whether a reciprocal map has been computed at
	// least once, i.e. whether a projection may be pushed.
	Ready() bool
}

// ProjectionSink receives projection frames once calibration is ready.
type ProjectionSink interface {
	Push(index int, data []float64) error
}

// Classifier dispatches accepted frames by kind (§4.1).
type Classifier struct {
	shape frame.Shape
	calib CalibrationSink
	proj  ProjectionSink
	log   *obs.Logger
}

// New builds a Classifier bound to the configured detector shape.
func New(shape frame.Shape, calib CalibrationSink, proj ProjectionSink, log *obs.Logger) *Classifier {
	return &Classifier{shape: shape, calib: calib, proj: proj, log: log}
}

// Accept routes f by kind. It returns reconerr.ErrShapeMismatch (kind
// KindTransient) if f.Shape does not match the configured geometry.
func (c *Classifier) Accept(f frame.Frame) error {
	if f.Shape != c.shape {
		c.log.Transient("frame %d (%s): shape %dx%d != configured %dx%d",
			f.Index, f.Kind, f.Shape.Rows, f.Shape.Cols, c.shape.Rows, c.shape.Cols)
		return reconerr.ErrShapeMismatch
	}

	switch f.Kind {
	case frame.KindDark:
		return c.calib.AcceptDark(f.Index, f.Data)
	case frame.KindFlat:
		return c.calib.AcceptFlat(f.Index, f.Data)
	case frame.KindProjection:
		if c.calib.NeedsRecompute() {
			c.calib.Recompute()
		}
		if !c.calib.Ready() {
			c.log.Calibration("frame %d: projection received before any dark/flat frame, dropped", f.Index)
			return reconerr.New(reconerr.KindCalibration, "classify",
				"projection received before calibration is ready", nil)
		}
		return c.proj.Push(f.Index, f.Data)
	default:
		c.log.Protocol("unknown frame kind %v for frame %d", f.Kind, f.Index)
		return reconerr.New(reconerr.KindProtocol, "classify", "unknown frame kind", nil)
	}
}
