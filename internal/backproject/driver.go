package backproject

import (
	"context"
	"math"

	"golang.org/x/sync/semaphore"

	"github.com/apsbeam/streamrecon/internal/gpubuf"
	"github.com/apsbeam/streamrecon/internal/obs"
)

// SliceRequest is reconstruct_slice's input (§3's "Slice request"):
// an oriented 2D cut expressed as an origin and two in-plane axes.
type SliceRequest struct {
	Origin, Axis1, Axis2 [3]float64
}

// Backprojector is the external, out-of-scope back-projection kernel
// (§1: "the spec treats it as a black box with a fixed capability
// set"). A real binding would invoke ASTRA or a Voodoo-class
// accelerator against the sinogram already resident in gpubuf; this
// driver only prepares the geometry and the active sinogram for it.
type Backprojector interface {
	BackprojectSlice(sinogram []float64, rows, n, cols, sliceSize int, parallel []ProjectionVectors, cone []ConeVectors) ([]float64, error)
	BackprojectVolume(sinogram []float64, rows, n, cols, previewSize int, parallel []ProjectionVectors, cone []ConeVectors) ([]float64, error)
}

// Driver implements reconstruct_slice and reconstruct_preview (§4.7).
type Driver struct {
	shape    BeamShape
	parallel *ParallelGeometry
	cone     *ConeGeometry

	buf *gpubuf.DoubleBuffer
	bp  Backprojector

	// sem serialises concurrent slice reconstructions. Default is
	// always "serialise" (weight 1): the spec allows running freely in
	// alternating mode "only if the back-end supports it", and no
	// Backprojector implementation here declares that support, so the
	// safe default is the one always in effect.
	sem *semaphore.Weighted

	log *obs.Logger
}

// NewParallel builds a Driver over a parallel-beam geometry.
func NewParallel(geom *ParallelGeometry, buf *gpubuf.DoubleBuffer, bp Backprojector, log *obs.Logger) *Driver {
	return &Driver{shape: Parallel, parallel: geom, buf: buf, bp: bp, sem: semaphore.NewWeighted(1), log: log}
}

// NewCone builds a Driver over a cone-beam geometry.
func NewCone(geom *ConeGeometry, buf *gpubuf.DoubleBuffer, bp Backprojector, log *obs.Logger) *Driver {
	return &Driver{shape: Cone, cone: geom, buf: buf, bp: bp, sem: semaphore.NewWeighted(1), log: log}
}

// ReconstructSlice computes the per-projection view transform for the
// requested oblique cut and invokes the back-projector against the
// currently active GPU sinogram.
func (d *Driver) ReconstructSlice(ctx context.Context, req SliceRequest) ([]float64, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.sem.Release(1)

	t := SliceTransform(req.Origin, req.Axis1, req.Axis2)
	sinogram := d.buf.Active()

	var parallel []ProjectionVectors
	var cone []ConeVectors
	var rows, n, cols, sliceSize int
	switch d.shape {
	case Parallel:
		rows, n, cols, sliceSize = d.parallel.Rows, len(d.parallel.Vectors), d.parallel.Cols, d.parallel.SliceSize
		parallel = make([]ProjectionVectors, n)
		for i, v := range d.parallel.Vectors {
			parallel[i] = TransformParallel(v, t)
		}
	case Cone:
		rows, n, cols, sliceSize = d.cone.Rows, len(d.cone.Vectors), d.cone.Cols, d.cone.SliceSize
		cone = make([]ConeVectors, n)
		for i, v := range d.cone.Vectors {
			cone[i] = TransformCone(v, t)
		}
	}

	img, err := d.bp.BackprojectSlice(sinogram, rows, n, cols, sliceSize, parallel, cone)
	if err != nil {
		return nil, err
	}
	if err := d.buf.UploadSlice(img); err != nil {
		d.log.Backpressure("slice upload failed: %v", err)
	}
	return img, nil
}

// ReconstructPreview backprojects the active sinogram into the
// low-resolution preview volume, scaled by (P/cols)^3 to preserve
// integrated intensity (§4.7).
func (d *Driver) ReconstructPreview() ([]float64, error) {
	sinogram := d.buf.Active()

	var parallel []ProjectionVectors
	var cone []ConeVectors
	var rows, n, cols, previewSize int
	switch d.shape {
	case Parallel:
		rows, n, cols, previewSize = d.parallel.Rows, len(d.parallel.Vectors), d.parallel.Cols, d.parallel.PreviewSize
		parallel = d.parallel.Vectors
	case Cone:
		rows, n, cols, previewSize = d.cone.Rows, len(d.cone.Vectors), d.cone.Cols, d.cone.PreviewSize
		cone = d.cone.Vectors
	}

	vol, err := d.bp.BackprojectVolume(sinogram, rows, n, cols, previewSize, parallel, cone)
	if err != nil {
		return nil, err
	}
	scale := math.Pow(float64(previewSize)/float64(cols), 3)
	for i := range vol {
		vol[i] *= scale
	}
	if err := d.buf.UploadPreview(vol); err != nil {
		d.log.Backpressure("preview upload failed: %v", err)
	}
	return vol, nil
}

