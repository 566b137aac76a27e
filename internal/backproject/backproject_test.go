package backproject

import (
	"context"
	"math"
	"testing"

	"github.com/apsbeam/streamrecon/internal/gpubuf"
	"github.com/apsbeam/streamrecon/internal/obs"
	"github.com/apsbeam/streamrecon/internal/sino"
)

func almostEqual(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

func TestDefaultAnglesHalfAndFullSpan(t *testing.T) {
	const n = 4
	half := DefaultAngles(n, Half)
	full := DefaultAngles(n, Full)
	for i := range half {
		if !almostEqual(full[i], 2*half[i], 1e-12) {
			t.Fatalf("full[%d] = %v, want 2*half[%d] = %v", i, full[i], i, 2*half[i])
		}
	}
	if half[0] != 0 {
		t.Fatalf("half[0] = %v, want 0", half[0])
	}
	wantStep := math.Pi / n
	if !almostEqual(half[1]-half[0], wantStep, 1e-12) {
		t.Fatalf("half step = %v, want %v", half[1]-half[0], wantStep)
	}
}

// TestDefaultParallelGeometryRayAndDetectorBasisAreOrthonormal checks
// that every generated projection's ray direction and in-plane detector
// axes (Px, Py) form a right-handed orthonormal frame, which every
// downstream transform assumes.
func TestDefaultParallelGeometryRayAndDetectorBasisAreOrthonormal(t *testing.T) {
	geom := DefaultParallelGeometry(4, 5, 8, 2, 6, Full)
	for i, v := range geom.Vectors {
		if !almostEqual(norm(v.R), 1, 1e-9) {
			t.Fatalf("projection %d: |R| = %v, want 1", i, norm(v.R))
		}
		if !almostEqual(norm(v.Px), 1, 1e-9) {
			t.Fatalf("projection %d: |Px| = %v, want 1", i, norm(v.Px))
		}
		dot := v.R[0]*v.Px[0] + v.R[1]*v.Px[1] + v.R[2]*v.Px[2]
		if !almostEqual(dot, 0, 1e-9) {
			t.Fatalf("projection %d: R.Px = %v, want 0 (perpendicular)", i, dot)
		}
		rxp := cross(v.R, v.Px)
		for k := 0; k < 3; k++ {
			if !almostEqual(rxp[k], v.Py[k], 1e-9) {
				t.Fatalf("projection %d: (R x Px)[%d] = %v, want Py[%d] = %v (right-handed)", i, k, rxp[k], k, v.Py[k])
			}
		}
	}
}

// TestFDKWeightsSymmetricAboutDetectorCenter covers the FDK pre-weight
// table's expected symmetry: a detector pixel and its mirror image
// about the panel centre are equidistant from the source, so their
// weights match exactly.
func TestFDKWeightsSymmetricAboutDetectorCenter(t *testing.T) {
	geom := DefaultConeGeometry(5, 5, 8, 2, 8, Half, 100, 50, 1, 1)
	w := geom.FDKWeights()
	rows, cols := geom.Rows, geom.Cols
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			mr, mc := rows-1-r, cols-1-c
			got, want := w[r*cols+c], w[mr*cols+mc]
			if !almostEqual(got, want, 1e-9) {
				t.Fatalf("FDKWeights[%d,%d] = %v, want mirror FDKWeights[%d,%d] = %v", r, c, got, mr, mc, want)
			}
		}
	}
}

func TestFDKWeightsCachedAcrossCalls(t *testing.T) {
	geom := DefaultConeGeometry(3, 3, 4, 2, 4, Half, 100, 50, 1, 1)
	first := geom.FDKWeights()
	first[0] = 999
	second := geom.FDKWeights()
	if second[0] != 999 {
		t.Fatal("FDKWeights should return the cached table, not recompute it")
	}
}

// TestSliceTransformIdentityAxesLeaveVectorsUnchanged picks an
// axis-aligned slice (axis1=x, axis2=y, origin at the volume centre)
// whose resulting affine transform is the identity rotation/scale, so
// transforming any projection vector must return it unchanged (modulo
// the translation, which TransformParallel does not apply to R).
func TestSliceTransformIdentityAxesLeaveVectorsUnchanged(t *testing.T) {
	tr := SliceTransform([3]float64{0, 0, 0}, [3]float64{1, 0, 0}, [3]float64{0, 1, 0})
	v := ProjectionVectors{R: [3]float64{0, 1, 0}, D: [3]float64{0, 0, 0}, Px: [3]float64{1, 0, 0}, Py: [3]float64{0, 0, 1}}
	got := TransformParallel(v, tr)
	for i := 0; i < 3; i++ {
		if !almostEqual(got.R[i], v.R[i], 1e-9) {
			t.Fatalf("R[%d] = %v, want %v", i, got.R[i], v.R[i])
		}
	}
	if got.Px != v.Px || got.Py != v.Py {
		t.Fatal("TransformParallel must preserve the detector basis for parallel beams")
	}
}

func TestSliceTransformTranslatesConeSource(t *testing.T) {
	origin := [3]float64{5, 0, 0}
	tr := SliceTransform(origin, [3]float64{1, 0, 0}, [3]float64{0, 1, 0})
	v := ConeVectors{Source: [3]float64{0, 0, 0}, DetectorCenter: [3]float64{1, 0, 0}, Px: [3]float64{1, 0, 0}, Py: [3]float64{0, 1, 0}}
	got := TransformCone(v, tr)
	for i := 0; i < 3; i++ {
		if !almostEqual(got.Source[i], origin[i], 1e-9) {
			t.Fatalf("Source[%d] = %v, want origin %v", i, got.Source[i], origin[i])
		}
	}
}

type fakeBackprojectorBackend struct{}

func (fakeBackprojectorBackend) Init(rows, n, cols, previewSize, sliceSize int) error { return nil }
func (fakeBackprojectorBackend) UploadSinogram(slot int, data []float64) error        { return nil }
func (fakeBackprojectorBackend) UploadPreview(vol []float64) error                    { return nil }
func (fakeBackprojectorBackend) UploadSlice(img []float64) error                      { return nil }
func (fakeBackprojectorBackend) Destroy()                                             {}

type fakeBackprojector struct {
	sliceParallel []ProjectionVectors
	sliceCalls    int
	volumeCalls   int
}

func (f *fakeBackprojector) BackprojectSlice(sinogram []float64, rows, n, cols, sliceSize int, parallel []ProjectionVectors, cone []ConeVectors) ([]float64, error) {
	f.sliceCalls++
	f.sliceParallel = parallel
	return make([]float64, sliceSize*sliceSize), nil
}

func (f *fakeBackprojector) BackprojectVolume(sinogram []float64, rows, n, cols, previewSize int, parallel []ProjectionVectors, cone []ConeVectors) ([]float64, error) {
	f.volumeCalls++
	vol := make([]float64, previewSize*previewSize*previewSize)
	for i := range vol {
		vol[i] = 1
	}
	return vol, nil
}

// TestDriverReconstructSliceTransformsEveryProjectionVector confirms
// ReconstructSlice feeds the back-projector one transformed
// ProjectionVectors per acquisition angle, rotated by the requested
// slice's axes rather than the untransformed defaults.
func TestDriverReconstructSliceTransformsEveryProjectionVector(t *testing.T) {
	const n = 4
	geom := DefaultParallelGeometry(2, 2, 4, 1, n, Full)
	buf, err := gpubuf.New(sino.Alternating, 2, n, 2, 1, 4, fakeBackprojectorBackend{}, obs.New("test"))
	if err != nil {
		t.Fatalf("gpubuf.New: %v", err)
	}
	bp := &fakeBackprojector{}
	d := NewParallel(geom, buf, bp, obs.New("test"))

	_, err = d.ReconstructSlice(context.Background(), SliceRequest{
		Origin: [3]float64{0, 0, 0},
		Axis1:  [3]float64{0, 1, 0},
		Axis2:  [3]float64{1, 0, 0},
	})
	if err != nil {
		t.Fatalf("ReconstructSlice: %v", err)
	}
	if bp.sliceCalls != 1 {
		t.Fatalf("sliceCalls = %d, want 1", bp.sliceCalls)
	}
	if len(bp.sliceParallel) != n {
		t.Fatalf("len(parallel) = %d, want %d (one transformed vector per projection)", len(bp.sliceParallel), n)
	}
	// axis1=y, axis2=x gives normal -z, so the rotation swaps x and y and
	// negates z.
	for i, v := range geom.Vectors {
		want := [3]float64{v.R[1], v.R[0], -v.R[2]}
		got := bp.sliceParallel[i].R
		for k := 0; k < 3; k++ {
			if !almostEqual(got[k], want[k], 1e-9) {
				t.Fatalf("projection %d: R[%d] = %v, want %v", i, k, got[k], want[k])
			}
		}
	}
}

// TestDriverReconstructPreviewScalesByVolumeRatioCubed checks the
// (previewSize/cols)^3 intensity-preserving scale applied after the
// back-projector returns its raw preview volume.
func TestDriverReconstructPreviewScalesByVolumeRatioCubed(t *testing.T) {
	const cols, previewSize = 4, 2
	geom := DefaultParallelGeometry(2, cols, 4, previewSize, 3, Half)
	buf, err := gpubuf.New(sino.Alternating, 2, 3, cols, previewSize, 4, fakeBackprojectorBackend{}, obs.New("test"))
	if err != nil {
		t.Fatalf("gpubuf.New: %v", err)
	}
	bp := &fakeBackprojector{}
	d := NewParallel(geom, buf, bp, obs.New("test"))

	vol, err := d.ReconstructPreview()
	if err != nil {
		t.Fatalf("ReconstructPreview: %v", err)
	}
	want := math.Pow(float64(previewSize)/float64(cols), 3)
	for i, v := range vol {
		if !almostEqual(v, want, 1e-9) {
			t.Fatalf("vol[%d] = %v, want %v", i, v, want)
		}
	}
}
