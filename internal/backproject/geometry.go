// Package backproject implements the back-projector driver (§4.7): it
// prepares the per-projection geometry (default angle generation, FDK
// cone-beam weight tables, the affine transform for an oblique slice
// cut) and invokes the actual back-projection kernel through the
// Backprojector interface — the real ASTRA/Voodoo-class accelerator is
// an explicit black box per the Non-goals, so only its call boundary is
// modelled here, grounded on recon/src/solver.cpp's
// ConeBeamSolver::fdk_weights and Reconstructor::defaultAngles.
package backproject

import "math"

// BeamShape selects the projection geometry family.
type BeamShape int

const (
	Parallel BeamShape = iota
	Cone
)

// AngleRange selects a half-turn (default) or full-turn angular span.
type AngleRange int

const (
	Half AngleRange = iota
	Full
)

// DefaultAngles generates the default per-projection angles when no
// explicit array is supplied: i*pi/n for i in [0,n), doubled in span
// for Full range, matching Reconstructor::defaultAngles exactly.
func DefaultAngles(n int, r AngleRange) []float64 {
	step := math.Pi / float64(n)
	if r == Full {
		step *= 2
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) * step
	}
	return out
}

// ProjectionVectors is one parallel-beam projection's geometry: ray
// direction r, detector origin d, and the detector's in-plane basis
// (px, py).
type ProjectionVectors struct {
	R, D, Px, Py [3]float64
}

// ConeVectors is one cone-beam projection's geometry: source position,
// detector centre, and detector basis.
type ConeVectors struct {
	Source, DetectorCenter, Px, Py [3]float64
}

// ParallelGeometry describes a full parallel-beam acquisition.
type ParallelGeometry struct {
	Rows, Cols, SliceSize, PreviewSize int
	Vectors                           []ProjectionVectors
}

// DefaultParallelGeometry builds a ParallelGeometry whose per-projection
// vectors come from DefaultAngles rotated about the z axis.
func DefaultParallelGeometry(rows, cols, sliceSize, previewSize, n int, r AngleRange) *ParallelGeometry {
	angles := DefaultAngles(n, r)
	vecs := make([]ProjectionVectors, n)
	for i, a := range angles {
		c, s := math.Cos(a), math.Sin(a)
		vecs[i] = ProjectionVectors{
			R:  [3]float64{c, s, 0},
			D:  [3]float64{0, 0, 0},
			Px: [3]float64{-s, c, 0},
			Py: [3]float64{0, 0, 1},
		}
	}
	return &ParallelGeometry{Rows: rows, Cols: cols, SliceSize: sliceSize, PreviewSize: previewSize, Vectors: vecs}
}

// ConeGeometry describes a full cone-beam acquisition, plus the
// source/detector distances the FDK weight table is derived from.
type ConeGeometry struct {
	Rows, Cols, SliceSize, PreviewSize int
	SourceDistance, DetectorDistance  float64
	PixelSizeX, PixelSizeY            float64
	Vectors                           []ConeVectors

	weights []float64 // cached by FDKWeights
}

// DefaultConeGeometry builds a ConeGeometry with a circular source
// orbit at SourceDistance, detector at DetectorDistance on the opposite
// side of the origin.
func DefaultConeGeometry(rows, cols, sliceSize, previewSize, n int, r AngleRange, sourceDist, detectorDist, pxSize, pySize float64) *ConeGeometry {
	angles := DefaultAngles(n, r)
	vecs := make([]ConeVectors, n)
	for i, a := range angles {
		c, s := math.Cos(a), math.Sin(a)
		vecs[i] = ConeVectors{
			Source:         [3]float64{-sourceDist * c, -sourceDist * s, 0},
			DetectorCenter: [3]float64{detectorDist * c, detectorDist * s, 0},
			Px:             [3]float64{-s, c, 0},
			Py:             [3]float64{0, 0, 1},
		}
	}
	return &ConeGeometry{
		Rows: rows, Cols: cols, SliceSize: sliceSize, PreviewSize: previewSize,
		SourceDistance: sourceDist, DetectorDistance: detectorDist,
		PixelSizeX: pxSize, PixelSizeY: pySize,
		Vectors: vecs,
	}
}

// FDKWeights computes (and caches) the per-detector-pixel FDK pre-weight
// table ρ/‖y−s‖ used by the preprocessor's cone-beam weighting step
// (§4.4 item 5), where ρ is the source-to-detector distance, s the
// source position and y each detector pixel's 3D position on the
// (stationary, angle-0) detector plane.
func (g *ConeGeometry) FDKWeights() []float64 {
	if g.weights != nil {
		return g.weights
	}
	rho := g.SourceDistance + g.DetectorDistance
	s := [3]float64{-g.SourceDistance, 0, 0}
	midRow := float64(g.Rows-1) / 2
	midCol := float64(g.Cols-1) / 2

	out := make([]float64, g.Rows*g.Cols)
	for r := 0; r < g.Rows; r++ {
		y := (float64(r) - midRow) * g.PixelSizeY
		for c := 0; c < g.Cols; c++ {
			x := (float64(c) - midCol) * g.PixelSizeX
			detPt := [3]float64{g.DetectorDistance, x, y}
			dx, dy, dz := detPt[0]-s[0], detPt[1]-s[1], detPt[2]-s[2]
			dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
			out[r*g.Cols+c] = rho / dist
		}
	}
	g.weights = out
	return out
}

// AffineTransform expresses an oblique slice cut as a rotation built
// from the plane's in-plane axes plus their cross product, an
// anisotropic scale by each axis's length, and a translation to the
// plane's origin.
type AffineTransform struct {
	Translation [3]float64
	Rotation    [3][3]float64 // columns: axis1, axis2, normal
	Scale       [3]float64
}

// SliceTransform builds the AffineTransform for reconstruct_slice's
// origin/axis1/axis2 triple (§4.7).
func SliceTransform(origin, axis1, axis2 [3]float64) AffineTransform {
	normal := cross(axis1, axis2)
	return AffineTransform{
		Translation: origin,
		Rotation: [3][3]float64{
			{axis1[0], axis2[0], normal[0]},
			{axis1[1], axis2[1], normal[1]},
			{axis1[2], axis2[2], normal[2]},
		},
		Scale: [3]float64{norm(axis1), norm(axis2), norm(normal)},
	}
}

// TransformParallel applies t to v, preserving the detector basis for
// parallel beams (§4.7: "the transform preserves detector basis for
// parallel beams").
func TransformParallel(v ProjectionVectors, t AffineTransform) ProjectionVectors {
	return ProjectionVectors{
		R:  applyRotation(t.Rotation, v.R),
		D:  applyAffine(t, v.D),
		Px: v.Px,
		Py: v.Py,
	}
}

// TransformCone applies t to v, additionally transforming the source
// position (§4.7: "also transforms the source for cone beams").
func TransformCone(v ConeVectors, t AffineTransform) ConeVectors {
	return ConeVectors{
		Source:         applyAffine(t, v.Source),
		DetectorCenter: applyAffine(t, v.DetectorCenter),
		Px:             v.Px,
		Py:             v.Py,
	}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func applyRotation(r [3][3]float64, v [3]float64) [3]float64 {
	return [3]float64{
		r[0][0]*v[0] + r[0][1]*v[1] + r[0][2]*v[2],
		r[1][0]*v[0] + r[1][1]*v[1] + r[1][2]*v[2],
		r[2][0]*v[0] + r[2][1]*v[1] + r[2][2]*v[2],
	}
}

func applyAffine(t AffineTransform, v [3]float64) [3]float64 {
	rotated := applyRotation(t.Rotation, v)
	return [3]float64{
		t.Translation[0] + t.Scale[0]*rotated[0],
		t.Translation[1] + t.Scale[1]*rotated[1],
		t.Translation[2] + t.Scale[2]*rotated[2],
	}
}
