// Package isosurface implements extract_isosurface (§4.8): classic
// marching cubes over the reconstructed preview volume, using the
// standard 256-entry edge/triangle tables and central-difference
// gradient normals.
package isosurface

import "math"

// Vertex is one emitted triangle corner: position and unit normal, both
// in the volume's own coordinate frame before the [-0.5,0.5]^3
// normalisation applied by Extract.
type Vertex struct {
	Pos    [3]float64
	Normal [3]float64
}

// Triangle is three vertices wound consistently with the scalar
// field's gradient (normals point toward decreasing value, i.e. out of
// the enclosed solid when the volume holds attenuation density).
type Triangle struct {
	V [3]Vertex
}

// Extract runs marching cubes over volume, a dimX*dimY*dimZ grid
// addressed as volume[(z*dimY+y)*dimX+x], at threshold iso. strideX/Y/Z
// lets a caller subsample a dense preview volume (§4.8: "may run at a
// coarser stride than the native preview resolution"); a stride of 1
// visits every cell.
//
// Resolved Open Question: the fractional position of a crossing on an
// edge between corner values v0 and v1 is interpolated linearly as
// (iso-v0)/(v1-v0), clamped to [0,1] to guard against a near-zero
// denominator when v0 and v1 straddle iso only by rounding noise.
func Extract(volume []float64, dimX, dimY, dimZ int, iso float64, strideX, strideY, strideZ int) []Triangle {
	if strideX < 1 {
		strideX = 1
	}
	if strideY < 1 {
		strideY = 1
	}
	if strideZ < 1 {
		strideZ = 1
	}

	at := func(x, y, z int) float64 {
		return volume[(z*dimY+y)*dimX+x]
	}
	gradient := func(x, y, z int) [3]float64 {
		gx := sampleDelta(volume, dimX, dimY, dimZ, x, y, z, 1, 0, 0)
		gy := sampleDelta(volume, dimX, dimY, dimZ, x, y, z, 0, 1, 0)
		gz := sampleDelta(volume, dimX, dimY, dimZ, x, y, z, 0, 0, 1)
		n := [3]float64{-gx, -gy, -gz}
		l := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
		if l > 0 {
			n[0] /= l
			n[1] /= l
			n[2] /= l
		}
		return n
	}

	var triangles []Triangle
	maxDim := float64(dimX - 1)
	if float64(dimY-1) > maxDim {
		maxDim = float64(dimY - 1)
	}
	if float64(dimZ-1) > maxDim {
		maxDim = float64(dimZ - 1)
	}
	if maxDim <= 0 {
		maxDim = 1
	}

	for z := 0; z+strideZ < dimZ; z += strideZ {
		for y := 0; y+strideY < dimY; y += strideY {
			for x := 0; x+strideX < dimX; x += strideX {
				var corners [8]float64
				var coords [8][3]int
				cubeIdx := 0
				for i, off := range cubeCornerOffset {
					cx := x + off[0]*strideX
					cy := y + off[1]*strideY
					cz := z + off[2]*strideZ
					coords[i] = [3]int{cx, cy, cz}
					corners[i] = at(cx, cy, cz)
					if corners[i] < iso {
						cubeIdx |= 1 << uint(i)
					}
				}

				mask := edgeTable[cubeIdx]
				if mask == 0 {
					continue
				}

				var edgeVertex [12]Vertex
				for e := 0; e < 12; e++ {
					if mask&(1<<uint(e)) == 0 {
						continue
					}
					a, b := cubeEdgeVertices[e][0], cubeEdgeVertices[e][1]
					t := edgeOffset(iso, corners[a], corners[b])
					pa, pb := coords[a], coords[b]
					pos := [3]float64{
						float64(pa[0]) + t*float64(pb[0]-pa[0]),
						float64(pa[1]) + t*float64(pb[1]-pa[1]),
						float64(pa[2]) + t*float64(pb[2]-pa[2]),
					}
					na := gradient(pa[0], pa[1], pa[2])
					nb := gradient(pb[0], pb[1], pb[2])
					normal := [3]float64{
						na[0] + t*(nb[0]-na[0]),
						na[1] + t*(nb[1]-na[1]),
						na[2] + t*(nb[2]-na[2]),
					}
					l := math.Sqrt(normal[0]*normal[0] + normal[1]*normal[1] + normal[2]*normal[2])
					if l > 0 {
						normal[0] /= l
						normal[1] /= l
						normal[2] /= l
					}
					edgeVertex[e] = Vertex{Pos: pos, Normal: normal}
				}

				row := triTable[cubeIdx]
				for i := 0; row[i] != -1; i += 3 {
					tri := Triangle{V: [3]Vertex{
						normalizeVertex(edgeVertex[row[i]], dimX, dimY, dimZ, maxDim),
						normalizeVertex(edgeVertex[row[i+1]], dimX, dimY, dimZ, maxDim),
						normalizeVertex(edgeVertex[row[i+2]], dimX, dimY, dimZ, maxDim),
					}}
					triangles = append(triangles, tri)
				}
			}
		}
	}
	return triangles
}

// edgeOffset is the resolved Open Question's interpolation rule.
func edgeOffset(iso, v0, v1 float64) float64 {
	if v1 == v0 {
		return 0.5
	}
	t := (iso - v0) / (v1 - v0)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return t
}

func sampleDelta(volume []float64, dimX, dimY, dimZ, x, y, z, dx, dy, dz int) float64 {
	x0, x1 := clampAxis(x-dx, dimX), clampAxis(x+dx, dimX)
	y0, y1 := clampAxis(y-dy, dimY), clampAxis(y+dy, dimY)
	z0, z1 := clampAxis(z-dz, dimZ), clampAxis(z+dz, dimZ)
	v1 := volume[(z1*dimY+y1)*dimX+x1]
	v0 := volume[(z0*dimY+y0)*dimX+x0]
	return (v1 - v0) / 2
}

func clampAxis(v, dim int) int {
	if v < 0 {
		return 0
	}
	if v >= dim {
		return dim - 1
	}
	return v
}

// normalizeVertex maps a vertex from grid coordinates into [-0.5,0.5]^3,
// scaled uniformly by the volume's largest dimension so non-cubic
// volumes don't distort (§4.8: "triangle positions normalised to
// [-0.5,0.5]^3").
func normalizeVertex(v Vertex, dimX, dimY, dimZ int, maxDim float64) Vertex {
	cx, cy, cz := float64(dimX-1)/2, float64(dimY-1)/2, float64(dimZ-1)/2
	return Vertex{
		Pos: [3]float64{
			(v.Pos[0] - cx) / maxDim,
			(v.Pos[1] - cy) / maxDim,
			(v.Pos[2] - cz) / maxDim,
		},
		Normal: v.Normal,
	}
}
