package main

import (
	"github.com/apsbeam/streamrecon/internal/backproject"
)

// softwareBackprojector is the monitor's own copy of cmd/reconsvc's
// demo pixel-driven backprojector, standing in for the external
// ASTRA/Voodoo-class accelerator the spec treats as out of scope
// (§1 Non-goals). It exists only so this viewer has real pixel data to
// draw; it is not a validated reconstruction kernel.
type softwareBackprojector struct{}

func (softwareBackprojector) BackprojectSlice(sinogram []float64, rows, n, cols, sliceSize int, parallel []backproject.ProjectionVectors, cone []backproject.ConeVectors) ([]float64, error) {
	out := make([]float64, sliceSize*sliceSize)
	half := float64(sliceSize) / 2
	row := rows / 2

	for y := 0; y < sliceSize; y++ {
		py := float64(y) - half
		for x := 0; x < sliceSize; x++ {
			px := float64(x) - half
			var sum float64
			for p := 0; p < n; p++ {
				v := parallel[p]
				u := px*v.Px[0] + py*v.Px[1]
				col := int(u + float64(cols)/2)
				if col < 0 || col >= cols {
					continue
				}
				sum += sinogram[(row*n+p)*cols+col]
			}
			out[y*sliceSize+x] = sum / float64(n)
		}
	}
	return out, nil
}

func (b softwareBackprojector) BackprojectVolume(sinogram []float64, rows, n, cols, previewSize int, parallel []backproject.ProjectionVectors, cone []backproject.ConeVectors) ([]float64, error) {
	vol := make([]float64, previewSize*previewSize*previewSize)
	half := float64(previewSize) / 2
	rowStride := rows / previewSize
	if rowStride < 1 {
		rowStride = 1
	}

	for z := 0; z < previewSize; z++ {
		row := z * rowStride
		if row >= rows {
			row = rows - 1
		}
		for y := 0; y < previewSize; y++ {
			py := float64(y) - half
			for x := 0; x < previewSize; x++ {
				px := float64(x) - half
				var sum float64
				for p := 0; p < n; p++ {
					v := parallel[p]
					u := px*v.Px[0] + py*v.Px[1]
					col := int(u + float64(cols)/2)
					if col < 0 || col >= cols {
						continue
					}
					sum += sinogram[(row*n+p)*cols+col]
				}
				vol[(z*previewSize+y)*previewSize+x] = sum / float64(n)
			}
		}
	}
	return vol, nil
}
