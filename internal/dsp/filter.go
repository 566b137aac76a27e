// Package dsp implements the filter kernels (§4.9): Ram-Lak, Shepp-Logan,
// Gaussian low-pass, and the 2D Paganin phase-retrieval kernel, plus the
// FFT engine the preprocessor's ramp filter and phase retrieval stages
// apply them through. Grounded on recon/src/filter.cpp's
// Filter::frequency/ramlak/shepp/gaussian and recon/src/phase.cpp's
// paganinFilter, with the denominator corrected per the redesigned
// formula in the spec (the original C++ has an operator-precedence bug:
// `(4*beta*pi)/1.0 + D*lambda*delta*k2` instead of dividing by the whole
// sum; this implementation uses the corrected `(4*beta*pi) / (1 + ...)`).
package dsp

import "math"

// Frequency returns the folded frequency index array used by Ram-Lak and
// Shepp-Logan: f[i] = i/n for i < mid, else i/n - 1, where
// mid = ceil(n/2) computed as integer division (n+1)/2.
func Frequency(n int) []float64 {
	ret := make([]float64, n)
	mid := (n + 1) / 2
	for i := 0; i < mid; i++ {
		ret[i] = float64(i) / float64(n)
	}
	for i := mid; i < n; i++ {
		ret[i] = float64(i)/float64(n) - 1
	}
	return ret
}

// RamLak returns the Ram-Lak ramp filter of length n: h[i] = (2/n)*|f[i]|.
func RamLak(n int) []float64 {
	f := Frequency(n)
	c := 2 / float64(n)
	out := make([]float64, n)
	for i, v := range f {
		out[i] = c * math.Abs(v)
	}
	return out
}

// ShepLogan returns the Shepp-Logan filter of length n:
// h[0]=0, h[i] = (2/n)*|f[i]*sin(pi*f[i])/(pi*f[i])| for i>=1.
func ShepLogan(n int) []float64 {
	f := Frequency(n)
	c := 2 / float64(n)
	out := make([]float64, n)
	for i := 1; i < n; i++ {
		tmp := math.Pi * f[i]
		out[i] = c * math.Abs(f[i]*math.Sin(tmp)/tmp)
	}
	return out
}

// Gaussian returns a Gaussian low-pass window of length n with standard
// deviation sigma (in normalised-frequency units), mirrored about
// mid = (n+1)/2.
func Gaussian(n int, sigma float64) []float64 {
	mid := (n + 1) / 2
	out := make([]float64, n)
	weight := func(i int) float64 {
		normFreq := float64(i) / float64(mid)
		return math.Exp(-(normFreq * normFreq) / (2 * sigma * sigma))
	}
	for i := 1; i < mid; i++ {
		out[i] = weight(i)
	}
	for j := mid; j < n; j++ {
		out[j] = weight(2*mid - j)
	}
	return out
}

// ApplyLowpass multiplies filter elementwise by a Gaussian low-pass
// window of the same length (§4.9: "optionally windowed by a Gaussian
// low-pass").
func ApplyLowpass(filter []float64, sigma float64) {
	lp := Gaussian(len(filter), sigma)
	for i := range filter {
		filter[i] *= lp[i]
	}
}

// Paganin2D computes the 2D Paganin phase-retrieval kernel of shape
// (rows, cols): kernel(x,y) = (4*pi*beta) / (1 + D*lambda*delta*(kx^2+ky^2)),
// with (kx, ky) derived from index folding around the Nyquist mid-points.
func Paganin2D(rows, cols int, pixelSize, lambda, delta, beta, distance float64) []float64 {
	out := make([]float64, rows*cols)
	dx := pixelSize / (2 * math.Pi)
	dy := dx
	midX := (cols + 1) / 2
	midY := (rows + 1) / 2
	num := 4 * beta * math.Pi
	for i := 0; i < rows; i++ {
		y := i
		if y >= midY {
			y = 2*midY - y
		}
		ky := float64(y) * dy
		for j := 0; j < cols; j++ {
			x := j
			if x >= midX {
				x = 2*midX - x
			}
			kx := float64(x) * dx
			kSquared := kx*kx + ky*ky
			out[i*cols+j] = num / (1 + distance*lambda*delta*kSquared)
		}
	}
	return out
}
