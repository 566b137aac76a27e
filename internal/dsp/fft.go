// fft.go implements the forward/inverse discrete Fourier transform used
// by the ramp filter and Paganin phase retrieval. It follows FFTW's
// unnormalised convention (no 1/N scaling in either direction, matching
// fftwf_execute_dft_r2c/c2r as used throughout recon/src/filter.cpp and
// recon/src/phase.cpp) so the filter coefficients computed in filter.go
// — which already bake in the "c = 2/C compensates for unnormalised
// fft" correction the original comments call out — produce identical
// results.
//
// No example repo in the retrieval pack imports a third-party FFT
// library for real-time DSP: thesyncim-gopus's CELT codec hand-rolls its
// own mixed-radix Kiss-FFT (celt/kiss_fft.go) rather than depending on
// one. This engine follows that precedent: a radix-2 Cooley-Tukey core
// for power-of-two lengths, wrapped in Bluestein's chirp-z algorithm for
// arbitrary lengths (detector column counts are rarely powers of two),
// giving the O(n log n) throughput the preprocessor's throughput
// contract (§4.4) requires for any length.
package dsp

import "math"

// Complex is an alias for complex128, so values of either name mix
// freely; this package's transforms are unnormalised.
type Complex = complex128

// FFT computes the unnormalised forward DFT of x: X[k] = sum_n x[n] * e^(-2*pi*i*k*n/N).
func FFT(x []Complex) []Complex {
	n := len(x)
	if n == 0 {
		return nil
	}
	if isPowerOfTwo(n) {
		out := append([]Complex(nil), x...)
		radix2FFT(out, false)
		return out
	}
	return bluestein(x, false)
}

// IFFT computes the unnormalised inverse DFT: x[n] = sum_k X[k] * e^(+2*pi*i*k*n/N).
// It uses the standard conjugation identity IFFT(X) = conj(FFT(conj(X)))
// so only one transform kernel (radix-2 + Bluestein) needs maintaining.
func IFFT(X []Complex) []Complex {
	n := len(X)
	if n == 0 {
		return nil
	}
	conj := make([]Complex, n)
	for i, v := range X {
		conj[i] = complexConj(v)
	}
	y := FFT(conj)
	for i, v := range y {
		y[i] = complexConj(v)
	}
	return y
}

func complexConj(c Complex) Complex { return complex(real(c), -imag(c)) }

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// radix2FFT performs an in-place iterative Cooley-Tukey transform on a
// slice whose length is a power of two. inverse selects the normalised
// inverse (divides by n and negates the twiddle angle); the exported
// FFT/IFFT never request the normalised inverse directly (they use the
// conjugation trick instead), but Bluestein's internal convolution does.
func radix2FFT(a []Complex, inverse bool) {
	n := len(a)
	bitReverse(a)
	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		angleSign := -1.0
		if inverse {
			angleSign = 1.0
		}
		wStep := complex(math.Cos(angleSign*2*math.Pi/float64(size)), math.Sin(angleSign*2*math.Pi/float64(size)))
		for start := 0; start < n; start += size {
			w := Complex(complex(1, 0))
			for k := 0; k < half; k++ {
				u := a[start+k]
				v := a[start+k+half] * w
				a[start+k] = u + v
				a[start+k+half] = u - v
				w *= wStep
			}
		}
	}
	if inverse {
		invN := 1 / float64(n)
		for i := range a {
			a[i] *= complex(invN, 0)
		}
	}
}

func bitReverse(a []Complex) {
	n := len(a)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// bluestein computes the (unnormalised) forward DFT of x using the
// chirp-z transform, for arbitrary length n. inverse is accepted for
// symmetry with radix2FFT but is unused: callers needing the inverse
// use the conjugation trick in IFFT instead.
func bluestein(x []Complex, inverse bool) []Complex {
	n := len(x)
	m := nextPowerOfTwo(2*n - 1)

	chirp := make([]Complex, n)
	for k := 0; k < n; k++ {
		// e^{-i*pi*k^2/n}; k^2 reduced mod 2n to avoid precision loss
		// for large k, standard practice for Bluestein chirps.
		kk := (k * k) % (2 * n)
		angle := -math.Pi * float64(kk) / float64(n)
		chirp[k] = complex(math.Cos(angle), math.Sin(angle))
	}

	a := make([]Complex, m)
	for k := 0; k < n; k++ {
		a[k] = x[k] * chirp[k]
	}

	b := make([]Complex, m)
	b[0] = complexConj(chirp[0])
	for k := 1; k < n; k++ {
		c := complexConj(chirp[k])
		b[k] = c
		b[m-k] = c
	}

	radix2FFT(a, false)
	radix2FFT(b, false)
	for i := range a {
		a[i] *= b[i]
	}
	radix2FFT(a, true)

	out := make([]Complex, n)
	for k := 0; k < n; k++ {
		out[k] = a[k] * chirp[k]
	}
	return out
}
