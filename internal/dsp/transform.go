// transform.go wires the FFT engine into the row-wise 1D ramp filter and
// the 2D Paganin filter, each worker reusing its own scratch buffer for
// the input samples across projections — mirroring Filter::apply and
// Paganin::apply's per-worker freq_[buffer_index] scratch slot in
// recon/src/filter.cpp and recon/src/phase.cpp. FFT and IFFT still
// allocate their output slices on every call.
package dsp

// Plan1D applies a fixed-length row filter (Ram-Lak, Shepp-Logan, or a
// custom table) via forward FFT, elementwise multiply, inverse FFT.
type Plan1D struct {
	n      int
	filter []float64
}

// NewPlan1D builds a row filter plan for rows of length n. filter must
// have length n.
func NewPlan1D(n int, filter []float64) *Plan1D {
	return &Plan1D{n: n, filter: filter}
}

// SetFilter swaps the active filter table without rebuilding the FFT
// plan, matching Filterer::set_filter's ability to hot-swap a custom
// filter array.
func (p *Plan1D) SetFilter(filter []float64) { p.filter = filter }

// NewScratch allocates a worker-private scratch buffer sized for this
// plan.
func (p *Plan1D) NewScratch() []Complex { return make([]Complex, p.n) }

// Apply filters row in place: row-wise 1D forward FFT, multiply by the
// filter table, inverse FFT, keep the real part. scratch must be a
// buffer returned by NewScratch, reused across calls by the same worker.
func (p *Plan1D) Apply(row []float64, scratch []Complex) {
	for i, v := range row {
		scratch[i] = complex(v, 0)
	}
	freq := FFT(scratch)
	for i := range freq {
		freq[i] *= complex(p.filter[i], 0)
	}
	back := IFFT(freq)
	for i := range row {
		row[i] = real(back[i])
	}
}

// Plan2D applies the 2D Paganin kernel via a single forward/inverse 2D
// FFT pair (row FFTs followed by column FFTs, and the reverse on the way
// back), matching Paganin::apply's fftwf_plan_dft_r2c_2d/c2r_2d pair.
type Plan2D struct {
	rows, cols int
	kernel     []float64 // rows*cols
}

// NewPlan2D builds a 2D filter plan for a (rows, cols) image.
func NewPlan2D(rows, cols int, kernel []float64) *Plan2D {
	return &Plan2D{rows: rows, cols: cols, kernel: kernel}
}

// NewScratch allocates a worker-private rows*cols scratch buffer.
func (p *Plan2D) NewScratch() []Complex { return make([]Complex, p.rows*p.cols) }

// Apply filters img (row-major, rows*cols) in place via 2D FFT, kernel
// multiply, inverse 2D FFT, keeping the real part.
func (p *Plan2D) Apply(img []float64, scratch []Complex) {
	for i, v := range img {
		scratch[i] = complex(v, 0)
	}
	fft2D(scratch, p.rows, p.cols, false)
	for i := range scratch {
		scratch[i] *= complex(p.kernel[i], 0)
	}
	fft2D(scratch, p.rows, p.cols, true)
	for i := range img {
		img[i] = real(scratch[i])
	}
}

// fft2D performs a separable 2D transform in place: 1D transform over
// every row, then over every column. inverse selects IFFT (via the
// conjugation trick) for both passes.
func fft2D(data []Complex, rows, cols int, inverse bool) {
	row := make([]Complex, cols)
	for r := 0; r < rows; r++ {
		copy(row, data[r*cols:(r+1)*cols])
		var out []Complex
		if inverse {
			out = IFFT(row)
		} else {
			out = FFT(row)
		}
		copy(data[r*cols:(r+1)*cols], out)
	}
	col := make([]Complex, rows)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			col[r] = data[r*cols+c]
		}
		var out []Complex
		if inverse {
			out = IFFT(col)
		} else {
			out = FFT(col)
		}
		for r := 0; r < rows; r++ {
			data[r*cols+c] = out[r]
		}
	}
}
