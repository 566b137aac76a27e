// Package gpubuf implements the GPU uploader and double buffer (§4.6):
// in alternating mode two device-side sinogram allocations are swapped
// behind an atomic active index so a reader never observes a torn
// buffer; in continuous mode a single device allocation is shared under
// a mutex. The actual back-projection kernel is an external black box
// (§1 Non-goals), so Backend only copies host data to the device and
// mirrors it for the driver in internal/backproject to read back —
// grounded on voodoo_vulkan.go's offscreen-image/staging-buffer upload
// path and its headless software fallback (voodoo_vulkan_headless.go),
// generalised from a 2D framebuffer to a 3D sinogram/volume buffer.
package gpubuf

import (
	"sync"
	"sync/atomic"

	"github.com/apsbeam/streamrecon/internal/obs"
	"github.com/apsbeam/streamrecon/internal/sino"
)

// Backend mirrors host buffers onto a device (or, in headless builds, a
// plain host copy standing in for one). Slot indices 0 and 1 identify
// the two sinogram allocations in alternating mode; continuous mode
// always uses slot 0.
type Backend interface {
	Init(rows, n, cols, previewSize, sliceSize int) error
	UploadSinogram(slot int, data []float64) error
	UploadPreview(vol []float64) error
	UploadSlice(img []float64) error
	Destroy()
}

// DoubleBuffer owns the host-visible mirrors of the device buffers and
// the active-index/mutex discipline from §3's "GPU double buffer" data
// model.
type DoubleBuffer struct {
	mode       sino.Mode
	rows, n, cols int

	// Alternating mode: two independent host mirrors, flipped via
	// active. A reader calling Active() after a flip to A never
	// observes a write made to A after that flip, because the
	// uploader only ever writes into the *inactive* slot.
	bufs   [2][]float64
	active atomic.Int32

	// Continuous mode: one shared mirror under mu.
	mu    sync.Mutex
	shared []float64

	backend Backend
	log     *obs.Logger
}

// New builds a DoubleBuffer for the given mode and sinogram shape,
// backed by backend (a real Vulkan backend or the headless fallback,
// selected at build time by the `headless` build tag).
func New(mode sino.Mode, rows, n, cols, previewSize, sliceSize int, backend Backend, log *obs.Logger) (*DoubleBuffer, error) {
	if err := backend.Init(rows, n, cols, previewSize, sliceSize); err != nil {
		return nil, err
	}
	d := &DoubleBuffer{mode: mode, rows: rows, n: n, cols: cols, backend: backend, log: log}
	size := rows * n * cols
	if mode == sino.Alternating {
		d.bufs[0] = make([]float64, size)
		d.bufs[1] = make([]float64, size)
	} else {
		d.shared = make([]float64, size)
	}
	return d, nil
}

// Apply ingests one transposer update. In alternating mode a full
// revolution uploads into the inactive slot and then flips the active
// index; in continuous mode the affected column range is patched under
// mu. A device upload failure is logged and the update discarded —
// the pipeline keeps serving the previous state (§4.6 failure semantics).
func (d *DoubleBuffer) Apply(u *sino.Update) {
	if d.mode == sino.Alternating {
		inactive := 1 - d.active.Load()
		copy(d.bufs[inactive], u.Data)
		if err := d.backend.UploadSinogram(int(inactive), u.Data); err != nil {
			d.log.Backpressure("gpu upload failed for generation %d, discarding: %v", u.Generation, err)
			return
		}
		d.active.Store(inactive)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	patchColumns(d.shared, u.Data, d.rows, d.n, d.cols, u.ColOffset, u.ColCount)
	if err := d.backend.UploadSinogram(0, d.shared); err != nil {
		d.log.Backpressure("gpu patch failed for generation %d, discarding: %v", u.Generation, err)
	}
}

// patchColumns copies the [colOffset, colOffset+colCount) column range
// of every row from src into dst, leaving the rest of dst untouched —
// the continuous-mode "patch the affected angular range" semantics.
func patchColumns(dst, src []float64, rows, n, cols, colOffset, colCount int) {
	for r := 0; r < rows; r++ {
		base := r*n*cols + colOffset*cols
		copy(dst[base:base+colCount*cols], src[base:base+colCount*cols])
	}
}

// Active returns a defensive copy of the currently-active sinogram for
// the back-projector driver to read. In continuous mode this takes mu
// so it never observes a half-applied patch.
func (d *DoubleBuffer) Active() []float64 {
	if d.mode == sino.Alternating {
		idx := d.active.Load()
		src := d.bufs[idx]
		out := make([]float64, len(src))
		copy(out, src)
		return out
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]float64, len(d.shared))
	copy(out, d.shared)
	return out
}

// UploadPreview forwards a freshly reconstructed preview volume to the
// device mirror.
func (d *DoubleBuffer) UploadPreview(vol []float64) error {
	return d.backend.UploadPreview(vol)
}

// UploadSlice forwards a freshly reconstructed slice image to the
// device mirror.
func (d *DoubleBuffer) UploadSlice(img []float64) error {
	return d.backend.UploadSlice(img)
}

// Close releases backend resources.
func (d *DoubleBuffer) Close() { d.backend.Destroy() }
