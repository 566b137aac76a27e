//go:build headless

// headless_backend.go stands in for VulkanBackend in headless builds
// (CI, test runners with no GPU), grounded on
// voodoo_vulkan_headless.go's pattern of wrapping the same software
// fallback behind the identical type name so the rest of the codebase
// compiles unchanged.
package gpubuf

import "fmt"

// VulkanBackend in headless builds is a plain host-memory mirror: no
// device, no mapping, just slices sized the same way the real backend
// would size its device allocations.
type VulkanBackend struct {
	sino    [2][]float64
	preview []float64
	slice   []float64
}

func NewVulkanBackend() *VulkanBackend { return &VulkanBackend{} }

func (b *VulkanBackend) Init(rows, n, cols, previewSize, sliceSize int) error {
	b.sino[0] = make([]float64, rows*n*cols)
	b.sino[1] = make([]float64, rows*n*cols)
	b.preview = make([]float64, previewSize*previewSize*previewSize)
	b.slice = make([]float64, sliceSize*sliceSize)
	return nil
}

func (b *VulkanBackend) UploadSinogram(slot int, data []float64) error {
	if slot < 0 || slot > 1 {
		return fmt.Errorf("invalid sinogram slot %d", slot)
	}
	copy(b.sino[slot], data)
	return nil
}

func (b *VulkanBackend) UploadPreview(vol []float64) error {
	copy(b.preview, vol)
	return nil
}

func (b *VulkanBackend) UploadSlice(img []float64) error {
	copy(b.slice, img)
	return nil
}

func (b *VulkanBackend) Destroy() {
	b.sino[0] = nil
	b.sino[1] = nil
	b.preview = nil
	b.slice = nil
}
