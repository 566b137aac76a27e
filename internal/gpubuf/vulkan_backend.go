//go:build !headless

// vulkan_backend.go backs gpubuf.Backend with real device buffers via
// github.com/goki/vulkan, grounded on voodoo_vulkan.go's
// instance/device/buffer lifecycle (createInstance, selectPhysicalDevice,
// createDevice, createStagingBuffer's host-visible allocation pattern,
// and the vk.MapMemory/vk.Memcopy/vk.UnmapMemory upload sequence it uses
// for its staging-buffer readback, used here instead for host-to-device
// writes). Back-projection itself stays external (§1 Non-goals); this
// backend only mirrors host floats onto host-visible device memory so a
// real back-projector could bind the same VkBuffer handles.
package gpubuf

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
)

var vulkanInitOnce sync.Once
var vulkanInitErr error

type vkAllocation struct {
	buffer vk.Buffer
	memory vk.DeviceMemory
	size   vk.DeviceSize
}

// VulkanBackend mirrors the sinogram slots, preview volume and slice
// buffer onto host-visible, host-coherent device memory.
type VulkanBackend struct {
	instance       vk.Instance
	physicalDevice vk.PhysicalDevice
	device         vk.Device
	queueFamily    uint32

	sino    [2]vkAllocation
	preview vkAllocation
	slice   vkAllocation

	initialized bool
}

// NewVulkanBackend constructs an uninitialised backend; Init performs
// the actual device setup.
func NewVulkanBackend() *VulkanBackend { return &VulkanBackend{} }

func (b *VulkanBackend) Init(rows, n, cols, previewSize, sliceSize int) error {
	vulkanInitOnce.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			vulkanInitErr = fmt.Errorf("failed to load Vulkan library: %w", err)
			return
		}
		vulkanInitErr = vk.Init()
	})
	if vulkanInitErr != nil {
		return vulkanInitErr
	}

	if err := b.createInstance(); err != nil {
		return err
	}
	if err := b.selectPhysicalDevice(); err != nil {
		return err
	}
	if err := b.createDevice(); err != nil {
		return err
	}

	sinoBytes := vk.DeviceSize(rows * n * cols * 8)
	for i := range b.sino {
		a, err := b.allocHostVisible(sinoBytes)
		if err != nil {
			return fmt.Errorf("sinogram slot %d: %w", i, err)
		}
		b.sino[i] = a
	}
	var err error
	b.preview, err = b.allocHostVisible(vk.DeviceSize(previewSize * previewSize * previewSize * 8))
	if err != nil {
		return fmt.Errorf("preview volume: %w", err)
	}
	b.slice, err = b.allocHostVisible(vk.DeviceSize(sliceSize * sliceSize * 8))
	if err != nil {
		return fmt.Errorf("slice buffer: %w", err)
	}

	b.initialized = true
	return nil
}

func (b *VulkanBackend) createInstance() error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeString("streamrecon"),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        safeString("streamrecon-gpubuf"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}
	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return fmt.Errorf("vkCreateInstance failed: %d", res)
	}
	b.instance = instance
	vk.InitInstance(instance)
	return nil
}

func (b *VulkanBackend) selectPhysicalDevice() error {
	var count uint32
	vk.EnumeratePhysicalDevices(b.instance, &count, nil)
	if count == 0 {
		return fmt.Errorf("no Vulkan-capable GPUs found")
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(b.instance, &count, devices)

	for _, device := range devices {
		var qCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(device, &qCount, nil)
		families := make([]vk.QueueFamilyProperties, qCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(device, &qCount, families)
		for i, qf := range families {
			qf.Deref()
			if qf.QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
				b.physicalDevice = device
				b.queueFamily = uint32(i)
				return nil
			}
		}
	}
	return fmt.Errorf("no suitable GPU with a compute queue found")
}

func (b *VulkanBackend) createDevice() error {
	priority := float32(1.0)
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: b.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{priority},
	}
	deviceInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueInfo},
	}
	var device vk.Device
	if res := vk.CreateDevice(b.physicalDevice, &deviceInfo, nil, &device); res != vk.Success {
		return fmt.Errorf("vkCreateDevice failed: %d", res)
	}
	b.device = device
	return nil
}

func (b *VulkanBackend) allocHostVisible(size vk.DeviceSize) (vkAllocation, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit | vk.BufferUsageTransferDstBit),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if res := vk.CreateBuffer(b.device, &bufferInfo, nil, &buffer); res != vk.Success {
		return vkAllocation{}, fmt.Errorf("vkCreateBuffer failed: %d", res)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.device, buffer, &reqs)
	reqs.Deref()

	typeIdx, err := b.findMemoryType(reqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return vkAllocation{}, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typeIdx,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(b.device, &allocInfo, nil, &memory); res != vk.Success {
		return vkAllocation{}, fmt.Errorf("vkAllocateMemory failed: %d", res)
	}
	vk.BindBufferMemory(b.device, buffer, memory, 0)
	return vkAllocation{buffer: buffer, memory: memory, size: reqs.Size}, nil
}

func (b *VulkanBackend) findMemoryType(typeFilter uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(b.physicalDevice, &props)
	props.Deref()
	for i := uint32(0); i < props.MemoryTypeCount; i++ {
		props.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && props.MemoryTypes[i].PropertyFlags&properties == properties {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no suitable memory type")
}

func (b *VulkanBackend) writeFloats(a vkAllocation, data []float64) error {
	if !b.initialized {
		return fmt.Errorf("backend not initialised")
	}
	need := vk.DeviceSize(len(data) * 8)
	if need > a.size {
		return fmt.Errorf("buffer too small: need %d, have %d", need, a.size)
	}
	var ptr unsafe.Pointer
	if res := vk.MapMemory(b.device, a.memory, 0, need, 0, &ptr); res != vk.Success {
		return fmt.Errorf("vkMapMemory failed: %d", res)
	}
	vk.Memcopy(ptr, float64sToBytes(data))
	vk.UnmapMemory(b.device, a.memory)
	return nil
}

func (b *VulkanBackend) UploadSinogram(slot int, data []float64) error {
	if slot < 0 || slot > 1 {
		return fmt.Errorf("invalid sinogram slot %d", slot)
	}
	return b.writeFloats(b.sino[slot], data)
}

func (b *VulkanBackend) UploadPreview(vol []float64) error { return b.writeFloats(b.preview, vol) }
func (b *VulkanBackend) UploadSlice(img []float64) error   { return b.writeFloats(b.slice, img) }

func (b *VulkanBackend) Destroy() {
	if !b.initialized {
		return
	}
	for _, a := range b.sino {
		vk.DestroyBuffer(b.device, a.buffer, nil)
		vk.FreeMemory(b.device, a.memory, nil)
	}
	vk.DestroyBuffer(b.device, b.preview.buffer, nil)
	vk.FreeMemory(b.device, b.preview.memory, nil)
	vk.DestroyBuffer(b.device, b.slice.buffer, nil)
	vk.FreeMemory(b.device, b.slice.memory, nil)
	vk.DestroyDevice(b.device, nil)
	vk.DestroyInstance(b.instance, nil)
	b.initialized = false
}

func safeString(s string) string { return s + "\x00" }

func float64sToBytes(data []float64) []byte {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*8)
}
