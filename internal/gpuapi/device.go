package gpuapi

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vixen/internal/corelog"
)

// Device wraps a selected physical device and the logical device created
// against it, plus the three queues this module needs. Grounded on the
// teacher's VulkanDevice (engine/renderer/vulkan/device.go), trimmed to the
// fields spec.md section 6's GPU API abstraction actually calls for
// (graphics/present/transfer queues, memory properties, timestamp period);
// geometry/material-specific fields from the teacher are dropped since
// SPEC_FULL.md's node set has no equivalent concept.
type Device struct {
	Physical vk.PhysicalDevice
	Logical  vk.Device

	GraphicsQueueFamily uint32
	PresentQueueFamily  uint32
	TransferQueueFamily uint32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue
	TransferQueue vk.Queue

	MemoryProperties     vk.PhysicalDeviceMemoryProperties
	TimestampPeriodNanos float64
}

func newDevice(ctx *Context, requireDiscreteGPU bool) (*Device, error) {
	physical, families, err := selectPhysicalDevice(ctx.Instance, ctx.Surface, requireDiscreteGPU)
	if err != nil {
		return nil, err
	}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(physical, &props)
	props.Deref()
	props.Limits.Deref()

	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physical, &memProps)
	memProps.Deref()

	uniqueFamilies := dedupeFamilies(families.graphics, families.present, families.transfer)
	queueInfos := make([]vk.DeviceQueueCreateInfo, 0, len(uniqueFamilies))
	priority := float32(1.0)
	for _, family := range uniqueFamilies {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{priority},
		})
	}

	extensions := []string{vk.KhrSwapchainExtensionName + "\x00"}
	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(physical, &features)
	features.Deref()

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
	}

	var logical vk.Device
	if res := vk.CreateDevice(physical, &createInfo, ctx.Allocator, &logical); res != vk.Success {
		return nil, fmt.Errorf("gpuapi: create logical device: result %d", res)
	}

	d := &Device{
		Physical:             physical,
		Logical:              logical,
		GraphicsQueueFamily:  families.graphics,
		PresentQueueFamily:   families.present,
		TransferQueueFamily:  families.transfer,
		MemoryProperties:     memProps,
		TimestampPeriodNanos: float64(props.Limits.TimestampPeriod),
	}

	var q vk.Queue
	vk.GetDeviceQueue(logical, families.graphics, 0, &q)
	d.GraphicsQueue = q
	vk.GetDeviceQueue(logical, families.present, 0, &q)
	d.PresentQueue = q
	vk.GetDeviceQueue(logical, families.transfer, 0, &q)
	d.TransferQueue = q

	return d, nil
}

type queueFamilies struct {
	graphics, present, transfer uint32
}

func dedupeFamilies(families ...uint32) []uint32 {
	seen := make(map[uint32]bool, len(families))
	out := make([]uint32, 0, len(families))
	for _, f := range families {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// selectPhysicalDevice enumerates devices, picks the first one exposing
// graphics/present/transfer queue families (preferring a dedicated
// transfer-only family when present, mirroring the teacher's
// minTransferScore heuristic), and returns its handle plus the chosen
// family indices.
func selectPhysicalDevice(instance vk.Instance, surface vk.Surface, requireDiscreteGPU bool) (vk.PhysicalDevice, queueFamilies, error) {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(instance, &count, nil); res != vk.Success {
		return nil, queueFamilies{}, fmt.Errorf("gpuapi: enumerate physical devices: result %d", res)
	}
	if count == 0 {
		return nil, queueFamilies{}, fmt.Errorf("gpuapi: no Vulkan-capable devices found")
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(instance, &count, devices)

	for _, candidate := range devices {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(candidate, &props)
		props.Deref()
		if requireDiscreteGPU && props.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
			continue
		}

		families, ok := findQueueFamilies(candidate, surface)
		if !ok {
			continue
		}
		corelog.Info("gpuapi: selected device %q", vk.ToString(props.DeviceName[:]))
		return candidate, families, nil
	}
	return nil, queueFamilies{}, fmt.Errorf("gpuapi: no device satisfies graphics+present+transfer queue requirements")
}

func findQueueFamilies(device vk.PhysicalDevice, surface vk.Surface) (queueFamilies, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, props)

	const maxUint32 = ^uint32(0)
	families := queueFamilies{graphics: maxUint32, present: maxUint32, transfer: maxUint32}
	minTransferScore := 255

	for i := uint32(0); i < count; i++ {
		props[i].Deref()
		flags := props[i].QueueFlags
		score := 0

		if flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			families.graphics = i
			score++
		}
		if flags&vk.QueueFlags(vk.QueueTransferBit) != 0 && score < minTransferScore {
			minTransferScore = score
			families.transfer = i
		}

		var presentSupport vk.Bool32 = vk.False
		vk.GetPhysicalDeviceSurfaceSupport(device, i, surface, &presentSupport)
		if presentSupport == vk.True {
			families.present = i
		}
	}

	if families.graphics == maxUint32 {
		return queueFamilies{}, false
	}
	if families.present == maxUint32 {
		return queueFamilies{}, false
	}
	if families.transfer == maxUint32 {
		families.transfer = families.graphics
	}
	return families, true
}
