package gpuapi

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vixen/internal/frame"
)

// Swapchain implements internal/frame.SwapchainProvider over a real
// VkSwapchainKHR. Grounded on the teacher's VulkanSwapchain
// (engine/renderer/vulkan/swapchain.go: createSwapchain,
// SwapchainAcquireNextImageIndex), trimmed to color images only — the
// depth attachment and render targets the teacher wires here belong to
// internal/nodes in this module, built per-frame by node Setup instead of
// once at swapchain creation.
type Swapchain struct {
	ctx    *Context
	queue  *Queue
	handle vk.Swapchain
	format vk.SurfaceFormat
	extent vk.Extent2D
	Images []vk.Image
	Views  []vk.ImageView
}

// NewSwapchain creates a swapchain sized to width x height, preferring
// BGRA8 sRGB / mailbox present mode when the surface supports them, and
// binds its handle onto queue so Queue.Present can target it.
func NewSwapchain(ctx *Context, surface vk.Surface, width, height uint32, queue *Queue) (*Swapchain, error) {
	var caps vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(ctx.Device.Physical, surface, &caps); res != vk.Success {
		return nil, fmt.Errorf("gpuapi: query surface capabilities: result %d", res)
	}
	caps.Deref()

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(ctx.Device.Physical, surface, &formatCount, nil)
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(ctx.Device.Physical, surface, &formatCount, formats)

	chosen := formats[0]
	for _, f := range formats {
		f.Deref()
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			chosen = f
			break
		}
	}

	var presentModeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(ctx.Device.Physical, surface, &presentModeCount, nil)
	presentModes := make([]vk.PresentMode, presentModeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(ctx.Device.Physical, surface, &presentModeCount, presentModes)

	presentMode := vk.PresentModeFifo
	for _, m := range presentModes {
		if m == vk.PresentModeMailbox {
			presentMode = m
			break
		}
	}

	extent := vk.Extent2D{Width: width, Height: height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	}
	extent.Width = clampU32(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = clampU32(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    imageCount,
		ImageFormat:      chosen.Format,
		ImageColorSpace:  chosen.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}
	if ctx.Device.GraphicsQueueFamily != ctx.Device.PresentQueueFamily {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{ctx.Device.GraphicsQueueFamily, ctx.Device.PresentQueueFamily}
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(ctx.Device.Logical, &info, ctx.Allocator, &handle); res != vk.Success {
		return nil, fmt.Errorf("gpuapi: create swapchain: result %d", res)
	}

	var imageCountOut uint32
	vk.GetSwapchainImages(ctx.Device.Logical, handle, &imageCountOut, nil)
	images := make([]vk.Image, imageCountOut)
	vk.GetSwapchainImages(ctx.Device.Logical, handle, &imageCountOut, images)

	views := make([]vk.ImageView, imageCountOut)
	for i := range images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    images[i],
			ViewType: vk.ImageViewType2d,
			Format:   chosen.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		if res := vk.CreateImageView(ctx.Device.Logical, &viewInfo, ctx.Allocator, &views[i]); res != vk.Success {
			return nil, fmt.Errorf("gpuapi: create swapchain image view %d: result %d", i, res)
		}
	}

	sc := &Swapchain{ctx: ctx, queue: queue, handle: handle, format: chosen, extent: extent, Images: images, Views: views}
	queue.BindSwapchain(handle, ctx.Device.PresentQueue)
	return sc, nil
}

// Extent returns the swapchain's current image extent.
func (s *Swapchain) Extent() vk.Extent2D { return s.extent }

// Format returns the swapchain's chosen color format.
func (s *Swapchain) Format() vk.Format { return s.format.Format }

// AcquireNextImage implements internal/frame.SwapchainProvider.
func (s *Swapchain) AcquireNextImage(acquired frame.Semaphore) (uint32, error) {
	gs, ok := acquired.(*Semaphore)
	if !ok {
		return 0, fmt.Errorf("gpuapi: acquire: semaphore %T is not a gpuapi.Semaphore", acquired)
	}
	var imageIndex uint32
	res := vk.AcquireNextImage(s.ctx.Device.Logical, s.handle, math.MaxUint64, gs.handle, nil, &imageIndex)
	switch res {
	case vk.Success, vk.Suboptimal:
		return imageIndex, nil
	case vk.ErrorOutOfDate:
		return 0, fmt.Errorf("gpuapi: swapchain out of date, recreation required")
	default:
		return 0, fmt.Errorf("gpuapi: acquire next image: result %d", res)
	}
}

// Destroy releases every view and the swapchain itself.
func (s *Swapchain) Destroy() {
	for _, v := range s.Views {
		vk.DestroyImageView(s.ctx.Device.Logical, v, s.ctx.Allocator)
	}
	if s.handle != nil {
		vk.DestroySwapchain(s.ctx.Device.Logical, s.handle, s.ctx.Allocator)
		s.handle = nil
	}
}

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
