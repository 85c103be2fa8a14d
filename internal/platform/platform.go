// Package platform owns the one piece of this engine that is inherently
// OS-specific: opening a window and producing the vk.Instance/vk.Surface
// pair the device and swapchain leaf nodes of internal/nodes build on top
// of (spec.md section 6 keeps that pair opaque to internal/gpuapi's own
// doc comment — "instance and surface creation belong to internal/platform").
// Grounded on the teacher's engine/platform/platform.go and the instance/
// surface setup half of engine/renderer/vulkan/backend.go's Initialize.
package platform

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vixen/internal/corelog"
)

func init() {
	// GLFW event handling must run on the main OS thread.
	runtime.LockOSThread()
}

// Window wraps the glfw window this package opens. Its lifetime is the
// caller's to manage via Close; PollEvents and ShouldClose mirror the
// teacher's PumpMessages/main-loop condition.
type Window struct {
	handle *glfw.Window
}

// NewWindow opens an appWidth x appHeight window titled title, hinted for
// Vulkan (no client API, resizable) the way the teacher's
// Platform.Startup does, minus its OS-position arguments this module has
// no caller for.
func NewWindow(title string, appWidth, appHeight int) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("platform: glfw init: %w", err)
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, fmt.Errorf("platform: vulkan not supported by this glfw build")
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.Visible, glfw.False)

	handle, err := glfw.CreateWindow(appWidth, appHeight, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("platform: create window: %w", err)
	}
	handle.Show()

	corelog.Info("platform: window %q opened at %dx%d", title, appWidth, appHeight)
	return &Window{handle: handle}, nil
}

// ShouldClose reports whether the user requested the window close.
func (w *Window) ShouldClose() bool { return w.handle.ShouldClose() }

// PollEvents pumps the platform's OS event queue. Call once per frame
// from the main loop, on the thread that created the window.
func (w *Window) PollEvents() { glfw.PollEvents() }

// FramebufferSize returns the window's current drawable size in pixels,
// which can differ from its logical size on HiDPI displays.
func (w *Window) FramebufferSize() (width, height int) {
	return w.handle.GetFramebufferSize()
}

// SetFramebufferSizeCallback registers fn to run whenever the drawable
// size changes. internal/app wires this to trigger a swapchain node
// recompile; this package has no opinion on how a resize is handled.
func (w *Window) SetFramebufferSizeCallback(fn func(width, height int)) {
	w.handle.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		fn(width, height)
	})
}

// Close destroys the window and terminates glfw. Only call once, after
// the Vulkan surface/instance built from this window have themselves
// been destroyed.
func (w *Window) Close() {
	w.handle.Destroy()
	glfw.Terminate()
}

// CreateInstance builds a vk.Instance requesting the extensions glfw
// reports as required for presenting to this window's surface, plus
// validation layers when enableValidation is set. Grounded on the
// teacher's VulkanRenderer.Initialize (engine/renderer/vulkan/backend.go),
// trimmed of its debug-report-callback setup — internal/corelog, not a
// Vulkan debug messenger, is this module's logging surface.
func CreateInstance(appName string, enableValidation bool) (vk.Instance, error) {
	var nullInstance vk.Instance

	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nullInstance, fmt.Errorf("platform: glfw has no Vulkan instance proc address")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nullInstance, fmt.Errorf("platform: vk.Init: %w", err)
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   appName + "\x00",
		PEngineName:        "vixen\x00",
	}

	extensions := glfw.GetRequiredInstanceExtensions()
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	var layers []string
	if enableValidation {
		layers = []string{"VK_LAYER_KHRONOS_validation\x00"}
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = layers

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return nullInstance, fmt.Errorf("platform: create instance: result %d", res)
	}
	if err := vk.InitInstance(instance); err != nil {
		return nullInstance, fmt.Errorf("platform: init instance: %w", err)
	}
	corelog.Info("platform: vulkan instance created, extensions=%v validation=%v", extensions, enableValidation)
	return instance, nil
}

// CreateSurface creates the vk.Surface this window presents through.
// Grounded on the teacher's createVulkanSurface
// (engine/renderer/vulkan/backend.go).
func (w *Window) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	surfacePtr, err := w.handle.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, fmt.Errorf("platform: create window surface: %w", err)
	}
	return vk.SurfaceFromPointer(surfacePtr), nil
}
