// Package app wires internal/platform, internal/gpuapi, internal/graph,
// internal/frame, internal/loop, internal/assetwatch, internal/cache, and
// internal/nodes into one running engine instance — the role the
// teacher's engine.go/application.go/game.go split plays, collapsed into
// a single orchestrator since this module has no separate "game" contract
// to hand control back to (spec.md has no equivalent of the teacher's
// FnInitialize/FnUpdate/FnRender hooks; a render graph's nodes are that
// hook surface instead). Grounded on the teacher's Engine/Game pair
// (engine/engine.go, engine/game.go, engine/application.go), rewritten
// without their package-level singleton state (`var appState
// *applicationState`) — spec.md section 9 rules out file-scope mutables,
// and an injected struct serves the same "one engine per process" need
// without the global.
package app

import (
	"context"
	"fmt"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vixen/internal/assetwatch"
	"github.com/spaghettifunk/vixen/internal/cache"
	"github.com/spaghettifunk/vixen/internal/config"
	"github.com/spaghettifunk/vixen/internal/corelog"
	"github.com/spaghettifunk/vixen/internal/eventbus"
	"github.com/spaghettifunk/vixen/internal/frame"
	"github.com/spaghettifunk/vixen/internal/gpuapi"
	"github.com/spaghettifunk/vixen/internal/graph"
	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/loop"
	"github.com/spaghettifunk/vixen/internal/memory"
	"github.com/spaghettifunk/vixen/internal/nodes"
	"github.com/spaghettifunk/vixen/internal/platform"
)

// Stage mirrors the teacher's Stage enum (engine/engine.go), trimmed to
// the transitions this orchestrator actually makes.
type Stage int

const (
	StageUninitialized Stage = iota
	StageInitializing
	StageRunning
	StageShuttingDown
)

// Options configures a new App; every field has a working zero value
// except Name and GraphBuilder.
type Options struct {
	Name               string
	Width, Height      int
	EnableValidation   bool
	RequireDiscreteGPU bool
	Config             *config.Config

	// GraphBuilder adds this application's nodes to g and connects them.
	// Called once, after the device/platform are ready but before the
	// graph's first Compile.
	GraphBuilder func(g *graph.Graph, reg Registrar) error

	// ShaderManifestPath, if non-empty, is loaded and watched for hot
	// reload (spec.md section 4.8). Left empty, hot reload is disabled.
	ShaderManifestPath string
	ShaderWatchDir     string
}

// Registrar is the subset of node-construction helpers GraphBuilder
// needs, bundling the platform/device state a node factory in
// internal/nodes closes over so application code never imports
// goki/vulkan or gpuapi directly to build its own graph.
type Registrar struct {
	Device         *gpuapi.Context
	Surface        vk.Surface
	Queue          *gpuapi.Queue
	MemoryProvider *gpuapi.MemoryProvider
}

// App owns every long-lived collaborator of a running instance: the
// window, GPU context, event bus, graph, frame scheduler, loop manager,
// and (optionally) the asset watcher. Grounded on the teacher's
// applicationState, made an explicit value instead of a package global.
type App struct {
	opts Options

	stage Stage

	window    *platform.Window
	gpuCtx    *gpuapi.Context
	queue     *gpuapi.Queue
	memProv   *gpuapi.MemoryProvider
	allocator memory.Allocator
	budget    *memory.Budget
	deferred  *lifetime.DeferredQueue
	cacheReg  *cache.Registry
	bus       *eventbus.Bus
	graph     *graph.Graph
	scheduler *frame.Scheduler
	loops     *loop.Manager
	watcher   *assetwatch.Watcher

	// staticPools back RecordStatic nodes' command buffers. Unlike a frame
	// slot's pools (reset every ring cycle by the scheduler's Step), these
	// are never reset, so a buffer recorded once stays valid across many
	// frames until the node's generation changes and it is re-recorded.
	staticPools map[uint32]*gpuapi.CommandPool
}

// New constructs an App from opts without touching the OS or GPU; call
// Initialize to actually open a window and select a device.
func New(opts Options) (*App, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("app: Options.Name is required")
	}
	if opts.GraphBuilder == nil {
		return nil, fmt.Errorf("app: Options.GraphBuilder is required")
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Width == 0 {
		opts.Width = 1920
	}
	if opts.Height == 0 {
		opts.Height = 1080
	}
	return &App{opts: opts, stage: StageUninitialized}, nil
}

// Initialize opens the window, creates the Vulkan instance/device/
// swapchain-independent state, builds the graph via opts.GraphBuilder,
// and compiles it. Mirrors ApplicationCreate's sequencing (platform
// startup, then game initialize) but returns errors instead of panicking.
func (a *App) Initialize(ctx context.Context) error {
	a.stage = StageInitializing

	window, err := platform.NewWindow(a.opts.Name, a.opts.Width, a.opts.Height)
	if err != nil {
		return fmt.Errorf("app: open window: %w", err)
	}
	a.window = window

	instance, err := platform.CreateInstance(a.opts.Name, a.opts.EnableValidation)
	if err != nil {
		return fmt.Errorf("app: create instance: %w", err)
	}
	surface, err := window.CreateSurface(instance)
	if err != nil {
		return fmt.Errorf("app: create surface: %w", err)
	}

	gpuCtx, err := gpuapi.NewContext(instance, surface, a.opts.RequireDiscreteGPU)
	if err != nil {
		return fmt.Errorf("app: create gpu context: %w", err)
	}
	a.gpuCtx = gpuCtx
	a.queue = gpuapi.NewQueue(gpuCtx, gpuCtx.Device.GraphicsQueue, gpuCtx.Device.GraphicsQueueFamily)
	a.memProv = gpuapi.NewMemoryProvider(gpuCtx)

	a.budget = memory.NewBudget(map[memory.Class][2]uint64{
		memory.ClassDeviceLocal: {a.opts.Config.Limits.DeviceBudgetBytes, a.opts.Config.Limits.DeviceBudgetBytes},
		memory.ClassHostVisible: {a.opts.Config.Limits.HostBudgetBytes, a.opts.Config.Limits.HostBudgetBytes},
	})
	a.deferred = lifetime.NewDeferredQueue(uint64(a.opts.Config.Sync.FramesInFlight))
	a.allocator = memory.NewPooledAllocator(a.memProv, a.budget, a.deferred)
	a.cacheReg = cache.NewRegistry()
	a.bus = eventbus.New(0)
	a.loops = loop.NewManager()

	a.graph = graph.New(ctx, a.bus, graph.Deps{
		Allocator: a.allocator,
		Budget:    a.budget,
		Caches:    a.cacheReg,
		Queue:     a.deferred,
	})

	if _, err := a.graph.AddNode("Device", nodes.NewDeviceNodeType(a.gpuCtx)); err != nil {
		return fmt.Errorf("app: add device node: %w", err)
	}
	if _, err := a.graph.AddNode("Swapchain", nodes.NewSwapchainNodeType(surface, a.queue)); err != nil {
		return fmt.Errorf("app: add swapchain node: %w", err)
	}

	reg := Registrar{Device: a.gpuCtx, Surface: surface, Queue: a.queue, MemoryProvider: a.memProv}
	if err := a.opts.GraphBuilder(a.graph, reg); err != nil {
		return fmt.Errorf("app: build graph: %w", err)
	}

	if err := a.compileAndRecompile(); err != nil {
		return err
	}

	swapOut, err := a.swapchainOutput()
	if err != nil {
		return fmt.Errorf("app: bind swapchain: %w", err)
	}

	staticPools := make(map[uint32]*gpuapi.CommandPool)
	for _, family := range uniqueFamilies(gpuCtx.Device) {
		p, err := gpuCtx.NewCommandPool(family)
		if err != nil {
			return fmt.Errorf("app: create static command pool for family %d: %w", family, err)
		}
		staticPools[family] = p
	}
	a.staticPools = staticPools

	sched, err := frame.NewScheduler(
		a.opts.Config.Sync.FramesInFlight,
		uniqueFamilies(gpuCtx.Device),
		gpuapi.NewSyncProvider(a.gpuCtx),
		swapOut.Swapchain,
		a.queue,
		a.deferred,
		a.graph,
		a.bus,
		nil,
		nil,
	)
	if err != nil {
		return fmt.Errorf("app: create scheduler: %w", err)
	}
	a.scheduler = sched

	if a.opts.ShaderManifestPath != "" {
		if err := a.initWatcher(); err != nil {
			return fmt.Errorf("app: init asset watcher: %w", err)
		}
	}

	window.SetFramebufferSizeCallback(func(width, height int) {
		if n, ok := a.graph.Node("Swapchain"); ok {
			n.SetParam("Width", graph.Param{Kind: graph.ParamUint, Uint: uint64(width)})
			n.SetParam("Height", graph.Param{Kind: graph.ParamUint, Uint: uint64(height)})
			n.MarkDirty()
			corelog.Info("app: framebuffer resized to %dx%d, Swapchain marked dirty", width, height)
		}
	})

	a.stage = StageRunning
	corelog.Info("app: %q initialized, frames_in_flight=%d", a.opts.Name, a.opts.Config.Sync.FramesInFlight)
	return nil
}

func (a *App) compileAndRecompile() error {
	return a.graph.Compile()
}

// swapchainOutput reads back the published output of the "Swapchain" node
// added during Initialize, after Compile has run. Instance.Output mirrors
// Context.Input for exactly this kind of external read.
func (a *App) swapchainOutput() (nodes.SwapchainOutput, error) {
	n, ok := a.graph.Node("Swapchain")
	if !ok {
		return nodes.SwapchainOutput{}, fmt.Errorf("app: no Swapchain node")
	}
	shared, err := n.Output(nodes.SlotSwapchain)
	if err != nil {
		return nodes.SwapchainOutput{}, err
	}
	out, ok := shared.Variant().Handle().(nodes.SwapchainOutput)
	if !ok {
		return nodes.SwapchainOutput{}, fmt.Errorf("app: Swapchain output has unexpected type %T", shared.Variant().Handle())
	}
	return out, nil
}

// familyForCapabilities maps a node's declared capabilities onto the
// queue family that should record its commands. Compute nodes share the
// graphics family since this device selection (gpuapi.selectPhysicalDevice)
// never requests a queue family dedicated to compute-only work.
func (a *App) familyForCapabilities(c graph.Capability) uint32 {
	if c&graph.CapabilityTransfer != 0 && c&(graph.CapabilityGraphics|graph.CapabilityCompute) == 0 {
		return a.gpuCtx.Device.TransferQueueFamily
	}
	return a.gpuCtx.Device.GraphicsQueueFamily
}

// defaultRecord implements frame.RecordFunc: it allocates one command
// buffer and begins recording. The scheduler's recordWave step ends the
// buffer once the node's Execute has written its commands (internal/frame's
// ender mechanism), so this function's only job is Begin.
//
// A RecordDynamic node (the default) allocates from its frame slot's pool,
// which the scheduler resets every ring cycle, and begins one-time-submit
// since it is re-recorded every frame regardless. A RecordStatic node
// instead allocates from this App's persistent per-family staticPools,
// which are never reset, and begins without one-time-submit since the
// scheduler (see frame.Scheduler.reuseStatic/cacheStatic) may resubmit the
// same buffer across many frames until the node's generation changes.
func (a *App) defaultRecord(ctx context.Context, nodeName string, slot *frame.Slot, frameIndex uint64) (frame.CommandBuffer, error) {
	n, ok := a.graph.Node(nodeName)
	if !ok {
		return nil, fmt.Errorf("app: record %q: node not found", nodeName)
	}
	family := a.familyForCapabilities(n.Type.Capabilities)
	static := false
	if policy, ok := a.graph.RecordPolicyOf(nodeName); ok && policy == graph.RecordStatic {
		static = true
	}

	var pool *gpuapi.CommandPool
	if static {
		gp, ok := a.staticPools[family]
		if !ok {
			return nil, fmt.Errorf("app: record %q: no static command pool for queue family %d", nodeName, family)
		}
		pool = gp
	} else {
		p, ok := slot.Pools[family]
		if !ok {
			return nil, fmt.Errorf("app: record %q: no command pool for queue family %d", nodeName, family)
		}
		gp, ok := p.(*gpuapi.CommandPool)
		if !ok {
			return nil, fmt.Errorf("app: record %q: pool for family %d is not a gpuapi.CommandPool", nodeName, family)
		}
		pool = gp
	}

	bufs, err := pool.Allocate(1)
	if err != nil {
		return nil, fmt.Errorf("app: record %q: allocate command buffer: %w", nodeName, err)
	}
	cmd := bufs[0]
	if err := cmd.Begin(!static); err != nil {
		return nil, fmt.Errorf("app: record %q: begin command buffer: %w", nodeName, err)
	}
	return cmd, nil
}

// Step drives one frame of the render-graph loop (spec.md section 4.9)
// using defaultRecord. Recompile runs first so a resize or hot-reload's
// MarkDirty takes effect before this frame records; it is a no-op when
// nothing is dirty.
func (a *App) Step(ctx context.Context) error {
	if err := a.graph.Recompile(); err != nil {
		return fmt.Errorf("app: recompile: %w", err)
	}
	return a.scheduler.Step(ctx, a.defaultRecord)
}

// Run polls the window and steps loops/frames until the window is closed
// or ctx is canceled. Grounded on the teacher's main.go run loop, minus
// its signal-handling goroutine — that belongs to cmd/vixenbench, which
// owns process lifetime; this method just drives frames.
func (a *App) Run(ctx context.Context) error {
	last := time.Now()
	for !a.window.ShouldClose() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		a.window.PollEvents()

		now := time.Now()
		delta := now.Sub(last).Seconds()
		last = now
		if err := a.loops.UpdateLoops(delta); err != nil {
			return fmt.Errorf("app: update loops: %w", err)
		}

		if err := a.Step(ctx); err != nil {
			return fmt.Errorf("app: step: %w", err)
		}
	}
	return nil
}

// Loops exposes the loop manager so callers can Register application
// loops before Run starts driving them.
func (a *App) Loops() *loop.Manager { return a.loops }

func uniqueFamilies(d *gpuapi.Device) []uint32 {
	seen := make(map[uint32]bool, 3)
	var out []uint32
	for _, f := range []uint32{d.GraphicsQueueFamily, d.PresentQueueFamily, d.TransferQueueFamily} {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func (a *App) initWatcher() error {
	manifest, err := assetwatch.LoadManifest(a.opts.ShaderManifestPath)
	if err != nil {
		return err
	}
	w, err := assetwatch.New(a.bus)
	if err != nil {
		return err
	}
	w.SetManifest(manifest)
	w.SetGraph(instanceGraph{a.graph})
	dir := a.opts.ShaderWatchDir
	if dir == "" {
		dir = "."
	}
	if err := w.Watch(dir); err != nil {
		return err
	}
	go w.Run()
	a.watcher = w
	return nil
}

// instanceGraph adapts *graph.Graph to assetwatch.Graph.
type instanceGraph struct{ g *graph.Graph }

func (i instanceGraph) Node(name string) (assetwatch.Dirtyable, bool) {
	n, ok := i.g.Node(name)
	if !ok {
		return nil, false
	}
	return n, true
}

// Shutdown tears the watcher, graph, static command pools and window down in reverse
// dependency order, mirroring the teacher's Engine.Shutdown (a stub there;
// here it actually has state to release).
func (a *App) Shutdown() {
	corelog.Info("app: %q shutting down", a.opts.Name)
	a.stage = StageShuttingDown
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.graph != nil {
		a.graph.Teardown()
	}
	for _, p := range a.staticPools {
		p.Destroy()
	}
	if a.window != nil {
		a.window.Close()
	}
}

// Stage reports the orchestrator's current lifecycle stage.
func (a *App) Stage() Stage { return a.stage }

// Graph exposes the running graph for diagnostics and tests.
func (a *App) Graph() *graph.Graph { return a.graph }

// Bus exposes the event bus so callers can subscribe to hot-reload and
// frame-lifecycle topics (spec.md section 4.7) without reaching into the
// graph.
func (a *App) Bus() *eventbus.Bus { return a.bus }
