// Command vixenbench is the thin benchmark driver referenced in spec.md
// section 6: it loads a config document, builds a single compute
// ray-march scene against internal/app, runs a warmup-then-measurement
// pass, and writes one JSON result file per run. It owns process
// lifetime (signal handling, exit codes) so internal/app itself never
// has to.
package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spaghettifunk/vixen/internal/app"
	"github.com/spaghettifunk/vixen/internal/config"
	"github.com/spaghettifunk/vixen/internal/corelog"
	"github.com/spaghettifunk/vixen/internal/corerr"
	"github.com/spaghettifunk/vixen/internal/eventbus"
	"github.com/spaghettifunk/vixen/internal/graph"
	"github.com/spaghettifunk/vixen/internal/nodes"
	"github.com/spaghettifunk/vixen/internal/resource"
	"github.com/spaghettifunk/vixen/internal/shaderbundle"
)

// Exit codes per spec.md section 6.
const (
	exitSuccess             = 0
	exitInitializationError = 1
	exitValidationError     = 2
	exitBudgetExceeded      = 3
	exitGPUError            = 4
	exitUserAbort           = 5
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the benchmark JSON config document")
	programManifest := flag.String("program-manifest", "shaders/raymarch.toml", "path to the ray-march program's shaderbundle manifest")
	shaderDir := flag.String("shader-dir", "shaders", "directory holding compiled SPIR-V (<program>.<stage>.spv)")
	hotReloadManifest := flag.String("hot-reload-manifest", "", "path to the asset-watch manifest; empty disables hot reload")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			corelog.Error("vixenbench: load config: %v", err)
			return exitInitializationError
		}
		cfg = loaded
	}

	scene := sceneOrDefault(cfg)

	bundle, err := shaderbundle.LoadManifest(*programManifest)
	if err != nil {
		corelog.Error("vixenbench: load shader manifest: %v", err)
		return exitInitializationError
	}
	bundleState := resource.NewRM[*shaderbundle.ShaderDataBundle](bundle.ProgramName)
	bundleState.Set(bundle)
	source := fileShaderSource(*shaderDir)

	a, err := app.New(app.Options{
		Name:               "vixenbench",
		RequireDiscreteGPU: false,
		EnableValidation:   !cfg.Timing.NoValidation,
		Config:             cfg,
		ShaderManifestPath: *hotReloadManifest,
		ShaderWatchDir:     *shaderDir,
		GraphBuilder:       rayMarchGraphBuilder(bundleState, source, scene),
	})
	if err != nil {
		corelog.Error("vixenbench: %v", err)
		return exitInitializationError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	if err := a.Initialize(ctx); err != nil {
		corelog.Error("vixenbench: initialize: %v", err)
		return exitCodeFor(err)
	}
	defer a.Shutdown()

	if *hotReloadManifest != "" {
		watchReloads(a.Bus(), bundleState, *programManifest)
	}

	result, err := runBenchmark(ctx, a, cfg, scene)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			corelog.Info("vixenbench: aborted by signal")
			return exitUserAbort
		}
		corelog.Error("vixenbench: run: %v", err)
		return exitCodeFor(err)
	}

	if err := writeResult(cfg, result); err != nil {
		corelog.Error("vixenbench: write result: %v", err)
		return exitInitializationError
	}

	corelog.Info("vixenbench: completed %d measurement frames, mean=%.3fms p99=%.3fms",
		len(result.FrameDurationsMillis), result.MeanMillis, result.P99Millis)
	return exitSuccess
}

// sceneOrDefault returns the config's first scene, or a reasonable
// default voxel scene if none is configured.
func sceneOrDefault(cfg *config.Config) config.SceneConfig {
	if len(cfg.Scenes) > 0 {
		return cfg.Scenes[0]
	}
	return config.SceneConfig{Type: "voxel", Resolution: 512, Density: 0.5}
}

// fileShaderSource resolves a program+stage pair to compiled SPIR-V bytes
// under dir, following the "<program>.<stage>.spv" convention
// nodes.ShaderSource documents.
func fileShaderSource(dir string) nodes.ShaderSource {
	return func(programName, stage string) ([]byte, error) {
		path := filepath.Join(dir, fmt.Sprintf("%s.%s.spv", programName, stage))
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("vixenbench: read shader %s: %w", path, err)
		}
		return data, nil
	}
}

// watchReloads subscribes to the shader-reload topic and keeps state in
// sync with the manifest file on disk: a successful re-parse installs the
// new bundle (Valid), a failed one moves state to Error, so the pipeline
// node's next Compile reads resource.RM.Get's <InvalidState> instead of
// silently rebuilding against a half-written manifest (spec.md section
// 3.1's RM<T> wrapper).
func watchReloads(bus *eventbus.Bus, state *resource.RM[*shaderbundle.ShaderDataBundle], manifestPath string) {
	bus.Subscribe(eventbus.TopicShaderReloaded, func(eventbus.Event) {
		reloaded, err := shaderbundle.LoadManifest(manifestPath)
		if err != nil {
			corelog.Error("vixenbench: reload shader manifest: %v", err)
			state.Fail(err)
			return
		}
		state.Set(reloaded)
		corelog.Info("vixenbench: reloaded shader manifest %q", manifestPath)
	})
}

// rayMarchGraphBuilder wires the one-and-only compute pass this driver
// benchmarks: a generic compute dispatch bound to a ray-march compute
// pipeline, sized off the scene's voxel grid resolution. Spec.md section
// 4.11 is explicit that ray marching is graph wiring atop the generic
// compute dispatch node, not a node class of its own.
func rayMarchGraphBuilder(state *resource.RM[*shaderbundle.ShaderDataBundle], source nodes.ShaderSource, scene config.SceneConfig) func(g *graph.Graph, reg app.Registrar) error {
	bundleFn := func() *shaderbundle.ShaderDataBundle {
		bundle, err := state.Get()
		if err != nil {
			corelog.Warn("vixenbench: shader bundle unavailable: %v", err)
			return nil
		}
		return bundle
	}
	return func(g *graph.Graph, reg app.Registrar) error {
		if _, err := g.AddNode("RayMarchPipeline", nodes.NewComputePipelineNodeType(bundleFn, source)); err != nil {
			return err
		}
		dispatchType := nodes.NewComputeDispatchNodeType(rayMarchPushConstants(scene))
		dispatch, err := g.AddNode("RayMarch", dispatchType)
		if err != nil {
			return err
		}
		groups := uint64(math.Ceil(float64(scene.Resolution) / 8.0))
		dispatch.SetParam("X", graph.Param{Kind: graph.ParamUint, Uint: groups})
		dispatch.SetParam("Y", graph.Param{Kind: graph.ParamUint, Uint: groups})
		dispatch.SetParam("Z", graph.Param{Kind: graph.ParamUint, Uint: 1})

		return g.Connect(graph.Connection{
			SourceNode: "RayMarchPipeline", SourceSlot: nodes.SlotPipeline,
			SinkNode: "RayMarch", SinkSlot: nodes.SlotPipeline,
		})
	}
}

// rayMarchPushConstants encodes the scene's voxel resolution and density
// plus the current frame index as the ray-march shader's push constant
// block: {resolution uint32, density float32, frameIndex uint32}.
func rayMarchPushConstants(scene config.SceneConfig) nodes.PushConstantsFunc {
	return func(c *graph.Context, frameIndex uint64) []byte {
		buf := make([]byte, 12)
		binary.LittleEndian.PutUint32(buf[0:4], uint32(scene.Resolution))
		binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(float32(scene.Density)))
		binary.LittleEndian.PutUint32(buf[8:12], uint32(frameIndex))
		return buf
	}
}

// Result is one benchmark run's persisted output (spec.md section 6:
// "Benchmark results are JSON per-run").
type Result struct {
	MachineName           string    `json:"machine_name"`
	SceneType             string    `json:"scene_type"`
	Resolution            int       `json:"resolution"`
	Density               float64   `json:"density"`
	WarmupFrames          int       `json:"warmup_frames"`
	MeasurementFrames     int       `json:"measurement_frames"`
	FrameDurationsMillis  []float64 `json:"frame_durations_millis"`
	MeanMillis            float64   `json:"mean_millis"`
	P99Millis             float64   `json:"p99_millis"`
	StartedAt             time.Time `json:"started_at"`
	FinishedAt            time.Time `json:"finished_at"`
}

// runBenchmark drives cfg.Execution.WarmupFrames unmeasured steps followed
// by cfg.Execution.MeasurementFrames measured ones, returning the
// per-frame timings.
func runBenchmark(ctx context.Context, a *app.App, cfg *config.Config, scene config.SceneConfig) (Result, error) {
	started := time.Now()
	for i := 0; i < cfg.Execution.WarmupFrames; i++ {
		if err := stepOnce(ctx, a); err != nil {
			return Result{}, err
		}
	}

	durations := make([]float64, 0, cfg.Execution.MeasurementFrames)
	for i := 0; i < cfg.Execution.MeasurementFrames; i++ {
		frameStart := time.Now()
		if err := stepOnce(ctx, a); err != nil {
			return Result{}, err
		}
		durations = append(durations, float64(time.Since(frameStart))/float64(time.Millisecond))
	}

	return Result{
		MachineName:          machineName(),
		SceneType:            scene.Type,
		Resolution:           scene.Resolution,
		Density:              scene.Density,
		WarmupFrames:         cfg.Execution.WarmupFrames,
		MeasurementFrames:    cfg.Execution.MeasurementFrames,
		FrameDurationsMillis: durations,
		MeanMillis:           mean(durations),
		P99Millis:            percentile(durations, 0.99),
		StartedAt:            started,
		FinishedAt:           time.Now(),
	}, nil
}

func stepOnce(ctx context.Context, a *app.App) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return a.Step(ctx)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// percentile returns an approximate p-th percentile via nearest-rank over
// a copy of xs, sufficient for a single-run benchmark summary.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// machineName reads VIXEN_MACHINE_NAME (spec.md section 6), falling back
// to the OS hostname.
func machineName() string {
	if name := os.Getenv("VIXEN_MACHINE_NAME"); name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

func writeResult(cfg *config.Config, result Result) error {
	dir := cfg.Timing.OutputDir
	if dir == "" {
		dir = "results"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vixenbench: create output dir %s: %w", dir, err)
	}
	name := fmt.Sprintf("vixenbench-%s-%d.json", result.SceneType, result.StartedAt.Unix())
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("vixenbench: marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("vixenbench: write %s: %w", path, err)
	}
	corelog.Info("vixenbench: wrote result to %s", path)
	return nil
}

// exitCodeFor maps the stable error kinds of spec.md section 7 onto the
// exit codes of spec.md section 6. Errors that don't match any kind are
// treated as initialization failures, the most common unclassified case
// (platform/window/instance setup errors are plain fmt.Errorf wraps, not
// corerr kinds).
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return exitUserAbort
	case isKind[*corerr.BudgetExceededError](err), isKind[*corerr.OutOfMemoryError](err), isKind[*corerr.AliasConflictError](err):
		return exitBudgetExceeded
	case isKind[*corerr.InvalidGraphError](err), isKind[*corerr.MissingDependencyError](err), isKind[*corerr.ConnectionFailedError](err), isKind[*corerr.CycleError](err):
		return exitValidationError
	case isKind[*corerr.GpuErrorKind](err), isKind[*corerr.CapabilityMissingError](err), isKind[*corerr.InvalidStateError](err), isKind[*corerr.CacheBuildFailedError](err):
		return exitGPUError
	default:
		return exitInitializationError
	}
}

func isKind[T error](err error) bool {
	_, ok := corerr.As[T](err)
	return ok
}
