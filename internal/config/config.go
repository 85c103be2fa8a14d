// Package config parses the single JSON document that parametrizes
// benchmark runs and loop registration (spec.md section 6). Every key is
// optional; defaults are applied after unmarshalling.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

type ExecutionConfig struct {
	WarmupFrames      int `json:"warmup_frames"`
	MeasurementFrames int `json:"measurement_frames"`
	Iterations        int `json:"iterations"`
}

type CatchupMode string

const (
	CatchupFireAndForget      CatchupMode = "FireAndForget"
	CatchupSingleCorrective   CatchupMode = "SingleCorrectiveStep"
	CatchupMultipleSteps      CatchupMode = "MultipleSteps"
	defaultFixedTimestep                  = 1.0 / 60.0
	defaultMaxCatchupTime                 = 0.25
)

type LoopConfig struct {
	Name           string      `json:"name"`
	FixedTimestep  float64     `json:"fixedTimestep"`
	CatchupMode    CatchupMode `json:"catchupMode"`
	MaxCatchupTime float64     `json:"maxCatchupTime"`
}

type SceneConfig struct {
	Type       string  `json:"type"`
	Resolution int     `json:"resolution"`
	Density    float64 `json:"density"`
}

type LimitsConfig struct {
	DeviceBudgetBytes uint64 `json:"device_budget_bytes"`
	HostBudgetBytes   uint64 `json:"host_budget_bytes"`
}

type SyncConfig struct {
	FramesInFlight int `json:"frames_in_flight"`
}

type TimingConfig struct {
	NoValidation bool   `json:"no_validation"`
	Quick        bool   `json:"quick"`
	OutputDir    string `json:"output_dir"`
	TesterName   string `json:"tester_name"`
}

type Config struct {
	Execution ExecutionConfig `json:"execution"`
	Loops     []LoopConfig    `json:"loops"`
	Scenes    []SceneConfig   `json:"scenes"`
	Limits    LimitsConfig    `json:"limits"`
	Sync      SyncConfig      `json:"sync"`
	Timing    TimingConfig    `json:"timing"`
}

// Default returns a Config with every documented default already applied,
// suitable as the base for Parse/Load to overlay onto.
func Default() *Config {
	return &Config{
		Execution: ExecutionConfig{
			WarmupFrames:      100,
			MeasurementFrames: 300,
			Iterations:        1,
		},
		Limits: LimitsConfig{
			DeviceBudgetBytes: 1 << 30, // 1 GiB, conservative default
			HostBudgetBytes:   1 << 28, // 256 MiB
		},
		Sync: SyncConfig{
			FramesInFlight: 2,
		},
	}
}

// Load reads and parses a config document from path, applying defaults for
// every key the document omits.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a config document from r, applying defaults for every key
// the document omits, and validates it.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		// Decode straight into cfg, which already holds Default(), so
		// omitted fields keep their default values.
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode: %w", err)
		}
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Execution.WarmupFrames == 0 {
		cfg.Execution.WarmupFrames = 100
	}
	if cfg.Execution.MeasurementFrames == 0 {
		cfg.Execution.MeasurementFrames = 300
	}
	if cfg.Execution.Iterations == 0 {
		cfg.Execution.Iterations = 1
	}
	if cfg.Sync.FramesInFlight == 0 {
		cfg.Sync.FramesInFlight = 2
	}
	for i := range cfg.Loops {
		if cfg.Loops[i].MaxCatchupTime == 0 {
			cfg.Loops[i].MaxCatchupTime = defaultMaxCatchupTime
		}
		if cfg.Loops[i].CatchupMode == "" {
			cfg.Loops[i].CatchupMode = CatchupMultipleSteps
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Sync.FramesInFlight < 1 || cfg.Sync.FramesInFlight > 4 {
		return fmt.Errorf("config: sync.frames_in_flight must be in 1..4, got %d", cfg.Sync.FramesInFlight)
	}
	if cfg.Timing.TesterName != "" && len(cfg.Timing.TesterName) < 2 {
		return fmt.Errorf("config: timing.tester_name must be at least 2 characters")
	}
	for _, l := range cfg.Loops {
		switch l.CatchupMode {
		case CatchupFireAndForget, CatchupSingleCorrective, CatchupMultipleSteps:
		default:
			return fmt.Errorf("config: loop %q has unknown catchupMode %q", l.Name, l.CatchupMode)
		}
	}
	return nil
}
