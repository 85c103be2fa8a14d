package config

import (
	"strings"
	"testing"
)

func TestParseEmptyDocumentUsesDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Execution.WarmupFrames != 100 {
		t.Errorf("WarmupFrames = %d, want 100", cfg.Execution.WarmupFrames)
	}
	if cfg.Execution.MeasurementFrames != 300 {
		t.Errorf("MeasurementFrames = %d, want 300", cfg.Execution.MeasurementFrames)
	}
	if cfg.Sync.FramesInFlight != 2 {
		t.Errorf("FramesInFlight = %d, want 2", cfg.Sync.FramesInFlight)
	}
}

func TestParseRejectsOutOfRangeFramesInFlight(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"sync":{"frames_in_flight":7}}`))
	if err == nil {
		t.Fatalf("expected validation error for frames_in_flight=7")
	}
}

func TestParseLoopDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`{"loops":[{"name":"physics","fixedTimestep":0.01666}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Loops) != 1 {
		t.Fatalf("expected 1 loop, got %d", len(cfg.Loops))
	}
	if cfg.Loops[0].CatchupMode != CatchupMultipleSteps {
		t.Errorf("CatchupMode = %q, want %q", cfg.Loops[0].CatchupMode, CatchupMultipleSteps)
	}
	if cfg.Loops[0].MaxCatchupTime != defaultMaxCatchupTime {
		t.Errorf("MaxCatchupTime = %v, want %v", cfg.Loops[0].MaxCatchupTime, defaultMaxCatchupTime)
	}
}

func TestParseRejectsShortTesterName(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"timing":{"tester_name":"a"}}`))
	if err == nil {
		t.Fatalf("expected validation error for short tester_name")
	}
}
