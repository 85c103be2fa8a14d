package loop

import "testing"

func TestLoopTimingMultipleStepsMatchesFixedTimestep(t *testing.T) {
	m := NewManager()
	var executions int
	var lastDt float64
	ref := m.Register("sim", Config{
		FixedTimestep: 1.0 / 60.0,
		CatchupMode:   MultipleSteps,
	}, func(dt float64) error {
		executions++
		lastDt = dt
		return nil
	})

	for i := 0; i < 3; i++ {
		if err := m.UpdateLoops(0.050); err != nil {
			t.Fatalf("UpdateLoops: %v", err)
		}
	}

	if executions != 9 {
		t.Fatalf("executions = %d, want 9", executions)
	}
	if lastDt != 1.0/60.0 {
		t.Fatalf("last deltaTime = %v, want %v", lastDt, 1.0/60.0)
	}
	if ref.StepCount != 9 {
		t.Fatalf("ref.StepCount = %d, want 9", ref.StepCount)
	}
	if !ref.ShouldExecuteThisFrame {
		t.Fatalf("ref.ShouldExecuteThisFrame = false, want true after executing steps")
	}
}

func TestLoopSpiralProtectionClampsMaxCatchupTime(t *testing.T) {
	m := NewManager()
	var executions int
	ref := m.Register("sim", Config{
		FixedTimestep:  1.0 / 60.0,
		MaxCatchupTime: 0.25,
		CatchupMode:    MultipleSteps,
	}, func(dt float64) error {
		executions++
		return nil
	})

	if err := m.UpdateLoops(10.0); err != nil {
		t.Fatalf("UpdateLoops: %v", err)
	}

	const want = 15 // ceil(0.25 / (1/60))
	if executions != want {
		t.Fatalf("executions = %d, want %d", executions, want)
	}
	if ref.StepCount != uint64(want) {
		t.Fatalf("ref.StepCount = %d, want %d", ref.StepCount, want)
	}
}

func TestLoopSingleCorrectiveStepLeavesRemainder(t *testing.T) {
	m := NewManager()
	var executions int
	m.Register("sim", Config{
		FixedTimestep: 1.0 / 60.0,
		CatchupMode:   SingleCorrectiveStep,
	}, func(dt float64) error {
		executions++
		return nil
	})

	// 3 timesteps' worth in one tick: SingleCorrectiveStep still only runs once.
	if err := m.UpdateLoops(3.0 / 60.0); err != nil {
		t.Fatalf("UpdateLoops: %v", err)
	}
	if executions != 1 {
		t.Fatalf("executions = %d, want 1", executions)
	}

	// The remaining 2 timesteps are still queued in the accumulator, so the
	// very next empty tick fires again immediately.
	if err := m.UpdateLoops(0); err != nil {
		t.Fatalf("UpdateLoops: %v", err)
	}
	if executions != 2 {
		t.Fatalf("executions = %d, want 2 after remainder tick", executions)
	}
}

func TestLoopFireAndForgetClearsAccumulatorEachTick(t *testing.T) {
	m := NewManager()
	var executions int
	var lastDt float64
	m.Register("sim", Config{
		FixedTimestep: 1.0 / 60.0,
		CatchupMode:   FireAndForget,
	}, func(dt float64) error {
		executions++
		lastDt = dt
		return nil
	})

	if err := m.UpdateLoops(3.0 / 60.0); err != nil {
		t.Fatalf("UpdateLoops: %v", err)
	}
	if executions != 1 {
		t.Fatalf("executions = %d, want exactly 1 for FireAndForget", executions)
	}
	if lastDt != 3.0/60.0 {
		t.Fatalf("deltaTime = %v, want the full accumulator %v", lastDt, 3.0/60.0)
	}

	// Accumulator was cleared, so an empty tick produces nothing further.
	if err := m.UpdateLoops(0); err != nil {
		t.Fatalf("UpdateLoops: %v", err)
	}
	if executions != 1 {
		t.Fatalf("executions = %d after empty tick, want still 1", executions)
	}
}

func TestVariableStepLoopRunsOncePerTickWithClampedDelta(t *testing.T) {
	m := NewManager()
	var gotDt float64
	m.Register("render", Config{MaxCatchupTime: 0.1}, func(dt float64) error {
		gotDt = dt
		return nil
	})

	if err := m.UpdateLoops(5.0); err != nil {
		t.Fatalf("UpdateLoops: %v", err)
	}
	if gotDt != 0.1 {
		t.Fatalf("deltaTime = %v, want clamped to maxCatchupTime 0.1", gotDt)
	}
}

func TestManagerUnregisterStopsDrivingLoop(t *testing.T) {
	m := NewManager()
	var executions int
	m.Register("sim", Config{}, func(dt float64) error {
		executions++
		return nil
	})
	m.Unregister("sim")

	if err := m.UpdateLoops(0.016); err != nil {
		t.Fatalf("UpdateLoops: %v", err)
	}
	if executions != 0 {
		t.Fatalf("executions = %d, want 0 after unregister", executions)
	}
	if _, ok := m.GetLoopReference("sim"); ok {
		t.Fatalf("GetLoopReference found a reference for an unregistered loop")
	}
}

func TestManagerUpdateLoopsStopsAtFirstError(t *testing.T) {
	m := NewManager()
	boom := errLoopFailed("boom")
	var secondRan bool
	m.Register("first", Config{}, func(dt float64) error {
		return boom
	})
	m.Register("second", Config{}, func(dt float64) error {
		secondRan = true
		return nil
	})

	err := m.UpdateLoops(0.016)
	if err == nil {
		t.Fatalf("expected an error from UpdateLoops")
	}
	if secondRan {
		t.Fatalf("second loop ran after the first loop's error; expected early abort")
	}
}

type errLoopFailed string

func (e errLoopFailed) Error() string { return string(e) }
