// Package loop implements the named fixed/variable-timestep loop manager
// of spec.md section 4.10.
package loop

import "fmt"

// CatchupMode selects how a fixed-timestep loop spends an accumulator that
// has built up more than one timestep's worth of time.
type CatchupMode int

const (
	// MultipleSteps executes once per whole fixedTimestep currently in the
	// accumulator, draining it as far as possible. The default.
	MultipleSteps CatchupMode = iota
	// SingleCorrectiveStep executes at most once per tick, even if more
	// than one timestep has accumulated, leaving the remainder queued.
	SingleCorrectiveStep
	// FireAndForget executes at most once per tick with deltaTime set to
	// the entire accumulator, then clears it — no leftover remainder.
	FireAndForget
)

func (m CatchupMode) String() string {
	switch m {
	case MultipleSteps:
		return "MultipleSteps"
	case SingleCorrectiveStep:
		return "SingleCorrectiveStep"
	case FireAndForget:
		return "FireAndForget"
	default:
		return "unknown"
	}
}

// Config is one loop's configuration (spec.md section 4.10).
type Config struct {
	// FixedTimestep is the loop's step size in seconds; 0 means a
	// variable-step loop that runs once per tick with deltaTime = the
	// clamped raw delta.
	FixedTimestep float64
	// MaxCatchupTime bounds how much accumulated time a single tick may
	// spend executing, which in turn bounds the number of catch-up steps
	// (spiral-of-death protection).
	MaxCatchupTime float64
	CatchupMode    CatchupMode
	// MinStep floors the clamped delta, preventing zero or negative steps.
	MinStep float64
}

// DefaultMaxCatchupTime and DefaultMinStep are spec.md section 4.10's
// documented defaults.
const (
	DefaultMaxCatchupTime = 0.25
	DefaultMinStep        = 1e-4
)

func (c Config) withDefaults() Config {
	if c.MaxCatchupTime <= 0 {
		c.MaxCatchupTime = DefaultMaxCatchupTime
	}
	if c.MinStep <= 0 {
		c.MinStep = DefaultMinStep
	}
	return c
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Reference is the stable, mutable state block returned by
// Manager.GetLoopReference: callers poll it after UpdateLoops to see what
// happened on the last tick, rather than receiving a callback (spec.md
// section 4.10: "returning a stable pointer to the loop's reference
// block").
type Reference struct {
	ShouldExecuteThisFrame bool
	DeltaTime              float64
	StepCount              uint64
	LastExecutedFrame      uint64
}

// ExecuteFunc is invoked once per step a loop actually takes, grounded on
// the teacher's engine.Update func(deltaTime float64) error signature
// (engine/game.go).
type ExecuteFunc func(deltaTime float64) error

// Loop is one named, independently-paced update loop.
type Loop struct {
	id          string
	cfg         Config
	execute     ExecuteFunc
	accumulator float64
	ref         Reference
	tick        uint64
}

func newLoop(id string, cfg Config, execute ExecuteFunc) *Loop {
	return &Loop{id: id, cfg: cfg.withDefaults(), execute: execute}
}

// ID returns the loop's registered name.
func (l *Loop) ID() string { return l.id }

// Config returns the loop's configuration.
func (l *Loop) Config() Config { return l.cfg }

// Reference returns a stable pointer to this loop's reference block.
func (l *Loop) Reference() *Reference { return &l.ref }

// step is the fixed-step catch-up algorithm of spec.md section 4.10,
// updating l.ref and invoking l.execute once per actual execution.
func (l *Loop) step(delta float64) error {
	l.tick++
	if l.cfg.FixedTimestep <= 0 {
		return l.runOnce(delta)
	}

	l.accumulator += delta
	switch l.cfg.CatchupMode {
	case FireAndForget:
		dt := l.accumulator
		l.accumulator = 0
		if dt <= 0 {
			return nil
		}
		return l.runOnce(dt)
	case SingleCorrectiveStep:
		if l.accumulator < l.cfg.FixedTimestep {
			l.ref.ShouldExecuteThisFrame = false
			return nil
		}
		l.accumulator -= l.cfg.FixedTimestep
		return l.runOnce(l.cfg.FixedTimestep)
	default: // MultipleSteps
		ran := false
		for l.accumulator >= l.cfg.FixedTimestep {
			l.accumulator -= l.cfg.FixedTimestep
			if err := l.runOnce(l.cfg.FixedTimestep); err != nil {
				return err
			}
			ran = true
		}
		if !ran {
			l.ref.ShouldExecuteThisFrame = false
		}
		return nil
	}
}

func (l *Loop) runOnce(dt float64) error {
	l.ref.ShouldExecuteThisFrame = true
	l.ref.DeltaTime = dt
	l.ref.StepCount++
	l.ref.LastExecutedFrame = l.tick
	if l.execute != nil {
		return l.execute(dt)
	}
	return nil
}

// MaxStepsPerTick returns the spiral-of-death ceiling: the maximum number
// of executions a single UpdateLoops call can produce for this loop,
// ⌈maxCatchupTime/fixedTimestep⌉ for MultipleSteps, 1 for the other modes.
func (c Config) MaxStepsPerTick() int {
	c = c.withDefaults()
	if c.FixedTimestep <= 0 || c.CatchupMode != MultipleSteps {
		return 1
	}
	n := int(c.MaxCatchupTime / c.FixedTimestep)
	if float64(n)*c.FixedTimestep < c.MaxCatchupTime {
		n++
	}
	return n
}

func (c Config) String() string {
	return fmt.Sprintf("Config{fixedTimestep=%g maxCatchupTime=%g catchupMode=%s minStep=%g}",
		c.FixedTimestep, c.MaxCatchupTime, c.CatchupMode, c.MinStep)
}
