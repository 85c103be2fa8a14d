package loop

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spaghettifunk/vixen/internal/corelog"
)

// Manager owns zero or more named loops and drives them all from a single
// raw tick delta (spec.md section 4.10). Grounded on the teacher's single
// hard-coded `core.Clock`-driven loop in engine/application.go, generalized
// to a named, multi-loop registry since the teacher never needed more than
// one update cadence.
type Manager struct {
	mu    sync.Mutex
	loops map[string]*Loop
	order []string
}

// NewManager constructs an empty loop manager.
func NewManager() *Manager {
	return &Manager{loops: make(map[string]*Loop)}
}

// Register adds a new named loop and returns a stable pointer to its
// reference block. Registering an already-used id replaces the previous
// loop under that name.
func (m *Manager) Register(id string, cfg Config, execute ExecuteFunc) *Reference {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := newLoop(id, cfg, execute)
	if _, exists := m.loops[id]; !exists {
		m.order = append(m.order, id)
	}
	m.loops[id] = l
	return l.Reference()
}

// Unregister removes a loop by id, if present.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loops[id]; !ok {
		return
	}
	delete(m.loops, id)
	for i, n := range m.order {
		if n == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// GetLoopReference returns the stable reference block for id, or false if
// no loop is registered under that name.
func (m *Manager) GetLoopReference(id string) (*Reference, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loops[id]
	if !ok {
		return nil, false
	}
	return l.Reference(), true
}

// Names returns every registered loop id, sorted by name.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.order...)
	sort.Strings(out) // deterministic for diagnostics; execution order below is registration order
	return out
}

// UpdateLoops runs one tick of every registered loop against rawDelta, per
// spec.md section 4.10: each loop clamps rawDelta independently (loops may
// have different minStep/maxCatchupTime), then executes per its own
// catch-up mode. The first error from any loop's execute callback aborts
// the remaining loops for this tick and is returned.
func (m *Manager) UpdateLoops(rawDelta float64) error {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	loops := make([]*Loop, 0, len(order))
	for _, id := range order {
		loops = append(loops, m.loops[id])
	}
	m.mu.Unlock()

	for _, l := range loops {
		delta := clamp(rawDelta, l.cfg.MinStep, l.cfg.MaxCatchupTime)
		if err := l.step(delta); err != nil {
			return fmt.Errorf("loop %q: %w", l.id, err)
		}
	}
	return nil
}

// LogState emits a debug line summarizing every loop's reference block,
// useful for diagnosing catch-up behavior during development.
func (m *Manager) LogState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		l := m.loops[id]
		corelog.Debug("loop %q: executed=%v deltaTime=%g stepCount=%d", id, l.ref.ShouldExecuteThisFrame, l.ref.DeltaTime, l.ref.StepCount)
	}
}
