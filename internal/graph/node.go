package graph

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/spaghettifunk/vixen/internal/corelog"
	"github.com/spaghettifunk/vixen/internal/corerr"
	"github.com/spaghettifunk/vixen/internal/eventbus"
	"github.com/spaghettifunk/vixen/internal/lifetime"
)

// Capability is a bitflag of device features a node type requires.
type Capability uint32

const (
	CapabilityGraphics Capability = 1 << iota
	CapabilityCompute
	CapabilityRayTracing
	CapabilityTransfer
	CapabilityMesh
)

// Workload describes the relative cost metrics a node type reports, used
// by the wave scheduler and the benchmark harness.
type Workload struct {
	MemoryBytes     uint64
	ComputeCost     float64
	BandwidthCost   float64
	Parallelizable  bool
	PreferredBatch  int
}

// ParamKind enumerates the fixed set of parameter value types a node's
// parameter bag may hold (spec.md section 3.1).
type ParamKind int

const (
	ParamBool ParamKind = iota
	ParamInt
	ParamUint
	ParamFloat
	ParamString
	ParamVec2
	ParamVec3
	ParamVec4
)

// Param is one typed parameter value in a node's parameter bag.
type Param struct {
	Kind   ParamKind
	Bool   bool
	Int    int64
	Uint   uint64
	Float  float64
	String string
	Vec    [4]float64
}

// RecordPolicy selects STATIC vs DYNAMIC command-buffer recording for a
// node (spec.md section 4.9; Open Question 1 resolves the STATIC +
// hot-reload interaction by making this an explicit per-node choice,
// which the frame scheduler reads through Graph.RecordPolicyOf when it
// records, rather than a global policy).
type RecordPolicy int

const (
	RecordDynamic RecordPolicy = iota
	RecordStatic
)

// State is the node lifecycle state of spec.md section 4.5's state
// machine diagram.
type State int

const (
	StateUninit State = iota
	StateReady
	StateValid
	StateDirty
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateReady:
		return "ready"
	case StateValid:
		return "valid"
	case StateDirty:
		return "dirty"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Context is threaded through every phase function, giving a node access
// to its own slots, parameters, the event bus, and a scoped logger,
// without reaching for package globals.
type Context struct {
	ctx     context.Context
	node    *Instance
	graph   *Graph
	Logger  *log.Logger
	RecordPolicy RecordPolicy
	scope   *lifetime.Scope
}

func (c *Context) Context() context.Context { return c.ctx }
func (c *Context) Graph() *Graph            { return c.graph }
func (c *Context) Deps() Deps                { return c.graph.deps }
func (c *Context) NodeName() string          { return c.node.Name }

// Scope returns the active compile scope, or nil outside Setup/Compile (for
// example during Execute or Cleanup). Node types should attach every
// compile-time memory.Allocator.Allocate call to it via memory.Hint.Scope
// so a later phase failure releases everything the compile has acquired so
// far (spec.md section 4.3's compile-scope rollback invariant).
func (c *Context) Scope() *lifetime.Scope { return c.scope }

// Param returns the named parameter, or its zero value and false if unset.
func (c *Context) Param(name string) (Param, bool) {
	p, ok := c.node.params[name]
	return p, ok
}

// SetOutput publishes shared as the value of a declared output slot.
// Compile must call this for every required output before returning.
func (c *Context) SetOutput(slot string, shared *lifetime.Shared) {
	c.node.outputs.set(slot, shared)
}

// SetVariadicOutput registers one discovered member of a variadic output
// slot, in discovery order.
func (c *Context) SetVariadicOutput(prefix, key string, shared *lifetime.Shared) {
	c.node.outputs.addVariadicMember(prefix, key, shared)
}

// Input returns the resolved value of a connected input slot.
func (c *Context) Input(slot string) (*lifetime.Shared, error) {
	v, ok := c.node.inputs.get(slot)
	if !ok {
		return nil, corerr.MissingDependency(c.node.Name, slot)
	}
	return v, nil
}

// VariadicInputs returns the discovered sub-slot keys, in discovery order,
// for a variadic input slot.
func (c *Context) VariadicInputs(prefix string) []string {
	return c.node.inputs.variadicMembers(prefix)
}

// Publish fires an event through the graph's bus.
func (c *Context) Publish(ev eventbus.Event) { c.graph.bus.Publish(ev) }

// Phase functions a node type supplies. Setup runs once; Compile may run
// more than once (initial compile, then once per dirty re-compile);
// Execute runs once per frame a node contributes to; Cleanup runs exactly
// once, at graph teardown or aborted-compile rollback.
type (
	SetupFunc   func(c *Context) error
	CompileFunc func(c *Context) error
	ExecuteFunc func(c *Context, cmd interface{}, frameIndex uint64) error
	CleanupFunc func(c *Context)
)

// Type is a node-type tagged record: schema, capability/workload metadata,
// and the four phase functions, dispatched by variant rather than vtable
// (spec.md section 9, "deep inheritance & dynamic dispatch").
type Type struct {
	Name         string
	Inputs       []SlotSpec
	Outputs      []SlotSpec
	Params       map[string]Param // defaults
	Capabilities Capability
	Workload     Workload

	Setup    SetupFunc
	Discover DiscoverFunc
	Compile  CompileFunc
	Execute  ExecuteFunc
	Cleanup  CleanupFunc
}

// HasVariadicSlots reports whether this type needs to run before
// deferred-connection resolution (spec.md section 4.8 phase 2) — any type
// declaring a variadic slot does, since its sub-slots are discovered there.
func (t *Type) HasVariadicSlots() bool {
	for _, s := range t.Inputs {
		if s.Array == ArrayVariadic {
			return true
		}
	}
	for _, s := range t.Outputs {
		if s.Array == ArrayVariadic {
			return true
		}
	}
	return false
}

// Instance is one instantiation of a Type within a Graph.
type Instance struct {
	Name string
	Type *Type

	mu           sync.Mutex
	state        State
	recordPolicy RecordPolicy
	generation   uint64
	params       map[string]Param
	inputs       *slotTable
	outputs      *slotTable

	graph  *Graph
	logger *log.Logger

	cleanupHooks []func()
}

func newInstance(name string, t *Type, g *Graph) *Instance {
	params := make(map[string]Param, len(t.Params))
	for k, v := range t.Params {
		params[k] = v
	}
	in := newSlotTable()
	out := newSlotTable()
	for _, s := range t.Inputs {
		in.declare(s)
	}
	for _, s := range t.Outputs {
		out.declare(s)
	}
	return &Instance{
		Name:         name,
		Type:         t,
		state:        StateUninit,
		recordPolicy: RecordDynamic,
		params:       params,
		inputs:       in,
		outputs:      out,
		graph:        g,
		logger:       corelog.For("node", name),
	}
}

// State reports the node's current lifecycle state.
func (n *Instance) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// SetParam overrides a parameter value; if the node is Valid, the caller is
// responsible for following up with MarkDirty.
func (n *Instance) SetParam(name string, p Param) {
	n.mu.Lock()
	n.params[name] = p
	n.mu.Unlock()
}

// SetRecordPolicy selects STATIC vs DYNAMIC command recording for this
// instance (spec.md section 4.9; defaults to DYNAMIC).
func (n *Instance) SetRecordPolicy(p RecordPolicy) {
	n.mu.Lock()
	n.recordPolicy = p
	n.mu.Unlock()
}

// Output returns the value a Compile call published under slot, for
// callers outside the node's own Context (e.g. internal/app binding the
// swapchain node's output into the frame scheduler). Mirrors Context.Input
// for external use.
func (n *Instance) Output(slot string) (*lifetime.Shared, error) {
	v, ok := n.outputs.get(slot)
	if !ok {
		return nil, corerr.MissingDependency(n.Name, slot)
	}
	return v, nil
}

func (n *Instance) newContext(ctx context.Context, g *Graph, scope *lifetime.Scope) *Context {
	n.mu.Lock()
	rp := n.recordPolicy
	n.mu.Unlock()
	return &Context{ctx: ctx, node: n, graph: g, Logger: n.logger, RecordPolicy: rp, scope: scope}
}

// runSetup invokes the type's Setup phase and transitions Uninit → Ready.
// scope is the enclosing compile scope so Setup-time allocations roll back
// with the rest of a failed compile; it is nil outside a compile.
func (n *Instance) runSetup(ctx context.Context, g *Graph, scope *lifetime.Scope) error {
	n.mu.Lock()
	if n.state != StateUninit {
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	if n.Type.Setup != nil {
		if err := n.Type.Setup(n.newContext(ctx, g, scope)); err != nil {
			return err
		}
	}
	n.mu.Lock()
	n.state = StateReady
	n.mu.Unlock()
	return nil
}

// runCompile invokes the type's Compile phase and transitions
// Ready|Dirty → Valid. Idempotent against re-invocation while already
// Valid, as required by spec.md section 4.5. scope is the enclosing compile
// scope (see runSetup).
func (n *Instance) runCompile(ctx context.Context, g *Graph, scope *lifetime.Scope) error {
	n.mu.Lock()
	state := n.state
	n.mu.Unlock()
	if state != StateReady && state != StateDirty {
		return nil
	}

	if n.Type.Compile != nil {
		if err := n.Type.Compile(n.newContext(ctx, g, scope)); err != nil {
			return err
		}
	}
	if err := n.verifyRequiredOutputs(); err != nil {
		return err
	}

	n.mu.Lock()
	n.state = StateValid
	n.generation++
	n.mu.Unlock()
	return nil
}

// Generation counts successful Compile runs, incrementing each time. A
// RecordStatic node's cached command buffer is stale exactly when its
// generation has advanced since the buffer was recorded (spec.md section
// 4.9's STATIC policy: re-record only on shader/param change, not every
// frame).
func (n *Instance) Generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.generation
}

func (n *Instance) verifyRequiredOutputs() error {
	for _, s := range n.Type.Outputs {
		if s.Nullable {
			continue
		}
		if !n.outputs.connected(s.Name) {
			return corerr.MissingDependency(n.Name, s.Name)
		}
	}
	return nil
}

// runExecute invokes the type's Execute phase for frameIndex; a no-op if
// the type has no Execute function (work fully specified at compile).
func (n *Instance) runExecute(ctx context.Context, g *Graph, cmd interface{}, frameIndex uint64) error {
	if n.Type.Execute == nil {
		return nil
	}
	return n.Type.Execute(n.newContext(ctx, g, nil), cmd, frameIndex)
}

// runCleanup invokes the type's Cleanup phase exactly once, best-effort
// (errors are logged, never propagated, per spec.md section 7).
func (n *Instance) runCleanup(ctx context.Context, g *Graph) {
	n.mu.Lock()
	if n.state == StateDestroyed {
		n.mu.Unlock()
		return
	}
	n.state = StateDestroyed
	hooks := n.cleanupHooks
	n.cleanupHooks = nil
	n.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
	if n.Type.Cleanup != nil {
		n.Type.Cleanup(n.newContext(ctx, g, nil))
	}
}

// MarkDirty transitions a Valid node to Dirty, so the next compile pass
// re-runs its Compile phase. Dirtiness must be propagated to downstream
// consumers by the caller (the compiler's recompile driver).
func (n *Instance) MarkDirty() {
	n.mu.Lock()
	if n.state == StateValid {
		n.state = StateDirty
	}
	n.mu.Unlock()
}

// RegisterCleanupHook adds fn to the set run, in LIFO order, during
// Cleanup, ahead of the type's own Cleanup function.
func (n *Instance) RegisterCleanupHook(fn func()) {
	n.mu.Lock()
	n.cleanupHooks = append(n.cleanupHooks, fn)
	n.mu.Unlock()
}
