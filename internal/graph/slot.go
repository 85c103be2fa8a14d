package graph

import "github.com/spaghettifunk/vixen/internal/lifetime"

// TypeTag identifies the kind of value a slot carries, used for the static
// compatibility check on connections (spec.md section 3.1).
type TypeTag string

// Role distinguishes a slot that merely orders execution (dependency) from
// one that actually carries a resource value (data).
type Role int

const (
	RoleData Role = iota
	RoleDependency
)

// Mutability controls how a connected node may access the slot's resource,
// and is consulted by wave computation to detect conflicting peers.
type Mutability int

const (
	MutabilityRO Mutability = iota
	MutabilityWO
	MutabilityRW
)

func (m Mutability) conflictsWith(o Mutability) bool {
	return m == MutabilityRW || o == MutabilityRW
}

// SlotScope says whether a slot's resource may outlive the node that
// produced it (Graph) or must not escape it (Node).
type SlotScope int

const (
	ScopeNode SlotScope = iota
	ScopeGraph
)

// ArrayMode distinguishes a single-valued slot from a variadic or
// fixed-size array slot (spec.md section 4.6).
type ArrayMode int

const (
	ArraySingle ArrayMode = iota
	ArrayVariadic
	ArrayFixed
)

// SlotSpec is the static schema of one input or output slot, declared by a
// node type and never mutated once the node type is registered.
type SlotSpec struct {
	Name       string
	Type       TypeTag
	Nullable   bool
	Role       Role
	Mutability Mutability
	Scope      SlotScope
	Array      ArrayMode
	FixedCount int // only meaningful when Array == ArrayFixed
}

// slotValue is a single concrete resource behind a slot. For a variadic
// slot, a node carries one entry per discovered sub-slot key.
type slotValue struct {
	shared *lifetime.Shared
}

// slotTable holds one node's runtime input or output slots, keyed by name
// for static slots and by "name.key" for variadic sub-slots.
type slotTable struct {
	specs  map[string]SlotSpec
	values map[string]slotValue
	// variadicKeys preserves discovery order per variadic slot name, since
	// downstream consumers (e.g. descriptor layout builders) need a stable
	// binding order, not map iteration order.
	variadicKeys map[string][]string
}

func newSlotTable() *slotTable {
	return &slotTable{
		specs:        make(map[string]SlotSpec),
		values:       make(map[string]slotValue),
		variadicKeys: make(map[string][]string),
	}
}

func (t *slotTable) declare(spec SlotSpec) {
	t.specs[spec.Name] = spec
	if spec.Array == ArrayVariadic {
		if _, ok := t.variadicKeys[spec.Name]; !ok {
			t.variadicKeys[spec.Name] = nil
		}
	}
}

func (t *slotTable) set(name string, shared *lifetime.Shared) {
	t.values[name] = slotValue{shared: shared}
}

func (t *slotTable) get(name string) (*lifetime.Shared, bool) {
	v, ok := t.values[name]
	if !ok {
		return nil, false
	}
	return v.shared, true
}

// addVariadicMember registers key as a discovered sub-slot of the variadic
// slot prefix, preserving discovery order.
func (t *slotTable) addVariadicMember(prefix, key string, shared *lifetime.Shared) {
	full := prefix + "." + key
	t.variadicKeys[prefix] = append(t.variadicKeys[prefix], key)
	t.set(full, shared)
}

// variadicMembers returns the discovered keys for a variadic slot prefix in
// discovery order.
func (t *slotTable) variadicMembers(prefix string) []string {
	return t.variadicKeys[prefix]
}

// connected reports whether name has a value, considering that a variadic
// slot is "connected" once it has at least one discovered member.
func (t *slotTable) connected(name string) bool {
	spec, ok := t.specs[name]
	if !ok {
		return false
	}
	if spec.Array == ArrayVariadic {
		return len(t.variadicKeys[name]) > 0
	}
	_, ok = t.values[name]
	return ok
}
