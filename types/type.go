// Package types models the source language's class hierarchy for static
// inference: type nodes with ordered multiple inheritance, C3 linearization,
// subtype and unification queries, and per-type capability tables mapping
// method and operator names to overload sets.
package types

import (
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Type: a node in the class hierarchy
// ---------------------------------------------------------------------------

// Type is a class in the inferred program. Identity is pointer identity; a
// Type is only ever created by a Registry and is fully linearized before it
// becomes visible to readers.
type Type struct {
	id      int
	name    string
	parents []*Type
	mro     []*Type
	root    *Type

	mu          sync.RWMutex
	methods     map[string]*OverloadSet
	fields      map[string]*Type
	constructor *OverloadSet
}

func newType(id int, name string, parents []*Type) *Type {
	t := &Type{
		id:      id,
		name:    name,
		parents: parents,
		methods: make(map[string]*OverloadSet),
		fields:  make(map[string]*Type),
	}
	if len(parents) == 0 {
		t.root = t
	} else {
		t.root = parents[0].root
	}
	return t
}

// ID returns the registry-assigned identifier.
func (t *Type) ID() int { return t.id }

// Name returns the display name.
func (t *Type) Name() string { return t.name }

// String implements fmt.Stringer.
func (t *Type) String() string {
	if t == nil {
		return "<unset>"
	}
	return t.name
}

// Parents returns the declared parents in precedence order.
func (t *Type) Parents() []*Type {
	out := make([]*Type, len(t.parents))
	copy(out, t.parents)
	return out
}

// MRO returns the method resolution order, starting with t itself.
func (t *Type) MRO() []*Type {
	out := make([]*Type, len(t.mro))
	copy(out, t.mro)
	return out
}

// MRONames is MRO rendered as names, mostly for diagnostics and tests.
func (t *Type) MRONames() []string {
	out := make([]string, len(t.mro))
	for i, m := range t.mro {
		out[i] = m.name
	}
	return out
}

// Root returns the universal base type this type descends from.
func (t *Type) Root() *Type { return t.root }

// IsRoot reports whether t is the universal base type.
func (t *Type) IsRoot() bool { return t.root == t }

// Describe renders "Name(Parent1, Parent2)".
func (t *Type) Describe() string {
	if len(t.parents) == 0 {
		return t.name
	}
	names := make([]string, len(t.parents))
	for i, p := range t.parents {
		names[i] = p.name
	}
	return t.name + "(" + strings.Join(names, ", ") + ")"
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

// LookupMethod walks the MRO and returns the overload set of the first type
// that declares name.
func (t *Type) LookupMethod(name string) (*OverloadSet, *Type) {
	for _, m := range t.mro {
		m.mu.RLock()
		set, ok := m.methods[name]
		m.mu.RUnlock()
		if ok {
			return set, m
		}
	}
	return nil, nil
}

// HasMethod reports whether name resolves anywhere in the MRO.
func (t *Type) HasMethod(name string) bool {
	set, _ := t.LookupMethod(name)
	return set != nil
}

// MethodType aggregates every overload declared for name across the MRO,
// most derived first, so that a resolver can pick the best signature among
// all reachable definitions.
func (t *Type) MethodType(name string) *OverloadSet {
	out := &OverloadSet{name: name}
	for _, m := range t.mro {
		m.mu.RLock()
		set, ok := m.methods[name]
		m.mu.RUnlock()
		if ok {
			out.sigs = append(out.sigs, set.Signatures()...)
		}
	}
	if len(out.sigs) == 0 {
		return nil
	}
	return out
}

// DeclaredMethods returns the names declared directly on t.
func (t *Type) DeclaredMethods() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.methods))
	for n := range t.methods {
		names = append(names, n)
	}
	return names
}

// Field resolves a declared instance field through the MRO.
func (t *Type) Field(name string) (*Type, bool) {
	for _, m := range t.mro {
		m.mu.RLock()
		ft, ok := m.fields[name]
		m.mu.RUnlock()
		if ok {
			return ft, true
		}
	}
	return nil, false
}

// Constructor returns the constructor overloads of the nearest type in the
// MRO that declares any.
func (t *Type) Constructor() *OverloadSet {
	for _, m := range t.mro {
		m.mu.RLock()
		c := m.constructor
		m.mu.RUnlock()
		if c != nil {
			return c
		}
	}
	return nil
}

func (t *Type) addMethod(name string, sig Signature) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.methods[name]
	if !ok {
		set = &OverloadSet{name: name}
		t.methods[name] = set
	}
	set.add(sig)
}

func (t *Type) addField(name string, ft *Type) {
	t.mu.Lock()
	t.fields[name] = ft
	t.mu.Unlock()
}

func (t *Type) addConstructor(sig Signature) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.constructor == nil {
		t.constructor = &OverloadSet{name: "__init__"}
	}
	t.constructor.add(sig)
}
