package types

import (
	"errors"
	"fmt"
	"sync"
)

// Phase is the registry lifecycle stage.
type Phase int

const (
	// PhaseDeclare accepts new types.
	PhaseDeclare Phase = iota
	// PhaseBind accepts methods, fields and constructors for declared types.
	PhaseBind
	// PhaseFrozen is read-only.
	PhaseFrozen
)

func (p Phase) String() string {
	switch p {
	case PhaseDeclare:
		return "declare"
	case PhaseBind:
		return "bind"
	case PhaseFrozen:
		return "frozen"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

var (
	ErrDuplicateType = errors.New("types: duplicate type")
	ErrUnknownType   = errors.New("types: unknown type")
	ErrWrongPhase    = errors.New("types: operation not allowed in current phase")
	ErrFieldConflict = errors.New("types: field conflicts with inherited declaration")
)

// ---------------------------------------------------------------------------
// Registry: the shared, read-mostly type table
// ---------------------------------------------------------------------------

// Registry owns every Type of one compilation universe. Types are declared in
// a batch, then members are bound, then the registry is frozen and shared by
// concurrent compilations. Readers never observe a partially constructed
// type: a Type is linearized before it is published under the write lock.
type Registry struct {
	mu     sync.RWMutex
	types  map[string]*Type
	order  []*Type
	base   *Type
	phase  Phase
	nextID int
}

// NewRegistry creates a registry whose universal base type is named base.
func NewRegistry(base string) *Registry {
	r := &Registry{types: make(map[string]*Type)}
	root := newType(0, base, nil)
	root.mro = []*Type{root}
	r.publish(root)
	r.base = root
	return r
}

func (r *Registry) publish(t *Type) {
	r.types[t.name] = t
	r.order = append(r.order, t)
	r.nextID++
}

// Base returns the universal base type.
func (r *Registry) Base() *Type { return r.base }

// Phase returns the current lifecycle stage.
func (r *Registry) Phase() Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase
}

// Frozen reports whether the registry is read-only.
func (r *Registry) Frozen() bool { return r.Phase() == PhaseFrozen }

// Declare registers a new type with parents in precedence order. No parents
// means the base type. A failed linearization leaves the registry unchanged.
func (r *Registry) Declare(name string, parents ...*Type) (*Type, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseDeclare {
		return nil, fmt.Errorf("declare %s: %w (phase %s)", name, ErrWrongPhase, r.phase)
	}
	if _, exists := r.types[name]; exists {
		return nil, fmt.Errorf("declare %s: %w", name, ErrDuplicateType)
	}
	if len(parents) == 0 {
		parents = []*Type{r.base}
	}
	for _, p := range parents {
		if p == nil || r.types[p.name] != p {
			return nil, fmt.Errorf("declare %s: parent %v: %w", name, p, ErrUnknownType)
		}
	}

	t := newType(r.nextID, name, append([]*Type(nil), parents...))
	mro, err := linearize(t, t.parents)
	if err != nil {
		return nil, err
	}
	t.mro = mro
	r.publish(t)
	return t, nil
}

// DeclareNamed is Declare with parents given by name.
func (r *Registry) DeclareNamed(name string, parents ...string) (*Type, error) {
	ps := make([]*Type, 0, len(parents))
	for _, pn := range parents {
		p := r.Lookup(pn)
		if p == nil {
			return nil, fmt.Errorf("declare %s: parent %q: %w", name, pn, ErrUnknownType)
		}
		ps = append(ps, p)
	}
	return r.Declare(name, ps...)
}

// Lookup returns the type registered under name, or nil.
func (r *Registry) Lookup(name string) *Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[name]
}

// All returns every type in declaration order.
func (r *Registry) All() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Type(nil), r.order...)
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// CloseDeclarations ends the declaration batch and opens member binding.
func (r *Registry) CloseDeclarations() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseDeclare {
		return fmt.Errorf("close declarations: %w (phase %s)", ErrWrongPhase, r.phase)
	}
	r.phase = PhaseBind
	return nil
}

// Freeze makes the registry read-only. Declarations are closed implicitly.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.phase = PhaseFrozen
	r.mu.Unlock()
}

func (r *Registry) checkBind(t *Type, what string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.phase != PhaseBind {
		return fmt.Errorf("bind %s: %w (phase %s)", what, ErrWrongPhase, r.phase)
	}
	if t == nil || r.types[t.name] != t {
		return fmt.Errorf("bind %s on %v: %w", what, t, ErrUnknownType)
	}
	return nil
}

// BindMethod adds an overload for name on t.
func (r *Registry) BindMethod(t *Type, name string, sig Signature) error {
	if err := r.checkBind(t, name); err != nil {
		return err
	}
	t.addMethod(name, sig)
	return nil
}

// BindField declares an instance field. Redeclaring an inherited field is
// only allowed with a subtype of the inherited field type.
func (r *Registry) BindField(t *Type, name string, ft *Type) error {
	if err := r.checkBind(t, name); err != nil {
		return err
	}
	for _, m := range t.mro[1:] {
		if inherited, ok := m.fieldOwn(name); ok && !ft.IsSubtypeOf(inherited) {
			return fmt.Errorf("bind field %s.%s %s: %w (%s.%s is %s)",
				t.name, name, ft, ErrFieldConflict, m.name, name, inherited)
		}
	}
	t.addField(name, ft)
	return nil
}

// BindConstructor adds a constructor overload on t.
func (r *Registry) BindConstructor(t *Type, sig Signature) error {
	if err := r.checkBind(t, "__init__"); err != nil {
		return err
	}
	t.addConstructor(sig)
	return nil
}

func (t *Type) fieldOwn(name string) (*Type, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ft, ok := t.fields[name]
	return ft, ok
}
