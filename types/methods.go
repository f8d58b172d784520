package types

import (
	"strings"
	"sync"
)

// Signature is one overload: positional parameter types (excluding the
// receiver) and a return type. When Variadic is set the last parameter type
// matches any number of trailing arguments.
type Signature struct {
	Params   []*Type
	Variadic bool
	Return   *Type
}

func (s Signature) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		if s.Variadic && i == len(s.Params)-1 {
			sb.WriteByte('*')
		}
		sb.WriteString(p.String())
	}
	sb.WriteString(") -> ")
	sb.WriteString(s.Return.String())
	return sb.String()
}

// accepts reports whether args can be passed to s. An unset argument type
// only matches a parameter typed as the universal base type.
func (s Signature) accepts(args []*Type) bool {
	n := len(s.Params)
	if s.Variadic {
		if len(args) < n-1 {
			return false
		}
	} else if len(args) != n {
		return false
	}
	for i, a := range args {
		p := s.param(i)
		if a == nil {
			if !p.IsRoot() {
				return false
			}
			continue
		}
		if !a.IsSubtypeOf(p) {
			return false
		}
	}
	return true
}

func (s Signature) param(i int) *Type {
	if s.Variadic && i >= len(s.Params)-1 {
		return s.Params[len(s.Params)-1]
	}
	return s.Params[i]
}

// moreSpecific reports whether every parameter of s is a subtype of the
// corresponding parameter of o for the given arity.
func (s Signature) moreSpecific(o Signature, arity int) bool {
	for i := 0; i < arity; i++ {
		if !s.param(i).IsSubtypeOf(o.param(i)) {
			return false
		}
	}
	return true
}

// OverloadSet groups the signatures declared under one name.
type OverloadSet struct {
	name string
	mu   sync.RWMutex
	sigs []Signature
}

// NewOverloadSet builds a standalone set, mainly for callers assembling
// ad-hoc callable types.
func NewOverloadSet(name string, sigs ...Signature) *OverloadSet {
	return &OverloadSet{name: name, sigs: append([]Signature(nil), sigs...)}
}

// Name returns the method or operator name.
func (o *OverloadSet) Name() string { return o.name }

// Signatures returns a copy of the declared signatures.
func (o *OverloadSet) Signatures() []Signature {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]Signature(nil), o.sigs...)
}

// Len returns the number of overloads.
func (o *OverloadSet) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.sigs)
}

func (o *OverloadSet) add(sig Signature) {
	o.mu.Lock()
	o.sigs = append(o.sigs, sig)
	o.mu.Unlock()
}

// Resolve picks the signature for a call with the given argument types.
// Only a unique applicable signature, or one strictly more specific than
// every other applicable signature, resolves; anything else reports false so
// the caller can fall back to the base type.
func (o *OverloadSet) Resolve(args []*Type) (Signature, bool) {
	if o == nil {
		return Signature{}, false
	}
	var applicable []Signature
	for _, s := range o.Signatures() {
		if s.accepts(args) {
			applicable = append(applicable, s)
		}
	}
	switch len(applicable) {
	case 0:
		return Signature{}, false
	case 1:
		return applicable[0], true
	}

	for i, s := range applicable {
		best := true
		for j, other := range applicable {
			if i == j {
				continue
			}
			if !s.moreSpecific(other, len(args)) || sameParams(s, other, len(args)) {
				best = false
				break
			}
		}
		if best {
			return s, true
		}
	}
	return Signature{}, false
}

// ReturnFor resolves args and returns the selected signature's return type,
// or nil when resolution fails.
func (o *OverloadSet) ReturnFor(args []*Type) *Type {
	sig, ok := o.Resolve(args)
	if !ok {
		return nil
	}
	return sig.Return
}

func sameParams(a, b Signature, arity int) bool {
	for i := 0; i < arity; i++ {
		if a.param(i) != b.param(i) {
			return false
		}
	}
	return true
}
