package types

import (
	"github.com/hashicorp/go-set/v3"
)

// IsSubtypeOf reports whether other is t or one of t's ancestors. The walk
// follows declared parents depth first and never revisits a shared ancestor.
func (t *Type) IsSubtypeOf(other *Type) bool {
	if t == nil || other == nil {
		return false
	}
	if t == other {
		return true
	}
	visited := set.New[*Type](len(t.mro))
	var walk func(*Type) bool
	walk = func(c *Type) bool {
		if c == other {
			return true
		}
		if !visited.Insert(c) {
			return false
		}
		for _, p := range c.parents {
			if walk(p) {
				return true
			}
		}
		return false
	}
	return walk(t)
}

// AssignableTypes returns t followed by every transitive ancestor, each once,
// in depth-first declaration order.
func (t *Type) AssignableTypes() []*Type {
	seen := set.New[*Type](len(t.mro))
	var out []*Type
	var walk func(*Type)
	walk = func(c *Type) {
		if !seen.Insert(c) {
			return
		}
		out = append(out, c)
		for _, p := range c.parents {
			walk(p)
		}
	}
	walk(t)
	return out
}

// Depth is the length of the longest parent chain from t to the root.
func (t *Type) Depth() int {
	d := 0
	for _, p := range t.parents {
		if pd := p.Depth() + 1; pd > d {
			d = pd
		}
	}
	return d
}

// Unify returns the most specific type both a and b can be assigned to.
// When either side is unset the result is unset. The universal base type is
// the floor.
func Unify(a, b *Type) *Type {
	if a == nil || b == nil {
		return nil
	}
	if a == b {
		return a
	}
	for _, candidate := range b.AssignableTypes() {
		if !a.IsSubtypeOf(candidate) && !candidate.IsSubtypeOf(a) {
			continue
		}
		if candidate.IsRoot() {
			continue
		}
		if candidate.IsSubtypeOf(a) {
			return a
		}
		return candidate
	}
	for _, p := range a.parents {
		if u := Unify(p, b); !u.IsRoot() {
			return u
		}
	}
	return a.root
}

// UnifyAll folds Unify over ts. It returns nil for an empty slice.
func UnifyAll(ts ...*Type) *Type {
	if len(ts) == 0 {
		return nil
	}
	out := ts[0]
	for _, t := range ts[1:] {
		out = Unify(out, t)
	}
	return out
}
