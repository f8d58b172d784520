package types

import (
	"errors"
	"reflect"
	"testing"
)

func mustDeclare(t *testing.T, r *Registry, name string, parents ...*Type) *Type {
	t.Helper()
	ty, err := r.Declare(name, parents...)
	if err != nil {
		t.Fatalf("Declare(%s) failed: %v", name, err)
	}
	return ty
}

func TestMROMultipleParents(t *testing.T) {
	r := NewRegistry("object")
	a := mustDeclare(t, r, "A")
	b := mustDeclare(t, r, "B")
	c := mustDeclare(t, r, "C", a, b)

	want := []string{"C", "A", "B", "object"}
	if got := c.MRONames(); !reflect.DeepEqual(got, want) {
		t.Errorf("MRO(C) = %v, want %v", got, want)
	}
}

func TestMRODiamond(t *testing.T) {
	r := NewRegistry("object")
	a := mustDeclare(t, r, "A")
	b := mustDeclare(t, r, "B", a)
	c := mustDeclare(t, r, "C", a)
	d := mustDeclare(t, r, "D", b, c)

	want := []string{"D", "B", "C", "A", "object"}
	if got := d.MRONames(); !reflect.DeepEqual(got, want) {
		t.Errorf("MRO(D) = %v, want %v", got, want)
	}
}

func TestMROChainAndPrecedenceConflict(t *testing.T) {
	r := NewRegistry("object")
	x := mustDeclare(t, r, "X")
	y := mustDeclare(t, r, "Y", x)
	z := mustDeclare(t, r, "Z", y)

	want := []string{"Z", "Y", "X", "object"}
	if got := z.MRONames(); !reflect.DeepEqual(got, want) {
		t.Errorf("MRO(Z) = %v, want %v", got, want)
	}

	if _, err := r.Declare("W", x, y); err == nil {
		t.Error("Declare(W(X, Y)) should fail: X cannot precede its own subclass Y")
	}
}

func TestMROContradictoryHierarchy(t *testing.T) {
	r := NewRegistry("object")
	a := mustDeclare(t, r, "A")
	b := mustDeclare(t, r, "B")
	x := mustDeclare(t, r, "X", a, b)
	y := mustDeclare(t, r, "Y", b, a)
	before := r.Len()

	_, err := r.Declare("Z", x, y)
	var lerr *LinearizationError
	if !errors.As(err, &lerr) {
		t.Fatalf("Declare(Z(X, Y)) error = %v, want *LinearizationError", err)
	}
	if lerr.Type != "Z" {
		t.Errorf("LinearizationError.Type = %q, want Z", lerr.Type)
	}
	if r.Len() != before {
		t.Errorf("registry grew from %d to %d after failed declaration", before, r.Len())
	}
	if r.Lookup("Z") != nil {
		t.Error("Z should not be registered")
	}
}

func TestMRODuplicateParent(t *testing.T) {
	r := NewRegistry("object")
	a := mustDeclare(t, r, "A")
	var lerr *LinearizationError
	if _, err := r.Declare("B", a, a); !errors.As(err, &lerr) {
		t.Errorf("Declare(B(A, A)) error = %v, want *LinearizationError", err)
	}
}

func TestMROProperties(t *testing.T) {
	r, _, err := NewBuiltinRegistry()
	if err != nil {
		t.Fatalf("NewBuiltinRegistry: %v", err)
	}

	for _, ty := range r.All() {
		mro := ty.MRO()
		if mro[0] != ty {
			t.Errorf("MRO(%s)[0] = %s", ty, mro[0])
		}

		seen := map[*Type]int{}
		for i, m := range mro {
			if _, dup := seen[m]; dup {
				t.Errorf("MRO(%s) lists %s twice", ty, m)
			}
			seen[m] = i
		}
		for _, anc := range ty.AssignableTypes() {
			if _, ok := seen[anc]; !ok {
				t.Errorf("MRO(%s) is missing ancestor %s", ty, anc)
			}
		}
		// monotonic: every type precedes its own ancestors
		for _, m := range mro {
			for _, anc := range m.MRO()[1:] {
				if seen[anc] < seen[m] {
					t.Errorf("MRO(%s): %s appears before its subclass %s", ty, anc, m)
				}
			}
		}

		if ty.IsRoot() {
			continue
		}
		again, err := linearize(ty, ty.parents)
		if err != nil {
			t.Errorf("relinearize %s: %v", ty, err)
			continue
		}
		if !reflect.DeepEqual(again, mro) {
			t.Errorf("MRO(%s) not idempotent: %v vs %v", ty, again, mro)
		}
	}
}
