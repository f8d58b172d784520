package types

import (
	"strings"
	"testing"
)

func builtins(t *testing.T) (*Registry, *Builtins) {
	t.Helper()
	r, b, err := NewBuiltinRegistry()
	if err != nil {
		t.Fatalf("NewBuiltinRegistry: %v", err)
	}
	return r, b
}

func TestIsSubtypeOf(t *testing.T) {
	_, b := builtins(t)

	tests := []struct {
		a, b *Type
		want bool
	}{
		{b.Bool, b.Int, true},
		{b.Int, b.Bool, false},
		{b.Int, b.Object, true},
		{b.Object, b.Int, false},
		{b.KeyError, b.Exception, true},
		{b.KeyError, b.BaseException, true},
		{b.KeyError, b.IndexError, false},
		{b.Generator, b.Iterator, true},
		{b.Str, b.Str, true},
	}
	for _, tt := range tests {
		if got := tt.a.IsSubtypeOf(tt.b); got != tt.want {
			t.Errorf("%s.IsSubtypeOf(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIsSubtypeOfDiamond(t *testing.T) {
	r := NewRegistry("object")
	a := mustDeclare(t, r, "A")
	left := mustDeclare(t, r, "Left", a)
	right := mustDeclare(t, r, "Right", a)
	bottom := mustDeclare(t, r, "Bottom", left, right)
	other := mustDeclare(t, r, "Other")

	if !bottom.IsSubtypeOf(right) {
		t.Error("Bottom should be a subtype of Right")
	}
	if !bottom.IsSubtypeOf(a) {
		t.Error("Bottom should be a subtype of A")
	}
	if bottom.IsSubtypeOf(other) {
		t.Error("Bottom should not be a subtype of Other")
	}

	got := bottom.AssignableTypes()
	if len(got) != 5 {
		t.Errorf("AssignableTypes(Bottom) = %v, want 5 distinct types", got)
	}
}

func TestUnify(t *testing.T) {
	_, b := builtins(t)

	tests := []struct {
		name string
		a, b *Type
		want *Type
	}{
		{"same", b.Int, b.Int, b.Int},
		{"subtype returns supertype", b.Bool, b.Int, b.Int},
		{"supertype side", b.Int, b.Bool, b.Int},
		{"with base", b.Int, b.Object, b.Object},
		{"unrelated floors at base", b.Int, b.Str, b.Object},
		{"common exception ancestor", b.KeyError, b.IndexError, b.LookupError},
		{"deeper common ancestor", b.KeyError, b.ZeroDivisionError, b.Exception},
		{"generator and iterator", b.Generator, b.Iterator, b.Iterator},
		{"unset stays unset", nil, b.Int, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Unify(tt.a, tt.b); got != tt.want {
				t.Errorf("Unify(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestUnifyIsCommonSupertype(t *testing.T) {
	r, _ := builtins(t)
	all := r.All()
	for _, a := range all {
		for _, c := range all {
			u := Unify(a, c)
			if u == nil {
				t.Fatalf("Unify(%s, %s) = nil", a, c)
			}
			if !a.IsSubtypeOf(u) || !c.IsSubtypeOf(u) {
				t.Errorf("Unify(%s, %s) = %s is not a supertype of both", a, c, u)
			}
			if rev := Unify(c, a); rev != u {
				t.Errorf("Unify not commutative: (%s, %s) = %s, reversed = %s", a, c, u, rev)
			}
		}
	}
}

func TestUnifyMultipleInheritance(t *testing.T) {
	r := NewRegistry("object")
	a := mustDeclare(t, r, "A")
	bb := mustDeclare(t, r, "B")
	c := mustDeclare(t, r, "C", a, bb)
	d := mustDeclare(t, r, "D", bb)

	if got := Unify(c, d); got != bb {
		t.Errorf("Unify(C, D) = %s, want B", got)
	}
	if got := Unify(c, a); got != a {
		t.Errorf("Unify(C, A) = %s, want A", got)
	}
}

func TestDepth(t *testing.T) {
	_, b := builtins(t)
	if d := b.Object.Depth(); d != 0 {
		t.Errorf("Depth(object) = %d, want 0", d)
	}
	if d := b.KeyError.Depth(); d != 4 {
		t.Errorf("Depth(KeyError) = %d, want 4", d)
	}
}

func TestUnifySkipsBaseBeforeSharedParent(t *testing.T) {
	r := NewRegistry("object")
	shared := mustDeclare(t, r, "Shared")
	mixin := mustDeclare(t, r, "Mixin")
	left := mustDeclare(t, r, "Left", shared)
	right := mustDeclare(t, r, "Right", mixin, shared)

	order := right.AssignableTypes()
	var names []string
	for _, a := range order {
		names = append(names, a.Name())
	}
	if got := strings.Join(names, " "); got != "Right Mixin object Shared" {
		t.Fatalf("AssignableTypes(Right) = %s", got)
	}

	if got := Unify(left, right); got != shared {
		t.Errorf("Unify(Left, Right) = %s, want Shared", got)
	}
	if got := Unify(right, left); got != shared {
		t.Errorf("Unify(Right, Left) = %s, want Shared", got)
	}
	if got := Unify(left, mixin); got != r.Base() {
		t.Errorf("Unify(Left, Mixin) = %s, want object", got)
	}
}
