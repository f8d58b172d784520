package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/stackflow/flow"
	"github.com/chazu/stackflow/types"
	"github.com/chazu/stackflow/wire"
)

func unit(name string) *wire.Unit {
	return &wire.Unit{
		Name:      name,
		Version:   "3.9",
		Locals:    1,
		Constants: []wire.Constant{{Type: "int"}},
		Code: []wire.Instr{
			{Op: "LOAD_CONST"},
			{Op: "STORE_FAST"},
			{Op: "LOAD_FAST"},
			{Op: "RETURN_VALUE"},
		},
	}
}

func summary(name string) *wire.Summary {
	return &wire.Summary{
		Function: name,
		Version:  "3.9",
		Visits:   1,
		Points:   []wire.Point{{Index: 0, Op: "LOAD_CONST 0", Reachable: true, Stack: []string{}, Locals: []string{"-"}}},
	}
}

func registry(t *testing.T) (*types.Registry, *types.Builtins) {
	t.Helper()
	reg, b, err := types.NewBuiltinRegistry()
	if err != nil {
		t.Fatal(err)
	}
	return reg, b
}

func TestKeyFor(t *testing.T) {
	reg, _ := registry(t)
	a, err := KeyFor(unit("f"), reg)
	if err != nil {
		t.Fatal(err)
	}
	same, _ := KeyFor(unit("f"), reg)
	other, _ := KeyFor(unit("g"), reg)
	if a != same {
		t.Error("equal units have different keys")
	}
	if a == other {
		t.Error("different units share a key")
	}

	reg2 := types.NewRegistry("object")
	b2, err := types.Bootstrap(reg2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg2.Declare("Widget"); err != nil {
		t.Fatal(err)
	}
	if err := reg2.CloseDeclarations(); err != nil {
		t.Fatal(err)
	}
	if err := b2.Bind(reg2); err != nil {
		t.Fatal(err)
	}
	reg2.Freeze()
	if k, _ := KeyFor(unit("f"), reg2); k == a {
		t.Error("a different registry produced the same key")
	}
	if len(a.String()) != 64 || len(a.Short()) != 12 {
		t.Errorf("key renders as %q", a)
	}
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	var k1, k2 Key
	k1[0], k2[0] = 1, 2

	if _, ok, err := s.Get(ctx, k1); ok || err != nil {
		t.Fatalf("Get on empty store = %v, %v", ok, err)
	}
	if err := s.Put(ctx, k1, summary("f")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := s.Get(ctx, k1)
	if err != nil || !ok {
		t.Fatalf("Get after Put = %v, %v", ok, err)
	}
	if got.Function != "f" || got.Points[0].Locals[0] != "-" {
		t.Errorf("Get = %+v", got)
	}
	if err := s.Put(ctx, k1, summary("f2")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if got, _, _ := s.Get(ctx, k1); got.Function != "f2" {
		t.Errorf("overwritten summary = %q", got.Function)
	}
	if _, ok, _ := s.Get(ctx, k2); ok {
		t.Error("hit for a key never stored")
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	testStore(t, m)
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
	m.Close()
	if _, _, err := m.Get(context.Background(), Key{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	testStore(t, s)

	ctx := context.Background()
	if n, err := s.Len(ctx); err != nil || n != 1 {
		t.Errorf("Len = %d, %v; want 1", n, err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	var k Key
	k[0] = 1
	if got, ok, err := reopened.Get(ctx, k); err != nil || !ok || got.Function != "f2" {
		t.Errorf("summary did not persist: %v %v %v", got, ok, err)
	}
	n, err := reopened.Prune(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Errorf("Prune = %d, %v; want 1", n, err)
	}
}

func TestAnalyzerUsesStore(t *testing.T) {
	reg, b := registry(t)
	builder, err := flow.NewBuilder(reg, b, flow.Options{})
	if err != nil {
		t.Fatal(err)
	}
	store := NewMemory()
	a := NewAnalyzer(builder, reg, store, 2)

	bad := unit("bad")
	bad.Code = []wire.Instr{{Op: "POP_TOP"}, {Op: "LOAD_CONST"}, {Op: "RETURN_VALUE"}}
	units := []*wire.Unit{unit("f"), bad, unit("g")}

	ctx := context.Background()
	first, err := a.AnalyzeAll(ctx, units)
	if err != nil {
		t.Fatalf("AnalyzeAll: %v", err)
	}
	for _, i := range []int{0, 2} {
		r := first[i]
		if r.Err != nil || r.Cached || r.Graph == nil || r.Summary == nil {
			t.Errorf("first run unit %d = %+v", i, r)
		}
	}
	var uf *flow.StackUnderflowError
	if !errors.As(first[1].Err, &uf) {
		t.Errorf("bad unit error = %v, want *StackUnderflowError", first[1].Err)
	}
	if store.Len() != 2 {
		t.Errorf("store holds %d summaries, want 2", store.Len())
	}

	second, err := a.AnalyzeAll(ctx, units)
	if err != nil {
		t.Fatalf("AnalyzeAll: %v", err)
	}
	if !second[0].Cached || second[0].Graph != nil {
		t.Errorf("second run unit 0 = %+v, want a cache hit", second[0])
	}
	if got := second[0].Summary.Points[3].Stack; len(got) != 1 || got[0] != "int" {
		t.Errorf("cached stack at return = %v", got)
	}
	if second[1].Err == nil || second[1].Cached {
		t.Error("a failed unit was cached")
	}
}

func TestAnalyzerWithoutStore(t *testing.T) {
	reg, b := registry(t)
	builder, err := flow.NewBuilder(reg, b, flow.Options{})
	if err != nil {
		t.Fatal(err)
	}
	a := NewAnalyzer(builder, reg, nil, 0)
	for range 2 {
		res, err := a.AnalyzeAll(context.Background(), []*wire.Unit{unit("f")})
		if err != nil {
			t.Fatal(err)
		}
		if res[0].Cached || res[0].Graph == nil {
			t.Errorf("result = %+v, want a fresh analysis", res[0])
		}
	}
}
