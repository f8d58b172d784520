package flow

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/stackflow/frame"
	"github.com/chazu/stackflow/pkg/bytecode"
	"github.com/chazu/stackflow/types"
)

type fixture struct {
	builder *Builder
	b       *types.Builtins
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	reg, b, err := types.NewBuiltinRegistry()
	if err != nil {
		t.Fatalf("NewBuiltinRegistry: %v", err)
	}
	builder, err := NewBuilder(reg, b, opts)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return &fixture{builder: builder, b: b}
}

// function returns a unit with constants [int, str, None] and the names
// AssertionError, flag and KeyError.
func (f *fixture) function(locals int) *Function {
	return &Function{
		Name:      "f",
		Version:   bytecode.Python39,
		Locals:    locals,
		Constants: []Const{{Type: f.b.Int}, {Type: f.b.Str}, {Type: f.b.None}},
		Names:     []string{"AssertionError", "flag", "KeyError"},
	}
}

func (f *fixture) build(t *testing.T, fn *Function, src string) *Graph {
	t.Helper()
	g, err := f.builder.Build(fn, bytecode.MustAssemble(src))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func names(vs []*frame.ValueSource) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		if v == nil {
			parts[i] = "-"
		} else {
			parts[i] = v.Type.Name()
		}
	}
	return strings.Join(parts, " ")
}

// describe renders a snapshot as "[stack] [locals]".
func describe(m *frame.Metadata) string {
	return "[" + names(m.Stack()) + "] [" + names(m.Locals()) + "]"
}

func checkFrames(t *testing.T, g *Graph, want []string) {
	t.Helper()
	if len(want) != len(g.Code) {
		t.Fatalf("have %d expectations for %d instructions", len(want), len(g.Code))
	}
	for i, w := range want {
		if got := describe(g.MetadataAt(i)); got != w {
			t.Errorf("instruction %d (%s): got %s, want %s", i, g.Code[i], got, w)
		}
	}
}

const handlerFrame = "NoneType int NoneType traceback BaseException type"

func TestBasicStackOps(t *testing.T) {
	f := newFixture(t, Options{})
	g := f.build(t, f.function(0), `
		LOAD_CONST 0
		LOAD_CONST 1
		ROT_TWO
		BUILD_TUPLE 2
		RETURN_VALUE
	`)
	checkFrames(t, g, []string{
		"[] []",
		"[int] []",
		"[int str] []",
		"[str int] []",
		"[tuple] []",
	})
}

func TestLocalsFollowAssignmentOrder(t *testing.T) {
	f := newFixture(t, Options{})
	g := f.build(t, f.function(2), `
		LOAD_CONST 0
		STORE_FAST 0
		LOAD_CONST 1
		STORE_FAST 1
		LOAD_FAST 0
		LOAD_FAST 1
		BUILD_TUPLE 2
		RETURN_VALUE
	`)
	checkFrames(t, g, []string{
		"[] [- -]",
		"[int] [- -]",
		"[] [int -]",
		"[str] [int -]",
		"[] [int str]",
		"[int] [int str]",
		"[int str] [int str]",
		"[tuple] [int str]",
	})
}

const sumLoop = `
	LOAD_CONST 0
	STORE_FAST 0
	LOAD_CONST 0
	LOAD_CONST 0
	LOAD_CONST 0
	BUILD_TUPLE 3
	GET_ITER
loop:
	FOR_ITER done
	LOAD_FAST 0
	BINARY_ADD
	STORE_FAST 0
	JUMP_ABSOLUTE loop
done:
	NOP
	LOAD_FAST 0
	RETURN_VALUE
`

func TestLoopConverges(t *testing.T) {
	f := newFixture(t, Options{})
	g := f.build(t, f.function(1), sumLoop)
	checkFrames(t, g, []string{
		"[] [-]",
		"[int] [-]",
		"[] [int]",
		"[int] [int]",
		"[int int] [int]",
		"[int int int] [int]",
		"[tuple] [int]",
		"[iterator] [object]",
		"[iterator object] [object]",
		"[iterator object object] [object]",
		"[iterator object] [object]",
		"[iterator] [object]",
		"[] [object]",
		"[] [object]",
		"[object] [object]",
	})
	if g.Visits() != 6 {
		t.Errorf("Visits = %d, want 6", g.Visits())
	}
}

func TestLoopCarriedValueUnifies(t *testing.T) {
	f := newFixture(t, Options{})
	g := f.build(t, f.function(1), `
		LOAD_CONST 0
		STORE_FAST 0
	header:
		LOAD_GLOBAL 1
		POP_JUMP_IF_FALSE exit
		LOAD_GLOBAL 1
		STORE_FAST 0
		JUMP_ABSOLUTE header
	exit:
		LOAD_FAST 0
		RETURN_VALUE
	`)
	header, _ := g.MetadataAt(2).Local(0)
	want := types.Unify(f.b.Int, f.b.Object)
	if header.TypeOf() != want {
		t.Errorf("loop header local = %v, want %v", header.TypeOf(), want)
	}
	if got := header.Origins; len(got) != 2 || got[0] != 0 || got[1] != 4 {
		t.Errorf("loop header origins = %v, want [0 4]", got)
	}
}

func TestIfStatementThatExitsEarly(t *testing.T) {
	f := newFixture(t, Options{})
	g := f.build(t, f.function(1), `
		LOAD_CONST 0
		STORE_FAST 0
		LOAD_FAST 0
		LOAD_CONST 0
		COMPARE_OP 0
		POP_JUMP_IF_FALSE rest
		LOAD_CONST 1
		STORE_FAST 0
		LOAD_FAST 0
		RETURN_VALUE
	rest:
		NOP
		LOAD_CONST 0
		RETURN_VALUE
	`)
	checkFrames(t, g, []string{
		"[] [-]",
		"[int] [-]",
		"[] [int]",
		"[int] [int]",
		"[int int] [int]",
		"[bool] [int]",
		"[] [int]",
		"[str] [int]",
		"[] [str]",
		"[str] [str]",
		"[] [int]",
		"[] [int]",
		"[int] [int]",
	})
}

func TestIfStatementThatFallsThrough(t *testing.T) {
	f := newFixture(t, Options{})
	g := f.build(t, f.function(1), `
		LOAD_CONST 0
		STORE_FAST 0
		LOAD_FAST 0
		LOAD_CONST 0
		COMPARE_OP 0
		POP_JUMP_IF_FALSE rest
		LOAD_CONST 1
		STORE_FAST 0
	rest:
		NOP
		LOAD_CONST 0
		RETURN_VALUE
	`)
	for i, want := range map[int]string{8: "[] [object]", 10: "[int] [object]"} {
		if got := describe(g.MetadataAt(i)); got != want {
			t.Errorf("instruction %d: got %s, want %s", i, got, want)
		}
	}
}

func TestExceptHandler(t *testing.T) {
	f := newFixture(t, Options{})
	g := f.build(t, f.function(0), `
		SETUP_FINALLY handler
		LOAD_CONST 0
		LOAD_CONST 0
		COMPARE_OP 0
		POP_JUMP_IF_FALSE raise
		POP_BLOCK
		LOAD_CONST 1
		RETURN_VALUE
	raise:
		LOAD_ASSERTION_ERROR
		RAISE_VARARGS 1
	handler:
		DUP_TOP
		LOAD_GLOBAL 0
		JUMP_IF_NOT_EXC_MATCH reraise
		POP_TOP
		POP_TOP
		POP_TOP
		POP_EXCEPT
		LOAD_CONST 1
		RETURN_VALUE
	reraise:
		RERAISE
	`)
	checkFrames(t, g, []string{
		"[] []",
		"[] []",
		"[int] []",
		"[int int] []",
		"[bool] []",
		"[] []",
		"[] []",
		"[str] []",
		"[] []",
		"[type] []",
		"[" + handlerFrame + "] []",
		"[" + handlerFrame + " type] []",
		"[" + handlerFrame + " type type] []",
		"[" + handlerFrame + "] []",
		"[NoneType int NoneType traceback BaseException] []",
		"[NoneType int NoneType traceback] []",
		"[NoneType int NoneType] []",
		"[] []",
		"[str] []",
		"[" + handlerFrame + "] []",
	})

	raised := g.MetadataAt(9).Peek(0)
	if raised.Refers != f.b.AssertionError {
		t.Errorf("LOAD_ASSERTION_ERROR refers to %v, want AssertionError", raised.Refers)
	}
	if h := g.BlockAt(10); h.ID != g.BlockAt(1).Handler {
		t.Errorf("try body handler = %d, want block %d", g.BlockAt(1).Handler, h.ID)
	}
	if g.BlockAt(6).Handler != -1 {
		t.Error("code after POP_BLOCK is still protected")
	}
}

func TestHandlerFrameIgnoresLiveStack(t *testing.T) {
	f := newFixture(t, Options{})
	g := f.build(t, f.function(0), `
		SETUP_FINALLY handler
		LOAD_CONST 0
		LOAD_GLOBAL 1
		POP_JUMP_IF_FALSE skip
		LOAD_GLOBAL 2
		RAISE_VARARGS 1
	skip:
		POP_TOP
		POP_BLOCK
		LOAD_CONST 2
		RETURN_VALUE
	handler:
		POP_TOP
		POP_TOP
		POP_TOP
		POP_EXCEPT
		LOAD_CONST 2
		RETURN_VALUE
	`)
	if got := describe(g.MetadataAt(5)); got != "[int type] []" {
		t.Errorf("stack at raise = %s, want [int type] []", got)
	}
	if got := describe(g.MetadataAt(10)); got != "["+handlerFrame+"] []" {
		t.Errorf("handler entry = %s, want the exception frame", got)
	}
	var sawException bool
	for _, e := range g.Edges() {
		if e.Kind == EdgeException && e.To == g.BlockAt(10).ID {
			sawException = true
		}
	}
	if !sawException {
		t.Error("no exception edge into the handler")
	}
}

func TestHandlerMergesProtectedLocals(t *testing.T) {
	f := newFixture(t, Options{})
	g := f.build(t, f.function(1), `
		LOAD_CONST 0
		STORE_FAST 0
		SETUP_FINALLY handler
		LOAD_CONST 1
		STORE_FAST 0
		POP_BLOCK
		LOAD_FAST 0
		RETURN_VALUE
	handler:
		POP_TOP
		POP_TOP
		POP_TOP
		POP_EXCEPT
		LOAD_FAST 0
		RETURN_VALUE
	`)
	if got := describe(g.MetadataAt(6)); got != "[] [str]" {
		t.Errorf("after try = %s, want [] [str]", got)
	}
	if got := describe(g.MetadataAt(8)); got != "["+handlerFrame+"] [object]" {
		t.Errorf("handler entry = %s, want the frame with local unified to object", got)
	}
	if got := describe(g.MetadataAt(13)); got != "[object] [object]" {
		t.Errorf("handler return = %s", got)
	}
}

func TestWithStatement(t *testing.T) {
	f := newFixture(t, Options{})
	g := f.build(t, f.function(0), `
		LOAD_GLOBAL 1
		SETUP_WITH handler
		POP_TOP
		POP_BLOCK
		LOAD_CONST 2
		DUP_TOP
		DUP_TOP
		CALL_FUNCTION 3
		POP_TOP
		LOAD_CONST 2
		RETURN_VALUE
	handler:
		WITH_EXCEPT_START
		POP_JUMP_IF_TRUE ok
		RERAISE
	ok:
		POP_TOP
		POP_TOP
		POP_TOP
		POP_EXCEPT
		POP_TOP
		LOAD_CONST 2
		RETURN_VALUE
	`)
	if got := describe(g.MetadataAt(2)); got != "[method object] []" {
		t.Errorf("with body = %s", got)
	}
	if got := describe(g.MetadataAt(11)); got != "[method "+handlerFrame+"] []" {
		t.Errorf("with handler = %s", got)
	}
	if got := describe(g.MetadataAt(18)); got != "[method] []" {
		t.Errorf("after POP_EXCEPT = %s, want [method] []", got)
	}
	if got := describe(g.MetadataAt(19)); got != "[] []" {
		t.Errorf("after cleanup = %s", got)
	}
}

func TestGeneratorResume(t *testing.T) {
	f := newFixture(t, Options{})
	fn := f.function(1)
	fn.Generator = true
	g := f.build(t, fn, `
		LOAD_CONST 0
		STORE_FAST 0
		LOAD_CONST 1
		LOAD_FAST 0
		YIELD_VALUE
		POP_TOP
		POP_TOP
		LOAD_CONST 2
		RETURN_VALUE
	`)
	points := g.ResumePoints()
	if len(points) != 1 || points[0].Index != 4 {
		t.Fatalf("ResumePoints = %+v, want one at 4", points)
	}
	sp := points[0]
	if got := describe(sp.Suspend); got != "[str] [int]" {
		t.Errorf("suspended = %s, want [str] [int]", got)
	}
	if !sp.Resume.SameSlots(sp.Suspend) {
		t.Error("resume does not restore the suspended slots")
	}
	if got := describe(g.MetadataAt(5)); got != "[str object] [int]" {
		t.Errorf("after resume = %s, want [str object] [int]", got)
	}
}

func TestGenStartSeedsStack(t *testing.T) {
	f := newFixture(t, Options{})
	fn := f.function(0)
	fn.Version = bytecode.Python310
	fn.Generator = true
	g := f.build(t, fn, `
		GEN_START 0
		LOAD_CONST 0
		YIELD_VALUE
		POP_TOP
		LOAD_CONST 2
		RETURN_VALUE
	`)
	checkFrames(t, g, []string{
		"[NoneType] []",
		"[] []",
		"[int] []",
		"[object] []",
		"[] []",
		"[NoneType] []",
	})
	points := g.ResumePoints()
	if len(points) != 1 || points[0].Index != 2 {
		t.Fatalf("ResumePoints = %+v, want one at 2", points)
	}
	if got := describe(points[0].Suspend); got != "[] []" {
		t.Errorf("suspended = %s, want [] []", got)
	}
}

func TestGeneratorOpcodesNeedGeneratorUnit(t *testing.T) {
	tests := []struct {
		name    string
		version bytecode.Version
		src     string
		index   int
	}{
		{"yield value", bytecode.Python39, "LOAD_CONST 0\nYIELD_VALUE\nRETURN_VALUE", 1},
		{"yield from", bytecode.Python39, "LOAD_CONST 0\nLOAD_CONST 2\nYIELD_FROM\nRETURN_VALUE", 2},
		{"gen start", bytecode.Python310, "GEN_START 0\nLOAD_CONST 2\nRETURN_VALUE", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			fn := f.function(0)
			fn.Version = tt.version
			_, err := f.builder.Build(fn, bytecode.MustAssemble(tt.src))
			if !errors.Is(err, ErrNotGenerator) {
				t.Fatalf("Build error = %v, want ErrNotGenerator", err)
			}
			var ee *EffectError
			if !errors.As(err, &ee) || ee.Index != tt.index {
				t.Errorf("error = %+v, want EffectError at %d", err, tt.index)
			}
			if !IsCompileError(err) {
				t.Error("not reported as a compile error")
			}

			fn.Generator = true
			if _, err := f.builder.Build(fn, bytecode.MustAssemble(tt.src)); err != nil {
				t.Errorf("generator unit: %v", err)
			}
		})
	}
}

func TestParametersSeedLocals(t *testing.T) {
	f := newFixture(t, Options{})
	fn := f.function(2)
	fn.Params = []*types.Type{f.b.Float}
	g := f.build(t, fn, `
		LOAD_FAST 0
		LOAD_CONST 0
		BINARY_ADD
		RETURN_VALUE
	`)
	if got := describe(g.MetadataAt(0)); got != "[] [float -]" {
		t.Errorf("entry = %s", got)
	}
	if got := describe(g.MetadataAt(3)); got != "[float] [float -]" {
		t.Errorf("float + int = %s", got)
	}

	fn.Params = []*types.Type{f.b.Int, f.b.Int, f.b.Int}
	if _, err := f.builder.Build(fn, bytecode.MustAssemble("LOAD_CONST 0\nRETURN_VALUE")); !errors.Is(err, ErrTooManyParams) {
		t.Errorf("Build error = %v, want ErrTooManyParams", err)
	}
}

func TestUnreachableCode(t *testing.T) {
	f := newFixture(t, Options{})
	g := f.build(t, f.function(0), `
		LOAD_CONST 0
		RETURN_VALUE
		LOAD_CONST 1
		RETURN_VALUE
	`)
	if !g.MetadataAt(0).Reachable() {
		t.Error("entry is unreachable")
	}
	if g.MetadataAt(2).Reachable() || g.BlockAt(3).Reachable() {
		t.Error("dead code is reachable")
	}
}

func TestRequiresFrozenRegistry(t *testing.T) {
	reg := types.NewRegistry("object")
	b, err := types.Bootstrap(reg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewBuilder(reg, b, Options{}); !errors.Is(err, ErrRegistryNotFrozen) {
		t.Errorf("NewBuilder error = %v, want ErrRegistryNotFrozen", err)
	}
}
