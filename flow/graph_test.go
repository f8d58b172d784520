package flow

import (
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/stackflow/frame"
	"github.com/chazu/stackflow/opcode"
)

type recorder struct {
	blocks []int
	ops    []int
	depths []int
}

func (r *recorder) EnterBlock(b *Block) error {
	r.blocks = append(r.blocks, b.ID)
	return nil
}

func (r *recorder) Emit(op opcode.Opcode, in *frame.Metadata) error {
	r.ops = append(r.ops, op.Index())
	r.depths = append(r.depths, in.Depth())
	return nil
}

func TestBlocksAndEdges(t *testing.T) {
	f := newFixture(t, Options{})
	g := f.build(t, f.function(1), sumLoop)

	var spans []string
	for _, b := range g.Blocks {
		spans = append(spans, fmt.Sprintf("%d-%d", b.Start, b.End))
	}
	if got := strings.Join(spans, " "); got != "0-7 7-8 8-12 12-15" {
		t.Errorf("blocks = %s, want 0-7 7-8 8-12 12-15", got)
	}

	want := []Edge{
		{From: 0, To: 1, Kind: EdgeFallthrough},
		{From: 1, To: 3, Kind: EdgeJump},
		{From: 1, To: 2, Kind: EdgeFallthrough},
		{From: 2, To: 1, Kind: EdgeJump},
	}
	got := g.Edges()
	if len(got) != len(want) {
		t.Fatalf("Edges = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("edge %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if preds := g.Blocks[1].Preds; len(preds) != 2 {
		t.Errorf("loop header has %d predecessors, want 2", len(preds))
	}

	order := g.Order()
	if order[0] != 0 || len(order) != len(g.Blocks) {
		t.Errorf("Order = %v", order)
	}
}

func TestEmitVisitsEveryInstruction(t *testing.T) {
	f := newFixture(t, Options{})
	g := f.build(t, f.function(1), sumLoop)
	r := &recorder{}
	if err := g.Emit(r); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(r.blocks) != len(g.Blocks) {
		t.Errorf("entered %d blocks, want %d", len(r.blocks), len(g.Blocks))
	}
	if len(r.ops) != len(g.Code) {
		t.Fatalf("emitted %d instructions, want %d", len(r.ops), len(g.Code))
	}
	for i, idx := range r.ops {
		if idx != i {
			t.Errorf("emit %d was instruction %d", i, idx)
		}
		if r.depths[i] != g.MetadataAt(i).Depth() {
			t.Errorf("instruction %d emitted with depth %d, want %d", i, r.depths[i], g.MetadataAt(i).Depth())
		}
	}
}

func TestDot(t *testing.T) {
	f := newFixture(t, Options{})
	g := f.build(t, f.function(0), `
		SETUP_FINALLY handler
		LOAD_CONST 0
		POP_TOP
		POP_BLOCK
		LOAD_CONST 2
		RETURN_VALUE
	handler:
		RERAISE
		LOAD_CONST 2
		RETURN_VALUE
	`)
	dot := g.Dot()
	for _, want := range []string{
		`digraph "f" {`,
		"label=exception style=dashed",
		"stack [" + handlerFrame + "]",
		"unreachable",
		"RERAISE",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("Dot output missing %q:\n%s", want, dot)
		}
	}
}
