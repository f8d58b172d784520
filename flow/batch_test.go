package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/stackflow/pkg/bytecode"
)

func TestAnalyzeAllIsolatesFailures(t *testing.T) {
	f := newFixture(t, Options{})
	units := []Unit{
		{Function: f.function(1), Code: bytecode.MustAssemble(sumLoop)},
		{Function: f.function(0), Code: bytecode.MustAssemble("POP_TOP\nLOAD_CONST 0\nRETURN_VALUE")},
		{Function: f.function(0), Code: bytecode.MustAssemble("LOAD_CONST 1\nRETURN_VALUE")},
		{Code: bytecode.MustAssemble("LOAD_CONST 1\nRETURN_VALUE")},
	}
	out, err := f.builder.AnalyzeAll(context.Background(), units, 2)
	if err != nil {
		t.Fatalf("AnalyzeAll: %v", err)
	}
	if len(out) != len(units) {
		t.Fatalf("got %d outcomes, want %d", len(out), len(units))
	}
	for _, i := range []int{0, 2} {
		if out[i].Err != nil || out[i].Graph == nil {
			t.Errorf("unit %d: graph %v, err %v", i, out[i].Graph, out[i].Err)
		}
	}
	var uf *StackUnderflowError
	if !errors.As(out[1].Err, &uf) || out[1].Graph != nil {
		t.Errorf("unit 1: err %v, want *StackUnderflowError", out[1].Err)
	}
	if !errors.Is(out[3].Err, ErrNoFunction) {
		t.Errorf("unit 3: err %v, want ErrNoFunction", out[3].Err)
	}
}

func TestAnalyzeAllSharesBuilder(t *testing.T) {
	f := newFixture(t, Options{})
	units := make([]Unit, 32)
	for i := range units {
		units[i] = Unit{Function: f.function(1), Code: bytecode.MustAssemble(sumLoop)}
	}
	out, err := f.builder.AnalyzeAll(context.Background(), units, 0)
	if err != nil {
		t.Fatalf("AnalyzeAll: %v", err)
	}
	for i, o := range out {
		if o.Err != nil {
			t.Fatalf("unit %d: %v", i, o.Err)
		}
		if got := describe(o.Graph.MetadataAt(14)); got != "[object] [object]" {
			t.Errorf("unit %d: return = %s", i, got)
		}
	}
}

func TestAnalyzeAllCancelled(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	units := []Unit{{Function: f.function(0), Code: bytecode.MustAssemble("LOAD_CONST 1\nRETURN_VALUE")}}
	out, err := f.builder.AnalyzeAll(ctx, units, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("AnalyzeAll error = %v, want context.Canceled", err)
	}
	if out[0].Graph != nil {
		t.Error("cancelled unit was analyzed")
	}
}
