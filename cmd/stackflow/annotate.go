package main

import (
	"fmt"
	"io"

	"github.com/chazu/stackflow/flow"
	"github.com/chazu/stackflow/frame"
	"github.com/chazu/stackflow/opcode"
)

// annotator prints each instruction next to the state flowing into it, one
// block at a time.
type annotator struct {
	w io.Writer
}

func (a *annotator) EnterBlock(b *flow.Block) error {
	header := fmt.Sprintf("B%d [%d, %d)", b.ID, b.Start, b.End)
	if b.Handler >= 0 {
		header += fmt.Sprintf(" handler B%d", b.Handler)
	}
	for _, e := range b.Succs {
		header += fmt.Sprintf(" %s->B%d", e.Kind, e.To)
	}
	_, err := fmt.Fprintln(a.w, header)
	return err
}

func (a *annotator) Emit(op opcode.Opcode, in *frame.Metadata) error {
	_, err := fmt.Fprintf(a.w, "  %4d  %-28s %s\n", op.Index(), op.Instruction(), in)
	return err
}

// annotate writes the annotated listing of g.
func annotate(w io.Writer, g *flow.Graph) error {
	if _, err := fmt.Fprintf(w, "# === %s (%d visits) ===\n", g.Function.Name, g.Visits()); err != nil {
		return err
	}
	return g.Emit(&annotator{w: w})
}
