package flow

import (
	"fmt"
	"strings"

	"github.com/chazu/stackflow/frame"
	"github.com/chazu/stackflow/opcode"
	"github.com/chazu/stackflow/pkg/bytecode"
)

// Graph is the annotated flow graph of one unit. It is immutable once
// returned by Build.
type Graph struct {
	Function *Function
	Code     []bytecode.Instruction
	Ops      []opcode.Opcode
	Blocks   []*Block

	order       []int
	blockOf     []int
	incoming    []*frame.Metadata
	suspensions []Suspension
	visits      int
}

// MetadataAt returns the metadata flowing into instruction i. Dead code
// carries metadata flagged unreachable.
func (g *Graph) MetadataAt(i int) *frame.Metadata {
	if i < 0 || i >= len(g.incoming) {
		return nil
	}
	return g.incoming[i]
}

// BlockAt returns the block containing instruction i.
func (g *Graph) BlockAt(i int) *Block {
	if i < 0 || i >= len(g.blockOf) {
		return nil
	}
	return g.Blocks[g.blockOf[i]]
}

// Order returns block IDs in reverse postorder.
func (g *Graph) Order() []int { return append([]int(nil), g.order...) }

// ResumePoints returns the generator suspension points in program order.
func (g *Graph) ResumePoints() []Suspension { return append([]Suspension(nil), g.suspensions...) }

// Visits reports how many block visits the fixed point took.
func (g *Graph) Visits() int { return g.visits }

// Edges returns every edge, grouped by source block.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, b := range g.Blocks {
		out = append(out, b.Succs...)
	}
	return out
}

// BlockEmitter is an Emitter that also wants to hear about block
// boundaries, for example to place labels.
type BlockEmitter interface {
	opcode.Emitter
	EnterBlock(b *Block) error
}

// Emit hands every opcode, in program order, to e together with its incoming
// metadata.
func (g *Graph) Emit(e opcode.Emitter) error {
	be, _ := e.(BlockEmitter)
	for _, b := range g.Blocks {
		if be != nil {
			if err := be.EnterBlock(b); err != nil {
				return err
			}
		}
		for _, op := range b.Ops {
			if err := op.Implement(e, g.incoming[op.Index()]); err != nil {
				return fmt.Errorf("%s: emit instruction %d: %w", g.Function.Name, op.Index(), err)
			}
		}
	}
	return nil
}

// Dot renders the graph in Graphviz format, one node per block labelled
// with its instructions and entry stack.
func (g *Graph) Dot() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %q {\n", g.Function.Name)
	sb.WriteString("  node [shape=box fontname=monospace];\n")
	for _, b := range g.Blocks {
		var label strings.Builder
		fmt.Fprintf(&label, "B%d [%d,%d)", b.ID, b.Start, b.End)
		if !b.Reachable() {
			label.WriteString(" unreachable")
		}
		label.WriteString(`\l`)
		if b.Reachable() {
			fmt.Fprintf(&label, "stack %s", dotEscape(typeList(b.Entry)))
			label.WriteString(`\l`)
		}
		for i := b.Start; i < b.End; i++ {
			fmt.Fprintf(&label, "%d: %s", i, dotEscape(g.Code[i].String()))
			label.WriteString(`\l`)
		}
		fmt.Fprintf(&sb, "  b%d [label=\"%s\"];\n", b.ID, label.String())
	}
	for _, b := range g.Blocks {
		for _, e := range b.Succs {
			style := ""
			if e.Kind == EdgeException {
				style = " style=dashed"
			}
			fmt.Fprintf(&sb, "  b%d -> b%d [label=%s%s];\n", e.From, e.To, e.Kind, style)
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func typeList(m *frame.Metadata) string {
	names := make([]string, 0, m.Depth())
	for _, t := range m.StackTypes() {
		names = append(names, t.String())
	}
	return "[" + strings.Join(names, " ") + "]"
}

func dotEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
