package wire

import (
	"fmt"

	"github.com/chazu/stackflow/flow"
	"github.com/chazu/stackflow/frame"
	"github.com/chazu/stackflow/slots"
)

// Summary is the analysis result of one unit with types rendered as names.
// Unset slots show as "-", class objects as "class X" and looked-up
// methods as "Owner.name".
type Summary struct {
	Function string         `cbor:"1,keyasint" yaml:"function"`
	Version  string         `cbor:"2,keyasint" yaml:"version"`
	Visits   int            `cbor:"3,keyasint" yaml:"visits"`
	Blocks   []BlockSummary `cbor:"4,keyasint" yaml:"blocks"`
	Points   []Point        `cbor:"5,keyasint" yaml:"points"`
	Resumes  []int          `cbor:"6,keyasint,omitempty" yaml:"resumes,omitempty,flow"`
	Slots    []Region       `cbor:"7,keyasint" yaml:"slots"`
}

// BlockSummary describes one block and its outgoing edges.
type BlockSummary struct {
	ID        int           `cbor:"1,keyasint" yaml:"id"`
	Start     int           `cbor:"2,keyasint" yaml:"start"`
	End       int           `cbor:"3,keyasint" yaml:"end"`
	Handler   int           `cbor:"4,keyasint" yaml:"handler"`
	Reachable bool          `cbor:"5,keyasint" yaml:"reachable"`
	Succs     []EdgeSummary `cbor:"6,keyasint,omitempty" yaml:"succs,omitempty"`
}

// EdgeSummary is one outgoing edge.
type EdgeSummary struct {
	To   int    `cbor:"1,keyasint" yaml:"to"`
	Kind string `cbor:"2,keyasint" yaml:"kind"`
}

// Point is the state flowing into one instruction.
type Point struct {
	Index     int      `cbor:"1,keyasint" yaml:"index"`
	Op        string   `cbor:"2,keyasint" yaml:"op"`
	Line      int      `cbor:"3,keyasint,omitempty" yaml:"line,omitempty"`
	Reachable bool     `cbor:"4,keyasint" yaml:"reachable"`
	Stack     []string `cbor:"5,keyasint" yaml:"stack,flow"`
	Locals    []string `cbor:"6,keyasint" yaml:"locals,flow"`
	Cells     []string `cbor:"7,keyasint,omitempty" yaml:"cells,omitempty,flow"`
}

// Region is a range of the slot layout.
type Region struct {
	Name  string `cbor:"1,keyasint" yaml:"name"`
	Start int    `cbor:"2,keyasint" yaml:"start"`
	End   int    `cbor:"3,keyasint" yaml:"end"`
}

// Summarize flattens an analyzed graph.
func Summarize(g *flow.Graph) (*Summary, error) {
	fn := g.Function
	alloc, err := slots.New(fn.Layout())
	if err != nil {
		return nil, fmt.Errorf("wire: summarize %s: %w", fn.Name, err)
	}

	s := &Summary{Function: fn.Name, Version: fn.Version.String(), Visits: g.Visits()}
	for _, r := range alloc.Regions() {
		s.Slots = append(s.Slots, Region{Name: r.Name, Start: r.Start, End: r.End})
	}
	for _, b := range g.Blocks {
		bs := BlockSummary{ID: b.ID, Start: b.Start, End: b.End, Handler: b.Handler, Reachable: b.Reachable()}
		for _, e := range b.Succs {
			bs.Succs = append(bs.Succs, EdgeSummary{To: e.To, Kind: e.Kind.String()})
		}
		s.Blocks = append(s.Blocks, bs)
	}
	for i, in := range g.Code {
		m := g.MetadataAt(i)
		s.Points = append(s.Points, Point{
			Index:     i,
			Op:        in.String(),
			Line:      in.Line,
			Reachable: m.Reachable(),
			Stack:     labels(m.Stack()),
			Locals:    labels(m.Locals()),
			Cells:     labels(m.Cells()),
		})
	}
	for _, sp := range g.ResumePoints() {
		s.Resumes = append(s.Resumes, sp.Index)
	}
	return s, nil
}

func labels(vs []*frame.ValueSource) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = label(v)
	}
	return out
}

func label(v *frame.ValueSource) string {
	switch {
	case v == nil:
		return "-"
	case v.Refers != nil:
		return "class " + v.Refers.Name()
	case v.Method != nil:
		return v.Method.Owner.String() + "." + v.Method.Name
	}
	return v.Type.String()
}
