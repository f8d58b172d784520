// Package opcode gives every supported instruction kind a pure stack
// effect: from an instruction and the metadata flowing into it, compute the
// metadata flowing out on each edge. Code generation is delegated to an
// Emitter that receives each opcode with its exact incoming metadata.
package opcode

import (
	"github.com/chazu/stackflow/frame"
	"github.com/chazu/stackflow/pkg/bytecode"
	"github.com/chazu/stackflow/slots"
	"github.com/chazu/stackflow/types"
)

// Opcode is a decoded instruction paired with its stack effect and
// codegen hook.
type Opcode interface {
	Instruction() bytecode.Instruction
	Index() int

	// Effect computes the outgoing metadata. It never mutates in.
	Effect(env *Env, in *frame.Metadata) (Result, error)

	// Implement hands the opcode to the emitter.
	Implement(e Emitter, in *frame.Metadata) error
}

// Suspender is implemented by generator suspension points. SuspendState is
// the state captured when control leaves the generator; Effect's fallthrough
// is that state plus the single value delivered on resume.
type Suspender interface {
	SuspendState(env *Env, in *frame.Metadata) (*frame.Metadata, error)
}

// Emitter consumes the annotated opcodes. in is the inferred state before
// the opcode executes; it is flagged unreachable for dead code.
type Emitter interface {
	Emit(op Opcode, in *frame.Metadata) error
}

// BranchKind tags an explicit successor.
type BranchKind int

const (
	BranchJump BranchKind = iota
	BranchHandler
)

// Branch is an explicit successor edge.
type Branch struct {
	Target int
	Meta   *frame.Metadata
	Kind   BranchKind
}

// Result is the outcome of one Effect. Next is the fallthrough state, nil
// when control never reaches the following instruction.
type Result struct {
	Next     *frame.Metadata
	Branches []Branch
}

func next(m *frame.Metadata) (Result, error) { return Result{Next: m}, nil }

// ---------------------------------------------------------------------------
// Function metadata and analysis environment
// ---------------------------------------------------------------------------

// Const is a constant pool entry's type. Class is set when the constant is a
// class object.
type Const struct {
	Type  *types.Type
	Class *types.Type
}

// Function is the caller-supplied description of one compiled unit.
type Function struct {
	Name    string
	Version bytecode.Version

	// Params are the parameter types; they occupy the first locals. A nil
	// entry means the base type.
	Params      []*types.Type
	ParamWidths []int

	Locals     int
	BoundCells int
	FreeCells  int

	Constants []Const
	Names     []string
	Globals   map[string]*types.Type
	Generator bool
}

// Cells is the total cell count, bound cells first.
func (f *Function) Cells() int { return f.BoundCells + f.FreeCells }

// Layout returns the slot allocator layout for f.
func (f *Function) Layout() slots.Layout {
	widths := f.ParamWidths
	if len(widths) == 0 {
		widths = make([]int, len(f.Params))
		for i := range widths {
			widths[i] = 1
		}
	}
	return slots.Layout{ParamWidths: widths, Locals: f.Locals, BoundCells: f.BoundCells, FreeCells: f.FreeCells}
}

// Env is what an Effect may consult besides its incoming metadata.
type Env struct {
	Registry *types.Registry
	Builtins *types.Builtins
	Function *Function
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

type base struct {
	instr bytecode.Instruction
	index int
}

func (b base) Instruction() bytecode.Instruction { return b.instr }
func (b base) Index() int                        { return b.index }
func (b base) op() bytecode.Opcode               { return b.instr.Op }
func (b base) arg() int                          { return b.instr.Arg }

var constructors = map[bytecode.Opcode]func(base) Opcode{}

func register(ctor func(base) Opcode, ops ...bytecode.Opcode) {
	for _, op := range ops {
		constructors[op] = ctor
	}
}

// Lookup returns the opcode variant for instruction index of a function
// compiled for version v.
func Lookup(in bytecode.Instruction, index int, v bytecode.Version) (Opcode, error) {
	table, err := bytecode.TableFor(v)
	if err != nil {
		return nil, err
	}
	if !table.Supports(in.Op) {
		return nil, &bytecode.UnknownOpcodeError{Index: index, Raw: -1, Op: in.Op, Version: v,
			Reason: "not part of this version"}
	}
	ctor, ok := constructors[in.Op]
	if !ok {
		return nil, &bytecode.UnknownOpcodeError{Index: index, Raw: -1, Op: in.Op, Version: v,
			Reason: "no stack model"}
	}
	return ctor(base{instr: in, index: index}), nil
}

// LookupAll maps a whole instruction stream.
func LookupAll(instrs []bytecode.Instruction, v bytecode.Version) ([]Opcode, error) {
	out := make([]Opcode, len(instrs))
	for i, in := range instrs {
		op, err := Lookup(in, i, v)
		if err != nil {
			return nil, err
		}
		out[i] = op
	}
	return out, nil
}

// Supported reports whether op has a stack model.
func Supported(op bytecode.Opcode) bool {
	_, ok := constructors[op]
	return ok
}

// UnknownOpcodeError reports an instruction with no stack model for the
// declared language version.
type UnknownOpcodeError = bytecode.UnknownOpcodeError
