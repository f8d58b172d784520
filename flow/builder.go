// Package flow builds the annotated flow graph for one compiled unit: it
// discovers blocks and exception regions, then infers the stack metadata
// at every program point with a work-list fixed point.
package flow

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/stackflow/frame"
	"github.com/chazu/stackflow/opcode"
	"github.com/chazu/stackflow/pkg/bytecode"
	"github.com/chazu/stackflow/types"
)

var log = commonlog.GetLogger("stackflow.flow")

// Function describes one compiled unit.
type Function = opcode.Function

// Const is a constant pool entry.
type Const = opcode.Const

// DefaultMultiplier bounds the fixed point at this many visits per block.
const DefaultMultiplier = 16

var (
	ErrRegistryNotFrozen = errors.New("flow: type registry is not frozen")
	ErrTooManyParams     = errors.New("flow: more parameters than locals")
	ErrNoFunction        = errors.New("flow: unit has no function")
	ErrNotGenerator      = errors.New("flow: generator opcode in a function not marked as a generator")
)

// Options tune a Builder.
type Options struct {
	// Multiplier caps the fixed point at Multiplier*len(blocks) block
	// visits. Zero means DefaultMultiplier.
	Multiplier int

	// Initial, when set, replaces the seeded entry metadata. Its slot
	// counts must match the function.
	Initial *frame.Metadata
}

// Builder analyzes units against one frozen type registry. A Builder holds
// no per-unit state and may be shared by concurrent Build calls.
type Builder struct {
	registry *types.Registry
	builtins *types.Builtins
	opts     Options
}

// NewBuilder returns a Builder. The registry must be frozen so that no
// declaration can race with analysis.
func NewBuilder(reg *types.Registry, b *types.Builtins, opts Options) (*Builder, error) {
	if !reg.Frozen() {
		return nil, ErrRegistryNotFrozen
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = DefaultMultiplier
	}
	return &Builder{registry: reg, builtins: b, opts: opts}, nil
}

// Suspension records the state captured at a generator suspension point and
// the state restored after resuming there.
type Suspension struct {
	Index   int
	Suspend *frame.Metadata
	Resume  *frame.Metadata
}

// InitialMetadata is the entry state of fn: parameters typed, every other
// local and cell unset, empty stack. A unit starting with GEN_START sees
// the None it consumes.
func (b *Builder) InitialMetadata(fn *Function, code []bytecode.Instruction) (*frame.Metadata, error) {
	if len(fn.Params) > fn.Locals {
		return nil, fmt.Errorf("%s: %d parameters, %d locals: %w", fn.Name, len(fn.Params), fn.Locals, ErrTooManyParams)
	}
	m := frame.New(fn.Locals, fn.Cells())
	for i, p := range fn.Params {
		if p == nil {
			p = b.registry.Base()
		}
		var err error
		if m, err = m.SetLocal(i, frame.Of(p, -1)); err != nil {
			return nil, err
		}
	}
	if len(code) > 0 && code[0].Op == bytecode.OpGenStart {
		m = m.Push(frame.Of(b.builtins.None, -1))
	}
	return m, nil
}

// checkGenerator rejects suspension points and GEN_START outside units
// flagged as generators.
func checkGenerator(fn *Function, code []bytecode.Instruction) error {
	if fn.Generator {
		return nil
	}
	for i, in := range code {
		if in.Op.Suspends() || in.Op == bytecode.OpGenStart {
			return &EffectError{Function: fn.Name, Index: i, Op: in.Op, Line: in.Line, Err: ErrNotGenerator}
		}
	}
	return nil
}

// Build analyzes one unit. A zero Version selects bytecode.DefaultVersion.
func (b *Builder) Build(fn *Function, code []bytecode.Instruction) (*Graph, error) {
	if fn.Version == (bytecode.Version{}) {
		cp := *fn
		cp.Version = bytecode.DefaultVersion
		fn = &cp
	}
	if err := validate(fn.Name, code); err != nil {
		return nil, err
	}
	if err := checkGenerator(fn, code); err != nil {
		return nil, err
	}
	ops, err := opcode.LookupAll(code, fn.Version)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name, err)
	}
	inner, err := handlerRegions(fn.Name, code)
	if err != nil {
		return nil, err
	}

	initial := b.opts.Initial
	if initial == nil {
		if initial, err = b.InitialMetadata(fn, code); err != nil {
			return nil, err
		}
	} else if initial.NumLocals() != fn.Locals || initial.NumCells() != fn.Cells() {
		return nil, fmt.Errorf("%s: initial metadata has %d locals and %d cells, want %d and %d",
			fn.Name, initial.NumLocals(), initial.NumCells(), fn.Locals, fn.Cells())
	}

	blocks, blockOf := discover(code, ops, inner)
	g := &Graph{
		Function: fn,
		Code:     code,
		Ops:      ops,
		Blocks:   blocks,
		order:    reversePostorder(blocks),
		blockOf:  blockOf,
		incoming: make([]*frame.Metadata, len(code)),
	}

	s := &solver{
		g:           g,
		env:         &opcode.Env{Registry: b.registry, Builtins: b.builtins, Function: fn},
		pending:     make([]bool, len(blocks)),
		handlerBase: make(map[int]*frame.Metadata),
		suspensions: make(map[int]Suspension),
		limit:       b.opts.Multiplier * len(blocks),
	}
	blocks[0].Entry = initial
	s.pending[0] = true
	if err := s.run(); err != nil {
		log.Debugf("%s: analysis failed: %v", fn.Name, err)
		return nil, err
	}
	s.finish(initial)

	log.Debugf("%s: %d instructions, %d blocks, converged after %d visits",
		fn.Name, len(code), len(blocks), g.visits)
	return g, nil
}

// ---------------------------------------------------------------------------
// Fixed point
// ---------------------------------------------------------------------------

type solver struct {
	g   *Graph
	env *opcode.Env

	pending     []bool
	handlerBase map[int]*frame.Metadata // handler block ID -> stack at its setup
	suspensions map[int]Suspension
	visits      int
	limit       int
}

// next returns the pending block earliest in reverse postorder, or -1.
func (s *solver) next() int {
	for _, id := range s.g.order {
		if s.pending[id] {
			return id
		}
	}
	return -1
}

func (s *solver) run() error {
	for {
		id := s.next()
		if id < 0 {
			return nil
		}
		s.visits++
		if s.visits > s.limit {
			return &NonConvergentAnalysisError{Function: s.g.Function.Name, Visits: s.visits,
				Limit: s.limit, Blocks: len(s.g.Blocks)}
		}
		s.pending[id] = false
		if err := s.visit(s.g.Blocks[id]); err != nil {
			return err
		}
	}
}

func (s *solver) visit(b *Block) error {
	m := b.Entry
	var exit *frame.Metadata
	for i := b.Start; i < b.End; i++ {
		s.g.incoming[i] = m
		if b.Handler >= 0 {
			if base := s.handlerBase[b.Handler]; base != nil {
				if err := s.propagate(i, b.Handler, base.WithSlots(m)); err != nil {
					return err
				}
			}
		}

		op := s.g.Ops[i]
		res, err := op.Effect(s.env, m)
		if err != nil {
			return s.wrap(i, err)
		}
		if susp, ok := op.(opcode.Suspender); ok {
			if err := s.suspend(i, susp, m, res.Next); err != nil {
				return err
			}
		}
		for _, br := range res.Branches {
			target := s.g.blockOf[br.Target]
			if br.Kind == opcode.BranchHandler {
				base, err := s.merge(i, target, s.handlerBase[target], br.Meta)
				if err != nil {
					return err
				}
				s.handlerBase[target] = base
			}
			if err := s.propagate(i, target, br.Meta); err != nil {
				return err
			}
			if res.Next == nil && exit == nil {
				exit = br.Meta
			}
		}
		if res.Next == nil {
			b.Exit = exit
			return nil
		}
		m = res.Next
	}
	b.Exit = m
	if b.End >= len(s.g.Code) {
		last := s.g.Code[b.End-1]
		return &UnresolvedJumpTargetError{Function: s.g.Function.Name, Index: b.End - 1, Op: last.Op,
			Target: b.End, Reason: "control falls off the end"}
	}
	return s.propagate(b.End-1, s.g.blockOf[b.End], m)
}

// propagate merges meta into the entry of block id and schedules the block
// when its entry changed.
func (s *solver) propagate(from, id int, meta *frame.Metadata) error {
	cur := s.g.Blocks[id].Entry
	merged, err := s.merge(from, id, cur, meta)
	if err != nil {
		return err
	}
	if cur == nil || !merged.Equal(cur) {
		s.g.Blocks[id].Entry = merged
		s.pending[id] = true
	}
	return nil
}

func (s *solver) merge(from, id int, a, b *frame.Metadata) (*frame.Metadata, error) {
	merged, err := frame.Merge(a, b)
	if err == nil {
		return merged, nil
	}
	var dm *frame.DepthMismatchError
	if errors.As(err, &dm) {
		return nil, &InconsistentStackError{Function: s.g.Function.Name, Block: id,
			Index: s.g.Blocks[id].Start, Left: dm.Left, Right: dm.Right}
	}
	return nil, s.wrap(from, err)
}

// suspend records a suspension point and checks that resuming restores the
// suspended locals and cells exactly.
func (s *solver) suspend(i int, susp opcode.Suspender, in, resumed *frame.Metadata) error {
	state, err := susp.SuspendState(s.env, in)
	if err != nil {
		return s.wrap(i, err)
	}
	if resumed == nil || !resumed.SameSlots(state) {
		return s.wrap(i, errors.New("resume does not restore the suspended slots"))
	}
	s.suspensions[i] = Suspension{Index: i, Suspend: state, Resume: resumed}
	return nil
}

func (s *solver) wrap(i int, err error) error {
	in := s.g.Code[i]
	var uf *frame.UnderflowError
	if errors.As(err, &uf) {
		return &StackUnderflowError{Function: s.g.Function.Name, Index: i, Op: in.Op, Line: in.Line,
			Need: uf.Need, Have: uf.Have}
	}
	return &EffectError{Function: s.g.Function.Name, Index: i, Op: in.Op, Line: in.Line, Err: err}
}

// finish marks never-reached code and publishes the solver results.
func (s *solver) finish(initial *frame.Metadata) {
	dead := frame.New(initial.NumLocals(), initial.NumCells()).Unreachable()
	for _, b := range s.g.Blocks {
		if b.Entry != nil {
			continue
		}
		log.Debugf("%s: block %d [%d,%d) is unreachable", s.g.Function.Name, b.ID, b.Start, b.End)
		b.Entry = dead
		for i := b.Start; i < b.End; i++ {
			s.g.incoming[i] = dead
		}
	}
	for i := range s.g.Code {
		if sp, ok := s.suspensions[i]; ok {
			s.g.suspensions = append(s.g.suspensions, sp)
		}
	}
	s.g.visits = s.visits
}
