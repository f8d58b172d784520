package opcode

import (
	"fmt"

	"github.com/chazu/stackflow/frame"
	"github.com/chazu/stackflow/pkg/bytecode"
)

func (b base) target() (int, error) {
	t, ok := b.instr.Target()
	if !ok {
		return 0, fmt.Errorf("%s at %d has no target", b.op(), b.index)
	}
	return t, nil
}

// ============================================================================
// Jumps and return
// ============================================================================

type jumpOp struct{ base }

func (o *jumpOp) Implement(e Emitter, in *frame.Metadata) error { return e.Emit(o, in) }

func (o *jumpOp) Effect(env *Env, in *frame.Metadata) (Result, error) {
	target, err := o.target()
	if err != nil {
		return Result{}, err
	}
	jump := func(m *frame.Metadata) Branch { return Branch{Target: target, Meta: m, Kind: BranchJump} }

	switch o.op() {
	case bytecode.OpJumpAbsolute, bytecode.OpJumpForward:
		return Result{Branches: []Branch{jump(in)}}, nil
	case bytecode.OpPopJumpIfFalse, bytecode.OpPopJumpIfTrue:
		out, err := in.Pop(1)
		if err != nil {
			return Result{}, err
		}
		return Result{Next: out, Branches: []Branch{jump(out)}}, nil
	case bytecode.OpJumpIfFalseOrPop, bytecode.OpJumpIfTrueOrPop:
		out, err := in.Pop(1)
		if err != nil {
			return Result{}, err
		}
		return Result{Next: out, Branches: []Branch{jump(in)}}, nil
	case bytecode.OpJumpIfNotExcMatch:
		out, err := in.Pop(2)
		if err != nil {
			return Result{}, err
		}
		return Result{Next: out, Branches: []Branch{jump(out)}}, nil
	}
	return Result{}, fmt.Errorf("jump: unexpected %s", o.op())
}

type returnOp struct{ base }

func (o *returnOp) Implement(e Emitter, in *frame.Metadata) error { return e.Emit(o, in) }

func (o *returnOp) Effect(env *Env, in *frame.Metadata) (Result, error) {
	if _, err := in.Pop(1); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}

// ============================================================================
// Iteration and generators
// ============================================================================

type iterOp struct{ base }

func (o *iterOp) Implement(e Emitter, in *frame.Metadata) error { return e.Emit(o, in) }

func (o *iterOp) Effect(env *Env, in *frame.Metadata) (Result, error) {
	b := env.Builtins
	switch o.op() {
	case bytecode.OpGetIter:
		vs, out, err := popN(in, 1)
		if err != nil {
			return Result{}, err
		}
		it := b.Iterator
		if vs[0].Refers == nil {
			if ret := methodReturn(vs[0].TypeOf(), "__iter__", nil); ret != nil && ret.IsSubtypeOf(b.Iterator) {
				it = ret
			}
		}
		return next(out.Push(frame.Of(it, o.index)))
	case bytecode.OpGetYieldFromIter:
		vs, out, err := popN(in, 1)
		if err != nil {
			return Result{}, err
		}
		if t := vs[0].TypeOf(); vs[0].Refers == nil && t.IsSubtypeOf(b.Iterator) {
			return next(in)
		}
		return next(out.Push(frame.Of(b.Iterator, o.index)))
	case bytecode.OpForIter:
		target, err := o.target()
		if err != nil {
			return Result{}, err
		}
		top, err := in.Top(1)
		if err != nil {
			return Result{}, err
		}
		exhausted, err := in.Pop(1)
		if err != nil {
			return Result{}, err
		}
		elem := methodReturn(top[0].TypeOf(), "__next__", nil)
		return Result{
			Next:     in.Push(env.value(elem, o.index)),
			Branches: []Branch{{Target: target, Meta: exhausted, Kind: BranchJump}},
		}, nil
	}
	return Result{}, fmt.Errorf("iteration: unexpected %s", o.op())
}

type generatorOp struct{ base }

func (o *generatorOp) Implement(e Emitter, in *frame.Metadata) error { return e.Emit(o, in) }

// SuspendState drops the yielded value. For YIELD_FROM the delegate stays
// on the stack while suspended.
func (o *generatorOp) SuspendState(env *Env, in *frame.Metadata) (*frame.Metadata, error) {
	switch o.op() {
	case bytecode.OpYieldValue:
		return in.Pop(1)
	case bytecode.OpYieldFrom:
		if _, err := in.Top(2); err != nil {
			return nil, err
		}
		return in.Pop(1)
	}
	return nil, fmt.Errorf("generator: %s does not suspend", o.op())
}

func (o *generatorOp) Effect(env *Env, in *frame.Metadata) (Result, error) {
	switch o.op() {
	case bytecode.OpYieldValue:
		suspended, err := o.SuspendState(env, in)
		if err != nil {
			return Result{}, err
		}
		return next(suspended.Push(env.base(o.index)))
	case bytecode.OpYieldFrom:
		suspended, err := o.SuspendState(env, in)
		if err != nil {
			return Result{}, err
		}
		// The delegate is replaced by its final result on resume.
		out, err := suspended.Replace(0, env.base(o.index))
		if err != nil {
			return Result{}, err
		}
		return next(out)
	}
	return Result{}, fmt.Errorf("generator: unexpected %s", o.op())
}

// genStartOp discards the None a fresh generator is entered with. It is not
// a suspension point.
type genStartOp struct{ base }

func (o *genStartOp) Implement(e Emitter, in *frame.Metadata) error { return e.Emit(o, in) }

func (o *genStartOp) Effect(env *Env, in *frame.Metadata) (Result, error) {
	out, err := in.Pop(1)
	if err != nil {
		return Result{}, err
	}
	return next(out)
}

// ============================================================================
// Exception regions
// ============================================================================

type blockOp struct{ base }

func (o *blockOp) Implement(e Emitter, in *frame.Metadata) error { return e.Emit(o, in) }

func (o *blockOp) Effect(env *Env, in *frame.Metadata) (Result, error) {
	switch o.op() {
	case bytecode.OpSetupFinally:
		target, err := o.target()
		if err != nil {
			return Result{}, err
		}
		return Result{
			Next:     in,
			Branches: []Branch{{Target: target, Meta: in.Push(env.ExceptionFrame(o.index)...), Kind: BranchHandler}},
		}, nil
	case bytecode.OpSetupWith:
		target, err := o.target()
		if err != nil {
			return Result{}, err
		}
		vs, out, err := popN(in, 1)
		if err != nil {
			return Result{}, err
		}
		mgr := vs[0]
		exit := &frame.ValueSource{
			Type:    env.Builtins.Method,
			Origins: []int{o.index},
			Method:  &frame.MethodRef{Owner: mgr.TypeOf(), Name: "__exit__"},
		}
		entered := env.value(methodReturn(mgr.TypeOf(), "__enter__", nil), o.index)
		guarded := out.Push(exit)
		return Result{
			Next:     guarded.Push(entered),
			Branches: []Branch{{Target: target, Meta: guarded.Push(env.ExceptionFrame(o.index)...), Kind: BranchHandler}},
		}, nil
	case bytecode.OpPopBlock:
		return next(in)
	case bytecode.OpPopExcept:
		out, err := in.Pop(3)
		if err != nil {
			return Result{}, err
		}
		return next(out)
	case bytecode.OpRaiseVarargs:
		n := o.arg()
		if n < 0 || n > 2 {
			return Result{}, fmt.Errorf("RAISE_VARARGS: bad argument count %d", n)
		}
		if _, err := in.Pop(n); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	case bytecode.OpReraise:
		if _, err := in.Pop(3); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	case bytecode.OpWithExceptStart:
		// The __exit__ method sits below the six-entry exception frame.
		if _, err := in.Top(ExceptionFrameDepth + 1); err != nil {
			return Result{}, err
		}
		return next(in.Push(env.base(o.index)))
	}
	return Result{}, fmt.Errorf("block: unexpected %s", o.op())
}

func init() {
	register(func(b base) Opcode { return &jumpOp{b} },
		bytecode.OpJumpAbsolute, bytecode.OpJumpForward, bytecode.OpPopJumpIfFalse, bytecode.OpPopJumpIfTrue,
		bytecode.OpJumpIfFalseOrPop, bytecode.OpJumpIfTrueOrPop, bytecode.OpJumpIfNotExcMatch)
	register(func(b base) Opcode { return &returnOp{b} }, bytecode.OpReturnValue)
	register(func(b base) Opcode { return &iterOp{b} },
		bytecode.OpGetIter, bytecode.OpGetYieldFromIter, bytecode.OpForIter)
	register(func(b base) Opcode { return &generatorOp{b} }, bytecode.OpYieldValue, bytecode.OpYieldFrom)
	register(func(b base) Opcode { return &genStartOp{b} }, bytecode.OpGenStart)
	register(func(b base) Opcode { return &blockOp{b} },
		bytecode.OpSetupFinally, bytecode.OpSetupWith, bytecode.OpPopBlock, bytecode.OpPopExcept,
		bytecode.OpRaiseVarargs, bytecode.OpReraise, bytecode.OpWithExceptStart)
}
