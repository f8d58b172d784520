package opcode

import (
	"fmt"

	"github.com/chazu/stackflow/frame"
	"github.com/chazu/stackflow/pkg/bytecode"
)

// ============================================================================
// Stack manipulation
// ============================================================================

type stackOp struct{ base }

func (o *stackOp) Implement(e Emitter, in *frame.Metadata) error { return e.Emit(o, in) }

func (o *stackOp) Effect(env *Env, in *frame.Metadata) (Result, error) {
	switch o.op() {
	case bytecode.OpNop, bytecode.OpExtendedArg, bytecode.OpSetupAnnotations:
		return next(in)
	case bytecode.OpPopTop:
		out, err := in.Pop(1)
		if err != nil {
			return Result{}, err
		}
		return next(out)
	case bytecode.OpRotTwo:
		return o.rotate(in, 2)
	case bytecode.OpRotThree:
		return o.rotate(in, 3)
	case bytecode.OpRotFour:
		return o.rotate(in, 4)
	case bytecode.OpRotN:
		if o.arg() < 0 {
			return Result{}, negativeArg(o.base)
		}
		return o.rotate(in, o.arg())
	case bytecode.OpDupTop:
		top, err := in.Top(1)
		if err != nil {
			return Result{}, err
		}
		return next(in.Push(top...))
	case bytecode.OpDupTopTwo:
		top, err := in.Top(2)
		if err != nil {
			return Result{}, err
		}
		return next(in.Push(top...))
	}
	return Result{}, fmt.Errorf("stack: unexpected %s", o.op())
}

// rotate moves the top entry down n-1 places; the n-1 entries beneath it
// shift up by one.
func (o *stackOp) rotate(in *frame.Metadata, n int) (Result, error) {
	if n <= 1 {
		if _, err := in.Top(n); err != nil {
			return Result{}, err
		}
		return next(in)
	}
	vs, out, err := popN(in, n)
	if err != nil {
		return Result{}, err
	}
	rotated := append([]*frame.ValueSource{vs[n-1]}, vs[:n-1]...)
	return next(out.Push(rotated...))
}

// ============================================================================
// Constants, names and globals
// ============================================================================

type nameOp struct{ base }

func (o *nameOp) Implement(e Emitter, in *frame.Metadata) error { return e.Emit(o, in) }

func (o *nameOp) Effect(env *Env, in *frame.Metadata) (Result, error) {
	switch o.op() {
	case bytecode.OpLoadConst:
		v, err := env.constant(o.arg(), o.index)
		if err != nil {
			return Result{}, err
		}
		return next(in.Push(v))
	case bytecode.OpLoadName, bytecode.OpLoadGlobal:
		name, err := env.name(o.arg())
		if err != nil {
			return Result{}, err
		}
		return next(in.Push(env.global(name, o.index)))
	case bytecode.OpStoreName, bytecode.OpStoreGlobal:
		if _, err := env.name(o.arg()); err != nil {
			return Result{}, err
		}
		out, err := in.Pop(1)
		if err != nil {
			return Result{}, err
		}
		return next(out)
	case bytecode.OpDeleteName, bytecode.OpDeleteGlobal:
		if _, err := env.name(o.arg()); err != nil {
			return Result{}, err
		}
		return next(in)
	case bytecode.OpLoadAssertionError:
		return next(in.Push(frame.ClassOf(env.Builtins.Type, env.Builtins.AssertionError, o.index)))
	case bytecode.OpLoadBuildClass:
		return next(in.Push(frame.Of(env.Builtins.Function, o.index)))
	}
	return Result{}, fmt.Errorf("name: unexpected %s", o.op())
}

// ============================================================================
// Locals and cells
// ============================================================================

type slotOp struct{ base }

func (o *slotOp) Implement(e Emitter, in *frame.Metadata) error { return e.Emit(o, in) }

func (o *slotOp) Effect(env *Env, in *frame.Metadata) (Result, error) {
	i := o.arg()
	switch o.op() {
	case bytecode.OpLoadFast:
		v, err := in.Local(i)
		if err != nil {
			return Result{}, err
		}
		if v == nil {
			v = env.base(o.index)
		}
		return next(in.Push(v))
	case bytecode.OpStoreFast:
		vs, out, err := popN(in, 1)
		if err != nil {
			return Result{}, err
		}
		out, err = out.SetLocal(i, vs[0])
		if err != nil {
			return Result{}, err
		}
		return next(out)
	case bytecode.OpDeleteFast:
		out, err := in.SetLocal(i, nil)
		if err != nil {
			return Result{}, err
		}
		return next(out)
	case bytecode.OpLoadClosure:
		if _, err := in.Cell(i); err != nil {
			return Result{}, err
		}
		return next(in.Push(frame.Of(env.Builtins.Cell, o.index)))
	case bytecode.OpLoadDeref, bytecode.OpLoadClassDeref:
		v, err := in.Cell(i)
		if err != nil {
			return Result{}, err
		}
		if v == nil {
			v = env.base(o.index)
		}
		return next(in.Push(v))
	case bytecode.OpStoreDeref:
		vs, out, err := popN(in, 1)
		if err != nil {
			return Result{}, err
		}
		out, err = out.SetCell(i, vs[0])
		if err != nil {
			return Result{}, err
		}
		return next(out)
	case bytecode.OpDeleteDeref:
		out, err := in.SetCell(i, nil)
		if err != nil {
			return Result{}, err
		}
		return next(out)
	}
	return Result{}, fmt.Errorf("slot: unexpected %s", o.op())
}

func init() {
	register(func(b base) Opcode { return &stackOp{b} },
		bytecode.OpNop, bytecode.OpExtendedArg, bytecode.OpSetupAnnotations, bytecode.OpPopTop,
		bytecode.OpRotTwo, bytecode.OpRotThree, bytecode.OpRotFour, bytecode.OpRotN,
		bytecode.OpDupTop, bytecode.OpDupTopTwo)
	register(func(b base) Opcode { return &nameOp{b} },
		bytecode.OpLoadConst, bytecode.OpLoadName, bytecode.OpLoadGlobal,
		bytecode.OpStoreName, bytecode.OpStoreGlobal, bytecode.OpDeleteName, bytecode.OpDeleteGlobal,
		bytecode.OpLoadAssertionError, bytecode.OpLoadBuildClass)
	register(func(b base) Opcode { return &slotOp{b} },
		bytecode.OpLoadFast, bytecode.OpStoreFast, bytecode.OpDeleteFast,
		bytecode.OpLoadClosure, bytecode.OpLoadDeref, bytecode.OpLoadClassDeref,
		bytecode.OpStoreDeref, bytecode.OpDeleteDeref)
}
