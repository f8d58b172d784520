package opcode

import (
	"fmt"
	"math/bits"

	"github.com/chazu/stackflow/frame"
	"github.com/chazu/stackflow/pkg/bytecode"
)

// ============================================================================
// Calls and function creation
// ============================================================================

type callOp struct{ base }

func (o *callOp) Implement(e Emitter, in *frame.Metadata) error { return e.Emit(o, in) }

func (o *callOp) Effect(env *Env, in *frame.Metadata) (Result, error) {
	n := o.arg()
	if n < 0 {
		return Result{}, negativeArg(o.base)
	}
	switch o.op() {
	case bytecode.OpCallFunction:
		vs, out, err := popN(in, n+1)
		if err != nil {
			return Result{}, err
		}
		return next(out.Push(frame.Of(env.call(vs[0], typesOf(vs[1:])), o.index)))
	case bytecode.OpCallFunctionKw:
		// callee, n arguments, then the tuple of keyword names
		vs, out, err := popN(in, n+2)
		if err != nil {
			return Result{}, err
		}
		return next(out.Push(frame.Of(env.call(vs[0], nil), o.index)))
	case bytecode.OpCallFunctionEx:
		pop := 2
		if n&0x01 != 0 {
			pop++
		}
		vs, out, err := popN(in, pop)
		if err != nil {
			return Result{}, err
		}
		return next(out.Push(frame.Of(env.call(vs[0], nil), o.index)))
	case bytecode.OpLoadMethod:
		name, err := env.name(n)
		if err != nil {
			return Result{}, err
		}
		vs, out, err := popN(in, 1)
		if err != nil {
			return Result{}, err
		}
		method := &frame.ValueSource{
			Type:    env.Builtins.Method,
			Origins: []int{o.index},
			Method:  &frame.MethodRef{Owner: vs[0].TypeOf(), Name: name},
		}
		return next(out.Push(method, vs[0]))
	case bytecode.OpCallMethod:
		vs, out, err := popN(in, n+2)
		if err != nil {
			return Result{}, err
		}
		return next(out.Push(frame.Of(env.call(vs[0], typesOf(vs[2:])), o.index)))
	case bytecode.OpMakeFunction:
		pop := 2 + bits.OnesCount(uint(n&0x0F))
		out, err := in.Pop(pop)
		if err != nil {
			return Result{}, err
		}
		return next(out.Push(frame.Of(env.Builtins.Function, o.index)))
	}
	return Result{}, fmt.Errorf("call: unexpected %s", o.op())
}

func init() {
	register(func(b base) Opcode { return &callOp{b} },
		bytecode.OpCallFunction, bytecode.OpCallFunctionKw, bytecode.OpCallFunctionEx,
		bytecode.OpLoadMethod, bytecode.OpCallMethod, bytecode.OpMakeFunction)
}
