package opcode

import (
	"fmt"

	"github.com/chazu/stackflow/frame"
	"github.com/chazu/stackflow/pkg/bytecode"
)

var unaryMethods = map[bytecode.Opcode]string{
	bytecode.OpUnaryPositive: "__pos__",
	bytecode.OpUnaryNegative: "__neg__",
	bytecode.OpUnaryInvert:   "__invert__",
}

var binaryMethods = map[bytecode.Opcode]string{
	bytecode.OpBinaryPower:          "__pow__",
	bytecode.OpBinaryMultiply:       "__mul__",
	bytecode.OpBinaryMatrixMultiply: "__matmul__",
	bytecode.OpBinaryFloorDivide:    "__floordiv__",
	bytecode.OpBinaryTrueDivide:     "__truediv__",
	bytecode.OpBinaryModulo:         "__mod__",
	bytecode.OpBinaryAdd:            "__add__",
	bytecode.OpBinarySubtract:       "__sub__",
	bytecode.OpBinaryLshift:         "__lshift__",
	bytecode.OpBinaryRshift:         "__rshift__",
	bytecode.OpBinaryAnd:            "__and__",
	bytecode.OpBinaryXor:            "__xor__",
	bytecode.OpBinaryOr:             "__or__",
}

var inplaceMethods = map[bytecode.Opcode]string{
	bytecode.OpInplacePower:          "__pow__",
	bytecode.OpInplaceMultiply:       "__mul__",
	bytecode.OpInplaceMatrixMultiply: "__matmul__",
	bytecode.OpInplaceFloorDivide:    "__floordiv__",
	bytecode.OpInplaceTrueDivide:     "__truediv__",
	bytecode.OpInplaceModulo:         "__mod__",
	bytecode.OpInplaceAdd:            "__add__",
	bytecode.OpInplaceSubtract:       "__sub__",
	bytecode.OpInplaceLshift:         "__lshift__",
	bytecode.OpInplaceRshift:         "__rshift__",
	bytecode.OpInplaceAnd:            "__and__",
	bytecode.OpInplaceXor:            "__xor__",
	bytecode.OpInplaceOr:             "__or__",
}

// ============================================================================
// Unary, binary and comparison operators
// ============================================================================

type operatorOp struct{ base }

func (o *operatorOp) Implement(e Emitter, in *frame.Metadata) error { return e.Emit(o, in) }

func (o *operatorOp) Effect(env *Env, in *frame.Metadata) (Result, error) {
	op := o.op()
	switch {
	case op == bytecode.OpUnaryNot:
		return o.replace(in, 1, frame.Of(env.Builtins.Bool, o.index))
	case unaryMethods[op] != "":
		ret := methodReturn(in.Peek(0).TypeOf(), unaryMethods[op], nil)
		return o.replace(in, 1, env.value(ret, o.index))
	case binaryMethods[op] != "":
		return o.binary(env, in, binaryMethods[op], false)
	case inplaceMethods[op] != "":
		return o.binary(env, in, inplaceMethods[op], true)
	case op == bytecode.OpCompareOp, op == bytecode.OpIsOp, op == bytecode.OpContainsOp:
		return o.replace(in, 2, frame.Of(env.Builtins.Bool, o.index))
	}
	return Result{}, fmt.Errorf("operator: unexpected %s", op)
}

func (o *operatorOp) binary(env *Env, in *frame.Metadata, method string, inplace bool) (Result, error) {
	vs, out, err := popN(in, 2)
	if err != nil {
		return Result{}, err
	}
	t := env.binary(vs[0].TypeOf(), vs[1].TypeOf(), method, inplace)
	return next(out.Push(frame.Of(t, o.index)))
}

func (o *operatorOp) replace(in *frame.Metadata, n int, v *frame.ValueSource) (Result, error) {
	out, err := in.Pop(n)
	if err != nil {
		return Result{}, err
	}
	return next(out.Push(v))
}

func init() {
	ops := []bytecode.Opcode{bytecode.OpUnaryNot, bytecode.OpCompareOp, bytecode.OpIsOp, bytecode.OpContainsOp}
	for _, m := range []map[bytecode.Opcode]string{unaryMethods, binaryMethods, inplaceMethods} {
		for op := range m {
			ops = append(ops, op)
		}
	}
	register(func(b base) Opcode { return &operatorOp{b} }, ops...)
}
