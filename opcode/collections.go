package opcode

import (
	"fmt"

	"github.com/chazu/stackflow/frame"
	"github.com/chazu/stackflow/pkg/bytecode"
	"github.com/chazu/stackflow/types"
)

// ============================================================================
// Building and unpacking collections
// ============================================================================

type collectionOp struct{ base }

func (o *collectionOp) Implement(e Emitter, in *frame.Metadata) error { return e.Emit(o, in) }

func (o *collectionOp) Effect(env *Env, in *frame.Metadata) (Result, error) {
	b := env.Builtins
	n := o.arg()
	if n < 0 {
		return Result{}, negativeArg(o.base)
	}
	switch o.op() {
	case bytecode.OpBuildTuple:
		return o.build(in, n, b.Tuple)
	case bytecode.OpBuildList:
		return o.build(in, n, b.List)
	case bytecode.OpBuildSet:
		return o.build(in, n, b.Set)
	case bytecode.OpBuildMap:
		return o.build(in, 2*n, b.Dict)
	case bytecode.OpBuildConstKeyMap:
		return o.build(in, n+1, b.Dict)
	case bytecode.OpBuildString:
		return o.build(in, n, b.Str)
	case bytecode.OpBuildSlice:
		return o.build(in, n, b.Slice)
	case bytecode.OpListToTuple:
		return o.build(in, 1, b.Tuple)
	case bytecode.OpListAppend, bytecode.OpSetAdd, bytecode.OpListExtend,
		bytecode.OpSetUpdate, bytecode.OpDictMerge, bytecode.OpDictUpdate:
		return o.drop(in, 1)
	case bytecode.OpMapAdd:
		return o.drop(in, 2)
	case bytecode.OpGetLen:
		if _, err := in.Top(1); err != nil {
			return Result{}, err
		}
		return next(in.Push(frame.Of(b.Int, o.index)))
	case bytecode.OpFormatValue:
		pop := 1
		if n&0x04 != 0 {
			pop++
		}
		return o.build(in, pop, b.Str)
	case bytecode.OpUnpackSequence:
		vs, out, err := popN(in, 1)
		if err != nil {
			return Result{}, err
		}
		elem := o.element(env, vs[0])
		items := make([]*frame.ValueSource, n)
		for i := range items {
			items[i] = frame.Of(elem, o.index)
		}
		return next(out.Push(items...))
	case bytecode.OpUnpackEx:
		vs, out, err := popN(in, 1)
		if err != nil {
			return Result{}, err
		}
		before, after := n&0xFF, n>>8
		elem := o.element(env, vs[0])
		items := make([]*frame.ValueSource, 0, before+after+1)
		for i := 0; i < after; i++ {
			items = append(items, frame.Of(elem, o.index))
		}
		items = append(items, frame.Of(b.List, o.index))
		for i := 0; i < before; i++ {
			items = append(items, frame.Of(elem, o.index))
		}
		return next(out.Push(items...))
	}
	return Result{}, fmt.Errorf("collection: unexpected %s", o.op())
}

func (o *collectionOp) build(in *frame.Metadata, n int, t *types.Type) (Result, error) {
	out, err := in.Pop(n)
	if err != nil {
		return Result{}, err
	}
	return next(out.Push(frame.Of(t, o.index)))
}

func (o *collectionOp) drop(in *frame.Metadata, n int) (Result, error) {
	out, err := in.Pop(n)
	if err != nil {
		return Result{}, err
	}
	return next(out)
}

// element is the item type produced by unpacking v. Only strings are known
// to unpack into values of their own type.
func (o *collectionOp) element(env *Env, v *frame.ValueSource) *types.Type {
	if t := v.TypeOf(); t != nil && v.Refers == nil && t.IsSubtypeOf(env.Builtins.Str) {
		return env.Builtins.Str
	}
	return env.Base()
}

// ============================================================================
// Attributes, subscripts and imports
// ============================================================================

type memberOp struct{ base }

func (o *memberOp) Implement(e Emitter, in *frame.Metadata) error { return e.Emit(o, in) }

func (o *memberOp) Effect(env *Env, in *frame.Metadata) (Result, error) {
	switch o.op() {
	case bytecode.OpLoadAttr:
		name, err := env.name(o.arg())
		if err != nil {
			return Result{}, err
		}
		vs, out, err := popN(in, 1)
		if err != nil {
			return Result{}, err
		}
		return next(out.Push(frame.Of(env.attribute(vs[0], name), o.index)))
	case bytecode.OpStoreAttr:
		if _, err := env.name(o.arg()); err != nil {
			return Result{}, err
		}
		return o.drop(in, 2)
	case bytecode.OpDeleteAttr:
		if _, err := env.name(o.arg()); err != nil {
			return Result{}, err
		}
		return o.drop(in, 1)
	case bytecode.OpBinarySubscr:
		vs, out, err := popN(in, 2)
		if err != nil {
			return Result{}, err
		}
		ret := methodReturn(vs[0].TypeOf(), "__getitem__", []*types.Type{vs[1].TypeOf()})
		return next(out.Push(env.value(ret, o.index)))
	case bytecode.OpStoreSubscr:
		return o.drop(in, 3)
	case bytecode.OpDeleteSubscr:
		return o.drop(in, 2)
	case bytecode.OpImportName:
		if _, err := env.name(o.arg()); err != nil {
			return Result{}, err
		}
		out, err := in.Pop(2)
		if err != nil {
			return Result{}, err
		}
		return next(out.Push(frame.Of(env.Builtins.Module, o.index)))
	case bytecode.OpImportFrom:
		if _, err := in.Top(1); err != nil {
			return Result{}, err
		}
		return next(in.Push(env.base(o.index)))
	case bytecode.OpImportStar:
		return o.drop(in, 1)
	}
	return Result{}, fmt.Errorf("member: unexpected %s", o.op())
}

func (o *memberOp) drop(in *frame.Metadata, n int) (Result, error) {
	out, err := in.Pop(n)
	if err != nil {
		return Result{}, err
	}
	return next(out)
}

func init() {
	register(func(b base) Opcode { return &collectionOp{b} },
		bytecode.OpBuildTuple, bytecode.OpBuildList, bytecode.OpBuildSet, bytecode.OpBuildMap,
		bytecode.OpBuildConstKeyMap, bytecode.OpBuildString, bytecode.OpBuildSlice,
		bytecode.OpListAppend, bytecode.OpSetAdd, bytecode.OpMapAdd, bytecode.OpListExtend,
		bytecode.OpSetUpdate, bytecode.OpDictMerge, bytecode.OpDictUpdate, bytecode.OpListToTuple,
		bytecode.OpUnpackSequence, bytecode.OpUnpackEx, bytecode.OpFormatValue, bytecode.OpGetLen)
	register(func(b base) Opcode { return &memberOp{b} },
		bytecode.OpLoadAttr, bytecode.OpStoreAttr, bytecode.OpDeleteAttr,
		bytecode.OpBinarySubscr, bytecode.OpStoreSubscr, bytecode.OpDeleteSubscr,
		bytecode.OpImportName, bytecode.OpImportFrom, bytecode.OpImportStar)
}
