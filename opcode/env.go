package opcode

import (
	"fmt"

	"github.com/chazu/stackflow/frame"
	"github.com/chazu/stackflow/types"
)

// Base is the type assumed when nothing better is known.
func (env *Env) Base() *types.Type { return env.Registry.Base() }

func (env *Env) value(t *types.Type, origin int) *frame.ValueSource {
	if t == nil {
		t = env.Base()
	}
	return frame.Of(t, origin)
}

func (env *Env) base(origin int) *frame.ValueSource { return frame.Of(env.Base(), origin) }

// ExceptionFrame is what a handler finds on top of the stack it was entered
// with, bottom to top: the saved exception state (None, an int marker and a
// None placeholder) followed by the traceback, the exception instance and
// its class.
func (env *Env) ExceptionFrame(origin int) []*frame.ValueSource {
	b := env.Builtins
	return []*frame.ValueSource{
		frame.Of(b.None, origin),
		frame.Of(b.Int, origin),
		frame.Of(b.None, origin),
		frame.Of(b.Traceback, origin),
		frame.Of(b.BaseException, origin),
		frame.Of(b.Type, origin),
	}
}

// ExceptionFrameDepth is len(ExceptionFrame).
const ExceptionFrameDepth = 6

func (env *Env) name(i int) (string, error) {
	if env.Function == nil || i < 0 || i >= len(env.Function.Names) {
		return "", fmt.Errorf("name index %d out of range", i)
	}
	return env.Function.Names[i], nil
}

func (env *Env) constant(i int, origin int) (*frame.ValueSource, error) {
	if env.Function == nil || i < 0 || i >= len(env.Function.Constants) {
		return nil, fmt.Errorf("constant index %d out of range", i)
	}
	c := env.Function.Constants[i]
	if c.Class != nil {
		return frame.ClassOf(env.Builtins.Type, c.Class, origin), nil
	}
	return env.value(c.Type, origin), nil
}

// global resolves a module-level name: declared globals first, then
// registered class names.
func (env *Env) global(name string, origin int) *frame.ValueSource {
	if env.Function != nil {
		if t, ok := env.Function.Globals[name]; ok {
			return env.value(t, origin)
		}
	}
	if cls := env.Registry.Lookup(name); cls != nil {
		return frame.ClassOf(env.Builtins.Type, cls, origin)
	}
	return env.base(origin)
}

// ---------------------------------------------------------------------------
// Best-effort member typing
// ---------------------------------------------------------------------------

// methodReturn resolves name on recv for args. The nearest declaration is
// tried first, then every overload reachable through the MRO. nil means
// unresolved.
func methodReturn(recv *types.Type, name string, args []*types.Type) *types.Type {
	if recv == nil {
		return nil
	}
	set, _ := recv.LookupMethod(name)
	if set == nil {
		return nil
	}
	if ret := set.ReturnFor(args); ret != nil {
		return ret
	}
	return recv.MethodType(name).ReturnFor(args)
}

// binary types l <op> r: the in-place form when asked, then the forward
// operator on l, then the reflected operator on r.
func (env *Env) binary(l, r *types.Type, op string, inplace bool) *types.Type {
	if inplace {
		if ret := methodReturn(l, types.InPlace(op), []*types.Type{r}); ret != nil {
			return ret
		}
	}
	if ret := methodReturn(l, op, []*types.Type{r}); ret != nil {
		return ret
	}
	if refl, ok := types.BinaryOperators[op]; ok {
		if ret := methodReturn(r, refl, []*types.Type{l}); ret != nil {
			return ret
		}
	}
	return env.Base()
}

// call types calling callee with positional args. args is nil when the
// positional arity is unknown.
func (env *Env) call(callee *frame.ValueSource, args []*types.Type) *types.Type {
	if callee == nil {
		return env.Base()
	}
	if cls := callee.Refers; cls != nil {
		if cls == env.Builtins.Type && len(args) == 1 {
			return env.Builtins.Type
		}
		if args != nil {
			if ret := cls.Constructor().ReturnFor(args); ret != nil && ret.IsSubtypeOf(cls) {
				return ret
			}
		}
		return cls
	}
	if m := callee.Method; m != nil && args != nil {
		if ret := methodReturn(m.Owner, m.Name, args); ret != nil {
			return ret
		}
		return env.Base()
	}
	if args != nil {
		if ret := methodReturn(callee.Type, "__call__", args); ret != nil {
			return ret
		}
	}
	return env.Base()
}

// attribute types obj.name.
func (env *Env) attribute(obj *frame.ValueSource, name string) *types.Type {
	if obj == nil {
		return env.Base()
	}
	if cls := obj.Refers; cls != nil {
		if cls.HasMethod(name) {
			return env.Builtins.Function
		}
		if ft, ok := cls.Field(name); ok {
			return ft
		}
		return env.Base()
	}
	if ft, ok := obj.Type.Field(name); ok {
		return ft
	}
	if obj.Type.HasMethod(name) {
		return env.Builtins.Method
	}
	return env.Base()
}

// popN pops n entries and returns them deepest first.
func popN(in *frame.Metadata, n int) ([]*frame.ValueSource, *frame.Metadata, error) {
	vs, err := in.Top(n)
	if err != nil {
		return nil, nil, err
	}
	out, err := in.Pop(n)
	if err != nil {
		return nil, nil, err
	}
	return vs, out, nil
}

func typesOf(vs []*frame.ValueSource) []*types.Type {
	out := make([]*types.Type, len(vs))
	for i, v := range vs {
		out[i] = v.TypeOf()
	}
	return out
}

func negativeArg(b base) error {
	return fmt.Errorf("%s: negative argument %d", b.op(), b.arg())
}
