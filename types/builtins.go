package types

import "fmt"

// Builtins holds handles to the builtin types every compilation relies on.
type Builtins struct {
	Object  *Type
	Type    *Type
	None    *Type
	Int     *Type
	Bool    *Type
	Float   *Type
	Complex *Type
	Str     *Type
	Bytes   *Type

	Tuple     *Type
	List      *Type
	Dict      *Type
	Set       *Type
	FrozenSet *Type
	Slice     *Type
	Range     *Type

	Iterator  *Type
	Generator *Type
	Function  *Type
	Method    *Type
	Cell      *Type
	Code      *Type
	Module    *Type
	Traceback *Type

	BaseException       *Type
	Exception           *Type
	StopIteration       *Type
	AssertionError      *Type
	TypeError           *Type
	ValueError          *Type
	LookupError         *Type
	KeyError            *Type
	IndexError          *Type
	AttributeError      *Type
	NameError           *Type
	ArithmeticError     *Type
	ZeroDivisionError   *Type
	RuntimeError        *Type
	NotImplementedError *Type
}

// Binary operators with a reflected form.
var BinaryOperators = map[string]string{
	"__add__":      "__radd__",
	"__sub__":      "__rsub__",
	"__mul__":      "__rmul__",
	"__matmul__":   "__rmatmul__",
	"__truediv__":  "__rtruediv__",
	"__floordiv__": "__rfloordiv__",
	"__mod__":      "__rmod__",
	"__pow__":      "__rpow__",
	"__lshift__":   "__rlshift__",
	"__rshift__":   "__rrshift__",
	"__and__":      "__rand__",
	"__or__":       "__ror__",
	"__xor__":      "__rxor__",
}

// InPlace maps a binary operator to its in-place form.
func InPlace(op string) string {
	return "__i" + op[2:]
}

// Bootstrap declares the builtin hierarchy. The registry must be in the
// declaration phase; members are bound later with Bind.
func Bootstrap(r *Registry) (*Builtins, error) {
	b := &Builtins{Object: r.Base()}
	var err error
	decl := func(dst **Type, name string, parents ...*Type) {
		if err != nil {
			return
		}
		*dst, err = r.Declare(name, parents...)
	}

	decl(&b.Type, "type")
	decl(&b.None, "NoneType")
	decl(&b.Int, "int")
	decl(&b.Bool, "bool", b.Int)
	decl(&b.Float, "float")
	decl(&b.Complex, "complex")
	decl(&b.Str, "str")
	decl(&b.Bytes, "bytes")

	decl(&b.Tuple, "tuple")
	decl(&b.List, "list")
	decl(&b.Dict, "dict")
	decl(&b.Set, "set")
	decl(&b.FrozenSet, "frozenset")
	decl(&b.Slice, "slice")
	decl(&b.Range, "range")

	decl(&b.Iterator, "iterator")
	decl(&b.Generator, "generator", b.Iterator)
	decl(&b.Function, "function")
	decl(&b.Method, "method")
	decl(&b.Cell, "cell")
	decl(&b.Code, "code")
	decl(&b.Module, "module")
	decl(&b.Traceback, "traceback")

	decl(&b.BaseException, "BaseException")
	decl(&b.Exception, "Exception", b.BaseException)
	decl(&b.StopIteration, "StopIteration", b.Exception)
	decl(&b.AssertionError, "AssertionError", b.Exception)
	decl(&b.TypeError, "TypeError", b.Exception)
	decl(&b.ValueError, "ValueError", b.Exception)
	decl(&b.LookupError, "LookupError", b.Exception)
	decl(&b.KeyError, "KeyError", b.LookupError)
	decl(&b.IndexError, "IndexError", b.LookupError)
	decl(&b.AttributeError, "AttributeError", b.Exception)
	decl(&b.NameError, "NameError", b.Exception)
	decl(&b.ArithmeticError, "ArithmeticError", b.Exception)
	decl(&b.ZeroDivisionError, "ZeroDivisionError", b.ArithmeticError)
	decl(&b.RuntimeError, "RuntimeError", b.Exception)
	decl(&b.NotImplementedError, "NotImplementedError", b.RuntimeError)

	if err != nil {
		return nil, fmt.Errorf("bootstrap builtins: %w", err)
	}
	return b, nil
}

// Bind attaches builtin methods, operators, fields and constructors. The
// registry must be in the binding phase.
func (b *Builtins) Bind(r *Registry) error {
	var err error
	sig := func(ret *Type, params ...*Type) Signature {
		return Signature{Params: params, Return: ret}
	}
	method := func(t *Type, name string, s Signature) {
		if err == nil {
			err = r.BindMethod(t, name, s)
		}
	}
	field := func(t *Type, name string, ft *Type) {
		if err == nil {
			err = r.BindField(t, name, ft)
		}
	}
	ctor := func(t *Type, s Signature) {
		if err == nil {
			err = r.BindConstructor(t, s)
		}
	}
	obj := b.Object

	// object
	method(obj, "__eq__", sig(b.Bool, obj))
	method(obj, "__ne__", sig(b.Bool, obj))
	method(obj, "__hash__", sig(b.Int))
	method(obj, "__str__", sig(b.Str))
	method(obj, "__repr__", sig(b.Str))
	ctor(obj, sig(obj))

	// int and bool
	for _, op := range []string{"__add__", "__sub__", "__mul__", "__floordiv__", "__mod__", "__pow__",
		"__lshift__", "__rshift__", "__and__", "__or__", "__xor__"} {
		method(b.Int, op, sig(b.Int, b.Int))
	}
	for _, op := range []string{"__add__", "__sub__", "__mul__", "__floordiv__", "__mod__", "__pow__", "__truediv__"} {
		method(b.Int, op, sig(b.Float, b.Float))
	}
	method(b.Int, "__truediv__", sig(b.Float, b.Int))
	method(b.Int, "__neg__", sig(b.Int))
	method(b.Int, "__pos__", sig(b.Int))
	method(b.Int, "__invert__", sig(b.Int))
	method(b.Int, "__index__", sig(b.Int))
	method(b.Int, "bit_length", sig(b.Int))
	ctor(b.Int, sig(b.Int))
	ctor(b.Int, sig(b.Int, obj))
	ctor(b.Bool, sig(b.Bool, obj))

	// float
	for _, op := range []string{"__add__", "__sub__", "__mul__", "__truediv__", "__floordiv__", "__mod__", "__pow__"} {
		method(b.Float, op, sig(b.Float, b.Float))
		method(b.Float, op, sig(b.Float, b.Int))
		method(b.Float, "__r"+op[2:], sig(b.Float, b.Int))
	}
	method(b.Float, "__neg__", sig(b.Float))
	method(b.Float, "__pos__", sig(b.Float))
	method(b.Float, "is_integer", sig(b.Bool))
	ctor(b.Float, sig(b.Float))
	ctor(b.Float, sig(b.Float, obj))

	method(b.Complex, "__add__", sig(b.Complex, b.Complex))
	method(b.Complex, "__mul__", sig(b.Complex, b.Complex))
	field(b.Complex, "real", b.Float)
	field(b.Complex, "imag", b.Float)

	// str and bytes
	method(b.Str, "__add__", sig(b.Str, b.Str))
	method(b.Str, "__mul__", sig(b.Str, b.Int))
	method(b.Str, "__mod__", sig(b.Str, obj))
	method(b.Str, "__getitem__", sig(b.Str, b.Int))
	method(b.Str, "__getitem__", sig(b.Str, b.Slice))
	method(b.Str, "__len__", sig(b.Int))
	method(b.Str, "__iter__", sig(b.Iterator))
	method(b.Str, "__contains__", sig(b.Bool, b.Str))
	method(b.Str, "upper", sig(b.Str))
	method(b.Str, "lower", sig(b.Str))
	method(b.Str, "strip", sig(b.Str))
	method(b.Str, "join", sig(b.Str, obj))
	method(b.Str, "split", sig(b.List))
	method(b.Str, "split", sig(b.List, b.Str))
	method(b.Str, "startswith", sig(b.Bool, b.Str))
	method(b.Str, "format", Signature{Params: []*Type{obj}, Variadic: true, Return: b.Str})
	method(b.Str, "encode", sig(b.Bytes))
	ctor(b.Str, sig(b.Str))
	ctor(b.Str, sig(b.Str, obj))

	method(b.Bytes, "__add__", sig(b.Bytes, b.Bytes))
	method(b.Bytes, "__getitem__", sig(b.Int, b.Int))
	method(b.Bytes, "__len__", sig(b.Int))
	method(b.Bytes, "decode", sig(b.Str))

	// collections
	for _, c := range []*Type{b.Tuple, b.List} {
		method(c, "__add__", sig(c, c))
		method(c, "__mul__", sig(c, b.Int))
		method(c, "__getitem__", sig(obj, b.Int))
		method(c, "__getitem__", sig(c, b.Slice))
		method(c, "__len__", sig(b.Int))
		method(c, "__iter__", sig(b.Iterator))
		method(c, "__contains__", sig(b.Bool, obj))
		method(c, "index", sig(b.Int, obj))
		method(c, "count", sig(b.Int, obj))
		ctor(c, sig(c))
		ctor(c, sig(c, obj))
	}
	method(b.List, "append", sig(b.None, obj))
	method(b.List, "extend", sig(b.None, obj))
	method(b.List, "pop", sig(obj))
	method(b.List, "pop", sig(obj, b.Int))
	method(b.List, "copy", sig(b.List))
	method(b.List, "__setitem__", sig(b.None, b.Int, obj))

	method(b.Dict, "__getitem__", sig(obj, obj))
	method(b.Dict, "__setitem__", sig(b.None, obj, obj))
	method(b.Dict, "__len__", sig(b.Int))
	method(b.Dict, "__iter__", sig(b.Iterator))
	method(b.Dict, "__contains__", sig(b.Bool, obj))
	method(b.Dict, "get", sig(obj, obj))
	method(b.Dict, "get", sig(obj, obj, obj))
	method(b.Dict, "keys", sig(b.Iterator))
	method(b.Dict, "values", sig(b.Iterator))
	method(b.Dict, "items", sig(b.Iterator))
	ctor(b.Dict, sig(b.Dict))

	for _, c := range []*Type{b.Set, b.FrozenSet} {
		method(c, "__or__", sig(c, c))
		method(c, "__and__", sig(c, c))
		method(c, "__sub__", sig(c, c))
		method(c, "__len__", sig(b.Int))
		method(c, "__iter__", sig(b.Iterator))
		method(c, "__contains__", sig(b.Bool, obj))
		ctor(c, sig(c))
		ctor(c, sig(c, obj))
	}
	method(b.Set, "add", sig(b.None, obj))

	method(b.Range, "__iter__", sig(b.Iterator))
	method(b.Range, "__len__", sig(b.Int))
	ctor(b.Range, sig(b.Range, b.Int))
	ctor(b.Range, sig(b.Range, b.Int, b.Int))
	ctor(b.Range, sig(b.Range, b.Int, b.Int, b.Int))
	field(b.Slice, "start", obj)
	field(b.Slice, "stop", obj)
	field(b.Slice, "step", obj)

	// iteration protocol
	method(b.Iterator, "__iter__", sig(b.Iterator))
	method(b.Iterator, "__next__", sig(obj))
	method(b.Generator, "__iter__", sig(b.Generator))
	method(b.Generator, "send", sig(obj, obj))
	method(b.Generator, "close", sig(b.None))

	// exceptions
	field(b.BaseException, "args", b.Tuple)
	field(b.BaseException, "__traceback__", b.Traceback)
	method(b.BaseException, "with_traceback", sig(b.BaseException, b.Traceback))
	ctor(b.BaseException, Signature{Params: []*Type{obj}, Variadic: true, Return: b.BaseException})
	field(b.StopIteration, "value", obj)
	field(b.Traceback, "tb_lineno", b.Int)
	field(b.Traceback, "tb_next", b.Traceback)

	field(b.Function, "__name__", b.Str)
	field(b.Module, "__name__", b.Str)
	field(b.Type, "__name__", b.Str)
	method(b.Type, "mro", sig(b.List))

	if err != nil {
		return fmt.Errorf("bind builtins: %w", err)
	}
	return nil
}

// Numeric reports whether t is int, bool or float.
func (b *Builtins) Numeric(t *Type) bool {
	return t != nil && (t.IsSubtypeOf(b.Int) || t.IsSubtypeOf(b.Float))
}

// NewBuiltinRegistry builds a frozen registry holding only the builtins.
func NewBuiltinRegistry() (*Registry, *Builtins, error) {
	r := NewRegistry("object")
	b, err := Bootstrap(r)
	if err != nil {
		return nil, nil, err
	}
	if err := r.CloseDeclarations(); err != nil {
		return nil, nil, err
	}
	if err := b.Bind(r); err != nil {
		return nil, nil, err
	}
	r.Freeze()
	return r, b, nil
}
