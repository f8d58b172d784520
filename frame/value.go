// Package frame holds the immutable per-program-point snapshots used by
// flow analysis: the operand stack, local slots and cell slots, each entry
// tagged with the type inferred for it and the instructions that produced it.
package frame

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/chazu/stackflow/types"
)

// MethodRef identifies an unbound method looked up on Owner.
type MethodRef struct {
	Owner *types.Type
	Name  string
}

// ValueSource records what is known about one stack or slot entry. Origins
// lists the instruction indices that may have produced the value and is for
// diagnostics only.
type ValueSource struct {
	Type    *types.Type
	Origins []int

	// Refers is set when the value is the class object for a type rather
	// than an instance of Type.
	Refers *types.Type

	// Method is set for the callable pushed by a method lookup.
	Method *MethodRef
}

// Of creates a value of type t produced by instruction origin. A negative
// origin means the value was seeded rather than produced.
func Of(t *types.Type, origin int) *ValueSource {
	v := &ValueSource{Type: t}
	if origin >= 0 {
		v.Origins = []int{origin}
	}
	return v
}

// ClassOf creates a class-object value: its type is meta, it refers to cls.
func ClassOf(meta, cls *types.Type, origin int) *ValueSource {
	v := Of(meta, origin)
	v.Refers = cls
	return v
}

// TypeOf returns v's type, or nil for an unset entry.
func (v *ValueSource) TypeOf() *types.Type {
	if v == nil {
		return nil
	}
	return v.Type
}

// Merge combines two values reaching the same position. Either side unset
// yields unset.
func (v *ValueSource) Merge(o *ValueSource) *ValueSource {
	if v == nil || o == nil {
		return nil
	}
	if v == o {
		return v
	}
	out := &ValueSource{
		Type:    types.Unify(v.Type, o.Type),
		Origins: mergeOrigins(v.Origins, o.Origins),
	}
	if v.Refers == o.Refers {
		out.Refers = v.Refers
	}
	if v.Method != nil && o.Method != nil && *v.Method == *o.Method {
		out.Method = v.Method
	}
	return out
}

// Same reports whether v and o carry the same inferred information.
// Origins are ignored.
func (v *ValueSource) Same(o *ValueSource) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.Type != o.Type || v.Refers != o.Refers {
		return false
	}
	if (v.Method == nil) != (o.Method == nil) {
		return false
	}
	return v.Method == nil || *v.Method == *o.Method
}

func (v *ValueSource) String() string {
	if v == nil {
		return "-"
	}
	var sb strings.Builder
	switch {
	case v.Refers != nil:
		sb.WriteString("class ")
		sb.WriteString(v.Refers.Name())
	case v.Method != nil:
		sb.WriteString(v.Method.Owner.String())
		sb.WriteByte('.')
		sb.WriteString(v.Method.Name)
	default:
		sb.WriteString(v.Type.String())
	}
	if len(v.Origins) > 0 {
		sb.WriteByte('@')
		for i, o := range v.Origins {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Itoa(o))
		}
	}
	return sb.String()
}

func mergeOrigins(a, b []int) []int {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	seen := set.From(a)
	seen.InsertSlice(b)
	out := seen.Slice()
	sort.Ints(out)
	return out
}
