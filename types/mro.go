package types

import (
	"fmt"
	"strings"
)

// LinearizationError reports a hierarchy for which no consistent method
// resolution order exists. The offending type is never registered.
type LinearizationError struct {
	Type      string
	Parents   []string
	Remaining [][]string
}

func (e *LinearizationError) Error() string {
	parts := make([]string, len(e.Remaining))
	for i, l := range e.Remaining {
		parts[i] = "[" + strings.Join(l, " ") + "]"
	}
	return fmt.Sprintf("types: cannot linearize %s(%s): no consistent order for %s",
		e.Type, strings.Join(e.Parents, ", "), strings.Join(parts, " "))
}

// linearize computes the C3 merge for a new type t with the given declared
// parents. Each parent's MRO is one candidate list and the declared parent
// list itself is appended last so local precedence is preserved.
func linearize(t *Type, parents []*Type) ([]*Type, error) {
	lists := make([][]*Type, 0, len(parents)+1)
	for _, p := range parents {
		lists = append(lists, append([]*Type(nil), p.mro...))
	}
	lists = append(lists, append([]*Type(nil), parents...))

	out := []*Type{t}
	for {
		lists = dropEmpty(lists)
		if len(lists) == 0 {
			return out, nil
		}

		var next *Type
		for _, l := range lists {
			if !inAnyTail(l[0], lists) {
				next = l[0]
				break
			}
		}
		if next == nil {
			return nil, linearizationError(t, parents, lists)
		}

		out = append(out, next)
		for i, l := range lists {
			if l[0] == next {
				lists[i] = l[1:]
			}
		}
	}
}

func dropEmpty(lists [][]*Type) [][]*Type {
	out := lists[:0]
	for _, l := range lists {
		if len(l) > 0 {
			out = append(out, l)
		}
	}
	return out
}

func inAnyTail(c *Type, lists [][]*Type) bool {
	for _, l := range lists {
		for _, x := range l[1:] {
			if x == c {
				return true
			}
		}
	}
	return false
}

func linearizationError(t *Type, parents []*Type, lists [][]*Type) *LinearizationError {
	e := &LinearizationError{Type: t.name}
	for _, p := range parents {
		e.Parents = append(e.Parents, p.name)
	}
	for _, l := range lists {
		names := make([]string, len(l))
		for i, x := range l {
			names[i] = x.name
		}
		e.Remaining = append(e.Remaining, names)
	}
	return e
}
