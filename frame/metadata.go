package frame

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/stackflow/types"
)

var ErrSlotRange = errors.New("frame: slot index out of range")

// UnderflowError reports a pop deeper than the stack.
type UnderflowError struct {
	Need, Have int
}

func (e *UnderflowError) Error() string {
	return fmt.Sprintf("frame: stack underflow: need %d, have %d", e.Need, e.Have)
}

// DepthMismatchError reports a merge of snapshots with different stack
// depths.
type DepthMismatchError struct {
	Left, Right int
}

func (e *DepthMismatchError) Error() string {
	return fmt.Sprintf("frame: stack depth mismatch: %d vs %d", e.Left, e.Right)
}

// ---------------------------------------------------------------------------
// Metadata: one immutable snapshot
// ---------------------------------------------------------------------------

// Metadata is the inferred state at one program point. Stack index 0 is the
// bottom; Peek(0) is the top. Every method returns a new snapshot and never
// mutates the receiver.
type Metadata struct {
	stack  []*ValueSource
	locals []*ValueSource
	cells  []*ValueSource
	dead   bool
}

// New returns an empty, reachable snapshot with the given slot counts, all
// unset.
func New(locals, cells int) *Metadata {
	return &Metadata{
		locals: make([]*ValueSource, locals),
		cells:  make([]*ValueSource, cells),
	}
}

func (m *Metadata) clone() *Metadata {
	return &Metadata{
		stack:  append([]*ValueSource(nil), m.stack...),
		locals: append([]*ValueSource(nil), m.locals...),
		cells:  append([]*ValueSource(nil), m.cells...),
		dead:   m.dead,
	}
}

// Reachable reports whether any path reaches this point.
func (m *Metadata) Reachable() bool { return !m.dead }

// Unreachable returns a copy flagged as dead code.
func (m *Metadata) Unreachable() *Metadata {
	out := m.clone()
	out.dead = true
	return out
}

// Depth returns the operand stack depth.
func (m *Metadata) Depth() int { return len(m.stack) }

// Peek returns the entry n positions below the top, or nil when out of range.
func (m *Metadata) Peek(n int) *ValueSource {
	i := len(m.stack) - 1 - n
	if n < 0 || i < 0 {
		return nil
	}
	return m.stack[i]
}

// Top returns the top n entries, deepest first.
func (m *Metadata) Top(n int) ([]*ValueSource, error) {
	if n > len(m.stack) {
		return nil, &UnderflowError{Need: n, Have: len(m.stack)}
	}
	return append([]*ValueSource(nil), m.stack[len(m.stack)-n:]...), nil
}

// Stack returns a copy of the operand stack, bottom first.
func (m *Metadata) Stack() []*ValueSource {
	return append([]*ValueSource(nil), m.stack...)
}

// Push returns a snapshot with vs pushed in order, the last ending on top.
func (m *Metadata) Push(vs ...*ValueSource) *Metadata {
	out := m.clone()
	out.stack = append(out.stack, vs...)
	return out
}

// Pop returns a snapshot with the top n entries removed.
func (m *Metadata) Pop(n int) (*Metadata, error) {
	if n > len(m.stack) {
		return nil, &UnderflowError{Need: n, Have: len(m.stack)}
	}
	out := m.clone()
	out.stack = out.stack[:len(out.stack)-n]
	return out, nil
}

// Replace returns a snapshot with the entry n below the top set to v.
func (m *Metadata) Replace(n int, v *ValueSource) (*Metadata, error) {
	if n >= len(m.stack) {
		return nil, &UnderflowError{Need: n + 1, Have: len(m.stack)}
	}
	out := m.clone()
	out.stack[len(out.stack)-1-n] = v
	return out, nil
}

// Truncate returns a snapshot whose stack keeps only the bottom depth
// entries.
func (m *Metadata) Truncate(depth int) (*Metadata, error) {
	if depth > len(m.stack) {
		return nil, &UnderflowError{Need: depth, Have: len(m.stack)}
	}
	out := m.clone()
	out.stack = out.stack[:depth]
	return out, nil
}

// NumLocals returns the number of local slots.
func (m *Metadata) NumLocals() int { return len(m.locals) }

// NumCells returns the number of cell slots, bound cells first.
func (m *Metadata) NumCells() int { return len(m.cells) }

// Local returns local slot i; nil means unset.
func (m *Metadata) Local(i int) (*ValueSource, error) {
	if i < 0 || i >= len(m.locals) {
		return nil, fmt.Errorf("local %d of %d: %w", i, len(m.locals), ErrSlotRange)
	}
	return m.locals[i], nil
}

// SetLocal returns a snapshot with local i set to v. A nil v unsets it.
func (m *Metadata) SetLocal(i int, v *ValueSource) (*Metadata, error) {
	if i < 0 || i >= len(m.locals) {
		return nil, fmt.Errorf("local %d of %d: %w", i, len(m.locals), ErrSlotRange)
	}
	out := m.clone()
	out.locals[i] = v
	return out, nil
}

// Cell returns cell slot i; nil means unset.
func (m *Metadata) Cell(i int) (*ValueSource, error) {
	if i < 0 || i >= len(m.cells) {
		return nil, fmt.Errorf("cell %d of %d: %w", i, len(m.cells), ErrSlotRange)
	}
	return m.cells[i], nil
}

// SetCell returns a snapshot with cell i set to v.
func (m *Metadata) SetCell(i int, v *ValueSource) (*Metadata, error) {
	if i < 0 || i >= len(m.cells) {
		return nil, fmt.Errorf("cell %d of %d: %w", i, len(m.cells), ErrSlotRange)
	}
	out := m.clone()
	out.cells[i] = v
	return out, nil
}

// Locals returns a copy of the local slots.
func (m *Metadata) Locals() []*ValueSource {
	return append([]*ValueSource(nil), m.locals...)
}

// Cells returns a copy of the cell slots.
func (m *Metadata) Cells() []*ValueSource {
	return append([]*ValueSource(nil), m.cells...)
}

// WithSlots returns a snapshot with m's stack and the locals and cells of
// other.
func (m *Metadata) WithSlots(other *Metadata) *Metadata {
	out := m.clone()
	out.locals = append([]*ValueSource(nil), other.locals...)
	out.cells = append([]*ValueSource(nil), other.cells...)
	return out
}

// StackTypes returns the stack entry types, bottom first.
func (m *Metadata) StackTypes() []*types.Type { return typesOf(m.stack) }

// LocalTypes returns the local slot types; unset slots are nil.
func (m *Metadata) LocalTypes() []*types.Type { return typesOf(m.locals) }

// CellTypes returns the cell slot types; unset slots are nil.
func (m *Metadata) CellTypes() []*types.Type { return typesOf(m.cells) }

func typesOf(vs []*ValueSource) []*types.Type {
	out := make([]*types.Type, len(vs))
	for i, v := range vs {
		out[i] = v.TypeOf()
	}
	return out
}

// ---------------------------------------------------------------------------
// Merge and comparison
// ---------------------------------------------------------------------------

// Merge combines the states of two paths reaching the same point. An
// unreachable side contributes nothing. Stack depths must agree.
func Merge(a, b *Metadata) (*Metadata, error) {
	switch {
	case a == nil || a.dead:
		return b, nil
	case b == nil || b.dead:
		return a, nil
	}
	if len(a.stack) != len(b.stack) {
		return nil, &DepthMismatchError{Left: len(a.stack), Right: len(b.stack)}
	}
	if len(a.locals) != len(b.locals) || len(a.cells) != len(b.cells) {
		return nil, fmt.Errorf("frame: slot layout mismatch: %d/%d locals, %d/%d cells",
			len(a.locals), len(b.locals), len(a.cells), len(b.cells))
	}
	return &Metadata{
		stack:  mergeAll(a.stack, b.stack),
		locals: mergeAll(a.locals, b.locals),
		cells:  mergeAll(a.cells, b.cells),
	}, nil
}

func mergeAll(a, b []*ValueSource) []*ValueSource {
	out := make([]*ValueSource, len(a))
	for i := range a {
		out[i] = a[i].Merge(b[i])
	}
	return out
}

// Equal reports whether two snapshots carry the same inferred types.
func (m *Metadata) Equal(o *Metadata) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.dead == o.dead &&
		sameAll(m.stack, o.stack) &&
		sameAll(m.locals, o.locals) &&
		sameAll(m.cells, o.cells)
}

// SameSlots reports whether the locals and cells of m and o match.
func (m *Metadata) SameSlots(o *Metadata) bool {
	return sameAll(m.locals, o.locals) && sameAll(m.cells, o.cells)
}

func sameAll(a, b []*ValueSource) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Same(b[i]) {
			return false
		}
	}
	return true
}

func (m *Metadata) String() string {
	var sb strings.Builder
	if m.dead {
		sb.WriteString("unreachable ")
	}
	writeList(&sb, "stack", m.stack)
	sb.WriteByte(' ')
	writeList(&sb, "locals", m.locals)
	if len(m.cells) > 0 {
		sb.WriteByte(' ')
		writeList(&sb, "cells", m.cells)
	}
	return sb.String()
}

func writeList(sb *strings.Builder, label string, vs []*ValueSource) {
	sb.WriteString(label)
	sb.WriteString("=[")
	for i, v := range vs {
		if i > 0 {
			sb.WriteString(", ")
		}
		if v == nil {
			sb.WriteByte('-')
		} else {
			sb.WriteString(v.Type.String())
		}
	}
	sb.WriteByte(']')
}
