// Package slots maps a function's variable categories onto one linear
// register space for the code emitter.
//
// Layout, lowest slot first:
//
//	0                     reserved (receiver / function object)
//	params                one slot each, two for wide parameters
//	locals                one per local variable
//	bound cells           cells created by this function
//	free cells            cells captured from enclosing scopes
//	exception             the currently handled exception
//	temporaries           acquired and released LIFO
package slots

import (
	"errors"
	"fmt"
)

var (
	ErrTempOrder = errors.New("slots: temporaries must be released in reverse acquisition order")
	ErrNoTemp    = errors.New("slots: no temporary is live")
	ErrRange     = errors.New("slots: index out of range")
)

// Layout gives the counts the allocator is computed from. ParamWidths has
// one entry per parameter, 1 or 2.
type Layout struct {
	ParamWidths []int
	Locals      int
	BoundCells  int
	FreeCells   int
}

// Region is a named half-open slot range.
type Region struct {
	Name       string
	Start, End int
}

type temp struct {
	slot, width int
}

// Allocator hands out slot numbers. The fixed regions are computed once; the
// temporary region grows and shrinks as a stack and remembers its high-water
// mark.
type Allocator struct {
	params    []int
	paramEnd  int
	localBase int
	cellBase  int
	freeBase  int
	excSlot   int
	tempBase  int
	layout    Layout

	live    []temp
	nextOff int
	maxOff  int
}

// New computes the fixed layout.
func New(l Layout) (*Allocator, error) {
	if l.Locals < 0 || l.BoundCells < 0 || l.FreeCells < 0 {
		return nil, fmt.Errorf("slots: negative count in layout %+v", l)
	}
	a := &Allocator{layout: l}
	off := 1
	for i, w := range l.ParamWidths {
		if w != 1 && w != 2 {
			return nil, fmt.Errorf("slots: parameter %d has width %d", i, w)
		}
		a.params = append(a.params, off)
		off += w
	}
	a.paramEnd = off
	a.localBase = off
	a.cellBase = a.localBase + l.Locals
	a.freeBase = a.cellBase + l.BoundCells
	a.excSlot = a.freeBase + l.FreeCells
	a.tempBase = a.excSlot + 1
	a.nextOff = a.tempBase
	a.maxOff = a.tempBase
	return a, nil
}

// Receiver is the reserved slot 0.
func (a *Allocator) Receiver() int { return 0 }

// Param returns the first slot of parameter i.
func (a *Allocator) Param(i int) (int, error) {
	if i < 0 || i >= len(a.params) {
		return 0, fmt.Errorf("param %d: %w", i, ErrRange)
	}
	return a.params[i], nil
}

// Local returns the slot of local variable i.
func (a *Allocator) Local(i int) (int, error) {
	if i < 0 || i >= a.layout.Locals {
		return 0, fmt.Errorf("local %d: %w", i, ErrRange)
	}
	return a.localBase + i, nil
}

// Cell returns the slot of cell i, where bound cells come first and free
// cells follow, matching the cell numbering of the instruction set.
func (a *Allocator) Cell(i int) (int, error) {
	if i < 0 || i >= a.layout.BoundCells+a.layout.FreeCells {
		return 0, fmt.Errorf("cell %d: %w", i, ErrRange)
	}
	return a.cellBase + i, nil
}

// Free returns the slot of free (captured) variable i.
func (a *Allocator) Free(i int) (int, error) {
	if i < 0 || i >= a.layout.FreeCells {
		return 0, fmt.Errorf("free %d: %w", i, ErrRange)
	}
	return a.freeBase + i, nil
}

// Exception returns the reserved exception slot.
func (a *Allocator) Exception() int { return a.excSlot }

// AcquireTemp reserves the next temporary; wide temporaries take two slots.
func (a *Allocator) AcquireTemp(wide bool) int {
	w := 1
	if wide {
		w = 2
	}
	slot := a.nextOff
	a.live = append(a.live, temp{slot: slot, width: w})
	a.nextOff += w
	if a.nextOff > a.maxOff {
		a.maxOff = a.nextOff
	}
	return slot
}

// ReleaseTemp frees slot, which must be the most recently acquired live
// temporary.
func (a *Allocator) ReleaseTemp(slot int) error {
	if len(a.live) == 0 {
		return ErrNoTemp
	}
	top := a.live[len(a.live)-1]
	if top.slot != slot {
		return fmt.Errorf("release %d, top is %d: %w", slot, top.slot, ErrTempOrder)
	}
	a.live = a.live[:len(a.live)-1]
	a.nextOff -= top.width
	return nil
}

// LiveTemps returns the number of temporaries not yet released.
func (a *Allocator) LiveTemps() int { return len(a.live) }

// HighWater returns how many temporary slots were ever live at once.
func (a *Allocator) HighWater() int { return a.maxOff - a.tempBase }

// Size is the total number of slots the function needs.
func (a *Allocator) Size() int { return a.maxOff }

// Clone copies the allocator, including live temporaries, so each branch of
// generated code can allocate independently.
func (a *Allocator) Clone() *Allocator {
	out := *a
	out.params = append([]int(nil), a.params...)
	out.live = append([]temp(nil), a.live...)
	return &out
}

// Regions describes the fixed layout plus the temporary region as currently
// sized by the high-water mark.
func (a *Allocator) Regions() []Region {
	return []Region{
		{"receiver", 0, 1},
		{"params", 1, a.paramEnd},
		{"locals", a.localBase, a.cellBase},
		{"cells", a.cellBase, a.freeBase},
		{"free", a.freeBase, a.excSlot},
		{"exception", a.excSlot, a.tempBase},
		{"temps", a.tempBase, a.maxOff},
	}
}
