package flow

import (
	"slices"
	"sort"

	"github.com/hashicorp/go-set/v3"

	"github.com/chazu/stackflow/frame"
	"github.com/chazu/stackflow/opcode"
	"github.com/chazu/stackflow/pkg/bytecode"
)

// EdgeKind tags a flow graph edge.
type EdgeKind int

const (
	EdgeFallthrough EdgeKind = iota
	EdgeJump
	EdgeException
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeFallthrough:
		return "fallthrough"
	case EdgeJump:
		return "jump"
	case EdgeException:
		return "exception"
	}
	return "unknown"
}

// Edge connects two blocks by ID.
type Edge struct {
	From, To int
	Kind     EdgeKind
}

// Block is a maximal straight-line run of instructions. Every instruction in
// a block shares the same innermost exception handler.
type Block struct {
	ID    int
	Start int // first instruction index
	End   int // one past the last instruction

	// Handler is the ID of the innermost handler block protecting this
	// block, or -1.
	Handler int

	Ops   []opcode.Opcode
	Succs []Edge
	Preds []Edge

	// Entry is the merged metadata on entry. Exit is the metadata leaving
	// the last instruction on its fallthrough, or on its jump when it has
	// none; nil when the block ends the function.
	Entry *frame.Metadata
	Exit  *frame.Metadata

	order int // reverse postorder position
}

// Reachable reports whether any path from the entry reaches b.
func (b *Block) Reachable() bool { return b.Entry != nil && b.Entry.Reachable() }

// Len returns the number of instructions in b.
func (b *Block) Len() int { return b.End - b.Start }

// validate checks every explicit target and that control cannot run past
// the last instruction.
func validate(name string, code []bytecode.Instruction) error {
	n := len(code)
	if n == 0 {
		return &UnresolvedJumpTargetError{Function: name, Index: 0, Target: 0, Reason: "no instructions"}
	}
	for i, in := range code {
		if !in.Op.HasTarget() {
			continue
		}
		t, ok := in.Target()
		if !ok {
			return &UnresolvedJumpTargetError{Function: name, Index: i, Op: in.Op, Target: -1, Reason: "missing target"}
		}
		if t < 0 || t >= n {
			return &UnresolvedJumpTargetError{Function: name, Index: i, Op: in.Op, Target: t, Reason: "out of range"}
		}
	}
	last := code[n-1]
	if !last.Op.IsTerminator() {
		return &UnresolvedJumpTargetError{Function: name, Index: n - 1, Op: last.Op, Target: n, Reason: "control falls off the end"}
	}
	return nil
}

// handlerRegions propagates the stack of open exception handlers along the
// instruction-level control flow and returns, per instruction, the target
// of the innermost open handler (-1 for none). A setup opcode opens its
// handler on the fallthrough path only; the handler itself runs outside the
// region.
func handlerRegions(name string, code []bytecode.Instruction) ([]int, error) {
	n := len(code)
	stacks := make([][]int, n)
	seen := make([]bool, n)
	work := []int{0}
	seen[0] = true

	visit := func(to int, s []int) error {
		if to >= n {
			return nil
		}
		if !seen[to] {
			seen[to] = true
			stacks[to] = s
			work = append(work, to)
			return nil
		}
		if !slices.Equal(stacks[to], s) {
			return &HandlerNestingError{Function: name, Index: to,
				Reason: "reached with different enclosing exception handlers"}
		}
		return nil
	}

	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		in, s := code[i], stacks[i]

		var err error
		switch {
		case in.Op.IsSetup():
			t, _ := in.Target()
			if err = visit(i+1, append(slices.Clip(s), t)); err == nil {
				err = visit(t, s)
			}
		case in.Op.IsPopBlock():
			if len(s) == 0 {
				return nil, &HandlerNestingError{Function: name, Index: i, Reason: "POP_BLOCK outside any protected region"}
			}
			err = visit(i+1, s[:len(s)-1])
		default:
			if in.Op.IsJump() {
				t, _ := in.Target()
				err = visit(t, s)
			}
			if err == nil && !in.Op.IsTerminator() {
				err = visit(i+1, s)
			}
		}
		if err != nil {
			return nil, err
		}
	}

	inner := make([]int, n)
	for i, s := range stacks {
		inner[i] = -1
		if len(s) > 0 {
			inner[i] = s[len(s)-1]
		}
	}
	return inner, nil
}

// discover splits the code into blocks and connects them. Leaders are the
// entry, every explicit target, the instruction after anything that ends a
// block, and every point where the innermost handler changes.
func discover(code []bytecode.Instruction, ops []opcode.Opcode, inner []int) ([]*Block, []int) {
	n := len(code)
	leaders := set.New[int](n)
	leaders.Insert(0)
	for i, in := range code {
		if t, ok := in.Target(); ok && in.Op.HasTarget() {
			leaders.Insert(t)
		}
		if in.Op.EndsBlock() && i+1 < n {
			leaders.Insert(i + 1)
		}
		if i > 0 && inner[i] != inner[i-1] {
			leaders.Insert(i)
		}
	}
	starts := leaders.Slice()
	sort.Ints(starts)

	blocks := make([]*Block, len(starts))
	blockOf := make([]int, n)
	for id, start := range starts {
		end := n
		if id+1 < len(starts) {
			end = starts[id+1]
		}
		blocks[id] = &Block{ID: id, Start: start, End: end, Ops: ops[start:end]}
		for i := start; i < end; i++ {
			blockOf[i] = id
		}
	}

	edges := set.New[Edge](2 * len(blocks))
	var ordered []Edge
	add := func(e Edge) {
		if edges.Insert(e) {
			ordered = append(ordered, e)
		}
	}
	for _, b := range blocks {
		b.Handler = -1
		if h := inner[b.Start]; h >= 0 {
			b.Handler = blockOf[h]
			add(Edge{From: b.ID, To: b.Handler, Kind: EdgeException})
		}
		last := code[b.End-1]
		t, hasTarget := last.Target()
		switch {
		case last.Op.IsSetup():
			add(Edge{From: b.ID, To: blockOf[t], Kind: EdgeException})
		case last.Op.IsJump() && hasTarget:
			add(Edge{From: b.ID, To: blockOf[t], Kind: EdgeJump})
		}
		if !last.Op.IsTerminator() && b.End < n {
			add(Edge{From: b.ID, To: blockOf[b.End], Kind: EdgeFallthrough})
		}
	}
	for _, e := range ordered {
		blocks[e.From].Succs = append(blocks[e.From].Succs, e)
		blocks[e.To].Preds = append(blocks[e.To].Preds, e)
	}
	return blocks, blockOf
}

// reversePostorder numbers the blocks reachable from the entry in reverse
// postorder; unreachable blocks follow in program order. It returns block
// IDs in that order.
func reversePostorder(blocks []*Block) []int {
	visited := make([]bool, len(blocks))
	var post []int

	type frameEntry struct{ id, next int }
	stack := []frameEntry{{id: 0}}
	visited[0] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := blocks[top.id].Succs
		if top.next < len(succs) {
			to := succs[top.next].To
			top.next++
			if !visited[to] {
				visited[to] = true
				stack = append(stack, frameEntry{id: to})
			}
			continue
		}
		post = append(post, top.id)
		stack = stack[:len(stack)-1]
	}

	order := make([]int, 0, len(blocks))
	for i := len(post) - 1; i >= 0; i-- {
		order = append(order, post[i])
	}
	for id := range blocks {
		if !visited[id] {
			order = append(order, id)
		}
	}
	for pos, id := range order {
		blocks[id].order = pos
	}
	return order
}
