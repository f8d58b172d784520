package flow

import (
	"errors"
	"fmt"

	"github.com/chazu/stackflow/opcode"
	"github.com/chazu/stackflow/pkg/bytecode"
	"github.com/chazu/stackflow/types"
)

// UnknownOpcodeError is re-exported so callers can match every compile
// error from this package.
type UnknownOpcodeError = opcode.UnknownOpcodeError

// LinearizationError is re-exported from the type system.
type LinearizationError = types.LinearizationError

// StackUnderflowError reports an opcode needing more operand stack entries
// than the inferred depth provides.
type StackUnderflowError struct {
	Function string
	Index    int
	Op       bytecode.Opcode
	Line     int
	Need     int
	Have     int
}

func (e *StackUnderflowError) Error() string {
	return fmt.Sprintf("%s: instruction %d (%s, line %d): stack underflow: need %d, have %d",
		e.Function, e.Index, e.Op, e.Line, e.Need, e.Have)
}

// UnresolvedJumpTargetError reports control flow that leads to no
// instruction: a target out of range, a jump without a target, or falling
// off the end of the code.
type UnresolvedJumpTargetError struct {
	Function string
	Index    int
	Op       bytecode.Opcode
	Target   int
	Reason   string
}

func (e *UnresolvedJumpTargetError) Error() string {
	return fmt.Sprintf("%s: instruction %d (%s): unresolved jump target %d: %s",
		e.Function, e.Index, e.Op, e.Target, e.Reason)
}

// NonConvergentAnalysisError reports that the fixed point was not reached
// within the visit budget. It indicates malformed input or an analysis bug.
type NonConvergentAnalysisError struct {
	Function string
	Visits   int
	Limit    int
	Blocks   int
}

func (e *NonConvergentAnalysisError) Error() string {
	return fmt.Sprintf("%s: analysis did not converge after %d block visits (limit %d for %d blocks)",
		e.Function, e.Visits, e.Limit, e.Blocks)
}

// InconsistentStackError reports two paths reaching a block with different
// operand stack depths.
type InconsistentStackError struct {
	Function string
	Block    int
	Index    int
	Left     int
	Right    int
}

func (e *InconsistentStackError) Error() string {
	return fmt.Sprintf("%s: block %d (instruction %d): stack depth %d on one path, %d on another",
		e.Function, e.Block, e.Index, e.Left, e.Right)
}

// HandlerNestingError reports an instruction reached under two different
// stacks of enclosing exception handlers, or a POP_BLOCK with no open
// region.
type HandlerNestingError struct {
	Function string
	Index    int
	Reason   string
}

func (e *HandlerNestingError) Error() string {
	return fmt.Sprintf("%s: instruction %d: %s", e.Function, e.Index, e.Reason)
}

// EffectError wraps any other failure of an opcode's stack effect, such as a
// slot or constant index out of range.
type EffectError struct {
	Function string
	Index    int
	Op       bytecode.Opcode
	Line     int
	Err      error
}

func (e *EffectError) Error() string {
	return fmt.Sprintf("%s: instruction %d (%s, line %d): %v", e.Function, e.Index, e.Op, e.Line, e.Err)
}

func (e *EffectError) Unwrap() error { return e.Err }

// IsCompileError reports whether err is one of the deterministic analysis
// failures. These are fatal to a single unit; retrying cannot help.
func IsCompileError(err error) bool {
	var (
		underflow    *StackUnderflowError
		unresolved   *UnresolvedJumpTargetError
		nonConverged *NonConvergentAnalysisError
		inconsistent *InconsistentStackError
		nesting      *HandlerNestingError
		effect       *EffectError
		unknown      *UnknownOpcodeError
		linear       *LinearizationError
	)
	return errors.As(err, &underflow) ||
		errors.As(err, &unresolved) ||
		errors.As(err, &nonConverged) ||
		errors.As(err, &inconsistent) ||
		errors.As(err, &nesting) ||
		errors.As(err, &effect) ||
		errors.As(err, &unknown) ||
		errors.As(err, &linear)
}
