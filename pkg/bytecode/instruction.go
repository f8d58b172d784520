package bytecode

import (
	"fmt"
	"strings"
)

// Instruction is one decoded instruction. Targets holds absolute
// instruction indices for jumps and setup opcodes.
type Instruction struct {
	Op      Opcode
	Arg     int
	Targets []int
	Line    int
}

// Target returns the first jump target.
func (in Instruction) Target() (int, bool) {
	if len(in.Targets) == 0 {
		return 0, false
	}
	return in.Targets[0], true
}

func (in Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(in.Op.String())
	switch {
	case in.Op.HasTarget():
		if t, ok := in.Target(); ok {
			fmt.Fprintf(&sb, " %d", t)
		} else {
			sb.WriteString(" ?")
		}
	case in.Op.HasArg():
		fmt.Fprintf(&sb, " %d", in.Arg)
	}
	return sb.String()
}
