package bytecode

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// AsmError reports a malformed listing line.
type AsmError struct {
	Line int
	Msg  string
}

func (e *AsmError) Error() string {
	return fmt.Sprintf("asm: line %d: %s", e.Line, e.Msg)
}

type fixup struct {
	index int
	label string
	line  int
}

// Assemble parses a listing. Instructions without an explicit @line take the
// listing line they appear on.
func Assemble(src string) ([]Instruction, error) {
	var (
		out     []Instruction
		labels  = make(map[string]int)
		fixups  []fixup
		lineNum int
	)

	sc := bufio.NewScanner(strings.NewReader(src))
	for sc.Scan() {
		lineNum++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)

		for len(fields) > 0 && strings.HasSuffix(fields[0], ":") {
			name := strings.TrimSuffix(fields[0], ":")
			if name == "" {
				return nil, &AsmError{lineNum, "empty label"}
			}
			if _, dup := labels[name]; dup {
				return nil, &AsmError{lineNum, fmt.Sprintf("duplicate label %q", name)}
			}
			labels[name] = len(out)
			fields = fields[1:]
		}
		if len(fields) == 0 {
			continue
		}

		in := Instruction{Line: lineNum}
		if last := fields[len(fields)-1]; strings.HasPrefix(last, "@") {
			n, err := strconv.Atoi(last[1:])
			if err != nil {
				return nil, &AsmError{lineNum, fmt.Sprintf("bad line marker %q", last)}
			}
			in.Line = n
			fields = fields[:len(fields)-1]
		}

		op, ok := LookupName(strings.ToUpper(fields[0]))
		if !ok {
			return nil, &AsmError{lineNum, fmt.Sprintf("unknown opcode %q", fields[0])}
		}
		in.Op = op
		operands := fields[1:]

		switch {
		case op.HasTarget():
			if len(operands) != 1 {
				return nil, &AsmError{lineNum, fmt.Sprintf("%s needs one target", op)}
			}
			if n, err := strconv.Atoi(operands[0]); err == nil {
				in.Targets = []int{n}
				in.Arg = n
			} else {
				fixups = append(fixups, fixup{index: len(out), label: operands[0], line: lineNum})
			}
		case op.HasArg():
			if len(operands) != 1 {
				return nil, &AsmError{lineNum, fmt.Sprintf("%s needs one argument", op)}
			}
			n, err := strconv.Atoi(operands[0])
			if err != nil {
				return nil, &AsmError{lineNum, fmt.Sprintf("bad argument %q", operands[0])}
			}
			in.Arg = n
		default:
			if len(operands) != 0 {
				return nil, &AsmError{lineNum, fmt.Sprintf("%s takes no argument", op)}
			}
		}
		out = append(out, in)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	for _, f := range fixups {
		target, ok := labels[f.label]
		if !ok {
			return nil, &AsmError{f.line, fmt.Sprintf("undefined label %q", f.label)}
		}
		out[f.index].Targets = []int{target}
		out[f.index].Arg = target
	}
	return out, nil
}

// MustAssemble is Assemble for fixed listings; it panics on error.
func MustAssemble(src string) []Instruction {
	instrs, err := Assemble(src)
	if err != nil {
		panic(err)
	}
	return instrs
}
