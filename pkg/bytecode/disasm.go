package bytecode

import (
	"fmt"
	"sort"
	"strings"
)

// Listing renders instructions in the format Assemble reads. Jump targets
// become labels L<index>.
func Listing(instrs []Instruction) string {
	return ListingWithName("", instrs)
}

// ListingWithName returns a listing with a name header.
func ListingWithName(name string, instrs []Instruction) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("# === %s ===\n", name))
	}

	labels := targetLabels(instrs)
	for i, in := range instrs {
		if l, ok := labels[i]; ok {
			sb.WriteString(l)
			sb.WriteString(":\n")
		}
		sb.WriteString("    ")
		sb.WriteString(formatInstruction(in, labels))
		if in.Line > 0 {
			sb.WriteString(fmt.Sprintf(" @%d", in.Line))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Disassemble is a numbered listing for humans; it is not reassemblable.
func Disassemble(instrs []Instruction) string {
	var sb strings.Builder
	labels := targetLabels(instrs)
	for i, in := range instrs {
		marker := "  "
		if _, ok := labels[i]; ok {
			marker = ">>"
		}
		line := ""
		if in.Line > 0 {
			line = fmt.Sprintf("%4d", in.Line)
		}
		sb.WriteString(fmt.Sprintf("%4s %s %4d  %s\n", line, marker, i, in.String()))
	}
	return sb.String()
}

func targetLabels(instrs []Instruction) map[int]string {
	var targets []int
	seen := make(map[int]bool)
	for _, in := range instrs {
		if !in.Op.HasTarget() {
			continue
		}
		for _, t := range in.Targets {
			if !seen[t] {
				seen[t] = true
				targets = append(targets, t)
			}
		}
	}
	sort.Ints(targets)
	labels := make(map[int]string, len(targets))
	for _, t := range targets {
		labels[t] = fmt.Sprintf("L%d", t)
	}
	return labels
}

func formatInstruction(in Instruction, labels map[int]string) string {
	switch {
	case in.Op.HasTarget():
		t, ok := in.Target()
		if !ok {
			return in.Op.String()
		}
		if l, ok := labels[t]; ok {
			return fmt.Sprintf("%-24s %s", in.Op, l)
		}
		return fmt.Sprintf("%-24s %d", in.Op, t)
	case in.Op.HasArg():
		return fmt.Sprintf("%-24s %d", in.Op, in.Arg)
	}
	return in.Op.String()
}
