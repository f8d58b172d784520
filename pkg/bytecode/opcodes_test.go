package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
		if back, ok := LookupName(info.Name); !ok || back != op {
			t.Errorf("LookupName(%q) = %v, %v; want %v", info.Name, back, ok, op)
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	count := OpcodeCount()
	if count < 100 {
		t.Errorf("Expected at least 100 opcodes, got %d", count)
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "NOP"},
		{OpPopTop, "POP_TOP"},
		{OpRotTwo, "ROT_TWO"},
		{OpLoadConst, "LOAD_CONST"},
		{OpBinaryAdd, "BINARY_ADD"},
		{OpBuildTuple, "BUILD_TUPLE"},
		{OpForIter, "FOR_ITER"},
		{OpJumpIfNotExcMatch, "JUMP_IF_NOT_EXC_MATCH"},
		{OpSetupFinally, "SETUP_FINALLY"},
		{OpReturnValue, "RETURN_VALUE"},
	}

	for _, tt := range tests {
		got := tt.op.String()
		if got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	op := Opcode(0xEE)
	got := op.String()
	if !strings.HasPrefix(got, "UNKNOWN") {
		t.Errorf("Unknown opcode should return UNKNOWN, got %q", got)
	}
	if op.Valid() {
		t.Error("Opcode(0xEE).Valid() = true")
	}
}

func TestOpcodeControlFlags(t *testing.T) {
	tests := []struct {
		op                                      Opcode
		jump, conditional, terminator, setup, ends bool
	}{
		{OpNop, false, false, false, false, false},
		{OpJumpAbsolute, true, false, true, false, true},
		{OpJumpForward, true, false, true, false, true},
		{OpPopJumpIfTrue, true, true, false, false, true},
		{OpForIter, true, true, false, false, true},
		{OpReturnValue, false, false, true, false, true},
		{OpRaiseVarargs, false, false, true, false, true},
		{OpReraise, false, false, true, false, true},
		{OpSetupFinally, false, false, false, true, true},
		{OpSetupWith, false, false, false, true, true},
		{OpYieldValue, false, false, false, false, false},
	}
	for _, tt := range tests {
		if got := tt.op.IsJump(); got != tt.jump {
			t.Errorf("%s.IsJump() = %v, want %v", tt.op, got, tt.jump)
		}
		if got := tt.op.IsConditional(); got != tt.conditional {
			t.Errorf("%s.IsConditional() = %v, want %v", tt.op, got, tt.conditional)
		}
		if got := tt.op.IsTerminator(); got != tt.terminator {
			t.Errorf("%s.IsTerminator() = %v, want %v", tt.op, got, tt.terminator)
		}
		if got := tt.op.IsSetup(); got != tt.setup {
			t.Errorf("%s.IsSetup() = %v, want %v", tt.op, got, tt.setup)
		}
		if got := tt.op.EndsBlock(); got != tt.ends {
			t.Errorf("%s.EndsBlock() = %v, want %v", tt.op, got, tt.ends)
		}
	}
	if !OpYieldValue.Suspends() || !OpYieldFrom.Suspends() {
		t.Error("yield opcodes should suspend")
	}
	if !OpPopBlock.IsPopBlock() {
		t.Error("POP_BLOCK should close a region")
	}
}

func TestAllOpcodesSorted(t *testing.T) {
	ops := AllOpcodes()
	for i := 1; i < len(ops); i++ {
		if ops[i-1] >= ops[i] {
			t.Fatalf("AllOpcodes not ascending at %d: %v >= %v", i, ops[i-1], ops[i])
		}
	}
}
