package bytecode

import (
	"errors"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"3.8", Python38, false},
		{" 3.10 ", Python310, false},
		{"3", Version{}, true},
		{"three.nine", Version{}, true},
	}
	for _, tt := range tests {
		got, err := ParseVersion(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseVersion(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseVersion(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if !Python310.AtLeast(Python39) || Python38.AtLeast(Python39) {
		t.Error("version ordering is wrong")
	}
}

func TestVersionTables(t *testing.T) {
	tests := []struct {
		v    Version
		raw  byte
		want Opcode
		ok   bool
	}{
		{Python38, 100, OpLoadConst, true},
		{Python39, 100, OpLoadConst, true},
		{Python38, 162, OpCallFinally, true},
		{Python39, 162, OpListExtend, true},
		{Python38, 48, 0, false},
		{Python39, 48, OpReraise, true},
		{Python39, 53, 0, false},
		{Python39, 30, 0, false},
		{Python310, 30, OpGetLen, true},
		{Python310, 121, OpJumpIfNotExcMatch, true},
		{Python310, 129, OpGenStart, true},
	}
	for _, tt := range tests {
		table, err := TableFor(tt.v)
		if err != nil {
			t.Fatal(err)
		}
		got, ok := table.Decode(tt.raw)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("%s Decode(%d) = %v, %v; want %v, %v", tt.v, tt.raw, got, ok, tt.want, tt.ok)
		}
	}

	if _, err := TableFor(Version{2, 7}); err == nil {
		t.Error("TableFor(2.7) should fail")
	}
}

func TestTablesAreBijective(t *testing.T) {
	for _, v := range SupportedVersions() {
		table, _ := TableFor(v)
		for raw, op := range table.byRaw {
			if back, _ := table.Encode(op); back != raw {
				t.Errorf("%s: %s encodes to %d, decoded from %d", v, op, back, raw)
			}
		}
	}
}

func TestDecodeAllExtendedArg(t *testing.T) {
	table, _ := TableFor(Python39)
	raw := []RawInstruction{
		{Opcode: 144, Arg: 1},
		{Opcode: 100, Arg: 2},
		{Opcode: 83},
	}
	instrs, err := table.DecodeAll(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(instrs) != 3 {
		t.Fatalf("len = %d, want 3", len(instrs))
	}
	if instrs[1].Op != OpLoadConst || instrs[1].Arg != 258 {
		t.Errorf("instrs[1] = %v arg %d, want LOAD_CONST 258", instrs[1].Op, instrs[1].Arg)
	}
	if instrs[2].Arg != 0 {
		t.Errorf("extended arg leaked into RETURN_VALUE: %d", instrs[2].Arg)
	}
}

func TestDecodeAllUnknown(t *testing.T) {
	table, _ := TableFor(Python38)
	_, err := table.DecodeAll([]RawInstruction{{Opcode: 100}, {Opcode: 48}})
	var uerr *UnknownOpcodeError
	if !errors.As(err, &uerr) {
		t.Fatalf("DecodeAll error = %v, want *UnknownOpcodeError", err)
	}
	if uerr.Index != 1 || uerr.Raw != 48 {
		t.Errorf("UnknownOpcodeError = %+v, want index 1 raw 48", uerr)
	}

	t39, _ := TableFor(Python39)
	if _, err := t39.EncodeAll([]Instruction{{Op: OpEndFinally}}); !errors.As(err, &uerr) {
		t.Errorf("EncodeAll(END_FINALLY) for 3.9 error = %v, want *UnknownOpcodeError", err)
	}
}
