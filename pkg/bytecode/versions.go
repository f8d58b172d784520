package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a source language version tag selecting an opcode table.
type Version struct {
	Major, Minor int
}

var (
	Python38  = Version{3, 8}
	Python39  = Version{3, 9}
	Python310 = Version{3, 10}
)

// DefaultVersion is used when no version is configured.
var DefaultVersion = Python39

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// Less reports whether v precedes o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// AtLeast reports whether v is o or later.
func (v Version) AtLeast(o Version) bool { return !v.Less(o) }

// ParseVersion parses "3.9" style tags.
func ParseVersion(s string) (Version, error) {
	major, minor, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return Version{}, fmt.Errorf("bytecode: bad version %q", s)
	}
	ma, err := strconv.Atoi(major)
	if err != nil {
		return Version{}, fmt.Errorf("bytecode: bad version %q: %w", s, err)
	}
	mi, err := strconv.Atoi(minor)
	if err != nil {
		return Version{}, fmt.Errorf("bytecode: bad version %q: %w", s, err)
	}
	return Version{ma, mi}, nil
}

// UnknownOpcodeError reports an instruction the declared version does not
// support, either because its raw byte is undefined or because the analysis
// has no stack model for it.
type UnknownOpcodeError struct {
	Index   int
	Raw     int // -1 when the instruction was already symbolic
	Op      Opcode
	Version Version
	Reason  string
}

func (e *UnknownOpcodeError) Error() string {
	what := e.Op.String()
	if e.Raw >= 0 && !e.Op.Valid() {
		what = fmt.Sprintf("raw opcode %d", e.Raw)
	}
	msg := fmt.Sprintf("instruction %d: %s unsupported for version %s", e.Index, what, e.Version)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ---------------------------------------------------------------------------
// Opcode tables
// ---------------------------------------------------------------------------

// OpcodeTable maps a version's raw opcode bytes to symbolic opcodes.
type OpcodeTable struct {
	version Version
	byRaw   map[byte]Opcode
	byOp    map[Opcode]byte
}

// Opcode numbers shared by 3.8 through 3.10.
var commonOpcodes = map[byte]Opcode{
	1: OpPopTop, 2: OpRotTwo, 3: OpRotThree, 4: OpDupTop, 5: OpDupTopTwo, 6: OpRotFour,
	9: OpNop, 10: OpUnaryPositive, 11: OpUnaryNegative, 12: OpUnaryNot, 15: OpUnaryInvert,
	16: OpBinaryMatrixMultiply, 17: OpInplaceMatrixMultiply,
	19: OpBinaryPower, 20: OpBinaryMultiply, 22: OpBinaryModulo, 23: OpBinaryAdd,
	24: OpBinarySubtract, 25: OpBinarySubscr, 26: OpBinaryFloorDivide, 27: OpBinaryTrueDivide,
	28: OpInplaceFloorDivide, 29: OpInplaceTrueDivide,
	55: OpInplaceAdd, 56: OpInplaceSubtract, 57: OpInplaceMultiply, 59: OpInplaceModulo,
	60: OpStoreSubscr, 61: OpDeleteSubscr, 62: OpBinaryLshift, 63: OpBinaryRshift,
	64: OpBinaryAnd, 65: OpBinaryXor, 66: OpBinaryOr, 67: OpInplacePower,
	68: OpGetIter, 69: OpGetYieldFromIter, 71: OpLoadBuildClass, 72: OpYieldFrom,
	75: OpInplaceLshift, 76: OpInplaceRshift, 77: OpInplaceAnd, 78: OpInplaceXor, 79: OpInplaceOr,
	83: OpReturnValue, 84: OpImportStar, 85: OpSetupAnnotations, 86: OpYieldValue,
	87: OpPopBlock, 89: OpPopExcept,
	90: OpStoreName, 91: OpDeleteName, 92: OpUnpackSequence, 93: OpForIter, 94: OpUnpackEx,
	95: OpStoreAttr, 96: OpDeleteAttr, 97: OpStoreGlobal, 98: OpDeleteGlobal,
	100: OpLoadConst, 101: OpLoadName, 102: OpBuildTuple, 103: OpBuildList, 104: OpBuildSet,
	105: OpBuildMap, 106: OpLoadAttr, 107: OpCompareOp, 108: OpImportName, 109: OpImportFrom,
	110: OpJumpForward, 111: OpJumpIfFalseOrPop, 112: OpJumpIfTrueOrPop, 113: OpJumpAbsolute,
	114: OpPopJumpIfFalse, 115: OpPopJumpIfTrue, 116: OpLoadGlobal,
	122: OpSetupFinally, 124: OpLoadFast, 125: OpStoreFast, 126: OpDeleteFast,
	130: OpRaiseVarargs, 131: OpCallFunction, 132: OpMakeFunction, 133: OpBuildSlice,
	135: OpLoadClosure, 136: OpLoadDeref, 137: OpStoreDeref, 138: OpDeleteDeref,
	141: OpCallFunctionKw, 142: OpCallFunctionEx, 143: OpSetupWith, 144: OpExtendedArg,
	145: OpListAppend, 146: OpSetAdd, 147: OpMapAdd, 148: OpLoadClassDeref,
	155: OpFormatValue, 156: OpBuildConstKeyMap, 157: OpBuildString,
	160: OpLoadMethod, 161: OpCallMethod,
}

// 3.8 still used the finally/cleanup protocol removed in 3.9.
var python38Opcodes = map[byte]Opcode{
	53: OpBeginFinally, 81: OpWithCleanupStart, 82: OpWithCleanupFinish, 88: OpEndFinally,
	162: OpCallFinally, 163: OpPopFinally,
}

var python39Opcodes = map[byte]Opcode{
	48: OpReraise, 49: OpWithExceptStart, 74: OpLoadAssertionError, 82: OpListToTuple,
	117: OpIsOp, 118: OpContainsOp, 121: OpJumpIfNotExcMatch,
	162: OpListExtend, 163: OpSetUpdate, 164: OpDictMerge, 165: OpDictUpdate,
}

var python310Opcodes = map[byte]Opcode{
	30: OpGetLen, 99: OpRotN, 129: OpGenStart,
}

var opcodeTables = map[Version]*OpcodeTable{
	Python38:  newTable(Python38, commonOpcodes, python38Opcodes),
	Python39:  newTable(Python39, commonOpcodes, python39Opcodes),
	Python310: newTable(Python310, commonOpcodes, python39Opcodes, python310Opcodes),
}

func newTable(v Version, parts ...map[byte]Opcode) *OpcodeTable {
	t := &OpcodeTable{version: v, byRaw: make(map[byte]Opcode), byOp: make(map[Opcode]byte)}
	for _, part := range parts {
		for raw, op := range part {
			t.byRaw[raw] = op
			t.byOp[op] = raw
		}
	}
	return t
}

// TableFor returns the opcode table of a version.
func TableFor(v Version) (*OpcodeTable, error) {
	t, ok := opcodeTables[v]
	if !ok {
		return nil, fmt.Errorf("bytecode: no opcode table for version %s", v)
	}
	return t, nil
}

// SupportedVersions lists the versions with opcode tables, oldest first.
func SupportedVersions() []Version {
	return []Version{Python38, Python39, Python310}
}

// Version returns the table's version.
func (t *OpcodeTable) Version() Version { return t.version }

// Decode maps a raw byte to its opcode.
func (t *OpcodeTable) Decode(raw byte) (Opcode, bool) {
	op, ok := t.byRaw[raw]
	return op, ok
}

// Encode maps an opcode to its raw byte.
func (t *OpcodeTable) Encode(op Opcode) (byte, bool) {
	raw, ok := t.byOp[op]
	return raw, ok
}

// Supports reports whether op exists in this version.
func (t *OpcodeTable) Supports(op Opcode) bool {
	_, ok := t.byOp[op]
	return ok
}

// RawInstruction is an instruction as stored by a compiler: the version's
// opcode byte and the unextended argument.
type RawInstruction struct {
	Opcode  byte
	Arg     int
	Targets []int
	Line    int
}

// DecodeAll translates raw instructions. EXTENDED_ARG prefixes are folded
// into the following argument and kept in place as no-ops so instruction
// indices, and therefore jump targets, stay valid.
func (t *OpcodeTable) DecodeAll(raw []RawInstruction) ([]Instruction, error) {
	out := make([]Instruction, len(raw))
	ext := 0
	for i, r := range raw {
		op, ok := t.Decode(r.Opcode)
		if !ok {
			return nil, &UnknownOpcodeError{Index: i, Raw: int(r.Opcode), Op: Opcode(0xFF), Version: t.version,
				Reason: "undefined opcode byte"}
		}
		arg := r.Arg
		if ext != 0 {
			arg |= ext << 8
		}
		if op == OpExtendedArg {
			ext = arg
		} else {
			ext = 0
		}
		out[i] = Instruction{Op: op, Arg: arg, Targets: append([]int(nil), r.Targets...), Line: r.Line}
	}
	return out, nil
}

// EncodeAll is the inverse of DecodeAll for arguments below 256; larger
// arguments keep their full value in Arg.
func (t *OpcodeTable) EncodeAll(instrs []Instruction) ([]RawInstruction, error) {
	out := make([]RawInstruction, len(instrs))
	for i, in := range instrs {
		raw, ok := t.Encode(in.Op)
		if !ok {
			return nil, &UnknownOpcodeError{Index: i, Raw: -1, Op: in.Op, Version: t.version,
				Reason: "not part of this version"}
		}
		out[i] = RawInstruction{Opcode: raw, Arg: in.Arg, Targets: append([]int(nil), in.Targets...), Line: in.Line}
	}
	return out, nil
}
