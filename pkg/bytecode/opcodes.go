package bytecode

import (
	"fmt"
	"sort"
)

// Opcode is a symbolic instruction identifier. Values are grouped into
// ranges by category; they are not the bytes of any particular version, see
// OpcodeTable for encoding.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop         Opcode = 0x00
	OpPopTop      Opcode = 0x01 // a ->
	OpRotTwo      Opcode = 0x02 // a b -> b a
	OpRotThree    Opcode = 0x03 // a b c -> c a b
	OpRotFour     Opcode = 0x04 // a b c d -> d a b c
	OpRotN        Opcode = 0x05 // rotate top <arg> entries
	OpDupTop      Opcode = 0x06 // a -> a a
	OpDupTopTwo   Opcode = 0x07 // a b -> a b a b
	OpExtendedArg Opcode = 0x08 // argument prefix, no stack effect

	// ========================================================================
	// Constants and names (0x10-0x1F)
	// ========================================================================

	OpLoadConst          Opcode = 0x10 // -> const[arg]
	OpLoadName           Opcode = 0x11 // -> names[arg]
	OpStoreName          Opcode = 0x12
	OpDeleteName         Opcode = 0x13
	OpLoadGlobal         Opcode = 0x14
	OpStoreGlobal        Opcode = 0x15
	OpDeleteGlobal       Opcode = 0x16
	OpLoadAssertionError Opcode = 0x17 // -> AssertionError
	OpLoadBuildClass     Opcode = 0x18
	OpSetupAnnotations   Opcode = 0x19

	// ========================================================================
	// Local variables and cells (0x20-0x2F)
	// ========================================================================

	OpLoadFast       Opcode = 0x20 // -> local[arg]
	OpStoreFast      Opcode = 0x21 // a -> ; local[arg] = a
	OpDeleteFast     Opcode = 0x22
	OpLoadClosure    Opcode = 0x23 // -> cell object for cell[arg]
	OpLoadDeref      Opcode = 0x24 // -> cell[arg]
	OpStoreDeref     Opcode = 0x25
	OpDeleteDeref    Opcode = 0x26
	OpLoadClassDeref Opcode = 0x27

	// ========================================================================
	// Attributes, subscripts and imports (0x30-0x3F)
	// ========================================================================

	OpLoadAttr     Opcode = 0x30 // obj -> obj.names[arg]
	OpStoreAttr    Opcode = 0x31 // v obj ->
	OpDeleteAttr   Opcode = 0x32
	OpBinarySubscr Opcode = 0x33 // c k -> c[k]
	OpStoreSubscr  Opcode = 0x34 // v c k ->
	OpDeleteSubscr Opcode = 0x35
	OpImportName   Opcode = 0x36 // level fromlist -> module
	OpImportFrom   Opcode = 0x37 // module -> module attr
	OpImportStar   Opcode = 0x38

	// ========================================================================
	// Unary and binary operators (0x40-0x6F)
	// ========================================================================

	OpUnaryPositive Opcode = 0x40
	OpUnaryNegative Opcode = 0x41
	OpUnaryNot      Opcode = 0x42
	OpUnaryInvert   Opcode = 0x43

	OpBinaryPower          Opcode = 0x48
	OpBinaryMultiply       Opcode = 0x49
	OpBinaryMatrixMultiply Opcode = 0x4A
	OpBinaryFloorDivide    Opcode = 0x4B
	OpBinaryTrueDivide     Opcode = 0x4C
	OpBinaryModulo         Opcode = 0x4D
	OpBinaryAdd            Opcode = 0x4E
	OpBinarySubtract       Opcode = 0x4F
	OpBinaryLshift         Opcode = 0x50
	OpBinaryRshift         Opcode = 0x51
	OpBinaryAnd            Opcode = 0x52
	OpBinaryXor            Opcode = 0x53
	OpBinaryOr             Opcode = 0x54

	OpInplacePower          Opcode = 0x58
	OpInplaceMultiply       Opcode = 0x59
	OpInplaceMatrixMultiply Opcode = 0x5A
	OpInplaceFloorDivide    Opcode = 0x5B
	OpInplaceTrueDivide     Opcode = 0x5C
	OpInplaceModulo         Opcode = 0x5D
	OpInplaceAdd            Opcode = 0x5E
	OpInplaceSubtract       Opcode = 0x5F
	OpInplaceLshift         Opcode = 0x60
	OpInplaceRshift         Opcode = 0x61
	OpInplaceAnd            Opcode = 0x62
	OpInplaceXor            Opcode = 0x63
	OpInplaceOr             Opcode = 0x64

	OpCompareOp  Opcode = 0x68 // a b -> bool
	OpIsOp       Opcode = 0x69
	OpContainsOp Opcode = 0x6A

	// ========================================================================
	// Collections (0x70-0x7F)
	// ========================================================================

	OpBuildTuple       Opcode = 0x70 // arg items -> tuple
	OpBuildList        Opcode = 0x71
	OpBuildSet         Opcode = 0x72
	OpBuildMap         Opcode = 0x73 // 2*arg items -> dict
	OpBuildConstKeyMap Opcode = 0x74
	OpBuildString      Opcode = 0x75
	OpBuildSlice       Opcode = 0x76
	OpListAppend       Opcode = 0x77
	OpSetAdd           Opcode = 0x78
	OpMapAdd           Opcode = 0x79
	OpListExtend       Opcode = 0x7A
	OpSetUpdate        Opcode = 0x7B
	OpDictMerge        Opcode = 0x7C
	OpDictUpdate       Opcode = 0x7D
	OpListToTuple      Opcode = 0x7E
	OpUnpackSequence   Opcode = 0x7F

	OpUnpackEx    Opcode = 0x80
	OpFormatValue Opcode = 0x81
	OpGetLen      Opcode = 0x82

	// ========================================================================
	// Iteration and generators (0x88-0x8F)
	// ========================================================================

	OpGetIter          Opcode = 0x88
	OpGetYieldFromIter Opcode = 0x89
	OpForIter          Opcode = 0x8A // iter -> iter next | iter -> (exhausted, jump)
	OpYieldValue       Opcode = 0x8B
	OpYieldFrom        Opcode = 0x8C
	OpGenStart         Opcode = 0x8D

	// ========================================================================
	// Control flow (0x90-0x9F)
	// ========================================================================

	OpJumpForward       Opcode = 0x90
	OpJumpAbsolute      Opcode = 0x91
	OpPopJumpIfFalse    Opcode = 0x92
	OpPopJumpIfTrue     Opcode = 0x93
	OpJumpIfFalseOrPop  Opcode = 0x94
	OpJumpIfTrueOrPop   Opcode = 0x95
	OpJumpIfNotExcMatch Opcode = 0x96
	OpReturnValue       Opcode = 0x97

	// ========================================================================
	// Calls and functions (0xA0-0xAF)
	// ========================================================================

	OpCallFunction   Opcode = 0xA0 // callee args... -> result
	OpCallFunctionKw Opcode = 0xA1
	OpCallFunctionEx Opcode = 0xA2
	OpLoadMethod     Opcode = 0xA3 // obj -> method obj
	OpCallMethod     Opcode = 0xA4 // method obj args... -> result
	OpMakeFunction   Opcode = 0xA5

	// ========================================================================
	// Exceptions and blocks (0xB0-0xBF)
	// ========================================================================

	OpSetupFinally      Opcode = 0xB0
	OpSetupWith         Opcode = 0xB1
	OpPopBlock          Opcode = 0xB2
	OpPopExcept         Opcode = 0xB3
	OpRaiseVarargs      Opcode = 0xB4
	OpReraise           Opcode = 0xB5
	OpWithExceptStart   Opcode = 0xB6
	OpBeginFinally      Opcode = 0xB7
	OpEndFinally        Opcode = 0xB8
	OpCallFinally       Opcode = 0xB9
	OpPopFinally        Opcode = 0xBA
	OpWithCleanupStart  Opcode = 0xBB
	OpWithCleanupFinish Opcode = 0xBC
)

// Flags describe the control-flow shape of an opcode.
type Flags uint8

const (
	FlagArg           Flags = 1 << iota // uses its argument
	FlagJump                           // transfers control to Targets[0]
	FlagConditional                    // may also fall through
	FlagNoFallthrough                  // never continues to the next instruction
	FlagSetup                          // opens a protected region handled at Targets[0]
	FlagPopBlock                       // closes the innermost protected region
	FlagSuspend                        // suspends a generator
)

// OpcodeInfo provides metadata about each opcode.
type OpcodeInfo struct {
	Name  string
	Flags Flags
}

const (
	fArg  = FlagArg
	fJmp  = FlagArg | FlagJump | FlagNoFallthrough
	fCjmp = FlagArg | FlagJump | FlagConditional
	fTerm = FlagNoFallthrough
)

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:         {"NOP", 0},
	OpPopTop:      {"POP_TOP", 0},
	OpRotTwo:      {"ROT_TWO", 0},
	OpRotThree:    {"ROT_THREE", 0},
	OpRotFour:     {"ROT_FOUR", 0},
	OpRotN:        {"ROT_N", fArg},
	OpDupTop:      {"DUP_TOP", 0},
	OpDupTopTwo:   {"DUP_TOP_TWO", 0},
	OpExtendedArg: {"EXTENDED_ARG", fArg},

	// Constants and names
	OpLoadConst:          {"LOAD_CONST", fArg},
	OpLoadName:           {"LOAD_NAME", fArg},
	OpStoreName:          {"STORE_NAME", fArg},
	OpDeleteName:         {"DELETE_NAME", fArg},
	OpLoadGlobal:         {"LOAD_GLOBAL", fArg},
	OpStoreGlobal:        {"STORE_GLOBAL", fArg},
	OpDeleteGlobal:       {"DELETE_GLOBAL", fArg},
	OpLoadAssertionError: {"LOAD_ASSERTION_ERROR", 0},
	OpLoadBuildClass:     {"LOAD_BUILD_CLASS", 0},
	OpSetupAnnotations:   {"SETUP_ANNOTATIONS", 0},

	// Locals and cells
	OpLoadFast:       {"LOAD_FAST", fArg},
	OpStoreFast:      {"STORE_FAST", fArg},
	OpDeleteFast:     {"DELETE_FAST", fArg},
	OpLoadClosure:    {"LOAD_CLOSURE", fArg},
	OpLoadDeref:      {"LOAD_DEREF", fArg},
	OpStoreDeref:     {"STORE_DEREF", fArg},
	OpDeleteDeref:    {"DELETE_DEREF", fArg},
	OpLoadClassDeref: {"LOAD_CLASSDEREF", fArg},

	// Attributes, subscripts, imports
	OpLoadAttr:     {"LOAD_ATTR", fArg},
	OpStoreAttr:    {"STORE_ATTR", fArg},
	OpDeleteAttr:   {"DELETE_ATTR", fArg},
	OpBinarySubscr: {"BINARY_SUBSCR", 0},
	OpStoreSubscr:  {"STORE_SUBSCR", 0},
	OpDeleteSubscr: {"DELETE_SUBSCR", 0},
	OpImportName:   {"IMPORT_NAME", fArg},
	OpImportFrom:   {"IMPORT_FROM", fArg},
	OpImportStar:   {"IMPORT_STAR", 0},

	// Operators
	OpUnaryPositive: {"UNARY_POSITIVE", 0},
	OpUnaryNegative: {"UNARY_NEGATIVE", 0},
	OpUnaryNot:      {"UNARY_NOT", 0},
	OpUnaryInvert:   {"UNARY_INVERT", 0},

	OpBinaryPower:          {"BINARY_POWER", 0},
	OpBinaryMultiply:       {"BINARY_MULTIPLY", 0},
	OpBinaryMatrixMultiply: {"BINARY_MATRIX_MULTIPLY", 0},
	OpBinaryFloorDivide:    {"BINARY_FLOOR_DIVIDE", 0},
	OpBinaryTrueDivide:     {"BINARY_TRUE_DIVIDE", 0},
	OpBinaryModulo:         {"BINARY_MODULO", 0},
	OpBinaryAdd:            {"BINARY_ADD", 0},
	OpBinarySubtract:       {"BINARY_SUBTRACT", 0},
	OpBinaryLshift:         {"BINARY_LSHIFT", 0},
	OpBinaryRshift:         {"BINARY_RSHIFT", 0},
	OpBinaryAnd:            {"BINARY_AND", 0},
	OpBinaryXor:            {"BINARY_XOR", 0},
	OpBinaryOr:             {"BINARY_OR", 0},

	OpInplacePower:          {"INPLACE_POWER", 0},
	OpInplaceMultiply:       {"INPLACE_MULTIPLY", 0},
	OpInplaceMatrixMultiply: {"INPLACE_MATRIX_MULTIPLY", 0},
	OpInplaceFloorDivide:    {"INPLACE_FLOOR_DIVIDE", 0},
	OpInplaceTrueDivide:     {"INPLACE_TRUE_DIVIDE", 0},
	OpInplaceModulo:         {"INPLACE_MODULO", 0},
	OpInplaceAdd:            {"INPLACE_ADD", 0},
	OpInplaceSubtract:       {"INPLACE_SUBTRACT", 0},
	OpInplaceLshift:         {"INPLACE_LSHIFT", 0},
	OpInplaceRshift:         {"INPLACE_RSHIFT", 0},
	OpInplaceAnd:            {"INPLACE_AND", 0},
	OpInplaceXor:            {"INPLACE_XOR", 0},
	OpInplaceOr:             {"INPLACE_OR", 0},

	OpCompareOp:  {"COMPARE_OP", fArg},
	OpIsOp:       {"IS_OP", fArg},
	OpContainsOp: {"CONTAINS_OP", fArg},

	// Collections
	OpBuildTuple:       {"BUILD_TUPLE", fArg},
	OpBuildList:        {"BUILD_LIST", fArg},
	OpBuildSet:         {"BUILD_SET", fArg},
	OpBuildMap:         {"BUILD_MAP", fArg},
	OpBuildConstKeyMap: {"BUILD_CONST_KEY_MAP", fArg},
	OpBuildString:      {"BUILD_STRING", fArg},
	OpBuildSlice:       {"BUILD_SLICE", fArg},
	OpListAppend:       {"LIST_APPEND", fArg},
	OpSetAdd:           {"SET_ADD", fArg},
	OpMapAdd:           {"MAP_ADD", fArg},
	OpListExtend:       {"LIST_EXTEND", fArg},
	OpSetUpdate:        {"SET_UPDATE", fArg},
	OpDictMerge:        {"DICT_MERGE", fArg},
	OpDictUpdate:       {"DICT_UPDATE", fArg},
	OpListToTuple:      {"LIST_TO_TUPLE", 0},
	OpUnpackSequence:   {"UNPACK_SEQUENCE", fArg},
	OpUnpackEx:         {"UNPACK_EX", fArg},
	OpFormatValue:      {"FORMAT_VALUE", fArg},
	OpGetLen:           {"GET_LEN", 0},

	// Iteration and generators
	OpGetIter:          {"GET_ITER", 0},
	OpGetYieldFromIter: {"GET_YIELD_FROM_ITER", 0},
	OpForIter:          {"FOR_ITER", fCjmp},
	OpYieldValue:       {"YIELD_VALUE", FlagSuspend},
	OpYieldFrom:        {"YIELD_FROM", FlagSuspend},
	OpGenStart:         {"GEN_START", fArg},

	// Control flow
	OpJumpForward:       {"JUMP_FORWARD", fJmp},
	OpJumpAbsolute:      {"JUMP_ABSOLUTE", fJmp},
	OpPopJumpIfFalse:    {"POP_JUMP_IF_FALSE", fCjmp},
	OpPopJumpIfTrue:     {"POP_JUMP_IF_TRUE", fCjmp},
	OpJumpIfFalseOrPop:  {"JUMP_IF_FALSE_OR_POP", fCjmp},
	OpJumpIfTrueOrPop:   {"JUMP_IF_TRUE_OR_POP", fCjmp},
	OpJumpIfNotExcMatch: {"JUMP_IF_NOT_EXC_MATCH", fCjmp},
	OpReturnValue:       {"RETURN_VALUE", fTerm},

	// Calls
	OpCallFunction:   {"CALL_FUNCTION", fArg},
	OpCallFunctionKw: {"CALL_FUNCTION_KW", fArg},
	OpCallFunctionEx: {"CALL_FUNCTION_EX", fArg},
	OpLoadMethod:     {"LOAD_METHOD", fArg},
	OpCallMethod:     {"CALL_METHOD", fArg},
	OpMakeFunction:   {"MAKE_FUNCTION", fArg},

	// Exceptions and blocks
	OpSetupFinally:      {"SETUP_FINALLY", FlagArg | FlagSetup},
	OpSetupWith:         {"SETUP_WITH", FlagArg | FlagSetup},
	OpPopBlock:          {"POP_BLOCK", FlagPopBlock},
	OpPopExcept:         {"POP_EXCEPT", 0},
	OpRaiseVarargs:      {"RAISE_VARARGS", FlagArg | fTerm},
	OpReraise:           {"RERAISE", fTerm},
	OpWithExceptStart:   {"WITH_EXCEPT_START", 0},
	OpBeginFinally:      {"BEGIN_FINALLY", 0},
	OpEndFinally:        {"END_FINALLY", 0},
	OpCallFinally:       {"CALL_FINALLY", fCjmp},
	OpPopFinally:        {"POP_FINALLY", fArg},
	OpWithCleanupStart:  {"WITH_CLEANUP_START", 0},
	OpWithCleanupFinish: {"WITH_CLEANUP_FINISH", 0},
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		m[info.Name] = op
	}
	return m
}()

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// LookupName returns the opcode with the given mnemonic.
func LookupName(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

func (op Opcode) has(f Flags) bool { return GetOpcodeInfo(op).Flags&f != 0 }

// HasArg reports whether the opcode uses its argument.
func (op Opcode) HasArg() bool { return op.has(FlagArg) }

// IsJump returns true if the opcode may transfer control to its target.
func (op Opcode) IsJump() bool { return op.has(FlagJump) }

// IsConditional returns true for jumps that may also fall through.
func (op Opcode) IsConditional() bool { return op.has(FlagConditional) }

// IsTerminator returns true if control never reaches the next instruction.
func (op Opcode) IsTerminator() bool { return op.has(FlagNoFallthrough) }

// IsSetup returns true if the opcode opens a protected region.
func (op Opcode) IsSetup() bool { return op.has(FlagSetup) }

// IsPopBlock returns true if the opcode closes a protected region.
func (op Opcode) IsPopBlock() bool { return op.has(FlagPopBlock) }

// Suspends returns true for generator suspension points.
func (op Opcode) Suspends() bool { return op.has(FlagSuspend) }

// HasTarget returns true if the instruction carries a target index.
func (op Opcode) HasTarget() bool { return op.IsJump() || op.IsSetup() }

// EndsBlock returns true if a basic block must end after this opcode.
func (op Opcode) EndsBlock() bool { return op.IsJump() || op.IsTerminator() || op.IsSetup() }

// AllOpcodes returns every defined opcode in ascending order.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	sort.Slice(opcodes, func(i, j int) bool { return opcodes[i] < opcodes[j] })
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
