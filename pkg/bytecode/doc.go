// Package bytecode describes the decoded instruction stream the flow
// analysis consumes.
//
// Opcodes are symbolic: an Opcode value names an operation independently of
// the byte it is encoded as. Each supported language version has an
// OpcodeTable translating between raw bytes and symbolic opcodes, so the
// same analysis runs over 3.8, 3.9 and 3.10 code and an operation missing
// from a version is rejected at decode time.
//
// # Instructions
//
// An Instruction carries the opcode, the already-extended integer argument,
// resolved jump targets as instruction indices, and the source line. Jump
// targets are never recomputed from the argument: the producer of the stream
// resolves them once, whatever the version's jump encoding.
//
// # Listings
//
// Assemble parses a small text format used by tests, unit files and the
// command line tool:
//
//	# comment
//	    LOAD_CONST 0
//	loop:
//	    FOR_ITER done
//	    STORE_FAST 1
//	    JUMP_ABSOLUTE loop      @7
//	done:
//	    RETURN_VALUE
//
// A token ending in ':' defines a label at the next instruction. Jump and
// setup opcodes take a label or an absolute instruction index; other opcodes
// with an argument take an integer. A trailing @N sets the source line.
// Listing renders instructions back in the same format.
package bytecode
