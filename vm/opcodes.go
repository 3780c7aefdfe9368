package vm

import "fmt"

// Opcode represents a bytecode instruction tag.
// Opcodes are organized into ranges by category for easy identification.
type Opcode uint8

const (
	// ========================================================================
	// Stack and constants (0x00-0x0F)
	// ========================================================================

	OpLoadConst Opcode = 0x00 // Push constant: LOAD_CONST <pool index>
	OpLoadVar   Opcode = 0x01 // Push variable value: LOAD_VAR <name>
	OpStoreVar  Opcode = 0x02 // Pop and store: STORE_VAR <name>
	OpPop       Opcode = 0x03 // Pop top of stack
	OpDup       Opcode = 0x04 // Duplicate top of stack

	// ========================================================================
	// Arithmetic (0x10-0x1F)
	// ========================================================================

	OpAdd Opcode = 0x10 // Pop two, push sum (numbers, strings, arrays)
	OpSub Opcode = 0x11 // Pop two, push difference
	OpMul Opcode = 0x12 // Pop two, push product
	OpDiv Opcode = 0x13 // Pop two, push quotient; divisor 0 is an error
	OpPow Opcode = 0x14 // Pop two, push left raised to right
	OpMod Opcode = 0x15 // Pop two, push remainder (sign of divisor)
	OpNeg Opcode = 0x16 // Negate top of stack

	// ========================================================================
	// Comparison (0x20-0x2F)
	// ========================================================================

	OpEq Opcode = 0x20 // Pop two, push equality
	OpNe Opcode = 0x21 // Pop two, push inequality
	OpLt Opcode = 0x22 // Pop two, push a < b
	OpGt Opcode = 0x23 // Pop two, push a > b
	OpLe Opcode = 0x24 // Pop two, push a <= b
	OpGe Opcode = 0x25 // Pop two, push a >= b

	// ========================================================================
	// Logical (0x28-0x2F)
	// ========================================================================

	OpAnd Opcode = 0x28 // Pop two, push left if falsy else right (eager)
	OpOr  Opcode = 0x29 // Pop two, push left if truthy else right (eager)
	OpNot Opcode = 0x2A // Pop one, push boolean negation

	// ========================================================================
	// Control flow (0x30-0x3F)
	// ========================================================================

	OpJump        Opcode = 0x30 // Unconditional jump: JUMP <target>
	OpJumpIfFalse Opcode = 0x31 // Pop; jump if falsy
	OpJumpIfTrue  Opcode = 0x32 // Pop; jump if truthy
	OpGetIter     Opcode = 0x33 // Pop iterable, push iterator
	OpForIter     Opcode = 0x34 // Push next element, or pop iterator and jump

	// ========================================================================
	// Functions (0x40-0x4F)
	// ========================================================================

	OpCall         Opcode = 0x40 // Call with <argc> arguments below the callee
	OpReturn       Opcode = 0x41 // Pop; end the current unit with that value
	OpMakeFunction Opcode = 0x42 // Push function from template constant

	// ========================================================================
	// Collections and members (0x50-0x5F)
	// ========================================================================

	OpMakeArray  Opcode = 0x50 // Pop <count> values, push array
	OpMakeObject Opcode = 0x51 // Pop <count> key/value pairs, push object
	OpGetMember  Opcode = 0x52 // Pop receiver, push member: GET_MEMBER <name const>
	OpSetMember  Opcode = 0x53 // Pop value and receiver, store member
	OpGetIndex   Opcode = 0x54 // Pop index and receiver, push element
	OpSetIndex   Opcode = 0x55 // Pop value, index, receiver; store element

	// ========================================================================
	// Special (0x60-0x6F)
	// ========================================================================

	OpPrint  Opcode = 0x60 // Pop and write display form to the VM output
	OpImport Opcode = 0x61 // Recognized no-op: IMPORT <module name const>

	// ========================================================================
	// Scene graph (0x70-0x77)
	// ========================================================================

	OpCreateScene     Opcode = 0x70 // Push new scene, register under its name
	OpAddSceneElement Opcode = 0x71 // Pop property object, append typed element

	// ========================================================================
	// Web (0x78-0x7F)
	// ========================================================================

	OpCreateWebApp Opcode = 0x78 // Push new web app and register it
	OpAddRoute     Opcode = 0x79 // Pop path, install handler from constant
)

// OperandKind declares what an opcode's operand means. The label-resolution
// pass rewrites only OperandJump operands, so a variable that happens to be
// named like a label can never be corrupted by resolution.
type OperandKind uint8

const (
	OperandNone  OperandKind = iota
	OperandConst             // Arg is a constant-pool index
	OperandName              // Sym is a variable name
	OperandJump              // Sym is a label until resolution; Arg is the target after
	OperandCount             // Arg is an inline count (arguments, elements, pairs)
)

func (k OperandKind) String() string {
	switch k {
	case OperandNone:
		return "none"
	case OperandConst:
		return "const"
	case OperandName:
		return "name"
	case OperandJump:
		return "jump"
	case OperandCount:
		return "count"
	default:
		return fmt.Sprintf("OperandKind(%d)", k)
	}
}

// OpcodeInfo provides metadata about each opcode for disassembly and
// validation.
type OpcodeInfo struct {
	Name    string
	Operand OperandKind
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpLoadConst: {"LOAD_CONST", OperandConst},
	OpLoadVar:   {"LOAD_VAR", OperandName},
	OpStoreVar:  {"STORE_VAR", OperandName},
	OpPop:       {"POP", OperandNone},
	OpDup:       {"DUP", OperandNone},

	OpAdd: {"ADD", OperandNone},
	OpSub: {"SUB", OperandNone},
	OpMul: {"MUL", OperandNone},
	OpDiv: {"DIV", OperandNone},
	OpPow: {"POW", OperandNone},
	OpMod: {"MOD", OperandNone},
	OpNeg: {"NEG", OperandNone},

	OpEq: {"EQ", OperandNone},
	OpNe: {"NE", OperandNone},
	OpLt: {"LT", OperandNone},
	OpGt: {"GT", OperandNone},
	OpLe: {"LE", OperandNone},
	OpGe: {"GE", OperandNone},

	OpAnd: {"AND", OperandNone},
	OpOr:  {"OR", OperandNone},
	OpNot: {"NOT", OperandNone},

	OpJump:        {"JUMP", OperandJump},
	OpJumpIfFalse: {"JUMP_IF_FALSE", OperandJump},
	OpJumpIfTrue:  {"JUMP_IF_TRUE", OperandJump},
	OpGetIter:     {"GET_ITER", OperandNone},
	OpForIter:     {"FOR_ITER", OperandJump},

	OpCall:         {"CALL", OperandCount},
	OpReturn:       {"RETURN", OperandNone},
	OpMakeFunction: {"MAKE_FUNCTION", OperandConst},

	OpMakeArray:  {"MAKE_ARRAY", OperandCount},
	OpMakeObject: {"MAKE_OBJECT", OperandCount},
	OpGetMember:  {"GET_MEMBER", OperandConst},
	OpSetMember:  {"SET_MEMBER", OperandConst},
	OpGetIndex:   {"GET_INDEX", OperandNone},
	OpSetIndex:   {"SET_INDEX", OperandNone},

	OpPrint:  {"PRINT", OperandNone},
	OpImport: {"IMPORT", OperandConst},

	OpCreateScene:     {"CREATE_SCENE", OperandConst},
	OpAddSceneElement: {"ADD_SCENE_ELEMENT", OperandConst},

	OpCreateWebApp: {"CREATE_WEB_APP", OperandNone},
	OpAddRoute:     {"ADD_ROUTE", OperandConst},
}

// GetOpcodeInfo returns metadata for an opcode. Unknown opcodes get a
// placeholder name and no operand.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandKind returns the operand kind declared for this opcode.
func (op Opcode) OperandKind() OperandKind {
	return GetOpcodeInfo(op).Operand
}

// IsJump returns true if this opcode carries a jump-target operand.
func (op Opcode) IsJump() bool {
	return op.OperandKind() == OperandJump
}

// Valid returns true if this opcode is defined.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
