package vm

import "fmt"

// ---------------------------------------------------------------------------
// Unit: one compiled program, function body, or route handler
// ---------------------------------------------------------------------------

// Instruction is one bytecode operation. The operand lives in Arg or Sym
// depending on the opcode's OperandKind: constant-pool indexes, jump targets,
// and inline counts use Arg; variable names use Sym. Jump instructions carry
// their symbolic label in Sym until label resolution fills Arg and clears it.
// Line is the 1-based source line (0 when unknown); it feeds runtime error
// positions and the debugger, and is not an operand.
type Instruction struct {
	Op   Opcode
	Arg  int
	Sym  string
	Line int
}

func (in Instruction) String() string {
	switch in.Op.OperandKind() {
	case OperandNone:
		return in.Op.String()
	case OperandName:
		return fmt.Sprintf("%s %s", in.Op, in.Sym)
	case OperandJump:
		if in.Sym != "" {
			return fmt.Sprintf("%s %s", in.Op, in.Sym)
		}
		return fmt.Sprintf("%s %d", in.Op, in.Arg)
	default:
		return fmt.Sprintf("%s %d", in.Op, in.Arg)
	}
}

// Unit is a compiled unit: an instruction list paired with its constant
// pool. A whole program and every function or route body compile to
// independent units; nested units never reference their parent's pool
// indexes or labels. Units are immutable after label resolution.
type Unit struct {
	Name         string
	Instructions []Instruction
	Constants    []Value
}

// NewUnit creates an empty unit.
func NewUnit(name string) *Unit {
	return &Unit{Name: name}
}

// AddConstant adds a value to the pool and returns its index, deduplicating
// by value equality: the first occurrence wins the index, and an index never
// changes once assigned. The scan is linear, which is fine at the program
// sizes Mythos targets.
func (u *Unit) AddConstant(v Value) int {
	for i, c := range u.Constants {
		if c.Equal(v) {
			return i
		}
	}
	u.Constants = append(u.Constants, v)
	return len(u.Constants) - 1
}

// Emit appends an instruction and returns its index.
func (u *Unit) Emit(in Instruction) int {
	u.Instructions = append(u.Instructions, in)
	return len(u.Instructions) - 1
}

// Validate checks structural soundness: every opcode is defined, every
// jump target is an index within this unit's instruction list with no
// unresolved label left, and every constant reference is in range.
// Function constants validate recursively.
func (u *Unit) Validate() error {
	for i, in := range u.Instructions {
		if !in.Op.Valid() {
			return fmt.Errorf("unit %q: undefined opcode 0x%02X at %d", u.Name, byte(in.Op), i)
		}
		switch in.Op.OperandKind() {
		case OperandJump:
			if in.Sym != "" {
				return fmt.Errorf("unit %q: unresolved label %q at %d", u.Name, in.Sym, i)
			}
			if in.Arg < 0 || in.Arg > len(u.Instructions) {
				return fmt.Errorf("unit %q: jump target %d out of range at %d", u.Name, in.Arg, i)
			}
		case OperandConst:
			if in.Arg < 0 || in.Arg >= len(u.Constants) {
				return fmt.Errorf("unit %q: constant index %d out of range at %d", u.Name, in.Arg, i)
			}
		case OperandName:
			if in.Sym == "" {
				return fmt.Errorf("unit %q: missing name operand at %d", u.Name, i)
			}
		case OperandCount:
			if in.Arg < 0 {
				return fmt.Errorf("unit %q: negative count %d at %d", u.Name, in.Arg, i)
			}
		}
	}
	for i, c := range u.Constants {
		if c.Kind() == KindFunction {
			if err := c.Func().Unit.Validate(); err != nil {
				return fmt.Errorf("unit %q: constant %d: %w", u.Name, i, err)
			}
		}
	}
	return nil
}
