package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the unit: a constants
// section, then one line per instruction with its index, mnemonic, operand,
// and source line. Function constants are listed recursively after the
// unit that embeds them.
func (u *Unit) Disassemble() string {
	var sb strings.Builder
	u.disassembleInto(&sb)
	return sb.String()
}

func (u *Unit) disassembleInto(sb *strings.Builder) {
	sb.WriteString(fmt.Sprintf("; === %s ===\n", u.Name))

	if len(u.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range u.Constants {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, constSummary(c)))
		}
	}

	sb.WriteString("; Code:\n")
	for i, in := range u.Instructions {
		line := u.formatInstruction(in)
		if in.Line > 0 {
			sb.WriteString(fmt.Sprintf("%04d  %-28s ; line %d\n", i, line, in.Line))
		} else {
			sb.WriteString(fmt.Sprintf("%04d  %s\n", i, line))
		}
	}
	sb.WriteString("\n")

	for _, c := range u.Constants {
		if c.Kind() == KindFunction {
			c.Func().Unit.disassembleInto(sb)
		}
	}
}

// formatInstruction renders one instruction, annotating constant operands
// with a summary of the constant they reference.
func (u *Unit) formatInstruction(in Instruction) string {
	switch in.Op.OperandKind() {
	case OperandNone:
		return in.Op.String()
	case OperandName:
		return fmt.Sprintf("%s %s", in.Op, in.Sym)
	case OperandJump:
		if in.Sym != "" {
			return fmt.Sprintf("%s %s", in.Op, in.Sym)
		}
		return fmt.Sprintf("%s -> %04d", in.Op, in.Arg)
	case OperandConst:
		summary := "<bad index>"
		if in.Arg >= 0 && in.Arg < len(u.Constants) {
			summary = constSummary(u.Constants[in.Arg])
		}
		return fmt.Sprintf("%s %d ; %s", in.Op, in.Arg, summary)
	default:
		return fmt.Sprintf("%s %d", in.Op, in.Arg)
	}
}

// constSummary renders a constant for listing, truncating long strings.
func constSummary(v Value) string {
	if v.Kind() == KindFunction {
		f := v.Func()
		return fmt.Sprintf("<function %s(%s)>", f.Name, strings.Join(f.Params, ", "))
	}
	s := v.display()
	if len(s) > 40 {
		s = s[:37] + "..."
	}
	return s
}
