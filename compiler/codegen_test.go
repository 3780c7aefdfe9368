package compiler

import (
	"testing"

	"github.com/chazu/mythos/vm"
)

func compileSource(t *testing.T, source string, opts Options) *vm.Unit {
	t.Helper()
	unit, err := CompileSource(source, "test", opts)
	if err != nil {
		t.Fatalf("CompileSource(%q): %v", source, err)
	}
	return unit
}

func ops(u *vm.Unit) []vm.Opcode {
	out := make([]vm.Opcode, len(u.Instructions))
	for i, in := range u.Instructions {
		out[i] = in.Op
	}
	return out
}

func opsEqual(got, want []vm.Opcode) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestCodegenArithmetic(t *testing.T) {
	unit := compileSource(t, "1 + 2 * 3", Options{})
	want := []vm.Opcode{
		vm.OpLoadConst, vm.OpLoadConst, vm.OpLoadConst,
		vm.OpMul, vm.OpAdd,
	}
	if !opsEqual(ops(unit), want) {
		t.Errorf("ops = %v, want %v", ops(unit), want)
	}
}

func TestCodegenAutoPop(t *testing.T) {
	unit := compileSource(t, "1 + 2", Options{AutoPop: true})
	got := ops(unit)
	if got[len(got)-1] != vm.OpPop {
		t.Errorf("last op = %v, want POP", got[len(got)-1])
	}

	// Without AutoPop the value stays on the stack.
	unit = compileSource(t, "1 + 2", Options{})
	got = ops(unit)
	if got[len(got)-1] == vm.OpPop {
		t.Error("unexpected POP without AutoPop")
	}
}

// Assignments never get an auto-pop: STORE_VAR already consumes the value.
func TestCodegenAssignNoPop(t *testing.T) {
	unit := compileSource(t, "x = 1", Options{AutoPop: true})
	want := []vm.Opcode{vm.OpLoadConst, vm.OpStoreVar}
	if !opsEqual(ops(unit), want) {
		t.Errorf("ops = %v, want %v", ops(unit), want)
	}
}

// Declarations compile like assignments: the value is stored immediately
// and never auto-popped.
func TestCodegenVarDecl(t *testing.T) {
	for _, source := range []string{"let x = 1", "const x = 1", "var x = 1"} {
		unit := compileSource(t, source, Options{AutoPop: true})
		want := []vm.Opcode{vm.OpLoadConst, vm.OpStoreVar}
		if !opsEqual(ops(unit), want) {
			t.Errorf("%q: ops = %v, want %v", source, ops(unit), want)
		}
		if unit.Instructions[1].Sym != "x" {
			t.Errorf("%q: store target = %q, want x", source, unit.Instructions[1].Sym)
		}
	}
}

func TestCodegenVarDeclDefaultsNull(t *testing.T) {
	unit := compileSource(t, "let x", Options{AutoPop: true})
	want := []vm.Opcode{vm.OpLoadConst, vm.OpStoreVar}
	if !opsEqual(ops(unit), want) {
		t.Fatalf("ops = %v, want %v", ops(unit), want)
	}
	if c := unit.Constants[unit.Instructions[0].Arg]; !c.IsNull() {
		t.Errorf("default constant = %s, want null", c.Display())
	}
}

func TestCodegenImplicitReturn(t *testing.T) {
	unit := compileSource(t, "x = 20\nx * 2", Options{AutoPop: true, ImplicitReturn: true})
	got := ops(unit)
	if got[len(got)-1] != vm.OpReturn {
		t.Fatalf("last op = %v, want RETURN", got[len(got)-1])
	}
	// The final expression is exempt from auto-pop.
	if got[len(got)-2] == vm.OpPop {
		t.Error("final expression was popped before RETURN")
	}
}

func TestCodegenLabelsResolved(t *testing.T) {
	unit := compileSource(t, `
i = 0
while i < 10 {
    if i == 5 {
        break
    }
    i += 1
}
for x in [1, 2, 3] {
    continue
}
`, Options{AutoPop: true})

	var checkUnit func(u *vm.Unit)
	checkUnit = func(u *vm.Unit) {
		for i, in := range u.Instructions {
			if in.Op.OperandKind() == vm.OperandJump {
				if in.Sym != "" {
					t.Errorf("instruction %d: unresolved label %q", i, in.Sym)
				}
				if in.Arg < 0 || in.Arg > len(u.Instructions) {
					t.Errorf("instruction %d: jump target %d out of range", i, in.Arg)
				}
			}
		}
		for _, c := range u.Constants {
			if c.Kind() == vm.KindFunction {
				checkUnit(c.Func().Unit)
			}
		}
	}
	checkUnit(unit)
}

// Label resolution touches jump operands only. A variable named like an
// internal label survives compilation untouched.
func TestCodegenLabelLikeVariableName(t *testing.T) {
	unit := compileSource(t, `
L0 = 1
while L0 < 3 {
    L0 += 1
}
`, Options{})
	for _, in := range unit.Instructions {
		if in.Op == vm.OpLoadVar || in.Op == vm.OpStoreVar {
			if in.Sym != "L0" {
				t.Errorf("variable operand = %q, want L0", in.Sym)
			}
		}
	}
	if err := unit.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestCodegenForLoopShape(t *testing.T) {
	unit := compileSource(t, "for x in [1] { x }", Options{AutoPop: true})
	got := ops(unit)

	// GET_ITER precedes FOR_ITER, and the loop stores into the variable.
	var sawGetIter, sawForIter, sawStore bool
	for i, op := range got {
		switch op {
		case vm.OpGetIter:
			sawGetIter = true
		case vm.OpForIter:
			if !sawGetIter {
				t.Error("FOR_ITER before GET_ITER")
			}
			sawForIter = true
			// FOR_ITER's exit target is past the loop cleanup.
			if unit.Instructions[i].Arg <= i {
				t.Errorf("FOR_ITER exit target %d not forward", unit.Instructions[i].Arg)
			}
		case vm.OpStoreVar:
			sawStore = true
		}
	}
	if !sawForIter || !sawStore {
		t.Errorf("loop shape incomplete: ops = %v", got)
	}
}

// break inside a for loop pops the live iterator before leaving.
func TestCodegenForBreakPopsIterator(t *testing.T) {
	unit := compileSource(t, "for x in [1, 2] { break }", Options{AutoPop: true})
	got := ops(unit)

	// The break jump must land on a POP, not directly past the loop.
	for _, in := range unit.Instructions {
		if in.Op == vm.OpJump && in.Arg < len(got) && got[in.Arg] == vm.OpPop {
			return
		}
	}
	t.Errorf("no break jump lands on POP: %v", got)
}

func TestCodegenBreakOutsideLoop(t *testing.T) {
	for _, source := range []string{"break", "continue", "function f() { break }"} {
		_, err := CompileSource(source, "test", Options{})
		if err == nil {
			t.Errorf("CompileSource(%q): expected error", source)
			continue
		}
		if err.Kind != SyntaxError {
			t.Errorf("CompileSource(%q): kind = %v, want SyntaxError", source, err.Kind)
		}
	}
}

func TestCodegenFunctionTrailingReturn(t *testing.T) {
	unit := compileSource(t, "function f() { x = 1 }", Options{})
	fn := findFunction(t, unit, "f")
	body := fn.Unit.Instructions
	if body[len(body)-1].Op != vm.OpReturn {
		t.Fatalf("function does not end in RETURN: %v", ops(fn.Unit))
	}
	// The implicit return yields null.
	idx := body[len(body)-2]
	if idx.Op != vm.OpLoadConst || !fn.Unit.Constants[idx.Arg].IsNull() {
		t.Errorf("implicit return value is not null")
	}
}

func TestCodegenFunctionExplicitReturnNoDuplicate(t *testing.T) {
	unit := compileSource(t, "function f() { return 1 }", Options{})
	fn := findFunction(t, unit, "f")
	body := fn.Unit.Instructions
	var returns int
	for _, in := range body {
		if in.Op == vm.OpReturn {
			returns++
		}
	}
	if returns != 1 {
		t.Errorf("got %d RETURNs, want 1: %v", returns, ops(fn.Unit))
	}
}

func TestCodegenNestedUnitsIndependent(t *testing.T) {
	unit := compileSource(t, `
function outer() {
    function inner() {
        return 1
    }
    return inner()
}
`, Options{})
	outer := findFunction(t, unit, "outer")
	if err := outer.Unit.Validate(); err != nil {
		t.Errorf("outer unit: %v", err)
	}
	inner := findFunction(t, outer.Unit, "inner")
	if err := inner.Unit.Validate(); err != nil {
		t.Errorf("inner unit: %v", err)
	}
}

func TestCodegenClass(t *testing.T) {
	unit := compileSource(t, `
class Greeter {
    function hello() {
        return "hi"
    }
}
`, Options{})
	got := ops(unit)
	var sawMakeObject, sawStore bool
	for i, op := range got {
		if op == vm.OpMakeObject {
			sawMakeObject = true
			if unit.Instructions[i].Arg != 1 {
				t.Errorf("MAKE_OBJECT count = %d, want 1", unit.Instructions[i].Arg)
			}
		}
		if op == vm.OpStoreVar && unit.Instructions[i].Sym == "Greeter" {
			sawStore = true
		}
	}
	if !sawMakeObject || !sawStore {
		t.Errorf("class shape incomplete: %v", got)
	}
}

func TestCodegenScene(t *testing.T) {
	unit := compileSource(t, `
scene intro {
    text {
        content: "hello"
    }
}
`, Options{})
	got := ops(unit)
	want := []vm.Opcode{vm.OpCreateScene, vm.OpAddSceneElement, vm.OpStoreVar}
	idx := 0
	for _, op := range got {
		if idx < len(want) && op == want[idx] {
			idx++
		}
	}
	if idx != len(want) {
		t.Errorf("scene opcode order incomplete: %v", got)
	}
}

func TestCodegenWeb(t *testing.T) {
	unit := compileSource(t, `
web.app {
    route "/" {
        return "home"
    }
}
`, Options{AutoPop: true})
	got := ops(unit)
	var sawCreate, sawRoute bool
	for i, op := range got {
		switch op {
		case vm.OpCreateWebApp:
			sawCreate = true
		case vm.OpAddRoute:
			sawRoute = true
			fn := unit.Constants[unit.Instructions[i].Arg]
			if fn.Kind() != vm.KindFunction {
				t.Errorf("ADD_ROUTE operand is %v, want function", fn.Kind())
			}
		}
	}
	if !sawCreate || !sawRoute {
		t.Errorf("web shape incomplete: %v", got)
	}
}

func TestCodegenImport(t *testing.T) {
	unit := compileSource(t, "import utils", Options{})
	got := ops(unit)
	if len(got) != 1 || got[0] != vm.OpImport {
		t.Fatalf("ops = %v, want [IMPORT]", got)
	}
	name := unit.Constants[unit.Instructions[0].Arg]
	if name.Str() != "utils" {
		t.Errorf("module name = %q", name.Str())
	}
}

func TestCodegenConstantDedup(t *testing.T) {
	unit := compileSource(t, "x = 7\ny = 7\nz = 7", Options{})
	count := 0
	for _, c := range unit.Constants {
		if c.Kind() == vm.KindNumber && c.Num() == 7 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("constant 7 appears %d times, want 1", count)
	}
}

func TestCodegenLineNumbers(t *testing.T) {
	unit := compileSource(t, "x = 1\ny = 2", Options{})
	if unit.Instructions[0].Line != 1 {
		t.Errorf("first instruction line = %d, want 1", unit.Instructions[0].Line)
	}
	last := unit.Instructions[len(unit.Instructions)-1]
	if last.Line != 2 {
		t.Errorf("last instruction line = %d, want 2", last.Line)
	}
}

func findFunction(t *testing.T, u *vm.Unit, name string) *vm.Function {
	t.Helper()
	for _, c := range u.Constants {
		if c.Kind() == vm.KindFunction && c.Func().Name == name {
			return c.Func()
		}
	}
	t.Fatalf("function %q not in constant pool of %q", name, u.Name)
	return nil
}
