package vm

import (
	"strings"
	"testing"
)

func TestProfilerCountsOps(t *testing.T) {
	u := NewUnit("counts")
	c := u.AddConstant(Number(1))
	u.Emit(Instruction{Op: OpLoadConst, Arg: c})
	u.Emit(Instruction{Op: OpLoadConst, Arg: c})
	u.Emit(Instruction{Op: OpAdd})
	u.Emit(Instruction{Op: OpReturn})

	p := NewProfiler()
	vm := New()
	vm.SetProfiler(p)
	if _, err := vm.Run(u); err != nil {
		t.Fatal(err)
	}

	if got := p.OpCount(OpLoadConst); got != 2 {
		t.Errorf("LOAD_CONST count = %d, want 2", got)
	}
	if got := p.OpCount(OpAdd); got != 1 {
		t.Errorf("ADD count = %d, want 1", got)
	}
	if got := p.OpCount(OpMul); got != 0 {
		t.Errorf("MUL count = %d, want 0", got)
	}
	if got := p.TotalInstructions(); got != 4 {
		t.Errorf("total = %d, want 4", got)
	}
}

func TestProfilerCountsCalls(t *testing.T) {
	body := NewUnit("f")
	body.Emit(Instruction{Op: OpLoadConst, Arg: body.AddConstant(Number(1))})
	body.Emit(Instruction{Op: OpReturn})
	fn := FunctionValue(&Function{Name: "f", Unit: body})

	u := NewUnit("main")
	fnConst := u.AddConstant(fn)
	for i := 0; i < 3; i++ {
		u.Emit(Instruction{Op: OpMakeFunction, Arg: fnConst})
		u.Emit(Instruction{Op: OpCall, Arg: 0})
		u.Emit(Instruction{Op: OpPop})
	}

	p := NewProfiler()
	vm := New()
	vm.SetProfiler(p)
	if _, err := vm.Run(u); err != nil {
		t.Fatal(err)
	}

	calls, total := p.FuncStats("f")
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if total < 0 {
		t.Errorf("total = %v", total)
	}
	if calls, _ := p.FuncStats("ghost"); calls != 0 {
		t.Errorf("unknown function has %d calls", calls)
	}
}

func TestProfilerReport(t *testing.T) {
	body := NewUnit("work")
	body.Emit(Instruction{Op: OpLoadConst, Arg: body.AddConstant(Null())})
	body.Emit(Instruction{Op: OpReturn})

	u := NewUnit("main")
	u.Emit(Instruction{Op: OpMakeFunction, Arg: u.AddConstant(FunctionValue(&Function{Name: "work", Unit: body}))})
	u.Emit(Instruction{Op: OpCall, Arg: 0})
	u.Emit(Instruction{Op: OpReturn})

	p := NewProfiler()
	vm := New()
	vm.SetProfiler(p)
	if _, err := vm.Run(u); err != nil {
		t.Fatal(err)
	}

	var sb strings.Builder
	if err := p.Report(&sb); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	for _, want := range []string{"MAKE_FUNCTION", "CALL", "work"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestProfilerUnusedIsQuiet(t *testing.T) {
	// A VM without a profiler must not panic on any path.
	u := NewUnit("plain")
	u.Emit(Instruction{Op: OpLoadConst, Arg: u.AddConstant(Number(1))})
	u.Emit(Instruction{Op: OpReturn})
	if _, err := New().Run(u); err != nil {
		t.Fatal(err)
	}
}
