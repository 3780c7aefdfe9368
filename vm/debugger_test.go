package vm

import (
	"testing"
	"time"
)

// countingUnit builds a unit equivalent to: x = 1; x = 2; x = 3, one
// statement per source line.
func countingUnit() *Unit {
	u := NewUnit("count")
	for i := 1; i <= 3; i++ {
		u.Emit(Instruction{Op: OpLoadConst, Arg: u.AddConstant(Number(float64(i))), Line: i})
		u.Emit(Instruction{Op: OpStoreVar, Sym: "x", Line: i})
	}
	return u
}

func waitEvent(t *testing.T, d *Debugger, typ string) DebugEvent {
	t.Helper()
	select {
	case ev := <-d.Events():
		if ev.Type != typ {
			t.Fatalf("event = %+v, want type %q", ev, typ)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q event", typ)
		return DebugEvent{}
	}
}

func TestDebuggerBreakpoint(t *testing.T) {
	vm := New()
	d := NewDebugger(vm)
	if err := d.SetBreakpoint(2); err != nil {
		t.Fatal(err)
	}
	d.Install()

	done := make(chan error, 1)
	go func() {
		_, err := vm.Run(countingUnit())
		done <- err
	}()

	ev := waitEvent(t, d, "stopped")
	if ev.Reason != "breakpoint" || ev.Line != 2 {
		t.Errorf("event = %+v, want breakpoint at line 2", ev)
	}

	// While paused, line 1 has executed and line 2 has not.
	snap := d.Snapshot()
	if x, ok := snap.Globals["x"]; !ok || x.Num() != 1 {
		t.Errorf("x = %v at breakpoint, want 1", snap.Globals["x"])
	}
	if snap.Line != 2 {
		t.Errorf("snapshot line = %d, want 2", snap.Line)
	}

	d.Resume()
	waitEvent(t, d, "continued")
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if x, _ := vm.Global("x"); x.Num() != 3 {
		t.Errorf("x = %s after run, want 3", x.Display())
	}
}

func TestDebuggerStep(t *testing.T) {
	vm := New()
	d := NewDebugger(vm)
	if err := d.SetBreakpoint(1); err != nil {
		t.Fatal(err)
	}
	d.Install()

	done := make(chan error, 1)
	go func() {
		_, err := vm.Run(countingUnit())
		done <- err
	}()

	ev := waitEvent(t, d, "stopped")
	if ev.Line != 1 {
		t.Fatalf("stopped at line %d, want 1", ev.Line)
	}

	d.Step()
	waitEvent(t, d, "continued")
	ev = waitEvent(t, d, "stopped")
	if ev.Reason != "step" || ev.Line != 2 {
		t.Errorf("event = %+v, want step stop at line 2", ev)
	}

	d.Resume()
	waitEvent(t, d, "continued")
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

// A breakpoint fires once per line entry, not once per instruction.
func TestDebuggerBreakpointFiresOncePerLine(t *testing.T) {
	vm := New()
	d := NewDebugger(vm)
	if err := d.SetBreakpoint(2); err != nil {
		t.Fatal(err)
	}
	d.Install()

	done := make(chan error, 1)
	go func() {
		_, err := vm.Run(countingUnit())
		done <- err
	}()

	waitEvent(t, d, "stopped")
	d.Resume()
	waitEvent(t, d, "continued")
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-d.Events():
		t.Errorf("unexpected extra event %+v", ev)
	default:
	}
}

func TestDebuggerWatch(t *testing.T) {
	vm := New()
	d := NewDebugger(vm)
	d.Watch("x")
	d.Install()

	done := make(chan error, 1)
	go func() {
		_, err := vm.Run(countingUnit())
		done <- err
	}()

	// x goes from unset to 1 during line 1, observed at the line 2 boundary.
	ev := waitEvent(t, d, "stopped")
	if ev.Reason != "watch" || ev.Watch != "x" || ev.Line != 2 {
		t.Errorf("event = %+v, want watch on x at line 2", ev)
	}
	if snap := d.Snapshot(); snap.Globals["x"].Num() != 1 {
		t.Errorf("x = %v at first watch stop, want 1", snap.Globals["x"])
	}
	d.Resume()
	waitEvent(t, d, "continued")

	// 1 -> 2 during line 2, observed at the line 3 boundary.
	ev = waitEvent(t, d, "stopped")
	if ev.Reason != "watch" || ev.Line != 3 {
		t.Errorf("event = %+v, want watch stop at line 3", ev)
	}
	d.Resume()
	waitEvent(t, d, "continued")

	// 2 -> 3 happens on the last line; no boundary follows, so the run ends.
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if x, ok := vm.Global("x"); !ok || x.Num() != 3 {
		t.Errorf("final x = %v, want 3", x)
	}
}

func TestDebuggerUnwatch(t *testing.T) {
	vm := New()
	d := NewDebugger(vm)
	d.Watch("x")
	d.Unwatch("x")
	d.Install()

	done := make(chan error, 1)
	go func() {
		_, err := vm.Run(countingUnit())
		done <- err
	}()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-d.Events():
		t.Errorf("unexpected event %+v after unwatch", ev)
	default:
	}
}

func TestDebuggerDetachReleases(t *testing.T) {
	vm := New()
	d := NewDebugger(vm)
	if err := d.SetBreakpoint(1); err != nil {
		t.Fatal(err)
	}
	d.Install()

	done := make(chan error, 1)
	go func() {
		_, err := vm.Run(countingUnit())
		done <- err
	}()

	waitEvent(t, d, "stopped")
	d.Detach()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("detach did not release the paused VM")
	}
}

func TestDebuggerBreakpointManagement(t *testing.T) {
	d := NewDebugger(New())

	if err := d.SetBreakpoint(0); err == nil {
		t.Error("line 0 accepted")
	}
	if err := d.SetBreakpoint(-3); err == nil {
		t.Error("negative line accepted")
	}
	if err := d.SetBreakpoint(5); err != nil {
		t.Fatal(err)
	}
	if err := d.SetBreakpoint(9); err != nil {
		t.Fatal(err)
	}
	if got := d.Breakpoints(); len(got) != 2 {
		t.Errorf("Breakpoints() = %v", got)
	}
	if err := d.RemoveBreakpoint(5); err != nil {
		t.Fatal(err)
	}
	if err := d.RemoveBreakpoint(5); err == nil {
		t.Error("double remove succeeded")
	}
	if got := d.Breakpoints(); len(got) != 1 || got[0] != 9 {
		t.Errorf("Breakpoints() = %v", got)
	}
}

func TestDebuggerPause(t *testing.T) {
	vm := New()
	d := NewDebugger(vm)
	d.Install()
	d.Pause()

	done := make(chan error, 1)
	go func() {
		_, err := vm.Run(countingUnit())
		done <- err
	}()

	ev := waitEvent(t, d, "stopped")
	if ev.Reason != "pause" {
		t.Errorf("reason = %q, want pause", ev.Reason)
	}
	d.Resume()
	waitEvent(t, d, "continued")
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}
