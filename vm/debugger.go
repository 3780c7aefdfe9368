package vm

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Debugger: line breakpoints, stepping, and pause/resume over the VM hook
// ---------------------------------------------------------------------------

// Debugger drives a VM through its instruction hook. It observes execution
// only at instruction boundaries: when a stop condition is met it emits a
// stopped event and blocks the VM goroutine until Resume or Step. State
// inspection (Snapshot) is safe while paused because the VM is parked
// inside the hook.
type Debugger struct {
	vm *VM

	mu           sync.Mutex
	active       bool
	breakpoints  map[int]bool     // source line -> enabled
	watches      map[string]Value // variable name -> last seen value
	stepping     bool
	pausePending bool

	resumeChan chan struct{}
	eventChan  chan DebugEvent

	lastLine int
}

// DebugEvent is sent to the client when execution stops or continues.
type DebugEvent struct {
	Type   string // "stopped" or "continued"
	Reason string // "breakpoint", "step", "pause", "watch"
	Line   int
	Watch  string // name of the changed variable for "watch" stops
}

// Snapshot is a point-in-time view of VM state, taken while paused.
type Snapshot struct {
	Line    int
	Stack   []FramePosition
	Locals  map[string]Value
	Globals map[string]Value
}

// NewDebugger creates a debugger attached to the given VM. Call Install to
// start intercepting execution.
func NewDebugger(vm *VM) *Debugger {
	return &Debugger{
		vm:          vm,
		breakpoints: make(map[int]bool),
		watches:     make(map[string]Value),
		resumeChan:  make(chan struct{}, 1),
		eventChan:   make(chan DebugEvent, 10),
	}
}

// Install hooks the debugger into its VM.
func (d *Debugger) Install() {
	d.mu.Lock()
	d.active = true
	d.mu.Unlock()
	d.vm.SetHook(d.hook)
}

// Detach removes the debugger from its VM and releases a paused run.
func (d *Debugger) Detach() {
	d.mu.Lock()
	d.active = false
	d.mu.Unlock()
	d.vm.SetHook(nil)
	select {
	case d.resumeChan <- struct{}{}:
	default:
	}
}

// Events returns the channel on which stop/continue events arrive.
func (d *Debugger) Events() <-chan DebugEvent {
	return d.eventChan
}

// SetBreakpoint sets a breakpoint on a 1-based source line.
func (d *Debugger) SetBreakpoint(line int) error {
	if line < 1 {
		return fmt.Errorf("invalid breakpoint line %d", line)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakpoints[line] = true
	return nil
}

// RemoveBreakpoint removes a breakpoint.
func (d *Debugger) RemoveBreakpoint(line int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.breakpoints[line]; !ok {
		return fmt.Errorf("no breakpoint at line %d", line)
	}
	delete(d.breakpoints, line)
	return nil
}

// Breakpoints returns the currently set breakpoint lines, unordered.
func (d *Debugger) Breakpoints() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	lines := make([]int, 0, len(d.breakpoints))
	for line := range d.breakpoints {
		lines = append(lines, line)
	}
	return lines
}

// Watch stops execution whenever the named variable's value changes
// between source lines. The variable is resolved locals-first, like the
// VM itself resolves names; an unset variable triggers when it is first
// assigned.
func (d *Debugger) Watch(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.vm.lookup(name)
	if !ok {
		cur = NoValue()
	}
	d.watches[name] = cur
}

// Unwatch removes a watch.
func (d *Debugger) Unwatch(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.watches, name)
}

// Pause requests a stop at the next instruction boundary.
func (d *Debugger) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pausePending = true
}

// Resume continues a paused run.
func (d *Debugger) Resume() {
	select {
	case d.resumeChan <- struct{}{}:
	default:
	}
}

// Step continues a paused run and stops again at the next source line.
func (d *Debugger) Step() {
	d.mu.Lock()
	d.stepping = true
	d.mu.Unlock()
	d.Resume()
}

// Snapshot captures current VM state. Meaningful only while the VM is
// paused in the debugger (or before/after a run).
func (d *Debugger) Snapshot() Snapshot {
	stack := d.vm.CallStack()
	return Snapshot{
		Line:    stack[len(stack)-1].Line,
		Stack:   stack,
		Locals:  d.vm.CurrentLocals(),
		Globals: d.vm.GlobalsSnapshot(),
	}
}

// hook runs on the VM goroutine before every instruction.
func (d *Debugger) hook(vm *VM, u *Unit, ip int) error {
	line := u.Instructions[ip].Line
	if line == 0 {
		return nil
	}

	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return nil
	}
	newLine := line != d.lastLine
	reason := ""
	watch := ""
	switch {
	case d.pausePending:
		reason = "pause"
		d.pausePending = false
	case d.stepping && newLine:
		reason = "step"
		d.stepping = false
	case newLine && d.breakpoints[line]:
		reason = "breakpoint"
	case newLine:
		for name, last := range d.watches {
			cur, ok := vm.lookup(name)
			if !ok {
				cur = NoValue()
			}
			if !cur.Equal(last) {
				d.watches[name] = cur
				reason = "watch"
				watch = name
				break
			}
		}
	}
	d.lastLine = line
	d.mu.Unlock()

	if reason == "" {
		return nil
	}

	d.emit(DebugEvent{Type: "stopped", Reason: reason, Line: line, Watch: watch})
	<-d.resumeChan
	d.emit(DebugEvent{Type: "continued", Line: line})
	return nil
}

func (d *Debugger) emit(ev DebugEvent) {
	select {
	case d.eventChan <- ev:
	default:
		// A slow client drops events rather than wedging the VM.
	}
}
