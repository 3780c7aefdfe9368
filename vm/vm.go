package vm

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

// ---------------------------------------------------------------------------
// VM: fetch-decode-execute interpreter over compiled units
// ---------------------------------------------------------------------------

// DefaultMaxCallDepth bounds user-level recursion. Each user function call
// consumes host stack, so the limit keeps runaway recursion a clean error.
const DefaultMaxCallDepth = 1000

// Hook is called before each instruction executes. Returning a non-nil
// error aborts the run with that error. The debugger and the CLI's trace
// mode install themselves through this.
type Hook func(vm *VM, u *Unit, ip int) error

// Frame is one user-function activation. Locals shadow globals for the
// duration of the call.
type Frame struct {
	Fn     *Function
	Locals map[string]Value
	line   int
}

// VM executes compiled units. A VM is not safe for concurrent use; hosts
// that share one across goroutines must serialize access (engine.Worker
// does this). Globals persist across Run calls, so one VM can back a REPL.
type VM struct {
	stack   []Value
	globals map[string]Value
	frames  []*Frame
	line    int // current top-level source line

	out          io.Writer
	maxCallDepth int
	hook         Hook
	prof         *Profiler

	scenes map[string]Value
	apps   []Value
}

// New creates a VM with builtins installed and output on stdout.
func New() *VM {
	vm := &VM{
		globals:      make(map[string]Value),
		out:          os.Stdout,
		maxCallDepth: DefaultMaxCallDepth,
		scenes:       make(map[string]Value),
	}
	installBuiltins(vm.globals)
	return vm
}

// SetOutput redirects PRINT and the print builtin.
func (vm *VM) SetOutput(w io.Writer) { vm.out = w }

// SetMaxCallDepth overrides the recursion limit. Non-positive values keep
// the default.
func (vm *VM) SetMaxCallDepth(n int) {
	if n > 0 {
		vm.maxCallDepth = n
	}
}

// SetHook installs the per-instruction hook, or removes it when nil.
func (vm *VM) SetHook(h Hook) { vm.hook = h }

// SetProfiler attaches a profiler, or detaches when nil.
func (vm *VM) SetProfiler(p *Profiler) { vm.prof = p }

// Output returns the current output writer.
func (vm *VM) Output() io.Writer { return vm.out }

// Run executes a unit to completion on a fresh operand stack. It returns
// the RETURN value, or the no-value marker when execution falls off the
// end. A *RuntimeError unwinds every frame pushed during the run; globals
// written before the error stay written.
func (vm *VM) Run(u *Unit) (Value, error) {
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	return vm.runUnit(u)
}

// runUnit is the fetch-decode-execute loop. User function calls recurse
// into it; control-flow opcodes overwrite ip and skip the increment.
func (vm *VM) runUnit(u *Unit) (Value, error) {
	ip := 0
	for ip < len(u.Instructions) {
		in := u.Instructions[ip]
		vm.noteLine(in.Line)
		if vm.hook != nil {
			if err := vm.hook(vm, u, ip); err != nil {
				return Value{}, err
			}
		}
		if vm.prof != nil {
			vm.prof.countOp(in.Op)
		}

		switch in.Op.OperandKind() {
		case OperandConst:
			if in.Arg < 0 || in.Arg >= len(u.Constants) {
				return Value{}, fmt.Errorf("unit %q: constant index %d out of range at %d", u.Name, in.Arg, ip)
			}
		case OperandJump:
			if in.Sym != "" {
				return Value{}, fmt.Errorf("unit %q: unresolved label %q at %d", u.Name, in.Sym, ip)
			}
			if in.Arg < 0 || in.Arg > len(u.Instructions) {
				return Value{}, fmt.Errorf("unit %q: jump target %d out of range at %d", u.Name, in.Arg, ip)
			}
		}

		switch in.Op {
		case OpLoadConst:
			vm.push(u.Constants[in.Arg])

		case OpLoadVar:
			v, ok := vm.lookup(in.Sym)
			if !ok {
				return Value{}, nameErrorf(in.Line, "undefined variable %q", in.Sym)
			}
			vm.push(v)

		case OpStoreVar:
			v, err := vm.pop()
			if err != nil {
				return Value{}, err
			}
			vm.store(in.Sym, v)

		case OpPop:
			if _, err := vm.pop(); err != nil {
				return Value{}, err
			}

		case OpDup:
			v, err := vm.peek()
			if err != nil {
				return Value{}, err
			}
			vm.push(v)

		case OpAdd, OpSub, OpMul, OpDiv, OpPow, OpMod:
			if err := vm.arithmetic(in); err != nil {
				return Value{}, err
			}

		case OpNeg:
			v, err := vm.pop()
			if err != nil {
				return Value{}, err
			}
			if v.Kind() != KindNumber {
				return Value{}, typeErrorf(in.Line, "cannot negate %s", v.Kind())
			}
			vm.push(Number(-v.Num()))

		case OpEq, OpNe:
			right, left, err := vm.pop2()
			if err != nil {
				return Value{}, err
			}
			eq := left.Equal(right)
			if in.Op == OpNe {
				eq = !eq
			}
			vm.push(Bool(eq))

		case OpLt, OpGt, OpLe, OpGe:
			if err := vm.compare(in); err != nil {
				return Value{}, err
			}

		case OpAnd:
			right, left, err := vm.pop2()
			if err != nil {
				return Value{}, err
			}
			if left.Truthy() {
				vm.push(right)
			} else {
				vm.push(left)
			}

		case OpOr:
			right, left, err := vm.pop2()
			if err != nil {
				return Value{}, err
			}
			if left.Truthy() {
				vm.push(left)
			} else {
				vm.push(right)
			}

		case OpNot:
			v, err := vm.pop()
			if err != nil {
				return Value{}, err
			}
			vm.push(Bool(!v.Truthy()))

		case OpJump:
			ip = in.Arg
			continue

		case OpJumpIfFalse:
			v, err := vm.pop()
			if err != nil {
				return Value{}, err
			}
			if !v.Truthy() {
				ip = in.Arg
				continue
			}

		case OpJumpIfTrue:
			v, err := vm.pop()
			if err != nil {
				return Value{}, err
			}
			if v.Truthy() {
				ip = in.Arg
				continue
			}

		case OpGetIter:
			v, err := vm.pop()
			if err != nil {
				return Value{}, err
			}
			it, rerr := makeIterator(v, in.Line)
			if rerr != nil {
				return Value{}, rerr
			}
			vm.push(iteratorValue(it))

		case OpForIter:
			top, err := vm.peek()
			if err != nil {
				return Value{}, err
			}
			it := top.iter()
			if it == nil {
				return Value{}, fmt.Errorf("FOR_ITER over non-iterator %s", top.Kind())
			}
			if it.pos < len(it.items) {
				vm.push(it.items[it.pos])
				it.pos++
			} else {
				vm.pop() // discard the exhausted iterator
				ip = in.Arg
				continue
			}

		case OpCall:
			if err := vm.call(in); err != nil {
				return Value{}, err
			}

		case OpReturn:
			return vm.pop()

		case OpMakeFunction:
			tmpl := u.Constants[in.Arg]
			if tmpl.Kind() != KindFunction {
				return Value{}, fmt.Errorf("MAKE_FUNCTION constant %d is %s, not a function", in.Arg, tmpl.Kind())
			}
			vm.push(tmpl)

		case OpMakeArray:
			elems, err := vm.popN(in.Arg)
			if err != nil {
				return Value{}, err
			}
			vm.push(ArrayValue(&Array{Elems: elems}))

		case OpMakeObject:
			// Pairs were pushed key, value, key, value in source order;
			// applying them in that order keeps last-write-wins.
			flat, err := vm.popN(in.Arg * 2)
			if err != nil {
				return Value{}, err
			}
			obj := NewObject()
			for i := 0; i < len(flat); i += 2 {
				key := flat[i]
				if key.Kind() != KindString {
					return Value{}, typeErrorf(in.Line, "object key must be a string, got %s", key.Kind())
				}
				obj.Set(key.Str(), flat[i+1])
			}
			vm.push(ObjectValue(obj))

		case OpGetMember:
			name, err := vm.constString(u, in)
			if err != nil {
				return Value{}, err
			}
			recv, perr := vm.pop()
			if perr != nil {
				return Value{}, perr
			}
			if recv.Kind() != KindObject {
				return Value{}, typeErrorf(in.Line, "cannot read member %q of %s", name, recv.Kind())
			}
			v, ok := recv.Object().Get(name)
			if !ok {
				return Value{}, lookupErrorf(in.Line, "object has no member %q", name)
			}
			vm.push(v)

		case OpSetMember:
			name, err := vm.constString(u, in)
			if err != nil {
				return Value{}, err
			}
			v, perr := vm.pop()
			if perr != nil {
				return Value{}, perr
			}
			recv, perr := vm.pop()
			if perr != nil {
				return Value{}, perr
			}
			if recv.Kind() != KindObject {
				return Value{}, typeErrorf(in.Line, "cannot set member %q on %s", name, recv.Kind())
			}
			recv.Object().Set(name, v)

		case OpGetIndex:
			idx, recv, err := vm.pop2()
			if err != nil {
				return Value{}, err
			}
			v, rerr := getIndex(recv, idx, in.Line)
			if rerr != nil {
				return Value{}, rerr
			}
			vm.push(v)

		case OpSetIndex:
			v, err := vm.pop()
			if err != nil {
				return Value{}, err
			}
			idx, recv, perr := vm.pop2()
			if perr != nil {
				return Value{}, perr
			}
			if rerr := setIndex(recv, idx, v, in.Line); rerr != nil {
				return Value{}, rerr
			}

		case OpPrint:
			v, err := vm.pop()
			if err != nil {
				return Value{}, err
			}
			fmt.Fprintln(vm.out, v.Display())

		case OpImport:
			// Modules are recognized but not loaded.

		case OpCreateScene:
			name, err := vm.constString(u, in)
			if err != nil {
				return Value{}, err
			}
			scene := NewObject()
			scene.Set("name", String(name))
			scene.Set("elements", ArrayValue(&Array{}))
			v := ObjectValue(scene)
			vm.scenes[name] = v
			vm.push(v)

		case OpAddSceneElement:
			typ, err := vm.constString(u, in)
			if err != nil {
				return Value{}, err
			}
			props, perr := vm.pop()
			if perr != nil {
				return Value{}, perr
			}
			if props.Kind() != KindObject {
				return Value{}, typeErrorf(in.Line, "scene element properties must be an object, got %s", props.Kind())
			}
			scene, perr := vm.peek()
			if perr != nil {
				return Value{}, perr
			}
			if scene.Kind() != KindObject {
				return Value{}, typeErrorf(in.Line, "scene element outside a scene")
			}
			elem := NewObject()
			elem.Set("type", String(typ))
			elem.Set("properties", props)
			elemsVal, _ := scene.Object().Get("elements")
			arr := elemsVal.Array()
			if arr == nil {
				return Value{}, typeErrorf(in.Line, "scene has no element list")
			}
			arr.Elems = append(arr.Elems, ObjectValue(elem))

		case OpCreateWebApp:
			app := NewObject()
			app.Set("routes", ObjectValue(NewObject()))
			v := ObjectValue(app)
			vm.apps = append(vm.apps, v)
			vm.push(v)

		case OpAddRoute:
			handler := u.Constants[in.Arg]
			if handler.Kind() != KindFunction {
				return Value{}, fmt.Errorf("ADD_ROUTE constant %d is %s, not a function", in.Arg, handler.Kind())
			}
			path, err := vm.pop()
			if err != nil {
				return Value{}, err
			}
			if path.Kind() != KindString {
				return Value{}, typeErrorf(in.Line, "route path must be a string, got %s", path.Kind())
			}
			app, err := vm.peek()
			if err != nil {
				return Value{}, err
			}
			if app.Kind() != KindObject {
				return Value{}, typeErrorf(in.Line, "route outside a web app")
			}
			routesVal, ok := app.Object().Get("routes")
			if !ok || routesVal.Kind() != KindObject {
				return Value{}, typeErrorf(in.Line, "web app has no route table")
			}
			routesVal.Object().Set(path.Str(), handler)

		default:
			return Value{}, fmt.Errorf("undefined opcode 0x%02X at %d in unit %q", byte(in.Op), ip, u.Name)
		}

		ip++
	}
	return NoValue(), nil
}

// call implements CALL: argc arguments on top of the callee.
func (vm *VM) call(in Instruction) error {
	args, err := vm.popN(in.Arg)
	if err != nil {
		return err
	}
	callee, err := vm.pop()
	if err != nil {
		return err
	}

	switch callee.Kind() {
	case KindBuiltin:
		b := callee.Builtin()
		result, err := b.Fn(vm, args)
		if err != nil {
			var rerr *RuntimeError
			if errors.As(err, &rerr) && rerr.Line == 0 {
				rerr.Line = in.Line
			}
			return err
		}
		vm.push(result)
		return nil

	case KindFunction:
		fn := callee.Func()
		if len(vm.frames) >= vm.maxCallDepth {
			return ErrCallDepth
		}
		frame := &Frame{Fn: fn, Locals: make(map[string]Value, len(fn.Params))}
		for i, p := range fn.Params {
			if i < len(args) {
				frame.Locals[p] = args[i]
			} else {
				frame.Locals[p] = Null()
			}
		}
		vm.frames = append(vm.frames, frame)
		var start time.Time
		if vm.prof != nil {
			start = time.Now()
		}
		result, err := vm.runUnit(fn.Unit)
		vm.frames = vm.frames[:len(vm.frames)-1]
		if vm.prof != nil {
			vm.prof.countCall(fn.Name, time.Since(start))
		}
		if err != nil {
			return err
		}
		vm.push(result)
		return nil

	default:
		return typeErrorf(in.Line, "%s is not callable", callee.Kind())
	}
}

// ---------------------------------------------------------------------------
// Operand semantics helpers
// ---------------------------------------------------------------------------

func (vm *VM) arithmetic(in Instruction) error {
	right, left, err := vm.pop2()
	if err != nil {
		return err
	}

	if in.Op == OpAdd {
		switch {
		case left.Kind() == KindNumber && right.Kind() == KindNumber:
			vm.push(Number(left.Num() + right.Num()))
			return nil
		case left.Kind() == KindString && right.Kind() == KindString:
			vm.push(String(left.Str() + right.Str()))
			return nil
		case left.Kind() == KindArray && right.Kind() == KindArray:
			a, b := left.Array().Elems, right.Array().Elems
			out := make([]Value, 0, len(a)+len(b))
			out = append(out, a...)
			out = append(out, b...)
			vm.push(ArrayValue(&Array{Elems: out}))
			return nil
		default:
			return typeErrorf(in.Line, "cannot add %s and %s", left.Kind(), right.Kind())
		}
	}

	if left.Kind() != KindNumber || right.Kind() != KindNumber {
		return typeErrorf(in.Line, "%s needs numbers, got %s and %s", in.Op, left.Kind(), right.Kind())
	}
	a, b := left.Num(), right.Num()
	switch in.Op {
	case OpSub:
		vm.push(Number(a - b))
	case OpMul:
		vm.push(Number(a * b))
	case OpDiv:
		if b == 0 {
			return arithErrorf(in.Line, "division by zero")
		}
		vm.push(Number(a / b))
	case OpPow:
		vm.push(Number(math.Pow(a, b)))
	case OpMod:
		if b == 0 {
			return arithErrorf(in.Line, "modulo by zero")
		}
		r := math.Mod(a, b)
		// The remainder takes the sign of the divisor.
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		vm.push(Number(r))
	}
	return nil
}

func (vm *VM) compare(in Instruction) error {
	right, left, err := vm.pop2()
	if err != nil {
		return err
	}
	// Each operator compares directly so NaN makes every ordering false.
	var result bool
	switch {
	case left.Kind() == KindNumber && right.Kind() == KindNumber:
		a, b := left.Num(), right.Num()
		switch in.Op {
		case OpLt:
			result = a < b
		case OpGt:
			result = a > b
		case OpLe:
			result = a <= b
		case OpGe:
			result = a >= b
		}
	case left.Kind() == KindString && right.Kind() == KindString:
		a, b := left.Str(), right.Str()
		switch in.Op {
		case OpLt:
			result = a < b
		case OpGt:
			result = a > b
		case OpLe:
			result = a <= b
		case OpGe:
			result = a >= b
		}
	default:
		return typeErrorf(in.Line, "cannot order %s and %s", left.Kind(), right.Kind())
	}
	vm.push(Bool(result))
	return nil
}

// makeIterator snapshots the iterable: arrays by element, strings by rune
// as one-character strings, objects by key in insertion order.
func makeIterator(v Value, line int) (*iterator, *RuntimeError) {
	switch v.Kind() {
	case KindArray:
		items := make([]Value, len(v.Array().Elems))
		copy(items, v.Array().Elems)
		return &iterator{items: items}, nil
	case KindString:
		runes := []rune(v.Str())
		items := make([]Value, len(runes))
		for i, r := range runes {
			items[i] = String(string(r))
		}
		return &iterator{items: items}, nil
	case KindObject:
		keys := v.Object().Keys()
		items := make([]Value, len(keys))
		for i, k := range keys {
			items[i] = String(k)
		}
		return &iterator{items: items}, nil
	default:
		return nil, typeErrorf(line, "cannot iterate over %s", v.Kind())
	}
}

func getIndex(recv, idx Value, line int) (Value, *RuntimeError) {
	switch recv.Kind() {
	case KindArray:
		elems := recv.Array().Elems
		i, err := normalizeIndex(idx, len(elems), line)
		if err != nil {
			return Value{}, err
		}
		return elems[i], nil
	case KindString:
		runes := []rune(recv.Str())
		i, err := normalizeIndex(idx, len(runes), line)
		if err != nil {
			return Value{}, err
		}
		return String(string(runes[i])), nil
	case KindObject:
		if idx.Kind() != KindString {
			return Value{}, typeErrorf(line, "object index must be a string, got %s", idx.Kind())
		}
		v, ok := recv.Object().Get(idx.Str())
		if !ok {
			return Value{}, lookupErrorf(line, "object has no key %q", idx.Str())
		}
		return v, nil
	default:
		return Value{}, typeErrorf(line, "cannot index %s", recv.Kind())
	}
}

func setIndex(recv, idx, v Value, line int) *RuntimeError {
	switch recv.Kind() {
	case KindArray:
		elems := recv.Array().Elems
		i, err := normalizeIndex(idx, len(elems), line)
		if err != nil {
			return err
		}
		recv.Array().Elems[i] = v
		return nil
	case KindObject:
		if idx.Kind() != KindString {
			return typeErrorf(line, "object index must be a string, got %s", idx.Kind())
		}
		recv.Object().Set(idx.Str(), v)
		return nil
	case KindString:
		return typeErrorf(line, "strings are immutable")
	default:
		return typeErrorf(line, "cannot index %s", recv.Kind())
	}
}

// normalizeIndex validates an integral number index and resolves negative
// indices from the end.
func normalizeIndex(idx Value, length, line int) (int, *RuntimeError) {
	if idx.Kind() != KindNumber {
		return 0, typeErrorf(line, "index must be a number, got %s", idx.Kind())
	}
	f := idx.Num()
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, typeErrorf(line, "index must be an integer, got %s", formatNumber(f))
	}
	i := int(f)
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, lookupErrorf(line, "index %s out of range (length %d)", formatNumber(f), length)
	}
	return i, nil
}

func (vm *VM) constString(u *Unit, in Instruction) (string, error) {
	c := u.Constants[in.Arg]
	if c.Kind() != KindString {
		return "", fmt.Errorf("%s constant %d is %s, not a string", in.Op, in.Arg, c.Kind())
	}
	return c.Str(), nil
}

// ---------------------------------------------------------------------------
// Variables, stack, and the debug surface
// ---------------------------------------------------------------------------

func (vm *VM) lookup(name string) (Value, bool) {
	if f := vm.currentFrame(); f != nil {
		if v, ok := f.Locals[name]; ok {
			return v, true
		}
	}
	v, ok := vm.globals[name]
	return v, ok
}

func (vm *VM) store(name string, v Value) {
	if f := vm.currentFrame(); f != nil {
		f.Locals[name] = v
		return
	}
	vm.globals[name] = v
}

func (vm *VM) currentFrame() *Frame {
	if len(vm.frames) == 0 {
		return nil
	}
	return vm.frames[len(vm.frames)-1]
}

func (vm *VM) noteLine(line int) {
	if line == 0 {
		return
	}
	if f := vm.currentFrame(); f != nil {
		f.line = line
	} else {
		vm.line = line
	}
}

func (vm *VM) push(v Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() (Value, error) {
	if len(vm.stack) == 0 {
		return Value{}, errors.New("stack underflow")
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

// pop2 pops the right then the left operand of a binary opcode.
func (vm *VM) pop2() (right, left Value, err error) {
	if right, err = vm.pop(); err != nil {
		return
	}
	left, err = vm.pop()
	return
}

// popN pops n values and returns them in push (source) order.
func (vm *VM) popN(n int) ([]Value, error) {
	if n > len(vm.stack) {
		return nil, errors.New("stack underflow")
	}
	vals := make([]Value, n)
	copy(vals, vm.stack[len(vm.stack)-n:])
	vm.stack = vm.stack[:len(vm.stack)-n]
	return vals, nil
}

func (vm *VM) peek() (Value, error) {
	if len(vm.stack) == 0 {
		return Value{}, errors.New("stack underflow")
	}
	return vm.stack[len(vm.stack)-1], nil
}

// StackDepth returns the current operand-stack depth.
func (vm *VM) StackDepth() int { return len(vm.stack) }

// StackTop returns the top of the operand stack without popping.
func (vm *VM) StackTop() (Value, bool) {
	if len(vm.stack) == 0 {
		return Value{}, false
	}
	return vm.stack[len(vm.stack)-1], true
}

// FramePosition describes one call-stack entry for the debug surface.
type FramePosition struct {
	Function string
	Line     int
}

// CallStack returns the active user-function frames, outermost first, with
// the top-level position as the first entry.
func (vm *VM) CallStack() []FramePosition {
	out := make([]FramePosition, 0, len(vm.frames)+1)
	out = append(out, FramePosition{Function: "<main>", Line: vm.line})
	for _, f := range vm.frames {
		out = append(out, FramePosition{Function: f.Fn.Name, Line: f.line})
	}
	return out
}

// CurrentLocals returns a copy of the innermost frame's locals, or nil at
// top level.
func (vm *VM) CurrentLocals() map[string]Value {
	f := vm.currentFrame()
	if f == nil {
		return nil
	}
	out := make(map[string]Value, len(f.Locals))
	for k, v := range f.Locals {
		out[k] = v
	}
	return out
}

// GlobalsSnapshot returns a copy of the global mapping.
func (vm *VM) GlobalsSnapshot() map[string]Value {
	out := make(map[string]Value, len(vm.globals))
	for k, v := range vm.globals {
		out[k] = v
	}
	return out
}

// Global reads one global by name.
func (vm *VM) Global(name string) (Value, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

// Scene returns a registered scene by name.
func (vm *VM) Scene(name string) (Value, bool) {
	v, ok := vm.scenes[name]
	return v, ok
}

// Apps returns every web app registered during execution, in creation order.
func (vm *VM) Apps() []Value {
	out := make([]Value, len(vm.apps))
	copy(out, vm.apps)
	return out
}
