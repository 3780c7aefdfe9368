package vm

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Builtin functions and constants
// ---------------------------------------------------------------------------

// BuiltinNames lists every builtin function in registration order. The server
// package uses it for completion; tests use it to pin the surface.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtinTable))
	for _, b := range builtinTable {
		names = append(names, b.Name)
	}
	return names
}

var builtinTable = []Builtin{
	{Name: "print", Fn: builtinPrint},
	{Name: "len", Fn: builtinLen},
	{Name: "range", Fn: builtinRange},
	{Name: "sqrt", Fn: mathUnary("sqrt", math.Sqrt)},
	{Name: "sin", Fn: mathUnary("sin", math.Sin)},
	{Name: "cos", Fn: mathUnary("cos", math.Cos)},
	{Name: "tan", Fn: mathUnary("tan", math.Tan)},
	{Name: "abs", Fn: mathUnary("abs", math.Abs)},
	{Name: "floor", Fn: mathUnary("floor", math.Floor)},
	{Name: "ceil", Fn: mathUnary("ceil", math.Ceil)},
	{Name: "round", Fn: mathUnary("round", math.Round)},
	{Name: "min", Fn: builtinMin},
	{Name: "max", Fn: builtinMax},
}

// installBuiltins seeds the global scope with builtin functions and the math
// constants pi and e. User code may shadow any of them by assignment.
func installBuiltins(globals map[string]Value) {
	for _, b := range builtinTable {
		fn := b
		globals[b.Name] = BuiltinValue(&fn)
	}
	globals["pi"] = Number(math.Pi)
	globals["e"] = Number(math.E)
}

func builtinPrint(vm *VM, args []Value) (Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Display()
	}
	fmt.Fprintln(vm.out, strings.Join(parts, " "))
	return NoValue(), nil
}

func builtinLen(vm *VM, args []Value) (Value, error) {
	if err := arity("len", args, 1); err != nil {
		return Value{}, err
	}
	switch args[0].Kind() {
	case KindString:
		// Rune count, consistent with string indexing and iteration.
		return Number(float64(utf8.RuneCountInString(args[0].Str()))), nil
	case KindArray:
		return Number(float64(len(args[0].Array().Elems))), nil
	case KindObject:
		return Number(float64(args[0].Object().Len())), nil
	default:
		return Value{}, typeErrorf(0, "len() takes a string, array or object, got %s", args[0].Kind())
	}
}

// builtinRange mirrors the one-, two- and three-argument forms. A zero step
// is rejected; a negative step counts down.
func builtinRange(vm *VM, args []Value) (Value, error) {
	if len(args) < 1 || len(args) > 3 {
		return Value{}, typeErrorf(0, "range() takes 1 to 3 arguments, got %d", len(args))
	}
	nums := make([]float64, len(args))
	for i, a := range args {
		if a.Kind() != KindNumber {
			return Value{}, typeErrorf(0, "range() argument %d must be a number, got %s", i+1, a.Kind())
		}
		nums[i] = a.Num()
	}
	start, stop, step := 0.0, 0.0, 1.0
	switch len(args) {
	case 1:
		stop = nums[0]
	case 2:
		start, stop = nums[0], nums[1]
	case 3:
		start, stop, step = nums[0], nums[1], nums[2]
	}
	if step == 0 {
		return Value{}, typeErrorf(0, "range() step must not be zero")
	}
	var elems []Value
	if step > 0 {
		for v := start; v < stop; v += step {
			elems = append(elems, Number(v))
		}
	} else {
		for v := start; v > stop; v += step {
			elems = append(elems, Number(v))
		}
	}
	return ArrayValue(&Array{Elems: elems}), nil
}

func builtinMin(vm *VM, args []Value) (Value, error) {
	return fold("min", args, math.Min)
}

func builtinMax(vm *VM, args []Value) (Value, error) {
	return fold("max", args, math.Max)
}

// fold reduces the arguments with f; a single array argument is reduced
// element-wise instead.
func fold(name string, args []Value, f func(a, b float64) float64) (Value, error) {
	vals := args
	if len(args) == 1 && args[0].Kind() == KindArray {
		vals = args[0].Array().Elems
	}
	if len(vals) == 0 {
		return Value{}, typeErrorf(0, "%s() needs at least one value", name)
	}
	acc := 0.0
	for i, v := range vals {
		if v.Kind() != KindNumber {
			return Value{}, typeErrorf(0, "%s() arguments must be numbers, got %s", name, v.Kind())
		}
		if i == 0 {
			acc = v.Num()
		} else {
			acc = f(acc, v.Num())
		}
	}
	return Number(acc), nil
}

func mathUnary(name string, f func(float64) float64) BuiltinFn {
	return func(vm *VM, args []Value) (Value, error) {
		if err := arity(name, args, 1); err != nil {
			return Value{}, err
		}
		if args[0].Kind() != KindNumber {
			return Value{}, typeErrorf(0, "%s() takes a number, got %s", name, args[0].Kind())
		}
		return Number(f(args[0].Num())), nil
	}
}

func arity(name string, args []Value, want int) error {
	if len(args) != want {
		return typeErrorf(0, "%s() takes %d argument(s), got %d", name, want, len(args))
	}
	return nil
}
