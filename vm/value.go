package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Value: the Mythos runtime value model
// ---------------------------------------------------------------------------

// Kind identifies the runtime type of a Value.
type Kind uint8

const (
	KindNoValue Kind = iota // marker pushed by void natives, distinct from null
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindFunction
	KindBuiltin
	KindIterator // internal, never user-visible
)

var kindNames = map[Kind]string{
	KindNoValue:  "no-value",
	KindNull:     "null",
	KindBool:     "boolean",
	KindNumber:   "number",
	KindString:   "string",
	KindArray:    "array",
	KindObject:   "object",
	KindFunction: "function",
	KindBuiltin:  "builtin",
	KindIterator: "iterator",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is a tagged union holding any Mythos runtime value. All values on the
// operand stack, in the constant pool, and in variable mappings are Values.
// The zero Value is the no-value marker.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	ref  any // *Array, *Object, *Function, *Builtin, *iterator
}

// NoValue returns the marker a void native pushes to keep the stack balanced.
// It is distinct from the language's null literal.
func NoValue() Value { return Value{kind: KindNoValue} }

// Null returns the null literal value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a number value. Mythos has a single float64 number type;
// integer and float literals both map here.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// ArrayValue wraps an Array.
func ArrayValue(a *Array) Value { return Value{kind: KindArray, ref: a} }

// ObjectValue wraps an Object.
func ObjectValue(o *Object) Value { return Value{kind: KindObject, ref: o} }

// FunctionValue wraps a user-defined function.
func FunctionValue(f *Function) Value { return Value{kind: KindFunction, ref: f} }

// BuiltinValue wraps a native builtin.
func BuiltinValue(b *Builtin) Value { return Value{kind: KindBuiltin, ref: b} }

func iteratorValue(it *iterator) Value { return Value{kind: KindIterator, ref: it} }

// Kind returns the runtime type tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null literal.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNoValue reports whether v is the no-value marker.
func (v Value) IsNoValue() bool { return v.kind == KindNoValue }

// Num returns the float64 payload of a number value.
func (v Value) Num() float64 { return v.num }

// Str returns the string payload of a string value.
func (v Value) Str() string { return v.str }

// BoolVal returns the payload of a boolean value.
func (v Value) BoolVal() bool { return v.b }

// Array returns the array payload, or nil.
func (v Value) Array() *Array {
	if a, ok := v.ref.(*Array); ok {
		return a
	}
	return nil
}

// Object returns the object payload, or nil.
func (v Value) Object() *Object {
	if o, ok := v.ref.(*Object); ok {
		return o
	}
	return nil
}

// Func returns the function payload, or nil.
func (v Value) Func() *Function {
	if f, ok := v.ref.(*Function); ok {
		return f
	}
	return nil
}

// Builtin returns the builtin payload, or nil.
func (v Value) Builtin() *Builtin {
	if b, ok := v.ref.(*Builtin); ok {
		return b
	}
	return nil
}

func (v Value) iter() *iterator {
	if it, ok := v.ref.(*iterator); ok {
		return it
	}
	return nil
}

// Truthy reports whether v counts as true in a condition. false, null,
// 0, "", empty array, empty object, and no-value are falsy; everything
// else (including NaN) is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNoValue, KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.num != 0
	case KindString:
		return v.str != ""
	case KindArray:
		return len(v.Array().Elems) > 0
	case KindObject:
		return v.Object().Len() > 0
	default:
		return true
	}
}

// Equal implements Mythos equality: same-kind only. Numbers compare IEEE
// (NaN is never equal to anything), strings by content, arrays deep by
// element, objects and functions by identity. The constant pool dedups
// with this relation, so a boolean constant never collapses with a number.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNoValue, KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindArray:
		a, b := v.Array(), o.Array()
		if len(a.Elems) != len(b.Elems) {
			return false
		}
		for i := range a.Elems {
			if !a.Elems[i].Equal(b.Elems[i]) {
				return false
			}
		}
		return true
	default:
		// Objects, functions, builtins, iterators compare by identity.
		return v.ref == o.ref
	}
}

// Display returns the top-level display form: strings appear bare, whole
// numbers drop their fractional part, containers render recursively with
// strings quoted inside.
func (v Value) Display() string {
	if v.kind == KindString {
		return v.str
	}
	return v.display()
}

// display renders v as it appears inside a container (strings quoted).
func (v Value) display() string {
	switch v.kind {
	case KindNoValue:
		return "<no value>"
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.num)
	case KindString:
		return strconv.Quote(v.str)
	case KindArray:
		elems := v.Array().Elems
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = e.display()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindObject:
		o := v.Object()
		parts := make([]string, 0, o.Len())
		for _, k := range o.Keys() {
			val, _ := o.Get(k)
			parts = append(parts, k+": "+val.display())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindFunction:
		return "<function " + v.Func().Name + ">"
	case KindBuiltin:
		return "<builtin " + v.Builtin().Name + ">"
	case KindIterator:
		return "<iterator>"
	default:
		return fmt.Sprintf("<unknown kind %d>", v.kind)
	}
}

// formatNumber renders whole numbers without a fractional part.
func formatNumber(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ---------------------------------------------------------------------------
// Reference types
// ---------------------------------------------------------------------------

// Array is a mutable sequence of values.
type Array struct {
	Elems []Value
}

// NewArray creates an array from the given elements.
func NewArray(elems ...Value) *Array {
	return &Array{Elems: elems}
}

// Object is a mutable string-keyed mapping that remembers insertion order.
// Writing an existing key updates the value in place; last write wins.
type Object struct {
	keys    []string
	entries map[string]Value
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{entries: make(map[string]Value)}
}

// Set writes a key. A new key is appended to the iteration order; an
// existing key keeps its position.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.entries[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.entries[key] = v
}

// Get reads a key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.entries[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	return o.keys
}

// Len returns the number of entries.
func (o *Object) Len() int {
	return len(o.entries)
}

// Function is a user-defined function: a name, ordered parameter names,
// and its own independently compiled unit. Immutable once created; it
// captures no enclosing variables.
type Function struct {
	Name   string
	Params []string
	Unit   *Unit
}

// BuiltinFn is the host signature of a native builtin.
type BuiltinFn func(vm *VM, args []Value) (Value, error)

// Builtin is a native function seeded into the global mapping. The tag lets
// CALL invoke it directly instead of building a frame.
type Builtin struct {
	Name string
	Fn   BuiltinFn
}

// iterator drives the for-loop protocol. It is created by GET_ITER and
// consumed by FOR_ITER; it never escapes to user code.
type iterator struct {
	items []Value
	pos   int
}
