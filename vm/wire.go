package vm

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Wire format: canonical CBOR persistence for compiled units (.mythosb)
// ---------------------------------------------------------------------------

// WireMagic identifies a serialized unit.
const WireMagic = "MYBC"

// WireVersion is bumped whenever the envelope layout changes.
const WireVersion = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ErrBadMagic is returned when decoded bytes are not a serialized unit.
var ErrBadMagic = errors.New("not a compiled unit (bad magic)")

// ErrBadVersion is returned for a serialized unit from an incompatible
// format version.
var ErrBadVersion = errors.New("unsupported unit format version")

type wireEnvelope struct {
	Magic   string   `cbor:"1,keyasint"`
	Version int      `cbor:"2,keyasint"`
	Unit    wireUnit `cbor:"3,keyasint"`
}

type wireUnit struct {
	Name         string            `cbor:"1,keyasint"`
	Instructions []wireInstruction `cbor:"2,keyasint"`
	Constants    []wireValue       `cbor:"3,keyasint"`
}

type wireInstruction struct {
	Op   uint8  `cbor:"1,keyasint"`
	Arg  int    `cbor:"2,keyasint,omitempty"`
	Sym  string `cbor:"3,keyasint,omitempty"`
	Line int    `cbor:"4,keyasint,omitempty"`
}

// wireValue is a kind-tagged constant. Exactly one payload field is
// meaningful, chosen by Kind; function constants nest a whole unit.
type wireValue struct {
	Kind uint8     `cbor:"1,keyasint"`
	Bool bool      `cbor:"2,keyasint,omitempty"`
	Num  float64   `cbor:"3,keyasint,omitempty"`
	Str  string    `cbor:"4,keyasint,omitempty"`
	Fn   *wireFunc `cbor:"5,keyasint,omitempty"`
}

type wireFunc struct {
	Name   string   `cbor:"1,keyasint"`
	Params []string `cbor:"2,keyasint,omitempty"`
	Unit   wireUnit `cbor:"3,keyasint"`
}

// Marshal serializes the unit to canonical CBOR. Units with unresolved
// labels refuse to serialize; persisting a half-compiled unit would produce
// an artifact that can never execute.
func (u *Unit) Marshal() ([]byte, error) {
	wu, err := toWireUnit(u)
	if err != nil {
		return nil, err
	}
	env := wireEnvelope{Magic: WireMagic, Version: WireVersion, Unit: *wu}
	data, err := cborEncMode.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("marshal unit %q: %w", u.Name, err)
	}
	return data, nil
}

// UnmarshalUnit deserializes a unit, validating magic, version, opcodes,
// and constant kinds.
func UnmarshalUnit(data []byte) (*Unit, error) {
	var env wireEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal unit: %w", err)
	}
	if env.Magic != WireMagic {
		return nil, ErrBadMagic
	}
	if env.Version != WireVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, env.Version)
	}
	u, err := fromWireUnit(&env.Unit)
	if err != nil {
		return nil, err
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

func toWireUnit(u *Unit) (*wireUnit, error) {
	wu := &wireUnit{Name: u.Name}
	wu.Instructions = make([]wireInstruction, len(u.Instructions))
	for i, in := range u.Instructions {
		if in.Op.IsJump() && in.Sym != "" {
			return nil, fmt.Errorf("unit %q: unresolved label %q at %d", u.Name, in.Sym, i)
		}
		wu.Instructions[i] = wireInstruction{Op: uint8(in.Op), Arg: in.Arg, Sym: in.Sym, Line: in.Line}
	}
	wu.Constants = make([]wireValue, len(u.Constants))
	for i, c := range u.Constants {
		wv, err := toWireValue(c)
		if err != nil {
			return nil, fmt.Errorf("unit %q: constant %d: %w", u.Name, i, err)
		}
		wu.Constants[i] = *wv
	}
	return wu, nil
}

func toWireValue(v Value) (*wireValue, error) {
	wv := &wireValue{Kind: uint8(v.Kind())}
	switch v.Kind() {
	case KindNull:
	case KindBool:
		wv.Bool = v.BoolVal()
	case KindNumber:
		wv.Num = v.Num()
	case KindString:
		wv.Str = v.Str()
	case KindFunction:
		f := v.Func()
		wu, err := toWireUnit(f.Unit)
		if err != nil {
			return nil, err
		}
		wv.Fn = &wireFunc{Name: f.Name, Params: f.Params, Unit: *wu}
	default:
		// Arrays, objects, iterators and the no-value marker are runtime
		// values; the compiler never pools them.
		return nil, fmt.Errorf("%s is not a serializable constant", v.Kind())
	}
	return wv, nil
}

func fromWireUnit(wu *wireUnit) (*Unit, error) {
	u := NewUnit(wu.Name)
	u.Instructions = make([]Instruction, len(wu.Instructions))
	for i, in := range wu.Instructions {
		op := Opcode(in.Op)
		if !op.Valid() {
			return nil, fmt.Errorf("unit %q: undefined opcode 0x%02X at %d", wu.Name, in.Op, i)
		}
		u.Instructions[i] = Instruction{Op: op, Arg: in.Arg, Sym: in.Sym, Line: in.Line}
	}
	u.Constants = make([]Value, len(wu.Constants))
	for i, wv := range wu.Constants {
		c, err := fromWireValue(&wv)
		if err != nil {
			return nil, fmt.Errorf("unit %q: constant %d: %w", wu.Name, i, err)
		}
		u.Constants[i] = c
	}
	return u, nil
}

func fromWireValue(wv *wireValue) (Value, error) {
	switch Kind(wv.Kind) {
	case KindNull:
		return Null(), nil
	case KindBool:
		return Bool(wv.Bool), nil
	case KindNumber:
		return Number(wv.Num), nil
	case KindString:
		return String(wv.Str), nil
	case KindFunction:
		if wv.Fn == nil {
			return Value{}, errors.New("function constant without a body")
		}
		unit, err := fromWireUnit(&wv.Fn.Unit)
		if err != nil {
			return Value{}, err
		}
		return FunctionValue(&Function{Name: wv.Fn.Name, Params: wv.Fn.Params, Unit: unit}), nil
	default:
		return Value{}, fmt.Errorf("invalid constant kind %d", wv.Kind)
	}
}
