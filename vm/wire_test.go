package vm

import (
	"bytes"
	"errors"
	"testing"
)

func sampleUnit() *Unit {
	body := NewUnit("double")
	body.Emit(Instruction{Op: OpLoadVar, Sym: "x", Line: 2})
	body.Emit(Instruction{Op: OpLoadConst, Arg: body.AddConstant(Number(2)), Line: 2})
	body.Emit(Instruction{Op: OpMul, Line: 2})
	body.Emit(Instruction{Op: OpReturn, Line: 2})
	fn := &Function{Name: "double", Params: []string{"x"}, Unit: body}

	u := NewUnit("main")
	u.Emit(Instruction{Op: OpMakeFunction, Arg: u.AddConstant(FunctionValue(fn)), Line: 1})
	u.Emit(Instruction{Op: OpStoreVar, Sym: "double", Line: 1})
	u.Emit(Instruction{Op: OpLoadVar, Sym: "double", Line: 4})
	u.Emit(Instruction{Op: OpLoadConst, Arg: u.AddConstant(Number(21)), Line: 4})
	u.Emit(Instruction{Op: OpCall, Arg: 1, Line: 4})
	u.Emit(Instruction{Op: OpReturn, Line: 4})
	u.AddConstant(Null())
	u.AddConstant(Bool(true))
	u.AddConstant(String("greeting"))
	return u
}

func TestWireRoundTrip(t *testing.T) {
	u := sampleUnit()
	data, err := u.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := UnmarshalUnit(data)
	if err != nil {
		t.Fatalf("UnmarshalUnit: %v", err)
	}
	if got.Name != u.Name {
		t.Errorf("name = %q, want %q", got.Name, u.Name)
	}
	if len(got.Instructions) != len(u.Instructions) {
		t.Fatalf("got %d instructions, want %d", len(got.Instructions), len(u.Instructions))
	}
	for i := range u.Instructions {
		if got.Instructions[i] != u.Instructions[i] {
			t.Errorf("instruction %d = %+v, want %+v", i, got.Instructions[i], u.Instructions[i])
		}
	}
	if len(got.Constants) != len(u.Constants) {
		t.Fatalf("got %d constants, want %d", len(got.Constants), len(u.Constants))
	}

	// The function constant survives with its nested unit.
	fn := got.Constants[0].Func()
	if fn == nil {
		t.Fatal("constant 0 is not a function")
	}
	if fn.Name != "double" || len(fn.Params) != 1 || fn.Params[0] != "x" {
		t.Errorf("function = %q %v", fn.Name, fn.Params)
	}
	if len(fn.Unit.Instructions) != 4 {
		t.Errorf("nested unit has %d instructions", len(fn.Unit.Instructions))
	}
}

// A deserialized unit runs identically to the original.
func TestWireRoundTripRuns(t *testing.T) {
	data, err := sampleUnit().Marshal()
	if err != nil {
		t.Fatal(err)
	}
	u, err := UnmarshalUnit(data)
	if err != nil {
		t.Fatal(err)
	}
	v, err := New().Run(u)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if v.Num() != 42 {
		t.Errorf("result = %s, want 42", v.Display())
	}
}

// Canonical encoding: serializing the same unit twice, and serializing a
// deserialized copy, both yield identical bytes.
func TestWireDeterministic(t *testing.T) {
	u := sampleUnit()
	first, err := u.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	second, err := u.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("two marshals of the same unit differ")
	}

	copied, err := UnmarshalUnit(first)
	if err != nil {
		t.Fatal(err)
	}
	third, err := copied.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, third) {
		t.Error("re-marshal after round trip differs")
	}
}

func TestWireBadMagic(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		{},
		[]byte("not cbor at all"),
		{0xa1, 0x01, 0x60}, // valid CBOR map, wrong shape
	} {
		if _, err := UnmarshalUnit(data); err == nil {
			t.Errorf("UnmarshalUnit(%v): expected error", data)
		}
	}
}

func TestWireBadVersion(t *testing.T) {
	env := wireEnvelope{Magic: WireMagic, Version: WireVersion + 1}
	data, err := cborEncMode.Marshal(&env)
	if err != nil {
		t.Fatal(err)
	}
	_, err = UnmarshalUnit(data)
	if !errors.Is(err, ErrBadVersion) {
		t.Errorf("err = %v, want ErrBadVersion", err)
	}
}

func TestWireRefusesUnresolvedLabels(t *testing.T) {
	u := NewUnit("broken")
	u.Emit(Instruction{Op: OpJump, Sym: "L0"})
	if _, err := u.Marshal(); err == nil {
		t.Fatal("expected error for unresolved label")
	}
}

// Runtime-only kinds never serialize.
func TestWireRejectsRuntimeKinds(t *testing.T) {
	u := NewUnit("bad")
	u.Emit(Instruction{Op: OpLoadConst, Arg: u.AddConstant(ObjectValue(NewObject()))})
	if _, err := u.Marshal(); err == nil {
		t.Fatal("expected error for object constant")
	}
}

func TestWireRejectsBadOpcodeOnDecode(t *testing.T) {
	env := wireEnvelope{
		Magic:   WireMagic,
		Version: WireVersion,
		Unit: wireUnit{
			Name:         "evil",
			Instructions: []wireInstruction{{Op: 0xEE}},
		},
	}
	data, err := cborEncMode.Marshal(&env)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := UnmarshalUnit(data); err == nil {
		t.Fatal("expected error for undefined opcode")
	}
}

func TestWireRejectsBadConstantIndexOnDecode(t *testing.T) {
	env := wireEnvelope{
		Magic:   WireMagic,
		Version: WireVersion,
		Unit: wireUnit{
			Name:         "evil",
			Instructions: []wireInstruction{{Op: uint8(OpLoadConst), Arg: 7}},
		},
	}
	data, err := cborEncMode.Marshal(&env)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := UnmarshalUnit(data); err == nil {
		t.Fatal("expected error for out-of-range constant")
	}
}
