package engine

import (
	"bytes"
	"errors"
	"testing"

	"github.com/chazu/mythos/vm"
)

func newTestEngine(cfg Config) (*Engine, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg.Output = buf
	return New(cfg), buf
}

func TestEngineEval(t *testing.T) {
	eng, _ := newTestEngine(Config{ImplicitReturn: true, AutoPop: true})
	v, err := eng.Eval("x = 20\nx * 2 + 2")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v.Num() != 42 {
		t.Errorf("result = %s, want 42", v.Display())
	}
}

func TestEngineOutput(t *testing.T) {
	eng, buf := newTestEngine(Config{AutoPop: true})
	if _, err := eng.Eval(`print("hello from mythos")`); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "hello from mythos\n" {
		t.Errorf("output = %q", buf.String())
	}
}

// Globals persist across Eval calls on the same engine.
func TestEngineGlobalsPersist(t *testing.T) {
	eng, _ := newTestEngine(Config{ImplicitReturn: true, AutoPop: true})
	if _, err := eng.Eval("counter = 1"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Eval("counter += 10"); err != nil {
		t.Fatal(err)
	}
	v, err := eng.Eval("counter")
	if err != nil {
		t.Fatal(err)
	}
	if v.Num() != 11 {
		t.Errorf("counter = %s, want 11", v.Display())
	}

	globals := eng.Globals()
	if g, ok := globals["counter"]; !ok || g.Num() != 11 {
		t.Errorf("Globals()[counter] = %v, %v", g, ok)
	}
}

func TestEngineCompileErrorConversion(t *testing.T) {
	eng, _ := newTestEngine(Config{})

	tests := []struct {
		source string
		kind   string
	}{
		{`x = "unterminated`, "LexError"},
		{"if {", "SyntaxError"},
	}
	for _, tc := range tests {
		_, err := eng.Eval(tc.source)
		var ee *Error
		if !errors.As(err, &ee) {
			t.Errorf("Eval(%q): err = %v, want *engine.Error", tc.source, err)
			continue
		}
		if ee.Kind != tc.kind {
			t.Errorf("Eval(%q): kind = %q, want %q", tc.source, ee.Kind, tc.kind)
		}
		if ee.Line == 0 || ee.Column == 0 {
			t.Errorf("Eval(%q): position %d:%d missing", tc.source, ee.Line, ee.Column)
		}
	}
}

func TestEngineRuntimeErrorConversion(t *testing.T) {
	eng, _ := newTestEngine(Config{AutoPop: true})
	_, err := eng.Eval("x = 1\ny = ghost")
	var ee *Error
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want *engine.Error", err)
	}
	if ee.Kind != "NameError" {
		t.Errorf("kind = %q, want NameError", ee.Kind)
	}
	if ee.Line != 2 {
		t.Errorf("line = %d, want 2", ee.Line)
	}
	if ee.Column != 0 {
		t.Errorf("column = %d, want 0 for runtime errors", ee.Column)
	}
}

// Sentinel errors pass through conversion so callers can branch on them.
func TestEngineCallDepthSentinel(t *testing.T) {
	eng, _ := newTestEngine(Config{AutoPop: true, MaxCallDepth: 25})
	_, err := eng.Eval(`
function spin() {
    return spin()
}
spin()
`)
	if !errors.Is(err, vm.ErrCallDepth) {
		t.Fatalf("err = %v, want ErrCallDepth", err)
	}
}

func TestEngineRunPrecompiledUnit(t *testing.T) {
	eng, _ := newTestEngine(Config{})
	unit, err := eng.Compile("6 * 7", "precompiled")
	if err != nil {
		t.Fatal(err)
	}
	// ImplicitReturn off: the bare expression stays on the stack and the
	// run falls off the end.
	v, err := eng.Run(unit)
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsNoValue() {
		t.Errorf("result = %s, want no-value", v.Display())
	}
}

func TestEngineErrorRendering(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Kind: "SyntaxError", Message: "bad", Line: 2, Column: 5}, "SyntaxError: bad (line 2, column 5)"},
		{&Error{Kind: "TypeError", Message: "bad", Line: 3}, "TypeError: bad (line 3)"},
		{&Error{Kind: "TypeError", Message: "bad"}, "TypeError: bad"},
	}
	for _, tc := range tests {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}
