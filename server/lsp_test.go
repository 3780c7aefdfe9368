package server

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/mythos/compiler"
	"github.com/chazu/mythos/engine"
)

func mustParse(t *testing.T, source string) *compiler.Program {
	t.Helper()
	prog, err := compiler.Parse(source)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return prog
}

func compilerPos(line, col int) compiler.Position {
	return compiler.Position{Line: line, Column: col}
}

func newTestServer(t *testing.T) (*LspServer, *engine.Engine) {
	t.Helper()
	eng := engine.New(engine.Config{AutoPop: true})
	s := NewLSP(eng)
	t.Cleanup(func() { s.worker.Stop() })
	return s, eng
}

// ---------------------------------------------------------------------------
// Text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix_SimpleWord(t *testing.T) {
	prefix := extractPrefix("x = cou", protocol.Position{Line: 0, Character: 7})
	if prefix != "cou" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "cou")
	}
}

func TestExtractPrefix_MultiLine(t *testing.T) {
	text := "first = 1\nsecond = 2\npri"
	prefix := extractPrefix(text, protocol.Position{Line: 2, Character: 3})
	if prefix != "pri" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "pri")
	}
}

func TestExtractPrefix_AfterDot(t *testing.T) {
	prefix := extractPrefix("player.hea", protocol.Position{Line: 0, Character: 10})
	if prefix != "hea" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "hea")
	}
}

func TestExtractPrefix_CursorAtBeginning(t *testing.T) {
	if prefix := extractPrefix("hello", protocol.Position{Line: 0, Character: 0}); prefix != "" {
		t.Errorf("extractPrefix = %q, want empty string", prefix)
	}
}

func TestExtractPrefix_LineBeyondDocument(t *testing.T) {
	if prefix := extractPrefix("one line", protocol.Position{Line: 5, Character: 0}); prefix != "" {
		t.Errorf("extractPrefix = %q, want empty string", prefix)
	}
}

func TestExtractWord_Middle(t *testing.T) {
	word := extractWord("print(score)", protocol.Position{Line: 0, Character: 8})
	if word != "score" {
		t.Errorf("extractWord = %q, want %q", word, "score")
	}
}

func TestExtractWord_AtEnd(t *testing.T) {
	word := extractWord("hello world", protocol.Position{Line: 0, Character: 5})
	if word != "hello" {
		t.Errorf("extractWord = %q, want %q", word, "hello")
	}
}

func TestExtractWord_Underscore(t *testing.T) {
	word := extractWord("my_var2 = 1", protocol.Position{Line: 0, Character: 3})
	if word != "my_var2" {
		t.Errorf("extractWord = %q, want %q", word, "my_var2")
	}
}

func TestExtractWord_OnPunctuation(t *testing.T) {
	if word := extractWord("a = (b)", protocol.Position{Line: 0, Character: 2}); word != "" {
		t.Errorf("extractWord = %q, want empty string", word)
	}
}

// ---------------------------------------------------------------------------
// Completion
// ---------------------------------------------------------------------------

func labels(items []protocol.CompletionItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Label
	}
	return out
}

func TestComplete_Keywords(t *testing.T) {
	s, eng := newTestServer(t)
	items := s.complete(eng, "whi")
	got := labels(items)
	if len(got) != 1 || got[0] != "while" {
		t.Errorf("complete(whi) = %v, want [while]", got)
	}
}

func TestComplete_Builtins(t *testing.T) {
	s, eng := newTestServer(t)
	found := false
	for _, l := range labels(s.complete(eng, "pri")) {
		if l == "print" {
			found = true
		}
	}
	if !found {
		t.Error("complete(pri) missing print")
	}
}

func TestComplete_Globals(t *testing.T) {
	s, eng := newTestServer(t)
	if _, err := eng.Eval("player_score = 10"); err != nil {
		t.Fatal(err)
	}
	got := labels(s.complete(eng, "player"))
	if len(got) != 1 || got[0] != "player_score" {
		t.Errorf("complete(player) = %v", got)
	}
}

func TestComplete_SortedAndDeduped(t *testing.T) {
	s, eng := newTestServer(t)
	items := s.complete(eng, "")
	if len(items) == 0 {
		t.Fatal("empty completion list")
	}
	if len(items) > 100 {
		t.Errorf("completion list not capped: %d items", len(items))
	}
	seen := make(map[string]bool)
	for i, it := range items {
		if seen[it.Label] {
			t.Errorf("duplicate label %q", it.Label)
		}
		seen[it.Label] = true
		if i > 0 && items[i-1].Label > it.Label {
			t.Errorf("labels not sorted: %q before %q", items[i-1].Label, it.Label)
		}
	}
}

// ---------------------------------------------------------------------------
// Hover
// ---------------------------------------------------------------------------

func TestHover_Builtin(t *testing.T) {
	s, eng := newTestServer(t)
	h := s.hover(eng, "print")
	if h == nil {
		t.Fatal("no hover for print")
	}
	if !strings.Contains(h.Contents.(protocol.MarkupContent).Value, "builtin") {
		t.Errorf("hover = %q", h.Contents)
	}
}

func TestHover_Keyword(t *testing.T) {
	s, eng := newTestServer(t)
	h := s.hover(eng, "while")
	if h == nil {
		t.Fatal("no hover for while")
	}
	if !strings.Contains(h.Contents.(protocol.MarkupContent).Value, "keyword") {
		t.Errorf("hover = %q", h.Contents)
	}
}

func TestHover_Function(t *testing.T) {
	s, eng := newTestServer(t)
	if _, err := eng.Eval("function greet(name, tone) {\n    return name\n}"); err != nil {
		t.Fatal(err)
	}
	h := s.hover(eng, "greet")
	if h == nil {
		t.Fatal("no hover for greet")
	}
	text := h.Contents.(protocol.MarkupContent).Value
	if !strings.Contains(text, "greet(name, tone)") {
		t.Errorf("hover = %q", text)
	}
}

func TestHover_Unknown(t *testing.T) {
	s, eng := newTestServer(t)
	if h := s.hover(eng, "never_bound"); h != nil {
		t.Errorf("hover = %+v, want nil", h)
	}
}

// ---------------------------------------------------------------------------
// Definition and references
// ---------------------------------------------------------------------------

const defSource = `function helper(x) {
    return x
}

class Tools {
    function helper(y) {
        return y
    }
}

helper(1)
`

func TestDefinitionLocations(t *testing.T) {
	locs := definitionLocations("file:///t.mythos", defSource, "helper")
	if len(locs) != 2 {
		t.Fatalf("got %d locations, want 2 (top-level and method)", len(locs))
	}
	if locs[0].Range.Start.Line != 0 {
		t.Errorf("first definition at line %d, want 0", locs[0].Range.Start.Line)
	}
	if locs[1].Range.Start.Line != 5 {
		t.Errorf("method definition at line %d, want 5", locs[1].Range.Start.Line)
	}
}

func TestDefinitionLocations_NoMatch(t *testing.T) {
	if locs := definitionLocations("file:///t.mythos", defSource, "missing"); len(locs) != 0 {
		t.Errorf("got %d locations, want 0", len(locs))
	}
}

func TestDefinitionLocations_BrokenSource(t *testing.T) {
	if locs := definitionLocations("file:///t.mythos", "function {", "f"); locs != nil {
		t.Errorf("got %v for unparsable source", locs)
	}
}

func TestReferenceLocations(t *testing.T) {
	text := "count = 1\ncount += 2\nprint(count)"
	locs := referenceLocations("file:///t.mythos", text, "count")
	if len(locs) != 3 {
		t.Fatalf("got %d references, want 3", len(locs))
	}
	if locs[2].Range.Start.Line != 2 || locs[2].Range.Start.Character != 6 {
		t.Errorf("third reference at %d:%d", locs[2].Range.Start.Line, locs[2].Range.Start.Character)
	}
}

func TestCollectFuncDecls_NestedBlocks(t *testing.T) {
	prog := mustParse(t, `
if true {
    function inIf() {
        function nested() {
            return 1
        }
        return 2
    }
}
while false {
    function inWhile() {
        return 3
    }
}
`)
	decls := collectFuncDecls(prog.Stmts)
	names := make(map[string]bool)
	for _, d := range decls {
		names[d.Name] = true
	}
	for _, want := range []string{"inIf", "nested", "inWhile"} {
		if !names[want] {
			t.Errorf("collectFuncDecls missing %q (got %v)", want, names)
		}
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestDiagnosticFor_CompileError(t *testing.T) {
	eng := engine.New(engine.Config{})
	_, err := eng.Compile("x = (1 +", "t.mythos")
	if err == nil {
		t.Fatal("expected compile error")
	}
	d := diagnosticFor(err)
	if d.Range.Start.Line != 0 {
		t.Errorf("diagnostic line = %d, want 0 (0-based)", d.Range.Start.Line)
	}
	if d.Message == "" {
		t.Error("empty diagnostic message")
	}
	if d.Severity == nil || *d.Severity != protocol.DiagnosticSeverityError {
		t.Error("diagnostic not an error")
	}
}

func TestWordRange(t *testing.T) {
	r := wordRange(compilerPos(3, 5), 4)
	if r.Start.Line != 2 || r.Start.Character != 4 {
		t.Errorf("start = %d:%d, want 2:4", r.Start.Line, r.Start.Character)
	}
	if r.End.Character != 8 {
		t.Errorf("end character = %d, want 8", r.End.Character)
	}
}
