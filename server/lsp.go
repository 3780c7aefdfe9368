package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/mythos/compiler"
	"github.com/chazu/mythos/engine"
	"github.com/chazu/mythos/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "mythos-lsp"

// LspServer bridges LSP editor features to the Mythos engine via a Worker.
type LspServer struct {
	worker *engine.Worker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server wrapping the given engine.
func NewLSP(eng *engine.Engine) *LspServer {
	s := &LspServer{
		worker:  engine.NewWorker(eng),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "Mythos LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			text := whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(e *engine.Engine) interface{} {
		return s.complete(e, prefix)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(e *engine.Engine) interface{} {
		return s.hover(e, word)
	})
	if err != nil || result == nil {
		return nil, nil
	}

	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	locations := definitionLocations(uri, text, word)
	if len(locations) == 0 {
		return nil, nil
	}
	return locations, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	return referenceLocations(uri, text, word), nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Engine-backed logic (called on worker goroutine) ---

func (s *LspServer) complete(e *engine.Engine, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)
	seen := make(map[string]bool)

	add := func(name string, kind protocol.CompletionItemKind, detail string) {
		if seen[name] || !strings.HasPrefix(strings.ToLower(name), lowerPrefix) {
			return
		}
		seen[name] = true
		nameCopy := name
		detailCopy := detail
		kindCopy := kind
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kindCopy,
			Detail:     &detailCopy,
			InsertText: &nameCopy,
		})
	}

	for _, word := range compiler.Keywords() {
		add(word, protocol.CompletionItemKindKeyword, "keyword")
	}
	for _, name := range vm.BuiltinNames() {
		add(name, protocol.CompletionItemKindFunction, "builtin")
	}
	for name, value := range e.Globals() {
		add(name, completionKindFor(value), value.Kind().String())
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })

	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func completionKindFor(v vm.Value) protocol.CompletionItemKind {
	switch v.Kind() {
	case vm.KindFunction, vm.KindBuiltin:
		return protocol.CompletionItemKindFunction
	default:
		return protocol.CompletionItemKindVariable
	}
}

func (s *LspServer) hover(e *engine.Engine, word string) *protocol.Hover {
	var b strings.Builder

	switch {
	case builtinDocs[word] != "":
		fmt.Fprintf(&b, "**%s** — builtin\n\n%s", word, builtinDocs[word])

	case compiler.IsKeyword(word):
		fmt.Fprintf(&b, "**%s** — keyword", word)
		if doc := keywordDocs[word]; doc != "" {
			fmt.Fprintf(&b, "\n\n%s", doc)
		}

	default:
		value, ok := e.Globals()[word]
		if !ok {
			return nil
		}
		switch value.Kind() {
		case vm.KindFunction:
			fn := value.Func()
			fmt.Fprintf(&b, "**%s(%s)** — function", fn.Name, strings.Join(fn.Params, ", "))
		default:
			fmt.Fprintf(&b, "**%s** — %s\n\n`%s`", word, value.Kind(), value.Display())
		}
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// definitionLocations finds function declarations named word, including
// class methods, by parsing the document.
func definitionLocations(uri protocol.DocumentUri, text, word string) []protocol.Location {
	prog, err := compiler.Parse(text)
	if err != nil {
		return nil
	}

	var locations []protocol.Location
	for _, decl := range collectFuncDecls(prog.Stmts) {
		if decl.Name != word {
			continue
		}
		locations = append(locations, protocol.Location{
			URI:   uri,
			Range: wordRange(decl.NamePos, len(decl.Name)),
		})
	}
	return locations
}

// collectFuncDecls gathers function declarations from a statement list,
// descending into class bodies and nested blocks.
func collectFuncDecls(stmts []compiler.Stmt) []*compiler.FuncDecl {
	var decls []*compiler.FuncDecl
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *compiler.FuncDecl:
			decls = append(decls, s)
			decls = append(decls, collectFuncDecls(s.Body)...)
		case *compiler.ClassDecl:
			decls = append(decls, s.Methods...)
		case *compiler.IfStmt:
			decls = append(decls, collectFuncDecls(s.Then)...)
			decls = append(decls, collectFuncDecls(s.Else)...)
		case *compiler.WhileStmt:
			decls = append(decls, collectFuncDecls(s.Body)...)
		case *compiler.ForStmt:
			decls = append(decls, collectFuncDecls(s.Body)...)
		}
	}
	return decls
}

// referenceLocations finds every identifier token spelled word.
func referenceLocations(uri protocol.DocumentUri, text, word string) []protocol.Location {
	tokens, err := compiler.Tokenize(text)
	if err != nil {
		return nil
	}

	var locations []protocol.Location
	for _, tok := range tokens {
		if tok.Type != compiler.TokenIdent || tok.Literal != word {
			continue
		}
		locations = append(locations, protocol.Location{
			URI:   uri,
			Range: wordRange(tok.Pos, len(word)),
		})
	}
	return locations
}

func wordRange(pos compiler.Position, length int) protocol.Range {
	line := protocol.UInteger(pos.Line - 1)
	col := protocol.UInteger(pos.Column - 1)
	return protocol.Range{
		Start: protocol.Position{Line: line, Character: col},
		End:   protocol.Position{Line: line, Character: col + protocol.UInteger(length)},
	}
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func(e *engine.Engine) interface{} {
		_, compileErr := e.Compile(text, string(uri))
		return compileErr
	})
	if err != nil {
		return
	}

	var diagnostics []protocol.Diagnostic
	if result != nil {
		if compileErr, ok := result.(error); ok && compileErr != nil {
			diagnostics = append(diagnostics, diagnosticFor(compileErr))
		}
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnosticFor maps an engine error's position onto an LSP range.
func diagnosticFor(err error) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lspName

	var r protocol.Range
	if engErr, ok := err.(*engine.Error); ok && engErr.Line > 0 {
		line := protocol.UInteger(engErr.Line - 1)
		col := protocol.UInteger(0)
		if engErr.Column > 0 {
			col = protocol.UInteger(engErr.Column - 1)
		}
		r = protocol.Range{
			Start: protocol.Position{Line: line, Character: col},
			End:   protocol.Position{Line: line, Character: col + 1},
		}
	}

	return protocol.Diagnostic{
		Range:    r,
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	}
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			start--
		} else {
			break
		}
	}

	if start == col {
		return ""
	}
	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			start--
		} else {
			break
		}
	}

	end := col
	for end < len(line) {
		ch := rune(line[end])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			end++
		} else {
			break
		}
	}

	if start == end {
		return ""
	}
	return line[start:end]
}

func lineAt(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

func boolPtr(b bool) *bool {
	return &b
}
