package compiler

// ---------------------------------------------------------------------------
// AST: abstract syntax tree for Mythos
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Pos() Position
	node() // marker method
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// Program is the root node: a statement list.
type Program struct {
	Stmts []Stmt
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// NumberLit represents a numeric literal. Integer and float tokens both
// produce one; the language has a single number type.
type NumberLit struct {
	PosVal Position
	Value  float64
}

func (n *NumberLit) Pos() Position { return n.PosVal }
func (n *NumberLit) node()         {}
func (n *NumberLit) expr()         {}

// StringLit represents a string literal (already unescaped).
type StringLit struct {
	PosVal Position
	Value  string
}

func (n *StringLit) Pos() Position { return n.PosVal }
func (n *StringLit) node()         {}
func (n *StringLit) expr()         {}

// BoolLit represents true or false.
type BoolLit struct {
	PosVal Position
	Value  bool
}

func (n *BoolLit) Pos() Position { return n.PosVal }
func (n *BoolLit) node()         {}
func (n *BoolLit) expr()         {}

// NullLit represents null.
type NullLit struct {
	PosVal Position
}

func (n *NullLit) Pos() Position { return n.PosVal }
func (n *NullLit) node()         {}
func (n *NullLit) expr()         {}

// Ident represents a variable reference.
type Ident struct {
	PosVal Position
	Name   string
}

func (n *Ident) Pos() Position { return n.PosVal }
func (n *Ident) node()         {}
func (n *Ident) expr()         {}

// ArrayLit represents [e1, e2, ...].
type ArrayLit struct {
	PosVal Position
	Elems  []Expr
}

func (n *ArrayLit) Pos() Position { return n.PosVal }
func (n *ArrayLit) node()         {}
func (n *ArrayLit) expr()         {}

// ObjectField is one key: value pair of an object literal.
type ObjectField struct {
	Key   string
	Value Expr
}

// ObjectLit represents {k1: e1, k2: e2}. Keys are identifiers; a duplicate
// key's last value wins at runtime.
type ObjectLit struct {
	PosVal Position
	Fields []ObjectField
}

func (n *ObjectLit) Pos() Position { return n.PosVal }
func (n *ObjectLit) node()         {}
func (n *ObjectLit) expr()         {}

// BinaryExpr represents a binary operation. Op holds the operator token
// type, or TokenKeyword-spelled "and"/"or" via the dedicated fields below.
type BinaryExpr struct {
	PosVal Position
	Op     string // "+", "-", "==", "and", ...
	Left   Expr
	Right  Expr
}

func (n *BinaryExpr) Pos() Position { return n.PosVal }
func (n *BinaryExpr) node()         {}
func (n *BinaryExpr) expr()         {}

// UnaryExpr represents -operand or not operand.
type UnaryExpr struct {
	PosVal  Position
	Op      string // "-" or "not"
	Operand Expr
}

func (n *UnaryExpr) Pos() Position { return n.PosVal }
func (n *UnaryExpr) node()         {}
func (n *UnaryExpr) expr()         {}

// CallExpr represents callee(args...).
type CallExpr struct {
	PosVal Position
	Callee Expr
	Args   []Expr
}

func (n *CallExpr) Pos() Position { return n.PosVal }
func (n *CallExpr) node()         {}
func (n *CallExpr) expr()         {}

// MemberExpr represents recv.name.
type MemberExpr struct {
	PosVal Position
	Recv   Expr
	Name   string
}

func (n *MemberExpr) Pos() Position { return n.PosVal }
func (n *MemberExpr) node()         {}
func (n *MemberExpr) expr()         {}

// IndexExpr represents recv[index].
type IndexExpr struct {
	PosVal Position
	Recv   Expr
	Index  Expr
}

func (n *IndexExpr) Pos() Position { return n.PosVal }
func (n *IndexExpr) node()         {}
func (n *IndexExpr) expr()         {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// ExprStmt is a bare expression used as a statement.
type ExprStmt struct {
	PosVal Position
	Expr   Expr
}

func (n *ExprStmt) Pos() Position { return n.PosVal }
func (n *ExprStmt) node()         {}
func (n *ExprStmt) stmt()         {}

// AssignStmt represents name = value. Compound assignments desugar to this
// during parsing.
type AssignStmt struct {
	PosVal Position
	Name   string
	Value  Expr
}

func (n *AssignStmt) Pos() Position { return n.PosVal }
func (n *AssignStmt) node()         {}
func (n *AssignStmt) stmt()         {}

// VarDeclStmt represents let/const/var name [= value]. A nil Value means
// the variable starts null.
type VarDeclStmt struct {
	PosVal Position
	Kind   string // "let", "const", or "var"
	Name   string
	Value  Expr
}

func (n *VarDeclStmt) Pos() Position { return n.PosVal }
func (n *VarDeclStmt) node()         {}
func (n *VarDeclStmt) stmt()         {}

// IndexAssignStmt represents recv[index] = value.
type IndexAssignStmt struct {
	PosVal Position
	Recv   Expr
	Index  Expr
	Value  Expr
}

func (n *IndexAssignStmt) Pos() Position { return n.PosVal }
func (n *IndexAssignStmt) node()         {}
func (n *IndexAssignStmt) stmt()         {}

// MemberAssignStmt represents recv.name = value.
type MemberAssignStmt struct {
	PosVal Position
	Recv   Expr
	Name   string
	Value  Expr
}

func (n *MemberAssignStmt) Pos() Position { return n.PosVal }
func (n *MemberAssignStmt) node()         {}
func (n *MemberAssignStmt) stmt()         {}

// IfStmt represents if/elif/else. An elif chain desugars into a nested
// IfStmt in the Else list.
type IfStmt struct {
	PosVal Position
	Cond   Expr
	Then   []Stmt
	Else   []Stmt // nil when absent
}

func (n *IfStmt) Pos() Position { return n.PosVal }
func (n *IfStmt) node()         {}
func (n *IfStmt) stmt()         {}

// WhileStmt represents while cond { body }.
type WhileStmt struct {
	PosVal Position
	Cond   Expr
	Body   []Stmt
}

func (n *WhileStmt) Pos() Position { return n.PosVal }
func (n *WhileStmt) node()         {}
func (n *WhileStmt) stmt()         {}

// ForStmt represents for name in iterable { body }.
type ForStmt struct {
	PosVal   Position
	Var      string
	Iterable Expr
	Body     []Stmt
}

func (n *ForStmt) Pos() Position { return n.PosVal }
func (n *ForStmt) node()         {}
func (n *ForStmt) stmt()         {}

// BreakStmt represents break.
type BreakStmt struct {
	PosVal Position
}

func (n *BreakStmt) Pos() Position { return n.PosVal }
func (n *BreakStmt) node()         {}
func (n *BreakStmt) stmt()         {}

// ContinueStmt represents continue.
type ContinueStmt struct {
	PosVal Position
}

func (n *ContinueStmt) Pos() Position { return n.PosVal }
func (n *ContinueStmt) node()         {}
func (n *ContinueStmt) stmt()         {}

// FuncDecl represents function name(params) { body }. NamePos points at
// the name token; the language server uses it for go-to-definition.
type FuncDecl struct {
	PosVal  Position
	NamePos Position
	Name    string
	Params  []string
	Body    []Stmt
}

func (n *FuncDecl) Pos() Position { return n.PosVal }
func (n *FuncDecl) node()         {}
func (n *FuncDecl) stmt()         {}

// ReturnStmt represents return [value]. Value is nil for a bare return.
type ReturnStmt struct {
	PosVal Position
	Value  Expr
}

func (n *ReturnStmt) Pos() Position { return n.PosVal }
func (n *ReturnStmt) node()         {}
func (n *ReturnStmt) stmt()         {}

// ClassDecl represents class Name [extends Parent] { methods }. A class is
// a method bag: it binds Name to an object mapping method names to
// functions. Extends is recorded but establishes no runtime link.
type ClassDecl struct {
	PosVal  Position
	NamePos Position
	Name    string
	Extends string // empty when absent
	Methods []*FuncDecl
}

func (n *ClassDecl) Pos() Position { return n.PosVal }
func (n *ClassDecl) node()         {}
func (n *ClassDecl) stmt()         {}

// SceneElement is one typed element of a scene block.
type SceneElement struct {
	PosVal Position
	Type   string
	Props  []ObjectField
}

// SceneDecl represents scene Name { elements }.
type SceneDecl struct {
	PosVal   Position
	Name     string
	Elements []SceneElement
}

func (n *SceneDecl) Pos() Position { return n.PosVal }
func (n *SceneDecl) node()         {}
func (n *SceneDecl) stmt()         {}

// RouteDecl is one route "path" { body } entry of a web block.
type RouteDecl struct {
	PosVal Position
	Path   string
	Body   []Stmt
}

// WebDecl represents web.app { routes }.
type WebDecl struct {
	PosVal Position
	Routes []RouteDecl
}

func (n *WebDecl) Pos() Position { return n.PosVal }
func (n *WebDecl) node()         {}
func (n *WebDecl) stmt()         {}

// ImportStmt represents import name.
type ImportStmt struct {
	PosVal Position
	Module string
}

func (n *ImportStmt) Pos() Position { return n.PosVal }
func (n *ImportStmt) node()         {}
func (n *ImportStmt) stmt()         {}
