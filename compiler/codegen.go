package compiler

import (
	"fmt"

	"github.com/chazu/mythos/vm"
)

// ---------------------------------------------------------------------------
// Codegen: single-pass tree-to-bytecode compiler
// ---------------------------------------------------------------------------

// Options control statement-level codegen policy.
type Options struct {
	// AutoPop appends a POP after every bare expression statement, so a
	// program ends with an empty operand stack. Off by default: a bare
	// expression leaves its value behind.
	AutoPop bool

	// ImplicitReturn appends a RETURN when the program's last statement is
	// a bare expression, making its value the unit result. The REPL uses
	// this; that final expression is exempt from AutoPop.
	ImplicitReturn bool
}

// Compile parses nothing: it takes an AST and produces a validated unit
// with all labels resolved.
func Compile(prog *Program, name string, opts Options) (*vm.Unit, *Error) {
	c := newCodegen(name, opts)
	if err := c.compileProgram(prog); err != nil {
		return nil, err
	}
	return c.finish()
}

// CompileSource runs the whole front half: scan, parse, compile.
func CompileSource(source, name string, opts Options) (*vm.Unit, *Error) {
	prog, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return Compile(prog, name, opts)
}

// loopLabels is one enclosing-loop entry: where continue and break jump.
type loopLabels struct {
	continueLabel string
	breakLabel    string
}

type codegen struct {
	unit      *vm.Unit
	opts      Options
	labels    map[string]int // label -> instruction index
	nextLabel int
	loops     []loopLabels
}

func newCodegen(name string, opts Options) *codegen {
	return &codegen{
		unit:   vm.NewUnit(name),
		opts:   opts,
		labels: make(map[string]int),
	}
}

// newLabel returns a fresh symbolic label.
func (c *codegen) newLabel() string {
	label := fmt.Sprintf("L%d", c.nextLabel)
	c.nextLabel++
	return label
}

// defineLabel pins a label to the next instruction index.
func (c *codegen) defineLabel(label string) {
	c.labels[label] = len(c.unit.Instructions)
}

func (c *codegen) emit(op vm.Opcode, line int) {
	c.unit.Emit(vm.Instruction{Op: op, Line: line})
}

func (c *codegen) emitArg(op vm.Opcode, arg int, line int) {
	c.unit.Emit(vm.Instruction{Op: op, Arg: arg, Line: line})
}

func (c *codegen) emitName(op vm.Opcode, name string, line int) {
	c.unit.Emit(vm.Instruction{Op: op, Sym: name, Line: line})
}

func (c *codegen) emitJump(op vm.Opcode, label string, line int) {
	c.unit.Emit(vm.Instruction{Op: op, Sym: label, Line: line})
}

func (c *codegen) emitConst(op vm.Opcode, v vm.Value, line int) {
	c.unit.Emit(vm.Instruction{Op: op, Arg: c.unit.AddConstant(v), Line: line})
}

// finish resolves labels and returns the unit. Resolution rewrites only
// jump-target operands; name operands are never touched.
func (c *codegen) finish() (*vm.Unit, *Error) {
	for i := range c.unit.Instructions {
		in := &c.unit.Instructions[i]
		if !in.Op.IsJump() || in.Sym == "" {
			continue
		}
		target, ok := c.labels[in.Sym]
		if !ok {
			return nil, &Error{Kind: SyntaxError, Message: fmt.Sprintf("internal: undefined label %s", in.Sym)}
		}
		in.Arg = target
		in.Sym = ""
	}
	return c.unit, nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *codegen) compileProgram(prog *Program) *Error {
	for i, stmt := range prog.Stmts {
		last := i == len(prog.Stmts)-1
		if last && c.opts.ImplicitReturn {
			if es, ok := stmt.(*ExprStmt); ok {
				if err := c.compileExpr(es.Expr); err != nil {
					return err
				}
				c.emit(vm.OpReturn, es.Pos().Line)
				return nil
			}
		}
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *codegen) compileStmt(stmt Stmt) *Error {
	switch s := stmt.(type) {
	case *ExprStmt:
		if err := c.compileExpr(s.Expr); err != nil {
			return err
		}
		if c.opts.AutoPop {
			c.emit(vm.OpPop, s.Pos().Line)
		}
		return nil

	case *AssignStmt:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.emitName(vm.OpStoreVar, s.Name, s.Pos().Line)
		return nil

	case *VarDeclStmt:
		if s.Value != nil {
			if err := c.compileExpr(s.Value); err != nil {
				return err
			}
		} else {
			c.emitConst(vm.OpLoadConst, vm.Null(), s.Pos().Line)
		}
		c.emitName(vm.OpStoreVar, s.Name, s.Pos().Line)
		return nil

	case *IndexAssignStmt:
		if err := c.compileExpr(s.Recv); err != nil {
			return err
		}
		if err := c.compileExpr(s.Index); err != nil {
			return err
		}
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.emit(vm.OpSetIndex, s.Pos().Line)
		return nil

	case *MemberAssignStmt:
		if err := c.compileExpr(s.Recv); err != nil {
			return err
		}
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.emitConst(vm.OpSetMember, vm.String(s.Name), s.Pos().Line)
		return nil

	case *IfStmt:
		return c.compileIf(s)

	case *WhileStmt:
		return c.compileWhile(s)

	case *ForStmt:
		return c.compileFor(s)

	case *BreakStmt:
		if len(c.loops) == 0 {
			return syntaxErrorf(s.Pos(), "break outside a loop")
		}
		c.emitJump(vm.OpJump, c.loops[len(c.loops)-1].breakLabel, s.Pos().Line)
		return nil

	case *ContinueStmt:
		if len(c.loops) == 0 {
			return syntaxErrorf(s.Pos(), "continue outside a loop")
		}
		c.emitJump(vm.OpJump, c.loops[len(c.loops)-1].continueLabel, s.Pos().Line)
		return nil

	case *FuncDecl:
		fn, err := c.compileFunc(s)
		if err != nil {
			return err
		}
		c.emitConst(vm.OpMakeFunction, vm.FunctionValue(fn), s.Pos().Line)
		c.emitName(vm.OpStoreVar, s.Name, s.Pos().Line)
		return nil

	case *ReturnStmt:
		if s.Value != nil {
			if err := c.compileExpr(s.Value); err != nil {
				return err
			}
		} else {
			c.emitConst(vm.OpLoadConst, vm.Null(), s.Pos().Line)
		}
		c.emit(vm.OpReturn, s.Pos().Line)
		return nil

	case *ClassDecl:
		return c.compileClass(s)

	case *SceneDecl:
		return c.compileScene(s)

	case *WebDecl:
		return c.compileWeb(s)

	case *ImportStmt:
		c.emitConst(vm.OpImport, vm.String(s.Module), s.Pos().Line)
		return nil

	default:
		return syntaxErrorf(stmt.Pos(), "internal: unhandled statement %T", stmt)
	}
}

func (c *codegen) compileIf(s *IfStmt) *Error {
	elseLabel := c.newLabel()
	endLabel := c.newLabel()

	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	c.emitJump(vm.OpJumpIfFalse, elseLabel, s.Pos().Line)
	if err := c.compileStmts(s.Then); err != nil {
		return err
	}
	c.emitJump(vm.OpJump, endLabel, s.Pos().Line)
	c.defineLabel(elseLabel)
	if err := c.compileStmts(s.Else); err != nil {
		return err
	}
	c.defineLabel(endLabel)
	return nil
}

func (c *codegen) compileWhile(s *WhileStmt) *Error {
	condLabel := c.newLabel()
	endLabel := c.newLabel()

	c.defineLabel(condLabel)
	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	c.emitJump(vm.OpJumpIfFalse, endLabel, s.Pos().Line)

	c.loops = append(c.loops, loopLabels{continueLabel: condLabel, breakLabel: endLabel})
	err := c.compileStmts(s.Body)
	c.loops = c.loops[:len(c.loops)-1]
	if err != nil {
		return err
	}

	c.emitJump(vm.OpJump, condLabel, s.Pos().Line)
	c.defineLabel(endLabel)
	return nil
}

// compileFor keeps the live iterator on the stack for the whole loop.
// FOR_ITER pops it on normal exhaustion and jumps past the cleanup POP;
// break routes through the cleanup so the iterator never leaks.
func (c *codegen) compileFor(s *ForStmt) *Error {
	iterLabel := c.newLabel()
	breakLabel := c.newLabel()
	endLabel := c.newLabel()

	if err := c.compileExpr(s.Iterable); err != nil {
		return err
	}
	c.emit(vm.OpGetIter, s.Pos().Line)

	c.defineLabel(iterLabel)
	c.emitJump(vm.OpForIter, endLabel, s.Pos().Line)
	c.emitName(vm.OpStoreVar, s.Var, s.Pos().Line)

	c.loops = append(c.loops, loopLabels{continueLabel: iterLabel, breakLabel: breakLabel})
	err := c.compileStmts(s.Body)
	c.loops = c.loops[:len(c.loops)-1]
	if err != nil {
		return err
	}

	c.emitJump(vm.OpJump, iterLabel, s.Pos().Line)
	c.defineLabel(breakLabel)
	c.emit(vm.OpPop, s.Pos().Line) // the live iterator
	c.defineLabel(endLabel)
	return nil
}

// compileFunc compiles a function body through a fresh codegen into an
// independent unit. A body not ending in RETURN gets null appended, so a
// function without an explicit return yields null.
func (c *codegen) compileFunc(s *FuncDecl) (*vm.Function, *Error) {
	sub := newCodegen(s.Name, Options{AutoPop: c.opts.AutoPop})
	if err := sub.compileStmts(s.Body); err != nil {
		return nil, err
	}
	if n := len(sub.unit.Instructions); n == 0 || sub.unit.Instructions[n-1].Op != vm.OpReturn {
		sub.emitConst(vm.OpLoadConst, vm.Null(), s.Pos().Line)
		sub.emit(vm.OpReturn, s.Pos().Line)
	}
	unit, err := sub.finish()
	if err != nil {
		return nil, err
	}
	return &vm.Function{Name: s.Name, Params: s.Params, Unit: unit}, nil
}

// compileClass builds the method bag: an object mapping method names to
// function values, bound to the class name.
func (c *codegen) compileClass(s *ClassDecl) *Error {
	for _, method := range s.Methods {
		fn, err := c.compileFunc(method)
		if err != nil {
			return err
		}
		c.emitConst(vm.OpLoadConst, vm.String(method.Name), method.Pos().Line)
		c.emitConst(vm.OpMakeFunction, vm.FunctionValue(fn), method.Pos().Line)
	}
	c.emitArg(vm.OpMakeObject, len(s.Methods), s.Pos().Line)
	c.emitName(vm.OpStoreVar, s.Name, s.Pos().Line)
	return nil
}

func (c *codegen) compileScene(s *SceneDecl) *Error {
	c.emitConst(vm.OpCreateScene, vm.String(s.Name), s.Pos().Line)
	for _, elem := range s.Elements {
		for _, prop := range elem.Props {
			c.emitConst(vm.OpLoadConst, vm.String(prop.Key), elem.PosVal.Line)
			if err := c.compileExpr(prop.Value); err != nil {
				return err
			}
		}
		c.emitArg(vm.OpMakeObject, len(elem.Props), elem.PosVal.Line)
		c.emitConst(vm.OpAddSceneElement, vm.String(elem.Type), elem.PosVal.Line)
	}
	c.emitName(vm.OpStoreVar, s.Name, s.Pos().Line)
	return nil
}

// compileWeb leaves the app value on the stack like a bare expression;
// AutoPop applies to it the same way.
func (c *codegen) compileWeb(s *WebDecl) *Error {
	c.emit(vm.OpCreateWebApp, s.Pos().Line)
	for _, route := range s.Routes {
		handler, err := c.compileRoute(&route)
		if err != nil {
			return err
		}
		c.emitConst(vm.OpLoadConst, vm.String(route.Path), route.PosVal.Line)
		c.unit.Emit(vm.Instruction{
			Op:   vm.OpAddRoute,
			Arg:  c.unit.AddConstant(vm.FunctionValue(handler)),
			Line: route.PosVal.Line,
		})
	}
	if c.opts.AutoPop {
		c.emit(vm.OpPop, s.Pos().Line)
	}
	return nil
}

func (c *codegen) compileRoute(route *RouteDecl) (*vm.Function, *Error) {
	sub := newCodegen("route "+route.Path, Options{AutoPop: c.opts.AutoPop})
	if err := sub.compileStmts(route.Body); err != nil {
		return nil, err
	}
	if n := len(sub.unit.Instructions); n == 0 || sub.unit.Instructions[n-1].Op != vm.OpReturn {
		sub.emitConst(vm.OpLoadConst, vm.Null(), route.PosVal.Line)
		sub.emit(vm.OpReturn, route.PosVal.Line)
	}
	unit, err := sub.finish()
	if err != nil {
		return nil, err
	}
	return &vm.Function{Name: "route " + route.Path, Unit: unit}, nil
}

func (c *codegen) compileStmts(stmts []Stmt) *Error {
	for _, stmt := range stmts {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *codegen) compileExpr(expr Expr) *Error {
	line := expr.Pos().Line
	switch e := expr.(type) {
	case *NumberLit:
		c.emitConst(vm.OpLoadConst, vm.Number(e.Value), line)
	case *StringLit:
		c.emitConst(vm.OpLoadConst, vm.String(e.Value), line)
	case *BoolLit:
		c.emitConst(vm.OpLoadConst, vm.Bool(e.Value), line)
	case *NullLit:
		c.emitConst(vm.OpLoadConst, vm.Null(), line)
	case *Ident:
		c.emitName(vm.OpLoadVar, e.Name, line)

	case *BinaryExpr:
		if err := c.compileExpr(e.Left); err != nil {
			return err
		}
		if err := c.compileExpr(e.Right); err != nil {
			return err
		}
		op, ok := binaryOpcodes[e.Op]
		if !ok {
			return syntaxErrorf(e.Pos(), "internal: unhandled operator %q", e.Op)
		}
		c.emit(op, line)

	case *UnaryExpr:
		if err := c.compileExpr(e.Operand); err != nil {
			return err
		}
		if e.Op == "-" {
			c.emit(vm.OpNeg, line)
		} else {
			c.emit(vm.OpNot, line)
		}

	case *CallExpr:
		if err := c.compileExpr(e.Callee); err != nil {
			return err
		}
		for _, arg := range e.Args {
			if err := c.compileExpr(arg); err != nil {
				return err
			}
		}
		c.emitArg(vm.OpCall, len(e.Args), line)

	case *MemberExpr:
		if err := c.compileExpr(e.Recv); err != nil {
			return err
		}
		c.emitConst(vm.OpGetMember, vm.String(e.Name), line)

	case *IndexExpr:
		if err := c.compileExpr(e.Recv); err != nil {
			return err
		}
		if err := c.compileExpr(e.Index); err != nil {
			return err
		}
		c.emit(vm.OpGetIndex, line)

	case *ArrayLit:
		for _, elem := range e.Elems {
			if err := c.compileExpr(elem); err != nil {
				return err
			}
		}
		c.emitArg(vm.OpMakeArray, len(e.Elems), line)

	case *ObjectLit:
		for _, field := range e.Fields {
			c.emitConst(vm.OpLoadConst, vm.String(field.Key), line)
			if err := c.compileExpr(field.Value); err != nil {
				return err
			}
		}
		c.emitArg(vm.OpMakeObject, len(e.Fields), line)

	default:
		return syntaxErrorf(expr.Pos(), "internal: unhandled expression %T", expr)
	}
	return nil
}

var binaryOpcodes = map[string]vm.Opcode{
	"+":   vm.OpAdd,
	"-":   vm.OpSub,
	"*":   vm.OpMul,
	"/":   vm.OpDiv,
	"^":   vm.OpPow,
	"%":   vm.OpMod,
	"==":  vm.OpEq,
	"!=":  vm.OpNe,
	"<":   vm.OpLt,
	">":   vm.OpGt,
	"<=":  vm.OpLe,
	">=":  vm.OpGe,
	"and": vm.OpAnd,
	"or":  vm.OpOr,
}
