package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent parser for Mythos syntax
// ---------------------------------------------------------------------------

// Parser parses a token sequence into an AST. Newlines and semicolons are
// statement separators; the parser skips them transparently, so operators
// may continue an expression across lines. The one place a separator is
// significant is directly after `return`, where it ends the statement.
type Parser struct {
	tokens []Token
	pos    int // index of the next unconsumed token (separators included)
}

// NewParser creates a parser over a token sequence ending in EOF.
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses a whole program.
func Parse(source string) (*Program, *Error) {
	tokens, err := Tokenize(source)
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).ParseProgram()
}

// ParseProgram parses the token sequence into a Program.
func (p *Parser) ParseProgram() (*Program, *Error) {
	prog := &Program{}
	for p.peek().Type != TokenEOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Stmts = append(prog.Stmts, stmt)
	}
	return prog, nil
}

// ---------------------------------------------------------------------------
// Token stream helpers
// ---------------------------------------------------------------------------

func isSeparator(t TokenType) bool {
	return t == TokenNewline || t == TokenSemicolon
}

// peek returns the next significant token without consuming it.
func (p *Parser) peek() Token {
	return p.peekAt(0)
}

// peekAt returns the n-th significant token ahead (0 = next).
func (p *Parser) peekAt(n int) Token {
	i := p.pos
	for {
		for i < len(p.tokens) && isSeparator(p.tokens[i].Type) {
			i++
		}
		if i >= len(p.tokens) {
			return p.tokens[len(p.tokens)-1] // EOF
		}
		if n == 0 {
			return p.tokens[i]
		}
		n--
		i++
	}
}

// separatorBefore reports whether a separator precedes the next
// significant token.
func (p *Parser) separatorBefore() bool {
	return p.pos < len(p.tokens) && isSeparator(p.tokens[p.pos].Type)
}

// advance consumes and returns the next significant token.
func (p *Parser) advance() Token {
	for p.pos < len(p.tokens) && isSeparator(p.tokens[p.pos].Type) {
		p.pos++
	}
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

// expect consumes a token of the given type or fails.
func (p *Parser) expect(t TokenType) (Token, *Error) {
	tok := p.peek()
	if tok.Type != t {
		return Token{}, p.unexpected(tok, t.String())
	}
	return p.advance(), nil
}

// expectKeyword consumes a specific keyword or fails.
func (p *Parser) expectKeyword(word string) (Token, *Error) {
	tok := p.peek()
	if tok.Type != TokenKeyword || tok.Literal != word {
		return Token{}, p.unexpected(tok, fmt.Sprintf("%q", word))
	}
	return p.advance(), nil
}

func (p *Parser) atKeyword(word string) bool {
	tok := p.peek()
	return tok.Type == TokenKeyword && tok.Literal == word
}

func (p *Parser) unexpected(tok Token, expected string) *Error {
	if tok.Type == TokenEOF {
		return syntaxErrorf(tok.Pos, "expected %s, got end of input", expected)
	}
	return syntaxErrorf(tok.Pos, "expected %s, got %s", expected, tok)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() (Stmt, *Error) {
	tok := p.peek()

	if tok.Type == TokenKeyword {
		switch tok.Literal {
		case "if":
			return p.parseIf()
		case "while":
			return p.parseWhile()
		case "for":
			return p.parseFor()
		case "break":
			p.advance()
			return &BreakStmt{PosVal: tok.Pos}, nil
		case "continue":
			p.advance()
			return &ContinueStmt{PosVal: tok.Pos}, nil
		case "function":
			return p.parseFunction()
		case "return":
			return p.parseReturn()
		case "class":
			return p.parseClass()
		case "scene":
			return p.parseScene()
		case "web":
			return p.parseWeb()
		case "import":
			return p.parseImport()
		case "let", "const", "var":
			return p.parseVarDecl()
		default:
			return nil, syntaxErrorf(tok.Pos, "unexpected keyword %q", tok.Literal)
		}
	}

	// IDENT followed by an assignment operator is an assignment; anything
	// else is a bare expression statement.
	if tok.Type == TokenIdent {
		switch p.peekAt(1).Type {
		case TokenAssign, TokenPlusAssign, TokenMinusAssign:
			return p.parseAssignment()
		}
	}

	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	switch p.peek().Type {
	case TokenAssign, TokenPlusAssign, TokenMinusAssign:
		return p.parseTargetAssignment(expr)
	}
	return &ExprStmt{PosVal: expr.Pos(), Expr: expr}, nil
}

// parseVarDecl parses let/const/var name [= expr]. The initializer is
// optional; a bare declaration starts the variable at null.
func (p *Parser) parseVarDecl() (Stmt, *Error) {
	kind := p.advance()
	name, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	var value Expr
	if p.peek().Type == TokenAssign {
		p.advance()
		value, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	return &VarDeclStmt{PosVal: kind.Pos, Kind: kind.Literal, Name: name.Literal, Value: value}, nil
}

// parseAssignment parses name = expr, desugaring += and -= into a plain
// assignment of a binary expression.
func (p *Parser) parseAssignment() (Stmt, *Error) {
	name := p.advance()
	op := p.advance()
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	switch op.Type {
	case TokenPlusAssign:
		value = &BinaryExpr{PosVal: op.Pos, Op: "+", Left: &Ident{PosVal: name.Pos, Name: name.Literal}, Right: value}
	case TokenMinusAssign:
		value = &BinaryExpr{PosVal: op.Pos, Op: "-", Left: &Ident{PosVal: name.Pos, Name: name.Literal}, Right: value}
	}
	return &AssignStmt{PosVal: name.Pos, Name: name.Literal, Value: value}, nil
}

// parseTargetAssignment handles assignments whose left side is an index or
// member expression; plain names go through parseAssignment instead.
func (p *Parser) parseTargetAssignment(target Expr) (Stmt, *Error) {
	op := p.advance()
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	switch op.Type {
	case TokenPlusAssign:
		value = &BinaryExpr{PosVal: op.Pos, Op: "+", Left: target, Right: value}
	case TokenMinusAssign:
		value = &BinaryExpr{PosVal: op.Pos, Op: "-", Left: target, Right: value}
	}
	switch recv := target.(type) {
	case *IndexExpr:
		return &IndexAssignStmt{PosVal: recv.Pos(), Recv: recv.Recv, Index: recv.Index, Value: value}, nil
	case *MemberExpr:
		return &MemberAssignStmt{PosVal: recv.Pos(), Recv: recv.Recv, Name: recv.Name, Value: value}, nil
	}
	return nil, syntaxErrorf(op.Pos, "cannot assign to this expression")
}

func (p *Parser) parseBlock() ([]Stmt, *Error) {
	if _, err := p.expect(TokenLBrace); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for p.peek().Type != TokenRBrace {
		if p.peek().Type == TokenEOF {
			return nil, p.unexpected(p.peek(), "}")
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	p.advance() // }
	return stmts, nil
}

func (p *Parser) parseIf() (Stmt, *Error) {
	kw := p.advance() // if or elif
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{PosVal: kw.Pos, Cond: cond, Then: then}
	switch {
	case p.atKeyword("elif"):
		nested, err := p.parseIf()
		if err != nil {
			return nil, err
		}
		stmt.Else = []Stmt{nested}
	case p.atKeyword("else"):
		p.advance()
		stmt.Else, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseWhile() (Stmt, *Error) {
	kw := p.advance()
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{PosVal: kw.Pos, Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor() (Stmt, *Error) {
	kw := p.advance()
	name, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	iterable, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ForStmt{PosVal: kw.Pos, Var: name.Literal, Iterable: iterable, Body: body}, nil
}

func (p *Parser) parseFunction() (*FuncDecl, *Error) {
	kw := p.advance()
	name, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &FuncDecl{PosVal: kw.Pos, NamePos: name.Pos, Name: name.Literal, Params: params, Body: body}, nil
}

func (p *Parser) parseParamList() ([]string, *Error) {
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	var params []string
	for p.peek().Type != TokenRParen {
		name, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		params = append(params, name.Literal)
		if p.peek().Type != TokenComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return params, nil
}

// parseReturn parses return [value]. A separator directly after the
// keyword ends the statement, as does } or EOF.
func (p *Parser) parseReturn() (Stmt, *Error) {
	kw := p.advance()
	stmt := &ReturnStmt{PosVal: kw.Pos}
	if p.separatorBefore() || p.peek().Type == TokenRBrace || p.peek().Type == TokenEOF {
		return stmt, nil
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	stmt.Value = value
	return stmt, nil
}

func (p *Parser) parseClass() (Stmt, *Error) {
	kw := p.advance()
	name, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	stmt := &ClassDecl{PosVal: kw.Pos, NamePos: name.Pos, Name: name.Literal}
	if p.atKeyword("extends") {
		p.advance()
		parent, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		stmt.Extends = parent.Literal
	}
	if _, err := p.expect(TokenLBrace); err != nil {
		return nil, err
	}
	for p.peek().Type != TokenRBrace {
		if !p.atKeyword("function") {
			return nil, p.unexpected(p.peek(), "method declaration")
		}
		method, err := p.parseFunction()
		if err != nil {
			return nil, err
		}
		stmt.Methods = append(stmt.Methods, method)
	}
	p.advance() // }
	return stmt, nil
}

func (p *Parser) parseScene() (Stmt, *Error) {
	kw := p.advance()
	name, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenLBrace); err != nil {
		return nil, err
	}
	stmt := &SceneDecl{PosVal: kw.Pos, Name: name.Literal}
	for p.peek().Type != TokenRBrace {
		elem, err := p.parseSceneElement()
		if err != nil {
			return nil, err
		}
		stmt.Elements = append(stmt.Elements, *elem)
	}
	p.advance() // }
	return stmt, nil
}

// parseSceneElement parses TYPE (key: expr)*. The property loop needs the
// colon lookahead: a bare identifier after the last property starts the
// next element, not another property.
func (p *Parser) parseSceneElement() (*SceneElement, *Error) {
	typ, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	elem := &SceneElement{PosVal: typ.Pos, Type: typ.Literal}
	for p.peek().Type == TokenIdent && p.peekAt(1).Type == TokenColon {
		key := p.advance()
		p.advance() // :
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		elem.Props = append(elem.Props, ObjectField{Key: key.Literal, Value: value})
	}
	return elem, nil
}

func (p *Parser) parseWeb() (Stmt, *Error) {
	kw := p.advance()
	if _, err := p.expect(TokenDot); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenIdent); err != nil { // app
		return nil, err
	}
	if _, err := p.expect(TokenLBrace); err != nil {
		return nil, err
	}
	stmt := &WebDecl{PosVal: kw.Pos}
	for p.peek().Type != TokenRBrace {
		route, err := p.parseRoute()
		if err != nil {
			return nil, err
		}
		stmt.Routes = append(stmt.Routes, *route)
	}
	p.advance() // }
	return stmt, nil
}

func (p *Parser) parseRoute() (*RouteDecl, *Error) {
	kw, err := p.expectKeyword("route")
	if err != nil {
		return nil, err
	}
	path, err := p.expect(TokenString)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &RouteDecl{PosVal: kw.Pos, Path: path.Literal, Body: body}, nil
}

func (p *Parser) parseImport() (Stmt, *Error) {
	kw := p.advance()
	name, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	return &ImportStmt{PosVal: kw.Pos, Module: name.Literal}, nil
}

// ---------------------------------------------------------------------------
// Expressions, by ascending precedence
// ---------------------------------------------------------------------------

func (p *Parser) parseExpression() (Expr, *Error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, *Error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("or") {
		op := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{PosVal: op.Pos, Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, *Error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("and") {
		op := p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{PosVal: op.Pos, Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseEquality() (Expr, *Error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == TokenEqEq || p.peek().Type == TokenNotEq {
		op := p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{PosVal: op.Pos, Op: op.Literal, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseComparison() (Expr, *Error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case TokenLess, TokenGreater, TokenLessEq, TokenGreaterEq:
			op := p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpr{PosVal: op.Pos, Op: op.Literal, Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseAdditive() (Expr, *Error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == TokenPlus || p.peek().Type == TokenMinus {
		op := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{PosVal: op.Pos, Op: op.Literal, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (Expr, *Error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case TokenStar, TokenSlash, TokenPercent:
			op := p.advance()
			right, err := p.parsePower()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpr{PosVal: op.Pos, Op: op.Literal, Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

// parsePower parses ^, right-associative: 2^3^2 is 2^(3^2).
func (p *Parser) parsePower() (Expr, *Error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.peek().Type == TokenCaret {
		op := p.advance()
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{PosVal: op.Pos, Op: "^", Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, *Error) {
	tok := p.peek()
	if tok.Type == TokenMinus || (tok.Type == TokenKeyword && tok.Literal == "not") {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		op := "-"
		if tok.Type == TokenKeyword {
			op = "not"
		}
		return &UnaryExpr{PosVal: tok.Pos, Op: op, Operand: operand}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses calls, member access, and indexing, all chainable.
func (p *Parser) parsePostfix() (Expr, *Error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case TokenLParen:
			pos := p.advance().Pos
			var args []Expr
			for p.peek().Type != TokenRParen {
				arg, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.peek().Type != TokenComma {
					break
				}
				p.advance()
			}
			if _, err := p.expect(TokenRParen); err != nil {
				return nil, err
			}
			expr = &CallExpr{PosVal: pos, Callee: expr, Args: args}
		case TokenDot:
			p.advance()
			name, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			expr = &MemberExpr{PosVal: name.Pos, Recv: expr, Name: name.Literal}
		case TokenLBracket:
			pos := p.advance().Pos
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenRBracket); err != nil {
				return nil, err
			}
			expr = &IndexExpr{PosVal: pos, Recv: expr, Index: index}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (Expr, *Error) {
	tok := p.peek()
	switch tok.Type {
	case TokenInt, TokenFloat:
		p.advance()
		value, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, syntaxErrorf(tok.Pos, "malformed number %q", tok.Literal)
		}
		return &NumberLit{PosVal: tok.Pos, Value: value}, nil

	case TokenString:
		p.advance()
		return &StringLit{PosVal: tok.Pos, Value: tok.Literal}, nil

	case TokenBool:
		p.advance()
		return &BoolLit{PosVal: tok.Pos, Value: tok.Literal == "true"}, nil

	case TokenNull:
		p.advance()
		return &NullLit{PosVal: tok.Pos}, nil

	case TokenIdent:
		p.advance()
		return &Ident{PosVal: tok.Pos, Name: tok.Literal}, nil

	case TokenLParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil

	case TokenLBracket:
		return p.parseArrayLit()

	case TokenLBrace:
		return p.parseObjectLit()
	}
	return nil, p.unexpected(tok, "expression")
}

func (p *Parser) parseArrayLit() (Expr, *Error) {
	pos := p.advance().Pos // [
	lit := &ArrayLit{PosVal: pos}
	for p.peek().Type != TokenRBracket {
		elem, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		lit.Elems = append(lit.Elems, elem)
		if p.peek().Type != TokenComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(TokenRBracket); err != nil {
		return nil, err
	}
	return lit, nil
}

func (p *Parser) parseObjectLit() (Expr, *Error) {
	pos := p.advance().Pos // {
	lit := &ObjectLit{PosVal: pos}
	for p.peek().Type != TokenRBrace {
		key, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenColon); err != nil {
			return nil, err
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		lit.Fields = append(lit.Fields, ObjectField{Key: key.Literal, Value: value})
		if p.peek().Type != TokenComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(TokenRBrace); err != nil {
		return nil, err
	}
	return lit, nil
}
