package compiler

import (
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for Mythos syntax
// ---------------------------------------------------------------------------

// Lexer tokenizes Mythos source code. Newlines are significant and emit
// NEWLINE tokens; spaces, tabs, carriage returns, and # comments are
// skipped.
type Lexer struct {
	input   string
	pos     int  // offset of current char
	readPos int  // offset after current char
	ch      rune // current character, 0 at EOF
	line    int  // line of current char (1-based)
	col     int  // column of current char (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

// readChar advances to the next character, tracking line and column.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = l.readPos
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// NextToken returns the next token, or a LexError on a malformed one.
// After EOF it keeps returning EOF.
func (l *Lexer) NextToken() (Token, *Error) {
	l.skipBlanks()

	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}, nil

	case l.ch == '\n':
		l.readChar()
		return Token{Type: TokenNewline, Literal: "\n", Pos: pos}, nil

	case l.ch == '\'' || l.ch == '"':
		return l.readString(pos)

	case isDigit(l.ch):
		return l.readNumber(pos), nil

	case isIdentStart(l.ch):
		return l.readIdentifier(pos), nil
	}

	// Operators and delimiters, with one-character lookahead for the
	// two-character forms.
	two := func(next rune, twoType TokenType, oneType TokenType) (Token, *Error) {
		ch := l.ch
		l.readChar()
		if l.ch == next {
			l.readChar()
			return Token{Type: twoType, Literal: string(ch) + string(next), Pos: pos}, nil
		}
		return Token{Type: oneType, Literal: string(ch), Pos: pos}, nil
	}
	one := func(t TokenType) (Token, *Error) {
		ch := l.ch
		l.readChar()
		return Token{Type: t, Literal: string(ch), Pos: pos}, nil
	}

	switch l.ch {
	case '+':
		return two('=', TokenPlusAssign, TokenPlus)
	case '-':
		l.readChar()
		switch l.ch {
		case '=':
			l.readChar()
			return Token{Type: TokenMinusAssign, Literal: "-=", Pos: pos}, nil
		case '>':
			l.readChar()
			return Token{Type: TokenArrow, Literal: "->", Pos: pos}, nil
		}
		return Token{Type: TokenMinus, Literal: "-", Pos: pos}, nil
	case '*':
		return one(TokenStar)
	case '/':
		return one(TokenSlash)
	case '^':
		return one(TokenCaret)
	case '%':
		return one(TokenPercent)
	case '=':
		return two('=', TokenEqEq, TokenAssign)
	case '<':
		return two('=', TokenLessEq, TokenLess)
	case '>':
		return two('=', TokenGreaterEq, TokenGreater)
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return Token{Type: TokenNotEq, Literal: "!=", Pos: pos}, nil
		}
		return Token{}, lexErrorf(pos, "unexpected character: !")
	case '(':
		return one(TokenLParen)
	case ')':
		return one(TokenRParen)
	case '{':
		return one(TokenLBrace)
	case '}':
		return one(TokenRBrace)
	case '[':
		return one(TokenLBracket)
	case ']':
		return one(TokenRBracket)
	case ',':
		return one(TokenComma)
	case '.':
		return one(TokenDot)
	case ':':
		return one(TokenColon)
	case ';':
		return one(TokenSemicolon)
	}

	return Token{}, lexErrorf(pos, "unexpected character: %c", l.ch)
}

// skipBlanks skips spaces, tabs, carriage returns, and # comments.
// Newlines stay: they are tokens.
func (l *Lexer) skipBlanks() {
	for {
		switch l.ch {
		case ' ', '\t', '\r':
			l.readChar()
		case '#':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

// readNumber scans a digit run with at most one decimal point. A second
// point terminates the number, so "1.2.3" scans as FLOAT(1.2), ".", INT(3).
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	seenDot := false
	for isDigit(l.ch) || (l.ch == '.' && !seenDot) {
		if l.ch == '.' {
			seenDot = true
		}
		l.readChar()
	}
	lit := l.input[start:l.pos]
	typ := TokenInt
	if seenDot {
		typ = TokenFloat
	}
	return Token{Type: typ, Literal: lit, Pos: pos}
}

// readString scans a string delimited by ' or ". Escapes: \n \t \r \\ and
// the enclosing quote; an unknown escape passes the escaped character
// through. The token literal holds the decoded value.
func (l *Lexer) readString(pos Position) (Token, *Error) {
	quote := l.ch
	l.readChar()
	var out []rune
	for l.ch != quote {
		if l.ch == 0 {
			return Token{}, lexErrorf(pos, "unterminated string")
		}
		if l.ch == '\\' {
			l.readChar()
			if l.ch == 0 {
				return Token{}, lexErrorf(pos, "unterminated string")
			}
			switch l.ch {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			default:
				out = append(out, l.ch)
			}
			l.readChar()
			continue
		}
		out = append(out, l.ch)
		l.readChar()
	}
	l.readChar() // closing quote
	return Token{Type: TokenString, Literal: string(out), Pos: pos}, nil
}

// readIdentifier scans an identifier and classifies reserved words.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isIdentStart(l.ch) || unicode.IsDigit(l.ch) {
		l.readChar()
	}
	word := l.input[start:l.pos]
	switch {
	case word == "true" || word == "false":
		return Token{Type: TokenBool, Literal: word, Pos: pos}
	case word == "null":
		return Token{Type: TokenNull, Literal: word, Pos: pos}
	case keywords[word]:
		return Token{Type: TokenKeyword, Literal: word, Pos: pos}
	}
	return Token{Type: TokenIdent, Literal: word, Pos: pos}
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

// Tokenize scans the whole input into a flat token sequence ending in EOF.
// The first malformed token stops the scan.
func Tokenize(input string) ([]Token, *Error) {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}
