package compiler

import (
	"fmt"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Token types for the Mythos scanner
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenNewline

	// Literals
	TokenInt    // 42
	TokenFloat  // 3.14
	TokenString // "hello", 'hello'
	TokenBool   // true, false
	TokenNull   // null

	// Names
	TokenIdent   // foo, Bar, _tmp
	TokenKeyword // if, while, function, ...

	// Operators
	TokenPlus        // +
	TokenMinus       // -
	TokenStar        // *
	TokenSlash       // /
	TokenCaret       // ^
	TokenPercent     // %
	TokenEqEq        // ==
	TokenNotEq       // !=
	TokenLess        // <
	TokenGreater     // >
	TokenLessEq      // <=
	TokenGreaterEq   // >=
	TokenPlusAssign  // +=
	TokenMinusAssign // -=
	TokenAssign      // =
	TokenArrow       // ->

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenComma     // ,
	TokenDot       // .
	TokenColon     // :
	TokenSemicolon // ;
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenNewline:     "NEWLINE",
	TokenInt:         "INT",
	TokenFloat:       "FLOAT",
	TokenString:      "STRING",
	TokenBool:        "BOOL",
	TokenNull:        "NULL",
	TokenIdent:       "IDENT",
	TokenKeyword:     "KEYWORD",
	TokenPlus:        "+",
	TokenMinus:       "-",
	TokenStar:        "*",
	TokenSlash:       "/",
	TokenCaret:       "^",
	TokenPercent:     "%",
	TokenEqEq:        "==",
	TokenNotEq:       "!=",
	TokenLess:        "<",
	TokenGreater:     ">",
	TokenLessEq:      "<=",
	TokenGreaterEq:   ">=",
	TokenPlusAssign:  "+=",
	TokenMinusAssign: "-=",
	TokenAssign:      "=",
	TokenArrow:       "->",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenLBrace:      "{",
	TokenRBrace:      "}",
	TokenLBracket:    "[",
	TokenRBracket:    "]",
	TokenComma:       ",",
	TokenDot:         ".",
	TokenColon:       ":",
	TokenSemicolon:   ";",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text (string tokens hold the decoded value)
	Pos     Position // start position
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenNewline:
		return "NEWLINE"
	}
	if len(t.Literal) > 20 {
		// Truncate on a rune boundary so the message stays valid UTF-8.
		cut := 20
		for cut > 0 && !utf8.RuneStart(t.Literal[cut]) {
			cut--
		}
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:cut])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// keywords is the reserved-word set. true/false and null scan as literal
// tokens, not keywords.
var keywords = map[string]bool{
	"if": true, "else": true, "elif": true,
	"while": true, "for": true, "in": true,
	"break": true, "continue": true,
	"function": true, "return": true,
	"class": true, "extends": true, "new": true, "this": true, "super": true,
	"import": true, "from": true, "export": true, "as": true,
	"and": true, "or": true, "not": true, "is": true,
	"scene": true, "route": true, "web": true, "ui": true,
	"let": true, "const": true, "var": true,
	"async": true, "await": true, "with": true,
	"match": true, "case": true, "default": true,
}

// IsKeyword reports whether word is reserved.
func IsKeyword(word string) bool {
	return keywords[word]
}

// Keywords returns the reserved words, unordered.
func Keywords() []string {
	out := make([]string, 0, len(keywords))
	for w := range keywords {
		out = append(out, w)
	}
	return out
}
