package token

// Type identifies the category of a token.
type Type string

// Token carries the lexical item along with its source position.
// End is the position one past the final byte of the token.
type Token struct {
	Type    Type
	Literal string
	Pos     Position
	End     Position
}

// Span returns the span covering the token.
func (t Token) Span() Span {
	return Span{Start: t.Pos, End: t.End}
}

// Position describes a byte offset and 1-based line/column.
type Position struct {
	Offset int
	Line   int
	Column int
}

// Span represents an inclusive start and end position for a node.
// Every AST node and every emitted instruction carries one.
type Span struct {
	Start Position
	End   Position
}

// Join merges two spans into the smallest span covering both.
func Join(a, b Span) Span {
	out := a
	if b.Start.Offset < a.Start.Offset {
		out.Start = b.Start
	}
	if b.End.Offset > a.End.Offset {
		out.End = b.End
	}
	return out
}

const (
	Illegal Type = "ILLEGAL"
	EOF     Type = "EOF"

	// identifiers and literals
	Ident  Type = "IDENT"
	Int    Type = "INT"
	Float  Type = "FLOAT"
	String Type = "STRING"

	// keywords
	Let      Type = "LET"
	Fn       Type = "FN"
	If       Type = "IF"
	Else     Type = "ELSE"
	While    Type = "WHILE"
	For      Type = "FOR"
	In       Type = "IN"
	Break    Type = "BREAK"
	Continue Type = "CONTINUE"
	Return   Type = "RETURN"
	True     Type = "TRUE"
	False    Type = "FALSE"
	Nil      Type = "NIL"
	Mod      Type = "MOD"
	And      Type = "AND"
	Or       Type = "OR"

	// operators
	Assign       Type = "ASSIGN"       // =
	Plus         Type = "PLUS"         // +
	Minus        Type = "MINUS"        // -
	Star         Type = "STAR"         // *
	Slash        Type = "SLASH"        // /
	Power        Type = "POWER"        // **
	Bang         Type = "BANG"         // !
	Equal        Type = "EQUAL"        // ==
	NotEqual     Type = "NOTEQUAL"     // !=
	Less         Type = "LESS"         // <
	LessEqual    Type = "LESSEQUAL"    // <=
	Greater      Type = "GREATER"      // >
	GreaterEqual Type = "GREATEREQUAL" // >=

	// delimiters
	Comma     Type = "COMMA"
	Colon     Type = "COLON"
	Semicolon Type = "SEMICOLON"
	LParen    Type = "LPAREN"
	RParen    Type = "RPAREN"
	LBrace    Type = "LBRACE"
	RBrace    Type = "RBRACE"
	LBracket  Type = "LBRACKET"
	RBracket  Type = "RBRACKET"
)

var keywords = map[string]Type{
	"let":      Let,
	"fn":       Fn,
	"if":       If,
	"else":     Else,
	"while":    While,
	"for":      For,
	"in":       In,
	"break":    Break,
	"continue": Continue,
	"return":   Return,
	"true":     True,
	"false":    False,
	"nil":      Nil,
	"mod":      Mod,
	"and":      And,
	"or":       Or,
}

// LookupIdent returns the keyword token type or Ident.
func LookupIdent(ident string) Type {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return Ident
}
