package lexer

import (
	"strings"

	"github.com/xirelogy/go-sable/internal/token"
)

// Lexer converts source text into a stream of tokens.
type Lexer struct {
	input   string
	pos     int  // current position in bytes
	readPos int  // next read position
	ch      byte // current char
	line    int
	column  int
}

// New creates a lexer for the provided source text.
func New(input string) *Lexer {
	l := &Lexer{
		input:  input,
		line:   1,
		column: 0,
	}
	l.readChar()
	return l
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() token.Token {
	for {
		l.skipWhitespace()

		if l.ch == 0 {
			return l.finishToken(l.makeToken(token.EOF, ""))
		}

		if l.ch == '/' {
			if l.peekChar() == '/' {
				l.skipLineComment()
				continue
			}
			if l.peekChar() == '*' {
				l.skipBlockComment()
				continue
			}
		}

		switch l.ch {
		case '=':
			if l.peekChar() == '=' {
				return l.twoCharToken(token.Equal)
			}
			return l.oneCharToken(token.Assign)
		case '+':
			return l.oneCharToken(token.Plus)
		case '-':
			return l.oneCharToken(token.Minus)
		case '*':
			if l.peekChar() == '*' {
				return l.twoCharToken(token.Power)
			}
			return l.oneCharToken(token.Star)
		case '/':
			return l.oneCharToken(token.Slash)
		case '!':
			if l.peekChar() == '=' {
				return l.twoCharToken(token.NotEqual)
			}
			return l.oneCharToken(token.Bang)
		case '<':
			if l.peekChar() == '=' {
				return l.twoCharToken(token.LessEqual)
			}
			return l.oneCharToken(token.Less)
		case '>':
			if l.peekChar() == '=' {
				return l.twoCharToken(token.GreaterEqual)
			}
			return l.oneCharToken(token.Greater)
		case ',':
			return l.oneCharToken(token.Comma)
		case ':':
			return l.oneCharToken(token.Colon)
		case ';':
			return l.oneCharToken(token.Semicolon)
		case '(':
			return l.oneCharToken(token.LParen)
		case ')':
			return l.oneCharToken(token.RParen)
		case '{':
			return l.oneCharToken(token.LBrace)
		case '}':
			return l.oneCharToken(token.RBrace)
		case '[':
			return l.oneCharToken(token.LBracket)
		case ']':
			return l.oneCharToken(token.RBracket)
		case '"':
			return l.readString()
		default:
			if isLetter(l.ch) {
				return l.readIdentifier()
			}
			if isDigit(l.ch) {
				return l.readNumber()
			}
			return l.oneCharToken(token.Illegal)
		}
	}
}

func (l *Lexer) makeToken(t token.Type, lit string) token.Token {
	return token.Token{
		Type:    t,
		Literal: lit,
		Pos: token.Position{
			Offset: l.pos,
			Line:   l.line,
			Column: l.column,
		},
	}
}

// finishToken stamps the end position once the lexer has advanced past
// the token's final byte.
func (l *Lexer) finishToken(tok token.Token) token.Token {
	tok.End = token.Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.column,
	}
	return tok
}

func (l *Lexer) oneCharToken(t token.Type) token.Token {
	tok := l.makeToken(t, string(l.ch))
	l.readChar()
	return l.finishToken(tok)
}

func (l *Lexer) twoCharToken(t token.Type) token.Token {
	tok := l.makeToken(t, l.input[l.pos:l.pos+2])
	l.readChar()
	l.readChar()
	return l.finishToken(tok)
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n' {
		l.readChar()
	}
}

func (l *Lexer) skipLineComment() {
	for l.ch != 0 && l.ch != '\n' {
		l.readChar()
	}
}

func (l *Lexer) skipBlockComment() {
	l.readChar() // consume '/'
	l.readChar() // consume '*'
	for {
		if l.ch == 0 {
			return
		}
		if l.ch == '*' && l.peekChar() == '/' {
			l.readChar() // '*'
			l.readChar() // '/'
			return
		}
		l.readChar()
	}
}

func (l *Lexer) readIdentifier() token.Token {
	start := l.makeToken(token.Ident, "")
	var sb strings.Builder
	for isLetter(l.ch) || isDigit(l.ch) {
		sb.WriteByte(l.ch)
		l.readChar()
	}
	lit := sb.String()
	start.Type = token.LookupIdent(lit)
	start.Literal = lit
	return l.finishToken(start)
}

func (l *Lexer) readNumber() token.Token {
	start := l.makeToken(token.Int, "")
	var sb strings.Builder
	for isDigit(l.ch) {
		sb.WriteByte(l.ch)
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		start.Type = token.Float
		sb.WriteByte(l.ch)
		l.readChar()
		for isDigit(l.ch) {
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
	start.Literal = sb.String()
	return l.finishToken(start)
}

func (l *Lexer) readString() token.Token {
	start := l.makeToken(token.String, "")
	var sb strings.Builder

	for {
		l.readChar()
		if l.ch == 0 {
			start.Type = token.Illegal
			start.Literal = "unterminated string"
			return l.finishToken(start)
		}
		if l.ch == '"' {
			l.readChar()
			break
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case '"', '\\':
				sb.WriteByte(l.ch)
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(l.ch)
			}
			continue
		}
		sb.WriteByte(l.ch)
	}

	start.Literal = sb.String()
	return l.finishToken(start)
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.pos = l.readPos
		l.ch = 0
		return
	}

	l.ch = l.input[l.readPos]
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.column = 0
	} else {
		l.column++
	}
}
