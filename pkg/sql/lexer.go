package sql

import (
	"strings"

	"github.com/tegdb/tegdb/pkg/errors"
)

// Lexer produz tokens sob demanda a partir do texto SQL.
type Lexer struct {
	src string
	pos int
}

func NewLexer(src string) *Lexer {
	return &Lexer{src: src}
}

func (l *Lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			l.pos++
			continue
		}
		// Comentário de linha: -- até o fim da linha
		if c == '-' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '-' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		break
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Next retorna o próximo token.
func (l *Lexer) Next() (Token, error) {
	l.skipSpace()
	start := l.pos

	if l.pos >= len(l.src) {
		return Token{Type: TokEOF, Pos: start}, nil
	}

	c := l.src[l.pos]

	switch c {
	case ',':
		l.pos++
		return Token{Type: TokComma, Text: ",", Pos: start}, nil
	case ';':
		l.pos++
		return Token{Type: TokSemicolon, Text: ";", Pos: start}, nil
	case '(':
		l.pos++
		return Token{Type: TokLParen, Text: "(", Pos: start}, nil
	case ')':
		l.pos++
		return Token{Type: TokRParen, Text: ")", Pos: start}, nil
	case '[':
		l.pos++
		return Token{Type: TokLBracket, Text: "[", Pos: start}, nil
	case ']':
		l.pos++
		return Token{Type: TokRBracket, Text: "]", Pos: start}, nil
	case '*':
		l.pos++
		return Token{Type: TokStar, Text: "*", Pos: start}, nil
	case '+':
		l.pos++
		return Token{Type: TokPlus, Text: "+", Pos: start}, nil
	case '-':
		l.pos++
		return Token{Type: TokMinus, Text: "-", Pos: start}, nil
	case '/':
		l.pos++
		return Token{Type: TokSlash, Text: "/", Pos: start}, nil
	case '?':
		l.pos++
		return Token{Type: TokParam, Text: "?", Pos: start}, nil
	case '.':
		l.pos++
		return Token{Type: TokDot, Text: ".", Pos: start}, nil
	case '=':
		l.pos++
		return Token{Type: TokEq, Text: "=", Pos: start}, nil
	case '!':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			return Token{Type: TokNotEq, Text: "!=", Pos: start}, nil
		}
		return Token{}, &errors.ParseError{Position: start, Expected: "!=", Actual: "!"}
	case '<':
		if l.pos+1 < len(l.src) {
			switch l.src[l.pos+1] {
			case '=':
				l.pos += 2
				return Token{Type: TokLtEq, Text: "<=", Pos: start}, nil
			case '>':
				l.pos += 2
				return Token{Type: TokNotEq, Text: "<>", Pos: start}, nil
			}
		}
		l.pos++
		return Token{Type: TokLt, Text: "<", Pos: start}, nil
	case '>':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			return Token{Type: TokGtEq, Text: ">=", Pos: start}, nil
		}
		l.pos++
		return Token{Type: TokGt, Text: ">", Pos: start}, nil
	case '\'':
		// String literal; '' escapa aspas
		l.pos++
		var b strings.Builder
		for l.pos < len(l.src) {
			if l.src[l.pos] == '\'' {
				if l.pos+1 < len(l.src) && l.src[l.pos+1] == '\'' {
					b.WriteByte('\'')
					l.pos += 2
					continue
				}
				l.pos++
				return Token{Type: TokString, Text: b.String(), Pos: start}, nil
			}
			b.WriteByte(l.src[l.pos])
			l.pos++
		}
		return Token{}, &errors.ParseError{Position: start, Expected: "closing quote", Actual: "end of input"}
	}

	if isDigit(c) {
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
		if l.pos < len(l.src) && l.src[l.pos] == '.' {
			l.pos++
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		}
		if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
			l.pos++
			if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
				l.pos++
			}
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		}
		return Token{Type: TokNumber, Text: l.src[start:l.pos], Pos: start}, nil
	}

	if isIdentStart(c) {
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		text := l.src[start:l.pos]
		if IsKeyword(text) {
			return Token{Type: TokKeyword, Text: strings.ToUpper(text), Pos: start}, nil
		}
		return Token{Type: TokIdent, Text: text, Pos: start}, nil
	}

	return Token{}, &errors.ParseError{Position: start, Expected: "a token", Actual: string(c)}
}
