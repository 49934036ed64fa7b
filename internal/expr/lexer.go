package expr

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokKeyword
	tokOp      // == != < > <= >=
	tokPunct   // ( ) [ ] { } , : .
	tokIllegal // operators outside the language: = + - * / % ...
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", t.text)
}

var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true,
	"true": true, "false": true, "null": true,
	"True": true, "False": true, "None": true,
}

// reserved words that name constructs the language leaves out.
var reserved = map[string]bool{
	"lambda": true, "if": true, "else": true, "for": true, "import": true,
	"is": true, "def": true, "class": true, "yield": true, "await": true,
}

type lexer struct {
	src  string
	pos  int
	toks []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.toks = append(l.toks, tok)
		if tok.kind == tokEOF {
			return l.toks, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]
	switch {
	case c == '"' || c == '\'':
		return l.lexString(c)
	case isDigit(c) || (c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
		return l.lexNumber(), nil
	case c == '_' || isLetter(l.src[l.pos:]):
		for l.pos < len(l.src) && (l.src[l.pos] == '_' || isDigit(l.src[l.pos]) || isLetter(l.src[l.pos:])) {
			_, size := utf8.DecodeRuneInString(l.src[l.pos:])
			l.pos += size
		}
		word := l.src[start:l.pos]
		if keywords[word] {
			return token{kind: tokKeyword, text: word, pos: start}, nil
		}
		return token{kind: tokIdent, text: word, pos: start}, nil
	}

	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "==", "!=", "<=", ">=":
		l.pos += 2
		return token{kind: tokOp, text: two, pos: start}, nil
	case "**", "//", "+=", "-=", "*=", "/=", ":=", "<<", ">>":
		l.pos += 2
		return token{kind: tokIllegal, text: two, pos: start}, nil
	}

	l.pos++
	switch c {
	case '<', '>':
		return token{kind: tokOp, text: string(c), pos: start}, nil
	case '(', ')', '[', ']', '{', '}', ',', ':', '.':
		return token{kind: tokPunct, text: string(c), pos: start}, nil
	case '-':
		// A minus directly before a digit is a negative literal, used by
		// negative indexes. Any other minus is arithmetic.
		if l.pos < len(l.src) && isDigit(l.src[l.pos]) && !l.afterOperand() {
			tok := l.lexNumber()
			tok.text = "-" + tok.text
			tok.pos = start
			return tok, nil
		}
	}
	_, size := utf8.DecodeRuneInString(l.src[start:])
	l.pos = start + size
	return token{kind: tokIllegal, text: l.src[start:l.pos], pos: start}, nil
}

// afterOperand reports whether the previous token ends an operand, in which
// case a following '-' is binary subtraction.
func (l *lexer) afterOperand() bool {
	if len(l.toks) == 0 {
		return false
	}
	prev := l.toks[len(l.toks)-1]
	switch prev.kind {
	case tokIdent, tokNumber, tokString:
		return true
	case tokKeyword:
		switch prev.text {
		case "true", "false", "null", "True", "False", "None":
			return true
		}
	case tokPunct:
		return prev.text == ")" || prev.text == "]" || prev.text == "}"
	}
	return false
}

func (l *lexer) lexNumber() token {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		if l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		} else {
			l.pos = save
		}
	}
	return token{kind: tokNumber, text: l.src[start:l.pos], pos: start}
}

func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == quote:
			l.pos++
			return token{kind: tokString, text: sb.String(), pos: start}, nil
		case c == '\\' && l.pos+1 < len(l.src):
			l.pos++
			switch e := l.src[l.pos]; e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '\'', '"':
				sb.WriteByte(e)
			default:
				sb.WriteByte('\\')
				sb.WriteByte(e)
			}
			l.pos++
		default:
			sb.WriteByte(c)
			l.pos++
		}
	}
	return token{}, fmt.Errorf("unterminated string starting at offset %d", start)
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLetter(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLetter(r)
}
