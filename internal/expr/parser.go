package expr

import (
	"fmt"
	"strconv"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/types"
)

// allowedCalls lists the only callable functions and their arity.
var allowedCalls = map[string]int{
	"len":    1,
	"empty":  1,
	"exists": 1,
}

// Parse parses src into an AST. Constructs outside the language are
// reported as EXPR_002, malformed input as EXPR_001.
func Parse(src string) (Node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, deckerr.ExprSyntax(src, err.Error())
	}
	p := &parser{src: src, toks: toks}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.unexpected(tok)
	}
	return n, nil
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) is(kind tokenKind, text string) bool {
	tok := p.peek()
	return tok.kind == kind && tok.text == text
}

func (p *parser) accept(kind tokenKind, text string) bool {
	if p.is(kind, text) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, text string) error {
	if p.accept(kind, text) {
		return nil
	}
	return p.unexpected(p.peek())
}

func (p *parser) unexpected(tok token) error {
	if tok.kind == tokIllegal {
		return deckerr.ExprDisallowed(p.src, fmt.Sprintf("operator %q", tok.text))
	}
	if tok.kind == tokIdent && reserved[tok.text] {
		return deckerr.ExprDisallowed(p.src, fmt.Sprintf("keyword %q", tok.text))
	}
	return deckerr.ExprSyntax(p.src, fmt.Sprintf("unexpected %s at offset %d", tok, tok.pos))
}

func (p *parser) parseExpr() (Node, error) { return p.parseOr() }

func (p *parser) parseOr() (Node, error) {
	return p.parseBool("or", p.parseAnd)
}

func (p *parser) parseAnd() (Node, error) {
	return p.parseBool("and", p.parseNot)
}

func (p *parser) parseBool(op string, operand func() (Node, error)) (Node, error) {
	first, err := operand()
	if err != nil {
		return nil, err
	}
	if !p.is(tokKeyword, op) {
		return first, nil
	}
	n := &BoolOp{Op: op, Operands: []Node{first}}
	for p.accept(tokKeyword, op) {
		next, err := operand()
		if err != nil {
			return nil, err
		}
		n.Operands = append(n.Operands, next)
	}
	return n, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.accept(tokKeyword, "not") {
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{X: x}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	var cmp *Compare
	for {
		op, ok := p.compOp()
		if !ok {
			break
		}
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		if cmp == nil {
			cmp = &Compare{Left: left}
		}
		cmp.Ops = append(cmp.Ops, op)
		cmp.Rights = append(cmp.Rights, right)
	}
	if cmp == nil {
		return left, nil
	}
	return cmp, nil
}

func (p *parser) compOp() (string, bool) {
	tok := p.peek()
	switch {
	case tok.kind == tokOp:
		p.advance()
		return tok.text, true
	case tok.kind == tokKeyword && tok.text == "in":
		p.advance()
		return "in", true
	case tok.kind == tokKeyword && tok.text == "not" &&
		p.toks[p.pos+1].kind == tokKeyword && p.toks[p.pos+1].text == "in":
		p.advance()
		p.advance()
		return "not in", true
	}
	return "", false
}

func (p *parser) parsePrimary() (Node, error) {
	x, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.accept(tokPunct, "."):
			tok := p.advance()
			if tok.kind != tokIdent && tok.kind != tokKeyword {
				return nil, p.unexpected(tok)
			}
			if p.is(tokPunct, "(") {
				return nil, deckerr.ExprDisallowed(p.src, fmt.Sprintf("method call %s.%s()", x, tok.text))
			}
			x = &Attribute{X: x, Name: tok.text}
		case p.accept(tokPunct, "["):
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.is(tokPunct, ":") {
				return nil, deckerr.ExprDisallowed(p.src, "slice")
			}
			if err := p.expect(tokPunct, "]"); err != nil {
				return nil, err
			}
			x = &Index{X: x, Key: key}
		case p.is(tokPunct, "("):
			return nil, deckerr.ExprDisallowed(p.src, fmt.Sprintf("call of %s", x))
		default:
			return x, nil
		}
	}
}

func (p *parser) parseAtom() (Node, error) {
	tok := p.advance()
	switch tok.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, deckerr.ExprSyntax(p.src, fmt.Sprintf("bad number %q", tok.text))
		}
		return &Literal{Value: types.Number(f)}, nil
	case tokString:
		return &Literal{Value: types.String(tok.text)}, nil
	case tokKeyword:
		switch tok.text {
		case "true", "True":
			return &Literal{Value: types.Bool(true)}, nil
		case "false", "False":
			return &Literal{Value: types.Bool(false)}, nil
		case "null", "None":
			return &Literal{Value: types.Null()}, nil
		}
	case tokIdent:
		if reserved[tok.text] {
			return nil, p.unexpected(tok)
		}
		if p.accept(tokPunct, "(") {
			return p.parseCall(tok.text)
		}
		return &NameRef{Name: tok.text}, nil
	case tokPunct:
		switch tok.text {
		case "(":
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.is(tokPunct, ",") {
				return nil, deckerr.ExprDisallowed(p.src, "tuple")
			}
			if err := p.expect(tokPunct, ")"); err != nil {
				return nil, err
			}
			return x, nil
		case "[":
			return p.parseSequence()
		case "{":
			return p.parseMapping()
		}
	}
	return nil, p.unexpected(tok)
}

func (p *parser) parseCall(name string) (Node, error) {
	arity, ok := allowedCalls[name]
	if !ok {
		return nil, deckerr.ExprDisallowed(p.src, fmt.Sprintf("call of %s()", name))
	}
	call := &Call{Func: name}
	if !p.accept(tokPunct, ")") {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if p.accept(tokPunct, ")") {
				break
			}
			if err := p.expect(tokPunct, ","); err != nil {
				return nil, err
			}
		}
	}
	if len(call.Args) != arity {
		return nil, deckerr.ExprSyntax(p.src, fmt.Sprintf("%s() takes exactly %d argument, got %d", name, arity, len(call.Args)))
	}
	return call, nil
}

func (p *parser) parseSequence() (Node, error) {
	seq := &SequenceLiteral{}
	for !p.accept(tokPunct, "]") {
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind == tokIdent && p.peek().text == "for" {
			return nil, deckerr.ExprDisallowed(p.src, "comprehension")
		}
		seq.Items = append(seq.Items, item)
		if p.accept(tokPunct, "]") {
			break
		}
		if err := p.expect(tokPunct, ","); err != nil {
			return nil, err
		}
	}
	return seq, nil
}

func (p *parser) parseMapping() (Node, error) {
	m := &MappingLiteral{}
	for !p.accept(tokPunct, "}") {
		key, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokPunct, ":"); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		m.Keys = append(m.Keys, key)
		m.Values = append(m.Values, val)
		if p.accept(tokPunct, "}") {
			break
		}
		if err := p.expect(tokPunct, ","); err != nil {
			return nil, err
		}
	}
	return m, nil
}
