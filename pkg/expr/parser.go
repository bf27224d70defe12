// Package expr implements the rule expression language: a small, read-only
// sub-language evaluated against the caller context record
// {user, id, page, geo, request}.
//
// Supported forms: string/number/boolean/null/array literals, member access
// (dot and bracket), equality and ordering comparisons, && || !, arithmetic,
// `in` over arrays and strings, piped transforms (split, lower, upper) and
// the functions ts() and now(). There is no iteration, assignment, or host
// access; a single evaluation does work linear in the expression size.
package expr

import "fmt"

// Binding powers, loosest to tightest. Pipes bind tighter than comparisons
// so `user.plan | upper() == "PRO"` transforms before comparing.
const (
	bpOr      = 10
	bpAnd     = 20
	bpEq      = 35
	bpCmp     = 40
	bpAdd     = 50
	bpMul     = 60
	bpUnary   = 65
	bpPipe    = 70
	bpPostfix = 80
)

const maxDepth = 64

// transforms and functions form the closed extension surface of the
// language; arity is checked at parse time.
var (
	transforms = map[string]int{"split": 1, "lower": 0, "upper": 0}
	functions  = map[string]int{"ts": 1, "now": 0}
)

// Program is a parsed expression, safe for concurrent evaluation.
type Program struct {
	root node
	src  string
}

// Source returns the original expression text.
func (p *Program) Source() string {
	return p.src
}

// Parse compiles an expression. A failure here is a configuration error:
// the host treats the referring rule as false rather than propagating.
func Parse(src string) (*Program, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	root, err := p.parseExpr(0, 0)
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, errAt(p.cur.pos, "unexpected trailing input")
	}
	return &Program{root: root, src: src}, nil
}

type parser struct {
	lex *lexer
	cur token
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	if p.cur.kind != kind {
		return token{}, errAt(p.cur.pos, "expected %s", what)
	}
	tok := p.cur
	if err := p.advance(); err != nil {
		return token{}, err
	}
	return tok, nil
}

func (p *parser) parseExpr(minBP, depth int) (node, error) {
	if depth > maxDepth {
		return nil, errAt(p.cur.pos, "expression nests too deeply")
	}
	left, err := p.parsePrefix(depth)
	if err != nil {
		return nil, err
	}
	for {
		bp := infixPower(p.cur.kind)
		if bp == 0 || bp <= minBP {
			return left, nil
		}
		left, err = p.parseInfix(left, bp, depth)
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) parsePrefix(depth int) (node, error) {
	tok := p.cur
	switch tok.kind {
	case tokNumber:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &litNode{val: tok.num, pos: tok.pos}, nil
	case tokString:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &litNode{val: tok.text, pos: tok.pos}, nil
	case tokTrue, tokFalse:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &litNode{val: tok.kind == tokTrue, pos: tok.pos}, nil
	case tokNull:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &litNode{val: nil, pos: tok.pos}, nil
	case tokIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &identNode{name: tok.text, pos: tok.pos}, nil
	case tokBang, tokMinus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseExpr(bpUnary, depth+1)
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: tok.kind, x: x, pos: tok.pos}, nil
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseExpr(0, depth+1)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return x, nil
	case tokLBracket:
		return p.parseArray(depth)
	}
	return nil, errAt(tok.pos, "unexpected token")
}

func (p *parser) parseArray(depth int) (node, error) {
	start := p.cur.pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	var elems []node
	if p.cur.kind != tokRBracket {
		for {
			elem, err := p.parseExpr(0, depth+1)
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
			if p.cur.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(tokRBracket, "']'"); err != nil {
		return nil, err
	}
	return &arrayNode{elems: elems, pos: start}, nil
}

func (p *parser) parseInfix(left node, bp, depth int) (node, error) {
	tok := p.cur
	switch tok.kind {
	case tokDot:
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, err := p.expect(tokIdent, "member name")
		if err != nil {
			return nil, err
		}
		return &memberNode{x: left, name: name.text, pos: tok.pos}, nil

	case tokLBracket:
		if err := p.advance(); err != nil {
			return nil, err
		}
		key, err := p.parseExpr(0, depth+1)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRBracket, "']'"); err != nil {
			return nil, err
		}
		return &indexNode{x: left, key: key, pos: tok.pos}, nil

	case tokLParen:
		ident, ok := left.(*identNode)
		if !ok {
			return nil, errAt(tok.pos, "only named functions can be called")
		}
		arity, known := functions[ident.name]
		if !known {
			return nil, errAt(ident.pos, "unknown function %q", ident.name)
		}
		args, err := p.parseArgs(depth)
		if err != nil {
			return nil, err
		}
		if len(args) != arity {
			return nil, errAt(ident.pos, "%s takes %s", ident.name, pluralArgs(arity))
		}
		return &callNode{name: ident.name, args: args, pos: ident.pos}, nil

	case tokPipe:
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, err := p.expect(tokIdent, "transform name")
		if err != nil {
			return nil, err
		}
		arity, known := transforms[name.text]
		if !known {
			return nil, errAt(name.pos, "unknown transform %q", name.text)
		}
		args, err := p.parseArgs(depth)
		if err != nil {
			return nil, err
		}
		if len(args) != arity {
			return nil, errAt(name.pos, "%s takes %s", name.text, pluralArgs(arity))
		}
		return &pipeNode{x: left, name: name.text, args: args, pos: tok.pos}, nil
	}

	// Binary operator.
	if err := p.advance(); err != nil {
		return nil, err
	}
	right, err := p.parseExpr(bp, depth+1)
	if err != nil {
		return nil, err
	}
	return &binaryNode{op: tok.kind, x: left, y: right, pos: tok.pos}, nil
}

func (p *parser) parseArgs(depth int) ([]node, error) {
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	var args []node
	if p.cur.kind != tokRParen {
		for {
			arg, err := p.parseExpr(0, depth+1)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.cur.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return args, nil
}

func infixPower(k tokenKind) int {
	switch k {
	case tokOr:
		return bpOr
	case tokAnd:
		return bpAnd
	case tokEq, tokNeq:
		return bpEq
	case tokLt, tokLte, tokGt, tokGte, tokIn:
		return bpCmp
	case tokPlus, tokMinus:
		return bpAdd
	case tokStar, tokSlash, tokPercent:
		return bpMul
	case tokPipe:
		return bpPipe
	case tokDot, tokLBracket, tokLParen:
		return bpPostfix
	}
	return 0
}

func pluralArgs(n int) string {
	if n == 1 {
		return "one argument"
	}
	return fmt.Sprintf("%d arguments", n)
}
