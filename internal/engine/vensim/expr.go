package vensim

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// node is a parsed expression.
type node interface {
	// refs appends the name keys the expression reads.
	refs(dst map[string]struct{})
}

type numberNode struct{ value float64 }

type refNode struct {
	key  string
	name string
}

type unaryNode struct {
	op string
	x  node
}

type binaryNode struct {
	op   string
	l, r node
}

type callNode struct {
	fn   string // nameKey of the function
	name string
	args []node
}

// withLookupNode is WITH LOOKUP(input, table).
type withLookupNode struct {
	input node
	table *table
}

func (numberNode) refs(map[string]struct{})       {}
func (n refNode) refs(dst map[string]struct{})    { dst[n.key] = struct{}{} }
func (n unaryNode) refs(dst map[string]struct{})  { n.x.refs(dst) }
func (n binaryNode) refs(dst map[string]struct{}) { n.l.refs(dst); n.r.refs(dst) }
func (n withLookupNode) refs(dst map[string]struct{}) {
	n.input.refs(dst)
}
func (n callNode) refs(dst map[string]struct{}) {
	// A call to a lookup table depends on the table definition.
	if _, builtin := builtins[n.fn]; !builtin {
		dst[n.fn] = struct{}{}
	}
	for _, a := range n.args {
		a.refs(dst)
	}
}

// table is a piecewise-linear lookup.
type table struct {
	xs, ys []float64
}

func (t *table) at(x float64) float64 {
	n := len(t.xs)
	switch {
	case n == 0:
		return 0
	case x <= t.xs[0]:
		return t.ys[0]
	case x >= t.xs[n-1]:
		return t.ys[n-1]
	}
	i := sort.SearchFloat64s(t.xs, x)
	if t.xs[i] == x {
		return t.ys[i]
	}
	x0, x1 := t.xs[i-1], t.xs[i]
	y0, y1 := t.ys[i-1], t.ys[i]
	return y0 + (x-x0)*(y1-y0)/(x1-x0)
}

// exprParser is a precedence-climbing parser over lexed tokens.
//
//	or    := and { :OR: and }
//	and   := not { :AND: not }
//	not   := :NOT: not | cmp
//	cmp   := sum [ (= <> < > <= >=) sum ]
//	sum   := prod { (+ -) prod }
//	prod  := unary { (* /) unary }
//	unary := (- +) unary | power
//	power := primary [ ^ unary ]
type exprParser struct {
	toks []token
	pos  int
}

func parseExpr(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s %q", t.kind, t.text)
	}
	return n, nil
}

func (p *exprParser) peek() token { return p.toks[p.pos] }

func (p *exprParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) isOp(ops ...string) bool {
	t := p.peek()
	if t.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if t.text == op {
			return true
		}
	}
	return false
}

func (p *exprParser) expect(kind tokenKind) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, p.errorf(t, "expected %s, found %s %q", kind, t.kind, t.text)
	}
	return t, nil
}

func (p *exprParser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *exprParser) parseOr() (node, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp(":OR:") {
		p.next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: ":OR:", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseAnd() (node, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isOp(":AND:") {
		p.next()
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: ":AND:", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseNot() (node, error) {
	if p.isOp(":NOT:") {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: ":NOT:", x: x}, nil
	}
	return p.parseCmp()
}

func (p *exprParser) parseCmp() (node, error) {
	l, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if p.isOp("=", "<>", "<", ">", "<=", ">=") {
		op := p.next().text
		r, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: op, l: l, r: r}, nil
	}
	return l, nil
}

func (p *exprParser) parseSum() (node, error) {
	l, err := p.parseProd()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		op := p.next().text
		r, err := p.parseProd()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseProd() (node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/") {
		op := p.next().text
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseUnary() (node, error) {
	if p.isOp("-", "+") {
		op := p.next().text
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if op == "+" {
			return x, nil
		}
		return unaryNode{op: "-", x: x}, nil
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.isOp("^") {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: "^", l: base, r: exp}, nil
	}
	return base, nil
}

func (p *exprParser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf(t, "invalid number %q", t.text)
		}
		return numberNode{value: v}, nil
	case tokLParen:
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return n, nil
	case tokName:
		key := nameKey(t.text)
		if p.peek().kind == tokLBracket {
			return nil, &SyntaxError{Pos: p.peek().pos, Msg: "subscripted variables are not supported", Err: ErrUnsupported}
		}
		if p.peek().kind != tokLParen {
			return refNode{key: key, name: displayName(t.text)}, nil
		}
		p.next()
		if key == "with lookup" {
			return p.parseWithLookup()
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return callNode{fn: key, name: displayName(t.text), args: args}, nil
	}
	return nil, p.errorf(t, "unexpected %s %q", t.kind, t.text)
}

// parseArgs reads a comma separated argument list; the opening parenthesis
// has been consumed.
func (p *exprParser) parseArgs() ([]node, error) {
	var args []node
	if p.peek().kind == tokRParen {
		p.next()
		return args, nil
	}
	for {
		a, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		t := p.next()
		switch t.kind {
		case tokComma:
			continue
		case tokRParen:
			return args, nil
		default:
			return nil, p.errorf(t, "expected ',' or ')' in argument list, found %q", t.text)
		}
	}
}

func (p *exprParser) parseWithLookup() (node, error) {
	input, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma); err != nil {
		return nil, err
	}
	tbl, err := p.parseTable()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return withLookupNode{input: input, table: tbl}, nil
}

// parseTable reads a lookup literal:
//
//	( [(xmin,ymin)-(xmax,ymax)], (x1,y1), (x2,y2), ... )
//
// The bracketed range is optional and ignored.
func (p *exprParser) parseTable() (*table, error) {
	open, err := p.expect(tokLParen)
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokLBracket {
		depth := 0
		for {
			t := p.next()
			switch t.kind {
			case tokLBracket:
				depth++
			case tokRBracket:
				depth--
			case tokEOF:
				return nil, p.errorf(t, "unterminated lookup range")
			}
			if depth == 0 {
				break
			}
		}
		if p.peek().kind == tokComma {
			p.next()
		}
	}

	tbl := &table{}
	for {
		if p.peek().kind == tokRParen {
			p.next()
			break
		}
		if _, err := p.expect(tokLParen); err != nil {
			return nil, err
		}
		x, err := p.parseSigned()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokComma); err != nil {
			return nil, err
		}
		y, err := p.parseSigned()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		if n := len(tbl.xs); n > 0 && !(x > tbl.xs[n-1]) {
			return nil, p.errorf(open, "lookup x values must be strictly increasing")
		}
		tbl.xs = append(tbl.xs, x)
		tbl.ys = append(tbl.ys, y)
		if p.peek().kind == tokComma {
			p.next()
		}
	}
	if len(tbl.xs) == 0 {
		return nil, p.errorf(open, "lookup has no points")
	}
	return tbl, nil
}

func (p *exprParser) parseSigned() (float64, error) {
	sign := 1.0
	for p.isOp("-", "+") {
		if p.next().text == "-" {
			sign = -sign
		}
	}
	t, err := p.expect(tokNumber)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return 0, p.errorf(t, "invalid number %q", t.text)
	}
	return sign * v, nil
}

// parseTableDefinition parses the text after a lookup's name, e.g.
// "( [(0,0)-(2,2)], (0,0), (2,2) )".
func parseTableDefinition(src string) (*table, error) {
	toks, err := lex(strings.TrimSpace(src))
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks}
	tbl, err := p.parseTable()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s %q after lookup", t.kind, t.text)
	}
	return tbl, nil
}
