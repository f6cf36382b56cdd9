package nativetest

import (
	"fmt"
	"strings"
	"unicode"
)

// The parser accepts the subset of DOT needed to exercise the renderer:
// graph, node and edge statements, attribute lists, graph attribute
// assignments and nested subgraphs.

type token struct {
	text   string
	line   int
	quoted bool
}

type syntaxError struct {
	line int
	near string
}

func (e *syntaxError) Error() string {
	return fmt.Sprintf("syntax error in line %d near '%s'", e.line, e.near)
}

func tokenize(src string) []token {
	var (
		toks []token
		line = 1
		rs   = []rune(src)
	)

	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case r == '\n':
			line++
			i++
		case unicode.IsSpace(r):
			i++
		case r == '/' && i+1 < len(rs) && rs[i+1] == '/':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(rs) && rs[i+1] == '*':
			i += 2
			for i+1 < len(rs) && !(rs[i] == '*' && rs[i+1] == '/') {
				if rs[i] == '\n' {
					line++
				}
				i++
			}
			i += 2
		case r == '"':
			start := line
			var b strings.Builder
			i++
			for i < len(rs) && rs[i] != '"' {
				if rs[i] == '\\' && i+1 < len(rs) && rs[i+1] == '"' {
					i++
				}
				if rs[i] == '\n' {
					line++
				}
				b.WriteRune(rs[i])
				i++
			}
			i++
			toks = append(toks, token{text: b.String(), line: start, quoted: true})
		case r == '-' && i+1 < len(rs) && (rs[i+1] == '>' || rs[i+1] == '-'):
			toks = append(toks, token{text: string(rs[i : i+2]), line: line})
			i += 2
		case strings.ContainsRune("{}[];,=:", r):
			toks = append(toks, token{text: string(r), line: line})
			i++
		default:
			start := i
			for i < len(rs) && (rs[i] == '_' || rs[i] == '.' || unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i])) {
				i++
			}
			if start == i {
				i++
			}
			toks = append(toks, token{text: string(rs[start:i]), line: line})
		}
	}

	return toks
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (token, error) {
	t, ok := p.peek()
	if !ok {
		return token{}, p.errAt(t)
	}
	p.pos++
	return t, nil
}

func (p *parser) errAt(t token) error {
	if t.line == 0 {
		line := 1
		if n := len(p.toks); n > 0 {
			line = p.toks[n-1].line
		}
		return &syntaxError{line: line}
	}
	return &syntaxError{line: t.line, near: t.text}
}

func (p *parser) is(text string) bool {
	t, ok := p.peek()
	return ok && !t.quoted && strings.EqualFold(t.text, text)
}

func (p *parser) accept(text string) bool {
	if p.is(text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	t, err := p.next()
	if err != nil {
		return err
	}
	if t.quoted || t.text != text {
		return p.errAt(t)
	}
	return nil
}

var punct = map[string]bool{
	"{": true, "}": true, "[": true, "]": true, ";": true,
	",": true, "=": true, ":": true, "->": true, "--": true,
}

func isPunct(t token) bool {
	return !t.quoted && punct[t.text]
}

func (p *parser) id() (string, error) {
	t, err := p.next()
	if err != nil {
		return "", err
	}
	if isPunct(t) {
		return "", p.errAt(t)
	}
	return t.text, nil
}

func parseDOT(src string) (*graph, error) {
	p := &parser{toks: tokenize(src)}

	strict := p.accept("strict")

	kw, err := p.next()
	if err != nil {
		return nil, err
	}
	var directed bool
	switch {
	case !kw.quoted && strings.EqualFold(kw.text, "graph"):
	case !kw.quoted && strings.EqualFold(kw.text, "digraph"):
		directed = true
	default:
		return nil, p.errAt(kw)
	}

	var name string
	if !p.is("{") {
		if name, err = p.id(); err != nil {
			return nil, err
		}
	}

	g := newGraph(name, directed, strict)
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	if err := p.stmtList(g); err != nil {
		return nil, err
	}
	if err := p.expect("}"); err != nil {
		return nil, err
	}
	return g, nil
}

func (p *parser) stmtList(g *graph) error {
	for {
		if _, ok := p.peek(); !ok || p.is("}") {
			return nil
		}
		if err := p.stmt(g); err != nil {
			return err
		}
		p.accept(";")
	}
}

func (p *parser) stmt(g *graph) error {
	for i, kw := range []string{"graph", "node", "edge"} {
		if p.is(kw) {
			p.pos++
			return p.attrList(g.defaults[i])
		}
	}

	if p.is("subgraph") || p.is("{") {
		var name string
		if p.accept("subgraph") && !p.is("{") {
			var err error
			if name, err = p.id(); err != nil {
				return err
			}
		}
		sub := g.subgraph(name)
		if err := p.expect("{"); err != nil {
			return err
		}
		if err := p.stmtList(sub); err != nil {
			return err
		}
		return p.expect("}")
	}

	first, err := p.id()
	if err != nil {
		return err
	}

	if p.accept("=") {
		v, err := p.id()
		if err != nil {
			return err
		}
		g.attrs[first] = value{text: v}
		return nil
	}

	var edges []*edge
	tail := first
	for p.is("->") || p.is("--") {
		op, _ := p.next()
		if (op.text == "->") != g.directed {
			return p.errAt(op)
		}
		head, err := p.id()
		if err != nil {
			return err
		}
		edges = append(edges, g.edge(tail, head))
		tail = head
	}

	if len(edges) == 0 {
		n := g.node(first)
		if p.is("[") {
			return p.attrList(n.attrs)
		}
		return nil
	}

	if p.is("[") {
		a := attrs{}
		if err := p.attrList(a); err != nil {
			return err
		}
		for _, e := range edges {
			for k, v := range a {
				e.attrs[k] = v
			}
		}
	}
	return nil
}

func (p *parser) attrList(into attrs) error {
	if err := p.expect("["); err != nil {
		return err
	}
	for !p.is("]") {
		k, err := p.id()
		if err != nil {
			return err
		}
		if err := p.expect("="); err != nil {
			return err
		}
		v, err := p.id()
		if err != nil {
			return err
		}
		into[k] = value{text: v}
		if !p.accept(",") {
			p.accept(";")
		}
	}
	return p.expect("]")
}
