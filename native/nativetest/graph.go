package nativetest

import (
	"fmt"
	"strings"
)

type value struct {
	text string
	html bool
}

type attrs map[string]value

const (
	kindGraph = iota
	kindNode
	kindEdge
)

type node struct {
	name  string
	attrs attrs
}

type edge struct {
	tail, head *node
	attrs      attrs
}

type graph struct {
	name     string
	directed bool
	strict   bool
	root     *graph
	attrs    attrs
	defaults [3]attrs

	// Only populated on the root.
	nodes  []*node
	byName map[string]*node
	edges  []*edge

	members   []*node
	subgraphs []*graph
}

func newGraph(name string, directed, strict bool) *graph {
	g := &graph{
		name:     name,
		directed: directed,
		strict:   strict,
		attrs:    attrs{},
		byName:   make(map[string]*node),
	}
	for i := range g.defaults {
		g.defaults[i] = attrs{}
	}
	g.root = g
	return g
}

func (g *graph) subgraph(name string) *graph {
	for _, s := range g.subgraphs {
		if name != "" && s.name == name {
			return s
		}
	}
	s := &graph{
		name:     name,
		directed: g.directed,
		strict:   g.strict,
		root:     g.root,
		attrs:    attrs{},
	}
	for i := range s.defaults {
		s.defaults[i] = attrs{}
	}
	g.subgraphs = append(g.subgraphs, s)
	return s
}

func (g *graph) node(name string) *node {
	root := g.root
	n, ok := root.byName[name]
	if !ok {
		n = &node{name: name, attrs: attrs{}}
		root.byName[name] = n
		root.nodes = append(root.nodes, n)
	}
	if g != root {
		found := false
		for _, m := range g.members {
			if m == n {
				found = true
				break
			}
		}
		if !found {
			g.members = append(g.members, n)
		}
	}
	return n
}

func (g *graph) edge(tail, head string) *edge {
	t, h := g.node(tail), g.node(head)
	root := g.root
	if root.strict {
		for _, e := range root.edges {
			if (e.tail == t && e.head == h) || (!root.directed && e.tail == h && e.head == t) {
				return e
			}
		}
	}
	e := &edge{tail: t, head: h, attrs: attrs{}}
	root.edges = append(root.edges, e)
	return e
}

func (g *graph) countSubgraphs() int {
	n := len(g.subgraphs)
	for _, s := range g.subgraphs {
		n += s.countSubgraphs()
	}
	return n
}

func quoteID(s string) string {
	if s == "" {
		return `""`
	}
	simple := true
	for i, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || i > 0 && r >= '0' && r <= '9') {
			simple = false
			break
		}
	}
	if simple {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func (v value) String() string {
	if v.html {
		return "<" + v.text + ">"
	}
	return quoteID(v.text)
}

func (a attrs) String() string {
	keys := sortedKeys(a)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, a[k]))
	}
	return strings.Join(parts, ", ")
}
