package graphviz

import (
	"fmt"

	"github.com/goccy/go-graphviz/cgraph"

	"github.com/caffeineduck/goviz/native"
)

// graphObj is a root graph or a subgraph. children is only populated on
// roots and lists every handle that dies with the graph.
type graphObj struct {
	g        *cgraph.Graph
	root     *graphObj
	children []native.Pointer
}

type nodeObj struct {
	n *cgraph.Node
}

type edgeObj struct {
	e *cgraph.Edge
}

// dupString is a reference-counted engine string. owner is the graph
// handle it was duplicated against; graph is nil for engine-wide strings,
// which live only on the Go side until a graph is parsed.
type dupString struct {
	owner native.Pointer
	graph *cgraph.Graph
	text  string
	html  bool
}

type buffer struct {
	data []byte
}

type list struct {
	items []native.Pointer
}

type layoutContext struct {
	laidOut map[*cgraph.Graph]bool
}

type value struct {
	text string
	html bool
}

func (m *Module) put(v any) native.Pointer {
	return native.Pointer(m.objects.Put(v))
}

func lookup[T any](m *Module, p native.Pointer) (T, error) {
	var zero T
	v, err := m.objects.Get(uint32(p))
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("handle %d is a %T, not a %T", p, v, zero)
	}
	return t, nil
}

func (m *Module) adopt(g *graphObj, p native.Pointer) native.Pointer {
	g.root.children = append(g.root.children, p)
	return p
}
