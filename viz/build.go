package viz

import (
	"context"
	"fmt"
	"sort"

	"github.com/caffeineduck/goviz/native"
)

type attrSetter func(ctx context.Context, g native.Pointer, name string, value native.Pointer) error

// builder creates graphs in the engine.
type builder struct {
	mod native.Module
}

// build returns the graph handle for input. For structured input the
// handle is returned even when a later step fails, so the caller can free
// it; a null handle with a nil error means the engine rejected the graph.
func (b *builder) build(ctx context.Context, in Input, o RenderOptions) (native.Pointer, error) {
	switch in := in.(type) {
	case Text:
		return b.buildText(ctx, string(in), o)
	case *Graph:
		if in == nil {
			return native.Null, ErrInvalidInput
		}
		return b.buildGraph(ctx, in)
	default:
		return native.Null, ErrInvalidInput
	}
}

// buildText parses DOT source. Default attributes from the options are
// installed engine-wide first, so declarations in the source override them.
func (b *builder) buildText(ctx context.Context, src string, o RenderOptions) (g native.Pointer, err error) {
	if err := b.setDefaults(ctx, native.Null, o.GraphAttributes, o.NodeAttributes, o.EdgeAttributes); err != nil {
		return native.Null, err
	}

	buf, err := b.mod.Malloc(ctx, uint32(len(src)+1))
	if err != nil {
		return native.Null, err
	}
	if buf == native.Null {
		return native.Null, fmt.Errorf("allocate %d bytes for graph source", len(src)+1)
	}
	defer func() {
		if ferr := b.mod.Free(ctx, buf); ferr != nil && err == nil {
			err = ferr
		}
	}()

	if err := b.mod.WriteString(ctx, buf, src); err != nil {
		return native.Null, err
	}
	return b.mod.ReadOneGraph(ctx, buf)
}

func (b *builder) buildGraph(ctx context.Context, in *Graph) (native.Pointer, error) {
	g, err := b.mod.CreateGraph(ctx, in.Name, in.IsDirected(), in.Strict)
	if err != nil || g == native.Null {
		return native.Null, err
	}
	return g, b.readObject(ctx, g, in.content())
}

// readObject fills g from c: defaults first, then nodes, edges and
// subgraphs in order. Subgraph defaults are passed down explicitly and
// never leak to siblings.
func (b *builder) readObject(ctx context.Context, g native.Pointer, c content) error {
	if err := b.setDefaults(ctx, g, c.graphAttributes, c.nodeAttributes, c.edgeAttributes); err != nil {
		return err
	}

	for _, n := range c.nodes {
		p, err := b.mod.AddNode(ctx, g, string(n.Name))
		if err != nil {
			return fmt.Errorf("add node %q: %w", n.Name, err)
		}
		if err := b.setAttributes(ctx, g, p, n.Attributes); err != nil {
			return err
		}
	}

	for _, e := range c.edges {
		p, err := b.mod.AddEdge(ctx, g, string(e.Tail), string(e.Head))
		if err != nil {
			return fmt.Errorf("add edge %q -> %q: %w", e.Tail, e.Head, err)
		}
		if err := b.setAttributes(ctx, g, p, e.Attributes); err != nil {
			return err
		}
	}

	for i := range c.subgraphs {
		s := &c.subgraphs[i]
		p, err := b.mod.AddSubgraph(ctx, g, string(s.Name))
		if err != nil {
			return fmt.Errorf("add subgraph %q: %w", s.Name, err)
		}
		if err := b.readObject(ctx, p, s.content()); err != nil {
			return err
		}
	}

	return nil
}

func (b *builder) setDefaults(ctx context.Context, g native.Pointer, graphAttrs, nodeAttrs, edgeAttrs Attributes) error {
	sets := []struct {
		attrs Attributes
		set   attrSetter
	}{
		{graphAttrs, b.mod.SetDefaultGraphAttribute},
		{nodeAttrs, b.mod.SetDefaultNodeAttribute},
		{edgeAttrs, b.mod.SetDefaultEdgeAttribute},
	}

	for _, s := range sets {
		for _, name := range sortedNames(s.attrs) {
			err := withString(ctx, b.mod, g, s.attrs[name], func(p native.Pointer) error {
				return s.set(ctx, g, name, p)
			})
			if err != nil {
				return fmt.Errorf("set default %s: %w", name, err)
			}
		}
	}
	return nil
}

// setAttributes assigns attrs to obj. Strings are duplicated against the
// enclosing graph g.
func (b *builder) setAttributes(ctx context.Context, g, obj native.Pointer, attrs Attributes) error {
	for _, name := range sortedNames(attrs) {
		err := withString(ctx, b.mod, g, attrs[name], func(p native.Pointer) error {
			return b.mod.SetAttribute(ctx, obj, name, p)
		})
		if err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

func sortedNames(a Attributes) []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
