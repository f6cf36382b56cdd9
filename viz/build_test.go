package viz

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/caffeineduck/goviz/native"
	"github.com/caffeineduck/goviz/native/nativetest"
)

func TestBuildGraph(t *testing.T) {
	ctx := context.Background()
	fake := nativetest.New()
	ledger := native.NewLedger(fake)
	b := &builder{mod: ledger}

	undirected := false
	in := &Graph{
		Name:           "G",
		Directed:       &undirected,
		Strict:         true,
		EdgeAttributes: Attributes{"color": Attr("blue"), "arrowhead": Attr("none")},
		Nodes:          []Node{{Name: "a", Attributes: Attributes{"label": HTML("<b>A</b>")}}},
		Edges:          []Edge{{Tail: "a", Head: "b"}, {Tail: "b", Head: "a"}},
		Subgraphs: []Subgraph{{
			Name:           "cluster_0",
			NodeAttributes: Attributes{"shape": Attr("box")},
			Nodes:          []Node{{Name: "c"}},
			Subgraphs:      []Subgraph{{Name: "inner"}},
		}},
	}

	g, err := b.build(ctx, in, RenderOptions{})
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	if g == native.Null {
		t.Fatal("build() returned a null graph")
	}

	wantCalls := []string{
		"create_graph G",
		"string_dup none", "set_default_edge_attribute arrowhead", "string_free",
		"string_dup blue", "set_default_edge_attribute color", "string_free",
		"add_node a",
		"string_dup_html <b>A</b>", "set_attribute label", "string_free",
		"add_edge a b",
		"add_edge b a",
		"add_subgraph cluster_0",
		"string_dup box", "set_default_node_attribute shape", "string_free",
		"add_node c",
		"add_subgraph inner",
	}
	if diff := cmp.Diff(wantCalls, fake.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}

	if err := ledger.FreeGraph(ctx, g); err != nil {
		t.Fatalf("FreeGraph() error = %v", err)
	}
	if err := ledger.Check(); err != nil {
		t.Error(err)
	}

	got := fake.Freed()[0]
	if got.Directed || !got.Strict {
		t.Errorf("directed, strict = %v, %v, want false, true", got.Directed, got.Strict)
	}
	if diff := cmp.Diff([][2]string{{"a", "b"}}, got.Edges); diff != "" {
		t.Errorf("strict graph edges mismatch (-want +got):\n%s", diff)
	}
	if got.Subgraphs != 2 {
		t.Errorf("Subgraphs = %d, want 2", got.Subgraphs)
	}
	if !strings.Contains(got.DOT, "a\t[label=<<b>A</b>>];") {
		t.Errorf("DOT = %q, want an HTML label on a", got.DOT)
	}
}

func TestBuildTextInstallsEngineDefaults(t *testing.T) {
	ctx := context.Background()
	fake := nativetest.New()
	ledger := native.NewLedger(fake)
	b := &builder{mod: ledger}

	o := RenderOptions{GraphAttributes: Attributes{"rankdir": Attr("LR")}}
	g, err := b.build(ctx, Text("digraph { a }"), o)
	if err != nil || g == native.Null {
		t.Fatalf("build() = %d, %v", g, err)
	}

	wantCalls := []string{
		"string_dup LR", "set_default_graph_attribute rankdir", "string_free",
		"malloc", "write_string", "read_one_graph", "free",
	}
	if diff := cmp.Diff(wantCalls, fake.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}

	ledger.FreeGraph(ctx, g)
	if err := ledger.Check(); err != nil {
		t.Error(err)
	}
	if dot := fake.Freed()[0].DOT; !strings.Contains(dot, "rankdir=LR") {
		t.Errorf("DOT = %q, want rankdir=LR", dot)
	}
}

func TestBuildTextSyntaxError(t *testing.T) {
	ctx := context.Background()
	ledger := native.NewLedger(nativetest.New())
	b := &builder{mod: ledger}

	g, err := b.build(ctx, Text("digraph { a -- b }"), RenderOptions{})
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	if g != native.Null {
		t.Errorf("build() = %d, want null", g)
	}
	if err := ledger.Check(); err != nil {
		t.Error(err)
	}
}

func TestBuildNilGraph(t *testing.T) {
	b := &builder{mod: nativetest.New()}

	var g *Graph
	if _, err := b.build(context.Background(), g, RenderOptions{}); err != ErrInvalidInput {
		t.Errorf("build(nil) error = %v, want %v", err, ErrInvalidInput)
	}
}
