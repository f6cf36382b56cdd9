package viz_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/caffeineduck/goviz/viz"
)

func TestParseGraphJSON(t *testing.T) {
	src := `{
		"name": "G",
		"directed": false,
		"nodeAttributes": {"shape": "box", "width": 1.5},
		"nodes": [{"name": 1, "attributes": {"label": {"html": "<b>one</b>"}}}],
		"edges": [{"tail": 1, "head": "two", "attributes": {"constraint": false}}],
		"subgraphs": [{"name": "cluster_a", "nodes": [{"name": "x"}]}]
	}`

	g, err := viz.ParseGraphJSON([]byte(src))
	if err != nil {
		t.Fatalf("ParseGraphJSON() error = %v", err)
	}

	directed := false
	want := &viz.Graph{
		Name:           "G",
		Directed:       &directed,
		NodeAttributes: viz.Attributes{"shape": viz.Attr("box"), "width": viz.Attr("1.5")},
		Nodes:          []viz.Node{{Name: "1", Attributes: viz.Attributes{"label": viz.HTML("<b>one</b>")}}},
		Edges:          []viz.Edge{{Tail: "1", Head: "two", Attributes: viz.Attributes{"constraint": viz.Attr(false)}}},
		Subgraphs:      []viz.Subgraph{{Name: "cluster_a", Nodes: []viz.Node{{Name: "x"}}}},
	}
	if diff := cmp.Diff(want, g); diff != "" {
		t.Errorf("ParseGraphJSON() mismatch (-want +got):\n%s", diff)
	}
	if g.IsDirected() {
		t.Error("IsDirected() = true, want false")
	}
}

func TestParseGraphYAML(t *testing.T) {
	src := `
strict: true
graphAttributes:
  rankdir: LR
nodes:
  - name: a
    attributes:
      label: {html: "<i>a</i>"}
edges:
  - tail: a
    head: 2
`
	g, err := viz.ParseGraphYAML([]byte(src))
	if err != nil {
		t.Fatalf("ParseGraphYAML() error = %v", err)
	}

	want := &viz.Graph{
		Strict:          true,
		GraphAttributes: viz.Attributes{"rankdir": viz.Attr("LR")},
		Nodes:           []viz.Node{{Name: "a", Attributes: viz.Attributes{"label": viz.HTML("<i>a</i>")}}},
		Edges:           []viz.Edge{{Tail: "a", Head: "2"}},
	}
	if diff := cmp.Diff(want, g); diff != "" {
		t.Errorf("ParseGraphYAML() mismatch (-want +got):\n%s", diff)
	}
	if !g.IsDirected() {
		t.Error("IsDirected() = false, want true by default")
	}
}

func TestParseGraphRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "array attribute", src: `{"nodeAttributes": {"shape": ["box"]}}`},
		{name: "object without html", src: `{"nodeAttributes": {"shape": {"text": "box"}}}`},
		{name: "null name", src: `{"nodes": [{"name": null}]}`},
		{name: "object name", src: `{"nodes": [{"name": {}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := viz.ParseGraphJSON([]byte(tt.src)); err == nil {
				t.Errorf("ParseGraphJSON(%s) error = nil, want error", tt.src)
			}
		})
	}
}

func TestValueJSON(t *testing.T) {
	attrs := viz.Attributes{
		"label": viz.HTML("x"),
		"color": viz.Attr("red"),
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"color":"red","label":{"html":"x"}}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestAttr(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{in: "box", want: "box"},
		{in: 2, want: "2"},
		{in: 0.5, want: "0.5"},
		{in: true, want: "true"},
		{in: viz.HTML("<b/>"), want: "<<b/>>"},
	}

	for _, tt := range tests {
		if got := viz.Attr(tt.in).String(); got != tt.want {
			t.Errorf("Attr(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
