package nativetest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Engines is the layout engine list reported by the fake.
var Engines = []string{
	"circo", "dot", "fdp", "neato", "nop", "nop1", "nop2",
	"osage", "patchwork", "sfdp", "twopi",
}

// Formats is the device list reported by the fake.
var Formats = []string{
	"canon", "cmap", "cmapx", "cmapx_np", "dot", "dot_json", "eps", "fig",
	"gv", "imap", "imap_np", "ismap", "json", "json0", "pic", "plain",
	"plain-ext", "pov", "ps", "ps2", "svg", "svg_inline", "tk", "xdot",
	"xdot1.2", "xdot1.4", "xdot_json",
}

// Version is the engine version reported by the fake.
const Version = "12.2.0"

func sortedKeys(a attrs) []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func merge(base attrs, more ...attrs) attrs {
	out := attrs{}
	for k, v := range base {
		out[k] = v
	}
	for _, m := range more {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func render(g *graph, format string) string {
	switch format {
	case "dot", "gv", "canon", "xdot", "xdot1.2", "xdot1.4":
		return writeDOT(g)
	case "cmapx", "cmapx_np":
		return fmt.Sprintf("<map id=\"%s\" name=\"%s\">\n</map>\n", g.name, g.name)
	case "json", "json0", "dot_json", "xdot_json":
		return writeJSON(g)
	case "svg", "svg_inline":
		return writeSVG(g)
	case "plain", "plain-ext":
		return writePlain(g)
	default:
		return fmt.Sprintf("%s %s\n", format, g.name)
	}
}

func writeDOT(g *graph) string {
	var b strings.Builder

	if g.strict {
		b.WriteString("strict ")
	}
	op := "--"
	if g.directed {
		b.WriteString("digraph ")
		op = "->"
	} else {
		b.WriteString("graph ")
	}
	if g.name != "" {
		b.WriteString(quoteID(g.name) + " ")
	}
	b.WriteString("{\n")

	ga := merge(attrs{"bb": {text: "0,0,0,0"}}, g.defaults[kindGraph], g.attrs)
	fmt.Fprintf(&b, "\tgraph [%s];\n", ga)
	na := merge(attrs{"label": {text: `\N`}}, g.defaults[kindNode])
	fmt.Fprintf(&b, "\tnode [%s];\n", na)
	if len(g.defaults[kindEdge]) > 0 {
		fmt.Fprintf(&b, "\tedge [%s];\n", g.defaults[kindEdge])
	}

	for _, n := range g.nodes {
		if len(n.attrs) == 0 {
			fmt.Fprintf(&b, "\t%s;\n", quoteID(n.name))
		} else {
			fmt.Fprintf(&b, "\t%s\t[%s];\n", quoteID(n.name), n.attrs)
		}
	}
	for _, e := range g.edges {
		if len(e.attrs) == 0 {
			fmt.Fprintf(&b, "\t%s %s %s;\n", quoteID(e.tail.name), op, quoteID(e.head.name))
		} else {
			fmt.Fprintf(&b, "\t%s %s %s\t[%s];\n", quoteID(e.tail.name), op, quoteID(e.head.name), e.attrs)
		}
	}

	b.WriteString("}\n")
	return b.String()
}

type jsonObject struct {
	ID    int               `json:"_gvid"`
	Name  string            `json:"name"`
	Attrs map[string]string `json:"attributes,omitempty"`
}

type jsonEdge struct {
	ID    int               `json:"_gvid"`
	Tail  int               `json:"tail"`
	Head  int               `json:"head"`
	Attrs map[string]string `json:"attributes,omitempty"`
}

type jsonGraph struct {
	Name     string       `json:"name"`
	Directed bool         `json:"directed"`
	Strict   bool         `json:"strict"`
	Subgraph int          `json:"_subgraph_cnt"`
	Objects  []jsonObject `json:"objects,omitempty"`
	Edges    []jsonEdge   `json:"edges,omitempty"`
}

func plainAttrs(a attrs) map[string]string {
	if len(a) == 0 {
		return nil
	}
	out := make(map[string]string, len(a))
	for k, v := range a {
		out[k] = v.text
	}
	return out
}

func writeJSON(g *graph) string {
	doc := jsonGraph{
		Name:     g.name,
		Directed: g.directed,
		Strict:   g.strict,
		Subgraph: g.countSubgraphs(),
	}

	ids := make(map[*node]int, len(g.nodes))
	for i, n := range g.nodes {
		ids[n] = i
		doc.Objects = append(doc.Objects, jsonObject{ID: i, Name: n.name, Attrs: plainAttrs(n.attrs)})
	}
	for i, e := range g.edges {
		doc.Edges = append(doc.Edges, jsonEdge{ID: i, Tail: ids[e.tail], Head: ids[e.head], Attrs: plainAttrs(e.attrs)})
	}

	data, _ := json.MarshalIndent(doc, "", "  ")
	return string(data) + "\n"
}

func writeSVG(g *graph) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\" standalone=\"no\"?>\n")
	fmt.Fprintf(&b, "<!-- Generated by graphviz version %s -->\n", Version)
	fmt.Fprintf(&b, "<svg xmlns=\"http://www.w3.org/2000/svg\">\n<title>%s</title>\n", g.name)
	for _, n := range g.nodes {
		fmt.Fprintf(&b, "<g class=\"node\"><title>%s</title></g>\n", n.name)
	}
	b.WriteString("</svg>\n")
	return b.String()
}

func writePlain(g *graph) string {
	var b strings.Builder
	b.WriteString("graph 1 0 0\n")
	for _, n := range g.nodes {
		fmt.Fprintf(&b, "node %s 0 0 0.75 0.5 %s solid ellipse black lightgrey\n", n.name, n.name)
	}
	for _, e := range g.edges {
		fmt.Fprintf(&b, "edge %s %s 0 solid black\n", e.tail.name, e.head.name)
	}
	b.WriteString("stop\n")
	return b.String()
}
