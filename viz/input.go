package viz

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Input is a graph to render: either [Text] or [*Graph].
type Input interface {
	input()
}

// Text is DOT source.
type Text string

func (Text) input() {}

// Graph is a structured graph description.
type Graph struct {
	Name            string     `json:"name,omitempty" yaml:"name,omitempty"`
	Directed        *bool      `json:"directed,omitempty" yaml:"directed,omitempty"`
	Strict          bool       `json:"strict,omitempty" yaml:"strict,omitempty"`
	GraphAttributes Attributes `json:"graphAttributes,omitempty" yaml:"graphAttributes,omitempty"`
	NodeAttributes  Attributes `json:"nodeAttributes,omitempty" yaml:"nodeAttributes,omitempty"`
	EdgeAttributes  Attributes `json:"edgeAttributes,omitempty" yaml:"edgeAttributes,omitempty"`
	Nodes           []Node     `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Edges           []Edge     `json:"edges,omitempty" yaml:"edges,omitempty"`
	Subgraphs       []Subgraph `json:"subgraphs,omitempty" yaml:"subgraphs,omitempty"`
}

func (*Graph) input() {}

// IsDirected reports the effective directedness; graphs are directed
// unless stated otherwise.
func (g *Graph) IsDirected() bool {
	return g.Directed == nil || *g.Directed
}

// Subgraph is a nested graph. Its default attributes apply within it.
type Subgraph struct {
	Name            ID         `json:"name,omitempty" yaml:"name,omitempty"`
	GraphAttributes Attributes `json:"graphAttributes,omitempty" yaml:"graphAttributes,omitempty"`
	NodeAttributes  Attributes `json:"nodeAttributes,omitempty" yaml:"nodeAttributes,omitempty"`
	EdgeAttributes  Attributes `json:"edgeAttributes,omitempty" yaml:"edgeAttributes,omitempty"`
	Nodes           []Node     `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Edges           []Edge     `json:"edges,omitempty" yaml:"edges,omitempty"`
	Subgraphs       []Subgraph `json:"subgraphs,omitempty" yaml:"subgraphs,omitempty"`
}

type Node struct {
	Name       ID         `json:"name" yaml:"name"`
	Attributes Attributes `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

type Edge struct {
	Tail       ID         `json:"tail" yaml:"tail"`
	Head       ID         `json:"head" yaml:"head"`
	Attributes Attributes `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// content is the part of a graph the builder walks recursively.
type content struct {
	graphAttributes Attributes
	nodeAttributes  Attributes
	edgeAttributes  Attributes
	nodes           []Node
	edges           []Edge
	subgraphs       []Subgraph
}

func (g *Graph) content() content {
	return content{g.GraphAttributes, g.NodeAttributes, g.EdgeAttributes, g.Nodes, g.Edges, g.Subgraphs}
}

func (s *Subgraph) content() content {
	return content{s.GraphAttributes, s.NodeAttributes, s.EdgeAttributes, s.Nodes, s.Edges, s.Subgraphs}
}

// ID is a node or subgraph name. Numbers decode to their literal text.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	s, err := scalarText(data, true)
	if err != nil {
		return fmt.Errorf("name: %w", err)
	}
	*id = ID(s)
	return nil
}

func (id *ID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: name must be a scalar", node.Line)
	}
	*id = ID(node.Value)
	return nil
}

// Attributes maps attribute names to values.
type Attributes map[string]Value

// Value is an attribute value. HTML values are passed to the engine as
// HTML-like labels rather than plain strings.
type Value struct {
	Text string
	HTML bool
}

// Attr converts a scalar to a plain Value. Values pass through unchanged.
func Attr(v any) Value {
	switch v := v.(type) {
	case Value:
		return v
	case string:
		return Value{Text: v}
	case bool:
		return Value{Text: strconv.FormatBool(v)}
	case float64:
		return Value{Text: strconv.FormatFloat(v, 'f', -1, 64)}
	case float32:
		return Value{Text: strconv.FormatFloat(float64(v), 'f', -1, 32)}
	case fmt.Stringer:
		return Value{Text: v.String()}
	default:
		return Value{Text: fmt.Sprint(v)}
	}
}

// HTML returns an HTML-like label value.
func HTML(s string) Value {
	return Value{Text: s, HTML: true}
}

func (v Value) String() string {
	if v.HTML {
		return "<" + v.Text + ">"
	}
	return v.Text
}

type htmlValue struct {
	HTML *Value `json:"html" yaml:"html"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.HTML {
		return json.Marshal(map[string]string{"html": v.Text})
	}
	return json.Marshal(v.Text)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var h htmlValue
		if err := json.Unmarshal(data, &h); err != nil {
			return err
		}
		if h.HTML == nil {
			return errors.New("attribute object must have an html key")
		}
		*v = Value{Text: h.HTML.Text, HTML: true}
		return nil
	}

	s, err := scalarText(data, true)
	if err != nil {
		return fmt.Errorf("attribute value: %w", err)
	}
	*v = Value{Text: s}
	return nil
}

func (v Value) MarshalYAML() (any, error) {
	if v.HTML {
		return map[string]string{"html": v.Text}, nil
	}
	return v.Text, nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*v = Value{Text: node.Value}
		return nil
	case yaml.MappingNode:
		var h htmlValue
		if err := node.Decode(&h); err != nil {
			return err
		}
		if h.HTML == nil {
			return fmt.Errorf("line %d: attribute mapping must have an html key", node.Line)
		}
		*v = Value{Text: h.HTML.Text, HTML: true}
		return nil
	default:
		return fmt.Errorf("line %d: attribute value must be a scalar or {html: ...}", node.Line)
	}
}

// scalarText returns the text of a JSON string, number or (optionally)
// boolean.
func scalarText(data []byte, allowBool bool) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", errors.New("empty value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	case 't', 'f':
		if !allowBool {
			return "", errors.New("must be a number or string")
		}
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case '{', '[', 'n':
		return "", errors.New("must be a number or string")
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}

// ParseGraphJSON decodes a structured description from JSON.
func ParseGraphJSON(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	return &g, nil
}

// ParseGraphYAML decodes a structured description from YAML.
func ParseGraphYAML(data []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	return &g, nil
}
