package viz

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/caffeineduck/goviz/diag"
)

// Status is the outcome of a render.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Outputs maps formats to rendered text in the order they were first
// requested.
type Outputs struct {
	order []string
	data  map[string]string
}

func newOutputs() *Outputs {
	return &Outputs{data: make(map[string]string)}
}

func (o *Outputs) set(format, text string) {
	if _, ok := o.data[format]; !ok {
		o.order = append(o.order, format)
	}
	o.data[format] = text
}

// Get returns the output for format.
func (o *Outputs) Get(format string) (string, bool) {
	if o == nil {
		return "", false
	}
	s, ok := o.data[format]
	return s, ok
}

// Formats returns the formats in request order.
func (o *Outputs) Formats() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.order...)
}

func (o *Outputs) Len() int {
	if o == nil {
		return 0
	}
	return len(o.order)
}

// Map returns a copy of the outputs as a plain map.
func (o *Outputs) Map() map[string]string {
	out := make(map[string]string, o.Len())
	if o != nil {
		for k, v := range o.data {
			out[k] = v
		}
	}
	return out
}

// MarshalJSON encodes the outputs as an object with keys in request order.
func (o *Outputs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.Formats() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(o.data[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Outputs) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("outputs: expected object, got %v", tok)
	}
	o.order = nil
	o.data = make(map[string]string)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		format, ok := tok.(string)
		if !ok {
			return fmt.Errorf("outputs: unexpected key %v", tok)
		}
		var text string
		if err := dec.Decode(&text); err != nil {
			return fmt.Errorf("outputs: %s: %w", format, err)
		}
		o.set(format, text)
	}
	_, err = dec.Token()
	return err
}

// Result is the outcome of RenderFormats. Output is nil on failure.
type Result struct {
	Status Status         `json:"status"`
	Output *Outputs       `json:"output,omitempty"`
	Errors []diag.Message `json:"errors"`
}

// SingleResult is the outcome of Render.
type SingleResult struct {
	Status Status         `json:"status"`
	Output string         `json:"output,omitempty"`
	Errors []diag.Message `json:"errors"`
}

func failure(msgs []diag.Message) Result {
	return Result{Status: StatusFailure, Errors: nonNil(msgs)}
}

func nonNil(msgs []diag.Message) []diag.Message {
	if msgs == nil {
		return []diag.Message{}
	}
	return msgs
}
