package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/caffeineduck/goviz/viz"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set() error = %v", err)
	}
	data, hit, err := c.Get(ctx, "key")
	if err != nil || hit || data != nil {
		t.Errorf("Get() = %q, %v, %v; want miss", data, hit, err)
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	if h1 != Hash([]byte("hello")) {
		t.Error("Hash is not deterministic")
	}
	if h1 == Hash([]byte("world")) {
		t.Error("different inputs hash equal")
	}
	if len(h1) != 64 {
		t.Errorf("len(Hash) = %d, want 64", len(h1))
	}
}

func TestKey(t *testing.T) {
	opts := func(attrs viz.Attributes) viz.RenderOptions {
		return viz.RenderOptions{Engine: "dot", NodeAttributes: attrs}
	}
	attrs := func(pairs ...string) viz.Attributes {
		a := viz.Attributes{}
		for i := 0; i < len(pairs); i += 2 {
			a[pairs[i]] = viz.Attr(pairs[i+1])
		}
		return a
	}

	base, err := Key(viz.Text("digraph { a }"), []string{"svg"}, opts(attrs("color", "red", "shape", "box")))
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	tests := []struct {
		name    string
		in      viz.Input
		formats []string
		opts    viz.RenderOptions
		same    bool
	}{
		{
			name:    "same request",
			in:      viz.Text("digraph { a }"),
			formats: []string{"svg"},
			opts:    opts(attrs("shape", "box", "color", "red")),
			same:    true,
		},
		{
			name:    "different source",
			in:      viz.Text("digraph { b }"),
			formats: []string{"svg"},
			opts:    opts(attrs("color", "red", "shape", "box")),
		},
		{
			name:    "different formats",
			in:      viz.Text("digraph { a }"),
			formats: []string{"svg", "dot"},
			opts:    opts(attrs("color", "red", "shape", "box")),
		},
		{
			name:    "different options",
			in:      viz.Text("digraph { a }"),
			formats: []string{"svg"},
			opts:    opts(attrs("color", "blue", "shape", "box")),
		},
		{
			name:    "structured input",
			in:      &viz.Graph{Nodes: []viz.Node{{Name: "a"}}},
			formats: []string{"svg"},
			opts:    opts(attrs("color", "red", "shape", "box")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Key(tt.in, tt.formats, tt.opts)
			if err != nil {
				t.Fatalf("Key() error = %v", err)
			}
			if (got == base) != tt.same {
				t.Errorf("Key() == base is %v, want %v", got == base, tt.same)
			}
		})
	}
}

func TestKeyInvalidInput(t *testing.T) {
	if _, err := Key(nil, nil, viz.RenderOptions{}); !errors.Is(err, viz.ErrInvalidInput) {
		t.Errorf("Key(nil) error = %v, want ErrInvalidInput", err)
	}
	var g *viz.Graph
	if _, err := Key(g, nil, viz.RenderOptions{}); !errors.Is(err, viz.ErrInvalidInput) {
		t.Errorf("Key(nil graph) error = %v, want ErrInvalidInput", err)
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var got viz.Result
	if err := GetJSON(ctx, c, "k", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("GetJSON() error = %v, want ErrCacheMiss", err)
	}

	want := viz.Result{Status: viz.StatusSuccess}
	if err := SetJSON(ctx, c, "k", want, 0); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}
	if err := GetJSON(ctx, c, "k", &got); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if got.Status != viz.StatusSuccess {
		t.Errorf("Status = %q, want success", got.Status)
	}
}
