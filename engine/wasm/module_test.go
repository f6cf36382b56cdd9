package wasm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tetratelabs/wazero/api"

	"github.com/caffeineduck/goviz/diag"
	"github.com/caffeineduck/goviz/native"
	"github.com/caffeineduck/goviz/viz"
)

func newStubModule(t *testing.T) *Module {
	t.Helper()
	m, err := New(context.Background(), stubGuest())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { m.Close(context.Background()) })
	return m
}

func engineDefaults(t *testing.T, m *Module) int32 {
	t.Helper()
	g := m.guest.ExportedGlobal("engine_defaults")
	if g == nil {
		t.Fatal("guest does not export engine_defaults")
	}
	return api.DecodeI32(g.Get())
}

func TestStringRoundTrip(t *testing.T) {
	m := newStubModule(t)
	ctx := context.Background()

	for _, s := range []string{"", "digraph { a -> b }", "ünïcödé"} {
		p, err := m.Malloc(ctx, uint32(len(s)+1))
		if err != nil || p == native.Null {
			t.Fatalf("Malloc() = %d, %v", p, err)
		}
		if err := m.WriteString(ctx, p, s); err != nil {
			t.Fatalf("WriteString(%q) error = %v", s, err)
		}
		got, err := m.ReadString(ctx, p)
		if err != nil {
			t.Fatalf("ReadString() error = %v", err)
		}
		if got != s {
			t.Errorf("ReadString() = %q, want %q", got, s)
		}
		if err := m.Free(ctx, p); err != nil {
			t.Errorf("Free() error = %v", err)
		}
	}
}

func TestStringDupPassesArgument(t *testing.T) {
	m := newStubModule(t)
	ctx := context.Background()

	p, err := m.StringDup(ctx, native.Null, "red")
	if err != nil {
		t.Fatalf("StringDup() error = %v", err)
	}
	got, err := m.ReadString(ctx, p)
	if err != nil || got != "red" {
		t.Errorf("ReadString(dup) = %q, %v, want red", got, err)
	}
}

func TestMemoryBounds(t *testing.T) {
	m := newStubModule(t)
	ctx := context.Background()
	end := native.Pointer(guestMemoryPages * pageSize)

	if _, err := m.ReadString(ctx, end); err == nil {
		t.Error("ReadString(end of memory) error = nil")
	}
	if _, err := m.ReadPointer(ctx, end-2, 0); err == nil {
		t.Error("ReadPointer(straddling end) error = nil")
	}
	if err := m.WriteString(ctx, end-2, "abc"); err == nil {
		t.Error("WriteString(past end) error = nil")
	}
}

func TestOutOfMemory(t *testing.T) {
	m := newStubModule(t)

	_, err := m.StringDup(context.Background(), native.Null, strings.Repeat("x", guestMemoryPages*pageSize))
	if !errors.Is(err, errOutOfMemory) {
		t.Errorf("StringDup(huge) error = %v, want %v", err, errOutOfMemory)
	}
}

func TestPluginListAndVersion(t *testing.T) {
	m := newStubModule(t)
	v := viz.New(m)
	ctx := context.Background()

	engines, err := v.Engines(ctx)
	if err != nil {
		t.Fatalf("Engines() error = %v", err)
	}
	if diff := cmp.Diff([]string{"dot", "neato"}, engines); diff != "" {
		t.Errorf("Engines() mismatch (-want +got):\n%s", diff)
	}

	version, err := v.Version(ctx)
	if err != nil || version != guestVersion {
		t.Errorf("Version() = %q, %v, want %q", version, err, guestVersion)
	}
}

func TestRenderFormats(t *testing.T) {
	m := newStubModule(t)
	v := viz.New(m)

	res, err := v.RenderFormats(context.Background(), viz.Text("digraph { a }"), []string{"svg", "cmapx"})
	if err != nil {
		t.Fatalf("RenderFormats() error = %v", err)
	}
	if res.Status != viz.StatusSuccess {
		t.Fatalf("Status = %q (errors %v)", res.Status, res.Errors)
	}
	if diff := cmp.Diff(map[string]string{"svg": "svg", "cmapx": "cmapx"}, res.Output.Map()); diff != "" {
		t.Errorf("Output mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineMessages(t *testing.T) {
	tests := []struct {
		name string
		src  string
		opts []viz.Option
		want []diag.Message
	}{
		{
			name: "syntax error",
			src:  "!digraph",
			want: []diag.Message{{Message: "syntax error", Level: diag.LevelError}},
		},
		{
			name: "layout failure",
			src:  "digraph { a }",
			opts: []viz.Option{viz.WithEngine("fail")},
			want: []diag.Message{{Message: "layout failed", Level: diag.LevelError}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viz.New(newStubModule(t))

			res, err := v.Render(context.Background(), viz.Text(tt.src), tt.opts...)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if res.Status != viz.StatusFailure {
				t.Errorf("Status = %q, want failure", res.Status)
			}
			if diff := cmp.Diff(tt.want, res.Errors); diff != "" {
				t.Errorf("Errors mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExitMarksAborted(t *testing.T) {
	m := newStubModule(t)
	ctx := context.Background()

	g, err := m.CreateGraph(ctx, "g", true, false)
	if err != nil {
		t.Fatal(err)
	}
	c, err := m.CreateContext(ctx)
	if err != nil {
		t.Fatal(err)
	}

	_, err = m.Layout(ctx, c, g, "exit")
	if !native.IsAbort(err) {
		t.Fatalf("Layout(exit) error = %v, want abort", err)
	}
	if _, err := m.Version(ctx); !errors.Is(err, native.ErrAbort) {
		t.Errorf("Version() after exit error = %v, want %v", err, native.ErrAbort)
	}

	if err := m.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	p, err := m.Version(ctx)
	if err != nil {
		t.Fatalf("Version() after Reset error = %v", err)
	}
	if s, _ := m.ReadString(ctx, p); s != guestVersion {
		t.Errorf("version after Reset = %q, want %q", s, guestVersion)
	}
}

func TestRenderRecoversAfterExit(t *testing.T) {
	v := viz.New(newStubModule(t))
	ctx := context.Background()

	res, err := v.Render(ctx, viz.Text("digraph { a }"), viz.WithEngine("exit"))
	if err != nil {
		t.Fatalf("Render(exit) error = %v", err)
	}
	if res.Status != viz.StatusFailure {
		t.Errorf("Status = %q, want failure", res.Status)
	}

	out, err := v.RenderString(ctx, viz.Text("digraph { a }"), viz.WithFormat("svg"))
	if err != nil {
		t.Fatalf("RenderString() after exit error = %v", err)
	}
	if out != "svg" {
		t.Errorf("RenderString() = %q, want svg", out)
	}
}

func TestResetClearsEngineDefaults(t *testing.T) {
	m := newStubModule(t)
	ctx := context.Background()

	value, err := m.StringDup(ctx, native.Null, "box")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := m.SetDefaultNodeAttribute(ctx, native.Null, "shape", value); err != nil {
			t.Fatal(err)
		}
	}
	g, err := m.CreateGraph(ctx, "g", true, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetDefaultEdgeAttribute(ctx, g, "color", value); err != nil {
		t.Fatal(err)
	}
	if len(m.protos) != 1 {
		t.Errorf("recorded %d engine-wide defaults, want 1", len(m.protos))
	}

	if err := m.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if n := engineDefaults(t, m); n != 1 {
		t.Errorf("engine defaults after Reset = %d, want 1 (two sets, one clear)", n)
	}
	if len(m.protos) != 0 {
		t.Errorf("recorded defaults after Reset = %v", m.protos)
	}
}

func TestOptionDefaultsDoNotLeakBetweenRenders(t *testing.T) {
	m := newStubModule(t)
	v := viz.New(m)
	ctx := context.Background()

	_, err := v.Render(ctx, viz.Text("digraph { a }"),
		viz.WithNodeAttribute("shape", "box"), viz.WithGraphAttribute("rankdir", "LR"))
	if err != nil {
		t.Fatalf("first Render() error = %v", err)
	}
	if n := engineDefaults(t, m); n != 2 {
		t.Fatalf("engine defaults after first render = %d, want 2", n)
	}

	if _, err := v.Render(ctx, viz.Text("digraph { a }")); err != nil {
		t.Fatalf("second Render() error = %v", err)
	}
	if n := engineDefaults(t, m); n != 0 {
		t.Errorf("engine defaults after second render = %d, want 0", n)
	}
}
