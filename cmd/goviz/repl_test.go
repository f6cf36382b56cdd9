package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/caffeineduck/goviz/native/nativetest"
	"github.com/caffeineduck/goviz/viz"
)

func newTestRepl(t *testing.T) (*replState, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	v := viz.New(nativetest.New())
	t.Cleanup(func() { v.Close() })

	var out, errOut bytes.Buffer
	return newReplState(v, &out, &errOut), &out, &errOut
}

func TestReplFeed(t *testing.T) {
	r, _, _ := newTestRepl(t)

	if entry, ok := r.feed("digraph { a }"); !ok || entry != "digraph { a }" {
		t.Errorf("feed(single) = %q, %v", entry, ok)
	}

	if _, ok := r.feed(`digraph {\`); ok {
		t.Fatal("continued line reported complete")
	}
	if _, ok := r.feed(`  a -> b\`); ok {
		t.Fatal("continued line reported complete")
	}
	entry, ok := r.feed("}")
	if !ok {
		t.Fatal("final line reported incomplete")
	}
	if want := "digraph {\n  a -> b\n}"; entry != want {
		t.Errorf("entry = %q, want %q", entry, want)
	}

	r.feed(`digraph {\`)
	r.cancel()
	if entry, ok := r.feed("x"); !ok || entry != "x" {
		t.Errorf("feed after cancel = %q, %v", entry, ok)
	}
}

func TestReplEval(t *testing.T) {
	ctx := context.Background()

	t.Run("render", func(t *testing.T) {
		r, out, _ := newTestRepl(t)
		if r.eval(ctx, "digraph { a -> b }") {
			t.Fatal("render ended the session")
		}
		if !strings.Contains(out.String(), "<title>a</title>") {
			t.Errorf("output = %q, want svg", out.String())
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		r, out, errOut := newTestRepl(t)
		r.eval(ctx, "graph {")
		if out.Len() != 0 {
			t.Errorf("output = %q, want none", out.String())
		}
		if !strings.Contains(errOut.String(), "syntax error") {
			t.Errorf("stderr = %q, want diagnostic", errOut.String())
		}
	})

	t.Run("format command", func(t *testing.T) {
		r, out, errOut := newTestRepl(t)
		r.eval(ctx, ":format dot")
		if r.format != "dot" || !strings.Contains(errOut.String(), "format set to dot") {
			t.Fatalf("format = %q, stderr %q", r.format, errOut.String())
		}
		r.eval(ctx, "digraph { a }")
		if !strings.HasPrefix(out.String(), "digraph {") {
			t.Errorf("output = %q, want dot", out.String())
		}
	})

	t.Run("engines command", func(t *testing.T) {
		r, out, _ := newTestRepl(t)
		r.eval(ctx, ":engines")
		if got, want := out.String(), strings.Join(nativetest.Engines, " ")+"\n"; got != want {
			t.Errorf("output = %q, want %q", got, want)
		}
	})

	t.Run("unknown command", func(t *testing.T) {
		r, _, errOut := newTestRepl(t)
		r.eval(ctx, ":frobnicate")
		if !strings.Contains(errOut.String(), "unknown command :frobnicate") {
			t.Errorf("stderr = %q", errOut.String())
		}
	})

	t.Run("exit", func(t *testing.T) {
		r, _, _ := newTestRepl(t)
		for _, entry := range []string{"exit", " quit "} {
			if !r.eval(ctx, entry) {
				t.Errorf("eval(%q) did not end the session", entry)
			}
		}
		if r.eval(ctx, "   ") {
			t.Error("blank entry ended the session")
		}
	})
}
