package wasm_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/caffeineduck/goviz/engine/wasm"
	"github.com/caffeineduck/goviz/native"
	"github.com/caffeineduck/goviz/viz"
)

// emptyModule is the smallest valid wasm binary: magic and version only.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestNewInvalidBinary(t *testing.T) {
	_, err := wasm.New(context.Background(), []byte("not wasm"))
	if err == nil || !strings.Contains(err.Error(), "compile wasm module") {
		t.Fatalf("New() error = %v, want compile error", err)
	}
}

func TestNewMissingExports(t *testing.T) {
	_, err := wasm.New(context.Background(), emptyModule, wasm.WithMemoryLimit(wasm.MemoryLimit16MB))
	if !errors.Is(err, wasm.ErrMissingExport) {
		t.Fatalf("New() error = %v, want ErrMissingExport", err)
	}
	if !strings.Contains(err.Error(), "malloc") {
		t.Errorf("New() error = %v, want it to name malloc", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := wasm.Open(context.Background(), t.TempDir()+"/missing.wasm")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Open() error = %v, want os.ErrNotExist", err)
	}
}

// The remaining tests need a real engine build; set GOVIZ_WASM to its path
// (see internal/tools/download). module_test.go covers the marshalling
// against an in-memory guest.
func openEngine(t *testing.T) *wasm.Module {
	t.Helper()
	path := os.Getenv("GOVIZ_WASM")
	if path == "" {
		t.Skip("GOVIZ_WASM not set")
	}
	mod, err := wasm.Open(context.Background(), path, wasm.WithDiskCache(t.TempDir()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return mod
}

func TestEngineRender(t *testing.T) {
	mod := openEngine(t)
	ledger := native.NewLedger(mod)
	v := viz.New(ledger)
	defer v.Close()

	ctx := context.Background()

	out, err := v.RenderString(ctx, viz.Text("digraph { a -> b }"), viz.WithFormat("svg"))
	if err != nil {
		t.Fatalf("RenderString() error = %v", err)
	}
	if !strings.Contains(out, "<svg") {
		t.Errorf("RenderString() = %q, want svg", out)
	}

	res, err := v.Render(ctx, viz.Text("graph {"), viz.WithFormat("svg"))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if res.Status != viz.StatusFailure || len(res.Errors) == 0 {
		t.Errorf("Render(syntax error) = %+v, want failure with errors", res)
	}

	version, err := v.Version(ctx)
	if err != nil || version == "" {
		t.Errorf("Version() = %q, %v", version, err)
	}

	if err := ledger.Check(); err != nil {
		t.Error(err)
	}
}

func TestEngineClose(t *testing.T) {
	mod := openEngine(t)
	ctx := context.Background()

	if err := mod.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := mod.Close(ctx); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := mod.Malloc(ctx, 8); !errors.Is(err, wasm.ErrClosed) {
		t.Errorf("Malloc() after Close error = %v, want ErrClosed", err)
	}
}
