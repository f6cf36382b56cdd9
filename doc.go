// Package goviz renders Graphviz graphs from Go through an embedded engine.
//
// # Overview
//
// The engine runs either as a WebAssembly module under wazero or through
// the go-graphviz bindings. Both sit behind the same low-level contract
// ([native.Module]); the [viz] package drives it, marshalling DOT text or
// structured graph descriptions in and rendered output plus diagnostics
// out.
//
// # Basic Usage
//
//	mod, _ := graphviz.New(ctx)
//	v := viz.New(mod)
//	defer v.Close()
//
//	// Single format
//	svg, err := v.RenderString(ctx, viz.Text("digraph { a -> b }"))
//
//	// Several formats from one layout
//	res, _ := v.RenderFormats(ctx, graph, []string{"svg", "json"})
//
// # Engines
//
//	// WebAssembly build, compiled once and cached on disk
//	mod, _ := wasm.Open(ctx, "viz.wasm", wasm.WithDiskCache())
//
// A failed render is a [viz.Result] with status failure and its error
// messages, not a Go error. Go errors are reserved for closed instances,
// invalid input and engine faults.
//
// See the [viz], [engine/wasm], [engine/graphviz] and [cache] packages for
// detailed API documentation.
package goviz
