// Package native defines the boundary between goviz and a Graphviz engine.
//
// # Overview
//
// The engine is treated as foreign: it lives in a sandboxed module, owns
// its own memory and is addressed only through integer handles of type
// [Pointer]. Every engine entry point the renderer needs is a method on
// [Module]. Null results are reported as a zero [Pointer] with a nil error;
// a non-nil error always means a hard failure such as a trap, a fatal exit
// or an unknown handle.
//
// # Ownership
//
// Handles returned by CreateGraph, ReadOneGraph, CreateContext, Render,
// Malloc, StringDup and PluginList are owned by the caller and must be
// released with the matching FreeGraph, FreeContext, Free or StringFree
// call. Node, edge and subgraph handles belong to their graph. The string
// returned by Version is static.
//
// [Ledger] wraps a Module and counts what is still owned, which is how the
// release discipline is verified in tests.
//
// # Implementations
//
// See [github.com/caffeineduck/goviz/engine/graphviz] and
// [github.com/caffeineduck/goviz/engine/wasm].
package native
