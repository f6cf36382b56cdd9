// Package wasm implements [native.Module] by running a viz-style Graphviz
// build directly under wazero.
//
// The guest is a WASI reactor exporting malloc, free and the viz_* entry
// points. It reports engine messages by importing
// env.append_error_message(ptr, len), one token per call, and writes
// everything else to stderr. Both land in the module's diagnostics buffer.
//
//	mod, err := wasm.Open(ctx, "viz.wasm", wasm.WithDiskCache())
//	if err != nil {
//	    return err
//	}
//	v := viz.New(mod)
//	defer v.Close()
//
// When the guest exits (abort, exit or a cancelled context) the instance
// is closed. Further calls fail with [native.ErrAbort] until Reset, which
// instantiates a fresh copy from the compiled module.
//
// Placeholder images live in a [vfs.Root] mounted read-only at the guest's
// "/"; the host writes them through [Module.FS].
package wasm
