// Package graphviz implements [native.Module] on top of
// github.com/goccy/go-graphviz.
//
// # Overview
//
// go-graphviz embeds a Graphviz build compiled to WebAssembly and exposes
// cgraph and gvc as Go types. This package keeps those Go values in an
// [arena.Arena] and hands out integer handles, so the renderer in package
// viz drives it exactly like a raw engine:
//
//	mod, err := graphviz.New(ctx)
//	if err != nil {
//	    return err
//	}
//	v := viz.New(mod)
//	defer v.Close()
//
// # Limitations
//
// go-graphviz runs one WebAssembly instance per process. Every entry
// point takes a package-level lock, and an instance that exits cannot be
// restarted.
//
// Only error-level engine messages are reported; go-graphviz gives no
// access to warnings. The y-invert and reduce flags are recorded but have
// no effect, because the library exposes no setter for them.
//
// Formats are probed once at startup by rendering an empty graph. Binary
// formats are excluded since outputs are read back as text.
package graphviz
