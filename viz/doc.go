// Package viz renders graphs through a Graphviz engine that lives behind
// the [native.Module] boundary.
//
// # Overview
//
// A [Viz] wraps one engine instance. Each render call resets the engine's
// diagnostics, writes placeholder images, builds the graph, lays it out
// once and renders it into every requested format. Whatever happens, every
// engine object created during the call is released before it returns.
//
// # Basic Usage
//
//	mod, err := graphviz.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	v := viz.New(mod)
//	defer v.Close()
//
//	svg, err := v.RenderString(ctx, viz.Text("digraph { a -> b }"), viz.WithFormat("svg"))
//
// # Inputs
//
// An [Input] is either DOT source ([Text]) or a structured description
// ([*Graph]):
//
//	g := &viz.Graph{
//	    NodeAttributes: viz.Attributes{"shape": viz.Attr("box")},
//	    Edges: []viz.Edge{{Tail: "a", Head: "b"}},
//	}
//	res, err := v.RenderFormats(ctx, g, []string{"svg", "json"})
//
// # Results and Errors
//
// Problems with the graph itself (syntax errors, unknown layout engines or
// formats, fatal engine exits) are reported in a [Result] with status
// [StatusFailure] and the engine's diagnostics. A non-nil error means the
// call could not be carried out at all: an invalid image description, a
// string the engine could not duplicate or a broken engine instance.
// [Viz.RenderString] and [Viz.RenderJSON] turn failures into a
// [*RenderError].
//
// # Concurrency
//
// Calls on one Viz are serialized. Use separate instances to render in
// parallel.
package viz
