package native

import (
	"context"
)

// Pointer is an engine-side handle. Zero is null.
type Pointer uint32

// Null is the null handle.
const Null Pointer = 0

// Plugin kinds understood by PluginList.
const (
	PluginLayout = "layout"
	PluginDevice = "device"
)

// FileSystem is the engine's view of files. Paths are slash separated and
// rooted at "/".
type FileSystem interface {
	Join(elem ...string) string
	Dir(path string) string
	MkdirAll(path string) error
	Write(path string, data []byte) error
	Exists(path string) (bool, error)
	Remove(path string) error
}

// Module is the set of engine entry points used by the renderer.
type Module interface {
	// Memory.
	Malloc(ctx context.Context, size uint32) (Pointer, error)
	Free(ctx context.Context, p Pointer) error
	WriteString(ctx context.Context, p Pointer, s string) error
	ReadString(ctx context.Context, p Pointer) (string, error)
	ReadPointer(ctx context.Context, array Pointer, index int) (Pointer, error)

	// Introspection.
	Version(ctx context.Context) (Pointer, error)
	PluginList(ctx context.Context, kind string) (Pointer, error)

	// Graph construction.
	CreateGraph(ctx context.Context, name string, directed, strict bool) (Pointer, error)
	ReadOneGraph(ctx context.Context, src Pointer) (Pointer, error)
	AddNode(ctx context.Context, g Pointer, name string) (Pointer, error)
	AddEdge(ctx context.Context, g Pointer, tail, head string) (Pointer, error)
	AddSubgraph(ctx context.Context, g Pointer, name string) (Pointer, error)

	// Attributes. Values are handles obtained from StringDup or
	// StringDupHTML on the same graph.
	SetDefaultGraphAttribute(ctx context.Context, g Pointer, name string, value Pointer) error
	SetDefaultNodeAttribute(ctx context.Context, g Pointer, name string, value Pointer) error
	SetDefaultEdgeAttribute(ctx context.Context, g Pointer, name string, value Pointer) error
	SetAttribute(ctx context.Context, obj Pointer, name string, value Pointer) error

	// Reference counted strings.
	StringDup(ctx context.Context, g Pointer, s string) (Pointer, error)
	StringDupHTML(ctx context.Context, g Pointer, s string) (Pointer, error)
	StringFree(ctx context.Context, g Pointer, s Pointer) error

	// Global render flags.
	SetYInvert(ctx context.Context, on bool) error
	SetReduce(ctx context.Context, on bool) error

	// Layout and rendering.
	CreateContext(ctx context.Context) (Pointer, error)
	ResetErrors(ctx context.Context) error
	Layout(ctx context.Context, c, g Pointer, engine string) (int, error)
	Render(ctx context.Context, c, g Pointer, format string) (Pointer, error)
	FreeLayout(ctx context.Context, c, g Pointer) error
	FreeGraph(ctx context.Context, g Pointer) error
	FreeContext(ctx context.Context, c Pointer) error

	// FS returns the engine's filesystem.
	FS() FileSystem

	// Reset starts a new call scope. It clears both diagnostic channels,
	// drops default attributes set engine-wide (against the null graph) and
	// brings an aborted instance back to a usable state.
	Reset(ctx context.Context) error
	// Diagnostics returns the raw sentinel tokens and stderr lines
	// collected since the last Reset.
	Diagnostics() (tokens, lines []string)

	Close(ctx context.Context) error
}
