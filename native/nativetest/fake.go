// Package nativetest provides an in-memory native.Module for tests.
//
// The fake understands a small subset of DOT, keeps its objects in an
// arena, reports diagnostics on the same two channels a real engine uses
// and can be scripted to fail at any entry point:
//
//	f := nativetest.New()
//	f.Inject("render svg", nativetest.Fault{Null: true})
//	f.Inject("layout", nativetest.Fault{Abort: true})
package nativetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/caffeineduck/goviz/arena"
	"github.com/caffeineduck/goviz/diag"
	"github.com/caffeineduck/goviz/native"
)

// Fault scripts the behaviour of one entry point. It fires on every call
// whose name (or name and first argument, e.g. "render svg") matches.
type Fault struct {
	// Tokens and Lines are emitted as diagnostics before anything else.
	Tokens []string
	Lines  []string
	// Abort terminates the instance, as exit() would.
	Abort bool
	// Null makes the entry point return a null handle.
	Null bool
	// Err is returned as a hard error.
	Err error
}

type buffer struct{ data []byte }

type list struct{ items []native.Pointer }

type dupString struct {
	owner native.Pointer
	value value
}

type layoutContext struct {
	laidOut map[*graph]bool
}

// GraphSummary describes a graph at the moment it was freed.
type GraphSummary struct {
	Name      string
	Directed  bool
	Strict    bool
	Nodes     []string
	Edges     [][2]string
	Subgraphs int
	DOT       string
}

// Fake is a scripted native.Module.
type Fake struct {
	fs       *MemFS
	objects  *arena.Arena[any]
	children map[*graph][]native.Pointer
	diag     diag.Buffer
	faults   map[string]Fault
	calls    []string
	freed    []GraphSummary
	proto    [3]attrs
	version  native.Pointer
	yInvert  bool
	reduce   bool
	aborted  bool
	closed   bool
	mu       sync.Mutex
}

var _ native.Module = (*Fake)(nil)

// New returns a fake engine with an empty filesystem.
func New() *Fake {
	f := &Fake{
		fs:     NewMemFS(),
		faults: make(map[string]Fault),
	}
	f.revive()
	return f
}

func (f *Fake) revive() {
	f.objects = new(arena.Arena[any])
	f.children = make(map[*graph][]native.Pointer)
	f.proto = [3]attrs{{}, {}, {}}
	f.version = f.put(&buffer{data: append([]byte(Version), 0)})
	f.aborted = false
}

// Inject installs a fault for the named entry point.
func (f *Fake) Inject(op string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = fault
}

// Calls returns the entry points invoked so far, with their text arguments.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount counts invocations of op.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if c == op || strings.HasPrefix(c, op+" ") {
			n++
		}
	}
	return n
}

// Freed returns summaries of every graph released with FreeGraph.
func (f *Fake) Freed() []GraphSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]GraphSummary(nil), f.freed...)
}

// Live returns the number of objects still held, not counting the static
// version string.
func (f *Fake) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects.Len() - 1
}

// Flags reports the last y-invert and reduce settings.
func (f *Fake) Flags() (yInvert, reduce bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.yInvert, f.reduce
}

// MemFS returns the fake's filesystem.
func (f *Fake) MemFS() *MemFS { return f.fs }

func (f *Fake) put(v any) native.Pointer {
	return native.Pointer(f.objects.Put(v))
}

func (f *Fake) enter(op string, args ...string) (Fault, error) {
	call := strings.TrimSpace(op + " " + strings.Join(args, " "))
	f.calls = append(f.calls, call)

	if f.closed {
		return Fault{}, errors.New("module closed")
	}
	if f.aborted {
		return Fault{}, fmt.Errorf("%s after exit: %w", op, native.ErrAbort)
	}

	fault, ok := Fault{}, false
	if len(args) > 0 {
		fault, ok = f.faults[op+" "+args[0]]
	}
	if !ok {
		fault = f.faults[op]
	}

	for _, t := range fault.Tokens {
		f.diag.AppendToken(t)
	}
	for _, l := range fault.Lines {
		fmt.Fprintln(&f.diag, l)
	}

	if fault.Abort {
		f.aborted = true
		return fault, fmt.Errorf("exit(1): %w", native.ErrAbort)
	}
	if fault.Err != nil {
		return fault, fault.Err
	}
	return fault, nil
}

func lookup[T any](f *Fake, p native.Pointer) (T, error) {
	var zero T
	v, err := f.objects.Get(uint32(p))
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("handle %d is a %T, not a %T", p, v, zero)
	}
	return t, nil
}

func (f *Fake) Malloc(ctx context.Context, size uint32) (native.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault, err := f.enter("malloc")
	if err != nil || fault.Null {
		return native.Null, err
	}
	return f.put(&buffer{data: make([]byte, size)}), nil
}

func (f *Fake) Free(ctx context.Context, p native.Pointer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.enter("free"); err != nil {
		return err
	}
	if p == f.version {
		return errors.New("free of static string")
	}
	v, err := f.objects.Get(uint32(p))
	if err != nil {
		return err
	}
	switch v.(type) {
	case *buffer, *list:
	default:
		return fmt.Errorf("free of non-heap handle %d (%T)", p, v)
	}
	_, err = f.objects.Release(uint32(p))
	return err
}

func (f *Fake) WriteString(ctx context.Context, p native.Pointer, s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.enter("write_string"); err != nil {
		return err
	}
	b, err := lookup[*buffer](f, p)
	if err != nil {
		return err
	}
	if len(s)+1 > len(b.data) {
		return fmt.Errorf("write of %d bytes into %d byte buffer", len(s)+1, len(b.data))
	}
	copy(b.data, s)
	b.data[len(s)] = 0
	return nil
}

func (f *Fake) ReadString(ctx context.Context, p native.Pointer) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.enter("read_string"); err != nil {
		return "", err
	}
	b, err := lookup[*buffer](f, p)
	if err != nil {
		return "", err
	}
	if i := slices.Index(b.data, 0); i >= 0 {
		return string(b.data[:i]), nil
	}
	return string(b.data), nil
}

func (f *Fake) ReadPointer(ctx context.Context, array native.Pointer, index int) (native.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.enter("read_pointer"); err != nil {
		return native.Null, err
	}
	l, err := lookup[*list](f, array)
	if err != nil {
		return native.Null, err
	}
	if index < 0 || index > len(l.items) {
		return native.Null, fmt.Errorf("index %d out of bounds", index)
	}
	if index == len(l.items) {
		return native.Null, nil
	}
	return l.items[index], nil
}

func (f *Fake) Version(ctx context.Context) (native.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault, err := f.enter("version")
	if err != nil || fault.Null {
		return native.Null, err
	}
	return f.version, nil
}

func (f *Fake) PluginList(ctx context.Context, kind string) (native.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault, err := f.enter("plugin_list", kind)
	if err != nil || fault.Null {
		return native.Null, err
	}

	var names []string
	switch kind {
	case native.PluginLayout:
		names = Engines
	case native.PluginDevice:
		names = Formats
	default:
		return native.Null, nil
	}

	l := &list{}
	for _, n := range names {
		l.items = append(l.items, f.put(&buffer{data: append([]byte(n), 0)}))
	}
	return f.put(l), nil
}

func (f *Fake) graph(p native.Pointer) (*graph, error) {
	return lookup[*graph](f, p)
}

func (f *Fake) adopt(g *graph, p native.Pointer) native.Pointer {
	f.children[g.root] = append(f.children[g.root], p)
	return p
}

func (f *Fake) CreateGraph(ctx context.Context, name string, directed, strict bool) (native.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault, err := f.enter("create_graph", name)
	if err != nil || fault.Null {
		return native.Null, err
	}
	return f.put(newGraph(name, directed, strict)), nil
}

func (f *Fake) ReadOneGraph(ctx context.Context, src native.Pointer) (native.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault, err := f.enter("read_one_graph")
	if err != nil || fault.Null {
		return native.Null, err
	}
	b, err := lookup[*buffer](f, src)
	if err != nil {
		return native.Null, err
	}
	text := string(b.data)
	if i := strings.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}

	g, perr := parseDOT(text)
	if perr != nil {
		f.diag.AppendError(perr.Error() + "\n")
		return native.Null, nil
	}

	for kind, defaults := range f.proto {
		for k, v := range defaults {
			if _, ok := g.defaults[kind][k]; !ok {
				g.defaults[kind][k] = v
			}
		}
	}
	return f.put(g), nil
}

func (f *Fake) AddNode(ctx context.Context, g native.Pointer, name string) (native.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault, err := f.enter("add_node", name)
	if err != nil || fault.Null {
		return native.Null, err
	}
	gr, err := f.graph(g)
	if err != nil {
		return native.Null, err
	}
	return f.adopt(gr, f.put(gr.node(name))), nil
}

func (f *Fake) AddEdge(ctx context.Context, g native.Pointer, tail, head string) (native.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault, err := f.enter("add_edge", tail, head)
	if err != nil || fault.Null {
		return native.Null, err
	}
	gr, err := f.graph(g)
	if err != nil {
		return native.Null, err
	}
	return f.adopt(gr, f.put(gr.edge(tail, head))), nil
}

func (f *Fake) AddSubgraph(ctx context.Context, g native.Pointer, name string) (native.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault, err := f.enter("add_subgraph", name)
	if err != nil || fault.Null {
		return native.Null, err
	}
	gr, err := f.graph(g)
	if err != nil {
		return native.Null, err
	}
	return f.adopt(gr, f.put(gr.subgraph(name))), nil
}

func (f *Fake) stringValue(p native.Pointer) (value, error) {
	s, err := lookup[*dupString](f, p)
	if err != nil {
		return value{}, err
	}
	return s.value, nil
}

func (f *Fake) setDefault(op string, kind int, g native.Pointer, name string, v native.Pointer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.enter(op, name); err != nil {
		return err
	}
	val, err := f.stringValue(v)
	if err != nil {
		return err
	}
	if g == native.Null {
		f.proto[kind][name] = val
		return nil
	}
	gr, err := f.graph(g)
	if err != nil {
		return err
	}
	gr.defaults[kind][name] = val
	return nil
}

func (f *Fake) SetDefaultGraphAttribute(ctx context.Context, g native.Pointer, name string, v native.Pointer) error {
	return f.setDefault("set_default_graph_attribute", kindGraph, g, name, v)
}

func (f *Fake) SetDefaultNodeAttribute(ctx context.Context, g native.Pointer, name string, v native.Pointer) error {
	return f.setDefault("set_default_node_attribute", kindNode, g, name, v)
}

func (f *Fake) SetDefaultEdgeAttribute(ctx context.Context, g native.Pointer, name string, v native.Pointer) error {
	return f.setDefault("set_default_edge_attribute", kindEdge, g, name, v)
}

func (f *Fake) SetAttribute(ctx context.Context, obj native.Pointer, name string, v native.Pointer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.enter("set_attribute", name); err != nil {
		return err
	}
	val, err := f.stringValue(v)
	if err != nil {
		return err
	}
	o, err := f.objects.Get(uint32(obj))
	if err != nil {
		return err
	}
	switch o := o.(type) {
	case *graph:
		o.attrs[name] = val
	case *node:
		o.attrs[name] = val
	case *edge:
		o.attrs[name] = val
	default:
		return fmt.Errorf("set_attribute on %T", o)
	}
	return nil
}

func (f *Fake) dup(op string, g native.Pointer, s string, html bool) (native.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault, err := f.enter(op, s)
	if err != nil || fault.Null {
		return native.Null, err
	}
	if g != native.Null {
		if _, err := f.graph(g); err != nil {
			return native.Null, err
		}
	}
	return f.put(&dupString{owner: g, value: value{text: s, html: html}}), nil
}

func (f *Fake) StringDup(ctx context.Context, g native.Pointer, s string) (native.Pointer, error) {
	return f.dup("string_dup", g, s, false)
}

func (f *Fake) StringDupHTML(ctx context.Context, g native.Pointer, s string) (native.Pointer, error) {
	return f.dup("string_dup_html", g, s, true)
}

func (f *Fake) StringFree(ctx context.Context, g native.Pointer, p native.Pointer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.enter("string_free"); err != nil {
		return err
	}
	s, err := lookup[*dupString](f, p)
	if err != nil {
		return err
	}
	if s.owner != g {
		return fmt.Errorf("string %d freed against graph %d, owned by %d", p, g, s.owner)
	}
	_, err = f.objects.Release(uint32(p))
	return err
}

func (f *Fake) SetYInvert(ctx context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.enter("set_y_invert"); err != nil {
		return err
	}
	f.yInvert = on
	return nil
}

func (f *Fake) SetReduce(ctx context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.enter("set_reduce"); err != nil {
		return err
	}
	f.reduce = on
	return nil
}

func (f *Fake) CreateContext(ctx context.Context) (native.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault, err := f.enter("create_context")
	if err != nil || fault.Null {
		return native.Null, err
	}
	return f.put(&layoutContext{laidOut: make(map[*graph]bool)}), nil
}

func (f *Fake) ResetErrors(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, err := f.enter("reset_errors")
	return err
}

func (f *Fake) Layout(ctx context.Context, c, g native.Pointer, engine string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault, err := f.enter("layout", engine)
	if err != nil {
		return -1, err
	}
	if fault.Null {
		return 1, nil
	}
	lc, err := lookup[*layoutContext](f, c)
	if err != nil {
		return -1, err
	}
	gr, err := f.graph(g)
	if err != nil {
		return -1, err
	}

	if !slices.Contains(Engines, engine) {
		f.diag.AppendError(fmt.Sprintf("Layout type: \"%s\" not recognized. Use one of: %s\n",
			engine, strings.Join(Engines, " ")))
		return -1, nil
	}

	for _, n := range gr.nodes {
		img, ok := n.attrs["image"]
		if !ok {
			img, ok = gr.defaults[kindNode]["image"]
		}
		if !ok {
			continue
		}
		exists, _ := f.fs.Exists(f.fs.Join("/", img.text))
		if !exists {
			fmt.Fprintf(&f.diag, "Warning: No such file or directory while opening %s\n", img.text)
		}
	}

	lc.laidOut[gr] = true
	return 0, nil
}

func (f *Fake) Render(ctx context.Context, c, g native.Pointer, format string) (native.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault, err := f.enter("render", format)
	if err != nil || fault.Null {
		return native.Null, err
	}
	lc, err := lookup[*layoutContext](f, c)
	if err != nil {
		return native.Null, err
	}
	gr, err := f.graph(g)
	if err != nil {
		return native.Null, err
	}

	if !lc.laidOut[gr] {
		f.diag.AppendError("Layout was not done\n")
		return native.Null, nil
	}
	if !slices.Contains(Formats, format) {
		f.diag.AppendError(fmt.Sprintf("Format: \"%s\" not recognized. Use one of: %s\n",
			format, strings.Join(Formats, " ")))
		return native.Null, nil
	}

	return f.put(&buffer{data: append([]byte(render(gr, format)), 0)}), nil
}

func (f *Fake) FreeLayout(ctx context.Context, c, g native.Pointer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.enter("free_layout"); err != nil {
		return err
	}
	lc, err := lookup[*layoutContext](f, c)
	if err != nil {
		return err
	}
	gr, err := f.graph(g)
	if err != nil {
		return err
	}
	delete(lc.laidOut, gr)
	return nil
}

func (f *Fake) FreeGraph(ctx context.Context, g native.Pointer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.enter("free_graph"); err != nil {
		return err
	}
	gr, err := f.graph(g)
	if err != nil {
		return err
	}
	if gr.root != gr {
		return fmt.Errorf("free_graph on subgraph %d", g)
	}

	for _, child := range f.children[gr] {
		if _, err := f.objects.Release(uint32(child)); err != nil {
			return err
		}
	}
	delete(f.children, gr)
	if _, err := f.objects.Release(uint32(g)); err != nil {
		return err
	}

	f.freed = append(f.freed, summarize(gr))
	return nil
}

func summarize(g *graph) GraphSummary {
	s := GraphSummary{
		Name:      g.name,
		Directed:  g.directed,
		Strict:    g.strict,
		Subgraphs: g.countSubgraphs(),
		DOT:       writeDOT(g),
	}
	for _, n := range g.nodes {
		s.Nodes = append(s.Nodes, n.name)
	}
	for _, e := range g.edges {
		s.Edges = append(s.Edges, [2]string{e.tail.name, e.head.name})
	}
	return s
}

func (f *Fake) FreeContext(ctx context.Context, c native.Pointer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.enter("free_context"); err != nil {
		return err
	}
	if _, err := lookup[*layoutContext](f, c); err != nil {
		return err
	}
	_, err := f.objects.Release(uint32(c))
	return err
}

func (f *Fake) FS() native.FileSystem { return f.fs }

func (f *Fake) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, "reset")
	if f.closed {
		return errors.New("module closed")
	}
	f.diag.Reset()
	if f.aborted {
		f.revive()
	}
	f.proto = [3]attrs{{}, {}, {}}
	return nil
}

func (f *Fake) Diagnostics() (tokens, lines []string) {
	return f.diag.Tokens(), f.diag.Lines()
}

func (f *Fake) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
