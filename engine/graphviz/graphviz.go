package graphviz

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	gv "github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/goccy/go-graphviz/gvc"

	"github.com/caffeineduck/goviz/arena"
	"github.com/caffeineduck/goviz/diag"
	"github.com/caffeineduck/goviz/native"
	"github.com/caffeineduck/goviz/vfs"
)

// engineMu serializes access to go-graphviz, which drives a single
// WebAssembly instance shared by the whole process.
var engineMu sync.Mutex

// ErrClosed is returned by calls on a closed Module.
var ErrClosed = errors.New("graphviz: module closed")

const (
	kindGraph = iota
	kindNode
	kindEdge
)

func kindTag(kind int) int {
	switch kind {
	case kindNode:
		return int(cgraph.NODE)
	case kindEdge:
		return int(cgraph.EDGE)
	default:
		return int(cgraph.GRAPH)
	}
}

// Module is a native.Module backed by go-graphviz.
type Module struct {
	cfg     config
	gvc     *gvc.Context
	root    *vfs.Root
	ownRoot bool
	objects *arena.Arena[any]
	diag    diag.Buffer
	proto   [3]map[string]value
	version native.Pointer
	layouts []string
	formats []string
	yInvert bool
	reduce  bool
	aborted bool
	closed  bool
}

var _ native.Module = (*Module)(nil)

// New starts the engine and probes its version and output formats.
func New(ctx context.Context, opts ...Option) (*Module, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	root, ownRoot := cfg.root, false
	if root == nil {
		r, err := vfs.NewTemp()
		if err != nil {
			return nil, err
		}
		root, ownRoot = r, true
	}

	engineMu.Lock()
	defer engineMu.Unlock()

	c, err := gvc.New(ctx)
	if err != nil {
		if ownRoot {
			root.Close()
		}
		return nil, fmt.Errorf("create graphviz context: %w", err)
	}

	m := &Module{
		cfg:     cfg,
		gvc:     c,
		root:    root,
		ownRoot: ownRoot,
		objects: new(arena.Arena[any]),
	}
	m.clearProto()

	version, err := m.probe(ctx)
	if err != nil {
		c.Close()
		if ownRoot {
			root.Close()
		}
		return nil, err
	}
	m.version = m.put(&buffer{data: append([]byte(version), 0)})

	cfg.logger.Debug("graphviz engine ready", "version", version, "formats", len(m.formats), "root", root.HostDir())
	return m, nil
}

func (m *Module) clearProto() {
	for i := range m.proto {
		m.proto[i] = make(map[string]value)
	}
}

func (m *Module) check() error {
	if m.closed {
		return ErrClosed
	}
	if m.aborted {
		return fmt.Errorf("graphviz: %w", native.ErrAbort)
	}
	return nil
}

// engineErr classifies an error from go-graphviz. Fatal exits poison the
// module; anything else is an engine message and is reported on the
// diagnostics channel.
func (m *Module) engineErr(err error) error {
	if native.IsAbort(err) {
		m.aborted = true
		m.cfg.logger.Error("graphviz engine aborted", "err", err)
		return err
	}
	m.diag.AppendError(strings.TrimPrefix(err.Error(), "Error: "))
	return nil
}

func (m *Module) Malloc(ctx context.Context, size uint32) (native.Pointer, error) {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return native.Null, err
	}
	return m.put(&buffer{data: make([]byte, size)}), nil
}

func (m *Module) Free(ctx context.Context, p native.Pointer) error {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	if p == m.version {
		return errors.New("free of static string")
	}
	v, err := m.objects.Get(uint32(p))
	if err != nil {
		return err
	}
	switch v.(type) {
	case *buffer, *list:
	default:
		return fmt.Errorf("free of non-heap handle %d (%T)", p, v)
	}
	_, err = m.objects.Release(uint32(p))
	return err
}

func (m *Module) WriteString(ctx context.Context, p native.Pointer, s string) error {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	b, err := lookup[*buffer](m, p)
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

func cstring(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return string(data[:i])
	}
	return string(data)
}

func (m *Module) ReadString(ctx context.Context, p native.Pointer) (string, error) {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return "", err
	}
	b, err := lookup[*buffer](m, p)
	if err != nil {
		return "", err
	}
	return cstring(b.data), nil
}

func (m *Module) ReadPointer(ctx context.Context, array native.Pointer, index int) (native.Pointer, error) {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return native.Null, err
	}
	l, err := lookup[*list](m, array)
	if err != nil {
		return native.Null, err
	}
	switch {
	case index < 0 || index > len(l.items):
		return native.Null, fmt.Errorf("index %d out of bounds", index)
	case index == len(l.items):
		return native.Null, nil
	}
	return l.items[index], nil
}

func (m *Module) Version(ctx context.Context) (native.Pointer, error) {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return native.Null, err
	}
	return m.version, nil
}

func (m *Module) PluginList(ctx context.Context, kind string) (native.Pointer, error) {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return native.Null, err
	}

	var names []string
	switch kind {
	case native.PluginLayout:
		names = m.layouts
	case native.PluginDevice:
		names = m.formats
	default:
		return native.Null, nil
	}

	l := &list{items: make([]native.Pointer, 0, len(names))}
	for _, n := range names {
		l.items = append(l.items, m.put(&buffer{data: append([]byte(n), 0)}))
	}
	return m.put(l), nil
}

func descriptor(directed, strict bool) *cgraph.Desc {
	switch {
	case directed && strict:
		return cgraph.StrictDirected
	case directed:
		return cgraph.Directed
	case strict:
		return cgraph.StrictUnDirected
	default:
		return cgraph.UnDirected
	}
}

func (m *Module) newGraph(g *cgraph.Graph) native.Pointer {
	obj := &graphObj{g: g}
	obj.root = obj
	return m.put(obj)
}

func (m *Module) CreateGraph(ctx context.Context, name string, directed, strict bool) (native.Pointer, error) {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return native.Null, err
	}
	g, err := cgraph.Open(name, descriptor(directed, strict), nil)
	if err != nil {
		return native.Null, m.engineErr(err)
	}
	if g == nil {
		return native.Null, nil
	}
	return m.newGraph(g), nil
}

func (m *Module) ReadOneGraph(ctx context.Context, src native.Pointer) (native.Pointer, error) {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return native.Null, err
	}
	b, err := lookup[*buffer](m, src)
	if err != nil {
		return native.Null, err
	}

	g, err := cgraph.ParseBytes([]byte(cstring(b.data)))
	if err != nil {
		return native.Null, m.engineErr(err)
	}
	if g == nil {
		return native.Null, nil
	}
	if err := m.applyProto(g); err != nil {
		g.Close()
		return native.Null, fmt.Errorf("apply default attributes: %w", err)
	}
	return m.newGraph(g), nil
}

// applyProto installs the engine-wide defaults on a freshly parsed graph
// for every attribute the source did not declare itself.
func (m *Module) applyProto(g *cgraph.Graph) error {
	for kind, defaults := range m.proto {
		if len(defaults) == 0 {
			continue
		}
		declared, err := declaredAttrs(g, kind)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(defaults))
		for name := range defaults {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if declared[name] {
				continue
			}
			if err := setDefault(g, kind, name, defaults[name]); err != nil {
				return err
			}
		}
	}
	return nil
}

func declaredAttrs(g *cgraph.Graph, kind int) (map[string]bool, error) {
	names := make(map[string]bool)
	sym, err := g.NextAttr(kindTag(kind), nil)
	for ; sym != nil && err == nil; sym, err = g.NextAttr(kindTag(kind), sym) {
		names[sym.Name()] = true
	}
	return names, err
}

// setDefault declares name with v as its default. HTML values are held in
// the string pool while the attribute is set, so the engine reuses the
// HTML string instead of interning a plain copy.
func setDefault(g *cgraph.Graph, kind int, name string, v value) error {
	if v.html {
		s, err := g.StrdupHTML(v.text)
		if err != nil {
			return err
		}
		defer g.StrFree(s)
	}
	_, err := g.Attr(kindTag(kind), name, v.text)
	return err
}

func (m *Module) AddNode(ctx context.Context, g native.Pointer, name string) (native.Pointer, error) {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return native.Null, err
	}
	gr, err := lookup[*graphObj](m, g)
	if err != nil {
		return native.Null, err
	}
	n, err := gr.g.CreateNodeByName(name)
	if err != nil {
		return native.Null, m.engineErr(err)
	}
	if n == nil {
		return native.Null, nil
	}
	return m.adopt(gr, m.put(&nodeObj{n: n})), nil
}

func (m *Module) AddEdge(ctx context.Context, g native.Pointer, tail, head string) (native.Pointer, error) {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return native.Null, err
	}
	gr, err := lookup[*graphObj](m, g)
	if err != nil {
		return native.Null, err
	}

	t, err := gr.g.CreateNodeByName(tail)
	if err != nil {
		return native.Null, m.engineErr(err)
	}
	h, err := gr.g.CreateNodeByName(head)
	if err != nil {
		return native.Null, m.engineErr(err)
	}
	if t == nil || h == nil {
		return native.Null, nil
	}

	// cgraph rejects caller-chosen edge IDs, and every edge created with
	// the empty name shares one key, so parallel edges collapse here.
	e, err := gr.g.CreateEdgeByName("", t, h)
	if err != nil {
		return native.Null, m.engineErr(err)
	}
	if e == nil {
		return native.Null, nil
	}
	return m.adopt(gr, m.put(&edgeObj{e: e})), nil
}

func (m *Module) AddSubgraph(ctx context.Context, g native.Pointer, name string) (native.Pointer, error) {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return native.Null, err
	}
	gr, err := lookup[*graphObj](m, g)
	if err != nil {
		return native.Null, err
	}
	s, err := gr.g.CreateSubGraphByName(name)
	if err != nil {
		return native.Null, m.engineErr(err)
	}
	if s == nil {
		return native.Null, nil
	}
	return m.adopt(gr, m.put(&graphObj{g: s, root: gr.root})), nil
}

func (m *Module) setDefaultAttribute(kind int, g native.Pointer, name string, v native.Pointer) error {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	s, err := lookup[*dupString](m, v)
	if err != nil {
		return err
	}
	if g == native.Null {
		m.proto[kind][name] = value{text: s.text, html: s.html}
		return nil
	}
	gr, err := lookup[*graphObj](m, g)
	if err != nil {
		return err
	}
	if _, err := gr.g.Attr(kindTag(kind), name, s.text); err != nil {
		return m.engineErr(err)
	}
	return nil
}

func (m *Module) SetDefaultGraphAttribute(ctx context.Context, g native.Pointer, name string, v native.Pointer) error {
	return m.setDefaultAttribute(kindGraph, g, name, v)
}

func (m *Module) SetDefaultNodeAttribute(ctx context.Context, g native.Pointer, name string, v native.Pointer) error {
	return m.setDefaultAttribute(kindNode, g, name, v)
}

func (m *Module) SetDefaultEdgeAttribute(ctx context.Context, g native.Pointer, name string, v native.Pointer) error {
	return m.setDefaultAttribute(kindEdge, g, name, v)
}

func (m *Module) SetAttribute(ctx context.Context, obj native.Pointer, name string, v native.Pointer) error {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	s, err := lookup[*dupString](m, v)
	if err != nil {
		return err
	}
	o, err := m.objects.Get(uint32(obj))
	if err != nil {
		return err
	}

	switch o := o.(type) {
	case *graphObj:
		err = o.g.SafeSet(name, s.text, "")
	case *nodeObj:
		err = o.n.SafeSet(name, s.text, "")
	case *edgeObj:
		err = o.e.SafeSet(name, s.text, "")
	default:
		return fmt.Errorf("set attribute on %T", o)
	}
	if err != nil {
		return m.engineErr(err)
	}
	return nil
}

func (m *Module) dup(g native.Pointer, s string, html bool) (native.Pointer, error) {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return native.Null, err
	}
	if g == native.Null {
		return m.put(&dupString{text: s, html: html}), nil
	}

	gr, err := lookup[*graphObj](m, g)
	if err != nil {
		return native.Null, err
	}
	var text string
	if html {
		text, err = gr.g.StrdupHTML(s)
	} else {
		text, err = gr.g.Strdup(s)
	}
	if err != nil {
		return native.Null, m.engineErr(err)
	}
	return m.put(&dupString{owner: g, graph: gr.g, text: text, html: html}), nil
}

func (m *Module) StringDup(ctx context.Context, g native.Pointer, s string) (native.Pointer, error) {
	return m.dup(g, s, false)
}

func (m *Module) StringDupHTML(ctx context.Context, g native.Pointer, s string) (native.Pointer, error) {
	return m.dup(g, s, true)
}

func (m *Module) StringFree(ctx context.Context, g native.Pointer, p native.Pointer) error {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	s, err := lookup[*dupString](m, p)
	if err != nil {
		return err
	}
	if s.owner != g {
		return fmt.Errorf("string %d freed against graph %d, owned by %d", p, g, s.owner)
	}
	if _, err := m.objects.Release(uint32(p)); err != nil {
		return err
	}
	if s.graph != nil {
		return s.graph.StrFree(s.text)
	}
	return nil
}

func (m *Module) SetYInvert(ctx context.Context, on bool) error {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	m.yInvert = on
	return nil
}

func (m *Module) SetReduce(ctx context.Context, on bool) error {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	m.reduce = on
	return nil
}

func (m *Module) CreateContext(ctx context.Context) (native.Pointer, error) {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return native.Null, err
	}
	return m.put(&layoutContext{laidOut: make(map[*cgraph.Graph]bool)}), nil
}

// ResetErrors is a no-op: go-graphviz reads the last error fresh for each
// failed call.
func (m *Module) ResetErrors(ctx context.Context) error {
	engineMu.Lock()
	defer engineMu.Unlock()
	return m.check()
}

func (m *Module) layoutTarget(c, g native.Pointer) (*layoutContext, *graphObj, error) {
	lc, err := lookup[*layoutContext](m, c)
	if err != nil {
		return nil, nil, err
	}
	gr, err := lookup[*graphObj](m, g)
	if err != nil {
		return nil, nil, err
	}
	return lc, gr, nil
}

func (m *Module) Layout(ctx context.Context, c, g native.Pointer, engine string) (int, error) {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return -1, err
	}
	lc, gr, err := m.layoutTarget(c, g)
	if err != nil {
		return -1, err
	}

	gv.SetFileSystem(m.root.FS())
	if err := m.gvc.Layout(ctx, gr.g, engine); err != nil {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		return -1, m.engineErr(err)
	}
	lc.laidOut[gr.g] = true
	return 0, nil
}

func (m *Module) Render(ctx context.Context, c, g native.Pointer, format string) (native.Pointer, error) {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return native.Null, err
	}
	lc, gr, err := m.layoutTarget(c, g)
	if err != nil {
		return native.Null, err
	}

	if !lc.laidOut[gr.g] {
		m.diag.AppendError("Layout was not done\n")
		return native.Null, nil
	}
	if !slices.Contains(m.formats, format) {
		m.diag.AppendError(fmt.Sprintf("Format: \"%s\" not recognized. Use one of: %s\n",
			format, strings.Join(m.formats, " ")))
		return native.Null, nil
	}

	var out bytes.Buffer
	gv.SetFileSystem(m.root.FS())
	if err := m.gvc.RenderData(ctx, gr.g, format, &out); err != nil {
		if ctx.Err() != nil {
			return native.Null, ctx.Err()
		}
		return native.Null, m.engineErr(err)
	}
	out.WriteByte(0)
	return m.put(&buffer{data: out.Bytes()}), nil
}

func (m *Module) FreeLayout(ctx context.Context, c, g native.Pointer) error {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	lc, gr, err := m.layoutTarget(c, g)
	if err != nil {
		return err
	}
	delete(lc.laidOut, gr.g)
	return m.gvc.FreeLayout(ctx, gr.g)
}

func (m *Module) FreeGraph(ctx context.Context, g native.Pointer) error {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	gr, err := lookup[*graphObj](m, g)
	if err != nil {
		return err
	}
	if gr.root != gr {
		return fmt.Errorf("free of subgraph %d", g)
	}

	for _, child := range gr.children {
		if _, err := m.objects.Release(uint32(child)); err != nil {
			return err
		}
	}
	gr.children = nil
	if _, err := m.objects.Release(uint32(g)); err != nil {
		return err
	}
	return gr.g.Close()
}

func (m *Module) FreeContext(ctx context.Context, c native.Pointer) error {
	engineMu.Lock()
	defer engineMu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	if _, err := lookup[*layoutContext](m, c); err != nil {
		return err
	}
	_, err := m.objects.Release(uint32(c))
	return err
}

// FS returns the directory the engine reads images from.
func (m *Module) FS() native.FileSystem { return m.root }

// Reset clears diagnostics and engine-wide defaults. An aborted module
// cannot be revived.
func (m *Module) Reset(ctx context.Context) error {
	engineMu.Lock()
	defer engineMu.Unlock()

	m.diag.Reset()
	m.clearProto()
	return m.check()
}

func (m *Module) Diagnostics() (tokens, lines []string) {
	return m.diag.Tokens(), m.diag.Lines()
}

// Flags reports the last y-invert and reduce settings.
func (m *Module) Flags() (yInvert, reduce bool) {
	engineMu.Lock()
	defer engineMu.Unlock()
	return m.yInvert, m.reduce
}

// Close frees the Graphviz context and, if the module created it, the
// image directory.
func (m *Module) Close(ctx context.Context) error {
	engineMu.Lock()
	defer engineMu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if err := m.gvc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close graphviz context: %w", err))
	}
	if m.ownRoot {
		if err := m.root.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
