package native

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Resource kinds tracked by Ledger.
const (
	KindGraph   = "graph"
	KindContext = "context"
	KindLayout  = "layout"
	KindString  = "string"
	KindBuffer  = "buffer"
)

// Count is the number of acquisitions and releases of one resource kind.
type Count struct {
	Created int
	Freed   int
}

// Ledger wraps a Module and records every acquisition and release of an
// owned resource. Releases of resources the ledger never saw, and second
// releases, are recorded as violations rather than forwarded silently.
type Ledger struct {
	Module

	mu         sync.Mutex
	live       map[string]map[uint64]struct{}
	counts     map[string]*Count
	lists      map[Pointer]struct{}
	violations []string
}

// NewLedger wraps m.
func NewLedger(m Module) *Ledger {
	return &Ledger{
		Module: m,
		live:   make(map[string]map[uint64]struct{}),
		counts: make(map[string]*Count),
		lists:  make(map[Pointer]struct{}),
	}
}

func layoutKey(c, g Pointer) uint64 {
	return uint64(c)<<32 | uint64(g)
}

func (l *Ledger) acquire(kind string, key uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.live[kind] == nil {
		l.live[kind] = make(map[uint64]struct{})
	}
	if _, ok := l.live[kind][key]; ok {
		l.violations = append(l.violations, fmt.Sprintf("%s %d acquired twice", kind, key))
	}
	l.live[kind][key] = struct{}{}
	l.count(kind).Created++
}

func (l *Ledger) release(kind string, key uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.live[kind][key]; !ok {
		l.violations = append(l.violations, fmt.Sprintf("%s %d released but not live", kind, key))
		return
	}
	delete(l.live[kind], key)
	l.count(kind).Freed++
}

func (l *Ledger) count(kind string) *Count {
	c, ok := l.counts[kind]
	if !ok {
		c = &Count{}
		l.counts[kind] = c
	}
	return c
}

// Counts returns a snapshot of acquisition counts per kind.
func (l *Ledger) Counts() map[string]Count {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]Count, len(l.counts))
	for k, c := range l.counts {
		out[k] = *c
	}
	return out
}

// Outstanding returns the kinds that still have live resources, with how
// many of each.
func (l *Ledger) Outstanding() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]int)
	for kind, set := range l.live {
		if len(set) > 0 {
			out[kind] = len(set)
		}
	}
	return out
}

// Violations returns release errors in the order they happened.
func (l *Ledger) Violations() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.violations...)
}

// Check returns an error describing leaks and violations, or nil.
func (l *Ledger) Check() error {
	outstanding := l.Outstanding()
	violations := l.Violations()
	if len(outstanding) == 0 && len(violations) == 0 {
		return nil
	}

	kinds := make([]string, 0, len(outstanding))
	for k := range outstanding {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	msg := "resource ledger:"
	for _, k := range kinds {
		msg += fmt.Sprintf(" %d %s leaked;", outstanding[k], k)
	}
	for _, v := range violations {
		msg += " " + v + ";"
	}
	return fmt.Errorf("%s", msg)
}

func (l *Ledger) Malloc(ctx context.Context, size uint32) (Pointer, error) {
	p, err := l.Module.Malloc(ctx, size)
	if err == nil && p != Null {
		l.acquire(KindBuffer, uint64(p))
	}
	return p, err
}

func (l *Ledger) Free(ctx context.Context, p Pointer) error {
	l.mu.Lock()
	delete(l.lists, p)
	l.mu.Unlock()

	l.release(KindBuffer, uint64(p))
	return l.Module.Free(ctx, p)
}

func (l *Ledger) ReadPointer(ctx context.Context, array Pointer, index int) (Pointer, error) {
	p, err := l.Module.ReadPointer(ctx, array, index)
	if err != nil || p == Null {
		return p, err
	}

	l.mu.Lock()
	_, isList := l.lists[array]
	l.mu.Unlock()

	// Entries of a plugin list become owned once they are read.
	if isList {
		l.acquire(KindBuffer, uint64(p))
	}
	return p, nil
}

func (l *Ledger) PluginList(ctx context.Context, kind string) (Pointer, error) {
	p, err := l.Module.PluginList(ctx, kind)
	if err == nil && p != Null {
		l.mu.Lock()
		l.lists[p] = struct{}{}
		l.mu.Unlock()
		l.acquire(KindBuffer, uint64(p))
	}
	return p, err
}

func (l *Ledger) CreateGraph(ctx context.Context, name string, directed, strict bool) (Pointer, error) {
	g, err := l.Module.CreateGraph(ctx, name, directed, strict)
	if err == nil && g != Null {
		l.acquire(KindGraph, uint64(g))
	}
	return g, err
}

func (l *Ledger) ReadOneGraph(ctx context.Context, src Pointer) (Pointer, error) {
	g, err := l.Module.ReadOneGraph(ctx, src)
	if err == nil && g != Null {
		l.acquire(KindGraph, uint64(g))
	}
	return g, err
}

func (l *Ledger) FreeGraph(ctx context.Context, g Pointer) error {
	l.release(KindGraph, uint64(g))
	return l.Module.FreeGraph(ctx, g)
}

func (l *Ledger) StringDup(ctx context.Context, g Pointer, s string) (Pointer, error) {
	p, err := l.Module.StringDup(ctx, g, s)
	if err == nil && p != Null {
		l.acquire(KindString, uint64(p))
	}
	return p, err
}

func (l *Ledger) StringDupHTML(ctx context.Context, g Pointer, s string) (Pointer, error) {
	p, err := l.Module.StringDupHTML(ctx, g, s)
	if err == nil && p != Null {
		l.acquire(KindString, uint64(p))
	}
	return p, err
}

func (l *Ledger) StringFree(ctx context.Context, g Pointer, s Pointer) error {
	l.release(KindString, uint64(s))
	return l.Module.StringFree(ctx, g, s)
}

func (l *Ledger) CreateContext(ctx context.Context) (Pointer, error) {
	c, err := l.Module.CreateContext(ctx)
	if err == nil && c != Null {
		l.acquire(KindContext, uint64(c))
	}
	return c, err
}

func (l *Ledger) FreeContext(ctx context.Context, c Pointer) error {
	l.release(KindContext, uint64(c))
	return l.Module.FreeContext(ctx, c)
}

func (l *Ledger) Layout(ctx context.Context, c, g Pointer, engine string) (int, error) {
	// A layout is owned from the moment it is attempted; the engine may
	// hold partial state even when it fails.
	l.acquire(KindLayout, layoutKey(c, g))
	return l.Module.Layout(ctx, c, g, engine)
}

func (l *Ledger) FreeLayout(ctx context.Context, c, g Pointer) error {
	l.release(KindLayout, layoutKey(c, g))
	return l.Module.FreeLayout(ctx, c, g)
}

func (l *Ledger) Render(ctx context.Context, c, g Pointer, format string) (Pointer, error) {
	p, err := l.Module.Render(ctx, c, g, format)
	if err == nil && p != Null {
		l.acquire(KindBuffer, uint64(p))
	}
	return p, err
}
