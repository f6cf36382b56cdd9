package viz

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/caffeineduck/goviz/native"
)

// Viz renders graphs with one engine instance.
type Viz struct {
	mod      native.Module
	log      *log.Logger
	defaults []Option
	mu       sync.Mutex
	closed   bool
}

// New wraps mod. The Viz owns mod and closes it in Close.
func New(mod native.Module, opts ...InstanceOption) *Viz {
	cfg := defaultInstanceConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Viz{
		mod:      mod,
		log:      cfg.logger,
		defaults: cfg.defaults,
	}
}

// Close releases the engine. Further calls return ErrClosed.
func (v *Viz) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	return v.mod.Close(context.Background())
}

// Version returns the Graphviz version of the engine.
func (v *Viz) Version(ctx context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return "", ErrClosed
	}
	p, err := v.mod.Version(ctx)
	if err != nil {
		return "", fmt.Errorf("get version: %w", err)
	}
	if p == native.Null {
		return "", fmt.Errorf("get version: no version string")
	}
	return v.mod.ReadString(ctx, p)
}

// Formats lists the output formats the engine can render.
func (v *Viz) Formats(ctx context.Context) ([]string, error) {
	return v.pluginList(ctx, native.PluginDevice)
}

// Engines lists the layout engines.
func (v *Viz) Engines(ctx context.Context) ([]string, error) {
	return v.pluginList(ctx, native.PluginLayout)
}

func (v *Viz) pluginList(ctx context.Context, kind string) (names []string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, ErrClosed
	}

	list, err := v.mod.PluginList(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("couldn't get plugin list: %s: %w", kind, err)
	}
	if list == native.Null {
		return nil, fmt.Errorf("couldn't get plugin list: %s", kind)
	}
	defer func() {
		if ferr := v.mod.Free(ctx, list); ferr != nil && err == nil {
			names, err = nil, ferr
		}
	}()

	for i := 0; ; i++ {
		p, err := v.mod.ReadPointer(ctx, list, i)
		if err != nil {
			return nil, err
		}
		if p == native.Null {
			break
		}
		name, err := v.mod.ReadString(ctx, p)
		if ferr := v.mod.Free(ctx, p); ferr != nil && err == nil {
			err = ferr
		}
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (v *Viz) options(opts []Option) RenderOptions {
	var o RenderOptions
	for _, opt := range v.defaults {
		opt(&o)
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Render renders input into a single format, "dot" unless WithFormat says
// otherwise.
func (v *Viz) Render(ctx context.Context, in Input, opts ...Option) (SingleResult, error) {
	o := v.options(opts)
	format := o.format()

	res, err := v.renderFormats(ctx, in, []string{format}, o)
	if err != nil {
		return SingleResult{}, err
	}
	if res.Status != StatusSuccess {
		return SingleResult{Status: res.Status, Errors: res.Errors}, nil
	}
	out, _ := res.Output.Get(format)
	return SingleResult{Status: StatusSuccess, Output: out, Errors: res.Errors}, nil
}

// RenderFormats lays input out once and renders it into each format. The
// result holds one entry per distinct format, in request order.
func (v *Viz) RenderFormats(ctx context.Context, in Input, formats []string, opts ...Option) (Result, error) {
	return v.renderFormats(ctx, in, formats, v.options(opts))
}

func (v *Viz) renderFormats(ctx context.Context, in Input, formats []string, o RenderOptions) (Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return Result{}, ErrClosed
	}

	start := time.Now()
	r := &renderer{mod: v.mod, log: v.log}
	res, err := r.renderFormats(ctx, in, formats, o)
	if err != nil {
		v.log.Debug("render error", "engine", o.engine(), "formats", formats, "err", err)
		return res, err
	}
	v.log.Debug("render", "engine", o.engine(), "formats", formats,
		"status", res.Status, "diagnostics", len(res.Errors), "duration", time.Since(start))
	return res, nil
}

// RenderString renders input and returns the output. A failed render is
// returned as a *RenderError.
func (v *Viz) RenderString(ctx context.Context, in Input, opts ...Option) (string, error) {
	res, err := v.Render(ctx, in, opts...)
	if err != nil {
		return "", err
	}
	if res.Status != StatusSuccess {
		return "", &RenderError{Diagnostics: res.Errors}
	}
	return res.Output, nil
}

// RenderJSON renders input in the "json" format and decodes it.
func (v *Viz) RenderJSON(ctx context.Context, in Input, opts ...Option) (any, error) {
	opts = append(opts[:len(opts):len(opts)], WithFormat("json"))
	s, err := v.RenderString(ctx, in, opts...)
	if err != nil {
		return nil, err
	}

	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode json output: %w", err)
	}
	return out, nil
}
