package viz

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/caffeineduck/goviz/diag"
	"github.com/caffeineduck/goviz/native"
)

// renderer runs one render call against an engine.
type renderer struct {
	mod native.Module
	log *log.Logger
}

// scope tracks the engine objects created during a call.
type scope struct {
	mod     native.Module
	graph   native.Pointer
	context native.Pointer
	laidOut bool
	pending native.Pointer
	images  []string
}

func (r *renderer) messages() []diag.Message {
	tokens, lines := r.mod.Diagnostics()
	return nonNil(diag.Parse(tokens, lines))
}

// renderFormats lays the input out once and renders it into each format. Engine
// failures, including fatal exits, are returned as a failed Result; the
// error is reserved for calls that could not be carried out.
func (r *renderer) renderFormats(ctx context.Context, in Input, formats []string, o RenderOptions) (res Result, err error) {
	if err := r.mod.Reset(ctx); err != nil {
		return Result{}, fmt.Errorf("reset engine: %w", err)
	}

	s := &scope{mod: r.mod}
	defer func() {
		aborted := native.IsAbort(err)
		if aborted {
			r.log.Warn("engine aborted", "err", err)
			res, err = failure(r.messages()), nil
		}

		terr := s.teardown(context.WithoutCancel(ctx))
		switch {
		case terr == nil:
		case aborted:
			r.log.Debug("teardown after abort", "err", terr)
		case err != nil:
			r.log.Warn("teardown failed", "err", terr)
		case native.IsAbort(terr):
			r.log.Warn("engine aborted during teardown", "err", terr)
			res = failure(r.messages())
		default:
			res, err = Result{}, fmt.Errorf("teardown: %w", terr)
		}
	}()

	return s.run(ctx, r, in, formats, o)
}

func (s *scope) run(ctx context.Context, r *renderer, in Input, formats []string, o RenderOptions) (Result, error) {
	paths, err := provisionImages(ctx, s.mod.FS(), o.Images)
	s.images = paths
	if err != nil {
		return Result{}, err
	}

	b := &builder{mod: s.mod}
	s.graph, err = b.build(ctx, in, o)
	if err != nil {
		return Result{}, err
	}
	if s.graph == native.Null {
		return failure(r.messages()), nil
	}

	if _, ok := in.(*Graph); ok {
		if err := b.setDefaults(ctx, s.graph, o.GraphAttributes, o.NodeAttributes, o.EdgeAttributes); err != nil {
			return Result{}, err
		}
	}
	if err := s.mod.SetYInvert(ctx, o.YInvert); err != nil {
		return Result{}, err
	}
	if err := s.mod.SetReduce(ctx, o.Reduce); err != nil {
		return Result{}, err
	}

	s.context, err = s.mod.CreateContext(ctx)
	if err != nil {
		return Result{}, err
	}
	if s.context == native.Null {
		return failure(r.messages()), nil
	}
	if err := s.mod.ResetErrors(ctx); err != nil {
		return Result{}, err
	}

	s.laidOut = true
	code, err := s.mod.Layout(ctx, s.context, s.graph, o.engine())
	if err != nil {
		return Result{}, err
	}
	if code != 0 {
		r.log.Debug("layout failed", "engine", o.engine(), "code", code)
		return failure(r.messages()), nil
	}

	out := newOutputs()
	for _, format := range formats {
		text, ok, err := s.render(ctx, format)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			r.log.Debug("render failed", "format", format)
			return failure(r.messages()), nil
		}
		out.set(format, text)
	}

	return Result{Status: StatusSuccess, Output: out, Errors: r.messages()}, nil
}

// render produces one format. ok is false when the engine returned no
// output.
func (s *scope) render(ctx context.Context, format string) (text string, ok bool, err error) {
	s.pending, err = s.mod.Render(ctx, s.context, s.graph, format)
	if err != nil || s.pending == native.Null {
		return "", false, err
	}

	text, err = s.mod.ReadString(ctx, s.pending)
	if err != nil {
		return "", false, err
	}

	p := s.pending
	s.pending = native.Null
	if err := s.mod.Free(ctx, p); err != nil {
		return "", false, err
	}
	return text, true, nil
}

// teardown releases everything the call created, each object once.
func (s *scope) teardown(ctx context.Context) error {
	var errs []error

	if s.laidOut {
		if err := s.mod.FreeLayout(ctx, s.context, s.graph); err != nil {
			errs = append(errs, fmt.Errorf("free layout: %w", err))
		}
		s.laidOut = false
	}
	if s.graph != native.Null {
		if err := s.mod.FreeGraph(ctx, s.graph); err != nil {
			errs = append(errs, fmt.Errorf("free graph: %w", err))
		}
		s.graph = native.Null
	}
	if s.context != native.Null {
		if err := s.mod.FreeContext(ctx, s.context); err != nil {
			errs = append(errs, fmt.Errorf("free context: %w", err))
		}
		s.context = native.Null
	}
	if s.pending != native.Null {
		if err := s.mod.Free(ctx, s.pending); err != nil {
			errs = append(errs, fmt.Errorf("free render buffer: %w", err))
		}
		s.pending = native.Null
	}
	if len(s.images) > 0 {
		if err := removeImages(s.mod.FS(), s.images); err != nil {
			errs = append(errs, fmt.Errorf("remove images: %w", err))
		}
		s.images = nil
	}

	return joinErrors(errs)
}
