package viz

import (
	"errors"
	"fmt"

	"github.com/caffeineduck/goviz/diag"
)

var (
	// ErrClosed is returned by calls on a closed Viz.
	ErrClosed = errors.New("viz closed")
	// ErrStringDup is returned when the engine cannot duplicate an
	// attribute string.
	ErrStringDup = errors.New("couldn't duplicate string")
	// ErrInvalidInput is returned for a nil or unknown Input.
	ErrInvalidInput = errors.New("input must be text or a graph")
)

// RenderError is a failed render surfaced as an error.
type RenderError struct {
	Diagnostics []diag.Message
}

func (e *RenderError) Error() string {
	if m, ok := diag.FirstError(e.Diagnostics); ok {
		return m.Message
	}
	return "render failed"
}

// ImageError reports an invalid image description.
type ImageError struct {
	Index  int
	Name   string
	Reason string
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("invalid image description %d (%q): %s", e.Index, e.Name, e.Reason)
}
