package graphviz

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"

	gv "github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// candidateFormats are the text formats of a stock Graphviz build.
var candidateFormats = []string{
	"canon", "cmap", "cmapx", "cmapx_np", "dot", "dot_json", "eps", "fig",
	"gv", "imap", "imap_np", "ismap", "json", "json0", "pic", "plain",
	"plain-ext", "pov", "ps", "ps2", "svg", "svg_inline", "tk", "xdot",
	"xdot1.2", "xdot1.4", "xdot_json",
}

var layoutEngines = []gv.Layout{
	gv.CIRCO, gv.DOT, gv.FDP, gv.NEATO, gv.NOP, gv.NOP1, gv.NOP2,
	gv.OSAGE, gv.PATCHWORK, gv.SFDP, gv.TWOPI,
}

var versionPattern = regexp.MustCompile(`Generated by graphviz version (\S+)`)

// probe lays out an empty graph, reads the engine version from the SVG
// generator comment and keeps the candidate formats that produce output.
// The caller holds engineMu.
func (m *Module) probe(ctx context.Context) (version string, err error) {
	g, err := cgraph.ParseBytes([]byte("digraph { }"))
	if err != nil {
		return "", fmt.Errorf("parse probe graph: %w", err)
	}
	defer g.Close()

	if err := m.gvc.Layout(ctx, g, string(gv.DOT)); err != nil {
		return "", fmt.Errorf("lay out probe graph: %w", err)
	}
	defer m.gvc.FreeLayout(ctx, g)

	var buf bytes.Buffer
	if err := m.gvc.RenderData(ctx, g, string(gv.SVG), &buf); err != nil {
		return "", fmt.Errorf("render probe graph: %w", err)
	}
	match := versionPattern.FindSubmatch(buf.Bytes())
	if match == nil {
		return "", errors.New("probe version: no generator comment in svg output")
	}

	for _, f := range m.cfg.formats {
		buf.Reset()
		if err := m.gvc.RenderData(ctx, g, f, &buf); err != nil {
			m.cfg.logger.Debug("format unavailable", "format", f, "err", err)
			continue
		}
		if buf.Len() > 0 {
			m.formats = append(m.formats, f)
		}
	}

	for _, l := range layoutEngines {
		m.layouts = append(m.layouts, string(l))
	}
	return string(match[1]), nil
}
