package viz

import (
	"io"

	"github.com/charmbracelet/log"
)

// Defaults applied when options leave them empty.
const (
	DefaultEngine = "dot"
	DefaultFormat = "dot"
)

// RenderOptions controls one render call.
type RenderOptions struct {
	Engine          string      `json:"engine,omitempty"`
	Format          string      `json:"format,omitempty"`
	YInvert         bool        `json:"yInvert,omitempty"`
	Reduce          bool        `json:"reduce,omitempty"`
	GraphAttributes Attributes  `json:"graphAttributes,omitempty"`
	NodeAttributes  Attributes  `json:"nodeAttributes,omitempty"`
	EdgeAttributes  Attributes  `json:"edgeAttributes,omitempty"`
	Images          []ImageSize `json:"images,omitempty"`
}

func (o RenderOptions) engine() string {
	if o.Engine == "" {
		return DefaultEngine
	}
	return o.Engine
}

func (o RenderOptions) format() string {
	if o.Format == "" {
		return DefaultFormat
	}
	return o.Format
}

// Option configures a render call.
type Option func(*RenderOptions)

// WithEngine selects the layout engine, e.g. "dot", "neato" or "circo".
func WithEngine(engine string) Option {
	return func(o *RenderOptions) {
		o.Engine = engine
	}
}

// WithFormat selects the output format for Render and RenderString.
func WithFormat(format string) Option {
	return func(o *RenderOptions) {
		o.Format = format
	}
}

// WithYInvert flips y coordinates in the output.
func WithYInvert(on bool) Option {
	return func(o *RenderOptions) {
		o.YInvert = on
	}
}

// WithReduce removes nodes with no edges before layout.
func WithReduce(on bool) Option {
	return func(o *RenderOptions) {
		o.Reduce = on
	}
}

// WithGraphAttribute sets a default graph attribute. value is converted
// with [Attr].
func WithGraphAttribute(name string, value any) Option {
	return func(o *RenderOptions) {
		o.GraphAttributes = setAttr(o.GraphAttributes, name, value)
	}
}

// WithNodeAttribute sets a default node attribute.
func WithNodeAttribute(name string, value any) Option {
	return func(o *RenderOptions) {
		o.NodeAttributes = setAttr(o.NodeAttributes, name, value)
	}
}

// WithEdgeAttribute sets a default edge attribute.
func WithEdgeAttribute(name string, value any) Option {
	return func(o *RenderOptions) {
		o.EdgeAttributes = setAttr(o.EdgeAttributes, name, value)
	}
}

func setAttr(a Attributes, name string, value any) Attributes {
	if a == nil {
		a = Attributes{}
	}
	a[name] = Attr(value)
	return a
}

// WithImages declares images referenced by the graph so their sizes are
// known during layout.
//
// Example:
//
//	viz.WithImages(viz.Image("logo.png", 120, 40))
func WithImages(images ...ImageSize) Option {
	return func(o *RenderOptions) {
		o.Images = append(o.Images, images...)
	}
}

// WithOptions overlays every non-zero field of opts.
func WithOptions(opts RenderOptions) Option {
	return func(o *RenderOptions) {
		if opts.Engine != "" {
			o.Engine = opts.Engine
		}
		if opts.Format != "" {
			o.Format = opts.Format
		}
		o.YInvert = o.YInvert || opts.YInvert
		o.Reduce = o.Reduce || opts.Reduce
		for k, v := range opts.GraphAttributes {
			o.GraphAttributes = setAttr(o.GraphAttributes, k, v)
		}
		for k, v := range opts.NodeAttributes {
			o.NodeAttributes = setAttr(o.NodeAttributes, k, v)
		}
		for k, v := range opts.EdgeAttributes {
			o.EdgeAttributes = setAttr(o.EdgeAttributes, k, v)
		}
		o.Images = append(o.Images, opts.Images...)
	}
}

// InstanceOption configures a Viz at creation time.
type InstanceOption func(*instanceConfig)

type instanceConfig struct {
	logger   *log.Logger
	defaults []Option
}

func defaultInstanceConfig() instanceConfig {
	return instanceConfig{
		logger: log.New(io.Discard),
	}
}

// WithLogger sets the logger for render tracing and teardown problems.
func WithLogger(l *log.Logger) InstanceOption {
	return func(c *instanceConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDefaults applies opts to every render call before the call's own
// options.
func WithDefaults(opts ...Option) InstanceOption {
	return func(c *instanceConfig) {
		c.defaults = append(c.defaults, opts...)
	}
}
