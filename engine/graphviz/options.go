package graphviz

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/caffeineduck/goviz/vfs"
)

// Option configures a Module.
type Option func(*config)

type config struct {
	logger  *log.Logger
	root    *vfs.Root
	formats []string
}

func defaultConfig() config {
	return config{
		logger:  log.New(io.Discard),
		formats: candidateFormats,
	}
}

// WithLogger sets the logger for engine events.
func WithLogger(l *log.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRoot sets the directory the engine reads images from. The caller
// keeps ownership of root. By default a private temporary root is used.
func WithRoot(root *vfs.Root) Option {
	return func(c *config) {
		c.root = root
	}
}

// WithFormats replaces the list of formats probed at startup.
func WithFormats(formats ...string) Option {
	return func(c *config) {
		c.formats = formats
	}
}
