package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/caffeineduck/goviz/viz"
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Render a graph",
		Long: `Lay out a graph and render it in one or more formats.

Input can be provided via:
  - File argument: goviz render graph.dot
  - Inline flag: goviz render -c 'digraph { a -> b }'
  - Stdin: echo 'digraph { a -> b }' | goviz render

Files ending in .json, .yaml or .yml are graph descriptions; anything else
is DOT. With several -T formats and no -o, the result is printed as JSON.
With -o, a single format is written to that path and several formats are
written to <output>.<format>.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRender,
	}
	addRenderFlags(cmd)
	return cmd
}

func addRenderFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "DOT source to render")
	cmd.Flags().StringP("engine", "K", "", "Layout engine (default from config: dot)")
	cmd.Flags().StringArrayP("format", "T", nil, "Output format (repeatable, default from config: svg)")
	cmd.Flags().StringP("output", "o", "", "Write output to file instead of stdout")
	cmd.Flags().Bool("y-invert", false, "Invert y coordinates in output")
	cmd.Flags().Bool("reduce", false, "Remove nodes with no edges before layout")
	cmd.Flags().Duration("timeout", 0, "Render timeout (0 = none)")
	cmd.Flags().VarP(&attrFlag{}, "graph-attr", "G", "Default graph attribute name=value (repeatable)")
	cmd.Flags().VarP(&attrFlag{}, "node-attr", "N", "Default node attribute name=value (repeatable)")
	cmd.Flags().VarP(&attrFlag{}, "edge-attr", "E", "Default edge attribute name=value (repeatable)")
	cmd.Flags().Var(&imageFlag{}, "image", "Image size name:width:height (repeatable)")
}

// attrFlag collects name=value pairs.
type attrFlag struct {
	attrs viz.Attributes
	raw   []string
}

var _ pflag.Value = (*attrFlag)(nil)

func (f *attrFlag) String() string { return strings.Join(f.raw, ",") }
func (f *attrFlag) Type() string   { return "name=value" }
func (f *attrFlag) Set(v string) error {
	name, value, ok := strings.Cut(v, "=")
	if !ok || name == "" {
		return fmt.Errorf("invalid attribute %q (expected name=value)", v)
	}
	if f.attrs == nil {
		f.attrs = viz.Attributes{}
	}
	f.attrs[name] = viz.Attr(value)
	f.raw = append(f.raw, v)
	return nil
}

// imageFlag collects image sizes.
type imageFlag struct {
	images []viz.ImageSize
	raw    []string
}

var _ pflag.Value = (*imageFlag)(nil)

func (f *imageFlag) String() string { return strings.Join(f.raw, ",") }
func (f *imageFlag) Type() string   { return "name:width:height" }
func (f *imageFlag) Set(v string) error {
	img, err := parseImage(v)
	if err != nil {
		return err
	}
	f.images = append(f.images, img)
	f.raw = append(f.raw, v)
	return nil
}

// parseImage splits from the right so names may contain colons.
func parseImage(spec string) (viz.ImageSize, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 3 {
		return viz.ImageSize{}, fmt.Errorf("invalid image spec %q (expected name:width:height)", spec)
	}
	n := len(parts)
	name := strings.Join(parts[:n-2], ":")
	if name == "" || parts[n-2] == "" || parts[n-1] == "" {
		return viz.ImageSize{}, fmt.Errorf("invalid image spec %q (expected name:width:height)", spec)
	}
	return viz.ImageSize{Name: name, Width: viz.Dimension(parts[n-2]), Height: viz.Dimension(parts[n-1])}, nil
}

// renderOptions builds call options from flags. Flags left unset fall
// through to the session defaults.
func renderOptions(cmd *cobra.Command) []viz.Option {
	flags := cmd.Flags()
	var opts []viz.Option

	if engine, _ := flags.GetString("engine"); engine != "" {
		opts = append(opts, viz.WithEngine(engine))
	}
	if on, _ := flags.GetBool("y-invert"); on {
		opts = append(opts, viz.WithYInvert(true))
	}
	if on, _ := flags.GetBool("reduce"); on {
		opts = append(opts, viz.WithReduce(true))
	}

	o := viz.RenderOptions{
		GraphAttributes: flags.Lookup("graph-attr").Value.(*attrFlag).attrs,
		NodeAttributes:  flags.Lookup("node-attr").Value.(*attrFlag).attrs,
		EdgeAttributes:  flags.Lookup("edge-attr").Value.(*attrFlag).attrs,
		Images:          flags.Lookup("image").Value.(*imageFlag).images,
	}
	return append(opts, viz.WithOptions(o))
}

// readInput resolves the graph from -c, a file argument or stdin. It
// returns nil when there is nothing to read from an interactive terminal.
func readInput(cmd *cobra.Command, args []string) (viz.Input, error) {
	if code, _ := cmd.Flags().GetString("code"); code != "" {
		return viz.Text(code), nil
	}

	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, err
		}
		return parseInput(args[0], data)
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			return nil, nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	return viz.Text(data), nil
}

// parseInput picks the input kind from the file extension.
func parseInput(name string, data []byte) (viz.Input, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		g, err := viz.ParseGraphJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return g, nil
	case ".yaml", ".yml":
		g, err := viz.ParseGraphYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return g, nil
	default:
		return viz.Text(data), nil
	}
}

func runRender(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)

	input, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	if input == nil {
		return cmd.Help()
	}

	formats, _ := cmd.Flags().GetStringArray("format")
	if len(formats) == 0 {
		formats = []string{a.cfg.Render.Format}
	}
	output, _ := cmd.Flags().GetString("output")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s, err := a.newSession(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := s.viz.RenderFormats(ctx, input, formats, renderOptions(cmd)...)
	if closeErr := s.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	printDiagnostics(cmd.ErrOrStderr(), res.Errors)
	if res.Status != viz.StatusSuccess {
		return errFailed
	}
	a.log.Debug("rendered", "formats", formats, "duration", time.Since(start).Round(time.Millisecond))

	return writeResult(cmd, res, formats, output)
}

func writeResult(cmd *cobra.Command, res viz.Result, formats []string, output string) error {
	switch {
	case len(res.Output.Formats()) == 1 && output == "":
		text, _ := res.Output.Get(formats[0])
		_, err := io.WriteString(cmd.OutOrStdout(), text)
		return err

	case output == "":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)

	case len(res.Output.Formats()) == 1:
		text, _ := res.Output.Get(formats[0])
		if err := os.WriteFile(output, []byte(text), 0o644); err != nil {
			return err
		}
		printSuccess(cmd.ErrOrStderr(), "Wrote %s", output)
		return nil

	default:
		for _, format := range res.Output.Formats() {
			text, _ := res.Output.Get(format)
			path := output + "." + format
			if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
				return err
			}
			printSuccess(cmd.ErrOrStderr(), "Wrote %s", path)
		}
		return nil
	}
}
