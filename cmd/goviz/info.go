package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/goviz/viz"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the Graphviz engine version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, v *viz.Viz) error {
				version, err := v.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			})
		},
	}
}

func newFormatsCmd() *cobra.Command {
	return newListCmd("formats", "List supported output formats", (*viz.Viz).Formats)
}

func newEnginesCmd() *cobra.Command {
	return newListCmd("engines", "List supported layout engines", (*viz.Viz).Engines)
}

func newListCmd(use, short string, list func(*viz.Viz, context.Context) ([]string, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, v *viz.Viz) error {
				names, err := list(v, ctx)
				if err != nil {
					return err
				}
				if oneLine, _ := cmd.Flags().GetBool("one-line"); oneLine {
					fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, " "))
					return nil
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
	cmd.Flags().Bool("one-line", false, "Print names space separated on one line")
	return cmd
}

// withSession runs fn against a freshly opened engine.
func withSession(cmd *cobra.Command, fn func(context.Context, *viz.Viz) error) error {
	ctx := cmd.Context()
	s, err := appFrom(cmd).newSession(ctx)
	if err != nil {
		return err
	}
	err = fn(ctx, s.viz)
	if closeErr := s.Close(); err == nil {
		err = closeErr
	}
	return err
}
