package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/goviz/cache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the render result cache",
	}
	cmd.AddCommand(newCacheClearCmd(), newCachePathCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached results from the file cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := appFrom(cmd).cfg.CacheDir()
			c, err := cache.NewFileCache(dir)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			n, err := c.Clear()
			if err != nil {
				return err
			}
			printSuccess(cmd.ErrOrStderr(), "Cleared %d cached results", n)
			printDetail(cmd.ErrOrStderr(), "Directory: %s", dir)
			return nil
		},
	}
}

func newCachePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the file cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), appFrom(cmd).cfg.CacheDir())
			return nil
		},
	}
}
