package main

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// newLogger writes timestamped records at or above level.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// logLevel resolves the configured level; verbose forces debug.
func logLevel(name string, verbose bool) (log.Level, error) {
	if verbose {
		return log.DebugLevel, nil
	}
	if name == "" {
		return log.InfoLevel, nil
	}
	return log.ParseLevel(strings.ToLower(name))
}

type ctxKey int

const appKey ctxKey = 0

func withApp(ctx context.Context, a *app) context.Context {
	return context.WithValue(ctx, appKey, a)
}

func appFromContext(ctx context.Context) *app {
	if a, ok := ctx.Value(appKey).(*app); ok {
		return a
	}
	return nil
}
