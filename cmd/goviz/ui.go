package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/caffeineduck/goviz/diag"
)

var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35")
	colorYellow = lipgloss.Color("220")
	colorRed    = lipgloss.Color("167")
	colorGray   = lipgloss.Color("245")
	colorDim    = lipgloss.Color("240")
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleDim     = lipgloss.NewStyle().Foreground(colorDim)
	styleError   = lipgloss.NewStyle().Foreground(colorRed)
	styleWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
)

// printDiagnostics writes one line per message, styled by level.
func printDiagnostics(w io.Writer, msgs []diag.Message) {
	for _, m := range msgs {
		switch m.Level {
		case diag.LevelError:
			fmt.Fprintln(w, styleError.Render(iconError)+" "+styleError.Render("Error:")+" "+m.Message)
		case diag.LevelWarning:
			fmt.Fprintln(w, styleWarning.Render(iconWarning)+" "+styleWarning.Render("Warning:")+" "+m.Message)
		default:
			fmt.Fprintln(w, styleInfo.Render(iconInfo)+" "+m.Message)
		}
	}
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, styleError.Render(iconError)+" "+err.Error())
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleInfo.Render(iconInfo)+" "+fmt.Sprintf(format, args...))
}

func printDetail(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, "  "+styleDim.Render(fmt.Sprintf(format, args...)))
}
