// Package ui centralizes user-facing terminal output.
//
// Workflow progress goes through the standard log package; this package
// covers the styled result lines and warnings. Warnings always go to stderr
// and never affect the process exit code.
package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorDim    = lipgloss.Color("#6b7280")

	successStyle = lipgloss.NewStyle().Foreground(colorGreen)
	errorStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorYellow)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
)

const (
	checkMark = "[OK]"
	crossMark = "[!!]"
	warnMark  = "[??]"
)

// styled reports whether stderr is a terminal worth styling.
var styled = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

func render(style lipgloss.Style, s string) string {
	if !styled {
		return s
	}
	return style.Render(s)
}

// Warnf prints a warning to stderr.
func Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", render(warningStyle, warnMark), fmt.Sprintf(format, args...))
}

// Errorf prints a fatal-error line to stderr.
func Errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", render(errorStyle, crossMark), fmt.Sprintf(format, args...))
}

// Successf prints a success line to stdout.
func Successf(format string, args ...any) {
	fmt.Printf("%s %s\n", render(successStyle, checkMark), fmt.Sprintf(format, args...))
}

// Hintf prints a suggested next command to stderr, dimmed.
func Hintf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s\n", render(dimStyle, fmt.Sprintf(format, args...)))
}

// StatusLine prints a single check result with an indicator.
func StatusLine(name string, ok bool, extra string) {
	mark := render(successStyle, checkMark)
	if !ok {
		mark = render(errorStyle, crossMark)
	}
	if extra != "" {
		fmt.Printf("  %s %s %s\n", mark, name, extra)
		return
	}
	fmt.Printf("  %s %s\n", mark, name)
}
