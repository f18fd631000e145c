package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

type styles struct {
	title lipgloss.Style
	name  lipgloss.Style
	num   lipgloss.Style
	err   lipgloss.Style
	dim   lipgloss.Style
	sel   lipgloss.Style
}

// newStyles returns the palette; with color off every style renders plain
// text.
func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain}
	}
	return styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
		name: lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		num:  lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
		err:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
		dim:  lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
		sel: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")),
	}
}

// colorEnabled resolves --color against the terminal state of f.
func colorEnabled(cmd *cobra.Command, f *os.File) bool {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		mode, _ = cmd.PersistentFlags().GetString("color")
	}
	switch mode {
	case "on":
		return true
	case "off":
		return false
	default:
		return isTerminal(f) && os.Getenv("NO_COLOR") == ""
	}
}
