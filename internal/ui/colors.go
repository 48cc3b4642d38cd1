package ui

import "github.com/charmbracelet/lipgloss"

// Semantic colors, plain ANSI codes for broad terminal compatibility.
const (
	ColorSuccess lipgloss.Color = "2" // green
	ColorError   lipgloss.Color = "1" // red
	ColorWarning lipgloss.Color = "3" // yellow
	ColorInfo    lipgloss.Color = "6" // cyan
)

// Text colors for content hierarchy.
const (
	ColorPrimary   lipgloss.Color = "7" // white/default
	ColorSecondary lipgloss.Color = "4" // blue
	ColorMuted     lipgloss.Color = "8" // gray (bright black)
)
