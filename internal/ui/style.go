// Package ui holds terminal styling shared by the CLI.
package ui

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/rzbill/forgeq/internal/feature"
)

var (
	Bold       = color.New(color.Bold).SprintFunc()
	Dim        = color.New(color.Faint).SprintFunc()
	Cyan       = color.New(color.FgCyan).SprintFunc()
	Green      = color.New(color.FgGreen).SprintFunc()
	Red        = color.New(color.FgRed).SprintFunc()
	Yellow     = color.New(color.FgYellow).SprintFunc()
	BoldGreen  = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed    = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow = color.New(color.Bold, color.FgYellow).SprintFunc()
)

// Status renders a derived status in its color.
func Status(s feature.Status) string {
	switch s {
	case feature.StatusDone:
		return Green(string(s))
	case feature.StatusBlocked:
		return Red(string(s))
	case feature.StatusInProgress:
		return Yellow(string(s))
	default:
		return Cyan(string(s))
	}
}

// Percent renders a completion percentage, green once everything passes.
func Percent(p float64) string {
	s := fmt.Sprintf("%.1f%%", p)
	if p >= 100 {
		return BoldGreen(s)
	}
	return Bold(s)
}
