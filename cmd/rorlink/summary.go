package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	summaryTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("42"))

	summaryLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Width(24)

	summaryBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 2)
)

// renderSummary formats a stage's final counters as a bordered block.
func renderSummary(title string, rows [][2]string) string {
	var b strings.Builder
	b.WriteString(summaryTitleStyle.Render(title))
	for _, row := range rows {
		b.WriteString("\n")
		b.WriteString(summaryLabelStyle.Render(row[0]))
		b.WriteString(fmt.Sprintf("%8s", row[1]))
	}
	return summaryBoxStyle.Render(b.String())
}
