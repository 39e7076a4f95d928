package main

import "github.com/charmbracelet/lipgloss"

var (
	// StatusOK renders passing documents.
	StatusOK = lipgloss.NewStyle().Foreground(lipgloss.Color("42")) // green

	// StatusWarn renders advisory findings.
	StatusWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange

	// StatusError renders failures.
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red

	// Muted renders secondary details such as timings and trigger summaries.
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray

	// Bold renders document names.
	Bold = lipgloss.NewStyle().Bold(true)
)

const (
	symbolOK    = "✓"
	symbolWarn  = "⚠"
	symbolError = "✗"
)
