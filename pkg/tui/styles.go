package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pipeloom/pipeloom/pkg/pipeline"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#787c99"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true)
	borderStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3b4261")).
			Padding(0, 1)
)

func styleForStatus(st pipeline.StepStatus) lipgloss.Style {
	switch st {
	case pipeline.StatusRunning:
		return runningStyle
	case pipeline.StatusCompleted:
		return doneStyle
	case pipeline.StatusError:
		return failStyle
	default:
		return pendingStyle
	}
}

func iconForStatus(st pipeline.StepStatus) string {
	switch st {
	case pipeline.StatusCompleted:
		return "●"
	case pipeline.StatusError:
		return "✖"
	case pipeline.StatusRunning:
		return "◐"
	default:
		return "○"
	}
}
