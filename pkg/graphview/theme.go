package graphview

import (
	"fmt"

	"github.com/pipeloom/pipeloom/pkg/pipeline"
)

// Theme is the diagram palette.
type Theme struct {
	Name       string
	Background string
	NodeFill   string
	NodeStroke string
	Edge       string
	Text       string
	Caption    string
	Accent     string // active edges and the pulsing halo

	Running   string
	Completed string
	Errored   string
}

// StatusColor returns the ring color for a step status. Pending and unknown
// statuses use the neutral node stroke.
func (t Theme) StatusColor(st pipeline.StepStatus) string {
	switch st {
	case pipeline.StatusRunning:
		return t.Running
	case pipeline.StatusCompleted:
		return t.Completed
	case pipeline.StatusError:
		return t.Errored
	}
	return t.NodeStroke
}

// DarkTheme is the default palette.
func DarkTheme() Theme {
	return Theme{
		Name:       "dark",
		Background: "#16161e",
		NodeFill:   "#1f2335",
		NodeStroke: "#3b4261",
		Edge:       "#565f89",
		Text:       "#c0caf5",
		Caption:    "#787c99",
		Accent:     "#7aa2f7",
		Running:    "#e0af68",
		Completed:  "#9ece6a",
		Errored:    "#f7768e",
	}
}

// LightTheme is the alternative palette for bright environments.
func LightTheme() Theme {
	return Theme{
		Name:       "light",
		Background: "#fafafa",
		NodeFill:   "#ffffff",
		NodeStroke: "#94a3b8",
		Edge:       "#64748b",
		Text:       "#1e293b",
		Caption:    "#64748b",
		Accent:     "#2563eb",
		Running:    "#d97706",
		Completed:  "#16a34a",
		Errored:    "#dc2626",
	}
}

// ThemeByName resolves "dark" or "light".
func ThemeByName(name string) (Theme, error) {
	switch name {
	case "", "dark":
		return DarkTheme(), nil
	case "light":
		return LightTheme(), nil
	}
	return Theme{}, fmt.Errorf("unknown theme %q (want dark or light)", name)
}
