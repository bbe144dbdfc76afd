// Package tui renders a simulated run in the terminal: one line per step
// grouped by dependency wave, updating live as events arrive.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pipeloom/pipeloom/pkg/pipeline"
	"github.com/pipeloom/pipeloom/pkg/simulate"
)

type eventMsg struct{ ev simulate.Event }

type streamClosedMsg struct{}

// RunView is the Bubble Tea model monitoring one simulated run.
type RunView struct {
	pipe   *pipeline.Pipeline
	levels [][]string
	events <-chan simulate.Event
	cancel context.CancelFunc

	spinner  spinner.Model
	statuses map[string]pipeline.StepStatus
	active   string
	failure  error
	done     bool
	started  time.Time
}

// NewRunView builds the monitor for p, consuming events until the stream
// closes. cancel is invoked when the user quits early.
func NewRunView(p *pipeline.Pipeline, events <-chan simulate.Event, cancel context.CancelFunc) RunView {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = runningStyle

	levels, err := pipeline.TopoLevels(p)
	if err != nil {
		// The runner refuses cyclic pipelines before a view exists; fall
		// back to a single wave just in case.
		levels = [][]string{p.StepIDs()}
	}
	return RunView{
		pipe:     p,
		levels:   levels,
		events:   events,
		cancel:   cancel,
		spinner:  sp,
		statuses: make(map[string]pipeline.StepStatus),
		started:  time.Now(),
	}
}

func (m RunView) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.wait())
}

func (m RunView) wait() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg{ev}
	}
}

func (m RunView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(msg.ev)
		return m, m.wait()

	case streamClosedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *RunView) apply(ev simulate.Event) {
	switch ev.Kind {
	case simulate.EventStepStarted:
		m.statuses[ev.StepID] = pipeline.StatusRunning
		m.active = ev.StepID
	case simulate.EventStepCompleted:
		m.statuses[ev.StepID] = pipeline.StatusCompleted
		if m.active == ev.StepID {
			m.active = ""
		}
	case simulate.EventStepErrored:
		m.statuses[ev.StepID] = pipeline.StatusError
		if m.active == ev.StepID {
			m.active = ""
		}
	case simulate.EventRunFailed:
		m.failure = ev.Err
	}
}

func (m RunView) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Simulated run: %s", m.pipe.Name)))
	b.WriteString("\n\n")

	for i, wave := range m.levels {
		for _, id := range wave {
			st := m.statuses[id]
			step := m.pipe.StepByID(id)
			label := id
			if step != nil && step.Name != "" {
				label = step.Name
			}
			icon := iconForStatus(st)
			if st == pipeline.StatusRunning {
				icon = m.spinner.View()
			}
			b.WriteString(styleForStatus(st).Render(fmt.Sprintf("  %s %s", icon, label)))
			b.WriteString("\n")
		}
		if i < len(m.levels)-1 {
			b.WriteString(dimStyle.Render("    │"))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	switch {
	case m.failure != nil:
		b.WriteString(failStyle.Render(fmt.Sprintf("run failed: %v", m.failure)))
	case m.done:
		b.WriteString(doneStyle.Render(fmt.Sprintf("run completed in %s", time.Since(m.started).Round(time.Millisecond))))
	default:
		b.WriteString(dimStyle.Render("q to stop"))
	}
	b.WriteString("\n")

	return borderStyle.Render(b.String())
}
