// Package simulate walks a pipeline through a pretend run: steps start and
// complete in dependency order on a timer, and each transition is reported as
// an event. Hosts use the stream to animate the graph view; nothing is
// actually executed.
package simulate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pipeloom/pipeloom/pkg/pipeline"
)

const defaultStepDuration = 600 * time.Millisecond

// EventKind labels a simulation event.
type EventKind string

const (
	EventRunStarted    EventKind = "run_started"
	EventStepStarted   EventKind = "step_started"
	EventStepCompleted EventKind = "step_completed"
	EventStepErrored   EventKind = "step_errored"
	EventRunCompleted  EventKind = "run_completed"
	EventRunFailed     EventKind = "run_failed"
)

// Event is one transition in a simulated run. StepID is set for step events,
// Err for step_errored and run_failed.
type Event struct {
	Kind   EventKind `json:"kind"`
	StepID string    `json:"step_id,omitempty"`
	Err    error     `json:"-"`
	Time   time.Time `json:"time"`
}

// Runner drives simulated runs. FailAt, when set to a step id, makes that
// step fail instead of completing; downstream steps never start.
type Runner struct {
	StepDuration time.Duration
	FailAt       string
}

// NewRunner returns a runner with the given per-step duration, or the
// default when d is not positive.
func NewRunner(d time.Duration) *Runner {
	if d <= 0 {
		d = defaultStepDuration
	}
	return &Runner{StepDuration: d}
}

// Run starts a simulated run of p and returns its event stream. The channel
// closes when the run finishes, fails, or ctx is cancelled. Steps run one at
// a time in dependency order; p itself is never modified, callers apply
// status changes from the events they consume.
//
// A pipeline whose dependencies cannot be ordered fails up front.
func (r *Runner) Run(ctx context.Context, p *pipeline.Pipeline) (<-chan Event, error) {
	if p == nil || len(p.Steps) == 0 {
		return nil, fmt.Errorf("simulate: nothing to run")
	}
	levels, err := pipeline.TopoLevels(p)
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}

	ch := make(chan Event, 8)
	go func() {
		defer close(ch)
		r.run(ctx, levels, ch)
	}()
	return ch, nil
}

func (r *Runner) run(ctx context.Context, levels [][]string, ch chan<- Event) {
	if !send(ctx, ch, Event{Kind: EventRunStarted, Time: time.Now()}) {
		return
	}
	for _, wave := range levels {
		for _, id := range wave {
			if !send(ctx, ch, Event{Kind: EventStepStarted, StepID: id, Time: time.Now()}) {
				return
			}
			slog.Debug("simulated step running", "step", id)

			// A cancelled run just closes the stream; there is no
			// terminal event to wait for.
			if !r.sleep(ctx) {
				return
			}

			if r.FailAt != "" && id == r.FailAt {
				err := fmt.Errorf("step %q failed", id)
				send(ctx, ch, Event{Kind: EventStepErrored, StepID: id, Err: err, Time: time.Now()})
				send(ctx, ch, Event{Kind: EventRunFailed, Err: err, Time: time.Now()})
				return
			}
			if !send(ctx, ch, Event{Kind: EventStepCompleted, StepID: id, Time: time.Now()}) {
				return
			}
		}
	}
	send(ctx, ch, Event{Kind: EventRunCompleted, Time: time.Now()})
}

// sleep waits one step duration, reporting false if ctx ended first.
func (r *Runner) sleep(ctx context.Context) bool {
	d := r.StepDuration
	if d <= 0 {
		d = defaultStepDuration
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// send delivers ev unless ctx ends first. Events carry their own timestamps
// so a slow consumer still sees when transitions happened.
func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Apply folds a simulation event into a pipeline's step statuses. It is the
// caller-side half of Run's no-mutation contract.
func Apply(p *pipeline.Pipeline, ev Event) {
	if p == nil {
		return
	}
	st := p.StepByID(ev.StepID)
	switch ev.Kind {
	case EventRunStarted:
		for i := range p.Steps {
			p.Steps[i].Status = pipeline.StatusPending
		}
	case EventStepStarted:
		if st != nil {
			st.Status = pipeline.StatusRunning
		}
	case EventStepCompleted:
		if st != nil {
			st.Status = pipeline.StatusCompleted
		}
	case EventStepErrored:
		if st != nil {
			st.Status = pipeline.StatusError
		}
	}
}
