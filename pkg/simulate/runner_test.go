package simulate_test

import (
	"context"
	"testing"
	"time"

	"github.com/pipeloom/pipeloom/pkg/pipeline"
	"github.com/pipeloom/pipeloom/pkg/simulate"
)

func chainPipeline() *pipeline.Pipeline {
	return &pipeline.Pipeline{
		ID:   "p1",
		Name: "chain",
		Steps: []pipeline.Step{
			{ID: "fetch", Name: "Fetch"},
			{ID: "clean", Name: "Clean", DependsOn: []string{"fetch"}},
			{ID: "store", Name: "Store", DependsOn: []string{"clean"}},
		},
	}
}

func collect(t *testing.T, ch <-chan simulate.Event) []simulate.Event {
	t.Helper()
	var evs []simulate.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return evs
			}
			evs = append(evs, ev)
		case <-deadline:
			t.Fatalf("run did not finish; got %d events", len(evs))
		}
	}
}

// ─── full runs ───

func TestRun_OrderAndCompletion(t *testing.T) {
	r := simulate.NewRunner(time.Millisecond)
	ch, err := r.Run(context.Background(), chainPipeline())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	evs := collect(t, ch)

	want := []struct {
		kind simulate.EventKind
		step string
	}{
		{simulate.EventRunStarted, ""},
		{simulate.EventStepStarted, "fetch"},
		{simulate.EventStepCompleted, "fetch"},
		{simulate.EventStepStarted, "clean"},
		{simulate.EventStepCompleted, "clean"},
		{simulate.EventStepStarted, "store"},
		{simulate.EventStepCompleted, "store"},
		{simulate.EventRunCompleted, ""},
	}
	if len(evs) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(evs), len(want), evs)
	}
	for i, w := range want {
		if evs[i].Kind != w.kind || evs[i].StepID != w.step {
			t.Errorf("event[%d] = %s/%q, want %s/%q", i, evs[i].Kind, evs[i].StepID, w.kind, w.step)
		}
	}
}

func TestRun_FailAtStopsDownstream(t *testing.T) {
	r := simulate.NewRunner(time.Millisecond)
	r.FailAt = "clean"
	ch, err := r.Run(context.Background(), chainPipeline())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	evs := collect(t, ch)

	last := evs[len(evs)-1]
	if last.Kind != simulate.EventRunFailed || last.Err == nil {
		t.Fatalf("last event = %+v, want run_failed with error", last)
	}
	for _, ev := range evs {
		if ev.StepID == "store" {
			t.Errorf("downstream step started after failure: %+v", ev)
		}
		if ev.Kind == simulate.EventStepErrored && ev.StepID != "clean" {
			t.Errorf("wrong step errored: %+v", ev)
		}
	}
}

func TestRun_RejectsCycles(t *testing.T) {
	p := chainPipeline()
	p.Steps[0].DependsOn = []string{"store"}

	r := simulate.NewRunner(time.Millisecond)
	if _, err := r.Run(context.Background(), p); err == nil {
		t.Fatal("Run() expected cycle error")
	}
}

func TestRun_RejectsEmpty(t *testing.T) {
	r := simulate.NewRunner(time.Millisecond)
	if _, err := r.Run(context.Background(), &pipeline.Pipeline{}); err == nil {
		t.Fatal("Run() expected error for empty pipeline")
	}
	if _, err := r.Run(context.Background(), nil); err == nil {
		t.Fatal("Run(nil) expected error")
	}
}

func TestRun_CancelClosesStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := simulate.NewRunner(time.Hour) // never finishes on its own
	ch, err := r.Run(ctx, chainPipeline())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	<-ch // run_started
	<-ch // step_started fetch
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			// A buffered event may still drain; the close must follow.
			if _, ok := <-ch; ok {
				t.Fatal("stream still open after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
}

// ─── status application ───

func TestApply(t *testing.T) {
	p := chainPipeline()
	simulate.Apply(p, simulate.Event{Kind: simulate.EventRunStarted})
	simulate.Apply(p, simulate.Event{Kind: simulate.EventStepStarted, StepID: "fetch"})
	if p.Steps[0].Status != pipeline.StatusRunning {
		t.Errorf("fetch status = %q, want running", p.Steps[0].Status)
	}
	simulate.Apply(p, simulate.Event{Kind: simulate.EventStepCompleted, StepID: "fetch"})
	simulate.Apply(p, simulate.Event{Kind: simulate.EventStepErrored, StepID: "clean"})
	if p.Steps[0].Status != pipeline.StatusCompleted || p.Steps[1].Status != pipeline.StatusError {
		t.Errorf("statuses = %q/%q, want completed/error", p.Steps[0].Status, p.Steps[1].Status)
	}
	// Unknown step ids and nil pipelines are ignored.
	simulate.Apply(p, simulate.Event{Kind: simulate.EventStepStarted, StepID: "ghost"})
	simulate.Apply(nil, simulate.Event{Kind: simulate.EventStepStarted, StepID: "fetch"})
}
