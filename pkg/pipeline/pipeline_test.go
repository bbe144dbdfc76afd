package pipeline_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pipeloom/pipeloom/pkg/pipeline"
)

func samplePipeline() *pipeline.Pipeline {
	return &pipeline.Pipeline{
		ID:   "pl-1",
		Name: "daily-report",
		Steps: []pipeline.Step{
			{ID: "fetch", Name: "Fetch Data", Type: pipeline.TypeSource},
			{ID: "clean", Name: "Clean", DependsOn: []string{"fetch"}},
			{ID: "train", Name: "Train", DependsOn: []string{"clean"}},
			{ID: "store", Name: "Store", Type: pipeline.TypeSink, DependsOn: []string{"train"}},
		},
		Image:        pipeline.ImageSpec{Base: "python:3.12-slim", Workdir: "/app"},
		Requirements: []string{"pandas", "scikit-learn"},
	}
}

// ─── Model tests ──────────────────────────────────────────────────────────────

func TestStepByID(t *testing.T) {
	p := samplePipeline()
	if s := p.StepByID("clean"); s == nil || s.Name != "Clean" {
		t.Fatalf("StepByID(clean) = %v", s)
	}
	if s := p.StepByID("nope"); s != nil {
		t.Fatalf("StepByID(nope) = %v, want nil", s)
	}
}

func TestDependents(t *testing.T) {
	p := samplePipeline()
	p.Steps = append(p.Steps, pipeline.Step{ID: "audit", DependsOn: []string{"fetch", "fetch"}})
	got := p.Dependents("fetch")
	want := []string{"clean", "audit"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Dependents(fetch) = %v, want %v", got, want)
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := samplePipeline()
	p.Image.Env = map[string]string{"MODE": "prod"}
	p.Schedule = &pipeline.Schedule{Cron: "0 6 * * *", Enabled: true}

	cp := p.Clone()
	cp.Steps[1].DependsOn[0] = "changed"
	cp.Requirements[0] = "changed"
	cp.Image.Env["MODE"] = "dev"
	cp.Schedule.Cron = "* * * * *"

	if p.Steps[1].DependsOn[0] != "fetch" {
		t.Errorf("clone shares DependsOn slice")
	}
	if p.Requirements[0] != "pandas" {
		t.Errorf("clone shares Requirements slice")
	}
	if p.Image.Env["MODE"] != "prod" {
		t.Errorf("clone shares Env map")
	}
	if p.Schedule.Cron != "0 6 * * *" {
		t.Errorf("clone shares Schedule pointer")
	}
}

// ─── Topology tests ───────────────────────────────────────────────────────────

func TestTopoLevels(t *testing.T) {
	p := samplePipeline()
	p.Steps = append(p.Steps, pipeline.Step{ID: "report", DependsOn: []string{"clean"}})

	levels, err := pipeline.TopoLevels(p)
	if err != nil {
		t.Fatalf("TopoLevels: %v", err)
	}
	want := [][]string{{"fetch"}, {"clean"}, {"train", "report"}, {"store"}}
	if !reflect.DeepEqual(levels, want) {
		t.Fatalf("TopoLevels = %v, want %v", levels, want)
	}
}

func TestTopoLevels_IgnoresUnknownDeps(t *testing.T) {
	p := &pipeline.Pipeline{Steps: []pipeline.Step{
		{ID: "a", DependsOn: []string{"ghost"}},
		{ID: "b", DependsOn: []string{"a"}},
	}}
	levels, err := pipeline.TopoLevels(p)
	if err != nil {
		t.Fatalf("TopoLevels: %v", err)
	}
	want := [][]string{{"a"}, {"b"}}
	if !reflect.DeepEqual(levels, want) {
		t.Fatalf("TopoLevels = %v, want %v", levels, want)
	}
}

func TestTopoLevels_Cycle(t *testing.T) {
	p := &pipeline.Pipeline{Steps: []pipeline.Step{
		{ID: "a", DependsOn: []string{"c"}},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"b"}},
	}}
	if _, err := pipeline.TopoLevels(p); !errors.Is(err, pipeline.ErrCycle) {
		t.Fatalf("TopoLevels err = %v, want ErrCycle", err)
	}
	members := pipeline.CycleMembers(p)
	if len(members) != 3 {
		t.Fatalf("CycleMembers = %v, want all three", members)
	}
}

// ─── Lint tests ───────────────────────────────────────────────────────────────

func TestLint_Clean(t *testing.T) {
	if errs := pipeline.Lint(samplePipeline()); len(errs) != 0 {
		t.Fatalf("Lint = %v, want none", errs)
	}
}

func TestLint_Findings(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*pipeline.Pipeline)
		rule     string
		severity pipeline.Severity
	}{
		{
			name:     "no steps",
			mutate:   func(p *pipeline.Pipeline) { p.Steps = nil },
			rule:     "no-steps",
			severity: pipeline.SeverityError,
		},
		{
			name: "duplicate id",
			mutate: func(p *pipeline.Pipeline) {
				p.Steps = append(p.Steps, pipeline.Step{ID: "fetch", Name: "Fetch Again"})
			},
			rule:     "duplicate-id",
			severity: pipeline.SeverityError,
		},
		{
			name: "missing id",
			mutate: func(p *pipeline.Pipeline) {
				p.Steps = append(p.Steps, pipeline.Step{Name: "Anonymous"})
			},
			rule:     "missing-id",
			severity: pipeline.SeverityError,
		},
		{
			name: "unknown dependency",
			mutate: func(p *pipeline.Pipeline) {
				p.Steps[1].DependsOn = []string{"ghost"}
			},
			rule:     "unknown-dependency",
			severity: pipeline.SeverityError,
		},
		{
			name: "self dependency",
			mutate: func(p *pipeline.Pipeline) {
				p.Steps[0].DependsOn = []string{"fetch"}
			},
			rule:     "self-dependency",
			severity: pipeline.SeverityError,
		},
		{
			name: "cycle",
			mutate: func(p *pipeline.Pipeline) {
				p.Steps[0].DependsOn = []string{"store"}
			},
			rule:     "cycle",
			severity: pipeline.SeverityError,
		},
		{
			name: "missing name",
			mutate: func(p *pipeline.Pipeline) {
				p.Steps[2].Name = ""
			},
			rule:     "missing-name",
			severity: pipeline.SeverityWarning,
		},
		{
			name: "unknown type",
			mutate: func(p *pipeline.Pipeline) {
				p.Steps[0].Type = "teleport"
			},
			rule:     "unknown-type",
			severity: pipeline.SeverityWarning,
		},
		{
			name: "unknown status",
			mutate: func(p *pipeline.Pipeline) {
				p.Steps[0].Status = "paused"
			},
			rule:     "unknown-status",
			severity: pipeline.SeverityWarning,
		},
		{
			name:     "missing image base",
			mutate:   func(p *pipeline.Pipeline) { p.Image.Base = "" },
			rule:     "missing-image",
			severity: pipeline.SeverityWarning,
		},
		{
			name: "invalid schedule",
			mutate: func(p *pipeline.Pipeline) {
				p.Schedule = &pipeline.Schedule{Cron: "not a cron"}
			},
			rule:     "invalid-schedule",
			severity: pipeline.SeverityError,
		},
		{
			name: "duplicate requirement",
			mutate: func(p *pipeline.Pipeline) {
				p.Requirements = append(p.Requirements, "pandas")
			},
			rule:     "duplicate-requirement",
			severity: pipeline.SeverityWarning,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePipeline()
			tt.mutate(p)
			errs := pipeline.Lint(p)
			found := false
			for _, e := range errs {
				if e.Rule == tt.rule {
					found = true
					if e.Severity != tt.severity {
						t.Errorf("rule %s severity = %s, want %s", e.Rule, e.Severity, tt.severity)
					}
				}
			}
			if !found {
				t.Errorf("Lint = %v, want rule %s", errs, tt.rule)
			}
		})
	}
}

func TestHasErrors(t *testing.T) {
	warn := []pipeline.LintError{{Rule: "missing-name", Severity: pipeline.SeverityWarning}}
	if pipeline.HasErrors(warn) {
		t.Errorf("HasErrors(warnings only) = true")
	}
	both := append(warn, pipeline.LintError{Rule: "cycle", Severity: pipeline.SeverityError})
	if !pipeline.HasErrors(both) {
		t.Errorf("HasErrors(with error) = false")
	}
}

// ─── Schedule tests ───────────────────────────────────────────────────────────

func TestValidateCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 6 * * *", false},
		{"*/15 * * * *", false},
		{"0 0 1 1 0", false},
		{"0-30 9-17 * * 1-5", false},
		{"1,15,45 * * * *", false},
		{"", true},
		{"* * * *", true},
		{"* * * * * *", true},
		{"60 * * * *", true},
		{"* 24 * * *", true},
		{"* * 0 * *", true},
		{"* * * 13 *", true},
		{"* * * * 7", true},
		{"5-2 * * * *", true},
		{"*/0 * * * *", true},
		{"abc * * * *", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := pipeline.ValidateCron(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCron(%q) = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}
