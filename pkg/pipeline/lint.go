package pipeline

import (
	"fmt"
	"sort"
)

// Severity classifies a lint finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// LintError is a single finding from Lint. StepID is empty for findings
// that apply to the pipeline as a whole.
type LintError struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	StepID   string   `json:"step_id,omitempty"`
	Message  string   `json:"message"`
}

func (e LintError) Error() string {
	if e.StepID == "" {
		return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Rule, e.Message)
	}
	return fmt.Sprintf("[%s] %s: step %q: %s", e.Severity, e.Rule, e.StepID, e.Message)
}

// HasErrors reports whether any finding has error severity.
func HasErrors(errs []LintError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Lint checks a pipeline definition and returns all findings. The graph
// builder tolerates malformed input by dropping what it cannot use; Lint is
// the strict counterpart that reports those problems instead.
func Lint(p *Pipeline) []LintError {
	var errs []LintError
	errs = append(errs, checkSteps(p)...)
	errs = append(errs, checkDependencies(p)...)
	errs = append(errs, checkCycles(p)...)
	errs = append(errs, checkEnums(p)...)
	errs = append(errs, checkImage(p)...)
	errs = append(errs, checkSchedule(p)...)
	errs = append(errs, checkRequirements(p)...)
	return errs
}

func checkSteps(p *Pipeline) []LintError {
	var errs []LintError
	if len(p.Steps) == 0 {
		errs = append(errs, LintError{
			Rule:     "no-steps",
			Severity: SeverityError,
			Message:  "pipeline has no steps",
		})
		return errs
	}
	seen := make(map[string]bool, len(p.Steps))
	for i, s := range p.Steps {
		if s.ID == "" {
			errs = append(errs, LintError{
				Rule:     "missing-id",
				Severity: SeverityError,
				Message:  fmt.Sprintf("step at index %d has no id", i),
			})
			continue
		}
		if seen[s.ID] {
			errs = append(errs, LintError{
				Rule:     "duplicate-id",
				Severity: SeverityError,
				StepID:   s.ID,
				Message:  "id is used by more than one step",
			})
		}
		seen[s.ID] = true
		if s.Name == "" {
			errs = append(errs, LintError{
				Rule:     "missing-name",
				Severity: SeverityWarning,
				StepID:   s.ID,
				Message:  "step has no name",
			})
		}
	}
	return errs
}

func checkDependencies(p *Pipeline) []LintError {
	ids := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		ids[s.ID] = true
	}
	var errs []LintError
	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			switch {
			case dep == s.ID:
				errs = append(errs, LintError{
					Rule:     "self-dependency",
					Severity: SeverityError,
					StepID:   s.ID,
					Message:  "step depends on itself",
				})
			case !ids[dep]:
				errs = append(errs, LintError{
					Rule:     "unknown-dependency",
					Severity: SeverityError,
					StepID:   s.ID,
					Message:  fmt.Sprintf("depends on %q, which does not exist", dep),
				})
			}
		}
	}
	return errs
}

func checkCycles(p *Pipeline) []LintError {
	cyc := CycleMembers(p)
	if len(cyc) == 0 {
		return nil
	}
	sort.Strings(cyc)
	return []LintError{{
		Rule:     "cycle",
		Severity: SeverityError,
		Message:  fmt.Sprintf("dependency cycle involving %v", cyc),
	}}
}

func checkEnums(p *Pipeline) []LintError {
	var errs []LintError
	for _, s := range p.Steps {
		switch s.Status {
		case "", StatusPending, StatusRunning, StatusCompleted, StatusError:
		default:
			errs = append(errs, LintError{
				Rule:     "unknown-status",
				Severity: SeverityWarning,
				StepID:   s.ID,
				Message:  fmt.Sprintf("status %q is not recognized", s.Status),
			})
		}
		switch s.Type {
		case "", TypeSource, TypeTransform, TypeSink, TypeUtility:
		default:
			errs = append(errs, LintError{
				Rule:     "unknown-type",
				Severity: SeverityWarning,
				StepID:   s.ID,
				Message:  fmt.Sprintf("type %q is not recognized", s.Type),
			})
		}
	}
	return errs
}

func checkImage(p *Pipeline) []LintError {
	if p.Image.Base != "" {
		return nil
	}
	return []LintError{{
		Rule:     "missing-image",
		Severity: SeverityWarning,
		Message:  "image has no base",
	}}
}

func checkSchedule(p *Pipeline) []LintError {
	if p.Schedule == nil {
		return nil
	}
	if err := ValidateCron(p.Schedule.Cron); err != nil {
		return []LintError{{
			Rule:     "invalid-schedule",
			Severity: SeverityError,
			Message:  err.Error(),
		}}
	}
	return nil
}

func checkRequirements(p *Pipeline) []LintError {
	seen := make(map[string]bool, len(p.Requirements))
	var errs []LintError
	for _, r := range p.Requirements {
		if seen[r] {
			errs = append(errs, LintError{
				Rule:     "duplicate-requirement",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("requirement %q is listed more than once", r),
			})
		}
		seen[r] = true
	}
	return errs
}
