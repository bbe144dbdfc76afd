package pipeline

import (
	"time"
)

// StepStatus is the lifecycle state of a step during a (simulated) run.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusRunning   StepStatus = "running"
	StatusCompleted StepStatus = "completed"
	StatusError     StepStatus = "error"
)

// StepType is an optional category tag for a step.
type StepType string

const (
	TypeSource    StepType = "source"
	TypeTransform StepType = "transform"
	TypeSink      StepType = "sink"
	TypeUtility   StepType = "utility"
)

// Step is one task in a pipeline. DependsOn holds the ids of steps that must
// complete before this one; order within the slice carries no meaning.
type Step struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	DependsOn   []string   `json:"dependencies,omitempty"`
	Status      StepStatus `json:"status,omitempty"`
	Type        StepType   `json:"type,omitempty"`
}

// ImageSpec describes the container image a pipeline is packaged into.
type ImageSpec struct {
	Base    string            `json:"base"`
	Workdir string            `json:"workdir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Schedule is an optional cron trigger for the exported pipeline.
type Schedule struct {
	Cron    string `json:"cron"`
	Enabled bool   `json:"enabled"`
}

// Pipeline is a generated (and possibly user-refined) pipeline definition:
// the task graph, the image it runs in, and its dependency list.
type Pipeline struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Revision     int       `json:"revision"`
	Steps        []Step    `json:"steps"`
	Image        ImageSpec `json:"image"`
	Requirements []string  `json:"requirements,omitempty"`
	Schedule     *Schedule `json:"schedule,omitempty"`
	Accepted     bool      `json:"accepted"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StepByID returns the step with the given id, or nil if absent.
func (p *Pipeline) StepByID(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// StepIDs returns all step ids in definition order.
func (p *Pipeline) StepIDs() []string {
	ids := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.ID
	}
	return ids
}

// Dependents returns the ids of steps that declare a dependency on id,
// in definition order.
func (p *Pipeline) Dependents(id string) []string {
	var out []string
	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			if dep == id {
				out = append(out, s.ID)
				break
			}
		}
	}
	return out
}

// Clone returns a deep copy. Revision history keeps clones so a later
// refinement cannot mutate an earlier revision in place.
func (p *Pipeline) Clone() *Pipeline {
	cp := *p
	cp.Steps = make([]Step, len(p.Steps))
	for i, s := range p.Steps {
		cp.Steps[i] = s
		if s.DependsOn != nil {
			cp.Steps[i].DependsOn = append([]string(nil), s.DependsOn...)
		}
	}
	if p.Requirements != nil {
		cp.Requirements = append([]string(nil), p.Requirements...)
	}
	if p.Image.Env != nil {
		cp.Image.Env = make(map[string]string, len(p.Image.Env))
		for k, v := range p.Image.Env {
			cp.Image.Env[k] = v
		}
	}
	if p.Schedule != nil {
		sched := *p.Schedule
		cp.Schedule = &sched
	}
	return &cp
}
