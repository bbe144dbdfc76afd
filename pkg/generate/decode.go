package generate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pipeloom/pipeloom/pkg/pipeline"
)

// ─── reply document ───

// document is the wire shape the model replies with. It is deliberately
// looser than pipeline.Pipeline: ids may be missing and dependency lists
// show up under more than one key.
type document struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Steps        []documentStep    `json:"steps"`
	Image        *documentImage    `json:"image,omitempty"`
	Requirements []string          `json:"requirements,omitempty"`
	Schedule     *documentSchedule `json:"schedule,omitempty"`
}

type documentStep struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Models split between the two spellings; merge them on decode.
	Dependencies []string `json:"dependencies,omitempty"`
	DependsOn    []string `json:"depends_on,omitempty"`
	Type         string   `json:"type,omitempty"`
}

type documentImage struct {
	Base    string            `json:"base"`
	Workdir string            `json:"workdir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

type documentSchedule struct {
	Cron    string `json:"cron"`
	Enabled bool   `json:"enabled"`
}

// ─── extraction ───

// ExtractJSON pulls the first JSON object out of a model reply that may wrap
// it in prose or a markdown code fence.
func ExtractJSON(text string) ([]byte, error) {
	s := strings.TrimSpace(text)

	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{}") {
			s = s[nl+1:] // drop the language tag line, e.g. "json"
		}
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in reply")
	}
	return []byte(s[start : end+1]), nil
}

// DecodePipeline parses a model reply into a pipeline definition, minting ids
// where the model left them out. The result is not linted here; callers run
// pipeline.Lint and decide what to do with findings.
func DecodePipeline(text string) (*pipeline.Pipeline, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding pipeline document: %w", err)
	}
	return doc.toPipeline(), nil
}

func (d *document) toPipeline() *pipeline.Pipeline {
	p := &pipeline.Pipeline{
		Name:         strings.TrimSpace(d.Name),
		Description:  strings.TrimSpace(d.Description),
		Requirements: dedupStrings(d.Requirements),
	}
	if d.Image != nil {
		p.Image = pipeline.ImageSpec{
			Base:    strings.TrimSpace(d.Image.Base),
			Workdir: strings.TrimSpace(d.Image.Workdir),
			Env:     d.Image.Env,
		}
	}
	if d.Schedule != nil && strings.TrimSpace(d.Schedule.Cron) != "" {
		p.Schedule = &pipeline.Schedule{
			Cron:    strings.TrimSpace(d.Schedule.Cron),
			Enabled: d.Schedule.Enabled,
		}
	}

	seen := make(map[string]bool, len(d.Steps))
	for _, ds := range d.Steps {
		id := strings.TrimSpace(ds.ID)
		name := strings.TrimSpace(ds.Name)
		if id == "" && name == "" {
			continue
		}
		if id == "" {
			id = slugify(name)
		}
		if id == "" || seen[id] {
			id = uuid.NewString()
		}
		seen[id] = true

		deps := ds.Dependencies
		if len(deps) == 0 {
			deps = ds.DependsOn
		}
		deps = dedupStrings(deps)
		// A step depending on itself is a model artifact, not a cycle worth
		// reporting.
		for i, dep := range deps {
			if dep == id {
				deps = append(deps[:i], deps[i+1:]...)
				break
			}
		}
		p.Steps = append(p.Steps, pipeline.Step{
			ID:          id,
			Name:        name,
			Description: strings.TrimSpace(ds.Description),
			DependsOn:   deps,
			Status:      pipeline.StatusPending,
			Type:        pipeline.StepType(strings.ToLower(strings.TrimSpace(ds.Type))),
		})
	}
	return p
}

// encodePipeline renders a pipeline back into the wire shape for refine
// prompts, leaving out host-side fields like revision and timestamps.
func encodePipeline(p *pipeline.Pipeline) []byte {
	doc := document{
		Name:         p.Name,
		Description:  p.Description,
		Requirements: p.Requirements,
	}
	if p.Image.Base != "" || p.Image.Workdir != "" || len(p.Image.Env) > 0 {
		doc.Image = &documentImage{Base: p.Image.Base, Workdir: p.Image.Workdir, Env: p.Image.Env}
	}
	if p.Schedule != nil {
		doc.Schedule = &documentSchedule{Cron: p.Schedule.Cron, Enabled: p.Schedule.Enabled}
	}
	for _, st := range p.Steps {
		doc.Steps = append(doc.Steps, documentStep{
			ID:           st.ID,
			Name:         st.Name,
			Description:  st.Description,
			Dependencies: st.DependsOn,
			Type:         string(st.Type),
		})
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return []byte("{}")
	}
	return out
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func dedupStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
