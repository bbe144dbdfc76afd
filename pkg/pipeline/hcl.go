package pipeline

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// hclRoot mirrors the top level of a pipeline definition file.
type hclRoot struct {
	Pipelines []*hclPipeline `hcl:"pipeline,block"`
}

type hclPipeline struct {
	Name         string       `hcl:"name,label"`
	Description  string       `hcl:"description,optional"`
	Requirements []string     `hcl:"requirements,optional"`
	Image        *hclImage    `hcl:"image,block"`
	Schedule     *hclSchedule `hcl:"schedule,block"`
	Steps        []*hclStep   `hcl:"step,block"`
}

type hclImage struct {
	Base    string            `hcl:"base"`
	Workdir string            `hcl:"workdir,optional"`
	Env     map[string]string `hcl:"env,optional"`
}

type hclSchedule struct {
	Cron    string `hcl:"cron"`
	Enabled bool   `hcl:"enabled,optional"`
}

type hclStep struct {
	ID          string   `hcl:"id,label"`
	Name        string   `hcl:"name,optional"`
	Description string   `hcl:"description,optional"`
	Type        string   `hcl:"type,optional"`
	DependsOn   []string `hcl:"depends_on,optional"`
}

// ParseHCL decodes an HCL pipeline definition. The file must contain exactly
// one pipeline block; expressions are restricted to literals.
func ParseHCL(src []byte, filename string) (*Pipeline, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hcl parse error: %s", diags.Error())
	}

	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("hcl decode error: %s", diags.Error())
	}
	if len(root.Pipelines) != 1 {
		return nil, fmt.Errorf("hcl: want exactly one pipeline block, got %d", len(root.Pipelines))
	}

	hp := root.Pipelines[0]
	p := &Pipeline{
		Name:         hp.Name,
		Description:  hp.Description,
		Requirements: hp.Requirements,
	}
	if hp.Image != nil {
		p.Image = ImageSpec{Base: hp.Image.Base, Workdir: hp.Image.Workdir, Env: hp.Image.Env}
	}
	if hp.Schedule != nil {
		p.Schedule = &Schedule{Cron: hp.Schedule.Cron, Enabled: hp.Schedule.Enabled}
	}
	for _, hs := range hp.Steps {
		s := Step{
			ID:          hs.ID,
			Name:        hs.Name,
			Description: hs.Description,
			Type:        StepType(hs.Type),
			DependsOn:   hs.DependsOn,
		}
		if s.Name == "" {
			s.Name = hs.ID
		}
		p.Steps = append(p.Steps, s)
	}
	return p, nil
}

// ExportHCL renders a pipeline as an HCL definition file.
func ExportHCL(p *Pipeline) []byte {
	f := hclwrite.NewEmptyFile()
	block := f.Body().AppendNewBlock("pipeline", []string{dotName(p)})
	body := block.Body()

	if p.Description != "" {
		body.SetAttributeValue("description", cty.StringVal(p.Description))
	}
	if len(p.Requirements) > 0 {
		vals := make([]cty.Value, len(p.Requirements))
		for i, r := range p.Requirements {
			vals[i] = cty.StringVal(r)
		}
		body.SetAttributeValue("requirements", cty.ListVal(vals))
	}
	if p.Image.Base != "" {
		img := body.AppendNewBlock("image", nil).Body()
		img.SetAttributeValue("base", cty.StringVal(p.Image.Base))
		if p.Image.Workdir != "" {
			img.SetAttributeValue("workdir", cty.StringVal(p.Image.Workdir))
		}
		if len(p.Image.Env) > 0 {
			env := make(map[string]cty.Value, len(p.Image.Env))
			for k, v := range p.Image.Env {
				env[k] = cty.StringVal(v)
			}
			img.SetAttributeValue("env", cty.ObjectVal(env))
		}
	}
	if p.Schedule != nil {
		sched := body.AppendNewBlock("schedule", nil).Body()
		sched.SetAttributeValue("cron", cty.StringVal(p.Schedule.Cron))
		sched.SetAttributeValue("enabled", cty.BoolVal(p.Schedule.Enabled))
	}
	for _, s := range p.Steps {
		sb := body.AppendNewBlock("step", []string{s.ID}).Body()
		if s.Name != "" && s.Name != s.ID {
			sb.SetAttributeValue("name", cty.StringVal(s.Name))
		}
		if s.Description != "" {
			sb.SetAttributeValue("description", cty.StringVal(s.Description))
		}
		if s.Type != "" {
			sb.SetAttributeValue("type", cty.StringVal(string(s.Type)))
		}
		if len(s.DependsOn) > 0 {
			deps := make([]cty.Value, len(s.DependsOn))
			for i, d := range s.DependsOn {
				deps[i] = cty.StringVal(d)
			}
			sb.SetAttributeValue("depends_on", cty.ListVal(deps))
		}
	}
	return f.Bytes()
}
