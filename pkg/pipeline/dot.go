package pipeline

import (
	"fmt"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
)

// ParseDOT parses a Graphviz DOT string into a Pipeline. An edge "a -> b"
// records a as a dependency of b. Nodes mentioned only in edges become steps
// with no attributes.
func ParseDOT(src string) (*Pipeline, error) {
	graphAst, err := gographviz.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("dot parse error: %w", err)
	}

	// Custom permissive collector: accepts any attribute name without the
	// strict validation that gographviz.Graph performs.
	collector := newDOTCollector()
	if err := gographviz.Analyse(graphAst, collector); err != nil {
		return nil, fmt.Errorf("dot analyse error: %w", err)
	}

	p := &Pipeline{Name: collector.name}
	deps := make(map[string][]string)
	for _, e := range collector.edges {
		deps[e.to] = append(deps[e.to], e.from)
	}
	for _, id := range collector.order {
		attrs := collector.nodes[id]
		s := Step{
			ID:          id,
			Name:        attrs["label"],
			Description: attrs["description"],
			Status:      StepStatus(attrs["status"]),
			Type:        StepType(attrs["type"]),
			DependsOn:   dedup(deps[id]),
		}
		if s.Name == "" {
			s.Name = id
		}
		p.Steps = append(p.Steps, s)
	}
	return p, nil
}

// ExportDOT renders a pipeline as DOT text. Output is deterministic: steps
// and edges follow definition order.
func ExportDOT(p *Pipeline) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", quoteDOT(dotName(p)))
	b.WriteString("  rankdir=LR;\n")
	for _, s := range p.Steps {
		fmt.Fprintf(&b, "  %s [label=%s", quoteDOT(s.ID), quoteDOT(s.Name))
		if s.Type != "" {
			fmt.Fprintf(&b, ", type=%s", quoteDOT(string(s.Type)))
		}
		if s.Description != "" {
			fmt.Fprintf(&b, ", description=%s", quoteDOT(s.Description))
		}
		b.WriteString("];\n")
	}
	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			fmt.Fprintf(&b, "  %s -> %s;\n", quoteDOT(dep), quoteDOT(s.ID))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func dotName(p *Pipeline) string {
	if p.Name != "" {
		return p.Name
	}
	return "pipeline"
}

func quoteDOT(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func dedup(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// ─── permissive DOT collector ─────────────────────────────────────────────────

type rawEdge struct {
	from, to string
}

// dotCollector implements gographviz.Interface without attribute validation.
type dotCollector struct {
	name  string
	order []string
	nodes map[string]map[string]string // id → attrs
	edges []rawEdge
}

func newDOTCollector() *dotCollector {
	return &dotCollector{nodes: make(map[string]map[string]string)}
}

func (c *dotCollector) SetStrict(_ bool) error { return nil }
func (c *dotCollector) SetDir(_ bool) error    { return nil }
func (c *dotCollector) SetName(n string) error { c.name = unquote(n); return nil }
func (c *dotCollector) String() string         { return c.name }

func (c *dotCollector) ensure(id string) map[string]string {
	if attrs, ok := c.nodes[id]; ok {
		return attrs
	}
	attrs := make(map[string]string)
	c.nodes[id] = attrs
	c.order = append(c.order, id)
	return attrs
}

func (c *dotCollector) AddNode(_ string, name string, attrs map[string]string) error {
	node := c.ensure(unquote(name))
	for k, v := range attrs {
		node[k] = unquote(v)
	}
	return nil
}

func (c *dotCollector) AddEdge(src, dst string, _ bool, _ map[string]string) error {
	from, to := unquote(src), unquote(dst)
	c.ensure(from)
	c.ensure(to)
	c.edges = append(c.edges, rawEdge{from: from, to: to})
	return nil
}

func (c *dotCollector) AddPortEdge(src, _, dst, _ string, directed bool, attrs map[string]string) error {
	return c.AddEdge(src, dst, directed, attrs)
}

func (c *dotCollector) AddAttr(_ string, _, _ string) error { return nil }

func (c *dotCollector) AddSubGraph(_, _ string, _ map[string]string) error { return nil }

// unquote strips surrounding double-quotes from a DOT attribute value.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
