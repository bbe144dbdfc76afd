// Package graphview turns a pipeline definition into an interactive diagram:
// a layered graph model, a deterministic layout, a pan/zoom/drag scene, and
// an SVG renderer.
package graphview

import (
	"strings"

	"github.com/pipeloom/pipeloom/pkg/pipeline"
)

// Layers of the diagram, left to right.
const (
	LayerSource    = 0
	LayerTransform = 1
	LayerSink      = 2
)

// Node is one step of the pipeline placed in the diagram. It holds a
// reference to the step record and never writes through it: Layer and Index
// are fixed at build time, and Status carries the run status shown for the
// current pass, seeded from the step.
type Node struct {
	Step   *pipeline.Step
	Layer  int
	Index  int // 1-based position in the pipeline definition, shown inside the circle
	Status pipeline.StepStatus
}

// ID returns the wrapped step's id.
func (n *Node) ID() string { return n.Step.ID }

// Label returns the step's display name, falling back to its id.
func (n *Node) Label() string {
	if n.Step.Name != "" {
		return n.Step.Name
	}
	return n.Step.ID
}

// Edge is a directed dependency between two nodes.
type Edge struct {
	From *Node
	To   *Node
}

// Graph is the diagram model built from a pipeline.
type Graph struct {
	Nodes []*Node
	Edges []*Edge

	byID map[string]*Node
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	return g.byID[id]
}

var (
	sourceKeywords = []string{"fetch", "read", "source"}
	sinkKeywords   = []string{"store", "load", "sink", "postgre"}
)

// LayerOf classifies a step name into a diagram layer by keyword. Ingestion
// keywords win over storage keywords when a name contains both.
func LayerOf(name string) int {
	lower := strings.ToLower(name)
	for _, kw := range sourceKeywords {
		if strings.Contains(lower, kw) {
			return LayerSource
		}
	}
	for _, kw := range sinkKeywords {
		if strings.Contains(lower, kw) {
			return LayerSink
		}
	}
	return LayerTransform
}

// BuildGraph builds the diagram model for a pipeline. Steps keep definition
// order. Dependencies that reference unknown steps, and self references, are
// dropped without error: a half-formed definition still gets a diagram.
func BuildGraph(p *pipeline.Pipeline) *Graph {
	g := &Graph{byID: make(map[string]*Node)}
	if p == nil {
		return g
	}
	for i := range p.Steps {
		s := &p.Steps[i]
		n := &Node{Step: s, Index: i + 1, Status: s.Status}
		n.Layer = LayerOf(n.Label())
		g.Nodes = append(g.Nodes, n)
		g.byID[s.ID] = n
	}
	for _, s := range p.Steps {
		to := g.byID[s.ID]
		for _, dep := range s.DependsOn {
			from := g.byID[dep]
			if from == nil || from == to {
				continue
			}
			g.Edges = append(g.Edges, &Edge{From: from, To: to})
		}
	}
	return g
}
