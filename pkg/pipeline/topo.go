package pipeline

import (
	"errors"
	"sort"
)

// ErrCycle is returned by TopoLevels when the dependency graph has a cycle.
var ErrCycle = errors.New("pipeline: dependency cycle")

// TopoLevels groups step ids into execution waves: every step in level i has
// all of its dependencies in levels < i. Dependencies on unknown ids are
// ignored, matching the graph builder. Ids within a level keep definition
// order.
func TopoLevels(p *Pipeline) ([][]string, error) {
	known := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		known[s.ID] = true
	}

	indeg := make(map[string]int, len(p.Steps))
	dependents := make(map[string][]string)
	order := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		order = append(order, s.ID)
		for _, dep := range s.DependsOn {
			if !known[dep] || dep == s.ID {
				continue
			}
			indeg[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}

	var levels [][]string
	frontier := make([]string, 0, len(order))
	for _, id := range order {
		if indeg[id] == 0 {
			frontier = append(frontier, id)
		}
	}
	placed := 0
	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool { return pos[frontier[i]] < pos[frontier[j]] })
		levels = append(levels, frontier)
		placed += len(frontier)
		var next []string
		for _, id := range frontier {
			for _, dep := range dependents[id] {
				indeg[dep]--
				if indeg[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		frontier = next
	}
	if placed != len(order) {
		return nil, ErrCycle
	}
	return levels, nil
}

// CycleMembers returns the ids of steps caught in a dependency cycle, or nil
// when the graph is acyclic. Steps that merely depend on a cycle without
// being part of one are included, since they can never run either.
func CycleMembers(p *Pipeline) []string {
	if _, err := TopoLevels(p); err == nil {
		return nil
	}
	// Re-run Kahn, recording which steps do resolve; the rest are stuck.
	reached := make(map[string]bool, len(p.Steps))
	known := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		known[s.ID] = true
	}
	indeg := make(map[string]int, len(p.Steps))
	dependents := make(map[string][]string)
	var frontier []string
	for _, s := range p.Steps {
		deg := 0
		for _, dep := range s.DependsOn {
			if known[dep] && dep != s.ID {
				deg++
				dependents[dep] = append(dependents[dep], s.ID)
			}
		}
		indeg[s.ID] = deg
		if deg == 0 {
			frontier = append(frontier, s.ID)
		}
	}
	for len(frontier) > 0 {
		id := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		reached[id] = true
		for _, dep := range dependents[id] {
			indeg[dep]--
			if indeg[dep] == 0 {
				frontier = append(frontier, dep)
			}
		}
	}
	var stuck []string
	for _, s := range p.Steps {
		if !reached[s.ID] {
			stuck = append(stuck, s.ID)
		}
	}
	return stuck
}
