// Package graph implements the read-only algorithms over a feature snapshot:
// cycle detection, scheduling scores, readiness and blockage classification,
// planning of dependency edits and topological resolution.
//
// Every traversal is iterative with an explicit visited set, so corrupted input
// (cycles, self-loops, dangling ids) cannot recurse without bound or loop forever.
package graph

import (
	"sort"

	"github.com/rzbill/forgeq/internal/feature"
)

// Graph indexes a feature snapshot by id.
type Graph struct {
	Nodes map[int64]*feature.Feature
	// Deps maps a feature to its dependency ids, deduplicated. Ids missing from
	// the snapshot are kept so reachability checks can still see them.
	Deps map[int64][]int64
	// Dependents maps a feature to the features that list it as a dependency.
	// Only edges between features present in the snapshot are recorded.
	Dependents map[int64][]int64
	// IDs lists every node in (priority, id) order.
	IDs []int64
}

// Build indexes features. The input slice is not retained.
func Build(features []feature.Feature) *Graph {
	g := &Graph{
		Nodes:      make(map[int64]*feature.Feature, len(features)),
		Deps:       make(map[int64][]int64, len(features)),
		Dependents: make(map[int64][]int64, len(features)),
	}
	ordered := make([]feature.Feature, len(features))
	copy(ordered, features)
	feature.SortByPriority(ordered)

	for i := range ordered {
		f := &ordered[i]
		g.Nodes[f.ID] = f
		g.IDs = append(g.IDs, f.ID)
	}
	for _, id := range g.IDs {
		seen := make(map[int64]struct{}, len(g.Nodes[id].Dependencies))
		for _, d := range g.Nodes[id].Dependencies {
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			g.Deps[id] = append(g.Deps[id], d)
			if _, ok := g.Nodes[d]; ok {
				g.Dependents[d] = append(g.Dependents[d], id)
			}
		}
	}
	for k := range g.Dependents {
		sort.Slice(g.Dependents[k], func(i, j int) bool { return g.Dependents[k][i] < g.Dependents[k][j] })
	}
	return g
}

// reaches reports whether to is reachable from from by following edges(node).
// from itself only counts when a path leads back to it.
func reaches(from, to int64, edges func(int64) []int64) bool {
	visited := map[int64]struct{}{}
	stack := append([]int64(nil), edges(from)...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if _, ok := visited[n]; ok {
			continue
		}
		visited[n] = struct{}{}
		stack = append(stack, edges(n)...)
	}
	return false
}

// DependsOn reports whether a transitively depends on b.
func (g *Graph) DependsOn(a, b int64) bool {
	return reaches(a, b, func(n int64) []int64 { return g.Deps[n] })
}
