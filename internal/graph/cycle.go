package graph

import "github.com/rzbill/forgeq/internal/feature"

// WouldCreateCycle reports whether making source depend on target would close
// a cycle: true when source == target or when target already depends,
// directly or transitively, on source.
func WouldCreateCycle(features []feature.Feature, source, target int64) bool {
	if source == target {
		return true
	}
	return Build(features).DependsOn(target, source)
}

// WouldCreateCycle is the method form for callers that already hold a Graph.
func (g *Graph) WouldCreateCycle(source, target int64) bool {
	return source == target || g.DependsOn(target, source)
}
