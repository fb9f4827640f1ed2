package graph

import (
	"sort"

	"github.com/rzbill/forgeq/internal/feature"
)

// Scores returns, for every feature, how many distinct features transitively
// wait on it. A feature never counts itself, so cycles and self-loops still
// produce finite scores.
func Scores(features []feature.Feature) map[int64]int {
	return Build(features).Scores()
}

// Scores is the method form of Scores.
func (g *Graph) Scores() map[int64]int {
	scores := make(map[int64]int, len(g.IDs))
	for _, id := range g.IDs {
		scores[id] = g.countDependents(id)
	}
	return scores
}

func (g *Graph) countDependents(id int64) int {
	visited := map[int64]struct{}{id: {}}
	queue := append([]int64(nil), g.Dependents[id]...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if _, ok := visited[n]; ok {
			continue
		}
		visited[n] = struct{}{}
		for _, next := range g.Dependents[n] {
			if _, ok := visited[next]; !ok {
				queue = append(queue, next)
			}
		}
	}
	return len(visited) - 1
}

// SortReady orders features for scheduling: higher score first, then lower
// priority, then lower id. Features without a score rank as zero.
func SortReady(fs []feature.Feature, scores map[int64]int) {
	sort.SliceStable(fs, func(i, j int) bool {
		si, sj := scores[fs[i].ID], scores[fs[j].ID]
		if si != sj {
			return si > sj
		}
		if fs[i].Priority != fs[j].Priority {
			return fs[i].Priority < fs[j].Priority
		}
		return fs[i].ID < fs[j].ID
	})
}
