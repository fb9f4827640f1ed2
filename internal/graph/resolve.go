package graph

import (
	"container/heap"
	"sort"

	"github.com/rzbill/forgeq/internal/feature"
)

// Resolution is a topological ordering of a snapshot plus whatever could not
// be ordered because of cycles.
type Resolution struct {
	// Ordered lists features so that each comes after its dependencies; ties
	// break on (priority, id).
	Ordered []feature.Feature `json:"ordered"`
	// Circular lists each cycle as the sorted ids of a strongly connected
	// component (or a single self-dependent feature).
	Circular [][]int64 `json:"circular_dependencies"`
	// Unresolved holds ids left out of Ordered: cycle members and everything
	// waiting on them.
	Unresolved []int64 `json:"unresolved,omitempty"`
}

// Resolve orders features with Kahn's algorithm. Dependency ids missing from
// the snapshot are ignored.
func Resolve(features []feature.Feature) Resolution {
	return Build(features).Resolve()
}

// Resolve is the method form of Resolve.
func (g *Graph) Resolve() Resolution {
	indegree := make(map[int64]int, len(g.IDs))
	for _, id := range g.IDs {
		for _, d := range g.Deps[id] {
			if _, ok := g.Nodes[d]; ok {
				indegree[id]++
			}
		}
	}

	rank := make(map[int64]int, len(g.IDs))
	for i, id := range g.IDs {
		rank[id] = i
	}
	pq := &idHeap{rank: rank}
	for _, id := range g.IDs {
		if indegree[id] == 0 {
			heap.Push(pq, id)
		}
	}

	res := Resolution{Circular: [][]int64{}}
	done := make(map[int64]bool, len(g.IDs))
	for pq.Len() > 0 {
		id := heap.Pop(pq).(int64)
		done[id] = true
		res.Ordered = append(res.Ordered, *g.Nodes[id])
		for _, next := range g.Dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				heap.Push(pq, next)
			}
		}
	}

	var rest []int64
	for _, id := range g.IDs {
		if !done[id] {
			rest = append(rest, id)
		}
	}
	if len(rest) == 0 {
		return res
	}
	res.Unresolved = feature.SortIDs(rest)
	res.Circular = g.cycles(rest)
	return res
}

// cycles returns the strongly connected components among ids that contain a
// cycle, found with an iterative Kosaraju pass.
func (g *Graph) cycles(ids []int64) [][]int64 {
	in := make(map[int64]bool, len(ids))
	for _, id := range ids {
		in[id] = true
	}
	deps := func(n int64) []int64 {
		var out []int64
		for _, d := range g.Deps[n] {
			if in[d] {
				out = append(out, d)
			}
		}
		return out
	}

	// First pass: finish order along dependency edges.
	type frame struct {
		id   int64
		next []int64
	}
	visited := make(map[int64]bool, len(ids))
	var finish []int64
	for _, root := range ids {
		if visited[root] {
			continue
		}
		visited[root] = true
		stack := []frame{{id: root, next: deps(root)}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if len(top.next) == 0 {
				finish = append(finish, top.id)
				stack = stack[:len(stack)-1]
				continue
			}
			n := top.next[0]
			top.next = top.next[1:]
			if !visited[n] {
				visited[n] = true
				stack = append(stack, frame{id: n, next: deps(n)})
			}
		}
	}

	// Second pass: collect components along reversed edges.
	assigned := make(map[int64]bool, len(ids))
	var out [][]int64
	for i := len(finish) - 1; i >= 0; i-- {
		root := finish[i]
		if assigned[root] {
			continue
		}
		assigned[root] = true
		comp := []int64{root}
		stack := []int64{root}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, m := range g.Dependents[n] {
				if in[m] && !assigned[m] {
					assigned[m] = true
					comp = append(comp, m)
					stack = append(stack, m)
				}
			}
		}
		if len(comp) > 1 || g.Nodes[root].HasDependency(root) {
			out = append(out, feature.SortIDs(comp))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// idHeap pops ids in (priority, id) order using their rank in Graph.IDs.
type idHeap struct {
	ids  []int64
	rank map[int64]int
}

func (h idHeap) Len() int            { return len(h.ids) }
func (h idHeap) Less(i, j int) bool  { return h.rank[h.ids[i]] < h.rank[h.ids[j]] }
func (h idHeap) Swap(i, j int)       { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }
func (h *idHeap) Push(x interface{}) { h.ids = append(h.ids, x.(int64)) }
func (h *idHeap) Pop() interface{} {
	old := h.ids
	n := len(old)
	x := old[n-1]
	h.ids = old[:n-1]
	return x
}
