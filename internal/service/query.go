package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/filter"
	"github.com/rzbill/forgeq/internal/graph"
	"github.com/rzbill/forgeq/internal/store"
)

// Operation names for queries that have no store counterpart.
const (
	OpReady      = "ready"
	OpBlocked    = "blocked"
	OpGraph      = "graph"
	OpRegression = "regression"
	OpResolve    = "resolve"
	OpSummary    = "summary"
	OpOverview   = "overview"
)

// ReadyResult is a page of claimable features in scheduling order.
type ReadyResult struct {
	Features   []feature.Feature `json:"features"`
	Count      int               `json:"count"`
	TotalReady int               `json:"total_ready"`
}

// BlockedResult is a page of features waiting on unmet dependencies.
type BlockedResult struct {
	Features     []graph.BlockedFeature `json:"features"`
	Count        int                    `json:"count"`
	TotalBlocked int                    `json:"total_blocked"`
}

// GraphNode is one feature in a graph view.
type GraphNode struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Category     string         `json:"category"`
	Status       feature.Status `json:"status"`
	Priority     int64          `json:"priority"`
	Dependencies []int64        `json:"dependencies"`
}

// GraphEdge points from a dependency (Source) to its dependent (Target).
type GraphEdge struct {
	Source int64 `json:"source"`
	Target int64 `json:"target"`
}

// GraphView is the whole dependency graph for rendering.
type GraphView struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Summary is the short form of a feature.
type Summary struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Passes       bool    `json:"passes"`
	InProgress   bool    `json:"in_progress"`
	Dependencies []int64 `json:"dependencies"`
}

// ListedFeature is a feature with the status derived from the same read.
type ListedFeature struct {
	feature.Feature
	Status feature.Status `json:"status"`
}

// RegressionResult is a random sample of passing features to re-verify.
type RegressionResult struct {
	Features []feature.Feature `json:"features"`
	Count    int               `json:"count"`
}

// Overview combines the headline numbers of a backlog.
type Overview struct {
	Stats    feature.Stats `json:"stats"`
	Ready    int           `json:"ready"`
	Blocked  int           `json:"blocked"`
	Next     []int64       `json:"next"`
	Circular [][]int64     `json:"circular_dependencies"`
}

// Get returns one feature.
func (s *Service) Get(ctx context.Context, id int64) (f feature.Feature, err error) {
	defer func(start time.Time) { s.observe(store.OpGet, id, start, err) }(time.Now())
	return s.store.Get(ctx, id)
}

// Summary returns the short form of one feature.
func (s *Service) Summary(ctx context.Context, id int64) (out Summary, err error) {
	defer func(start time.Time) { s.observe(OpSummary, id, start, err) }(time.Now())
	f, err := s.store.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summary{ID: f.ID, Name: f.Name, Passes: f.Passes, InProgress: f.InProgress, Dependencies: f.Dependencies}, nil
}

// List returns every feature matching expr (all when empty) in (priority, id) order.
func (s *Service) List(ctx context.Context, expr string) (out []ListedFeature, err error) {
	defer func(start time.Time) { s.observe(store.OpList, 0, start, err) }(time.Now())
	flt, err := filter.Compile(expr)
	if err != nil {
		return nil, err
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	status := statusFunc(all)
	matched := flt.Apply(all, status)
	out = make([]ListedFeature, len(matched))
	for i, f := range matched {
		out[i] = ListedFeature{Feature: f, Status: status(f)}
	}
	return out, nil
}

// Stats returns completion counts.
func (s *Service) Stats(ctx context.Context) (st feature.Stats, err error) {
	defer func(start time.Time) { s.observe(store.OpStats, 0, start, err) }(time.Now())
	st, err = s.store.Stats(ctx)
	if err == nil {
		s.metrics.SetStats(st)
	}
	return st, err
}

// Ready returns up to n claimable features (0 means DefaultReadyLimit) in
// scheduling order: most transitive dependents first, then priority, then id.
// expr is an optional filter expression.
func (s *Service) Ready(ctx context.Context, n int, expr string) (res ReadyResult, err error) {
	defer func(start time.Time) { s.observe(OpReady, 0, start, err) }(time.Now())
	if n, err = limit(OpReady, n, DefaultReadyLimit, MaxReadyLimit); err != nil {
		return ReadyResult{}, err
	}
	flt, err := filter.Compile(expr)
	if err != nil {
		return ReadyResult{}, err
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return ReadyResult{}, err
	}
	ready := flt.Apply(graph.RankedReady(all), statusFunc(all))
	page := head(ready, n)
	return ReadyResult{Features: page, Count: len(page), TotalReady: len(ready)}, nil
}

// Blocked returns up to n blocked features (0 means DefaultBlockedLimit).
func (s *Service) Blocked(ctx context.Context, n int) (res BlockedResult, err error) {
	defer func(start time.Time) { s.observe(OpBlocked, 0, start, err) }(time.Now())
	if n, err = limit(OpBlocked, n, DefaultBlockedLimit, MaxBlockedLimit); err != nil {
		return BlockedResult{}, err
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return BlockedResult{}, err
	}
	blocked := graph.Blocked(all)
	page := blocked
	if len(page) > n {
		page = page[:n]
	}
	if page == nil {
		page = []graph.BlockedFeature{}
	}
	return BlockedResult{Features: page, Count: len(page), TotalBlocked: len(blocked)}, nil
}

// Graph returns every feature as a node and every dependency as an edge.
func (s *Service) Graph(ctx context.Context) (view GraphView, err error) {
	defer func(start time.Time) { s.observe(OpGraph, 0, start, err) }(time.Now())
	all, err := s.store.List(ctx)
	if err != nil {
		return GraphView{}, err
	}
	passing := graph.PassingSet(all)
	present := make(map[int64]bool, len(all))
	for _, f := range all {
		present[f.ID] = true
	}
	view = GraphView{Nodes: make([]GraphNode, 0, len(all)), Edges: []GraphEdge{}}
	for _, f := range all {
		view.Nodes = append(view.Nodes, GraphNode{
			ID:           f.ID,
			Name:         f.Name,
			Category:     f.Category,
			Status:       graph.StatusOf(f, passing),
			Priority:     f.Priority,
			Dependencies: f.Dependencies,
		})
		for _, d := range f.Dependencies {
			if present[d] {
				view.Edges = append(view.Edges, GraphEdge{Source: d, Target: f.ID})
			}
		}
	}
	return view, nil
}

// Regression returns up to n passing features (0 means
// DefaultRegressionLimit) chosen at random.
func (s *Service) Regression(ctx context.Context, n int) (res RegressionResult, err error) {
	defer func(start time.Time) { s.observe(OpRegression, 0, start, err) }(time.Now())
	if n, err = limit(OpRegression, n, DefaultRegressionLimit, MaxRegressionLimit); err != nil {
		return RegressionResult{}, err
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return RegressionResult{}, err
	}
	passing := make([]feature.Feature, 0, len(all))
	for _, f := range all {
		if f.Passes {
			passing = append(passing, f)
		}
	}
	s.shuffle(len(passing), func(i, j int) { passing[i], passing[j] = passing[j], passing[i] })
	page := head(passing, n)
	return RegressionResult{Features: page, Count: len(page)}, nil
}

// Resolve orders the backlog topologically and reports cycles.
func (s *Service) Resolve(ctx context.Context) (res graph.Resolution, err error) {
	defer func(start time.Time) { s.observe(OpResolve, 0, start, err) }(time.Now())
	all, err := s.store.List(ctx)
	if err != nil {
		return graph.Resolution{}, err
	}
	res = graph.Resolve(all)
	if res.Ordered == nil {
		res.Ordered = []feature.Feature{}
	}
	if res.Circular == nil {
		res.Circular = [][]int64{}
	}
	return res, nil
}

// Overview computes stats, readiness, blockage and cycles from one snapshot.
// The graph passes are independent and run concurrently.
func (s *Service) Overview(ctx context.Context) (ov Overview, err error) {
	defer func(start time.Time) { s.observe(OpOverview, 0, start, err) }(time.Now())
	all, err := s.store.List(ctx)
	if err != nil {
		return Overview{}, err
	}
	ov.Stats = feature.StatsOf(all)
	s.metrics.SetStats(ov.Stats)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		ready := graph.RankedReady(all)
		ov.Ready = len(ready)
		ov.Next = make([]int64, 0, 3)
		for _, f := range head(ready, 3) {
			ov.Next = append(ov.Next, f.ID)
		}
		return nil
	})
	g.Go(func() error {
		ov.Blocked = len(graph.Blocked(all))
		return nil
	})
	g.Go(func() error {
		ov.Circular = graph.Resolve(all).Circular
		if ov.Circular == nil {
			ov.Circular = [][]int64{}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return ov, nil
}

func head(fs []feature.Feature, n int) []feature.Feature {
	if len(fs) > n {
		fs = fs[:n]
	}
	if fs == nil {
		fs = []feature.Feature{}
	}
	return fs
}

func statusFunc(all []feature.Feature) func(feature.Feature) feature.Status {
	passing := graph.PassingSet(all)
	return func(f feature.Feature) feature.Status { return graph.StatusOf(f, passing) }
}
