package graph

import (
	"sort"

	"github.com/rzbill/forgeq/internal/feature"
)

// BlockedFeature is a feature with the dependency ids that are not yet passing.
type BlockedFeature struct {
	feature.Feature
	BlockedBy []int64 `json:"blocked_by"`
}

// PassingSet returns the ids of passing features.
func PassingSet(all []feature.Feature) map[int64]bool {
	set := make(map[int64]bool, len(all))
	for _, f := range all {
		if f.Passes {
			set[f.ID] = true
		}
	}
	return set
}

// DependenciesSatisfied reports whether every dependency of f is passing.
// A dependency id absent from all is unmet.
func DependenciesSatisfied(f feature.Feature, all []feature.Feature) bool {
	return len(unmet(f, PassingSet(all))) == 0
}

// BlockingDependencies returns the sorted ids of f's unmet dependencies.
func BlockingDependencies(f feature.Feature, all []feature.Feature) []int64 {
	return unmet(f, PassingSet(all))
}

func unmet(f feature.Feature, passing map[int64]bool) []int64 {
	var out []int64
	for _, d := range f.Dependencies {
		if !passing[d] {
			out = append(out, d)
		}
	}
	if len(out) > 1 {
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	}
	return out
}

// StatusOf derives the display status of f given the passing set.
func StatusOf(f feature.Feature, passing map[int64]bool) feature.Status {
	return feature.DeriveStatus(f, len(unmet(f, passing)) == 0)
}

// Ready returns features that are neither passing nor claimed and whose
// dependencies all pass, in (priority, id) order.
func Ready(all []feature.Feature) []feature.Feature {
	passing := PassingSet(all)
	var out []feature.Feature
	for _, f := range all {
		if f.Passes || f.InProgress {
			continue
		}
		if len(unmet(f, passing)) == 0 {
			out = append(out, f)
		}
	}
	feature.SortByPriority(out)
	return out
}

// RankedReady returns Ready(all) in scheduling order (see SortReady).
func RankedReady(all []feature.Feature) []feature.Feature {
	ready := Ready(all)
	SortReady(ready, Scores(all))
	return ready
}

// Blocked returns every non-passing feature with at least one unmet
// dependency, in (priority, id) order.
func Blocked(all []feature.Feature) []BlockedFeature {
	passing := PassingSet(all)
	var out []BlockedFeature
	for _, f := range all {
		if f.Passes {
			continue
		}
		if blocking := unmet(f, passing); len(blocking) > 0 {
			out = append(out, BlockedFeature{Feature: f, BlockedBy: blocking})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}
