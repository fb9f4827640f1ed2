package feature

import (
	"math"
	"sort"
)

// DefaultMaxDependencies is the per-feature fan-in limit used when none is configured.
const DefaultMaxDependencies = 20

// Feature is one unit of implementation or verification work.
type Feature struct {
	ID           int64    `json:"id"`
	Priority     int64    `json:"priority"`
	Category     string   `json:"category"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Steps        []string `json:"steps"`
	Passes       bool     `json:"passes"`
	InProgress   bool     `json:"in_progress"`
	Dependencies []int64  `json:"dependencies"`
}

// Clone returns a deep copy.
func (f Feature) Clone() Feature {
	out := f
	out.Steps = append([]string(nil), f.Steps...)
	out.Dependencies = append([]int64{}, f.Dependencies...)
	return out
}

// HasDependency reports whether id is in f's dependency set.
func (f Feature) HasDependency(id int64) bool {
	for _, d := range f.Dependencies {
		if d == id {
			return true
		}
	}
	return false
}

// Status is the derived display state of a feature.
type Status string

const (
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
	StatusInProgress Status = "in_progress"
	StatusPending    Status = "pending"
)

// DeriveStatus maps a feature and whether its dependencies are met to a Status.
// Passing wins over blocked, which wins over in-progress.
func DeriveStatus(f Feature, satisfied bool) Status {
	switch {
	case f.Passes:
		return StatusDone
	case !satisfied:
		return StatusBlocked
	case f.InProgress:
		return StatusInProgress
	default:
		return StatusPending
	}
}

// Spec describes a feature to create. DependsOnIndices is only meaningful in a
// bulk request, where it names earlier entries of the same batch.
type Spec struct {
	Category         string   `json:"category" yaml:"category" validate:"required,max=100"`
	Name             string   `json:"name" yaml:"name" validate:"required,max=255"`
	Description      string   `json:"description" yaml:"description" validate:"required"`
	Steps            []string `json:"steps" yaml:"steps" validate:"required,min=1"`
	DependsOnIndices []int    `json:"depends_on_indices,omitempty" yaml:"depends_on_indices,omitempty"`
}

// BulkResult summarises a bulk create.
type BulkResult struct {
	Created          int     `json:"created"`
	WithDependencies int     `json:"with_dependencies"`
	IDs              []int64 `json:"ids,omitempty"`
}

// SkipResult reports a priority change made by Skip.
type SkipResult struct {
	Feature     Feature
	OldPriority int64
	NewPriority int64
}

// Stats is the completion summary of a backlog.
type Stats struct {
	Passing    int     `json:"passing"`
	InProgress int     `json:"in_progress"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// ComputeStats builds Stats, rounding the percentage to one decimal with
// halves going to the even digit (1 of 16 is 6.2).
func ComputeStats(passing, inProgress, total int) Stats {
	s := Stats{Passing: passing, InProgress: inProgress, Total: total}
	if total > 0 {
		s.Percentage = math.RoundToEven(float64(passing)/float64(total)*1000) / 10
	}
	return s
}

// StatsOf counts a feature list.
func StatsOf(all []Feature) Stats {
	passing, inProgress := 0, 0
	for _, f := range all {
		if f.Passes {
			passing++
		}
		if f.InProgress {
			inProgress++
		}
	}
	return ComputeStats(passing, inProgress, len(all))
}

// SortIDs returns a sorted copy of ids. A nil input yields an empty slice.
func SortIDs(ids []int64) []int64 {
	out := append([]int64{}, ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SortByPriority orders features by (priority, id) in place.
func SortByPriority(fs []Feature) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Priority != fs[j].Priority {
			return fs[i].Priority < fs[j].Priority
		}
		return fs[i].ID < fs[j].ID
	})
}
