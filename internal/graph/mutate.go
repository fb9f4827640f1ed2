package graph

import (
	"github.com/rzbill/forgeq/internal/feature"
)

// Operation names used in errors produced by the planners.
const (
	OpAddDependency    = "add_dependency"
	OpRemoveDependency = "remove_dependency"
	OpSetDependencies  = "set_dependencies"
	OpCreateBulk       = "create_bulk"
)

// PlanAdd validates adding depID to featureID's dependencies against the
// snapshot and returns the new sorted dependency list. Checks run in order:
// self-reference, existence, fan-in limit, already present, cycle.
func PlanAdd(g *Graph, featureID, depID int64, maxDeps int) ([]int64, error) {
	if featureID == depID {
		return nil, feature.Errf(OpAddDependency, featureID, feature.ErrInvalidRequest, "a feature cannot depend on itself")
	}
	f, ok := g.Nodes[featureID]
	if !ok {
		return nil, feature.NotFound(OpAddDependency, featureID)
	}
	if _, ok := g.Nodes[depID]; !ok {
		return nil, feature.Errf(OpAddDependency, featureID, feature.ErrNotFound, "dependency feature %d not found", depID)
	}
	if len(f.Dependencies) >= maxDeps {
		return nil, feature.Errf(OpAddDependency, featureID, feature.ErrLimitExceeded, "maximum %d dependencies allowed per feature", maxDeps)
	}
	if f.HasDependency(depID) {
		return nil, feature.Errf(OpAddDependency, featureID, feature.ErrInvalidRequest, "dependency %d already exists", depID)
	}
	if g.WouldCreateCycle(featureID, depID) {
		return nil, feature.E(OpAddDependency, featureID, feature.ErrCircularDependency)
	}
	return feature.SortIDs(append(append([]int64{}, f.Dependencies...), depID)), nil
}

// PlanRemove validates removing depID and returns the remaining sorted list.
func PlanRemove(g *Graph, featureID, depID int64) ([]int64, error) {
	f, ok := g.Nodes[featureID]
	if !ok {
		return nil, feature.NotFound(OpRemoveDependency, featureID)
	}
	if !f.HasDependency(depID) {
		return nil, feature.Errf(OpRemoveDependency, featureID, feature.ErrNotFound, "dependency %d does not exist", depID)
	}
	out := make([]int64, 0, len(f.Dependencies))
	for _, d := range f.Dependencies {
		if d != depID {
			out = append(out, d)
		}
	}
	return feature.SortIDs(out), nil
}

// PlanSet validates replacing featureID's dependencies with deps. The cycle
// check runs against a copy of the snapshot in which featureID already has
// the new set, so edges being dropped cannot mask or fake a cycle.
func PlanSet(g *Graph, featureID int64, deps []int64, maxDeps int) ([]int64, error) {
	if err := feature.CheckSelfReference(OpSetDependencies, featureID, deps); err != nil {
		return nil, err
	}
	if _, ok := g.Nodes[featureID]; !ok {
		return nil, feature.NotFound(OpSetDependencies, featureID)
	}
	exists := func(id int64) bool { _, ok := g.Nodes[id]; return ok }
	if err := feature.CheckExists(OpSetDependencies, featureID, deps, exists); err != nil {
		return nil, err
	}
	if err := feature.CheckFanIn(OpSetDependencies, featureID, len(deps), maxDeps); err != nil {
		return nil, err
	}
	if err := feature.CheckDuplicates(OpSetDependencies, featureID, deps); err != nil {
		return nil, err
	}

	test := g.withDeps(featureID, deps)
	for _, d := range deps {
		if test.WouldCreateCycle(featureID, d) {
			return nil, feature.Errf(OpSetDependencies, featureID, feature.ErrCircularDependency, "cannot add dependency %d", d)
		}
	}
	return feature.SortIDs(deps), nil
}

// withDeps returns a graph equal to g except that id depends on deps.
func (g *Graph) withDeps(id int64, deps []int64) *Graph {
	fs := make([]feature.Feature, 0, len(g.IDs))
	for _, n := range g.IDs {
		f := *g.Nodes[n]
		if n == id {
			f.Dependencies = deps
		}
		fs = append(fs, f)
	}
	return Build(fs)
}

// ValidateBulk checks a bulk request before anything is written. Each entry
// must pass ValidateSpec and may only reference earlier entries, at most
// maxDeps of them, without repeats.
func ValidateBulk(specs []feature.Spec, maxDeps int) error {
	if len(specs) == 0 {
		return feature.Errf(OpCreateBulk, 0, feature.ErrInvalidRequest, "no features given")
	}
	for i, s := range specs {
		if err := feature.ValidateSpec(s); err != nil {
			return feature.AtIndex(OpCreateBulk, i, feature.ErrInvalidRequest,
				"missing or invalid required fields (category, name, description, steps): %s", feature.DescribeValidation(err))
		}
		idx := s.DependsOnIndices
		if len(idx) == 0 {
			continue
		}
		if len(idx) > maxDeps {
			return feature.AtIndex(OpCreateBulk, i, feature.ErrLimitExceeded, "has %d dependencies, max is %d", len(idx), maxDeps)
		}
		seen := make(map[int]struct{}, len(idx))
		for _, d := range idx {
			if _, dup := seen[d]; dup {
				return feature.AtIndex(OpCreateBulk, i, feature.ErrInvalidRequest, "has duplicate dependencies")
			}
			seen[d] = struct{}{}
		}
		for _, d := range idx {
			if d < 0 {
				return feature.AtIndex(OpCreateBulk, i, feature.ErrInvalidRequest, "has invalid dependency index: %d", d)
			}
			if d >= i {
				return feature.AtIndex(OpCreateBulk, i, feature.ErrInvalidRequest,
					"cannot depend on feature at index %d (forward reference not allowed)", d)
			}
		}
	}
	return nil
}

// ResolveBulkDependencies maps each spec's DependsOnIndices onto the ids
// assigned to the batch, returning sorted id lists (nil when none).
func ResolveBulkDependencies(specs []feature.Spec, ids []int64) [][]int64 {
	out := make([][]int64, len(specs))
	for i, s := range specs {
		if len(s.DependsOnIndices) == 0 {
			continue
		}
		deps := make([]int64, 0, len(s.DependsOnIndices))
		for _, idx := range s.DependsOnIndices {
			deps = append(deps, ids[idx])
		}
		out[i] = feature.SortIDs(deps)
	}
	return out
}
