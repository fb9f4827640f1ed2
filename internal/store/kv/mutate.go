package kv

import (
	"context"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/graph"
	"github.com/rzbill/forgeq/internal/store"
	logpkg "github.com/rzbill/forgeq/pkg/log"
)

func newFeature(id, priority int64, spec feature.Spec) feature.Feature {
	steps := append([]string{}, spec.Steps...)
	return feature.Feature{
		ID:           id,
		Priority:     priority,
		Category:     spec.Category,
		Name:         spec.Name,
		Description:  spec.Description,
		Steps:        steps,
		Dependencies: []int64{},
	}
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, spec feature.Spec) (feature.Feature, error) {
	if err := feature.ValidateSpec(spec); err != nil {
		return feature.Feature{}, feature.E(store.OpCreate, 0, err)
	}
	var out feature.Feature
	err := s.write(ctx, store.OpCreate, func(b *pebble.Batch) error {
		all, err := s.loadAll(nil)
		if err != nil {
			return err
		}
		id, err := s.allocateIDs(b, 1)
		if err != nil {
			return err
		}
		out = newFeature(id, maxPriority(all)+1, spec)
		return s.put(b, out)
	})
	if err != nil {
		return feature.Feature{}, err
	}
	s.logger.Info("feature created", logpkg.FeatureID(out.ID), logpkg.Int64("priority", out.Priority))
	return out, nil
}

// CreateBulk implements store.Store.
func (s *Store) CreateBulk(ctx context.Context, specs []feature.Spec) (feature.BulkResult, error) {
	if err := graph.ValidateBulk(specs, s.opts.MaxDeps()); err != nil {
		return feature.BulkResult{}, err
	}
	var res feature.BulkResult
	err := s.write(ctx, store.OpCreateBulk, func(b *pebble.Batch) error {
		all, err := s.loadAll(nil)
		if err != nil {
			return err
		}
		first, err := s.allocateIDs(b, len(specs))
		if err != nil {
			return err
		}
		start := maxPriority(all) + 1
		ids := make([]int64, len(specs))
		for i := range specs {
			ids[i] = first + int64(i)
		}
		withDeps := 0
		for i, deps := range graph.ResolveBulkDependencies(specs, ids) {
			f := newFeature(ids[i], start+int64(i), specs[i])
			if len(deps) > 0 {
				f.Dependencies = deps
				withDeps++
			}
			if err := s.put(b, f); err != nil {
				return err
			}
		}
		res = feature.BulkResult{Created: len(ids), WithDependencies: withDeps, IDs: ids}
		return nil
	})
	if err != nil {
		return feature.BulkResult{}, err
	}
	s.logger.Info("features created", logpkg.Int("created", res.Created), logpkg.Int("with_dependencies", res.WithDependencies))
	return res, nil
}

// Delete implements store.Store. Every feature listing id loses that edge in
// the same batch.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.write(ctx, store.OpDelete, func(b *pebble.Batch) error {
		all, err := s.loadAll(nil)
		if err != nil {
			return err
		}
		found := false
		for _, f := range all {
			if f.ID == id {
				found = true
				continue
			}
			if !f.HasDependency(id) {
				continue
			}
			kept := make([]int64, 0, len(f.Dependencies)-1)
			for _, d := range f.Dependencies {
				if d != id {
					kept = append(kept, d)
				}
			}
			f.Dependencies = kept
			if err := s.put(b, f); err != nil {
				return err
			}
		}
		if !found {
			return feature.NotFound(store.OpDelete, id)
		}
		return b.Delete(FeatureKey(s.project, id), nil)
	})
}

func (s *Store) editDependencies(ctx context.Context, op string, featureID int64, plan func(g *graph.Graph) ([]int64, error)) ([]int64, error) {
	var out []int64
	err := s.write(ctx, op, func(b *pebble.Batch) error {
		all, err := s.loadAll(nil)
		if err != nil {
			return err
		}
		g := graph.Build(all)
		deps, err := plan(g)
		if err != nil {
			return err
		}
		f := *g.Nodes[featureID]
		f.Dependencies = deps
		out = deps
		return s.put(b, f)
	})
	if err != nil {
		s.logger.Debug("dependency edit refused", logpkg.Operation(op), logpkg.FeatureID(featureID), logpkg.Err(err))
		return nil, err
	}
	s.logger.Info("dependencies updated", logpkg.Operation(op), logpkg.FeatureID(featureID), logpkg.Ints("dependencies", out))
	return out, nil
}

// AddDependency implements store.Store.
func (s *Store) AddDependency(ctx context.Context, featureID, dependencyID int64) ([]int64, error) {
	return s.editDependencies(ctx, store.OpAddDependency, featureID, func(g *graph.Graph) ([]int64, error) {
		return graph.PlanAdd(g, featureID, dependencyID, s.opts.MaxDeps())
	})
}

// RemoveDependency implements store.Store.
func (s *Store) RemoveDependency(ctx context.Context, featureID, dependencyID int64) ([]int64, error) {
	return s.editDependencies(ctx, store.OpRemoveDependency, featureID, func(g *graph.Graph) ([]int64, error) {
		return graph.PlanRemove(g, featureID, dependencyID)
	})
}

// SetDependencies implements store.Store.
func (s *Store) SetDependencies(ctx context.Context, featureID int64, dependencyIDs []int64) ([]int64, error) {
	return s.editDependencies(ctx, store.OpSetDependencies, featureID, func(g *graph.Graph) ([]int64, error) {
		return graph.PlanSet(g, featureID, dependencyIDs, s.opts.MaxDeps())
	})
}
