package sqlite

import (
	"context"
	"database/sql"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/graph"
	"github.com/rzbill/forgeq/internal/store"
	logpkg "github.com/rzbill/forgeq/pkg/log"
)

const (
	insertFeatureSQL = `INSERT INTO features (priority, category, name, description, steps, passes, in_progress)
VALUES (?, ?, ?, ?, ?, 0, 0)`
	nextPrioritySQL = `SELECT COALESCE(MAX(priority), 0) + 1 FROM features`
	insertEdgeSQL   = `INSERT INTO feature_dependencies (feature_id, depends_on_id) VALUES (?, ?)`
)

func insertFeature(ctx context.Context, tx *sql.Tx, priority int64, spec feature.Spec) (int64, error) {
	steps, err := encodeSteps(spec.Steps)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, insertFeatureSQL, priority, spec.Category, spec.Name, spec.Description, steps)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nextPriority(ctx context.Context, tx *sql.Tx) (int64, error) {
	var p int64
	err := tx.QueryRowContext(ctx, nextPrioritySQL).Scan(&p)
	return p, err
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, spec feature.Spec) (feature.Feature, error) {
	if err := feature.ValidateSpec(spec); err != nil {
		return feature.Feature{}, feature.E(store.OpCreate, 0, err)
	}
	var out feature.Feature
	err := s.withTx(ctx, store.OpCreate, func(tx *sql.Tx) error {
		p, err := nextPriority(ctx, tx)
		if err != nil {
			return err
		}
		id, err := insertFeature(ctx, tx, p, spec)
		if err != nil {
			return err
		}
		f, err := getFeature(ctx, tx, id)
		if err != nil {
			return err
		}
		out = *f
		return nil
	})
	if err != nil {
		return feature.Feature{}, err
	}
	s.logger.Info("feature created", logpkg.FeatureID(out.ID), logpkg.Int64("priority", out.Priority))
	return out, nil
}

// CreateBulk implements store.Store. Validation happens before the
// transaction opens; the inserts and edge resolution share one transaction.
func (s *Store) CreateBulk(ctx context.Context, specs []feature.Spec) (feature.BulkResult, error) {
	if err := graph.ValidateBulk(specs, s.opts.MaxDeps()); err != nil {
		return feature.BulkResult{}, err
	}
	var res feature.BulkResult
	err := s.withTx(ctx, store.OpCreateBulk, func(tx *sql.Tx) error {
		start, err := nextPriority(ctx, tx)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(specs))
		for i, spec := range specs {
			id, err := insertFeature(ctx, tx, start+int64(i), spec)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		withDeps := 0
		for i, deps := range graph.ResolveBulkDependencies(specs, ids) {
			if len(deps) == 0 {
				continue
			}
			withDeps++
			for _, d := range deps {
				if _, err := tx.ExecContext(ctx, insertEdgeSQL, ids[i], d); err != nil {
					return err
				}
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

// Delete implements store.Store. Edges in both directions go with the row.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.withTx(ctx, store.OpDelete, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM feature_dependencies WHERE feature_id = ? OR depends_on_id = ?`, id, id); err != nil {
			return err
		}
		n, err := execCount(ctx, tx, `DELETE FROM features WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return feature.NotFound(store.OpDelete, id)
		}
		return nil
	})
}

// editDependencies loads the full snapshot under the write lock, lets plan
// validate it, and replaces featureID's edges with the planned set.
func (s *Store) editDependencies(ctx context.Context, op string, featureID int64, plan func(g *graph.Graph) ([]int64, error)) ([]int64, error) {
	var out []int64
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		all, err := listFeatures(ctx, tx)
		if err != nil {
			return err
		}
		deps, err := plan(graph.Build(all))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM feature_dependencies WHERE feature_id = ?`, featureID); err != nil {
			return err
		}
		for _, d := range deps {
			if _, err := tx.ExecContext(ctx, insertEdgeSQL, featureID, d); err != nil {
				return err
			}
		}
		out = deps
		return nil
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
