package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/store"
	logpkg "github.com/rzbill/forgeq/pkg/log"
)

const (
	claimSQL      = `UPDATE features SET in_progress = 1 WHERE id = ? AND passes = 0 AND in_progress = 0`
	passSQL       = `UPDATE features SET passes = 1, in_progress = 0 WHERE id = ? AND passes = 0`
	failSQL       = `UPDATE features SET passes = 0, in_progress = 0 WHERE id = ?`
	releaseSQL    = `UPDATE features SET in_progress = 0 WHERE id = ?`
	skipSQL       = `UPDATE features SET priority = (SELECT COALESCE(MAX(priority), 0) + 1 FROM features), in_progress = 0 WHERE id = ? AND passes = 0`
	priorityOfSQL = `SELECT priority, passes FROM features WHERE id = ?`
)

// transition runs one guarded UPDATE and returns the row as it is afterwards.
// When the guard matches nothing the row is re-read and the reason diagnosed.
func (s *Store) transition(ctx context.Context, op string, id int64, query string, guardInProgress bool) (feature.Feature, error) {
	var out feature.Feature
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		n, err := execCount(ctx, tx, query, id)
		if err != nil {
			return err
		}
		cur, err := getFeature(ctx, tx, id)
		if err != nil {
			return err
		}
		if n == 0 || cur == nil {
			return feature.Diagnose(op, id, cur, guardInProgress)
		}
		out = *cur
		return nil
	})
	if err != nil {
		s.logger.Debug("transition refused", logpkg.Operation(op), logpkg.FeatureID(id), logpkg.Err(err))
		return feature.Feature{}, err
	}
	s.logger.Debug("transition applied", logpkg.Operation(op), logpkg.FeatureID(id))
	return out, nil
}

func execCount(ctx context.Context, q querier, query string, args ...interface{}) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Claim implements store.Store.
func (s *Store) Claim(ctx context.Context, id int64) (feature.Feature, error) {
	return s.transition(ctx, store.OpClaim, id, claimSQL, true)
}

// ClaimAndGet implements store.Store.
func (s *Store) ClaimAndGet(ctx context.Context, id int64) (feature.Feature, bool, error) {
	var (
		out     feature.Feature
		already bool
	)
	err := s.withTx(ctx, store.OpClaimAndGet, func(tx *sql.Tx) error {
		n, err := execCount(ctx, tx, claimSQL, id)
		if err != nil {
			return err
		}
		cur, err := getFeature(ctx, tx, id)
		if err != nil {
			return err
		}
		switch {
		case cur == nil:
			return feature.NotFound(store.OpClaimAndGet, id)
		case n == 1:
			out = *cur
		case cur.InProgress:
			out, already = *cur, true
		default:
			return feature.Diagnose(store.OpClaimAndGet, id, cur, false)
		}
		return nil
	})
	if err != nil {
		return feature.Feature{}, false, err
	}
	return out, already, nil
}

// MarkPassing implements store.Store.
func (s *Store) MarkPassing(ctx context.Context, id int64) (feature.Feature, error) {
	return s.transition(ctx, store.OpMarkPassing, id, passSQL, false)
}

// MarkFailing implements store.Store.
func (s *Store) MarkFailing(ctx context.Context, id int64) (feature.Feature, error) {
	return s.transition(ctx, store.OpMarkFailing, id, failSQL, false)
}

// ClearInProgress implements store.Store.
func (s *Store) ClearInProgress(ctx context.Context, id int64) (feature.Feature, error) {
	return s.transition(ctx, store.OpClearInProgress, id, releaseSQL, false)
}

// Skip implements store.Store. The new priority is computed inside the UPDATE
// itself, so two concurrent skips can never land on the same value.
func (s *Store) Skip(ctx context.Context, id int64) (feature.SkipResult, error) {
	var res feature.SkipResult
	err := s.withTx(ctx, store.OpSkip, func(tx *sql.Tx) error {
		var passes int
		err := tx.QueryRowContext(ctx, priorityOfSQL, id).Scan(&res.OldPriority, &passes)
		if errors.Is(err, sql.ErrNoRows) {
			return feature.NotFound(store.OpSkip, id)
		}
		if err != nil {
			return err
		}
		if passes != 0 {
			return feature.E(store.OpSkip, id, feature.ErrAlreadyPassing)
		}
		n, err := execCount(ctx, tx, skipSQL, id)
		if err != nil {
			return err
		}
		cur, err := getFeature(ctx, tx, id)
		if err != nil {
			return err
		}
		if n == 0 || cur == nil {
			return feature.Diagnose(store.OpSkip, id, cur, false)
		}
		res.Feature = *cur
		res.NewPriority = cur.Priority
		return nil
	})
	if err != nil {
		return feature.SkipResult{}, err
	}
	s.logger.Debug("skipped", logpkg.FeatureID(id),
		logpkg.Int64("old_priority", res.OldPriority), logpkg.Int64("new_priority", res.NewPriority))
	return res, nil
}
