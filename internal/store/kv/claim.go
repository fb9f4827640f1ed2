package kv

import (
	"context"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/store"
	logpkg "github.com/rzbill/forgeq/pkg/log"
)

// guard reports whether a transition may apply to the current record.
type guard func(f *feature.Feature) bool

func notPassing(f *feature.Feature) bool { return !f.Passes }
func claimable(f *feature.Feature) bool  { return !f.Passes && !f.InProgress }
func always(*feature.Feature) bool       { return true }

// transition applies fn to the record when g allows it. A refused guard is
// diagnosed the same way as a zero-row update in the sql backend.
func (s *Store) transition(ctx context.Context, op string, id int64, g guard, guardInProgress bool, fn func(f *feature.Feature)) (feature.Feature, error) {
	var out feature.Feature
	err := s.write(ctx, op, func(b *pebble.Batch) error {
		cur, err := s.load(nil, id)
		if err != nil {
			return err
		}
		if cur == nil || !g(cur) {
			return feature.Diagnose(op, id, cur, guardInProgress)
		}
		fn(cur)
		out = *cur
		return s.put(b, out)
	})
	if err != nil {
		s.logger.Debug("transition refused", logpkg.Operation(op), logpkg.FeatureID(id), logpkg.Err(err))
		return feature.Feature{}, err
	}
	s.logger.Debug("transition applied", logpkg.Operation(op), logpkg.FeatureID(id))
	return out, nil
}

// Claim implements store.Store.
func (s *Store) Claim(ctx context.Context, id int64) (feature.Feature, error) {
	return s.transition(ctx, store.OpClaim, id, claimable, true, func(f *feature.Feature) {
		f.InProgress = true
	})
}

// ClaimAndGet implements store.Store.
func (s *Store) ClaimAndGet(ctx context.Context, id int64) (feature.Feature, bool, error) {
	var (
		out     feature.Feature
		already bool
	)
	err := s.write(ctx, store.OpClaimAndGet, func(b *pebble.Batch) error {
		cur, err := s.load(nil, id)
		if err != nil {
			return err
		}
		switch {
		case cur == nil:
			return feature.NotFound(store.OpClaimAndGet, id)
		case cur.Passes:
			return feature.E(store.OpClaimAndGet, id, feature.ErrAlreadyPassing)
		case cur.InProgress:
			out, already = *cur, true
			return nil
		}
		cur.InProgress = true
		out = *cur
		return s.put(b, out)
	})
	if err != nil {
		return feature.Feature{}, false, err
	}
	return out, already, nil
}

// MarkPassing implements store.Store.
func (s *Store) MarkPassing(ctx context.Context, id int64) (feature.Feature, error) {
	return s.transition(ctx, store.OpMarkPassing, id, notPassing, false, func(f *feature.Feature) {
		f.Passes, f.InProgress = true, false
	})
}

// MarkFailing implements store.Store.
func (s *Store) MarkFailing(ctx context.Context, id int64) (feature.Feature, error) {
	return s.transition(ctx, store.OpMarkFailing, id, always, false, func(f *feature.Feature) {
		f.Passes, f.InProgress = false, false
	})
}

// ClearInProgress implements store.Store.
func (s *Store) ClearInProgress(ctx context.Context, id int64) (feature.Feature, error) {
	return s.transition(ctx, store.OpClearInProgress, id, always, false, func(f *feature.Feature) {
		f.InProgress = false
	})
}

// Skip implements store.Store.
func (s *Store) Skip(ctx context.Context, id int64) (feature.SkipResult, error) {
	var res feature.SkipResult
	err := s.write(ctx, store.OpSkip, func(b *pebble.Batch) error {
		all, err := s.loadAll(nil)
		if err != nil {
			return err
		}
		var cur *feature.Feature
		for i := range all {
			if all[i].ID == id {
				cur = &all[i]
				break
			}
		}
		if cur == nil || cur.Passes {
			return feature.Diagnose(store.OpSkip, id, cur, false)
		}
		res.OldPriority = cur.Priority
		cur.Priority = maxPriority(all) + 1
		cur.InProgress = false
		res.Feature = *cur
		res.NewPriority = cur.Priority
		return s.put(b, res.Feature)
	})
	if err != nil {
		return feature.SkipResult{}, err
	}
	s.logger.Info("feature skipped", logpkg.FeatureID(id),
		logpkg.Int64("old_priority", res.OldPriority), logpkg.Int64("new_priority", res.NewPriority))
	return res, nil
}
