package service

import (
	"context"
	"time"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/metrics"
	"github.com/rzbill/forgeq/internal/store"
	logpkg "github.com/rzbill/forgeq/pkg/log"
)

// Create adds one feature at the end of the priority order.
func (s *Service) Create(ctx context.Context, spec feature.Spec) (f feature.Feature, err error) {
	defer func(start time.Time) { s.observe(store.OpCreate, 0, start, err) }(time.Now())
	return s.store.Create(ctx, spec)
}

// CreateBulk validates and inserts specs atomically.
func (s *Service) CreateBulk(ctx context.Context, specs []feature.Spec) (res feature.BulkResult, err error) {
	defer func(start time.Time) { s.observe(store.OpCreateBulk, 0, start, err) }(time.Now())
	return s.store.CreateBulk(ctx, specs)
}

// Delete removes a feature and every edge to it.
func (s *Service) Delete(ctx context.Context, id int64) (err error) {
	defer func(start time.Time) { s.observe(store.OpDelete, id, start, err) }(time.Now())
	if err = s.store.Delete(ctx, id); err == nil {
		s.logger.Info("feature deleted", logpkg.FeatureID(id))
	}
	return err
}

// AddDependency makes featureID wait on dependencyID.
func (s *Service) AddDependency(ctx context.Context, featureID, dependencyID int64) (deps []int64, err error) {
	defer func(start time.Time) { s.observe(store.OpAddDependency, featureID, start, err) }(time.Now())
	return s.store.AddDependency(ctx, featureID, dependencyID)
}

// RemoveDependency drops one edge.
func (s *Service) RemoveDependency(ctx context.Context, featureID, dependencyID int64) (deps []int64, err error) {
	defer func(start time.Time) { s.observe(store.OpRemoveDependency, featureID, start, err) }(time.Now())
	return s.store.RemoveDependency(ctx, featureID, dependencyID)
}

// SetDependencies replaces the dependency set of featureID.
func (s *Service) SetDependencies(ctx context.Context, featureID int64, dependencyIDs []int64) (deps []int64, err error) {
	defer func(start time.Time) { s.observe(store.OpSetDependencies, featureID, start, err) }(time.Now())
	return s.store.SetDependencies(ctx, featureID, dependencyIDs)
}

// Claim takes exclusive ownership of a pending feature.
func (s *Service) Claim(ctx context.Context, id int64) (f feature.Feature, err error) {
	defer func(start time.Time) { s.observe(store.OpClaim, id, start, err) }(time.Now())
	f, err = s.store.Claim(ctx, id)
	if err != nil {
		s.metrics.ObserveClaim(metrics.ClaimRefused)
		return feature.Feature{}, err
	}
	s.metrics.ObserveClaim(metrics.ClaimWon)
	s.logger.Info("feature claimed", logpkg.FeatureID(id))
	return f, nil
}

// ClaimAndGet claims id, treating an existing claim as success.
func (s *Service) ClaimAndGet(ctx context.Context, id int64) (f feature.Feature, already bool, err error) {
	defer func(start time.Time) { s.observe(store.OpClaimAndGet, id, start, err) }(time.Now())
	f, already, err = s.store.ClaimAndGet(ctx, id)
	switch {
	case err != nil:
		s.metrics.ObserveClaim(metrics.ClaimRefused)
	case already:
		s.metrics.ObserveClaim(metrics.ClaimAlready)
	default:
		s.metrics.ObserveClaim(metrics.ClaimWon)
		s.logger.Info("feature claimed", logpkg.FeatureID(id))
	}
	return f, already, err
}

// MarkPassing completes a feature.
func (s *Service) MarkPassing(ctx context.Context, id int64) (f feature.Feature, err error) {
	defer func(start time.Time) { s.observe(store.OpMarkPassing, id, start, err) }(time.Now())
	if f, err = s.store.MarkPassing(ctx, id); err == nil {
		s.logger.Info("feature passing", logpkg.FeatureID(id))
	}
	return f, err
}

// MarkFailing resets a feature to pending.
func (s *Service) MarkFailing(ctx context.Context, id int64) (f feature.Feature, err error) {
	defer func(start time.Time) { s.observe(store.OpMarkFailing, id, start, err) }(time.Now())
	if f, err = s.store.MarkFailing(ctx, id); err == nil {
		s.logger.Info("feature failing", logpkg.FeatureID(id))
	}
	return f, err
}

// ClearInProgress releases a claim.
func (s *Service) ClearInProgress(ctx context.Context, id int64) (f feature.Feature, err error) {
	defer func(start time.Time) { s.observe(store.OpClearInProgress, id, start, err) }(time.Now())
	return s.store.ClearInProgress(ctx, id)
}

// Skip moves a feature to the end of the queue.
func (s *Service) Skip(ctx context.Context, id int64) (res feature.SkipResult, err error) {
	defer func(start time.Time) { s.observe(store.OpSkip, id, start, err) }(time.Now())
	return s.store.Skip(ctx, id)
}
