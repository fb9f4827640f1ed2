// Package store defines the persistence contract for a feature backlog.
//
// A Store is shared by independent worker processes. Implementations must make
// every status transition a single guarded update and run every
// read-validate-write sequence (dependency edits, bulk creates) under one
// exclusive transaction, so that concurrent callers can never double-claim a
// feature or persist a cycle. Errors wrap the categories in package feature.
package store

import (
	"context"

	"github.com/rzbill/forgeq/internal/feature"
)

// Store persists features and their dependency edges for one project.
type Store interface {
	// Get returns a feature by id, or feature.ErrNotFound.
	Get(ctx context.Context, id int64) (feature.Feature, error)
	// List returns every feature in (priority, id) order.
	List(ctx context.Context) ([]feature.Feature, error)
	// Stats returns completion counts.
	Stats(ctx context.Context) (feature.Stats, error)

	// Create inserts one feature at the end of the priority order.
	Create(ctx context.Context, spec feature.Spec) (feature.Feature, error)
	// CreateBulk validates then inserts specs atomically, resolving
	// DependsOnIndices to the ids assigned in the same batch.
	CreateBulk(ctx context.Context, specs []feature.Spec) (feature.BulkResult, error)
	// Delete removes a feature and every edge that references it.
	Delete(ctx context.Context, id int64) error

	// AddDependency, RemoveDependency and SetDependencies return the new
	// sorted dependency list of featureID.
	AddDependency(ctx context.Context, featureID, dependencyID int64) ([]int64, error)
	RemoveDependency(ctx context.Context, featureID, dependencyID int64) ([]int64, error)
	SetDependencies(ctx context.Context, featureID int64, dependencyIDs []int64) ([]int64, error)

	// Claim marks a pending feature in progress. It fails with
	// ErrAlreadyInProgress when someone else holds it.
	Claim(ctx context.Context, id int64) (feature.Feature, error)
	// ClaimAndGet is Claim that treats an existing claim as success; the
	// boolean reports whether the feature was already claimed.
	ClaimAndGet(ctx context.Context, id int64) (feature.Feature, bool, error)
	// MarkPassing completes a feature that is not yet passing.
	MarkPassing(ctx context.Context, id int64) (feature.Feature, error)
	// MarkFailing resets passes and in_progress unconditionally.
	MarkFailing(ctx context.Context, id int64) (feature.Feature, error)
	// ClearInProgress releases a claim without touching passes.
	ClearInProgress(ctx context.Context, id int64) (feature.Feature, error)
	// Skip moves a non-passing feature behind every other feature and releases it.
	Skip(ctx context.Context, id int64) (feature.SkipResult, error)

	Close() error
}

// Operation names used in errors and logs.
const (
	OpGet              = "get"
	OpList             = "list"
	OpStats            = "stats"
	OpCreate           = "create"
	OpCreateBulk       = "create_bulk"
	OpDelete           = "delete"
	OpAddDependency    = "add_dependency"
	OpRemoveDependency = "remove_dependency"
	OpSetDependencies  = "set_dependencies"
	OpClaim            = "claim"
	OpClaimAndGet      = "claim_and_get"
	OpMarkPassing      = "mark_passing"
	OpMarkFailing      = "mark_failing"
	OpClearInProgress  = "clear_in_progress"
	OpSkip             = "skip"
)

// Options are shared backend settings.
type Options struct {
	// MaxDependencies caps a feature's fan-in. Zero means feature.DefaultMaxDependencies.
	MaxDependencies int
}

// MaxDeps returns the effective fan-in limit.
func (o Options) MaxDeps() int {
	if o.MaxDependencies <= 0 {
		return feature.DefaultMaxDependencies
	}
	return o.MaxDependencies
}
