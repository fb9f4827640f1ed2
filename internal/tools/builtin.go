package tools

import (
	"context"
	"fmt"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/service"
)

type noArgs struct{}

type idArgs struct {
	FeatureID int64 `json:"feature_id" validate:"min=1"`
}

type depArgs struct {
	FeatureID    int64 `json:"feature_id" validate:"min=1"`
	DependencyID int64 `json:"dependency_id" validate:"min=1"`
}

type setDepsArgs struct {
	FeatureID     int64   `json:"feature_id" validate:"min=1"`
	DependencyIDs []int64 `json:"dependency_ids" validate:"required,dive,min=1"`
}

// Limits are pointers so an explicit 0 is rejected instead of read as absent.
type readyArgs struct {
	Limit  *int   `json:"limit" validate:"omitempty,min=1,max=50"`
	Filter string `json:"filter"`
}

type blockedArgs struct {
	Limit *int `json:"limit" validate:"omitempty,min=1,max=100"`
}

type regressionArgs struct {
	Limit *int `json:"limit" validate:"omitempty,min=1,max=10"`
}

// limitOrDefault maps an absent limit to 0, which the service replaces with
// its default.
func limitOrDefault(limit *int) int {
	if limit == nil {
		return 0
	}
	return *limit
}

type createArgs struct {
	Category    string   `json:"category" validate:"required,max=100"`
	Name        string   `json:"name" validate:"required,max=255"`
	Description string   `json:"description" validate:"required"`
	Steps       []string `json:"steps" validate:"required,min=1"`
}

// Entries are validated by the store so errors carry their index.
type bulkArgs struct {
	Features []feature.Spec `json:"features" validate:"required"`
}

type dependenciesResult struct {
	Success      bool    `json:"success"`
	FeatureID    int64   `json:"feature_id"`
	Dependencies []int64 `json:"dependencies"`
}

type createResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Feature feature.Feature `json:"feature"`
}

type bulkResult struct {
	Created          int `json:"created"`
	WithDependencies int `json:"with_dependencies"`
}

type claimResult struct {
	feature.Feature
	AlreadyClaimed bool `json:"already_claimed"`
}

type passingResult struct {
	Success   bool   `json:"success"`
	FeatureID int64  `json:"feature_id"`
	Name      string `json:"name"`
}

type failingResult struct {
	Message string          `json:"message"`
	Feature feature.Feature `json:"feature"`
}

type skipResult struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	OldPriority int64  `json:"old_priority"`
	NewPriority int64  `json:"new_priority"`
	Message     string `json:"message"`
}

type deleteResult struct {
	Success   bool  `json:"success"`
	FeatureID int64 `json:"feature_id"`
}

type resolveResult struct {
	Ordered  []feature.Feature `json:"ordered"`
	Circular [][]int64         `json:"circular_dependencies"`
}

func builtins() []Tool {
	return []Tool{
		{
			Name:        "feature_get_stats",
			Description: "Completion counts: passing, in progress, total and percentage passing.",
			handler: handle(func(ctx context.Context, svc *service.Service, _ noArgs) (any, error) {
				return svc.Stats(ctx)
			}),
		},
		{
			Name:        "feature_get_ready",
			Description: "Features ready to work on, most unblocking first. Args: limit (1-50, default 10), filter (CEL expression).",
			handler: handle(func(ctx context.Context, svc *service.Service, a readyArgs) (any, error) {
				return svc.Ready(ctx, limitOrDefault(a.Limit), a.Filter)
			}),
		},
		{
			Name:        "feature_get_blocked",
			Description: "Features waiting on dependencies that are not passing yet. Args: limit (1-100, default 20).",
			handler: handle(func(ctx context.Context, svc *service.Service, a blockedArgs) (any, error) {
				return svc.Blocked(ctx, limitOrDefault(a.Limit))
			}),
		},
		{
			Name:        "feature_get_graph",
			Description: "Every feature as a node and every dependency as an edge from dependency to dependent.",
			handler: handle(func(ctx context.Context, svc *service.Service, _ noArgs) (any, error) {
				return svc.Graph(ctx)
			}),
		},
		{
			Name:        "feature_create_bulk",
			Description: "Create many features at once. Args: features [{category, name, description, steps, depends_on_indices}]; indices refer to earlier entries of the same batch.",
			handler: handle(func(ctx context.Context, svc *service.Service, a bulkArgs) (any, error) {
				res, err := svc.CreateBulk(ctx, a.Features)
				if err != nil {
					return nil, err
				}
				return bulkResult{Created: res.Created, WithDependencies: res.WithDependencies}, nil
			}),
		},
		{
			Name:        "feature_create",
			Description: "Create one feature at the end of the queue. Args: category, name, description, steps.",
			handler: handle(func(ctx context.Context, svc *service.Service, a createArgs) (any, error) {
				f, err := svc.Create(ctx, feature.Spec{Category: a.Category, Name: a.Name, Description: a.Description, Steps: a.Steps})
				if err != nil {
					return nil, err
				}
				return createResult{Success: true, Message: "Created feature: " + f.Name, Feature: f}, nil
			}),
		},
		{
			Name:        "feature_add_dependency",
			Description: "Make feature_id depend on dependency_id. Refused when it would create a cycle.",
			handler: handle(func(ctx context.Context, svc *service.Service, a depArgs) (any, error) {
				deps, err := svc.AddDependency(ctx, a.FeatureID, a.DependencyID)
				return dependencies(a.FeatureID, deps, err)
			}),
		},
		{
			Name:        "feature_remove_dependency",
			Description: "Remove the dependency of feature_id on dependency_id.",
			handler: handle(func(ctx context.Context, svc *service.Service, a depArgs) (any, error) {
				deps, err := svc.RemoveDependency(ctx, a.FeatureID, a.DependencyID)
				return dependencies(a.FeatureID, deps, err)
			}),
		},
		{
			Name:        "feature_set_dependencies",
			Description: "Replace every dependency of feature_id with dependency_ids.",
			handler: handle(func(ctx context.Context, svc *service.Service, a setDepsArgs) (any, error) {
				deps, err := svc.SetDependencies(ctx, a.FeatureID, a.DependencyIDs)
				return dependencies(a.FeatureID, deps, err)
			}),
		},
		{
			Name:        "feature_get_by_id",
			Description: "Full details of one feature.",
			handler: handle(func(ctx context.Context, svc *service.Service, a idArgs) (any, error) {
				return svc.Get(ctx, a.FeatureID)
			}),
		},
		{
			Name:        "feature_get_summary",
			Description: "Id, name, status flags and dependencies of one feature.",
			handler: handle(func(ctx context.Context, svc *service.Service, a idArgs) (any, error) {
				return svc.Summary(ctx, a.FeatureID)
			}),
		},
		{
			Name:        "feature_mark_in_progress",
			Description: "Claim a pending feature. Fails if it is passing or already claimed.",
			handler: handle(func(ctx context.Context, svc *service.Service, a idArgs) (any, error) {
				return svc.Claim(ctx, a.FeatureID)
			}),
		},
		{
			Name:        "feature_claim_and_get",
			Description: "Claim a feature and return it; an existing claim is reported with already_claimed.",
			handler: handle(func(ctx context.Context, svc *service.Service, a idArgs) (any, error) {
				f, already, err := svc.ClaimAndGet(ctx, a.FeatureID)
				if err != nil {
					return nil, err
				}
				return claimResult{Feature: f, AlreadyClaimed: already}, nil
			}),
		},
		{
			Name:        "feature_mark_passing",
			Description: "Mark a feature as passing and release its claim.",
			handler: handle(func(ctx context.Context, svc *service.Service, a idArgs) (any, error) {
				f, err := svc.MarkPassing(ctx, a.FeatureID)
				if err != nil {
					return nil, err
				}
				return passingResult{Success: true, FeatureID: f.ID, Name: f.Name}, nil
			}),
		},
		{
			Name:        "feature_mark_failing",
			Description: "Mark a feature as failing, for example after a regression.",
			handler: handle(func(ctx context.Context, svc *service.Service, a idArgs) (any, error) {
				f, err := svc.MarkFailing(ctx, a.FeatureID)
				if err != nil {
					return nil, err
				}
				return failingResult{
					Message: fmt.Sprintf("Feature #%d marked as failing - regression detected", f.ID),
					Feature: f,
				}, nil
			}),
		},
		{
			Name:        "feature_clear_in_progress",
			Description: "Release the claim on a feature without changing whether it passes.",
			handler: handle(func(ctx context.Context, svc *service.Service, a idArgs) (any, error) {
				return svc.ClearInProgress(ctx, a.FeatureID)
			}),
		},
		{
			Name:        "feature_skip",
			Description: "Move a non-passing feature to the end of the queue and release it.",
			handler: handle(func(ctx context.Context, svc *service.Service, a idArgs) (any, error) {
				res, err := svc.Skip(ctx, a.FeatureID)
				if err != nil {
					return nil, err
				}
				return skipResult{
					ID:          res.Feature.ID,
					Name:        res.Feature.Name,
					OldPriority: res.OldPriority,
					NewPriority: res.NewPriority,
					Message:     fmt.Sprintf("Feature '%s' moved to end of queue", res.Feature.Name),
				}, nil
			}),
		},
		{
			Name:        "feature_delete",
			Description: "Delete a feature and every dependency on it.",
			handler: handle(func(ctx context.Context, svc *service.Service, a idArgs) (any, error) {
				if err := svc.Delete(ctx, a.FeatureID); err != nil {
					return nil, err
				}
				return deleteResult{Success: true, FeatureID: a.FeatureID}, nil
			}),
		},
		{
			Name:        "feature_get_for_regression",
			Description: "Random passing features to re-verify. Args: limit (1-10, default 3).",
			handler: handle(func(ctx context.Context, svc *service.Service, a regressionArgs) (any, error) {
				return svc.Regression(ctx, limitOrDefault(a.Limit))
			}),
		},
		{
			Name:        "feature_resolve",
			Description: "Dependency-respecting order of every feature, plus any circular dependencies found.",
			handler: handle(func(ctx context.Context, svc *service.Service, _ noArgs) (any, error) {
				res, err := svc.Resolve(ctx)
				if err != nil {
					return nil, err
				}
				return resolveResult{Ordered: res.Ordered, Circular: res.Circular}, nil
			}),
		},
	}
}

func dependencies(id int64, deps []int64, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if deps == nil {
		deps = []int64{}
	}
	return dependenciesResult{Success: true, FeatureID: id, Dependencies: deps}, nil
}
