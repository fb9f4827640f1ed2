package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/store"
)

// selectFeatures reads features together with their dependency ids in one
// statement, so the row and its edges come from the same snapshot.
const selectFeatures = `
SELECT f.id, f.priority, f.category, f.name, f.description, f.steps, f.passes, f.in_progress,
       COALESCE((SELECT group_concat(d.depends_on_id) FROM feature_dependencies d WHERE d.feature_id = f.id), '')
FROM features f`

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id int64) (feature.Feature, error) {
	f, err := getFeature(ctx, s.db, id)
	if err != nil {
		return feature.Feature{}, classify(store.OpGet, err)
	}
	if f == nil {
		return feature.Feature{}, feature.NotFound(store.OpGet, id)
	}
	return *f, nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context) ([]feature.Feature, error) {
	fs, err := listFeatures(ctx, s.db)
	if err != nil {
		return nil, classify(store.OpList, err)
	}
	return fs, nil
}

// Stats implements store.Store with a single aggregate query.
func (s *Store) Stats(ctx context.Context) (feature.Stats, error) {
	var total, passing, inProgress int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(passes), 0), COALESCE(SUM(in_progress), 0) FROM features`,
	).Scan(&total, &passing, &inProgress)
	if err != nil {
		return feature.Stats{}, feature.StoreFailure(store.OpStats, err)
	}
	return feature.ComputeStats(passing, inProgress, total), nil
}

// getFeature returns nil, nil when the row does not exist.
func getFeature(ctx context.Context, q querier, id int64) (*feature.Feature, error) {
	row := q.QueryRowContext(ctx, selectFeatures+` WHERE f.id = ?`, id)
	f, err := scanFeature(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func listFeatures(ctx context.Context, q querier) ([]feature.Feature, error) {
	rows, err := q.QueryContext(ctx, selectFeatures+` ORDER BY f.priority, f.id`)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer rows.Close()

	var out []feature.Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate features: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFeature(sc scanner) (feature.Feature, error) {
	var (
		f          feature.Feature
		steps      string
		deps       string
		passes     int
		inProgress int
	)
	if err := sc.Scan(&f.ID, &f.Priority, &f.Category, &f.Name, &f.Description, &steps, &passes, &inProgress, &deps); err != nil {
		return feature.Feature{}, err
	}
	f.Passes = passes != 0
	f.InProgress = inProgress != 0
	if err := json.Unmarshal([]byte(steps), &f.Steps); err != nil {
		return feature.Feature{}, fmt.Errorf("decode steps of feature %d: %w", f.ID, err)
	}
	ids, err := parseIDs(deps)
	if err != nil {
		return feature.Feature{}, fmt.Errorf("decode dependencies of feature %d: %w", f.ID, err)
	}
	f.Dependencies = ids
	return f, nil
}

// parseIDs parses a group_concat list into sorted ids.
func parseIDs(s string) ([]int64, error) {
	if s == "" {
		return []int64{}, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return feature.SortIDs(ids), nil
}

func encodeSteps(steps []string) (string, error) {
	if steps == nil {
		steps = []string{}
	}
	b, err := json.Marshal(steps)
	if err != nil {
		return "", fmt.Errorf("encode steps: %w", err)
	}
	return string(b), nil
}
