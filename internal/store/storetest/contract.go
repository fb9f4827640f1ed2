// Package storetest is the behavioural contract every store.Store backend must
// pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/graph"
	"github.com/rzbill/forgeq/internal/store"
)

// Harness builds stores for the suite.
type Harness struct {
	// New returns an empty store configured with maxDeps as fan-in limit.
	New func(t *testing.T, maxDeps int) store.Store
	// Peer, when set, opens another independent handle on the same data as s
	// (its own connection). Concurrency tests then give each worker its own
	// handle; otherwise workers share s.
	Peer func(t *testing.T, s store.Store) store.Store
}

// Workers is the number of concurrent callers used by the race tests.
const Workers = 12

// Run executes the whole contract.
func Run(t *testing.T, h Harness) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, h) })
	t.Run("CreateRejectsInvalidSpec", func(t *testing.T) { testCreateInvalid(t, h) })
	t.Run("ListOrderAndStats", func(t *testing.T) { testListAndStats(t, h) })
	t.Run("CreateBulk", func(t *testing.T) { testCreateBulk(t, h) })
	t.Run("CreateBulkIsAtomic", func(t *testing.T) { testCreateBulkAtomic(t, h) })
	t.Run("Dependencies", func(t *testing.T) { testDependencies(t, h) })
	t.Run("SetDependencies", func(t *testing.T) { testSetDependencies(t, h) })
	t.Run("DeleteCascades", func(t *testing.T) { testDelete(t, h) })
	t.Run("ClaimProtocol", func(t *testing.T) { testClaimProtocol(t, h) })
	t.Run("ClaimAndGet", func(t *testing.T) { testClaimAndGet(t, h) })
	t.Run("Skip", func(t *testing.T) { testSkip(t, h) })
	t.Run("MissingFeature", func(t *testing.T) { testMissing(t, h) })
	t.Run("ConcurrentClaims", func(t *testing.T) { testConcurrentClaims(t, h) })
	t.Run("ConcurrentSkips", func(t *testing.T) { testConcurrentSkips(t, h) })
	t.Run("ConcurrentCycleAttempts", func(t *testing.T) { testConcurrentCycles(t, h) })
	t.Run("ConcurrentCreates", func(t *testing.T) { testConcurrentCreates(t, h) })
}

// Spec returns a valid create spec named name.
func Spec(name string, deps ...int) feature.Spec {
	return feature.Spec{
		Category:         "core",
		Name:             name,
		Description:      "does " + name,
		Steps:            []string{"implement " + name, "verify " + name},
		DependsOnIndices: deps,
	}
}

func newStore(t *testing.T, h Harness) store.Store {
	t.Helper()
	return h.New(t, feature.DefaultMaxDependencies)
}

func mustCreate(t *testing.T, s store.Store, names ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(names))
	for _, n := range names {
		f, err := s.Create(context.Background(), Spec(n))
		require.NoError(t, err)
		ids = append(ids, f.ID)
	}
	return ids
}

func peers(t *testing.T, h Harness, s store.Store, n int) []store.Store {
	out := make([]store.Store, n)
	for i := range out {
		if h.Peer != nil {
			out[i] = h.Peer(t, s)
		} else {
			out[i] = s
		}
	}
	return out
}

func testCreateAndGet(t *testing.T, h Harness) {
	ctx := context.Background()
	s := newStore(t, h)

	a, err := s.Create(ctx, Spec("login"))
	require.NoError(t, err)
	require.Positive(t, a.ID)
	require.Equal(t, int64(1), a.Priority)
	require.False(t, a.Passes)
	require.False(t, a.InProgress)
	require.Empty(t, a.Dependencies)

	b, err := s.Create(ctx, Spec("logout"))
	require.NoError(t, err)
	require.Greater(t, b.ID, a.ID)
	require.Equal(t, int64(2), b.Priority)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a, got)
	require.Equal(t, []string{"implement login", "verify login"}, got.Steps)
	require.Equal(t, "core", got.Category)
}

func testCreateInvalid(t *testing.T, h Harness) {
	s := newStore(t, h)
	bad := Spec("x")
	bad.Steps = nil
	_, err := s.Create(context.Background(), bad)
	require.ErrorIs(t, err, feature.ErrInvalidRequest)

	all, err := s.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, all)
}

func testListAndStats(t *testing.T, h Harness) {
	ctx := context.Background()
	s := newStore(t, h)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, feature.Stats{}, st)

	ids := mustCreate(t, s, "a", "b", "c")
	_, err = s.Claim(ctx, ids[1])
	require.NoError(t, err)
	_, err = s.MarkPassing(ctx, ids[2])
	require.NoError(t, err)

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, feature.Stats{Passing: 1, InProgress: 1, Total: 3, Percentage: 33.3}, st)

	_, err = s.Skip(ctx, ids[0])
	require.NoError(t, err)
	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{ids[1], ids[2], ids[0]}, idsOf(all))
}

func testCreateBulk(t *testing.T, h Harness) {
	ctx := context.Background()
	s := newStore(t, h)
	existing := mustCreate(t, s, "seed")

	res, err := s.CreateBulk(ctx, []feature.Spec{
		Spec("schema"),
		Spec("api", 0),
		Spec("ui", 1, 0),
		Spec("docs"),
	})
	require.NoError(t, err)
	require.Equal(t, 4, res.Created)
	require.Equal(t, 2, res.WithDependencies)
	require.Len(t, res.IDs, 4)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, existing[0], all[0].ID)
	for i, f := range all {
		require.Equal(t, int64(i+1), f.Priority, "priorities continue from the existing max")
	}

	ui, err := s.Get(ctx, res.IDs[2])
	require.NoError(t, err)
	require.Equal(t, feature.SortIDs([]int64{res.IDs[0], res.IDs[1]}), ui.Dependencies)
	api, err := s.Get(ctx, res.IDs[1])
	require.NoError(t, err)
	require.Equal(t, []int64{res.IDs[0]}, api.Dependencies)
}

func testCreateBulkAtomic(t *testing.T, h Harness) {
	ctx := context.Background()
	s := newStore(t, h)
	mustCreate(t, s, "seed")

	_, err := s.CreateBulk(ctx, []feature.Spec{Spec("a"), Spec("b", 0), Spec("c", 3), Spec("d")})
	require.ErrorIs(t, err, feature.ErrInvalidRequest)
	idx, ok := feature.IndexOf(err)
	require.True(t, ok)
	require.Equal(t, 2, idx)

	limited := h.New(t, 1)
	_, err = limited.CreateBulk(ctx, []feature.Spec{Spec("a"), Spec("b"), Spec("c", 0, 1)})
	require.ErrorIs(t, err, feature.ErrLimitExceeded)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "a rejected batch must leave no rows behind")
	all, err = limited.List(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func testDependencies(t *testing.T, h Harness) {
	ctx := context.Background()
	s := h.New(t, 2)
	ids := mustCreate(t, s, "a", "b", "c", "d")
	a, b, c, d := ids[0], ids[1], ids[2], ids[3]

	deps, err := s.AddDependency(ctx, c, b)
	require.NoError(t, err)
	require.Equal(t, []int64{b}, deps)
	deps, err = s.AddDependency(ctx, c, a)
	require.NoError(t, err)
	require.Equal(t, []int64{a, b}, deps)

	_, err = s.AddDependency(ctx, c, d)
	require.ErrorIs(t, err, feature.ErrLimitExceeded)
	_, err = s.AddDependency(ctx, c, c)
	require.ErrorIs(t, err, feature.ErrInvalidRequest)
	_, err = s.AddDependency(ctx, b, 9999)
	require.ErrorIs(t, err, feature.ErrNotFound)
	_, err = s.AddDependency(ctx, 9999, b)
	require.ErrorIs(t, err, feature.ErrNotFound)

	_, err = s.AddDependency(ctx, b, a)
	require.NoError(t, err)
	_, err = s.AddDependency(ctx, b, a)
	require.ErrorIs(t, err, feature.ErrInvalidRequest)
	_, err = s.AddDependency(ctx, a, c)
	require.ErrorIs(t, err, feature.ErrCircularDependency)
	require.ErrorIs(t, err, feature.ErrConflict)

	deps, err = s.RemoveDependency(ctx, c, a)
	require.NoError(t, err)
	require.Equal(t, []int64{b}, deps)
	_, err = s.RemoveDependency(ctx, c, a)
	require.ErrorIs(t, err, feature.ErrNotFound)

	got, err := s.Get(ctx, c)
	require.NoError(t, err)
	require.Equal(t, []int64{b}, got.Dependencies)
	assertAcyclic(t, s)
}

func testSetDependencies(t *testing.T, h Harness) {
	ctx := context.Background()
	s := h.New(t, 3)
	ids := mustCreate(t, s, "a", "b", "c", "d", "e")
	a, b, c, d, e := ids[0], ids[1], ids[2], ids[3], ids[4]

	deps, err := s.SetDependencies(ctx, d, []int64{c, a, b})
	require.NoError(t, err)
	require.Equal(t, []int64{a, b, c}, deps)

	_, err = s.SetDependencies(ctx, d, []int64{a, b, c, e})
	require.ErrorIs(t, err, feature.ErrLimitExceeded)
	_, err = s.SetDependencies(ctx, d, []int64{a, a})
	require.ErrorIs(t, err, feature.ErrInvalidRequest)
	_, err = s.SetDependencies(ctx, d, []int64{d})
	require.ErrorIs(t, err, feature.ErrInvalidRequest)
	_, err = s.SetDependencies(ctx, d, []int64{a, 9999})
	require.ErrorIs(t, err, feature.ErrNotFound)
	_, err = s.SetDependencies(ctx, a, []int64{d})
	require.ErrorIs(t, err, feature.ErrCircularDependency)

	got, err := s.Get(ctx, d)
	require.NoError(t, err)
	require.Equal(t, []int64{a, b, c}, got.Dependencies, "failed edits must not change the set")

	deps, err = s.SetDependencies(ctx, d, nil)
	require.NoError(t, err)
	require.Empty(t, deps)
	_, err = s.SetDependencies(ctx, a, []int64{d})
	require.NoError(t, err)
	assertAcyclic(t, s)
}

func testDelete(t *testing.T, h Harness) {
	ctx := context.Background()
	s := newStore(t, h)
	ids := mustCreate(t, s, "a", "b", "c")
	_, err := s.SetDependencies(ctx, ids[2], []int64{ids[0], ids[1]})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, ids[0]))
	_, err = s.Get(ctx, ids[0])
	require.ErrorIs(t, err, feature.ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, ids[0]), feature.ErrNotFound)

	c, err := s.Get(ctx, ids[2])
	require.NoError(t, err)
	require.Equal(t, []int64{ids[1]}, c.Dependencies)

	next, err := s.Create(ctx, Spec("d"))
	require.NoError(t, err)
	require.Greater(t, next.ID, ids[2], "ids are never reused")
}

func testClaimProtocol(t *testing.T, h Harness) {
	ctx := context.Background()
	s := newStore(t, h)
	id := mustCreate(t, s, "a")[0]

	f, err := s.Claim(ctx, id)
	require.NoError(t, err)
	require.True(t, f.InProgress)

	_, err = s.Claim(ctx, id)
	require.ErrorIs(t, err, feature.ErrAlreadyInProgress)
	require.Equal(t, feature.KindConflict, feature.KindOf(err))

	f, err = s.ClearInProgress(ctx, id)
	require.NoError(t, err)
	require.False(t, f.InProgress)
	f, err = s.ClearInProgress(ctx, id)
	require.NoError(t, err, "clear is idempotent")
	require.False(t, f.InProgress)

	_, err = s.Claim(ctx, id)
	require.NoError(t, err)
	f, err = s.MarkPassing(ctx, id)
	require.NoError(t, err)
	require.True(t, f.Passes)
	require.False(t, f.InProgress)

	_, err = s.MarkPassing(ctx, id)
	require.ErrorIs(t, err, feature.ErrAlreadyPassing)
	_, err = s.Claim(ctx, id)
	require.ErrorIs(t, err, feature.ErrAlreadyPassing)

	f, err = s.MarkFailing(ctx, id)
	require.NoError(t, err)
	require.False(t, f.Passes)
	require.False(t, f.InProgress)
	f, err = s.MarkFailing(ctx, id)
	require.NoError(t, err, "mark failing is idempotent")
	require.False(t, f.Passes)

	_, err = s.Claim(ctx, id)
	require.NoError(t, err)
	f, err = s.MarkFailing(ctx, id)
	require.NoError(t, err)
	require.False(t, f.InProgress, "mark failing releases a claim")
}

func testClaimAndGet(t *testing.T, h Harness) {
	ctx := context.Background()
	s := newStore(t, h)
	id := mustCreate(t, s, "a")[0]

	f, already, err := s.ClaimAndGet(ctx, id)
	require.NoError(t, err)
	require.False(t, already)
	require.True(t, f.InProgress)
	require.Equal(t, "a", f.Name)

	f, already, err = s.ClaimAndGet(ctx, id)
	require.NoError(t, err)
	require.True(t, already)
	require.True(t, f.InProgress)

	_, err = s.MarkPassing(ctx, id)
	require.NoError(t, err)
	_, _, err = s.ClaimAndGet(ctx, id)
	require.ErrorIs(t, err, feature.ErrAlreadyPassing)
}

func testSkip(t *testing.T, h Harness) {
	ctx := context.Background()
	s := newStore(t, h)
	ids := mustCreate(t, s, "a", "b", "c")
	_, err := s.Claim(ctx, ids[0])
	require.NoError(t, err)

	res, err := s.Skip(ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, int64(1), res.OldPriority)
	require.Equal(t, int64(4), res.NewPriority)
	require.Equal(t, int64(4), res.Feature.Priority)
	require.False(t, res.Feature.InProgress)

	res, err = s.Skip(ctx, ids[1])
	require.NoError(t, err)
	require.Equal(t, int64(5), res.NewPriority)

	_, err = s.MarkPassing(ctx, ids[2])
	require.NoError(t, err)
	_, err = s.Skip(ctx, ids[2])
	require.ErrorIs(t, err, feature.ErrAlreadyPassing)
}

func testMissing(t *testing.T, h Harness) {
	ctx := context.Background()
	s := newStore(t, h)
	const id = 4242

	_, err := s.Get(ctx, id)
	require.ErrorIs(t, err, feature.ErrNotFound)
	_, err = s.Claim(ctx, id)
	require.ErrorIs(t, err, feature.ErrNotFound)
	_, _, err = s.ClaimAndGet(ctx, id)
	require.ErrorIs(t, err, feature.ErrNotFound)
	_, err = s.MarkPassing(ctx, id)
	require.ErrorIs(t, err, feature.ErrNotFound)
	_, err = s.MarkFailing(ctx, id)
	require.ErrorIs(t, err, feature.ErrNotFound)
	_, err = s.ClearInProgress(ctx, id)
	require.ErrorIs(t, err, feature.ErrNotFound)
	_, err = s.Skip(ctx, id)
	require.ErrorIs(t, err, feature.ErrNotFound)
	_, err = s.RemoveDependency(ctx, id, 1)
	require.ErrorIs(t, err, feature.ErrNotFound)
	_, err = s.SetDependencies(ctx, id, nil)
	require.ErrorIs(t, err, feature.ErrNotFound)
}

func testConcurrentClaims(t *testing.T, h Harness) {
	ctx := context.Background()
	s := newStore(t, h)
	id := mustCreate(t, s, "contended")[0]
	handles := peers(t, h, s, Workers)

	results := make([]error, Workers)
	var g errgroup.Group
	for i := 0; i < Workers; i++ {
		i := i
		g.Go(func() error {
			_, results[i] = handles[i].Claim(ctx, id)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, feature.ErrAlreadyInProgress), errors.Is(err, feature.ErrLostRace):
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	require.Equal(t, 1, wins, "exactly one claimer may win")

	f, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, f.InProgress)
}

func testConcurrentSkips(t *testing.T, h Harness) {
	ctx := context.Background()
	s := newStore(t, h)
	names := make([]string, Workers)
	for i := range names {
		names[i] = fmt.Sprintf("f%d", i)
	}
	ids := mustCreate(t, s, names...)
	handles := peers(t, h, s, Workers)

	var g errgroup.Group
	newPriorities := make([]int64, Workers)
	for i := 0; i < Workers; i++ {
		i := i
		g.Go(func() error {
			res, err := handles[i].Skip(ctx, ids[i])
			if err != nil {
				return err
			}
			if res.NewPriority <= res.OldPriority {
				return fmt.Errorf("skip of %d did not move it back: %d -> %d", ids[i], res.OldPriority, res.NewPriority)
			}
			newPriorities[i] = res.NewPriority
			return nil
		})
	}
	require.NoError(t, g.Wait())

	sort.Slice(newPriorities, func(i, j int) bool { return newPriorities[i] < newPriorities[j] })
	for i := 1; i < len(newPriorities); i++ {
		require.Less(t, newPriorities[i-1], newPriorities[i], "concurrent skips must get distinct priorities")
	}
	require.Greater(t, newPriorities[0], int64(Workers))
}

func testConcurrentCycles(t *testing.T, h Harness) {
	ctx := context.Background()
	s := newStore(t, h)
	ids := mustCreate(t, s, "a", "b", "c")
	handles := peers(t, h, s, 3)

	// Each edge alone is fine; all three together would close a 3-cycle.
	edges := [][2]int64{{ids[0], ids[1]}, {ids[1], ids[2]}, {ids[2], ids[0]}}
	for round := 0; round < 5; round++ {
		for _, e := range edges {
			_, _ = s.SetDependencies(ctx, e[0], nil)
		}
		results := make([]error, len(edges))
		var g errgroup.Group
		for i, e := range edges {
			i, e := i, e
			g.Go(func() error {
				_, results[i] = handles[i].AddDependency(ctx, e[0], e[1])
				return nil
			})
		}
		require.NoError(t, g.Wait())

		failed := 0
		for _, err := range results {
			if err != nil {
				require.ErrorIs(t, err, feature.ErrCircularDependency)
				failed++
			}
		}
		require.Equal(t, 1, failed, "exactly the edge closing the cycle must be refused")
		assertAcyclic(t, s)
	}
}

func testConcurrentCreates(t *testing.T, h Harness) {
	ctx := context.Background()
	s := newStore(t, h)
	handles := peers(t, h, s, Workers)

	var g errgroup.Group
	for i := 0; i < Workers; i++ {
		i := i
		g.Go(func() error {
			if i%2 == 0 {
				_, err := handles[i].Create(ctx, Spec(fmt.Sprintf("single-%d", i)))
				return err
			}
			_, err := handles[i].CreateBulk(ctx, []feature.Spec{Spec("x"), Spec("y", 0)})
			return err
		})
	}
	require.NoError(t, g.Wait())

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, Workers/2+Workers)
	seen := map[int64]bool{}
	for _, f := range all {
		require.False(t, seen[f.Priority], "priority %d assigned twice", f.Priority)
		seen[f.Priority] = true
	}
}

func assertAcyclic(t *testing.T, s store.Store) {
	t.Helper()
	all, err := s.List(context.Background())
	require.NoError(t, err)
	res := graph.Resolve(all)
	require.Empty(t, res.Circular)
	require.Len(t, res.Ordered, len(all))
}

func idsOf(fs []feature.Feature) []int64 {
	out := make([]int64, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.ID)
	}
	return out
}
