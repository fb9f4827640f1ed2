package kv

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rzbill/forgeq/internal/feature"
	pebblestore "github.com/rzbill/forgeq/internal/storage/pebble"
	"github.com/rzbill/forgeq/internal/store"
	"github.com/rzbill/forgeq/internal/store/storetest"
)

func openTemp(t *testing.T, maxDeps int) *Store {
	t.Helper()
	s, err := Open(Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever, MaxDependencies: maxDeps})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, storetest.Harness{
		New: func(t *testing.T, maxDeps int) store.Store { return openTemp(t, maxDeps) },
		Peer: func(t *testing.T, s store.Store) store.Store {
			owner := s.(*Store)
			peer, err := New(owner.db, Options{Project: owner.Project(), MaxDependencies: owner.opts.MaxDependencies})
			require.NoError(t, err)
			return peer
		},
	})
}

func TestKeys(t *testing.T) {
	k := FeatureKey("demo", 258)
	require.Equal(t, "p/demo/feat/", string(k[:len(k)-8]))
	id, err := FeatureIDFromKey("demo", k)
	require.NoError(t, err)
	require.Equal(t, int64(258), id)

	_, err = FeatureIDFromKey("demo", []byte("p/demo/feat/x"))
	require.Error(t, err)

	// Big-endian ids sort numerically.
	require.Less(t, string(FeatureKey("demo", 9)), string(FeatureKey("demo", 10)))
}

func TestEnsureProjectIdempotent(t *testing.T) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer db.Close()

	m1, err := EnsureProject(db, "alpha")
	require.NoError(t, err)
	require.Equal(t, SchemaVersion, m1.SchemaVersion)
	m2, err := EnsureProject(db, "alpha")
	require.NoError(t, err)
	require.Equal(t, m1, m2)

	require.NoError(t, db.Set(MetaKey("beta"), []byte(`{"name":"beta","schemaVersion":99}`)))
	_, err = EnsureProject(db, "beta")
	require.Error(t, err)
}

func TestProjectsAreIsolated(t *testing.T) {
	ctx := context.Background()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer db.Close()

	a, err := New(db, Options{Project: "a"})
	require.NoError(t, err)
	b, err := New(db, Options{Project: "b"})
	require.NoError(t, err)

	fa, err := a.Create(ctx, storetest.Spec("only-in-a"))
	require.NoError(t, err)
	require.Equal(t, int64(1), fa.ID)

	_, err = b.Get(ctx, fa.ID)
	require.ErrorIs(t, err, feature.ErrNotFound)

	fb, err := b.Create(ctx, storetest.Spec("only-in-b"))
	require.NoError(t, err)
	require.Equal(t, int64(1), fb.ID)
	require.Equal(t, int64(1), fb.Priority)

	listA, err := a.List(ctx)
	require.NoError(t, err)
	require.Len(t, listA, 1)
	require.Equal(t, "only-in-a", listA[0].Name)

	// Closing a store built with New leaves the shared database usable.
	require.NoError(t, a.Close())
	_, err = b.Get(ctx, fb.ID)
	require.NoError(t, err)
}

func TestReopenKeepsSequence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	require.NoError(t, err)
	res, err := s.CreateBulk(ctx, []feature.Spec{storetest.Spec("a"), storetest.Spec("b", 0)})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, res.IDs[1]))
	require.NoError(t, s.Close())

	s, err = Open(Options{DataDir: dir})
	require.NoError(t, err)
	defer s.Close()
	f, err := s.Create(ctx, storetest.Spec("c"))
	require.NoError(t, err)
	require.Equal(t, int64(3), f.ID)
}

func TestHandlesOnOneProjectClaimOnce(t *testing.T) {
	ctx := context.Background()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	defer db.Close()

	a, err := New(db, Options{Project: "shared"})
	require.NoError(t, err)
	b, err := New(db, Options{Project: "shared"})
	require.NoError(t, err)
	other, err := New(db, Options{Project: "other"})
	require.NoError(t, err)
	require.Same(t, a.mu, b.mu)
	require.NotSame(t, a.mu, other.mu)

	f, err := a.Create(ctx, storetest.Spec("contested"))
	require.NoError(t, err)

	var won atomic.Int32
	var g errgroup.Group
	for i := 0; i < storetest.Workers; i++ {
		s := a
		if i%2 == 1 {
			s = b
		}
		g.Go(func() error {
			_, err := s.Claim(ctx, f.ID)
			switch {
			case err == nil:
				won.Add(1)
				return nil
			case errors.Is(err, feature.ErrConflict):
				return nil
			default:
				return err
			}
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), won.Load())
}
