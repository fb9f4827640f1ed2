package service

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/metrics"
	pebblestore "github.com/rzbill/forgeq/internal/storage/pebble"
	"github.com/rzbill/forgeq/internal/store/kv"
	"github.com/rzbill/forgeq/internal/store/storetest"
)

// newDiamond builds a(1) <- b(2), c(3) <- d(4) and returns the service.
func newDiamond(t *testing.T) (*Service, *metrics.Metrics) {
	t.Helper()
	st, err := kv.Open(kv.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	m := metrics.New()
	svc := NewWithStore(st, nil, m)
	svc.shuffle = func(int, func(i, j int)) {}

	res, err := svc.CreateBulk(context.Background(), []feature.Spec{
		storetest.Spec("a"),
		storetest.Spec("b", 0),
		storetest.Spec("c", 0),
		storetest.Spec("d", 1, 2),
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3, 4}, res.IDs)
	return svc, m
}

func ids(fs []feature.Feature) []int64 {
	out := make([]int64, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.ID)
	}
	return out
}

func TestReadyRanking(t *testing.T) {
	ctx := context.Background()
	svc, _ := newDiamond(t)

	res, err := svc.Ready(ctx, 0, "")
	require.NoError(t, err)
	require.Equal(t, []int64{1}, ids(res.Features))

	_, err = svc.MarkPassing(ctx, 1)
	require.NoError(t, err)
	res, err = svc.Ready(ctx, 0, "")
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3}, ids(res.Features))
	require.Equal(t, 2, res.TotalReady)

	res, err = svc.Ready(ctx, 1, "")
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	require.Equal(t, 2, res.TotalReady)

	res, err = svc.Ready(ctx, 10, `name == "c"`)
	require.NoError(t, err)
	require.Equal(t, []int64{3}, ids(res.Features))
	require.Equal(t, 1, res.TotalReady)
}

func TestLimitsAreChecked(t *testing.T) {
	ctx := context.Background()
	svc, _ := newDiamond(t)

	_, err := svc.Ready(ctx, MaxReadyLimit+1, "")
	require.ErrorIs(t, err, feature.ErrInvalidRequest)
	_, err = svc.Blocked(ctx, -1)
	require.ErrorIs(t, err, feature.ErrInvalidRequest)
	_, err = svc.Regression(ctx, MaxRegressionLimit+1)
	require.ErrorIs(t, err, feature.ErrInvalidRequest)
	_, err = svc.Ready(ctx, 0, "priority +")
	require.ErrorIs(t, err, feature.ErrInvalidRequest)
}

func TestBlocked(t *testing.T) {
	ctx := context.Background()
	svc, _ := newDiamond(t)
	_, err := svc.MarkPassing(ctx, 1)
	require.NoError(t, err)
	_, err = svc.MarkPassing(ctx, 2)
	require.NoError(t, err)

	res, err := svc.Blocked(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalBlocked)
	require.Equal(t, int64(4), res.Features[0].ID)
	require.Equal(t, []int64{3}, res.Features[0].BlockedBy)
}

func TestGraphView(t *testing.T) {
	svc, _ := newDiamond(t)
	view, err := svc.Graph(context.Background())
	require.NoError(t, err)

	want := []GraphEdge{{1, 2}, {1, 3}, {2, 4}, {3, 4}}
	if diff := cmp.Diff(want, view.Edges); diff != "" {
		t.Fatalf("edges (-want +got):\n%s", diff)
	}
	require.Len(t, view.Nodes, 4)
	require.Equal(t, feature.StatusPending, view.Nodes[0].Status)
	require.Equal(t, feature.StatusBlocked, view.Nodes[3].Status)
}

func TestRegressionSamplesPassing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newDiamond(t)

	res, err := svc.Regression(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 0, res.Count)
	require.NotNil(t, res.Features)

	for _, id := range []int64{1, 2, 3} {
		_, err := svc.MarkPassing(ctx, id)
		require.NoError(t, err)
	}
	res, err = svc.Regression(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, ids(res.Features))
	for _, f := range res.Features {
		require.True(t, f.Passes)
	}
}

func TestResolveAndOverview(t *testing.T) {
	ctx := context.Background()
	svc, _ := newDiamond(t)
	_, err := svc.MarkPassing(ctx, 1)
	require.NoError(t, err)

	res, err := svc.Resolve(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3, 4}, ids(res.Ordered))
	require.Empty(t, res.Circular)

	ov, err := svc.Overview(ctx)
	require.NoError(t, err)
	require.Equal(t, feature.Stats{Passing: 1, Total: 4, Percentage: 25}, ov.Stats)
	require.Equal(t, 2, ov.Ready)
	require.Equal(t, 1, ov.Blocked)
	require.Equal(t, []int64{2, 3}, ov.Next)
}

func TestSummaryAndList(t *testing.T) {
	ctx := context.Background()
	svc, _ := newDiamond(t)

	sum, err := svc.Summary(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, Summary{ID: 4, Name: "d", Dependencies: []int64{2, 3}}, sum)

	_, err = svc.Summary(ctx, 99)
	require.ErrorIs(t, err, feature.ErrNotFound)

	blocked, err := svc.List(ctx, `status == "blocked"`)
	require.NoError(t, err)
	require.Len(t, blocked, 3)
	for i, want := range []int64{2, 3, 4} {
		require.Equal(t, want, blocked[i].ID)
		require.Equal(t, feature.StatusBlocked, blocked[i].Status)
	}

	// Statuses come from the whole backlog, not just the matched rows.
	_, err = svc.MarkPassing(ctx, 1)
	require.NoError(t, err)
	listed, err := svc.List(ctx, "id == 2")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, feature.StatusPending, listed[0].Status)
}

func TestClaimMetrics(t *testing.T) {
	ctx := context.Background()
	svc, m := newDiamond(t)

	_, err := svc.Claim(ctx, 1)
	require.NoError(t, err)
	_, err = svc.Claim(ctx, 1)
	require.ErrorIs(t, err, feature.ErrAlreadyInProgress)
	_, already, err := svc.ClaimAndGet(ctx, 1)
	require.NoError(t, err)
	require.True(t, already)

	n, err := testutil.GatherAndCount(m.Registry(), "forgeq_claims_total")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	n, err = testutil.GatherAndCount(m.Registry(), "forgeq_operations_total")
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 3)
}
