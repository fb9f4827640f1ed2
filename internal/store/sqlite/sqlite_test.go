package sqlite

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/store"
	"github.com/rzbill/forgeq/internal/store/storetest"
)

func openTemp(t *testing.T, maxDeps int) *Store {
	t.Helper()
	s, err := Open(context.Background(), Options{
		Path:            filepath.Join(t.TempDir(), FileName),
		MaxDependencies: maxDeps,
		BusyTimeout:     10 * time.Second,
	})
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
			p, err := s.(*Store).Reopen(context.Background())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			t.Cleanup(func() { _ = p.Close() })
			return p
		},
	})
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", FileName)
	s, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	res, err := s.CreateBulk(ctx, []feature.Spec{storetest.Spec("a"), storetest.Spec("b", 0)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, Options{Path: path})
	require.NoError(t, err)
	defer s.Close()
	b, err := s.Get(ctx, res.IDs[1])
	require.NoError(t, err)
	require.Equal(t, []int64{res.IDs[0]}, b.Dependencies)
}

func TestDSN(t *testing.T) {
	dsn := DSN("/tmp/x.db", 2500*time.Millisecond)
	require.True(t, strings.HasPrefix(dsn, "file:/tmp/x.db?"))
	require.Contains(t, dsn, "_txlock=immediate")
	require.Contains(t, dsn, "busy_timeout%282500%29")
	require.Contains(t, dsn, "journal_mode%28WAL%29")
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	require.Error(t, err)
}

const helperEnv = "FORGEQ_SQLITE_CLAIM_HELPER"

// TestHelperProcess is not a real test: it is re-executed as a child process
// by TestClaimAcrossProcesses and performs a single claim.
func TestHelperProcess(t *testing.T) {
	spec := os.Getenv(helperEnv)
	if spec == "" {
		return
	}
	path, idStr, _ := strings.Cut(spec, "|")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stdout, "error: %v\n", err)
		os.Exit(2)
	}
	s, err := Open(context.Background(), Options{Path: path, BusyTimeout: 20 * time.Second})
	if err != nil {
		fmt.Fprintf(os.Stdout, "error: %v\n", err)
		os.Exit(2)
	}
	_, err = s.Claim(context.Background(), id)
	_ = s.Close()
	switch {
	case err == nil:
		fmt.Fprintln(os.Stdout, "won")
	case feature.KindOf(err) == feature.KindConflict:
		fmt.Fprintln(os.Stdout, "lost")
	default:
		fmt.Fprintf(os.Stdout, "error: %v\n", err)
	}
	os.Exit(0)
}

func TestClaimAcrossProcesses(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns processes")
	}
	ctx := context.Background()
	s := openTemp(t, 0)
	f, err := s.Create(ctx, storetest.Spec("contended"))
	require.NoError(t, err)

	const procs = 6
	outputs := make([]string, procs)
	var g errgroup.Group
	for i := 0; i < procs; i++ {
		i := i
		g.Go(func() error {
			cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
			cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%s|%d", helperEnv, s.Path(), f.ID))
			var out bytes.Buffer
			cmd.Stdout = &out
			if err := cmd.Run(); err != nil {
				return fmt.Errorf("helper %d: %w (%s)", i, err, out.String())
			}
			outputs[i] = out.String()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	won, lost := 0, 0
	for _, out := range outputs {
		switch {
		case strings.HasPrefix(out, "won"):
			won++
		case strings.HasPrefix(out, "lost"):
			lost++
		default:
			t.Fatalf("unexpected helper output %q", out)
		}
	}
	require.Equal(t, 1, won)
	require.Equal(t, procs-1, lost)

	got, err := s.Get(ctx, f.ID)
	require.NoError(t, err)
	require.True(t, got.InProgress)
}
