package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
)

type testMetrics struct {
	wrote        int
	read         int
	batchCommits int
	batchOps     int
	batchBytes   int
}

func (m *testMetrics) ObserveWrite(d time.Duration, bytes int) { m.wrote += bytes }
func (m *testMetrics) ObserveRead(d time.Duration, bytes int)  { m.read += bytes }
func (m *testMetrics) ObserveBatchCommit(d time.Duration, numOps int, bytes int) {
	m.batchCommits++
	m.batchOps += numOps
	m.batchBytes += bytes
}

func newTestDB(t *testing.T) (*DB, *testMetrics) {
	t.Helper()
	dir := t.TempDir()
	metrics := &testMetrics{}
	db, err := Open(Options{
		DataDir:       dir,
		Fsync:         FsyncModeInterval,
		FsyncInterval: 2 * time.Millisecond,
		Metrics:       metrics,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, metrics
}

func TestCRUD(t *testing.T) {
	db, metrics := newTestDB(t)

	key := []byte("k1")
	val := []byte("v1")
	if err := db.Set(key, val); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(val) {
		t.Fatalf("got %q want %q", got, val)
	}

	if metrics.read == 0 || metrics.wrote == 0 {
		t.Fatalf("expected read and write metrics to record bytes")
	}

	if err := db.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestBatchCommitMetrics(t *testing.T) {
	db, metrics := newTestDB(t)

	b := db.NewBatch()
	if err := b.Set([]byte("a"), []byte("1"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := b.Set([]byte("b"), []byte("2"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := db.CommitBatch(context.Background(), b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()

	if metrics.batchCommits != 1 || metrics.batchOps != 2 {
		t.Fatalf("want 1 batch commit with 2 ops, got %d/%d", metrics.batchCommits, metrics.batchOps)
	}
	if metrics.batchBytes <= 0 {
		t.Fatalf("expected positive batch bytes")
	}
}

func TestSnapshotConsistency(t *testing.T) {
	db, _ := newTestDB(t)

	key := []byte("p/default/feat/2")
	if err := db.Set(key, []byte("old")); err != nil {
		t.Fatalf("set: %v", err)
	}
	snap := db.NewSnapshot()
	defer snap.Close()

	// mutate after snapshot
	if err := db.Set(key, []byte("new")); err != nil {
		t.Fatalf("set: %v", err)
	}

	// read via snapshot should see old
	valOld, closer, err := snap.Get(key)
	if err != nil {
		t.Fatalf("snap get: %v", err)
	}
	if string(valOld) != "old" {
		t.Fatalf("snapshot saw %q want %q", valOld, "old")
	}
	closer.Close()

	// read via DB should see new
	valNew, err := db.Get(key)
	if err != nil {
		t.Fatalf("db get: %v", err)
	}
	if string(valNew) != "new" {
		t.Fatalf("db saw %q want %q", valNew, "new")
	}
}

func TestScanPrefixUsesSnapshot(t *testing.T) {
	db, _ := newTestDB(t)
	for i := 0; i < 3; i++ {
		if err := db.Set([]byte(fmt.Sprintf("p/a/feat/%d", i)), []byte("x")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if err := db.Set([]byte("p/b/feat/0"), []byte("other project")); err != nil {
		t.Fatalf("set: %v", err)
	}

	snap := db.NewSnapshot()
	defer snap.Close()
	if err := db.Set([]byte("p/a/feat/9"), []byte("late")); err != nil {
		t.Fatalf("set: %v", err)
	}

	count := func(r pebble.Reader) int {
		n := 0
		if err := db.ScanPrefix(r, []byte("p/a/"), func(k, v []byte) error { n++; return nil }); err != nil {
			t.Fatalf("scan: %v", err)
		}
		return n
	}
	if got := count(snap); got != 3 {
		t.Fatalf("snapshot scan saw %d keys, want 3", got)
	}
	if got := count(nil); got != 4 {
		t.Fatalf("live scan saw %d keys, want 4", got)
	}
}

func TestPrefixEnd(t *testing.T) {
	if got := prefixEnd([]byte("ab")); string(got) != "ac" {
		t.Fatalf("prefixEnd(ab) = %q", got)
	}
	if got := prefixEnd([]byte{'a', 0xff}); string(got) != "b" {
		t.Fatalf("prefixEnd(a\\xff) = %q", got)
	}
	if got := prefixEnd([]byte{0xff}); got != nil {
		t.Fatalf("prefixEnd(\\xff) = %q, want nil", got)
	}
}

func TestParseFsyncMode(t *testing.T) {
	for in, want := range map[string]FsyncMode{"": FsyncModeInterval, "always": FsyncModeAlways, "never": FsyncModeNever} {
		got, err := ParseFsyncMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseFsyncMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFsyncMode("sometimes"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWriterLockIsSharedPerScope(t *testing.T) {
	db, _ := newTestDB(t)
	if db.WriterLock("a") != db.WriterLock("a") {
		t.Fatalf("same scope returned different locks")
	}
	if db.WriterLock("a") == db.WriterLock("b") {
		t.Fatalf("different scopes share a lock")
	}
}
