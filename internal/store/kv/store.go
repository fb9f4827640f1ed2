// Package kv is the embedded feature store built on Pebble.
//
// Pebble's LOCK file makes the opening process the sole owner of a data
// directory; other processes reach the backlog through that process (for
// example the forgeq CLI) or use the sqlite backend. Inside the owning process
// a per-project writer lock serializes every read-validate-write sequence,
// including across Store values bound to the same project, and each
// sequence commits as a single Pebble batch.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/forgeq/internal/feature"
	pebblestore "github.com/rzbill/forgeq/internal/storage/pebble"
	"github.com/rzbill/forgeq/internal/store"
	logpkg "github.com/rzbill/forgeq/pkg/log"
)

// DefaultProject is used when Options.Project is empty.
const DefaultProject = "default"

// Options configures Open.
type Options struct {
	DataDir         string
	Project         string
	Fsync           pebblestore.FsyncMode
	MaxDependencies int
	Metrics         pebblestore.MetricsHook
	Logger          logpkg.Logger
}

// Store implements store.Store on a Pebble database.
type Store struct {
	db      *pebblestore.DB
	ownsDB  bool
	project string
	opts    store.Options
	logger  logpkg.Logger

	// mu serializes writers of this project on db, across every Store bound
	// to it. Readers use snapshots or single-key gets.
	mu *sync.Mutex
}

var _ store.Store = (*Store)(nil)

// Open opens the Pebble database in opts.DataDir and binds it to a project.
func Open(opts Options) (*Store, error) {
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: opts.DataDir,
		Fsync:   opts.Fsync,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	s, err := New(db, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// New binds an already open database to a project. Several projects may share
// one database, and stores bound to the same project share its writer lock.
// Close on such a store leaves the database open.
func New(db *pebblestore.DB, opts Options) (*Store, error) {
	project := opts.Project
	if project == "" {
		project = DefaultProject
	}
	if _, err := EnsureProject(db, project); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Store{
		db:      db,
		project: project,
		mu:      db.WriterLock(project),
		opts:    store.Options{MaxDependencies: opts.MaxDependencies},
		logger:  logger.With(logpkg.Component("store.kv"), logpkg.Str(logpkg.ProjectKey, project)),
	}, nil
}

// Close closes the database when this store opened it.
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// Project returns the project this store is bound to.
func (s *Store) Project() string { return s.project }

func (s *Store) load(r pebble.Reader, id int64) (*feature.Feature, error) {
	b, err := s.db.GetFrom(r, FeatureKey(s.project, id))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f feature.Feature
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode feature %d: %w", id, err)
	}
	normalize(&f)
	return &f, nil
}

// loadAll returns every feature in (priority, id) order.
func (s *Store) loadAll(r pebble.Reader) ([]feature.Feature, error) {
	var out []feature.Feature
	err := s.db.ScanPrefix(r, FeaturePrefix(s.project), func(key, value []byte) error {
		var f feature.Feature
		if err := json.Unmarshal(value, &f); err != nil {
			id, _ := FeatureIDFromKey(s.project, key)
			return fmt.Errorf("decode feature %d: %w", id, err)
		}
		normalize(&f)
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	feature.SortByPriority(out)
	return out, nil
}

func normalize(f *feature.Feature) {
	if f.Steps == nil {
		f.Steps = []string{}
	}
	f.Dependencies = feature.SortIDs(f.Dependencies)
}

func (s *Store) put(b *pebble.Batch, f feature.Feature) error {
	enc, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode feature %d: %w", f.ID, err)
	}
	return b.Set(FeatureKey(s.project, f.ID), enc, nil)
}

// allocateIDs reserves n ids and records the new sequence in b.
func (s *Store) allocateIDs(b *pebble.Batch, n int) (int64, error) {
	var last uint64
	raw, err := s.db.Get(SeqKey(s.project))
	switch {
	case err == nil:
		if last, err = decodeUint64(raw); err != nil {
			return 0, err
		}
	case !errors.Is(err, pebblestore.ErrNotFound):
		return 0, err
	}
	if err := b.Set(SeqKey(s.project), encodeUint64(last+uint64(n)), nil); err != nil {
		return 0, err
	}
	return int64(last) + 1, nil
}

func maxPriority(all []feature.Feature) int64 {
	var p int64
	for _, f := range all {
		if f.Priority > p {
			p = f.Priority
		}
	}
	return p
}

// write runs fn under the writer lock and commits the batch it fills.
// Errors without a feature category are reported as store failures.
func (s *Store) write(ctx context.Context, op string, fn func(b *pebble.Batch) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()
	if err := fn(b); err != nil {
		return classify(op, err)
	}
	if b.Empty() {
		return nil
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return feature.StoreFailure(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func classify(op string, err error) error {
	for _, sentinel := range []error{
		feature.ErrNotFound, feature.ErrInvalidRequest, feature.ErrLimitExceeded,
		feature.ErrConflict, feature.ErrStoreFailure,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return feature.StoreFailure(op, err)
}

// Get implements store.Store.
func (s *Store) Get(_ context.Context, id int64) (feature.Feature, error) {
	f, err := s.load(nil, id)
	if err != nil {
		return feature.Feature{}, feature.StoreFailure(store.OpGet, err)
	}
	if f == nil {
		return feature.Feature{}, feature.NotFound(store.OpGet, id)
	}
	return *f, nil
}

// List implements store.Store from a consistent snapshot.
func (s *Store) List(_ context.Context) ([]feature.Feature, error) {
	snap := s.db.NewSnapshot()
	defer snap.Close()
	all, err := s.loadAll(snap)
	if err != nil {
		return nil, feature.StoreFailure(store.OpList, err)
	}
	return all, nil
}

// Stats implements store.Store.
func (s *Store) Stats(ctx context.Context) (feature.Stats, error) {
	all, err := s.List(ctx)
	if err != nil {
		return feature.Stats{}, err
	}
	return feature.StatsOf(all), nil
}
