package runtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	cfgpkg "github.com/rzbill/forgeq/internal/config"
	"github.com/rzbill/forgeq/internal/metrics"
	pebblestore "github.com/rzbill/forgeq/internal/storage/pebble"
	"github.com/rzbill/forgeq/internal/store"
	"github.com/rzbill/forgeq/internal/store/kv"
	"github.com/rzbill/forgeq/internal/store/sqlite"
	logpkg "github.com/rzbill/forgeq/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config  cfgpkg.Config
	Logger  logpkg.Logger
	Metrics *metrics.Metrics
}

// Runtime owns the configured store for one project.
type Runtime struct {
	store   store.Store
	config  cfgpkg.Config
	logger  logpkg.Logger
	metrics *metrics.Metrics
}

// SQLitePath is where the sqlite backend keeps a project's database.
func SQLitePath(cfg cfgpkg.Config) string {
	return filepath.Join(cfg.DataDir, "projects", cfg.Project, sqlite.FileName)
}

// PebbleDir is the Pebble data directory. Projects share it under key prefixes.
func PebbleDir(cfg cfgpkg.Config) string {
	return filepath.Join(cfg.DataDir, "pebble")
}

// Open validates the configuration and opens the selected backend.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}

	var (
		s   store.Store
		err error
	)
	switch cfg.Backend {
	case cfgpkg.BackendPebble:
		var fsync pebblestore.FsyncMode
		if fsync, err = pebblestore.ParseFsyncMode(cfg.Fsync); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		s, err = kv.Open(kv.Options{
			DataDir:         PebbleDir(cfg),
			Project:         cfg.Project,
			Fsync:           fsync,
			MaxDependencies: cfg.MaxDependencies,
			Metrics:         opts.Metrics.Storage(),
			Logger:          logger,
		})
	default:
		s, err = sqlite.Open(ctx, sqlite.Options{
			Path:            SQLitePath(cfg),
			BusyTimeout:     time.Duration(cfg.BusyTimeoutMs) * time.Millisecond,
			MaxDependencies: cfg.MaxDependencies,
			Logger:          logger,
		})
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("store opened", logpkg.Str("backend", cfg.Backend), logpkg.Str(logpkg.ProjectKey, cfg.Project))
	return &Runtime{store: s, config: cfg, logger: logger, metrics: opts.Metrics}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.store == nil {
		return nil
	}
	err := r.store.Close()
	r.store = nil
	return err
}

// CheckHealth performs a simple read against the store.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store == nil {
		return errors.New("store not open")
	}
	_, err := r.store.Stats(ctx)
	return err
}

// Store returns the opened backend.
func (r *Runtime) Store() store.Store { return r.store }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the runtime logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }

// Metrics returns the collectors, possibly nil.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }
