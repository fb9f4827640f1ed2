// Package service is the feature backlog facade used by the CLI and the tool
// dispatcher. It layers scheduling (ranking, readiness, blockage), graph views
// and stats over a store.Store, and logs and measures every operation.
package service

import (
	"math/rand"
	"time"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/metrics"
	"github.com/rzbill/forgeq/internal/runtime"
	"github.com/rzbill/forgeq/internal/store"
	logpkg "github.com/rzbill/forgeq/pkg/log"
)

// Limits for list-style operations: default and maximum.
const (
	DefaultReadyLimit      = 10
	MaxReadyLimit          = 50
	DefaultBlockedLimit    = 20
	MaxBlockedLimit        = 100
	DefaultRegressionLimit = 3
	MaxRegressionLimit     = 10
)

// Service provides feature operations over one project store.
type Service struct {
	store   store.Store
	logger  logpkg.Logger
	metrics *metrics.Metrics

	// shuffle picks regression samples; rand.Shuffle unless overridden.
	shuffle func(n int, swap func(i, j int))
}

// New creates a Service on the runtime's store, logger and metrics.
func New(rt *runtime.Runtime) *Service {
	return NewWithStore(rt.Store(), rt.Logger(), rt.Metrics())
}

// NewWithStore creates a Service on s. logger and m may be nil.
func NewWithStore(s store.Store, logger logpkg.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Service{
		store:   s,
		logger:  logger.With(logpkg.Component("service")),
		metrics: m,
		shuffle: rand.Shuffle,
	}
}

// observe records the outcome of op. Domain refusals are routine and logged at
// debug; store failures are errors.
func (s *Service) observe(op string, id int64, start time.Time, err error) {
	s.metrics.ObserveOp(op, start, err)
	if err == nil {
		return
	}
	fields := []logpkg.Field{logpkg.Operation(op), logpkg.Str("kind", feature.KindOf(err)), logpkg.Err(err)}
	if id > 0 {
		fields = append(fields, logpkg.FeatureID(id))
	}
	if feature.KindOf(err) == feature.KindStoreFailure {
		s.logger.Error("operation failed", fields...)
		return
	}
	s.logger.Debug("operation refused", fields...)
}

// limit applies the default for zero and rejects values outside 1..max.
func limit(op string, n, def, max int) (int, error) {
	if n == 0 {
		return def, nil
	}
	if n < 1 || n > max {
		return 0, feature.Errf(op, 0, feature.ErrInvalidRequest, "limit must be between 1 and %d, got %d", max, n)
	}
	return n, nil
}
