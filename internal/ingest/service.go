// Package ingest implements the ingest front end: validated admission onto
// the DMQ and cache-through reads against the PLS. Service bundles the
// adapters each operation needs behind one struct, one file per operation.
package ingest

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cenkalti/backoff/v4"

	"github.com/nimbusdata/logflow/internal/adapters/postgres"
	redisadapter "github.com/nimbusdata/logflow/internal/adapters/redis"
	"github.com/nimbusdata/logflow/internal/platform/metrics"
	"github.com/nimbusdata/logflow/internal/platform/mlog"
)

// AppendRetryBudget bounds how many DMQ append attempts Submit makes (the
// first try plus retries) before surfacing BackendUnavailable.
const AppendRetryBudget = 3

// Service aggregates the DMQ queue, the shared cache namespace, and the PLS
// store the IFE operations need.
type Service struct {
	Queue   *redisadapter.Queue
	Cache   *redisadapter.Cache
	Store   *postgres.Store
	Logger  mlog.Logger
	Tracer  trace.Tracer
	Metrics *metrics.Metrics
}

// NewService constructs a Service. When logger is nil it falls back to a
// no-op logger.
func NewService(queue *redisadapter.Queue, cache *redisadapter.Cache, store *postgres.Store, logger mlog.Logger) *Service {
	if logger == nil {
		logger = mlog.NoneLogger{}
	}

	return &Service{
		Queue:  queue,
		Cache:  cache,
		Store:  store,
		Logger: logger,
		Tracer: otel.Tracer("logflow/ingest"),
	}
}

func newAppendBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	return backoff.WithMaxRetries(b, AppendRetryBudget-1)
}
