// Package worker implements the worker pool: an independently scheduled
// consumer in the shared DMQ consumer group that drains batches into the
// PLS with at-least-once semantics.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimbusdata/logflow/internal/adapters/postgres"
	redisadapter "github.com/nimbusdata/logflow/internal/adapters/redis"
	"github.com/nimbusdata/logflow/internal/platform/metrics"
	"github.com/nimbusdata/logflow/internal/platform/mlog"
)

// Config tunes a Worker's batching and recovery behavior.
type Config struct {
	ConsumerID         string
	BatchSize          int
	BlockFor           time.Duration
	MaxBatchRetries    int
	RetryBackoff       time.Duration
	ClaimSweepInterval time.Duration
	ClaimIdleThreshold time.Duration
}

// DefaultConfig returns the standard tuning for a pipeline worker.
func DefaultConfig(consumerID string) Config {
	return Config{
		ConsumerID:         consumerID,
		BatchSize:          100,
		BlockFor:           2 * time.Second,
		MaxBatchRetries:    3,
		RetryBackoff:       100 * time.Millisecond,
		ClaimSweepInterval: 30 * time.Second,
		ClaimIdleThreshold: 60 * time.Second,
	}
}

// Worker drains the DMQ into the PLS. One Worker is one independent unit
// of parallelism; many Workers share nothing but the DMQ consumer group.
type Worker struct {
	cfg     Config
	Queue   *redisadapter.Queue
	Store   *postgres.Store
	Logger  mlog.Logger
	Tracer  trace.Tracer
	Metrics *metrics.Metrics

	wg   sync.WaitGroup
	quit chan struct{}

	batchesProcessed   int64
	recordsPersisted   int64
	recordsFailed      int64
	recordsQuarantined int64
}

// New constructs a Worker. When logger is nil it falls back to a no-op
// logger.
func New(cfg Config, queue *redisadapter.Queue, store *postgres.Store, logger mlog.Logger) *Worker {
	if logger == nil {
		logger = mlog.NoneLogger{}
	}

	return &Worker{
		cfg:    cfg,
		Queue:  queue,
		Store:  store,
		Logger: logger,
		Tracer: otel.Tracer("logflow/worker"),
		quit:   make(chan struct{}),
	}
}

// Start runs the drain loop and the claim-sweep loop in their own
// goroutines, first executing the recovery protocol: EnsureGroup, then
// self-claim any entries still pending for this worker's own consumer id
// from a previous crash.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.Queue.EnsureGroup(ctx, "0"); err != nil {
		return err
	}

	if err := w.selfClaimOwnPending(ctx); err != nil {
		w.Logger.Warnf("worker %s: self-claim on startup failed: %v", w.cfg.ConsumerID, err)
	}

	w.wg.Add(2)
	go w.drainLoop(ctx)
	go w.claimSweepLoop(ctx)

	return nil
}

// Stop requests cooperative shutdown: the worker finishes its current
// batch, acks it, and exits, leaving anything still in flight pending for
// itself until another worker's Claim sweep reclaims it.
func (w *Worker) Stop() {
	close(w.quit)
	w.wg.Wait()
}

// selfClaimOwnPending replays entries left pending for this consumer id by
// a prior crashed process under the same id. Consumer-id reuse after a
// crash is intentional for exactly this reason. Entries pending for other
// live consumers are untouched; those are the claim sweep's business.
func (w *Worker) selfClaimOwnPending(ctx context.Context) error {
	for {
		records, err := w.Queue.ReadOwnPending(ctx, w.cfg.ConsumerID, w.cfg.BatchSize)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			return nil
		}

		w.Logger.Infof("worker %s: replaying %d entries left pending from a prior run", w.cfg.ConsumerID, len(records))

		if err := w.persistAndAck(ctx, records); err != nil {
			return err
		}
	}
}

func (w *Worker) drainLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-w.quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := w.drainOnce(ctx); err != nil {
			w.Logger.Errorf("worker %s: drain cycle failed: %v", w.cfg.ConsumerID, err)
			time.Sleep(w.cfg.RetryBackoff)
		}
	}
}

// drainOnce runs one Read→Collate→Persist→Acknowledge cycle.
func (w *Worker) drainOnce(ctx context.Context) error {
	_, span := w.Tracer.Start(ctx, "worker.drain")
	defer span.End()

	records, err := w.Queue.ReadGroup(ctx, w.cfg.ConsumerID, w.cfg.BatchSize, w.cfg.BlockFor)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		return nil
	}

	return w.persistAndAck(ctx, records)
}

func (w *Worker) claimSweepLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.ClaimSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			records, err := w.Queue.Claim(ctx, w.cfg.ConsumerID, w.cfg.ClaimIdleThreshold)
			if err != nil {
				w.Logger.Errorf("worker %s: claim sweep failed: %v", w.cfg.ConsumerID, err)
				continue
			}

			if len(records) == 0 {
				continue
			}

			w.Logger.Infof("worker %s: claim sweep picked up %d idle entries", w.cfg.ConsumerID, len(records))

			if err := w.persistAndAck(ctx, records); err != nil {
				w.Logger.Errorf("worker %s: persisting claimed entries failed: %v", w.cfg.ConsumerID, err)
			}
		}
	}
}

// Stats snapshots the worker's lifetime counters.
type Stats struct {
	BatchesProcessed   int64
	RecordsPersisted   int64
	RecordsFailed      int64
	RecordsQuarantined int64
}

func (w *Worker) Stats() Stats {
	return Stats{
		BatchesProcessed:   atomic.LoadInt64(&w.batchesProcessed),
		RecordsPersisted:   atomic.LoadInt64(&w.recordsPersisted),
		RecordsFailed:      atomic.LoadInt64(&w.recordsFailed),
		RecordsQuarantined: atomic.LoadInt64(&w.recordsQuarantined),
	}
}
