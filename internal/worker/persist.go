package worker

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"

	"github.com/nimbusdata/logflow/internal/model"
	"github.com/nimbusdata/logflow/internal/platform/apperr"
)

// persistAndAck implements the Persist/Handle-failure/Acknowledge steps of
// the drain cycle: batch-insert the whole group in one transaction; on a
// transient PLS error, retry the whole batch with jittered backoff without
// acking; on a persistent per-record error, fall back to per-record inserts
// to quarantine the offending rows, acking everything that either persisted
// or was quarantined so the queue still drains.
func (w *Worker) persistAndAck(ctx context.Context, records []model.LogRecord) error {
	err := w.persistBatchWithRetry(ctx, records)
	if err == nil {
		if err := w.ackAll(ctx, records); err != nil {
			return err
		}

		atomic.AddInt64(&w.batchesProcessed, 1)
		atomic.AddInt64(&w.recordsPersisted, int64(len(records)))
		w.Metrics.ObserveWorkerBatch(len(records), map[string]int{"persisted": len(records)})

		return nil
	}

	if isTransientPLSError(err) {
		// Budget exhausted on a transient error: leave the batch
		// unacked so it's redelivered via the next Claim sweep.
		return err
	}

	return w.quarantineBadRecords(ctx, records)
}

func (w *Worker) persistBatchWithRetry(ctx context.Context, records []model.LogRecord) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.RetryBackoff
	b.MaxInterval = 10 * w.cfg.RetryBackoff
	bounded := backoff.WithMaxRetries(b, uint64(w.cfg.MaxBatchRetries-1))

	var lastErr error

	err := backoff.Retry(func() error {
		lastErr = w.Store.BatchInsert(ctx, records)
		if lastErr == nil {
			return nil
		}

		if !isTransientPLSError(lastErr) {
			return backoff.Permanent(lastErr)
		}

		return lastErr
	}, backoff.WithContext(bounded, ctx))
	if err != nil {
		return lastErr
	}

	return nil
}

// quarantineBadRecords isolates the offending record(s) by inserting one at
// a time in a fresh transaction per record. Records that persist cleanly
// are acked; records that fail again are written to the dead-letter log and
// acked regardless, so a permanently-bad record can't block the stream
// forever.
func (w *Worker) quarantineBadRecords(ctx context.Context, records []model.LogRecord) error {
	outcomes := map[string]int{}

	for _, r := range records {
		if err := w.Store.BatchInsert(ctx, []model.LogRecord{r}); err != nil {
			w.Logger.Errorf("worker %s: quarantining ingest_id %d: %v", w.cfg.ConsumerID, r.IngestID, err)

			if qerr := w.Store.QuarantineRecord(ctx, r, err.Error()); qerr != nil {
				// Even the dead-letter write failed: leave this one
				// record unacked rather than silently drop it.
				w.Logger.Errorf("worker %s: dead-letter write failed for ingest_id %d: %v", w.cfg.ConsumerID, r.IngestID, qerr)
				outcomes["unacked"]++
				continue
			}

			atomic.AddInt64(&w.recordsQuarantined, 1)
			outcomes["quarantined"]++
		} else {
			atomic.AddInt64(&w.recordsPersisted, 1)
			outcomes["persisted"]++
		}

		if err := w.Queue.Ack(ctx, r.IngestID); err != nil {
			w.Logger.Errorf("worker %s: ack failed for ingest_id %d: %v", w.cfg.ConsumerID, r.IngestID, err)
			atomic.AddInt64(&w.recordsFailed, 1)
		}
	}

	atomic.AddInt64(&w.batchesProcessed, 1)
	w.Metrics.ObserveWorkerBatch(len(records), outcomes)

	return nil
}

func (w *Worker) ackAll(ctx context.Context, records []model.LogRecord) error {
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.IngestID
	}

	return w.Queue.Ack(ctx, ids...)
}

// isTransientPLSError distinguishes transient PLS errors (connection
// reset, serialization failure) from persistent per-record
// errors (constraint violation, encoding). apperr.BackendUnavailable is
// always transient. apperr.TransientBackendError, which the postgres adapter
// wraps around every statement failure, counts as transient only when the
// wrapped error's message names a connection, reset, timeout, serialization
// failure, deadline or EOF problem; anything else (e.g. a constraint
// violation) is treated as a persistent per-record problem.
func isTransientPLSError(err error) bool {
	var unavailable apperr.BackendUnavailable
	if errors.As(err, &unavailable) {
		return true
	}

	var transient apperr.TransientBackendError
	if errors.As(err, &transient) {
		msg := strings.ToLower(transient.Err.Error())
		for _, marker := range []string{"connection", "reset", "timeout", "serialization failure", "deadline exceeded", "eof"} {
			if strings.Contains(msg, marker) {
				return true
			}
		}

		return false
	}

	return false
}
