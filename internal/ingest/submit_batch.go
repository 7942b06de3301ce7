package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/nimbusdata/logflow/internal/model"
	"github.com/nimbusdata/logflow/internal/platform/apperr"
)

// RecordOutcome is the per-record result of a SubmitBatch call, since a
// batch can partially succeed.
type RecordOutcome struct {
	Index    int
	IngestID int64
	Err      error
}

// SubmitBatch validates and enqueues 1..model.MaxBatchSize records with one
// pipelined DMQ append (Queue.AppendBatch), reporting success or failure per
// record.
// A validation failure on one record does not block the others.
func (s *Service) SubmitBatch(ctx context.Context, records []model.LogRecord) ([]RecordOutcome, error) {
	ctx, span := s.Tracer.Start(ctx, "ingest.submit_batch")
	defer span.End()

	if len(records) == 0 {
		return nil, apperr.ValidationError{Field: "records", Message: "batch must contain at least one record"}
	}

	if len(records) > model.MaxBatchSize {
		return nil, apperr.ValidationError{
			Field:   "records",
			Message: fmt.Sprintf("batch size %d exceeds the maximum of %d", len(records), model.MaxBatchSize),
		}
	}

	outcomes := make([]RecordOutcome, len(records))
	toAppend := make([]model.LogRecord, 0, len(records))
	toAppendIndex := make([]int, 0, len(records))

	now := time.Now()

	for i, r := range records {
		if fields := model.ValidateRecord(&r); fields != nil {
			outcomes[i] = RecordOutcome{Index: i, Err: validationError(fields)}
			s.Metrics.ObserveIngest(string(r.LogLevel), "rejected")
			continue
		}

		r.ApplyDefaults(now)
		toAppend = append(toAppend, r)
		toAppendIndex = append(toAppendIndex, i)
	}

	if len(toAppend) > 0 {
		ingestIDs, errs := s.Queue.AppendBatch(ctx, toAppend)

		for j, idx := range toAppendIndex {
			r := toAppend[j]

			if errs[j] != nil {
				s.Logger.Errorf("ingest: batch append failed for record %d: %v", idx, errs[j])
				outcomes[idx] = RecordOutcome{Index: idx, Err: apperr.BackendUnavailable{Backend: "dmq", Err: errs[j]}}
				s.Metrics.ObserveDMQAppend("failure")
				s.Metrics.ObserveIngest(string(r.LogLevel), "failure")
				continue
			}

			outcomes[idx] = RecordOutcome{Index: idx, IngestID: ingestIDs[j]}
			s.Metrics.ObserveDMQAppend("success")
			s.Metrics.ObserveIngest(string(r.LogLevel), "queued")
		}
	}

	return outcomes, nil
}
