package ingest

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nimbusdata/logflow/internal/model"
	"github.com/nimbusdata/logflow/internal/platform/apperr"
)

// Submit validates and enqueues a single record, returning its assigned
// ingest_id. The IFE never blocks on the PLS: a successful return means the
// record is durable in the DMQ, not yet in the PLS.
func (s *Service) Submit(ctx context.Context, r model.LogRecord) (int64, error) {
	ctx, span := s.Tracer.Start(ctx, "ingest.submit")
	defer span.End()

	if fields := model.ValidateRecord(&r); fields != nil {
		s.Metrics.ObserveIngest(string(r.LogLevel), "rejected")
		return 0, validationError(fields)
	}

	r.ApplyDefaults(time.Now())

	var ingestID int64

	err := backoff.Retry(func() error {
		id, appendErr := s.Queue.Append(ctx, r)
		if appendErr != nil {
			return appendErr
		}

		ingestID = id

		return nil
	}, backoff.WithContext(newAppendBackoff(), ctx))
	if err != nil {
		s.Logger.Errorf("ingest: submit failed after retry budget: %v", err)
		s.Metrics.ObserveDMQAppend("failure")
		s.Metrics.ObserveIngest(string(r.LogLevel), "failure")
		return 0, apperr.BackendUnavailable{Backend: "dmq", Err: err}
	}

	s.Metrics.ObserveDMQAppend("success")
	s.Metrics.ObserveIngest(string(r.LogLevel), "queued")

	return ingestID, nil
}

// validationError surfaces one field error as the client-visible 4xx-class
// response. fields is a map, so when several fields fail, which one is
// reported is not defined.
func validationError(fields model.FieldValidations) error {
	for field, message := range fields {
		return apperr.ValidationError{Field: field, Message: message}
	}

	return nil
}
