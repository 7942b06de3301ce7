package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nimbusdata/logflow/internal/model"
	"github.com/nimbusdata/logflow/internal/platform/apperr"
	"github.com/nimbusdata/logflow/internal/platform/metrics"
)

// Store implements the PLS operations (BatchInsert, QueryRecent, Count)
// plus the dead-letter log. Every operation runs on a single acquired Pool
// session. BatchInsert wraps its inserts in an explicit transaction;
// QueryRecent, Count and QuarantineRecord each run one statement on the
// session without an explicit transaction.
type Store struct {
	pool    *Pool
	Metrics *metrics.Metrics
}

// NewStore constructs a Store over pool.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// BatchInsert writes records in a single transaction, ignoring rows whose
// ingest_id already exists so replayed deliveries are no-ops. Insertion
// order matches the slice order.
func (s *Store) BatchInsert(ctx context.Context, records []model.LogRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { s.Metrics.TimePLSInsert(time.Since(start)) }()

	session, err := s.pool.Acquire(ctx)
	if err != nil {
		return apperr.BackendUnavailable{Backend: "pls", Err: err}
	}
	defer func() { s.pool.Release(session, err) }()

	tx, err := session.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.TransientBackendError{Op: "batch_insert", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO log_records (ingest_id, device_id, log_level, message, log_data, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ingest_id) DO NOTHING
	`)
	if err != nil {
		return apperr.TransientBackendError{Op: "batch_insert", Err: err}
	}
	defer stmt.Close()

	for _, r := range records {
		var logData []byte
		if len(r.LogData) > 0 {
			logData, err = json.Marshal(r.LogData)
			if err != nil {
				return fmt.Errorf("marshal log_data for ingest_id %d: %w", r.IngestID, err)
			}
		}

		if _, err = stmt.ExecContext(ctx, r.IngestID, r.DeviceID, string(r.LogLevel), r.Message, nullableJSON(logData), r.Timestamp); err != nil {
			return apperr.TransientBackendError{Op: "batch_insert", Err: err}
		}
	}

	if err = tx.Commit(); err != nil {
		return apperr.TransientBackendError{Op: "batch_insert", Err: err}
	}

	return nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}

	return raw
}

// QueryRecent returns up to limit records for deviceID, most recent first,
// via the (device_id, timestamp desc) index.
func (s *Store) QueryRecent(ctx context.Context, deviceID string, limit int) (records []model.LogRecord, err error) {
	start := time.Now()
	defer func() { s.Metrics.TimePLSQuery(time.Since(start)) }()

	session, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, apperr.BackendUnavailable{Backend: "pls", Err: err}
	}
	defer func() { s.pool.Release(session, err) }()

	rows, err := session.Conn.QueryContext(ctx, `
		SELECT ingest_id, device_id, log_level, message, log_data, timestamp
		FROM log_records
		WHERE device_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, deviceID, limit)
	if err != nil {
		return nil, apperr.TransientBackendError{Op: "query_recent", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r       model.LogRecord
			level   string
			logData sql.NullString
		)

		if err = rows.Scan(&r.IngestID, &r.DeviceID, &level, &r.Message, &logData, &r.Timestamp); err != nil {
			return nil, apperr.TransientBackendError{Op: "query_recent", Err: err}
		}

		r.LogLevel = model.LogLevel(level)

		if logData.Valid && logData.String != "" {
			if err = json.Unmarshal([]byte(logData.String), &r.LogData); err != nil {
				return nil, fmt.Errorf("unmarshal log_data for ingest_id %d: %w", r.IngestID, err)
			}
		}

		records = append(records, r)
	}

	if err = rows.Err(); err != nil {
		return nil, apperr.TransientBackendError{Op: "query_recent", Err: err}
	}

	return records, nil
}

// Count returns the total number of persisted records.
func (s *Store) Count(ctx context.Context) (count int64, err error) {
	session, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, apperr.BackendUnavailable{Backend: "pls", Err: err}
	}
	defer func() { s.pool.Release(session, err) }()

	row := session.Conn.QueryRowContext(ctx, `SELECT count(*) FROM log_records`)
	if err = row.Scan(&count); err != nil {
		return 0, apperr.TransientBackendError{Op: "count", Err: err}
	}

	return count, nil
}

// QuarantineRecord writes a permanently-rejected record to the dead-letter
// log so the worker can ack it and keep the stream draining.
func (s *Store) QuarantineRecord(ctx context.Context, r model.LogRecord, reason string) (err error) {
	session, err := s.pool.Acquire(ctx)
	if err != nil {
		return apperr.BackendUnavailable{Backend: "pls", Err: err}
	}
	defer func() { s.pool.Release(session, err) }()

	_, err = session.Conn.ExecContext(ctx, `
		INSERT INTO dead_letter_log (ingest_id, device_id, message, failure_reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ingest_id) DO NOTHING
	`, r.IngestID, r.DeviceID, r.Message, reason)
	if err != nil {
		return apperr.PermanentRecordError{IngestID: r.IngestID, Reason: reason, Err: err}
	}

	return nil
}
