package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdata/logflow/internal/adapters/postgres"
	redisadapter "github.com/nimbusdata/logflow/internal/adapters/redis"
	"github.com/nimbusdata/logflow/internal/model"
	"github.com/nimbusdata/logflow/internal/platform/mlog"
	"github.com/nimbusdata/logflow/internal/worker"
)

func newTestWorker(t *testing.T) (*worker.Worker, *redisadapter.Queue, sqlmock.Sqlmock) {
	t.Helper()

	mr := miniredis.RunT(t)
	conn := &redisadapter.Connection{Addr: mr.Addr(), Logger: mlog.NoneLogger{}}
	queue := redisadapter.NewQueue(conn, "", "", 0)

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pool := postgres.NewPoolFromDB(db, postgres.Config{
		Size: 10, Overflow: 5, AcquireTimeout: time.Second, RecycleAfter: time.Hour, HealthCheckBeforeUse: true,
	}, mlog.NoneLogger{})
	store := postgres.NewStore(pool)

	cfg := worker.DefaultConfig("worker-test")
	cfg.BatchSize = 10
	cfg.BlockFor = 0
	cfg.MaxBatchRetries = 2
	cfg.RetryBackoff = time.Millisecond

	w := worker.New(cfg, queue, store, mlog.NoneLogger{})

	return w, queue, mock
}

func TestWorker_StartEnsuresGroupAndDrains(t *testing.T) {
	w, queue, mock := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := queue.Append(ctx, model.LogRecord{
		DeviceID: "device-1", LogLevel: model.LevelInfo, Message: "boot", Timestamp: time.Unix(1700000000, 0),
	})
	require.NoError(t, err)

	mock.ExpectPing()
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO log_records")
	mock.ExpectExec("INSERT INTO log_records").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, w.Start(ctx))

	assert.Eventually(t, func() bool {
		return w.Stats().RecordsPersisted == 1
	}, time.Second, 5*time.Millisecond)

	w.Stop()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorker_QuarantinesPermanentlyBadRecord(t *testing.T) {
	w, queue, mock := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := queue.Append(ctx, model.LogRecord{
		DeviceID: "device-1", LogLevel: model.LevelInfo, Message: "bad", Timestamp: time.Unix(1700000000, 0),
	})
	require.NoError(t, err)

	mock.ExpectPing()
	// Whole-batch insert fails with a non-transient error.
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO log_records")
	mock.ExpectExec("INSERT INTO log_records").WillReturnError(errors.New("value too long for type character varying"))
	mock.ExpectRollback()

	// Per-record fallback also fails for this record.
	mock.ExpectPing()
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO log_records")
	mock.ExpectExec("INSERT INTO log_records").WillReturnError(errors.New("value too long for type character varying"))
	mock.ExpectRollback()

	mock.ExpectPing()
	mock.ExpectExec("INSERT INTO dead_letter_log").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, w.Start(ctx))

	assert.Eventually(t, func() bool {
		return w.Stats().RecordsQuarantined == 1
	}, time.Second, 5*time.Millisecond)

	w.Stop()
}
