package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdata/logflow/internal/model"
	"github.com/nimbusdata/logflow/internal/platform/mlog"
)

// newTestPool wires a sqlmock-backed *sql.DB directly into a Pool,
// bypassing Connect, which drives real migrations against a live
// postgres.
func newTestPool(t *testing.T) (*Pool, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	pool := NewPoolFromDB(db, Config{
		Size:                 10,
		Overflow:             5,
		AcquireTimeout:       time.Second,
		RecycleAfter:         time.Hour,
		HealthCheckBeforeUse: true,
	}, mlog.NoneLogger{})

	return pool, mock
}

func TestStore_BatchInsert(t *testing.T) {
	pool, mock := newTestPool(t)
	store := NewStore(pool)

	mock.ExpectPing()
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO log_records")
	mock.ExpectExec("INSERT INTO log_records").
		WithArgs(int64(1), "device-1", "INFO", "hello", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	records := []model.LogRecord{{
		IngestID:  1,
		DeviceID:  "device-1",
		LogLevel:  model.LevelInfo,
		Message:   "hello",
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}}

	require.NoError(t, store.BatchInsert(context.Background(), records))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_BatchInsertRollsBackOnError(t *testing.T) {
	pool, mock := newTestPool(t)
	store := NewStore(pool)

	mock.ExpectPing()
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO log_records")
	mock.ExpectExec("INSERT INTO log_records").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	records := []model.LogRecord{{
		IngestID: 1,
		DeviceID: "device-1",
		LogLevel: model.LevelInfo,
		Message:  "hello",
	}}

	err := store.BatchInsert(context.Background(), records)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QueryRecent(t *testing.T) {
	pool, mock := newTestPool(t)
	store := NewStore(pool)

	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectPing()
	rows := sqlmock.NewRows([]string{"ingest_id", "device_id", "log_level", "message", "log_data", "timestamp"}).
		AddRow(int64(2), "device-1", "INFO", "second", nil, now.Add(time.Second)).
		AddRow(int64(1), "device-1", "INFO", "first", nil, now)

	mock.ExpectQuery("SELECT ingest_id, device_id, log_level, message, log_data, timestamp").
		WithArgs("device-1", 50).
		WillReturnRows(rows)

	records, err := store.QueryRecent(context.Background(), "device-1", 50)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), records[0].IngestID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Count(t *testing.T) {
	pool, mock := newTestPool(t)
	store := NewStore(pool)

	mock.ExpectPing()
	mock.ExpectQuery("SELECT count").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QuarantineRecord(t *testing.T) {
	pool, mock := newTestPool(t)
	store := NewStore(pool)

	mock.ExpectPing()
	mock.ExpectExec("INSERT INTO dead_letter_log").
		WithArgs(int64(7), "device-1", "bad message", "constraint violation").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.QuarantineRecord(context.Background(), model.LogRecord{
		IngestID: 7,
		DeviceID: "device-1",
		Message:  "bad message",
	}, "constraint violation")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
