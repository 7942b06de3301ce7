package ingest_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdata/logflow/internal/adapters/postgres"
	redisadapter "github.com/nimbusdata/logflow/internal/adapters/redis"
	"github.com/nimbusdata/logflow/internal/ingest"
	"github.com/nimbusdata/logflow/internal/model"
	"github.com/nimbusdata/logflow/internal/platform/mlog"
)

type fixture struct {
	svc     *ingest.Service
	mr      *miniredis.Miniredis
	sqlMock sqlmock.Sqlmock
	pool    *postgres.Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	conn := &redisadapter.Connection{Addr: mr.Addr(), Logger: mlog.NoneLogger{}}
	queue := redisadapter.NewQueue(conn, "", "", 0)
	cache := redisadapter.NewCache(conn)

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pool := postgres.NewPoolFromDB(db, postgres.Config{
		Size: 10, Overflow: 5, AcquireTimeout: time.Second, RecycleAfter: time.Hour, HealthCheckBeforeUse: true,
	}, mlog.NoneLogger{})

	store := postgres.NewStore(pool)
	svc := ingest.NewService(queue, cache, store, mlog.NoneLogger{})

	return &fixture{svc: svc, mr: mr, sqlMock: mock, pool: pool}
}

func TestService_SubmitRejectsInvalidRecord(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(context.Background(), model.LogRecord{DeviceID: "", LogLevel: model.LevelInfo, Message: "x"})
	require.Error(t, err)
}

func TestService_SubmitAppendsToQueue(t *testing.T) {
	f := newFixture(t)

	id, err := f.svc.Submit(context.Background(), model.LogRecord{
		DeviceID: "device-1", LogLevel: model.LevelInfo, Message: "boot",
	})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
}

func TestService_SubmitBatchReportsPartialSuccess(t *testing.T) {
	f := newFixture(t)

	records := []model.LogRecord{
		{DeviceID: "device-1", LogLevel: model.LevelInfo, Message: "ok"},
		{DeviceID: "", LogLevel: model.LevelInfo, Message: "bad device"},
		{DeviceID: "device-2", LogLevel: "BOGUS", Message: "bad level"},
	}

	outcomes, err := f.svc.SubmitBatch(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.NoError(t, outcomes[0].Err)
	assert.Greater(t, outcomes[0].IngestID, int64(0))
	assert.Error(t, outcomes[1].Err)
	assert.Error(t, outcomes[2].Err)
}

func TestService_SubmitBatchRejectsOversizedBatch(t *testing.T) {
	f := newFixture(t)

	records := make([]model.LogRecord, model.MaxBatchSize+1)
	for i := range records {
		records[i] = model.LogRecord{DeviceID: "device-1", LogLevel: model.LevelInfo, Message: "x"}
	}

	_, err := f.svc.SubmitBatch(context.Background(), records)
	require.Error(t, err)
}

func TestService_QueryServesFromCacheOnSecondCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sqlMock.ExpectPing()
	rows := sqlmock.NewRows([]string{"ingest_id", "device_id", "log_level", "message", "log_data", "timestamp"}).
		AddRow(int64(1), "device-1", "INFO", "hi", nil, time.Unix(1700000000, 0))
	f.sqlMock.ExpectQuery("SELECT ingest_id").WithArgs("device-1", 50).WillReturnRows(rows)

	first, err := f.svc.Query(ctx, "device-1", 50)
	require.NoError(t, err)
	assert.Equal(t, "db", first.Source)
	require.Len(t, first.Records, 1)

	second, err := f.svc.Query(ctx, "device-1", 50)
	require.NoError(t, err)
	assert.Equal(t, "cache", second.Source)

	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestService_HealthReportsPerDependencyStatus(t *testing.T) {
	f := newFixture(t)

	f.sqlMock.ExpectPing()
	f.sqlMock.ExpectQuery("SELECT count").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

	report := f.svc.Health(context.Background())
	assert.True(t, report.Healthy)
	require.Len(t, report.Dependencies, 2)
}

func TestService_HealthReportsDMQDown(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()

	f.sqlMock.ExpectPing()
	f.sqlMock.ExpectQuery("SELECT count").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

	report := f.svc.Health(context.Background())
	assert.False(t, report.Healthy)
}
