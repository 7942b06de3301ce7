package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdata/logflow/internal/platform/mlog"
)

func TestPool_AcquireHealthChecksAndRelease(t *testing.T) {
	pool, mock := newTestPool(t)

	mock.ExpectPing()

	session, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, session.id)

	pool.mu.Lock()
	inFlight := len(pool.sessions)
	pool.mu.Unlock()
	assert.Equal(t, 1, inFlight)

	pool.Release(session, nil)

	pool.mu.Lock()
	inFlight = len(pool.sessions)
	pool.mu.Unlock()
	assert.Equal(t, 0, inFlight)
}

func TestPool_AcquireTimesOutWhenHealthCheckHangs(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pool := NewPoolFromDB(db, Config{
		Size:                 1,
		Overflow:             0,
		AcquireTimeout:       10 * time.Millisecond,
		RecycleAfter:         time.Hour,
		HealthCheckBeforeUse: true,
	}, mlog.NoneLogger{})

	mock.ExpectPing().WillDelayFor(50 * time.Millisecond)

	_, err = pool.Acquire(context.Background())
	assert.Error(t, err)
}

func TestPool_SweepCountsLongHeldSessions(t *testing.T) {
	pool, mock := newTestPool(t)

	mock.ExpectPing()

	session, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	pool.mu.Lock()
	pool.sessions[session.id] = time.Now().Add(-2 * time.Minute)
	pool.mu.Unlock()

	pool.sweepOnce()

	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.LongHeld[60*time.Second])
	assert.Equal(t, int64(0), stats.LongHeld[300*time.Second])
	assert.Equal(t, int64(1), stats.LeakTotal)

	pool.Release(session, nil)
}
