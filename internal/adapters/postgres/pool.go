// Package postgres implements the persistent log store adapter and its
// connection pool. database/sql's own pool doesn't expose an explicit
// acquire/release/leak-detection contract, so Pool layers session tracking
// (acquisition timestamps, overflow accounting, long-held counters) on top
// of a stock *sql.DB.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/nimbusdata/logflow/internal/platform/metrics"
	"github.com/nimbusdata/logflow/internal/platform/migrations"
	"github.com/nimbusdata/logflow/internal/platform/mlog"
)

// LeakThresholds are the fixed long-held-session reporting buckets.
var LeakThresholds = []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}

// Config carries the pool's tuning knobs: size=10, overflow=5,
// acquire_timeout=30s, recycle_after=3600s, health_check_before_use=true
// by default.
type Config struct {
	DSN                  string
	DatabaseName         string
	Size                 int
	Overflow             int
	AcquireTimeout       time.Duration
	RecycleAfter         time.Duration
	HealthCheckBeforeUse bool
}

// Pool wraps a *sql.DB with an explicit acquire/release/leak-detection
// contract. database/sql already pools physical connections; Pool adds the
// session-lifetime bookkeeping: acquisition timestamps, overflow
// accounting, leak thresholds.
type Pool struct {
	cfg     Config
	Logger  mlog.Logger
	Metrics *metrics.Metrics

	db *sql.DB

	mu       sync.Mutex
	sessions map[int64]time.Time
	nextID   int64
	acquired int64 // total concurrently-acquired sessions, used for overflow accounting

	leakCounts [3]int64 // parallel to LeakThresholds, read/written atomically
}

// NewPool constructs an unconnected Pool. Call Connect before use.
func NewPool(cfg Config, logger mlog.Logger) *Pool {
	return &Pool{cfg: cfg, Logger: logger, sessions: make(map[int64]time.Time)}
}

// NewPoolFromDB wraps an already-open *sql.DB in a Pool, skipping Connect's
// dial-and-migrate sequence. Tests use this to substitute a sqlmock-backed
// handle; callers with unusual connection setup (e.g. a DSN resolved
// elsewhere) can use it too.
func NewPoolFromDB(db *sql.DB, cfg Config, logger mlog.Logger) *Pool {
	return &Pool{db: db, cfg: cfg, Logger: logger, sessions: make(map[int64]time.Time)}
}

// Connect opens the database handle, applies the pool tuning from cfg, and
// runs pending migrations inline.
func (p *Pool) Connect(ctx context.Context) error {
	p.Logger.Info("connecting to postgres...")

	db, err := sql.Open("pgx", p.cfg.DSN)
	if err != nil {
		return fmt.Errorf("postgres: open: %w", err)
	}

	db.SetMaxOpenConns(p.cfg.Size + p.cfg.Overflow)
	db.SetMaxIdleConns(p.cfg.Size)
	db.SetConnMaxLifetime(p.cfg.RecycleAfter)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}

	p.db = db

	if err := p.runMigrations(); err != nil {
		return err
	}

	p.Logger.Info("connected to postgres")

	return nil
}

func (p *Pool) runMigrations() error {
	driver, err := migratepg.WithInstance(p.db, &migratepg.Config{
		DatabaseName: p.cfg.DatabaseName,
	})
	if err != nil {
		return fmt.Errorf("postgres: migration driver: %w", err)
	}

	return migrations.Up(driver, p.cfg.DatabaseName)
}

// Close shuts down the underlying database handle.
func (p *Pool) Close() error {
	if p.db == nil {
		return nil
	}

	return p.db.Close()
}

// Session is a single acquired PLS connection, tagged with the timestamp
// Acquire handed it out at so Release/the leak sweep can age it.
type Session struct {
	Conn       *sql.Conn
	id         int64
	acquiredAt time.Time
	overflow   bool
}

// Acquire obtains a session, failing if none becomes available within
// cfg.AcquireTimeout. When HealthCheckBeforeUse is set, the session is
// liveness-checked with a trivial round trip before being handed back.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	start := time.Now()
	defer func() { p.Metrics.TimePoolAcquire(time.Since(start)) }()

	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	conn, err := p.db.Conn(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("postgres: acquire: %w", err)
	}

	if p.cfg.HealthCheckBeforeUse {
		if err := conn.PingContext(acquireCtx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("postgres: acquire health check: %w", err)
		}
	}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.acquired++
	overflow := p.acquired > int64(p.cfg.Size)
	p.sessions[id] = time.Now()
	p.mu.Unlock()

	return &Session{Conn: conn, id: id, acquiredAt: time.Now(), overflow: overflow}, nil
}

// Release returns s to the pool, or discards it when outcome is non-nil or
// s came from the overflow allotment; overflow sessions are always closed
// on release.
func (p *Pool) Release(s *Session, outcome error) {
	p.mu.Lock()
	delete(p.sessions, s.id)
	p.acquired--
	p.mu.Unlock()

	if outcome != nil || s.overflow {
		// Returning driver.ErrBadConn from Raw's callback is the
		// documented signal that makes database/sql discard the
		// physical connection on Close instead of returning it to the
		// idle pool. Overflow sessions are always closed on release
		// and erroring sessions must not be reused.
		_ = s.Conn.Raw(func(any) error { return driver.ErrBadConn })
	}

	_ = s.Conn.Close()
}

// Stats snapshots the pool's current utilization and leak counters, the
// basis for the pool_size/pool_in_use/pool_available/leak_total gauges.
type Stats struct {
	Size      int
	Overflow  int
	InUse     int64
	Idle      int
	LongHeld  map[time.Duration]int64
	LeakTotal int64
}

func (p *Pool) Stats() Stats {
	dbStats := p.db.Stats()

	p.mu.Lock()
	inUse := p.acquired
	p.mu.Unlock()

	longHeld := make(map[time.Duration]int64, len(LeakThresholds))

	for i, threshold := range LeakThresholds {
		longHeld[threshold] = atomic.LoadInt64(&p.leakCounts[i])
	}

	// Every flagged session is past the lowest threshold, so that bucket's
	// count is the number of distinct flagged sessions.
	total := longHeld[LeakThresholds[0]]

	return Stats{
		Size:      p.cfg.Size,
		Overflow:  p.cfg.Overflow,
		InUse:     inUse,
		Idle:      dbStats.Idle,
		LongHeld:  longHeld,
		LeakTotal: total,
	}
}

// RunLeakSweep scans in-flight sessions against LeakThresholds every
// interval until ctx is cancelled. A session held past a threshold usually
// means idle-in-transaction or a missing Release.
func (p *Pool) RunLeakSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepOnce()
		}
	}
}

func (p *Pool) sweepOnce() {
	now := time.Now()

	p.mu.Lock()
	ages := make([]time.Duration, 0, len(p.sessions))
	for _, acquiredAt := range p.sessions {
		ages = append(ages, now.Sub(acquiredAt))
	}
	p.mu.Unlock()

	counts := make([]int64, len(LeakThresholds))

	for _, age := range ages {
		for i, threshold := range LeakThresholds {
			if age > threshold {
				counts[i]++
			}
		}
	}

	for i, c := range counts {
		atomic.StoreInt64(&p.leakCounts[i], c)
		if c > 0 {
			p.Logger.Warnf("postgres pool: %d session(s) held past %s", c, LeakThresholds[i])
		}
	}
}
