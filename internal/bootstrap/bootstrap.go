package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nimbusdata/logflow/internal/adapters/postgres"
	redisadapter "github.com/nimbusdata/logflow/internal/adapters/redis"
	"github.com/nimbusdata/logflow/internal/httpapi"
	"github.com/nimbusdata/logflow/internal/ingest"
	"github.com/nimbusdata/logflow/internal/platform/metrics"
	"github.com/nimbusdata/logflow/internal/platform/mlog"
	"github.com/nimbusdata/logflow/internal/worker"
)

// IngestServer bundles everything cmd/ingestd needs to run and shut down.
type IngestServer struct {
	Config *Config
	Logger mlog.Logger

	Conn  *redisadapter.Connection
	Pool  *postgres.Pool
	Queue *redisadapter.Queue
	Cache *redisadapter.Cache
	Store *postgres.Store

	Service *ingest.Service
	Metrics *metrics.Metrics
	Router  *fiber.App
}

// InitIngestServer wires the DMQ, PLS, and HTTP layers for the ingest
// front end: load config, build a logger, wire adapters bottom-up,
// assemble the service, return the graph.
func InitIngestServer(ctx context.Context) (*IngestServer, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := mlog.NewZap(cfg.EnvName, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: logger: %w", err)
	}

	conn := &redisadapter.Connection{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		MaxConns: cfg.RedisMaxConns,
		Logger:   logger,
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: redis: %w", err)
	}

	pool := postgres.NewPool(postgres.Config{
		DSN:                  cfg.PostgresDSN,
		DatabaseName:         cfg.PostgresDatabaseName,
		Size:                 cfg.PoolSize,
		Overflow:             cfg.PoolOverflow,
		AcquireTimeout:       cfg.PoolAcquireTimeout,
		RecycleAfter:         cfg.PoolRecycleAfter,
		HealthCheckBeforeUse: cfg.PoolHealthCheck,
	}, logger)
	if err := pool.Connect(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: postgres: %w", err)
	}

	queue := redisadapter.NewQueue(conn, cfg.StreamName, cfg.GroupName, cfg.StreamMax)
	if err := queue.EnsureGroup(ctx, "0"); err != nil {
		return nil, fmt.Errorf("bootstrap: dmq group: %w", err)
	}

	cache := redisadapter.NewCache(conn)
	store := postgres.NewStore(pool)

	m := metrics.NewMetrics()
	store.Metrics = m
	pool.Metrics = m

	service := ingest.NewService(queue, cache, store, logger)
	service.Metrics = m

	router := httpapi.NewRouter(service, m, logger)

	go pool.RunLeakSweep(ctx, cfg.PoolLeakSweepPeriod)
	go observePoolStatsLoop(ctx, pool, m, cfg.PoolLeakSweepPeriod)

	return &IngestServer{
		Config:  cfg,
		Logger:  logger,
		Conn:    conn,
		Pool:    pool,
		Queue:   queue,
		Cache:   cache,
		Store:   store,
		Service: service,
		Metrics: m,
		Router:  router,
	}, nil
}

func observePoolStatsLoop(ctx context.Context, pool *postgres.Pool, m *metrics.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := pool.Stats()
			m.ObservePoolStats(s.Size+s.Overflow, int(s.InUse), s.Idle, s.LongHeld, s.LeakTotal)
		}
	}
}

// Close releases every resource InitIngestServer opened.
func (s *IngestServer) Close() {
	if err := s.Pool.Close(); err != nil {
		s.Logger.Warnf("bootstrap: closing postgres pool: %v", err)
	}

	if err := s.Conn.Close(); err != nil {
		s.Logger.Warnf("bootstrap: closing redis connection: %v", err)
	}

	_ = s.Logger.Sync()
}

// WorkerServer bundles everything cmd/workerd needs to run and shut down.
type WorkerServer struct {
	Config *Config
	Logger mlog.Logger

	Conn    *redisadapter.Connection
	Pool    *postgres.Pool
	Queue   *redisadapter.Queue
	Store   *postgres.Store
	Worker  *worker.Worker
	Metrics *metrics.Metrics
}

// InitWorker wires the DMQ and PLS adapters behind a Worker consuming the
// shared stream, mirroring InitIngestServer's shape but
// without the HTTP surface.
func InitWorker(ctx context.Context) (*WorkerServer, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := mlog.NewZap(cfg.EnvName, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: logger: %w", err)
	}

	if cfg.WorkerConsumerID == "" {
		cfg.WorkerConsumerID = defaultConsumerID()
	}
	consumerID := cfg.WorkerConsumerID

	conn := &redisadapter.Connection{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		MaxConns: cfg.RedisMaxConns,
		Logger:   logger,
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: redis: %w", err)
	}

	pool := postgres.NewPool(postgres.Config{
		DSN:                  cfg.PostgresDSN,
		DatabaseName:         cfg.PostgresDatabaseName,
		Size:                 cfg.PoolSize,
		Overflow:             cfg.PoolOverflow,
		AcquireTimeout:       cfg.PoolAcquireTimeout,
		RecycleAfter:         cfg.PoolRecycleAfter,
		HealthCheckBeforeUse: cfg.PoolHealthCheck,
	}, logger)
	if err := pool.Connect(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: postgres: %w", err)
	}

	queue := redisadapter.NewQueue(conn, cfg.StreamName, cfg.GroupName, cfg.StreamMax)
	store := postgres.NewStore(pool)

	m := metrics.NewMetrics()
	store.Metrics = m
	pool.Metrics = m

	w := worker.New(worker.Config{
		ConsumerID:         consumerID,
		BatchSize:          cfg.WorkerBatchSize,
		BlockFor:           cfg.WorkerBlockFor,
		MaxBatchRetries:    cfg.WorkerMaxBatchRetries,
		RetryBackoff:       cfg.WorkerRetryBackoff,
		ClaimSweepInterval: cfg.WorkerClaimSweepInterval,
		ClaimIdleThreshold: cfg.WorkerClaimIdleThreshold,
	}, queue, store, logger)
	w.Metrics = m

	go pool.RunLeakSweep(ctx, cfg.PoolLeakSweepPeriod)
	go observePoolStatsLoop(ctx, pool, m, cfg.PoolLeakSweepPeriod)

	return &WorkerServer{
		Config:  cfg,
		Logger:  logger,
		Conn:    conn,
		Pool:    pool,
		Queue:   queue,
		Store:   store,
		Worker:  w,
		Metrics: m,
	}, nil
}

// Close releases every resource InitWorker opened.
func (s *WorkerServer) Close() {
	if err := s.Pool.Close(); err != nil {
		s.Logger.Warnf("bootstrap: closing postgres pool: %v", err)
	}

	if err := s.Conn.Close(); err != nil {
		s.Logger.Warnf("bootstrap: closing redis connection: %v", err)
	}

	_ = s.Logger.Sync()
}

func defaultConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return fmt.Sprintf("worker-%d", os.Getpid())
	}

	return fmt.Sprintf("worker-%s-%d", host, os.Getpid())
}
