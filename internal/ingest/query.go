package ingest

import (
	"context"

	redisadapter "github.com/nimbusdata/logflow/internal/adapters/redis"
	"github.com/nimbusdata/logflow/internal/model"
)

// QueryResult carries the records returned by Query plus their provenance,
// so callers can report `source=cache` or `source=db`.
type QueryResult struct {
	Records []model.LogRecord
	Source  string
}

// Query consults the cache under key (device_id, limit); on a hit it
// returns the cached copy marked source=cache; on a miss it queries the PLS
// via the (device_id, timestamp desc) index, populates the cache with a
// 300s TTL, and returns marked source=db.
func (s *Service) Query(ctx context.Context, deviceID string, limit int) (QueryResult, error) {
	ctx, span := s.Tracer.Start(ctx, "ingest.query")
	defer span.End()

	key := redisadapter.QueryCacheKey(deviceID, limit)

	var cached []model.LogRecord
	if found, err := s.Cache.Get(ctx, key, &cached); err != nil {
		// A cache outage degrades to a PLS-direct read;
		// it never fails the request.
		s.Logger.Warnf("ingest: cache read failed, falling back to pls: %v", err)
	} else if found {
		return QueryResult{Records: cached, Source: "cache"}, nil
	}

	records, err := s.Store.QueryRecent(ctx, deviceID, limit)
	if err != nil {
		return QueryResult{}, err
	}

	if err := s.Cache.SetEx(ctx, key, records, redisadapter.QueryCacheTTL); err != nil {
		s.Logger.Warnf("ingest: cache write failed: %v", err)
	}

	return QueryResult{Records: records, Source: "db"}, nil
}
