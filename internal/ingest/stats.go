package ingest

import (
	"context"

	redisadapter "github.com/nimbusdata/logflow/internal/adapters/redis"
)

// Stats is the cached global snapshot Stats() serves.
type Stats struct {
	TotalRecords int64  `json:"total_records"`
	StreamLength int64  `json:"stream_length"`
	Source       string `json:"source"`
}

// Stats reports aggregate pipeline counters, cached for 60s since they're
// read far more often than they change.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	ctx, span := s.Tracer.Start(ctx, "ingest.stats")
	defer span.End()

	key := redisadapter.StatsCacheKey()

	var cached Stats
	if found, err := s.Cache.Get(ctx, key, &cached); err != nil {
		s.Logger.Warnf("ingest: stats cache read failed, falling back to live query: %v", err)
	} else if found {
		cached.Source = "cache"
		return cached, nil
	}

	total, err := s.Store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}

	streamLen, err := s.Queue.Length(ctx)
	if err != nil {
		return Stats{}, err
	}

	s.Metrics.ObserveDMQStreamLength(streamLen)

	fresh := Stats{TotalRecords: total, StreamLength: streamLen, Source: "db"}

	if err := s.Cache.SetEx(ctx, key, fresh, redisadapter.StatsCacheTTL); err != nil {
		s.Logger.Warnf("ingest: stats cache write failed: %v", err)
	}

	return fresh, nil
}
