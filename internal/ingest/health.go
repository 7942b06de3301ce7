package ingest

import "context"

// DependencyStatus is the per-dependency detail GET /health reports.
type DependencyStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// HealthReport is the aggregate result of Health().
type HealthReport struct {
	Healthy      bool               `json:"healthy"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// Health probes the DMQ and the PLS with a trivial round trip each,
// reporting per-dependency status. It never returns an
// error itself; degraded dependencies are reported in the result.
func (s *Service) Health(ctx context.Context) HealthReport {
	ctx, span := s.Tracer.Start(ctx, "ingest.health")
	defer span.End()

	dmq := DependencyStatus{Name: "dmq", Healthy: true}
	if err := s.Queue.Healthy(ctx); err != nil {
		dmq.Healthy = false
		dmq.Detail = err.Error()
	}

	pls := DependencyStatus{Name: "pls", Healthy: true}
	if _, err := s.Store.Count(ctx); err != nil {
		pls.Healthy = false
		pls.Detail = err.Error()
	}

	return HealthReport{
		Healthy:      dmq.Healthy && pls.Healthy,
		Dependencies: []DependencyStatus{dmq, pls},
	}
}
