package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nimbusdata/logflow/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := bootstrap.InitWorker(ctx)
	if err != nil {
		panic(err)
	}
	defer srv.Close()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(srv.Metrics.Registry, promhttp.HandlerOpts{}))

		srv.Logger.Infof("workerd: metrics listening on %s", srv.Config.MetricsAddress)
		if err := http.ListenAndServe(srv.Config.MetricsAddress, mux); err != nil {
			srv.Logger.Errorf("workerd: metrics server stopped: %v", err)
		}
	}()

	// The worker gets a context that the shutdown signal does not cancel, so
	// the batch in flight when the signal arrives can still commit and ack
	// before Stop returns.
	if err := srv.Worker.Start(context.WithoutCancel(ctx)); err != nil {
		srv.Logger.Fatalf("workerd: failed to start: %v", err)
	}

	srv.Logger.Infof("workerd: consumer %s started, draining stream %s", srv.Config.WorkerConsumerID, srv.Config.StreamName)

	<-ctx.Done()

	srv.Logger.Info("workerd: shutting down...")
	srv.Worker.Stop()

	stats := srv.Worker.Stats()
	srv.Logger.Infof("workerd: shutdown complete, batches=%d persisted=%d failed=%d quarantined=%d",
		stats.BatchesProcessed, stats.RecordsPersisted, stats.RecordsFailed, stats.RecordsQuarantined)
}
