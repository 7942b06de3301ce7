package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimbusdata/logflow/internal/bootstrap"
)

func main() {
	ctx := context.Background()

	srv, err := bootstrap.InitIngestServer(ctx)
	if err != nil {
		panic(err)
	}
	defer srv.Close()

	go func() {
		srv.Logger.Infof("ingestd: listening on %s", srv.Config.ServerAddress)
		if err := srv.Router.Listen(srv.Config.ServerAddress); err != nil {
			srv.Logger.Errorf("ingestd: server stopped: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	srv.Logger.Info("ingestd: shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Router.ShutdownWithContext(shutdownCtx); err != nil {
		srv.Logger.Errorf("ingestd: forced shutdown: %v", err)
	}

	srv.Logger.Info("ingestd: shutdown complete")
}
