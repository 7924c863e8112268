package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mcpcore/internal/logging"
	"github.com/fyrsmithlabs/mcpcore/pkg/metrics"
)

// serveMetrics mounts the Prometheus exposition handler on addr and blocks
// until ctx is cancelled. Errors are logged, never fatal: a metrics outage
// must not take down the dispatch core.
func serveMetrics(ctx context.Context, logger *logging.Logger, collector *metrics.PromCollector, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error(ctx, "metrics server exited", zap.Error(err))
	}
}
