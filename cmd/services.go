package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	service "github.com/okian/songsort/internal/app"
	"github.com/okian/songsort/pkg/logger"
	"github.com/okian/songsort/pkg/metrics"
)

const (
	metricsInterval           = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// httpServer is the part of *http.Server the service wrapper drives.
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// httpService runs an HTTP server under the supervisor.
type httpService struct {
	server          httpServer
	shutdownTimeout time.Duration
	logger          logger.Logger
}

func newHTTPService(server httpServer, shutdownTimeout time.Duration, log logger.Logger) *httpService {
	return &httpService{server: server, shutdownTimeout: shutdownTimeout, logger: log}
}

// Serve listens until ctx is cancelled, then shuts the server down
// gracefully.
func (h *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		h.logger.Info(context.Background(), "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *httpService) String() string { return "http-server" }

// metricsUpdater refreshes system and store gauges on a ticker.
type metricsUpdater struct {
	svc      *service.Service
	interval time.Duration
}

func newMetricsUpdater(svc *service.Service) *metricsUpdater {
	return &metricsUpdater{svc: svc, interval: metricsInterval}
}

func (m *metricsUpdater) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.update(ctx)
		}
	}
}

func (m *metricsUpdater) String() string { return "metrics-updater" }

func (m *metricsUpdater) update(ctx context.Context) {
	updateSystemMetrics()
	// GetStats refreshes the rating, collection and session gauges.
	if _, err := m.svc.GetStats(ctx); err != nil {
		logger.Get().Debug(ctx, "stats refresh failed", logger.Error(err))
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
