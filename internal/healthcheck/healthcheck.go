package healthcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/deskcraft/edge-gateway/internal/backend"
	"github.com/deskcraft/edge-gateway/internal/health"
)

// Probe periodically issues GET /health requests against a backend and
// feeds the results into its tracker through the same RecordOutcome
// path as live traffic. When the breaker denies the call the tick is
// skipped; the breaker's own probe admission governs recovery traffic.
// The loop stops when the context is cancelled.
func Probe(
	ctx context.Context,
	be *backend.Backend,
	tracker *health.Tracker,
	interval time.Duration,
	logger *slog.Logger,
) {
	client := &http.Client{
		Timeout: be.Timeout(),
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastStatus := health.StatusHealthy

	for {
		select {
		case <-ctx.Done():
			logger.Info("Health probe stopped",
				slog.String("backend", be.Name()))
			return

		case <-ticker.C:
			if !tracker.Allow() {
				continue
			}

			tracker.RecordOutcome(check(ctx, client, be))

			status := tracker.Snapshot().Status
			if status != lastStatus {
				if status == health.StatusHealthy {
					logger.Info("Backend is back up",
						slog.String("backend", be.Name()))
				} else {
					logger.Warn("Backend is down",
						slog.String("backend", be.Name()),
						slog.String("status", string(status)))
				}
				lastStatus = status
			}
		}
	}
}

func check(ctx context.Context, client *http.Client, be *backend.Backend) health.Outcome {
	healthURL := be.URL().ResolveReference(&url.URL{Path: "/health"})

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL.String(), nil)
	if err != nil {
		return health.Outcome{Err: err, Latency: time.Since(start)}
	}

	res, err := client.Do(req)
	if err != nil {
		return health.Outcome{Err: err, Latency: time.Since(start)}
	}

	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()

	return health.Outcome{
		StatusCode: res.StatusCode,
		Latency:    time.Since(start),
	}
}
