// Package health tracks per-backend health and serves the aggregate
// health document.
//
// Each backend gets one Tracker, the exclusive owner of that backend's
// circuit breaker and rolling statistics (EWMA latency, 60-second
// sliding-window error rate). The Aggregator reads tracker snapshots
// and folds them into the system-wide document served on /health:
// unhealthy if any backend is unhealthy, healthy only if all are.
package health
