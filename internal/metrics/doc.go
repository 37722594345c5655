// Package metrics exposes prometheus instrumentation for the gateway:
// per-backend request counts and latency, circuit-open rejections,
// routing misses and breaker state transitions. Metrics are registered
// on the default registry and served via promhttp on /metrics.
package metrics
