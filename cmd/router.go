package main

import (
	"net/http"

	"github.com/deskcraft/edge-gateway/internal/handler"
	"github.com/deskcraft/edge-gateway/internal/health"
	"github.com/deskcraft/edge-gateway/internal/metrics"
)

func setupRouter(gateway *handler.Gateway, aggregator *health.Aggregator) *http.ServeMux {
	mux := http.NewServeMux()

	// /health and /metrics are reserved for the gateway itself and are
	// never forwarded to a backend.
	mux.HandleFunc("/health", aggregator.Handler())
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", gateway)

	return mux
}
