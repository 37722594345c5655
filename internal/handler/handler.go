package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deskcraft/edge-gateway/internal/backend"
	"github.com/deskcraft/edge-gateway/internal/health"
	"github.com/deskcraft/edge-gateway/internal/metrics"
	"github.com/deskcraft/edge-gateway/internal/router"
)

const headerRequestID = "X-Request-ID"

// Error codes carried in synthesized responses so callers can tell a
// gateway-produced error apart from a backend one.
const (
	codeNotFound       = "NOT_FOUND"
	codeCircuitOpen    = "CIRCUIT_BREAKER_OPEN"
	codeBackendError   = "EXTERNAL_SERVICE_ERROR"
	codeGatewayTimeout = "GATEWAY_TIMEOUT"
)

// Gateway dispatches inbound requests: resolve the backend, consult its
// breaker, forward with the backend's timeout and record the outcome.
type Gateway struct {
	logger   *slog.Logger
	router   *router.Router
	backends map[string]*backend.Backend
	trackers map[string]*health.Tracker
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

// proxyErrorKey carries an *error through the request context so the
// reverse proxy's error handler can hand the transport error back to
// ServeHTTP for outcome classification.
type proxyErrorKey struct{}

func NewGateway(
	logger *slog.Logger,
	rt *router.Router,
	backends map[string]*backend.Backend,
	trackers map[string]*health.Tracker,
) *Gateway {
	g := &Gateway{
		logger:   logger,
		router:   rt,
		backends: backends,
		trackers: trackers,
	}

	for name, be := range backends {
		be.ReverseProxy().ErrorHandler = g.proxyErrorHandler(name)
	}

	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)

	requestID := r.Header.Get(headerRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	g.logger.Info("Received request",
		slog.String("request_id", requestID),
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))

	name, matched := g.router.Resolve(r.Method, r.URL.Path)
	if !matched {
		metrics.RecordRoutingMiss()
		g.logger.Warn("No route matches path",
			slog.String("request_id", requestID),
			slog.String("path", r.URL.Path))
		writeError(w, http.StatusNotFound, codeNotFound,
			"no backend route matches the requested path", requestID)
		return
	}

	be := g.backends[name]
	tracker := g.trackers[name]

	if !tracker.Allow() {
		metrics.RecordRejected(name)
		g.logger.Warn("Circuit open, rejecting request",
			slog.String("request_id", requestID),
			slog.String("backend", name))
		writeError(w, http.StatusServiceUnavailable, codeCircuitOpen,
			"circuit breaker is open for backend "+name, requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), be.Timeout())
	defer cancel()

	var proxyErr error
	ctx = context.WithValue(ctx, proxyErrorKey{}, &proxyErr)

	outReq := r.Clone(ctx)
	outReq.Header.Set(headerRequestID, requestID)

	w.Header().Set("X-Backend-Server", be.URL().String())

	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	start := time.Now()
	be.ReverseProxy().ServeHTTP(wrapped, outReq)
	duration := time.Since(start)

	outcome := health.Outcome{
		StatusCode: wrapped.statusCode,
		Latency:    duration,
	}
	if proxyErr != nil {
		outcome.Err = proxyErr
		outcome.StatusCode = 0
		outcome.TimedOut = errors.Is(proxyErr, context.DeadlineExceeded)
	}
	tracker.RecordOutcome(outcome)
	metrics.ObserveRequest(name, wrapped.statusCode, duration)

	g.logger.Info("Completed request",
		slog.String("request_id", requestID),
		slog.String("backend", name),
		slog.Int("status", wrapped.statusCode),
		slog.Duration("duration", duration))
}

// proxyErrorHandler produces the ReverseProxy error handler for one
// backend. It stores the error for classification and synthesizes the
// 502/504 response body.
func (g *Gateway) proxyErrorHandler(backendName string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		if capture, ok := r.Context().Value(proxyErrorKey{}).(*error); ok {
			*capture = err
		}

		requestID := r.Header.Get(headerRequestID)

		status := http.StatusBadGateway
		code := codeBackendError
		message := "backend request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
			code = codeGatewayTimeout
			message = "backend request timed out"
		}

		g.logger.Error("Backend request failed",
			slog.String("request_id", requestID),
			slog.String("backend", backendName),
			slog.Any("err", err))

		writeError(w, status, code, message, requestID)
	}
}

type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id"`
}

func writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{
			Message:   message,
			Code:      code,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			RequestID: requestID,
		},
	})
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
