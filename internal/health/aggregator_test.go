package health_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/deskcraft/edge-gateway/internal/circuitbreaker"
	"github.com/deskcraft/edge-gateway/internal/health"
)

var _ = Describe("Aggregator", func() {
	var (
		registry *circuitbreaker.Registry
		catalog  *health.Tracker
		auth     *health.Tracker
		orders   *health.Tracker
		agg      *health.Aggregator
	)

	BeforeEach(func() {
		registry = circuitbreaker.NewRegistry(circuitbreaker.Config{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			Cooldown:         100 * time.Millisecond,
		})
		catalog = health.NewTracker("catalog", registry.GetBreaker("catalog"), 0.5)
		auth = health.NewTracker("auth", registry.GetBreaker("auth"), 0.5)
		orders = health.NewTracker("orders", registry.GetBreaker("orders"), 0.5)
		agg = health.NewAggregator(catalog, auth, orders)
	})

	tripBreaker := func(t *health.Tracker) {
		t.RecordOutcome(health.Outcome{StatusCode: 500})
		t.RecordOutcome(health.Outcome{StatusCode: 500})
	}

	Describe("Aggregate", func() {
		It("should report healthy when all backends are healthy", func() {
			doc := agg.Aggregate()
			Expect(doc.Status).To(Equal(health.StatusHealthy))
			Expect(doc.Summary.TotalServices).To(Equal(3))
			Expect(doc.Summary.HealthyServices).To(Equal(3))
			Expect(doc.Summary.DegradedServices).To(BeZero())
			Expect(doc.Summary.UnhealthyServices).To(BeZero())
			Expect(doc.Services).To(HaveLen(3))
		})

		It("should report unhealthy when any backend is unhealthy", func() {
			tripBreaker(orders)

			doc := agg.Aggregate()
			Expect(doc.Status).To(Equal(health.StatusUnhealthy))
			Expect(doc.Summary.HealthyServices).To(Equal(2))
			Expect(doc.Summary.UnhealthyServices).To(Equal(1))
			Expect(doc.Services["orders"].Status).To(Equal(health.StatusUnhealthy))
			Expect(doc.Services["orders"].CircuitBreaker.State).To(Equal("open"))
		})

		It("should report degraded when some backends are degraded and none unhealthy", func() {
			tripBreaker(auth)
			time.Sleep(150 * time.Millisecond)
			Expect(auth.Allow()).To(BeTrue())

			doc := agg.Aggregate()
			Expect(doc.Status).To(Equal(health.StatusDegraded))
			Expect(doc.Summary.DegradedServices).To(Equal(1))
			Expect(doc.Services["auth"].CircuitBreaker.State).To(Equal("half_open"))
		})
	})

	Describe("Handler", func() {
		It("should serve the documented JSON shape", func() {
			catalog.RecordOutcome(health.Outcome{StatusCode: 200, Latency: 50 * time.Millisecond})

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			agg.Handler()(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var doc map[string]any
			Expect(json.Unmarshal(rec.Body.Bytes(), &doc)).To(Succeed())

			Expect(doc).To(HaveKeyWithValue("status", "healthy"))

			summary, ok := doc["summary"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(summary).To(HaveKeyWithValue("total_services", BeNumerically("==", 3)))
			Expect(summary).To(HaveKeyWithValue("healthy_services", BeNumerically("==", 3)))

			services, ok := doc["services"].(map[string]any)
			Expect(ok).To(BeTrue())
			entry, ok := services["catalog"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(entry).To(HaveKeyWithValue("status", "healthy"))

			breaker, ok := entry["circuit_breaker"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(breaker).To(HaveKeyWithValue("state", "closed"))

			Expect(entry).To(HaveKey("error_rate"))
			Expect(entry).To(HaveKey("avg_latency_ms"))
			Expect(entry).To(HaveKey("last_checked"))
		})

		It("should answer 503 when the system is unhealthy", func() {
			tripBreaker(catalog)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			agg.Handler()(rec, req)

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		})
	})
})
