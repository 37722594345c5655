package circuitbreaker_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/deskcraft/edge-gateway/internal/circuitbreaker"
)

var _ = Describe("Registry", func() {
	var registry *circuitbreaker.Registry

	BeforeEach(func() {
		registry = circuitbreaker.NewRegistry(circuitbreaker.Config{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			Cooldown:         30 * time.Second,
		})
	})

	Describe("GetBreaker", func() {
		It("should create a breaker on first use", func() {
			cb := registry.GetBreaker("catalog")
			Expect(cb).NotTo(BeNil())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should return the same breaker for the same name", func() {
			first := registry.GetBreaker("catalog")
			second := registry.GetBreaker("catalog")
			Expect(first).To(BeIdenticalTo(second))
		})

		It("should keep breakers independent across names", func() {
			catalog := registry.GetBreaker("catalog")
			auth := registry.GetBreaker("auth")

			catalog.RecordFailure()
			catalog.RecordFailure()

			Expect(catalog.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(auth.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should be safe under concurrent access", func() {
			const goroutines = 32
			var wg sync.WaitGroup
			breakers := make([]*circuitbreaker.CircuitBreaker, goroutines)

			for i := 0; i < goroutines; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					breakers[i] = registry.GetBreaker("orders")
				}(i)
			}
			wg.Wait()

			for i := 1; i < goroutines; i++ {
				Expect(breakers[i]).To(BeIdenticalTo(breakers[0]))
			}
		})
	})

	Describe("Stats", func() {
		It("should report the state of every breaker", func() {
			registry.GetBreaker("catalog")
			auth := registry.GetBreaker("auth")
			auth.RecordFailure()
			auth.RecordFailure()

			stats := registry.Stats()
			Expect(stats).To(HaveLen(2))
			Expect(stats["catalog"]).To(Equal(circuitbreaker.StateClosed))
			Expect(stats["auth"]).To(Equal(circuitbreaker.StateOpen))
		})
	})

	Describe("Reset", func() {
		It("should discard all breakers", func() {
			tripped := registry.GetBreaker("catalog")
			tripped.RecordFailure()
			tripped.RecordFailure()

			registry.Reset()

			fresh := registry.GetBreaker("catalog")
			Expect(fresh).NotTo(BeIdenticalTo(tripped))
			Expect(fresh.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})
})
