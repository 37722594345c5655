package circuitbreaker_test

import (
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/deskcraft/edge-gateway/internal/circuitbreaker"
)

func TestCircuitBreaker(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "CircuitBreaker Suite")
}

var _ = Describe("CircuitBreaker", func() {
	var cb *circuitbreaker.CircuitBreaker

	newBreaker := func(cooldown time.Duration) *circuitbreaker.CircuitBreaker {
		return circuitbreaker.NewCircuitBreaker("catalog", circuitbreaker.Config{
			FailureThreshold: 3,
			SuccessThreshold: 2,
			Cooldown:         cooldown,
			MaxProbes:        1,
		})
	}

	Describe("NewCircuitBreaker", func() {
		It("should create a circuit breaker in closed state", func() {
			cb = newBreaker(30 * time.Second)
			Expect(cb).NotTo(BeNil())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Name()).To(Equal("catalog"))
		})

		It("should fall back to defaults for zero thresholds", func() {
			cb = circuitbreaker.NewCircuitBreaker("catalog", circuitbreaker.Config{})
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Allow()).To(BeTrue())
		})
	})

	Describe("State transitions", func() {
		BeforeEach(func() {
			cb = newBreaker(100 * time.Millisecond)
		})

		Context("when in CLOSED state", func() {
			It("should allow requests", func() {
				Expect(cb.Allow()).To(BeTrue())
			})

			It("should remain closed after failures below threshold", func() {
				cb.RecordFailure()
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
				Expect(cb.Allow()).To(BeTrue())
			})

			It("should transition to OPEN after reaching the failure threshold", func() {
				cb.RecordFailure()
				cb.RecordFailure()
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})

			It("should reset the failure count on success", func() {
				cb.RecordFailure()
				cb.RecordFailure()
				cb.RecordSuccess()
				cb.RecordFailure()
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			})
		})

		Context("when in OPEN state", func() {
			BeforeEach(func() {
				cb.RecordFailure()
				cb.RecordFailure()
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})

			It("should block requests before the cool-down elapses", func() {
				Expect(cb.Allow()).To(BeFalse())
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})

			It("should admit exactly one probe after the cool-down elapses", func() {
				time.Sleep(150 * time.Millisecond)

				Expect(cb.Allow()).To(BeTrue())
				Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))

				// The probe is still in flight; nobody else gets through.
				Expect(cb.Allow()).To(BeFalse())
			})

			It("should admit exactly one of many concurrent callers", func() {
				time.Sleep(150 * time.Millisecond)

				const callers = 16
				var wg sync.WaitGroup
				results := make(chan bool, callers)

				for i := 0; i < callers; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						results <- cb.Allow()
					}()
				}
				wg.Wait()
				close(results)

				allowed := 0
				for ok := range results {
					if ok {
						allowed++
					}
				}
				Expect(allowed).To(Equal(1))
				Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
			})
		})

		Context("when in HALF-OPEN state", func() {
			BeforeEach(func() {
				cb.RecordFailure()
				cb.RecordFailure()
				cb.RecordFailure()
				time.Sleep(150 * time.Millisecond)
				Expect(cb.Allow()).To(BeTrue())
				Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
			})

			It("should stay half-open below the success threshold", func() {
				cb.RecordSuccess()
				Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
			})

			It("should close after enough consecutive successes", func() {
				cb.RecordSuccess()
				Expect(cb.Allow()).To(BeTrue())
				cb.RecordSuccess()
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
				Expect(cb.Allow()).To(BeTrue())
			})

			It("should reset counters when it closes", func() {
				cb.RecordSuccess()
				Expect(cb.Allow()).To(BeTrue())
				cb.RecordSuccess()
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))

				// A fresh run of threshold failures is needed to trip again.
				cb.RecordFailure()
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})

			It("should reopen on a single failure and restart the cool-down", func() {
				before := cb.LastTransition()
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
				Expect(cb.LastTransition().Before(before)).To(BeFalse())

				// The fresh cool-down has not elapsed yet.
				Expect(cb.Allow()).To(BeFalse())

				time.Sleep(150 * time.Millisecond)
				Expect(cb.Allow()).To(BeTrue())
				Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
			})

			It("should admit further probes once a probe result is recorded", func() {
				Expect(cb.Allow()).To(BeFalse())
				cb.RecordSuccess()
				Expect(cb.Allow()).To(BeTrue())
			})
		})
	})

	Describe("bounded probe admission", func() {
		It("should honor MaxProbes greater than one", func() {
			cb = circuitbreaker.NewCircuitBreaker("orders", circuitbreaker.Config{
				FailureThreshold: 1,
				SuccessThreshold: 3,
				Cooldown:         50 * time.Millisecond,
				MaxProbes:        2,
			})

			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			time.Sleep(80 * time.Millisecond)

			Expect(cb.Allow()).To(BeTrue())
			Expect(cb.Allow()).To(BeTrue())
			Expect(cb.Allow()).To(BeFalse())
		})
	})

	Describe("OnStateChange", func() {
		It("should report every transition", func() {
			type change struct {
				name     string
				from, to circuitbreaker.State
			}

			var mutex sync.Mutex
			var changes []change

			cb = circuitbreaker.NewCircuitBreaker("auth", circuitbreaker.Config{
				FailureThreshold: 2,
				SuccessThreshold: 1,
				Cooldown:         50 * time.Millisecond,
				OnStateChange: func(name string, from, to circuitbreaker.State) {
					mutex.Lock()
					defer mutex.Unlock()
					changes = append(changes, change{name, from, to})
				},
			})

			cb.RecordFailure()
			cb.RecordFailure()
			time.Sleep(80 * time.Millisecond)
			Expect(cb.Allow()).To(BeTrue())
			cb.RecordSuccess()

			mutex.Lock()
			defer mutex.Unlock()
			Expect(changes).To(Equal([]change{
				{"auth", circuitbreaker.StateClosed, circuitbreaker.StateOpen},
				{"auth", circuitbreaker.StateOpen, circuitbreaker.StateHalfOpen},
				{"auth", circuitbreaker.StateHalfOpen, circuitbreaker.StateClosed},
			}))
		})
	})

	Describe("the full recovery scenario", func() {
		It("should walk closed -> open -> half-open -> closed", func() {
			cb = newBreaker(100 * time.Millisecond)

			cb.RecordFailure()
			cb.RecordFailure()
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(cb.Allow()).To(BeFalse())

			time.Sleep(150 * time.Millisecond)

			Expect(cb.Allow()).To(BeTrue())
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))

			cb.RecordSuccess()
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))

			cb.RecordSuccess()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})
})

var _ = Describe("State", func() {
	It("should render the wire representation", func() {
		Expect(circuitbreaker.StateClosed.String()).To(Equal("closed"))
		Expect(circuitbreaker.StateOpen.String()).To(Equal("open"))
		Expect(circuitbreaker.StateHalfOpen.String()).To(Equal("half_open"))
		Expect(circuitbreaker.State(42).String()).To(Equal("unknown"))
	})
})
