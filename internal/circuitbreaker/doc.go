// Package circuitbreaker implements the circuit breaker pattern guarding
// calls to backend services.
//
// A circuit breaker prevents cascading failures by temporarily blocking
// requests to failing backends. It has three states:
//
//   - CLOSED: Normal operation, requests pass through
//   - OPEN: Backend failing, requests blocked until the cool-down elapses
//   - HALF-OPEN: A bounded number of probe requests test recovery
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(circuitbreaker.Config{
//	    FailureThreshold: 3,
//	    SuccessThreshold: 2,
//	    Cooldown:         10 * time.Second,
//	})
//	cb := registry.GetBreaker("catalog")
//	if cb.Allow() {
//	    // Make request...
//	    if err != nil {
//	        cb.RecordFailure()
//	    } else {
//	        cb.RecordSuccess()
//	    }
//	}
package circuitbreaker
