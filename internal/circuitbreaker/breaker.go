package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Blocking requests
	StateHalfOpen              // Probing recovery
)

const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultCooldown         = 30 * time.Second
	DefaultMaxProbes        = 1
)

// Config holds the thresholds governing state transitions.
// OnStateChange, when set, is invoked after every transition with the
// breaker name and the states involved. It runs outside the breaker's
// lock, so calling back into the breaker is safe.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
	MaxProbes        int
	OnStateChange    func(name string, from, to State)
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold < 1 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.SuccessThreshold < 1 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.MaxProbes < 1 {
		c.MaxProbes = DefaultMaxProbes
	}
	return c
}

type CircuitBreaker struct {
	name   string
	config Config

	mutex          sync.Mutex
	state          State
	failures       int
	successes      int
	probesInFlight int
	lastFailure    time.Time
	lastTransition time.Time
}

func NewCircuitBreaker(name string, config Config) *CircuitBreaker {
	return &CircuitBreaker{
		name:           name,
		config:         config.withDefaults(),
		state:          StateClosed,
		lastTransition: time.Now(),
	}
}

// Allow reports whether a call may proceed right now.
//
// In CLOSED it always returns true. In OPEN it returns true only once
// the cool-down has elapsed, and that call itself moves the breaker to
// HALF-OPEN: the caller is the probe. In HALF-OPEN at most MaxProbes
// callers are admitted concurrently; everyone else is rejected until a
// probe result comes back.
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()

	var notify func()
	allowed := false

	switch cb.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if time.Since(cb.lastTransition) >= cb.config.Cooldown {
			notify = cb.transition(StateHalfOpen)
			cb.probesInFlight = 1
			allowed = true
		}
	case StateHalfOpen:
		if cb.probesInFlight < cb.config.MaxProbes {
			cb.probesInFlight++
			allowed = true
		}
	}

	cb.mutex.Unlock()

	if notify != nil {
		notify()
	}
	return allowed
}

// RecordSuccess feeds a successful call result into the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()

	var notify func()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.probesInFlight > 0 {
			cb.probesInFlight--
		}
		if cb.successes >= cb.config.SuccessThreshold {
			notify = cb.transition(StateClosed)
		}
	case StateOpen:
		// Late result from a call admitted before the trip. The
		// cool-down clock already governs recovery.
	}

	cb.mutex.Unlock()

	if notify != nil {
		notify()
	}
}

// RecordFailure feeds a failed call result into the breaker.
// A single failure while HALF-OPEN reopens the circuit and restarts
// the cool-down clock from this moment.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()

	var notify func()
	cb.lastFailure = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			notify = cb.transition(StateOpen)
		}
	case StateHalfOpen:
		notify = cb.transition(StateOpen)
	case StateOpen:
	}

	cb.mutex.Unlock()

	if notify != nil {
		notify()
	}
}

// transition must be called with the mutex held. It returns the
// OnStateChange invocation to run after the lock is released, or nil.
func (cb *CircuitBreaker) transition(to State) func() {
	from := cb.state
	if from == to {
		return nil
	}

	cb.state = to
	cb.lastTransition = time.Now()
	cb.probesInFlight = 0

	if to == StateClosed || to == StateOpen {
		cb.failures = 0
		cb.successes = 0
	}

	if cb.config.OnStateChange == nil {
		return nil
	}

	callback := cb.config.OnStateChange
	name := cb.name
	return func() { callback(name, from, to) }
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// LastTransition returns when the breaker last changed state.
func (cb *CircuitBreaker) LastTransition() time.Time {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.lastTransition
}

// String returns the wire representation used in the health document.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}
