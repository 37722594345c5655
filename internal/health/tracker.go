package health

import (
	"sync"
	"time"

	"github.com/deskcraft/edge-gateway/internal/circuitbreaker"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Outcome is the transient result of a single backend call. It is
// folded into the tracker's rolling statistics and discarded.
type Outcome struct {
	StatusCode int
	Latency    time.Duration
	Err        error
	TimedOut   bool
}

// Failure classifies the outcome from the breaker's perspective:
// transport errors, timeouts and 5xx responses are failures. 2xx-4xx
// responses mean the backend is reachable and working, so a 4xx counts
// as a success here even though the caller sees an error status.
func (o Outcome) Failure() bool {
	return o.Err != nil || o.TimedOut || o.StatusCode >= 500
}

const (
	// ewmaAlpha weights the latest latency sample in the moving average.
	ewmaAlpha = 0.2

	// windowSeconds bounds the error-rate window: outcomes are counted
	// in per-second buckets covering the last 60 seconds.
	windowSeconds = 60

	DefaultErrorRateThreshold = 0.5
)

type bucket struct {
	second   int64
	total    int64
	failures int64
}

// Tracker owns all mutable per-backend health state: the circuit
// breaker plus rolling latency and error-rate statistics. It is the
// single writer; the dispatcher and aggregator only read through it.
type Tracker struct {
	name               string
	breaker            *circuitbreaker.CircuitBreaker
	errorRateThreshold float64

	mutex       sync.Mutex
	ewmaLatency time.Duration
	hasEWMA     bool
	buckets     [windowSeconds]bucket
	lastChecked time.Time
}

func NewTracker(name string, breaker *circuitbreaker.CircuitBreaker, errorRateThreshold float64) *Tracker {
	if errorRateThreshold <= 0 || errorRateThreshold > 1 {
		errorRateThreshold = DefaultErrorRateThreshold
	}

	return &Tracker{
		name:               name,
		breaker:            breaker,
		errorRateThreshold: errorRateThreshold,
	}
}

func (t *Tracker) Name() string {
	return t.name
}

// Allow asks the backend's breaker whether a call may proceed.
func (t *Tracker) Allow() bool {
	return t.breaker.Allow()
}

// RecordOutcome feeds one call result into the breaker and the rolling
// statistics. It is the single mutation entry point and is safe under
// concurrent invocation from in-flight requests.
func (t *Tracker) RecordOutcome(outcome Outcome) {
	if outcome.Failure() {
		t.breaker.RecordFailure()
	} else {
		t.breaker.RecordSuccess()
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	now := time.Now()
	t.lastChecked = now

	if !t.hasEWMA {
		t.ewmaLatency = outcome.Latency
		t.hasEWMA = true
	} else {
		// ewma = (1 - alpha) * ewma + alpha * latest
		t.ewmaLatency = time.Duration((1-ewmaAlpha)*float64(t.ewmaLatency) + ewmaAlpha*float64(outcome.Latency))
	}

	sec := now.Unix()
	b := &t.buckets[sec%windowSeconds]
	if b.second != sec {
		b.second = sec
		b.total = 0
		b.failures = 0
	}
	b.total++
	if outcome.Failure() {
		b.failures++
	}
}

// Snapshot returns a point-in-time view of the backend's health. The
// critical section only copies counters; it never blocks on I/O or on
// breaker transitions.
func (t *Tracker) Snapshot() Snapshot {
	state := t.breaker.State()

	t.mutex.Lock()
	errorRate := t.errorRateLocked(time.Now().Unix())
	avgLatency := t.ewmaLatency
	lastChecked := t.lastChecked
	t.mutex.Unlock()

	return Snapshot{
		Backend:     t.name,
		State:       state,
		Status:      deriveStatus(state, errorRate, t.errorRateThreshold),
		ErrorRate:   errorRate,
		AvgLatency:  avgLatency,
		LastChecked: lastChecked,
	}
}

func (t *Tracker) errorRateLocked(nowSec int64) float64 {
	var total, failures int64
	for _, b := range t.buckets {
		if b.second > nowSec-windowSeconds {
			total += b.total
			failures += b.failures
		}
	}

	if total == 0 {
		return 0
	}
	return float64(failures) / float64(total)
}

func deriveStatus(state circuitbreaker.State, errorRate, threshold float64) Status {
	switch {
	case state == circuitbreaker.StateOpen:
		return StatusUnhealthy
	case state == circuitbreaker.StateHalfOpen:
		return StatusDegraded
	case errorRate > threshold:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Snapshot is a per-backend point-in-time health view.
type Snapshot struct {
	Backend     string
	State       circuitbreaker.State
	Status      Status
	ErrorRate   float64
	AvgLatency  time.Duration
	LastChecked time.Time
}
