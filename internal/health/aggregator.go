package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// Document is the system-wide health view served on /health. The field
// set is fixed: every service entry always carries every field.
type Document struct {
	Status   Status                   `json:"status"`
	Summary  Summary                  `json:"summary"`
	Services map[string]ServiceHealth `json:"services"`
}

type Summary struct {
	TotalServices     int `json:"total_services"`
	HealthyServices   int `json:"healthy_services"`
	DegradedServices  int `json:"degraded_services"`
	UnhealthyServices int `json:"unhealthy_services"`
}

type ServiceHealth struct {
	Status         Status        `json:"status"`
	CircuitBreaker BreakerHealth `json:"circuit_breaker"`
	ErrorRate      float64       `json:"error_rate"`
	AvgLatencyMS   float64       `json:"avg_latency_ms"`
	LastChecked    string        `json:"last_checked"`
}

type BreakerHealth struct {
	State string `json:"state"`
}

// Aggregator composes tracker snapshots into the system health
// document. It only reads through Snapshot and never mutates tracker
// state; the result is best-effort across backends, not an atomic cut.
type Aggregator struct {
	trackers []*Tracker
}

func NewAggregator(trackers ...*Tracker) *Aggregator {
	return &Aggregator{trackers: trackers}
}

func (a *Aggregator) Aggregate() Document {
	doc := Document{
		Status:   StatusHealthy,
		Services: make(map[string]ServiceHealth, len(a.trackers)),
	}

	for _, tracker := range a.trackers {
		snap := tracker.Snapshot()

		doc.Summary.TotalServices++
		switch snap.Status {
		case StatusHealthy:
			doc.Summary.HealthyServices++
		case StatusDegraded:
			doc.Summary.DegradedServices++
		case StatusUnhealthy:
			doc.Summary.UnhealthyServices++
		}

		lastChecked := ""
		if !snap.LastChecked.IsZero() {
			lastChecked = snap.LastChecked.UTC().Format(time.RFC3339)
		}

		doc.Services[snap.Backend] = ServiceHealth{
			Status:         snap.Status,
			CircuitBreaker: BreakerHealth{State: snap.State.String()},
			ErrorRate:      snap.ErrorRate,
			AvgLatencyMS:   float64(snap.AvgLatency) / float64(time.Millisecond),
			LastChecked:    lastChecked,
		}
	}

	switch {
	case doc.Summary.UnhealthyServices > 0:
		doc.Status = StatusUnhealthy
	case doc.Summary.DegradedServices > 0:
		doc.Status = StatusDegraded
	}

	return doc
}

// Handler serves the aggregate health document as JSON.
func (a *Aggregator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := a.Aggregate()

		w.Header().Set("Content-Type", "application/json")
		if doc.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		if err := json.NewEncoder(w).Encode(doc); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
