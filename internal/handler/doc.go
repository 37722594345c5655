// Package handler implements the request dispatch path: route
// resolution, circuit breaker admission, timed forwarding and outcome
// recording.
package handler
