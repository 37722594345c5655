// Package healthcheck runs the optional active probe loop: one
// goroutine per backend hitting its /health endpoint on an interval and
// recording the results through the backend's health tracker.
package healthcheck
