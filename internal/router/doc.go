// Package router maps inbound request paths to backend names using
// ordered path-prefix rules, first match wins.
package router
