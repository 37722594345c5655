// Package backend holds the immutable descriptors for upstream services:
// name, base address, timeout budget and the reverse proxy used to
// forward requests.
package backend
