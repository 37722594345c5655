// Package config loads and validates the gateway configuration from
// YAML files and environment variables.
package config
