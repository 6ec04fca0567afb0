// Package config loads, normalizes, and validates detectd configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), resolves bare protocol file names against the watch directory,
// and reads TOML files. The Config type centralizes every knob the daemon and
// CLI need, including the ordered detector stage list.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical enum values, and clear validation errors.
package config
