// Package config loads, normalizes, and validates binky configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// BINKY_MODELS_DIR. The Config type centralizes every knob the daemon and CLI
// need, so data, temp, and model directories are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
