// Package config loads, normalizes, and validates glint's TOML
// configuration.
package config
