// Package config provides configuration loading and validation for the UDP request server.
// It handles YAML-based configuration with per-section validation and an
// interactive console fallback used when no configuration file exists.
package config
