// Package config handles configuration loading for ocm.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the OCM_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/ocm/config.yaml (or ~/.config/ocm/config.yaml)
//
// A file ending in .toml is read as TOML; anything else is YAML. Without a
// file, Default() plus OCM_* environment overrides is a complete config.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	askpass:
//	  jwt_secret: "${OCM_ASKPASS_SECRET}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	credentials:
//	  cache_ttl: "60s"
//	ssh:
//	  host_key_timeout: "5m"
package config
