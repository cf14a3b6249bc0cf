// Package config loads, normalizes, and validates wsbridge configuration.
//
// Settings come from built-in defaults, an optional TOML file, an optional
// .env file and WSBRIDGE_* environment variables, in that order of
// precedence (later wins). Command-line flags are applied by the caller
// through Overrides before validation.
package config
