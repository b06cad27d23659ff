// Package config loads foley's TOML configuration.
//
// Load resolves the file (explicit path, ~/.config/foley/config.toml, or
// ./foley.toml), decodes it over Default(), expands paths, fills credentials
// from the environment and validates the result. CreateSample writes the
// annotated sample used by `foley config init`.
package config
