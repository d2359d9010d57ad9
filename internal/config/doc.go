// Package config loads, validates and persists the YAML settings for a
// publishing run: source URLs, the destination repository, naming and
// staging parameters. Missing optional fields fall back to defaults in
// Validate, so a minimal file only needs the repository.
package config
