// Package version exposes build metadata injected at link time and a
// reusable cobra `version` subcommand. The semantic version also feeds
// the User-Agent header used by the HTTP clients.
package version
