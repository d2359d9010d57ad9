// Package fetch transfers the installer artifact over HTTP and probes
// remote file metadata with a HEAD request. Transfers are single-attempt:
// a failed run relies on the next scheduled invocation rather than retrying.
package fetch
