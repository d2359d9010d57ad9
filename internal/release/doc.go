// Package release abstracts the release hosting system behind the Host
// interface: querying the most recent release body, checking whether a
// tag exists, and creating a release with attached files. The GitHub
// implementation talks to the REST API directly.
package release
