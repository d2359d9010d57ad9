// Package manifest renders the text record published alongside each
// artifact and parses it back from release bodies. The core line format
// is fixed and order-preserving, since downstream consumers parse it
// line by line.
package manifest
