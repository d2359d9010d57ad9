// Package publisher orchestrates one publishing run: resolve the current
// installer link, download the image, extract the version from the
// bundle metadata, compare checksums against the latest published
// release, and create a new release when the content changed.
//
// The pipeline is linear with explicit inputs and outputs between
// stages. External capabilities (link discovery, transfer, mounting,
// release hosting) are injected, so the decision logic is unit-tested
// with fakes. A run marker guards against overlapping invocations, and
// the work directory is removed on every exit path.
package publisher
