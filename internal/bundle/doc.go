// Package bundle extracts the application version from a mounted disk
// image: it locates the bundle's Info.plist descriptor and derives a
// VersionRecord, synthesizing a "<major>+build.<build>" identifier when
// the precise dotted version is missing.
package bundle
