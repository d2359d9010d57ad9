package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"howett.net/plist"
)

const (
	// descriptorFilename is the bundle metadata descriptor.
	descriptorFilename = "Info.plist"

	// bundleSuffix marks application bundle directories.
	bundleSuffix = ".app"

	// contentsDirectory holds the descriptor inside a bundle.
	contentsDirectory = "Contents"
)

// ErrMetadataNotFound is returned when no usable version metadata exists:
// either no descriptor file anywhere in the tree, or a descriptor with
// neither a version string nor a build number. No release is published
// without some version identifier, so this is fatal for the run.
var ErrMetadataNotFound = errors.New("application metadata not found")

// descriptor mirrors the version-bearing keys of the bundle's Info.plist.
type descriptor struct {
	// VendorVersion is the vendor-specific full version key, preferred when present.
	VendorVersion string `plist:"WeChatBundleVersion"`
	// ShortVersion is the user-facing dotted version.
	ShortVersion string `plist:"CFBundleShortVersionString"`
	// BuildNumber is the internal build counter.
	BuildNumber string `plist:"CFBundleVersion"`
}

// VersionRecord identifies one artifact build.
type VersionRecord struct {
	// Version is the dotted version string, precise or synthesized.
	Version string
	// Source labels where the version came from:
	// "bundle-version", "short-version" or "synthesized".
	Source string
}

// LocateDescriptor finds the application's metadata descriptor under the
// mounted tree. The expected nested path is tried first; when the bundle
// is named differently the whole tree is searched.
func LocateDescriptor(root, appName string) (string, error) {
	expected := filepath.Join(root, appName+bundleSuffix, contentsDirectory, descriptorFilename)
	if _, err := os.Stat(expected); err == nil {
		return expected, nil
	}

	found := ""

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			return fs.SkipDir
		}

		if entry.IsDir() || entry.Name() != descriptorFilename {
			return nil
		}

		parent := filepath.Dir(path)
		if filepath.Base(parent) != contentsDirectory {
			return nil
		}

		if !strings.HasSuffix(filepath.Dir(parent), bundleSuffix) {
			return nil
		}

		found = path

		return fs.SkipAll
	})
	if walkErr != nil {
		return "", fmt.Errorf("search descriptor under %s: %w", root, walkErr)
	}

	if found == "" {
		return "", fmt.Errorf("%w: no %s under %s", ErrMetadataNotFound, descriptorFilename, root)
	}

	return found, nil
}

// ExtractVersion parses the descriptor and derives the version record.
//
// Order of preference: the vendor's full version key, then the short
// version string, then a synthesized "<major>+build.<build>" identifier
// that preserves ordering by build number when the precise version cannot
// be recovered. lastKnownMajor supplies the major component for the
// synthesized form and comes from release history.
func ExtractVersion(descriptorPath, lastKnownMajor string) (VersionRecord, error) {
	var record VersionRecord

	contents, err := os.ReadFile(filepath.Clean(descriptorPath))
	if err != nil {
		return record, fmt.Errorf("read descriptor: %w", err)
	}

	var desc descriptor
	if _, err := plist.Unmarshal(contents, &desc); err != nil {
		return record, fmt.Errorf("parse descriptor: %w", err)
	}

	if v := strings.TrimSpace(desc.VendorVersion); v != "" {
		return VersionRecord{Version: v, Source: "bundle-version"}, nil
	}

	if v := strings.TrimSpace(desc.ShortVersion); v != "" {
		return VersionRecord{Version: v, Source: "short-version"}, nil
	}

	build := strings.TrimSpace(desc.BuildNumber)
	if build == "" {
		return record, fmt.Errorf("%w: descriptor has no version string and no build number", ErrMetadataNotFound)
	}

	if lastKnownMajor == "" {
		return record, fmt.Errorf(
			"%w: build %s found but no last known major version to synthesize from", ErrMetadataNotFound, build)
	}

	return VersionRecord{
		Version: fmt.Sprintf("%s+build.%s", lastKnownMajor, build),
		Source:  "synthesized",
	}, nil
}

// MajorOf returns the major component of a dotted version, with any
// leading tag prefix stripped. An empty input yields an empty string.
func MajorOf(version string) string {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if version == "" {
		return ""
	}

	if index := strings.IndexAny(version, ".+_"); index >= 0 {
		version = version[:index]
	}

	return version
}
