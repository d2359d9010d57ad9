package manifest

import (
	"strings"
	"time"
)

// Timestamp layout used in the manifest's UpdateTime line.
const updateTimeLayout = "2006-01-02 15:04:05"

// Key names shared by the manifest file and the release body.
const (
	KeyDestVersion   = "DestVersion"
	KeyMd5           = "Md5"
	KeySha256        = "Sha256"
	KeyContentLength = "ContentLength"
	KeyLastModified  = "LastModified"
	KeyUpdateTime    = "UpdateTime"
	KeyDownloadFrom  = "DownloadFrom"
)

// Manifest is the small text record accompanying a published artifact.
type Manifest struct {
	// DestVersion is the extracted or synthesized version identifier.
	DestVersion string
	// Sha256 is the lowercase hex digest of the artifact's bytes.
	Sha256 string
	// UpdateTime is when the manifest was produced, in UTC.
	UpdateTime time.Time
	// DownloadFrom is the source URL the artifact was fetched from.
	DownloadFrom string
	// Md5 is the vendor-reported digest, when the remote exposes one.
	Md5 string
	// ContentLength is the remote-reported artifact size in bytes.
	ContentLength string
	// LastModified is the remote-reported modification timestamp.
	LastModified string
}

// Render emits the manifest text. The core lines and their order are
// fixed; remote metadata lines appear only when the values are known.
func (m *Manifest) Render() string {
	var b strings.Builder

	writeLine(&b, KeyDestVersion, m.DestVersion)

	if m.Md5 != "" {
		writeLine(&b, KeyMd5, m.Md5)
	}

	writeLine(&b, KeySha256, m.Sha256)

	if m.ContentLength != "" {
		writeLine(&b, KeyContentLength, m.ContentLength)
	}

	if m.LastModified != "" {
		writeLine(&b, KeyLastModified, m.LastModified)
	}

	writeLine(&b, KeyUpdateTime, m.UpdateTime.UTC().Format(updateTimeLayout)+" (UTC)")
	writeLine(&b, KeyDownloadFrom, m.DownloadFrom)

	return b.String()
}

// ReleaseNotes renders the human-readable release body. The detail lines
// use the same keys as the manifest so the body can be parsed back on the
// next run.
func (m *Manifest) ReleaseNotes(productTitle string) string {
	var b strings.Builder

	b.WriteString(productTitle + " automatic release\n\n")
	b.WriteString("Download and integrity details are below.\n\n")
	b.WriteString("Release details\n")
	b.WriteString("- " + KeyDestVersion + ": " + m.DestVersion + "\n\n")
	b.WriteString("Source and checksums\n")
	b.WriteString("- " + KeyDownloadFrom + ": " + m.DownloadFrom + "\n")
	b.WriteString("- " + KeyMd5 + ": " + m.Md5 + "\n")
	b.WriteString("- " + KeySha256 + ": " + m.Sha256 + "\n")

	if m.ContentLength != "" {
		b.WriteString("- " + KeyContentLength + ": " + m.ContentLength + "\n")
	}

	if m.LastModified != "" {
		b.WriteString("- " + KeyLastModified + ": " + m.LastModified + "\n")
	}

	return b.String()
}

// ParseBody extracts "Key: Value" pairs from a release body, tolerating
// "- " bullets and ignoring lines without a separator.
func ParseBody(body string) map[string]string {
	info := make(map[string]string)

	for _, line := range strings.Split(body, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}

		key = strings.TrimSpace(strings.TrimLeft(key, "- "))
		if key == "" {
			continue
		}

		info[key] = strings.TrimSpace(value)
	}

	return info
}

// writeLine appends one "Key: Value" manifest line.
func writeLine(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}
