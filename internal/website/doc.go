// Package website discovers the current installer download link by
// scraping the vendor page for its download button anchor.
package website
