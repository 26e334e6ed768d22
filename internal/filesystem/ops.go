// Package filesystem holds filename and directory helpers for downloaded
// assets.
package filesystem

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	invalidChars = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	dashRuns     = regexp.MustCompile(`[-\s]+`)
)

// Slugify converts a value into a filesystem-portable slug: normalize,
// optionally strip to ASCII, drop everything but word characters, spaces and
// hyphens, lowercase, and collapse runs of spaces/hyphens into single
// hyphens.
func Slugify(value string, allowUnicode bool) string {
	if allowUnicode {
		value = norm.NFKC.String(value)
	} else {
		value = norm.NFKD.String(value)
		var b strings.Builder
		for _, r := range value {
			if r < unicode.MaxASCII {
				b.WriteRune(r)
			}
		}
		value = b.String()
	}
	value = invalidChars.ReplaceAllString(strings.ToLower(value), "")
	value = dashRuns.ReplaceAllString(value, "-")
	return strings.Trim(value, "-_")
}

// EnsureDir creates path and any missing parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// Extension returns the extension of the last path element, dot included.
func Extension(name string) string {
	return filepath.Ext(name)
}
