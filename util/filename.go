package util

import (
	"strings"
	"unicode"
)

// SanitizeFilename makes name safe to use as a single path element on common filesystems, replacing path separators,
// reserved characters and control characters with '_'. The result is never empty, ".", or "..".
func SanitizeFilename(name string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	// Don't allow "filenames" that are just ".", "..", etc.
	if strings.ReplaceAll(clean, ".", "") == "" {
		return strings.Repeat("_", len(clean)+1)
	}
	return clean
}
