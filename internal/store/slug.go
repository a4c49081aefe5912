package store

import (
	"fmt"
	"strings"
	"unicode"
)

// slugify produces a URL-safe slug from an event title. Non-ASCII titles
// (Japanese, Chinese) slug to their latin fragments; a title with no latin
// content falls back to "event" and relies on the collision suffix.
func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "event"
	}
	return slug
}

// uniqueSlug resolves collisions with a numeric suffix: base, base-2, base-3...
// taken reports whether a slug is already used by a different event.
func uniqueSlug(base string, taken func(slug string) bool) string {
	if !taken(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !taken(candidate) {
			return candidate
		}
	}
}
