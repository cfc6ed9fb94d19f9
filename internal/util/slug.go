package util

import "strings"

const maxSlugLen = 64

// Slugify lowercases a name and collapses every run of non-alphanumeric
// characters into a single dash. Empty or fully non-alphanumeric input
// yields "untitled" so a slug is never blank.
func Slugify(name string) string {
	slug := make([]rune, 0, len(name))
	lastDash := false
	for _, ch := range strings.ToLower(strings.TrimSpace(name)) {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			slug = append(slug, ch)
			lastDash = false
			continue
		}
		if !lastDash {
			slug = append(slug, '-')
			lastDash = true
		}
	}
	text := strings.Trim(string(slug), "-")
	if len(text) > maxSlugLen {
		text = strings.TrimRight(text[:maxSlugLen], "-")
	}
	if text == "" {
		text = "untitled"
	}
	return text
}
