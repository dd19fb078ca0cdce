package utils

import (
	"strings"
)

// Slugify converts a human display name into a filesystem- and URL-safe
// slug: lower-cased, with every run of non-alphanumeric characters collapsed
// into a single hyphen and leading/trailing hyphens trimmed.
//
// Examples:
//
//	"Acme Landing"      -> "acme-landing"
//	"  My App!! 2024 "  -> "my-app-2024"
//	"---"               -> ""
func Slugify(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}

	return strings.Trim(b.String(), "-")
}

// ArchiveName returns the suggested download filename for a project's build
// archive, derived from the project display name.
func ArchiveName(projectName string) string {
	slug := Slugify(projectName)
	if slug == "" {
		slug = "site"
	}
	return slug + "-project.zip"
}
