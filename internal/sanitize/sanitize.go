// Package sanitize neutralises untrusted form input before it is echoed back
// to browsers or relayed into notification emails.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NotSpecified is substituted for optional fields that are absent or empty
// after sanitisation.
const NotSpecified = "Not specified"

const maxEmailLength = 254

var (
	// StrictPolicy drops every tag and escapes the remaining text. The policy
	// is safe for concurrent use once built.
	strict = bluemonday.StrictPolicy()

	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// Text strips markup from s, HTML-escapes what is left and trims surrounding
// whitespace.
func Text(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.TrimSpace(strict.Sanitize(s))
}

// Optional behaves like Text but returns NotSpecified for empty results.
func Optional(s string) string {
	if out := Text(s); out != "" {
		return out
	}
	return NotSpecified
}

// Join sanitises each part and joins the non-empty ones with a single space.
func Join(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = Text(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, " ")
}

// ValidEmail reports whether s looks like a deliverable address.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxEmailLength {
		return false
	}
	return emailPattern.MatchString(s)
}
