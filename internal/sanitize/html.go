package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// strictPolicy removes all HTML tags and attributes. Used for fields
	// that must be plain text (names, tags, organizer fields).
	strictPolicy = bluemonday.StrictPolicy()

	// ugcPolicy allows safe user-generated content with basic formatting.
	// Used for longer free-text fields (descriptions, bios).
	ugcPolicy = bluemonday.UGCPolicy()
)

// Text strips all HTML tags and surrounding whitespace, returning plain text.
func Text(input string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(input))
}

// HTML sanitizes HTML content, allowing safe formatting tags while removing
// scripts, event handlers and style attributes.
func HTML(input string) string {
	return ugcPolicy.Sanitize(input)
}

// TextSlice sanitizes each string in a slice, removing all HTML.
func TextSlice(inputs []string) []string {
	if inputs == nil {
		return nil
	}
	sanitized := make([]string, len(inputs))
	for i, input := range inputs {
		sanitized[i] = Text(input)
	}
	return sanitized
}
