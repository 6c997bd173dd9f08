package sanitize

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// strictPolicy removes all HTML tags and attributes.
var strictPolicy = bluemonday.StrictPolicy()

// maxPlainTextPasses bounds the strip/unescape loop in PlainText.
const maxPlainTextPasses = 4

// PlainText strips all HTML tags and returns unescaped text. Escaped markup
// is unescaped and stripped again until the value is stable.
// Use for: usernames, bios, skill names, goals, messages, review comments.
func PlainText(input string) string {
	current := input
	for i := 0; i < maxPlainTextPasses; i++ {
		next := html.UnescapeString(strictPolicy.Sanitize(current))
		if next == current {
			return next
		}
		current = next
	}
	return current
}
