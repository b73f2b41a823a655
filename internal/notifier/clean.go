// Package notifier relays stored posts to registered Telegram chats and keeps
// the chat registry in sync with bot membership events.
package notifier

import (
	"regexp"
	"strings"
)

var (
	// Media shortlinks left over from the embed body.
	mediaLinkPattern = regexp.MustCompile(`(?i)(https?://)?(pic\.twitter\.com/[a-zA-Z0-9]+|t\.co/[a-zA-Z0-9]+)`)

	// Trailing "— Author Name (@handle) date" attribution appended by the
	// embed markup.
	attributionPattern = regexp.MustCompile(`(?i)\s*(?:&mdash;|—|-)\s*[^\n]+\(@[^)]+\)[^\n]*$`)

	doubleSpacePattern = regexp.MustCompile(`\s{2,}`)
)

// CleanContent strips media shortlinks and the trailing attribution line from
// a post body, then normalizes whitespace.
func CleanContent(text string) string {
	cleaned := mediaLinkPattern.ReplaceAllString(text, "")
	cleaned = attributionPattern.ReplaceAllString(cleaned, "")
	cleaned = doubleSpacePattern.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
