package engine

import (
	"html"
	"regexp"
	"strings"

	"github.com/anatolykoptev/go-kit/strutil"
)

// UserAgentBot identifies API calls that need no browser disguise.
const UserAgentBot = "GoTunes/1.0"

// MaxTitleRunes caps titles taken from providers.
const MaxTitleRunes = 300

var (
	htmlTagRe = regexp.MustCompile(`<[^>]+>`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// CleanHTML strips HTML tags and trims whitespace.
func CleanHTML(s string) string {
	return strings.TrimSpace(htmlTagRe.ReplaceAllString(s, ""))
}

// CleanTitle unescapes HTML entities (the Data API returns "&#39;" etc.)
// and collapses runs of whitespace.
func CleanTitle(s string) string {
	s = html.UnescapeString(CleanHTML(s))
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// TruncateRunes caps s at limit runes, appending suffix if truncated.
// Pass suffix="" for no suffix. Safe for UTF-8 (Cyrillic, CJK, emoji).
func TruncateRunes(s string, limit int, suffix string) string {
	return strutil.TruncateWith(s, limit, suffix)
}
