// Package filter decides which newly discovered videos trigger notifications.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Item is the part of a video the filters look at.
type Item struct {
	Title string
	Link  string
}

// Rules is the filter configuration applied to one playlist.
type Rules struct {
	// TitleFilter is an optional case-insensitive regular expression the
	// title has to match.
	TitleFilter   string
	ExcludeShorts bool
}

// Match reports whether an item passes the rules. An empty rule set passes
// everything. An invalid title regex matches nothing.
func Match(item Item, r Rules) bool {
	if r.ExcludeShorts && IsShort(item.Link) {
		return false
	}
	if r.TitleFilter == "" {
		return true
	}
	return TitleMatches(item.Title, r.TitleFilter)
}

// TitleMatches applies pattern to title, ignoring case.
func TitleMatches(title, pattern string) bool {
	re, err := compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(title)
}

// IsShort reports whether link points at a YouTube Short.
func IsShort(link string) bool {
	return strings.Contains(link, "/shorts/")
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	if _, err := compile(pattern); err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}

func compile(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}
