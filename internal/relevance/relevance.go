// Package relevance decides whether a feed item is in scope using keyword substring matching.
//
// Matching is a literal, case-insensitive substring test: "india" matches "indiana".
// This is a known limitation of the heuristic and is kept for compatibility.
package relevance

import (
	"strings"

	"github.com/lepinkainen/feed-alerts/pkg/feedtypes"
)

// IsRelevant reports whether any keyword occurs in the item's title+summary or, failing
// that, in its link.
func IsRelevant(item feedtypes.FeedItem, keywords []string) bool {
	_, ok := NewMatcher(keywords).Match(item)
	return ok
}

// Matcher holds a lowercased keyword list for repeated matching.
type Matcher struct {
	keywords []string
}

// NewMatcher prepares keywords for matching. Blank keywords are ignored since they would
// match every item.
func NewMatcher(keywords []string) *Matcher {
	m := &Matcher{keywords: make([]string, 0, len(keywords))}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		m.keywords = append(m.keywords, kw)
	}
	return m
}

// Keywords returns the normalized keyword list.
func (m *Matcher) Keywords() []string {
	out := make([]string, len(m.keywords))
	copy(out, m.keywords)
	return out
}

// Match returns the first keyword found and whether the item is relevant.
// Title and summary are checked before the link.
func (m *Matcher) Match(item feedtypes.FeedItem) (string, bool) {
	text := strings.ToLower(item.Title + " " + item.Summary)
	if kw, ok := m.firstIn(text); ok {
		return kw, true
	}

	if link := strings.ToLower(item.Link); link != "" {
		if kw, ok := m.firstIn(link); ok {
			return kw, true
		}
	}

	return "", false
}

func (m *Matcher) firstIn(text string) (string, bool) {
	for _, kw := range m.keywords {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}
