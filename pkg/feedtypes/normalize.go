package feedtypes

import (
	"strings"
	"time"
)

// dateLayouts are tried in order when the parser could not produce a structured time.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize maps a raw entry into a FeedItem. The second return value is false when
// the entry has no usable identifier and must be dropped.
func Normalize(entry RawEntry, source string, feedIndex int) (FeedItem, bool) {
	title := strings.TrimSpace(entry.Title)
	link := strings.TrimSpace(entry.Link)

	id := firstNonEmpty(entry.ID, link, title)
	if id == "" {
		return FeedItem{}, false
	}

	summary := entry.Summary
	if strings.TrimSpace(summary) == "" {
		summary = entry.Description
	}

	return FeedItem{
		ID:          id,
		Title:       title,
		Link:        link,
		Summary:     summary,
		Source:      source,
		PublishedAt: PublishedTime(entry),
		FeedIndex:   feedIndex,
	}, true
}

// PublishedTime extracts the best available timestamp for an entry: structured
// published, structured updated, then the raw strings. Returns the zero time when
// nothing parses.
func PublishedTime(entry RawEntry) time.Time {
	if entry.PublishedParsed != nil && !entry.PublishedParsed.IsZero() {
		return *entry.PublishedParsed
	}
	if entry.UpdatedParsed != nil && !entry.UpdatedParsed.IsZero() {
		return *entry.UpdatedParsed
	}
	if t, ok := ParseDate(entry.Published); ok {
		return t
	}
	if t, ok := ParseDate(entry.Updated); ok {
		return t
	}
	return time.Time{}
}

// ParseDate parses a feed date string against the common RSS/Atom layouts.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
