// Package feedtypes provides the item types shared by the fetch, filter and digest stages.
package feedtypes

import "time"

// RawEntry is a single feed entry as read from the parser, before normalization.
type RawEntry struct {
	ID          string
	Title       string
	Link        string
	Summary     string
	Description string

	Published       string
	Updated         string
	PublishedParsed *time.Time
	UpdatedParsed   *time.Time
}

// FeedItem is a normalized feed entry. ID is the only dedup key.
type FeedItem struct {
	ID          string
	Title       string
	Link        string
	Summary     string
	Source      string
	PublishedAt time.Time // zero when unknown

	// FeedIndex is the position of the originating feed in the configured feed list.
	FeedIndex int
}

// HasPublished reports whether a publish time could be determined.
func (i FeedItem) HasPublished() bool {
	return !i.PublishedAt.IsZero()
}
