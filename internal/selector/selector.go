// Package selector ranks normalized items and picks the ones that go into a digest.
package selector

import (
	"log/slog"
	"sort"

	"github.com/lepinkainen/feed-alerts/internal/relevance"
	"github.com/lepinkainen/feed-alerts/pkg/feedtypes"
)

// SeenSet is the subset of the dedup store the selector needs.
type SeenSet interface {
	Contains(id string) bool
	Add(id string)
}

// Rank orders items newest first. Items without a publish time go last; ties keep
// their input order, which is the feed configuration order.
func Rank(items []feedtypes.FeedItem) []feedtypes.FeedItem {
	ranked := make([]feedtypes.FeedItem, len(items))
	copy(ranked, items)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		switch {
		case a.HasPublished() && !b.HasPublished():
			return true
		case !a.HasPublished():
			return false
		default:
			return a.PublishedAt.After(b.PublishedAt)
		}
	})

	return ranked
}

// Select walks ranked items and accumulates up to maxTotal relevant, unseen ones.
// Every selected id is added to seen immediately, so a duplicate id later in the same
// batch is skipped as well.
func Select(ranked []feedtypes.FeedItem, matcher *relevance.Matcher, seen SeenSet, maxTotal int) []feedtypes.FeedItem {
	if maxTotal <= 0 {
		return nil
	}

	selected := make([]feedtypes.FeedItem, 0, maxTotal)
	for _, item := range ranked {
		if len(selected) >= maxTotal {
			break
		}

		kw, ok := matcher.Match(item)
		if !ok {
			continue
		}
		if seen.Contains(item.ID) {
			slog.Debug("Skipping already notified item", "id", item.ID)
			continue
		}

		slog.Debug("Selected item", "id", item.ID, "keyword", kw, "source", item.Source)
		selected = append(selected, item)
		seen.Add(item.ID)
	}

	return selected
}
