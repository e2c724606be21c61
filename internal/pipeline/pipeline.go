// Package pipeline runs one poll cycle: fetch, normalize, select, format, notify and persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lepinkainen/feed-alerts/internal/config"
	"github.com/lepinkainen/feed-alerts/internal/digest"
	"github.com/lepinkainen/feed-alerts/internal/feedsource"
	"github.com/lepinkainen/feed-alerts/internal/notify"
	"github.com/lepinkainen/feed-alerts/internal/relevance"
	"github.com/lepinkainen/feed-alerts/internal/seen"
	"github.com/lepinkainen/feed-alerts/internal/selector"
	"github.com/lepinkainen/feed-alerts/pkg/feedtypes"
)

// Fetcher is the part of feedsource.Fetcher the runner uses.
type Fetcher interface {
	FetchAll(ctx context.Context, urls []string) []feedsource.Result
}

// Runner wires the stages together. Notifier may be nil for Preview.
type Runner struct {
	Config    *config.Config
	Fetcher   Fetcher
	Store     seen.Store
	Notifier  notify.Notifier
	Formatter *digest.Formatter
	Now       func() time.Time
}

// Report summarizes a run.
type Report struct {
	RunID       string
	FeedsOK     int
	FeedsFailed int
	Fetched     int
	Selected    int
	Sent        bool
	DeliveryErr error
	PersistErr  error
}

// Candidate is a fetched item together with how the selection treated it.
type Candidate struct {
	Item     feedtypes.FeedItem
	Keyword  string
	Relevant bool
	Seen     bool
	Selected bool
}

// Run executes one cycle. The seen set is persisted whether or not delivery succeeds;
// the returned error is the delivery error. Persist failures are logged and reported
// in Report.PersistErr only.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	log := slog.With("run_id", report.RunID)

	if r.Notifier == nil {
		return report, errors.New("pipeline: no notifier configured")
	}

	log.Info("Starting run", "feeds", len(r.Config.Feeds), "keywords", len(r.Config.Keywords))

	seenSet := seen.LoadOrEmpty(ctx, r.Store)
	log.Debug("Loaded seen ids", "count", seenSet.Len())

	items := r.collect(ctx, log, &report)
	ranked := selector.Rank(items)
	matcher := relevance.NewMatcher(r.Config.Keywords)
	log.Debug("Matching keywords", "keywords", matcher.Keywords())
	selected := selector.Select(ranked, matcher, seenSet, r.Config.MaxTotalItems)
	report.Selected = len(selected)

	report.DeliveryErr = r.deliver(ctx, log, selected, &report)

	// Persist even when the caller's context is cancelled so sent ids are not lost.
	if err := r.Store.Persist(context.WithoutCancel(ctx), seenSet); err != nil {
		report.PersistErr = err
		log.Error("Failed to persist seen ids", "error", err)
	}

	log.Info("Run finished",
		"feeds_ok", report.FeedsOK,
		"feeds_failed", report.FeedsFailed,
		"fetched", report.Fetched,
		"selected", report.Selected,
		"sent", report.Sent,
		"seen_total", seenSet.Len())

	return report, report.DeliveryErr
}

func (r *Runner) deliver(ctx context.Context, log *slog.Logger, selected []feedtypes.FeedItem, report *Report) error {
	if len(selected) == 0 {
		log.Info("No new relevant items")
		if !r.Config.SendEmpty {
			return nil
		}
	}

	text := r.Digest(selected)
	if err := r.Notifier.Send(ctx, text); err != nil {
		log.Error("Failed to deliver digest", "error", err, "items", len(selected))
		return fmt.Errorf("deliver digest: %w", err)
	}

	report.Sent = true
	log.Info("Digest delivered", "items", len(selected))
	return nil
}

// Preview runs fetch and selection without sending or persisting anything.
func (r *Runner) Preview(ctx context.Context) ([]Candidate, error) {
	log := slog.With("run_id", uuid.NewString(), "mode", "preview")

	seenSet := seen.LoadOrEmpty(ctx, r.Store)
	items := r.collect(ctx, log, &Report{})
	ranked := selector.Rank(items)
	matcher := relevance.NewMatcher(r.Config.Keywords)

	candidates := make([]Candidate, len(ranked))
	for i, item := range ranked {
		keyword, ok := matcher.Match(item)
		candidates[i] = Candidate{
			Item:     item,
			Keyword:  keyword,
			Relevant: ok,
			Seen:     seenSet.Contains(item.ID),
		}
	}

	selected := selector.Select(ranked, matcher, seenSet, r.Config.MaxTotalItems)
	pending := make(map[string]bool, len(selected))
	for _, item := range selected {
		pending[item.ID] = true
	}
	for i := range candidates {
		if pending[candidates[i].Item.ID] {
			candidates[i].Selected = true
			delete(pending, candidates[i].Item.ID)
		}
	}

	return candidates, ctx.Err()
}

// Digest renders the message a run would send for items.
func (r *Runner) Digest(items []feedtypes.FeedItem) string {
	return r.formatter().Format(items, r.now())
}

// collect fetches every feed and normalizes the entries in feed order.
func (r *Runner) collect(ctx context.Context, log *slog.Logger, report *Report) []feedtypes.FeedItem {
	results := r.Fetcher.FetchAll(ctx, r.Config.Feeds)

	for _, result := range results {
		if result.OK() {
			report.FeedsOK++
			report.Fetched += len(result.Entries)
		} else {
			report.FeedsFailed++
			log.Warn("Skipping failed feed", "url", result.URL, "error", result.Err)
		}
	}

	items := NormalizeAll(results)
	log.Debug("Normalized items", "count", len(items))
	return items
}

// NormalizeAll converts the entries of every successful result, keeping feed order.
// Entries without any usable id are dropped.
func NormalizeAll(results []feedsource.Result) []feedtypes.FeedItem {
	var items []feedtypes.FeedItem
	for i, result := range results {
		if !result.OK() {
			continue
		}
		source := result.Name()
		for _, entry := range result.Entries {
			item, ok := feedtypes.Normalize(entry, source, i)
			if !ok {
				slog.Debug("Dropping entry without id", "feed", result.URL)
				continue
			}
			items = append(items, item)
		}
	}
	return items
}

func (r *Runner) formatter() *digest.Formatter {
	if r.Formatter != nil {
		return r.Formatter
	}
	return digest.NewFormatter(time.Local)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
