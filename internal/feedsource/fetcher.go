// Package feedsource downloads RSS and Atom feeds and turns them into raw entries.
package feedsource

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	feedhttp "github.com/lepinkainen/feed-alerts/pkg/http"
	"github.com/lepinkainen/feed-alerts/pkg/feedtypes"
	"github.com/lepinkainen/feed-alerts/pkg/ratelimit"
	"github.com/lepinkainen/feed-alerts/pkg/urlutils"
)

const (
	DefaultMaxItemsPerFeed = 6
	DefaultTimeout         = 20 * time.Second
	DefaultConcurrency     = 4
	DefaultHostInterval    = 500 * time.Millisecond
)

// Options configures a Fetcher. Zero values fall back to the defaults above; a negative
// HostInterval turns per-host spacing off.
type Options struct {
	MaxItemsPerFeed int
	Timeout         time.Duration
	Concurrency     int
	HostInterval    time.Duration
	UserAgent       string
}

// Result is the outcome of fetching one feed. A failed feed has Err set and no entries.
type Result struct {
	URL     string
	Title   string
	Entries []feedtypes.RawEntry
	Err     error
}

// OK reports whether the feed was fetched and parsed.
func (r Result) OK() bool {
	return r.Err == nil
}

// Name is the display name for the feed: its title, or the URL when the feed has none.
func (r Result) Name() string {
	if title := strings.TrimSpace(r.Title); title != "" {
		return title
	}
	return r.URL
}

// Fetcher downloads feeds with retries, per-host spacing and a per-feed deadline.
type Fetcher struct {
	client      *feedhttp.Client
	limiter     *ratelimit.HostLimiter
	maxItems    int
	timeout     time.Duration
	concurrency int
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	if opts.MaxItemsPerFeed <= 0 {
		opts.MaxItemsPerFeed = DefaultMaxItemsPerFeed
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.HostInterval == 0 {
		opts.HostInterval = DefaultHostInterval
	}

	httpConfig := feedhttp.DefaultConfig()
	httpConfig.Timeout = opts.Timeout
	if opts.UserAgent != "" {
		httpConfig.UserAgent = opts.UserAgent
	}

	return &Fetcher{
		client:      feedhttp.NewClient(httpConfig),
		limiter:     ratelimit.NewHostLimiter(opts.HostInterval),
		maxItems:    opts.MaxItemsPerFeed,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
	}
}

// Fetch downloads and parses a single feed. Errors are reported in the Result, never panicked
// or returned separately, so one bad feed cannot affect the others.
func (f *Fetcher) Fetch(ctx context.Context, url string) Result {
	result := Result{URL: url}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.limiter.Wait(ctx, url); err != nil {
		result.Err = fmt.Errorf("rate limit wait for %s: %w", url, err)
		return result
	}

	resp, err := f.client.GetWithContext(ctx, url)
	if err != nil {
		result.Err = fmt.Errorf("fetch %s: %w", url, err)
		return result
	}

	if err := feedhttp.EnsureStatusOK(resp); err != nil {
		resp.Body.Close()
		result.Err = fmt.Errorf("fetch %s: %w", url, err)
		return result
	}

	body, err := feedhttp.ReadResponseBody(resp)
	if err != nil {
		result.Err = fmt.Errorf("read %s: %w", url, err)
		return result
	}

	// gofeed parsers keep state between calls, so each fetch gets its own.
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		result.Err = fmt.Errorf("parse %s: %w", url, err)
		return result
	}

	result.Title = feed.Title
	base := url
	if urlutils.IsValidURL(feed.Link) {
		base = feed.Link
	}
	result.Entries = toRawEntries(feed.Items, f.maxItems, base)

	slog.Debug("Fetched feed", "url", url, "title", feed.Title, "items", len(feed.Items), "kept", len(result.Entries))
	return result
}

// FetchAll fetches urls with bounded concurrency. The results are in the same order as urls.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, f.concurrency)

	slog.Info("Fetching feeds", "count", len(urls), "concurrency", f.concurrency)

	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			result := f.Fetch(ctx, url)
			if !result.OK() {
				slog.Warn("Feed fetch failed", "url", url, "error", result.Err)
			}
			results[i] = result
		}(i, url)
	}

	wg.Wait()
	slog.Debug("Fetched feeds", "count", len(urls), "hosts", f.limiter.Hosts())
	return results
}

func toRawEntries(items []*gofeed.Item, max int, base string) []feedtypes.RawEntry {
	if len(items) > max {
		items = items[:max]
	}

	entries := make([]feedtypes.RawEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, feedtypes.RawEntry{
			ID:              item.GUID,
			Title:           item.Title,
			Link:            absoluteLink(base, item.Link),
			Summary:         item.Description,
			Description:     item.Content,
			Published:       item.Published,
			Updated:         item.Updated,
			PublishedParsed: item.PublishedParsed,
			UpdatedParsed:   item.UpdatedParsed,
		})
	}
	return entries
}

// absoluteLink resolves relative item links against the feed. Links that cannot be
// resolved are kept as published.
func absoluteLink(base, link string) string {
	link = strings.TrimSpace(link)
	if link == "" || urlutils.IsValidURL(link) {
		return link
	}
	resolved, err := urlutils.ResolveURL(base, link)
	if err != nil {
		return link
	}
	return resolved
}
