package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lepinkainen/feed-alerts/internal/config"
	"github.com/lepinkainen/feed-alerts/internal/digest"
	"github.com/lepinkainen/feed-alerts/internal/feedsource"
	"github.com/lepinkainen/feed-alerts/internal/notify"
	"github.com/lepinkainen/feed-alerts/internal/seen"
	"github.com/lepinkainen/feed-alerts/pkg/api"
	"github.com/lepinkainen/feed-alerts/pkg/feedtypes"
)

var fixedNow = time.Date(2025, 3, 14, 9, 5, 0, 0, time.UTC)

// staticFetcher returns canned results, one per configured URL.
type staticFetcher struct {
	results map[string]feedsource.Result
}

func (f *staticFetcher) FetchAll(ctx context.Context, urls []string) []feedsource.Result {
	out := make([]feedsource.Result, len(urls))
	for i, u := range urls {
		r, ok := f.results[u]
		if !ok {
			r = feedsource.Result{URL: u, Err: errors.New("no such feed")}
		}
		r.URL = u
		out[i] = r
	}
	return out
}

// memStore is an in-memory seen.Store that records persists.
type memStore struct {
	ids        []string
	loadErr    error
	persistErr error
	persists   int
}

func (m *memStore) Load(ctx context.Context) (*seen.Set, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return seen.NewSet(m.ids...), nil
}

func (m *memStore) Persist(ctx context.Context, s *seen.Set) error {
	m.persists++
	if m.persistErr != nil {
		return m.persistErr
	}
	m.ids = s.IDs()
	return nil
}

func (m *memStore) Close() error { return nil }

type recordingNotifier struct {
	messages []string
	err      error
}

func (n *recordingNotifier) Send(ctx context.Context, text string) error {
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, text)
	return nil
}

func entry(id, title string, published time.Time) feedtypes.RawEntry {
	p := published
	return feedtypes.RawEntry{
		ID:              id,
		Title:           title,
		Link:            "https://example.com/" + id,
		PublishedParsed: &p,
	}
}

func testConfig(feeds ...string) *config.Config {
	c := &config.Config{
		Feeds:           feeds,
		Keywords:        []string{"rbi", "crypto", "scam", "KYC"},
		MaxItemsPerFeed: 6,
		MaxTotalItems:   8,
	}
	return c
}

func newRunner(cfg *config.Config, fetcher Fetcher, store seen.Store, n notify.Notifier) *Runner {
	return &Runner{
		Config:    cfg,
		Fetcher:   fetcher,
		Store:     store,
		Notifier:  n,
		Formatter: digest.NewFormatter(time.UTC),
		Now:       func() time.Time { return fixedNow },
	}
}

func TestRunDeliversRelevantItems(t *testing.T) {
	fetcher := &staticFetcher{results: map[string]feedsource.Result{
		"https://a.example/rss": {Title: "Economic Times", Entries: []feedtypes.RawEntry{
			entry("rbi-1", "RBI warns about crypto scams", fixedNow.Add(-time.Hour)),
			entry("sports-1", "Cricket final tonight", fixedNow.Add(-30*time.Minute)),
		}},
	}}
	store := &memStore{}
	notifier := &recordingNotifier{}

	report, err := newRunner(testConfig("https://a.example/rss"), fetcher, store, notifier).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(notifier.messages) != 1 {
		t.Fatalf("sent %d messages, want 1", len(notifier.messages))
	}
	msg := notifier.messages[0]
	want := "1️⃣ RBI warns about crypto scams\n👉 https://example.com/rbi-1\n— Economic Times"
	if !strings.Contains(msg, want) {
		t.Errorf("message missing block %q:\n%s", want, msg)
	}
	if strings.Contains(msg, "Cricket") {
		t.Error("irrelevant item should not be in the digest")
	}

	if !reflect.DeepEqual(store.ids, []string{"rbi-1"}) {
		t.Errorf("persisted ids = %v, want [rbi-1]", store.ids)
	}
	if report.RunID == "" || !report.Sent || report.Selected != 1 || report.Fetched != 2 || report.FeedsOK != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestRunSecondRunIsEmpty(t *testing.T) {
	fetcher := &staticFetcher{results: map[string]feedsource.Result{
		"https://a.example/rss": {Entries: []feedtypes.RawEntry{
			entry("rbi-1", "RBI warns about crypto scams", fixedNow),
		}},
	}}
	store := &memStore{}
	notifier := &recordingNotifier{}
	runner := newRunner(testConfig("https://a.example/rss"), fetcher, store, notifier)

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	before := append([]string(nil), store.ids...)

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if len(notifier.messages) != 1 {
		t.Errorf("second run sent a message; total messages = %d", len(notifier.messages))
	}
	if report.Sent || report.Selected != 0 {
		t.Errorf("second run report = %+v", report)
	}
	if !reflect.DeepEqual(store.ids, before) {
		t.Errorf("store changed on empty run: %v -> %v", before, store.ids)
	}
	if store.persists != 2 {
		t.Errorf("store persisted %d times, want 2", store.persists)
	}
}

func TestRunSendEmpty(t *testing.T) {
	cfg := testConfig("https://a.example/rss")
	cfg.SendEmpty = true
	fetcher := &staticFetcher{results: map[string]feedsource.Result{"https://a.example/rss": {}}}
	notifier := &recordingNotifier{}

	report, err := newRunner(cfg, fetcher, &memStore{}, notifier).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := "🔔 Crypto (India) Alerts — 14 Mar 2025 09:05 UTC\n\n" + digest.DefaultEmptyText
	if len(notifier.messages) != 1 || notifier.messages[0] != want {
		t.Errorf("messages = %q, want [%q]", notifier.messages, want)
	}
	if !report.Sent {
		t.Error("report should mark the empty digest as sent")
	}
}

func TestRunIsolatesFailedFeed(t *testing.T) {
	fetcher := &staticFetcher{results: map[string]feedsource.Result{
		"https://a.example/rss": {Err: errors.New("connection refused")},
		"https://b.example/rss": {Title: "Feed B", Entries: []feedtypes.RawEntry{
			entry("b-1", "SEBI and RBI crypto update", fixedNow),
		}},
	}}
	notifier := &recordingNotifier{}

	report, err := newRunner(testConfig("https://a.example/rss", "https://b.example/rss"), fetcher, &memStore{}, notifier).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.FeedsFailed != 1 || report.FeedsOK != 1 {
		t.Errorf("report = %+v, want one failed and one ok feed", report)
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "— Feed B") {
		t.Errorf("feed B items should still be delivered: %q", notifier.messages)
	}
}

func TestRunPersistsAfterDeliveryFailure(t *testing.T) {
	fetcher := &staticFetcher{results: map[string]feedsource.Result{
		"https://a.example/rss": {Entries: []feedtypes.RawEntry{entry("x-1", "Crypto exchange hacked", fixedNow)}},
	}}
	store := &memStore{}
	notifier := &recordingNotifier{err: &api.HTTPError{StatusCode: http.StatusBadRequest, Message: "chat not found"}}

	report, err := newRunner(testConfig("https://a.example/rss"), fetcher, store, notifier).Run(context.Background())
	if err == nil {
		t.Fatal("Run() should return the delivery error")
	}

	var httpErr *api.HTTPError
	if !errors.As(err, &httpErr) {
		t.Errorf("Run() error = %v, want wrapped HTTPError", err)
	}
	if report.Sent || report.DeliveryErr == nil {
		t.Errorf("report = %+v", report)
	}
	if !reflect.DeepEqual(store.ids, []string{"x-1"}) {
		t.Errorf("ids should be persisted even though delivery failed, got %v", store.ids)
	}
}

func TestRunPersistFailureIsNotFatal(t *testing.T) {
	fetcher := &staticFetcher{results: map[string]feedsource.Result{
		"https://a.example/rss": {Entries: []feedtypes.RawEntry{entry("x-1", "Crypto scam alert", fixedNow)}},
	}}
	store := &memStore{persistErr: errors.New("disk full")}
	notifier := &recordingNotifier{}

	report, err := newRunner(testConfig("https://a.example/rss"), fetcher, store, notifier).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, persist errors should only be reported", err)
	}
	if report.PersistErr == nil || !report.Sent {
		t.Errorf("report = %+v", report)
	}
}

func TestRunLoadFailureStartsEmpty(t *testing.T) {
	fetcher := &staticFetcher{results: map[string]feedsource.Result{
		"https://a.example/rss": {Entries: []feedtypes.RawEntry{entry("x-1", "Crypto scam alert", fixedNow)}},
	}}
	store := &memStore{loadErr: errors.New("corrupt")}
	notifier := &recordingNotifier{}

	if _, err := newRunner(testConfig("https://a.example/rss"), fetcher, store, notifier).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(notifier.messages) != 1 {
		t.Errorf("a broken store should not block delivery, sent %d", len(notifier.messages))
	}
}

func TestRunCapsAndDeduplicates(t *testing.T) {
	var a, b []feedtypes.RawEntry
	for i := 0; i < 6; i++ {
		a = append(a, entry(fmt.Sprintf("a-%d", i), fmt.Sprintf("Crypto story %d", i), fixedNow.Add(-time.Duration(i)*time.Minute)))
		b = append(b, entry(fmt.Sprintf("b-%d", i), fmt.Sprintf("Scam story %d", i), fixedNow.Add(-time.Duration(i)*time.Minute-time.Second)))
	}
	// same id as a-0 from another feed
	b[5] = entry("a-0", "Crypto story 0 (syndicated)", fixedNow.Add(time.Hour))

	fetcher := &staticFetcher{results: map[string]feedsource.Result{
		"https://a.example/rss": {Entries: a},
		"https://b.example/rss": {Entries: b},
	}}
	store := &memStore{}
	notifier := &recordingNotifier{}

	report, err := newRunner(testConfig("https://a.example/rss", "https://b.example/rss"), fetcher, store, notifier).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Selected != 8 {
		t.Errorf("Selected = %d, want 8", report.Selected)
	}
	if len(store.ids) != 8 {
		t.Errorf("persisted %d ids, want 8", len(store.ids))
	}
	if n := strings.Count(notifier.messages[0], "Crypto story 0"); n != 1 {
		t.Errorf("duplicate id appeared %d times", n)
	}
	if !strings.HasPrefix(notifier.messages[0][strings.Index(notifier.messages[0], "1️⃣"):], "1️⃣ Crypto story 0 (syndicated)") {
		t.Errorf("newest item should be first:\n%s", notifier.messages[0])
	}
}

func TestRunWithoutNotifier(t *testing.T) {
	runner := newRunner(testConfig(), &staticFetcher{}, &memStore{}, nil)
	if _, err := runner.Run(context.Background()); err == nil {
		t.Error("Run() without a notifier should fail")
	}
}

func TestPreview(t *testing.T) {
	fetcher := &staticFetcher{results: map[string]feedsource.Result{
		"https://a.example/rss": {Entries: []feedtypes.RawEntry{
			entry("old", "Old crypto news", fixedNow.Add(-time.Hour)),
			entry("new", "New KYC rules", fixedNow),
			entry("other", "Weather report", fixedNow.Add(-2*time.Hour)),
		}},
	}}
	store := &memStore{ids: []string{"old"}}

	candidates, err := newRunner(testConfig("https://a.example/rss"), fetcher, store, nil).Preview(context.Background())
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}

	if len(candidates) != 3 {
		t.Fatalf("Preview() returned %d candidates, want 3", len(candidates))
	}

	byID := map[string]Candidate{}
	for _, c := range candidates {
		byID[c.Item.ID] = c
	}
	if c := byID["new"]; !c.Relevant || c.Seen || !c.Selected || c.Keyword != "kyc" {
		t.Errorf("new candidate = %+v", c)
	}
	if c := byID["old"]; !c.Seen || c.Selected {
		t.Errorf("old candidate = %+v", c)
	}
	if c := byID["other"]; c.Relevant || c.Selected {
		t.Errorf("other candidate = %+v", c)
	}
	if store.persists != 0 {
		t.Error("Preview() must not persist")
	}
}

func TestNormalizeAll(t *testing.T) {
	results := []feedsource.Result{
		{URL: "https://a.example/rss", Title: "A", Entries: []feedtypes.RawEntry{{ID: "1", Title: "one"}, {}}},
		{URL: "https://b.example/rss", Err: errors.New("boom"), Entries: []feedtypes.RawEntry{{ID: "x"}}},
		{URL: "https://c.example/rss", Entries: []feedtypes.RawEntry{{Link: "https://c.example/2"}}},
	}

	items := NormalizeAll(results)
	if len(items) != 2 {
		t.Fatalf("NormalizeAll() = %d items, want 2", len(items))
	}
	if items[0].Source != "A" || items[0].FeedIndex != 0 {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Source != "https://c.example/rss" || items[1].ID != "https://c.example/2" || items[1].FeedIndex != 2 {
		t.Errorf("items[1] = %+v", items[1])
	}
}

// TestRunEndToEnd drives real feeds, the Telegram client and the JSON store over httptest.
func TestRunEndToEnd(t *testing.T) {
	feeds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			http.Error(w, "gone", http.StatusNotFound)
		case "/b":
			w.Header().Set("Content-Type", "application/rss+xml")
			fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>Mint Crypto</title>
<item><title>RBI flags crypto &amp; UPI scams</title><link>https://mint.example/rbi</link>
<guid>mint-rbi</guid><pubDate>Fri, 14 Mar 2025 08:00:00 +0000</pubDate></item>
<item><title>Monsoon update</title><link>https://mint.example/weather</link>
<guid>mint-weather</guid><pubDate>Fri, 14 Mar 2025 08:30:00 +0000</pubDate></item>
</channel></rss>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer feeds.Close()

	var mu sync.Mutex
	var sent []url.Values
	bot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		mu.Lock()
		sent = append(sent, r.PostForm)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer bot.Close()

	cfg := testConfig(feeds.URL+"/a", feeds.URL+"/b")
	storePath := t.TempDir() + "/sent_ids.json"

	telegram, err := notify.NewTelegram(notify.TelegramConfig{
		BotToken:  "42:token",
		ChatID:    "-1001",
		APIBase:   bot.URL,
		ParseMode: notify.ParseModeHTML,
		Retry:     api.NoRetryPolicy(),
	})
	if err != nil {
		t.Fatalf("NewTelegram() error = %v", err)
	}

	runner := newRunner(cfg,
		feedsource.New(feedsource.Options{Timeout: 2 * time.Second, HostInterval: -1}),
		seen.NewJSONStore(storePath),
		telegram)

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.FeedsFailed != 1 || report.Selected != 1 {
		t.Errorf("report = %+v", report)
	}

	if len(sent) != 1 {
		t.Fatalf("bot received %d messages, want 1", len(sent))
	}
	text := sent[0].Get("text")
	if !strings.Contains(text, "RBI flags crypto &amp; UPI scams") {
		t.Errorf("text should carry the escaped title:\n%s", text)
	}
	if !strings.Contains(text, "— Mint Crypto") {
		t.Errorf("text should name the feed:\n%s", text)
	}

	loaded, err := seen.NewJSONStore(storePath).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(loaded.IDs(), []string{"mint-rbi"}) {
		t.Errorf("stored ids = %v", loaded.IDs())
	}
}

func TestDigest(t *testing.T) {
	r := newRunner(testConfig(), &staticFetcher{}, &memStore{}, nil)

	got := r.Digest([]feedtypes.FeedItem{{ID: "1", Title: "RBI note", Link: "https://example.com/1", Source: "ET"}})
	if !strings.HasPrefix(got, r.Formatter.Header(fixedNow)) {
		t.Errorf("Digest() missing header: %q", got)
	}
	if !strings.Contains(got, "1️⃣ RBI note\n👉 https://example.com/1\n— ET") {
		t.Errorf("Digest() missing block: %q", got)
	}
}
