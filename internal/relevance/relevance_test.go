package relevance

import (
	"reflect"
	"testing"

	"github.com/lepinkainen/feed-alerts/configs"
	"github.com/lepinkainen/feed-alerts/pkg/feedtypes"
)

func TestIsRelevant(t *testing.T) {
	keywords := []string{"scam", "rbi", "PAN", "KYC"}

	tests := []struct {
		name     string
		item     feedtypes.FeedItem
		expected bool
	}{
		{
			name:     "keyword in title, case insensitive",
			item:     feedtypes.FeedItem{Title: "RBI bans XYZ exchange"},
			expected: true,
		},
		{
			name:     "keyword in summary",
			item:     feedtypes.FeedItem{Title: "Markets today", Summary: "A new scam targets investors"},
			expected: true,
		},
		{
			name:     "uppercase keyword from config matches lowercase text",
			item:     feedtypes.FeedItem{Title: "Update your kyc details now"},
			expected: true,
		},
		{
			name:     "keyword only in link",
			item:     feedtypes.FeedItem{Title: "Breaking news", Link: "https://example.com/2025/scam-alert"},
			expected: true,
		},
		{
			name:     "substring inside a longer word still matches",
			item:     feedtypes.FeedItem{Title: "Company expands its footprint"},
			expected: true, // "pan" in "expands"
		},
		{
			name:     "no match anywhere",
			item:     feedtypes.FeedItem{Title: "Weather forecast", Summary: "Sunny", Link: "https://example.com/weather"},
			expected: false,
		},
		{
			name:     "empty item",
			item:     feedtypes.FeedItem{},
			expected: false,
		},
		{
			name:     "keyword split across title and summary does not match",
			item:     feedtypes.FeedItem{Title: "sc", Summary: "am"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRelevant(tt.item, keywords); got != tt.expected {
				t.Errorf("IsRelevant() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestIsRelevantSubstringHeuristic(t *testing.T) {
	item := feedtypes.FeedItem{Title: "Indiana passes new budget"}
	if !IsRelevant(item, []string{"india"}) {
		t.Error("expected substring match of \"india\" inside \"Indiana\"")
	}
}

func TestMatcher(t *testing.T) {
	m := NewMatcher([]string{" Crypto ", "", "   ", "HACK"})

	if got, want := m.Keywords(), []string{"crypto", "hack"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keywords() = %v, want %v", got, want)
	}

	kw, ok := m.Match(feedtypes.FeedItem{Title: "Exchange hacked overnight"})
	if !ok || kw != "hack" {
		t.Errorf("Match() = %q, %v; want \"hack\", true", kw, ok)
	}

	kw, ok = m.Match(feedtypes.FeedItem{Title: "Crypto and hack news"})
	if !ok || kw != "crypto" {
		t.Errorf("Match() = %q, %v; want first configured keyword \"crypto\"", kw, ok)
	}

	if _, ok := NewMatcher(nil).Match(feedtypes.FeedItem{Title: "anything"}); ok {
		t.Error("empty keyword list should match nothing")
	}
}

func TestDefaultKeywordsIgnoreCompanyNews(t *testing.T) {
	lists, err := configs.DefaultLists()
	if err != nil {
		t.Fatalf("DefaultLists() error = %v", err)
	}
	m := NewMatcher(lists.Keywords)

	company := feedtypes.FeedItem{Title: "Company plans to expand Japan panel", Link: "https://news.example.com/biz/1"}
	if kw, ok := m.Match(company); ok {
		t.Errorf("Match() = %q for an unrelated business headline", kw)
	}

	pan := feedtypes.FeedItem{Title: "Link your PAN card before March", Link: "https://news.example.com/biz/2"}
	if kw, ok := m.Match(pan); !ok || kw != "pan card" {
		t.Errorf("Match() = %q, %v, want pan card", kw, ok)
	}
}
