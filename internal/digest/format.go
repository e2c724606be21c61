// Package digest renders selected feed items into a single chat message.
package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/lepinkainen/feed-alerts/pkg/feedtypes"
)

// MaxTitleLength is the longest title rendered before truncation.
const MaxTitleLength = 140

const (
	DefaultLabel     = "Crypto (India) Alerts"
	DefaultEmptyText = "No new India crypto / scam / govt updates found."
	DefaultFooter    = "⚠️ Tip: KYC & IDs guard cheyyandi. Wallet address verify chesukondi. " +
		"Never share private keys.\n— Crypto Gyaan Telugu"

	// BlockSeparator joins item blocks and precedes the footer.
	BlockSeparator = "\n\n"

	timestampLayout = "02 Jan 2006 15:04 MST"
)

// Formatter renders digests. An empty Label or EmptyText falls back to the defaults;
// an empty Footer omits the footer.
type Formatter struct {
	Label     string
	EmptyText string
	Footer    string
	Location  *time.Location
}

// NewFormatter returns a formatter with the default wording in the given location.
func NewFormatter(loc *time.Location) *Formatter {
	return &Formatter{
		Label:     DefaultLabel,
		EmptyText: DefaultEmptyText,
		Footer:    DefaultFooter,
		Location:  loc,
	}
}

// Header renders the first line of the message followed by a blank line.
func (f *Formatter) Header(now time.Time) string {
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	label := f.Label
	if label == "" {
		label = DefaultLabel
	}
	return fmt.Sprintf("🔔 %s — %s\n\n", label, now.In(loc).Format(timestampLayout))
}

// Format renders items as a numbered digest. An empty item list is a valid digest that
// states there is nothing new.
func (f *Formatter) Format(items []feedtypes.FeedItem, now time.Time) string {
	header := f.Header(now)

	if len(items) == 0 {
		empty := f.EmptyText
		if empty == "" {
			empty = DefaultEmptyText
		}
		return header + empty
	}

	return header + strings.Join(f.Blocks(items), BlockSeparator) + f.footer()
}

// Blocks renders one block per item, numbered from 1.
func (f *Formatter) Blocks(items []feedtypes.FeedItem) []string {
	blocks := make([]string, 0, len(items))
	for i, item := range items {
		blocks = append(blocks, FormatBlock(i+1, item))
	}
	return blocks
}

func (f *Formatter) footer() string {
	footer := strings.TrimSpace(f.Footer)
	if footer == "" {
		return ""
	}
	return BlockSeparator + footer
}

// FormatBlock renders a single numbered item.
func FormatBlock(index int, item feedtypes.FeedItem) string {
	return fmt.Sprintf("%d️⃣ %s\n👉 %s\n— %s", index, TruncateTitle(item.Title, MaxTitleLength), item.Link, item.Source)
}

// TruncateTitle shortens title to max runes, replacing the tail with "..." when it is longer.
func TruncateTitle(title string, max int) string {
	runes := []rune(title)
	if len(runes) <= max {
		return title
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
