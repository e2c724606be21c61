// Package preview provides interactive digest preview functionality using Bubble Tea TUI.
package preview

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/lepinkainen/feed-alerts/pkg/feedtypes"
)

// Entry is one fetched item and the decisions the selector made about it.
type Entry struct {
	Item     feedtypes.FeedItem
	Keyword  string
	Relevant bool
	Seen     bool
	Selected bool
}

// Status is a short label for the entry's fate in this run.
func (e Entry) Status() string {
	switch {
	case e.Selected:
		return "SEND"
	case e.Seen:
		return "SEEN"
	case e.Relevant:
		return "OVER"
	default:
		return "skip"
	}
}

// wrapText wraps text to the specified width, breaking at word boundaries when possible
func wrapText(text string, width int) string {
	if width <= 0 {
		width = 70
	}

	var result strings.Builder
	var line strings.Builder
	lineLen := 0

	words := strings.Fields(text)
	for i, word := range words {
		wordLen := utf8.RuneCountInString(word)

		// If adding this word would exceed width, start a new line
		if lineLen > 0 && lineLen+1+wordLen > width {
			result.WriteString(line.String())
			result.WriteString("\n")
			line.Reset()
			lineLen = 0
		}

		// Add space before word if not at start of line
		if lineLen > 0 {
			line.WriteString(" ")
			lineLen++
		}

		line.WriteString(word)
		lineLen += wordLen

		// Write the last line
		if i == len(words)-1 {
			result.WriteString(line.String())
		}
	}

	return result.String()
}

// PlainText strips markup from a feed summary. Summaries that are not HTML come back
// with whitespace collapsed.
func PlainText(summary string) string {
	if !strings.ContainsAny(summary, "<&") {
		return strings.Join(strings.Fields(summary), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(summary))
	if err != nil {
		return strings.Join(strings.Fields(summary), " ")
	}
	doc.Find("script, style").Remove()

	return strings.Join(strings.Fields(doc.Text()), " ")
}

// FormatCompactListItem formats a single entry in compact list format
// Example: " 1. [SEND] 2025-03-14T09:05:00Z  RBI warns about crypto scams"
func FormatCompactListItem(index int, entry Entry) string {
	title := truncate(entry.Item.Title, 70)

	date := "unknown date        "
	if entry.Item.HasPublished() {
		date = entry.Item.PublishedAt.Format(time.RFC3339)
	}

	return fmt.Sprintf("%2d. [%s] %s  %s", index+1, entry.Status(), date, title)
}

// FormatDetailedItem formats a single entry with all metadata
func FormatDetailedItem(entry Entry) string {
	item := entry.Item
	var b strings.Builder

	b.WriteString("═══════════════════════════════════════════════════════════════════════\n")
	b.WriteString(fmt.Sprintf("Title: %s\n", item.Title))
	b.WriteString(fmt.Sprintf("Link: %s\n", item.Link))
	b.WriteString(fmt.Sprintf("Source: %s\n", item.Source))
	b.WriteString(fmt.Sprintf("ID: %s\n", item.ID))

	if item.HasPublished() {
		b.WriteString(fmt.Sprintf("Published: %s\n", formatTimeAgo(item.PublishedAt)))
	}

	if entry.Keyword != "" {
		b.WriteString(fmt.Sprintf("Matched keyword: %s\n", entry.Keyword))
	}
	b.WriteString(fmt.Sprintf("Status: %s\n", describeStatus(entry)))

	if summary := PlainText(item.Summary); summary != "" {
		// Limit summary preview
		summary = truncate(summary, 1000)
		b.WriteString(fmt.Sprintf("\nSummary:\n%s\n", wrapText(summary, 70)))
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

func describeStatus(entry Entry) string {
	switch {
	case entry.Selected:
		return "will be sent"
	case entry.Seen:
		return "already sent in an earlier run"
	case entry.Relevant:
		return "relevant but over the digest limit"
	default:
		return "no keyword matched"
	}
}

// wrapLines hard-wraps lines longer than width, leaving shorter lines alone.
func wrapLines(text string, width int) string {
	var result strings.Builder
	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		for len(runes) > width {
			result.WriteString(string(runes[:width]))
			result.WriteString("\n")
			runes = runes[width:]
		}
		result.WriteString(string(runes))
		result.WriteString("\n")
	}
	return result.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

// formatTimeAgo formats a time.Time as a human-readable "X ago" string
func formatTimeAgo(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		mins := int(duration.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case duration < 24*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case duration < 7*24*time.Hour:
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02")
	}
}
