package notify

import (
	"strings"
	"unicode/utf16"
)

// MaxMessageLength is Telegram's limit on message text, counted in UTF-16 code units.
const MaxMessageLength = 4096

const paragraphSeparator = "\n\n"

// SplitMessage breaks text into chunks no longer than limit. It cuts between paragraphs
// where it can, so digest blocks stay whole, and falls back to cutting inside a paragraph
// only when that paragraph alone is over the limit, and then never inside an HTML entity.
// Empty paragraphs from leading, trailing or repeated separators are dropped when the
// text has to be split; text under the limit is returned unchanged.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || textLength(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0
	sepLen := textLength(paragraphSeparator)

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, para := range strings.Split(text, paragraphSeparator) {
		if para == "" {
			continue
		}
		paraLen := textLength(para)

		if paraLen > limit {
			flush()
			chunks = append(chunks, hardSplit(para, limit)...)
			continue
		}

		if currentLen > 0 && currentLen+sepLen+paraLen > limit {
			flush()
		}
		if currentLen > 0 {
			current.WriteString(paragraphSeparator)
			currentLen += sepLen
		}
		current.WriteString(para)
		currentLen += paraLen
	}
	flush()

	return chunks
}

// maxEntityLength bounds how far back a cut may move to keep an HTML entity like "&amp;"
// or "&#128276;" whole.
const maxEntityLength = 10

// hardSplit cuts s into chunks of at most limit units without splitting a rune or an
// HTML entity.
func hardSplit(s string, limit int) []string {
	var chunks []string
	var current []rune
	n := 0
	entityStart := -1 // index in current of an unterminated '&', or -1

	for _, r := range s {
		w := runeUnits(r)
		if n+w > limit && len(current) > 0 {
			cut := len(current)
			if entityStart > 0 && len(current)-entityStart < maxEntityLength {
				cut = entityStart
			}
			chunks = append(chunks, string(current[:cut]))

			tail := append([]rune(nil), current[cut:]...)
			current = append(current[:0], tail...)
			n = 0
			for _, tr := range current {
				n += runeUnits(tr)
			}
			if cut == entityStart {
				entityStart = 0
			} else {
				entityStart = -1
			}
		}

		switch {
		case r == '&':
			entityStart = len(current)
		case r == ';' || !isEntityRune(r):
			entityStart = -1
		}

		current = append(current, r)
		n += w
	}
	if len(current) > 0 {
		chunks = append(chunks, string(current))
	}
	return chunks
}

func isEntityRune(r rune) bool {
	return r == '#' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func runeUnits(r rune) int {
	if w := utf16.RuneLen(r); w > 0 {
		return w
	}
	return 1
}

func textLength(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}
