package search

import (
	"strings"

	"github.com/tsawler/prose/v3"
)

// excerpt shortens text to at most max runes, cutting at the last sentence
// boundary that fits. Falls back to a hard cut when no sentence fits.
func excerpt(text string, max int) string {
	if len([]rune(text)) <= max {
		return text
	}

	doc, err := prose.NewDocument(text)
	if err == nil {
		var b strings.Builder
		size := 0
		for _, sent := range doc.Sentences() {
			n := len([]rune(sent.Text)) + 1
			if size+n > max {
				break
			}
			if size > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(sent.Text)
			size += n
		}
		if b.Len() > 0 {
			return b.String() + " ..."
		}
	}
	return truncateRunes(text, max) + "..."
}
