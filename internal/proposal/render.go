package proposal

import (
	"strconv"
	"strings"
)

const (
	flashcardMarker = "**Flashcard Proposal**"
	todoMarker      = "**Todo Proposal**"
	callToAction    = "React with 👍 to create."

	continuationIndent = "  "
)

// Render formats a proposal as a chat message. Parse reverses it.
func Render(p Proposal) string {
	var b strings.Builder
	switch v := p.(type) {
	case *Flashcard:
		b.WriteString(flashcardMarker + "\n")
		writeField(&b, "Type", v.CardType)
		writeField(&b, "Front", v.Front)
		writeField(&b, "Back", v.Back)
		writeField(&b, "Deck", v.Deck)
		if len(v.Tags) > 0 {
			writeField(&b, "Tags", strings.Join(v.Tags, ", "))
		}
	case *Todo:
		b.WriteString(todoMarker + "\n")
		writeField(&b, "Task", v.Content)
		writeField(&b, "Due", v.DueString)
		writeField(&b, "Priority", strconv.Itoa(v.Priority))
		writeField(&b, "Project", v.ProjectName)
		if len(v.Labels) > 0 {
			writeField(&b, "Labels", strings.Join(v.Labels, ", "))
		}
	default:
		return ""
	}
	b.WriteString("\n" + callToAction)
	return b.String()
}

// writeField emits "Label: value". Every line after the first is indented
// by continuationIndent so it can never read as a label or the call to action.
func writeField(b *strings.Builder, label, value string) {
	lines := strings.Split(value, "\n")
	b.WriteString(label + ": " + lines[0] + "\n")
	for _, line := range lines[1:] {
		b.WriteString(continuationIndent + line + "\n")
	}
}
