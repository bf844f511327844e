package proposal

import (
	"strconv"
	"strings"
)

var (
	flashcardLabels = []string{"Type", "Front", "Back", "Deck", "Tags"}
	todoLabels      = []string{"Task", "Due", "Priority", "Project", "Labels"}
)

// Parse recovers a proposal from a rendered bot message. It returns false
// when the body carries no marker or no recognizable field.
func Parse(body string) (Proposal, bool) {
	switch {
	case strings.Contains(body, flashcardMarker):
		fields := parseFields(body, flashcardMarker, flashcardLabels)
		if len(fields) == 0 {
			return nil, false
		}
		return &Flashcard{
			CardType: firstWord(fields["Type"]),
			Front:    fields["Front"],
			Back:     fields["Back"],
			Deck:     fields["Deck"],
			Tags:     splitList(fields["Tags"]),
		}, true

	case strings.Contains(body, todoMarker):
		fields := parseFields(body, todoMarker, todoLabels)
		if len(fields) == 0 {
			return nil, false
		}
		td := &Todo{
			Content:     fields["Task"],
			DueString:   fields["Due"],
			ProjectName: fields["Project"],
			Labels:      splitList(fields["Labels"]),
			Priority:    1,
		}
		if n, err := strconv.Atoi(firstWord(fields["Priority"])); err == nil {
			td.Priority = n
		}
		return td, true
	}
	return nil, false
}

// parseFields reads "Label: value" lines after marker. Lines indented by
// continuationIndent extend the current value. Unindented lines that are not
// labels are also kept, for messages rendered before indentation existed. A
// blank line closes the field and the call to action ends the block.
func parseFields(body, marker string, labels []string) map[string]string {
	body = body[strings.Index(body, marker)+len(marker):]

	fields := make(map[string]string)
	var (
		current string
		value   []string
	)
	flush := func() {
		if current == "" {
			return
		}
		fields[current] = strings.Join(value, "\n")
		current, value = "", nil
	}

	for _, line := range strings.Split(body, "\n") {
		if rest, ok := strings.CutPrefix(line, continuationIndent); ok && current != "" {
			value = append(value, rest)
			continue
		}
		if strings.TrimSpace(line) == callToAction {
			break
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if label, rest, ok := matchLabel(line, labels); ok {
			flush()
			current, value = label, []string{rest}
			continue
		}
		if current != "" {
			value = append(value, line)
		}
	}
	flush()
	return fields
}

func matchLabel(line string, labels []string) (string, string, bool) {
	for _, label := range labels {
		if rest, ok := strings.CutPrefix(line, label+":"); ok {
			return label, strings.TrimPrefix(rest, " "), true
		}
	}
	return "", "", false
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
