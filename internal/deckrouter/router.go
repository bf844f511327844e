// Package deckrouter asks the model which Anki deck a new flashcard belongs in.
package deckrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vthunder/toolbot/internal/integrations/anki"
	"github.com/vthunder/toolbot/internal/llm"
	"github.com/vthunder/toolbot/internal/proposal"
)

var (
	// ErrNoSelection means the model returned no text
	ErrNoSelection = errors.New("LLM did not return a deck selection")
	// ErrInvalidJSON means no JSON object could be recovered from the reply
	ErrInvalidJSON = errors.New("LLM response was not valid JSON")
)

const (
	maxPreview    = 10
	defaultReason = "LLM chose this deck."
)

// Choice is the routing decision
type Choice struct {
	Deck    string
	Reason  string
	Preview []string
}

// Router picks decks using an llm.Engine
type Router struct {
	engine    llm.Engine
	namespace string
}

// New creates a router; namespace defaults to anki.DefaultNamespace
func New(engine llm.Engine, namespace string) *Router {
	if namespace == "" {
		namespace = anki.DefaultNamespace
	}
	return &Router{engine: engine, namespace: namespace}
}

func (r *Router) systemPrompt() string {
	return fmt.Sprintf("You are an Anki deck routing helper. Choose the best existing %s subdeck for the proposed flashcard, "+
		"or propose a concise new subdeck under %s if none fit. Return JSON only.", r.namespace, r.namespace)
}

func userPrompt(fc *proposal.Flashcard, samples map[string][]anki.Card) string {
	decks := make([]string, 0, len(samples))
	for name := range samples {
		decks = append(decks, name)
	}
	sort.Strings(decks)

	type candidate struct {
		Deck    string      `json:"deck"`
		Samples []anki.Card `json:"samples"`
	}
	candidates := make([]candidate, 0, len(decks))
	for _, name := range decks {
		candidates = append(candidates, candidate{Deck: name, Samples: samples[name]})
	}
	decksJSON, _ := json.MarshalIndent(candidates, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Front: %s\n", fc.Front)
	fmt.Fprintf(&b, "Back: %s\n", fc.Back)
	fmt.Fprintf(&b, "Requested deck: %s\n\n", fc.Deck)
	b.WriteString("Candidate decks with sample cards:\n")
	b.Write(decksJSON)
	b.WriteString("\n\nRespond with a JSON object: {\"deck\": string, \"reason\": string, \"preview\": [strings]}")
	return b.String()
}

type selection struct {
	Deck    string   `json:"deck"`
	Reason  string   `json:"reason"`
	Preview []string `json:"preview"`
}

// ChooseDeck asks the model for a destination deck. Errors are returned
// rather than defaulted so callers can report them.
func (r *Router) ChooseDeck(ctx context.Context, fc *proposal.Flashcard, samples map[string][]anki.Card) (Choice, error) {
	resp, err := r.engine.Process(ctx, r.systemPrompt(), []llm.Message{
		{Role: llm.RoleUser, Content: userPrompt(fc, samples)},
	}, false)
	if err != nil {
		return Choice{}, fmt.Errorf("deck routing: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Choice{}, ErrNoSelection
	}

	sel, err := parseSelection(text)
	if err != nil {
		return Choice{}, err
	}

	deck := sel.Deck
	if strings.TrimSpace(deck) == "" {
		deck = fc.Deck
	}
	choice := Choice{
		Deck:    anki.Namespaced(r.namespace, deck),
		Reason:  strings.TrimSpace(sel.Reason),
		Preview: sel.Preview,
	}
	if choice.Reason == "" {
		choice.Reason = defaultReason
	}
	if len(choice.Preview) > maxPreview {
		choice.Preview = choice.Preview[:maxPreview]
	}
	return choice, nil
}

func parseSelection(text string) (selection, error) {
	var sel selection
	if err := json.Unmarshal([]byte(text), &sel); err == nil {
		return sel, nil
	}
	obj, ok := firstObject(text)
	if !ok {
		return sel, ErrInvalidJSON
	}
	if err := json.Unmarshal([]byte(obj), &sel); err != nil {
		return sel, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return sel, nil
}

// firstObject returns the first balanced {...} substring. Braces inside
// JSON strings are skipped.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
