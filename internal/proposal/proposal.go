// Package proposal defines the actions the bot stages for approval and the
// text format they are posted in.
package proposal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Card types understood by the flashcard backend
const (
	CardBasic    = "basic"
	CardCloze    = "cloze"
	CardReversed = "basic-reversed"
)

// Proposal is a staged action awaiting a thumbs-up. Implemented by
// *Flashcard and *Todo.
type Proposal interface {
	Kind() string
	isProposal()
}

// Flashcard is a proposed Anki note
type Flashcard struct {
	CardType string   `json:"card_type"`
	Front    string   `json:"front"`
	Back     string   `json:"back"`
	Deck     string   `json:"deck"`
	Tags     []string `json:"tags,omitempty"`

	// DeckReason is the router's explanation; it is not posted
	DeckReason string `json:"-"`
}

// Todo is a proposed task
type Todo struct {
	Content     string   `json:"content"`
	DueString   string   `json:"due_string,omitempty"`
	Priority    int      `json:"priority"`
	Labels      []string `json:"labels,omitempty"`
	ProjectName string   `json:"project_name,omitempty"`
}

func (*Flashcard) Kind() string { return "flashcard" }
func (*Todo) Kind() string      { return "todo" }

func (*Flashcard) isProposal() {}
func (*Todo) isProposal()      {}

// FlashcardsFromArgs decodes the arguments of a create_flashcards call
func FlashcardsFromArgs(args map[string]any) ([]*Flashcard, error) {
	var payload struct {
		Flashcards []*Flashcard `json:"flashcards"`
	}
	if err := remarshal(args, &payload); err != nil {
		return nil, fmt.Errorf("decode flashcards: %w", err)
	}
	for _, fc := range payload.Flashcards {
		fc.normalize()
	}
	return payload.Flashcards, nil
}

// TodosFromArgs decodes the arguments of a create_todos call
func TodosFromArgs(args map[string]any) ([]*Todo, error) {
	var payload struct {
		Todos []struct {
			Todo
			Priority json.Number `json:"priority"`
		} `json:"todos"`
	}
	if err := remarshal(args, &payload); err != nil {
		return nil, fmt.Errorf("decode todos: %w", err)
	}
	todos := make([]*Todo, 0, len(payload.Todos))
	for _, raw := range payload.Todos {
		td := raw.Todo
		if f, err := raw.Priority.Float64(); err == nil {
			td.Priority = int(f)
		}
		td.normalize()
		todos = append(todos, &td)
	}
	return todos, nil
}

func (fc *Flashcard) normalize() {
	fc.CardType = strings.TrimSpace(fc.CardType)
	if fc.CardType == "" {
		fc.CardType = CardBasic
	}
	if strings.TrimSpace(fc.Deck) == "" {
		fc.Deck = "Default"
	}
}

func (td *Todo) normalize() {
	if td.Priority < 1 {
		td.Priority = 1
	}
	if td.Priority > 4 {
		td.Priority = 4
	}
}

func remarshal(in map[string]any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
