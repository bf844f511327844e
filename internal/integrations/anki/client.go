package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	apiVersion = 6
	sourceTag  = "tool-bot"
)

// Card is a front/back pair sampled from a deck
type Card struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// Client talks to the AnkiConnect add-on
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a client for the given AnkiConnect URL
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = "http://localhost:8765"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// URL returns the AnkiConnect endpoint
func (c *Client) URL() string { return c.url }

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// invoke calls an AnkiConnect action and decodes its result into out
func (c *Client) invoke(ctx context.Context, action string, params, out any) error {
	data, err := json.Marshal(request{Action: action, Version: apiVersion, Params: params})
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("anki API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var r response
	if err := json.Unmarshal(respBody, &r); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if r.Error != nil {
		return fmt.Errorf("anki %s: %s", action, *r.Error)
	}
	if out == nil || len(r.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", action, err)
	}
	return nil
}

// CreateDeck creates a deck (no-op if it exists)
func (c *Client) CreateDeck(ctx context.Context, deck string) error {
	return c.invoke(ctx, "createDeck", map[string]any{"deck": deck}, nil)
}

// DeckNames lists every deck
func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.invoke(ctx, "deckNames", nil, &names)
	return names, err
}

// CreateBasic adds a Basic note and returns its id
func (c *Client) CreateBasic(ctx context.Context, front, back, deck string, tags []string) (int64, error) {
	return c.addNote(ctx, deck, "Basic", map[string]string{"Front": front, "Back": back}, tags)
}

// CreateReversed adds a note that produces cards in both directions
func (c *Client) CreateReversed(ctx context.Context, front, back, deck string, tags []string) (int64, error) {
	return c.addNote(ctx, deck, "Basic (and reversed card)", map[string]string{"Front": front, "Back": back}, tags)
}

// CreateCloze adds a Cloze note
func (c *Client) CreateCloze(ctx context.Context, text, deck string, tags []string) (int64, error) {
	return c.addNote(ctx, deck, "Cloze", map[string]string{"Text": text, "Back Extra": ""}, tags)
}

func (c *Client) addNote(ctx context.Context, deck, model string, fields map[string]string, tags []string) (int64, error) {
	if err := c.CreateDeck(ctx, deck); err != nil {
		return 0, err
	}

	noteFields := map[string]string{"Source": sourceTag}
	for k, v := range fields {
		noteFields[k] = v
	}
	note := map[string]any{
		"deckName":  deck,
		"modelName": model,
		"fields":    noteFields,
		"tags":      withSourceTag(tags),
		"options": map[string]any{
			"allowDuplicate": false,
			"duplicateScope": "deck",
		},
	}

	var id *int64
	if err := c.invoke(ctx, "addNote", map[string]any{"note": note}, &id); err != nil {
		return 0, err
	}
	if id == nil {
		return 0, fmt.Errorf("anki addNote: no note id returned")
	}
	return *id, nil
}

// FindNotes runs an Anki search query
func (c *Client) FindNotes(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	err := c.invoke(ctx, "findNotes", map[string]any{"query": query}, &ids)
	return ids, err
}

type noteInfo struct {
	NoteID    int64  `json:"noteId"`
	ModelName string `json:"modelName"`
	Fields    map[string]struct {
		Value string `json:"value"`
		Order int    `json:"order"`
	} `json:"fields"`
}

// SampleCards returns up to n front/back pairs from deck
func (c *Client) SampleCards(ctx context.Context, deck string, n int) ([]Card, error) {
	ids, err := c.FindNotes(ctx, fmt.Sprintf("deck:%q", deck))
	if err != nil {
		return nil, err
	}
	if len(ids) > n {
		ids = ids[:n]
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var infos []noteInfo
	if err := c.invoke(ctx, "notesInfo", map[string]any{"notes": ids}, &infos); err != nil {
		return nil, err
	}

	cards := make([]Card, 0, len(infos))
	for _, info := range infos {
		front := firstField(info, "Front", "Text")
		back := firstField(info, "Back", "Back Extra")
		if front == "" && back == "" {
			continue
		}
		cards = append(cards, Card{Front: front, Back: back})
	}
	return cards, nil
}

// Sync asks Anki to sync with AnkiWeb
func (c *Client) Sync(ctx context.Context) error {
	return c.invoke(ctx, "sync", nil, nil)
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func firstField(info noteInfo, names ...string) string {
	for _, name := range names {
		if f, ok := info.Fields[name]; ok && f.Value != "" {
			return strings.TrimSpace(tagPattern.ReplaceAllString(f.Value, " "))
		}
	}
	return ""
}

func withSourceTag(tags []string) []string {
	out := make([]string, 0, len(tags)+1)
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" && t != sourceTag {
			out = append(out, strings.ReplaceAll(t, " ", "_"))
		}
	}
	return append(out, sourceTag)
}
