package anki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAnki answers AnkiConnect actions from a table and records requests
type fakeAnki struct {
	mu      sync.Mutex
	results map[string]string
	errors  map[string]string
	calls   []map[string]any
}

func (f *fakeAnki) serve(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.calls = append(f.calls, req)
		f.mu.Unlock()
		action := req["action"].(string)
		if msg, ok := f.errors[action]; ok {
			json.NewEncoder(w).Encode(map[string]any{"result": nil, "error": msg})
			return
		}
		result, ok := f.results[action]
		if !ok {
			result = "null"
		}
		w.Write([]byte(`{"result":` + result + `,"error":null}`))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 0)
}

func TestCreateBasic(t *testing.T) {
	f := &fakeAnki{results: map[string]string{"addNote": "1496198395707"}}
	c := f.serve(t)

	id, err := c.CreateBasic(context.Background(), "Q", "A", "Active::Bot::Geo", []string{"paris trip"})
	require.NoError(t, err)
	assert.Equal(t, int64(1496198395707), id)

	require.Len(t, f.calls, 2)
	assert.Equal(t, "createDeck", f.calls[0]["action"])
	assert.EqualValues(t, 6, f.calls[1]["version"])

	note := f.calls[1]["params"].(map[string]any)["note"].(map[string]any)
	assert.Equal(t, "Basic", note["modelName"])
	assert.Equal(t, "Active::Bot::Geo", note["deckName"])
	fields := note["fields"].(map[string]any)
	assert.Equal(t, "Q", fields["Front"])
	assert.Equal(t, "tool-bot", fields["Source"])
	assert.Equal(t, []any{"paris_trip", "tool-bot"}, note["tags"])
	opts := note["options"].(map[string]any)
	assert.Equal(t, false, opts["allowDuplicate"])
	assert.Equal(t, "deck", opts["duplicateScope"])
}

func TestCreateClozeAndReversedModels(t *testing.T) {
	f := &fakeAnki{results: map[string]string{"addNote": "7"}}
	c := f.serve(t)

	_, err := c.CreateCloze(context.Background(), "{{c1::Paris}} is the capital", "Active::Bot", nil)
	require.NoError(t, err)
	_, err = c.CreateReversed(context.Background(), "chat", "cat", "Active::Bot", nil)
	require.NoError(t, err)

	cloze := f.calls[1]["params"].(map[string]any)["note"].(map[string]any)
	assert.Equal(t, "Cloze", cloze["modelName"])
	assert.Equal(t, "{{c1::Paris}} is the capital", cloze["fields"].(map[string]any)["Text"])

	rev := f.calls[3]["params"].(map[string]any)["note"].(map[string]any)
	assert.Equal(t, "Basic (and reversed card)", rev["modelName"])
}

func TestInvokeError(t *testing.T) {
	f := &fakeAnki{errors: map[string]string{"addNote": "cannot create note because it is a duplicate"}}
	c := f.serve(t)

	_, err := c.CreateBasic(context.Background(), "Q", "A", "Active::Bot", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestSampleCards(t *testing.T) {
	f := &fakeAnki{results: map[string]string{
		"findNotes": `[1, 2, 3]`,
		"notesInfo": `[
			{"noteId":1,"modelName":"Basic","fields":{"Front":{"value":"<b>Q1</b>","order":0},"Back":{"value":"A1","order":1}}},
			{"noteId":2,"modelName":"Cloze","fields":{"Text":{"value":"{{c1::x}}","order":0},"Back Extra":{"value":"","order":1}}}
		]`,
	}}
	c := f.serve(t)

	cards, err := c.SampleCards(context.Background(), "Active::Bot::Geo", 2)
	require.NoError(t, err)
	assert.Equal(t, []Card{{Front: "Q1", Back: "A1"}, {Front: "{{c1::x}}", Back: ""}}, cards)

	assert.Equal(t, `deck:"Active::Bot::Geo"`, f.calls[0]["params"].(map[string]any)["query"])
	notes := f.calls[1]["params"].(map[string]any)["notes"].([]any)
	assert.Len(t, notes, 2)
}

func TestDeckNamesAndSync(t *testing.T) {
	f := &fakeAnki{results: map[string]string{"deckNames": `["Default","Active::Bot","Active::Bot::Geo"]`}}
	c := f.serve(t)

	names, err := c.DeckNames(context.Background())
	require.NoError(t, err)
	assert.Len(t, names, 3)
	assert.NoError(t, c.Sync(context.Background()))
}

func TestNamespaced(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "Active::Bot"},
		{"Default", "Active::Bot"},
		{"Active::Bot", "Active::Bot"},
		{"Active::Bot::Geo", "Active::Bot::Geo"},
		{"Geo", "Active::Bot::Geo"},
		{"Languages::French", "Active::Bot::Languages::French"},
		{"Active::Botany", "Active::Bot::Active::Botany"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Namespaced("", tt.in), "input %q", tt.in)
	}
	assert.True(t, InNamespace("", "Active::Bot::Geo"))
	assert.False(t, InNamespace("", "Active::Botany"))
}
