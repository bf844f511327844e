package activity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "activity.jsonl")
	return New(path), path
}

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var entries []Entry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestLog_WritesJSONL(t *testing.T) {
	log, path := newTestLog(t)

	ts := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	err := log.Log(Entry{
		Timestamp: ts,
		Type:      TypeInput,
		Summary:   "hello world",
		Room:      "!room:example.org",
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Type != TypeInput {
		t.Errorf("type: got %q, want %q", e.Type, TypeInput)
	}
	if e.Summary != "hello world" {
		t.Errorf("summary: got %q", e.Summary)
	}
	if e.Room != "!room:example.org" {
		t.Errorf("room: got %q", e.Room)
	}
	if !e.Timestamp.Equal(ts) {
		t.Errorf("timestamp: got %v, want %v", e.Timestamp, ts)
	}
}

func TestLog_AutoTimestamp(t *testing.T) {
	log, path := newTestLog(t)

	before := time.Now()
	if err := log.Log(Entry{Type: TypeReply, Summary: "auto-ts"}); err != nil {
		t.Fatal(err)
	}
	after := time.Now()

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry")
	}
	ts := entries[0].Timestamp
	if ts.Before(before) || ts.After(after) {
		t.Errorf("auto-timestamp %v not in [%v, %v]", ts, before, after)
	}
}

func TestLog_SkipsMalformedLines(t *testing.T) {
	log, path := newTestLog(t)

	if err := log.Log(Entry{Type: TypeReply, Summary: "good"}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("not json at all\n")
	f.Close()
	if err := log.Log(Entry{Type: TypeReply, Summary: "good2"}); err != nil {
		t.Fatal(err)
	}

	entries, err := log.readAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
}

func TestLog_MissingFileReturnsNil(t *testing.T) {
	log, _ := newTestLog(t)
	entries, err := log.readAll()
	if err != nil {
		t.Fatalf("readAll on missing file: %v", err)
	}
	if entries != nil {
		t.Errorf("expected nil entries for missing file")
	}
}

func TestLogInput_Truncates(t *testing.T) {
	log, _ := newTestLog(t)
	long := strings.Repeat("é", 300)
	if err := log.LogInput("!r", "$e", "@alice", long); err != nil {
		t.Fatal(err)
	}
	entries, _ := log.readAll()
	e := entries[0]
	if e.Type != TypeInput || e.Sender != "@alice" || e.EventID != "$e" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if got := len([]rune(e.Summary)); got != 203 {
		t.Errorf("summary runes: got %d, want 203", got)
	}
}

func TestLogExecuted(t *testing.T) {
	log, _ := newTestLog(t)
	if err := log.LogExecuted("!r", "$prop", "@bob", "✅ Flashcard created in Anki (note id: 7)", true); err != nil {
		t.Fatal(err)
	}
	entries, _ := log.readAll()
	e := entries[0]
	if e.Type != TypeExecuted {
		t.Errorf("type: %q", e.Type)
	}
	if e.Data["ok"] != true {
		t.Errorf("ok: %v", e.Data["ok"])
	}
	if e.EventID != "$prop" || e.Sender != "@bob" {
		t.Errorf("ids: %q/%q", e.EventID, e.Sender)
	}
}

func TestLogRedaction(t *testing.T) {
	log, _ := newTestLog(t)
	if err := log.LogRedaction("!r", "$orig", []string{"$a", "$b"}); err != nil {
		t.Fatal(err)
	}
	entries, _ := log.readAll()
	got, ok := entries[0].Data["redacted"].([]any)
	if !ok || len(got) != 2 {
		t.Errorf("redacted: %v", entries[0].Data["redacted"])
	}
}

func TestLogError(t *testing.T) {
	log, _ := newTestLog(t)
	if err := log.LogError("llm failed", os.ErrDeadlineExceeded, map[string]any{"room": "!r"}); err != nil {
		t.Fatal(err)
	}
	if err := log.LogError("failed", os.ErrPermission, nil); err != nil {
		t.Fatal(err)
	}
	entries, _ := log.readAll()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Data["error"] != os.ErrDeadlineExceeded.Error() {
		t.Errorf("error field: %v", entries[0].Data["error"])
	}
	if entries[0].Data["room"] != "!r" {
		t.Errorf("room field: %v", entries[0].Data["room"])
	}
}

func TestRecent(t *testing.T) {
	log, _ := newTestLog(t)
	for i := 0; i < 10; i++ {
		log.Log(Entry{Type: TypeReply, Summary: "entry"})
	}
	entries, err := log.Recent(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3, got %d", len(entries))
	}
	entries, _ = log.Recent(100)
	if len(entries) != 10 {
		t.Errorf("expected 10, got %d", len(entries))
	}
}

func TestByTypeAndRoom(t *testing.T) {
	log, _ := newTestLog(t)
	log.LogRoom("!a", "joined")
	log.LogProposal("!a", "$p1", "flashcard", "Capital of France?")
	log.LogProposal("!b", "$p2", "todo", "Buy milk")
	log.LogRoom("!b", "joined")

	props, _ := log.ByType(TypeProposal, 10)
	if len(props) != 2 || props[0].EventID != "$p2" {
		t.Errorf("ByType: %+v", props)
	}
	inA, _ := log.ForRoom("!a", 10)
	if len(inA) != 2 || inA[0].Type != TypeProposal {
		t.Errorf("ForRoom: %+v", inA)
	}
	limited, _ := log.ForRoom("!b", 1)
	if len(limited) != 1 || limited[0].Type != TypeRoom {
		t.Errorf("ForRoom limit: %+v", limited)
	}
}

func TestSearch(t *testing.T) {
	log, _ := newTestLog(t)
	log.LogSearch("!r", []string{"eiffel tower height"}, true)
	log.LogProposal("!r", "$p", "todo", "Buy milk")
	log.LogError("fetch failed", os.ErrNotExist, map[string]any{"url": "https://eiffel.example"})

	found, _ := log.Search("EIFFEL", 10)
	if len(found) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(found))
	}
	if found[0].Type != TypeError {
		t.Errorf("expected most recent first, got %q", found[0].Type)
	}
}

func TestConcurrentWrites(t *testing.T) {
	log, path := newTestLog(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.LogRoom("!r", "tick")
		}()
	}
	wg.Wait()
	if got := len(readEntries(t, path)); got != 20 {
		t.Errorf("expected 20 entries, got %d", got)
	}
}
