// Package activity keeps an append-only JSONL record of what the bot did.
package activity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Type identifies what kind of activity this is
type Type string

const (
	TypeInput     Type = "input"     // user message received live
	TypeReply     Type = "reply"     // LLM text answer sent
	TypeProposal  Type = "proposal"  // proposal message posted
	TypeExecuted  Type = "executed"  // proposal carried out
	TypeSearch    Type = "search"    // web search round finished
	TypeRedaction Type = "redaction" // bot replies withdrawn after an edit
	TypeRoom      Type = "room"      // joined or left a room
	TypeError     Type = "error"
)

// Entry represents a single activity log entry
type Entry struct {
	Timestamp time.Time      `json:"ts"`
	Type      Type           `json:"type"`
	Summary   string         `json:"summary"`
	Room      string         `json:"room,omitempty"`
	EventID   string         `json:"event_id,omitempty"`
	Sender    string         `json:"sender,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Log is the activity logger
type Log struct {
	path string
	mu   sync.Mutex
}

// New creates an activity logger writing to path
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the log file location
func (l *Log) Path() string { return l.path }

// Log appends an entry to the activity log
func (l *Log) Log(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// LogInput logs a user message
func (l *Log) LogInput(room, eventID, sender, content string) error {
	return l.Log(Entry{
		Type:    TypeInput,
		Summary: truncate(content, 200),
		Room:    room,
		EventID: eventID,
		Sender:  sender,
	})
}

// LogReply logs a text answer sent in response to a message
func (l *Log) LogReply(room, replyTo, eventID string, durationSec float64) error {
	return l.Log(Entry{
		Type:    TypeReply,
		Summary: "answered " + replyTo,
		Room:    room,
		EventID: eventID,
		Data: map[string]any{
			"reply_to":     replyTo,
			"duration_sec": durationSec,
		},
	})
}

// LogProposal logs a proposal message posted for approval
func (l *Log) LogProposal(room, eventID, kind, summary string) error {
	return l.Log(Entry{
		Type:    TypeProposal,
		Summary: truncate(summary, 200),
		Room:    room,
		EventID: eventID,
		Data:    map[string]any{"kind": kind},
	})
}

// LogExecuted logs the outcome of an approved proposal
func (l *Log) LogExecuted(room, proposalID, approvedBy, result string, ok bool) error {
	return l.Log(Entry{
		Type:    TypeExecuted,
		Summary: truncate(result, 200),
		Room:    room,
		EventID: proposalID,
		Sender:  approvedBy,
		Data:    map[string]any{"ok": ok},
	})
}

// LogSearch logs a finished web search round
func (l *Log) LogSearch(room string, queries []string, succeeded bool) error {
	return l.Log(Entry{
		Type:    TypeSearch,
		Summary: strings.Join(queries, "; "),
		Room:    room,
		Data:    map[string]any{"succeeded": succeeded},
	})
}

// LogRedaction logs bot replies withdrawn because the user edited a message
func (l *Log) LogRedaction(room, editedID string, redacted []string) error {
	return l.Log(Entry{
		Type:    TypeRedaction,
		Summary: "edit of " + editedID,
		Room:    room,
		EventID: editedID,
		Data:    map[string]any{"redacted": redacted},
	})
}

// LogRoom logs a membership change of the bot
func (l *Log) LogRoom(room, summary string) error {
	return l.Log(Entry{Type: TypeRoom, Summary: summary, Room: room})
}

// LogError logs an error
func (l *Log) LogError(summary string, err error, data map[string]any) error {
	if data == nil {
		data = make(map[string]any)
	}
	data["error"] = err.Error()
	return l.Log(Entry{
		Type:    TypeError,
		Summary: summary,
		Data:    data,
	})
}

// Recent returns the last n entries
func (l *Log) Recent(n int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	if n >= len(entries) {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}

// ByType returns up to limit entries of a type, most recent first
func (l *Log) ByType(t Type, limit int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	var result []Entry
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		if entries[i].Type == t {
			result = append(result, entries[i])
		}
	}
	return result, nil
}

// ForRoom returns up to limit entries for a room, most recent first
func (l *Log) ForRoom(room string, limit int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	var result []Entry
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		if entries[i].Room == room {
			result = append(result, entries[i])
		}
	}
	return result, nil
}

// Search searches summaries and data, most recent first
func (l *Log) Search(query string, limit int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var result []Entry
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := entries[i]
		if strings.Contains(strings.ToLower(e.Summary), query) {
			result = append(result, e)
			continue
		}
		if e.Data != nil {
			dataJSON, _ := json.Marshal(e.Data)
			if strings.Contains(strings.ToLower(string(dataJSON)), query) {
				result = append(result, e)
			}
		}
	}
	return result, nil
}

func (l *Log) readAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // skip malformed entries
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
