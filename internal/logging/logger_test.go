package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"line one\nline two", 100, "line one line two"},
		{"abcdefghij", 4, "abcd..."},
		{"  padded  ", 10, "padded"},
		{"Tour Eiffel à Paris", 13, "Tour Eiffel à..."},
		{"🗼🥐🍷🧀", 2, "🗼🥐..."},
		{"日本語のテキスト", 3, "日本語..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestInfoUsesSubsystemName(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	Info("bot", "joined %s", "!room:example.org")
	With("bot", "room", "!r").Warnf("careful")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].LoggerName != "bot" {
		t.Errorf("logger name = %q, want bot", entries[0].LoggerName)
	}
	if entries[0].Message != "joined !room:example.org" {
		t.Errorf("message = %q", entries[0].Message)
	}
	if entries[1].ContextMap()["room"] != "!r" {
		t.Errorf("missing room field: %v", entries[1].ContextMap())
	}
}
