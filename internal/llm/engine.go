// Package llm hides model vendors behind one tool-calling contract.
package llm

import (
	"context"
	"errors"
	"time"
)

// Role of a history entry
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of chat history
type Message struct {
	Role    Role
	Content string
}

// ToolCall is a structured action requested by the model
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Response carries whatever the model produced in one turn. Text and tool
// calls may both be present.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Engine turns a system prompt and history into text and tool calls.
// With enableTools false no tools are offered to the model.
type Engine interface {
	Process(ctx context.Context, system string, history []Message, enableTools bool) (Response, error)
}

// ErrNoAPIKey is returned by adapters constructed without credentials
var ErrNoAPIKey = errors.New("API key not configured")

const defaultTimeout = 120 * time.Second

// withDeadline applies timeout when ctx has no deadline of its own
func withDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// mergeTurns joins consecutive messages with the same role. Some vendors
// reject two user turns in a row.
func mergeTurns(history []Message) []Message {
	var out []Message
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}
