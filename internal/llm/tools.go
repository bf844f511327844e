package llm

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names exposed to the model
const (
	ToolCreateFlashcards = "create_flashcards"
	ToolCreateTodos      = "create_todos"
	ToolWebSearch        = "web_search"
)

var flashcardItem = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"card_type": map[string]any{
			"type":        "string",
			"enum":        []string{"basic", "cloze", "basic-reversed"},
			"description": "basic: front/back. cloze: front holds text with {{c1::...}} deletions. basic-reversed: card in both directions.",
		},
		"front": map[string]any{"type": "string", "description": "Front of the card (or the cloze text)"},
		"back":  map[string]any{"type": "string", "description": "Back of the card"},
		"deck":  map[string]any{"type": "string", "description": "Anki deck name", "default": "Default"},
		"tags": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Tags for the card",
		},
	},
	"required": []string{"card_type", "front", "back"},
}

var todoItem = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"content":    map[string]any{"type": "string", "description": "Task content"},
		"due_string": map[string]any{"type": "string", "description": "Natural language due date, e.g. 'tomorrow at 5pm'"},
		"priority": map[string]any{
			"type":        "integer",
			"minimum":     1,
			"maximum":     4,
			"default":     1,
			"description": "Priority from 1 (normal) to 4 (urgent)",
		},
		"labels": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Labels for the todo",
		},
		"project_name": map[string]any{"type": "string", "description": "Project to file the task under"},
	},
	"required": []string{"content"},
}

// Tools returns the three tools offered to the model
func Tools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(ToolCreateFlashcards,
			mcp.WithDescription("Create Anki flashcards for learning. IMPORTANT: If the user says 'a flashcard' or 'one flashcard', create exactly ONE. If they say 'flashcards' or 'N flashcards', create that exact number. Never create more than requested."),
			mcp.WithArray("flashcards",
				mcp.Required(),
				mcp.Description("Flashcards to create"),
				mcp.Items(flashcardItem),
			),
		),
		mcp.NewTool(ToolCreateTodos,
			mcp.WithDescription("Create Todoist tasks. IMPORTANT: If the user says 'a todo' or 'one task', create exactly ONE. If they say 'todos' or 'N tasks', create that exact number. Never create more than requested."),
			mcp.WithArray("todos",
				mcp.Required(),
				mcp.Description("Todos to create"),
				mcp.Items(todoItem),
			),
		),
		WebSearchTool(),
	}
}

// WebSearchTool is also served by the standalone MCP server
func WebSearchTool() mcp.Tool {
	return mcp.NewTool(ToolWebSearch,
		mcp.WithDescription("Search the web for current information using DuckDuckGo. Use this when you need up-to-date information, facts you are unsure about, or anything time-sensitive."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Number of results to fetch (1-10)"),
			mcp.Min(1),
			mcp.Max(10),
			mcp.DefaultNumber(5),
		),
	)
}

// schemaOf renders a tool's input schema as a plain JSON object
func schemaOf(tool mcp.Tool) map[string]any {
	data, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return map[string]any{"type": "object"}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		// mcp-go only knows "number"; the model should send whole counts
		if mr, ok := props["max_results"].(map[string]any); ok {
			mr["type"] = "integer"
		}
	}
	return schema
}

// openAITools is the function-calling format shared by OpenAI and Ollama
func openAITools() []map[string]any {
	var out []map[string]any
	for _, tool := range Tools() {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  schemaOf(tool),
			},
		})
	}
	return out
}

func anthropicTools() []map[string]any {
	var out []map[string]any
	for _, tool := range Tools() {
		out = append(out, map[string]any{
			"name":         tool.Name,
			"description":  tool.Description,
			"input_schema": schemaOf(tool),
		})
	}
	return out
}
