// toolbot-mcp serves the bot's web search over MCP on stdio, so other
// agents can use the same DuckDuckGo search and page extraction.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/toolbot/internal/config"
	"github.com/vthunder/toolbot/internal/llm"
	"github.com/vthunder/toolbot/internal/logging"
	"github.com/vthunder/toolbot/internal/search"
)

func main() {
	// Load .env file if present (don't error if missing)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	// zap writes to stderr, so stdout stays clean for JSON-RPC
	if err := logging.Init(cfg.Debug); err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	orch := search.NewOrchestrator(search.NewDuckDuckGo(""), search.NewHTTPFetcher(cfg.Timeouts.Fetch), cfg.Timeouts.Search)

	s := server.NewMCPServer(
		"toolbot-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.AddTool(llm.WebSearchTool(), webSearchHandler(orch))

	logging.Info("mcp", "serving web_search on stdio")
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

type searcher interface {
	Execute(ctx context.Context, queries []search.Query) []search.Result
}

func webSearchHandler(orch searcher) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		query, _ := args["query"].(string)
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		q := search.Query{Query: query}
		if n, ok := args["max_results"].(float64); ok {
			q.MaxResults = int(n)
		}

		logging.Info("mcp", "web_search: %s", logging.Truncate(query, 80))
		results := orch.Execute(ctx, []search.Query{q})
		if !search.AnySucceeded(results) {
			msg := "no usable results"
			if len(results) > 0 && results[0].Message != "" {
				msg = results[0].Message
			}
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %s", msg)), nil
		}

		out, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}
