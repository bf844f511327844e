package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vthunder/toolbot/internal/activity"
	"github.com/vthunder/toolbot/internal/cache"
	"github.com/vthunder/toolbot/internal/conversation"
	"github.com/vthunder/toolbot/internal/integrations/anki"
	"github.com/vthunder/toolbot/internal/llm"
	"github.com/vthunder/toolbot/internal/logging"
	"github.com/vthunder/toolbot/internal/proposal"
	"github.com/vthunder/toolbot/internal/search"
	"github.com/vthunder/toolbot/internal/transport"
)

const deckSampleKey = "deck-samples"

// respond asks the model about the thread ending at contextID and posts
// the answer and any proposals as replies to replyTo
func (b *Bot) respond(ctx context.Context, tree *conversation.Tree, contextID, replyTo string, ts int64) {
	start := time.Now()
	history := historyFrom(tree.ThreadContext(contextID, contextDepth))
	logging.Debug("bot", "responding to %s with %d context messages", contextID, len(history))

	lctx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.LLM)
	resp, err := b.deps.Engine.Process(lctx, b.systemPrompt(tree.RoomID()), history, true)
	cancel()
	b.deps.Metrics.LLMRequest("chat", time.Since(start), err)
	if err != nil {
		logging.With("bot", "room", tree.RoomID(), "event", contextID).Errorf("model call failed: %v", err)
		b.logActivity(func(l *activity.Log) error {
			return l.LogError("model call failed", err, map[string]any{"room": tree.RoomID(), "event": contextID})
		})
		b.reply(ctx, tree, replyTo, fmt.Sprintf("❌ Error: %v", err), ts)
		return
	}

	if text := strings.TrimSpace(resp.Text); text != "" {
		if id, ok := b.reply(ctx, tree, replyTo, text, ts); ok {
			b.logActivity(func(l *activity.Log) error {
				return l.LogReply(tree.RoomID(), replyTo, id, time.Since(start).Seconds())
			})
		}
	}
	if len(resp.ToolCalls) > 0 {
		b.handleToolCalls(ctx, tree, replyTo, resp.ToolCalls, ts)
	}
}

func historyFrom(nodes []*conversation.MessageNode) []llm.Message {
	history := make([]llm.Message, 0, len(nodes))
	for _, n := range nodes {
		role := llm.RoleUser
		if n.IsBotMessage {
			role = llm.RoleAssistant
		}
		history = append(history, llm.Message{Role: role, Content: n.Content})
	}
	return history
}

// reply sends body in response to replyTo and records it as a bot node.
// ok is false when the send failed.
func (b *Bot) reply(ctx context.Context, tree *conversation.Tree, replyTo, body string, ts int64) (string, bool) {
	sctx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.Transport)
	id, err := b.deps.Transport.Send(sctx, tree.RoomID(), body, transport.Relation{ReplyTo: replyTo})
	cancel()
	if err != nil {
		logging.With("bot", "room", tree.RoomID(), "event", replyTo).Errorf("failed to send reply: %v", err)
		return "", false
	}
	tree.AddMessage(conversation.MessageInput{
		EventID:      id,
		Sender:       b.self(),
		Content:      body,
		Timestamp:    replyTime(ts),
		ReplyTo:      replyTo,
		IsBotMessage: true,
	})
	return id, true
}

// replyTime keeps bot nodes ordered after their trigger
func replyTime(ts int64) int64 {
	now := time.Now().UnixMilli()
	if now <= ts {
		return ts + 1
	}
	return now
}

func (b *Bot) handleToolCalls(ctx context.Context, tree *conversation.Tree, replyTo string, calls []llm.ToolCall, ts int64) {
	var queries []search.Query
	for _, call := range calls {
		logging.Info("bot", "tool call %s", call.Name)
		switch call.Name {
		case llm.ToolCreateFlashcards:
			cards, err := proposal.FlashcardsFromArgs(call.Arguments)
			if err != nil {
				b.reply(ctx, tree, replyTo, fmt.Sprintf("❌ Error: %v", err), ts)
				continue
			}
			b.proposeFlashcards(ctx, tree, replyTo, cards, ts)
		case llm.ToolCreateTodos:
			todos, err := proposal.TodosFromArgs(call.Arguments)
			if err != nil {
				b.reply(ctx, tree, replyTo, fmt.Sprintf("❌ Error: %v", err), ts)
				continue
			}
			for _, td := range todos {
				b.propose(ctx, tree, replyTo, td, ts)
			}
		case llm.ToolWebSearch:
			if q, ok := queryFrom(call.Arguments); ok {
				queries = append(queries, q)
			}
		default:
			logging.Warn("bot", "model requested unknown tool %q", call.Name)
		}
	}
	if len(queries) > 0 {
		b.webSearch(ctx, tree, replyTo, queries, ts)
	}
}

func (b *Bot) proposeFlashcards(ctx context.Context, tree *conversation.Tree, replyTo string, cards []*proposal.Flashcard, ts int64) {
	samples := b.deckSamples(ctx)
	for _, fc := range cards {
		start := time.Now()
		rctx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.LLM)
		choice, err := b.deps.Router.ChooseDeck(rctx, fc, samples)
		cancel()
		b.deps.Metrics.LLMRequest("deck_routing", time.Since(start), err)
		if err != nil {
			logging.Warn("bot", "deck routing failed for %q: %v", logging.Truncate(fc.Front, 40), err)
			b.reply(ctx, tree, replyTo, fmt.Sprintf("❌ Failed to choose deck for flashcard via LLM.\nFront: %s\nBack: %s\nError: %v",
				fc.Front, fc.Back, err), ts)
			continue
		}
		fc.Deck = choice.Deck
		fc.DeckReason = choice.Reason
		logging.Debug("bot", "routed card to %s: %s", choice.Deck, choice.Reason)
		b.propose(ctx, tree, replyTo, fc, ts)
	}
}

// propose posts a rendered proposal and attaches it to the new bot node
func (b *Bot) propose(ctx context.Context, tree *conversation.Tree, replyTo string, p proposal.Proposal, ts int64) {
	id, ok := b.reply(ctx, tree, replyTo, proposal.Render(p), ts)
	if !ok {
		return
	}
	tree.SetProposal(id, p)
	b.deps.Metrics.Proposal(p.Kind())
	b.logActivity(func(l *activity.Log) error {
		return l.LogProposal(tree.RoomID(), id, p.Kind(), summarize(p))
	})
}

func summarize(p proposal.Proposal) string {
	switch v := p.(type) {
	case *proposal.Flashcard:
		return fmt.Sprintf("%s -> %s", v.Front, v.Deck)
	case *proposal.Todo:
		return v.Content
	}
	return ""
}

// deckSamples returns a few cards from each namespaced deck. Failures give
// an empty map so routing can still pick a deck by name.
func (b *Bot) deckSamples(ctx context.Context) map[string][]anki.Card {
	if b.deps.Decks == nil {
		return map[string][]anki.Card{}
	}
	if b.deps.SampleCache != nil {
		if samples, ok := cache.GetJSON[map[string][]anki.Card](ctx, b.deps.SampleCache, deckSampleKey); ok {
			return samples
		}
	}

	dctx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.Backend)
	defer cancel()
	decks, err := b.deps.Decks.DeckNames(dctx)
	if err != nil {
		logging.Warn("bot", "failed to list decks: %v", err)
		return map[string][]anki.Card{}
	}

	samples := make(map[string][]anki.Card)
	for _, deck := range decks {
		if !anki.InNamespace(b.cfg.DeckNamespace, deck) {
			continue
		}
		cards, err := b.deps.Decks.SampleCards(dctx, deck, deckSamples)
		if err != nil {
			logging.Warn("bot", "failed to sample %s: %v", deck, err)
			return map[string][]anki.Card{}
		}
		samples[deck] = cards
	}

	if b.deps.SampleCache != nil {
		cache.SetJSON(ctx, b.deps.SampleCache, deckSampleKey, samples)
	}
	return samples
}

func queryFrom(args map[string]any) (search.Query, bool) {
	q, _ := args["query"].(string)
	q = strings.TrimSpace(q)
	if q == "" {
		return search.Query{}, false
	}
	query := search.Query{Query: q}
	switch n := args["max_results"].(type) {
	case float64:
		query.MaxResults = int(n)
	case int:
		query.MaxResults = n
	case int64:
		query.MaxResults = int(n)
	}
	return query, true
}

func searchProgress(queries []search.Query) string {
	if len(queries) == 1 {
		return fmt.Sprintf("🔍 Searching the web for: **%s**\n\nFetching and analyzing results...", queries[0].Query)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔍 Searching the web for %d queries:\n", len(queries))
	for i, q := range queries {
		fmt.Fprintf(&sb, "  %d. **%s**\n", i+1, q.Query)
	}
	sb.WriteString("\nFetching and analyzing results...")
	return sb.String()
}

// webSearch posts a progress message, runs every query, and answers from
// the fetched pages as a reply to the progress message
func (b *Bot) webSearch(ctx context.Context, tree *conversation.Tree, replyTo string, queries []search.Query, ts int64) {
	target := replyTo
	if id, ok := b.reply(ctx, tree, replyTo, searchProgress(queries), ts); ok {
		target = id
	}

	sctx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.Search+b.cfg.Timeouts.Fetch)
	results := b.deps.Search.Execute(sctx, queries)
	cancel()

	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Query)
		b.deps.Metrics.SearchQuery(string(r.Status))
	}
	ok := search.AnySucceeded(results)
	b.logActivity(func(l *activity.Log) error { return l.LogSearch(tree.RoomID(), names, ok) })

	if !ok {
		b.reply(ctx, tree, target, "❌ All web searches failed or returned no usable results.", ts)
		return
	}

	prompt, sources := search.BuildExtractionPrompt(results)
	start := time.Now()
	lctx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.LLM)
	resp, err := b.deps.Engine.Process(lctx, search.ExtractionSystemPrompt, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	}, false)
	cancel()
	b.deps.Metrics.LLMRequest("search_extraction", time.Since(start), err)
	if err != nil {
		logging.Error("bot", "search extraction failed: %v", err)
		b.reply(ctx, tree, target, fmt.Sprintf("❌ Failed to process search results: %v", err), ts)
		return
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		text = "Could not extract information from the search results."
	}
	b.reply(ctx, tree, target, search.FormatResults(text, sources), ts)
}
