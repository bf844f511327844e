// Package bot runs the event loop that turns chat events into model
// responses, proposals and executed actions.
package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/vthunder/toolbot/internal/activity"
	"github.com/vthunder/toolbot/internal/cache"
	"github.com/vthunder/toolbot/internal/config"
	"github.com/vthunder/toolbot/internal/conversation"
	"github.com/vthunder/toolbot/internal/deckrouter"
	"github.com/vthunder/toolbot/internal/executor"
	"github.com/vthunder/toolbot/internal/integrations/anki"
	"github.com/vthunder/toolbot/internal/llm"
	"github.com/vthunder/toolbot/internal/logging"
	"github.com/vthunder/toolbot/internal/metrics"
	"github.com/vthunder/toolbot/internal/proposal"
	"github.com/vthunder/toolbot/internal/search"
	"github.com/vthunder/toolbot/internal/transcribe"
	"github.com/vthunder/toolbot/internal/transport"
)

// Transport is the chat platform the bot lives on
type Transport interface {
	Events() <-chan transport.Event
	UserID() string
	Send(ctx context.Context, roomID, body string, rel transport.Relation) (string, error)
	Redact(ctx context.Context, roomID, eventID, reason string) error
	Join(ctx context.Context, roomID string) error
	Leave(ctx context.Context, roomID string) error
	SetRoomTopic(ctx context.Context, roomID, topic string) error
	RoomTopic(ctx context.Context, roomID string) (string, error)
	Members(ctx context.Context, roomID string) ([]string, error)
	JoinedRooms(ctx context.Context) ([]string, error)
	Download(ctx context.Context, mediaRef string) ([]byte, error)
	RoomHistory(ctx context.Context, roomID string, limit int) ([]transport.Event, error)
	MarkRead(ctx context.Context, roomID, eventID string) error
}

// DeckRouter files flashcards into decks
type DeckRouter interface {
	ChooseDeck(ctx context.Context, fc *proposal.Flashcard, samples map[string][]anki.Card) (deckrouter.Choice, error)
}

// Searcher runs web searches
type Searcher interface {
	Execute(ctx context.Context, queries []search.Query) []search.Result
}

// Executor carries out approved proposals
type Executor interface {
	ExecuteOnce(ctx context.Context, a executor.Approval, p proposal.Proposal) executor.Outcome
}

// DeckSource lists decks and sample cards for routing
type DeckSource interface {
	DeckNames(ctx context.Context) ([]string, error)
	SampleCards(ctx context.Context, deck string, n int) ([]anki.Card, error)
}

// Deps are the collaborators of the bot. Decks, SampleCache, Transcriber,
// Activity and Metrics are optional.
type Deps struct {
	Transport   Transport
	Engine      llm.Engine
	Router      DeckRouter
	Search      Searcher
	Executor    Executor
	Decks       DeckSource
	SampleCache cache.Store
	Transcriber transcribe.Transcriber
	Activity    *activity.Log
	Metrics     *metrics.Metrics
}

// Phase is the startup state of the bot
type Phase int32

const (
	// Replaying means history is still being loaded; only reactions and
	// invites are handled
	Replaying Phase = iota
	// Live means every event is handled
	Live
)

func (p Phase) String() string {
	if p == Live {
		return "live"
	}
	return "replaying"
}

const (
	contextDepth = 10
	deckSamples  = 10
)

// Bot owns one conversation tree per room and reacts to transport events
type Bot struct {
	cfg  config.Config
	deps Deps

	trees *conversation.Manager
	phase atomic.Int32

	// touched only by the event loop
	topics        map[string]string
	topicNotified map[string]bool
}

// New creates a bot in the Replaying phase
func New(cfg config.Config, deps Deps) *Bot {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = config.Defaults().HistoryLimit
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = config.DefaultSystemPrompt
	}
	if cfg.Timeouts == (config.Timeouts{}) {
		cfg.Timeouts = config.Defaults().Timeouts
	}
	return &Bot{
		cfg:           cfg,
		deps:          deps,
		trees:         conversation.NewManager(),
		topics:        make(map[string]string),
		topicNotified: make(map[string]bool),
	}
}

// Phase returns "replaying" or "live"
func (b *Bot) Phase() string { return b.currentPhase().String() }

// Rooms reports message counts per room
func (b *Bot) Rooms() []conversation.RoomStats { return b.trees.Stats() }

// Trees exposes the conversation trees
func (b *Bot) Trees() *conversation.Manager { return b.trees }

func (b *Bot) currentPhase() Phase { return Phase(b.phase.Load()) }

func (b *Bot) self() string { return b.deps.Transport.UserID() }

// Run handles events one at a time until ctx is done or the transport
// closes its event channel
func (b *Bot) Run(ctx context.Context) error {
	events := b.deps.Transport.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				logging.Info("bot", "transport closed its event stream")
				return nil
			}
			b.dispatch(ctx, e)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, e transport.Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("bot", "panic handling %s event %s in %s: %v\n%s", e.Kind, e.EventID, e.RoomID, r, debug.Stack())
			b.logActivity(func(l *activity.Log) error {
				return l.LogError("handler panic", fmt.Errorf("%v", r), map[string]any{"room": e.RoomID, "event": e.EventID})
			})
		}
	}()

	b.deps.Metrics.Event(string(e.Kind), b.Phase())

	switch e.Kind {
	case transport.KindSyncCompleted:
		b.onSyncCompleted(ctx)
	case transport.KindText:
		b.onText(ctx, e)
	case transport.KindAudio:
		b.onAudio(ctx, e)
	case transport.KindReaction:
		b.onReaction(ctx, e)
	case transport.KindRedaction:
		b.onRedaction(ctx, e)
	case transport.KindInvite:
		b.onInvite(ctx, e)
	case transport.KindMembership:
		b.onMembership(ctx, e)
	case transport.KindTopic:
		b.onTopic(e)
	default:
		logging.Debug("bot", "ignoring %s event", e.Kind)
	}
}

func (b *Bot) logActivity(fn func(l *activity.Log) error) {
	if b.deps.Activity == nil {
		return
	}
	if err := fn(b.deps.Activity); err != nil {
		logging.Warn("bot", "activity log: %v", err)
	}
}

func (b *Bot) systemPrompt(roomID string) string {
	if topic := b.topics[roomID]; topic != "" {
		return topic
	}
	return b.cfg.SystemPrompt
}
