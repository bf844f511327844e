package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/vthunder/toolbot/internal/activity"
	"github.com/vthunder/toolbot/internal/conversation"
	"github.com/vthunder/toolbot/internal/executor"
	"github.com/vthunder/toolbot/internal/logging"
	"github.com/vthunder/toolbot/internal/proposal"
	"github.com/vthunder/toolbot/internal/transcribe"
	"github.com/vthunder/toolbot/internal/transport"
)

const topicPermissionNotice = "⚠️ I don't have permission to set the room topic/description.\n\n" +
	"The room topic is used as my system prompt. Please either:\n" +
	"1. Grant me permission to change the room topic, or\n" +
	"2. Set the room topic manually to customize my behavior for this room.\n\n" +
	"Until then, I'll use my default system prompt."

// accepts reports whether a message-like event should be answered
func (b *Bot) accepts(e transport.Event) bool {
	if e.Sender == b.self() {
		return false
	}
	if !b.cfg.IsAllowed(e.Sender) {
		logging.Debug("bot", "ignoring %s from unauthorized user %s", e.EventID, e.Sender)
		return false
	}
	if b.currentPhase() != Live {
		logging.Debug("bot", "skipping %s during history replay", e.EventID)
		return false
	}
	return true
}

func (b *Bot) onText(ctx context.Context, e transport.Event) {
	if !b.accepts(e) {
		return
	}
	logging.Info("bot", "message in %s from %s: %s", e.RoomID, e.Sender, logging.Truncate(e.Body, 80))
	b.logActivity(func(l *activity.Log) error { return l.LogInput(e.RoomID, e.EventID, e.Sender, e.Body) })
	b.markRead(ctx, e.RoomID, e.EventID)

	tree := b.trees.Tree(e.RoomID)

	if original := e.Relation.Replaces; original != "" {
		if tree.Has(e.EventID) && tree.HasBotResponse(e.EventID) {
			logging.Debug("bot", "edit %s already answered", e.EventID)
			return
		}
		logging.Info("bot", "edit of %s detected", original)
		in := inputFrom(e, e.Body)
		// edits carry no reply or thread relation of their own
		if prev, ok := tree.Get(original); ok && in.ReplyTo == "" && in.ThreadRoot == "" {
			in.ReplyTo = prev.ReplyTo
			in.ThreadRoot = prev.ThreadRoot
		}
		tree.AddMessage(in)
		b.withdrawReplies(ctx, tree, original, e.EventID)
		b.respond(ctx, tree, e.EventID, e.EventID, e.Timestamp)
		return
	}

	if !tree.Has(e.EventID) {
		tree.AddMessage(inputFrom(e, e.Body))
	}
	if tree.HasBotResponse(e.EventID) {
		logging.Debug("bot", "already answered %s", e.EventID)
		return
	}
	b.respond(ctx, tree, e.EventID, e.EventID, e.Timestamp)
}

// withdrawReplies redacts and forgets every bot message below an edited
// message or any of its earlier edits, so stale proposals can no longer be
// approved. The edit being answered keeps its own replies.
func (b *Bot) withdrawReplies(ctx context.Context, tree *conversation.Tree, original, edit string) {
	seen := make(map[string]bool)
	var redacted []string
	for _, target := range append([]string{original}, tree.EditsOf(original)...) {
		if target == edit {
			continue
		}
		for _, id := range tree.Descendants(target) {
			if seen[id] {
				continue
			}
			seen[id] = true
			node, ok := tree.Get(id)
			if !ok || !node.IsBotMessage {
				continue
			}
			if err := b.redact(ctx, tree.RoomID(), id, "Message edited"); err != nil {
				logging.With("bot", "room", tree.RoomID(), "event", id).Warnf("failed to redact: %v", err)
			}
			tree.RemoveMessage(id)
			redacted = append(redacted, id)
		}
	}
	if len(redacted) > 0 {
		b.deps.Metrics.Redactions(len(redacted))
		b.logActivity(func(l *activity.Log) error { return l.LogRedaction(tree.RoomID(), original, redacted) })
	}
}

func (b *Bot) onAudio(ctx context.Context, e transport.Event) {
	if !b.accepts(e) {
		return
	}
	logging.Info("bot", "audio message in %s from %s", e.RoomID, e.Sender)
	b.markRead(ctx, e.RoomID, e.EventID)

	tree := b.trees.Tree(e.RoomID)
	if tree.Has(e.EventID) && tree.HasBotResponse(e.EventID) {
		logging.Debug("bot", "audio %s already transcribed", e.EventID)
		return
	}
	log := logging.With("bot", "room", e.RoomID, "event", e.EventID)
	if b.deps.Transcriber == nil {
		b.reply(ctx, tree, e.EventID, "❌ Failed to transcribe audio", e.Timestamp)
		return
	}

	dlCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.Backend)
	data, err := b.deps.Transport.Download(dlCtx, e.MediaRef)
	cancel()
	if err != nil {
		log.Errorf("download %s: %v", e.MediaRef, err)
		b.reply(ctx, tree, e.EventID, fmt.Sprintf("❌ Error processing audio: %v", err), e.Timestamp)
		return
	}

	trCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.LLM)
	text, err := b.deps.Transcriber.Transcribe(trCtx, transcribe.Audio{Data: data, MimeType: e.MimeType, Filename: e.Filename})
	cancel()
	if err != nil {
		log.Errorf("transcription failed: %v", err)
		b.reply(ctx, tree, e.EventID, "❌ Failed to transcribe audio", e.Timestamp)
		return
	}

	content := fmt.Sprintf("[Audio: %s]", text)
	tree.AddMessage(inputFrom(e, content))
	b.logActivity(func(l *activity.Log) error { return l.LogInput(e.RoomID, e.EventID, e.Sender, content) })

	transcriptID, ok := b.reply(ctx, tree, e.EventID, "🎤 Transcript:\n"+text, e.Timestamp)
	if !ok {
		return
	}
	// context ends with the user's turn; answers thread under the transcript
	b.respond(ctx, tree, e.EventID, transcriptID, e.Timestamp)
}

func (b *Bot) onReaction(ctx context.Context, e transport.Event) {
	if e.Sender == b.self() || !b.cfg.IsAllowed(e.Sender) {
		return
	}
	tree := b.trees.Tree(e.RoomID)
	tree.AddReaction(e.ReactsTo, e.Key, e.Sender)

	if !IsThumbsUp(e.Key) || b.currentPhase() != Live {
		return
	}
	logging.Info("bot", "approval %q of %s from %s", e.Key, e.ReactsTo, e.Sender)

	node, ok := tree.Get(e.ReactsTo)
	if !ok {
		node, ok = tree.FindEditOf(e.ReactsTo)
	}
	if !ok {
		logging.Debug("bot", "thumbs up on unknown event %s", e.ReactsTo)
		return
	}
	if !node.IsBotMessage || node.ToolProposal == nil {
		logging.Debug("bot", "thumbs up on %s which carries no proposal", node.EventID)
		return
	}

	out := b.deps.Executor.ExecuteOnce(ctx, executor.Approval{
		ProposalID: node.EventID,
		RoomID:     e.RoomID,
		ApprovedBy: e.Sender,
	}, node.ToolProposal)
	if !out.Repeat {
		b.deps.Metrics.Execution(node.ToolProposal.Kind(), out.OK)
	}
	b.logActivity(func(l *activity.Log) error {
		return l.LogExecuted(e.RoomID, node.EventID, e.Sender, out.Text, out.OK)
	})
	b.reply(ctx, tree, node.EventID, out.Text, e.Timestamp)
}

func (b *Bot) onRedaction(ctx context.Context, e transport.Event) {
	tree := b.trees.Tree(e.RoomID)
	if !tree.Has(e.Redacts) {
		return
	}
	live := b.currentPhase() == Live

	descendants := tree.Descendants(e.Redacts)
	logging.Info("bot", "redaction of %s cascades to %d messages", e.Redacts, len(descendants))
	for _, id := range descendants {
		if live {
			if err := b.redact(ctx, e.RoomID, id, ""); err != nil {
				logging.Warn("bot", "failed to redact descendant %s: %v", id, err)
			}
		}
		tree.RemoveMessage(id)
	}
	if live {
		if err := b.redact(ctx, e.RoomID, e.Redacts, ""); err != nil {
			logging.Debug("bot", "redact %s: %v", e.Redacts, err)
		}
	}
	tree.RemoveMessage(e.Redacts)

	if live && len(descendants) > 0 {
		b.deps.Metrics.Redactions(len(descendants))
		b.logActivity(func(l *activity.Log) error { return l.LogRedaction(e.RoomID, e.Redacts, descendants) })
	}
}

func (b *Bot) onInvite(ctx context.Context, e transport.Event) {
	logging.Info("bot", "invited to %s by %s", e.RoomID, e.Sender)

	joinCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.Transport)
	err := b.deps.Transport.Join(joinCtx, e.RoomID)
	cancel()
	if err != nil {
		logging.With("bot", "room", e.RoomID, "inviter", e.Sender).Errorf("failed to join: %v", err)
		return
	}
	b.logActivity(func(l *activity.Log) error { return l.LogRoom(e.RoomID, "joined after invite from "+e.Sender) })

	b.loadHistory(ctx, e.RoomID)
	b.ensureTopic(ctx, e.RoomID)
}

// ensureTopic stores the default prompt as room topic when none is set
func (b *Bot) ensureTopic(ctx context.Context, roomID string) {
	tctx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.Transport)
	defer cancel()

	topic, err := b.deps.Transport.RoomTopic(tctx, roomID)
	if err == nil && topic != "" {
		b.topics[roomID] = topic
		return
	}

	err = b.deps.Transport.SetRoomTopic(tctx, roomID, b.cfg.SystemPrompt)
	if err == nil {
		b.topics[roomID] = b.cfg.SystemPrompt
		logging.Info("bot", "set default system prompt as topic of %s", roomID)
		return
	}
	logging.Warn("bot", "failed to set topic of %s: %v", roomID, err)
	if b.topicNotified[roomID] {
		return
	}
	b.topicNotified[roomID] = true
	if _, err := b.deps.Transport.Send(tctx, roomID, topicPermissionNotice, transport.Relation{}); err != nil {
		logging.Error("bot", "failed to notify %s about topic permission: %v", roomID, err)
	}
}

func (b *Bot) onMembership(ctx context.Context, e transport.Event) {
	if b.currentPhase() != Live {
		return
	}
	if e.Membership != transport.MembershipLeave && e.Membership != transport.MembershipBan {
		return
	}
	if e.Target == b.self() {
		return
	}

	mctx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.Transport)
	defer cancel()

	members, err := b.deps.Transport.Members(mctx, e.RoomID)
	if errors.Is(err, transport.ErrUnsupported) {
		return
	}
	if err != nil {
		logging.Error("bot", "error checking members of %s: %v", e.RoomID, err)
		return
	}
	for _, m := range members {
		if m != b.self() {
			return
		}
	}

	logging.Info("bot", "alone in %s, leaving", e.RoomID)
	if err := b.deps.Transport.Leave(mctx, e.RoomID); err != nil {
		logging.Error("bot", "failed to leave %s: %v", e.RoomID, err)
		return
	}
	b.logActivity(func(l *activity.Log) error { return l.LogRoom(e.RoomID, "left: no other members") })
}

func (b *Bot) onTopic(e transport.Event) {
	if prev, ok := b.topics[e.RoomID]; ok && prev != e.Topic {
		logging.Info("bot", "topic of %s changed: %s", e.RoomID, logging.Truncate(e.Topic, 100))
	}
	b.topics[e.RoomID] = e.Topic
}

func (b *Bot) onSyncCompleted(ctx context.Context) {
	if b.currentPhase() != Replaying {
		return
	}

	lctx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.Transport)
	rooms, err := b.deps.Transport.JoinedRooms(lctx)
	cancel()
	if err != nil {
		logging.Error("bot", "failed to list joined rooms: %v", err)
	}

	for _, room := range rooms {
		b.loadHistory(ctx, room)
		b.loadTopic(ctx, room)
	}
	for _, room := range rooms {
		b.answerPending(ctx, room)
	}

	b.phase.Store(int32(Live))
	logging.Info("bot", "history loaded for %d rooms, now live", len(rooms))
}

func (b *Bot) loadTopic(ctx context.Context, roomID string) {
	tctx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.Transport)
	defer cancel()
	topic, err := b.deps.Transport.RoomTopic(tctx, roomID)
	if err != nil {
		logging.Warn("bot", "failed to read topic of %s: %v", roomID, err)
		return
	}
	b.topics[roomID] = topic
}

// loadHistory replays a room's timeline into its tree, re-parsing
// proposals from bot messages and recording reactions
func (b *Bot) loadHistory(ctx context.Context, roomID string) {
	logging.Info("bot", "loading history for %s", roomID)
	hctx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.Transport*4)
	events, err := b.deps.Transport.RoomHistory(hctx, roomID, b.cfg.HistoryLimit)
	cancel()
	if err != nil {
		logging.Error("bot", "error loading history for %s: %v", roomID, err)
		return
	}

	tree := b.trees.Tree(roomID)
	self := b.self()
	proposals := 0
	for _, e := range events {
		switch e.Kind {
		case transport.KindText, transport.KindAudio:
			content := e.Body
			if e.Kind == transport.KindAudio {
				content = fmt.Sprintf("[Audio: %s]", e.Body)
			}
			in := inputFrom(e, content)
			in.IsBotMessage = e.Sender == self
			tree.AddMessage(in)
			if in.IsBotMessage {
				if p, ok := proposal.Parse(e.Body); ok {
					tree.SetProposal(e.EventID, p)
					proposals++
				}
			}
		case transport.KindReaction:
			if e.ReactsTo != "" && e.Key != "" {
				tree.AddReaction(e.ReactsTo, e.Key, e.Sender)
			}
		}
	}
	logging.Info("bot", "loaded %d events (%d proposals) for %s", len(events), proposals, roomID)
}

func (b *Bot) answerPending(ctx context.Context, roomID string) {
	tree := b.trees.Tree(roomID)
	pending := tree.PendingUserMessages()
	if len(pending) == 0 {
		return
	}
	logging.Info("bot", "answering %d pending messages in %s", len(pending), roomID)
	for _, node := range pending {
		if tree.HasBotResponse(node.EventID) {
			continue
		}
		if !b.cfg.IsAllowed(node.Sender) {
			continue
		}
		b.respond(ctx, tree, node.EventID, node.EventID, node.Timestamp)
	}
}

func (b *Bot) markRead(ctx context.Context, roomID, eventID string) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.Transport)
		defer cancel()
		if err := b.deps.Transport.MarkRead(ctx, roomID, eventID); err != nil {
			logging.Warn("bot", "failed to mark %s as read: %v", eventID, err)
		}
	}()
}

func (b *Bot) redact(ctx context.Context, roomID, eventID, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.Transport)
	defer cancel()
	return b.deps.Transport.Redact(ctx, roomID, eventID, reason)
}

func inputFrom(e transport.Event, content string) conversation.MessageInput {
	return conversation.MessageInput{
		EventID:    e.EventID,
		Sender:     e.Sender,
		Content:    content,
		Timestamp:  e.Timestamp,
		ReplyTo:    e.Relation.ReplyTo,
		ThreadRoot: e.Relation.ThreadRoot,
		Replaces:   e.Relation.Replaces,
	}
}
