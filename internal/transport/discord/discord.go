// Package discord exposes Discord channels as bot rooms.
package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/vthunder/toolbot/internal/logging"
	"github.com/vthunder/toolbot/internal/transport"
)

// Config holds Discord connection settings
type Config struct {
	Token string
	// Channels limits the bot to these channel ids. Empty means every
	// text channel the bot can see.
	Channels []string
}

// Client is the Discord transport. Channels are rooms and messages are
// events; edits keep the message id, so an edit is reported as a new event
// whose Replaces points at the original.
type Client struct {
	session  *discordgo.Session
	cfg      Config
	allowed  map[string]bool
	botID    string
	events   chan transport.Event
	done     chan struct{}
	mu       sync.Mutex
	editSeq  map[string]int
	syncOnce sync.Once
}

// New creates a Discord session and registers handlers
func New(cfg Config) (*Client, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	c := &Client{
		session: session,
		cfg:     cfg,
		allowed: make(map[string]bool),
		events:  make(chan transport.Event, 256),
		done:    make(chan struct{}),
		editSeq: make(map[string]int),
	}
	for _, ch := range cfg.Channels {
		c.allowed[ch] = true
	}

	session.AddHandler(c.onReady)
	session.AddHandler(c.onMessageCreate)
	session.AddHandler(c.onMessageUpdate)
	session.AddHandler(c.onMessageDelete)
	session.AddHandler(c.onReactionAdd)
	session.AddHandler(c.onChannelUpdate)

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessageReactions |
		discordgo.IntentsMessageContent

	return c, nil
}

// Run connects and blocks until ctx is cancelled
func (c *Client) Run(ctx context.Context) error {
	defer close(c.done)
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	logging.Info("discord", "connected as %s", c.UserID())

	<-ctx.Done()
	return c.session.Close()
}

func (c *Client) Events() <-chan transport.Event { return c.events }

// UserID is the bot's own user id, known once the gateway is ready
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.botID
}

func (c *Client) emit(e transport.Event) {
	select {
	case c.events <- e:
	case <-c.done:
	}
}

func (c *Client) watching(channelID string) bool {
	return len(c.allowed) == 0 || c.allowed[channelID]
}

func (c *Client) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		c.mu.Lock()
		c.botID = r.User.ID
		c.mu.Unlock()
	}
	c.syncOnce.Do(func() {
		c.emit(transport.Event{Kind: transport.KindSyncCompleted})
	})
}

func (c *Client) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if !c.watching(m.ChannelID) {
		return
	}
	if e, ok := messageEvent(m.Message); ok {
		c.emit(e)
	}
}

func (c *Client) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	if !c.watching(m.ChannelID) || m.Author == nil || m.EditedTimestamp == nil {
		return
	}
	e, ok := messageEvent(m.Message)
	if !ok {
		return
	}
	c.mu.Lock()
	c.editSeq[m.ID]++
	seq := c.editSeq[m.ID]
	c.mu.Unlock()

	e.EventID = fmt.Sprintf("%s.edit%d", m.ID, seq)
	e.Timestamp = m.EditedTimestamp.UnixMilli()
	e.Relation = transport.Relation{Replaces: m.ID}
	c.emit(e)
}

func (c *Client) onMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	if !c.watching(m.ChannelID) {
		return
	}
	c.emit(transport.Event{
		Kind:    transport.KindRedaction,
		RoomID:  m.ChannelID,
		Redacts: m.ID,
	})
}

func (c *Client) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if !c.watching(r.ChannelID) {
		return
	}
	c.emit(transport.Event{
		Kind:     transport.KindReaction,
		RoomID:   r.ChannelID,
		Sender:   r.UserID,
		ReactsTo: r.MessageID,
		Key:      r.Emoji.Name,
	})
}

func (c *Client) onChannelUpdate(_ *discordgo.Session, ch *discordgo.ChannelUpdate) {
	if !c.watching(ch.ID) {
		return
	}
	c.emit(transport.Event{
		Kind:   transport.KindTopic,
		RoomID: ch.ID,
		Topic:  ch.Topic,
	})
}

// messageEvent converts a Discord message. Voice notes and other audio
// attachments become audio events.
func messageEvent(m *discordgo.Message) (transport.Event, bool) {
	if m == nil || m.Author == nil {
		return transport.Event{}, false
	}
	e := transport.Event{
		Kind:      transport.KindText,
		RoomID:    m.ChannelID,
		EventID:   m.ID,
		Sender:    m.Author.ID,
		Timestamp: m.Timestamp.UnixMilli(),
		Body:      m.Content,
	}
	if m.MessageReference != nil && m.MessageReference.MessageID != "" {
		e.Relation.ReplyTo = m.MessageReference.MessageID
	}
	for _, a := range m.Attachments {
		if strings.HasPrefix(a.ContentType, "audio/") {
			e.Kind = transport.KindAudio
			e.MediaRef = a.URL
			e.MimeType = a.ContentType
			e.Filename = a.Filename
			break
		}
	}
	if e.Kind == transport.KindText && strings.TrimSpace(e.Body) == "" {
		return transport.Event{}, false
	}
	return e, true
}

func (c *Client) Send(ctx context.Context, roomID, body string, rel transport.Relation) (string, error) {
	msg := &discordgo.MessageSend{Content: body}
	if ref := rel.ReplyTo; ref != "" {
		msg.Reference = &discordgo.MessageReference{MessageID: ref, ChannelID: roomID}
	}
	sent, err := c.session.ChannelMessageSendComplex(roomID, msg, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError(err)
	}
	return sent.ID, nil
}

// Redact deletes the message; Discord keeps no reason
func (c *Client) Redact(ctx context.Context, roomID, eventID, _ string) error {
	// edits are not separate messages on Discord
	if strings.Contains(eventID, ".edit") {
		return nil
	}
	return mapError(c.session.ChannelMessageDelete(roomID, eventID, discordgo.WithContext(ctx)))
}

// Join is a no-op: a bot sees every channel its guild role allows
func (c *Client) Join(context.Context, string) error { return nil }

func (c *Client) Leave(context.Context, string) error { return transport.ErrUnsupported }

func (c *Client) SetRoomTopic(ctx context.Context, roomID, topic string) error {
	_, err := c.session.ChannelEdit(roomID, &discordgo.ChannelEdit{Topic: topic}, discordgo.WithContext(ctx))
	return mapError(err)
}

func (c *Client) RoomTopic(ctx context.Context, roomID string) (string, error) {
	ch, err := c.session.Channel(roomID, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError(err)
	}
	return ch.Topic, nil
}

func (c *Client) Members(context.Context, string) ([]string, error) {
	return nil, transport.ErrUnsupported
}

// JoinedRooms lists the configured channels, or every text channel in the
// session state when none are configured
func (c *Client) JoinedRooms(context.Context) ([]string, error) {
	if len(c.cfg.Channels) > 0 {
		return append([]string(nil), c.cfg.Channels...), nil
	}
	var rooms []string
	for _, g := range c.session.State.Guilds {
		for _, ch := range g.Channels {
			if ch.Type == discordgo.ChannelTypeGuildText {
				rooms = append(rooms, ch.ID)
			}
		}
	}
	return rooms, nil
}

func (c *Client) Download(ctx context.Context, mediaRef string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaRef, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.session.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed (%d)", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 25<<20))
}

// RoomHistory pages backwards in batches of 100 and returns oldest first
func (c *Client) RoomHistory(ctx context.Context, roomID string, limit int) ([]transport.Event, error) {
	var (
		collected []transport.Event
		before    string
	)
	for len(collected) < limit {
		batch := min(limit-len(collected), 100)
		msgs, err := c.session.ChannelMessages(roomID, batch, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapError(err)
		}
		for _, m := range msgs {
			if e, ok := messageEvent(m); ok {
				collected = append(collected, e)
			}
		}
		if len(msgs) < batch {
			break
		}
		before = msgs[len(msgs)-1].ID
	}
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}

// MarkRead is a no-op; bots have no read state on Discord
func (c *Client) MarkRead(context.Context, string, string) error { return nil }

func mapError(err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %v", transport.ErrForbidden, err)
	}
	return err
}
