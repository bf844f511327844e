// Package matrix connects the bot to a Matrix homeserver.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/vthunder/toolbot/internal/logging"
	"github.com/vthunder/toolbot/internal/transport"
)

// Config holds Matrix connection settings
type Config struct {
	Homeserver  string
	UserID      string
	Password    string
	AccessToken string
	Timeout     time.Duration
}

// Client is the Matrix transport
type Client struct {
	cli    *mautrix.Client
	cfg    Config
	events chan transport.Event

	// initial is set while the first sync response is being dispatched
	initial atomic.Bool
	synced  atomic.Bool
}

// New logs in (or reuses an access token) and registers sync handlers
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cli, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}

	if cfg.AccessToken == "" {
		_, err := cli.Login(ctx, &mautrix.ReqLogin{
			Type: mautrix.AuthTypePassword,
			Identifier: mautrix.UserIdentifier{
				Type: mautrix.IdentifierTypeUser,
				User: cfg.UserID,
			},
			Password:                 cfg.Password,
			InitialDeviceDisplayName: "toolbot",
			StoreCredentials:         true,
		})
		if err != nil {
			return nil, fmt.Errorf("matrix login: %w", err)
		}
	}

	c := &Client{
		cli:    cli,
		cfg:    cfg,
		events: make(chan transport.Event, 256),
	}

	syncer, ok := cli.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return nil, errors.New("unexpected Matrix syncer type")
	}
	for _, t := range []event.Type{
		event.EventMessage,
		event.EventReaction,
		event.EventRedaction,
		event.StateMember,
		event.StateTopic,
	} {
		syncer.OnEventType(t, c.onEvent)
	}
	cli.Syncer = &replaySyncer{DefaultSyncer: syncer, c: c}

	logging.Info("matrix", "logged in as %s on %s", cli.UserID, cfg.Homeserver)
	return c, nil
}

// Run syncs until ctx is cancelled, then closes the event channel
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)
	err := c.cli.SyncWithContext(ctx)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// Events delivers incoming events in sync order
func (c *Client) Events() <-chan transport.Event { return c.events }

// UserID is the bot's own user id
func (c *Client) UserID() string { return c.cli.UserID.String() }

func (c *Client) onEvent(ctx context.Context, evt *event.Event) {
	out, ok := convert(evt, c.cli.UserID)
	if !ok {
		return
	}
	// The first sync returns old timeline events. The bot replays those
	// from room history once sync_completed arrives, so only pending
	// invites are passed through.
	if c.initial.Load() && out.Kind != transport.KindInvite {
		return
	}
	select {
	case c.events <- out:
	case <-ctx.Done():
	}
}

// replaySyncer announces sync_completed after the first response has been
// fully dispatched. Sync listeners on DefaultSyncer run before dispatch.
type replaySyncer struct {
	*mautrix.DefaultSyncer
	c *Client
}

func (s *replaySyncer) ProcessResponse(ctx context.Context, resp *mautrix.RespSync, since string) error {
	first := !s.c.synced.Load()
	s.c.initial.Store(first)
	err := s.DefaultSyncer.ProcessResponse(ctx, resp, since)
	s.c.initial.Store(false)
	if err != nil || !first {
		return err
	}

	s.c.synced.Store(true)
	select {
	case s.c.events <- transport.Event{Kind: transport.KindSyncCompleted}:
	case <-ctx.Done():
	}
	return nil
}

func (c *Client) Send(ctx context.Context, roomID, body string, rel transport.Relation) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.cli.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, messageContent(body, rel))
	if err != nil {
		return "", mapError(err)
	}
	return resp.EventID.String(), nil
}

func (c *Client) Redact(ctx context.Context, roomID, eventID, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	_, err := c.cli.RedactEvent(ctx, id.RoomID(roomID), id.EventID(eventID), mautrix.ReqRedact{Reason: reason})
	return mapError(err)
}

func (c *Client) Join(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	_, err := c.cli.JoinRoomByID(ctx, id.RoomID(roomID))
	return mapError(err)
}

func (c *Client) Leave(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	_, err := c.cli.LeaveRoom(ctx, id.RoomID(roomID))
	return mapError(err)
}

func (c *Client) SetRoomTopic(ctx context.Context, roomID, topic string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	_, err := c.cli.SendStateEvent(ctx, id.RoomID(roomID), event.StateTopic, "", &event.TopicEventContent{Topic: topic})
	return mapError(err)
}

// RoomTopic returns "" when the room has no topic
func (c *Client) RoomTopic(ctx context.Context, roomID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var content event.TopicEventContent
	err := c.cli.StateEvent(ctx, id.RoomID(roomID), event.StateTopic, "", &content)
	if errors.Is(err, mautrix.MNotFound) {
		return "", nil
	}
	if err != nil {
		return "", mapError(err)
	}
	return content.Topic, nil
}

func (c *Client) Members(ctx context.Context, roomID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.cli.JoinedMembers(ctx, id.RoomID(roomID))
	if err != nil {
		return nil, mapError(err)
	}
	members := make([]string, 0, len(resp.Joined))
	for user := range resp.Joined {
		members = append(members, user.String())
	}
	return members, nil
}

func (c *Client) JoinedRooms(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.cli.JoinedRooms(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	rooms := make([]string, 0, len(resp.JoinedRooms))
	for _, r := range resp.JoinedRooms {
		rooms = append(rooms, r.String())
	}
	return rooms, nil
}

func (c *Client) Download(ctx context.Context, mediaRef string) ([]byte, error) {
	uri, err := id.ParseContentURI(mediaRef)
	if err != nil {
		return nil, fmt.Errorf("bad media reference %q: %w", mediaRef, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	data, err := c.cli.DownloadBytes(ctx, uri)
	if err != nil {
		return nil, mapError(err)
	}
	return data, nil
}

// RoomHistory pages backwards until limit events are collected and returns
// them oldest first
func (c *Client) RoomHistory(ctx context.Context, roomID string, limit int) ([]transport.Event, error) {
	var (
		collected []transport.Event
		from      string
	)
	for len(collected) < limit {
		pageCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		page := min(limit-len(collected), 1000)
		resp, err := c.cli.Messages(pageCtx, id.RoomID(roomID), from, "", mautrix.DirectionBackward, nil, page)
		cancel()
		if err != nil {
			return nil, mapError(err)
		}
		for _, evt := range resp.Chunk {
			evt.RoomID = id.RoomID(roomID)
			if out, ok := convert(evt, c.cli.UserID); ok {
				collected = append(collected, out)
			}
		}
		if resp.End == "" || len(resp.Chunk) == 0 {
			break
		}
		from = resp.End
	}

	// pages arrive newest first
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}

func (c *Client) MarkRead(ctx context.Context, roomID, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	return mapError(c.cli.MarkRead(ctx, id.RoomID(roomID), id.EventID(eventID)))
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mautrix.MForbidden) {
		return fmt.Errorf("%w: %v", transport.ErrForbidden, err)
	}
	return err
}
