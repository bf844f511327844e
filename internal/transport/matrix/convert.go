package matrix

import (
	"errors"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/vthunder/toolbot/internal/transport"
)

// convert maps a mautrix event to a transport event. It reports false for
// events the bot does not care about.
func convert(evt *event.Event, self id.UserID) (transport.Event, bool) {
	// events from /messages arrive without a type class
	if evt.Type.Class == event.UnknownEventType {
		evt.Type.Class = evt.Type.GuessClass()
	}
	if err := evt.Content.ParseRaw(evt.Type); err != nil && !errors.Is(err, event.ErrContentAlreadyParsed) {
		return transport.Event{}, false
	}

	out := transport.Event{
		RoomID:    evt.RoomID.String(),
		EventID:   evt.ID.String(),
		Sender:    evt.Sender.String(),
		Timestamp: evt.Timestamp,
	}

	switch evt.Type.Type {
	case event.EventMessage.Type:
		msg := evt.Content.AsMessage()
		out.Relation = relation(msg.RelatesTo)
		body := msg.Body
		if out.Relation.Replaces != "" && msg.NewContent != nil {
			body = msg.NewContent.Body
		}
		out.Body = body

		switch msg.MsgType {
		case event.MsgText, event.MsgNotice, event.MsgEmote:
			out.Kind = transport.KindText
		case event.MsgAudio:
			out.Kind = transport.KindAudio
			out.MediaRef = string(msg.URL)
			out.Filename = msg.FileName
			if out.Filename == "" {
				out.Filename = msg.Body
			}
			if msg.Info != nil {
				out.MimeType = msg.Info.MimeType
			}
		default:
			return transport.Event{}, false
		}

	case event.EventReaction.Type:
		rel := evt.Content.AsReaction().RelatesTo
		if rel.Type != event.RelAnnotation {
			return transport.Event{}, false
		}
		out.Kind = transport.KindReaction
		out.ReactsTo = rel.EventID.String()
		out.Key = rel.Key

	case event.EventRedaction.Type:
		out.Kind = transport.KindRedaction
		out.Redacts = evt.Redacts.String()
		if out.Redacts == "" {
			out.Redacts = evt.Content.AsRedaction().Redacts.String()
		}
		if out.Redacts == "" {
			return transport.Event{}, false
		}

	case event.StateMember.Type:
		member := evt.Content.AsMember()
		target := id.UserID(evt.GetStateKey())
		switch {
		case member.Membership == event.MembershipInvite && target == self:
			out.Kind = transport.KindInvite
		case member.Membership == event.MembershipLeave:
			out.Kind = transport.KindMembership
			out.Membership = transport.MembershipLeave
		case member.Membership == event.MembershipBan:
			out.Kind = transport.KindMembership
			out.Membership = transport.MembershipBan
		case member.Membership == event.MembershipJoin:
			out.Kind = transport.KindMembership
			out.Membership = transport.MembershipJoin
		default:
			return transport.Event{}, false
		}
		out.Target = target.String()

	case event.StateTopic.Type:
		out.Kind = transport.KindTopic
		out.Topic = evt.Content.AsTopic().Topic

	default:
		return transport.Event{}, false
	}
	return out, true
}

func relation(rel *event.RelatesTo) transport.Relation {
	var r transport.Relation
	if rel == nil {
		return r
	}
	if rel.InReplyTo != nil {
		r.ReplyTo = rel.InReplyTo.EventID.String()
	}
	switch rel.Type {
	case event.RelThread:
		r.ThreadRoot = rel.EventID.String()
	case event.RelReplace:
		r.Replaces = rel.EventID.String()
	}
	return r
}

// messageContent builds an outgoing text message
func messageContent(body string, rel transport.Relation) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    body,
	}
	switch {
	case rel.ThreadRoot != "":
		content.RelatesTo = &event.RelatesTo{
			Type:          event.RelThread,
			EventID:       id.EventID(rel.ThreadRoot),
			IsFallingBack: rel.ReplyTo == "",
		}
		inReplyTo := rel.ReplyTo
		if inReplyTo == "" {
			inReplyTo = rel.ThreadRoot
		}
		content.RelatesTo.InReplyTo = &event.InReplyTo{EventID: id.EventID(inReplyTo)}
	case rel.ReplyTo != "":
		content.RelatesTo = &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(rel.ReplyTo)},
		}
	}
	return content
}
