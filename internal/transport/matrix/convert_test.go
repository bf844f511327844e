package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/vthunder/toolbot/internal/transport"
)

const bot = id.UserID("@toolbot:example.org")

func msgEvent(content *event.MessageEventContent) *event.Event {
	return &event.Event{
		Type:      event.EventMessage,
		ID:        "$msg",
		RoomID:    "!room:example.org",
		Sender:    "@alice:example.org",
		Timestamp: 1700000000000,
		Content:   event.Content{Parsed: content},
	}
}

func TestConvertTextReply(t *testing.T) {
	evt := msgEvent(&event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    "What is the height of the Eiffel Tower?",
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: "$parent"},
		},
	})

	out, ok := convert(evt, bot)
	require.True(t, ok)
	assert.Equal(t, transport.KindText, out.Kind)
	assert.Equal(t, "!room:example.org", out.RoomID)
	assert.Equal(t, "$parent", out.Relation.ReplyTo)
	assert.Empty(t, out.Relation.ThreadRoot)
	assert.EqualValues(t, 1700000000000, out.Timestamp)
}

func TestConvertThreadAndEdit(t *testing.T) {
	out, ok := convert(msgEvent(&event.MessageEventContent{
		MsgType:   event.MsgText,
		Body:      "in thread",
		RelatesTo: &event.RelatesTo{Type: event.RelThread, EventID: "$root"},
	}), bot)
	require.True(t, ok)
	assert.Equal(t, "$root", out.Relation.ThreadRoot)

	out, ok = convert(msgEvent(&event.MessageEventContent{
		MsgType:    event.MsgText,
		Body:       "* fixed typo",
		NewContent: &event.MessageEventContent{MsgType: event.MsgText, Body: "fixed typo"},
		RelatesTo:  &event.RelatesTo{Type: event.RelReplace, EventID: "$orig"},
	}), bot)
	require.True(t, ok)
	assert.Equal(t, "$orig", out.Relation.Replaces)
	assert.Equal(t, "fixed typo", out.Body)
}

func TestConvertAudio(t *testing.T) {
	out, ok := convert(msgEvent(&event.MessageEventContent{
		MsgType: event.MsgAudio,
		Body:    "voice.ogg",
		URL:     "mxc://example.org/abc",
		Info:    &event.FileInfo{MimeType: "audio/ogg"},
	}), bot)
	require.True(t, ok)
	assert.Equal(t, transport.KindAudio, out.Kind)
	assert.Equal(t, "mxc://example.org/abc", out.MediaRef)
	assert.Equal(t, "audio/ogg", out.MimeType)
	assert.Equal(t, "voice.ogg", out.Filename)
}

func TestConvertIgnoresImages(t *testing.T) {
	_, ok := convert(msgEvent(&event.MessageEventContent{MsgType: event.MsgImage, Body: "cat.png"}), bot)
	assert.False(t, ok)
}

func TestConvertReaction(t *testing.T) {
	evt := &event.Event{
		Type:   event.EventReaction,
		ID:     "$react",
		Sender: "@alice:example.org",
		Content: event.Content{Parsed: &event.ReactionEventContent{
			RelatesTo: event.RelatesTo{Type: event.RelAnnotation, EventID: "$proposal", Key: "👍"},
		}},
	}
	out, ok := convert(evt, bot)
	require.True(t, ok)
	assert.Equal(t, transport.KindReaction, out.Kind)
	assert.Equal(t, "$proposal", out.ReactsTo)
	assert.Equal(t, "👍", out.Key)
}

func TestConvertRedaction(t *testing.T) {
	evt := &event.Event{
		Type:    event.EventRedaction,
		ID:      "$redact",
		Redacts: "$gone",
		Content: event.Content{Parsed: &event.RedactionEventContent{}},
	}
	out, ok := convert(evt, bot)
	require.True(t, ok)
	assert.Equal(t, "$gone", out.Redacts)
}

func TestConvertMembership(t *testing.T) {
	member := func(state string, m event.Membership) *event.Event {
		return &event.Event{
			Type:     event.StateMember,
			StateKey: &state,
			Sender:   "@alice:example.org",
			Content:  event.Content{Parsed: &event.MemberEventContent{Membership: m}},
		}
	}

	out, ok := convert(member(bot.String(), event.MembershipInvite), bot)
	require.True(t, ok)
	assert.Equal(t, transport.KindInvite, out.Kind)

	_, ok = convert(member("@carol:example.org", event.MembershipInvite), bot)
	assert.False(t, ok)

	out, ok = convert(member("@alice:example.org", event.MembershipLeave), bot)
	require.True(t, ok)
	assert.Equal(t, transport.KindMembership, out.Kind)
	assert.Equal(t, transport.MembershipLeave, out.Membership)
	assert.Equal(t, "@alice:example.org", out.Target)
}

func TestMessageContent(t *testing.T) {
	c := messageContent("hi", transport.Relation{ReplyTo: "$p"})
	require.NotNil(t, c.RelatesTo)
	assert.Equal(t, id.EventID("$p"), c.RelatesTo.InReplyTo.EventID)

	c = messageContent("hi", transport.Relation{ThreadRoot: "$root"})
	assert.Equal(t, event.RelThread, c.RelatesTo.Type)
	assert.True(t, c.RelatesTo.IsFallingBack)
	assert.Equal(t, id.EventID("$root"), c.RelatesTo.InReplyTo.EventID)

	assert.Nil(t, messageContent("hi", transport.Relation{}).RelatesTo)
}
