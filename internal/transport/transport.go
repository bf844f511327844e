// Package transport defines the chat events the bot consumes and the
// errors adapters report.
package transport

import "errors"

var (
	// ErrForbidden means the bot lacks permission for the action
	ErrForbidden = errors.New("forbidden")
	// ErrUnsupported means the platform has no equivalent of the action
	ErrUnsupported = errors.New("not supported by this transport")
)

// Kind is the type of an incoming event
type Kind string

const (
	KindText          Kind = "text"
	KindAudio         Kind = "audio"
	KindReaction      Kind = "reaction"
	KindRedaction     Kind = "redaction"
	KindInvite        Kind = "invite"
	KindMembership    Kind = "membership"
	KindTopic         Kind = "topic"
	KindSyncCompleted Kind = "sync_completed"
)

// Membership values carried by KindMembership events
const (
	MembershipJoin  = "join"
	MembershipLeave = "leave"
	MembershipBan   = "ban"
)

// Relation links a message to others in the room
type Relation struct {
	ReplyTo    string
	ThreadRoot string
	Replaces   string
}

// Event is one platform event in a room
type Event struct {
	Kind      Kind
	RoomID    string
	EventID   string
	Sender    string
	Timestamp int64 // server time, unix milliseconds

	// text and audio
	Body     string
	Relation Relation

	// audio
	MediaRef string
	MimeType string
	Filename string

	// reaction
	ReactsTo string
	Key      string

	// redaction
	Redacts string

	// membership: Target is the user whose membership changed
	Membership string
	Target     string

	// topic
	Topic string
}
