// Package chat defines the normalized inbound event shape shared by the
// classifier and dispatcher. The transport layer (internal/marv/matrix)
// converts platform-specific events into this form; nothing below the
// transport ever touches wire framing.
package chat

// Event is a single normalized inbound chat message.
type Event struct {
	// Text is the plain-text body of the message.
	Text string

	// Timestamp is seconds since epoch, taken from the upstream event's own
	// clock (origin server time), not local receipt time.
	Timestamp float64

	// Sender is the author's display name.
	Sender string

	// SenderID is a stable numeric identity derived from the author's
	// platform ID. Always non-negative for real users; negative values are
	// reserved for bot-generated entries.
	SenderID int64

	// RoomID is the conversation this event belongs to.
	RoomID string

	// ReplyToSender is the platform user ID of the author of the message
	// this event structurally replies to. Empty when the event is not a
	// reply or the referenced message could not be resolved.
	ReplyToSender string

	// Command is the command name (without the leading slash) when the
	// event carries an explicit command marker, empty otherwise.
	Command string

	// CommandArgs are the whitespace-separated arguments following the
	// command name. Nil when Command is empty.
	CommandArgs []string
}

// IsCommand reports whether the event carries an explicit command marker.
func (e Event) IsCommand() bool {
	return e.Command != ""
}
