package matrix

import (
	"hash/fnv"
	"math"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/marv/internal/marv/chat"
	"github.com/bdobrica/marv/internal/marv/commands"
)

// Normalize converts a raw Matrix message event into the transport-neutral
// chat.Event the dispatcher consumes. Name and reply-sender resolution are
// injected because they need homeserver round trips.
func Normalize(evt *event.Event, resolveName func(id.UserID) string, resolveReplySender func(id.EventID) string) chat.Event {
	content := evt.Content.AsMessage()

	e := chat.Event{
		Text:      content.Body,
		Timestamp: float64(evt.Timestamp) / 1000,
		Sender:    resolveName(evt.Sender),
		SenderID:  NumericID(evt.Sender.String()),
		RoomID:    evt.RoomID.String(),
	}

	if replyTo := replyTarget(content); replyTo != "" {
		e.ReplyToSender = resolveReplySender(replyTo)
	}

	if name, args, err := commands.Parse(content.Body); err == nil {
		e.Command = name
		e.CommandArgs = args
	}

	return e
}

// replyTarget extracts the event ID a rich reply points at, or "".
func replyTarget(content *event.MessageEventContent) id.EventID {
	if content.RelatesTo == nil {
		return ""
	}
	return content.RelatesTo.GetReplyTo()
}

// NumericID maps a Matrix user ID onto a stable non-negative int64. The
// message log keys authors by numeric ID with negative values reserved for
// system entries, so the hash is masked into the positive range.
func NumericID(userID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(userID))
	return int64(h.Sum64() & math.MaxInt64)
}
