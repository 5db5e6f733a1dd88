// Package dispatch classifies inbound chat events and routes each one to
// exactly one pipeline: command handling, reply generation, or store-only.
package dispatch

import (
	"strings"

	"github.com/bdobrica/marv/internal/marv/chat"
)

// Kind is the handling category assigned to an inbound event.
type Kind int

const (
	// KindCommand carries an explicit command marker. Never stored, never
	// answered with a generated reply.
	KindCommand Kind = iota
	// KindMention names the bot in its text. Stored, then answered.
	KindMention
	// KindReplyToBot structurally replies to a bot message. Stored, then
	// answered.
	KindReplyToBot
	// KindPlain is everything else. Stored only.
	KindPlain
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindMention:
		return "mention"
	case KindReplyToBot:
		return "reply-to-bot"
	default:
		return "plain"
	}
}

// Classifier evaluates the independent predicates over an event and picks
// the first that matches, in fixed precedence order: command, mention,
// reply-to-bot, plain. Mention and reply-to-bot can both hold for one
// event; precedence guarantees a single category and therefore a single
// reply.
type Classifier struct {
	selfUserID string
	variants   []string
	ignore     []string
}

// NewClassifier builds a classifier for a bot with the given platform user
// ID, mention variants and ignored inflections. Variants and inflections
// are matched case-insensitively.
func NewClassifier(selfUserID string, nameVariants, ignoreVariants []string) *Classifier {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return &Classifier{
		selfUserID: selfUserID,
		variants:   lower(nameVariants),
		ignore:     lower(ignoreVariants),
	}
}

// Classify assigns evt to exactly one handling category.
func (c *Classifier) Classify(evt chat.Event) Kind {
	switch {
	case evt.IsCommand():
		return KindCommand
	case c.IsMention(evt.Text):
		return KindMention
	case c.IsReplyToBot(evt):
		return KindReplyToBot
	default:
		return KindPlain
	}
}

// IsMention reports whether text names the bot: a case-insensitive
// substring match on any name variant, with occurrences inside ignored
// inflections masked out first so that e.g. a variant embedded in an
// unrelated word never counts.
func (c *Classifier) IsMention(text string) bool {
	masked := strings.ToLower(text)
	for _, ign := range c.ignore {
		// Replace with a non-matching filler of equal length so masking one
		// word can never splice a new variant occurrence together.
		masked = strings.ReplaceAll(masked, ign, strings.Repeat("*", len(ign)))
	}
	for _, v := range c.variants {
		if strings.Contains(masked, v) {
			return true
		}
	}
	return false
}

// IsReplyToBot reports whether evt structurally replies to a message
// authored by the bot's own platform identity.
func (c *Classifier) IsReplyToBot(evt chat.Event) bool {
	return c.selfUserID != "" && evt.ReplyToSender == c.selfUserID
}
