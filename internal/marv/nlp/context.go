package nlp

import (
	"strings"

	"github.com/bdobrica/marv/internal/marv/store"
)

// MaxContextMessages is the hard cap on how many of the most recent stored
// messages enter a prompt, applied before any tokenization. Keeps the
// encode step cheap on long-running logs.
const MaxContextMessages = 100

// Recent returns the last n messages of msgs (all of them when fewer).
func Recent(msgs []store.Message, n int) []store.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// JoinLines renders messages as newline-separated "author: text" lines,
// oldest first. Used for reply context.
func JoinLines(msgs []store.Message) string {
	return join(msgs, "\n")
}

// JoinSpaced renders messages as space-separated "author: text" chunks.
// Used for summarization requests.
func JoinSpaced(msgs []store.Message) string {
	return join(msgs, " ")
}

func join(msgs []store.Message, sep string) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Author+": "+m.Text)
	}
	return strings.Join(parts, sep)
}

// TruncateTail bounds text to at most budget tokens, keeping the final
// tokens and dropping from the front: the most recent context always
// survives at the expense of the oldest. Text already under budget is
// returned unchanged (not re-decoded).
func TruncateTail(tok Tokenizer, text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	tokens := tok.Encode(text)
	if len(tokens) <= budget {
		return text
	}
	return tok.Decode(tokens[len(tokens)-budget:])
}

// StripSelfPrefix removes a leading "name:" self-identification (any case,
// optional following whitespace) from generated text, exactly once. Models
// prompted with "author: text" context tend to echo the framing back.
func StripSelfPrefix(name, text string) string {
	prefix := name + ":"
	if len(text) < len(prefix) {
		return text
	}
	if !strings.EqualFold(text[:len(prefix)], prefix) {
		return text
	}
	return strings.TrimLeft(text[len(prefix):], " \t")
}
