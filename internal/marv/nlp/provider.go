// Package nlp provides the generation layer for Marv: the completion
// provider that turns a prompt into text, the tokenizer used to bound
// context, and the helpers that render stored messages into a prompt.
//
// The provider is an opaque request/response collaborator. Everything
// interesting — which messages to include, how to bound them, what model to
// target — is decided by the caller before the request is built.
package nlp

import "context"

// Roles for prompt segments, matching the chat-completions wire format.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Segment is one role-tagged piece of a generation request.
type Segment struct {
	Role    string
	Content string
}

// Provider produces a completion for an ordered list of segments using the
// named model. Implementations must honour ctx cancellation; a timed-out or
// failed call is a recoverable generation failure, never fatal.
type Provider interface {
	Complete(ctx context.Context, model string, segments []Segment) (string, error)
}

// Tokenizer converts between text and token IDs. Encode and Decode must be
// inverses over any encoding produced by Encode.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}
