// Package commands provides slash-command parsing and routing for Marv.
//
// Commands never enter the message log and never trigger a generated
// reply; they are dispatched to their handler and answered directly.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bdobrica/marv/internal/marv/chat"
)

// ErrNotACommand is returned by Parse when the text does not carry the
// command marker. Callers should use errors.Is to distinguish this
// expected case from real errors.
var ErrNotACommand = errors.New("not a command (missing prefix)")

// ErrUnknownCommand is returned by Route for an unregistered command name.
var ErrUnknownCommand = errors.New("unknown command")

// Handler handles one command. The returned string, when non-empty, is
// sent back to the originating room.
type Handler func(ctx context.Context, args []string, evt chat.Event) (string, error)

// Router routes parsed commands to handlers.
type Router struct {
	handlers map[string]Handler
}

// NewRouter creates an empty command router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Register registers a handler for a command name (without the slash).
func (r *Router) Register(name string, handler Handler) {
	r.handlers[strings.ToLower(name)] = handler
}

// Names returns the registered command names.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Parse splits text into a command name and arguments. The command marker
// is a leading slash; an optional "@botname" suffix on the command word
// (directed-command syntax) is dropped.
func Parse(text string) (name string, args []string, err error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, ErrNotACommand
	}

	parts := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(parts) == 0 || parts[0] == "" {
		return "", nil, fmt.Errorf("empty command")
	}

	name = strings.ToLower(parts[0])
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return name, parts[1:], nil
}

// Route dispatches a parsed command to its handler.
func (r *Router) Route(ctx context.Context, name string, args []string, evt chat.Event) (string, error) {
	handler, ok := r.handlers[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return handler(ctx, args, evt)
}
