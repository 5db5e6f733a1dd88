package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/marv/internal/marv/chat"
	"github.com/bdobrica/marv/internal/marv/commands"
	"github.com/bdobrica/marv/internal/marv/nlp"
	"github.com/bdobrica/marv/internal/marv/profile"
	"github.com/bdobrica/marv/internal/marv/store"
	"github.com/bdobrica/marv/internal/marv/window"
)

// Outbound sends text back to the chat transport.
type Outbound interface {
	// Send posts a regular message to a room.
	Send(roomID, text string) error
	// Notice posts a less intrusive status/error message to a room.
	Notice(roomID, text string) error
	// Typing toggles the typing indicator while a generation is in flight.
	Typing(roomID string, on bool)
}

// Config wires a Dispatcher.
type Config struct {
	Store      *store.Store
	Profile    *profile.Profile
	Provider   nlp.Provider
	Tokenizer  nlp.Tokenizer
	Outbound   Outbound
	SelfUserID string
	// Now overrides the clock; nil means time.Now. Tests use it to pin
	// window arithmetic.
	Now func() time.Time
}

// rule pairs a predicate with its pipeline. Rules are evaluated in order
// and the first match wins, which is what makes the categories mutually
// exclusive even where the raw predicates overlap.
type rule struct {
	kind   Kind
	match  func(chat.Event) bool
	handle func(ctx context.Context, evt chat.Event)
}

// Dispatcher routes classified events to their pipelines and writes
// derived outputs (replies, summaries) back into the store as first-class
// entries. Store-only handling is synchronous; generation runs in the
// background so ingestion never waits on the completion API.
type Dispatcher struct {
	store      *store.Store
	prof       *profile.Profile
	provider   nlp.Provider
	tok        nlp.Tokenizer
	out        Outbound
	classifier *Classifier
	router     *commands.Router
	now        func() time.Time

	rules []rule
	wg    sync.WaitGroup
}

// New builds a Dispatcher with the fixed rule order: command, mention,
// reply-to-bot, plain.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		store:      cfg.Store,
		prof:       cfg.Profile,
		provider:   cfg.Provider,
		tok:        cfg.Tokenizer,
		out:        cfg.Outbound,
		classifier: NewClassifier(cfg.SelfUserID, cfg.Profile.NameVariants, cfg.Profile.IgnoreVariants),
		now:        cfg.Now,
	}
	if d.now == nil {
		d.now = time.Now
	}

	d.router = commands.NewRouter()
	d.router.Register("summarize", d.handleSummarize)
	d.router.Register("help", d.handleHelp)
	d.router.Register("status", d.handleStatus)

	d.rules = []rule{
		{KindCommand, func(evt chat.Event) bool { return evt.IsCommand() }, d.handleCommand},
		{KindMention, func(evt chat.Event) bool { return d.classifier.IsMention(evt.Text) }, d.handleAddressed},
		{KindReplyToBot, d.classifier.IsReplyToBot, d.handleAddressed},
		{KindPlain, func(chat.Event) bool { return true }, d.handlePlain},
	}
	return d
}

// Handle routes one inbound event to exactly one pipeline.
func (d *Dispatcher) Handle(ctx context.Context, evt chat.Event) {
	for _, r := range d.rules {
		if r.match(evt) {
			slog.Debug("dispatch: event classified", "kind", r.kind.String(), "sender", evt.Sender)
			r.handle(ctx, evt)
			return
		}
	}
}

// Wait blocks until all in-flight generation work has finished. Used on
// shutdown and by tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) nowSec() float64 {
	return float64(d.now().UnixMilli()) / 1000
}

func asMessage(evt chat.Event) store.Message {
	return store.Message{
		Timestamp: evt.Timestamp,
		Author:    evt.Sender,
		AuthorID:  evt.SenderID,
		Text:      evt.Text,
	}
}

// --- plain pipeline ---------------------------------------------------

func (d *Dispatcher) handlePlain(_ context.Context, evt chat.Event) {
	if err := d.store.Append(asMessage(evt)); err != nil {
		// The message is not ingested; nothing else to roll back. Plain
		// traffic gets no room-visible error to avoid drowning the chat.
		slog.Error("dispatch: store plain message", "sender", evt.Sender, "err", err)
	}
}

// --- command pipeline -------------------------------------------------

func (d *Dispatcher) handleCommand(ctx context.Context, evt chat.Event) {
	reply, err := d.router.Route(ctx, evt.Command, evt.CommandArgs, evt)
	switch {
	case errors.Is(err, commands.ErrInvalidHours):
		d.notice(evt.RoomID, commands.SummarizeUsage)
	case errors.Is(err, commands.ErrUnknownCommand):
		d.notice(evt.RoomID, "I don't know that command. /help lists the few things I can do.")
	case err != nil:
		slog.Error("dispatch: command failed", "command", evt.Command, "err", err)
		d.notice(evt.RoomID, "That command failed. I'd apologize, but it wouldn't change anything.")
	case reply != "":
		d.send(evt.RoomID, reply)
	}
}

func (d *Dispatcher) handleSummarize(ctx context.Context, args []string, evt chat.Event) (string, error) {
	parsed, err := commands.ParseSummarizeArgs(args, d.prof.KnownLanguage)
	if err != nil {
		// Rejected before any state is read or written.
		return "", err
	}

	lang := parsed.Lang
	if lang == "" {
		lang = d.prof.DefaultLanguage
	} else if !d.prof.KnownLanguage(lang) {
		d.notice(evt.RoomID, fmt.Sprintf("I can't summarize in %q, so you're getting %q instead.",
			parsed.Lang, d.prof.DefaultLanguage))
		lang = d.prof.DefaultLanguage
	}

	snapshot := d.store.All()
	now := d.nowSec()
	earliest := window.Earliest(snapshot, evt.SenderID, now, parsed.Hours, parsed.HasHours)
	selected := window.Select(snapshot, earliest)
	if len(selected) == 0 {
		return "Nothing worth summarizing happened. Lucky you.", nil
	}

	convo := nlp.JoinSpaced(nlp.Recent(selected, nlp.MaxContextMessages))
	model := d.prof.Models.Default
	prompt := d.prof.SummaryPrompt(lang)
	reqID := uuid.New().String()
	slog.Info("dispatch: summarize requested",
		"req", reqID, "requester", evt.Sender, "messages", len(selected),
		"window_s", now-earliest, "lang", lang, "model", model.Name)

	// The inbound context dies with the sync loop; a generation draining
	// through Wait at shutdown must not die with it. The provider applies
	// its own per-call timeout.
	genCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.out.Typing(evt.RoomID, true)
		defer d.out.Typing(evt.RoomID, false)

		truncated := nlp.TruncateTail(d.tok, convo, model.ContextBudget)
		raw, err := d.provider.Complete(genCtx, model.Name, []nlp.Segment{
			{Role: nlp.RoleSystem, Content: prompt},
			{Role: nlp.RoleUser, Content: truncated},
		})
		if err != nil {
			slog.Error("dispatch: summary generation failed", "req", reqID, "err", err)
			d.notice(evt.RoomID, "The summary refused to exist. Try again later, or don't.")
			return
		}

		summary := strings.TrimSpace(raw)
		entry := store.Message{
			Timestamp: d.nowSec(),
			Author:    store.SummaryAuthor,
			AuthorID:  store.SummaryAuthorID,
			Text:      summary,
		}
		if err := d.store.Append(entry); err != nil {
			// Not persisted means not produced: sending it anyway would let
			// the next window re-summarize the same messages.
			slog.Error("dispatch: persist summary", "req", reqID, "err", err)
			d.notice(evt.RoomID, "I wrote a summary and then lost it. That tracks.")
			return
		}
		d.send(evt.RoomID, summary)
		slog.Info("dispatch: summary delivered", "req", reqID, "chars", len(summary))
	}()

	return "", nil
}

func (d *Dispatcher) handleHelp(_ context.Context, _ []string, _ chat.Event) (string, error) {
	return helpMessage, nil
}

func (d *Dispatcher) handleStatus(_ context.Context, _ []string, _ chat.Event) (string, error) {
	snapshot := d.store.All()

	var b strings.Builder
	fmt.Fprintf(&b, "Log: %s\n", d.store.Path())
	fmt.Fprintf(&b, "Messages: %d\n", len(snapshot))
	if len(snapshot) > 0 {
		first := time.Unix(int64(snapshot[0].Timestamp), 0).UTC()
		last := time.Unix(int64(snapshot[len(snapshot)-1].Timestamp), 0).UTC()
		fmt.Fprintf(&b, "Oldest: %s\nNewest: %s\n",
			first.Format(time.RFC3339), last.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Model: %s (context %d tokens)", d.prof.Models.Default.Name, d.prof.Models.Default.ContextBudget)
	if boosted := d.prof.Models.Boosted; boosted != nil {
		fmt.Fprintf(&b, "\nBoosted: %s (context %d tokens)", boosted.Name, boosted.ContextBudget)
	}
	return b.String(), nil
}

// --- reply pipeline ---------------------------------------------------

// handleAddressed serves both the mention and reply-to-bot categories:
// persist the triggering message like any other, then generate a reply and
// persist that too before it is sent.
func (d *Dispatcher) handleAddressed(ctx context.Context, evt chat.Event) {
	// Context is everything already in the log; the triggering message
	// itself travels as the user turn, not as part of the context.
	snapshot := d.store.All()

	if err := d.store.Append(asMessage(evt)); err != nil {
		slog.Error("dispatch: store addressed message", "sender", evt.Sender, "err", err)
		d.notice(evt.RoomID, "I couldn't even record that message. Story of my life.")
		return
	}

	model := d.prof.Route(evt.Text)
	history := nlp.JoinLines(nlp.Recent(window.Select(snapshot, 0), nlp.MaxContextMessages))
	userTurn := evt.Sender + ": " + evt.Text
	reqID := uuid.New().String()
	slog.Info("dispatch: reply requested", "req", reqID, "sender", evt.Sender, "model", model.Name)

	genCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.out.Typing(evt.RoomID, true)
		defer d.out.Typing(evt.RoomID, false)

		segments := []nlp.Segment{{Role: nlp.RoleSystem, Content: d.prof.ReplyPrompt}}
		if truncated := nlp.TruncateTail(d.tok, history, model.ContextBudget); truncated != "" {
			segments = append(segments, nlp.Segment{Role: nlp.RoleUser, Content: truncated})
		}
		segments = append(segments, nlp.Segment{Role: nlp.RoleUser, Content: userTurn})

		raw, err := d.provider.Complete(genCtx, model.Name, segments)
		if err != nil {
			slog.Error("dispatch: reply generation failed", "req", reqID, "err", err)
			d.notice(evt.RoomID, "I tried to think of a reply and the universe said no. Typical.")
			return
		}

		reply := nlp.StripSelfPrefix(d.prof.Name, strings.TrimSpace(raw))
		if reply == "" {
			slog.Warn("dispatch: empty reply after prefix strip", "req", reqID)
			d.notice(evt.RoomID, "I had nothing to say. Even for me, that's a first.")
			return
		}

		entry := store.Message{
			Timestamp: d.nowSec(),
			Author:    d.prof.Name,
			AuthorID:  store.BotAuthorID,
			Text:      reply,
		}
		if err := d.store.Append(entry); err != nil {
			slog.Error("dispatch: persist reply", "req", reqID, "err", err)
			d.notice(evt.RoomID, "I composed a reply and promptly lost it. Story of my life.")
			return
		}
		d.send(evt.RoomID, reply)
		slog.Info("dispatch: reply delivered", "req", reqID, "chars", len(reply))
	}()
}

// --- outbound helpers -------------------------------------------------

func (d *Dispatcher) send(roomID, text string) {
	if err := d.out.Send(roomID, text); err != nil {
		slog.Error("dispatch: send message", "room", roomID, "err", err)
	}
}

func (d *Dispatcher) notice(roomID, text string) {
	if err := d.out.Notice(roomID, text); err != nil {
		slog.Error("dispatch: send notice", "room", roomID, "err", err)
	}
}
