package dispatch_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/marv/internal/marv/chat"
	"github.com/bdobrica/marv/internal/marv/dispatch"
	"github.com/bdobrica/marv/internal/marv/nlp"
	"github.com/bdobrica/marv/internal/marv/profile"
	"github.com/bdobrica/marv/internal/marv/store"
)

// --- fakes -------------------------------------------------------------

type completeCall struct {
	model    string
	segments []nlp.Segment
}

type fakeProvider struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []completeCall
}

func (p *fakeProvider) Complete(_ context.Context, model string, segments []nlp.Segment) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, completeCall{model: model, segments: segments})
	return p.text, p.err
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakeProvider) lastCall() completeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[len(p.calls)-1]
}

var _ nlp.Provider = (*fakeProvider)(nil)

type fakeOutbound struct {
	mu      sync.Mutex
	sent    []string
	notices []string
}

func (o *fakeOutbound) Send(_, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, text)
	return nil
}

func (o *fakeOutbound) Notice(_, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notices = append(o.notices, text)
	return nil
}

func (o *fakeOutbound) Typing(string, bool) {}

func (o *fakeOutbound) sentTexts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.sent...)
}

func (o *fakeOutbound) noticeTexts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.notices...)
}

// runeTokenizer treats every rune as one token; good enough to observe
// truncation behavior without BPE data.
type runeTokenizer struct{}

func (runeTokenizer) Encode(text string) []int {
	var out []int
	for _, r := range text {
		out = append(out, int(r))
	}
	return out
}

func (runeTokenizer) Decode(tokens []int) string {
	rs := make([]rune, len(tokens))
	for i, tok := range tokens {
		rs[i] = rune(tok)
	}
	return string(rs)
}

// --- harness -----------------------------------------------------------

type harness struct {
	d    *dispatch.Dispatcher
	s    *store.Store
	prov *fakeProvider
	out  *fakeOutbound
	now  time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "messages.jsonl"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := &harness{
		s:    s,
		prov: &fakeProvider{text: "Marv: pong"},
		out:  &fakeOutbound{},
		now:  time.Unix(1_000_000, 0),
	}
	h.d = dispatch.New(dispatch.Config{
		Store:      s,
		Profile:    profile.Default(),
		Provider:   h.prov,
		Tokenizer:  runeTokenizer{},
		Outbound:   h.out,
		SelfUserID: botUserID,
		Now:        func() time.Time { return h.now },
	})
	return h
}

func (h *harness) nowSec() float64 { return float64(h.now.Unix()) }

func (h *harness) seed(t *testing.T, msgs ...store.Message) {
	t.Helper()
	for _, m := range msgs {
		if err := h.s.Append(m); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func event(text string) chat.Event {
	return chat.Event{
		Text:      text,
		Timestamp: 999_900,
		Sender:    "Alice",
		SenderID:  11,
		RoomID:    "!room:example.com",
	}
}

// --- tests -------------------------------------------------------------

func TestPlainMessage_StoredOnly(t *testing.T) {
	h := newHarness(t)

	h.d.Handle(context.Background(), event("lunch anyone?"))
	h.d.Wait()

	msgs := h.s.All()
	if len(msgs) != 1 {
		t.Fatalf("stored %d messages, want 1", len(msgs))
	}
	if msgs[0].Author != "Alice" || msgs[0].AuthorID != 11 || msgs[0].Text != "lunch anyone?" {
		t.Errorf("stored message: %+v", msgs[0])
	}
	if h.prov.callCount() != 0 {
		t.Error("plain message must not trigger generation")
	}
	if len(h.out.sentTexts()) != 0 || len(h.out.noticeTexts()) != 0 {
		t.Error("plain message must not produce outbound traffic")
	}
}

func TestMention_StoresMessageAndPersistedReply(t *testing.T) {
	h := newHarness(t)

	h.d.Handle(context.Background(), event("marv, are you alive?"))
	h.d.Wait()

	msgs := h.s.All()
	if len(msgs) != 2 {
		t.Fatalf("stored %d messages, want 2 (trigger + reply)", len(msgs))
	}
	if msgs[0].Text != "marv, are you alive?" {
		t.Errorf("trigger not stored first: %+v", msgs[0])
	}
	reply := msgs[1]
	if reply.Author != "Marv" || reply.AuthorID != store.BotAuthorID {
		t.Errorf("reply authorship: %+v", reply)
	}
	if reply.Text != "pong" {
		t.Errorf("self prefix not stripped: got %q", reply.Text)
	}

	sent := h.out.sentTexts()
	if len(sent) != 1 || sent[0] != "pong" {
		t.Errorf("sent: %v", sent)
	}
}

func TestMentionAndReply_OnlyOneGeneration(t *testing.T) {
	h := newHarness(t)

	evt := event("fine, marv, you win")
	evt.ReplyToSender = botUserID
	h.d.Handle(context.Background(), evt)
	h.d.Wait()

	if got := h.prov.callCount(); got != 1 {
		t.Errorf("generation calls: got %d, want exactly 1", got)
	}
	if got := len(h.out.sentTexts()); got != 1 {
		t.Errorf("replies sent: got %d, want exactly 1", got)
	}
}

func TestCommandWithBotName_IsNeverStoredOrAnswered(t *testing.T) {
	h := newHarness(t)

	evt := event("/help marv")
	evt.Command = "help"
	evt.CommandArgs = []string{"marv"}
	h.d.Handle(context.Background(), evt)
	h.d.Wait()

	if got := h.s.Len(); got != 0 {
		t.Errorf("command was stored: %d messages", got)
	}
	if h.prov.callCount() != 0 {
		t.Error("command must not trigger generation")
	}
	sent := h.out.sentTexts()
	if len(sent) != 1 || !strings.Contains(sent[0], "/summarize") {
		t.Errorf("help output: %v", sent)
	}
}

func TestReplyContext_ExcludesSummariesAndTriggeringMessage(t *testing.T) {
	h := newHarness(t)
	h.seed(t,
		store.Message{Timestamp: h.nowSec() - 100, Author: "Bob", AuthorID: 22, Text: "old context line"},
		store.Message{Timestamp: h.nowSec() - 50, Author: store.SummaryAuthor, AuthorID: store.SummaryAuthorID, Text: "SECRET SUMMARY"},
	)

	h.d.Handle(context.Background(), event("marv?"))
	h.d.Wait()

	call := h.prov.lastCall()
	var all string
	for _, seg := range call.segments {
		all += seg.Content + "\n"
	}
	if strings.Contains(all, "SECRET SUMMARY") {
		t.Error("summary entry leaked into reply context")
	}
	if !strings.Contains(all, "old context line") {
		t.Error("real history missing from reply context")
	}
	// The triggering message is the user turn, not part of the context body.
	last := call.segments[len(call.segments)-1]
	if last.Role != nlp.RoleUser || !strings.Contains(last.Content, "marv?") {
		t.Errorf("user turn segment: %+v", last)
	}
}

func TestBoostedModelRouting(t *testing.T) {
	h := newHarness(t)

	h.d.Handle(context.Background(), event("marv, think hard about this"))
	h.d.Wait()

	p := profile.Default()
	if got := h.prov.lastCall().model; got != p.Models.Boosted.Name {
		t.Errorf("model: got %q, want boosted %q", got, p.Models.Boosted.Name)
	}

	h.d.Handle(context.Background(), event("marv, quick one"))
	h.d.Wait()
	if got := h.prov.lastCall().model; got != p.Models.Default.Name {
		t.Errorf("model: got %q, want default %q", got, p.Models.Default.Name)
	}
}

func TestGenerationFailure_NoticesWithoutAppending(t *testing.T) {
	h := newHarness(t)
	h.prov.err = errors.New("upstream exploded")

	h.d.Handle(context.Background(), event("marv, hello"))
	h.d.Wait()

	if got := h.s.Len(); got != 1 {
		t.Errorf("store: got %d messages, want only the trigger", got)
	}
	if len(h.out.sentTexts()) != 0 {
		t.Error("no reply should be sent on generation failure")
	}
	if len(h.out.noticeTexts()) != 1 {
		t.Errorf("user must be told about the failure: notices=%v", h.out.noticeTexts())
	}
}

// gateProvider blocks each completion until released, then answers only if
// its context is still alive.
type gateProvider struct {
	release chan struct{}
}

func (p *gateProvider) Complete(ctx context.Context, _ string, _ []nlp.Segment) (string, error) {
	<-p.release
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "Marv: still here", nil
}

func TestInFlightGeneration_OutlivesInboundContext(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "messages.jsonl"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	out := &fakeOutbound{}
	prov := &gateProvider{release: make(chan struct{})}
	d := dispatch.New(dispatch.Config{
		Store:      s,
		Profile:    profile.Default(),
		Provider:   prov,
		Tokenizer:  runeTokenizer{},
		Outbound:   out,
		SelfUserID: botUserID,
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.Handle(ctx, event("marv, last words?"))

	// The transport tears down its sync context while the generation is
	// still in flight; the drained generation must complete anyway.
	cancel()
	close(prov.release)
	d.Wait()

	sent := out.sentTexts()
	if len(sent) != 1 || sent[0] != "still here" {
		t.Errorf("reply after transport shutdown: sent=%v notices=%v", sent, out.noticeTexts())
	}
	msgs := s.All()
	if len(msgs) != 2 || msgs[1].AuthorID != store.BotAuthorID {
		t.Errorf("reply not persisted after transport shutdown: %+v", msgs)
	}
}

func TestSummarize_ExplicitWindow(t *testing.T) {
	h := newHarness(t)
	h.prov.text = "everyone argued about lunch"
	h.seed(t,
		store.Message{Timestamp: h.nowSec() - 3*3600, Author: "Bob", AuthorID: 22, Text: "too old"},
		store.Message{Timestamp: h.nowSec() - 1800, Author: "Bob", AuthorID: 22, Text: "recent enough"},
	)

	evt := event("/summarize 2")
	evt.Command = "summarize"
	evt.CommandArgs = []string{"2"}
	h.d.Handle(context.Background(), evt)
	h.d.Wait()

	call := h.prov.lastCall()
	if strings.Contains(call.segments[1].Content, "too old") {
		t.Error("message outside the explicit window leaked into the prompt")
	}
	if !strings.Contains(call.segments[1].Content, "recent enough") {
		t.Error("message inside the window missing from the prompt")
	}

	msgs := h.s.All()
	last := msgs[len(msgs)-1]
	if last.Author != store.SummaryAuthor || last.AuthorID != store.SummaryAuthorID {
		t.Errorf("summary entry authorship: %+v", last)
	}
	if last.Text != "everyone argued about lunch" {
		t.Errorf("summary text: %q", last.Text)
	}

	sent := h.out.sentTexts()
	if len(sent) != 1 || sent[0] != "everyone argued about lunch" {
		t.Errorf("sent: %v", sent)
	}
}

func TestSummarize_UsesRequestedLanguagePrompt(t *testing.T) {
	h := newHarness(t)
	h.seed(t, store.Message{Timestamp: h.nowSec() - 600, Author: "Bob", AuthorID: 22, Text: "привет"})

	evt := event("/summarize 1 ru")
	evt.Command = "summarize"
	evt.CommandArgs = []string{"1", "ru"}
	h.d.Handle(context.Background(), evt)
	h.d.Wait()

	p := profile.Default()
	call := h.prov.lastCall()
	if call.segments[0].Role != nlp.RoleSystem || call.segments[0].Content != p.Languages["ru"].Prompt {
		t.Errorf("system segment: %+v", call.segments[0])
	}
}

func TestSummarize_InvalidHoursRejectedWithoutStateChange(t *testing.T) {
	h := newHarness(t)
	h.seed(t, store.Message{Timestamp: h.nowSec() - 600, Author: "Bob", AuthorID: 22, Text: "hi"})

	evt := event("/summarize soonish")
	evt.Command = "summarize"
	evt.CommandArgs = []string{"soonish"}
	h.d.Handle(context.Background(), evt)
	h.d.Wait()

	if h.prov.callCount() != 0 {
		t.Error("rejected command must not reach the provider")
	}
	if got := h.s.Len(); got != 1 {
		t.Errorf("store mutated by rejected command: %d messages", got)
	}
	notices := h.out.noticeTexts()
	if len(notices) != 1 || !strings.Contains(notices[0], "Usage") {
		t.Errorf("rejection notice: %v", notices)
	}
}

func TestSummarize_UnknownLanguageFallsBack(t *testing.T) {
	h := newHarness(t)
	h.seed(t, store.Message{Timestamp: h.nowSec() - 600, Author: "Bob", AuthorID: 22, Text: "hi"})

	evt := event("/summarize 1 xx")
	evt.Command = "summarize"
	evt.CommandArgs = []string{"1", "xx"}
	h.d.Handle(context.Background(), evt)
	h.d.Wait()

	p := profile.Default()
	if h.prov.callCount() != 1 {
		t.Fatal("fallback language must still produce a summary")
	}
	if got := h.prov.lastCall().segments[0].Content; got != p.Languages[p.DefaultLanguage].Prompt {
		t.Errorf("prompt after fallback: %q", got)
	}
	notices := h.out.noticeTexts()
	if len(notices) != 1 || !strings.Contains(notices[0], `"xx"`) {
		t.Errorf("fallback notice: %v", notices)
	}
}

func TestSummarize_EmptyWindow(t *testing.T) {
	h := newHarness(t)

	evt := event("/summarize")
	evt.Command = "summarize"
	h.d.Handle(context.Background(), evt)
	h.d.Wait()

	if h.prov.callCount() != 0 {
		t.Error("empty window must not reach the provider")
	}
	sent := h.out.sentTexts()
	if len(sent) != 1 || !strings.Contains(sent[0], "Nothing") {
		t.Errorf("empty-window reply: %v", sent)
	}
}

func TestUnknownCommand_Notice(t *testing.T) {
	h := newHarness(t)

	evt := event("/frobnicate")
	evt.Command = "frobnicate"
	h.d.Handle(context.Background(), evt)
	h.d.Wait()

	notices := h.out.noticeTexts()
	if len(notices) != 1 || !strings.Contains(notices[0], "/help") {
		t.Errorf("unknown-command notice: %v", notices)
	}
}

func TestStatusCommand(t *testing.T) {
	h := newHarness(t)
	h.seed(t, store.Message{Timestamp: h.nowSec() - 600, Author: "Bob", AuthorID: 22, Text: "hi"})

	evt := event("/status")
	evt.Command = "status"
	h.d.Handle(context.Background(), evt)
	h.d.Wait()

	sent := h.out.sentTexts()
	if len(sent) != 1 {
		t.Fatalf("sent: %v", sent)
	}
	if !strings.Contains(sent[0], "Messages: 1") || !strings.Contains(sent[0], "gpt-3.5-turbo") {
		t.Errorf("status output: %q", sent[0])
	}
}
