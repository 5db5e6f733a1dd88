// Package store provides the durable message log for Marv.
//
// The log is a JSONL file: one JSON object per line, append-only, never
// compacted. An in-memory mirror holds the same messages in the same order
// and is rebuilt from the file at startup. A message becomes visible in the
// mirror only after its line has been durably written, so the mirror never
// gets ahead of the file.
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Author sentinels. Real users always have non-negative IDs (see the
// transport's ID derivation), so the reserved negative IDs can never
// collide with a participant.
const (
	// SummaryAuthor marks a generated summary entry.
	SummaryAuthor = "summary"
	// SummaryAuthorID is the reserved identity for summary entries.
	SummaryAuthorID int64 = -1
	// BotAuthorID is the reserved identity for bot-generated replies.
	BotAuthorID int64 = -2
)

// Message is the sole persisted entity. Entries are immutable once written.
type Message struct {
	// Timestamp is seconds since epoch, assigned at ingestion from the
	// upstream event's clock. Used for windowing only, never for ordering.
	Timestamp float64 `json:"timestamp"`
	// Author is the display name, or a sentinel ("summary", the bot name).
	Author string `json:"author"`
	// AuthorID is the stable numeric identity of the author.
	AuthorID int64 `json:"author_id"`
	// Text is the message content.
	Text string `json:"text"`
}

// IsSummary reports whether the message is a generated summary entry.
// Summary entries stay in the log forever but are excluded from every
// future summarization and reply-context computation.
func (m Message) IsSummary() bool {
	return m.Author == SummaryAuthor
}

// PersistError reports a failed durable write. The message it carries was
// not ingested: the in-memory mirror is untouched and the caller must not
// treat the append as acknowledged.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("store: append to %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Store owns the log file and its in-memory mirror. All mutation goes
// through Append and Load; other components only ever see snapshots.
type Store struct {
	path string

	// mu serializes the full durable-write-then-mirror-update sequence so
	// concurrent appends cannot interleave and file order always equals
	// mirror order.
	mu   sync.Mutex
	file *os.File
	msgs []Message
}

// Open opens (creating if needed) the log at path, replays it into memory
// and returns a Store ready for appends.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: open log %s: %w", path, err)
	}
	s := &Store{path: path, file: f}
	if err := s.Load(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Load rebuilds the in-memory mirror from the log file, replacing whatever
// the mirror held before. Blank or unparsable lines are skipped with a
// warning rather than aborting the replay — a crash mid-append may leave a
// truncated final line behind, and losing the rest of the history over it
// would be worse than dropping the fragment.
func (s *Store) Load() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("store: replay %s: %w", s.path, err)
	}
	defer f.Close()

	// Lines are read with an unbounded reader, not a scanner: message text
	// has no length limit, so any line Append accepted must replay.
	var msgs []Message
	r := bufio.NewReader(f)
	line := 0
	for {
		raw, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("store: replay %s: %w", s.path, err)
		}
		line++
		if raw = strings.TrimSpace(raw); raw != "" {
			var m Message
			if jsonErr := json.Unmarshal([]byte(raw), &m); jsonErr != nil {
				slog.Warn("store: skipping unparsable log line", "path", s.path, "line", line, "err", jsonErr)
			} else {
				msgs = append(msgs, m)
			}
		}
		if err != nil {
			break
		}
	}

	s.mu.Lock()
	s.msgs = msgs
	s.mu.Unlock()

	slog.Info("store: replayed message log", "path", s.path, "messages", len(msgs))
	return nil
}

// Append durably writes m to the log and then mirrors it in memory. On a
// failed write the mirror is left untouched and a *PersistError is
// returned; the message is not considered ingested.
func (s *Store) Append(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		// Message is plain strings and numbers; this only fires on invalid
		// UTF-8 the encoder cannot repair.
		return &PersistError{Path: s.path, Err: err}
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(data); err != nil {
		return &PersistError{Path: s.path, Err: err}
	}
	if err := s.file.Sync(); err != nil {
		return &PersistError{Path: s.path, Err: err}
	}
	s.msgs = append(s.msgs, m)
	return nil
}

// All returns a snapshot of the current message sequence in append order.
// The returned slice is the caller's to keep; later appends do not mutate it.
func (s *Store) All() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of messages currently in the mirror.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// Path returns the log file location.
func (s *Store) Path() string { return s.path }

// Close releases the append handle. The Store must not be used afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
