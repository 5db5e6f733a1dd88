// Package window computes the time boundary that decides which stored
// messages enter a summarization request.
package window

import "github.com/bdobrica/marv/internal/marv/store"

// Span bounds for the automatic window, in seconds.
const (
	// MinSpan is the floor: a summary always covers at least the last hour.
	MinSpan = 3600.0
	// MaxSpan is the ceiling: a summary never reaches back more than a day.
	MaxSpan = 86400.0
)

// Earliest returns the earliest timestamp (seconds since epoch) of the
// summarization window ending at now.
//
// When explicit is true the window is exactly hours long and no clamping
// applies. Otherwise the window starts at the requester's most recent prior
// message (epoch when they have none) and three clamps are applied in a
// fixed order, each allowed to override the previous one:
//
//  1. floor: never less than MinSpan back
//  2. ceiling: never more than MaxSpan back
//  3. prior work: never before the most recent summary entry
//
// The order matters: a summary newer than now-MinSpan legitimately shrinks
// the window below the floor, because re-summarizing already summarized
// material is worse than a short window.
func Earliest(msgs []store.Message, requesterID int64, now float64, hours float64, explicit bool) float64 {
	if explicit {
		return now - hours*3600
	}

	earliest := lastFrom(msgs, requesterID)

	if now-earliest < MinSpan {
		earliest = now - MinSpan
	}
	if now-earliest > MaxSpan {
		earliest = now - MaxSpan
	}
	if ts, ok := lastSummary(msgs); ok && ts > earliest {
		earliest = ts
	}
	return earliest
}

// Select returns the messages eligible for a request with the given
// boundary: every non-summary entry with timestamp >= earliest, in stored
// order. Summary entries are permanent log citizens but never feed back
// into a later computation.
func Select(msgs []store.Message, earliest float64) []store.Message {
	var out []store.Message
	for _, m := range msgs {
		if m.IsSummary() {
			continue
		}
		if m.Timestamp >= earliest {
			out = append(out, m)
		}
	}
	return out
}

// lastFrom returns the timestamp of the most recent message authored by
// requesterID, or 0 when they have never posted.
func lastFrom(msgs []store.Message, requesterID int64) float64 {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].AuthorID == requesterID && !msgs[i].IsSummary() {
			return msgs[i].Timestamp
		}
	}
	return 0
}

// lastSummary returns the timestamp of the most recent summary entry.
func lastSummary(msgs []store.Message) (float64, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsSummary() {
			return msgs[i].Timestamp, true
		}
	}
	return 0, false
}
